package azure

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/costmanagement/armcostmanagement"
	"github.com/smallbiznis/azurecost/internal/billingapi"
	"github.com/smallbiznis/azurecost/internal/config"
	"go.uber.org/zap"
)

const (
	opDailyCosts   = "query.daily_costs"
	opServiceCosts = "query.service_costs"

	aggregationName = "totalCost"
)

type usageClient interface {
	Usage(ctx context.Context, scope string, parameters armcostmanagement.QueryDefinition, options *armcostmanagement.QueryClientUsageOptions) (armcostmanagement.QueryClientUsageResponse, error)
}

// Client queries Azure Cost Management for a single subscription scope.
type Client struct {
	query usageClient
	scope string
	log   *zap.Logger
}

// New authenticates with a client secret credential and builds the query
// client. Credentials are validated lazily on the first call.
func New(cfg config.AzureConfig, log *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.SubscriptionID) == "" {
		return nil, errors.New("azure subscription id is required")
	}
	cred, err := azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)
	if err != nil {
		return nil, &billingapi.UpstreamError{Op: "credential", Code: "invalid_credential", Err: err}
	}
	query, err := armcostmanagement.NewQueryClient(cred, &arm.ClientOptions{})
	if err != nil {
		return nil, &billingapi.UpstreamError{Op: "client", Err: err}
	}
	return newWithQueryClient(query, cfg.Scope(), log), nil
}

func newWithQueryClient(query usageClient, scope string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		query: query,
		scope: scope,
		log:   log.Named("billingapi.azure"),
	}
}

func (c *Client) DailyCosts(ctx context.Context, from, until time.Time) (*billingapi.QueryResult, error) {
	from = truncateDay(from)
	until = truncateDay(until)
	def := armcostmanagement.QueryDefinition{
		Type:      to.Ptr(armcostmanagement.ExportTypeActualCost),
		Timeframe: to.Ptr(armcostmanagement.TimeframeTypeCustom),
		TimePeriod: &armcostmanagement.QueryTimePeriod{
			From: &from,
			To:   &until,
		},
		Dataset: &armcostmanagement.QueryDataset{
			Granularity: to.Ptr(armcostmanagement.GranularityTypeDaily),
			Aggregation: totalCost(),
		},
	}
	return c.usage(ctx, opDailyCosts, def)
}

func (c *Client) ServiceCostsMonthToDate(ctx context.Context) (*billingapi.QueryResult, error) {
	def := armcostmanagement.QueryDefinition{
		Type:      to.Ptr(armcostmanagement.ExportTypeActualCost),
		Timeframe: to.Ptr(armcostmanagement.TimeframeTypeMonthToDate),
		Dataset: &armcostmanagement.QueryDataset{
			Aggregation: totalCost(),
			Grouping: []*armcostmanagement.QueryGrouping{
				{
					Type: to.Ptr(armcostmanagement.QueryColumnTypeDimension),
					Name: to.Ptr("ServiceName"),
				},
			},
		},
	}
	return c.usage(ctx, opServiceCosts, def)
}

func (c *Client) usage(ctx context.Context, op string, def armcostmanagement.QueryDefinition) (*billingapi.QueryResult, error) {
	start := time.Now()
	resp, err := c.query.Usage(ctx, c.scope, def, nil)
	if err != nil {
		translated := translateError(op, err)
		c.log.Warn("billing api call failed",
			zap.String("op", op),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Error(translated),
		)
		return nil, translated
	}

	result := convert(resp.QueryResult)
	c.log.Debug("billing api call finished",
		zap.String("op", op),
		zap.Int("rows", len(result.Rows)),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return result, nil
}

// convert copies the SDK payload into the transport-neutral shape. A missing
// properties block yields an empty column set, which the normalizer rejects.
func convert(res armcostmanagement.QueryResult) *billingapi.QueryResult {
	out := &billingapi.QueryResult{}
	if res.Properties == nil {
		return out
	}
	out.Columns = make([]billingapi.Column, 0, len(res.Properties.Columns))
	for _, col := range res.Properties.Columns {
		if col == nil {
			out.Columns = append(out.Columns, billingapi.Column{})
			continue
		}
		out.Columns = append(out.Columns, billingapi.Column{
			Name: deref(col.Name),
			Type: deref(col.Type),
		})
	}
	out.Rows = res.Properties.Rows
	return out
}

// translateError maps SDK failures onto billingapi.UpstreamError.
func translateError(op string, err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return &billingapi.UpstreamError{
			Op:         op,
			StatusCode: respErr.StatusCode,
			Code:       respErr.ErrorCode,
			Err:        err,
		}
	}
	var authErr *azidentity.AuthenticationFailedError
	if errors.As(err, &authErr) {
		status := 0
		if authErr.RawResponse != nil {
			status = authErr.RawResponse.StatusCode
		}
		return &billingapi.UpstreamError{
			Op:         op,
			StatusCode: status,
			Code:       "authentication_failed",
			Err:        err,
		}
	}
	return &billingapi.UpstreamError{Op: op, Err: err}
}

func totalCost() map[string]*armcostmanagement.QueryAggregation {
	return map[string]*armcostmanagement.QueryAggregation{
		aggregationName: {
			Name:     to.Ptr("Cost"),
			Function: to.Ptr(armcostmanagement.FunctionTypeSum),
		},
	}
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ billingapi.Fetcher = (*Client)(nil)
