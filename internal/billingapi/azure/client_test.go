package azure

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/costmanagement/armcostmanagement"
	"github.com/smallbiznis/azurecost/internal/billingapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubUsage struct {
	scope string
	def   armcostmanagement.QueryDefinition
	resp  armcostmanagement.QueryClientUsageResponse
	err   error
}

func (s *stubUsage) Usage(_ context.Context, scope string, def armcostmanagement.QueryDefinition, _ *armcostmanagement.QueryClientUsageOptions) (armcostmanagement.QueryClientUsageResponse, error) {
	s.scope = scope
	s.def = def
	return s.resp, s.err
}

func TestServiceCostsMonthToDateQuery(t *testing.T) {
	stub := &stubUsage{}
	stub.resp.QueryResult = armcostmanagement.QueryResult{
		Properties: &armcostmanagement.QueryProperties{
			Columns: []*armcostmanagement.QueryColumn{
				{Name: to.Ptr("Cost"), Type: to.Ptr("Number")},
				{Name: to.Ptr("ServiceName"), Type: to.Ptr("String")},
				{Name: to.Ptr("Currency"), Type: to.Ptr("String")},
			},
			Rows: [][]any{{10.5, "VM", "USD"}},
		},
	}
	client := newWithQueryClient(stub, "/subscriptions/abc", zap.NewNop())

	res, err := client.ServiceCostsMonthToDate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "/subscriptions/abc", stub.scope)
	assert.Equal(t, armcostmanagement.TimeframeTypeMonthToDate, *stub.def.Timeframe)
	assert.Nil(t, stub.def.Dataset.Granularity)
	require.Len(t, stub.def.Dataset.Grouping, 1)
	assert.Equal(t, "ServiceName", *stub.def.Dataset.Grouping[0].Name)
	assert.Equal(t, []billingapi.Column{{Name: "Cost", Type: "Number"}, {Name: "ServiceName", Type: "String"}, {Name: "Currency", Type: "String"}}, res.Columns)
	assert.Len(t, res.Rows, 1)
}

func TestDailyCostsQueryUsesCustomWindow(t *testing.T) {
	stub := &stubUsage{}
	client := newWithQueryClient(stub, "/subscriptions/abc", nil)

	from := time.Date(2024, 3, 1, 15, 4, 5, 0, time.UTC)
	until := time.Date(2024, 3, 8, 9, 0, 0, 0, time.UTC)
	res, err := client.DailyCosts(context.Background(), from, until)
	require.NoError(t, err)
	assert.Empty(t, res.Columns)

	assert.Equal(t, armcostmanagement.TimeframeTypeCustom, *stub.def.Timeframe)
	assert.Equal(t, armcostmanagement.GranularityTypeDaily, *stub.def.Dataset.Granularity)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), *stub.def.TimePeriod.From)
	assert.Equal(t, time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC), *stub.def.TimePeriod.To)
}

func TestTranslateError(t *testing.T) {
	respErr := &azcore.ResponseError{StatusCode: http.StatusTooManyRequests, ErrorCode: "429"}
	err := translateError(opDailyCosts, respErr)

	assert.True(t, errors.Is(err, billingapi.ErrUpstream))
	var upstream *billingapi.UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusTooManyRequests, upstream.StatusCode)
	assert.Equal(t, opDailyCosts, upstream.Op)

	timeout := translateError(opServiceCosts, context.DeadlineExceeded)
	assert.True(t, errors.Is(timeout, billingapi.ErrUpstream))
	assert.True(t, errors.Is(timeout, context.DeadlineExceeded))
}

func TestTranslateErrorCredentialFailureFallsBack(t *testing.T) {
	cause := errors.New("DefaultAzureCredential: failed to acquire a token")
	err := translateError(opDailyCosts, cause)

	var upstream *billingapi.UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, opDailyCosts, upstream.Op)
	assert.Empty(t, upstream.Code)
	assert.Zero(t, upstream.StatusCode)
	assert.ErrorIs(t, err, billingapi.ErrUpstream)
	assert.ErrorIs(t, err, cause)
}

func TestUsageFailureIsUpstream(t *testing.T) {
	stub := &stubUsage{err: errors.New("connection reset")}
	client := newWithQueryClient(stub, "/subscriptions/abc", nil)

	_, err := client.ServiceCostsMonthToDate(context.Background())
	assert.ErrorIs(t, err, billingapi.ErrUpstream)
}
