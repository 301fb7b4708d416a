package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	costdomain "github.com/smallbiznis/azurecost/internal/cost/domain"
)

type fetchResponse[R any] struct {
	Status          string `json:"status"`
	BillingPeriodID string `json:"billing_period_id"`
	Count           int    `json:"count"`
	SavedToDB       int    `json:"saved_to_db"`
	Data            []R    `json:"data"`
}

func newFetchResponse[R any](result costdomain.Result[R]) fetchResponse[R] {
	data := result.Records
	if data == nil {
		data = []R{}
	}
	return fetchResponse[R]{
		Status:          "success",
		BillingPeriodID: result.BillingPeriodID.String(),
		Count:           len(result.Records),
		SavedToDB:       result.SavedCount,
		Data:            data,
	}
}

func (s *Server) FetchDailyCosts(c *gin.Context) {
	result, err := s.pipeline.FetchDailyCosts(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newFetchResponse(result))
}

func (s *Server) FetchServiceCosts(c *gin.Context) {
	result, err := s.pipeline.FetchServiceCosts(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newFetchResponse(result))
}

func (s *Server) FetchServiceCostsRaw(c *gin.Context) {
	rows, err := s.pipeline.FetchServiceCostsRaw(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if rows == nil {
		rows = []costdomain.Row{}
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": rows})
}

type periodResponse struct {
	ID        string    `json:"id"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	IsCurrent bool      `json:"is_current"`
	CreatedAt time.Time `json:"created_at"`
}

func newPeriodResponse(p costdomain.BillingPeriod) periodResponse {
	return periodResponse{
		ID:        p.ID.String(),
		StartDate: p.StartDate.UTC(),
		EndDate:   p.EndDate.UTC(),
		IsCurrent: p.IsCurrent,
		CreatedAt: p.CreatedAt.UTC(),
	}
}

type serviceCostResponse struct {
	ID              string      `json:"id"`
	ServiceID       string      `json:"service_id"`
	ServiceName     string      `json:"service_name"`
	ServiceCategory *string     `json:"service_category"`
	Currency        string      `json:"currency"`
	Cost            json.Number `json:"cost"`
	FetchedAt       time.Time   `json:"fetched_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

type dailyCostResponse struct {
	ID        string      `json:"id"`
	UsageDate string      `json:"usage_date"`
	Currency  string      `json:"currency"`
	Cost      json.Number `json:"cost"`
	FetchedAt time.Time   `json:"fetched_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func (s *Server) ListPeriods(c *gin.Context) {
	var query struct {
		PageToken string `form:"page_token"`
		PageSize  string `form:"page_size"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	pageSize, err := parsePageSize(query.PageSize)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.costSvc.ListPeriods(c.Request.Context(), costdomain.ListPeriodsRequest{
		PageToken: strings.TrimSpace(query.PageToken),
		PageSize:  pageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	data := make([]periodResponse, 0, len(resp.Periods))
	for _, p := range resp.Periods {
		data = append(data, newPeriodResponse(p))
	}
	c.JSON(http.StatusOK, gin.H{
		"data": data,
		"page_info": gin.H{
			"next_page_token": resp.NextPageToken,
			"has_more":        resp.HasMore,
		},
	})
}

func (s *Server) GetCurrentPeriod(c *gin.Context) {
	period, err := s.costSvc.GetCurrentPeriod(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": newPeriodResponse(*period)})
}

func (s *Server) ListPeriodServiceCosts(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	costs, err := s.costSvc.ListServiceCosts(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	data := make([]serviceCostResponse, 0, len(costs))
	for _, sc := range costs {
		data = append(data, serviceCostResponse{
			ID:              sc.ID.String(),
			ServiceID:       sc.ServiceID.String(),
			ServiceName:     sc.ServiceName,
			ServiceCategory: sc.ServiceCategory,
			Currency:        sc.CurrencyCode,
			Cost:            json.Number(sc.CostAmount.StringFixed(2)),
			FetchedAt:       sc.FetchedAt.UTC(),
			UpdatedAt:       sc.UpdatedAt.UTC(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"billing_period_id": id, "data": data})
}

func (s *Server) ListPeriodDailyCosts(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	costs, err := s.costSvc.ListDailyCosts(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	data := make([]dailyCostResponse, 0, len(costs))
	for _, dc := range costs {
		data = append(data, dailyCostResponse{
			ID:        dc.ID.String(),
			UsageDate: dc.UsageDate.Format(costdomain.UsageDateLayout),
			Currency:  dc.CurrencyCode,
			Cost:      json.Number(dc.CostAmount.StringFixed(2)),
			FetchedAt: dc.FetchedAt.UTC(),
			UpdatedAt: dc.UpdatedAt.UTC(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"billing_period_id": id, "data": data})
}
