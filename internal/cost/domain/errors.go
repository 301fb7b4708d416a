package domain

import (
	"errors"

	"github.com/smallbiznis/azurecost/internal/billingapi"
)

var (
	// ErrUpstream is the billing API failure class; see billingapi.UpstreamError.
	ErrUpstream = billingapi.ErrUpstream

	ErrProcessing  = errors.New("processing_error")
	ErrValidation  = errors.New("validation_error")
	ErrPersistence = errors.New("persistence_error")

	ErrInvalidPeriodID  = errors.New("invalid_billing_period_id")
	ErrPeriodNotFound   = errors.New("billing_period_not_found")
	ErrInvalidWindow    = errors.New("invalid_billing_window")
	ErrInvalidPageToken = errors.New("invalid_page_token")
)
