package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	costdomain "github.com/smallbiznis/azurecost/internal/cost/domain"
	"github.com/smallbiznis/azurecost/internal/scheduler"
)

var (
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrInternal           = errors.New("internal_error")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

type debugInfo struct {
	ExceptionType    string `json:"exception_type"`
	ExceptionMessage string `json:"exception_message"`
}

type errorResponse struct {
	Detail string     `json:"detail"`
	Debug  *debugInfo `json:"debug,omitempty"`
}

// errorClass is how one error family is presented to clients. Expose marks
// classes whose message is safe to show outside production.
type errorClass struct {
	status  int
	kind    string
	message string
	expose  bool
}

var (
	classUpstream    = errorClass{http.StatusBadGateway, "upstream_error", "Azure API error occurred", true}
	classProcessing  = errorClass{http.StatusInternalServerError, "processing_error", "Data processing error", true}
	classValidation  = errorClass{http.StatusUnprocessableEntity, "validation_error", "Data validation error", true}
	classPersistence = errorClass{http.StatusInternalServerError, "persistence_error", "Database error occurred", true}
	classBadRequest  = errorClass{http.StatusBadRequest, "invalid_request", "invalid request", true}
	classNotFound    = errorClass{http.StatusNotFound, "not_found", "not found", true}
	classConflict    = errorClass{http.StatusConflict, "conflict", "job is already running", true}
	classRateLimited = errorClass{http.StatusTooManyRequests, "rate_limited", "rate limit exceeded", false}
	classUnavailable = errorClass{http.StatusServiceUnavailable, "service_unavailable", "service unavailable", false}
	classInternal    = errorClass{http.StatusInternalServerError, "internal_error", "An unexpected error occurred", false}
)

func classify(err error) errorClass {
	switch {
	case err == nil:
		return classInternal
	case errors.Is(err, costdomain.ErrUpstream):
		return classUpstream
	case errors.Is(err, costdomain.ErrValidation):
		return classValidation
	case errors.Is(err, costdomain.ErrProcessing):
		return classProcessing
	case errors.Is(err, costdomain.ErrPersistence):
		return classPersistence
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, costdomain.ErrInvalidPeriodID),
		errors.Is(err, costdomain.ErrInvalidPageToken),
		errors.Is(err, costdomain.ErrInvalidWindow):
		return classBadRequest
	case errors.Is(err, ErrNotFound),
		errors.Is(err, costdomain.ErrPeriodNotFound),
		errors.Is(err, scheduler.ErrUnknownJob):
		return classNotFound
	case errors.Is(err, scheduler.ErrJobRunning),
		errors.Is(err, scheduler.ErrJobLocked):
		return classConflict
	case errors.Is(err, ErrRateLimited):
		return classRateLimited
	case errors.Is(err, ErrServiceUnavailable):
		return classUnavailable
	default:
		return classInternal
	}
}

// ErrorHandlingMiddleware renders the last handler error. Outside production
// the error text replaces the generic message, and showDebug adds a debug
// block with the error class and text.
func ErrorHandlingMiddleware(production, showDebug bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, body := mapError(lastErr.Err, production, showDebug)
		c.AbortWithStatusJSON(status, body)
	}
}

func mapError(err error, production, showDebug bool) (int, errorResponse) {
	class := classify(err)
	body := errorResponse{Detail: class.message}
	if class.expose && !production && err != nil {
		body.Detail = err.Error()
	}
	if showDebug && err != nil {
		body.Debug = &debugInfo{
			ExceptionType:    class.kind,
			ExceptionMessage: err.Error(),
		}
	}
	return class.status, body
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

// classifyErrorForLog feeds the request logger's error_type and error_code.
func classifyErrorForLog(err error) (string, string) {
	class := classify(err)
	return class.kind, http.StatusText(class.status)
}
