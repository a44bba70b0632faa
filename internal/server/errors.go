package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/meridian/internal/audit/domain"
	paymentdomain "github.com/smallbiznis/meridian/internal/payment/domain"
	pricingdomain "github.com/smallbiznis/meridian/internal/pricing/domain"
	productdomain "github.com/smallbiznis/meridian/internal/product/domain"
	recondomain "github.com/smallbiznis/meridian/internal/reconciliation/domain"
	"github.com/smallbiznis/meridian/internal/recovery"
	taxdomain "github.com/smallbiznis/meridian/internal/tax/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrMissingOrg     = errors.New("missing_organization")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case isInvalidStateError(err):
		return http.StatusConflict, errorPayload{
			Type:    "invalid_state",
			Message: err.Error(),
		}
	case errors.Is(err, recovery.ErrCircuitOpen):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrMissingOrg),
		errors.Is(err, auditdomain.ErrInvalidOrganization),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange),
		errors.Is(err, pricingdomain.ErrInvalidOrganization),
		errors.Is(err, pricingdomain.ErrInvalidRule),
		errors.Is(err, pricingdomain.ErrInvalidQuantity),
		errors.Is(err, recondomain.ErrInvalidPeriod),
		errors.Is(err, recondomain.ErrInvalidIdempotency),
		errors.Is(err, taxdomain.ErrInvalidRate):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, recondomain.ErrNotFound),
		errors.Is(err, pricingdomain.ErrRuleNotFound),
		errors.Is(err, paymentdomain.ErrBankAccountNotFound),
		errors.Is(err, paymentdomain.ErrPaymentNotFound),
		errors.Is(err, productdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isInvalidStateError(err error) bool {
	switch {
	case errors.Is(err, recondomain.ErrNotInProgress),
		errors.Is(err, recondomain.ErrNotCompleted),
		errors.Is(err, paymentdomain.ErrInvalidPaymentState):
		return true
	default:
		return false
	}
}
