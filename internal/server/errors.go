package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/receiptor/internal/invoice/domain"
	"github.com/smallbiznis/receiptor/internal/lease"
	orderdomain "github.com/smallbiznis/receiptor/internal/order/domain"
	receiptdomain "github.com/smallbiznis/receiptor/internal/receipt/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var ErrInvalidRequest = errors.New("invalid_request")

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
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_request",
			Message: "invalid request",
		}
	case errors.Is(err, gorm.ErrRecordNotFound),
		errors.Is(err, orderdomain.ErrOrderNotFound),
		errors.Is(err, orderdomain.ErrOrderTypeNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, lease.ErrLockTimeout):
		// Another run holds the order lease. The caller should retry.
		return http.StatusConflict, errorPayload{
			Type:    "lock_timeout",
			Message: "order is being processed, retry later",
		}
	case errors.Is(err, invoicedomain.ErrNumberInUse):
		return http.StatusConflict, errorPayload{
			Type:    "invoice_number_in_use",
			Message: "invoice number already committed to another order",
		}
	case errors.Is(err, receiptdomain.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "storage_unavailable",
			Message: "artifact storage unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}
