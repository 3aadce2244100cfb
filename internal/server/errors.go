package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/pasarku/internal/actor"
	"github.com/smallbiznis/pasarku/internal/authorization"
	dispatchdomain "github.com/smallbiznis/pasarku/internal/dispatch/domain"
	"github.com/smallbiznis/pasarku/internal/liveevents"
	merchantdomain "github.com/smallbiznis/pasarku/internal/merchant/domain"
	orderdomain "github.com/smallbiznis/pasarku/internal/order/domain"
	paymentdomain "github.com/smallbiznis/pasarku/internal/payment/domain"
	quotadomain "github.com/smallbiznis/pasarku/internal/quota/domain"
	"github.com/smallbiznis/pasarku/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

var validationSentinels = []error{
	ErrInvalidRequest,
	orderdomain.ErrInvalidOrder,
	orderdomain.ErrInvalidBuyer,
	orderdomain.ErrInvalidMerchant,
	orderdomain.ErrInvalidItems,
	orderdomain.ErrInvalidQuantity,
	orderdomain.ErrInvalidPrice,
	orderdomain.ErrInvalidShippingCost,
	orderdomain.ErrInvalidDeliveryType,
	orderdomain.ErrInvalidDeliveryAddress,
	orderdomain.ErrInvalidTargetStatus,
	orderdomain.ErrInvalidReason,
	orderdomain.ErrInvalidPODRef,
	orderdomain.ErrInvalidIdempotencyKey,
	orderdomain.ErrDispatchRequired,
	orderdomain.ErrAmountOverflow,
	paymentdomain.ErrInvalidProofRef,
	paymentdomain.ErrInvalidPaymentMethod,
	dispatchdomain.ErrInvalidCourier,
	dispatchdomain.ErrInvalidMode,
	dispatchdomain.ErrCourierRequired,
	dispatchdomain.ErrModeNotAllowed,
	quotadomain.ErrInvalidMerchant,
	quotadomain.ErrInvalidOrder,
	quotadomain.ErrInvalidAmount,
	quotadomain.ErrInvalidCredits,
	quotadomain.ErrInvalidNote,
	merchantdomain.ErrInvalidMerchant,
	liveevents.ErrInvalidStreamKey,
	pagination.ErrInvalidPageToken,
}

// conflictSentinels are state conflicts: the request was well formed but the
// order, payment or courier is not in a state that allows it.
var conflictSentinels = []error{
	orderdomain.ErrInvalidTransition,
	orderdomain.ErrConcurrentModification,
	orderdomain.ErrIdempotencyKeyReused,
	paymentdomain.ErrPaymentNotVerified,
	paymentdomain.ErrPaymentProofMissing,
	paymentdomain.ErrPaymentNotRequired,
	paymentdomain.ErrPaymentAlreadyPaid,
	dispatchdomain.ErrCourierUnavailable,
	dispatchdomain.ErrNoCouriersAvailable,
	ErrConflict,
}

var notFoundSentinels = []error{
	ErrNotFound,
	orderdomain.ErrOrderNotFound,
	merchantdomain.ErrMerchantNotFound,
	dispatchdomain.ErrCourierNotFound,
	quotadomain.ErrSubscriptionNotFound,
	gorm.ErrRecordNotFound,
}

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

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if sentinel := matchSentinel(err, validationSentinels); sentinel != nil {
		code := sentinel.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, actor.ErrInvalidActor),
		errors.Is(err, authorization.ErrInvalidActor):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, orderdomain.ErrOrderAccessDenied):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, quotadomain.ErrQuotaExhausted):
		return http.StatusPaymentRequired, errorPayload{
			Type:    quotadomain.ErrQuotaExhausted.Error(),
			Message: "transaction quota exhausted",
		}
	case matchSentinel(err, conflictSentinels) != nil:
		sentinel := matchSentinel(err, conflictSentinels)
		return http.StatusConflict, errorPayload{
			Type:    sentinel.Error(),
			Message: strings.ReplaceAll(sentinel.Error(), "_", " "),
		}
	case matchSentinel(err, notFoundSentinels) != nil:
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, liveevents.ErrHubUnavailable):
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

// classifyErrorForLog feeds the request logger with the mapped error type and
// the matched domain code.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, payload.Type
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func matchSentinel(err error, sentinels []error) error {
	for _, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return nil
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "dispatch_required":
		return "target_status"
	case "amount_overflow":
		return "items"
	case "courier_required":
		return "courier_id"
	case "dispatch_mode_not_allowed":
		return "mode"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "dispatch_required":
		return "use the dispatch endpoint to send an order"
	case "amount_overflow":
		return "order amount out of range"
	default:
		return "invalid value"
	}
}
