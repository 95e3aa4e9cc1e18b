package helpers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/livebid/auction-engine/internal/biddingerrors"
	"github.com/livebid/auction-engine/utils"

	"github.com/gin-gonic/gin"
)

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	wrappedErr := fmt.Errorf("invalid request payload: %w", err)
	utils.JSONError(c, http.StatusBadRequest, wrappedErr, "invalid request payload")
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// MapErrorToHTTP maps domain/service errors to HTTP status code and message.
// Specific sentinels are matched before the kind they wrap.
func MapErrorToHTTP(err error) (int, string) {
	switch {
	case errors.Is(err, biddingerrors.ErrNoBids):
		return http.StatusNotFound, "no bids found for auction"
	case errors.Is(err, biddingerrors.ErrAuctionNotFound):
		return http.StatusNotFound, "auction not found"
	case errors.Is(err, biddingerrors.ErrProductNotFound):
		return http.StatusNotFound, "product not found"
	case errors.Is(err, biddingerrors.ErrAutoBidNotFound):
		return http.StatusNotFound, "auto-bid not found"
	case errors.Is(err, biddingerrors.ErrNotFound):
		return http.StatusNotFound, "resource not found"

	case errors.Is(err, biddingerrors.ErrBidTooLow):
		return http.StatusConflict, "bid amount too low"
	case errors.Is(err, biddingerrors.ErrAuctionEnded):
		return http.StatusConflict, "auction has ended"
	case errors.Is(err, biddingerrors.ErrAuctionNotActive):
		return http.StatusConflict, "auction is not active"
	case errors.Is(err, biddingerrors.ErrAuctionNotPending):
		return http.StatusConflict, "auction is not pending"
	case errors.Is(err, biddingerrors.ErrAuctionStillRunning):
		return http.StatusConflict, "auction is still running"
	case errors.Is(err, biddingerrors.ErrAuctionHasBids):
		return http.StatusConflict, "auction already has bids"
	case errors.Is(err, biddingerrors.ErrExtensionLimit):
		return http.StatusConflict, "maximum timer extensions reached"
	case errors.Is(err, biddingerrors.ErrInvalidBid):
		return http.StatusBadRequest, "invalid bid details"
	case errors.Is(err, biddingerrors.ErrInvalidAuction):
		return http.StatusBadRequest, "invalid auction details"
	case errors.Is(err, biddingerrors.ErrValidation):
		return http.StatusBadRequest, "validation failed"

	case errors.Is(err, biddingerrors.ErrOwnAuction):
		return http.StatusForbidden, "sellers cannot bid on their own auction"
	case errors.Is(err, biddingerrors.ErrForbidden):
		return http.StatusForbidden, "forbidden"

	case errors.Is(err, biddingerrors.ErrConflict):
		return http.StatusConflict, "conflict"

	case errors.Is(err, biddingerrors.ErrWebhookVerification):
		return http.StatusBadRequest, "webhook verification failed"
	case errors.Is(err, biddingerrors.ErrStripeConnection):
		return http.StatusServiceUnavailable, "payment gateway unavailable"
	case biddingerrors.IsPayment(err):
		return http.StatusPaymentRequired, "payment failed"

	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// RespondError writes the mapped error envelope and logs the failure.
func RespondError(c *gin.Context, handlerName string, err error, ctx map[string]any) {
	status, message := MapErrorToHTTP(err)
	utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)

	fields := map[string]any{"handler": handlerName, "status": status, "kind": biddingerrors.KindOf(err), "error": err.Error()}
	for k, v := range ctx {
		fields[k] = v
	}
	if status >= http.StatusInternalServerError {
		utils.Error(handlerName+": request failed", fields)
		return
	}
	utils.Warn(handlerName+": request rejected", fields)
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}

// UserIDKey is the gin context key holding the authenticated caller.
const UserIDKey = "user_id"

// CallerID returns the caller identity stored by the auth middleware.
func CallerID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}
