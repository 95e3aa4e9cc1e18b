package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/livebid/auction-engine/internal/payment"
	settlement "github.com/livebid/auction-engine/internal/settlementService"
	"github.com/livebid/auction-engine/services/bidding/helpers"
	"github.com/livebid/auction-engine/utils"

	"github.com/gin-gonic/gin"
)

// maxWebhookBody bounds webhook payloads read into memory.
const maxWebhookBody = 64 << 10

type SettlementServiceInterface interface {
	FinalizeAuctionAsSeller(ctx context.Context, auctionID, userID string) (settlement.Result, error)
	HandlePaymentEvent(ctx context.Context, event payment.WebhookEvent) error
}

var _ SettlementServiceInterface = (*settlement.SettlementService)(nil)

type SettlementHandler struct {
	service SettlementServiceInterface
	parser  payment.WebhookParser
}

// NewSettlementHandler builds the settlement endpoints. parser may be nil
// when no payment gateway is configured; webhooks are then refused.
func NewSettlementHandler(service SettlementServiceInterface, parser payment.WebhookParser) *SettlementHandler {
	return &SettlementHandler{service: service, parser: parser}
}

// FinalizeAuctionHandler handles POST /auctions/:auction_id/finalize
func (h *SettlementHandler) FinalizeAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	userID := helpers.CallerID(c)
	result, err := h.service.FinalizeAuctionAsSeller(c.Request.Context(), auctionID, userID)
	if err != nil {
		helpers.RespondError(c, "FinalizeAuctionHandler", err, map[string]any{"auction_id": auctionID, "user_id": userID})
		return
	}

	respond(c, http.StatusOK, helpers.NewSettlementResponse(result), "FinalizeAuctionHandler", "auction finalized successfully", map[string]any{
		"auction_id":  auctionID,
		"user_id":     userID,
		"reserve_met": result.ReserveMet,
	})
}

// PaymentWebhookHandler handles POST /webhooks/payments
func (h *SettlementHandler) PaymentWebhookHandler(c *gin.Context) {
	if h.parser == nil {
		utils.JSONError(c, http.StatusServiceUnavailable, fmt.Errorf("payment gateway is not configured"), "payments disabled")
		utils.Warn("PaymentWebhookHandler: webhook received without gateway", nil)
		return
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		helpers.HandleBindError(c, "PaymentWebhookHandler", err)
		return
	}

	event, err := h.parser.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		helpers.RespondError(c, "PaymentWebhookHandler", err, nil)
		return
	}

	if err := h.service.HandlePaymentEvent(c.Request.Context(), event); err != nil {
		helpers.RespondError(c, "PaymentWebhookHandler", err, map[string]any{
			"event_id":   event.ID,
			"event_type": event.Type,
		})
		return
	}

	respond(c, http.StatusOK, gin.H{"event_id": event.ID}, "PaymentWebhookHandler", "event processed", map[string]any{
		"event_id":          event.ID,
		"event_type":        event.Type,
		"payment_intent_id": event.PaymentIntentID,
	})
}
