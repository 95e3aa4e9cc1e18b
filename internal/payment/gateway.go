package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/livebid/auction-engine/internal/biddingerrors"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// IntentRequest describes an off-session charge for a settled order.
type IntentRequest struct {
	Amount          decimal.Decimal
	Currency        string
	CustomerID      string
	PaymentMethodID string
	Metadata        map[string]string
}

// Gateway creates and captures payment intents. CreateIntent returns the
// intent id together with an error when the intent was created but could
// not be authorized, so a later webhook can still settle it.
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (string, error)
	Capture(ctx context.Context, intentID string) error
}

// Webhook event types the engine reacts to.
const (
	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.payment_failed"
	EventIntentCanceled  = "payment_intent.canceled"
)

// WebhookEvent is the verified, gateway-neutral form of a webhook delivery.
type WebhookEvent struct {
	ID              string
	Type            string
	PaymentIntentID string
}

// WebhookParser verifies and decodes webhook payloads.
type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (WebhookEvent, error)
}

// StripeGateway implements Gateway and WebhookParser on Stripe.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
}

var (
	_ Gateway       = (*StripeGateway)(nil)
	_ WebhookParser = (*StripeGateway)(nil)
)

// NewStripeGateway creates a gateway bound to the given secret key.
func NewStripeGateway(secretKey, webhookSecret string) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeGateway{api: api, webhookSecret: webhookSecret}
}

// ToMinorUnits converts an amount to cents, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// CreateIntent creates a confirmed, manual-capture, off-session intent.
func (g *StripeGateway) CreateIntent(ctx context.Context, req IntentRequest) (string, error) {
	if req.CustomerID == "" || req.PaymentMethodID == "" {
		return "", fmt.Errorf("create intent: %w - buyer has no saved payment method", biddingerrors.ErrPaymentProcessing)
	}
	if !req.Amount.IsPositive() {
		return "", fmt.Errorf("create intent: %w - non-positive amount %s", biddingerrors.ErrPaymentProcessing, req.Amount)
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(ToMinorUnits(req.Amount)),
		Currency:      stripe.String(req.Currency),
		Customer:      stripe.String(req.CustomerID),
		PaymentMethod: stripe.String(req.PaymentMethodID),
		CaptureMethod: stripe.String("manual"),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return IntentIDFromError(err), MapError(err)
	}
	return pi.ID, nil
}

// IntentIDFromError returns the id of the intent a Stripe error refers to.
// Confirmed intents that decline or need 3DS exist even though New failed.
func IntentIDFromError(err error) string {
	var se *stripe.Error
	if errors.As(err, &se) && se.PaymentIntent != nil {
		return se.PaymentIntent.ID
	}
	return ""
}

// Capture captures a previously authorized intent.
func (g *StripeGateway) Capture(ctx context.Context, intentID string) error {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	if _, err := g.api.PaymentIntents.Capture(intentID, params); err != nil {
		return MapError(err)
	}
	return nil
}

// ParseWebhook verifies the signature header and extracts the intent id.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (WebhookEvent, error) {
	event, err := webhook.ConstructEvent(payload, signature, g.webhookSecret)
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", biddingerrors.ErrWebhookVerification, err)
	}

	out := WebhookEvent{ID: event.ID, Type: string(event.Type)}
	if event.Data != nil && len(event.Data.Raw) > 0 {
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err == nil {
			out.PaymentIntentID = pi.ID
		}
	}
	return out, nil
}

// MapError translates a Stripe error into the engine's payment error kinds.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	var se *stripe.Error
	if !errors.As(err, &se) {
		return fmt.Errorf("%w: %v", biddingerrors.ErrStripeConnection, err)
	}

	code := string(se.Code)
	decline := string(se.DeclineCode)
	switch {
	case decline == "insufficient_funds":
		return fmt.Errorf("%w: %s", biddingerrors.ErrInsufficientFunds, se.Msg)
	case code == "expired_card" || decline == "expired_card":
		return fmt.Errorf("%w: %s", biddingerrors.ErrExpiredCard, se.Msg)
	case code == "incorrect_number" || code == "invalid_number" || code == "invalid_expiry_month" ||
		code == "invalid_expiry_year" || code == "invalid_cvc" || code == "incorrect_cvc":
		return fmt.Errorf("%w: %s", biddingerrors.ErrInvalidCard, se.Msg)
	case code == "authentication_required" || decline == "authentication_required":
		return fmt.Errorf("%w: %s", biddingerrors.ErrAuthenticationRequired, se.Msg)
	case code == "card_declined" || string(se.Type) == "card_error":
		return fmt.Errorf("%w: %s", biddingerrors.ErrCardDeclined, se.Msg)
	case string(se.Type) == "api_connection_error":
		return fmt.Errorf("%w: %s", biddingerrors.ErrStripeConnection, se.Msg)
	default:
		return fmt.Errorf("%w: %s", biddingerrors.ErrPaymentProcessing, se.Msg)
	}
}
