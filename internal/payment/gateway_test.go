package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/livebid/auction-engine/internal/biddingerrors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
)

// Test MapError
func TestMapError(t *testing.T) {
	t.Parallel()

	cardErr := func(code, decline string) error {
		return &stripe.Error{
			Type:        stripe.ErrorType("card_error"),
			Code:        stripe.ErrorCode(code),
			DeclineCode: stripe.DeclineCode(decline),
			Msg:         "card problem",
		}
	}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "insufficient_funds", err: cardErr("card_declined", "insufficient_funds"), want: biddingerrors.ErrInsufficientFunds},
		{name: "expired_card", err: cardErr("expired_card", ""), want: biddingerrors.ErrExpiredCard},
		{name: "invalid_number", err: cardErr("incorrect_number", ""), want: biddingerrors.ErrInvalidCard},
		{name: "authentication_required", err: cardErr("card_declined", "authentication_required"), want: biddingerrors.ErrAuthenticationRequired},
		{name: "generic_decline", err: cardErr("card_declined", "do_not_honor"), want: biddingerrors.ErrCardDeclined},
		{name: "invalid_request", err: &stripe.Error{Type: stripe.ErrorType("invalid_request_error"), Msg: "bad"}, want: biddingerrors.ErrPaymentProcessing},
		{name: "network_failure", err: errors.New("dial tcp: timeout"), want: biddingerrors.ErrStripeConnection},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := MapError(tc.err)
			require.ErrorIs(t, got, tc.want)
			require.True(t, biddingerrors.IsPayment(got))
		})
	}

	require.NoError(t, MapError(nil))
}

func TestIntentIDFromError(t *testing.T) {
	t.Parallel()

	declined := &stripe.Error{
		Type:          stripe.ErrorType("card_error"),
		Code:          stripe.ErrorCode("authentication_required"),
		PaymentIntent: &stripe.PaymentIntent{ID: "pi_3ds"},
	}
	require.Equal(t, "pi_3ds", IntentIDFromError(declined))
	require.Equal(t, "pi_3ds", IntentIDFromError(fmt.Errorf("wrapped: %w", declined)))
	require.Empty(t, IntentIDFromError(&stripe.Error{Type: stripe.ErrorType("card_error")}))
	require.Empty(t, IntentIDFromError(errors.New("dial tcp: timeout")))
}

func TestToMinorUnits(t *testing.T) {
	t.Parallel()

	require.Equal(t, int64(1250), ToMinorUnits(decimal.RequireFromString("12.50")))
	require.Equal(t, int64(5500), ToMinorUnits(decimal.NewFromInt(55)))
	require.Equal(t, int64(1), ToMinorUnits(decimal.RequireFromString("0.005")))
}

func TestStripeGateway_CreateIntentRejectsMissingPaymentMethod(t *testing.T) {
	t.Parallel()

	g := NewStripeGateway("sk_test_dummy", "whsec_dummy")
	_, err := g.CreateIntent(t.Context(), IntentRequest{Amount: decimal.NewFromInt(10), Currency: "usd"})
	require.ErrorIs(t, err, biddingerrors.ErrPaymentProcessing)
}

func sign(payload []byte, secret string, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

// Test ParseWebhook
func TestStripeGateway_ParseWebhook(t *testing.T) {
	t.Parallel()

	const secret = "whsec_test"
	g := NewStripeGateway("sk_test_dummy", secret)
	payload := []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"object": "event",
		"api_version": %q,
		"type": "payment_intent.succeeded",
		"data": {"object": {"id": "pi_123", "object": "payment_intent"}}
	}`, stripe.APIVersion))

	t.Run("valid_signature", func(t *testing.T) {
		t.Parallel()
		ev, err := g.ParseWebhook(payload, sign(payload, secret, time.Now().Unix()))
		require.NoError(t, err)
		require.Equal(t, "evt_1", ev.ID)
		require.Equal(t, EventIntentSucceeded, ev.Type)
		require.Equal(t, "pi_123", ev.PaymentIntentID)
	})

	t.Run("wrong_secret", func(t *testing.T) {
		t.Parallel()
		_, err := g.ParseWebhook(payload, sign(payload, "other", time.Now().Unix()))
		require.ErrorIs(t, err, biddingerrors.ErrWebhookVerification)
	})

	t.Run("missing_header", func(t *testing.T) {
		t.Parallel()
		_, err := g.ParseWebhook(payload, "")
		require.ErrorIs(t, err, biddingerrors.ErrWebhookVerification)
	})
}
