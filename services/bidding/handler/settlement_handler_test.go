package handler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/livebid/auction-engine/internal/biddingerrors"
	model "github.com/livebid/auction-engine/internal/models"
	"github.com/livebid/auction-engine/internal/payment"
	settlement "github.com/livebid/auction-engine/internal/settlementService"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
)

// Test FinalizeAuctionHandler
func TestFinalizeAuctionHandler(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	winner := "buyer"
	price := dec("80")

	tests := []struct {
		name           string
		mockSetup      func(m *MockSettlementServiceInterface)
		expectedStatus int
		expectedMsg    string
		validateData   func(t *testing.T, data map[string]any)
	}{
		{
			name: "sold",
			mockSetup: func(m *MockSettlementServiceInterface) {
				m.EXPECT().FinalizeAuctionAsSeller(gomock.Any(), "a1", "seller").Return(settlement.Result{
					AuctionID:  "a1",
					WinnerID:   &winner,
					FinalPrice: &price,
					ReserveMet: true,
					Order: &model.Order{
						OrderID:   "o1",
						AuctionID: "a1",
						BuyerID:   winner,
						ItemPrice: price,
						Total:     dec("87.5"),
						Status:    model.OrderPaid,
						CreatedAt: now,
					},
				}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "auction finalized successfully",
			validateData: func(t *testing.T, data map[string]any) {
				require.Equal(t, "buyer", data["winner_id"])
				require.Equal(t, "80.00", data["final_price"])
				require.Equal(t, "o1", data["order_id"])
				require.Equal(t, "paid", data["order_status"])
				require.Equal(t, "87.50", data["order_total"])
			},
		},
		{
			name: "passed",
			mockSetup: func(m *MockSettlementServiceInterface) {
				m.EXPECT().FinalizeAuctionAsSeller(gomock.Any(), "a1", "seller").Return(settlement.Result{AuctionID: "a1"}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "auction finalized successfully",
			validateData: func(t *testing.T, data map[string]any) {
				require.Nil(t, data["winner_id"])
				require.Equal(t, false, data["reserve_met"])
				require.NotContains(t, data, "order_id")
			},
		},
		{
			name: "still_running",
			mockSetup: func(m *MockSettlementServiceInterface) {
				m.EXPECT().FinalizeAuctionAsSeller(gomock.Any(), "a1", "seller").
					Return(settlement.Result{}, fmt.Errorf("settlement: %w", biddingerrors.ErrAuctionStillRunning))
			},
			expectedStatus: http.StatusConflict,
			expectedMsg:    "auction is still running",
		},
		{
			name: "not_the_seller",
			mockSetup: func(m *MockSettlementServiceInterface) {
				m.EXPECT().FinalizeAuctionAsSeller(gomock.Any(), "a1", "seller").
					Return(settlement.Result{}, fmt.Errorf("settlement: %w - auction a1", biddingerrors.ErrNotProductOwner))
			},
			expectedStatus: http.StatusForbidden,
			expectedMsg:    "forbidden",
		},
		{
			name: "already_settled",
			mockSetup: func(m *MockSettlementServiceInterface) {
				m.EXPECT().FinalizeAuctionAsSeller(gomock.Any(), "a1", "seller").
					Return(settlement.Result{}, fmt.Errorf("settlement: %w - status is ended", biddingerrors.ErrAuctionNotActive))
			},
			expectedStatus: http.StatusConflict,
			expectedMsg:    "auction is not active",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)
			mockService := NewMockSettlementServiceInterface(ctrl)
			tc.mockSetup(mockService)

			router := newTestRouter()
			router.POST("/auctions/:auction_id/finalize", NewSettlementHandler(mockService, nil).FinalizeAuctionHandler)

			status, resp := performRequest(t, router, http.MethodPost, "/auctions/a1/finalize", "", "seller")
			require.Equal(t, tc.expectedStatus, status)
			require.Contains(t, resp["message"], tc.expectedMsg)
			if tc.validateData != nil {
				tc.validateData(t, resp["data"].(map[string]any))
			}
		})
	}
}

// Test PaymentWebhookHandler
func TestPaymentWebhookHandler(t *testing.T) {
	t.Parallel()
	payload := `{"id":"evt_1","type":"payment_intent.succeeded"}`
	event := payment.WebhookEvent{ID: "evt_1", Type: payment.EventIntentSucceeded, PaymentIntentID: "pi_1"}

	t.Run("payments_disabled", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		router := newTestRouter()
		router.POST("/webhooks/payments", NewSettlementHandler(NewMockSettlementServiceInterface(ctrl), nil).PaymentWebhookHandler)

		status, resp := performRequest(t, router, http.MethodPost, "/webhooks/payments", payload, "")
		require.Equal(t, http.StatusServiceUnavailable, status)
		require.Equal(t, "payments disabled", resp["message"])
	})

	tests := []struct {
		name           string
		mockSetup      func(p *payment.MockWebhookParser, s *MockSettlementServiceInterface)
		expectedStatus int
		expectedMsg    string
	}{
		{
			name: "processed",
			mockSetup: func(p *payment.MockWebhookParser, s *MockSettlementServiceInterface) {
				p.EXPECT().ParseWebhook([]byte(payload), "t=1,v1=sig").Return(event, nil)
				s.EXPECT().HandlePaymentEvent(gomock.Any(), event).Return(nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "event processed",
		},
		{
			name: "bad_signature",
			mockSetup: func(p *payment.MockWebhookParser, s *MockSettlementServiceInterface) {
				p.EXPECT().ParseWebhook(gomock.Any(), "t=1,v1=sig").
					Return(payment.WebhookEvent{}, fmt.Errorf("payment: %w", biddingerrors.ErrWebhookVerification))
			},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "webhook verification failed",
		},
		{
			name: "event_without_intent",
			mockSetup: func(p *payment.MockWebhookParser, s *MockSettlementServiceInterface) {
				p.EXPECT().ParseWebhook(gomock.Any(), gomock.Any()).Return(event, nil)
				s.EXPECT().HandlePaymentEvent(gomock.Any(), event).
					Return(fmt.Errorf("settlement: %w - missing payment intent", biddingerrors.ErrValidation))
			},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "validation failed",
		},
		{
			name: "store_failure_is_retried_by_gateway",
			mockSetup: func(p *payment.MockWebhookParser, s *MockSettlementServiceInterface) {
				p.EXPECT().ParseWebhook(gomock.Any(), gomock.Any()).Return(event, nil)
				s.EXPECT().HandlePaymentEvent(gomock.Any(), event).Return(fmt.Errorf("update order: connection reset"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedMsg:    "internal server error",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)
			parser := payment.NewMockWebhookParser(ctrl)
			service := NewMockSettlementServiceInterface(ctrl)
			tc.mockSetup(parser, service)

			router := newTestRouter()
			router.POST("/webhooks/payments", NewSettlementHandler(service, parser).PaymentWebhookHandler)

			req := newSignedRequest(payload, "t=1,v1=sig")
			status, resp := serve(t, router, req)
			require.Equal(t, tc.expectedStatus, status)
			require.Contains(t, resp["message"], tc.expectedMsg)
		})
	}
}

func newSignedRequest(payload, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signature)
	return req
}
