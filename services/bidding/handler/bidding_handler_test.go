package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	bidding "github.com/livebid/auction-engine/internal/biddingService"
	"github.com/livebid/auction-engine/internal/biddingerrors"
	model "github.com/livebid/auction-engine/internal/models"
	"github.com/livebid/auction-engine/services/bidding/helpers"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type decimalMatcher struct{ want decimal.Decimal }

func (m decimalMatcher) Matches(x any) bool {
	d, ok := x.(decimal.Decimal)
	return ok && d.Equal(m.want)
}

func (m decimalMatcher) String() string { return "is decimal " + m.want.String() }

func decEq(v string) gomock.Matcher {
	return decimalMatcher{want: decimal.RequireFromString(v)}
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

// newTestRouter mimics the auth middleware by trusting X-User-ID.
func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if id := c.GetHeader("X-User-ID"); id != "" {
			c.Set(helpers.UserIDKey, id)
		}
	})
	return router
}

func performRequest(t *testing.T, router http.Handler, method, path, body, userID string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	return serve(t, router, req)
}

func serve(t *testing.T, router http.Handler, req *http.Request) (int, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func sampleAuction(now time.Time) model.Auction {
	current := dec("25")
	bidder := "user1"
	reserve := dec("100")
	return model.Auction{
		AuctionID:           uuid.NewString(),
		ProductID:           "p1",
		SellerID:            "seller",
		StartingBid:         dec("10"),
		CurrentBid:          &current,
		ReservePrice:        &reserve,
		MinimumBidIncrement: dec("1"),
		Duration:            60 * time.Second,
		StartedAt:           &now,
		EndsAt:              now.Add(60 * time.Second),
		MaxTimerExtensions:  10,
		Mode:                model.ModeNormal,
		CurrentBidderID:     &bidder,
		BidCount:            3,
		Status:              model.AuctionActive,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// Test PlaceBidHandler
func TestPlaceBidHandler(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	bidID := uuid.NewString()

	tests := []struct {
		name           string
		body           string
		userID         string
		mockSetup      func(m *MockBiddingServiceInterface)
		expectedStatus int
		expectedMsg    string
		expectedErr    string
		validateData   func(t *testing.T, data map[string]any)
	}{
		{
			name:   "success_string_amount",
			body:   `{"amount":"11.50"}`,
			userID: "user1",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					PlaceBid(gomock.Any(), "user1", "a1", decEq("11.50")).
					Return(model.BidResult{
						BidID:           bidID,
						AuctionID:       "a1",
						NewPrice:        dec("11.5"),
						BidCount:        1,
						TimerExtended:   true,
						NewEndsAt:       now.Add(70 * time.Second),
						TimerExtensions: 1,
					}, nil)
			},
			expectedStatus: http.StatusCreated,
			expectedMsg:    "bid placed successfully",
			validateData: func(t *testing.T, data map[string]any) {
				require.Equal(t, bidID, data["bid_id"])
				require.Equal(t, "11.50", data["new_price"])
				require.Equal(t, true, data["timer_extended"])
				require.EqualValues(t, 1, data["timer_extensions"])
				require.EqualValues(t, 1, data["bid_count"])
			},
		},
		{
			name:   "success_numeric_amount",
			body:   `{"amount":12}`,
			userID: "user1",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					PlaceBid(gomock.Any(), "user1", "a1", decEq("12")).
					Return(model.BidResult{BidID: bidID, AuctionID: "a1", NewPrice: dec("12"), BidCount: 2, NewEndsAt: now}, nil)
			},
			expectedStatus: http.StatusCreated,
			expectedMsg:    "bid placed successfully",
			validateData: func(t *testing.T, data map[string]any) {
				require.Equal(t, "12.00", data["new_price"])
				require.Equal(t, false, data["timer_extended"])
			},
		},
		{
			name:           "invalid_json",
			body:           `{invalid json}`,
			userID:         "user1",
			mockSetup:      func(m *MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:           "malformed_amount",
			body:           `{"amount":"ten"}`,
			userID:         "user1",
			mockSetup:      func(m *MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:   "service_bid_too_low",
			body:   `{"amount":"10.50"}`,
			userID: "user1",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					PlaceBid(gomock.Any(), "user1", "a1", decEq("10.50")).
					Return(model.BidResult{}, fmt.Errorf("service: %w - Bid must be at least $11.00", biddingerrors.ErrBidTooLow))
			},
			expectedStatus: http.StatusConflict,
			expectedMsg:    "bid amount too low",
			expectedErr:    "Bid must be at least $11.00",
		},
		{
			name:   "service_invalid_bid",
			body:   `{"amount":"-1"}`,
			userID: "user1",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					PlaceBid(gomock.Any(), "user1", "a1", decEq("-1")).
					Return(model.BidResult{}, fmt.Errorf("service: %w - non-positive bid amount", biddingerrors.ErrInvalidBid))
			},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid bid details",
		},
		{
			name:   "auction_ended",
			body:   `{"amount":"30"}`,
			userID: "user1",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					PlaceBid(gomock.Any(), "user1", "a1", decEq("30")).
					Return(model.BidResult{}, fmt.Errorf("service: %w", biddingerrors.ErrAuctionEnded))
			},
			expectedStatus: http.StatusConflict,
			expectedMsg:    "auction has ended",
			expectedErr:    "Auction has ended",
		},
		{
			name:   "seller_bids_own_auction",
			body:   `{"amount":"30"}`,
			userID: "seller",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					PlaceBid(gomock.Any(), "seller", "a1", decEq("30")).
					Return(model.BidResult{}, fmt.Errorf("service: %w", biddingerrors.ErrOwnAuction))
			},
			expectedStatus: http.StatusForbidden,
			expectedMsg:    "sellers cannot bid on their own auction",
		},
		{
			name:   "auction_not_found",
			body:   `{"amount":"30"}`,
			userID: "user1",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					PlaceBid(gomock.Any(), "user1", "a1", decEq("30")).
					Return(model.BidResult{}, fmt.Errorf("service: failed to get auction a1: %w", biddingerrors.ErrAuctionNotFound))
			},
			expectedStatus: http.StatusNotFound,
			expectedMsg:    "auction not found",
		},
		{
			name:   "service_generic_error",
			body:   `{"amount":"30"}`,
			userID: "user1",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					PlaceBid(gomock.Any(), "user1", "a1", decEq("30")).
					Return(model.BidResult{}, errors.New("database failure"))
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
			mockService := NewMockBiddingServiceInterface(ctrl)
			tc.mockSetup(mockService)

			router := newTestRouter()
			router.POST("/auctions/:auction_id/bids", NewBiddingHandler(mockService).PlaceBidHandler)

			status, resp := performRequest(t, router, http.MethodPost, "/auctions/a1/bids", tc.body, tc.userID)
			require.Equal(t, tc.expectedStatus, status)
			require.Contains(t, resp["message"], tc.expectedMsg)
			if tc.expectedErr != "" {
				require.Contains(t, resp["error"], tc.expectedErr)
			}
			if tc.validateData != nil {
				tc.validateData(t, resp["data"].(map[string]any))
			}
		})
	}
}

// Test CreateAuctionHandler
func TestCreateAuctionHandler(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()

	tests := []struct {
		name           string
		body           string
		mockSetup      func(m *MockBiddingServiceInterface)
		expectedStatus int
		expectedMsg    string
	}{
		{
			name: "success",
			body: `{"product_id":"p1","starting_bid":"10","reserve_price":"100","minimum_bid_increment":"1","duration_seconds":60,"mode":"sudden_death","max_timer_extensions":3}`,
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					CreateAuction(gomock.Any(), "seller", gomock.Any()).
					DoAndReturn(func(_ any, _ string, in bidding.CreateAuctionInput) (model.Auction, error) {
						require.Equal(t, "p1", in.ProductID)
						require.True(t, in.StartingBid.Equal(dec("10")))
						require.True(t, in.ReservePrice.Equal(dec("100")))
						require.Equal(t, 60*time.Second, in.Duration)
						require.Equal(t, model.ModeSuddenDeath, in.Mode)
						require.Equal(t, 3, *in.MaxTimerExtensions)
						return sampleAuction(now), nil
					})
			},
			expectedStatus: http.StatusCreated,
			expectedMsg:    "auction created successfully",
		},
		{
			name:           "missing_product_id",
			body:           `{"starting_bid":"10","minimum_bid_increment":"1","duration_seconds":60}`,
			mockSetup:      func(m *MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:           "missing_duration",
			body:           `{"product_id":"p1","starting_bid":"10","minimum_bid_increment":"1"}`,
			mockSetup:      func(m *MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:           "unknown_mode",
			body:           `{"product_id":"p1","starting_bid":"10","minimum_bid_increment":"1","duration_seconds":60,"mode":"dutch"}`,
			mockSetup:      func(m *MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name: "service_rejects_input",
			body: `{"product_id":"p1","starting_bid":"0","minimum_bid_increment":"1","duration_seconds":60}`,
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					CreateAuction(gomock.Any(), "seller", gomock.Any()).
					Return(model.Auction{}, fmt.Errorf("service: %w - starting bid must be positive", biddingerrors.ErrInvalidAuction))
			},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid auction details",
		},
		{
			name: "not_product_owner",
			body: `{"product_id":"p1","starting_bid":"10","minimum_bid_increment":"1","duration_seconds":60}`,
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					CreateAuction(gomock.Any(), "seller", gomock.Any()).
					Return(model.Auction{}, fmt.Errorf("service: %w", biddingerrors.ErrNotProductOwner))
			},
			expectedStatus: http.StatusForbidden,
			expectedMsg:    "forbidden",
		},
		{
			name: "product_has_open_auction",
			body: `{"product_id":"p1","starting_bid":"10","minimum_bid_increment":"1","duration_seconds":60}`,
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					CreateAuction(gomock.Any(), "seller", gomock.Any()).
					Return(model.Auction{}, fmt.Errorf("create auction: %w", biddingerrors.ErrProductInUse))
			},
			expectedStatus: http.StatusConflict,
			expectedMsg:    "conflict",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)
			mockService := NewMockBiddingServiceInterface(ctrl)
			tc.mockSetup(mockService)

			router := newTestRouter()
			router.POST("/auctions", NewBiddingHandler(mockService).CreateAuctionHandler)

			status, resp := performRequest(t, router, http.MethodPost, "/auctions", tc.body, "seller")
			require.Equal(t, tc.expectedStatus, status)
			require.Contains(t, resp["message"], tc.expectedMsg)
		})
	}
}

// Test GetAuctionHandler
func TestGetAuctionHandler(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	auction := sampleAuction(now)

	ctrl := gomock.NewController(t)
	mockService := NewMockBiddingServiceInterface(ctrl)
	mockService.EXPECT().GetAuction(gomock.Any(), auction.AuctionID).Return(auction, nil)
	mockService.EXPECT().GetAuction(gomock.Any(), "missing").
		Return(model.Auction{}, fmt.Errorf("get auction missing: %w", biddingerrors.ErrAuctionNotFound))

	router := newTestRouter()
	router.GET("/auctions/:auction_id", NewBiddingHandler(mockService).GetAuctionHandler)

	status, resp := performRequest(t, router, http.MethodGet, "/auctions/"+auction.AuctionID, "", "")
	require.Equal(t, http.StatusOK, status)
	data := resp["data"].(map[string]any)
	require.Equal(t, auction.AuctionID, data["auction_id"])
	require.Equal(t, "25.00", data["current_bid"])
	require.Equal(t, "26.00", data["minimum_bid"])
	require.Equal(t, true, data["has_reserve"])
	require.Equal(t, false, data["reserve_met"])
	require.EqualValues(t, 60, data["duration_seconds"])
	require.NotContains(t, data, "reserve_price")

	status, resp = performRequest(t, router, http.MethodGet, "/auctions/missing", "", "")
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "auction not found", resp["message"])
}

// Test GetBidsByAuctionHandler
func TestGetBidsByAuctionHandler(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()

	tests := []struct {
		name           string
		auctionID      string
		mockSetup      func(m *MockBiddingServiceInterface)
		expectedStatus int
		expectedCount  int
	}{
		{
			name:      "two_bids",
			auctionID: "a1",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().GetBidsForAuction(gomock.Any(), "a1").Return([]model.Bid{
					{BidID: uuid.NewString(), AuctionID: "a1", UserID: "user1", Amount: dec("11"), CreatedAt: now},
					{BidID: uuid.NewString(), AuctionID: "a1", UserID: "user2", Amount: dec("12"), IsWinning: true, CreatedAt: now},
				}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedCount:  2,
		},
		{
			name:      "no_bids_returns_empty_list",
			auctionID: "a2",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().GetBidsForAuction(gomock.Any(), "a2").Return(nil, nil)
			},
			expectedStatus: http.StatusOK,
			expectedCount:  0,
		},
		{
			name:      "unknown_auction",
			auctionID: "missing",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().GetBidsForAuction(gomock.Any(), "missing").
					Return(nil, fmt.Errorf("get bids: %w", biddingerrors.ErrAuctionNotFound))
			},
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)
			mockService := NewMockBiddingServiceInterface(ctrl)
			tc.mockSetup(mockService)

			router := newTestRouter()
			router.GET("/auctions/:auction_id/bids", NewBiddingHandler(mockService).GetBidsByAuctionHandler)

			status, resp := performRequest(t, router, http.MethodGet, "/auctions/"+tc.auctionID+"/bids", "", "")
			require.Equal(t, tc.expectedStatus, status)
			if status == http.StatusOK {
				data, ok := resp["data"].([]any)
				require.True(t, ok, "data should be a list")
				require.Len(t, data, tc.expectedCount)
			}
		})
	}
}

// Test GetWinningBidHandler
func TestGetWinningBidHandler(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()

	ctrl := gomock.NewController(t)
	mockService := NewMockBiddingServiceInterface(ctrl)
	winning := model.Bid{BidID: uuid.NewString(), AuctionID: "a1", UserID: "user2", Amount: dec("12.5"), IsWinning: true, CreatedAt: now}
	mockService.EXPECT().GetWinningBid(gomock.Any(), "a1").Return(winning, nil)
	mockService.EXPECT().GetWinningBid(gomock.Any(), "a2").
		Return(model.Bid{}, fmt.Errorf("service: %w - auction a2", biddingerrors.ErrNoBids))

	router := newTestRouter()
	router.GET("/auctions/:auction_id/winning", NewBiddingHandler(mockService).GetWinningBidHandler)

	status, resp := performRequest(t, router, http.MethodGet, "/auctions/a1/winning", "", "")
	require.Equal(t, http.StatusOK, status)
	data := resp["data"].(map[string]any)
	require.Equal(t, winning.BidID, data["bid_id"])
	require.Equal(t, "12.50", data["amount"])
	require.Equal(t, true, data["is_winning"])

	status, resp = performRequest(t, router, http.MethodGet, "/auctions/a2/winning", "", "")
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "no bids found for auction", resp["message"])
}

// Test auto-bid configuration and cancellation
func TestAutoBidHandlers(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()

	ctrl := gomock.NewController(t)
	mockService := NewMockBiddingServiceInterface(ctrl)
	proxy := dec("15")
	mockService.EXPECT().ConfigureAutoBid(gomock.Any(), "user1", "a1", decEq("80")).Return(model.AutoBid{
		AutoBidID:       uuid.NewString(),
		AuctionID:       "a1",
		UserID:          "user1",
		MaxAmount:       dec("80"),
		CurrentProxyBid: &proxy,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil)
	mockService.EXPECT().ConfigureAutoBid(gomock.Any(), "user1", "a1", decEq("5")).
		Return(model.AutoBid{}, fmt.Errorf("service: %w - Bid must be at least $16.00", biddingerrors.ErrBidTooLow))
	mockService.EXPECT().CancelAutoBid(gomock.Any(), "user1", "a1").Return(nil)
	mockService.EXPECT().CancelAutoBid(gomock.Any(), "user2", "a1").
		Return(fmt.Errorf("service: %w", biddingerrors.ErrAutoBidNotFound))

	h := NewBiddingHandler(mockService)
	router := newTestRouter()
	router.PUT("/auctions/:auction_id/auto-bid", h.ConfigureAutoBidHandler)
	router.DELETE("/auctions/:auction_id/auto-bid", h.CancelAutoBidHandler)

	status, resp := performRequest(t, router, http.MethodPut, "/auctions/a1/auto-bid", `{"max_amount":"80"}`, "user1")
	require.Equal(t, http.StatusOK, status)
	data := resp["data"].(map[string]any)
	require.Equal(t, "80.00", data["max_amount"])
	require.Equal(t, "15.00", data["current_proxy_bid"])
	require.Equal(t, true, data["is_active"])

	status, resp = performRequest(t, router, http.MethodPut, "/auctions/a1/auto-bid", `{"max_amount":"5"}`, "user1")
	require.Equal(t, http.StatusConflict, status)
	require.Contains(t, resp["error"], "Bid must be at least $16.00")

	status, _ = performRequest(t, router, http.MethodPut, "/auctions/a1/auto-bid", `not json`, "user1")
	require.Equal(t, http.StatusBadRequest, status)

	status, resp = performRequest(t, router, http.MethodDelete, "/auctions/a1/auto-bid", "", "user1")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "auto-bid cancelled successfully", resp["message"])

	status, resp = performRequest(t, router, http.MethodDelete, "/auctions/a1/auto-bid", "", "user2")
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "auto-bid not found", resp["message"])
}

// Test seller lifecycle endpoints
func TestAuctionLifecycleHandlers(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()

	tests := []struct {
		name           string
		path           string
		body           string
		userID         string
		mockSetup      func(m *MockBiddingServiceInterface)
		expectedStatus int
		expectedMsg    string
	}{
		{
			name:   "start_success",
			path:   "/auctions/a1/start",
			userID: "seller",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().StartAuctionNow(gomock.Any(), "a1", "seller").Return(sampleAuction(now), nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "auction started successfully",
		},
		{
			name:   "start_not_pending",
			path:   "/auctions/a1/start",
			userID: "seller",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().StartAuctionNow(gomock.Any(), "a1", "seller").
					Return(model.Auction{}, fmt.Errorf("service: %w - status is active", biddingerrors.ErrAuctionNotPending))
			},
			expectedStatus: http.StatusConflict,
			expectedMsg:    "auction is not pending",
		},
		{
			name:   "cancel_success",
			path:   "/auctions/a1/cancel",
			userID: "seller",
			mockSetup: func(m *MockBiddingServiceInterface) {
				a := sampleAuction(now)
				a.Status = model.AuctionCancelled
				m.EXPECT().CancelAuction(gomock.Any(), "a1", "seller").Return(a, nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "auction cancelled successfully",
		},
		{
			name:   "cancel_with_bids",
			path:   "/auctions/a1/cancel",
			userID: "seller",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().CancelAuction(gomock.Any(), "a1", "seller").
					Return(model.Auction{}, fmt.Errorf("service: %w", biddingerrors.ErrAuctionHasBids))
			},
			expectedStatus: http.StatusConflict,
			expectedMsg:    "auction already has bids",
		},
		{
			name:   "cancel_not_owner",
			path:   "/auctions/a1/cancel",
			userID: "user1",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().CancelAuction(gomock.Any(), "a1", "user1").
					Return(model.Auction{}, fmt.Errorf("service: %w", biddingerrors.ErrNotProductOwner))
			},
			expectedStatus: http.StatusForbidden,
			expectedMsg:    "forbidden",
		},
		{
			name:   "extend_success",
			path:   "/auctions/a1/extend",
			body:   `{"extension_seconds":30}`,
			userID: "seller",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().ExtendAuction(gomock.Any(), "a1", "seller", 30*time.Second).Return(sampleAuction(now), nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "auction extended successfully",
		},
		{
			name:           "extend_zero_seconds",
			path:           "/auctions/a1/extend",
			body:           `{"extension_seconds":0}`,
			userID:         "seller",
			mockSetup:      func(m *MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:   "extend_limit_reached",
			path:   "/auctions/a1/extend",
			body:   `{"extension_seconds":30}`,
			userID: "seller",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().ExtendAuction(gomock.Any(), "a1", "seller", 30*time.Second).
					Return(model.Auction{}, fmt.Errorf("service: %w", biddingerrors.ErrExtensionLimit))
			},
			expectedStatus: http.StatusConflict,
			expectedMsg:    "maximum timer extensions reached",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)
			mockService := NewMockBiddingServiceInterface(ctrl)
			tc.mockSetup(mockService)

			h := NewBiddingHandler(mockService)
			router := newTestRouter()
			router.POST("/auctions/:auction_id/start", h.StartAuctionHandler)
			router.POST("/auctions/:auction_id/cancel", h.CancelAuctionHandler)
			router.POST("/auctions/:auction_id/extend", h.ExtendAuctionHandler)

			status, resp := performRequest(t, router, http.MethodPost, tc.path, tc.body, tc.userID)
			require.Equal(t, tc.expectedStatus, status)
			require.Contains(t, resp["message"], tc.expectedMsg)
		})
	}
}
