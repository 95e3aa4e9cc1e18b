package helpers

import (
	"time"

	bidding "github.com/livebid/auction-engine/internal/biddingService"
	model "github.com/livebid/auction-engine/internal/models"
	settlement "github.com/livebid/auction-engine/internal/settlementService"

	"github.com/shopspring/decimal"
)

// CreateAuctionRequest is the body of POST /auctions
type CreateAuctionRequest struct {
	ProductID           string           `json:"product_id" binding:"required"`
	StreamID            *string          `json:"stream_id"`
	StartingBid         decimal.Decimal  `json:"starting_bid"`
	ReservePrice        *decimal.Decimal `json:"reserve_price"`
	MinimumBidIncrement decimal.Decimal  `json:"minimum_bid_increment"`
	DurationSeconds     int              `json:"duration_seconds" binding:"required,gt=0"`
	ScheduledStart      *time.Time       `json:"scheduled_start"`
	Mode                string           `json:"mode" binding:"omitempty,oneof=normal sudden_death"`
	MaxTimerExtensions  *int             `json:"max_timer_extensions" binding:"omitempty,gte=0"`
}

// ToInput converts the request into service input.
func (r CreateAuctionRequest) ToInput() bidding.CreateAuctionInput {
	return bidding.CreateAuctionInput{
		ProductID:           r.ProductID,
		StreamID:            r.StreamID,
		StartingBid:         r.StartingBid,
		ReservePrice:        r.ReservePrice,
		MinimumBidIncrement: r.MinimumBidIncrement,
		Duration:            time.Duration(r.DurationSeconds) * time.Second,
		ScheduledStart:      r.ScheduledStart,
		Mode:                model.AuctionMode(r.Mode),
		MaxTimerExtensions:  r.MaxTimerExtensions,
	}
}

// PlaceBidRequest is the body of POST /auctions/:auction_id/bids.
// Amounts are decimal strings or numbers; range checks happen in the service.
type PlaceBidRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// AutoBidRequest is the body of PUT /auctions/:auction_id/auto-bid
type AutoBidRequest struct {
	MaxAmount decimal.Decimal `json:"max_amount"`
}

// ExtendAuctionRequest is the body of POST /auctions/:auction_id/extend
type ExtendAuctionRequest struct {
	ExtensionSeconds int `json:"extension_seconds" binding:"required,gt=0"`
}

// AuctionResponse is the public view of an auction.
type AuctionResponse struct {
	AuctionID           string  `json:"auction_id"`
	ProductID           string  `json:"product_id"`
	SellerID            string  `json:"seller_id"`
	StreamID            *string `json:"stream_id,omitempty"`
	Status              string  `json:"status"`
	Mode                string  `json:"mode"`
	StartingBid         string  `json:"starting_bid"`
	CurrentBid          *string `json:"current_bid"`
	MinimumBid          string  `json:"minimum_bid"`
	MinimumBidIncrement string  `json:"minimum_bid_increment"`
	CurrentBidderID     *string `json:"current_bidder_id"`
	BidCount            int     `json:"bid_count"`
	DurationSeconds     int64   `json:"duration_seconds"`
	StartedAt           *string `json:"started_at"`
	EndsAt              string  `json:"ends_at"`
	OriginalEndsAt      *string `json:"original_ends_at"`
	EndedAt             *string `json:"ended_at,omitempty"`
	TimerExtensions     int     `json:"timer_extensions"`
	MaxTimerExtensions  int     `json:"max_timer_extensions"`
	ReserveMet          bool    `json:"reserve_met"`
	HasReserve          bool    `json:"has_reserve"`
}

// NewAuctionResponse builds the public view. The reserve amount itself is
// never exposed, only whether one exists.
func NewAuctionResponse(a model.Auction) AuctionResponse {
	resp := AuctionResponse{
		AuctionID:           a.AuctionID,
		ProductID:           a.ProductID,
		SellerID:            a.SellerID,
		StreamID:            a.StreamID,
		Status:              string(a.Status),
		Mode:                string(a.Mode),
		StartingBid:         a.StartingBid.StringFixed(2),
		MinimumBid:          a.MinimumBid().StringFixed(2),
		MinimumBidIncrement: a.MinimumBidIncrement.StringFixed(2),
		CurrentBidderID:     a.CurrentBidderID,
		BidCount:            a.BidCount,
		DurationSeconds:     int64(a.Duration / time.Second),
		StartedAt:           formatTime(a.StartedAt),
		EndsAt:              a.EndsAt.UTC().Format(time.RFC3339Nano),
		OriginalEndsAt:      formatTime(a.OriginalEndsAt),
		EndedAt:             formatTime(a.EndedAt),
		TimerExtensions:     a.TimerExtensions,
		MaxTimerExtensions:  a.MaxTimerExtensions,
		ReserveMet:          a.ReserveMet,
		HasReserve:          a.ReservePrice != nil,
	}
	if a.CurrentBid != nil {
		s := a.CurrentBid.StringFixed(2)
		resp.CurrentBid = &s
	}
	return resp
}

// BidResponse is the public view of a recorded bid
type BidResponse struct {
	BidID     string `json:"bid_id"`
	AuctionID string `json:"auction_id"`
	UserID    string `json:"user_id"`
	Amount    string `json:"amount"`
	IsWinning bool   `json:"is_winning"`
	IsAuto    bool   `json:"is_auto"`
	CreatedAt string `json:"created_at"`
}

func NewBidResponse(b model.Bid) BidResponse {
	return BidResponse{
		BidID:     b.BidID,
		AuctionID: b.AuctionID,
		UserID:    b.UserID,
		Amount:    b.Amount.StringFixed(2),
		IsWinning: b.IsWinning,
		IsAuto:    b.IsAuto,
		CreatedAt: b.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func NewBidResponses(bids []model.Bid) []BidResponse {
	out := make([]BidResponse, 0, len(bids))
	for _, b := range bids {
		out = append(out, NewBidResponse(b))
	}
	return out
}

// PlaceBidResponse reports the outcome of a bid placement.
type PlaceBidResponse struct {
	BidID           string `json:"bid_id"`
	AuctionID       string `json:"auction_id"`
	NewPrice        string `json:"new_price"`
	BidCount        int    `json:"bid_count"`
	TimerExtended   bool   `json:"timer_extended"`
	NewEndsAt       string `json:"new_ends_at"`
	TimerExtensions int    `json:"timer_extensions"`
}

func NewPlaceBidResponse(r model.BidResult) PlaceBidResponse {
	return PlaceBidResponse{
		BidID:           r.BidID,
		AuctionID:       r.AuctionID,
		NewPrice:        r.NewPrice.StringFixed(2),
		BidCount:        r.BidCount,
		TimerExtended:   r.TimerExtended,
		NewEndsAt:       r.NewEndsAt.UTC().Format(time.RFC3339Nano),
		TimerExtensions: r.TimerExtensions,
	}
}

// AutoBidResponse is the caller's view of their proxy bid
type AutoBidResponse struct {
	AutoBidID       string  `json:"auto_bid_id"`
	AuctionID       string  `json:"auction_id"`
	MaxAmount       string  `json:"max_amount"`
	CurrentProxyBid *string `json:"current_proxy_bid"`
	IsActive        bool    `json:"is_active"`
}

func NewAutoBidResponse(ab model.AutoBid) AutoBidResponse {
	resp := AutoBidResponse{
		AutoBidID: ab.AutoBidID,
		AuctionID: ab.AuctionID,
		MaxAmount: ab.MaxAmount.StringFixed(2),
		IsActive:  ab.IsActive,
	}
	if ab.CurrentProxyBid != nil {
		s := ab.CurrentProxyBid.StringFixed(2)
		resp.CurrentProxyBid = &s
	}
	return resp
}

// SettlementResponse reports the outcome of finalizing an auction.
type SettlementResponse struct {
	AuctionID   string  `json:"auction_id"`
	WinnerID    *string `json:"winner_id"`
	FinalPrice  *string `json:"final_price"`
	ReserveMet  bool    `json:"reserve_met"`
	OrderID     *string `json:"order_id,omitempty"`
	OrderStatus *string `json:"order_status,omitempty"`
	OrderTotal  *string `json:"order_total,omitempty"`
}

func NewSettlementResponse(r settlement.Result) SettlementResponse {
	resp := SettlementResponse{
		AuctionID:  r.AuctionID,
		WinnerID:   r.WinnerID,
		ReserveMet: r.ReserveMet,
	}
	if r.FinalPrice != nil {
		s := r.FinalPrice.StringFixed(2)
		resp.FinalPrice = &s
	}
	if r.Order != nil {
		status := string(r.Order.Status)
		total := r.Order.Total.StringFixed(2)
		resp.OrderID = &r.Order.OrderID
		resp.OrderStatus = &status
		resp.OrderTotal = &total
	}
	return resp
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339Nano)
	return &s
}
