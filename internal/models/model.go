package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuctionStatus is the lifecycle state of an auction.
type AuctionStatus string

const (
	AuctionPending   AuctionStatus = "pending"
	AuctionActive    AuctionStatus = "active"
	AuctionEnded     AuctionStatus = "ended"
	AuctionCancelled AuctionStatus = "cancelled"

	// AuctionLive is a legacy alias of AuctionActive still present in older rows.
	AuctionLive AuctionStatus = "live"
)

// IsTerminal reports whether no further transition is possible.
func (s AuctionStatus) IsTerminal() bool {
	return s == AuctionEnded || s == AuctionCancelled
}

// IsOpen reports whether the auction is pending or running.
func (s AuctionStatus) IsOpen() bool {
	return s == AuctionPending || s == AuctionActive || s == AuctionLive
}

// AuctionMode selects the closing behaviour.
type AuctionMode string

const (
	// ModeNormal extends the deadline when bids land in the soft-close window.
	ModeNormal AuctionMode = "normal"
	// ModeSuddenDeath ends hard at EndsAt.
	ModeSuddenDeath AuctionMode = "sudden_death"
)

// Valid reports whether m is a known mode.
func (m AuctionMode) Valid() bool {
	return m == ModeNormal || m == ModeSuddenDeath
}

// DefaultMaxTimerExtensions caps soft-close extensions when none is configured.
const DefaultMaxTimerExtensions = 10

// Auction is a single lot being sold, optionally tied to a live stream
type Auction struct {
	AuctionID string  `json:"auction_id"`
	ProductID string  `json:"product_id"`
	SellerID  string  `json:"seller_id"`
	StreamID  *string `json:"stream_id,omitempty"`

	StartingBid         decimal.Decimal  `json:"starting_bid"`
	CurrentBid          *decimal.Decimal `json:"current_bid"`
	ReservePrice        *decimal.Decimal `json:"reserve_price,omitempty"`
	MinimumBidIncrement decimal.Decimal  `json:"minimum_bid_increment"`

	Duration       time.Duration `json:"duration"`
	ScheduledStart *time.Time    `json:"scheduled_start,omitempty"`
	StartedAt      *time.Time    `json:"started_at"`
	EndsAt         time.Time     `json:"ends_at"`
	OriginalEndsAt *time.Time    `json:"original_ends_at"`
	EndedAt        *time.Time    `json:"ended_at,omitempty"`

	TimerExtensions    int         `json:"timer_extensions"`
	MaxTimerExtensions int         `json:"max_timer_extensions"`
	Mode               AuctionMode `json:"mode"`

	CurrentBidderID *string       `json:"current_bidder_id"`
	BidCount        int           `json:"bid_count"`
	Status          AuctionStatus `json:"status"`

	ReserveMet     bool `json:"reserve_met"`
	WinnerNotified bool `json:"winner_notified"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsBiddable reports whether a bid may be accepted at now.
func (a Auction) IsBiddable(now time.Time) bool {
	if a.Status != AuctionActive && a.Status != AuctionLive {
		return false
	}
	return now.Before(a.EndsAt)
}

// MinimumBid is the smallest amount the next bid may carry.
func (a Auction) MinimumBid() decimal.Decimal {
	return a.EffectivePrice().Add(a.MinimumBidIncrement)
}

// EffectivePrice is the current bid, or the starting bid before any bid exists.
func (a Auction) EffectivePrice() decimal.Decimal {
	if a.CurrentBid != nil {
		return *a.CurrentBid
	}
	return a.StartingBid
}

// HasWinner reports whether a leading bid and bidder are recorded.
func (a Auction) HasWinner() bool {
	return a.CurrentBid != nil && a.CurrentBidderID != nil
}

// ReserveSatisfied reports whether the current bid meets the reserve, if any.
func (a Auction) ReserveSatisfied() bool {
	if a.ReservePrice == nil {
		return true
	}
	return a.CurrentBid != nil && a.CurrentBid.GreaterThanOrEqual(*a.ReservePrice)
}

// IsLeader reports whether userID holds the current winning bid.
func (a Auction) IsLeader(userID string) bool {
	return a.CurrentBidderID != nil && *a.CurrentBidderID == userID
}

// Bid represents a user's bid on an auction
type Bid struct {
	BidID     string          `json:"bid_id"`
	AuctionID string          `json:"auction_id"`
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	IsWinning bool            `json:"is_winning"`
	IsAuto    bool            `json:"is_auto"`
	CreatedAt time.Time       `json:"created_at"`
}

// AutoBid is a standing proxy authorization up to MaxAmount.
type AutoBid struct {
	AutoBidID       string           `json:"auto_bid_id"`
	AuctionID       string           `json:"auction_id"`
	UserID          string           `json:"user_id"`
	MaxAmount       decimal.Decimal  `json:"max_amount"`
	CurrentProxyBid *decimal.Decimal `json:"current_proxy_bid"`
	IsActive        bool             `json:"is_active"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// BidResult is returned by a successful bid placement.
type BidResult struct {
	BidID           string          `json:"bid_id"`
	AuctionID       string          `json:"auction_id"`
	NewPrice        decimal.Decimal `json:"new_price"`
	BidCount        int             `json:"bid_count"`
	TimerExtended   bool            `json:"timer_extended"`
	NewEndsAt       time.Time       `json:"new_ends_at"`
	TimerExtensions int             `json:"timer_extensions"`
}

// OrderStatus tracks payment of a settled auction.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderCancelled OrderStatus = "cancelled"
)

// Order is the financial outcome of a won auction.
type Order struct {
	OrderID         string          `json:"order_id"`
	AuctionID       string          `json:"auction_id"`
	ProductID       string          `json:"product_id"`
	BuyerID         string          `json:"buyer_id"`
	SellerID        string          `json:"seller_id"`
	ItemPrice       decimal.Decimal `json:"item_price"`
	ShippingCost    decimal.Decimal `json:"shipping_cost"`
	Total           decimal.Decimal `json:"total"`
	Status          OrderStatus     `json:"status"`
	PaymentIntentID *string         `json:"payment_intent_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ProductStatus is the sale state of a listed product.
type ProductStatus string

const (
	ProductAvailable ProductStatus = "available"
	ProductSold      ProductStatus = "sold"
)

// Product represents the item being auctioned
type Product struct {
	ProductID    string          `json:"product_id"`
	SellerID     string          `json:"seller_id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	ShippingCost decimal.Decimal `json:"shipping_cost"`
	Quantity     int             `json:"quantity"`
	SoldQuantity int             `json:"sold_quantity"`
	Status       ProductStatus   `json:"status"`
}

// StreamProductStatus is the state of a product featured in a live stream.
type StreamProductStatus string

const (
	StreamProductPending StreamProductStatus = "pending"
	StreamProductActive  StreamProductStatus = "active"
	StreamProductSold    StreamProductStatus = "sold"
	StreamProductPassed  StreamProductStatus = "passed"
)

// StreamProduct links a product to a live broadcast.
type StreamProduct struct {
	StreamID  string              `json:"stream_id"`
	ProductID string              `json:"product_id"`
	Status    StreamProductStatus `json:"status"`
}

// User represents a participant in the auction
type User struct {
	UserID            string `json:"user_id"`
	Username          string `json:"username"`
	Email             string `json:"email"`
	PaymentCustomerID string `json:"-"`
	PaymentMethodID   string `json:"-"`
}

// Notification is an in-app message addressed to a user.
type Notification struct {
	NotificationID string    `json:"notification_id"`
	UserID         string    `json:"user_id"`
	Kind           string    `json:"kind"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	AuctionID      string    `json:"auction_id,omitempty"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"created_at"`
}
