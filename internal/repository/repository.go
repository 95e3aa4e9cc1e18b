package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/livebid/auction-engine/internal/biddingerrors"
	model "github.com/livebid/auction-engine/internal/models"

	"github.com/shopspring/decimal"
)

// AuctionDB defines the storage interface for the auction engine.
// All writes that must be atomic with the auction row go through WithAuctionLock.
type AuctionDB interface {
	CreateAuction(ctx context.Context, auction model.Auction) error
	GetAuction(ctx context.Context, auctionID string) (model.Auction, error)
	ListAuctionsByStatus(ctx context.Context, statuses ...model.AuctionStatus) ([]model.Auction, error)
	GetBidsByAuction(ctx context.Context, auctionID string) ([]model.Bid, error)
	GetAutoBids(ctx context.Context, auctionID string) ([]model.AutoBid, error)

	GetProduct(ctx context.Context, productID string) (model.Product, error)
	MarkProductSold(ctx context.Context, productID string) error
	SetStreamProductStatus(ctx context.Context, streamID, productID string, status model.StreamProductStatus) error
	GetUser(ctx context.Context, userID string) (model.User, error)

	GetOrderByAuction(ctx context.Context, auctionID string) (model.Order, error)
	GetOrderByPaymentIntent(ctx context.Context, intentID string) (model.Order, error)
	UpdateOrderPayment(ctx context.Context, orderID string, intentID *string, status model.OrderStatus) error

	CreateNotification(ctx context.Context, n model.Notification) error

	// WithAuctionLock runs fn while holding the exclusive lock on the auction row.
	// Writes staged through the AuctionTx commit only if fn returns nil.
	WithAuctionLock(ctx context.Context, auctionID string, fn func(ctx context.Context, tx AuctionTx) error) error
}

// AuctionTx is the view of a locked auction row inside a transaction.
type AuctionTx interface {
	// Auction returns the row as read under the lock, including staged updates.
	Auction() model.Auction
	SaveAuction(ctx context.Context, auction model.Auction) error
	// RecordBid clears the winning flag on all prior bids and inserts bid.
	RecordBid(ctx context.Context, bid model.Bid) error
	ActiveAutoBids(ctx context.Context) ([]model.AutoBid, error)
	UpsertAutoBid(ctx context.Context, autoBid model.AutoBid) (model.AutoBid, error)
	UpdateAutoBidProxy(ctx context.Context, autoBidID string, amount decimal.Decimal) error
	DeactivateAutoBid(ctx context.Context, userID string) error
	CreateOrder(ctx context.Context, order model.Order) error
}

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionDB.
// Each auction has its own mutex standing in for a row lock, so bids on
// different auctions never wait on each other.
type MemoryRepo struct {
	mu             sync.RWMutex
	auctions       map[string]model.Auction      // key: auctionID
	bids           map[string][]model.Bid        // key: auctionID -> bids in commit order
	autoBids       map[string][]model.AutoBid    // key: auctionID
	products       map[string]model.Product      // key: productID
	users          map[string]model.User         // key: userID
	orders         map[string]model.Order        // key: orderID
	orderByAuction map[string]string             // key: auctionID -> orderID
	streamProducts map[string]model.StreamProduct // key: streamID/productID
	notifications  []model.Notification

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

var _ AuctionDB = (*MemoryRepo)(nil)

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		auctions:       make(map[string]model.Auction),
		bids:           make(map[string][]model.Bid),
		autoBids:       make(map[string][]model.AutoBid),
		products:       make(map[string]model.Product),
		users:          make(map[string]model.User),
		orders:         make(map[string]model.Order),
		orderByAuction: make(map[string]string),
		streamProducts: make(map[string]model.StreamProduct),
		locks:          make(map[string]*sync.Mutex),
	}
}

func streamKey(streamID, productID string) string {
	return streamID + "/" + productID
}

// CreateAuction stores a new auction; a product may have only one open auction.
func (r *MemoryRepo) CreateAuction(_ context.Context, auction model.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[auction.ProductID]; !ok {
		return fmt.Errorf("create auction for product %s: %w", auction.ProductID, biddingerrors.ErrProductNotFound)
	}
	for _, a := range r.auctions {
		if a.ProductID == auction.ProductID && a.Status.IsOpen() {
			return fmt.Errorf("create auction for product %s: %w", auction.ProductID, biddingerrors.ErrProductInUse)
		}
	}
	if _, ok := r.auctions[auction.AuctionID]; ok {
		return fmt.Errorf("create auction %s: %w: duplicate id", auction.AuctionID, biddingerrors.ErrConflict)
	}
	r.auctions[auction.AuctionID] = auction
	return nil
}

// GetAuction returns the auction by id
func (r *MemoryRepo) GetAuction(_ context.Context, auctionID string) (model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.auctions[auctionID]
	if !ok {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	return a, nil
}

// ListAuctionsByStatus returns auctions in any of the given states ordered by deadline.
func (r *MemoryRepo) ListAuctionsByStatus(_ context.Context, statuses ...model.AuctionStatus) ([]model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	want := make(map[model.AuctionStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	var out []model.Auction
	for _, a := range r.auctions {
		if want[a.Status] {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndsAt.Before(out[j].EndsAt) })
	return out, nil
}

// GetBidsByAuction returns all bids for an auction in commit order
func (r *MemoryRepo) GetBidsByAuction(_ context.Context, auctionID string) ([]model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.auctions[auctionID]; !ok {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	return append([]model.Bid(nil), r.bids[auctionID]...), nil
}

// GetAutoBids returns every auto-bid configured on an auction, active or not.
func (r *MemoryRepo) GetAutoBids(_ context.Context, auctionID string) ([]model.AutoBid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]model.AutoBid(nil), r.autoBids[auctionID]...), nil
}

// GetProduct returns the product by id
func (r *MemoryRepo) GetProduct(_ context.Context, productID string) (model.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[productID]
	if !ok {
		return model.Product{}, fmt.Errorf("get product %s: %w", productID, biddingerrors.ErrProductNotFound)
	}
	return p, nil
}

// MarkProductSold increments the sold counter and flags the product as sold.
func (r *MemoryRepo) MarkProductSold(_ context.Context, productID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[productID]
	if !ok {
		return fmt.Errorf("mark product %s sold: %w", productID, biddingerrors.ErrProductNotFound)
	}
	p.SoldQuantity++
	p.Status = model.ProductSold
	r.products[productID] = p
	return nil
}

// SetStreamProductStatus upserts the status of a product within a stream.
func (r *MemoryRepo) SetStreamProductStatus(_ context.Context, streamID, productID string, status model.StreamProductStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.streamProducts[streamKey(streamID, productID)] = model.StreamProduct{
		StreamID:  streamID,
		ProductID: productID,
		Status:    status,
	}
	return nil
}

// GetUser returns the user by id
func (r *MemoryRepo) GetUser(_ context.Context, userID string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[userID]
	if !ok {
		return model.User{}, fmt.Errorf("get user %s: %w", userID, biddingerrors.ErrUserNotFound)
	}
	return u, nil
}

// GetOrderByAuction returns the order created when the auction settled
func (r *MemoryRepo) GetOrderByAuction(_ context.Context, auctionID string) (model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.orderByAuction[auctionID]
	if !ok {
		return model.Order{}, fmt.Errorf("get order for auction %s: %w", auctionID, biddingerrors.ErrOrderNotFound)
	}
	return r.orders[id], nil
}

// GetOrderByPaymentIntent looks up an order by its gateway intent id
func (r *MemoryRepo) GetOrderByPaymentIntent(_ context.Context, intentID string) (model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, o := range r.orders {
		if o.PaymentIntentID != nil && *o.PaymentIntentID == intentID {
			return o, nil
		}
	}
	return model.Order{}, fmt.Errorf("get order for intent %s: %w", intentID, biddingerrors.ErrOrderNotFound)
}

// UpdateOrderPayment records the intent id (when non-nil) and payment status.
func (r *MemoryRepo) UpdateOrderPayment(_ context.Context, orderID string, intentID *string, status model.OrderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderID]
	if !ok {
		return fmt.Errorf("update order %s: %w", orderID, biddingerrors.ErrOrderNotFound)
	}
	if intentID != nil {
		id := *intentID
		o.PaymentIntentID = &id
	}
	o.Status = status
	o.UpdatedAt = time.Now().UTC()
	r.orders[orderID] = o
	return nil
}

// CreateNotification appends an in-app notification
func (r *MemoryRepo) CreateNotification(_ context.Context, n model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.notifications = append(r.notifications, n)
	return nil
}

// Notifications returns the notifications addressed to userID.
func (r *MemoryRepo) Notifications(userID string) []model.Notification {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.Notification
	for _, n := range r.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

// StreamProduct returns the stream-product row, if any.
func (r *MemoryRepo) StreamProduct(streamID, productID string) (model.StreamProduct, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sp, ok := r.streamProducts[streamKey(streamID, productID)]
	return sp, ok
}

// OrderCount returns the number of orders stored.
func (r *MemoryRepo) OrderCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.orders)
}

// AddProduct adds a product to the repository. Products are managed outside the engine.
func (r *MemoryRepo) AddProduct(p model.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.Status == "" {
		p.Status = model.ProductAvailable
	}
	r.products[p.ProductID] = p
}

// AddUser adds a user to the repository. Users are managed outside the engine.
func (r *MemoryRepo) AddUser(u model.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.UserID] = u
}

func (r *MemoryRepo) auctionLock(auctionID string) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()

	l, ok := r.locks[auctionID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[auctionID] = l
	}
	return l
}

// WithAuctionLock serializes fn against every other locked section on the same auction.
func (r *MemoryRepo) WithAuctionLock(ctx context.Context, auctionID string, fn func(ctx context.Context, tx AuctionTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l := r.auctionLock(auctionID)
	l.Lock()
	defer l.Unlock()

	auction, err := r.GetAuction(ctx, auctionID)
	if err != nil {
		return err
	}

	r.mu.RLock()
	autoBids := append([]model.AutoBid(nil), r.autoBids[auctionID]...)
	r.mu.RUnlock()

	tx := &memoryTx{repo: r, auction: auction, autoBids: autoBids}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit()
}

// memoryTx stages writes and applies them in one step on commit.
type memoryTx struct {
	repo      *MemoryRepo
	auction   model.Auction
	dirty     bool
	bids      []model.Bid
	autoBids  []model.AutoBid
	autoDirty bool
	order     *model.Order
}

func (tx *memoryTx) Auction() model.Auction {
	return tx.auction
}

func (tx *memoryTx) SaveAuction(_ context.Context, auction model.Auction) error {
	if auction.AuctionID != tx.auction.AuctionID {
		return fmt.Errorf("save auction %s inside lock for %s: %w", auction.AuctionID, tx.auction.AuctionID, biddingerrors.ErrInternal)
	}
	tx.auction = auction
	tx.dirty = true
	return nil
}

func (tx *memoryTx) RecordBid(_ context.Context, bid model.Bid) error {
	if bid.AuctionID != tx.auction.AuctionID {
		return fmt.Errorf("record bid for auction %s inside lock for %s: %w", bid.AuctionID, tx.auction.AuctionID, biddingerrors.ErrInternal)
	}
	tx.bids = append(tx.bids, bid)
	return nil
}

func (tx *memoryTx) ActiveAutoBids(_ context.Context) ([]model.AutoBid, error) {
	var out []model.AutoBid
	for _, ab := range tx.autoBids {
		if ab.IsActive {
			out = append(out, ab)
		}
	}
	return out, nil
}

func (tx *memoryTx) UpsertAutoBid(_ context.Context, autoBid model.AutoBid) (model.AutoBid, error) {
	tx.autoDirty = true
	for i, ab := range tx.autoBids {
		if ab.IsActive && ab.UserID == autoBid.UserID {
			ab.MaxAmount = autoBid.MaxAmount
			ab.UpdatedAt = autoBid.UpdatedAt
			tx.autoBids[i] = ab
			return ab, nil
		}
	}
	autoBid.IsActive = true
	tx.autoBids = append(tx.autoBids, autoBid)
	return autoBid, nil
}

func (tx *memoryTx) UpdateAutoBidProxy(_ context.Context, autoBidID string, amount decimal.Decimal) error {
	for i, ab := range tx.autoBids {
		if ab.AutoBidID == autoBidID {
			amt := amount
			ab.CurrentProxyBid = &amt
			ab.UpdatedAt = time.Now().UTC()
			tx.autoBids[i] = ab
			tx.autoDirty = true
			return nil
		}
	}
	return fmt.Errorf("update proxy of auto-bid %s: %w", autoBidID, biddingerrors.ErrAutoBidNotFound)
}

func (tx *memoryTx) DeactivateAutoBid(_ context.Context, userID string) error {
	for i, ab := range tx.autoBids {
		if ab.IsActive && ab.UserID == userID {
			ab.IsActive = false
			ab.UpdatedAt = time.Now().UTC()
			tx.autoBids[i] = ab
			tx.autoDirty = true
			return nil
		}
	}
	return fmt.Errorf("deactivate auto-bid of user %s: %w", userID, biddingerrors.ErrAutoBidNotFound)
}

func (tx *memoryTx) CreateOrder(_ context.Context, order model.Order) error {
	tx.repo.mu.RLock()
	_, exists := tx.repo.orderByAuction[order.AuctionID]
	tx.repo.mu.RUnlock()
	if exists || tx.order != nil {
		return fmt.Errorf("create order for auction %s: %w", order.AuctionID, biddingerrors.ErrDuplicateOrder)
	}
	tx.order = &order
	return nil
}

func (tx *memoryTx) commit() error {
	r := tx.repo
	r.mu.Lock()
	defer r.mu.Unlock()

	id := tx.auction.AuctionID
	if tx.order != nil {
		if _, exists := r.orderByAuction[id]; exists {
			return fmt.Errorf("create order for auction %s: %w", id, biddingerrors.ErrDuplicateOrder)
		}
		r.orders[tx.order.OrderID] = *tx.order
		r.orderByAuction[id] = tx.order.OrderID
	}
	if len(tx.bids) > 0 {
		existing := r.bids[id]
		for i := range existing {
			existing[i].IsWinning = false
		}
		for i, b := range tx.bids {
			b.IsWinning = i == len(tx.bids)-1
			existing = append(existing, b)
		}
		r.bids[id] = existing
	}
	if tx.autoDirty {
		r.autoBids[id] = tx.autoBids
	}
	if tx.dirty {
		r.auctions[id] = tx.auction
	}
	return nil
}
