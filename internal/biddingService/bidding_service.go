package bidding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/livebid/auction-engine/internal/biddingerrors"
	model "github.com/livebid/auction-engine/internal/models"
	"github.com/livebid/auction-engine/internal/notify"
	"github.com/livebid/auction-engine/internal/repository"
	"github.com/livebid/auction-engine/internal/scheduler"
	"github.com/livebid/auction-engine/utils"

	"github.com/shopspring/decimal"
)

// Rules are the timing rules applied to every auction.
type Rules struct {
	// SoftCloseWindow is how close to the deadline a bid must land to extend it.
	SoftCloseWindow time.Duration
	// SoftCloseExtension is added to EndsAt on each soft-close extension.
	SoftCloseExtension time.Duration
	// DefaultMaxTimerExtensions applies when an auction does not set its own cap.
	DefaultMaxTimerExtensions int

	MinDuration        time.Duration
	MaxDuration        time.Duration
	MinManualExtension time.Duration
	MaxManualExtension time.Duration

	// MaxResolverPasses bounds the auto-bid loop after a single bid.
	MaxResolverPasses int
}

// DefaultRules returns the production timing rules.
func DefaultRules() Rules {
	return Rules{
		SoftCloseWindow:           10 * time.Second,
		SoftCloseExtension:        10 * time.Second,
		DefaultMaxTimerExtensions: model.DefaultMaxTimerExtensions,
		MinDuration:               10 * time.Second,
		MaxDuration:               7 * 24 * time.Hour,
		MinManualExtension:        time.Second,
		MaxManualExtension:        time.Hour,
		MaxResolverPasses:         100,
	}
}

// Option configures a BiddingService.
type Option func(*BiddingService)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *BiddingService) { s.now = now }
}

// WithRules overrides the timing rules.
func WithRules(r Rules) Option {
	return func(s *BiddingService) { s.rules = r }
}

// WithNotifier enables outbid notifications.
func WithNotifier(n notify.Notifier) Option {
	return func(s *BiddingService) { s.notifier = n }
}

// BiddingService defines the business logic for auction bidding
type BiddingService struct {
	repo     repository.AuctionDB
	sched    scheduler.Scheduler
	notifier notify.Notifier
	rules    Rules
	now      func() time.Time
}

// NewBiddingService creates a new BiddingService instance
func NewBiddingService(repo repository.AuctionDB, sched scheduler.Scheduler, opts ...Option) *BiddingService {
	s := &BiddingService{
		repo:  repo,
		sched: sched,
		rules: DefaultRules(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *BiddingService) clock() time.Time {
	return s.now().UTC()
}

// CreateAuctionInput carries the seller-supplied auction parameters.
type CreateAuctionInput struct {
	ProductID           string
	StreamID            *string
	StartingBid         decimal.Decimal
	ReservePrice        *decimal.Decimal
	MinimumBidIncrement decimal.Decimal
	Duration            time.Duration
	ScheduledStart      *time.Time
	Mode                model.AuctionMode
	MaxTimerExtensions  *int
}

func (s *BiddingService) validateAuctionInput(in *CreateAuctionInput) error {
	if in.ProductID == "" {
		return fmt.Errorf("service: %w - missing productID", biddingerrors.ErrInvalidAuction)
	}
	if !in.StartingBid.IsPositive() {
		return fmt.Errorf("service: %w - starting bid must be positive", biddingerrors.ErrInvalidAuction)
	}
	if !in.MinimumBidIncrement.IsPositive() {
		return fmt.Errorf("service: %w - minimum bid increment must be positive", biddingerrors.ErrInvalidAuction)
	}
	if in.ReservePrice != nil && !in.ReservePrice.IsPositive() {
		return fmt.Errorf("service: %w - reserve price must be positive", biddingerrors.ErrInvalidAuction)
	}
	for _, d := range []*decimal.Decimal{&in.StartingBid, &in.MinimumBidIncrement, in.ReservePrice} {
		if d != nil && !wholeCents(*d) {
			return fmt.Errorf("service: %w - amount %s has fractional cents", biddingerrors.ErrInvalidAuction, *d)
		}
	}
	if in.Duration < s.rules.MinDuration || in.Duration > s.rules.MaxDuration {
		return fmt.Errorf("service: %w - duration must be between %s and %s", biddingerrors.ErrInvalidAuction, s.rules.MinDuration, s.rules.MaxDuration)
	}
	if in.Mode == "" {
		in.Mode = model.ModeNormal
	}
	if !in.Mode.Valid() {
		return fmt.Errorf("service: %w - unknown mode %q", biddingerrors.ErrInvalidAuction, in.Mode)
	}
	if in.MaxTimerExtensions != nil && *in.MaxTimerExtensions < 0 {
		return fmt.Errorf("service: %w - max timer extensions cannot be negative", biddingerrors.ErrInvalidAuction)
	}
	return nil
}

// CreateAuction creates an auction for a product owned by sellerID. Auctions
// with a future ScheduledStart stay pending until their start timer fires.
func (s *BiddingService) CreateAuction(ctx context.Context, sellerID string, in CreateAuctionInput) (model.Auction, error) {
	if sellerID == "" {
		return model.Auction{}, fmt.Errorf("service: %w - missing sellerID", biddingerrors.ErrInvalidAuction)
	}
	if err := s.validateAuctionInput(&in); err != nil {
		return model.Auction{}, err
	}

	product, err := s.repo.GetProduct(ctx, in.ProductID)
	if err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to load product %s: %w", in.ProductID, err)
	}
	if product.SellerID != sellerID {
		return model.Auction{}, fmt.Errorf("service: %w - product %s", biddingerrors.ErrNotProductOwner, in.ProductID)
	}
	if product.Status == model.ProductSold {
		return model.Auction{}, fmt.Errorf("service: %w - product %s is already sold", biddingerrors.ErrInvalidAuction, in.ProductID)
	}

	now := s.clock()
	maxExt := s.rules.DefaultMaxTimerExtensions
	if in.MaxTimerExtensions != nil {
		maxExt = *in.MaxTimerExtensions
	}

	auction := model.Auction{
		AuctionID:           utils.GenerateID(),
		ProductID:           in.ProductID,
		SellerID:            sellerID,
		StreamID:            in.StreamID,
		StartingBid:         in.StartingBid,
		ReservePrice:        in.ReservePrice,
		MinimumBidIncrement: in.MinimumBidIncrement,
		Duration:            in.Duration,
		MaxTimerExtensions:  maxExt,
		Mode:                in.Mode,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if in.ScheduledStart != nil && in.ScheduledStart.After(now) {
		start := in.ScheduledStart.UTC()
		auction.ScheduledStart = &start
		auction.Status = model.AuctionPending
		auction.EndsAt = start.Add(in.Duration)
	} else {
		auction.Status = model.AuctionActive
		auction.StartedAt = &now
		auction.EndsAt = now.Add(in.Duration)
	}

	if err := s.repo.CreateAuction(ctx, auction); err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to create auction for product %s: %w", in.ProductID, err)
	}

	if auction.Status == model.AuctionPending {
		s.schedule(ctx, scheduler.TaskStartAuction, auction.AuctionID, auction.ScheduledStart.Sub(now), scheduler.StartKey(auction.AuctionID))
		s.setStreamStatus(ctx, auction, model.StreamProductPending)
	} else {
		s.schedule(ctx, scheduler.TaskEndAuction, auction.AuctionID, auction.EndsAt.Sub(now), scheduler.EndKey(auction.AuctionID))
		s.setStreamStatus(ctx, auction, model.StreamProductActive)
	}

	utils.Info("auction created", map[string]any{
		"auction_id": auction.AuctionID,
		"product_id": auction.ProductID,
		"status":     auction.Status,
		"ends_at":    auction.EndsAt,
	})
	return auction, nil
}

// StartAuction moves a pending auction to active and arms its end timer.
func (s *BiddingService) StartAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	if auctionID == "" {
		return model.Auction{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidAuction)
	}

	var started model.Auction
	err := s.repo.WithAuctionLock(ctx, auctionID, func(ctx context.Context, tx repository.AuctionTx) error {
		a := tx.Auction()
		if a.Status != model.AuctionPending {
			return fmt.Errorf("service: %w - status is %s", biddingerrors.ErrAuctionNotPending, a.Status)
		}
		now := s.clock()
		a.Status = model.AuctionActive
		a.StartedAt = &now
		a.EndsAt = now.Add(a.Duration)
		a.UpdatedAt = now
		started = a
		return tx.SaveAuction(ctx, a)
	})
	if err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to start auction %s: %w", auctionID, err)
	}

	if err := s.sched.Cancel(ctx, scheduler.StartKey(auctionID)); err != nil {
		utils.Warn("failed to cancel start timer", map[string]any{"auction_id": auctionID, "error": err.Error()})
	}
	s.rescheduleEnd(ctx, auctionID, started.EndsAt)
	s.setStreamStatus(ctx, started, model.StreamProductActive)
	utils.Info("auction started", map[string]any{"auction_id": auctionID, "ends_at": started.EndsAt})
	return started, nil
}

// HandleStartTask is the scheduler handler for start timers. Redelivered or
// stale tasks are acknowledged without error.
func (s *BiddingService) HandleStartTask(ctx context.Context, task scheduler.Task) error {
	_, err := s.StartAuction(ctx, task.AuctionID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, biddingerrors.ErrAuctionNotPending), errors.Is(err, biddingerrors.ErrNotFound):
		utils.Warn("start task skipped", map[string]any{"auction_id": task.AuctionID, "error": err.Error()})
		return nil
	default:
		return err
	}
}

// StartAuctionNow starts a pending auction ahead of its scheduled time on
// behalf of the seller.
func (s *BiddingService) StartAuctionNow(ctx context.Context, auctionID, userID string) (model.Auction, error) {
	if auctionID == "" || userID == "" {
		return model.Auction{}, fmt.Errorf("service: %w - missing auctionID or userID", biddingerrors.ErrInvalidAuction)
	}
	current, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to get auction %s: %w", auctionID, err)
	}
	if err := s.checkOwner(ctx, current, userID); err != nil {
		return model.Auction{}, err
	}
	return s.StartAuction(ctx, auctionID)
}

func (s *BiddingService) checkOwner(ctx context.Context, auction model.Auction, userID string) error {
	product, err := s.repo.GetProduct(ctx, auction.ProductID)
	if err != nil {
		return fmt.Errorf("service: failed to load product %s: %w", auction.ProductID, err)
	}
	if product.SellerID != userID {
		return fmt.Errorf("service: %w - auction %s", biddingerrors.ErrNotProductOwner, auction.AuctionID)
	}
	return nil
}

// CancelAuction cancels an auction that has not received any bid.
func (s *BiddingService) CancelAuction(ctx context.Context, auctionID, userID string) (model.Auction, error) {
	if auctionID == "" || userID == "" {
		return model.Auction{}, fmt.Errorf("service: %w - missing auctionID or userID", biddingerrors.ErrInvalidAuction)
	}
	current, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to get auction %s: %w", auctionID, err)
	}
	if err := s.checkOwner(ctx, current, userID); err != nil {
		return model.Auction{}, err
	}

	var cancelled model.Auction
	err = s.repo.WithAuctionLock(ctx, auctionID, func(ctx context.Context, tx repository.AuctionTx) error {
		a := tx.Auction()
		if !a.Status.IsOpen() {
			return fmt.Errorf("service: %w - status is %s", biddingerrors.ErrAuctionNotActive, a.Status)
		}
		if a.BidCount > 0 {
			return fmt.Errorf("service: %w - %d bids placed", biddingerrors.ErrAuctionHasBids, a.BidCount)
		}
		autoBids, err := tx.ActiveAutoBids(ctx)
		if err != nil {
			return err
		}
		for _, ab := range autoBids {
			if err := tx.DeactivateAutoBid(ctx, ab.UserID); err != nil {
				return err
			}
		}
		now := s.clock()
		a.Status = model.AuctionCancelled
		a.EndedAt = &now
		a.UpdatedAt = now
		cancelled = a
		return tx.SaveAuction(ctx, a)
	})
	if err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to cancel auction %s: %w", auctionID, err)
	}

	for _, key := range []string{scheduler.StartKey(auctionID), scheduler.EndKey(auctionID)} {
		if err := s.sched.Cancel(ctx, key); err != nil {
			utils.Warn("failed to cancel timer", map[string]any{"key": key, "error": err.Error()})
		}
	}
	s.setStreamStatus(ctx, cancelled, model.StreamProductPassed)
	utils.Info("auction cancelled", map[string]any{"auction_id": auctionID, "user_id": userID})
	return cancelled, nil
}

// ExtendAuction lets the seller push the deadline of a running normal-mode
// auction. Manual extensions share the soft-close extension budget.
func (s *BiddingService) ExtendAuction(ctx context.Context, auctionID, userID string, extension time.Duration) (model.Auction, error) {
	if auctionID == "" || userID == "" {
		return model.Auction{}, fmt.Errorf("service: %w - missing auctionID or userID", biddingerrors.ErrInvalidAuction)
	}
	if extension < s.rules.MinManualExtension || extension > s.rules.MaxManualExtension {
		return model.Auction{}, fmt.Errorf("service: %w - extension must be between %s and %s",
			biddingerrors.ErrInvalidAuction, s.rules.MinManualExtension, s.rules.MaxManualExtension)
	}
	current, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to get auction %s: %w", auctionID, err)
	}
	if err := s.checkOwner(ctx, current, userID); err != nil {
		return model.Auction{}, err
	}

	var extended model.Auction
	err = s.repo.WithAuctionLock(ctx, auctionID, func(ctx context.Context, tx repository.AuctionTx) error {
		a := tx.Auction()
		now := s.clock()
		if err := checkBiddable(a, now); err != nil {
			return err
		}
		if a.Mode == model.ModeSuddenDeath {
			return fmt.Errorf("service: %w - sudden-death auctions cannot be extended", biddingerrors.ErrInvalidAuction)
		}
		if a.TimerExtensions >= a.MaxTimerExtensions {
			return fmt.Errorf("service: %w - %d of %d used", biddingerrors.ErrExtensionLimit, a.TimerExtensions, a.MaxTimerExtensions)
		}
		extendDeadline(&a, extension)
		a.UpdatedAt = now
		extended = a
		return tx.SaveAuction(ctx, a)
	})
	if err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to extend auction %s: %w", auctionID, err)
	}

	s.rescheduleEnd(ctx, auctionID, extended.EndsAt)
	utils.Info("auction extended", map[string]any{
		"auction_id":       auctionID,
		"ends_at":          extended.EndsAt,
		"timer_extensions": extended.TimerExtensions,
	})
	return extended, nil
}

// GetAuction returns the current state of an auction
func (s *BiddingService) GetAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	if auctionID == "" {
		return model.Auction{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidBid)
	}

	auction, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to get auction %s: %w", auctionID, err)
	}
	return auction, nil
}

// GetBidsForAuction returns all bids for a specific auction
func (s *BiddingService) GetBidsForAuction(ctx context.Context, auctionID string) ([]model.Bid, error) {
	if auctionID == "" {
		return nil, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidBid)
	}

	bids, err := s.repo.GetBidsByAuction(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for auction %s: %w", auctionID, err)
	}
	return bids, nil
}

// GetWinningBid returns the bid currently flagged as winning
func (s *BiddingService) GetWinningBid(ctx context.Context, auctionID string) (model.Bid, error) {
	bids, err := s.GetBidsForAuction(ctx, auctionID)
	if err != nil {
		return model.Bid{}, err
	}
	for i := len(bids) - 1; i >= 0; i-- {
		if bids[i].IsWinning {
			return bids[i], nil
		}
	}
	return model.Bid{}, fmt.Errorf("service: %w - %s", biddingerrors.ErrNoBids, auctionID)
}

// RecoverTimers re-arms start and end timers for every open auction. It is run
// once at startup so an in-process queue survives restarts.
func (s *BiddingService) RecoverTimers(ctx context.Context) (int, error) {
	auctions, err := s.repo.ListAuctionsByStatus(ctx, model.AuctionPending, model.AuctionActive, model.AuctionLive)
	if err != nil {
		return 0, fmt.Errorf("service: failed to list open auctions: %w", err)
	}

	now := s.clock()
	for _, a := range auctions {
		if a.Status == model.AuctionPending {
			delay := time.Duration(0)
			if a.ScheduledStart != nil {
				delay = a.ScheduledStart.Sub(now)
			}
			s.schedule(ctx, scheduler.TaskStartAuction, a.AuctionID, delay, scheduler.StartKey(a.AuctionID))
			continue
		}
		s.schedule(ctx, scheduler.TaskEndAuction, a.AuctionID, a.EndsAt.Sub(now), scheduler.EndKey(a.AuctionID))
	}

	utils.Info("auction timers recovered", map[string]any{"count": len(auctions)})
	return len(auctions), nil
}

// schedule enqueues a timer. Failures are logged, never returned: the auction
// state is already committed and RecoverTimers re-arms lost timers.
func (s *BiddingService) schedule(ctx context.Context, name, auctionID string, delay time.Duration, key string) {
	if err := s.sched.Schedule(ctx, name, auctionID, delay, key); err != nil {
		utils.Error("failed to schedule timer", map[string]any{
			"task":       name,
			"auction_id": auctionID,
			"error":      err.Error(),
		})
	}
}

// rescheduleEnd replaces the end timer with one firing at endsAt.
func (s *BiddingService) rescheduleEnd(ctx context.Context, auctionID string, endsAt time.Time) {
	key := scheduler.EndKey(auctionID)
	if err := s.sched.Cancel(ctx, key); err != nil {
		utils.Warn("failed to cancel end timer", map[string]any{"auction_id": auctionID, "error": err.Error()})
	}
	s.schedule(ctx, scheduler.TaskEndAuction, auctionID, endsAt.Sub(s.clock()), key)
}

func (s *BiddingService) setStreamStatus(ctx context.Context, a model.Auction, status model.StreamProductStatus) {
	if a.StreamID == nil {
		return
	}
	if err := s.repo.SetStreamProductStatus(ctx, *a.StreamID, a.ProductID, status); err != nil {
		utils.Warn("failed to update stream product", map[string]any{
			"auction_id": a.AuctionID,
			"stream_id":  *a.StreamID,
			"error":      err.Error(),
		})
	}
}

func checkBiddable(a model.Auction, now time.Time) error {
	if a.Status != model.AuctionActive && a.Status != model.AuctionLive {
		return fmt.Errorf("service: %w - status is %s", biddingerrors.ErrAuctionNotActive, a.Status)
	}
	if !now.Before(a.EndsAt) {
		return fmt.Errorf("service: %w", biddingerrors.ErrAuctionEnded)
	}
	return nil
}

// extendDeadline pushes EndsAt and records the first original deadline.
func extendDeadline(a *model.Auction, by time.Duration) {
	if a.OriginalEndsAt == nil {
		orig := a.EndsAt
		a.OriginalEndsAt = &orig
	}
	a.EndsAt = a.EndsAt.Add(by)
	a.TimerExtensions++
}
