package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/livebid/auction-engine/internal/biddingerrors"
	model "github.com/livebid/auction-engine/internal/models"
	"github.com/livebid/auction-engine/internal/notify"
	"github.com/livebid/auction-engine/internal/payment"
	"github.com/livebid/auction-engine/internal/repository"
	"github.com/livebid/auction-engine/internal/scheduler"
	"github.com/livebid/auction-engine/utils"

	"github.com/shopspring/decimal"
)

// Result is the outcome of settling one auction.
type Result struct {
	AuctionID  string           `json:"auction_id"`
	WinnerID   *string          `json:"winner_id"`
	FinalPrice *decimal.Decimal `json:"final_price,omitempty"`
	ReserveMet bool             `json:"reserve_met"`
	Order      *model.Order     `json:"order,omitempty"`
}

// Option configures a SettlementService.
type Option func(*SettlementService)

// WithGateway enables automatic payment capture. Without a gateway orders
// stay pending for manual payment.
func WithGateway(g payment.Gateway) Option {
	return func(s *SettlementService) { s.gateway = g }
}

// WithNotifier sets the in-app notifier used for winner notices.
func WithNotifier(n notify.Notifier) Option {
	return func(s *SettlementService) { s.notifier = n }
}

// WithMailer sets the mailer used for winner emails.
func WithMailer(m notify.Mailer) Option {
	return func(s *SettlementService) { s.mailer = m }
}

// WithCurrency sets the ISO currency charged, default "usd".
func WithCurrency(c string) Option {
	return func(s *SettlementService) { s.currency = c }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *SettlementService) { s.now = now }
}

// SettlementService determines winners and turns them into orders.
type SettlementService struct {
	repo     repository.AuctionDB
	sched    scheduler.Scheduler
	gateway  payment.Gateway
	notifier notify.Notifier
	mailer   notify.Mailer
	currency string
	now      func() time.Time
}

// NewSettlementService creates a new SettlementService instance
func NewSettlementService(repo repository.AuctionDB, sched scheduler.Scheduler, opts ...Option) *SettlementService {
	s := &SettlementService{
		repo:     repo,
		sched:    sched,
		currency: "usd",
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SettlementService) clock() time.Time {
	return s.now().UTC()
}

// FinalizeAuction ends an active auction whose deadline has passed. The
// status transition and order creation commit together under the auction
// lock, so a second call fails with ErrAuctionNotActive and never creates a
// second order. Payment, product bookkeeping and notifications follow on a
// best-effort basis.
func (s *SettlementService) FinalizeAuction(ctx context.Context, auctionID string) (Result, error) {
	if auctionID == "" {
		return Result{}, fmt.Errorf("settlement: %w - empty auction ID", biddingerrors.ErrInvalidAuction)
	}

	// Read before locking: the locked transaction must not need a second pool connection.
	product, productErr := s.loadProduct(ctx, auctionID)
	if errors.Is(productErr, biddingerrors.ErrAuctionNotFound) {
		return Result{}, fmt.Errorf("settlement: failed to finalize auction %s: %w", auctionID, productErr)
	}

	var (
		ended model.Auction
		order *model.Order
	)
	err := s.repo.WithAuctionLock(ctx, auctionID, func(ctx context.Context, tx repository.AuctionTx) error {
		a := tx.Auction()
		if a.Status != model.AuctionActive && a.Status != model.AuctionLive {
			return fmt.Errorf("settlement: %w - status is %s", biddingerrors.ErrAuctionNotActive, a.Status)
		}
		now := s.clock()
		if now.Before(a.EndsAt) {
			return fmt.Errorf("settlement: %w - ends at %s", biddingerrors.ErrAuctionStillRunning, a.EndsAt.Format(time.RFC3339Nano))
		}

		a.Status = model.AuctionEnded
		a.EndedAt = &now
		a.UpdatedAt = now
		a.ReserveMet = a.HasWinner() && a.ReserveSatisfied()

		if a.ReserveMet {
			if productErr != nil {
				// Settle regardless; shipping can be corrected on the order later.
				utils.Error("product lookup failed during settlement", map[string]any{
					"auction_id": a.AuctionID,
					"product_id": a.ProductID,
					"error":      productErr.Error(),
				})
				product = model.Product{ProductID: a.ProductID, SellerID: a.SellerID}
			}
			p := product
			o := model.Order{
				OrderID:      utils.GenerateID(),
				AuctionID:    a.AuctionID,
				ProductID:    a.ProductID,
				BuyerID:      *a.CurrentBidderID,
				SellerID:     p.SellerID,
				ItemPrice:    *a.CurrentBid,
				ShippingCost: p.ShippingCost,
				Total:        a.CurrentBid.Add(p.ShippingCost),
				Status:       model.OrderPending,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := tx.CreateOrder(ctx, o); err != nil {
				return err
			}
			order = &o
			a.WinnerNotified = true
		}

		ended = a
		return tx.SaveAuction(ctx, a)
	})
	if err != nil {
		return Result{}, fmt.Errorf("settlement: failed to finalize auction %s: %w", auctionID, err)
	}

	res := Result{AuctionID: auctionID, ReserveMet: ended.ReserveMet}
	if order == nil {
		s.setStreamStatus(ctx, ended, model.StreamProductPassed)
		utils.Info("auction ended without sale", map[string]any{
			"auction_id": auctionID,
			"bid_count":  ended.BidCount,
		})
		return res, nil
	}

	s.setStreamStatus(ctx, ended, model.StreamProductSold)
	*order = s.collectPayment(ctx, *order)
	if err := s.repo.MarkProductSold(ctx, ended.ProductID); err != nil {
		utils.Error("failed to mark product sold", map[string]any{
			"auction_id": auctionID,
			"product_id": ended.ProductID,
			"error":      err.Error(),
		})
	}
	s.notifyWinner(ctx, product, *order)

	winner := order.BuyerID
	price := order.ItemPrice
	res.WinnerID = &winner
	res.FinalPrice = &price
	res.Order = order
	utils.Info("auction settled", map[string]any{
		"auction_id":   auctionID,
		"order_id":     order.OrderID,
		"winner_id":    winner,
		"price":        price.StringFixed(2),
		"order_status": order.Status,
	})
	return res, nil
}

// FinalizeAuctionAsSeller lets the seller trigger settlement once the deadline
// has passed. The end timer remains the normal path.
func (s *SettlementService) FinalizeAuctionAsSeller(ctx context.Context, auctionID, userID string) (Result, error) {
	if auctionID == "" || userID == "" {
		return Result{}, fmt.Errorf("settlement: %w - missing auctionID or userID", biddingerrors.ErrInvalidAuction)
	}
	a, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return Result{}, fmt.Errorf("settlement: failed to get auction %s: %w", auctionID, err)
	}
	if a.SellerID != userID {
		return Result{}, fmt.Errorf("settlement: %w - auction %s", biddingerrors.ErrNotProductOwner, auctionID)
	}
	return s.FinalizeAuction(ctx, auctionID)
}

// loadProduct reads the product an auction sells. Only a missing auction is
// fatal; any other failure is reported so settlement can fall back.
func (s *SettlementService) loadProduct(ctx context.Context, auctionID string) (model.Product, error) {
	a, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return model.Product{}, err
	}
	p, err := s.repo.GetProduct(ctx, a.ProductID)
	if err != nil {
		return model.Product{}, fmt.Errorf("settlement: failed to get product %s: %w", a.ProductID, err)
	}
	return p, nil
}

// HandleEndTask is the scheduler handler for end timers. Redelivery of an
// already settled auction is acknowledged; a timer that fires early because
// its reschedule was lost is re-armed at the current deadline.
func (s *SettlementService) HandleEndTask(ctx context.Context, task scheduler.Task) error {
	_, err := s.FinalizeAuction(ctx, task.AuctionID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, biddingerrors.ErrAuctionStillRunning):
		return s.rearm(ctx, task.AuctionID)
	case errors.Is(err, biddingerrors.ErrAuctionNotActive), errors.Is(err, biddingerrors.ErrNotFound):
		utils.Warn("end task skipped", map[string]any{"auction_id": task.AuctionID, "error": err.Error()})
		return nil
	default:
		return err
	}
}

func (s *SettlementService) rearm(ctx context.Context, auctionID string) error {
	a, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return fmt.Errorf("settlement: failed to reload auction %s: %w", auctionID, err)
	}
	delay := a.EndsAt.Sub(s.clock())
	utils.Warn("end task fired early, re-arming", map[string]any{"auction_id": auctionID, "delay": delay.String()})
	return s.sched.Schedule(ctx, scheduler.TaskEndAuction, auctionID, delay, scheduler.EndKey(auctionID))
}

// collectPayment authorizes and captures the order total. Any failure leaves
// the order pending so the buyer can pay manually; it is never returned.
func (s *SettlementService) collectPayment(ctx context.Context, order model.Order) model.Order {
	if s.gateway == nil {
		return order
	}
	fields := map[string]any{"order_id": order.OrderID, "auction_id": order.AuctionID}

	buyer, err := s.repo.GetUser(ctx, order.BuyerID)
	if err != nil {
		fields["error"] = err.Error()
		utils.Error("payment skipped: buyer lookup failed", fields)
		return order
	}

	intentID, err := s.gateway.CreateIntent(ctx, payment.IntentRequest{
		Amount:          order.Total,
		Currency:        s.currency,
		CustomerID:      buyer.PaymentCustomerID,
		PaymentMethodID: buyer.PaymentMethodID,
		Metadata: map[string]string{
			"order_id":   order.OrderID,
			"auction_id": order.AuctionID,
		},
	})
	if err != nil && intentID == "" {
		fields["error"] = err.Error()
		fields["kind"] = biddingerrors.KindOf(err)
		utils.Warn("payment intent failed, order left pending", fields)
		return order
	}
	fields["payment_intent_id"] = intentID

	status := model.OrderPaid
	if err != nil {
		// The intent exists but was not authorized; keep its id for the webhook.
		status = model.OrderPending
		fields["error"] = err.Error()
		fields["kind"] = biddingerrors.KindOf(err)
		utils.Warn("payment intent not authorized, order left pending", fields)
	} else if err := s.gateway.Capture(ctx, intentID); err != nil {
		status = model.OrderPending
		fields["error"] = err.Error()
		fields["kind"] = biddingerrors.KindOf(err)
		utils.Warn("payment capture failed, order left pending", fields)
	}

	if err := s.repo.UpdateOrderPayment(ctx, order.OrderID, &intentID, status); err != nil {
		fields["error"] = err.Error()
		utils.Error("failed to record payment on order", fields)
		return order
	}
	order.PaymentIntentID = &intentID
	order.Status = status
	return order
}

func (s *SettlementService) notifyWinner(ctx context.Context, product model.Product, order model.Order) {
	fields := map[string]any{"order_id": order.OrderID, "user_id": order.BuyerID}

	if s.notifier != nil {
		err := s.notifier.Notify(ctx, model.Notification{
			UserID:    order.BuyerID,
			Kind:      notify.KindAuctionWon,
			Title:     "You won!",
			Body:      fmt.Sprintf("You won %s for $%s.", product.Title, order.ItemPrice.StringFixed(2)),
			AuctionID: order.AuctionID,
		})
		if err != nil {
			fields["error"] = err.Error()
			utils.Warn("failed to send winner notification", fields)
		}
	}

	if s.mailer == nil {
		return
	}
	buyer, err := s.repo.GetUser(ctx, order.BuyerID)
	if err != nil {
		fields["error"] = err.Error()
		utils.Warn("failed to load winner for email", fields)
		return
	}
	subject, body := notify.WinnerEmail(product.Title, order)
	if err := s.mailer.Send(ctx, buyer.Email, subject, body); err != nil {
		fields["error"] = err.Error()
		utils.Warn("failed to send winner email", fields)
	}
}

// HandlePaymentEvent applies a verified gateway webhook to its order.
// Events for unknown intents are acknowledged and ignored.
func (s *SettlementService) HandlePaymentEvent(ctx context.Context, event payment.WebhookEvent) error {
	fields := map[string]any{"event_id": event.ID, "type": event.Type, "payment_intent_id": event.PaymentIntentID}

	switch event.Type {
	case payment.EventIntentSucceeded, payment.EventIntentFailed, payment.EventIntentCanceled:
	default:
		utils.Debug("webhook event ignored", fields)
		return nil
	}
	if event.PaymentIntentID == "" {
		return fmt.Errorf("settlement: %w - event %s has no payment intent", biddingerrors.ErrValidation, event.ID)
	}

	order, err := s.repo.GetOrderByPaymentIntent(ctx, event.PaymentIntentID)
	if errors.Is(err, biddingerrors.ErrNotFound) {
		utils.Warn("webhook for unknown payment intent", fields)
		return nil
	}
	if err != nil {
		return fmt.Errorf("settlement: failed to load order for intent %s: %w", event.PaymentIntentID, err)
	}
	fields["order_id"] = order.OrderID

	if event.Type != payment.EventIntentSucceeded {
		utils.Warn("payment not completed, order left pending", fields)
		return nil
	}
	if order.Status == model.OrderPaid {
		return nil
	}
	if err := s.repo.UpdateOrderPayment(ctx, order.OrderID, nil, model.OrderPaid); err != nil {
		return fmt.Errorf("settlement: failed to mark order %s paid: %w", order.OrderID, err)
	}
	utils.Info("order paid", fields)
	return nil
}

func (s *SettlementService) setStreamStatus(ctx context.Context, a model.Auction, status model.StreamProductStatus) {
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
