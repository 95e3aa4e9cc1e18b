package bidding

import (
	"context"
	"fmt"
	"time"

	"github.com/livebid/auction-engine/internal/biddingerrors"
	model "github.com/livebid/auction-engine/internal/models"
	"github.com/livebid/auction-engine/internal/notify"
	"github.com/livebid/auction-engine/internal/repository"
	"github.com/livebid/auction-engine/utils"

	"github.com/shopspring/decimal"
)

// placement is the outcome of a bid committed under the auction lock.
type placement struct {
	result         model.BidResult
	bidder         string
	previousLeader string
}

// PlaceBid validates and records a user's bid for an auction. The bid is
// re-validated under the auction lock, so concurrent bids are serialized and
// no committed bid is lost. Any configured auto-bids respond afterwards.
func (s *BiddingService) PlaceBid(ctx context.Context, userID, auctionID string, amount decimal.Decimal) (model.BidResult, error) {
	if err := s.validateBid(ctx, userID, auctionID, amount); err != nil {
		return model.BidResult{}, err
	}

	var placed placement
	err := s.repo.WithAuctionLock(ctx, auctionID, func(ctx context.Context, tx repository.AuctionTx) error {
		p, err := s.applyBid(ctx, tx, userID, amount, false, s.clock())
		if err != nil {
			return err
		}
		placed = p
		return nil
	})
	if err != nil {
		return model.BidResult{}, fmt.Errorf("service: failed to record bid for auction %s by user %s: %w", auctionID, userID, err)
	}

	utils.Info("bid placed", map[string]any{
		"auction_id":     auctionID,
		"user_id":        userID,
		"amount":         amount.StringFixed(2),
		"timer_extended": placed.result.TimerExtended,
	})
	// The bid is committed; a caller hanging up must not stop the follow-up work.
	detached := context.WithoutCancel(ctx)
	s.afterCommit(detached, placed)
	s.resolveAutoBids(detached, auctionID)

	return placed.result, nil
}

// validateBid checks input validity and business rules before taking the lock
func (s *BiddingService) validateBid(ctx context.Context, userID, auctionID string, amount decimal.Decimal) error {
	if auctionID == "" || userID == "" {
		return fmt.Errorf("service: %w - missing auctionID or userID", biddingerrors.ErrInvalidBid)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("service: %w - non-positive bid amount", biddingerrors.ErrInvalidBid)
	}
	if !wholeCents(amount) {
		return fmt.Errorf("service: %w - bid amount %s has fractional cents", biddingerrors.ErrInvalidBid, amount)
	}

	auction, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return fmt.Errorf("service: failed to get auction %s: %w", auctionID, err)
	}
	return checkBid(auction, userID, amount, s.clock())
}

// wholeCents reports whether d fits the store's two-decimal money columns.
func wholeCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}

func checkBid(a model.Auction, userID string, amount decimal.Decimal, now time.Time) error {
	if err := checkBiddable(a, now); err != nil {
		return err
	}
	if a.SellerID == userID {
		return fmt.Errorf("service: %w", biddingerrors.ErrOwnAuction)
	}
	if minBid := a.MinimumBid(); amount.LessThan(minBid) {
		return fmt.Errorf("service: %w - Bid must be at least $%s", biddingerrors.ErrBidTooLow, minBid.StringFixed(2))
	}
	return nil
}

// applyBid commits one bid against the locked auction row, extending the
// deadline when the bid lands inside the soft-close window.
func (s *BiddingService) applyBid(ctx context.Context, tx repository.AuctionTx, userID string, amount decimal.Decimal, isAuto bool, now time.Time) (placement, error) {
	a := tx.Auction()
	if err := checkBid(a, userID, amount, now); err != nil {
		return placement{}, err
	}

	var prev string
	if a.CurrentBidderID != nil {
		prev = *a.CurrentBidderID
	}

	extended := false
	if a.Mode != model.ModeSuddenDeath &&
		a.EndsAt.Sub(now) < s.rules.SoftCloseWindow &&
		a.TimerExtensions < a.MaxTimerExtensions {
		extendDeadline(&a, s.rules.SoftCloseExtension)
		extended = true
	}

	bid := model.Bid{
		BidID:     utils.GenerateID(),
		AuctionID: a.AuctionID,
		UserID:    userID,
		Amount:    amount,
		IsWinning: true,
		IsAuto:    isAuto,
		CreatedAt: now,
	}
	if err := tx.RecordBid(ctx, bid); err != nil {
		return placement{}, err
	}

	price := amount
	bidder := userID
	a.CurrentBid = &price
	a.CurrentBidderID = &bidder
	a.BidCount++
	a.UpdatedAt = now
	if err := tx.SaveAuction(ctx, a); err != nil {
		return placement{}, err
	}

	return placement{
		result: model.BidResult{
			BidID:           bid.BidID,
			AuctionID:       a.AuctionID,
			NewPrice:        amount,
			BidCount:        a.BidCount,
			TimerExtended:   extended,
			NewEndsAt:       a.EndsAt,
			TimerExtensions: a.TimerExtensions,
		},
		bidder:         userID,
		previousLeader: prev,
	}, nil
}

// afterCommit runs the side effects of a committed bid. None of them can fail the bid.
func (s *BiddingService) afterCommit(ctx context.Context, p placement) {
	if p.result.TimerExtended {
		s.rescheduleEnd(ctx, p.result.AuctionID, p.result.NewEndsAt)
	}
	s.notifyOutbid(ctx, p)
}

func (s *BiddingService) notifyOutbid(ctx context.Context, p placement) {
	if s.notifier == nil || p.previousLeader == "" || p.previousLeader == p.bidder {
		return
	}
	err := s.notifier.Notify(ctx, model.Notification{
		UserID:    p.previousLeader,
		Kind:      notify.KindOutbid,
		Title:     "You've been outbid",
		Body:      fmt.Sprintf("The current bid is now $%s.", p.result.NewPrice.StringFixed(2)),
		AuctionID: p.result.AuctionID,
	})
	if err != nil {
		utils.Warn("failed to send outbid notification", map[string]any{
			"auction_id": p.result.AuctionID,
			"user_id":    p.previousLeader,
			"error":      err.Error(),
		})
	}
}
