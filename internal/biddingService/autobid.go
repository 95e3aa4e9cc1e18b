package bidding

import (
	"context"
	"fmt"
	"sort"

	"github.com/livebid/auction-engine/internal/biddingerrors"
	model "github.com/livebid/auction-engine/internal/models"
	"github.com/livebid/auction-engine/internal/repository"
	"github.com/livebid/auction-engine/utils"

	"github.com/shopspring/decimal"
)

// ConfigureAutoBid creates or updates the caller's proxy bid ceiling and lets
// the resolver act on it immediately.
func (s *BiddingService) ConfigureAutoBid(ctx context.Context, userID, auctionID string, maxAmount decimal.Decimal) (model.AutoBid, error) {
	if auctionID == "" || userID == "" {
		return model.AutoBid{}, fmt.Errorf("service: %w - missing auctionID or userID", biddingerrors.ErrInvalidBid)
	}
	if !maxAmount.IsPositive() {
		return model.AutoBid{}, fmt.Errorf("service: %w - non-positive maximum", biddingerrors.ErrInvalidBid)
	}
	if !wholeCents(maxAmount) {
		return model.AutoBid{}, fmt.Errorf("service: %w - maximum %s has fractional cents", biddingerrors.ErrInvalidBid, maxAmount)
	}

	err := s.repo.WithAuctionLock(ctx, auctionID, func(ctx context.Context, tx repository.AuctionTx) error {
		a := tx.Auction()
		now := s.clock()
		if err := checkBiddable(a, now); err != nil {
			return err
		}
		if a.SellerID == userID {
			return fmt.Errorf("service: %w", biddingerrors.ErrOwnAuction)
		}
		if minBid := a.MinimumBid(); maxAmount.LessThan(minBid) {
			return fmt.Errorf("service: %w - maximum must be at least $%s", biddingerrors.ErrBidTooLow, minBid.StringFixed(2))
		}
		_, err := tx.UpsertAutoBid(ctx, model.AutoBid{
			AutoBidID: utils.GenerateID(),
			AuctionID: auctionID,
			UserID:    userID,
			MaxAmount: maxAmount,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		})
		return err
	})
	if err != nil {
		return model.AutoBid{}, fmt.Errorf("service: failed to configure auto-bid on auction %s for user %s: %w", auctionID, userID, err)
	}

	utils.Info("auto-bid configured", map[string]any{
		"auction_id": auctionID,
		"user_id":    userID,
		"max_amount": maxAmount.StringFixed(2),
	})
	s.resolveAutoBids(context.WithoutCancel(ctx), auctionID)

	return s.activeAutoBid(ctx, auctionID, userID)
}

// CancelAutoBid deactivates the caller's auto-bid. Bids it already placed stand.
func (s *BiddingService) CancelAutoBid(ctx context.Context, userID, auctionID string) error {
	if auctionID == "" || userID == "" {
		return fmt.Errorf("service: %w - missing auctionID or userID", biddingerrors.ErrInvalidBid)
	}

	err := s.repo.WithAuctionLock(ctx, auctionID, func(ctx context.Context, tx repository.AuctionTx) error {
		return tx.DeactivateAutoBid(ctx, userID)
	})
	if err != nil {
		return fmt.Errorf("service: failed to cancel auto-bid on auction %s for user %s: %w", auctionID, userID, err)
	}

	utils.Info("auto-bid cancelled", map[string]any{"auction_id": auctionID, "user_id": userID})
	return nil
}

func (s *BiddingService) activeAutoBid(ctx context.Context, auctionID, userID string) (model.AutoBid, error) {
	autoBids, err := s.repo.GetAutoBids(ctx, auctionID)
	if err != nil {
		return model.AutoBid{}, fmt.Errorf("service: failed to get auto-bids for auction %s: %w", auctionID, err)
	}
	for _, ab := range autoBids {
		if ab.IsActive && ab.UserID == userID {
			return ab, nil
		}
	}
	return model.AutoBid{}, fmt.Errorf("service: %w - user %s on auction %s", biddingerrors.ErrAutoBidNotFound, userID, auctionID)
}

// resolveAutoBids lets standing auto-bids answer the current price, one bid
// per locked pass, until no auto-bid can or needs to move. Every pass raises
// the price by at least one increment, so the loop ends at the highest
// ceiling; MaxResolverPasses only guards against misconfigured increments.
// Errors are logged: the bid that triggered resolution is already committed.
func (s *BiddingService) resolveAutoBids(ctx context.Context, auctionID string) {
	for pass := 0; pass < s.rules.MaxResolverPasses; pass++ {
		var (
			placed placement
			ok     bool
		)
		err := s.repo.WithAuctionLock(ctx, auctionID, func(ctx context.Context, tx repository.AuctionTx) error {
			a := tx.Auction()
			now := s.clock()
			if !a.IsBiddable(now) {
				return nil
			}
			autoBids, err := tx.ActiveAutoBids(ctx)
			if err != nil {
				return err
			}
			proxy, amount, found := nextProxyBid(a, autoBids)
			if !found {
				return nil
			}
			p, err := s.applyBid(ctx, tx, proxy.UserID, amount, true, now)
			if err != nil {
				return err
			}
			if err := tx.UpdateAutoBidProxy(ctx, proxy.AutoBidID, amount); err != nil {
				return err
			}
			placed, ok = p, true
			return nil
		})
		if err != nil {
			utils.Error("auto-bid resolution failed", map[string]any{"auction_id": auctionID, "error": err.Error()})
			return
		}
		if !ok {
			return
		}

		utils.Info("auto-bid placed", map[string]any{
			"auction_id": auctionID,
			"user_id":    placed.bidder,
			"amount":     placed.result.NewPrice.StringFixed(2),
		})
		s.afterCommit(ctx, placed)
	}

	utils.Warn("auto-bid resolution stopped at pass limit", map[string]any{
		"auction_id": auctionID,
		"passes":     s.rules.MaxResolverPasses,
	})
}

// nextProxyBid picks the auto-bid that should bid next and the amount it
// should bid, following second-price proxy rules: the highest ceiling wins
// (earliest configuration on ties) and pays one increment above the best
// competing ceiling or price, capped at its own ceiling.
func nextProxyBid(a model.Auction, autoBids []model.AutoBid) (model.AutoBid, decimal.Decimal, bool) {
	var candidates []model.AutoBid
	for _, ab := range autoBids {
		if ab.IsActive && ab.UserID != a.SellerID {
			candidates = append(candidates, ab)
		}
	}
	if len(candidates) == 0 {
		return model.AutoBid{}, decimal.Decimal{}, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if !candidates[i].MaxAmount.Equal(candidates[j].MaxAmount) {
			return candidates[i].MaxAmount.GreaterThan(candidates[j].MaxAmount)
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	top := candidates[0]
	price := a.EffectivePrice()
	inc := a.MinimumBidIncrement

	if a.IsLeader(top.UserID) {
		// The leader only moves to stay ahead of a rival ceiling, never against itself.
		if len(candidates) < 2 {
			return model.AutoBid{}, decimal.Decimal{}, false
		}
		amount := decimal.Min(top.MaxAmount, candidates[1].MaxAmount.Add(inc))
		if amount.LessThan(a.MinimumBid()) {
			return model.AutoBid{}, decimal.Decimal{}, false
		}
		return top, amount, true
	}

	competing := price
	if len(candidates) > 1 && candidates[1].MaxAmount.GreaterThan(competing) {
		competing = candidates[1].MaxAmount
	}
	amount := decimal.Min(top.MaxAmount, competing.Add(inc))
	if amount.LessThan(a.MinimumBid()) {
		return model.AutoBid{}, decimal.Decimal{}, false
	}
	return top, amount, true
}
