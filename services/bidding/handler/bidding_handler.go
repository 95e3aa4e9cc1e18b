package handler

import (
	"context"
	"net/http"
	"time"

	bidding "github.com/livebid/auction-engine/internal/biddingService"
	model "github.com/livebid/auction-engine/internal/models"
	"github.com/livebid/auction-engine/services/bidding/helpers"
	"github.com/livebid/auction-engine/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type BiddingServiceInterface interface {
	CreateAuction(ctx context.Context, sellerID string, in bidding.CreateAuctionInput) (model.Auction, error)
	StartAuctionNow(ctx context.Context, auctionID, userID string) (model.Auction, error)
	CancelAuction(ctx context.Context, auctionID, userID string) (model.Auction, error)
	ExtendAuction(ctx context.Context, auctionID, userID string, extension time.Duration) (model.Auction, error)
	PlaceBid(ctx context.Context, userID, auctionID string, amount decimal.Decimal) (model.BidResult, error)
	ConfigureAutoBid(ctx context.Context, userID, auctionID string, maxAmount decimal.Decimal) (model.AutoBid, error)
	CancelAutoBid(ctx context.Context, userID, auctionID string) error
	GetAuction(ctx context.Context, auctionID string) (model.Auction, error)
	GetBidsForAuction(ctx context.Context, auctionID string) ([]model.Bid, error)
	GetWinningBid(ctx context.Context, auctionID string) (model.Bid, error)
}

var _ BiddingServiceInterface = (*bidding.BiddingService)(nil)

type BiddingHandler struct {
	service BiddingServiceInterface
}

func NewBiddingHandler(service BiddingServiceInterface) *BiddingHandler {
	return &BiddingHandler{service: service}
}

// CreateAuctionHandler handles POST /auctions
func (h *BiddingHandler) CreateAuctionHandler(c *gin.Context) {
	var req helpers.CreateAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateAuctionHandler", err)
		return
	}

	sellerID := helpers.CallerID(c)
	auction, err := h.service.CreateAuction(c.Request.Context(), sellerID, req.ToInput())
	if err != nil {
		helpers.RespondError(c, "CreateAuctionHandler", err, map[string]any{
			"product_id": req.ProductID,
			"user_id":    sellerID,
		})
		return
	}

	respond(c, http.StatusCreated, helpers.NewAuctionResponse(auction), "CreateAuctionHandler", "auction created successfully", map[string]any{
		"auction_id": auction.AuctionID,
		"product_id": auction.ProductID,
		"status":     auction.Status,
	})
}

// GetAuctionHandler handles GET /auctions/:auction_id
func (h *BiddingHandler) GetAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	auction, err := h.service.GetAuction(c.Request.Context(), auctionID)
	if err != nil {
		helpers.RespondError(c, "GetAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	respond(c, http.StatusOK, helpers.NewAuctionResponse(auction), "GetAuctionHandler", "auction retrieved successfully", map[string]any{
		"auction_id": auctionID,
	})
}

// GetBidsByAuctionHandler handles GET /auctions/:auction_id/bids
func (h *BiddingHandler) GetBidsByAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	bids, err := h.service.GetBidsForAuction(c.Request.Context(), auctionID)
	if err != nil {
		helpers.RespondError(c, "GetBidsByAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	respond(c, http.StatusOK, helpers.NewBidResponses(bids), "GetBidsByAuctionHandler", "bids retrieved successfully", map[string]any{
		"auction_id": auctionID,
		"count":      len(bids),
	})
}

// GetWinningBidHandler handles GET /auctions/:auction_id/winning
func (h *BiddingHandler) GetWinningBidHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	bid, err := h.service.GetWinningBid(c.Request.Context(), auctionID)
	if err != nil {
		helpers.RespondError(c, "GetWinningBidHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	respond(c, http.StatusOK, helpers.NewBidResponse(bid), "GetWinningBidHandler", "winning bid retrieved successfully", map[string]any{
		"auction_id": auctionID,
		"bid_id":     bid.BidID,
	})
}

// PlaceBidHandler handles POST /auctions/:auction_id/bids
func (h *BiddingHandler) PlaceBidHandler(c *gin.Context) {
	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "PlaceBidHandler", err)
		return
	}

	auctionID := c.Param("auction_id")
	userID := helpers.CallerID(c)
	result, err := h.service.PlaceBid(c.Request.Context(), userID, auctionID, req.Amount)
	if err != nil {
		helpers.RespondError(c, "PlaceBidHandler", err, map[string]any{
			"auction_id": auctionID,
			"user_id":    userID,
			"amount":     req.Amount.String(),
		})
		return
	}

	respond(c, http.StatusCreated, helpers.NewPlaceBidResponse(result), "PlaceBidHandler", "bid placed successfully", map[string]any{
		"bid_id":         result.BidID,
		"auction_id":     auctionID,
		"user_id":        userID,
		"amount":         req.Amount.String(),
		"timer_extended": result.TimerExtended,
	})
}

// ConfigureAutoBidHandler handles PUT /auctions/:auction_id/auto-bid
func (h *BiddingHandler) ConfigureAutoBidHandler(c *gin.Context) {
	var req helpers.AutoBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "ConfigureAutoBidHandler", err)
		return
	}

	auctionID := c.Param("auction_id")
	userID := helpers.CallerID(c)
	autoBid, err := h.service.ConfigureAutoBid(c.Request.Context(), userID, auctionID, req.MaxAmount)
	if err != nil {
		helpers.RespondError(c, "ConfigureAutoBidHandler", err, map[string]any{
			"auction_id": auctionID,
			"user_id":    userID,
		})
		return
	}

	respond(c, http.StatusOK, helpers.NewAutoBidResponse(autoBid), "ConfigureAutoBidHandler", "auto-bid configured successfully", map[string]any{
		"auction_id":  auctionID,
		"user_id":     userID,
		"auto_bid_id": autoBid.AutoBidID,
	})
}

// CancelAutoBidHandler handles DELETE /auctions/:auction_id/auto-bid
func (h *BiddingHandler) CancelAutoBidHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	userID := helpers.CallerID(c)
	if err := h.service.CancelAutoBid(c.Request.Context(), userID, auctionID); err != nil {
		helpers.RespondError(c, "CancelAutoBidHandler", err, map[string]any{
			"auction_id": auctionID,
			"user_id":    userID,
		})
		return
	}

	respond(c, http.StatusOK, nil, "CancelAutoBidHandler", "auto-bid cancelled successfully", map[string]any{
		"auction_id": auctionID,
		"user_id":    userID,
	})
}

// StartAuctionHandler handles POST /auctions/:auction_id/start
func (h *BiddingHandler) StartAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	userID := helpers.CallerID(c)
	auction, err := h.service.StartAuctionNow(c.Request.Context(), auctionID, userID)
	if err != nil {
		helpers.RespondError(c, "StartAuctionHandler", err, map[string]any{"auction_id": auctionID, "user_id": userID})
		return
	}

	respond(c, http.StatusOK, helpers.NewAuctionResponse(auction), "StartAuctionHandler", "auction started successfully", map[string]any{
		"auction_id": auctionID,
		"ends_at":    auction.EndsAt,
	})
}

// CancelAuctionHandler handles POST /auctions/:auction_id/cancel
func (h *BiddingHandler) CancelAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	userID := helpers.CallerID(c)
	auction, err := h.service.CancelAuction(c.Request.Context(), auctionID, userID)
	if err != nil {
		helpers.RespondError(c, "CancelAuctionHandler", err, map[string]any{"auction_id": auctionID, "user_id": userID})
		return
	}

	respond(c, http.StatusOK, helpers.NewAuctionResponse(auction), "CancelAuctionHandler", "auction cancelled successfully", map[string]any{
		"auction_id": auctionID,
	})
}

// ExtendAuctionHandler handles POST /auctions/:auction_id/extend
func (h *BiddingHandler) ExtendAuctionHandler(c *gin.Context) {
	var req helpers.ExtendAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "ExtendAuctionHandler", err)
		return
	}

	auctionID := c.Param("auction_id")
	userID := helpers.CallerID(c)
	extension := time.Duration(req.ExtensionSeconds) * time.Second
	auction, err := h.service.ExtendAuction(c.Request.Context(), auctionID, userID, extension)
	if err != nil {
		helpers.RespondError(c, "ExtendAuctionHandler", err, map[string]any{
			"auction_id": auctionID,
			"user_id":    userID,
			"extension":  extension.String(),
		})
		return
	}

	respond(c, http.StatusOK, helpers.NewAuctionResponse(auction), "ExtendAuctionHandler", "auction extended successfully", map[string]any{
		"auction_id": auctionID,
		"ends_at":    auction.EndsAt,
	})
}

func respond(c *gin.Context, status int, data any, handlerName, message string, ctx map[string]any) {
	utils.JSONResponse(c, status, data, message)
	helpers.LogSuccess(handlerName, message, ctx)
}
