package server

import (
	"net/http"

	"github.com/livebid/auction-engine/internal/payment"
	handler "github.com/livebid/auction-engine/services/bidding/handler"
	"github.com/livebid/auction-engine/utils"

	"github.com/gin-gonic/gin"
)

// SetupRouter configures all Gin routes for the application. parser may be
// nil when payments are disabled.
func SetupRouter(biddingService handler.BiddingServiceInterface, settlementService handler.SettlementServiceInterface, parser payment.WebhookParser) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging

	biddingHandler := handler.NewBiddingHandler(biddingService)
	settlementHandler := handler.NewSettlementHandler(settlementService, parser)

	router.GET("/healthz", func(c *gin.Context) {
		utils.JSONResponse(c, http.StatusOK, gin.H{"status": "ok"}, "healthy")
	})

	auctions := router.Group("/auctions")
	{
		auctions.GET("/:auction_id", biddingHandler.GetAuctionHandler)
		auctions.GET("/:auction_id/bids", biddingHandler.GetBidsByAuctionHandler)
		auctions.GET("/:auction_id/winning", biddingHandler.GetWinningBidHandler)
	}

	authed := auctions.Group("", UserIDMiddleware)
	{
		authed.POST("", biddingHandler.CreateAuctionHandler)
		authed.POST("/:auction_id/bids", biddingHandler.PlaceBidHandler)
		authed.PUT("/:auction_id/auto-bid", biddingHandler.ConfigureAutoBidHandler)
		authed.DELETE("/:auction_id/auto-bid", biddingHandler.CancelAutoBidHandler)
		authed.POST("/:auction_id/start", biddingHandler.StartAuctionHandler)
		authed.POST("/:auction_id/cancel", biddingHandler.CancelAuctionHandler)
		authed.POST("/:auction_id/extend", biddingHandler.ExtendAuctionHandler)
		authed.POST("/:auction_id/finalize", settlementHandler.FinalizeAuctionHandler)
	}

	webhooks := router.Group("/webhooks")
	{
		webhooks.POST("/payments", settlementHandler.PaymentWebhookHandler)
	}

	return router
}
