package biddingerrors

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the services wraps exactly one of these.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("forbidden")
	ErrConflict   = errors.New("conflict")
	ErrInternal   = errors.New("internal error")
)

// Payment gateway kinds
var (
	ErrPaymentProcessing      = errors.New("payment processing failed")
	ErrCardDeclined           = errors.New("card declined")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrExpiredCard            = errors.New("card expired")
	ErrInvalidCard            = errors.New("invalid card")
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrStripeConnection       = errors.New("payment gateway unreachable")
	ErrWebhookVerification    = errors.New("webhook verification failed")
)

// Repository-level errors
var (
	ErrAuctionNotFound = fmt.Errorf("auction %w", ErrNotFound)
	ErrProductNotFound = fmt.Errorf("product %w", ErrNotFound)
	ErrUserNotFound    = fmt.Errorf("user %w", ErrNotFound)
	ErrOrderNotFound   = fmt.Errorf("order %w", ErrNotFound)
	ErrAutoBidNotFound = fmt.Errorf("auto-bid %w", ErrNotFound)
	ErrNoBids          = fmt.Errorf("no bids for auction: %w", ErrNotFound)
	ErrDuplicateOrder  = fmt.Errorf("%w: order already exists for auction", ErrConflict)
	ErrProductInUse    = fmt.Errorf("%w: product already has an open auction", ErrConflict)
)

// business logic errors
var (
	ErrInvalidBid          = fmt.Errorf("%w: invalid bid", ErrValidation)
	ErrBidTooLow           = fmt.Errorf("%w: bid amount too low", ErrValidation)
	ErrAuctionNotActive    = fmt.Errorf("%w: auction is not active", ErrValidation)
	ErrAuctionNotPending   = fmt.Errorf("%w: auction is not pending", ErrValidation)
	ErrAuctionEnded        = fmt.Errorf("%w: Auction has ended", ErrValidation)
	ErrAuctionStillRunning = fmt.Errorf("%w: auction has not reached its deadline", ErrValidation)
	ErrAuctionHasBids      = fmt.Errorf("%w: auction already has bids", ErrValidation)
	ErrExtensionLimit      = fmt.Errorf("%w: maximum timer extensions reached", ErrValidation)
	ErrInvalidAuction      = fmt.Errorf("%w: invalid auction details", ErrValidation)
	ErrNotProductOwner     = fmt.Errorf("%w: caller does not own the product", ErrForbidden)
	ErrOwnAuction          = fmt.Errorf("%w: sellers cannot bid on their own auction", ErrForbidden)
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrNotFound, "not_found"},
	{ErrValidation, "validation"},
	{ErrForbidden, "forbidden"},
	{ErrConflict, "conflict"},
	{ErrInsufficientFunds, "insufficient_funds"},
	{ErrExpiredCard, "expired_card"},
	{ErrInvalidCard, "invalid_card"},
	{ErrAuthenticationRequired, "authentication_required"},
	{ErrCardDeclined, "card_declined"},
	{ErrStripeConnection, "stripe_connection_error"},
	{ErrWebhookVerification, "webhook_verification"},
	{ErrPaymentProcessing, "payment_processing"},
}

// KindOf returns the taxonomy name of err; unknown errors are "internal".
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal"
}

// IsPayment reports whether err originates from the payment gateway.
func IsPayment(err error) bool {
	switch KindOf(err) {
	case "insufficient_funds", "expired_card", "invalid_card", "authentication_required",
		"card_declined", "stripe_connection_error", "webhook_verification", "payment_processing":
		return true
	}
	return false
}
