package notify

import (
	"context"
	"fmt"
	"time"

	model "github.com/livebid/auction-engine/internal/models"
	"github.com/livebid/auction-engine/utils"
)

// Notification kinds
const (
	KindAuctionWon = "auction_won"
	KindOutbid     = "outbid"
)

// Notifier delivers in-app notifications.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

// Mailer delivers email.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// NotificationStore persists notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n model.Notification) error
}

// StoreNotifier writes notifications to the store for the client to poll.
type StoreNotifier struct {
	store NotificationStore
	now   func() time.Time
}

// NewStoreNotifier creates a StoreNotifier
func NewStoreNotifier(store NotificationStore) *StoreNotifier {
	return &StoreNotifier{store: store, now: time.Now}
}

// Notify fills in id and timestamp and persists n.
func (s *StoreNotifier) Notify(ctx context.Context, n model.Notification) error {
	if n.UserID == "" {
		return fmt.Errorf("notify: empty user id")
	}
	if n.NotificationID == "" {
		n.NotificationID = utils.GenerateID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("notify user %s: %w", n.UserID, err)
	}
	return nil
}

// LogMailer records outgoing mail in the structured log. Delivery is handled
// by the mail relay tailing these entries.
type LogMailer struct {
	From string
}

// Send logs the message
func (m LogMailer) Send(_ context.Context, to, subject, body string) error {
	if to == "" {
		return fmt.Errorf("send mail %q: empty recipient", subject)
	}
	utils.Info("mail queued", map[string]any{
		"from":    m.From,
		"to":      to,
		"subject": subject,
		"bytes":   len(body),
	})
	return nil
}

// WinnerEmail renders the subject and body sent to an auction winner.
func WinnerEmail(productTitle string, order model.Order) (string, string) {
	subject := fmt.Sprintf("You won: %s", productTitle)
	body := fmt.Sprintf(
		"Congratulations! You won %s for $%s.\nShipping: $%s\nTotal: $%s\nOrder: %s\nPayment status: %s\n",
		productTitle,
		order.ItemPrice.StringFixed(2),
		order.ShippingCost.StringFixed(2),
		order.Total.StringFixed(2),
		order.OrderID,
		order.Status,
	)
	return subject, body
}
