package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/livebid/auction-engine/internal/biddingerrors"
	model "github.com/livebid/auction-engine/internal/models"
	"github.com/livebid/auction-engine/utils"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const uniqueViolation = "23505"

// RunMigrations applies the embedded schema migrations to databaseURL.
func RunMigrations(databaseURL string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// NewPostgresPool opens and verifies a pgx connection pool.
func NewPostgresPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("postgres connection string is empty")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepo implements AuctionDB on PostgreSQL. The auction row lock is
// taken with SELECT ... FOR UPDATE.
type PostgresRepo struct {
	DB *pgxpool.Pool
}

var _ AuctionDB = (*PostgresRepo)(nil)

// NewPostgresRepo creates a new PostgresRepo
func NewPostgresRepo(db *pgxpool.Pool) *PostgresRepo {
	return &PostgresRepo{DB: db}
}

const auctionColumns = `id, product_id, seller_id, stream_id, starting_bid, current_bid, reserve_price,
	minimum_bid_increment, duration_ms, scheduled_start, started_at, ends_at, original_ends_at, ended_at,
	timer_extensions, max_timer_extensions, mode, current_bidder_id, bid_count, status,
	reserve_met, winner_notified, created_at, updated_at`

const bidColumns = `id, auction_id, user_id, amount, is_winning, is_auto, created_at`

const autoBidColumns = `id, auction_id, user_id, max_amount, current_proxy_bid, is_active, created_at, updated_at`

const orderColumns = `id, auction_id, product_id, buyer_id, seller_id, item_price, shipping_cost, total,
	status, payment_intent_id, created_at, updated_at`

func scanAuction(row pgx.Row) (model.Auction, error) {
	var (
		a          model.Auction
		current    decimal.NullDecimal
		reserve    decimal.NullDecimal
		durationMS int64
		mode       string
		status     string
	)
	err := row.Scan(
		&a.AuctionID, &a.ProductID, &a.SellerID, &a.StreamID, &a.StartingBid, &current, &reserve,
		&a.MinimumBidIncrement, &durationMS, &a.ScheduledStart, &a.StartedAt, &a.EndsAt, &a.OriginalEndsAt, &a.EndedAt,
		&a.TimerExtensions, &a.MaxTimerExtensions, &mode, &a.CurrentBidderID, &a.BidCount, &status,
		&a.ReserveMet, &a.WinnerNotified, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return model.Auction{}, err
	}
	a.CurrentBid = fromNull(current)
	a.ReservePrice = fromNull(reserve)
	a.Duration = time.Duration(durationMS) * time.Millisecond
	a.Mode = model.AuctionMode(mode)
	a.Status = model.AuctionStatus(status)
	return a, nil
}

func scanBid(row pgx.Row) (model.Bid, error) {
	var b model.Bid
	err := row.Scan(&b.BidID, &b.AuctionID, &b.UserID, &b.Amount, &b.IsWinning, &b.IsAuto, &b.CreatedAt)
	return b, err
}

func scanAutoBid(row pgx.Row) (model.AutoBid, error) {
	var (
		ab    model.AutoBid
		proxy decimal.NullDecimal
	)
	err := row.Scan(&ab.AutoBidID, &ab.AuctionID, &ab.UserID, &ab.MaxAmount, &proxy, &ab.IsActive, &ab.CreatedAt, &ab.UpdatedAt)
	if err != nil {
		return model.AutoBid{}, err
	}
	ab.CurrentProxyBid = fromNull(proxy)
	return ab, nil
}

func scanOrder(row pgx.Row) (model.Order, error) {
	var (
		o      model.Order
		status string
	)
	err := row.Scan(&o.OrderID, &o.AuctionID, &o.ProductID, &o.BuyerID, &o.SellerID, &o.ItemPrice, &o.ShippingCost,
		&o.Total, &status, &o.PaymentIntentID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return model.Order{}, err
	}
	o.Status = model.OrderStatus(status)
	return o, nil
}

func fromNull(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func toNull(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// CreateAuction inserts a new auction row
func (r *PostgresRepo) CreateAuction(ctx context.Context, a model.Auction) error {
	query := `INSERT INTO auctions (` + auctionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`
	_, err := r.DB.Exec(ctx, query,
		a.AuctionID, a.ProductID, a.SellerID, a.StreamID, a.StartingBid, toNull(a.CurrentBid), toNull(a.ReservePrice),
		a.MinimumBidIncrement, a.Duration.Milliseconds(), a.ScheduledStart, a.StartedAt, a.EndsAt, a.OriginalEndsAt, a.EndedAt,
		a.TimerExtensions, a.MaxTimerExtensions, string(a.Mode), a.CurrentBidderID, a.BidCount, string(a.Status),
		a.ReserveMet, a.WinnerNotified, a.CreatedAt, a.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("create auction for product %s: %w", a.ProductID, biddingerrors.ErrProductInUse)
	}
	if err != nil {
		return fmt.Errorf("create auction %s: %w", a.AuctionID, err)
	}
	return nil
}

// GetAuction returns the auction by id
func (r *PostgresRepo) GetAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	return getAuction(ctx, r.DB, auctionID, "")
}

func getAuction(ctx context.Context, q querier, auctionID, suffix string) (model.Auction, error) {
	if !utils.IsValidID(auctionID) {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	a, err := scanAuction(q.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1`+suffix, auctionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	if err != nil {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, err)
	}
	return a, nil
}

// ListAuctionsByStatus returns auctions in any of the given states ordered by deadline.
func (r *PostgresRepo) ListAuctionsByStatus(ctx context.Context, statuses ...model.AuctionStatus) ([]model.Auction, error) {
	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		names = append(names, string(s))
	}
	rows, err := r.DB.Query(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE status = ANY($1) ORDER BY ends_at`, names)
	if err != nil {
		return nil, fmt.Errorf("list auctions: %w", err)
	}
	defer rows.Close()

	var out []model.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan auction: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetBidsByAuction returns all bids for an auction in commit order
func (r *PostgresRepo) GetBidsByAuction(ctx context.Context, auctionID string) ([]model.Bid, error) {
	if _, err := r.GetAuction(ctx, auctionID); err != nil {
		return nil, err
	}
	rows, err := r.DB.Query(ctx, `SELECT `+bidColumns+` FROM bids WHERE auction_id = $1 ORDER BY created_at, amount`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, err)
	}
	defer rows.Close()

	var out []model.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bid: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// GetAutoBids returns every auto-bid configured on an auction
func (r *PostgresRepo) GetAutoBids(ctx context.Context, auctionID string) ([]model.AutoBid, error) {
	return queryAutoBids(ctx, r.DB, `SELECT `+autoBidColumns+` FROM auto_bids WHERE auction_id = $1 ORDER BY created_at`, auctionID)
}

func queryAutoBids(ctx context.Context, q querier, query, auctionID string) ([]model.AutoBid, error) {
	if !utils.IsValidID(auctionID) {
		return nil, nil
	}
	rows, err := q.Query(ctx, query, auctionID)
	if err != nil {
		return nil, fmt.Errorf("get auto-bids for auction %s: %w", auctionID, err)
	}
	defer rows.Close()

	var out []model.AutoBid
	for rows.Next() {
		ab, err := scanAutoBid(rows)
		if err != nil {
			return nil, fmt.Errorf("scan auto-bid: %w", err)
		}
		out = append(out, ab)
	}
	return out, rows.Err()
}

// GetProduct returns the product by id
func (r *PostgresRepo) GetProduct(ctx context.Context, productID string) (model.Product, error) {
	if !utils.IsValidID(productID) {
		return model.Product{}, fmt.Errorf("get product %s: %w", productID, biddingerrors.ErrProductNotFound)
	}
	var (
		p      model.Product
		status string
	)
	err := r.DB.QueryRow(ctx,
		`SELECT id, seller_id, title, description, shipping_cost, quantity, sold_quantity, status FROM products WHERE id = $1`,
		productID,
	).Scan(&p.ProductID, &p.SellerID, &p.Title, &p.Description, &p.ShippingCost, &p.Quantity, &p.SoldQuantity, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Product{}, fmt.Errorf("get product %s: %w", productID, biddingerrors.ErrProductNotFound)
	}
	if err != nil {
		return model.Product{}, fmt.Errorf("get product %s: %w", productID, err)
	}
	p.Status = model.ProductStatus(status)
	return p, nil
}

// MarkProductSold increments the sold counter and flags the product as sold.
func (r *PostgresRepo) MarkProductSold(ctx context.Context, productID string) error {
	tag, err := r.DB.Exec(ctx,
		`UPDATE products SET sold_quantity = sold_quantity + 1, status = $2 WHERE id = $1`,
		productID, string(model.ProductSold))
	if err != nil {
		return fmt.Errorf("mark product %s sold: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark product %s sold: %w", productID, biddingerrors.ErrProductNotFound)
	}
	return nil
}

// SetStreamProductStatus upserts the status of a product within a stream.
func (r *PostgresRepo) SetStreamProductStatus(ctx context.Context, streamID, productID string, status model.StreamProductStatus) error {
	_, err := r.DB.Exec(ctx,
		`INSERT INTO stream_products (stream_id, product_id, status) VALUES ($1, $2, $3)
		 ON CONFLICT (stream_id, product_id) DO UPDATE SET status = EXCLUDED.status`,
		streamID, productID, string(status))
	if err != nil {
		return fmt.Errorf("set stream %s product %s status: %w", streamID, productID, err)
	}
	return nil
}

// GetUser returns the user by id
func (r *PostgresRepo) GetUser(ctx context.Context, userID string) (model.User, error) {
	if !utils.IsValidID(userID) {
		return model.User{}, fmt.Errorf("get user %s: %w", userID, biddingerrors.ErrUserNotFound)
	}
	var u model.User
	err := r.DB.QueryRow(ctx,
		`SELECT id, username, email, payment_customer_id, payment_method_id FROM users WHERE id = $1`, userID,
	).Scan(&u.UserID, &u.Username, &u.Email, &u.PaymentCustomerID, &u.PaymentMethodID)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, fmt.Errorf("get user %s: %w", userID, biddingerrors.ErrUserNotFound)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("get user %s: %w", userID, err)
	}
	return u, nil
}

// GetOrderByAuction returns the order created when the auction settled
func (r *PostgresRepo) GetOrderByAuction(ctx context.Context, auctionID string) (model.Order, error) {
	if !utils.IsValidID(auctionID) {
		return model.Order{}, fmt.Errorf("get order for auction %s: %w", auctionID, biddingerrors.ErrOrderNotFound)
	}
	return r.getOrder(ctx, `auction_id = $1`, auctionID)
}

// GetOrderByPaymentIntent looks up an order by its gateway intent id
func (r *PostgresRepo) GetOrderByPaymentIntent(ctx context.Context, intentID string) (model.Order, error) {
	return r.getOrder(ctx, `payment_intent_id = $1`, intentID)
}

func (r *PostgresRepo) getOrder(ctx context.Context, where, arg string) (model.Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Order{}, fmt.Errorf("get order where %s: %w", where, biddingerrors.ErrOrderNotFound)
	}
	if err != nil {
		return model.Order{}, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// UpdateOrderPayment records the intent id (when non-nil) and payment status.
func (r *PostgresRepo) UpdateOrderPayment(ctx context.Context, orderID string, intentID *string, status model.OrderStatus) error {
	tag, err := r.DB.Exec(ctx,
		`UPDATE orders SET payment_intent_id = COALESCE($2, payment_intent_id), status = $3, updated_at = NOW() WHERE id = $1`,
		orderID, intentID, string(status))
	if err != nil {
		return fmt.Errorf("update order %s: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update order %s: %w", orderID, biddingerrors.ErrOrderNotFound)
	}
	return nil
}

// CreateNotification inserts an in-app notification
func (r *PostgresRepo) CreateNotification(ctx context.Context, n model.Notification) error {
	var auctionID *string
	if n.AuctionID != "" {
		auctionID = &n.AuctionID
	}
	_, err := r.DB.Exec(ctx,
		`INSERT INTO notifications (id, user_id, kind, title, body, auction_id, read, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		n.NotificationID, n.UserID, n.Kind, n.Title, n.Body, auctionID, n.Read, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("create notification for user %s: %w", n.UserID, err)
	}
	return nil
}

// WithAuctionLock opens a transaction, locks the auction row FOR UPDATE and
// commits when fn returns nil.
func (r *PostgresRepo) WithAuctionLock(ctx context.Context, auctionID string, fn func(ctx context.Context, tx AuctionTx) error) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	auction, err := getAuction(ctx, tx, auctionID, ` FOR UPDATE`)
	if err != nil {
		return err
	}

	if err := fn(ctx, &pgTx{tx: tx, auction: auction}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit auction %s: %w", auctionID, err)
	}
	return nil
}

type pgTx struct {
	tx      pgx.Tx
	auction model.Auction
}

func (t *pgTx) Auction() model.Auction {
	return t.auction
}

func (t *pgTx) SaveAuction(ctx context.Context, a model.Auction) error {
	_, err := t.tx.Exec(ctx, `UPDATE auctions SET
		current_bid = $2, current_bidder_id = $3, bid_count = $4, started_at = $5, ends_at = $6,
		original_ends_at = $7, ended_at = $8, timer_extensions = $9, status = $10,
		reserve_met = $11, winner_notified = $12, updated_at = $13
		WHERE id = $1`,
		a.AuctionID, toNull(a.CurrentBid), a.CurrentBidderID, a.BidCount, a.StartedAt, a.EndsAt,
		a.OriginalEndsAt, a.EndedAt, a.TimerExtensions, string(a.Status),
		a.ReserveMet, a.WinnerNotified, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save auction %s: %w", a.AuctionID, err)
	}
	t.auction = a
	return nil
}

func (t *pgTx) RecordBid(ctx context.Context, b model.Bid) error {
	if _, err := t.tx.Exec(ctx, `UPDATE bids SET is_winning = FALSE WHERE auction_id = $1 AND is_winning`, b.AuctionID); err != nil {
		return fmt.Errorf("clear winning bids for auction %s: %w", b.AuctionID, err)
	}
	_, err := t.tx.Exec(ctx, `INSERT INTO bids (`+bidColumns+`) VALUES ($1, $2, $3, $4, TRUE, $5, $6)`,
		b.BidID, b.AuctionID, b.UserID, b.Amount, b.IsAuto, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert bid for auction %s: %w", b.AuctionID, err)
	}
	return nil
}

func (t *pgTx) ActiveAutoBids(ctx context.Context) ([]model.AutoBid, error) {
	return queryAutoBids(ctx, t.tx,
		`SELECT `+autoBidColumns+` FROM auto_bids WHERE auction_id = $1 AND is_active ORDER BY created_at`,
		t.auction.AuctionID)
}

func (t *pgTx) UpsertAutoBid(ctx context.Context, ab model.AutoBid) (model.AutoBid, error) {
	updated, err := scanAutoBid(t.tx.QueryRow(ctx,
		`UPDATE auto_bids SET max_amount = $3, updated_at = $4
		 WHERE auction_id = $1 AND user_id = $2 AND is_active
		 RETURNING `+autoBidColumns,
		ab.AuctionID, ab.UserID, ab.MaxAmount, ab.UpdatedAt))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.AutoBid{}, fmt.Errorf("update auto-bid for user %s: %w", ab.UserID, err)
	}

	inserted, err := scanAutoBid(t.tx.QueryRow(ctx,
		`INSERT INTO auto_bids (`+autoBidColumns+`) VALUES ($1, $2, $3, $4, NULL, TRUE, $5, $6)
		 RETURNING `+autoBidColumns,
		ab.AutoBidID, ab.AuctionID, ab.UserID, ab.MaxAmount, ab.CreatedAt, ab.UpdatedAt))
	if isUniqueViolation(err) {
		return model.AutoBid{}, fmt.Errorf("insert auto-bid for user %s: %w: active auto-bid exists", ab.UserID, biddingerrors.ErrConflict)
	}
	if err != nil {
		return model.AutoBid{}, fmt.Errorf("insert auto-bid for user %s: %w", ab.UserID, err)
	}
	return inserted, nil
}

func (t *pgTx) UpdateAutoBidProxy(ctx context.Context, autoBidID string, amount decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE auto_bids SET current_proxy_bid = $2, updated_at = NOW() WHERE id = $1`, autoBidID, amount)
	if err != nil {
		return fmt.Errorf("update proxy of auto-bid %s: %w", autoBidID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update proxy of auto-bid %s: %w", autoBidID, biddingerrors.ErrAutoBidNotFound)
	}
	return nil
}

func (t *pgTx) DeactivateAutoBid(ctx context.Context, userID string) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE auto_bids SET is_active = FALSE, updated_at = NOW() WHERE auction_id = $1 AND user_id = $2 AND is_active`,
		t.auction.AuctionID, userID)
	if err != nil {
		return fmt.Errorf("deactivate auto-bid of user %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("deactivate auto-bid of user %s: %w", userID, biddingerrors.ErrAutoBidNotFound)
	}
	return nil
}

func (t *pgTx) CreateOrder(ctx context.Context, o model.Order) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		o.OrderID, o.AuctionID, o.ProductID, o.BuyerID, o.SellerID, o.ItemPrice, o.ShippingCost, o.Total,
		string(o.Status), o.PaymentIntentID, o.CreatedAt, o.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("create order for auction %s: %w", o.AuctionID, biddingerrors.ErrDuplicateOrder)
	}
	if err != nil {
		return fmt.Errorf("create order for auction %s: %w", o.AuctionID, err)
	}
	return nil
}
