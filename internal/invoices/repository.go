package invoices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-sfa/meridian-sfa/internal/inventory"
	"github.com/meridian-sfa/meridian-sfa/internal/platform/db"
	"github.com/meridian-sfa/meridian-sfa/internal/shared"
)

// ErrDuplicateRef indicates an invoice with the same client reference already
// exists. The sync coordinator treats this as successful delivery.
var ErrDuplicateRef = errors.New("invoices: duplicate client ref")

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used during ingestion.
type TxRepository interface {
	InsertInvoice(ctx context.Context, inv Invoice) (int64, error)
	InsertItem(ctx context.Context, item Item) error
	SetNeedsReview(ctx context.Context, invoiceID int64) error
	UpdatePayment(ctx context.Context, invoiceID int64, paid float64, status PaymentStatus) error
	Stock() inventory.TxPort
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps the callback in a repeatable-read transaction. Connection-level
// failures are surfaced as transient so callers can retry with backoff.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return wrapStoreErr(db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	}))
}

// GetByClientRef fetches an invoice by its device-assigned reference.
func (r *Repository) GetByClientRef(ctx context.Context, ref uuid.UUID) (Invoice, error) {
	return r.getOne(ctx, `WHERE client_ref=$1`, ref)
}

// Get fetches an invoice by id.
func (r *Repository) Get(ctx context.Context, id int64) (Invoice, error) {
	return r.getOne(ctx, `WHERE id=$1`, id)
}

func (r *Repository) getOne(ctx context.Context, where string, arg any) (Invoice, error) {
	var inv Invoice
	var status, method string
	err := r.pool.QueryRow(ctx, `SELECT id, number, client_ref, agent_id, customer_id, subtotal, discount, vat, total,
payment_status, payment_method, amount_paid, offline_created, is_synced, synced_at, needs_review, created_at
FROM invoices `+where, arg).Scan(
		&inv.ID, &inv.Number, &inv.ClientRef, &inv.AgentID, &inv.CustomerID, &inv.Subtotal, &inv.Discount, &inv.VAT, &inv.Total,
		&status, &method, &inv.AmountPaid, &inv.OfflineCreated, &inv.IsSynced, &inv.SyncedAt, &inv.NeedsReview, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, shared.ErrNotFound
		}
		return Invoice{}, wrapStoreErr(err)
	}
	inv.PaymentStatus = PaymentStatus(status)
	inv.PaymentMethod = PaymentMethod(method)
	return inv, nil
}

// GetItems returns the lines of an invoice.
func (r *Repository) GetItems(ctx context.Context, invoiceID int64) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, invoice_id, product_id, qty, unit_price, line_total
FROM invoice_items WHERE invoice_id=$1 ORDER BY id ASC`, invoiceID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.InvoiceID, &item.ProductID, &item.Qty, &item.UnitPrice, &item.LineTotal); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// List returns invoices matching the filter, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Invoice, error) {
	page := shared.NormalizePagination(filter.Limit, filter.Offset)
	rows, err := r.pool.Query(ctx, `SELECT id, number, client_ref, agent_id, customer_id, subtotal, discount, vat, total,
payment_status, payment_method, amount_paid, offline_created, is_synced, synced_at, needs_review, created_at
FROM invoices
WHERE ($1::bigint=0 OR agent_id=$1) AND ($2=''::text OR payment_status=$2) AND (NOT $3::bool OR needs_review)
  AND created_at >= COALESCE($4, '-infinity'::timestamptz) AND created_at < COALESCE($5, 'infinity'::timestamptz)
ORDER BY created_at DESC, id DESC
LIMIT $6 OFFSET $7`, filter.AgentID, string(filter.PaymentStatus), filter.NeedsReview, nullTime(filter.From), nullTime(filter.To), page.Limit, page.Offset)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		var inv Invoice
		var status, method string
		if err := rows.Scan(&inv.ID, &inv.Number, &inv.ClientRef, &inv.AgentID, &inv.CustomerID, &inv.Subtotal, &inv.Discount, &inv.VAT, &inv.Total,
			&status, &method, &inv.AmountPaid, &inv.OfflineCreated, &inv.IsSynced, &inv.SyncedAt, &inv.NeedsReview, &inv.CreatedAt); err != nil {
			return nil, err
		}
		inv.PaymentStatus = PaymentStatus(status)
		inv.PaymentMethod = PaymentMethod(method)
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (t *txRepo) InsertInvoice(ctx context.Context, inv Invoice) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO invoices (number, client_ref, agent_id, customer_id, subtotal, discount, vat, total,
payment_status, payment_method, amount_paid, offline_created, is_synced, synced_at, needs_review, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16) RETURNING id`,
		inv.Number, inv.ClientRef, inv.AgentID, inv.CustomerID, inv.Subtotal, inv.Discount, inv.VAT, inv.Total,
		string(inv.PaymentStatus), string(inv.PaymentMethod), inv.AmountPaid, inv.OfflineCreated, inv.IsSynced, inv.SyncedAt, inv.NeedsReview, inv.CreatedAt).Scan(&id)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			return 0, ErrDuplicateRef
		}
		return 0, wrapStoreErr(err)
	}
	return id, nil
}

func (t *txRepo) InsertItem(ctx context.Context, item Item) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO invoice_items (invoice_id, product_id, qty, unit_price, line_total)
VALUES ($1,$2,$3,$4,$5)`, item.InvoiceID, item.ProductID, item.Qty, item.UnitPrice, item.LineTotal)
	return err
}

func (t *txRepo) SetNeedsReview(ctx context.Context, invoiceID int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE invoices SET needs_review=true WHERE id=$1`, invoiceID)
	return err
}

func (t *txRepo) UpdatePayment(ctx context.Context, invoiceID int64, paid float64, status PaymentStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE invoices SET amount_paid=$2, payment_status=$3 WHERE id=$1`, invoiceID, paid, string(status))
	return err
}

func (t *txRepo) Stock() inventory.TxPort {
	return inventory.NewTxPort(t.tx)
}

// wrapStoreErr maps connection-level failures to the retryable taxonomy kind.
func wrapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return err
	}
	if pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", shared.ErrTransientStore, err)
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return fmt.Errorf("%w: %v", shared.ErrTransientStore, err)
	}
	return err
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
