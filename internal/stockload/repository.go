package stockload

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-sfa/meridian-sfa/internal/inventory"
	"github.com/meridian-sfa/meridian-sfa/internal/platform/db"
	"github.com/meridian-sfa/meridian-sfa/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations. TransitionStatus is the only
// mutation path for the status column and reports whether the compare-and-set
// matched.
type TxRepository interface {
	CreateLoad(ctx context.Context, load StockLoad) (int64, error)
	InsertItem(ctx context.Context, item Item) error
	TransitionStatus(ctx context.Context, id int64, from, to Status) (bool, error)
	SetItemApprovedQty(ctx context.Context, itemID int64, qty float64) error
	SetItemReleasedQty(ctx context.Context, itemID int64, qty float64) error
	SetApproval(ctx context.Context, id int64, approvedBy int64, approvedAt time.Time) error
	SetRelease(ctx context.Context, id int64, releasedBy int64, releasedAt time.Time) error
	SetRejection(ctx context.Context, id int64, rejectedBy int64, rejectedAt time.Time, reason string) error
	Stock() inventory.TxPort
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps the callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// GetLoad returns a stock load and its items.
func (r *Repository) GetLoad(ctx context.Context, id int64) (StockLoad, []Item, error) {
	var load StockLoad
	var status string
	err := r.pool.QueryRow(ctx, `SELECT id, number, agent_id, warehouse_id, status, note,
requested_by, requested_at,
COALESCE(approved_by, 0), COALESCE(approved_at, 'epoch'),
COALESCE(released_by, 0), COALESCE(released_at, 'epoch'),
COALESCE(rejected_by, 0), COALESCE(rejected_at, 'epoch'), COALESCE(reject_reason, '')
FROM stock_loads WHERE id=$1`, id).Scan(
		&load.ID, &load.Number, &load.AgentID, &load.WarehouseID, &status, &load.Note,
		&load.RequestedBy, &load.RequestedAt,
		&load.ApprovedBy, &load.ApprovedAt,
		&load.ReleasedBy, &load.ReleasedAt,
		&load.RejectedBy, &load.RejectedAt, &load.RejectReason)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockLoad{}, nil, shared.ErrNotFound
		}
		return StockLoad{}, nil, err
	}
	load.Status = Status(status)

	rows, err := r.pool.Query(ctx, `SELECT id, load_id, product_id, requested_qty, approved_qty, released_qty
FROM stock_load_items WHERE load_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return StockLoad{}, nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.LoadID, &item.ProductID, &item.RequestedQty, &item.ApprovedQty, &item.ReleasedQty); err != nil {
			return StockLoad{}, nil, err
		}
		items = append(items, item)
	}
	return load, items, rows.Err()
}

// ListLoads returns stock loads matching the filter, newest first.
func (r *Repository) ListLoads(ctx context.Context, filter ListFilter) ([]StockLoad, error) {
	page := shared.NormalizePagination(filter.Limit, filter.Offset)
	rows, err := r.pool.Query(ctx, `SELECT id, number, agent_id, warehouse_id, status, note, requested_by, requested_at
FROM stock_loads
WHERE ($1::bigint=0 OR agent_id=$1) AND ($2=''::text OR status=$2)
  AND requested_at >= COALESCE($3, '-infinity'::timestamptz) AND requested_at < COALESCE($4, 'infinity'::timestamptz)
ORDER BY requested_at DESC, id DESC
LIMIT $5 OFFSET $6`, filter.AgentID, string(filter.Status), nullTime(filter.From), nullTime(filter.To), page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var loads []StockLoad
	for rows.Next() {
		var load StockLoad
		var status string
		if err := rows.Scan(&load.ID, &load.Number, &load.AgentID, &load.WarehouseID, &status, &load.Note, &load.RequestedBy, &load.RequestedAt); err != nil {
			return nil, err
		}
		load.Status = Status(status)
		loads = append(loads, load)
	}
	return loads, rows.Err()
}

func (t *txRepo) CreateLoad(ctx context.Context, load StockLoad) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO stock_loads (number, agent_id, warehouse_id, status, note, requested_by, requested_at)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		load.Number, load.AgentID, load.WarehouseID, string(load.Status), load.Note, load.RequestedBy, load.RequestedAt).Scan(&id)
	return id, err
}

func (t *txRepo) InsertItem(ctx context.Context, item Item) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO stock_load_items (load_id, product_id, requested_qty) VALUES ($1,$2,$3)`,
		item.LoadID, item.ProductID, item.RequestedQty)
	return err
}

func (t *txRepo) TransitionStatus(ctx context.Context, id int64, from, to Status) (bool, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE stock_loads SET status=$3 WHERE id=$1 AND status=$2`, id, string(from), string(to))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txRepo) SetItemApprovedQty(ctx context.Context, itemID int64, qty float64) error {
	_, err := t.tx.Exec(ctx, `UPDATE stock_load_items SET approved_qty=$2 WHERE id=$1`, itemID, qty)
	return err
}

func (t *txRepo) SetItemReleasedQty(ctx context.Context, itemID int64, qty float64) error {
	_, err := t.tx.Exec(ctx, `UPDATE stock_load_items SET released_qty=$2 WHERE id=$1`, itemID, qty)
	return err
}

func (t *txRepo) SetApproval(ctx context.Context, id int64, approvedBy int64, approvedAt time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE stock_loads SET approved_by=$2, approved_at=$3 WHERE id=$1`, id, approvedBy, approvedAt)
	return err
}

func (t *txRepo) SetRelease(ctx context.Context, id int64, releasedBy int64, releasedAt time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE stock_loads SET released_by=$2, released_at=$3 WHERE id=$1`, id, releasedBy, releasedAt)
	return err
}

func (t *txRepo) SetRejection(ctx context.Context, id int64, rejectedBy int64, rejectedAt time.Time, reason string) error {
	_, err := t.tx.Exec(ctx, `UPDATE stock_loads SET rejected_by=$2, rejected_at=$3, reject_reason=$4 WHERE id=$1`, id, rejectedBy, rejectedAt, reason)
	return err
}

func (t *txRepo) Stock() inventory.TxPort {
	return inventory.NewTxPort(t.tx)
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
