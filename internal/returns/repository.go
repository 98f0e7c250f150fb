package returns

import (
	"context"
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

// TxRepository exposes transactional operations so the record insert and its
// stock movements commit atomically.
type TxRepository interface {
	InsertReturn(ctx context.Context, ret Return) (int64, error)
	InsertDamage(ctx context.Context, damage Damage) (int64, error)
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

// ListReturns returns recorded returns matching the filter, newest first.
func (r *Repository) ListReturns(ctx context.Context, filter ListFilter) ([]Return, error) {
	page := shared.NormalizePagination(filter.Limit, filter.Offset)
	rows, err := r.pool.Query(ctx, `SELECT id, agent_id, product_id, warehouse_id, qty, value, recorded_by, created_at
FROM returns
WHERE ($1::bigint=0 OR agent_id=$1)
  AND created_at >= COALESCE($2, '-infinity'::timestamptz) AND created_at < COALESCE($3, 'infinity'::timestamptz)
ORDER BY created_at DESC, id DESC
LIMIT $4 OFFSET $5`, filter.AgentID, nullTime(filter.From), nullTime(filter.To), page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Return
	for rows.Next() {
		var ret Return
		if err := rows.Scan(&ret.ID, &ret.AgentID, &ret.ProductID, &ret.WarehouseID, &ret.Qty, &ret.Value, &ret.RecordedBy, &ret.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ret)
	}
	return out, rows.Err()
}

// ListDamages returns recorded damages matching the filter, newest first.
func (r *Repository) ListDamages(ctx context.Context, filter ListFilter) ([]Damage, error) {
	page := shared.NormalizePagination(filter.Limit, filter.Offset)
	rows, err := r.pool.Query(ctx, `SELECT id, agent_id, product_id, qty, note, recorded_by, created_at
FROM damages
WHERE ($1::bigint=0 OR agent_id=$1)
  AND created_at >= COALESCE($2, '-infinity'::timestamptz) AND created_at < COALESCE($3, 'infinity'::timestamptz)
ORDER BY created_at DESC, id DESC
LIMIT $4 OFFSET $5`, filter.AgentID, nullTime(filter.From), nullTime(filter.To), page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Damage
	for rows.Next() {
		var damage Damage
		if err := rows.Scan(&damage.ID, &damage.AgentID, &damage.ProductID, &damage.Qty, &damage.Note, &damage.RecordedBy, &damage.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, damage)
	}
	return out, rows.Err()
}

func (t *txRepo) InsertReturn(ctx context.Context, ret Return) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO returns (agent_id, product_id, warehouse_id, qty, value, recorded_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		ret.AgentID, ret.ProductID, ret.WarehouseID, ret.Qty, ret.Value, ret.RecordedBy, ret.CreatedAt).Scan(&id)
	return id, err
}

func (t *txRepo) InsertDamage(ctx context.Context, damage Damage) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO damages (agent_id, product_id, qty, note, recorded_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		damage.AgentID, damage.ProductID, damage.Qty, damage.Note, damage.RecordedBy, damage.CreatedAt).Scan(&id)
	return id, err
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
