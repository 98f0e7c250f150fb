package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-sfa/meridian-sfa/internal/platform/db"
)

// Repository persists stock balances and movements in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txPort struct {
	tx pgx.Tx
}

// NewTxPort wraps an open transaction so other repositories can apply stock
// movements atomically with their own writes.
func NewTxPort(tx pgx.Tx) TxPort {
	return &txPort{tx: tx}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxPort) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txPort{tx: tx})
	})
}

// ListBalances returns balances matching the filter.
func (r *Repository) ListBalances(ctx context.Context, filter BalanceFilter) ([]Balance, error) {
	rows, err := r.pool.Query(ctx, `SELECT owner_kind, owner_id, product_id, qty, updated_at
FROM stock_balances
WHERE owner_kind=$1 AND ($2::bigint=0 OR owner_id=$2) AND ($3::bigint=0 OR product_id=$3)
ORDER BY owner_id, product_id`, string(filter.OwnerKind), filter.OwnerID, filter.ProductID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var balances []Balance
	for rows.Next() {
		var b Balance
		var kind string
		if err := rows.Scan(&kind, &b.OwnerID, &b.ProductID, &b.Qty, &b.UpdatedAt); err != nil {
			return nil, err
		}
		b.OwnerKind = OwnerKind(kind)
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// ListMovements returns movements matching the filter in posting order.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, code, movement_type, owner_kind, owner_id, product_id, qty_change, balance_qty, ref_module, ref_id, note, shortfall, posted_at, created_by
FROM stock_movements
WHERE owner_kind=$1 AND ($2::bigint=0 OR owner_id=$2) AND ($3::bigint=0 OR product_id=$3)
  AND posted_at >= COALESCE($4, '-infinity'::timestamptz) AND posted_at < COALESCE($5, 'infinity'::timestamptz)
ORDER BY posted_at ASC, id ASC
LIMIT $6`, string(filter.OwnerKind), filter.OwnerID, filter.ProductID, nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var movements []Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (p *txPort) GetBalanceForUpdate(ctx context.Context, kind OwnerKind, ownerID, productID int64) (Balance, error) {
	var bal Balance
	var k string
	err := p.tx.QueryRow(ctx, `SELECT owner_kind, owner_id, product_id, qty, updated_at
FROM stock_balances WHERE owner_kind=$1 AND owner_id=$2 AND product_id=$3 FOR UPDATE`,
		string(kind), ownerID, productID).Scan(&k, &bal.OwnerID, &bal.ProductID, &bal.Qty, &bal.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{OwnerKind: kind, OwnerID: ownerID, ProductID: productID}, nil
		}
		return Balance{}, err
	}
	bal.OwnerKind = OwnerKind(k)
	return bal, nil
}

func (p *txPort) UpsertBalance(ctx context.Context, balance Balance) error {
	_, err := p.tx.Exec(ctx, `INSERT INTO stock_balances (owner_kind, owner_id, product_id, qty, updated_at)
VALUES ($1,$2,$3,$4,NOW())
ON CONFLICT (owner_kind, owner_id, product_id) DO UPDATE SET qty=EXCLUDED.qty, updated_at=NOW()`,
		string(balance.OwnerKind), balance.OwnerID, balance.ProductID, balance.Qty)
	return err
}

func (p *txPort) InsertMovement(ctx context.Context, movement Movement) (int64, error) {
	var id int64
	err := p.tx.QueryRow(ctx, `INSERT INTO stock_movements (code, movement_type, owner_kind, owner_id, product_id, qty_change, balance_qty, ref_module, ref_id, note, shortfall, posted_at, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13) RETURNING id`,
		movement.Code, string(movement.Type), string(movement.OwnerKind), movement.OwnerID, movement.ProductID,
		movement.QtyChange, movement.Balance, movement.RefModule, nullString(movement.RefID), movement.Note,
		movement.Shortfall, movement.PostedAt, nullInt(movement.CreatedBy)).Scan(&id)
	return id, err
}

func scanMovement(rows pgx.Rows) (Movement, error) {
	var m Movement
	var mtype, kind string
	var refID, createdBy any
	if err := rows.Scan(&m.ID, &m.Code, &mtype, &kind, &m.OwnerID, &m.ProductID, &m.QtyChange, &m.Balance,
		&m.RefModule, &refID, &m.Note, &m.Shortfall, &m.PostedAt, &createdBy); err != nil {
		return Movement{}, err
	}
	m.Type = MovementType(mtype)
	m.OwnerKind = OwnerKind(kind)
	if s, ok := refID.(string); ok {
		m.RefID = s
	}
	if v, ok := createdBy.(int64); ok {
		m.CreatedBy = v
	}
	return m, nil
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
