package ledger

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository fetches the source rows for a derivation. It never aggregates;
// summing stays in the engine so the arithmetic is testable without a store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FetchSourceRows loads everything the engine needs for one agent over
// [from, to).
func (r *Repository) FetchSourceRows(ctx context.Context, agentID int64, from, to time.Time) (SourceRows, error) {
	var rows SourceRows

	loadRows, err := r.pool.Query(ctx, `SELECT product_id, qty_change
FROM stock_movements
WHERE owner_kind='AGENT' AND owner_id=$1 AND movement_type='LOAD'
  AND posted_at >= $2 AND posted_at < $3`, agentID, from, to)
	if err != nil {
		return SourceRows{}, err
	}
	defer loadRows.Close()
	for loadRows.Next() {
		var row LoadRow
		if err := loadRows.Scan(&row.ProductID, &row.Qty); err != nil {
			return SourceRows{}, err
		}
		rows.Loads = append(rows.Loads, row)
	}
	if err := loadRows.Err(); err != nil {
		return SourceRows{}, err
	}

	// Invoice-level discount attaches to the first line so the window sum
	// counts it exactly once.
	saleRows, err := r.pool.Query(ctx, `SELECT ii.product_id, ii.qty, ii.line_total,
CASE WHEN row_number() OVER (PARTITION BY i.id ORDER BY ii.id) = 1 THEN i.discount ELSE 0 END
FROM invoice_items ii
JOIN invoices i ON i.id = ii.invoice_id
WHERE i.agent_id=$1 AND i.is_synced AND i.created_at >= $2 AND i.created_at < $3`, agentID, from, to)
	if err != nil {
		return SourceRows{}, err
	}
	defer saleRows.Close()
	for saleRows.Next() {
		var row SaleRow
		if err := saleRows.Scan(&row.ProductID, &row.Qty, &row.Value, &row.Discount); err != nil {
			return SourceRows{}, err
		}
		rows.Sales = append(rows.Sales, row)
	}
	if err := saleRows.Err(); err != nil {
		return SourceRows{}, err
	}

	returnRows, err := r.pool.Query(ctx, `SELECT product_id, qty, value
FROM returns WHERE agent_id=$1 AND created_at >= $2 AND created_at < $3`, agentID, from, to)
	if err != nil {
		return SourceRows{}, err
	}
	defer returnRows.Close()
	for returnRows.Next() {
		var row ReturnRow
		if err := returnRows.Scan(&row.ProductID, &row.Qty, &row.Value); err != nil {
			return SourceRows{}, err
		}
		rows.Returns = append(rows.Returns, row)
	}
	if err := returnRows.Err(); err != nil {
		return SourceRows{}, err
	}

	damageRows, err := r.pool.Query(ctx, `SELECT product_id, qty
FROM damages WHERE agent_id=$1 AND created_at >= $2 AND created_at < $3`, agentID, from, to)
	if err != nil {
		return SourceRows{}, err
	}
	defer damageRows.Close()
	for damageRows.Next() {
		var row DamageRow
		if err := damageRows.Scan(&row.ProductID, &row.Qty); err != nil {
			return SourceRows{}, err
		}
		rows.Damages = append(rows.Damages, row)
	}
	return rows, damageRows.Err()
}
