package kpi

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

// Repository fetches KPI inputs from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FetchInputs gathers the raw counts for one agent over [from, to). The three
// source queries are independent and run concurrently.
func (r *Repository) FetchInputs(ctx context.Context, agentID int64, from, to time.Time) (Inputs, error) {
	var in Inputs
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return r.pool.QueryRow(ctx, `SELECT COUNT(*), COUNT(*) FILTER (WHERE outcome='SUCCESSFUL')
FROM agent_visits WHERE agent_id=$1 AND visited_at >= $2 AND visited_at < $3`,
			agentID, from, to).Scan(&in.Visits, &in.SuccessfulVisits)
	})
	g.Go(func() error {
		return r.pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(total),0)
FROM invoices WHERE agent_id=$1 AND is_synced AND created_at >= $2 AND created_at < $3`,
			agentID, from, to).Scan(&in.InvoiceCount, &in.SalesValue)
	})
	g.Go(func() error {
		return r.pool.QueryRow(ctx, `SELECT COALESCE(target_value,0) FROM agents WHERE id=$1`,
			agentID).Scan(&in.ValueTarget)
	})

	if err := g.Wait(); err != nil {
		return Inputs{}, err
	}
	return in, nil
}

// ActiveAgentIDs returns the agents worth warming.
func (r *Repository) ActiveAgentIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM agents WHERE active ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
