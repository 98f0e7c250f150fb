package agents

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-sfa/meridian-sfa/internal/shared"
)

// Repository persists agents in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const agentColumns = `id, user_id, name, COALESCE(phone,''), COALESCE(region,''),
can_give_discounts, can_add_clients, can_process_returns,
COALESCE(target_value,0), active, last_lat, last_lng, last_seen_at, created_at`

// Create inserts an agent.
func (r *Repository) Create(ctx context.Context, agent Agent) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO agents (user_id, name, phone, region,
can_give_discounts, can_add_clients, can_process_returns, target_value, active, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,true,NOW()) RETURNING id`,
		agent.UserID, agent.Name, agent.Phone, agent.Region,
		agent.Capabilities.CanGiveDiscounts, agent.Capabilities.CanAddClients, agent.Capabilities.CanProcessReturns,
		agent.TargetValue).Scan(&id)
	return id, err
}

// Get fetches one agent.
func (r *Repository) Get(ctx context.Context, id int64) (Agent, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE id=$1`, id)
	agent, err := scanAgent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Agent{}, shared.ErrNotFound
		}
		return Agent{}, err
	}
	return agent, nil
}

// List returns agents matching the filter.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Agent, error) {
	page := shared.NormalizePagination(filter.Limit, filter.Offset)
	rows, err := r.pool.Query(ctx, `SELECT `+agentColumns+` FROM agents
WHERE ($1=''::text OR region=$1) AND (NOT $2::bool OR active)
ORDER BY name ASC
LIMIT $3 OFFSET $4`, filter.Region, filter.ActiveOnly, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, agent)
	}
	return out, rows.Err()
}

// Deactivate clears the active flag. Rows never leave the table.
func (r *Repository) Deactivate(ctx context.Context, id int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE agents SET active=false WHERE id=$1 AND active`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateTargets sets the period value target.
func (r *Repository) UpdateTargets(ctx context.Context, id int64, targetValue float64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE agents SET target_value=$2 WHERE id=$1`, id, targetValue)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// UpdateCapabilities replaces the capability flags.
func (r *Repository) UpdateCapabilities(ctx context.Context, id int64, caps Capabilities) error {
	tag, err := r.pool.Exec(ctx, `UPDATE agents SET can_give_discounts=$2, can_add_clients=$3, can_process_returns=$4 WHERE id=$1`,
		id, caps.CanGiveDiscounts, caps.CanAddClients, caps.CanProcessReturns)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetLastLocation records the newest known position. Satisfies the sync
// package's persister port; best effort by contract.
func (r *Repository) SetLastLocation(ctx context.Context, agentID int64, lat, lng float64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE agents SET last_lat=$2, last_lng=$3, last_seen_at=$4
WHERE id=$1 AND (last_seen_at IS NULL OR last_seen_at < $4)`, agentID, lat, lng, at)
	return err
}

func scanAgent(row pgx.Row) (Agent, error) {
	var a Agent
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Phone, &a.Region,
		&a.Capabilities.CanGiveDiscounts, &a.Capabilities.CanAddClients, &a.Capabilities.CanProcessReturns,
		&a.TargetValue, &a.Active, &a.LastLat, &a.LastLng, &a.LastSeenAt, &a.CreatedAt)
	return a, err
}
