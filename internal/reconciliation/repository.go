package reconciliation

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-sfa/meridian-sfa/internal/platform/db"
	"github.com/meridian-sfa/meridian-sfa/internal/shared"
)

// ErrOpenCycleExists indicates the agent already has an unfinished record for
// the period.
var ErrOpenCycleExists = errors.New("reconciliation: open cycle exists")

// Repository persists reconciliation records in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	CreatePending(ctx context.Context, agentID int64, period string, cycle int) (int64, error)
	TransitionStatus(ctx context.Context, id int64, from, to Status) (bool, error)
	SetSubmission(ctx context.Context, id int64, snap Snapshot, cashCollected, variance float64, submittedBy int64, submittedAt time.Time) error
	SetApproval(ctx context.Context, id int64, approvedBy int64, approvedAt time.Time) error
	SetDispute(ctx context.Context, id int64, disputedBy int64, disputedAt time.Time, notes string) error
	MaxCycle(ctx context.Context, agentID int64, period string) (int, error)
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const recColumns = `id, agent_id, period, cycle, status, total_loaded, total_sold, total_returned,
cash_collected, expected_cash, variance,
COALESCE(submitted_by,0), COALESCE(submitted_at,'epoch'), COALESCE(approved_by,0), COALESCE(approved_at,'epoch'),
COALESCE(disputed_by,0), COALESCE(disputed_at,'epoch'), COALESCE(notes,''), created_at`

// Get fetches one record.
func (r *Repository) Get(ctx context.Context, id int64) (Reconciliation, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+recColumns+` FROM reconciliations WHERE id=$1`, id)
	rec, err := scanRec(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Reconciliation{}, shared.ErrNotFound
		}
		return Reconciliation{}, err
	}
	return rec, nil
}

// List returns records matching the filter, newest cycle first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Reconciliation, error) {
	page := shared.NormalizePagination(filter.Limit, filter.Offset)
	rows, err := r.pool.Query(ctx, `SELECT `+recColumns+` FROM reconciliations
WHERE ($1::bigint=0 OR agent_id=$1) AND ($2=''::text OR period=$2) AND ($3=''::text OR status=$3)
ORDER BY period DESC, agent_id ASC, cycle DESC
LIMIT $4 OFFSET $5`, filter.AgentID, filter.Period, string(filter.Status), page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Reconciliation
	for rows.Next() {
		rec, err := scanRec(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ActiveAgentIDs returns ids of agents that participate in settlement.
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

func (t *txRepo) CreatePending(ctx context.Context, agentID int64, period string, cycle int) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO reconciliations (agent_id, period, cycle, status, created_at)
VALUES ($1,$2,$3,$4,NOW()) RETURNING id`, agentID, period, cycle, string(StatusPending)).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrOpenCycleExists
		}
		return 0, err
	}
	return id, nil
}

// TransitionStatus performs the compare-and-set guard. The caller decides what
// losing the race means.
func (t *txRepo) TransitionStatus(ctx context.Context, id int64, from, to Status) (bool, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE reconciliations SET status=$3 WHERE id=$1 AND status=$2`,
		id, string(from), string(to))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txRepo) SetSubmission(ctx context.Context, id int64, snap Snapshot, cashCollected, variance float64, submittedBy int64, submittedAt time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE reconciliations
SET total_loaded=$2, total_sold=$3, total_returned=$4, expected_cash=$5, cash_collected=$6, variance=$7,
    submitted_by=$8, submitted_at=$9
WHERE id=$1`, id, snap.TotalLoaded, snap.TotalSold, snap.TotalReturned, snap.ExpectedCash, cashCollected, variance, submittedBy, submittedAt)
	return err
}

func (t *txRepo) SetApproval(ctx context.Context, id int64, approvedBy int64, approvedAt time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE reconciliations SET approved_by=$2, approved_at=$3 WHERE id=$1`, id, approvedBy, approvedAt)
	return err
}

func (t *txRepo) SetDispute(ctx context.Context, id int64, disputedBy int64, disputedAt time.Time, notes string) error {
	_, err := t.tx.Exec(ctx, `UPDATE reconciliations SET disputed_by=$2, disputed_at=$3, notes=$4 WHERE id=$1`, id, disputedBy, disputedAt, notes)
	return err
}

func (t *txRepo) MaxCycle(ctx context.Context, agentID int64, period string) (int, error) {
	var cycle int
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(MAX(cycle),0) FROM reconciliations WHERE agent_id=$1 AND period=$2`,
		agentID, period).Scan(&cycle)
	return cycle, err
}

func scanRec(row pgx.Row) (Reconciliation, error) {
	var rec Reconciliation
	var status string
	err := row.Scan(&rec.ID, &rec.AgentID, &rec.Period, &rec.Cycle, &status,
		&rec.TotalLoaded, &rec.TotalSold, &rec.TotalReturned,
		&rec.CashCollected, &rec.ExpectedCash, &rec.Variance,
		&rec.SubmittedBy, &rec.SubmittedAt, &rec.ApprovedBy, &rec.ApprovedAt,
		&rec.DisputedBy, &rec.DisputedAt, &rec.Notes, &rec.CreatedAt)
	if err != nil {
		return Reconciliation{}, err
	}
	rec.Status = Status(status)
	return rec, nil
}
