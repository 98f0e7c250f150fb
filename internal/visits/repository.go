package visits

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-sfa/meridian-sfa/internal/platform/db"
	"github.com/meridian-sfa/meridian-sfa/internal/shared"
)

// Repository persists visits and journey plans in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateVisit inserts one visit.
func (r *Repository) CreateVisit(ctx context.Context, visit Visit) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO agent_visits (agent_id, customer_id, outcome, invoice_id, notes, lat, lng, visited_at, implausible, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW()) RETURNING id`,
		visit.AgentID, visit.CustomerID, string(visit.Outcome), visit.InvoiceID, visit.Notes,
		visit.Lat, visit.Lng, visit.VisitedAt, visit.Implausible).Scan(&id)
	return id, err
}

// ListVisits returns visits matching the filter, newest first.
func (r *Repository) ListVisits(ctx context.Context, filter VisitFilter) ([]Visit, error) {
	page := shared.NormalizePagination(filter.Limit, filter.Offset)
	rows, err := r.pool.Query(ctx, `SELECT id, agent_id, customer_id, outcome, invoice_id, COALESCE(notes,''), lat, lng, visited_at, implausible, created_at
FROM agent_visits
WHERE ($1::bigint=0 OR agent_id=$1) AND ($2::bigint=0 OR customer_id=$2) AND ($3=''::text OR outcome=$3)
  AND (NOT $4::bool OR implausible)
  AND visited_at >= COALESCE($5, '-infinity'::timestamptz) AND visited_at < COALESCE($6, 'infinity'::timestamptz)
ORDER BY visited_at DESC, id DESC
LIMIT $7 OFFSET $8`,
		filter.AgentID, filter.CustomerID, string(filter.Outcome), filter.Implausible,
		nullTime(filter.From), nullTime(filter.To), page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Visit
	for rows.Next() {
		var v Visit
		var outcome string
		if err := rows.Scan(&v.ID, &v.AgentID, &v.CustomerID, &outcome, &v.InvoiceID, &v.Notes,
			&v.Lat, &v.Lng, &v.VisitedAt, &v.Implausible, &v.CreatedAt); err != nil {
			return nil, err
		}
		v.Outcome = Outcome(outcome)
		out = append(out, v)
	}
	return out, rows.Err()
}

// CreatePlan inserts a plan with its stops.
func (r *Repository) CreatePlan(ctx context.Context, plan JourneyPlan) (JourneyPlan, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO journey_plans (agent_id, plan_date) VALUES ($1,$2) RETURNING id`,
			plan.AgentID, plan.PlanDate).Scan(&plan.ID)
		if err != nil {
			return err
		}
		for i := range plan.Stops {
			stop := &plan.Stops[i]
			stop.PlanID = plan.ID
			err = tx.QueryRow(ctx, `INSERT INTO journey_stops (plan_id, seq, customer_id, lat, lng) VALUES ($1,$2,$3,$4,$5) RETURNING id`,
				stop.PlanID, stop.Seq, stop.CustomerID, stop.Lat, stop.Lng).Scan(&stop.ID)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return JourneyPlan{}, err
	}
	return plan, nil
}

// GetPlanForDate fetches the agent's plan covering the given instant.
func (r *Repository) GetPlanForDate(ctx context.Context, agentID int64, date time.Time) (JourneyPlan, error) {
	date = date.UTC()
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	var plan JourneyPlan
	err := r.pool.QueryRow(ctx, `SELECT id, agent_id, plan_date FROM journey_plans WHERE agent_id=$1 AND plan_date=$2`,
		agentID, day).Scan(&plan.ID, &plan.AgentID, &plan.PlanDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JourneyPlan{}, shared.ErrNotFound
		}
		return JourneyPlan{}, err
	}
	stops, err := r.planStops(ctx, plan.ID)
	if err != nil {
		return JourneyPlan{}, err
	}
	plan.Stops = stops
	return plan, nil
}

// GetStop fetches a stop with its owning plan.
func (r *Repository) GetStop(ctx context.Context, stopID int64) (JourneyStop, JourneyPlan, error) {
	var stop JourneyStop
	var plan JourneyPlan
	err := r.pool.QueryRow(ctx, `SELECT s.id, s.plan_id, s.seq, s.customer_id, s.lat, s.lng, s.check_in_at, s.check_out_at,
p.id, p.agent_id, p.plan_date
FROM journey_stops s JOIN journey_plans p ON p.id = s.plan_id
WHERE s.id=$1`, stopID).Scan(&stop.ID, &stop.PlanID, &stop.Seq, &stop.CustomerID, &stop.Lat, &stop.Lng,
		&stop.CheckInAt, &stop.CheckOutAt, &plan.ID, &plan.AgentID, &plan.PlanDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JourneyStop{}, JourneyPlan{}, shared.ErrNotFound
		}
		return JourneyStop{}, JourneyPlan{}, err
	}
	return stop, plan, nil
}

// SetCheckIn stamps arrival.
func (r *Repository) SetCheckIn(ctx context.Context, stopID int64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE journey_stops SET check_in_at=$2 WHERE id=$1`, stopID, at)
	return err
}

// SetCheckOut stamps departure.
func (r *Repository) SetCheckOut(ctx context.Context, stopID int64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE journey_stops SET check_out_at=$2 WHERE id=$1`, stopID, at)
	return err
}

func (r *Repository) planStops(ctx context.Context, planID int64) ([]JourneyStop, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, plan_id, seq, customer_id, lat, lng, check_in_at, check_out_at
FROM journey_stops WHERE plan_id=$1 ORDER BY seq ASC`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var stops []JourneyStop
	for rows.Next() {
		var stop JourneyStop
		if err := rows.Scan(&stop.ID, &stop.PlanID, &stop.Seq, &stop.CustomerID, &stop.Lat, &stop.Lng,
			&stop.CheckInAt, &stop.CheckOutAt); err != nil {
			return nil, err
		}
		stops = append(stops, stop)
	}
	return stops, rows.Err()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
