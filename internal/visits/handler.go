package visits

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-sfa/meridian-sfa/internal/platform/httpx"
	"github.com/meridian-sfa/meridian-sfa/internal/rbac"
	"github.com/meridian-sfa/meridian-sfa/internal/shared"
)

// Handler manages visit and journey endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers visit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(rbac.RoleAgent))
		r.Post("/", h.recordVisit)
		r.Post("/stops/{stopID}/check-in", h.checkIn)
		r.Post("/stops/{stopID}/check-out", h.checkOut)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(rbac.RoleAgent, rbac.RoleSupervisor, rbac.RoleCompanyOwner))
		r.Get("/", h.listVisits)
		r.Get("/plans", h.planForDate)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(rbac.RoleSupervisor, rbac.RoleCompanyOwner))
		r.Post("/plans", h.createPlan)
	})
}

type visitPayload struct {
	CustomerID int64     `json:"customer_id"`
	Outcome    string    `json:"outcome"`
	InvoiceID  *int64    `json:"invoice_id"`
	Notes      string    `json:"notes"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	VisitedAt  time.Time `json:"visited_at"`
}

func (h *Handler) recordVisit(w http.ResponseWriter, r *http.Request) {
	var payload visitPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	visit, err := h.service.RecordVisit(r.Context(), actor, RecordVisitInput{
		CustomerID: payload.CustomerID,
		Outcome:    Outcome(payload.Outcome),
		InvoiceID:  payload.InvoiceID,
		Notes:      payload.Notes,
		Lat:        payload.Lat,
		Lng:        payload.Lng,
		VisitedAt:  payload.VisitedAt,
	})
	if err != nil {
		h.logger.Error("record visit", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, visit)
}

func (h *Handler) listVisits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	agentID, _ := strconv.ParseInt(q.Get("agent_id"), 10, 64)
	customerID, _ := strconv.ParseInt(q.Get("customer_id"), 10, 64)
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	visits, err := h.service.ListVisits(r.Context(), VisitFilter{
		AgentID:     agentID,
		CustomerID:  customerID,
		Outcome:     Outcome(q.Get("outcome")),
		Implausible: q.Get("implausible") == "true",
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		h.logger.Error("list visits", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": visits})
}

type planPayload struct {
	AgentID  int64       `json:"agent_id"`
	PlanDate string      `json:"plan_date"`
	Stops    []StopInput `json:"stops"`
}

func (h *Handler) createPlan(w http.ResponseWriter, r *http.Request) {
	var payload planPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	planDate, err := time.Parse("2006-01-02", payload.PlanDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "plan_date must be YYYY-MM-DD")
		return
	}
	plan, err := h.service.CreatePlan(r.Context(), PlanInput{
		AgentID:  payload.AgentID,
		PlanDate: planDate,
		Stops:    payload.Stops,
	})
	if err != nil {
		h.logger.Error("create journey plan", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, plan)
}

func (h *Handler) planForDate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	agentID, _ := strconv.ParseInt(q.Get("agent_id"), 10, 64)
	if agentID == 0 {
		if actor := shared.ActorFromContext(r.Context()); actor != nil {
			agentID = actor.AgentID
		}
	}
	date := time.Now().UTC()
	if raw := q.Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
			return
		}
		date = parsed
	}
	plan, err := h.service.PlanForDate(r.Context(), agentID, date)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, plan)
}

func (h *Handler) checkIn(w http.ResponseWriter, r *http.Request) {
	h.stamp(w, r, h.service.CheckIn)
}

func (h *Handler) checkOut(w http.ResponseWriter, r *http.Request) {
	h.stamp(w, r, h.service.CheckOut)
}

func (h *Handler) stamp(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, actor *shared.Actor, stopID int64, at time.Time) error) {
	stopID, err := shared.ParseID(chi.URLParam(r, "stopID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if err := fn(r.Context(), actor, stopID, time.Now().UTC()); err != nil {
		h.logger.Error("journey stop stamp", slog.Int64("stop_id", stopID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"stop_id": stopID})
}
