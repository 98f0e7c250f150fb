package stockload

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-sfa/meridian-sfa/internal/platform/httpx"
	"github.com/meridian-sfa/meridian-sfa/internal/rbac"
	"github.com/meridian-sfa/meridian-sfa/internal/shared"
)

// Handler exposes the stock load workflow over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   rbac.Middleware
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers stock load routes. Agents request loads for
// themselves, warehouse managers request on an agent's behalf and release,
// supervisors approve or reject.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(rbac.RoleWarehouse, rbac.RoleSupervisor, rbac.RoleCompanyOwner))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(rbac.RoleAgent, rbac.RoleWarehouse, rbac.RoleCompanyOwner))
		r.Post("/", h.request)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(rbac.RoleWarehouse, rbac.RoleCompanyOwner))
		r.Post("/{id}/release", h.release)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(rbac.RoleSupervisor, rbac.RoleCompanyOwner))
		r.Post("/{id}/approve", h.approve)
		r.Post("/{id}/reject", h.reject)
	})
}

type linePayload struct {
	ProductID int64   `json:"product_id"`
	Qty       float64 `json:"qty"`
}

type requestPayload struct {
	AgentID     int64         `json:"agent_id"`
	WarehouseID int64         `json:"warehouse_id"`
	Note        string        `json:"note"`
	Lines       []linePayload `json:"lines"`
}

func (h *Handler) request(w http.ResponseWriter, r *http.Request) {
	var payload requestPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	input := RequestInput{
		AgentID:     payload.AgentID,
		WarehouseID: payload.WarehouseID,
		RequestedBy: actor.UserID,
		Note:        payload.Note,
	}
	// Agents request for themselves; the payload's agent_id is not trusted.
	if actor.HasRole(rbac.RoleAgent) {
		input.AgentID = actor.AgentID
	}
	for _, line := range payload.Lines {
		input.Lines = append(input.Lines, LineInput{ProductID: line.ProductID, Qty: line.Qty})
	}
	load, err := h.service.Request(r.Context(), input)
	if err != nil {
		h.logger.Error("request stock load", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, load)
}

type decisionPayload struct {
	Decisions []linePayload `json:"decisions"`
}

func (p decisionPayload) toDecisions() []QuantityDecision {
	out := make([]QuantityDecision, 0, len(p.Decisions))
	for _, d := range p.Decisions {
		out = append(out, QuantityDecision{ProductID: d.ProductID, Qty: d.Qty})
	}
	return out
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "approve stock load", func(id, actorID int64, decisions []QuantityDecision) error {
		return h.service.Approve(r.Context(), id, actorID, decisions)
	})
}

func (h *Handler) release(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "release stock load", func(id, actorID int64, decisions []QuantityDecision) error {
		return h.service.Release(r.Context(), id, actorID, decisions)
	})
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, what string, apply func(id, actorID int64, decisions []QuantityDecision) error) {
	id, err := shared.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var payload decisionPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if err := apply(id, actor.UserID, payload.toDecisions()); err != nil {
		h.logger.Error(what, slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	load, items, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"load": load, "items": items})
}

type rejectPayload struct {
	Reason string `json:"reason"`
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	id, err := shared.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var payload rejectPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if err := h.service.Reject(r.Context(), id, actor.UserID, payload.Reason); err != nil {
		h.logger.Error("reject stock load", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "status": StatusRejected})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := shared.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	load, items, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"load": load, "items": items})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Status: Status(q.Get("status"))}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))
	if raw := q.Get("agent_id"); raw != "" {
		id, err := shared.ParseID(raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		filter.AgentID = id
	}
	if raw := q.Get("from"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.From = ts
		}
	}
	if raw := q.Get("to"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.To = ts
		}
	}
	items, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list stock loads", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}
