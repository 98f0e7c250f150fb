package returns

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

// Handler exposes return and damage registration over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   rbac.Middleware
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers return routes. Agents record against their own stock;
// warehouse managers record on an agent's behalf when goods arrive back.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(rbac.RoleWarehouse, rbac.RoleSupervisor, rbac.RoleCompanyOwner))
		r.Get("/", h.listReturns)
		r.Get("/damages", h.listDamages)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(rbac.RoleAgent, rbac.RoleWarehouse, rbac.RoleCompanyOwner))
		r.Post("/", h.recordReturn)
		r.Post("/damages", h.recordDamage)
	})
}

type returnPayload struct {
	AgentID     int64   `json:"agent_id"`
	ProductID   int64   `json:"product_id"`
	WarehouseID int64   `json:"warehouse_id"`
	Qty         float64 `json:"qty"`
	Value       float64 `json:"value"`
}

func (h *Handler) recordReturn(w http.ResponseWriter, r *http.Request) {
	var payload returnPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	input := ReturnInput{
		AgentID:     payload.AgentID,
		ProductID:   payload.ProductID,
		WarehouseID: payload.WarehouseID,
		Qty:         payload.Qty,
		Value:       payload.Value,
	}
	// Agents record against themselves; the payload's agent_id is not trusted.
	if actor.HasRole(rbac.RoleAgent) {
		input.AgentID = actor.AgentID
	}
	ret, err := h.service.RecordReturn(r.Context(), actor.UserID, input)
	if err != nil {
		h.logger.Error("record return", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ret)
}

type damagePayload struct {
	AgentID   int64   `json:"agent_id"`
	ProductID int64   `json:"product_id"`
	Qty       float64 `json:"qty"`
	Note      string  `json:"note"`
}

func (h *Handler) recordDamage(w http.ResponseWriter, r *http.Request) {
	var payload damagePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	input := DamageInput{
		AgentID:   payload.AgentID,
		ProductID: payload.ProductID,
		Qty:       payload.Qty,
		Note:      payload.Note,
	}
	if actor.HasRole(rbac.RoleAgent) {
		input.AgentID = actor.AgentID
	}
	damage, err := h.service.RecordDamage(r.Context(), actor.UserID, input)
	if err != nil {
		h.logger.Error("record damage", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, damage)
}

func (h *Handler) listReturns(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.service.ListReturns(r.Context(), filter)
	if err != nil {
		h.logger.Error("list returns", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) listDamages(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.service.ListDamages(r.Context(), filter)
	if err != nil {
		h.logger.Error("list damages", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func parseFilter(r *http.Request) (ListFilter, error) {
	q := r.URL.Query()
	filter := ListFilter{}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))
	if raw := q.Get("agent_id"); raw != "" {
		id, err := shared.ParseID(raw)
		if err != nil {
			return ListFilter{}, err
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
	return filter, nil
}
