package inventory

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

// Handler exposes stock balances, the movement journal and manual adjustments.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   rbac.Middleware
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(rbac.RoleAgent, rbac.RoleWarehouse, rbac.RoleSupervisor, rbac.RoleCompanyOwner))
		r.Get("/balances", h.balances)
		r.Get("/movements", h.movements)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(rbac.RoleWarehouse, rbac.RoleCompanyOwner))
		r.Post("/adjustments", h.adjust)
	})
}

func (h *Handler) balances(w http.ResponseWriter, r *http.Request) {
	filter, err := h.ownerFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.service.ListBalances(r.Context(), BalanceFilter{
		OwnerKind: filter.OwnerKind, OwnerID: filter.OwnerID, ProductID: filter.ProductID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) movements(w http.ResponseWriter, r *http.Request) {
	filter, err := h.ownerFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	mf := MovementFilter{OwnerKind: filter.OwnerKind, OwnerID: filter.OwnerID, ProductID: filter.ProductID, Limit: limit}
	if raw := q.Get("from"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			mf.From = ts
		}
	}
	if raw := q.Get("to"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			mf.To = ts
		}
	}
	items, err := h.service.ListMovements(r.Context(), mf)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

type adjustPayload struct {
	Code      string  `json:"code"`
	OwnerID   int64   `json:"owner_id"`
	ProductID int64   `json:"product_id"`
	QtyChange float64 `json:"qty_change"`
	Note      string  `json:"note"`
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	var payload adjustPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	movement, err := h.service.PostAdjustment(r.Context(), MovementInput{
		Code:      payload.Code,
		OwnerID:   payload.OwnerID,
		ProductID: payload.ProductID,
		QtyChange: payload.QtyChange,
		RefModule: "INVENTORY",
		Note:      payload.Note,
		ActorID:   actor.UserID,
	})
	if err != nil {
		h.logger.Error("post adjustment", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

type ownerFilter struct {
	OwnerKind OwnerKind
	OwnerID   int64
	ProductID int64
}

// ownerFilter reads the common owner query params. Agents are pinned to their
// own held stock regardless of what they ask for.
func (h *Handler) ownerFilter(r *http.Request) (ownerFilter, error) {
	q := r.URL.Query()
	filter := ownerFilter{OwnerKind: OwnerKind(q.Get("owner_kind"))}
	if raw := q.Get("owner_id"); raw != "" {
		id, err := shared.ParseID(raw)
		if err != nil {
			return ownerFilter{}, err
		}
		filter.OwnerID = id
	}
	if raw := q.Get("product_id"); raw != "" {
		id, err := shared.ParseID(raw)
		if err != nil {
			return ownerFilter{}, err
		}
		filter.ProductID = id
	}
	actor := shared.ActorFromContext(r.Context())
	if actor.HasRole(rbac.RoleAgent) && !actor.HasRole(rbac.RoleWarehouse) && !actor.HasRole(rbac.RoleSupervisor) && !actor.HasRole(rbac.RoleCompanyOwner) {
		filter.OwnerKind = OwnerAgent
		filter.OwnerID = actor.AgentID
	}
	return filter, nil
}
