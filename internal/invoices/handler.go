package invoices

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

// Handler exposes invoice reads and payment registration. Creation is not
// served here; invoices arrive through the sync endpoints only.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   rbac.Middleware
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(rbac.RoleAgent, rbac.RoleSupervisor, rbac.RoleCompanyOwner))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Post("/{id}/payments", h.registerPayment)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	q := r.URL.Query()
	filter := ListFilter{
		PaymentStatus: PaymentStatus(q.Get("payment_status")),
		NeedsReview:   q.Get("needs_review") == "true",
	}
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
	// Agents only ever see their own invoices.
	if actor.HasRole(rbac.RoleAgent) && !actor.HasRole(rbac.RoleSupervisor) && !actor.HasRole(rbac.RoleCompanyOwner) {
		filter.AgentID = actor.AgentID
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
		h.logger.Error("list invoices", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := shared.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, items, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if actor.HasRole(rbac.RoleAgent) && !actor.HasRole(rbac.RoleSupervisor) && !actor.HasRole(rbac.RoleCompanyOwner) && inv.AgentID != actor.AgentID {
		httpx.RespondError(w, shared.ErrAuthorization)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoice": inv, "items": items})
}

type paymentPayload struct {
	Amount float64 `json:"amount"`
}

func (h *Handler) registerPayment(w http.ResponseWriter, r *http.Request) {
	id, err := shared.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var payload paymentPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	inv, err := h.service.RegisterPayment(r.Context(), id, payload.Amount)
	if err != nil {
		h.logger.Error("register payment", slog.Int64("invoice_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}
