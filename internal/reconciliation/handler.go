package reconciliation

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-sfa/meridian-sfa/internal/platform/httpx"
	"github.com/meridian-sfa/meridian-sfa/internal/rbac"
	"github.com/meridian-sfa/meridian-sfa/internal/shared"
)

// Handler manages reconciliation endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	statement *StatementRenderer
	guard     rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, statement *StatementRenderer, guard rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, statement: statement, guard: guard}
}

// MountRoutes registers reconciliation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(rbac.RoleAgent, rbac.RoleSupervisor, rbac.RoleCompanyOwner))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Get("/{id}/statement", h.renderStatement)
		r.Post("/{id}/submit", h.submit)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(rbac.RoleSupervisor, rbac.RoleCompanyOwner))
		r.Post("/{id}/approve", h.approve)
		r.Post("/{id}/dispute", h.dispute)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	agentID, _ := strconv.ParseInt(q.Get("agent_id"), 10, 64)
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	records, err := h.service.List(r.Context(), ListFilter{
		AgentID: agentID,
		Period:  q.Get("period"),
		Status:  Status(q.Get("status")),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		h.logger.Error("list reconciliations", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": records})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := shared.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rec, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) renderStatement(w http.ResponseWriter, r *http.Request) {
	id, err := shared.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rec, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(h.statement.Render(rec)))
}

type submitPayload struct {
	CashCollected float64 `json:"cash_collected"`
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	id, err := shared.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var payload submitPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	rec, err := h.service.Submit(r.Context(), id, actor, payload.CashCollected)
	if err != nil {
		h.logger.Error("submit reconciliation", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, err := shared.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if err := h.service.Approve(r.Context(), id, actor.UserID); err != nil {
		h.logger.Error("approve reconciliation", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": StatusApproved})
}

type disputePayload struct {
	Notes string `json:"notes"`
}

func (h *Handler) dispute(w http.ResponseWriter, r *http.Request) {
	id, err := shared.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var payload disputePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	next, err := h.service.Dispute(r.Context(), id, actor.UserID, payload.Notes)
	if err != nil {
		h.logger.Error("dispute reconciliation", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, next)
}
