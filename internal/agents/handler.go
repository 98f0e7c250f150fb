package agents

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-sfa/meridian-sfa/internal/platform/httpx"
	"github.com/meridian-sfa/meridian-sfa/internal/rbac"
	"github.com/meridian-sfa/meridian-sfa/internal/shared"
)

// Handler manages agent master data endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers agent routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(rbac.RoleSupervisor, rbac.RoleCompanyOwner, rbac.RoleITAdmin))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Post("/", h.create)
		r.Post("/{id}/deactivate", h.deactivate)
		r.Put("/{id}/targets", h.updateTargets)
		r.Put("/{id}/capabilities", h.updateCapabilities)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	items, err := h.service.List(r.Context(), ListFilter{
		Region:     q.Get("region"),
		ActiveOnly: q.Get("active") == "true",
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		h.logger.Error("list agents", slog.Any("error", err))
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
	agent, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, agent)
}

type createPayload struct {
	UserID       int64        `json:"user_id"`
	Name         string       `json:"name"`
	Phone        string       `json:"phone"`
	Region       string       `json:"region"`
	Capabilities Capabilities `json:"capabilities"`
	TargetValue  float64      `json:"target_value"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var payload createPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	agent, err := h.service.Create(r.Context(), actor.UserID, CreateInput{
		UserID:       payload.UserID,
		Name:         payload.Name,
		Phone:        payload.Phone,
		Region:       payload.Region,
		Capabilities: payload.Capabilities,
		TargetValue:  payload.TargetValue,
	})
	if err != nil {
		h.logger.Error("create agent", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, agent)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := shared.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if err := h.service.Deactivate(r.Context(), id, actor.UserID); err != nil {
		h.logger.Error("deactivate agent", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "active": false})
}

type targetsPayload struct {
	TargetValue float64 `json:"target_value"`
}

func (h *Handler) updateTargets(w http.ResponseWriter, r *http.Request) {
	id, err := shared.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var payload targetsPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if err := h.service.UpdateTargets(r.Context(), id, actor.UserID, payload.TargetValue); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "target_value": payload.TargetValue})
}

func (h *Handler) updateCapabilities(w http.ResponseWriter, r *http.Request) {
	id, err := shared.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var caps Capabilities
	if err := httpx.DecodeJSON(r, &caps); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if err := h.service.UpdateCapabilities(r.Context(), id, actor.UserID, caps); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "capabilities": caps})
}
