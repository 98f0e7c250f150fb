package kpi

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-sfa/meridian-sfa/internal/platform/httpx"
	"github.com/meridian-sfa/meridian-sfa/internal/rbac"
	"github.com/meridian-sfa/meridian-sfa/internal/shared"
)

// Handler serves KPI snapshots.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers KPI routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(rbac.RoleAgent, rbac.RoleSupervisor, rbac.RoleCompanyOwner))
		r.Get("/agents/{agentID}", h.agentSnapshot)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(rbac.RoleSupervisor, rbac.RoleCompanyOwner))
		r.Get("/dashboard", h.dashboard)
	})
}

func (h *Handler) agentSnapshot(w http.ResponseWriter, r *http.Request) {
	agentID, err := shared.ParseID(chi.URLParam(r, "agentID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	period, err := periodFromQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	snap, err := h.service.Snapshot(r.Context(), agentID, period)
	if err != nil {
		h.logger.Error("kpi snapshot", slog.Int64("agent_id", agentID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, snap)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	period, err := periodFromQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	raw := strings.Split(r.URL.Query().Get("agents"), ",")
	var agentIDs []int64
	for _, part := range raw {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "agents must be a comma-separated id list")
			return
		}
		agentIDs = append(agentIDs, id)
	}
	if len(agentIDs) == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "at least one agent id required")
		return
	}
	snaps, err := h.service.Dashboard(r.Context(), agentIDs, period)
	if err != nil {
		h.logger.Error("kpi dashboard", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"period": period.Key(), "items": snaps})
}

func periodFromQuery(r *http.Request) (shared.Period, error) {
	key := r.URL.Query().Get("period")
	if key == "" {
		return shared.CurrentPeriod(time.Now()), nil
	}
	return shared.ParsePeriod(key)
}
