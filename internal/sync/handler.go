package sync

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/meridian-sfa/meridian-sfa/internal/invoices"
	"github.com/meridian-sfa/meridian-sfa/internal/platform/httpx"
	"github.com/meridian-sfa/meridian-sfa/internal/rbac"
	"github.com/meridian-sfa/meridian-sfa/internal/shared"
)

// Handler exposes the device-facing sync endpoints.
type Handler struct {
	logger      *slog.Logger
	coordinator *Coordinator
	validate    *validator.Validate
	guard       rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, coordinator *Coordinator, guard rbac.Middleware) *Handler {
	return &Handler{logger: logger, coordinator: coordinator, validate: validator.New(), guard: guard}
}

// MountRoutes registers sync routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(rbac.RoleAgent))
		r.Post("/invoices", h.syncInvoice)
		r.Post("/invoices/batch", h.syncBatch)
		r.Post("/pings", h.syncPings)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(rbac.RoleSupervisor, rbac.RoleCompanyOwner))
		r.Get("/agents/{agentID}/last-seen", h.lastSeen)
	})
}

type invoicePayload struct {
	ClientRef     string        `json:"client_ref" validate:"required,uuid"`
	CustomerID    int64         `json:"customer_id" validate:"required"`
	Number        string        `json:"number"`
	Subtotal      float64       `json:"subtotal" validate:"gte=0"`
	Discount      float64       `json:"discount" validate:"gte=0"`
	VAT           float64       `json:"vat" validate:"gte=0"`
	Total         float64       `json:"total" validate:"gte=0"`
	PaymentStatus string        `json:"payment_status"`
	PaymentMethod string        `json:"payment_method"`
	AmountPaid    float64       `json:"amount_paid" validate:"gte=0"`
	CreatedAt     time.Time     `json:"created_at" validate:"required"`
	Lines         []InvoiceLine `json:"lines" validate:"required,min=1,dive"`
}

type invoiceResponse struct {
	ID            int64  `json:"id"`
	Number        string `json:"number"`
	ClientRef     string `json:"client_ref"`
	AlreadySynced bool   `json:"already_synced"`
	NeedsReview   bool   `json:"needs_review"`
	SyncedAt      string `json:"synced_at,omitempty"`
	Error         string `json:"error,omitempty"`
}

func (h *Handler) syncInvoice(w http.ResponseWriter, r *http.Request) {
	var payload invoicePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	input, err := h.toInput(r, payload)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.coordinator.SyncInvoice(r.Context(), input)
	if err != nil {
		h.logger.Error("sync invoice", slog.String("client_ref", payload.ClientRef), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	status := http.StatusCreated
	if result.AlreadySynced {
		status = http.StatusOK
	}
	httpx.JSON(w, status, toResponse(result))
}

func (h *Handler) syncBatch(w http.ResponseWriter, r *http.Request) {
	var payloads []invoicePayload
	if err := httpx.DecodeJSON(r, &payloads); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	inputs := make([]InvoiceSyncInput, 0, len(payloads))
	for _, payload := range payloads {
		input, err := h.toInput(r, payload)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		inputs = append(inputs, input)
	}
	results, err := h.coordinator.SyncBatch(r.Context(), inputs)
	if err != nil && errors.Is(err, shared.ErrTransientStore) {
		httpx.RespondError(w, err)
		return
	}
	out := make([]invoiceResponse, 0, len(results))
	for _, res := range results {
		out = append(out, toResponse(res))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"synced": out})
}

type pingPayload struct {
	Lat float64   `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64   `json:"lng" validate:"gte=-180,lte=180"`
	At  time.Time `json:"at" validate:"required"`
}

func (h *Handler) syncPings(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	var payloads []pingPayload
	if err := httpx.DecodeJSON(r, &payloads); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	pings := make([]Ping, 0, len(payloads))
	for _, p := range payloads {
		if err := h.validate.Struct(p); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		pings = append(pings, Ping{AgentID: actor.AgentID, Lat: p.Lat, Lng: p.Lng, At: p.At})
	}
	applied, err := h.coordinator.SyncPing(r.Context(), pings)
	if err != nil {
		h.logger.Error("sync pings", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"applied": applied, "received": len(pings)})
}

func (h *Handler) lastSeen(w http.ResponseWriter, r *http.Request) {
	agentID, err := shared.ParseID(chi.URLParam(r, "agentID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ping, err := h.coordinator.pings.Last(r.Context(), agentID)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "no location held for agent")
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ping)
}

func (h *Handler) toInput(r *http.Request, payload invoicePayload) (InvoiceSyncInput, error) {
	if err := h.validate.Struct(payload); err != nil {
		return InvoiceSyncInput{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	ref, err := uuid.Parse(payload.ClientRef)
	if err != nil {
		return InvoiceSyncInput{}, fmt.Errorf("%w: client_ref: %v", shared.ErrValidation, err)
	}
	actor := shared.ActorFromContext(r.Context())
	return InvoiceSyncInput{
		ClientRef:      ref,
		AgentID:        actor.AgentID,
		CustomerID:     payload.CustomerID,
		Number:         payload.Number,
		Subtotal:       payload.Subtotal,
		Discount:       payload.Discount,
		VAT:            payload.VAT,
		Total:          payload.Total,
		PaymentStatus:  invoices.PaymentStatus(payload.PaymentStatus),
		PaymentMethod:  invoices.PaymentMethod(payload.PaymentMethod),
		AmountPaid:     payload.AmountPaid,
		OfflineCreated: true,
		CreatedAt:      payload.CreatedAt,
		Lines:          payload.Lines,
	}, nil
}

func toResponse(res InvoiceSyncResult) invoiceResponse {
	out := invoiceResponse{
		ID:            res.Invoice.ID,
		Number:        res.Invoice.Number,
		ClientRef:     res.Invoice.ClientRef.String(),
		AlreadySynced: res.AlreadySynced,
		NeedsReview:   res.NeedsReview,
	}
	if res.Invoice.SyncedAt != nil {
		out.SyncedAt = res.Invoice.SyncedAt.UTC().Format(time.RFC3339)
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}
