package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/hub-backorders/internal/backorder/application"
	"github.com/dmehra2102/hub-backorders/internal/backorder/domain"
)

type LinkFinder interface {
	Find(ctx context.Context, scope domain.Scope) (domain.Link, error)
}

type Completer interface {
	Complete(ctx context.Context, req application.CompleteRequest) error
}

// Handler exposes backorder link status and the manual finalize retry.
type Handler struct {
	log       *slog.Logger
	links     LinkFinder
	completer Completer
	tracer    trace.Tracer
}

func NewHandler(log *slog.Logger, links LinkFinder, completer Completer) *Handler {
	return &Handler{
		log:       log,
		links:     links,
		completer: completer,
		tracer:    otel.Tracer("backorder-http"),
	}
}

// Routes is mounted under /backorders.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/{distributorID}/{orderCycleID}", h.getBackorder)
	r.Post("/{distributorID}/{orderCycleID}/complete", h.completeBackorder)
	return r
}

type linkResp struct {
	DistributorID string     `json:"distributor_id"`
	OrderCycleID  string     `json:"order_cycle_id"`
	UserID        string     `json:"user_id"`
	RemoteOrderID string     `json:"remote_order_id"`
	State         string     `json:"state"`
	LastError     string     `json:"last_error,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
	UnlinkedAt    *time.Time `json:"unlinked_at,omitempty"`
}

func scopeParam(r *http.Request) domain.Scope {
	return domain.Scope{
		DistributorID: chi.URLParam(r, "distributorID"),
		OrderCycleID:  chi.URLParam(r, "orderCycleID"),
	}
}

func (h *Handler) getBackorder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetBackorder")
	defer span.End()

	link, err := h.links.Find(ctx, scopeParam(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, linkResp{
		DistributorID: link.Scope.DistributorID,
		OrderCycleID:  link.Scope.OrderCycleID,
		UserID:        link.Scope.UserID,
		RemoteOrderID: link.RemoteOrderID,
		State:         string(link.State),
		LastError:     link.LastError,
		UpdatedAt:     link.UpdatedAt,
		UnlinkedAt:    link.UnlinkedAt,
	})
}

func (h *Handler) completeBackorder(w http.ResponseWriter, r *http.Request) {
	scope := scopeParam(r)
	ctx, span := h.tracer.Start(r.Context(), "RetryCompleteBackorder", trace.WithAttributes(
		attribute.String("scope", scope.String()),
	))
	defer span.End()

	link, err := h.links.Find(ctx, scope)
	if err != nil {
		h.writeError(w, err)
		return
	}
	err = h.completer.Complete(ctx, application.CompleteRequest{
		UserID:        link.Scope.UserID,
		DistributorID: scope.DistributorID,
		OrderCycleID:  scope.OrderCycleID,
		RemoteOrderID: link.RemoteOrderID,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(domain.StateFinalized), "remote_order_id": link.RemoteOrderID})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrNotLinked):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrBackorderClosed),
		errors.Is(err, domain.ErrFinalizeInProgress),
		errors.Is(err, domain.ErrLinkMismatch),
		errors.Is(err, domain.ErrVersionConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrRemoteUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", "err", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
