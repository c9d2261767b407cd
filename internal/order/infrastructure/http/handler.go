package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	backorder "github.com/dmehra2102/hub-backorders/internal/backorder/domain"
	"github.com/dmehra2102/hub-backorders/internal/order/domain"
)

type OrderGetter interface {
	Get(ctx context.Context, id string) (domain.Order, error)
}

type Amender interface {
	Amend(ctx context.Context, o domain.Order) error
}

// Handler lets an operator replay the backorder amend of a stored order.
type Handler struct {
	log     *slog.Logger
	orders  OrderGetter
	amender Amender
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, orders OrderGetter, amender Amender) *Handler {
	return &Handler{
		log:     log,
		orders:  orders,
		amender: amender,
		tracer:  otel.Tracer("order-http"),
	}
}

// Routes is mounted under /orders.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/{orderID}/amend", h.amendOrder)

	return r
}

func (h *Handler) amendOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "orderID")
	ctx, span := h.tracer.Start(r.Context(), "AmendOrder", trace.WithAttributes(attribute.String("order_id", id)))
	defer span.End()

	o, err := h.orders.Get(ctx, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.amender.Amend(ctx, o); err != nil {
		span.RecordError(err)
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "amended", "order_id": o.ID, "revision": o.Revision})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, backorder.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, backorder.ErrBackorderClosed), errors.Is(err, backorder.ErrVersionConflict):
		status = http.StatusConflict
	case errors.Is(err, backorder.ErrRemoteUnavailable):
		status = http.StatusServiceUnavailable
	default:
		h.log.Error("amend request failed", "err", err)
	}
	http.Error(w, err.Error(), status)
}
