package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	backorder "github.com/dmehra2102/hub-backorders/internal/backorder/domain"
	"github.com/dmehra2102/hub-backorders/internal/order/domain"
	"github.com/dmehra2102/hub-backorders/pkg/consumer"
)

type Amender interface {
	Amend(ctx context.Context, o domain.Order) error
}

// OrderEvents amends the backorder of every order lifecycle event.
type OrderEvents struct {
	log     *slog.Logger
	amender Amender
}

func NewOrderEvents(log *slog.Logger, amender Amender) *OrderEvents {
	return &OrderEvents{log: log, amender: amender}
}

func (h *OrderEvents) Handle(ctx context.Context, msg kafka.Message) error {
	eventType := consumer.HeaderValue(msg.Headers, "event_type")
	if !domain.IsLifecycleEvent(eventType) {
		return nil
	}

	var ev domain.OrderChanged
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return fmt.Errorf("decode %s: %w", eventType, err)
	}
	if ev.Order.ID == "" {
		return fmt.Errorf("decode %s: missing order id", eventType)
	}

	err := h.amender.Amend(ctx, ev.Order)
	switch {
	case errors.Is(err, backorder.ErrBackorderClosed):
		h.log.Warn("order changed after backorder closed", "order_id", ev.Order.ID, "order_cycle_id", ev.Order.OrderCycleID)
		return nil
	case err != nil:
		return fmt.Errorf("amend for order %s: %w", ev.Order.ID, err)
	}
	h.log.Info("order event processed", "order_id", ev.Order.ID, "event_type", eventType, "revision", ev.Order.Revision)
	return nil
}
