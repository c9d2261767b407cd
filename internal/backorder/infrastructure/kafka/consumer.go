package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/dmehra2102/hub-backorders/internal/backorder/application"
	"github.com/dmehra2102/hub-backorders/internal/backorder/domain"
	"github.com/dmehra2102/hub-backorders/pkg/consumer"
)

type LinkFinder interface {
	Find(ctx context.Context, scope domain.Scope) (domain.Link, error)
}

type Completer interface {
	Complete(ctx context.Context, req application.CompleteRequest) error
}

// OrderCycleEvents finalizes the backorder of every closed order cycle.
type OrderCycleEvents struct {
	log       *slog.Logger
	links     LinkFinder
	completer Completer
}

func NewOrderCycleEvents(log *slog.Logger, links LinkFinder, completer Completer) *OrderCycleEvents {
	return &OrderCycleEvents{log: log, links: links, completer: completer}
}

func (h *OrderCycleEvents) Handle(ctx context.Context, msg kafka.Message) error {
	if consumer.HeaderValue(msg.Headers, "event_type") != domain.EventOrderCycleClosed {
		return nil
	}

	var ev domain.OrderCycleClosed
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return fmt.Errorf("decode %s: %w", domain.EventOrderCycleClosed, err)
	}
	scope := domain.Scope{UserID: ev.UserID, DistributorID: ev.DistributorID, OrderCycleID: ev.OrderCycleID}

	link, err := h.links.Find(ctx, scope)
	if errors.Is(err, domain.ErrNotLinked) {
		h.log.Info("order cycle closed without backorder", "scope", scope.String())
		return nil
	}
	if err != nil {
		return fmt.Errorf("find backorder link %s: %w", scope, err)
	}

	// The user who opened the backorder keeps acting on it.
	userID := link.Scope.UserID
	if userID == "" {
		userID = ev.UserID
	}
	err = h.completer.Complete(ctx, application.CompleteRequest{
		UserID:        userID,
		DistributorID: ev.DistributorID,
		OrderCycleID:  ev.OrderCycleID,
		RemoteOrderID: link.RemoteOrderID,
	})
	if errors.Is(err, domain.ErrFinalizeInProgress) {
		return nil
	}
	return err
}
