package kafka

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	backorder "github.com/dmehra2102/hub-backorders/internal/backorder/domain"
	"github.com/dmehra2102/hub-backorders/internal/order/domain"
)

type amendFunc func(ctx context.Context, o domain.Order) error

func (f amendFunc) Amend(ctx context.Context, o domain.Order) error { return f(ctx, o) }

func message(t *testing.T, eventType string, o domain.Order) kafka.Message {
	t.Helper()
	raw, err := json.Marshal(domain.OrderChanged{Order: o})
	require.NoError(t, err)
	return kafka.Message{
		Topic:   "order.events",
		Value:   raw,
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(eventType)}},
	}
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestHandleAmendsOnLifecycleEvent(t *testing.T) {
	var got []domain.Order
	h := NewOrderEvents(discard(), amendFunc(func(_ context.Context, o domain.Order) error {
		got = append(got, o)
		return nil
	}))

	o := domain.Order{
		ID: "o1", UserID: "u1", DistributorID: "d1", OrderCycleID: "oc1",
		State: domain.StateComplete, Revision: 3,
		Items: []domain.OrderItem{{VariantID: "v1", Quantity: 2}},
	}
	require.NoError(t, h.Handle(context.Background(), message(t, domain.EventOrderAdjusted, o)))
	require.Len(t, got, 1)
	assert.Equal(t, "order:o1:3", got[0].Trigger())
	assert.Equal(t, []string{"v1"}, got[0].VariantIDs())
}

func TestHandleIgnoresOtherEvents(t *testing.T) {
	h := NewOrderEvents(discard(), amendFunc(func(context.Context, domain.Order) error {
		t.Fatal("unexpected amend")
		return nil
	}))

	require.NoError(t, h.Handle(context.Background(), message(t, "PaymentCaptured", domain.Order{ID: "o1"})))
}

func TestHandleRejectsMalformedPayload(t *testing.T) {
	h := NewOrderEvents(discard(), amendFunc(func(context.Context, domain.Order) error { return nil }))

	msg := kafka.Message{Value: []byte("{"), Headers: []kafka.Header{{Key: "event_type", Value: []byte(domain.EventOrderPlaced)}}}
	require.Error(t, h.Handle(context.Background(), msg))
	require.ErrorContains(t, h.Handle(context.Background(), message(t, domain.EventOrderPlaced, domain.Order{})), "missing order id")
}

func TestHandleToleratesClosedBackorder(t *testing.T) {
	h := NewOrderEvents(discard(), amendFunc(func(context.Context, domain.Order) error {
		return backorder.ErrBackorderClosed
	}))

	assert.NoError(t, h.Handle(context.Background(), message(t, domain.EventOrderCancelled, domain.Order{ID: "o1"})))
}

func TestHandleReturnsAmendFailure(t *testing.T) {
	h := NewOrderEvents(discard(), amendFunc(func(context.Context, domain.Order) error {
		return backorder.ErrRemoteUnavailable
	}))

	err := h.Handle(context.Background(), message(t, domain.EventOrderPlaced, domain.Order{ID: "o1"}))
	assert.ErrorIs(t, err, backorder.ErrRemoteUnavailable)
}
