package consumer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/hub-backorders/pkg/tracing"
)

// Handler processes one message. Errors are logged; the message is
// committed regardless and not redelivered.
type Handler interface {
	Handle(ctx context.Context, msg kafka.Message) error
}

type Deduper interface {
	Key(topic string, partition int, offset int64) string
	Seen(ctx context.Context, key string) (bool, error)
}

type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	log     *slog.Logger
	reader  Reader
	idem    Deduper
	handler Handler
	tracer  trace.Tracer
	name    string
}

func NewReader(brokers []string, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
}

func New(log *slog.Logger, name string, reader Reader, idem Deduper, handler Handler) *Consumer {
	return &Consumer{
		log:     log.With("consumer", name),
		reader:  reader,
		idem:    idem,
		handler: handler,
		tracer:  otel.Tracer(name),
		name:    name,
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		c.process(ctx, msg)
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	key := c.idem.Key(msg.Topic, msg.Partition, msg.Offset)
	seen, err := c.idem.Seen(ctx, key)
	if err != nil {
		c.log.Error("idempotency check failed", "key", key, "err", err)
		return
	}
	if seen {
		c.log.Info("duplicate message skipped", "key", key)
		c.commit(ctx, msg)
		return
	}

	msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
	msgCtx, span := c.tracer.Start(msgCtx, "Consume "+msg.Topic, trace.WithSpanKind(trace.SpanKindConsumer))
	if err := c.handler.Handle(msgCtx, msg); err != nil {
		span.RecordError(err)
		c.log.Error("message handling failed",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset,
			"event_type", HeaderValue(msg.Headers, "event_type"), "err", err)
	}
	span.End()
	c.commit(ctx, msg)
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.log.Error("commit failed", "offset", msg.Offset, "err", err)
	}
}

func HeaderValue(h []kafka.Header, key string) string {
	for _, hh := range h {
		if hh.Key == key {
			return string(hh.Value)
		}
	}
	return ""
}
