package consumer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceReader struct {
	msgs      []kafka.Message
	committed []int64
	closed    bool
}

func (r *sliceReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		return kafka.Message{}, context.Canceled
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *sliceReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *sliceReader) Close() error {
	r.closed = true
	return nil
}

type memDeduper struct {
	seen map[string]bool
	err  error
}

func (d *memDeduper) Key(topic string, partition int, offset int64) string {
	return fmt.Sprintf("%s:%d:%d", topic, partition, offset)
}

func (d *memDeduper) Seen(_ context.Context, key string) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	was := d.seen[key]
	d.seen[key] = true
	return was, nil
}

type recorder struct {
	handled []int64
	failAt  int64
}

func (r *recorder) Handle(_ context.Context, msg kafka.Message) error {
	r.handled = append(r.handled, msg.Offset)
	if msg.Offset == r.failAt {
		return errors.New("boom")
	}
	return nil
}

func TestRunHandlesCommitsAndSkipsDuplicates(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reader := &sliceReader{msgs: []kafka.Message{
		{Topic: "t", Offset: 1},
		{Topic: "t", Offset: 2},
		{Topic: "t", Offset: 1},
	}}
	h := &recorder{failAt: 2}
	c := New(log, "test", reader, &memDeduper{seen: map[string]bool{}}, h)

	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, []int64{1, 2}, h.handled)
	assert.Equal(t, []int64{1, 2, 1}, reader.committed, "failed and duplicate messages are committed too")
	assert.True(t, reader.closed)
}

func TestRunLeavesMessageUncommittedWhenDedupeFails(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reader := &sliceReader{msgs: []kafka.Message{{Topic: "t", Offset: 7}}}
	h := &recorder{}
	c := New(log, "test", reader, &memDeduper{seen: map[string]bool{}, err: errors.New("redis down")}, h)

	require.NoError(t, c.Run(context.Background()))
	assert.Empty(t, h.handled)
	assert.Empty(t, reader.committed)
}

func TestHeaderValue(t *testing.T) {
	h := []kafka.Header{{Key: "event_type", Value: []byte("OrderPlaced")}}
	assert.Equal(t, "OrderPlaced", HeaderValue(h, "event_type"))
	assert.Empty(t, HeaderValue(h, "traceparent"))
}
