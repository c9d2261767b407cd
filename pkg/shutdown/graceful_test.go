package shutdown

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunCallsEveryHook(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	var order []string
	hook := func(name string, err error) Hook {
		return Hook{Name: name, Close: func(ctx context.Context) error {
			_, ok := ctx.Deadline()
			assert.True(t, ok)
			order = append(order, name)
			return err
		}}
	}

	Run(log, time.Second, hook("http", nil), hook("kafka", errors.New("boom")), hook("postgres", nil))
	assert.Equal(t, []string{"http", "kafka", "postgres"}, order)
}
