package shutdown

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"
)

func WithSignals(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
}

// Hook releases one resource on shutdown.
type Hook struct {
	Name  string
	Close func(context.Context) error
}

// Run calls hooks in order, sharing one deadline. Failures are logged and
// do not stop the remaining hooks.
func Run(log *slog.Logger, timeout time.Duration, hooks ...Hook) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for _, h := range hooks {
		if err := h.Close(ctx); err != nil {
			log.Error("shutdown hook failed", "hook", h.Name, "err", err)
			continue
		}
		log.Info("shutdown hook done", "hook", h.Name)
	}
}
