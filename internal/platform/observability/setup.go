package observability

import (
	"context"
	"log/slog"
	"sync"
)

// Config captures observability toggles.
type Config struct {
	Enabled bool
}

// ShutdownFunc tears down anything Setup started.
type ShutdownFunc func(context.Context) error

var (
	stateMu   sync.RWMutex
	obsLogger *slog.Logger
	obsConfig Config
)

func current() (*slog.Logger, Config) {
	stateMu.RLock()
	defer stateMu.RUnlock()
	return obsLogger, obsConfig
}

// Setup installs the logger spans and metrics are emitted to. When disabled, spans
// and metrics are still counted but not logged.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (ShutdownFunc, error) {
	stateMu.Lock()
	obsLogger = logger
	obsConfig = cfg
	stateMu.Unlock()

	if logger != nil {
		if cfg.Enabled {
			logger.InfoContext(ctx, "[OBSERVABILITY] span and metric logging enabled")
		} else {
			logger.InfoContext(ctx, "[OBSERVABILITY] disabled, counters only")
		}
	}

	return func(context.Context) error {
		stateMu.Lock()
		obsLogger = nil
		stateMu.Unlock()
		return nil
	}, nil
}
