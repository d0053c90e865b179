package phase

import (
	"context"
	"log/slog"
	"time"

	"loom/internal/logging"
)

// PlaceholderRegistry returns a registry with a stub handler for every
// pipeline phase. Each stub logs its invocation and records a marker output;
// real collaborators replace these as the content subsystems land.
func PlaceholderRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	registry := NewRegistry()
	for _, p := range Sequence() {
		p := p
		_ = registry.Register(p, Func(func(ctx context.Context, req Request) (Result, error) {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			logger.Info("placeholder phase executed",
				logging.String(logging.FieldPhase, string(p)),
				logging.String(logging.FieldTopic, req.Topic),
			)
			return Result{
				Output: map[string]any{
					"placeholder": true,
					"executed_at": time.Now().UTC().Format(time.RFC3339),
				},
			}, nil
		}))
	}
	return registry
}
