package llm

import (
	"context"
	"log/slog"
	"time"
)

// LoggingMiddleware logs each provider call: the request at debug level, the
// outcome at debug on success and warn on failure.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next CompleteFunc) CompleteFunc {
		return func(ctx context.Context, req Request) (*Response, error) {
			log := logger.With("provider", req.Provider, "model", req.Model)
			log.Debug("llm request",
				"messages", len(req.Messages),
				"tools", len(req.ToolDefs),
			)

			start := time.Now()
			resp, err := next(ctx, req)
			elapsed := time.Since(start).Milliseconds()

			if err != nil {
				log.Warn("llm request failed", "duration_ms", elapsed, "error", err)
				return nil, err
			}
			if resp == nil {
				log.Warn("llm request returned no response", "duration_ms", elapsed)
				return nil, nil
			}
			log.Debug("llm response",
				"id", resp.ID,
				"candidates", len(resp.Candidates),
				"input_tokens", resp.Usage.InputTokens,
				"output_tokens", resp.Usage.OutputTokens,
				"duration_ms", elapsed,
			)
			return resp, nil
		}
	}
}
