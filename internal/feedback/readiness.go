package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// WaitReady 以指數退避輪詢每個提供者，直到全部就緒或 ctx 結束
func WaitReady(ctx context.Context, logger *slog.Logger, checkers ...ReadinessChecker) error {
	for i, checker := range checkers {
		if checker == nil {
			continue
		}
		backoff := 100 * time.Millisecond
		for {
			err := checker.Ready(ctx)
			if err == nil {
				break
			}
			logger.Info("waiting for feedback provider", "provider", i, "error", err, "retry_in", backoff)

			select {
			case <-ctx.Done():
				return fmt.Errorf("provider %d not ready: %w", i, err)
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
		}
	}
	return nil
}
