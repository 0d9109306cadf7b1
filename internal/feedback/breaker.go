package feedback

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"debate_room/internal/apperror"
	"debate_room/internal/metrics"
)

// BreakerSettings 斷路器與逾時設定
type BreakerSettings struct {
	Name        string
	MaxFailures uint32        // 連續失敗幾次後開路
	OpenTimeout time.Duration // 開路後多久進入半開
	CallTimeout time.Duration // 單次呼叫逾時，0 表示不設
}

func newBreaker(settings BreakerSettings, logger *slog.Logger) *gobreaker.CircuitBreaker {
	maxFailures := settings.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("feedback circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			metrics.CircuitBreakerStateChanges.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
}

func callWithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// guardedProvider 以斷路器與逾時保護 Provider；任何失敗都轉成 ErrProviderUnavailable
type guardedProvider struct {
	next    Provider
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
}

// GuardProvider 包裝 Provider
func GuardProvider(next Provider, settings BreakerSettings, logger *slog.Logger) Provider {
	if settings.Name == "" {
		settings.Name = "facilitator"
	}
	return &guardedProvider{next: next, cb: newBreaker(settings, logger), timeout: settings.CallTimeout}
}

func (g *guardedProvider) Generate(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := callWithTimeout(ctx, g.timeout)
	defer cancel()

	out, err := g.cb.Execute(func() (interface{}, error) {
		return g.next.Generate(ctx, req)
	})
	if err != nil {
		return Response{}, apperror.Wrap(apperror.ErrProviderUnavailable, err)
	}
	return out.(Response), nil
}

// Ready 轉交給被包裝的提供者
func (g *guardedProvider) Ready(ctx context.Context) error {
	if rc, ok := g.next.(ReadinessChecker); ok {
		return rc.Ready(ctx)
	}
	return nil
}

type guardedAnalyzer struct {
	next    Analyzer
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
}

// GuardAnalyzer 包裝 Analyzer
func GuardAnalyzer(next Analyzer, settings BreakerSettings, logger *slog.Logger) Analyzer {
	if settings.Name == "" {
		settings.Name = "language"
	}
	return &guardedAnalyzer{next: next, cb: newBreaker(settings, logger), timeout: settings.CallTimeout}
}

func (g *guardedAnalyzer) Analyze(ctx context.Context, speaker, statement string) (Response, error) {
	ctx, cancel := callWithTimeout(ctx, g.timeout)
	defer cancel()

	out, err := g.cb.Execute(func() (interface{}, error) {
		return g.next.Analyze(ctx, speaker, statement)
	})
	if err != nil {
		return Response{}, apperror.Wrap(apperror.ErrProviderUnavailable, err)
	}
	return out.(Response), nil
}

func (g *guardedAnalyzer) Ready(ctx context.Context) error {
	if rc, ok := g.next.(ReadinessChecker); ok {
		return rc.Ready(ctx)
	}
	return nil
}
