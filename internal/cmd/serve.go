package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"debate_room/internal/api"
	"debate_room/internal/api/handlers"
	"debate_room/internal/feedback"
	"debate_room/internal/repository"
	"debate_room/internal/service"
	"debate_room/internal/storage"
	"debate_room/pkg/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and WebSocket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	// 載入應用程式配置
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.Log)

	// 初始化資料庫連接並自動遷移
	db, err := storage.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	opts, err := feedbackOptions(cfg.Feedback)
	if err != nil {
		return err
	}
	facilitator, analyzer, checkers := buildProviders(cfg.Feedback, logger)

	// 初始化 repositories 與 services
	repos := repository.NewRepositories(db, logger)
	services := service.NewServices(repos, service.Options{
		Topics:                feedback.NewTopicCatalog(nil),
		Facilitator:           facilitator,
		Analyzer:              analyzer,
		Feedback:              opts,
		MaxConnectionsPerRoom: cfg.WebSocket.MaxConnectionsPerRoom,
		MessagesPerSecond:     cfg.WebSocket.MessagesPerSecond,
		Burst:                 cfg.WebSocket.Burst,
		Logger:                logger,
	})

	// 設置 Gin 路由
	ready := &atomic.Bool{}
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	api.SetupRoutes(r, api.Deps{
		Services:    services,
		Rooms:       repos.Rooms,
		Health:      handlers.NewHealthHandler(db, ready),
		CORSOrigins: cfg.Server.CORSOrigins,
		Logger:      logger,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 等所有遠端提供者就緒後才開始接受連線
	readyCtx, cancel := context.WithTimeout(ctx, cfg.Server.ReadyTimeout)
	err = feedback.WaitReady(readyCtx, logger, checkers...)
	cancel()
	if err != nil {
		return fmt.Errorf("feedback providers not ready: %w", err)
	}
	ready.Store(true)

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "address", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		ready.Store(false)
		logger.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
		// 讓已排程的回饋寫入完成
		return services.Sessions.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func feedbackOptions(cfg config.FeedbackConfig) (feedback.Options, error) {
	trigger, err := feedback.ParseTrigger(cfg.RoundTrigger)
	if err != nil {
		return feedback.Options{}, err
	}
	return feedback.Options{
		RoundThreshold:          cfg.RoundThreshold,
		RoundTrigger:            trigger,
		MaxRounds:               cfg.MaxRounds,
		EnableSecondaryFeedback: cfg.EnableSecondary,
		PerStatementFeedback:    cfg.PerStatement,
		ContextSize:             cfg.ContextSize,
	}, nil
}

// buildProviders 設定 provider_url 時使用遠端代理，否則使用內建的提供者；兩者都包上斷路器
//
// 只有需要事先確認可用性的提供者會出現在回傳的 checkers 中。
func buildProviders(cfg config.FeedbackConfig, logger *slog.Logger) (feedback.Provider, feedback.Analyzer, []feedback.ReadinessChecker) {
	settings := func(name string) feedback.BreakerSettings {
		return feedback.BreakerSettings{
			Name:        name,
			MaxFailures: cfg.Breaker.MaxFailures,
			OpenTimeout: cfg.Breaker.OpenTimeout,
			CallTimeout: cfg.Timeout,
		}
	}

	var (
		provider feedback.Provider
		coach    feedback.Analyzer
		checkers []feedback.ReadinessChecker
	)
	if cfg.ProviderURL != "" {
		remote := feedback.NewHTTPProvider(cfg.ProviderURL, nil)
		provider, coach = remote, remote
		checkers = append(checkers, remote)
		logger.Info("using remote feedback provider", "url", cfg.ProviderURL)
	} else {
		provider, coach = feedback.NewPulseFacilitator(), feedback.NewLanguageCoach()
	}

	facilitator := feedback.GuardProvider(provider, settings("facilitator"), logger)
	var analyzer feedback.Analyzer
	if cfg.EnableSecondary {
		analyzer = feedback.GuardAnalyzer(coach, settings("language_coach"), logger)
	}
	return facilitator, analyzer, checkers
}
