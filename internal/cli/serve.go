package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/classlight/quiz-service/internal/auth"
	"github.com/classlight/quiz-service/internal/config"
	"github.com/classlight/quiz-service/internal/handlers"
	"github.com/classlight/quiz-service/internal/repositories"
	"github.com/classlight/quiz-service/internal/services"
	"github.com/classlight/quiz-service/internal/store"
	"github.com/classlight/quiz-service/internal/utils"
	"github.com/classlight/quiz-service/pkg"
)

// NewServeCmd builds the CLI subcommand to start the server.
func NewServeCmd(port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the quiz service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *port)
		},
	}
}

func runServer(ctx context.Context, portFlag string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	var logger utils.Logger
	if cfg.Environment == "production" {
		logger = utils.NewDefaultLogger()
	} else {
		logger = utils.NewDevelopmentLogger()
	}
	slogger := utils.ToSlogLogger(logger)

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Port
	}

	kv, cleanup, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	repo, err := repositories.NewRepository(ctx, kv)
	if err != nil {
		return fmt.Errorf("failed to load repositories: %w", err)
	}

	publisher, err := cfg.Events.CreateEventPublisher(slogger)
	if err != nil {
		return fmt.Errorf("failed to create event publisher: %w", err)
	}
	defer publisher.Close()

	validator := utils.NewValidator()

	quizService := services.NewQuizService(repo, slogger, validator, publisher)
	attemptService := services.NewAttemptService(repo, slogger, publisher)
	analyticsService := services.NewAnalyticsService(repo, slogger)
	defer attemptService.Shutdown()

	var verifier auth.TokenVerifier
	if cfg.Casdoor.Enabled() {
		verifier = auth.NewCasdoorVerifier(cfg.Casdoor)
	} else {
		logger.Warn("Casdoor not configured, trusting identity headers")
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.LoggerMiddleware(logger))

	handlerManager := handlers.NewHandlerManager(quizService, attemptService, analyticsService, logger)
	handlerManager.SetupRoutes(router, verifier)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("Starting quiz service", "port", finalPort, "store", cfg.StoreBackend)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("Shutting down server")
	case <-ctx.Done():
		logger.Info("Context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildStore selects the persistence substrate from configuration.
// The returned cleanup closes any underlying connections.
func buildStore(cfg *config.Config) (store.KV, func(), error) {
	switch cfg.StoreBackend {
	case "redis":
		client, err := pkg.NewRedisClient(cfg)
		if err != nil {
			return nil, nil, err
		}
		return store.NewRedisKV(client), func() { client.Close() }, nil
	case "postgres":
		db, err := pkg.InitDatabase(cfg)
		if err != nil {
			return nil, nil, err
		}
		kv, err := store.NewPostgresKV(db)
		if err != nil {
			return nil, nil, err
		}
		return kv, func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}, nil
	case "memory":
		return store.NewMemoryKV(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
