package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/flowcore/automation-engine/internal/node"
	"github.com/flowcore/automation-engine/internal/node/builtin"
	"github.com/flowcore/automation-engine/internal/queue"
	"github.com/flowcore/automation-engine/internal/storage"
	"github.com/flowcore/automation-engine/internal/workflow"
	"github.com/flowcore/automation-engine/pkg/clients/email"
	"github.com/flowcore/automation-engine/pkg/clients/weather"
	"github.com/flowcore/automation-engine/pkg/db"
)

func newServeCmd() *cobra.Command {
	var bind string
	var corsOrigin string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), bind, corsOrigin)
		},
	}
	cmd.Flags().StringVar(&bind, "bind", ":8080", "address to listen on")
	cmd.Flags().StringVar(&corsOrigin, "cors-origin", "http://localhost:3003", "allowed CORS origin")
	return cmd
}

func runServe(ctx context.Context, bind, corsOrigin string) error {
	pool, err := connectDB(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	store, err := storage.New(pool)
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}
	q, err := queue.New(pool)
	if err != nil {
		return fmt.Errorf("create queue: %w", err)
	}

	workflowService, err := workflow.NewService(store, q)
	if err != nil {
		return fmt.Errorf("create workflow service: %w", err)
	}

	mainRouter := mux.NewRouter()
	apiRouter := mainRouter.PathPrefix("/api/v1").Subrouter()
	workflowService.LoadRoutes(apiRouter)

	corsHandler := handlers.CORS(
		handlers.AllowedOrigins([]string{corsOrigin}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		handlers.AllowCredentials(),
	)(mainRouter)

	srv := &http.Server{Addr: bind, Handler: corsHandler}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("starting API server", "bind", bind)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-shutdown:
		slog.Info("shutdown signal received", "signal", sig)

		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("could not stop server gracefully", "error", err)
			srv.Close()
		}
	}
	return nil
}

// connectDB reads DATABASE_URL and opens a pool with the project's
// default pool settings.
func connectDB(ctx context.Context) (*pgxpool.Pool, error) {
	dbURL, ok := os.LookupEnv("DATABASE_URL")
	if !ok {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}
	pool, err := db.Connect(ctx, db.DefaultConfig(dbURL))
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return pool, nil
}

// buildRegistry assembles the builtin node registry with its external
// client dependencies. Used by the worker command, which is the only
// command that runs the engine; serve only enqueues runs.
func buildRegistry() *node.Registry {
	registry := node.NewRegistry()
	builtin.RegisterAll(registry, builtin.Deps{
		Weather: weather.NewOpenMeteoClient(nil),
		Email:   email.NewStubClient("weather-alerts@example.com"),
	})
	return registry
}
