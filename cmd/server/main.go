// Package main initializes and starts the liftlog API server, setting up
// configuration, logging, the database, repositories, services and handlers.
package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"github.com/atinyakov/liftlog/internal/config"
	"github.com/atinyakov/liftlog/internal/db"
	"github.com/atinyakov/liftlog/internal/logger"
	"github.com/atinyakov/liftlog/internal/repository"
	"github.com/atinyakov/liftlog/internal/server/handler/http"
	"github.com/atinyakov/liftlog/internal/service"
	"go.uber.org/zap"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	options, err := config.Parse()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}
	zapLogger := log.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	postgresDB, err := db.InitPostgres(options.DatabaseDSN)
	if err != nil {
		zapLogger.Fatal("cannot init database", zap.Error(err))
	}
	defer postgresDB.Close()

	db.StartTokenCleaner(ctx, postgresDB, time.Duration(options.CleanInterval), zapLogger)

	authRepo := repository.NewPostgresAuthRepository(postgresDB)
	workoutRepo := repository.NewPostgresWorkoutRepository(postgresDB)

	tokens := service.JWT{
		Secret: []byte(options.JWTSecret),
		Issuer: "liftlog",
		TTL:    time.Duration(options.AccessTTL),
	}
	authService := service.NewAuthService(authRepo, tokens, time.Duration(options.RefreshTTL))
	workoutService := service.NewWorkoutService(workoutRepo)

	router := http.NewRouter(
		&http.AuthHandler{AuthService: authService, Log: zapLogger},
		&http.WorkoutHandler{Service: workoutService, Log: zapLogger},
		tokens,
		zapLogger,
	)

	server := &nethttp.Server{
		Addr:              options.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		tlsOn := options.TLSCert != ""
		zapLogger.Info("starting server", zap.String("addr", options.Port), zap.Bool("tls", tlsOn))
		if tlsOn {
			errCh <- server.ListenAndServeTLS(options.TLSCert, options.TLSKey)
			return
		}
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, nethttp.ErrServerClosed) {
			zapLogger.Fatal("server failed", zap.Error(err))
		}
	case <-ctx.Done():
		zapLogger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zapLogger.Error("graceful shutdown failed", zap.Error(err))
		}
	}
}
