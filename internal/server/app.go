// Package server initializes and runs the vault server: database and
// migrations, ledger backend, event bus, services and the HTTP endpoint,
// with graceful shutdown on OS signals.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dsemenov/datavault/internal/logging"
	"github.com/dsemenov/datavault/internal/server/auth"
	"github.com/dsemenov/datavault/internal/server/config"
	"github.com/dsemenov/datavault/internal/server/eventbus"
	"github.com/dsemenov/datavault/internal/server/httpapi"
	"github.com/dsemenov/datavault/internal/server/ledger"
	"github.com/dsemenov/datavault/internal/server/models"
	"github.com/dsemenov/datavault/internal/server/repositories/repomanager"
	"github.com/dsemenov/datavault/internal/server/services"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	router http.Handler
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	m := repomanager.NewPostgresRepositoryManager()
	if err := m.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	lc, err := newLedgerClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ledger init error: %w", err)
	}

	reward := decimal.Zero
	if cfg.StoreRewardAmount != "" {
		reward, err = decimal.NewFromString(cfg.StoreRewardAmount)
		if err != nil {
			return nil, fmt.Errorf("invalid store reward amount %q: %w", cfg.StoreRewardAmount, err)
		}
	}

	bus := eventbus.NewInProcBus(0)
	tokenService := services.NewTokenService(db, m, bus, logger)
	dataService := services.NewDataService(db, m, lc, bus, tokenService, reward, logger)

	authenticator := auth.NewJWTAuthenticator([]byte(cfg.SecretKey))
	handler := httpapi.NewHandler(dataService, tokenService, logger)
	router := httpapi.NewRouter(handler, authenticator, logger)

	return &App{config: cfg, logger: logger, db: db, router: router}, nil
}

func newLedgerClient(ctx context.Context, cfg *config.Config) (ledger.Client, error) {
	switch cfg.LedgerBackend {
	case config.LedgerBackendArweave:
		tags := []models.Tag{{Name: "App-Name", Value: "datavault"}}
		return ledger.NewArweaveClient(cfg.LedgerGatewayURL, tags, cfg.LedgerTimeout), nil
	case config.LedgerBackendS3:
		return ledger.NewS3Client(ctx, ledger.S3Config{
			User:         cfg.S3RootUser,
			Password:     cfg.S3RootPassword,
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
			Timeout:      cfg.LedgerTimeout,
		})
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.LedgerBackend)
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves the HTTP endpoint until ctx is cancelled or a signal arrives,
// then shuts down gracefully.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.initSignalHandler(cancelFunc)

	srv := &http.Server{
		Addr:    app.config.EndpointAddr,
		Handler: app.router,
	}

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info(ctx, "starting server", "addr", app.config.EndpointAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	app.logger.Info(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	if err := app.db.Close(); err != nil {
		return fmt.Errorf("db close error: %w", err)
	}
	return nil
}
