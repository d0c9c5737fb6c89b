// Package server initializes and runs the registry server. It opens the
// database, applies migrations, wires the pool, repositories, storage and
// services together, and runs the HTTP server and the event flusher until
// shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/cargohold/internal/dbx"
	"github.com/dmitrijs2005/cargohold/internal/logging"
	"github.com/dmitrijs2005/cargohold/internal/server/config"
	"github.com/dmitrijs2005/cargohold/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/cargohold/internal/server/services"
	"github.com/dmitrijs2005/cargohold/internal/server/storage"
	"github.com/dmitrijs2005/cargohold/internal/server/web"
)

// eventFlushInterval is how often buffered token-usage and download events
// are written to the database.
const eventFlushInterval = 30 * time.Second

type App struct {
	config   *config.Config
	logger   logging.Logger
	pool     *dbx.RWPool
	recorder *services.EventRecorder
	web      *web.Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	m := repomanager.NewPostgresRepositoryManager()
	if err := m.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("db migration error: %w", err)
	}

	pool := dbx.NewRWPool(db)
	// Repeatable read keeps each workload on one snapshot for its whole run.
	pool.ReadTxOptions = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	pool.WriteTxOptions = &sql.TxOptions{Isolation: sql.LevelRepeatableRead}

	s3store, err := storage.NewS3Storage(ctx, storage.S3Config{
		RootUser:     cfg.S3RootUser,
		RootPassword: cfg.S3RootPassword,
		Bucket:       cfg.S3Bucket,
		Region:       cfg.S3Region,
		BaseEndpoint: cfg.S3BaseEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("storage init error: %w", err)
	}
	store := storage.NewBreakerStorage(s3store)

	recorder := services.NewEventRecorder(pool, m)
	as := services.NewAuthService(pool, m, recorder, cfg)
	cs := services.NewCratesService(pool, m, store, recorder, cfg)
	ts := services.NewTokensService(pool, m)
	ss := services.NewStatsService(pool, m)
	us := services.NewUsersService(pool, m)

	ws := web.NewServer(cfg.EndpointAddr, logger, as, cs, ts, ss, us)

	return &App{config: cfg, logger: logger, pool: pool, recorder: recorder, web: ws}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.web.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.recorder.Run(ctx, eventFlushInterval, func(err error) {
			app.logger.Error(ctx, "event flush failed", "error", err)
		})
	}()

	wg.Wait()

	if err := app.pool.Close(); err != nil {
		app.logger.Error(ctx, "db close failed", "error", err)
	}
}
