package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"bookingsync/internal/config"
	"bookingsync/internal/database"
	"bookingsync/internal/events"
	"bookingsync/internal/logging"
	"bookingsync/internal/models"
	"bookingsync/internal/network"
	"bookingsync/internal/queue"
	"bookingsync/internal/remote"
	"bookingsync/internal/worker"

	"github.com/rs/zerolog"
)

// runtime is the part of the agent every command needs: config, logger, the
// durable queue and the sync engine.
type runtime struct {
	cfg     *config.Config
	logger  *zerolog.Logger
	closer  io.Closer
	// db is nil when the queue database could not be opened at startup.
	db      *database.DB
	reopen  *queue.ReopenStore
	store   *queue.FailoverStore
	remote  *remote.Client
	monitor *network.Monitor
	bus     *events.EventBus
	engine  *worker.Engine
}

// reopenInterval spaces attempts to open a queue database that failed at
// startup.
const reopenInterval = time.Minute

func newRuntime(opts *RootOptions) (*runtime, error) {
	cfg, err := config.Load(opts.configPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, err
	}

	retention := queue.WithRetention(cfg.Sync.Retention)
	var (
		primary queue.DurableStore
		reopen  *queue.ReopenStore
	)
	db, dbErr := database.NewDB(cfg.Database.Path, logger)
	if dbErr != nil {
		logger.Error().Err(dbErr).Str("path", cfg.Database.Path).
			Msg("Queue database unavailable, holding bookings in memory")
		reopen = queue.NewReopenStore(func(context.Context) (queue.DurableStore, io.Closer, error) {
			db, err := database.NewDB(cfg.Database.Path, logger)
			if err != nil {
				return nil, nil, err
			}
			return queue.NewSQLStore(db, logger, retention), db, nil
		}, reopenInterval, logger)
		primary = reopen
	} else {
		primary = queue.NewSQLStore(db, logger, retention)
	}

	store := queue.NewFailoverStore(primary, queue.NewMemoryStore(retention), logger)
	if dbErr != nil {
		store.Degrade(dbErr)
	}

	rt := &runtime{
		cfg:     cfg,
		logger:  logger,
		closer:  closer,
		db:      db,
		reopen:  reopen,
		store:   store,
		remote:  remote.NewClient(cfg.Remote, logger),
		monitor: network.NewMonitor(models.NetworkOffline, logger),
		bus:     events.NewEventBus(),
	}
	rt.engine = worker.NewEngine(rt.store, rt.remote, rt.monitor, rt.bus, worker.ConfigFrom(cfg.Sync), logger)
	return rt, nil
}

// probe seeds the monitor from a reachability check of the booking API.
func (r *runtime) probe(ctx context.Context) models.NetworkStatus {
	status, err := r.monitor.Probe(ctx, r.cfg.Remote.BaseURL)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Connectivity probe failed")
	}
	r.monitor.Set(status)
	return status
}

func (r *runtime) Close() error {
	var errs []error
	if r.db != nil {
		errs = append(errs, r.db.Close())
	}
	if r.reopen != nil {
		errs = append(errs, r.reopen.Close())
	}
	if r.closer != nil {
		errs = append(errs, r.closer.Close())
	}
	return errors.Join(errs...)
}
