package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bookingsync/internal/api"
	"bookingsync/internal/config"
	"bookingsync/internal/database"
	"bookingsync/internal/metrics"
	"bookingsync/internal/notify"
	"bookingsync/internal/otp"
	"bookingsync/internal/repository"
	"bookingsync/internal/service"
	"bookingsync/internal/wizard"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

// NewAgentCommand runs the long-lived agent: sync engine, HTTP API, metrics,
// notifications and backups.
func NewAgentCommand(rootOpts *RootOptions) *cobra.Command {
	var probe bool
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Run the booking agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runAgent(ctx, rootOpts, probe)
		},
	}
	cmd.Flags().BoolVar(&probe, "probe", true, "seed the network status by probing the booking API at startup")
	return cmd
}

func runAgent(ctx context.Context, rootOpts *RootOptions, probe bool) error {
	rt, err := newRuntime(rootOpts)
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg := rt.cfg
	logger := rt.logger.With().Str("component", "agent").Logger()

	metrics.Register()

	seedZones, err := LoadZoneFile(cfg.Wizard.ZonesFile)
	if err != nil {
		return err
	}

	redisClient, states := initStateRepository(ctx, cfg, rt.logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
		rt.remote.UseRedisCache(redisClient, cfg.Remote.ZoneCacheTTL)
	}

	loc, err := time.LoadLocation(cfg.Wizard.Timezone)
	if err != nil {
		return fmt.Errorf("wizard timezone %q: %w", cfg.Wizard.Timezone, err)
	}

	if err := initNotifier(cfg, rt); err != nil {
		return err
	}

	verifier := otp.NewService(states, states, otp.NewLogSender(rt.logger), cfg.OTP, rt.logger)
	bookings := service.NewBookingService(rt.remote, rt.store, rt.monitor, rt.bus, rt.logger)
	wizards := service.NewWizardService(states, rt.remote, seedZones, verifier, bookings, wizard.Options{
		MaxDaysAhead: cfg.Wizard.MaxDaysAhead,
		Location:     loc,
	}, rt.logger)

	if probe {
		status := rt.probe(ctx)
		logger.Info().Str("status", string(status)).Msg("Initial network status")
	}

	go rt.engine.Start(ctx)

	var servers []*http.Server
	if cfg.API.Enabled && cfg.API.HTTP.Enabled {
		apiServer := api.NewHTTPServer(cfg.API, api.Deps{
			Queue:    rt.store,
			Sync:     rt.engine,
			Network:  rt.monitor,
			Wizard:   wizards,
			ProbeURL: cfg.Remote.BaseURL,
		}, rt.logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error().Err(err).Msg("API server error")
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = apiServer.Shutdown(sctx)
		}()
	}

	if cfg.Monitoring.PrometheusEnabled {
		servers = append(servers, startMetricsServer(cfg.Monitoring.PrometheusPort, &logger))
	}

	if cfg.Backup.Enabled && rt.db == nil {
		logger.Warn().Msg("Backups skipped, queue database is not open")
	} else if cfg.Backup.Enabled {
		backups := database.NewBackupService(rt.db, cfg.Database.Path, cfg.Backup, rt.logger)
		go backups.Start(ctx)
	}

	logger.Info().Str("remote", cfg.Remote.BaseURL).Msg("Agent started")
	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, s := range servers {
		_ = s.Shutdown(sctx)
	}
	return nil
}

// initStateRepository keeps sessions and codes in Redis when configured, with
// process memory as the fallback.
func initStateRepository(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, repository.Store) {
	memory := repository.NewMemoryStateRepository(cfg.Wizard.SessionTTL)
	if cfg.Redis.Address == "" {
		return nil, memory
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable")
	}
	primary := repository.NewRedisStateRepository(client, cfg.Wizard.SessionTTL)
	return client, repository.NewFailoverStateRepository(primary, memory, logger)
}

func initNotifier(cfg *config.Config, rt *runtime) error {
	notifiers := notify.Multi{notify.NewLogNotifier(rt.logger)}
	if cfg.Telegram.Enabled {
		bot, err := notify.NewBotAPI(cfg.Telegram)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		notifiers = append(notifiers, notify.NewTelegramNotifier(bot, cfg.Telegram.ChatIDs, rt.logger))
	}
	notify.Subscribe(rt.bus, notifiers, rt.logger)
	return nil
}

func startMetricsServer(port int, logger *zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("Metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return srv
}
