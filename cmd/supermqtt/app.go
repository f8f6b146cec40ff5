package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/nerrad567/supermqtt/internal/api"
	"github.com/nerrad567/supermqtt/internal/infrastructure/config"
	"github.com/nerrad567/supermqtt/internal/infrastructure/database"
	"github.com/nerrad567/supermqtt/internal/infrastructure/influxdb"
	"github.com/nerrad567/supermqtt/internal/infrastructure/logging"
	"github.com/nerrad567/supermqtt/internal/infrastructure/metrics"
	"github.com/nerrad567/supermqtt/internal/infrastructure/mqtt"
	"github.com/nerrad567/supermqtt/internal/journal"
	"github.com/nerrad567/supermqtt/internal/pubsub"
	"github.com/nerrad567/supermqtt/migrations"
)

const (
	defaultConfigPath = "configs/config.yaml"

	// shutdownTimeout bounds the disconnect and exporter flush on exit.
	shutdownTimeout = 5 * time.Second

	// startupCheckTimeout bounds the component health checks in newApp.
	startupCheckTimeout = 5 * time.Second
)

// errJournalDisabled is returned by commands that read the journal when
// journal.enabled is false.
var errJournalDisabled = errors.New("journal is disabled in configuration")

// configPath returns the --config default: SUPERMQTT_CONFIG if set,
// otherwise configs/config.yaml.
func configPath() string {
	if path := os.Getenv("SUPERMQTT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadConfig reads path. A missing file is only tolerated when the path
// was not chosen explicitly, in which case defaults plus environment apply.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return config.FromEnv()
	}
	return nil, fmt.Errorf("loading config: %w", err)
}

// app is the wired client plus the optional sinks it reports to.
type app struct {
	cfg     *config.Config
	log     *logging.Logger
	client  *pubsub.Client
	journal journal.Repository

	// Backing components, nil when disabled.
	db     *database.DB
	influx *influxdb.Client

	closers []func(context.Context)
}

// newApp builds the logger, the optional journal, InfluxDB and OpenTelemetry
// sinks, and a pubsub client wired to all of them. Nothing connects to the
// MQTT broker until a command needs it.
func newApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (_ *app, err error) {
	a := &app{
		cfg: cfg,
		// stdout carries command output, so only "discard" redirects logs away
		// from logOut.
		log: logging.New(cfg.Logging, version, logging.Writer(cfg.Logging.Output, logOut, logOut)),
	}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	var sinks pubsub.MultiTelemetry

	if cfg.Journal.Enabled {
		repo, jerr := a.openJournal(ctx)
		if jerr != nil {
			return nil, jerr
		}
		a.journal = repo
	}

	if cfg.InfluxDB.Enabled {
		influx, ierr := influxdb.Connect(ctx, cfg.InfluxDB)
		if ierr != nil {
			return nil, fmt.Errorf("connecting to InfluxDB: %w", ierr)
		}
		influx.SetOnError(func(werr error) {
			a.log.Error("InfluxDB write error", "error", werr)
		})
		a.closers = append(a.closers, func(context.Context) {
			if cerr := influx.Close(); cerr != nil {
				a.log.Error("error closing InfluxDB", "error", cerr)
			}
		})
		a.influx = influx
		sinks = append(sinks, influx)
		a.log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	if cfg.Metrics.Enabled {
		shutdown, merr := metrics.InitProvider(ctx, cfg.Metrics, version)
		if merr != nil {
			return nil, fmt.Errorf("initialising metrics: %w", merr)
		}
		a.closers = append(a.closers, func(sctx context.Context) {
			if serr := shutdown(sctx); serr != nil {
				a.log.Error("error shutting down metrics", "error", serr)
			}
		})
		rec, rerr := metrics.NewRecorder(nil)
		if rerr != nil {
			return nil, fmt.Errorf("creating metrics recorder: %w", rerr)
		}
		sinks = append(sinks, rec)
		a.log.Info("metrics export enabled", "endpoint", cfg.Metrics.Endpoint)
	}

	if err := a.healthCheck(ctx); err != nil {
		return nil, err
	}

	opts := []pubsub.Option{
		pubsub.WithTransportFactory(pubsub.SessionTransport(mqtt.NewSessionConfig(cfg))),
		pubsub.WithLogger(a.log),
		pubsub.WithPublishRateLimit(rate.Limit(cfg.Client.PublishRate), cfg.Client.PublishBurst),
		pubsub.WithCircuitBreaker(cfg.Client.Breaker.FailureThreshold, cfg.GetBreakerResetTimeout()),
	}
	if len(sinks) > 0 {
		opts = append(opts, pubsub.WithTelemetry(sinks))
	}

	a.client = pubsub.New(pubsub.ConnectionConfig{
		Host:         cfg.Broker.Host,
		Port:         cfg.Broker.Port,
		Username:     cfg.Auth.Username,
		Password:     cfg.Auth.Password,
		TLS:          cfg.Broker.TLS,
		KeepAlive:    cfg.GetKeepAlive(),
		CleanSession: cfg.Broker.CleanSession,
	}, opts...)

	if a.journal != nil {
		detach := journal.Attach(a.client, a.journal, a.log.With("component", "journal"))
		// Runs before the database closer; closers unwind in reverse.
		a.closers = append(a.closers, func(context.Context) { detach() })
	}

	return a, nil
}

// healthCheck verifies every enabled backing component answers. The broker
// is not checked: the client connects on demand.
func (a *app) healthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, startupCheckTimeout)
	defer cancel()

	for name, check := range a.checks() {
		if err := check.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// checks returns the enabled backing components by name.
func (a *app) checks() map[string]api.HealthChecker {
	checks := make(map[string]api.HealthChecker)
	if a.db != nil {
		checks["journal"] = a.db
	}
	if a.influx != nil {
		checks["influxdb"] = a.influx
	}
	return checks
}

// openJournalDB opens the journal database without migrating it.
func openJournalDB(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	if !cfg.Journal.Enabled {
		return nil, errJournalDisabled
	}
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Journal.Path,
		WALMode:     cfg.Journal.WALMode,
		BusyTimeout: cfg.Journal.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	return db, nil
}

func (a *app) openJournal(ctx context.Context) (*journal.SQLiteRepository, error) {
	db, err := openJournalDB(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	a.db = db
	a.log.Debug("journal opened", "path", db.Path())
	a.closers = append(a.closers, func(context.Context) {
		if cerr := db.Close(); cerr != nil {
			a.log.Error("error closing journal", "error", cerr)
		}
	})

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		return nil, fmt.Errorf("migrating journal: %w", err)
	}

	repo := journal.NewSQLiteRepository(db.DB)
	if retention := a.cfg.GetJournalRetention(); retention > 0 {
		n, err := repo.Prune(ctx, time.Now().Add(-retention))
		if err != nil {
			return nil, err
		}
		if n > 0 {
			a.log.Info("pruned journal", "entries", n)
		}
	}
	return repo, nil
}

// close disconnects the client and releases every sink, newest first.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.client != nil {
		a.client.Disconnect(ctx)
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i](ctx)
	}
	a.closers = nil
}
