package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kozaktomas/fingerprint-id/internal/classifier"
	"github.com/kozaktomas/fingerprint-id/internal/config"
	"github.com/kozaktomas/fingerprint-id/internal/database"
	"github.com/kozaktomas/fingerprint-id/internal/database/filestore"
	"github.com/kozaktomas/fingerprint-id/internal/database/mariadb"
	"github.com/kozaktomas/fingerprint-id/internal/database/postgres"
	"github.com/kozaktomas/fingerprint-id/internal/engine"
	"github.com/kozaktomas/fingerprint-id/internal/features"
	"github.com/kozaktomas/fingerprint-id/internal/matcher"
	"github.com/kozaktomas/fingerprint-id/internal/rtdb"
	"github.com/kozaktomas/fingerprint-id/internal/samples"
	"github.com/kozaktomas/fingerprint-id/internal/sensor"
)

// app is a fully wired engine plus the resources it holds open.
type app struct {
	cfg     *config.Config
	engine  *engine.Engine
	closers []func() error
}

// appOptions select the sensor for one command.
type appOptions struct {
	// samplePath feeds a fixed sample file instead of the configured spool.
	samplePath string
	// noSensor builds an engine without capture support.
	noSensor bool
}

// loadConfig loads and validates the configuration and sets up logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil || cfg.Log.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	return cfg, nil
}

// openApp wires the configured backends into an engine and loads the
// committed gallery.
func openApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg}
	if err := a.wire(ctx, opts); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, opts appOptions) error {
	cfg := a.cfg

	extractor, err := features.New(features.Strategy(cfg.Features.Strategy), cfg.Features.Dim)
	if err != nil {
		return err
	}

	var pool *postgres.Pool
	if cfg.State.Backend == config.BackendPostgres || cfg.Directory.Backend == config.BackendPostgres {
		log.Info().Msg("connecting to PostgreSQL")
		pool, err = postgres.Open(ctx, &cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
	}

	var backend database.GalleryBackend
	switch cfg.State.Backend {
	case config.BackendPostgres:
		backend = postgres.NewGalleryRepository(pool)
	default:
		store, err := filestore.New(cfg.State.Dir)
		if err != nil {
			return err
		}
		backend = store
	}

	directory, err := a.openDirectory(ctx, pool)
	if err != nil {
		return err
	}
	sampleStore, err := openSamples(ctx, cfg)
	if err != nil {
		return err
	}
	guard, err := openSensor(cfg, opts)
	if err != nil {
		return err
	}

	eng, err := engine.New(engine.Options{
		Extractor: extractor,
		Backend:   backend,
		Classifier: classifier.Options{
			Kind:         cfg.Matching.Classifier,
			MaxNeighbors: cfg.Matching.HNSWMaxNeighbors,
			EfSearch:     cfg.Matching.HNSWEfSearch,
		},
		Policy: matcher.Config{
			DistanceThreshold: cfg.Matching.DistanceThreshold,
			AmbiguityMargin:   cfg.Matching.AmbiguityMargin,
		},
		Sensor:    guard,
		Directory: directory,
		Samples:   sampleStore,
	})
	if err != nil {
		return err
	}
	if err := eng.Load(ctx); err != nil {
		return fmt.Errorf("loading gallery: %w", err)
	}
	a.engine = eng
	return nil
}

func (a *app) openDirectory(ctx context.Context, pool *postgres.Pool) (database.Directory, error) {
	cfg := a.cfg
	switch cfg.Directory.Backend {
	case config.BackendPostgres:
		return postgres.NewDirectoryRepository(pool), nil
	case config.BackendMariaDB:
		mdb, err := mariadb.NewPool(cfg.Directory.MariaDBDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MariaDB: %w", err)
		}
		a.closers = append(a.closers, mdb.Close)
		if err := mdb.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return mariadb.NewDirectory(mdb), nil
	case config.BackendRTDB:
		return rtdb.New(cfg.Directory.RTDBURL, cfg.Directory.RTDBToken)
	default:
		return database.NopDirectory{}, nil
	}
}

func openSamples(ctx context.Context, cfg *config.Config) (samples.Store, error) {
	switch cfg.Samples.Backend {
	case config.BackendLocal:
		return samples.NewLocal(cfg.Samples.Dir)
	case config.BackendMinIO:
		return samples.NewMinIO(ctx, cfg.Samples.MinIO)
	default:
		return samples.Nop{}, nil
	}
}

// openSensor returns nil when no sensor source is available.
func openSensor(cfg *config.Config, opts appOptions) (*sensor.Guard, error) {
	if opts.noSensor {
		return nil, nil
	}
	var s sensor.Sensor
	switch {
	case opts.samplePath != "":
		sample, err := sensor.LoadSampleFile(opts.samplePath)
		if err != nil {
			return nil, err
		}
		s = &sensor.Static{Sample: sample}
	case cfg.Sensor.SpoolDir != "":
		if _, err := os.Stat(cfg.Sensor.SpoolDir); err != nil {
			return nil, fmt.Errorf("sensor spool directory: %w", err)
		}
		s = sensor.NewSpool(cfg.Sensor.SpoolDir)
	default:
		return nil, nil
	}
	return sensor.NewGuard(s, sensor.BusyPolicy(cfg.Sensor.BusyPolicy), cfg.Sensor.CaptureTimeout), nil
}

// Close releases database connections in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("closing resource")
		}
	}
	a.closers = nil
}

// requireSensor explains how to provide a sample when none is configured.
func requireSensor(err error) error {
	if errors.Is(err, engine.ErrNoSensor) {
		return errors.New("no sensor configured: pass --sample or set SENSOR_SPOOL_DIR")
	}
	return err
}
