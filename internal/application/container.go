// Package application provides application-level services and dependency injection.
package application

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/afero"

	"github.com/jbctechsolutions/invsync/internal/adapters/remote/httpapi"
	"github.com/jbctechsolutions/invsync/internal/adapters/remote/memory"
	"github.com/jbctechsolutions/invsync/internal/adapters/store/jsonfile"
	adaptersync "github.com/jbctechsolutions/invsync/internal/adapters/sync"
	"github.com/jbctechsolutions/invsync/internal/adapters/sync/sqlite"
	"github.com/jbctechsolutions/invsync/internal/application/checkpoint"
	"github.com/jbctechsolutions/invsync/internal/application/engine"
	"github.com/jbctechsolutions/invsync/internal/application/ports"
	"github.com/jbctechsolutions/invsync/internal/domain/entity"
	"github.com/jbctechsolutions/invsync/internal/domain/errors"
	"github.com/jbctechsolutions/invsync/internal/infrastructure/config"
	"github.com/jbctechsolutions/invsync/internal/infrastructure/logging"
	"github.com/jbctechsolutions/invsync/internal/infrastructure/storage"
	"github.com/jbctechsolutions/invsync/internal/infrastructure/tracing"
)

// Container holds all application dependencies and provides a central
// point for dependency injection. It manages the lifecycle of services
// and ensures proper initialization order.
type Container struct {
	// Configuration
	config  *config.Config
	verbose bool // Override log level to debug when true

	// Database connection
	dbConn *sqlite.Connection
	db     *sql.DB

	// Local filesystem holding the collections
	fs      afero.Fs
	dataDir string

	// Repositories
	linkRepo       *storage.LinkRepository
	checkpointRepo *storage.CheckpointRepository
	historyRepo    ports.SyncRunStoragePort

	// Registry of kinds with their store and remote
	registry *adaptersync.Registry

	// Application services
	checkpointManager *checkpoint.Manager
	engine            *engine.Service

	// Observability
	logger *logging.Logger
	tracer *tracing.Tracer

	machineID string
}

// NewContainer creates a new dependency injection container with all services
// initialized based on the provided configuration.
func NewContainer(cfg *config.Config, verbose bool) (*Container, error) {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.NewError(errors.CodeConfiguration, "invalid configuration", err)
	}

	c := &Container{
		config:  cfg,
		verbose: verbose,
		fs:      afero.NewOsFs(),
		dataDir: config.ExpandPath(cfg.Data.Directory),
	}

	c.machineID = cfg.Data.MachineID
	if c.machineID == "" {
		c.machineID = getMachineID()
	}

	if err := c.initObservability(); err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}

	if err := c.initDatabase(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	c.initRepositories()

	if err := c.initRegistry(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize registry: %w", err)
	}

	if err := c.initServices(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return c, nil
}

// initDatabase opens the engine database at the configured path.
func (c *Container) initDatabase() error {
	conn, err := sqlite.NewConnection(config.ExpandPath(c.config.Data.Database))
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}

	if err := conn.Open(); err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db, err := conn.DB()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to get database handle: %w", err)
	}

	c.dbConn = conn
	c.db = db
	return nil
}

// initRepositories initializes all storage repositories.
func (c *Container) initRepositories() {
	c.linkRepo = storage.NewLinkRepository(c.db)
	c.checkpointRepo = storage.NewCheckpointRepository(c.db)
	c.historyRepo = storage.NewSyncRunRepository(c.db, c.machineID)
}

// initRegistry binds every enabled kind to its local store and remote.
func (c *Container) initRegistry() error {
	kinds := c.config.EnabledKinds()

	stores, err := jsonfile.NewAll(c.fs, c.dataDir, kinds)
	if err != nil {
		return err
	}

	remotes, err := c.newRemotes(kinds)
	if err != nil {
		return err
	}

	c.registry = adaptersync.NewRegistry()
	for i, store := range stores {
		if err := c.registry.Register(store, remotes[i]); err != nil {
			return err
		}
	}
	return nil
}

// newRemotes builds one remote per kind, in the order of kinds.
func (c *Container) newRemotes(kinds []entity.Kind) ([]ports.RemoteClientPort, error) {
	rc := c.config.Remote
	remotes := make([]ports.RemoteClientPort, 0, len(kinds))

	switch rc.Driver {
	case config.DriverMemory:
		c.logger.Warn("using in-memory remote, nothing leaves this process")
		for _, kind := range kinds {
			remotes = append(remotes, memory.New(kind))
		}
		return remotes, nil

	case config.DriverHTTP, "":
		if rc.BaseURL == "" {
			return nil, errors.NewError(errors.CodeConfiguration,
				"remote.base_url is required for the http driver (or set "+config.EnvRemoteURL+")", nil)
		}
		client, err := httpapi.NewClient(rc.BaseURL,
			httpapi.WithToken(rc.APIToken),
			httpapi.WithTimeout(rc.Timeout),
			httpapi.WithPageSize(rc.PageSize),
		)
		if err != nil {
			return nil, err
		}
		for _, kind := range kinds {
			var opts []httpapi.RemoteOption
			if cc, ok := rc.Collection(kind); ok {
				opts = append(opts, httpapi.WithCollection(cc.Name))
				if len(cc.Fields) > 0 {
					opts = append(opts, httpapi.WithFieldMapping(cc.Fields))
				}
			}
			remote, err := httpapi.NewRemote(client, kind, opts...)
			if err != nil {
				return nil, err
			}
			remotes = append(remotes, remote)
		}
		return remotes, nil

	default:
		return nil, errors.NewError(errors.CodeConfiguration, fmt.Sprintf("unknown remote driver %q", rc.Driver), nil)
	}
}

// initServices wires the checkpoint manager and the engine.
func (c *Container) initServices() error {
	var err error
	c.checkpointManager, err = checkpoint.NewManager(checkpoint.ManagerConfig{
		Registry:  c.registry,
		Links:     c.linkRepo,
		Storage:   c.checkpointRepo,
		Logger:    c.logger,
		Tracer:    c.tracer,
		MachineID: c.machineID,
	})
	if err != nil {
		return fmt.Errorf("failed to create checkpoint manager: %w", err)
	}

	c.engine, err = engine.NewService(engine.ServiceConfig{
		Registry:        c.registry,
		Links:           c.linkRepo,
		Checkpoints:     c.checkpointManager,
		History:         c.historyRepo,
		Logger:          c.logger,
		Tracer:          c.tracer,
		Retention:       c.config.Sync.CheckpointRetention,
		PushConcurrency: c.config.Sync.PushConcurrency,
		PushTimeout:     c.config.Sync.PushTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	return nil
}

// initObservability initializes logging and tracing.
func (c *Container) initObservability() error {
	ctx := context.Background()

	logLevel := logging.LevelInfo
	if c.verbose {
		logLevel = logging.LevelDebug
	} else {
		switch c.config.Logging.Level {
		case "debug":
			logLevel = logging.LevelDebug
		case "info":
			logLevel = logging.LevelInfo
		case "warn":
			logLevel = logging.LevelWarn
		case "error":
			logLevel = logging.LevelError
		}
	}

	logFormat := logging.FormatText
	if c.config.Logging.Format == "json" {
		logFormat = logging.FormatJSON
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logLevel
	logCfg.Format = logFormat
	c.logger = logging.New(logCfg)

	if c.config.Observability.Tracing.Enabled {
		tracingCfg := tracing.Config{
			Enabled:      true,
			ExporterType: tracing.ExporterType(c.config.Observability.Tracing.ExporterType),
			OTLPEndpoint: c.config.Observability.Tracing.OTLPEndpoint,
			ServiceName:  c.config.Observability.Tracing.ServiceName,
			Environment:  "production",
			SampleRate:   c.config.Observability.Tracing.SampleRate,
		}
		tracer, err := tracing.New(ctx, tracingCfg)
		if err != nil {
			return fmt.Errorf("failed to create tracer: %w", err)
		}
		c.tracer = tracer
	} else {
		c.tracer = tracing.Default()
	}

	return nil
}

// Close releases all resources held by the container.
func (c *Container) Close() error {
	var errs []error

	if c.tracer != nil {
		if err := c.tracer.Shutdown(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown tracer: %w", err))
		}
	}

	if c.dbConn != nil {
		if err := c.dbConn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// DB returns the database connection.
func (c *Container) DB() *sql.DB {
	return c.db
}

// DataDir returns the expanded directory holding the local collections.
func (c *Container) DataDir() string {
	return c.dataDir
}

// Registry returns the kind registry.
func (c *Container) Registry() *adaptersync.Registry {
	return c.registry
}

// LinkRepository returns the link repository.
func (c *Container) LinkRepository() *storage.LinkRepository {
	return c.linkRepo
}

// CheckpointManager returns the checkpoint manager.
func (c *Container) CheckpointManager() *checkpoint.Manager {
	return c.checkpointManager
}

// Engine returns the reconciliation engine.
func (c *Container) Engine() *engine.Service {
	return c.engine
}

// Logger returns the application logger.
func (c *Container) Logger() *logging.Logger {
	return c.logger
}

// Tracer returns the application tracer.
func (c *Container) Tracer() *tracing.Tracer {
	return c.tracer
}

// MachineID returns the machine identifier.
func (c *Container) MachineID() string {
	return c.machineID
}

// getMachineID falls back to the hostname when none is configured.
func getMachineID() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}
