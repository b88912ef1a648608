package engine

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/jbctechsolutions/invsync/internal/adapters/remote/memory"
	"github.com/jbctechsolutions/invsync/internal/adapters/store/jsonfile"
	adaptersync "github.com/jbctechsolutions/invsync/internal/adapters/sync"
	"github.com/jbctechsolutions/invsync/internal/application/checkpoint"
	"github.com/jbctechsolutions/invsync/internal/application/ports"
	"github.com/jbctechsolutions/invsync/internal/domain/entity"
	"github.com/jbctechsolutions/invsync/internal/infrastructure/logging"
	"github.com/jbctechsolutions/invsync/internal/infrastructure/storage"
	"github.com/jbctechsolutions/invsync/internal/infrastructure/testutil"
)

const testDataDir = testutil.DataDir

type fixture struct {
	fs          afero.Fs
	db          *sql.DB
	registry    *adaptersync.Registry
	remotes     map[entity.Kind]*memory.Remote
	stores      map[entity.Kind]*jsonfile.Store
	links       *storage.LinkRepository
	checkpoints ports.CheckpointStoragePort
	history     ports.SyncRunStoragePort
	manager     *checkpoint.Manager
	service     *Service
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	retention   int
	concurrency int
	pushTimeout time.Duration
	cpStorage   func(ports.CheckpointStoragePort) ports.CheckpointStoragePort
}

func withRetention(n int) fixtureOption {
	return func(c *fixtureConfig) { c.retention = n }
}

func withConcurrency(n int) fixtureOption {
	return func(c *fixtureConfig) { c.concurrency = n }
}

func withPushTimeout(d time.Duration) fixtureOption {
	return func(c *fixtureConfig) { c.pushTimeout = d }
}

func withCheckpointStorage(wrap func(ports.CheckpointStoragePort) ports.CheckpointStoragePort) fixtureOption {
	return func(c *fixtureConfig) { c.cpStorage = wrap }
}

func newFixture(t *testing.T, kinds []entity.Kind, opts ...fixtureOption) *fixture {
	t.Helper()

	cfg := fixtureConfig{retention: 5, concurrency: 2}
	for _, opt := range opts {
		opt(&cfg)
	}

	db := testutil.NewDB(t)
	var err error

	f := &fixture{
		fs:       afero.NewMemMapFs(),
		db:       db,
		registry: adaptersync.NewRegistry(),
		remotes:  make(map[entity.Kind]*memory.Remote),
		stores:   make(map[entity.Kind]*jsonfile.Store),
		links:    storage.NewLinkRepository(db),
		history:  storage.NewSyncRunRepository(db, "test-machine"),
	}

	f.checkpoints = storage.NewCheckpointRepository(db)
	if cfg.cpStorage != nil {
		f.checkpoints = cfg.cpStorage(f.checkpoints)
	}

	for _, kind := range kinds {
		store, err := jsonfile.New(f.fs, testDataDir, kind)
		require.NoError(t, err)
		remote := memory.New(kind)
		require.NoError(t, f.registry.Register(store, remote))
		f.stores[kind] = store
		f.remotes[kind] = remote
	}

	logger := logging.Discard()

	f.manager, err = checkpoint.NewManager(checkpoint.ManagerConfig{
		Registry:  f.registry,
		Links:     f.links,
		Storage:   f.checkpoints,
		Logger:    logger,
		MachineID: "test-machine",
	})
	require.NoError(t, err)

	f.service, err = NewService(ServiceConfig{
		Registry:        f.registry,
		Links:           f.links,
		Checkpoints:     f.manager,
		History:         f.history,
		Logger:          logger,
		Retention:       cfg.retention,
		PushConcurrency: cfg.concurrency,
		PushTimeout:     cfg.pushTimeout,
	})
	require.NoError(t, err)

	return f
}

// writeLocal replaces the local collection of kind with records.
func (f *fixture) writeLocal(t *testing.T, kind entity.Kind, records ...entity.Record) {
	t.Helper()
	testutil.WriteCollection(t, f.fs, testDataDir, kind, testutil.CollectionJSON(t, records...))
}

// link stores a link whose baseline is the hash of baseline.
func (f *fixture) link(t *testing.T, kind entity.Kind, localID, remoteID string, baseline entity.Payload) {
	t.Helper()
	hash := ""
	if baseline != nil {
		var err error
		hash, err = baseline.Hash()
		require.NoError(t, err)
	}
	require.NoError(t, f.links.Upsert(context.Background(), entity.Link{
		Kind:         kind,
		LocalID:      localID,
		RemoteID:     remoteID,
		BaselineHash: hash,
	}))
}

func laptop(id, brand, notes string) *entity.Laptop {
	return &entity.Laptop{ID: id, Brand: brand, Model: "X1", Notes: notes}
}

func person(id, name string) *entity.Person {
	return &entity.Person{ID: id, Name: name, Email: id + "@example.com"}
}

func writeRaw(f *fixture, path, content string) error {
	return afero.WriteFile(f.fs, path, []byte(content), 0644)
}
