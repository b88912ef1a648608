package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbctechsolutions/invsync/internal/adapters/remote/memory"
	"github.com/jbctechsolutions/invsync/internal/adapters/store/jsonfile"
	adaptersync "github.com/jbctechsolutions/invsync/internal/adapters/sync"
	"github.com/jbctechsolutions/invsync/internal/application/checkpoint"
	"github.com/jbctechsolutions/invsync/internal/application/engine"
	"github.com/jbctechsolutions/invsync/internal/domain/entity"
	"github.com/jbctechsolutions/invsync/internal/domain/errors"
	"github.com/jbctechsolutions/invsync/internal/infrastructure/logging"
	"github.com/jbctechsolutions/invsync/internal/infrastructure/storage"
	"github.com/jbctechsolutions/invsync/internal/infrastructure/testutil"
)

type testAPI struct {
	server  *httptest.Server
	fs      afero.Fs
	remotes map[entity.Kind]*memory.Remote
	manager *checkpoint.Manager
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	db := testutil.NewDB(t)
	var err error

	a := &testAPI{fs: afero.NewMemMapFs(), remotes: map[entity.Kind]*memory.Remote{}}
	registry := adaptersync.NewRegistry()
	for _, kind := range []entity.Kind{entity.KindLaptop, entity.KindPerson} {
		store, err := jsonfile.New(a.fs, "/data", kind)
		require.NoError(t, err)
		a.remotes[kind] = memory.New(kind)
		require.NoError(t, registry.Register(store, a.remotes[kind]))
	}

	links := storage.NewLinkRepository(db)
	logger := logging.Discard()
	a.manager, err = checkpoint.NewManager(checkpoint.ManagerConfig{
		Registry: registry,
		Links:    links,
		Storage:  storage.NewCheckpointRepository(db),
		Logger:   logger,
	})
	require.NoError(t, err)

	svc, err := engine.NewService(engine.ServiceConfig{
		Registry:    registry,
		Links:       links,
		Checkpoints: a.manager,
		History:     storage.NewSyncRunRepository(db, "test"),
		Logger:      logger,
	})
	require.NoError(t, err)

	srv, err := NewServer(svc, a.manager, logger)
	require.NoError(t, err)
	a.server = httptest.NewServer(srv.Handler())
	t.Cleanup(a.server.Close)
	return a
}

func (a *testAPI) writeLaptops(t *testing.T, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(a.fs, "/data/laptops.json", []byte(content), 0644))
}

func (a *testAPI) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, a.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestStatus(t *testing.T) {
	a := newTestAPI(t)
	a.writeLaptops(t, `[{"id":"L1","brand":"Dell"},{"id":"L2","brand":"HP"}]`)

	resp, body := a.do(t, http.MethodGet, "/status?kinds=laptops", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, body["lastChecked"])

	kinds := body["kinds"].(map[string]any)
	require.Len(t, kinds, 1)
	laptops := kinds["laptop"].(map[string]any)
	assert.Equal(t, []any{"L1", "L2"}, laptops["ahead"])
	counts := laptops["counts"].(map[string]any)
	assert.Equal(t, float64(2), counts["ahead"])
}

func TestStatus_UnknownKind(t *testing.T) {
	a := newTestAPI(t)
	resp, body := a.do(t, http.MethodGet, "/status?kinds=spaceship", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, string(errors.CodeValidation), body["code"])
}

func TestSync(t *testing.T) {
	a := newTestAPI(t)
	a.writeLaptops(t, `[{"id":"L1","brand":"Dell"}]`)

	resp, body := a.do(t, http.MethodPost, "/sync", `{"entities":["laptop"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["checkpointId"])

	results := body["results"].(map[string]any)
	laptops := results["laptop"].(map[string]any)
	assert.Equal(t, []any{"L1"}, laptops["pushed"])
	assert.Equal(t, 1, a.remotes[entity.KindLaptop].Len())

	resp, body = a.do(t, http.MethodGet, "/history", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["runs"], 1)
}

func TestSync_EmptyBodyMeansAllKinds(t *testing.T) {
	a := newTestAPI(t)
	resp, body := a.do(t, http.MethodPost, "/sync", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["results"], 2)
}

func TestSync_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		setup  func(t *testing.T, a *testAPI) func()
		status int
		code   errors.ErrorCode
	}{
		{
			name:   "malformed body",
			body:   `{"entities":`,
			status: http.StatusBadRequest,
			code:   errors.CodeValidation,
		},
		{
			name:   "unknown entity",
			body:   `{"entities":["unicorn"]}`,
			status: http.StatusBadRequest,
			code:   errors.CodeValidation,
		},
		{
			name: "already running",
			body: `{}`,
			setup: func(t *testing.T, a *testAPI) func() {
				release, err := a.manager.Lock().TryAcquire("sync")
				require.NoError(t, err)
				return release
			},
			status: http.StatusConflict,
			code:   errors.CodeSyncInProgress,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAPI(t)
			if tt.setup != nil {
				defer tt.setup(t, a)()
			}
			resp, body := a.do(t, http.MethodPost, "/sync", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, string(tt.code), body["code"])
		})
	}
}

func TestCheckpoints(t *testing.T) {
	a := newTestAPI(t)
	a.writeLaptops(t, `[{"id":"L1","brand":"Dell"}]`)

	resp, created := a.do(t, http.MethodPost, "/checkpoints", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := created["id"].(string)
	require.NotEmpty(t, id)

	resp, body := a.do(t, http.MethodGet, "/checkpoints", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["checkpoints"], 1)

	a.writeLaptops(t, `[]`)
	resp, _ = a.do(t, http.MethodPost, "/checkpoints/"+id+"/restore", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := afero.ReadFile(a.fs, "/data/laptops.json")
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"L1","brand":"Dell"}]`, string(data))

	resp, _ = a.do(t, http.MethodDelete, "/checkpoints/"+id, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = a.do(t, http.MethodDelete, "/checkpoints/"+id, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, string(errors.CodeCheckpointNotFound), body["code"])

	resp, _ = a.do(t, http.MethodPost, "/checkpoints/"+id+"/restore", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	svc := &Server{logger: logging.Discard()}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.ListenAndServe(ctx, "127.0.0.1:0") }()
	cancel()
	assert.NoError(t, <-done)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		code errors.ErrorCode
		want int
	}{
		{errors.CodeValidation, http.StatusBadRequest},
		{errors.CodeCheckpointNotFound, http.StatusNotFound},
		{errors.CodeSyncInProgress, http.StatusConflict},
		{errors.CodeCheckpointWriteFailed, http.StatusServiceUnavailable},
		{errors.CodeStorage, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(errors.NewError(tt.code, "x", nil)))
		})
	}
}
