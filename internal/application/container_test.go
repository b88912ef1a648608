// Package application provides application-level services and dependency injection.
package application

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jbctechsolutions/invsync/internal/domain/entity"
	"github.com/jbctechsolutions/invsync/internal/domain/errors"
	"github.com/jbctechsolutions/invsync/internal/infrastructure/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewDefaultConfig()
	cfg.Data.Directory = filepath.Join(dir, "data")
	cfg.Data.Database = filepath.Join(dir, "invsync.db")
	cfg.Remote.Driver = config.DriverMemory
	return cfg
}

func TestNewContainer(t *testing.T) {
	cfg := testConfig(t)
	cfg.Data.MachineID = "warehouse-pc"

	container, err := NewContainer(cfg, false)
	if err != nil {
		t.Fatalf("NewContainer failed: %v", err)
	}
	defer container.Close()

	if container.Config() == nil {
		t.Error("Config should not be nil")
	}
	if container.DB() == nil {
		t.Error("DB should not be nil")
	}
	if container.LinkRepository() == nil {
		t.Error("LinkRepository should not be nil")
	}
	if container.CheckpointManager() == nil {
		t.Error("CheckpointManager should not be nil")
	}
	if container.Engine() == nil {
		t.Error("Engine should not be nil")
	}
	if container.Logger() == nil || container.Tracer() == nil {
		t.Error("Logger and Tracer should not be nil")
	}
	if got := container.MachineID(); got != "warehouse-pc" {
		t.Errorf("MachineID = %q, want %q", got, "warehouse-pc")
	}
	if got := container.Registry().Count(); got != len(entity.CoreKinds()) {
		t.Errorf("registered kinds = %d, want %d", got, len(entity.CoreKinds()))
	}
	if _, err := os.Stat(cfg.Data.Database); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}

func TestNewContainer_OptionalKinds(t *testing.T) {
	cfg := testConfig(t)
	cfg.Entities.Tools = true
	cfg.Entities.Toolkits = true

	container, err := NewContainer(cfg, true)
	if err != nil {
		t.Fatalf("NewContainer failed: %v", err)
	}
	defer container.Close()

	if _, err := container.Registry().GetRequired(entity.KindToolkit); err != nil {
		t.Errorf("toolkits should be registered: %v", err)
	}
}

func TestNewContainer_HTTPDriverNeedsBaseURL(t *testing.T) {
	cfg := testConfig(t)
	cfg.Remote.Driver = config.DriverHTTP
	cfg.Remote.BaseURL = ""

	_, err := NewContainer(cfg, false)
	if err == nil {
		t.Fatal("expected error without base URL")
	}
	if errors.CodeOf(err) != errors.CodeConfiguration {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestNewContainer_HTTPDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Remote.Driver = config.DriverHTTP
	cfg.Remote.BaseURL = "https://inventory.example.com/api"
	cfg.Remote.Collections = map[string]config.CollectionConfig{
		"laptops": {Name: "devices", Fields: map[string]string{"serial_number": "serial"}},
	}

	container, err := NewContainer(cfg, false)
	if err != nil {
		t.Fatalf("NewContainer failed: %v", err)
	}
	defer container.Close()

	if container.Registry().Count() == 0 {
		t.Error("expected registered kinds")
	}
}

func TestNewContainer_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sync.CheckpointRetention = 0

	if _, err := NewContainer(cfg, false); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestContainer_SyncEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	container, err := NewContainer(cfg, false)
	if err != nil {
		t.Fatalf("NewContainer failed: %v", err)
	}
	defer container.Close()

	if err := os.MkdirAll(container.DataDir(), 0755); err != nil {
		t.Fatal(err)
	}
	laptops := `[{"id":"L1","brand":"Dell","model":"Latitude"}]`
	if err := os.WriteFile(filepath.Join(container.DataDir(), "laptops.json"), []byte(laptops), 0644); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	report, err := container.Engine().Sync(ctx, []entity.Kind{entity.KindLaptop})
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if got := report.Results[entity.KindLaptop].Pushed; len(got) != 1 || got[0] != "L1" {
		t.Errorf("pushed = %v, want [L1]", got)
	}

	cps, err := container.CheckpointManager().List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(cps) != 1 {
		t.Errorf("checkpoints = %d, want 1", len(cps))
	}
}

func TestContainer_Close(t *testing.T) {
	container, err := NewContainer(testConfig(t), false)
	if err != nil {
		t.Fatalf("NewContainer failed: %v", err)
	}

	if err := container.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := container.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestGetMachineID(t *testing.T) {
	if id := getMachineID(); id == "" {
		t.Error("getMachineID should not return empty string")
	}
}
