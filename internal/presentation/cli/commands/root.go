// Package commands implements the CLI commands for invsync.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/invsync/internal/application"
	"github.com/jbctechsolutions/invsync/internal/domain/entity"
	"github.com/jbctechsolutions/invsync/internal/domain/errors"
	"github.com/jbctechsolutions/invsync/internal/infrastructure/config"
	"github.com/jbctechsolutions/invsync/internal/presentation/cli/output"
)

// Version information - set at build time via ldflags.
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// GlobalFlags holds the global CLI flags.
type GlobalFlags struct {
	ConfigFile string
	Output     string
	Verbose    bool
}

// AppContext holds the application runtime context.
type AppContext struct {
	Config    *config.Config
	Formatter *output.Formatter
	Flags     *GlobalFlags
	Container *application.Container
}

var (
	globalFlags GlobalFlags
	appCtx      *AppContext
	appCtxMu    sync.RWMutex
)

// NewRootCmd creates the root command for the invsync CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "invsync",
		Short: "invsync - reconcile local inventory with the remote system of record",
		Long: `invsync compares the local inventory collections (laptops, accessories,
packages, people and optionally tools and toolkits) with the remote
system of record and pushes local changes upstream.

Every sync starts with a checkpoint of the local state, so a run can
always be rolled back with "invsync checkpoint restore".

Key features:
  • Per-kind status: ahead, behind, modified and unchanged records
  • Push-only sync that never overwrites concurrent remote edits
  • Automatic checkpoints with retention
  • HTTP API for the desktop app`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "version" || cmd.Name() == "completion" {
				return nil
			}
			return initializeApp(cmd.OutOrStdout())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return Shutdown()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&globalFlags.ConfigFile, "config", "c", "", "config file path (default: ~/.invsync/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&globalFlags.Output, "output", "o", "text", "output format: text, json")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(NewVersionCmd())
	rootCmd.AddCommand(NewStatusCmd())
	rootCmd.AddCommand(NewSyncCmd())
	rootCmd.AddCommand(NewCheckpointCmd())
	rootCmd.AddCommand(NewHistoryCmd())
	rootCmd.AddCommand(NewServeCmd())

	return rootCmd
}

// initializeApp loads the configuration and builds the container.
func initializeApp(w io.Writer) error {
	format, err := output.ParseFormat(globalFlags.Output)
	if err != nil {
		return errors.NewError(errors.CodeValidation, "invalid --output", err)
	}

	formatter := output.NewFormatter(
		output.WithWriter(w),
		output.WithFormat(format),
		output.WithColor(format != output.FormatJSON && output.ColorSupported()),
	)

	cfg, err := loadConfig(globalFlags.ConfigFile)
	if err != nil {
		return errors.NewError(errors.CodeConfiguration, "could not load configuration", err)
	}

	container, err := application.NewContainer(cfg, globalFlags.Verbose)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	appCtxMu.Lock()
	appCtx = &AppContext{
		Config:    cfg,
		Formatter: formatter,
		Flags:     &globalFlags,
		Container: container,
	}
	appCtxMu.Unlock()

	return nil
}

// loadConfig loads configuration from the specified file or default location.
func loadConfig(configPath string) (*config.Config, error) {
	loader, err := config.NewLoader("")
	if err != nil {
		return nil, fmt.Errorf("failed to create config loader: %w", err)
	}
	return loader.Load(configPath)
}

// GetAppContext returns the current application context.
// Returns nil if the app hasn't been initialized.
func GetAppContext() *AppContext {
	appCtxMu.RLock()
	defer appCtxMu.RUnlock()
	return appCtx
}

// GetFormatter returns the output formatter.
// Creates a default formatter if app context is not initialized.
func GetFormatter() *output.Formatter {
	if ctx := GetAppContext(); ctx != nil {
		return ctx.Formatter
	}
	return output.NewFormatter(output.WithColor(output.ColorSupported()))
}

// GetContainer returns the application container.
// Returns nil if the app hasn't been initialized.
func GetContainer() *application.Container {
	if ctx := GetAppContext(); ctx != nil {
		return ctx.Container
	}
	return nil
}

// mustApp returns the initialized application context or an error when a
// command runs without one.
func mustApp() (*AppContext, error) {
	ctx := GetAppContext()
	if ctx == nil || ctx.Container == nil {
		return nil, errors.NewError(errors.CodeConfiguration, "application not initialized", nil)
	}
	return ctx, nil
}

// Shutdown releases the container. It is safe to call more than once.
func Shutdown() error {
	appCtxMu.Lock()
	defer appCtxMu.Unlock()

	if appCtx == nil {
		return nil
	}
	var err error
	if appCtx.Container != nil {
		err = appCtx.Container.Close()
	}
	appCtx = nil
	return err
}

// parseKinds turns a --kinds flag into kinds. No value means the configured
// default set.
func parseKinds(names []string, cfg *config.Config) ([]entity.Kind, error) {
	var cleaned []string
	for _, n := range names {
		for _, part := range strings.Split(n, ",") {
			if part = strings.TrimSpace(part); part != "" {
				cleaned = append(cleaned, part)
			}
		}
	}
	if len(cleaned) == 0 {
		return cfg.DefaultSyncKinds(), nil
	}
	kinds, err := entity.ParseKinds(cleaned)
	if err != nil {
		return nil, errors.NewError(errors.CodeValidation, "invalid --kinds", err)
	}
	return kinds, nil
}

// Execute runs the root command with graceful shutdown support.
func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- NewRootCmd().ExecuteContext(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			GetFormatter().Error("%s", err.Error())
			_ = Shutdown()
			os.Exit(exitCode(err))
		}
	case sig := <-sigChan:
		GetFormatter().Warning("Received signal %v, shutting down...", sig)
		cancel()
		<-errChan
		_ = Shutdown()
		os.Exit(130)
	}
}

// exitCode maps an error to a process exit status.
func exitCode(err error) int {
	switch errors.CodeOf(err) {
	case errors.CodeValidation, errors.CodeConfiguration:
		return 2
	case errors.CodeSyncInProgress:
		return 3
	default:
		return 1
	}
}
