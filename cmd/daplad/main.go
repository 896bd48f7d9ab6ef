package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dapla-platform/dapla/internal/config"
	"github.com/dapla-platform/dapla/internal/dap"
	"github.com/dapla-platform/dapla/internal/eventbus"
	"github.com/dapla-platform/dapla/internal/server"
	"github.com/dapla-platform/dapla/internal/store"
	daplaversion "github.com/dapla-platform/dapla/internal/version"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "daplad",
		Short:         "Dapla daemon - hosts distributed applications over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runDaemon,
	}
	rootCmd.Version = daplaversion.Format(daplaversion.String())
	rootCmd.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to dapla.yaml")
	rootCmd.AddCommand(newInitCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newInitCmd scaffolds a default configuration file so a fresh install can
// inspect and edit the settings before first start.
func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default dapla.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if path == "" {
				path = config.DefaultFileName
			}
			if _, err := os.Stat(config.ExpandPath(path)); err == nil {
				return fmt.Errorf("config file %s already exists", path)
			}
			if err := config.Save(path, config.Default()); err != nil {
				return err
			}
			cmd.Printf("Wrote %s\n", path)
			return nil
		},
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	var history *store.Store
	if cfg.History.Path != "" {
		history, err = store.Open(store.Options{DBPath: config.ExpandPath(cfg.History.Path)})
		if err != nil {
			return fmt.Errorf("open history store: %w", err)
		}
		defer history.Close()
	}

	bus := eventbus.New()
	defer bus.Shutdown()

	manager := dap.NewManager(dap.ManagerOptions{
		Root:     config.ExpandPath(cfg.Daps.Path),
		Bus:      bus,
		Recorder: recorderOrNil(history),
	})

	ctx := context.Background()
	if err := manager.LoadDaps(ctx); err != nil {
		return fmt.Errorf("scan daps directory %s: %w", cfg.Daps.Path, err)
	}

	service, err := dap.NewService(manager)
	if err != nil {
		return err
	}

	srv, err := server.New(server.Options{
		Config:  cfg,
		Service: service,
		Bus:     bus,
		History: historyOrNil(history),
	})
	if err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errChan <- err
		}
	}()

	log.Printf("Dapla daemon started (PID: %d)", os.Getpid())
	log.Printf("Daps directory: %s", cfg.Daps.Path)

	select {
	case sig := <-sigChan:
		log.Printf("Received signal %s, shutting down...", sig)
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	case err := <-errChan:
		log.Printf("Daemon error: %v", err)
		return err
	}

	service.WithManager(func(m *dap.Manager) error {
		m.UnloadAll(ctx)
		return nil
	})

	log.Println("Daemon stopped")
	return nil
}

// recorderOrNil keeps the manager's nil check meaningful: a nil *store.Store
// wrapped in a non-nil interface would dodge it.
func recorderOrNil(history *store.Store) dap.EventRecorder {
	if history == nil {
		return nil
	}
	return history
}

func historyOrNil(history *store.Store) server.HistoryStore {
	if history == nil {
		return nil
	}
	return history
}
