package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aman-app/aman/pkg/alerts"
	"github.com/aman-app/aman/pkg/api"
	"github.com/aman-app/aman/pkg/auth"
	"github.com/aman-app/aman/pkg/metrics"
	"github.com/aman-app/aman/pkg/replicator"
	"github.com/aman-app/aman/pkg/storage"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the Aman sync server",
	Long: `Run the canonical server: the REST alert surface and the
replication facade, backed by an embedded store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		store, err := storage.NewBoltStore(cfg.Server.DataDir, "aman.db")
		if err != nil {
			return fmt.Errorf("failed to open store: %v", err)
		}
		defer store.Close()
		metrics.SetVersion(Version)
		metrics.RegisterComponent("store", true, "")

		engine := alerts.NewEngine(store, cfg.Server.MaxTTL())
		facade := replicator.NewFacade(store)
		verifier := auth.StaticVerifier(cfg.Server.Tokens)

		purger := alerts.NewPurger(engine, cfg.Server.PurgeSchedule)
		purger.Start()
		defer purger.Stop()
		metrics.RegisterComponent("purger", true, "")

		srv := api.NewServer(engine, facade, store, verifier)
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start(addr) }()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			fmt.Println("\nShutting down...")
		case err := <-errCh:
			if err != nil {
				return err
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown failed: %v", err)
		}
		return nil
	},
}
