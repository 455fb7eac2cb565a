package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aman-app/aman/pkg/agent"
	"github.com/aman-app/aman/pkg/client"
	"github.com/aman-app/aman/pkg/errdefs"
	"github.com/aman-app/aman/pkg/events"
	"github.com/aman-app/aman/pkg/queue"
	"github.com/aman-app/aman/pkg/storage"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the Aman device agent",
	Long: `Run the device-side runtime: the durable action queue, the
replayer, the sync orchestrator and the artifact reconciler, all
against a local embedded store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Agent.UserID == "" || cfg.Agent.Token == "" {
			return errdefs.Validation("agent.user_id and agent.token are required")
		}
		dataDir := cfg.Agent.DataDir
		if dataDir == "" {
			dataDir, err = os.UserHomeDir()
			if err != nil {
				return err
			}
			dataDir += "/.aman"
		}

		store, err := storage.NewBoltStore(dataDir, "agent.db")
		if err != nil {
			return fmt.Errorf("failed to open local store: %v", err)
		}
		defer store.Close()

		substrate, err := queue.NewBoltSubstrate(dataDir, "queue.db")
		if err != nil {
			return fmt.Errorf("failed to open queue: %v", err)
		}
		defer substrate.Close()
		substrate.MaxValueBytes = cfg.Agent.QueueCapBytes
		q, err := queue.Open(substrate)
		if err != nil {
			return err
		}

		api := client.New(cfg.Agent.ServerURL, cfg.Agent.Token)

		broker := events.NewBroker()
		broker.Start()
		defer broker.Stop()

		conn := agent.NewConnectivity(agent.HealthProbe(api), broker, cfg.Agent.GetProbeInterval())
		replayer := agent.NewReplayer(q, api, broker)
		syncer := agent.NewSyncer(store, api, broker, cfg.Agent.GetHeartbeat())
		reconciler := agent.NewReconciler(agent.NewArtifactCache(store), api, broker)

		reconciler.Start()
		defer reconciler.Stop()
		replayer.Start()
		defer replayer.Stop()
		syncer.Start()
		defer syncer.Stop()
		conn.Start()
		defer conn.Stop()

		fmt.Printf("Agent running for user %s against %s\n", cfg.Agent.UserID, cfg.Agent.ServerURL)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		fmt.Println("\nStopping agent...")
		return nil
	},
}
