package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aman-app/aman/pkg/agent"
	"github.com/aman-app/aman/pkg/alerts"
	"github.com/aman-app/aman/pkg/client"
	"github.com/aman-app/aman/pkg/errdefs"
	"github.com/aman-app/aman/pkg/events"
	"github.com/aman-app/aman/pkg/queue"
	"github.com/aman-app/aman/pkg/storage"
	"github.com/aman-app/aman/pkg/types"
)

// intentSession wires a one-shot command layer over the same local
// state the agent daemon uses. Actions taken while the server is
// unreachable land in the durable queue and replay on the next run or
// the next daemon drain.
type intentSession struct {
	commander  *agent.Commander
	replayer   *agent.Replayer
	reconciler *agent.Reconciler
	syncer     *agent.Syncer
	broker     *events.Broker
	online     bool
	closers    []func()
}

func openIntentSession() (*intentSession, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Agent.UserID == "" || cfg.Agent.Token == "" {
		return nil, errdefs.Validation("agent.user_id and agent.token are required")
	}
	dataDir := cfg.Agent.DataDir
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dataDir = home + "/.aman"
		if err := os.MkdirAll(dataDir, 0o700); err != nil {
			return nil, err
		}
	}

	store, err := storage.NewBoltStore(dataDir, "agent.db")
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %v", err)
	}
	substrate, err := queue.NewBoltSubstrate(dataDir, "queue.db")
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to open queue: %v", err)
	}
	substrate.MaxValueBytes = cfg.Agent.QueueCapBytes
	q, err := queue.Open(substrate)
	if err != nil {
		store.Close()
		substrate.Close()
		return nil, err
	}

	api := client.New(cfg.Agent.ServerURL, cfg.Agent.Token)
	broker := events.NewBroker()
	broker.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	online := agent.HealthProbe(api)(ctx)

	cache := agent.NewArtifactCache(store)
	s := &intentSession{
		commander: agent.NewCommander(cfg.Agent.UserID, api, q, cache, store,
			func() bool { return online }, nil),
		replayer:   agent.NewReplayer(q, api, broker),
		reconciler: agent.NewReconciler(cache, api, broker),
		syncer:     agent.NewSyncer(store, api, broker, 0),
		broker:     broker,
		online:     online,
		closers:    []func(){func() { broker.Stop() }, func() { substrate.Close() }, func() { store.Close() }},
	}
	return s, nil
}

// finish flushes anything replayable and releases local state. The
// drain's id mappings are reconciled inline: this process exits right
// after, so an event-driven reconciler would race the shutdown and
// strand artifacts under placeholder ids.
func (s *intentSession) finish() {
	if s.online {
		res := s.replayer.Drain(context.Background())
		for _, m := range res.Mappings {
			s.reconciler.Reconcile(m.PlaceholderID, m.RealID)
		}
		s.syncer.SyncOnce(context.Background())
	}
	for _, c := range s.closers {
		c()
	}
}

var alertCmd = &cobra.Command{
	Use:   "alert",
	Short: "Raise, report, or retire alerts",
}

var alertCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Raise a new alert",
	RunE: func(cmd *cobra.Command, args []string) error {
		category, _ := cmd.Flags().GetString("category")
		title, _ := cmd.Flags().GetString("title")
		desc, _ := cmd.Flags().GetString("description")
		lat, _ := cmd.Flags().GetFloat64("lat")
		lng, _ := cmd.Flags().GetFloat64("lng")
		severity, _ := cmd.Flags().GetString("severity")
		ttl, _ := cmd.Flags().GetInt("ttl-hours")
		snapshotPath, _ := cmd.Flags().GetString("snapshot")

		var snapshot []byte
		if snapshotPath != "" {
			var err error
			if snapshot, err = os.ReadFile(snapshotPath); err != nil {
				return err
			}
		}

		s, err := openIntentSession()
		if err != nil {
			return err
		}
		defer s.finish()

		res, err := s.commander.CreateAlert(cmd.Context(), alerts.CreateInput{
			Category:    category,
			Title:       title,
			Description: desc,
			Latitude:    lat,
			Longitude:   lng,
			Severity:    types.Severity(severity),
			TTLHours:    ttl,
		}, snapshot)
		if err != nil {
			return err
		}
		if res.Queued {
			fmt.Printf("Offline: alert queued as %s, will sync on reconnect\n", res.PlaceholderID)
			return nil
		}
		fmt.Printf("Alert created: %s\n", res.Alert.ID)
		return nil
	},
}

var alertReportCmd = &cobra.Command{
	Use:   "report <alert-id>",
	Short: "Flag an alert as suspicious",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openIntentSession()
		if err != nil {
			return err
		}
		defer s.finish()

		if err := s.commander.ReportAlert(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Println("Report recorded")
		return nil
	},
}

var alertDeleteCmd = &cobra.Command{
	Use:   "delete <alert-id>",
	Short: "Retire an alert you own",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openIntentSession()
		if err != nil {
			return err
		}
		defer s.finish()

		if err := s.commander.DeleteAlert(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Println("Alert retired")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <safe|help>",
	Short: "Broadcast your safety status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		message, _ := cmd.Flags().GetString("message")
		lat, _ := cmd.Flags().GetFloat64("lat")
		lng, _ := cmd.Flags().GetFloat64("lng")

		s, err := openIntentSession()
		if err != nil {
			return err
		}
		defer s.finish()

		rec, err := s.commander.SetStatus(types.CheckInStatus(args[0]), message, lat, lng)
		if err != nil {
			return err
		}
		if s.online {
			fmt.Printf("Status %q recorded and syncing\n", rec.Status)
		} else {
			fmt.Printf("Status %q recorded locally, will sync on reconnect\n", rec.Status)
		}
		return nil
	},
}

func init() {
	alertCreateCmd.Flags().String("category", "", "alert category (fire, flood, ...)")
	alertCreateCmd.Flags().String("title", "", "short title")
	alertCreateCmd.Flags().String("description", "", "longer description")
	alertCreateCmd.Flags().Float64("lat", 0, "latitude")
	alertCreateCmd.Flags().Float64("lng", 0, "longitude")
	alertCreateCmd.Flags().String("severity", "", "low, medium, high, or critical")
	alertCreateCmd.Flags().Int("ttl-hours", 0, "hours until the alert expires")
	alertCreateCmd.Flags().String("snapshot", "", "path to a map snapshot to attach")

	statusCmd.Flags().String("message", "", "optional note")
	statusCmd.Flags().Float64("lat", 0, "latitude")
	statusCmd.Flags().Float64("lng", 0, "longitude")

	alertCmd.AddCommand(alertCreateCmd)
	alertCmd.AddCommand(alertReportCmd)
	alertCmd.AddCommand(alertDeleteCmd)

	rootCmd.AddCommand(alertCmd)
	rootCmd.AddCommand(statusCmd)
}
