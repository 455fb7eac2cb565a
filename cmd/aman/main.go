package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aman-app/aman/pkg/config"
	"github.com/aman-app/aman/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var cfgPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "aman",
	Short: "Aman - offline-first emergency check-in and alerting",
	Long: `Aman keeps people reachable during emergencies. The server holds the
canonical check-in and alert state; the agent runs on a device, works
fully offline, and converges with the server whenever connectivity
allows.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Aman version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file")

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(agentCmd)
}

// loadConfig reads configuration and initializes the global logger
// from its logging section.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	log.Init(log.Config{
		Level:      log.Level(cfg.Logging.Level),
		JSONOutput: cfg.Logging.Format == "json",
		Output:     os.Stderr,
	})
	return cfg, nil
}
