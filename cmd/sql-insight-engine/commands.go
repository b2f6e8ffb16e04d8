package main

import (
	"os"

	"github.com/spf13/cobra"
)

// buildRootCmd assembles the CLI command tree. Separated from main so tests
// can exercise flag parsing without calling os.Exit.
func buildRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sql-insight-engine",
		Short:   "Agentic SQL insight engine saga orchestrator",
		Version: version + " (" + commit + ")",
	}
	cmd.AddCommand(buildServeCmd())
	return cmd
}

// buildServeCmd creates the "serve" command, the single long-running process
// that hosts the saga orchestrator, the query/knowledge-base API, the tool
// registry, and the tool-registry's health-probe and stale-sweep cron jobs.
func buildServeCmd() *cobra.Command {
	var (
		configDir string
		envFile   string
		debug     bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the saga orchestrator, query API, and tool registry",
		Long: `Start the sql-insight-engine server.

The server will:
 1. Load core.yaml configuration and .env overrides
 2. Connect to PostgreSQL (registry/audit store) and NATS JetStream (message
    bus and saga state store)
 3. Start the four-stage saga orchestrator's durable consumers
 4. Schedule the tool registry's health-probe and stale-sweep jobs
 5. Serve the query API, knowledge-base endpoints, registry endpoints, and
    /metrics over HTTP

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), serveOptions{
				ConfigDir: configDir,
				EnvFile:   envFile,
				Debug:     debug,
			})
		},
	}

	cmd.Flags().StringVar(&configDir, "config-dir", getEnv("CONFIG_DIR", "./deploy/config"),
		"path to the directory containing core.yaml")
	cmd.Flags().StringVar(&envFile, "env-file", "",
		"path to a .env file (defaults to <config-dir>/.env)")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")

	return cmd
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
