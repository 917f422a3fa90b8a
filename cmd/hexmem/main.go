// Package main implements the hexmem CLI: a server entry point plus client
// commands for talking to a running memory service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"hexmem/internal/client"
)

var (
	// Global flags
	serverURL string
	apiKey    string
	agentRef  string
	verbose   bool

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "hexmem",
	Short: "hexmem - structured semantic memory for autonomous agents",
	Long: `hexmem is a multi-tenant memory service for autonomous agents.

It ingests conversation messages, extracts structured memory (facts,
decisions, tasks, events) with an LLM, links items through a typed edge
graph, and serves hybrid semantic+lexical recall with time-based decay.

Run 'hexmem serve' to start the server, or use the client commands
(store, recall, search, agents, sessions, decay, stats) against a
running instance.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// apiClient builds a client from flags and environment.
func apiClient() *client.Client {
	return client.New(viper.GetString("url"), viper.GetString("api_key"))
}

// agentOrDefault returns the --agent flag, falling back to HEXMEM_AGENT.
func agentOrDefault() string {
	if agentRef != "" {
		return agentRef
	}
	return viper.GetString("agent")
}

// requireAgent errors when no agent is specified anywhere.
func requireAgent() (string, error) {
	agent := agentOrDefault()
	if agent == "" {
		return "", fmt.Errorf("no agent specified: use --agent or set HEXMEM_AGENT")
	}
	return agent, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", "http://localhost:8440", "hexmem server URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "bearer API key")
	rootCmd.PersistentFlags().StringVarP(&agentRef, "agent", "a", "", "agent id or slug")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	viper.SetEnvPrefix("HEXMEM")
	viper.AutomaticEnv()
	_ = viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))
	_ = viper.BindPFlag("api_key", rootCmd.PersistentFlags().Lookup("api-key"))
	_ = viper.BindEnv("api_key", "HEXMEM_API_KEY")
	_ = viper.BindEnv("agent", "HEXMEM_AGENT")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(storeCmd, searchCmd, recallCmd, statusCmd, statsCmd)
	rootCmd.AddCommand(agentsCmd, sessionsCmd, decayCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}
