package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"hexmem/internal/client"
	"hexmem/internal/types"
)

// =============================================================================
// MEMORY COMMANDS (store / search / recall / status / stats)
// =============================================================================

var (
	storeTags      []string
	storeRationale string
	storeDesc      string
	storePriority  int
	storeSeverity  string
	storeEventType string

	queryLimit     int
	queryTypes     []string
	queryThreshold float64
	recallNoGraph  bool
	recallWeights  []float64
)

// storeCmd writes memory items directly
var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Store a memory item directly",
	Long: `Writes a memory item for an agent, bypassing session ingestion.
Near-duplicate content is rejected with the conflicting item's id.

Subcommands: fact, decision, task, event`,
}

var storeFactCmd = &cobra.Command{
	Use:   "fact <content>",
	Short: "Store a fact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, err := requireAgent()
		if err != nil {
			return err
		}
		f, err := apiClient().StoreFact(cmd.Context(), agent, args[0], storeTags)
		if err != nil {
			return describeConflict(err)
		}
		fmt.Println(okStyle.Render("✓ fact stored: ") + f.ID)
		return nil
	},
}

var storeDecisionCmd = &cobra.Command{
	Use:   "decision <title> <decision>",
	Short: "Store a decision with optional rationale",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, err := requireAgent()
		if err != nil {
			return err
		}
		d, err := apiClient().StoreDecision(cmd.Context(), agent, args[0], args[1], storeRationale, storeTags)
		if err != nil {
			return describeConflict(err)
		}
		fmt.Println(okStyle.Render("✓ decision stored: ") + d.ID)
		return nil
	},
}

var storeTaskCmd = &cobra.Command{
	Use:   "task <title>",
	Short: "Store a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, err := requireAgent()
		if err != nil {
			return err
		}
		task, err := apiClient().StoreTask(cmd.Context(), agent, args[0], storeDesc, storePriority, storeTags)
		if err != nil {
			return describeConflict(err)
		}
		fmt.Println(okStyle.Render("✓ task stored: ") + task.ID)
		return nil
	},
}

var storeEventCmd = &cobra.Command{
	Use:   "event <title>",
	Short: "Store an event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, err := requireAgent()
		if err != nil {
			return err
		}
		ev, err := apiClient().StoreEvent(cmd.Context(), agent, args[0], storeEventType, storeDesc, storeSeverity, storeTags)
		if err != nil {
			return describeConflict(err)
		}
		fmt.Println(okStyle.Render("✓ event stored: ") + ev.ID)
		return nil
	},
}

// describeConflict turns a duplicate rejection into a readable message.
func describeConflict(err error) error {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.ExistingID != "" {
		return fmt.Errorf("duplicate of existing item %s: %s", apiErr.ExistingID, apiErr.Message)
	}
	return err
}

// searchCmd is direct vector search
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Direct semantic vector search",
	Long: `Runs pure cosine-similarity search over the agent's memory. Requires
the server to have an embedding provider configured; use 'recall' for the
hybrid path that also works without one.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, err := requireAgent()
		if err != nil {
			return err
		}
		resp, err := apiClient().Search(cmd.Context(), agent, args[0], queryLimit, queryThreshold, queryTypes)
		if err != nil {
			return err
		}
		if len(resp.Results) == 0 {
			fmt.Println(dimStyle.Render("no matches"))
			return nil
		}
		fmt.Println(headerStyle.Render(fmt.Sprintf("🔍 %d matches for %q", resp.Total, resp.Query)))
		fmt.Println(rule())
		for _, r := range resp.Results {
			printResult(r, "")
		}
		return nil
	},
}

// recallCmd is the hybrid recall path
var recallCmd = &cobra.Command{
	Use:   "recall <query>",
	Short: "Hybrid recall (semantic + keyword + recency)",
	Long: `Runs the full recall plan: semantic and keyword search arms fused with
recency weighting, plus one-hop graph neighbors of the top results.

Weights can be overridden with --weights semantic,keyword,recency, e.g.
  hexmem recall "deploy failures" --weights 0.2,0.7,0.1`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, err := requireAgent()
		if err != nil {
			return err
		}
		opts := client.RecallOptions{
			Limit:     queryLimit,
			Types:     queryTypes,
			NoRelated: recallNoGraph,
		}
		if len(recallWeights) > 0 {
			if len(recallWeights) != 3 {
				return fmt.Errorf("--weights takes exactly three values: semantic,keyword,recency")
			}
			opts.SemanticWeight = &recallWeights[0]
			opts.KeywordWeight = &recallWeights[1]
			opts.RecencyWeight = &recallWeights[2]
		}

		resp, err := apiClient().Recall(cmd.Context(), agent, args[0], opts)
		if err != nil {
			return err
		}
		if len(resp.Results) == 0 {
			fmt.Println(dimStyle.Render("no matches"))
			return nil
		}
		fmt.Println(headerStyle.Render(fmt.Sprintf("🧠 %d results for %q", resp.Total, resp.Query)) +
			dimStyle.Render(fmt.Sprintf("  (weights %.1f/%.1f/%.1f)",
				resp.Weights.Semantic, resp.Weights.Keyword, resp.Weights.Recency)))
		fmt.Println(rule())
		for _, r := range resp.Results {
			printResult(r, "")
			for _, rel := range r.Related {
				printResult(rel, "    ↳ ")
			}
		}
		return nil
	},
}

func printResult(r types.RecallResult, prefix string) {
	var sig []string
	if r.Signals.Semantic != nil {
		sig = append(sig, fmt.Sprintf("sem %.2f", *r.Signals.Semantic))
	}
	if r.Signals.Keyword != nil {
		sig = append(sig, fmt.Sprintf("kw %.2f", *r.Signals.Keyword))
	}
	if r.Signals.GraphBoost != nil {
		sig = append(sig, fmt.Sprintf("graph %.2f", *r.Signals.GraphBoost))
	}
	detail := ""
	if len(sig) > 0 {
		detail = dimStyle.Render("  [" + strings.Join(sig, ", ") + "]")
	}
	fmt.Printf("%s%s %s %s%s\n",
		prefix,
		fmtScore(r.Score),
		typeStyle.Render(fmt.Sprintf("%-16s", r.Type)),
		truncate(r.Content, 80),
		detail)
}

// statusCmd checks server health
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check server health",
	RunE: func(cmd *cobra.Command, args []string) error {
		health, err := apiClient().Health(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(headerStyle.Render("hexmem server"))
		for _, k := range []string{"status", "database", "embedder"} {
			v := health[k]
			if v == nil {
				v = "none"
			}
			fmt.Printf("  %-10s %v\n", k, v)
		}
		return nil
	},
}

// statsCmd shows query analytics
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show query analytics",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := apiClient().QueryStats(cmd.Context(), agentOrDefault())
		if err != nil {
			return err
		}
		fmt.Println(headerStyle.Render("📊 Query Analytics"))
		fmt.Println(rule())
		fmt.Printf("  total queries   %d\n", stats.Total)
		fmt.Printf("  avg latency     %.1f ms\n", stats.AvgLatency)
		for endpoint, n := range stats.ByEndpoint {
			fmt.Printf("  %-15s %d\n", endpoint, n)
		}
		if len(stats.Recent) > 0 {
			fmt.Println(rule())
			for _, e := range stats.Recent {
				q := ""
				if e.QueryText != nil {
					q = truncate(*e.QueryText, 50)
				}
				fmt.Printf("  %s %-8s %4dms  %s\n",
					dimStyle.Render(e.CreatedAt.Format("01-02 15:04")),
					e.Endpoint, e.LatencyMS, q)
			}
		}
		return nil
	},
}

func init() {
	storeCmd.AddCommand(storeFactCmd, storeDecisionCmd, storeTaskCmd, storeEventCmd)
	storeCmd.PersistentFlags().StringSliceVar(&storeTags, "tags", nil, "comma-separated tags")
	storeDecisionCmd.Flags().StringVar(&storeRationale, "rationale", "", "why this decision was made")
	storeTaskCmd.Flags().StringVar(&storeDesc, "description", "", "longer description")
	storeTaskCmd.Flags().IntVar(&storePriority, "priority", 50, "priority 0-100")
	storeEventCmd.Flags().StringVar(&storeDesc, "description", "", "longer description")
	storeEventCmd.Flags().StringVar(&storeSeverity, "severity", "", "info|warning|critical")
	storeEventCmd.Flags().StringVar(&storeEventType, "type", "observation", "event type label")

	for _, c := range []*cobra.Command{searchCmd, recallCmd} {
		c.Flags().IntVarP(&queryLimit, "limit", "n", 10, "maximum results")
		c.Flags().StringSliceVarP(&queryTypes, "types", "t", nil, "restrict to memory types")
	}
	searchCmd.Flags().Float64Var(&queryThreshold, "threshold", 0, "minimum similarity (default 0.3)")
	recallCmd.Flags().BoolVar(&recallNoGraph, "no-related", false, "skip graph expansion")
	recallCmd.Flags().Float64SliceVar(&recallWeights, "weights", nil, "fusion weights: semantic,keyword,recency")
}
