package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

// =============================================================================
// DECAY COMMANDS
// =============================================================================

// decayCmd inspects and drives the memory lifecycle
var decayCmd = &cobra.Command{
	Use:   "decay",
	Short: "Inspect and trigger memory decay",
	Long: `Shows per-table decay state (active/cooling/archived) and the effective
TTL policies, and can trigger a synchronous sweep.`,
	RunE: runDecayStatus,
}

var decayStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show decay state counts and policies",
	RunE:  runDecayStatus,
}

var decaySweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a decay sweep now",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := apiClient().Sweep(cmd.Context(), agentOrDefault())
		if err != nil {
			return err
		}
		fmt.Println(headerStyle.Render("🧹 Sweep complete"))
		fmt.Printf("  cooled    %d\n", stats.TransitionedToCooling)
		fmt.Printf("  archived  %d\n", stats.TransitionedToArchived)
		fmt.Printf("  immune    %d\n", stats.ImmuneItems)
		return nil
	},
}

func runDecayStatus(cmd *cobra.Command, args []string) error {
	status, err := apiClient().DecayStatus(cmd.Context(), agentOrDefault())
	if err != nil {
		return err
	}

	fmt.Println(headerStyle.Render("🌡  Decay status"))
	fmt.Println(rule())
	tables := make([]string, 0, len(status.Counts))
	for t := range status.Counts {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	fmt.Printf("  %-18s %8s %8s %8s\n", "table", "active", "cooling", "archived")
	for _, t := range tables {
		c := status.Counts[t]
		fmt.Printf("  %-18s %8d %8d %8d\n", t, c["active"], c["cooling"], c["archived"])
	}

	if len(status.Policies) > 0 {
		fmt.Println(rule())
		fmt.Printf("  %-18s %8s %12s %8s\n", "type", "ttl", "min-access", "scope")
		for _, p := range status.Policies {
			ttl := "never"
			if p.TTLDays != nil {
				ttl = fmt.Sprintf("%dd", *p.TTLDays)
			}
			scope := "global"
			if p.AgentID != nil {
				scope = "agent"
			}
			fmt.Printf("  %-18s %8s %12d %8s\n", p.MemoryType, ttl, p.MinAccesses, scope)
		}
	}
	return nil
}

func init() {
	decayCmd.AddCommand(decayStatusCmd, decaySweepCmd)
}
