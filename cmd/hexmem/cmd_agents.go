package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// =============================================================================
// AGENT COMMANDS
// =============================================================================

var agentDescription string

// agentsCmd manages agents
var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Manage agents",
	Long: `List, create, and inspect agents. Each agent owns a fully isolated
memory namespace addressed by a stable slug.`,
	RunE: runAgentsList,
}

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all agents",
	RunE:  runAgentsList,
}

var agentsCreateCmd = &cobra.Command{
	Use:   "create <slug> [display-name]",
	Short: "Create a new agent",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		display := args[0]
		if len(args) > 1 {
			display = args[1]
		}
		a, err := apiClient().CreateAgent(cmd.Context(), args[0], display, agentDescription)
		if err != nil {
			return err
		}
		fmt.Println(okStyle.Render("✓ agent created: ") + a.ID)
		return nil
	},
}

var agentsShowCmd = &cobra.Command{
	Use:   "show <id-or-slug>",
	Short: "Show one agent with its memory counts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		detail, err := apiClient().GetAgent(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		a := detail.Agent
		fmt.Println(headerStyle.Render(a.DisplayName) + dimStyle.Render("  ("+a.Slug+")"))
		fmt.Println(rule())
		fmt.Printf("  id       %s\n", a.ID)
		if a.Description != "" {
			fmt.Printf("  about    %s\n", a.Description)
		}
		fmt.Printf("  created  %s\n", a.CreatedAt.Format("2006-01-02 15:04"))
		fmt.Println(rule())
		for _, table := range []string{"sessions", "session_messages", "facts", "decisions", "tasks", "events", "projects", "memory_edges"} {
			fmt.Printf("  %-17s %d\n", table, detail.Counts[table])
		}
		return nil
	},
}

func runAgentsList(cmd *cobra.Command, args []string) error {
	agents, err := apiClient().ListAgents(cmd.Context())
	if err != nil {
		return err
	}
	if len(agents) == 0 {
		fmt.Println(dimStyle.Render("no agents yet; create one with: hexmem agents create <slug>"))
		return nil
	}
	fmt.Println(headerStyle.Render(fmt.Sprintf("🤖 %d agents", len(agents))))
	fmt.Println(rule())
	for _, a := range agents {
		fmt.Printf("  %s %s %s\n",
			typeStyle.Render(fmt.Sprintf("%-20s", a.Slug)),
			a.DisplayName,
			dimStyle.Render(a.ID))
	}
	return nil
}

func init() {
	agentsCmd.AddCommand(agentsListCmd, agentsCreateCmd, agentsShowCmd)
	agentsCreateCmd.Flags().StringVar(&agentDescription, "description", "", "what this agent does")
}
