package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"hexmem/internal/types"
)

// =============================================================================
// SESSION COMMANDS
// =============================================================================

var (
	sessionExternalID string
	messageRole       string
)

// sessionsCmd manages conversation sessions
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage conversation sessions",
	Long: `Start sessions, append messages (the ingestion hot path), and end them.

Appending a message runs the extraction pass on the server: facts,
decisions, tasks, and events found in the message are stored and linked
back to it.`,
	RunE: runSessionsList,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List an agent's sessions",
	RunE:  runSessionsList,
}

var sessionsStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a new session",
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, err := requireAgent()
		if err != nil {
			return err
		}
		sess, err := apiClient().CreateSession(cmd.Context(), agent, sessionExternalID)
		if err != nil {
			return err
		}
		fmt.Println(okStyle.Render("✓ session started: ") + sess.ID)
		return nil
	},
}

var sessionsLogCmd = &cobra.Command{
	Use:   "log <session-id> <content>",
	Short: "Append a message to a session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !types.ValidRole(messageRole) {
			return fmt.Errorf("invalid role %q: use user, assistant, system, or tool", messageRole)
		}
		res, err := apiClient().AddMessage(cmd.Context(), args[0], messageRole, args[1])
		if err != nil {
			return err
		}
		fmt.Println(okStyle.Render("✓ message stored: ") + res.Message.ID)
		ex := res.Extracted
		if ex.Facts+ex.Decisions+ex.Tasks+ex.Events > 0 {
			fmt.Printf("  extracted: %d facts, %d decisions, %d tasks, %d events\n",
				ex.Facts, ex.Decisions, ex.Tasks, ex.Events)
		}
		return nil
	},
}

var sessionsEndCmd = &cobra.Command{
	Use:   "end <session-id>",
	Short: "End a session (summarizing it when the server can)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := apiClient().EndSession(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(okStyle.Render("✓ session ended: ") + sess.ID)
		if sess.Summary != nil {
			fmt.Println(rule())
			fmt.Println(*sess.Summary)
		}
		return nil
	},
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	agent, err := requireAgent()
	if err != nil {
		return err
	}
	sessions, err := apiClient().ListSessions(cmd.Context(), agent)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println(dimStyle.Render("no sessions yet"))
		return nil
	}
	fmt.Println(headerStyle.Render(fmt.Sprintf("💬 %d sessions", len(sessions))))
	fmt.Println(rule())
	for _, s := range sessions {
		state := okStyle.Render("open")
		if s.EndedAt != nil {
			state = dimStyle.Render("ended")
		}
		ext := ""
		if s.ExternalID != "" {
			ext = "  " + dimStyle.Render(s.ExternalID)
		}
		fmt.Printf("  %s  %s  %3d msgs  %s%s\n",
			s.ID,
			s.StartedAt.Format("01-02 15:04"),
			s.MessageCount,
			state, ext)
	}
	return nil
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd, sessionsStartCmd, sessionsLogCmd, sessionsEndCmd)
	sessionsStartCmd.Flags().StringVar(&sessionExternalID, "external-id", "", "caller-side correlation id")
	sessionsLogCmd.Flags().StringVar(&messageRole, "role", "user", "message role")
}
