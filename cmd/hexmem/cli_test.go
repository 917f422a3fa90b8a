package main

import (
	"testing"
)

func TestAllCommandsRegistered(t *testing.T) {
	want := []string{"serve", "store", "search", "recall", "status", "stats", "agents", "sessions", "decay"}
	have := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		have[c.Name()] = true
	}
	for _, name := range want {
		if !have[name] {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestRequireAgentWithoutFlag(t *testing.T) {
	prev := agentRef
	agentRef = ""
	defer func() { agentRef = prev }()

	if _, err := requireAgent(); err == nil {
		t.Error("expected an error when no agent is configured")
	}

	agentRef = "deploy-bot"
	agent, err := requireAgent()
	if err != nil {
		t.Fatalf("requireAgent: %v", err)
	}
	if agent != "deploy-bot" {
		t.Errorf("agent = %q, want deploy-bot", agent)
	}
}

func TestTruncateKeepsShortStrings(t *testing.T) {
	if got := truncate("short", 20); got != "short" {
		t.Errorf("truncate = %q", got)
	}
	long := truncate("a very long string that should definitely be cut off somewhere", 20)
	if len(long) > 22 {
		t.Errorf("truncate did not shorten: %q", long)
	}
}
