package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"hexmem/internal/types"
)

const (
	maxRetries     = 3
	initialBackoff = 1 * time.Second
)

const extractionSystemPrompt = `You extract structured memory from agent conversation messages.

Given a message (and recent context), identify:
- facts: discrete reusable knowledge stated or implied (content, subject, confidence 0-1, tags)
- decisions: choices that were made (title, decision, rationale, alternatives that were rejected, tags)
- tasks: work items to be done (title, description, priority 1-100, tags)
- events: notable occurrences (title, event_type, description, severity: info|warning|critical, tags)

Respond with ONLY a JSON object of the form:
{"facts": [], "decisions": [], "tasks": [], "events": []}

Extract only what the message itself establishes. Do not invent. Empty arrays are the correct answer for small talk.`

const summarySystemPrompt = `Summarize the following agent conversation in at most three sentences. Mention concrete outcomes and open items. Respond with the summary text only.`

// AnthropicClient implements Extractor and Summarizer against the Anthropic
// Messages API.
type AnthropicClient struct {
	client anthropic.Client
	model  anthropic.Model
	log    *zap.Logger
}

func NewAnthropicClient(apiKey, model string, log *zap.Logger) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic api key required")
	}
	if model == "" {
		model = "claude-3-5-haiku-20241022"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
		log:    log,
	}, nil
}

// Extract runs one extraction pass over a message with its recent context.
func (c *AnthropicClient) Extract(ctx context.Context, msg *types.SessionMessage, recent []*types.SessionMessage) (*Extraction, error) {
	var b strings.Builder
	if len(recent) > 0 {
		b.WriteString("Recent context:\n")
		for _, m := range recent {
			fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Content)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Message to extract from:\n[%s] %s", msg.Role, msg.Content)

	raw, err := c.callWithRetry(ctx, extractionSystemPrompt, b.String())
	if err != nil {
		return nil, fmt.Errorf("extraction call: %w", err)
	}
	return ParseExtraction(raw)
}

// Summarize condenses a session transcript into a short summary.
func (c *AnthropicClient) Summarize(ctx context.Context, msgs []*types.SessionMessage) (string, error) {
	if len(msgs) == 0 {
		return "", nil
	}
	var b strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Content)
	}
	raw, err := c.callWithRetry(ctx, summarySystemPrompt, b.String())
	if err != nil {
		return "", fmt.Errorf("summary call: %w", err)
	}
	return strings.TrimSpace(raw), nil
}

func (c *AnthropicClient) callWithRetry(ctx context.Context, system, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			c.log.Debug("retrying anthropic call",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		message, err := c.client.Messages.New(ctx, params)
		if err != nil {
			lastErr = err
			continue
		}
		if len(message.Content) == 0 {
			return "", fmt.Errorf("empty response")
		}
		content := message.Content[0]
		if content.Type != "text" {
			return "", fmt.Errorf("unexpected response block type %q", content.Type)
		}
		return content.Text, nil
	}
	return "", fmt.Errorf("anthropic call failed after %d retries: %w", maxRetries, lastErr)
}

// ParseExtraction decodes the model's JSON reply, tolerating markdown code
// fences around the object.
func ParseExtraction(raw string) (*Extraction, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}

	var out Extraction
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("malformed extraction payload: %w", err)
	}
	return &out, nil
}
