package litellm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/councild/councild/internal/config"
	"github.com/councild/councild/internal/domain/event"
	"github.com/councild/councild/internal/port/summary"
)

// Summarizer distills a completed round into consensus points and open
// issues using the clerk instruction.
type Summarizer struct {
	client      *Client
	cfg         config.LiteLLM
	instruction string
}

// NewSummarizer creates a round summarizer. The instruction is the clerk's
// system prompt.
func NewSummarizer(client *Client, cfg config.LiteLLM, instruction string) *Summarizer {
	return &Summarizer{client: client, cfg: cfg, instruction: instruction}
}

// SummarizeRound asks the summary model to condense the round's discussion.
func (s *Summarizer) SummarizeRound(ctx context.Context, proposal string, history []event.Event, round int) (*summary.RoundDigest, error) {
	model := s.cfg.SummaryModel
	if model == "" {
		model = s.cfg.Model
	}

	content, err := s.client.Complete(ctx, ChatRequest{
		Model: model,
		Messages: []ChatMessage{
			{Role: "system", Content: summarySystemPrompt(s.instruction)},
			{Role: "user", Content: summaryUserPrompt(proposal, history, round, s.cfg.HistoryEntries)},
		},
		MaxTokens: s.cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("summarize round %d: %w", round, err)
	}

	var digest summary.RoundDigest
	if err := json.Unmarshal(extractJSON(content), &digest); err != nil {
		return nil, fmt.Errorf("summarize round %d: parse digest: %w", round, err)
	}
	return &digest, nil
}

func summarySystemPrompt(instruction string) string {
	var b strings.Builder
	b.WriteString(instruction)
	b.WriteString("\n\nRespond with a single JSON object and nothing else:\n")
	b.WriteString(`{"consensus_points": ["..."], "open_issues": ["..."]}`)
	return b.String()
}

func summaryUserPrompt(proposal string, history []event.Event, round, maxEntries int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Proposal under review:\n\n%s\n\nRound just completed: %d\n", proposal, round)

	entries := historyLines(history, maxEntries)
	if len(entries) > 0 {
		b.WriteString("\nDiscussion so far:\n")
		for _, line := range entries {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}

	b.WriteString("\nSummarize what the reviewers now agree on and what remains unresolved.")
	return b.String()
}
