package litellm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/councild/councild/internal/config"
	"github.com/councild/councild/internal/domain/event"
	"github.com/councild/councild/internal/domain/vote"
	"github.com/councild/councild/internal/port/opinion"
)

// OpinionProvider produces structured role opinions through the LiteLLM
// proxy. It is stateless and safe for concurrent use.
type OpinionProvider struct {
	client *Client
	cfg    config.LiteLLM
}

// NewOpinionProvider creates an opinion provider backed by the given client.
func NewOpinionProvider(client *Client, cfg config.LiteLLM) *OpinionProvider {
	return &OpinionProvider{client: client, cfg: cfg}
}

// rawOpinion is the JSON shape the model is asked to produce.
type rawOpinion struct {
	Stance     string  `json:"stance"`
	Rationale  string  `json:"rationale"`
	Confidence float64 `json:"confidence"`
}

// GetOpinion asks the role's model for its opinion on the proposal.
func (p *OpinionProvider) GetOpinion(ctx context.Context, req opinion.Request) (*opinion.Result, error) {
	model := req.Role.Model
	if model == "" {
		model = p.cfg.Model
	}
	// A role carries explicit temperature=0 as a set value; only an
	// unset role temperature falls back to the configured default.
	temperature := req.Role.Temperature
	if temperature == nil {
		temperature = &p.cfg.Temperature
	}

	content, err := p.client.Complete(ctx, ChatRequest{
		Model: model,
		Messages: []ChatMessage{
			{Role: "system", Content: opinionSystemPrompt(req.Role.Instruction)},
			{Role: "user", Content: opinionUserPrompt(req.Proposal, req.History, req.Round, p.cfg.HistoryEntries)},
		},
		Temperature: temperature,
		MaxTokens:   p.cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("role %s: %w", req.Role.ID, err)
	}

	var raw rawOpinion
	if err := json.Unmarshal(extractJSON(content), &raw); err != nil {
		return nil, fmt.Errorf("role %s: parse opinion: %w", req.Role.ID, err)
	}

	stance := strings.ToLower(strings.TrimSpace(raw.Stance))
	if !vote.ValidStance(stance) {
		return nil, fmt.Errorf("role %s: unknown stance %q", req.Role.ID, raw.Stance)
	}

	return &opinion.Result{
		Stance:     vote.Stance(stance),
		Rationale:  strings.TrimSpace(raw.Rationale),
		Confidence: clampUnit(raw.Confidence),
	}, nil
}

func opinionSystemPrompt(instruction string) string {
	var b strings.Builder
	b.WriteString(instruction)
	b.WriteString("\n\nRespond with a single JSON object and nothing else:\n")
	b.WriteString(`{"stance": "approve|oppose|abstain", "rationale": "<your reasoning>", "confidence": <0.0-1.0>}`)
	return b.String()
}

func opinionUserPrompt(proposal string, history []event.Event, round, maxEntries int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Proposal under review:\n\n%s\n\nCurrent round: %d\n", proposal, round)

	entries := historyLines(history, maxEntries)
	if len(entries) > 0 {
		b.WriteString("\nDiscussion so far:\n")
		for _, line := range entries {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}

	b.WriteString("\nGive your opinion for this round.")
	return b.String()
}

// historyLines renders the most recent opinion and round events as prompt
// context, capped at maxEntries lines.
func historyLines(history []event.Event, maxEntries int) []string {
	if maxEntries < 1 {
		maxEntries = 1
	}

	var lines []string
	for _, ev := range history {
		switch ev.Kind {
		case event.KindOpinionSubmitted:
			var p event.OpinionPayload
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				continue
			}
			lines = append(lines, fmt.Sprintf("[round %d] %s (%s): %s", ev.Round, ev.RoleID, p.Stance, p.Rationale))
		case event.KindRoundAdvanced:
			var p event.RoundAdvancedPayload
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				continue
			}
			if len(p.ConsensusPoints) > 0 {
				lines = append(lines, fmt.Sprintf("[round %d] agreed: %s", ev.Round, strings.Join(p.ConsensusPoints, "; ")))
			}
			if len(p.OpenIssues) > 0 {
				lines = append(lines, fmt.Sprintf("[round %d] open: %s", ev.Round, strings.Join(p.OpenIssues, "; ")))
			}
		case event.KindHumanDecisionReceived:
			var p event.HumanDecisionPayload
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				continue
			}
			if p.Note != "" {
				lines = append(lines, fmt.Sprintf("[round %d] human guidance: %s", ev.Round, p.Note))
			}
		}
	}

	if len(lines) > maxEntries {
		lines = lines[len(lines)-maxEntries:]
	}
	return lines
}

// extractJSON returns the first top-level JSON object in the content,
// tolerating markdown fences and surrounding prose.
func extractJSON(content string) []byte {
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start < 0 || end <= start {
		return []byte(content)
	}
	return []byte(content[start : end+1])
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
