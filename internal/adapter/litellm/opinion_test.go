package litellm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/councild/councild/internal/adapter/litellm"
	"github.com/councild/councild/internal/config"
	"github.com/councild/councild/internal/domain/role"
	"github.com/councild/councild/internal/domain/vote"
	"github.com/councild/councild/internal/port/opinion"
)

func testLLMConfig() config.LiteLLM {
	return config.LiteLLM{
		Model:          "openai/gpt-4o-mini",
		Temperature:    0.7,
		MaxTokens:      512,
		HistoryEntries: 20,
	}
}

func architectRequest() opinion.Request {
	return opinion.Request{
		Role:     role.Role{ID: "architect", Enabled: true, MustSpeak: true, CanVote: true, Instruction: "review structure"},
		Proposal: "adopt the queue",
		Round:    0,
	}
}

func TestGetOpinionParsesStructuredReply(t *testing.T) {
	srv := chatServer(t, `{"stance": "approve", "rationale": "clean boundaries", "confidence": 0.85}`)
	defer srv.Close()

	provider := litellm.NewOpinionProvider(litellm.NewClient(srv.URL, ""), testLLMConfig())
	res, err := provider.GetOpinion(context.Background(), architectRequest())
	if err != nil {
		t.Fatalf("get opinion failed: %v", err)
	}

	if res.Stance != vote.StanceApprove {
		t.Fatalf("unexpected stance: %s", res.Stance)
	}
	if res.Rationale != "clean boundaries" {
		t.Fatalf("unexpected rationale: %q", res.Rationale)
	}
	if res.Confidence != 0.85 {
		t.Fatalf("unexpected confidence: %f", res.Confidence)
	}
}

func TestGetOpinionToleratesFencedJSON(t *testing.T) {
	srv := chatServer(t, "Here is my review:\n```json\n{\"stance\": \"OPPOSE\", \"rationale\": \"too wide\", \"confidence\": 1.4}\n```")
	defer srv.Close()

	provider := litellm.NewOpinionProvider(litellm.NewClient(srv.URL, ""), testLLMConfig())
	res, err := provider.GetOpinion(context.Background(), architectRequest())
	if err != nil {
		t.Fatalf("get opinion failed: %v", err)
	}

	// Stance is case-normalized, confidence clamped to [0,1].
	if res.Stance != vote.StanceOppose {
		t.Fatalf("unexpected stance: %s", res.Stance)
	}
	if res.Confidence != 1.0 {
		t.Fatalf("confidence not clamped: %f", res.Confidence)
	}
}

func TestGetOpinionRejectsUnknownStance(t *testing.T) {
	srv := chatServer(t, `{"stance": "veto", "rationale": "no", "confidence": 0.5}`)
	defer srv.Close()

	provider := litellm.NewOpinionProvider(litellm.NewClient(srv.URL, ""), testLLMConfig())
	if _, err := provider.GetOpinion(context.Background(), architectRequest()); err == nil {
		t.Fatal("expected error for unknown stance")
	}
}

func TestGetOpinionRejectsProse(t *testing.T) {
	srv := chatServer(t, "I think this proposal is fine overall.")
	defer srv.Close()

	provider := litellm.NewOpinionProvider(litellm.NewClient(srv.URL, ""), testLLMConfig())
	if _, err := provider.GetOpinion(context.Background(), architectRequest()); err == nil {
		t.Fatal("expected error for non-JSON reply")
	}
}

func TestSummarizeRoundParsesDigest(t *testing.T) {
	srv := chatServer(t, `{"consensus_points": ["use postgres"], "open_issues": ["cache sizing"]}`)
	defer srv.Close()

	summarizer := litellm.NewSummarizer(litellm.NewClient(srv.URL, ""), testLLMConfig(), "summarize")
	digest, err := summarizer.SummarizeRound(context.Background(), "adopt the queue", nil, 0)
	if err != nil {
		t.Fatalf("summarize failed: %v", err)
	}

	if len(digest.ConsensusPoints) != 1 || digest.ConsensusPoints[0] != "use postgres" {
		t.Fatalf("unexpected consensus points: %v", digest.ConsensusPoints)
	}
	if len(digest.OpenIssues) != 1 || digest.OpenIssues[0] != "cache sizing" {
		t.Fatalf("unexpected open issues: %v", digest.OpenIssues)
	}
}

func TestGetOpinionHonorsExplicitZeroTemperature(t *testing.T) {
	var got litellm.ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		resp := litellm.ChatResponse{}
		resp.Choices = append(resp.Choices, struct {
			Message litellm.ChatMessage `json:"message"`
		}{Message: litellm.ChatMessage{Role: "assistant", Content: `{"stance": "approve", "rationale": "ok", "confidence": 0.9}`}})
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	provider := litellm.NewOpinionProvider(litellm.NewClient(srv.URL, ""), testLLMConfig())

	zero := 0.0
	req := architectRequest()
	req.Role.Temperature = &zero
	if _, err := provider.GetOpinion(context.Background(), req); err != nil {
		t.Fatalf("get opinion failed: %v", err)
	}
	if got.Temperature == nil || *got.Temperature != 0 {
		t.Fatalf("expected explicit temperature 0 in request, got %v", got.Temperature)
	}

	req.Role.Temperature = nil
	if _, err := provider.GetOpinion(context.Background(), req); err != nil {
		t.Fatalf("get opinion failed: %v", err)
	}
	if got.Temperature == nil || *got.Temperature != 0.7 {
		t.Fatalf("expected default temperature 0.7 in request, got %v", got.Temperature)
	}
}
