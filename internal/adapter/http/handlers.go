package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/councild/councild/internal/adapter/litellm"
	"github.com/councild/councild/internal/adapter/ws"
	"github.com/councild/councild/internal/domain"
	"github.com/councild/councild/internal/domain/role"
	"github.com/councild/councild/internal/port/eventstore"
	"github.com/councild/councild/internal/port/humandecision"
	"github.com/councild/councild/internal/service"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	engine *service.Engine
	roles  []role.Role
	llm    *litellm.Client
	hub    *ws.Hub
	store  eventstore.Store
}

// NewHandlers creates the handler set. roles is the resolved default bench
// used when a request does not carry its own role selection.
func NewHandlers(engine *service.Engine, roles []role.Role, llm *litellm.Client, hub *ws.Hub) *Handlers {
	return &Handlers{engine: engine, roles: roles, llm: llm, hub: hub}
}

// SetEventStore attaches durable event history for concluded deliberations.
func (h *Handlers) SetEventStore(s eventstore.Store) { h.store = s }

// Health reports service liveness and the LLM proxy's reachability.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":         "ok",
		"ws_connections": h.hub.ConnectionCount(),
	}
	if h.llm != nil {
		healthy, _ := h.llm.Health(r.Context())
		resp["llm_healthy"] = healthy
	}
	writeJSON(w, http.StatusOK, resp)
}

type createDeliberationRequest struct {
	DeliberationID string `json:"deliberation_id,omitempty"`
	Proposal       string `json:"proposal"`
}

type createDeliberationResponse struct {
	DeliberationID string `json:"deliberation_id"`
}

// CreateDeliberation starts a deliberation over the posted proposal. The run
// proceeds in the background; progress is observable via the state endpoint
// and the WebSocket feed.
func (h *Handlers) CreateDeliberation(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[createDeliberationRequest](w, r)
	if !ok {
		return
	}
	if req.Proposal == "" {
		writeError(w, http.StatusBadRequest, "proposal is required")
		return
	}

	id := req.DeliberationID
	if id == "" {
		id = uuid.NewString()
	}
	start := &service.StartRequest{
		DeliberationID: id,
		Proposal:       req.Proposal,
		Roles:          h.roles,
	}

	// Validation errors past this point surface through the run itself; the
	// API only rejects what it can check synchronously.
	go func() {
		if _, err := h.engine.Deliberate(context.Background(), start); err != nil {
			slog.Error("deliberation failed", "deliberation_id", id, "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, createDeliberationResponse{DeliberationID: id})
}

// GetDeliberation returns the projected state of an active deliberation.
func (h *Handlers) GetDeliberation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	st, err := h.engine.Snapshot(id)
	if err != nil {
		writeDomainError(w, err, "deliberation not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// GetDeliberationEvents returns the event history of a deliberation. Active
// runs are served from the in-memory log; concluded ones fall back to the
// durable store when one is configured.
func (h *Handlers) GetDeliberationEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	events, err := h.engine.Events(id)
	if errors.Is(err, domain.ErrNotFound) && h.store != nil {
		events, err = h.store.Load(r.Context(), id)
		if err == nil && len(events) == 0 {
			err = domain.ErrNotFound
		}
	}
	if err != nil {
		writeDomainError(w, err, "deliberation not found")
		return
	}
	writeJSON(w, http.StatusOK, events)
}

type decisionRequest struct {
	Decision        string   `json:"decision"`
	ConsensusPoints []string `json:"consensus_points,omitempty"`
	OpenIssues      []string `json:"open_issues,omitempty"`
	Note            string   `json:"note,omitempty"`
}

// PostDecision delivers a human decision to a deliberation awaiting one.
func (h *Handlers) PostDecision(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	req, ok := readJSON[decisionRequest](w, r)
	if !ok {
		return
	}

	decision := humandecision.Decision(req.Decision)
	if !decision.Valid() {
		writeError(w, http.StatusBadRequest, "decision must be continue, resolve or terminate")
		return
	}

	delivered := h.engine.ResolveHumanDecision(id, &humandecision.Response{
		Decision:        decision,
		ConsensusPoints: req.ConsensusPoints,
		OpenIssues:      req.OpenIssues,
		Note:            req.Note,
	})
	if !delivered {
		writeError(w, http.StatusConflict, "deliberation is not awaiting a human decision")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type cancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

// CancelDeliberation concludes an active deliberation with the cancelled
// status.
func (h *Handlers) CancelDeliberation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var reason string
	if r.ContentLength > 0 {
		req, ok := readJSON[cancelRequest](w, r)
		if !ok {
			return
		}
		reason = req.Reason
	}

	if err := h.engine.Cancel(id, reason); err != nil {
		if errors.Is(err, domain.ErrConcludedDeliberation) {
			writeError(w, http.StatusConflict, "deliberation already concluded")
			return
		}
		writeDomainError(w, err, "deliberation not found")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelled"})
}

// ListRoles returns the resolved role bench.
func (h *Handlers) ListRoles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.roles)
}
