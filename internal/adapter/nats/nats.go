// Package nats implements outcome publication and the human decision inbox
// using NATS JetStream.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/councild/councild/internal/domain/deliberation"
	"github.com/councild/councild/internal/port/humandecision"
)

const streamName = "COUNCILD"

// Subjects used on the stream. Decisions arrive on
// deliberations.decision.<id>; outcomes go out on
// deliberations.outcome.<id>.
const (
	subjectDecisionPrefix = "deliberations.decision."
	subjectOutcomePrefix  = "deliberations.outcome."
)

// Bus connects councild to NATS JetStream. It is both the outcome sink and
// the transport feeding human decisions into a resolver.
type Bus struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// DecisionResolver delivers an incoming human decision to a waiting
// deliberation. Returns false when no deliberation is awaiting one.
type DecisionResolver interface {
	Resolve(deliberationID string, resp *humandecision.Response) bool
}

// Connect establishes a connection to NATS and ensures the JetStream stream exists.
func Connect(ctx context.Context, url string) (*Bus, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"deliberations.>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", streamName)
	return &Bus{nc: nc, js: js}, nil
}

// Publish sends a deliberation's terminal outcome to its outcome subject.
func (b *Bus) Publish(ctx context.Context, deliberationID string, out deliberation.Outcome) error {
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}

	subject := subjectOutcomePrefix + deliberationID
	if _, err := b.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// SubscribeDecisions consumes human decision messages and delivers them to
// the resolver. Malformed messages and decisions for deliberations that are
// not awaiting one are terminated rather than redelivered.
func (b *Bus) SubscribeDecisions(ctx context.Context, resolver DecisionResolver) (func(), error) {
	consumer, err := b.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		FilterSubject: subjectDecisionPrefix + ">",
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("nats consumer create: %w", err)
	}

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		id := msg.Subject()[len(subjectDecisionPrefix):]

		var resp humandecision.Response
		if err := json.Unmarshal(msg.Data(), &resp); err != nil {
			slog.Error("malformed human decision message", "deliberation_id", id, "error", err)
			_ = msg.Term()
			return
		}
		if !resp.Decision.Valid() {
			slog.Error("unknown human decision", "deliberation_id", id, "decision", resp.Decision)
			_ = msg.Term()
			return
		}

		if !resolver.Resolve(id, &resp) {
			slog.Warn("human decision for deliberation not awaiting one", "deliberation_id", id)
			_ = msg.Term()
			return
		}

		slog.Info("human decision delivered", "deliberation_id", id, "decision", resp.Decision)
		if ackErr := msg.Ack(); ackErr != nil {
			slog.Error("nats ack failed", "error", ackErr)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats consume: %w", err)
	}

	return cons.Stop, nil
}

// Close shuts down the NATS connection.
func (b *Bus) Close() error {
	b.nc.Close()
	return nil
}
