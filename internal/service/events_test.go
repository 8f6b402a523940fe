package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/guildhost/guildhost/internal/port/messagequeue"
)

func TestPublishEventSetsEnvelopeFields(t *testing.T) {
	queue := newMockQueue()

	publishEvent(context.Background(), queue, messagequeue.SubjectDeploymentScaled, DeploymentEvent{
		DeploymentID: "dep1",
		GuildID:      "guild1",
		Tier:         "pro",
	})

	msgs := queue.published[messagequeue.SubjectDeploymentScaled]
	if len(msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(msgs))
	}
	var ev DeploymentEvent
	if err := json.Unmarshal(msgs[0], &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.EventID == "" || ev.OccurredAt.IsZero() {
		t.Fatalf("event envelope incomplete: %+v", ev)
	}
	if ev.DeploymentID != "dep1" || ev.Tier != "pro" {
		t.Fatalf("unexpected payload: %+v", ev)
	}
}

func TestPublishEventNilQueue(t *testing.T) {
	// Must not panic.
	publishEvent(context.Background(), nil, messagequeue.SubjectDeploymentScaled, DeploymentEvent{})
}

func TestPublishEventFailureIsSwallowed(t *testing.T) {
	queue := newMockQueue()
	queue.publishErr = errors.New("nats down")

	publishEvent(context.Background(), queue, messagequeue.SubjectDeploymentScaled, DeploymentEvent{DeploymentID: "dep1"})
}
