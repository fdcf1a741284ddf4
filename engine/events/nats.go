package events

import (
	"context"
	"fmt"

	"github.com/WessleyAI/bugbot/pkg/natsutil"
	"github.com/nats-io/nats.go"
)

// DefaultSubject is the NATS subject events are mirrored to.
const DefaultSubject = "bugbot.events"

// NATS mirrors events onto a subject. Subscribers receive the same JSON the
// webhook gets; the event type is appended to the subject
// (bugbot.events.query, bugbot.events.error).
type NATS struct {
	nc      *nats.Conn
	subject string
}

// NewNATS creates a NATS sink on an existing connection.
func NewNATS(nc *nats.Conn, subject string) *NATS {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATS{nc: nc, subject: subject}
}

// Subject returns the full subject an event of the given type is published on.
func Subject(base, eventType string) string {
	return base + "." + eventType
}

// Deliver publishes ev. The span context in ctx, if any, is injected into
// the message headers by the global propagator.
func (n *NATS) Deliver(ctx context.Context, ev Event) error {
	if err := natsutil.Publish(ctx, n.nc, Subject(n.subject, ev.Type()), ev); err != nil {
		return fmt.Errorf("nats: publish %s event: %w", ev.Type(), err)
	}
	return nil
}
