package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/WessleyAI/bugbot/pkg/resilience"
)

func startNATS(t *testing.T) *nats.Conn {
	t.Helper()
	ns, err := natsserver.NewServer(&natsserver.Options{Port: -1})
	if err != nil {
		t.Fatal(err)
	}
	ns.Start()
	t.Cleanup(ns.Shutdown)
	if !ns.ReadyForConnections(2 * time.Second) {
		t.Fatal("nats not ready")
	}
	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(nc.Close)
	return nc
}

func TestNATS_DeliverQueryEvent(t *testing.T) {
	nc := startNATS(t)

	sub, err := nc.SubscribeSync("bugbot.events.query")
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	sink := NewNATS(nc, "")
	if err := sink.Deliver(context.Background(), NewQueryEvent("q", 1, "b1", 0.9)); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	msg, err := sub.NextMsg(5 * time.Second)
	if err != nil {
		t.Fatalf("NextMsg: %v", err)
	}
	var got QueryEvent
	if err := json.Unmarshal(msg.Data, &got); err != nil {
		t.Fatal(err)
	}
	if got.EventType != TypeQuery || got.Query != "q" || got.TopResultID == nil || *got.TopResultID != "b1" {
		t.Fatalf("unexpected event %+v", got)
	}
}

func TestNATS_DeliverErrorEventSubject(t *testing.T) {
	nc := startNATS(t)

	sub, err := nc.SubscribeSync("custom.events.>")
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	sink := NewNATS(nc, "custom.events")
	if err := sink.Deliver(context.Background(), NewErrorEvent("catalog_query", context.DeadlineExceeded)); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	msg, err := sub.NextMsg(5 * time.Second)
	if err != nil {
		t.Fatalf("NextMsg: %v", err)
	}
	if msg.Subject != "custom.events.error" {
		t.Fatalf("unexpected subject %s", msg.Subject)
	}
	var got ErrorEvent
	if err := json.Unmarshal(msg.Data, &got); err != nil {
		t.Fatal(err)
	}
	if got.ErrorType != "catalog_query" || got.ErrorMessage != context.DeadlineExceeded.Error() {
		t.Fatalf("unexpected event %+v", got)
	}
}

func TestDispatcher_CarriesSpanContextToNATSHeaders(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	nc := startNATS(t)
	sub, err := nc.SubscribeSync("bugbot.events.query")
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})

	d := NewDispatcher(time.Second, quietLogger(), nil)
	d.Add("nats", NewNATS(nc, ""), resilience.DefaultBreakerOpts)
	defer d.Close()

	// The request context is gone by the time delivery runs.
	ctx, cancel := context.WithCancel(trace.ContextWithSpanContext(context.Background(), sc))
	d.Emit(ctx, NewQueryEvent("q", 1, "b1", 0.9))
	cancel()

	msg, err := sub.NextMsg(5 * time.Second)
	if err != nil {
		t.Fatalf("NextMsg: %v", err)
	}
	want := "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	if got := msg.Header.Get("traceparent"); got != want {
		t.Fatalf("traceparent = %q, want %q", got, want)
	}
}
