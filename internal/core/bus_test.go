package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

func newEmbeddedBus(t *testing.T) *AlertBus {
	t.Helper()
	cfg := &BusConfig{
		Enabled:       true,
		Embedded:      true,
		Port:          -1,
		DataDir:       t.TempDir(),
		SubjectPrefix: "test",
	}
	bus, err := NewAlertBus(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewAlertBus: %v", err)
	}
	t.Cleanup(func() { bus.Close() })
	return bus
}

func TestAlertBus_Subjects(t *testing.T) {
	bus := &AlertBus{prefix: "instatrace"}
	if got := bus.AlertSubject(TierVeryHigh); got != "instatrace.alerts.VeryHigh" {
		t.Errorf("AlertSubject = %q", got)
	}
	if got := bus.RunSubject(); got != "instatrace.runs.completed" {
		t.Errorf("RunSubject = %q", got)
	}
}

func TestAlertBus_PublishAlert(t *testing.T) {
	bus := newEmbeddedBus(t)
	if !bus.IsConnected() {
		t.Fatal("bus not connected")
	}

	sub, err := bus.JetStream().SubscribeSync("test.alerts.>", nats.DeliverAll())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	alert := NewAlert("run-1", 1, sampleScored(), []string{"night-time activity"})
	if err := bus.PublishAlert(alert); err != nil {
		t.Fatalf("PublishAlert: %v", err)
	}

	msg, err := sub.NextMsg(5 * time.Second)
	if err != nil {
		t.Fatalf("NextMsg: %v", err)
	}
	if msg.Subject != "test.alerts.VeryHigh" {
		t.Errorf("subject = %q", msg.Subject)
	}
	var got Alert
	if err := json.Unmarshal(msg.Data, &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != alert.ID || got.Actor != "destiny" {
		t.Errorf("received %+v", got)
	}

	if m := bus.GetMetrics(); m["alerts_published"] != 1 || m["alerts_failed"] != 0 {
		t.Errorf("metrics = %v", m)
	}
}

func TestAlertBus_PublishRunSummary(t *testing.T) {
	bus := newEmbeddedBus(t)

	sub, err := bus.JetStream().SubscribeSync(bus.RunSubject(), nats.DeliverAll())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	summary := RunSummary{RunID: "run-9", Events: 315, Anomalies: 16, HighPriority: 4, Actors: 3}
	if err := bus.PublishRunSummary(summary); err != nil {
		t.Fatalf("PublishRunSummary: %v", err)
	}

	msg, err := sub.NextMsg(5 * time.Second)
	if err != nil {
		t.Fatalf("NextMsg: %v", err)
	}
	var got RunSummary
	if err := json.Unmarshal(msg.Data, &got); err != nil {
		t.Fatal(err)
	}
	if got.RunID != "run-9" || got.Events != 315 {
		t.Errorf("received %+v", got)
	}
	if bus.GetMetrics()["runs_published"] != 1 {
		t.Errorf("metrics = %v", bus.GetMetrics())
	}
}

func TestAlertBus_Close(t *testing.T) {
	bus := newEmbeddedBus(t)
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
	if bus.IsConnected() {
		t.Error("bus still connected after Close")
	}
	// Second close is a no-op.
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewAlertBus_ConnectFailure(t *testing.T) {
	cfg := &BusConfig{URL: "nats://127.0.0.1:1", SubjectPrefix: "x"}
	if _, err := NewAlertBus(cfg, zerolog.Nop()); err == nil {
		t.Error("expected connection error")
	}
}
