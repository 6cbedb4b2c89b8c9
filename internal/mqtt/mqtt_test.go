package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestFormatPayload(t *testing.T) {
	event := Event{
		Timestamp:      time.Date(2026, 3, 1, 9, 2, 9, 0, time.UTC),
		Source:         "detector",
		Name:           "INCREASE",
		ExperimentTime: 9,
	}

	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Experiment.Timestamp != "2026-03-01T09:02:09Z" {
		t.Errorf("unexpected timestamp: %s", parsed.Experiment.Timestamp)
	}
	if parsed.Experiment.Source != "detector" {
		t.Errorf("unexpected source: %s", parsed.Experiment.Source)
	}
	if parsed.Experiment.Event != "INCREASE" {
		t.Errorf("unexpected event: %s", parsed.Experiment.Event)
	}
	if parsed.Experiment.ExperimentTime != 9 {
		t.Errorf("unexpected experiment time: %v", parsed.Experiment.ExperimentTime)
	}
	if parsed.Experiment.Results != nil {
		t.Error("expected no results on a milestone event")
	}
}

func TestFormatPayloadOmitsEmptyResults(t *testing.T) {
	payload, err := FormatPayload(Event{
		Timestamp: time.Now(),
		Source:    "co2",
		Name:      "HEATING_STARTED",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var raw map[string]map[string]interface{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, present := raw["experiment"]["results"]; present {
		t.Error("results key should be omitted when nil")
	}
}

func TestFormatPayloadWithResults(t *testing.T) {
	event := Event{
		Timestamp:      time.Date(2026, 3, 1, 9, 4, 50, 0, time.UTC),
		Source:         "co2",
		Name:           "RESULTS",
		ExperimentTime: 290,
		Results: &Results{
			DeltaConcentration: 11,
			EstimatedMass:      11 * 0.965 / 24.5 * 12,
			PercolationTime:    9,
		},
	}

	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	r := parsed.Experiment.Results
	if r == nil {
		t.Fatal("expected results payload")
	}
	if r.DeltaConcentrationPPM != 11 {
		t.Errorf("delta: got %v, want 11", r.DeltaConcentrationPPM)
	}
	if r.EstimatedMassUg != 11*0.965/24.5*12 {
		t.Errorf("mass: got %v", r.EstimatedMassUg)
	}
	if r.PercolationTimeS != 9 {
		t.Errorf("percolation: got %v, want 9", r.PercolationTimeS)
	}
}

func TestFormatSystemPayload(t *testing.T) {
	payload, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed SystemPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.System.Timestamp != "2026-03-01T09:00:00Z" {
		t.Errorf("unexpected timestamp: %s", parsed.System.Timestamp)
	}
	if parsed.System.Event != "SHUTDOWN" {
		t.Errorf("unexpected event: %s", parsed.System.Event)
	}
	if parsed.System.Reason != "SIGTERM" {
		t.Errorf("unexpected reason: %s", parsed.System.Reason)
	}
}

func TestFormatSystemPayloadOmitsEmptyReason(t *testing.T) {
	payload, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "HEARTBEAT",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var raw map[string]map[string]interface{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, present := raw["system"]["reason"]; present {
		t.Error("reason key should be omitted when empty")
	}
}

func TestFormatSystemPayloadRawPassthrough(t *testing.T) {
	raw := []byte(`{"system":{"event":"STARTUP","status":{"poll_ms":1000}}}`)

	payload, err := FormatSystemPayload(SystemEvent{
		Timestamp:  time.Now(),
		Event:      "STARTUP",
		RawPayload: raw,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("expected raw payload passthrough, got %s", payload)
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	err := f.Publish(Event{
		Timestamp: time.Now(),
		Source:    "full",
		Name:      "COMPLETE",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(f.Events))
	}
	if f.Events[0].Name != "COMPLETE" {
		t.Errorf("unexpected event name: %s", f.Events[0].Name)
	}
	if len(f.Payloads) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(f.Payloads))
	}
}

func TestFakePublisherError(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("simulated error")

	err := f.Publish(Event{Timestamp: time.Now(), Source: "co2", Name: "COMPLETE"})
	if err == nil {
		t.Error("expected error")
	}
	if len(f.Events) != 0 {
		t.Errorf("expected no events recorded on error, got %d", len(f.Events))
	}
}

func TestFakePublisherSystem(t *testing.T) {
	f := NewFakePublisher()

	err := f.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "HEARTBEAT"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.SystemEvents) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(f.SystemEvents))
	}
	if f.SystemEvents[0].Event != "HEARTBEAT" {
		t.Errorf("unexpected system event: %s", f.SystemEvents[0].Event)
	}
	if len(f.SystemPayloads) != 1 {
		t.Fatalf("expected 1 system payload, got %d", len(f.SystemPayloads))
	}
}

func TestFakePublisherClose(t *testing.T) {
	f := NewFakePublisher()
	if f.Closed {
		t.Error("should not be closed initially")
	}

	if err := f.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("expected closed after Close")
	}
}
