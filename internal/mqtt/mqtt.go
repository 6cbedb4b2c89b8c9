// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"
)

// Topic is the MQTT topic for experiment milestone events.
const Topic = "lab/gasrig/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "lab/gasrig/system"

// Event is an experiment milestone ready for publishing.
type Event struct {
	Timestamp      time.Time
	Source         string // "detector", "co2", "resistance", "full", "auto"
	Name           string
	ExperimentTime float64
	Results        *Results
}

// Results is the derived-quantity record attached to completion
// events.
type Results struct {
	DeltaConcentration float64
	EstimatedMass      float64
	PercolationTime    float64
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends an experiment event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Experiment ExperimentPayload `json:"experiment"`
}

// ExperimentPayload contains the milestone details.
type ExperimentPayload struct {
	Timestamp      string          `json:"timestamp"`
	Source         string          `json:"source"`
	Event          string          `json:"event"`
	ExperimentTime float64         `json:"experiment_time_s"`
	Results        *ResultsPayload `json:"results,omitempty"`
}

// ResultsPayload contains the derived quantities.
type ResultsPayload struct {
	DeltaConcentrationPPM float64 `json:"delta_concentration_ppm"`
	EstimatedMassUg       float64 `json:"estimated_mass_ug"`
	PercolationTimeS      float64 `json:"percolation_time_s"`
}

// FormatPayload creates the JSON payload for an experiment event.
func FormatPayload(event Event) ([]byte, error) {
	payload := Payload{
		Experiment: ExperimentPayload{
			Timestamp:      event.Timestamp.UTC().Format(time.RFC3339),
			Source:         event.Source,
			Event:          event.Name,
			ExperimentTime: event.ExperimentTime,
		},
	}
	if event.Results != nil {
		payload.Experiment.Results = &ResultsPayload{
			DeltaConcentrationPPM: event.Results.DeltaConcentration,
			EstimatedMassUg:       event.Results.EstimatedMass,
			PercolationTimeS:      event.Results.PercolationTime,
		}
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
