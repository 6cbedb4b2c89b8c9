package status

import (
	"encoding/json"
	"time"
)

// statusEvent is the payload for system lifecycle events that carry a
// full status snapshot (STARTUP, SHUTDOWN, HEARTBEAT).
type statusEvent struct {
	System systemInner `json:"system"`
}

type systemInner struct {
	Timestamp     string         `json:"timestamp"`
	Event         string         `json:"event"`
	Reason        string         `json:"reason,omitempty"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Active        string         `json:"active_protocol,omitempty"`
	SampleCounts  map[string]int `json:"sample_counts,omitempty"`
	MQTTConnected bool           `json:"mqtt_connected"`
	Devices       devicesInner   `json:"devices"`
	Config        configInner    `json:"config"`
}

type devicesInner struct {
	Resistance bool `json:"resistance_connected"`
	Gas        bool `json:"gas_connected"`
}

type configInner struct {
	PollMs      int64  `json:"poll_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
}

// FormatStatusEvent creates the JSON payload for a system event that
// carries a full status snapshot.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	se := statusEvent{
		System: systemInner{
			Timestamp:     snap.Now.UTC().Format(time.RFC3339),
			Event:         event,
			Reason:        reason,
			UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
			Active:        snap.View.ActiveKind,
			SampleCounts:  snap.View.SampleCounts,
			MQTTConnected: snap.MQTTConnected,
			Devices: devicesInner{
				Resistance: snap.View.ResistanceOK,
				Gas:        snap.View.GasOK,
			},
			Config: configInner{
				PollMs:      snap.Config.PollMs,
				HeartbeatMs: snap.Config.HeartbeatMs,
				Broker:      snap.Config.Broker,
				HTTPAddr:    snap.Config.HTTPAddr,
			},
		},
	}
	data, _ := json.Marshal(se)
	return data
}
