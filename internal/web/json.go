package web

import (
	"encoding/json"
	"time"

	"github.com/sweeney/gas-rig/internal/engine"
	"github.com/sweeney/gas-rig/internal/protocol"
	"github.com/sweeney/gas-rig/internal/series"
	"github.com/sweeney/gas-rig/internal/status"
)

// StatusJSON is the JSON representation of the daemon status.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	UptimeSeconds int64            `json:"uptime_seconds"`
	StartTime     string           `json:"start_time"`
	Timestamp     string           `json:"timestamp"`
	Active        string           `json:"active_protocol,omitempty"`
	Detection     DetectionJSON    `json:"detection"`
	Protocols     ProtocolsJSON    `json:"protocols"`
	Devices       DevicesJSON      `json:"devices"`
	Pins          PinsJSON         `json:"pins"`
	SampleCounts  map[string]int   `json:"sample_counts"`
	RefResistance float64          `json:"reference_resistance_ohms"`
	Timeline      []TimelineMark   `json:"timeline,omitempty"`
	MQTT          MQTTStatus       `json:"mqtt"`
	Config        ConfigJSON       `json:"config"`
}

// DetectionJSON is the JSON view of the conductance tracker.
type DetectionJSON struct {
	IncreaseDetected  bool     `json:"increase_detected"`
	Stabilized        bool     `json:"stabilized"`
	DecreaseDetected  bool     `json:"decrease_detected"`
	Restabilized      bool     `json:"restabilized"`
	PercolationTimeS  *float64 `json:"percolation_time_s,omitempty"`
	StabilizationTime float64  `json:"stabilization_time_s"`
	MaxSlope          float64  `json:"max_slope"`
}

// ProtocolsJSON groups the protocol progress reports.
type ProtocolsJSON struct {
	CO2        ProgressJSON `json:"co2"`
	Resistance ProgressJSON `json:"resistance"`
	Full       ProgressJSON `json:"full"`
	Auto       ProgressJSON `json:"auto"`
}

// ProgressJSON is the JSON view of one protocol's progress report.
type ProgressJSON struct {
	Active   bool         `json:"active"`
	Step     uint8        `json:"step"`
	Message  string       `json:"message"`
	Progress int          `json:"progress"`
	Results  *ResultsJSON `json:"results,omitempty"`
}

// ResultsJSON is the JSON view of a results record.
type ResultsJSON struct {
	DeltaConcentrationPPM float64 `json:"delta_concentration_ppm"`
	EstimatedMassUg       float64 `json:"estimated_mass_ug"`
	PercolationTimeS      float64 `json:"percolation_time_s"`
}

// DevicesJSON reports sensor connectivity.
type DevicesJSON struct {
	ResistanceConnected bool `json:"resistance_connected"`
	ResistanceFailures  int  `json:"resistance_failures"`
	GasConnected        bool `json:"gas_connected"`
	GasFailures         int  `json:"gas_failures"`
}

// PinsJSON is the JSON view of the position switches.
type PinsJSON struct {
	Retracted bool `json:"retracted"`
	Extended  bool `json:"extended"`
	Open      bool `json:"open"`
	Closed    bool `json:"closed"`
}

// TimelineMark is the JSON view of one timeline milestone.
type TimelineMark struct {
	Name  string  `json:"name"`
	TimeS float64 `json:"time_s"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs      int64  `json:"poll_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
	ConfigPath  string `json:"config_path,omitempty"`
}

func formatJSON(snap status.Snapshot) []byte {
	v := snap.View

	var percolation *float64
	if v.Detection.HasIncreaseTime {
		t := v.Detection.IncreaseTime
		percolation = &t
	}

	sj := StatusJSON{
		Status: StatusInner{
			UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
			StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
			Timestamp:     snap.Now.UTC().Format(time.RFC3339),
			Active:        v.ActiveKind,
			Detection: DetectionJSON{
				IncreaseDetected:  v.Detection.IncreaseDetected,
				Stabilized:        v.Detection.Stabilized,
				DecreaseDetected:  v.Detection.DecreaseDetected,
				Restabilized:      v.Detection.Restabilized,
				PercolationTimeS:  percolation,
				StabilizationTime: v.Detection.StabilizationTime,
				MaxSlope:          v.Detection.MaxSlope,
			},
			Protocols: ProtocolsJSON{
				CO2:        reportJSON(v.CO2),
				Resistance: reportJSON(v.Resistance),
				Full:       reportJSON(v.Full),
				Auto:       reportJSON(v.Auto),
			},
			Devices: DevicesJSON{
				ResistanceConnected: v.ResistanceOK,
				ResistanceFailures:  v.ResFailures,
				GasConnected:        v.GasOK,
				GasFailures:         v.GasFailures,
			},
			Pins: PinsJSON{
				Retracted: v.Pins.Retracted,
				Extended:  v.Pins.Extended,
				Open:      v.Pins.Open,
				Closed:    v.Pins.Closed,
			},
			SampleCounts:  v.SampleCounts,
			RefResistance: v.RefResistance,
			Timeline:      timelineJSON(v.Timeline),
			MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
			Config: ConfigJSON{
				PollMs:      snap.Config.PollMs,
				HeartbeatMs: snap.Config.HeartbeatMs,
				Broker:      snap.Config.Broker,
				HTTPAddr:    snap.Config.HTTPAddr,
				ConfigPath:  snap.Config.ConfigPath,
			},
		},
	}

	data, _ := json.MarshalIndent(sj, "", "  ")
	return data
}

func reportJSON(r protocol.Report) ProgressJSON {
	out := ProgressJSON{
		Active:   r.Active,
		Step:     r.Step,
		Message:  r.Message,
		Progress: r.Progress,
	}
	if r.Results != nil {
		out.Results = &ResultsJSON{
			DeltaConcentrationPPM: r.Results.DeltaConcentration,
			EstimatedMassUg:       r.Results.EstimatedMass,
			PercolationTimeS:      r.Results.PercolationTime,
		}
	}
	return out
}

func timelineJSON(marks []engine.Mark) []TimelineMark {
	if len(marks) == 0 {
		return nil
	}
	out := make([]TimelineMark, len(marks))
	for i, m := range marks {
		out[i] = TimelineMark{Name: m.Name, TimeS: m.Time}
	}
	return out
}

// SeriesJSON is the JSON view of one channel buffer.
type SeriesJSON struct {
	Channel string       `json:"channel"`
	Samples []SampleJSON `json:"samples"`
}

// SampleJSON is one timestamped value.
type SampleJSON struct {
	T float64 `json:"t"`
	V float64 `json:"v"`
}

func formatSeries(ch series.Channel, samples []series.Sample) SeriesJSON {
	out := SeriesJSON{Channel: ch.String(), Samples: make([]SampleJSON, len(samples))}
	for i, s := range samples {
		out.Samples[i] = SampleJSON{T: s.T, V: s.V}
	}
	return out
}

func formatTimeline(marks []engine.Mark) []TimelineMark {
	out := timelineJSON(marks)
	if out == nil {
		return []TimelineMark{}
	}
	return out
}
