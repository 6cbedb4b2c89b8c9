// Package engine coordinates the experiment: it reads the devices once
// per tick, maintains the per-channel time base and sample buffers,
// runs the detectors, and drives the protocol state machines. The
// engine is a single logical thread: all state changes happen inside
// Tick or inside a command call, serialized by one mutex so the HTTP
// collaborator can issue commands between ticks.
package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/gas-rig/internal/auto"
	"github.com/sweeney/gas-rig/internal/detect"
	"github.com/sweeney/gas-rig/internal/device"
	"github.com/sweeney/gas-rig/internal/protocol"
	"github.com/sweeney/gas-rig/internal/series"
	"github.com/sweeney/gas-rig/internal/timebase"
)

// Devices bundles the capability implementations the engine drives.
// Absent hardware is represented by the no-op implementations, never
// by nil.
type Devices struct {
	Resistance device.ResistanceSensor
	Gas        device.GasSensor
	Thermal    device.ThermalActuator
	Reference  device.ReferenceSetter
	Valve      device.MechanicalActuator
	Pins       device.PinSensor
}

// Config holds the engine tuning constants.
type Config struct {
	Conductance detect.ConductanceConfig
	CO2         protocol.CO2Config
	Resistance  protocol.ResistanceConfig
	Full        protocol.FullConfig
	Auto        auto.Config

	// GasWindow is the number of trailing gas samples handed to the
	// protocols each tick.
	GasWindow int

	// FailureThreshold is the consecutive-failure count after which a
	// sensor is reported disconnected.
	FailureThreshold int
}

// Event is a milestone surfaced by a tick, ready for publishing.
type Event struct {
	Timestamp      time.Time
	ExperimentTime float64
	Source         string // "detector", "co2", "resistance", "full", "auto"
	Name           string
	Results        *protocol.Results
}

// Engine owns all experiment state.
type Engine struct {
	mu  sync.Mutex
	log *logrus.Entry
	cfg Config

	devices Devices

	tb   *timebase.Base
	set  *series.Set
	cond *detect.ConductanceTracker

	co2Proto  *protocol.CO2
	resProto  *protocol.Resistance
	fullProto *protocol.Full
	autoCtl   *auto.Controller

	timeline *Timeline

	resHealth *device.Health
	gasHealth *device.Health

	refResistance float64
	lastSetpoint  float64
	haveSetpoint  bool
	pins          device.PinStates

	started  bool
	startAt  time.Time
	tickWall time.Time
}

// New creates an engine over the given devices.
func New(cfg Config, devices Devices, log *logrus.Entry) *Engine {
	if cfg.GasWindow <= 0 {
		cfg.GasWindow = 30
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	e := &Engine{
		log:       log,
		cfg:       cfg,
		devices:   devices,
		tb:        timebase.New(),
		set:       series.NewSet(),
		cond:      detect.NewConductanceTracker(cfg.Conductance),
		timeline:  NewTimeline(),
		resHealth: device.NewHealth(cfg.FailureThreshold),
		gasHealth: device.NewHealth(cfg.FailureThreshold),
	}
	f := facade{e: e}
	e.co2Proto = protocol.NewCO2(cfg.CO2, f)
	e.resProto = protocol.NewResistance(cfg.Resistance, f)
	e.fullProto = protocol.NewFull(cfg.Full, f)
	e.autoCtl = auto.New(cfg.Auto, f)
	return e
}

// facade adapts the engine's devices to the protocol.Facade actuator
// surface. Protocols call it from inside Tick, under the engine lock.
type facade struct{ e *Engine }

// SetHeaterSetpoint writes the heater setpoint, skipping the device
// call when the setpoint is unchanged so repeated idempotent writes
// cost a single observable actuator command.
func (f facade) SetHeaterSetpoint(celsius float64) error {
	e := f.e
	if e.haveSetpoint && e.lastSetpoint == celsius {
		return nil
	}
	if err := e.devices.Thermal.SetSetpoint(celsius); err != nil {
		return fmt.Errorf("set heater setpoint: %w", err)
	}
	e.recordSetpoint(celsius)
	return nil
}

// ForceHeaterSetpoint is the raw fallback path: it bypasses the
// idempotence cache and writes directly.
func (f facade) ForceHeaterSetpoint(celsius float64) error {
	e := f.e
	var err error
	if raw, ok := e.devices.Thermal.(device.RawSetter); ok {
		err = raw.ForceSetpoint(celsius)
	} else {
		err = e.devices.Thermal.SetSetpoint(celsius)
	}
	if err != nil {
		return fmt.Errorf("force heater setpoint: %w", err)
	}
	e.recordSetpoint(celsius)
	return nil
}

func (f facade) SetReferenceResistance(ohms float64) error {
	if err := f.e.devices.Reference.SetReference(ohms); err != nil {
		return fmt.Errorf("set reference resistance: %w", err)
	}
	return nil
}

func (f facade) OpenValve() error {
	if err := f.e.devices.Valve.Open(); err != nil {
		return fmt.Errorf("open valve: %w", err)
	}
	return nil
}

func (f facade) CloseValve() error {
	if err := f.e.devices.Valve.Close(); err != nil {
		return fmt.Errorf("close valve: %w", err)
	}
	return nil
}

func (e *Engine) recordSetpoint(celsius float64) {
	e.lastSetpoint = celsius
	e.haveSetpoint = true
	now := e.tickWall
	if now.IsZero() {
		now = time.Now()
	}
	e.tb.Start(series.HeaterSetpoint, now)
	if t, ok := e.tb.Stamp(series.HeaterSetpoint, now); ok {
		e.set.Append(series.HeaterSetpoint, t, celsius)
	}
}

// expNow returns the experiment-relative time in seconds.
func (e *Engine) expNow(now time.Time) float64 {
	if !e.started {
		e.started = true
		e.startAt = now
	}
	return now.Sub(e.startAt).Seconds()
}

// Tick advances the whole engine by one poll and returns the
// milestones crossed, ready for publishing. All detector and protocol
// updates complete synchronously before Tick returns.
func (e *Engine) Tick(now time.Time) []Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.tickWall = now
	expNow := e.expNow(now)
	var out []Event
	emit := func(source, name string, at float64, results *protocol.Results) {
		out = append(out, Event{
			Timestamp:      now,
			ExperimentTime: at,
			Source:         source,
			Name:           name,
			Results:        results,
		})
	}

	// Sensor reads. A failed read means "no sample this tick", counted
	// toward the connectivity flag.
	if r, err := e.devices.Resistance.Read(); err != nil {
		e.resHealth.RecordFailure()
		if e.resHealth.ConsecutiveFailures() == e.resHealth.FailureThreshold {
			e.log.WithField("device", "resistance").Warn("sensor unreachable")
		}
	} else {
		e.resHealth.RecordSuccess()
		e.tb.Start(series.Conductance, now)
		if t, ok := e.tb.Stamp(series.Conductance, now); ok && !e.tb.Paused(series.Conductance) {
			e.set.Append(series.Resistance, t, r)
			if r > 0 {
				e.set.Append(series.Conductance, t, 1/r)
			}
		}
	}

	if g, ok := e.devices.Gas.Read(); ok {
		e.gasHealth.RecordSuccess()
		e.tb.Start(series.GasConcentration, now)
		if t, ok := e.tb.Stamp(series.GasConcentration, now); ok && !e.tb.Paused(series.GasConcentration) {
			e.set.Append(series.GasConcentration, t, g.ConcentrationPPM)
			e.set.Append(series.AmbientTemperature, t, g.TemperatureC)
			e.set.Append(series.Humidity, t, g.HumidityPct)
		}
	} else {
		// Absence of gas data is normal; the health tracker only
		// drives the connectivity flag on the status page.
		e.gasHealth.RecordFailure()
	}

	if p, err := e.devices.Pins.Read(); err == nil {
		if p != e.pins {
			e.log.WithFields(logrus.Fields{
				"retracted": p.Retracted,
				"extended":  p.Extended,
				"open":      p.Open,
				"closed":    p.Closed,
			}).Debug("pin states changed")
		}
		e.pins = p
	}

	// Detectors.
	for _, ev := range e.cond.Update(e.set) {
		e.timeline.Set(string(ev.Kind), ev.Time)
		e.log.WithFields(logrus.Fields{
			"event": string(ev.Kind),
			"t":     ev.Time,
		}).Info("conductance milestone")
		emit("detector", string(ev.Kind), ev.Time, nil)
	}

	percolation := 0.0
	if e.cond.HasIncreaseTime {
		percolation = e.cond.IncreaseTime
	}
	gasTail := e.set.Tail(series.GasConcentration, e.cfg.GasWindow)
	lastCond, condOK := e.set.Last(series.Conductance)
	lastRes, resOK := e.set.Last(series.Resistance)

	// Protocols. At most one is active (mutual exclusion enforced at
	// start), so at most one issues actuator commands this tick.
	co2WasActive := e.co2Proto.Active()
	evs, err := e.co2Proto.Tick(expNow, gasTail, percolation)
	if err != nil {
		e.log.WithError(err).Error("co2 protocol")
	}
	e.collect(&out, now, "co2", evs)
	if co2WasActive && !e.co2Proto.Active() {
		if r := e.co2Proto.Report(expNow); r.Results != nil {
			emit("co2", "RESULTS", expNow, r.Results)
		}
	}

	evs, err = e.resProto.Tick(expNow, lastRes.V, resOK)
	if err != nil {
		e.log.WithError(err).Error("resistance protocol")
	}
	e.collect(&out, now, "resistance", evs)

	fullWasActive := e.fullProto.Active()
	evs, err = e.fullProto.Tick(expNow, gasTail, lastCond, condOK, percolation)
	if err != nil {
		e.log.WithError(err).Error("full protocol")
	}
	e.collect(&out, now, "full", evs)
	if fullWasActive && !e.fullProto.Active() && e.fullProto.Step() != protocol.FullFailed {
		if r := e.fullProto.Report(expNow); r.Results != nil {
			emit("full", "RESULTS", expNow, r.Results)
		}
	}

	in := auto.Inputs{
		Cond:                e.cond,
		GasTail:             gasTail,
		Conductance:         lastCond,
		CondOK:              condOK,
		Resistance:          lastRes.V,
		ResOK:               resOK,
		ReferenceResistance: e.refResistance,
	}
	evs, err = e.autoCtl.Tick(expNow, in)
	if err != nil {
		e.log.WithError(err).Error("automatic mode")
	}
	e.collect(&out, now, "auto", evs)

	return out
}

func (e *Engine) collect(out *[]Event, now time.Time, source string, evs []protocol.Event) {
	for _, ev := range evs {
		e.timeline.Set(source+":"+ev.Name, ev.Time)
		e.log.WithFields(logrus.Fields{
			"protocol": source,
			"event":    ev.Name,
			"t":        ev.Time,
		}).Info("protocol milestone")
		*out = append(*out, Event{
			Timestamp:      now,
			ExperimentTime: ev.Time,
			Source:         source,
			Name:           ev.Name,
		})
	}
}

// activeKind returns the identifier of the running controller, if any.
func (e *Engine) activeKind() string {
	switch {
	case e.co2Proto.Active():
		return string(protocol.KindCO2)
	case e.resProto.Active():
		return string(protocol.KindResistance)
	case e.fullProto.Active():
		return string(protocol.KindFull)
	case e.autoCtl.Enabled():
		return "auto"
	}
	return ""
}

// StartProtocol starts the named protocol. Protocols are mutually
// exclusive: a start request while any controller is active is
// rejected with no state mutation.
func (e *Engine) StartProtocol(kind protocol.Kind, now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if active := e.activeKind(); active != "" {
		return fmt.Errorf("%w: %s", protocol.ErrActive, active)
	}
	expNow := e.expNow(now)
	switch kind {
	case protocol.KindCO2:
		_, hasGas := e.set.Last(series.GasConcentration)
		return e.co2Proto.Start(expNow, hasGas, e.refResistance)
	case protocol.KindResistance:
		haveThermal := e.devices.Thermal != nil
		haveSensor := e.resHealth.Connected() && e.set.Len(series.Resistance) > 0
		if e.resProto.Step() == protocol.ResistanceTargetReached {
			e.resProto.Reset()
		}
		return e.resProto.Start(expNow, haveThermal, haveSensor)
	case protocol.KindFull:
		_, hasGas := e.set.Last(series.GasConcentration)
		return e.fullProto.Start(expNow, hasGas)
	}
	return fmt.Errorf("unknown protocol %q", kind)
}

// CancelProtocol cancels the named protocol within the current tick
// boundary, always re-asserting the low heater setpoint.
func (e *Engine) CancelProtocol(kind protocol.Kind) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch kind {
	case protocol.KindCO2:
		return e.co2Proto.Cancel()
	case protocol.KindResistance:
		return e.resProto.Cancel()
	case protocol.KindFull:
		return e.fullProto.Cancel()
	}
	return fmt.Errorf("unknown protocol %q", kind)
}

// StartAuto enables the automatic-mode orchestrator.
func (e *Engine) StartAuto(now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if active := e.activeKind(); active != "" {
		return fmt.Errorf("%w: %s", protocol.ErrActive, active)
	}
	return e.autoCtl.Start(e.expNow(now))
}

// StopAuto disables the automatic-mode orchestrator, leaving the
// heater at the low setpoint.
func (e *Engine) StopAuto() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.autoCtl.Stop()
}

// ResetChannel clears one channel's buffer and clock without touching
// the others. Resetting the conductance channel also resets the
// episode tracker.
func (e *Engine) ResetChannel(ch series.Channel) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !ch.Valid() {
		return fmt.Errorf("unknown channel %d", int(ch))
	}
	e.set.Reset(ch)
	e.tb.Reset(ch)
	if ch == series.Conductance {
		e.cond.Reset()
	}
	return nil
}

// PauseChannel pauses one channel's clock. Idempotent.
func (e *Engine) PauseChannel(ch series.Channel, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tb.Pause(ch, now)
}

// ResumeChannel resumes one channel's clock. A resume without a
// preceding pause is a no-op.
func (e *Engine) ResumeChannel(ch series.Channel, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tb.Resume(ch, now)
}

// SetReferenceResistance records the operator-set reference and
// asserts it on the instrument.
func (e *Engine) SetReferenceResistance(ohms float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.refResistance = ohms
	return facade{e: e}.SetReferenceResistance(ohms)
}

// ReferenceResistance returns the operator-set reference.
func (e *Engine) ReferenceResistance() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.refResistance
}

// Snapshot returns a read-only copy of one channel for plotting.
func (e *Engine) Snapshot(ch series.Channel) []series.Sample {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.set.Snapshot(ch)
}

// TimelineSnapshot returns the milestones in first-seen order.
func (e *Engine) TimelineSnapshot() []Mark {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timeline.Snapshot()
}

// View is the per-tick state summary for the status tracker.
type View struct {
	Detection     DetectionView
	CO2           protocol.Report
	Resistance    protocol.Report
	Full          protocol.Report
	Auto          protocol.Report
	ActiveKind    string
	Pins          device.PinStates
	ResistanceOK  bool
	ResFailures   int
	GasOK         bool
	GasFailures   int
	SampleCounts  map[string]int
	RefResistance float64
	Timeline      []Mark
	AutoCycles    int
}

// DetectionView is a copy of the conductance tracker flags.
type DetectionView struct {
	IncreaseDetected  bool
	Stabilized        bool
	DecreaseDetected  bool
	Restabilized      bool
	IncreaseTime      float64
	HasIncreaseTime   bool
	StabilizationTime float64
	MaxSlope          float64
	MaxSlopeTime      float64
}

// View builds the status summary at the given time.
func (e *Engine) View(now time.Time) View {
	e.mu.Lock()
	defer e.mu.Unlock()

	expNow := e.expNow(now)
	counts := make(map[string]int, series.NumChannels)
	for ch := series.Channel(0); int(ch) < series.NumChannels; ch++ {
		counts[ch.String()] = e.set.Len(ch)
	}
	return View{
		Detection: DetectionView{
			IncreaseDetected:  e.cond.IncreaseDetected,
			Stabilized:        e.cond.Stabilized,
			DecreaseDetected:  e.cond.DecreaseDetected,
			Restabilized:      e.cond.Restabilized,
			IncreaseTime:      e.cond.IncreaseTime,
			HasIncreaseTime:   e.cond.HasIncreaseTime,
			StabilizationTime: e.cond.StabilizationTime,
			MaxSlope:          e.cond.MaxSlope,
			MaxSlopeTime:      e.cond.MaxSlopeTime,
		},
		CO2:           e.co2Proto.Report(expNow),
		Resistance:    e.resProto.Report(expNow),
		Full:          e.fullProto.Report(expNow),
		Auto:          e.autoCtl.Report(expNow),
		ActiveKind:    e.activeKind(),
		Pins:          e.pins,
		ResistanceOK:  e.resHealth.Connected(),
		ResFailures:   e.resHealth.TotalFailures(),
		GasOK:         e.gasHealth.Connected(),
		GasFailures:   e.gasHealth.TotalFailures(),
		SampleCounts:  counts,
		RefResistance: e.refResistance,
		Timeline:      e.timeline.Snapshot(),
		AutoCycles:    e.autoCtl.Cycles(),
	}
}
