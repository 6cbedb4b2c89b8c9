package auto

import (
	"errors"
	"testing"

	"github.com/sweeney/gas-rig/internal/detect"
	"github.com/sweeney/gas-rig/internal/series"
)

// fakeFacade records actuator commands and can fail the next N calls
// of each kind.
type fakeFacade struct {
	setpoints []float64
	forced    []float64
	refs      []float64
	valve     []string

	setFails   int
	refFails   int
	valveFails int
}

func (f *fakeFacade) SetHeaterSetpoint(c float64) error {
	if f.setFails > 0 {
		f.setFails--
		return errors.New("setpoint write failed")
	}
	f.setpoints = append(f.setpoints, c)
	return nil
}

func (f *fakeFacade) ForceHeaterSetpoint(c float64) error {
	f.forced = append(f.forced, c)
	return nil
}

func (f *fakeFacade) SetReferenceResistance(ohms float64) error {
	if f.refFails > 0 {
		f.refFails--
		return errors.New("reference write failed")
	}
	f.refs = append(f.refs, ohms)
	return nil
}

func (f *fakeFacade) OpenValve() error {
	if f.valveFails > 0 {
		f.valveFails--
		return errors.New("valve open failed")
	}
	f.valve = append(f.valve, "open")
	return nil
}

func (f *fakeFacade) CloseValve() error {
	if f.valveFails > 0 {
		f.valveFails--
		return errors.New("valve close failed")
	}
	f.valve = append(f.valve, "close")
	return nil
}

func testAutoConfig() Config {
	return Config{
		HighTemperature:     250,
		LowTemperature:      40,
		ValveSettle:         15,
		StabilityTimeout:    180,
		HeatingTimeout:      180,
		NearZeroConductance: 0.01,
		ReferenceTolerance:  50,
		Gas: detect.GasConfig{
			StabilityTolerance: 15,
			StabilityDuration:  120,
			PeakRise:           5,
			PeakDrop:           1,
		},
	}
}

// stabilizedCond returns a conductance tracker already past
// stabilization, the trigger condition for a cycle.
func stabilizedCond() *detect.ConductanceTracker {
	c := detect.NewConductanceTracker(detect.ConductanceConfig{Window: 10})
	c.IncreaseDetected = true
	c.Stabilized = true
	return c
}

func contains(names []string, want string) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}

func TestAutoFullCycle(t *testing.T) {
	f := &fakeFacade{}
	c := New(testAutoConfig(), f)
	cond := stabilizedCond()
	gas := series.NewSet()

	if err := c.Start(0); err != nil {
		t.Fatalf("start: %v", err)
	}

	tick := func(now float64, in Inputs) []string {
		events, err := c.Tick(now, in)
		if err != nil {
			t.Fatalf("tick error at t=%v: %v", now, err)
		}
		out := make([]string, len(events))
		for i, e := range events {
			out[i] = e.Name
		}
		return out
	}

	// Monitoring: nothing happens until the detector stabilizes.
	if ev := tick(5, Inputs{Cond: detect.NewConductanceTracker(detect.ConductanceConfig{Window: 10})}); len(ev) != 0 {
		t.Fatalf("expected quiet monitoring, got %v", ev)
	}
	ev := tick(10, Inputs{Cond: cond})
	if !contains(ev, "AUTO_STABILIZED") {
		t.Fatalf("expected stabilization trigger, got %v", ev)
	}

	// Valve closes and settles for 15s.
	ev = tick(11, Inputs{Cond: cond})
	if !contains(ev, "AUTO_VALVE_CLOSED") {
		t.Fatalf("expected valve close, got %v", ev)
	}
	if ev := tick(20, Inputs{Cond: cond}); len(ev) != 0 {
		t.Fatalf("expected settle wait, got %v", ev)
	}
	tick(26, Inputs{Cond: cond}) // settle elapsed

	// Reference re-asserted; measured resistance within tolerance.
	ev = tick(27, Inputs{Cond: cond, ResOK: true, Resistance: 1e6 + 30, ReferenceResistance: 1e6})
	if !contains(ev, "AUTO_REFERENCE_OK") {
		t.Fatalf("expected reference confirmation, got %v", ev)
	}
	if len(f.refs) != 1 || f.refs[0] != 1e6 {
		t.Errorf("expected one reference write, got %v", f.refs)
	}

	// Gas stability wait, then heating.
	gas.Append(series.GasConcentration, 28, 400)
	tick(28, Inputs{Cond: cond, GasTail: gas.Tail(series.GasConcentration, 5)})
	gas.Append(series.GasConcentration, 148, 400)
	ev = tick(148, Inputs{Cond: cond, GasTail: gas.Tail(series.GasConcentration, 5)})
	if !contains(ev, "AUTO_HEATING") {
		t.Fatalf("expected heating after gas stability, got %v", ev)
	}
	if len(f.setpoints) != 1 || f.setpoints[0] != 250 {
		t.Errorf("expected one high setpoint, got %v", f.setpoints)
	}

	// Heating until the conductance collapses.
	if ev := tick(150, Inputs{Cond: cond, CondOK: true, Conductance: series.Sample{T: 150, V: 0.5}}); len(ev) != 0 {
		t.Fatalf("expected heating to continue, got %v", ev)
	}
	tick(160, Inputs{Cond: cond, CondOK: true, Conductance: series.Sample{T: 160, V: 0.005}})

	// Cooldown lowers the heater.
	ev = tick(161, Inputs{Cond: cond})
	if !contains(ev, "AUTO_COOLDOWN") {
		t.Fatalf("expected cooldown, got %v", ev)
	}
	if len(f.setpoints) != 2 || f.setpoints[1] != 40 {
		t.Errorf("expected a low setpoint, got %v", f.setpoints)
	}

	// Confirmed near-zero reopens the valve and completes the cycle.
	ev = tick(162, Inputs{Cond: cond, CondOK: true, Conductance: series.Sample{T: 162, V: 0.005}})
	if !contains(ev, "AUTO_CYCLE_COMPLETE") {
		t.Fatalf("expected cycle completion, got %v", ev)
	}
	if c.Cycles() != 1 {
		t.Errorf("expected 1 completed cycle, got %d", c.Cycles())
	}
	if c.Step() != Monitoring {
		t.Errorf("expected return to monitoring, got %v", c.Step())
	}
	if len(f.valve) != 2 || f.valve[1] != "open" {
		t.Errorf("expected close then open, got %v", f.valve)
	}
}

func TestAutoGasStabilityTimeout(t *testing.T) {
	f := &fakeFacade{}
	c := New(testAutoConfig(), f)
	cond := stabilizedCond()
	gas := series.NewSet()

	c.Start(0)
	c.Tick(10, Inputs{Cond: cond})
	c.Tick(11, Inputs{Cond: cond})
	c.Tick(26, Inputs{Cond: cond})
	c.Tick(27, Inputs{Cond: cond, ResOK: true, Resistance: 1e6, ReferenceResistance: 1e6})
	if c.Step() != GasStabilityWait {
		t.Fatalf("setup: expected gas wait, got %v", c.Step())
	}

	// The gas never settles; heating starts anyway at the timeout.
	v := 400.0
	for now := 30.0; now < 207; now += 10 {
		v += 30
		gas.Append(series.GasConcentration, now, v)
		events, _ := c.Tick(now, Inputs{Cond: cond, GasTail: gas.Tail(series.GasConcentration, 5)})
		if len(events) != 0 {
			t.Fatalf("expected quiet wait at t=%v, got %v", now, events)
		}
	}
	gas.Append(series.GasConcentration, 207, v+30)
	events, _ := c.Tick(207, Inputs{Cond: cond, GasTail: gas.Tail(series.GasConcentration, 5)})
	found := false
	for _, e := range events {
		if e.Name == "AUTO_HEATING" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected heating at the stability timeout, got %v", events)
	}
}

func TestAutoHeatingTimeout(t *testing.T) {
	f := &fakeFacade{}
	c := New(testAutoConfig(), f)
	cond := stabilizedCond()
	gas := series.NewSet()

	c.Start(0)
	c.Tick(10, Inputs{Cond: cond})
	c.Tick(11, Inputs{Cond: cond})
	c.Tick(26, Inputs{Cond: cond})
	c.Tick(27, Inputs{Cond: cond, ResOK: true, Resistance: 1e6, ReferenceResistance: 1e6})
	gas.Append(series.GasConcentration, 28, 400)
	c.Tick(28, Inputs{Cond: cond, GasTail: gas.Tail(series.GasConcentration, 5)})
	gas.Append(series.GasConcentration, 148, 400)
	c.Tick(148, Inputs{Cond: cond, GasTail: gas.Tail(series.GasConcentration, 5)})
	if c.Step() != Heating {
		t.Fatalf("setup: expected heating, got %v", c.Step())
	}

	// The conductance never collapses; cooldown is forced at the
	// heating timeout so the cell cannot cook forever.
	c.Tick(300, Inputs{Cond: cond, CondOK: true, Conductance: series.Sample{T: 300, V: 0.8}})
	if c.Step() != Heating {
		t.Fatal("heating should continue inside the window")
	}
	c.Tick(328, Inputs{Cond: cond, CondOK: true, Conductance: series.Sample{T: 328, V: 0.8}})
	if c.Step() != Cooldown {
		t.Errorf("expected forced cooldown at the timeout, got %v", c.Step())
	}
}

func TestAutoReferenceOutsideTolerance(t *testing.T) {
	f := &fakeFacade{}
	c := New(testAutoConfig(), f)
	cond := stabilizedCond()

	c.Start(0)
	c.Tick(10, Inputs{Cond: cond})
	c.Tick(11, Inputs{Cond: cond})
	c.Tick(26, Inputs{Cond: cond})

	// Measured resistance is 100 ohms off a 50 ohm tolerance: the
	// orchestrator keeps re-asserting rather than heating a drifting
	// cell.
	for now := 27.0; now < 30; now++ {
		events, _ := c.Tick(now, Inputs{Cond: cond, ResOK: true, Resistance: 1e6 + 100, ReferenceResistance: 1e6})
		if len(events) != 0 {
			t.Fatalf("expected no progress outside tolerance, got %v", events)
		}
	}
	if c.Step() != ReassertReference {
		t.Errorf("expected to stay re-asserting, got %v", c.Step())
	}
	if len(f.refs) != 3 {
		t.Errorf("expected a reference write per tick, got %d", len(f.refs))
	}
}

func TestAutoRetryOnceThenMonitoring(t *testing.T) {
	f := &fakeFacade{valveFails: 2}
	c := New(testAutoConfig(), f)
	cond := stabilizedCond()

	c.Start(0)
	c.Tick(10, Inputs{Cond: cond})

	// First failure is retried silently.
	events, err := c.Tick(11, Inputs{Cond: cond})
	if err != nil || len(events) != 0 {
		t.Fatalf("first failure should be silent, got %v / %v", events, err)
	}
	if c.Step() != ClosingValve {
		t.Fatal("machine should hold the step for the retry")
	}

	// Second failure surfaces and drops back to monitoring.
	events, err = c.Tick(12, Inputs{Cond: cond})
	if err == nil {
		t.Error("expected the second failure to surface")
	}
	found := false
	for _, e := range events {
		if e.Name == "AUTO_VALVE_ERROR" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected valve error event, got %v", events)
	}
	if c.Step() != Monitoring {
		t.Errorf("expected return to monitoring, got %v", c.Step())
	}
}

func TestAutoRetrySucceeds(t *testing.T) {
	f := &fakeFacade{valveFails: 1}
	c := New(testAutoConfig(), f)
	cond := stabilizedCond()

	c.Start(0)
	c.Tick(10, Inputs{Cond: cond})
	c.Tick(11, Inputs{Cond: cond}) // fails, retry pending
	events, err := c.Tick(12, Inputs{Cond: cond})
	if err != nil {
		t.Fatalf("retry should succeed: %v", err)
	}
	found := false
	for _, e := range events {
		if e.Name == "AUTO_VALVE_CLOSED" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected valve closed on the retry, got %v", events)
	}
}

func TestAutoStopLowersHeaterWhileHeating(t *testing.T) {
	f := &fakeFacade{}
	c := New(testAutoConfig(), f)
	cond := stabilizedCond()
	gas := series.NewSet()

	c.Start(0)
	c.Tick(10, Inputs{Cond: cond})
	c.Tick(11, Inputs{Cond: cond})
	c.Tick(26, Inputs{Cond: cond})
	c.Tick(27, Inputs{Cond: cond, ResOK: true, Resistance: 1e6, ReferenceResistance: 1e6})
	gas.Append(series.GasConcentration, 28, 400)
	c.Tick(28, Inputs{Cond: cond, GasTail: gas.Tail(series.GasConcentration, 5)})
	gas.Append(series.GasConcentration, 148, 400)
	c.Tick(148, Inputs{Cond: cond, GasTail: gas.Tail(series.GasConcentration, 5)})
	if c.Step() != Heating {
		t.Fatal("setup: expected heating")
	}

	if err := c.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if c.Enabled() {
		t.Error("controller should be disabled")
	}
	last := f.setpoints[len(f.setpoints)-1]
	if last != 40 {
		t.Errorf("expected the heater left low, got %v", last)
	}
}

func TestAutoStopLowersHeaterDuringCooldown(t *testing.T) {
	f := &fakeFacade{}
	c := New(testAutoConfig(), f)
	cond := stabilizedCond()
	gas := series.NewSet()

	c.Start(0)
	c.Tick(10, Inputs{Cond: cond})
	c.Tick(11, Inputs{Cond: cond})
	c.Tick(26, Inputs{Cond: cond})
	c.Tick(27, Inputs{Cond: cond, ResOK: true, Resistance: 1e6, ReferenceResistance: 1e6})
	gas.Append(series.GasConcentration, 28, 400)
	c.Tick(28, Inputs{Cond: cond, GasTail: gas.Tail(series.GasConcentration, 5)})
	gas.Append(series.GasConcentration, 148, 400)
	c.Tick(148, Inputs{Cond: cond, GasTail: gas.Tail(series.GasConcentration, 5)})

	// The regeneration condition moves the machine into Cooldown; the
	// low-setpoint write is still pending for the next tick.
	c.Tick(160, Inputs{Cond: cond, CondOK: true, Conductance: series.Sample{T: 160, V: 0.005}})
	if c.Step() != Cooldown {
		t.Fatal("setup: expected cooldown")
	}

	if err := c.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if c.Enabled() {
		t.Error("controller should be disabled")
	}
	last := f.setpoints[len(f.setpoints)-1]
	if last != 40 {
		t.Errorf("expected the heater left low, got %v", last)
	}
}

func TestAutoStartWhileEnabled(t *testing.T) {
	c := New(testAutoConfig(), &fakeFacade{})
	c.Start(0)
	if err := c.Start(1); err == nil {
		t.Error("expected an error starting twice")
	}
}

func TestAutoStopWhileDisabledIsNoop(t *testing.T) {
	f := &fakeFacade{}
	c := New(testAutoConfig(), f)
	if err := c.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if len(f.setpoints)+len(f.forced) != 0 {
		t.Error("stopping a disabled controller must not touch the heater")
	}
}
