package main

import (
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/gas-rig/internal/config"
	"github.com/sweeney/gas-rig/internal/device"
	"github.com/sweeney/gas-rig/internal/engine"
	"github.com/sweeney/gas-rig/internal/mqtt"
	"github.com/sweeney/gas-rig/internal/protocol"
	"github.com/sweeney/gas-rig/internal/status"
)

type loopRig struct {
	eng     *engine.Engine
	pub     *mqtt.FakePublisher
	tracker *status.Tracker

	mu   sync.Mutex
	cur  time.Time
	tick chan time.Time
	sig  chan os.Signal
	done chan error
}

func newLoopRig(t *testing.T, resSamples []float64, heartbeat time.Duration) *loopRig {
	t.Helper()

	gasSamples := []device.GasReading{{ConcentrationPPM: 400, TemperatureC: 22, HumidityPct: 45}}

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	entry := logrus.NewEntry(log)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	eng := engine.New(config.Default().Engine(), engine.Devices{
		Resistance: device.NewFakeResistanceSensor(resSamples),
		Gas:        device.NewFakeGasSensor(gasSamples),
		Thermal:    device.NewFakeThermalActuator(),
		Reference:  &device.FakeReferenceSetter{},
		Valve:      device.NewFakeMechanicalActuator(),
		Pins:       &device.FakePinSensor{},
	}, entry)

	r := &loopRig{
		eng:  eng,
		pub:  mqtt.NewFakePublisher(),
		cur:  base,
		tick: make(chan time.Time),
		sig:  make(chan os.Signal),
		done: make(chan error, 1),
	}
	r.pub.Connected = true
	r.tracker = status.NewTracker(base, status.Config{
		PollMs:      1000,
		HeartbeatMs: heartbeat.Milliseconds(),
		Broker:      "tcp://192.168.1.200:1883",
		HTTPAddr:    ":8080",
	})

	go func() {
		r.done <- runLoop(eng, r.pub, r.pub, r.tracker, heartbeat, r.now, r.tick, r.sig, entry)
	}()
	return r
}

func (r *loopRig) now() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cur
}

// step advances the clock and delivers one tick.
func (r *loopRig) step(d time.Duration) {
	r.mu.Lock()
	r.cur = r.cur.Add(d)
	r.mu.Unlock()
	r.tick <- r.now()
}

// shutdown sends the signal and waits for the loop to exit.
func (r *loopRig) shutdown(t *testing.T, s os.Signal) {
	t.Helper()
	r.sig <- s
	select {
	case err := <-r.done:
		if err != nil {
			t.Fatalf("runLoop returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runLoop did not exit after signal")
	}
}

func TestRunLoopShutdownEvent(t *testing.T) {
	r := newLoopRig(t, []float64{1000}, 0)
	r.step(time.Second)
	r.shutdown(t, syscall.SIGTERM)

	if len(r.pub.SystemEvents) == 0 {
		t.Fatal("expected a system event")
	}
	last := r.pub.SystemEvents[len(r.pub.SystemEvents)-1]
	if last.Event != "SHUTDOWN" {
		t.Errorf("event: got %q, want SHUTDOWN", last.Event)
	}
	if last.Reason != "SIGTERM" {
		t.Errorf("reason: got %q, want SIGTERM", last.Reason)
	}
	if !last.Retained {
		t.Error("shutdown event should be retained")
	}
	if last.RawPayload == nil {
		t.Error("shutdown event should carry a status snapshot")
	}
}

func TestRunLoopPublishesDetectorEvents(t *testing.T) {
	// Resistance falls so conductance ramps 0.3/s, which lands in the
	// slope band once the detection window fills.
	rs := make([]float64, 12)
	for i := range rs {
		rs[i] = 1 / (0.1 + 0.3*float64(i))
	}
	r := newLoopRig(t, rs, 0)

	for i := 0; i < 10; i++ {
		r.step(time.Second)
	}
	r.shutdown(t, syscall.SIGINT)

	var found *mqtt.Event
	for i := range r.pub.Events {
		if r.pub.Events[i].Name == "INCREASE" {
			found = &r.pub.Events[i]
			break
		}
	}
	if found == nil {
		t.Fatalf("expected an INCREASE event, got %d events", len(r.pub.Events))
	}
	if found.Source != "detector" {
		t.Errorf("source: got %q, want detector", found.Source)
	}

	// The loop keeps the tracker fresh for HTTP consumers.
	snap := r.tracker.Snapshot()
	if !snap.View.Detection.IncreaseDetected {
		t.Error("expected increase flag in tracker snapshot")
	}
	if snap.View.SampleCounts["resistance"] != 10 {
		t.Errorf("resistance samples: got %d, want 10", snap.View.SampleCounts["resistance"])
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	r := newLoopRig(t, []float64{1000}, 5*time.Second)

	for i := 0; i < 6; i++ {
		r.step(time.Second)
	}
	r.shutdown(t, syscall.SIGTERM)

	var beats int
	for _, ev := range r.pub.SystemEvents {
		if ev.Event == "HEARTBEAT" {
			beats++
			if ev.RawPayload == nil {
				t.Error("heartbeat should carry a status snapshot")
			}
		}
	}
	if beats != 1 {
		t.Errorf("heartbeats: got %d, want 1", beats)
	}
}

func TestRunLoopHeartbeatDisabled(t *testing.T) {
	r := newLoopRig(t, []float64{1000}, 0)

	for i := 0; i < 4; i++ {
		r.step(time.Second)
	}
	r.shutdown(t, syscall.SIGTERM)

	for _, ev := range r.pub.SystemEvents {
		if ev.Event == "HEARTBEAT" {
			t.Error("heartbeat published with zero interval")
		}
	}
}

func TestToMQTT(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 4, 50, 0, time.UTC)
	ev := engine.Event{
		Timestamp:      ts,
		Source:         "co2",
		Name:           "RESULTS",
		ExperimentTime: 290,
		Results: &protocol.Results{
			DeltaConcentration: 11,
			EstimatedMass:      5.2,
			PercolationTime:    9,
		},
	}

	out := toMQTT(ev)
	if out.Timestamp != ts || out.Source != "co2" || out.Name != "RESULTS" {
		t.Errorf("unexpected conversion: %+v", out)
	}
	if out.ExperimentTime != 290 {
		t.Errorf("experiment time: got %v", out.ExperimentTime)
	}
	if out.Results == nil || out.Results.DeltaConcentration != 11 || out.Results.PercolationTime != 9 {
		t.Errorf("results: got %+v", out.Results)
	}

	plain := toMQTT(engine.Event{Timestamp: ts, Source: "detector", Name: "INCREASE"})
	if plain.Results != nil {
		t.Error("expected nil results on a milestone event")
	}
}
