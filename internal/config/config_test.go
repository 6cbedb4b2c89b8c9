package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	c := Default()

	if c.Poll.Duration() != time.Second {
		t.Errorf("poll: got %v, want 1s", c.Poll)
	}
	if c.Heartbeat.Duration() != 15*time.Minute {
		t.Errorf("heartbeat: got %v, want 15m", c.Heartbeat)
	}
	if c.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("broker: got %q", c.Broker)
	}
	if c.HTTPAddr != ":8080" {
		t.Errorf("http addr: got %q", c.HTTPAddr)
	}
	if c.GPIO.Enabled {
		t.Error("GPIO should be disabled by default")
	}
	if c.GPIO.Valve != 12 || c.GPIO.Retracted != 5 || c.GPIO.Extended != 6 || c.GPIO.Open != 13 || c.GPIO.Closed != 19 {
		t.Errorf("unexpected pin assignment: %+v", c.GPIO)
	}
	if c.Detection.MinSlope != 0.10 || c.Detection.MaxSlope != 2.0 {
		t.Errorf("slope band: got %v..%v", c.Detection.MinSlope, c.Detection.MaxSlope)
	}
	if c.Detection.DecreaseSlopeThreshold != -0.15 {
		t.Errorf("decrease slope threshold: got %v", c.Detection.DecreaseSlopeThreshold)
	}
	if c.Heater.HighC != 250 || c.Heater.LowC != 40 {
		t.Errorf("heater setpoints: got %v/%v", c.Heater.HighC, c.Heater.LowC)
	}
	if c.CO2.CellVolume != 0.965 {
		t.Errorf("cell volume: got %v", c.CO2.CellVolume)
	}
	if c.Full.ResistanceTargetOhms != 1e6 {
		t.Errorf("resistance target: got %v", c.Full.ResistanceTargetOhms)
	}
	if c.FailureThreshold != 3 {
		t.Errorf("failure threshold: got %d", c.FailureThreshold)
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Broker != Default().Broker {
		t.Errorf("broker: got %q", c.Broker)
	}
	if c.Poll != Default().Poll {
		t.Errorf("poll: got %v", c.Poll)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/gasrig.yaml")
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadPartialYAML(t *testing.T) {
	// Only a few keys set; the rest must come back as defaults.
	yaml := `
poll: 2s
broker: tcp://10.0.0.5:1883
detection:
  min_slope: 0.2
heater:
  high_c: 200
`
	path := filepath.Join(t.TempDir(), "gasrig.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if c.Poll.Duration() != 2*time.Second {
		t.Errorf("poll: got %v, want 2s", c.Poll)
	}
	if c.Broker != "tcp://10.0.0.5:1883" {
		t.Errorf("broker: got %q", c.Broker)
	}
	if c.Detection.MinSlope != 0.2 {
		t.Errorf("min slope: got %v, want 0.2", c.Detection.MinSlope)
	}
	if c.Heater.HighC != 200 {
		t.Errorf("high temperature: got %v, want 200", c.Heater.HighC)
	}

	// Untouched keys keep their defaults.
	if c.Detection.MaxSlope != 2.0 {
		t.Errorf("max slope: got %v, want 2.0", c.Detection.MaxSlope)
	}
	if c.Heater.LowC != 40 {
		t.Errorf("low temperature: got %v, want 40", c.Heater.LowC)
	}
	if c.Full.StabilityTimeoutSeconds != 180 {
		t.Errorf("stability timeout: got %v, want 180", c.Full.StabilityTimeoutSeconds)
	}
	if c.GPIO.Valve != 12 {
		t.Errorf("valve pin: got %d, want 12", c.GPIO.Valve)
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gasrig.yaml")
	if err := os.WriteFile(path, []byte("poll: [not a duration"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("GASRIG_BROKER", "tcp://broker.lab:1883")
	t.Setenv("GASRIG_POLL", "500ms")
	t.Setenv("GASRIG_HTTP", ":9090")

	c, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if c.Broker != "tcp://broker.lab:1883" {
		t.Errorf("broker: got %q", c.Broker)
	}
	if c.Poll.Duration() != 500*time.Millisecond {
		t.Errorf("poll: got %v, want 500ms", c.Poll)
	}
	if c.HTTPAddr != ":9090" {
		t.Errorf("http addr: got %q", c.HTTPAddr)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	yaml := "broker: tcp://file.lab:1883\n"
	path := filepath.Join(t.TempDir(), "gasrig.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("GASRIG_BROKER", "tcp://env.lab:1883")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Broker != "tcp://env.lab:1883" {
		t.Errorf("broker: got %q, want environment value", c.Broker)
	}
}

func TestEngineMapping(t *testing.T) {
	c := Default()
	c.Heater.HighC = 300
	c.Full.ResistanceTargetOhms = 2e6

	ec := c.Engine()

	if ec.Conductance.MinSlope != 0.10 || ec.Conductance.Window != 10 {
		t.Errorf("conductance config: %+v", ec.Conductance)
	}
	if ec.CO2.HighTemperature != 300 {
		t.Errorf("co2 high temperature: got %v, want 300", ec.CO2.HighTemperature)
	}
	if ec.Resistance.TargetOhms != 2e6 {
		t.Errorf("resistance target: got %v, want 2e6", ec.Resistance.TargetOhms)
	}
	if ec.Full.CellVolume != 0.965 {
		t.Errorf("full cell volume: got %v", ec.Full.CellVolume)
	}
	if ec.Auto.ReferenceTolerance != 50 {
		t.Errorf("auto reference tolerance: got %v", ec.Auto.ReferenceTolerance)
	}
	if ec.CO2.Gas.StabilityTolerance != 15 || ec.Full.Gas.StabilityDuration != 120 {
		t.Errorf("gas config not shared: co2=%+v full=%+v", ec.CO2.Gas, ec.Full.Gas)
	}
	if ec.FailureThreshold != 3 {
		t.Errorf("failure threshold: got %d", ec.FailureThreshold)
	}
}
