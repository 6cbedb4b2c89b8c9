// Package config loads the rig configuration: experiment constants
// from a YAML file, with environment overrides for deployment-level
// settings. Precedence is flag > environment > file > default; flags
// are applied by the caller.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/gas-rig/internal/auto"
	"github.com/sweeney/gas-rig/internal/detect"
	"github.com/sweeney/gas-rig/internal/engine"
	"github.com/sweeney/gas-rig/internal/protocol"
)

// Duration is a time.Duration that unmarshals from "1s"-style strings
// in both YAML and environment variables.
type Duration time.Duration

// Duration returns the standard library value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalText parses a time.ParseDuration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// UnmarshalYAML parses a duration scalar.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// Config is the full rig configuration.
type Config struct {
	Poll      Duration `yaml:"poll" env:"GASRIG_POLL"`
	Heartbeat Duration `yaml:"heartbeat" env:"GASRIG_HEARTBEAT"`
	Broker    string   `yaml:"broker" env:"GASRIG_BROKER"`
	HTTPAddr  string   `yaml:"http_addr" env:"GASRIG_HTTP"`

	GPIO GPIOConfig `yaml:"gpio"`

	Detection DetectionConfig `yaml:"detection"`
	Gas       GasConfig       `yaml:"gas"`
	Heater    HeaterConfig    `yaml:"heater"`
	CO2       CO2Config       `yaml:"co2_protocol"`
	Full      FullConfig      `yaml:"full_protocol"`
	Auto      AutoConfig      `yaml:"auto_mode"`

	// FailureThreshold is the consecutive sensor-read failures after
	// which a device is reported disconnected.
	FailureThreshold int `yaml:"failure_threshold"`
}

// GPIOConfig holds the valve rig pin assignment.
type GPIOConfig struct {
	Enabled   bool `yaml:"enabled" env:"GASRIG_GPIO"`
	Valve     int  `yaml:"valve_pin"`
	Retracted int  `yaml:"retracted_pin"`
	Extended  int  `yaml:"extended_pin"`
	Open      int  `yaml:"open_pin"`
	Closed    int  `yaml:"closed_pin"`
}

// DetectionConfig holds the conductance detector constants.
type DetectionConfig struct {
	MinSlope           float64 `yaml:"min_slope"`
	MaxSlope           float64 `yaml:"max_slope"`
	Window             int     `yaml:"window"`
	LocalWindowSeconds float64 `yaml:"local_window_s"`
	StabilitySeconds   float64 `yaml:"stability_s"`
	DecreaseThreshold  float64 `yaml:"decrease_threshold"`

	// DecreaseSlopeThreshold is a calibration constant from the
	// reference rig, carried in the file for the record. The decrease
	// detector gates on the absolute floor, not on slope.
	DecreaseSlopeThreshold float64 `yaml:"decrease_slope_threshold"`
}

// GasConfig holds the gas-concentration detector constants.
type GasConfig struct {
	StabilityTolerancePPM float64 `yaml:"stability_tolerance_ppm"`
	StabilitySeconds      float64 `yaml:"stability_s"`
	PeakRisePPM           float64 `yaml:"peak_rise_ppm"`
	PeakDropPPM           float64 `yaml:"peak_drop_ppm"`
}

// HeaterConfig holds the shared heater setpoints.
type HeaterConfig struct {
	HighC float64 `yaml:"high_c"`
	LowC  float64 `yaml:"low_c"`
}

// CO2Config holds the CO2 protocol constants.
type CO2Config struct {
	HeatingSeconds float64 `yaml:"heating_s"`
	CellVolume     float64 `yaml:"cell_volume"`
}

// FullConfig holds the full protocol constants.
type FullConfig struct {
	ValveSettleSeconds      float64 `yaml:"valve_settle_s"`
	CooldownSettleSeconds   float64 `yaml:"cooldown_settle_s"`
	StabilityTimeoutSeconds float64 `yaml:"stability_timeout_s"`
	RestabTimeoutSeconds    float64 `yaml:"restabilization_timeout_s"`
	LowConductance          float64 `yaml:"low_conductance"`
	ResistanceTargetOhms    float64 `yaml:"resistance_target_ohms"`
}

// AutoConfig holds the automatic-mode constants.
type AutoConfig struct {
	ValveSettleSeconds      float64 `yaml:"valve_settle_s"`
	StabilityTimeoutSeconds float64 `yaml:"stability_timeout_s"`
	HeatingTimeoutSeconds   float64 `yaml:"heating_timeout_s"`
	NearZeroConductance     float64 `yaml:"near_zero_conductance"`
	ReferenceToleranceOhms  float64 `yaml:"reference_tolerance_ohms"`
}

// Default returns the standard rig configuration.
func Default() *Config {
	return &Config{
		Poll:      Duration(time.Second),
		Heartbeat: Duration(15 * time.Minute),
		Broker:    "tcp://192.168.1.200:1883",
		HTTPAddr:  ":8080",
		GPIO: GPIOConfig{
			Valve:     12,
			Retracted: 5,
			Extended:  6,
			Open:      13,
			Closed:    19,
		},
		Detection: DetectionConfig{
			MinSlope:               0.10,
			MaxSlope:               2.0,
			Window:                 10,
			LocalWindowSeconds:     30,
			StabilitySeconds:       120,
			DecreaseThreshold:      0.05,
			DecreaseSlopeThreshold: -0.15,
		},
		Gas: GasConfig{
			StabilityTolerancePPM: 15,
			StabilitySeconds:      120,
			PeakRisePPM:           5,
			PeakDropPPM:           1,
		},
		Heater: HeaterConfig{
			HighC: 250,
			LowC:  40,
		},
		CO2: CO2Config{
			HeatingSeconds: 120,
			CellVolume:     0.965,
		},
		Full: FullConfig{
			ValveSettleSeconds:      10,
			CooldownSettleSeconds:   5,
			StabilityTimeoutSeconds: 180,
			RestabTimeoutSeconds:    300,
			LowConductance:          0.01,
			ResistanceTargetOhms:    1e6,
		},
		Auto: AutoConfig{
			ValveSettleSeconds:      15,
			StabilityTimeoutSeconds: 180,
			HeatingTimeoutSeconds:   180,
			NearZeroConductance:     0.01,
			ReferenceToleranceOhms:  50,
		},
		FailureThreshold: 3,
	}
}

// Load reads the YAML file, fills in defaults, and applies environment
// overrides. An empty path returns the defaults (plus environment).
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		applyDefaults(c)
	}
	if err := env.Parse(c); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}
	return c, nil
}

// applyDefaults fills zero values left by a partial YAML file.
func applyDefaults(c *Config) {
	d := Default()
	if c.Poll <= 0 {
		c.Poll = d.Poll
	}
	if c.Broker == "" {
		c.Broker = d.Broker
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = d.HTTPAddr
	}
	if c.GPIO.Valve == 0 {
		c.GPIO.Valve = d.GPIO.Valve
	}
	if c.GPIO.Retracted == 0 {
		c.GPIO.Retracted = d.GPIO.Retracted
	}
	if c.GPIO.Extended == 0 {
		c.GPIO.Extended = d.GPIO.Extended
	}
	if c.GPIO.Open == 0 {
		c.GPIO.Open = d.GPIO.Open
	}
	if c.GPIO.Closed == 0 {
		c.GPIO.Closed = d.GPIO.Closed
	}
	if c.Detection.MinSlope == 0 {
		c.Detection.MinSlope = d.Detection.MinSlope
	}
	if c.Detection.MaxSlope == 0 {
		c.Detection.MaxSlope = d.Detection.MaxSlope
	}
	if c.Detection.Window == 0 {
		c.Detection.Window = d.Detection.Window
	}
	if c.Detection.LocalWindowSeconds == 0 {
		c.Detection.LocalWindowSeconds = d.Detection.LocalWindowSeconds
	}
	if c.Detection.StabilitySeconds == 0 {
		c.Detection.StabilitySeconds = d.Detection.StabilitySeconds
	}
	if c.Detection.DecreaseThreshold == 0 {
		c.Detection.DecreaseThreshold = d.Detection.DecreaseThreshold
	}
	if c.Detection.DecreaseSlopeThreshold == 0 {
		c.Detection.DecreaseSlopeThreshold = d.Detection.DecreaseSlopeThreshold
	}
	if c.Gas.StabilityTolerancePPM == 0 {
		c.Gas.StabilityTolerancePPM = d.Gas.StabilityTolerancePPM
	}
	if c.Gas.StabilitySeconds == 0 {
		c.Gas.StabilitySeconds = d.Gas.StabilitySeconds
	}
	if c.Gas.PeakRisePPM == 0 {
		c.Gas.PeakRisePPM = d.Gas.PeakRisePPM
	}
	if c.Gas.PeakDropPPM == 0 {
		c.Gas.PeakDropPPM = d.Gas.PeakDropPPM
	}
	if c.Heater.HighC == 0 {
		c.Heater.HighC = d.Heater.HighC
	}
	if c.Heater.LowC == 0 {
		c.Heater.LowC = d.Heater.LowC
	}
	if c.CO2.HeatingSeconds == 0 {
		c.CO2.HeatingSeconds = d.CO2.HeatingSeconds
	}
	if c.CO2.CellVolume == 0 {
		c.CO2.CellVolume = d.CO2.CellVolume
	}
	if c.Full.ValveSettleSeconds == 0 {
		c.Full.ValveSettleSeconds = d.Full.ValveSettleSeconds
	}
	if c.Full.CooldownSettleSeconds == 0 {
		c.Full.CooldownSettleSeconds = d.Full.CooldownSettleSeconds
	}
	if c.Full.StabilityTimeoutSeconds == 0 {
		c.Full.StabilityTimeoutSeconds = d.Full.StabilityTimeoutSeconds
	}
	if c.Full.RestabTimeoutSeconds == 0 {
		c.Full.RestabTimeoutSeconds = d.Full.RestabTimeoutSeconds
	}
	if c.Full.LowConductance == 0 {
		c.Full.LowConductance = d.Full.LowConductance
	}
	if c.Full.ResistanceTargetOhms == 0 {
		c.Full.ResistanceTargetOhms = d.Full.ResistanceTargetOhms
	}
	if c.Auto.ValveSettleSeconds == 0 {
		c.Auto.ValveSettleSeconds = d.Auto.ValveSettleSeconds
	}
	if c.Auto.StabilityTimeoutSeconds == 0 {
		c.Auto.StabilityTimeoutSeconds = d.Auto.StabilityTimeoutSeconds
	}
	if c.Auto.HeatingTimeoutSeconds == 0 {
		c.Auto.HeatingTimeoutSeconds = d.Auto.HeatingTimeoutSeconds
	}
	if c.Auto.NearZeroConductance == 0 {
		c.Auto.NearZeroConductance = d.Auto.NearZeroConductance
	}
	if c.Auto.ReferenceToleranceOhms == 0 {
		c.Auto.ReferenceToleranceOhms = d.Auto.ReferenceToleranceOhms
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = d.FailureThreshold
	}
}

// Engine translates the file configuration into the engine's wiring.
func (c *Config) Engine() engine.Config {
	gas := detect.GasConfig{
		StabilityTolerance: c.Gas.StabilityTolerancePPM,
		StabilityDuration:  c.Gas.StabilitySeconds,
		PeakRise:           c.Gas.PeakRisePPM,
		PeakDrop:           c.Gas.PeakDropPPM,
	}
	return engine.Config{
		Conductance: detect.ConductanceConfig{
			MinSlope:          c.Detection.MinSlope,
			MaxSlope:          c.Detection.MaxSlope,
			Window:            c.Detection.Window,
			LocalWindow:       c.Detection.LocalWindowSeconds,
			StabilityDuration: c.Detection.StabilitySeconds,
			DecreaseThreshold: c.Detection.DecreaseThreshold,
		},
		CO2: protocol.CO2Config{
			HighTemperature: c.Heater.HighC,
			LowTemperature:  c.Heater.LowC,
			HeatingDuration: c.CO2.HeatingSeconds,
			CellVolume:      c.CO2.CellVolume,
			Gas:             gas,
		},
		Resistance: protocol.ResistanceConfig{
			HighTemperature: c.Heater.HighC,
			LowTemperature:  c.Heater.LowC,
			TargetOhms:      c.Full.ResistanceTargetOhms,
		},
		Full: protocol.FullConfig{
			HighTemperature:        c.Heater.HighC,
			LowTemperature:         c.Heater.LowC,
			ValveSettle:            c.Full.ValveSettleSeconds,
			CooldownSettle:         c.Full.CooldownSettleSeconds,
			StabilityTimeout:       c.Full.StabilityTimeoutSeconds,
			RestabilizationTimeout: c.Full.RestabTimeoutSeconds,
			LowConductance:         c.Full.LowConductance,
			CellVolume:             c.CO2.CellVolume,
			Gas:                    gas,
		},
		Auto: auto.Config{
			HighTemperature:     c.Heater.HighC,
			LowTemperature:      c.Heater.LowC,
			ValveSettle:         c.Auto.ValveSettleSeconds,
			StabilityTimeout:    c.Auto.StabilityTimeoutSeconds,
			HeatingTimeout:      c.Auto.HeatingTimeoutSeconds,
			NearZeroConductance: c.Auto.NearZeroConductance,
			ReferenceTolerance:  c.Auto.ReferenceToleranceOhms,
			Gas:                 gas,
		},
		FailureThreshold: c.FailureThreshold,
	}
}
