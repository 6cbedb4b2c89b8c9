// Command gas-rig runs the sensor-cell experiment daemon: it polls the
// instruments, drives the regeneration protocols, publishes experiment
// events to MQTT, and serves a status page over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/gas-rig/internal/config"
	"github.com/sweeney/gas-rig/internal/device"
	"github.com/sweeney/gas-rig/internal/engine"
	"github.com/sweeney/gas-rig/internal/mqtt"
	"github.com/sweeney/gas-rig/internal/status"
	"github.com/sweeney/gas-rig/internal/web"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (empty for defaults)")
	poll := flag.Duration("poll", 0, "Sampling interval (overrides config)")
	broker := flag.String("broker", "", "MQTT broker address (overrides config)")
	heartbeat := flag.Duration("heartbeat", 0, "Heartbeat interval (overrides config, 0 keeps config value)")
	httpAddr := flag.String("http", "", "HTTP status address (overrides config)")
	useGPIO := flag.Bool("gpio", false, "Drive the real GPIO valve rig")
	printState := flag.Bool("print-state", false, "Print valve switch states and exit")

	flag.Parse()

	log := logrus.WithField("component", "main")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	if *poll > 0 {
		cfg.Poll = config.Duration(*poll)
	}
	if *broker != "" {
		cfg.Broker = *broker
	}
	if *heartbeat > 0 {
		cfg.Heartbeat = config.Duration(*heartbeat)
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	if *useGPIO {
		cfg.GPIO.Enabled = true
	}

	if err := run(cfg, *configPath, *printState, log); err != nil {
		log.WithError(err).Fatal("fatal")
	}
}

func run(cfg *config.Config, configPath string, printState bool, log *logrus.Entry) error {
	devices := engine.Devices{
		Resistance: device.NoopResistanceSensor{},
		Gas:        device.NoopGasSensor{},
		Thermal:    device.NoopThermalActuator{},
		Reference:  device.NoopReferenceSetter{},
		Valve:      device.NoopMechanicalActuator{},
		Pins:       device.NoopPinSensor{},
	}

	if cfg.GPIO.Enabled {
		valve, err := device.NewGPIOValve(device.GPIOPins{
			Valve:     cfg.GPIO.Valve,
			Retracted: cfg.GPIO.Retracted,
			Extended:  cfg.GPIO.Extended,
			Open:      cfg.GPIO.Open,
			Closed:    cfg.GPIO.Closed,
		})
		if err != nil {
			return fmt.Errorf("init gpio valve: %w", err)
		}
		defer valve.Shutdown()
		devices.Valve = valve
		devices.Pins = valve
	}

	if printState {
		pins, err := devices.Pins.Read()
		if err != nil {
			return fmt.Errorf("read pins: %w", err)
		}
		fmt.Printf("retracted=%v extended=%v open=%v closed=%v\n",
			pins.Retracted, pins.Extended, pins.Open, pins.Closed)
		return nil
	}

	publisher, err := mqtt.NewRealPublisher(cfg.Broker)
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	eng := engine.New(cfg.Engine(), devices, logrus.WithField("component", "engine"))

	tracker := status.NewTracker(time.Now(), status.Config{
		PollMs:      cfg.Poll.Duration().Milliseconds(),
		HeartbeatMs: cfg.Heartbeat.Duration().Milliseconds(),
		Broker:      cfg.Broker,
		HTTPAddr:    cfg.HTTPAddr,
		ConfigPath:  configPath,
	})

	// Publish startup with a full status snapshot.
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.WithError(err).Warn("publish startup event")
	} else {
		log.Info("published startup event")
	}

	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker, eng, logrus.WithField("component", "web"))
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Error("http server")
			}
		}()
		defer srv.Shutdown(context.Background())
		log.WithField("addr", cfg.HTTPAddr).Info("http status server listening")
	}

	log.WithFields(logrus.Fields{
		"poll":      cfg.Poll,
		"broker":    cfg.Broker,
		"heartbeat": cfg.Heartbeat,
	}).Info("started")

	ticker := time.NewTicker(cfg.Poll.Duration())
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(eng, publisher, publisher, tracker, cfg.Heartbeat.Duration(), time.Now, ticker.C, sigCh, log)
}

func runLoop(eng *engine.Engine, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal, log *logrus.Entry) error {
	lastHeartbeat := now()

	for {
		select {
		case s := <-sig:
			log.WithField("signal", s).Info("shutting down")
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				snap := tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.WithError(err).Warn("publish shutdown event")
			} else {
				log.Info("published shutdown event")
			}
			return nil

		case <-tick:
			t := now()
			events := eng.Tick(t)

			for _, ev := range events {
				log.WithFields(logrus.Fields{
					"source": ev.Source,
					"event":  ev.Name,
					"exp_t":  ev.ExperimentTime,
				}).Info("event")
				if err := publisher.Publish(toMQTT(ev)); err != nil {
					log.WithError(err).Warn("publish error")
					// Don't crash on publish failure.
				}
			}

			if heartbeat > 0 && t.Sub(lastHeartbeat) >= heartbeat {
				lastHeartbeat = t
				hbEvent := mqtt.SystemEvent{
					Timestamp: t,
					Event:     "HEARTBEAT",
				}
				if tracker != nil {
					if mqttStatus != nil {
						tracker.SetMQTTConnected(mqttStatus.IsConnected())
					}
					tracker.Update(eng.View(t))
					snap := tracker.Snapshot()
					hbEvent.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
					log.WithField("uptime", snap.Uptime()).Info("heartbeat")
				}
				if err := publisher.PublishSystem(hbEvent); err != nil {
					log.WithError(err).Warn("heartbeat publish error")
				}
			}

			// Refresh the status tracker for HTTP consumers.
			if tracker != nil {
				tracker.Update(eng.View(t))
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
			}
		}
	}
}

// toMQTT converts an engine event into its wire form.
func toMQTT(ev engine.Event) mqtt.Event {
	out := mqtt.Event{
		Timestamp:      ev.Timestamp,
		Source:         ev.Source,
		Name:           ev.Name,
		ExperimentTime: ev.ExperimentTime,
	}
	if ev.Results != nil {
		out.Results = &mqtt.Results{
			DeltaConcentration: ev.Results.DeltaConcentration,
			EstimatedMass:      ev.Results.EstimatedMass,
			PercolationTime:    ev.Results.PercolationTime,
		}
	}
	return out
}
