// Command chamber-heater reads chamber thermistors over a shared DAQ, drives
// the electric heater with software PWM, and publishes control results to MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/sweeney/chamber-heater/internal/analog"
	"github.com/sweeney/chamber-heater/internal/config"
	"github.com/sweeney/chamber-heater/internal/control"
	"github.com/sweeney/chamber-heater/internal/device"
	"github.com/sweeney/chamber-heater/internal/led"
	"github.com/sweeney/chamber-heater/internal/mqtt"
	"github.com/sweeney/chamber-heater/internal/pwm"
	"github.com/sweeney/chamber-heater/internal/status"
	"github.com/sweeney/chamber-heater/internal/thermistor"
	"github.com/sweeney/chamber-heater/internal/web"
)

// Simulated chamber parameters, used with -sim.
const (
	simAppliedVolts  = 2.44
	simOuterF        = 70.0
	simInitialInnerF = 68.0
	simHeaterRateF   = 0.5  // °F/s with the heater fully on
	simLossRate      = 0.01 // fraction of the inner-outer difference shed per second
)

func main() {
	configPath := flag.String("config", "settings.yaml", "Settings file path")
	port := flag.String("port", "/dev/ttyACM0", "DAQ serial port")
	baud := flag.Int("baud", device.DefaultBaudRate, "DAQ serial baud rate")
	broker := flag.String("broker", "tcp://192.168.1.200:1883", "MQTT broker address (empty to disable)")
	heartbeat := flag.Duration("heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	httpAddr := flag.String("http", ":80", "HTTP status address (empty to disable)")
	sim := flag.Bool("sim", false, "Use a simulated chamber instead of real hardware")
	printTemps := flag.Bool("print-temps", false, "Print current temperatures and exit")
	ledPin := flag.Int("led-pin", led.DefaultPin, "BCM pin for the heater activity LED (-1 to disable)")

	flag.Parse()

	if err := run(*configPath, *port, *baud, *broker, *heartbeat, *httpAddr, *sim, *printTemps, *ledPin); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(configPath, port string, baud int, broker string, heartbeat time.Duration, httpAddr string, sim, printTemps bool, ledPin int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	groups, err := buildGroups(cfg)
	if err != nil {
		return err
	}

	// Open the DAQ and wrap it in the serializing gate. Everything below
	// talks to the hardware through the gate.
	dev, err := openDevice(cfg, groups, port, baud, sim)
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	gate := device.NewGate(dev, device.DefaultTimeout)
	defer gate.Close()

	if err := gate.Configure(map[int]device.Direction{cfg.PWMChannel: device.DirOutput}); err != nil {
		return fmt.Errorf("configure device: %w", err)
	}

	if printTemps {
		return printTemperatures(gate, cfg, groups)
	}

	// Background sampler keeps per-channel ring buffers warm.
	reader := analog.NewReader(gate, samplerSpecs(cfg), cfg.ReadSpacing.Std(), cfg.RingBufferSize)
	reader.Start()
	defer reader.Stop()

	pwmOut := pwm.New(gate, cfg.PWMChannel, cfg.PWMPeriod.Std())
	pwmOut.Start()
	defer pwmOut.Stop()

	runID := uuid.NewString()
	tracker := status.NewTracker(time.Now(), runID, status.Config{
		ControlPeriodMs: cfg.ControlPeriod.Std().Milliseconds(),
		PWMPeriodMs:     cfg.PWMPeriod.Std().Milliseconds(),
		PWMChannel:      cfg.PWMChannel,
		ReadSpacingMs:   cfg.ReadSpacing.Std().Milliseconds(),
		RingBufferSize:  cfg.RingBufferSize,
		HeartbeatMs:     heartbeat.Milliseconds(),
		Broker:          broker,
		HTTPPort:        httpAddr,
		Sim:             sim,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	var publisher mqtt.Publisher
	var connStatus mqtt.ConnectionStatus
	if broker != "" {
		real, err := mqtt.NewRealPublisher(broker, "chamber-heater-"+runID[:8])
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer real.Close()
		publisher = real
		connStatus = real
	}

	var ledDrv led.Driver
	if ledPin >= 0 {
		drv, err := led.NewRealDriver(ledPin)
		if err != nil {
			log.Printf("led unavailable: %v", err)
		} else {
			ledDrv = drv
			defer drv.Close()
		}
	}

	initial := control.Parameters{
		KP:      cfg.PIDP.Init,
		KI:      cfg.PIDI.Init,
		KD:      cfg.PIDD.Init,
		MaxPWM:  cfg.PWMMax,
		Enabled: true,
	}

	// onResult runs on the control goroutine after every successful cycle.
	var ctrl *control.Controller
	resultCount := 0
	onResult := func(res control.Result) {
		cycles, cycleErrs := ctrl.Counters()
		tracker.SetResult(res, cycles, cycleErrs)
		if connStatus != nil {
			tracker.SetMQTTConnected(connStatus.IsConnected())
		}
		if ledDrv != nil {
			if err := ledDrv.Set(res.Duty > 0); err != nil {
				log.Printf("led: %v", err)
			}
		}
		resultCount++
		if publisher != nil && resultCount%cfg.PublishEvery == 0 {
			if err := publisher.PublishResult(res); err != nil {
				log.Printf("publish result: %v", err)
			}
		}
	}

	ctrl = control.New(reader, pwmOut, groups, cfg.ControlPeriod.Std(), initial, cfg.RollingPeriods, onResult)
	tracker.SetParameters(ctrl.Parameters())
	ctrl.Start()
	defer ctrl.Stop()

	if httpAddr != "" {
		srv := web.New(httpAddr, tracker, ctrl)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", httpAddr)
	}

	// Publish startup event with full status snapshot.
	if publisher != nil {
		snap := tracker.Snapshot()
		startupEvent := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "STARTUP",
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
		}
		if err := publisher.PublishSystem(startupEvent); err != nil {
			log.Printf("failed to publish startup event: %v", err)
		} else {
			log.Printf("published startup event")
		}
	}

	log.Printf("started: run=%s control=%v pwm=%v broker=%s heartbeat=%v sim=%v",
		runID, cfg.ControlPeriod.Std(), cfg.PWMPeriod.Std(), broker, heartbeat, sim)

	var tick <-chan time.Time
	if heartbeat > 0 {
		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(publisher, connStatus, tracker, ctrl.Parameters, time.Now, tick, sigCh)
}

// runLoop blocks until a shutdown signal arrives, publishing heartbeat
// status events along the way. The control loop itself runs on its own
// goroutine; this loop only handles lifecycle events.
func runLoop(publisher mqtt.Publisher, connStatus mqtt.ConnectionStatus, tracker *status.Tracker, params func() control.Parameters, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			if publisher != nil {
				if connStatus != nil {
					tracker.SetMQTTConnected(connStatus.IsConnected())
				}
				snap := tracker.Snapshot()
				event := mqtt.SystemEvent{
					Timestamp:  now(),
					Event:      "SHUTDOWN",
					Reason:     signalName,
					Retained:   true,
					RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", signalName),
				}
				if err := publisher.PublishSystem(event); err != nil {
					log.Printf("failed to publish shutdown event: %v", err)
				} else {
					log.Printf("published shutdown event")
				}
			}
			return nil

		case <-tick:
			// Refresh network info for the heartbeat snapshot.
			if net := readNetworkInfo(); net != nil {
				tracker.SetNetwork(net)
			}
			if connStatus != nil {
				tracker.SetMQTTConnected(connStatus.IsConnected())
			}
			if params != nil {
				tracker.SetParameters(params())
			}
			snap := tracker.Snapshot()
			log.Printf("heartbeat: uptime=%v cycles=%d errors=%d", snap.Uptime(), snap.Cycles, snap.CycleErrors)
			if publisher != nil {
				event := mqtt.SystemEvent{
					Timestamp:  now(),
					Event:      "HEARTBEAT",
					RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
				}
				if err := publisher.PublishSystem(event); err != nil {
					log.Printf("heartbeat publish error: %v", err)
				}
			}
		}
	}
}

// buildGroups constructs the thermistor groups from the settings file.
func buildGroups(cfg *config.Config) (control.Groups, error) {
	build := func(sensors []config.Sensor) ([]*thermistor.Thermistor, error) {
		out := make([]*thermistor.Thermistor, 0, len(sensors))
		for _, s := range sensors {
			th, err := thermistor.New(s.Thermistor, s.Label, s.Channel, cfg.AppliedVChannel, cfg.DividerR)
			if err != nil {
				return nil, fmt.Errorf("sensor %q: %w", s.Label, err)
			}
			out = append(out, th)
		}
		return out, nil
	}

	var g control.Groups
	var err error
	if g.Inner, err = build(cfg.InnerTemps); err != nil {
		return g, err
	}
	if g.Outer, err = build(cfg.OuterTemps); err != nil {
		return g, err
	}
	if g.Info, err = build(cfg.InfoTemps); err != nil {
		return g, err
	}
	return g, nil
}

func openDevice(cfg *config.Config, groups control.Groups, port string, baud int, sim bool) (device.Device, error) {
	if !sim {
		return device.OpenSerial(port, baud)
	}
	return device.NewSim(device.SimConfig{
		InnerChannels:  sensorChannels(groups.Inner),
		OuterChannels:  sensorChannels(groups.Outer),
		InfoChannels:   sensorChannels(groups.Info),
		AppliedChannel: cfg.AppliedVChannel,
		HeaterChannel:  cfg.PWMChannel,
		AppliedVolts:   simAppliedVolts,
		OuterTempF:     simOuterF,
		InitialInnerF:  simInitialInnerF,
		HeaterRateF:    simHeaterRateF,
		LossRate:       simLossRate,
		VoltsForTemp:   groups.Inner[0].VoltageForTemp,
	}), nil
}

// samplerSpecs builds the background sampler's channel list. Every
// sampled channel sits behind a thermistor divider, so all reads use
// the long settle time.
func samplerSpecs(cfg *config.Config) []analog.Spec {
	channels := cfg.AnalogChannels()
	specs := make([]analog.Spec, 0, len(channels))
	for _, ch := range channels {
		specs = append(specs, analog.Spec{Number: ch, LongSettle: true})
	}
	return specs
}

func sensorChannels(ths []*thermistor.Thermistor) []int {
	out := make([]int, 0, len(ths))
	for _, th := range ths {
		out = append(out, th.Channel)
	}
	return out
}

// printTemperatures does a single long-settle read of every sensor and
// prints the results. Used by -print-temps for installation checks.
func printTemperatures(gate *device.Gate, cfg *config.Config, groups control.Groups) error {
	appliedV, err := gate.ReadAnalog(cfg.AppliedVChannel, true)
	if err != nil {
		return fmt.Errorf("read applied voltage: %w", err)
	}
	fmt.Printf("applied: %.4f V (channel %d)\n", appliedV, cfg.AppliedVChannel)

	printGroup := func(name string, ths []*thermistor.Thermistor) {
		for _, th := range ths {
			v, err := gate.ReadAnalog(th.Channel, true)
			if err != nil {
				fmt.Printf("%-20s ch %2d [%s]: read error: %v\n", th.Label, th.Channel, name, err)
				continue
			}
			f := th.TFromV(v, appliedV)
			fmt.Printf("%-20s ch %2d [%s]: %7.2f °F (%6.2f °C)\n", th.Label, th.Channel, name, f, thermistor.FToC(f))
		}
	}
	printGroup("inner", groups.Inner)
	printGroup("outer", groups.Outer)
	printGroup("info", groups.Info)
	return nil
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	networkEnvFile       = "/run/pi-helper.env"
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	// Best effort: the env file only exists on deployed Pis.
	godotenv.Load(networkEnvFile)

	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
