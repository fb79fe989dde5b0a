// Package config loads and validates the chamber settings file. All channel
// assignments, periods and tuning ranges are supplied here once at startup;
// a malformed file fails fast before any hardware I/O begins.
package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/chamber-heater/internal/thermistor"
)

// Duration is a time.Duration that unmarshals from YAML strings like "300ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("bad duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard-library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Sensor assigns one labelled thermistor to an analog channel.
type Sensor struct {
	Label      string `yaml:"label"`
	Channel    int    `yaml:"channel"`
	Thermistor string `yaml:"thermistor"`
}

// PIDRange is the slider range and starting value for one PID gain.
type PIDRange struct {
	Min  float64 `yaml:"min"`
	Init float64 `yaml:"init"`
	Max  float64 `yaml:"max"`
}

// Config is the full settings surface.
type Config struct {
	// Sensor groups. Inner and outer drive the delta-T control
	// calculation; info sensors are recorded but not controlled on.
	InnerTemps []Sensor `yaml:"inner_temps"`
	OuterTemps []Sensor `yaml:"outer_temps"`
	InfoTemps  []Sensor `yaml:"info_temps"`

	// DividerR is the fixed divider resistor in the thermistor circuits,
	// in ohms.
	DividerR float64 `yaml:"divider_resistance"`

	// AppliedVChannel reads the voltage applied to the thermistor
	// divider networks.
	AppliedVChannel int `yaml:"applied_v_channel"`

	// ControlPeriod is the time between heater output updates.
	ControlPeriod Duration `yaml:"control_period"`

	// PWMChannel is the digital output driving the heater.
	PWMChannel int `yaml:"pwm_channel"`
	// PWMPeriod is the full PWM cycle length.
	PWMPeriod Duration `yaml:"pwm_period"`
	// PWMMax is the initial duty cap, in [0, 1].
	PWMMax float64 `yaml:"pwm_max"`

	// PID gain ranges and starting values.
	PIDP PIDRange `yaml:"pid_p"`
	PIDI PIDRange `yaml:"pid_i"`
	PIDD PIDRange `yaml:"pid_d"`

	// RingBufferSize is the per-channel sample buffer capacity.
	RingBufferSize int `yaml:"ring_buffer_size"`
	// ReadSpacing is the sleep between analog reads, leaving the device
	// gate free for PWM writes.
	ReadSpacing Duration `yaml:"read_spacing"`

	// RollingPeriods is the number of control periods in the smoothed
	// delta-T rolling average.
	RollingPeriods int `yaml:"rolling_periods"`

	// PublishEvery publishes every Nth control result to MQTT.
	PublishEvery int `yaml:"publish_every"`
}

// Load reads and validates the settings file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates settings from YAML bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DividerR == 0 {
		c.DividerR = 20000.0
	}
	if c.ControlPeriod == 0 {
		c.ControlPeriod = Duration(300 * time.Millisecond)
	}
	if c.PWMPeriod == 0 {
		c.PWMPeriod = Duration(time.Second)
	}
	if c.PWMMax == 0 {
		c.PWMMax = 1.0
	}
	if c.RingBufferSize == 0 {
		c.RingBufferSize = 20
	}
	if c.ReadSpacing == 0 {
		c.ReadSpacing = Duration(4 * time.Millisecond)
	}
	if c.RollingPeriods == 0 {
		c.RollingPeriods = 1800
	}
	if c.PublishEvery == 0 {
		c.PublishEvery = 6
	}
}

// Validate checks the settings for construction-time errors.
func (c *Config) Validate() error {
	if len(c.InnerTemps) == 0 {
		return fmt.Errorf("settings: inner_temps must list at least one sensor")
	}
	if len(c.OuterTemps) == 0 {
		return fmt.Errorf("settings: outer_temps must list at least one sensor")
	}

	groups := []struct {
		name    string
		sensors []Sensor
	}{
		{"inner_temps", c.InnerTemps},
		{"outer_temps", c.OuterTemps},
		{"info_temps", c.InfoTemps},
	}
	for _, g := range groups {
		labels := map[string]bool{}
		for _, s := range g.sensors {
			if s.Label == "" {
				return fmt.Errorf("settings: %s: sensor on channel %d has no label", g.name, s.Channel)
			}
			if labels[s.Label] {
				return fmt.Errorf("settings: %s: duplicate label %q", g.name, s.Label)
			}
			labels[s.Label] = true
			if s.Channel < 0 {
				return fmt.Errorf("settings: %s: sensor %q has negative channel %d", g.name, s.Label, s.Channel)
			}
			if s.Channel == c.PWMChannel {
				return fmt.Errorf("settings: %s: sensor %q uses the PWM channel %d", g.name, s.Label, s.Channel)
			}
			if !thermistor.KnownType(s.Thermistor) {
				return fmt.Errorf("settings: %s: sensor %q: unknown thermistor type %q", g.name, s.Label, s.Thermistor)
			}
		}
	}

	if c.DividerR <= 0 {
		return fmt.Errorf("settings: divider_resistance must be positive")
	}
	if c.AppliedVChannel < 0 {
		return fmt.Errorf("settings: applied_v_channel must be non-negative")
	}
	if c.ControlPeriod <= 0 {
		return fmt.Errorf("settings: control_period must be positive")
	}
	if c.PWMPeriod <= 0 {
		return fmt.Errorf("settings: pwm_period must be positive")
	}
	if c.PWMMax < 0 || c.PWMMax > 1 {
		return fmt.Errorf("settings: pwm_max must be in [0, 1]")
	}
	if c.RingBufferSize < 1 {
		return fmt.Errorf("settings: ring_buffer_size must be at least 1")
	}
	if c.ReadSpacing < 0 {
		return fmt.Errorf("settings: read_spacing must be non-negative")
	}
	if c.RollingPeriods < 1 {
		return fmt.Errorf("settings: rolling_periods must be at least 1")
	}
	if c.PublishEvery < 1 {
		return fmt.Errorf("settings: publish_every must be at least 1")
	}

	for _, g := range []struct {
		name string
		r    PIDRange
	}{{"pid_p", c.PIDP}, {"pid_i", c.PIDI}, {"pid_d", c.PIDD}} {
		if g.r.Min > g.r.Max {
			return fmt.Errorf("settings: %s: min %v exceeds max %v", g.name, g.r.Min, g.r.Max)
		}
		if g.r.Init < g.r.Min || g.r.Init > g.r.Max {
			return fmt.Errorf("settings: %s: init %v outside [%v, %v]", g.name, g.r.Init, g.r.Min, g.r.Max)
		}
	}

	return nil
}

// AnalogChannels returns the sorted, de-duplicated list of analog channels
// that must be sampled: every sensor channel plus the applied-voltage
// channel.
func (c *Config) AnalogChannels() []int {
	seen := map[int]bool{c.AppliedVChannel: true}
	for _, g := range [][]Sensor{c.InnerTemps, c.OuterTemps, c.InfoTemps} {
		for _, s := range g {
			seen[s.Channel] = true
		}
	}
	channels := make([]int, 0, len(seen))
	for ch := range seen {
		channels = append(channels, ch)
	}
	sort.Ints(channels)
	return channels
}
