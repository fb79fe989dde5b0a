package device

import (
	"fmt"
	"sync"
	"time"
)

// SimConfig describes the simulated chamber.
type SimConfig struct {
	// InnerChannels are analog channels reporting the inner zone.
	InnerChannels []int
	// OuterChannels and InfoChannels report the outer zone.
	OuterChannels []int
	InfoChannels  []int
	// AppliedChannel reports the divider supply voltage.
	AppliedChannel int
	// HeaterChannel is the digital output driving the heater.
	HeaterChannel int

	// AppliedVolts is the divider supply, nominally 2.44 V.
	AppliedVolts float64
	// OuterTempF is the fixed ambient (outer zone) temperature.
	OuterTempF float64
	// InitialInnerF is the inner zone starting temperature.
	InitialInnerF float64
	// HeaterRateF is the inner zone heating rate in °F/s with the heater on.
	HeaterRateF float64
	// LossRate is the fraction of the inner-outer difference shed per second.
	LossRate float64

	// VoltsForTemp converts a zone temperature to the thermistor divider
	// voltage a sensor on that zone would read. Supplied by the caller so
	// the device layer stays independent of the thermistor model.
	VoltsForTemp func(tempF, appliedVolts float64) float64
}

// Sim models the chamber with a first-order thermal response: the inner zone
// relaxes toward the outer zone and the heater pushes it up while the heater
// line is high. Good enough to exercise the full control path on a bench
// with no hardware attached.
type Sim struct {
	mu      sync.Mutex
	cfg     SimConfig
	innerF  float64
	heating bool
	last    time.Time
	now     func() time.Time
}

// NewSim creates a simulated chamber.
func NewSim(cfg SimConfig) *Sim {
	return &Sim{
		cfg:    cfg,
		innerF: cfg.InitialInnerF,
		now:    time.Now,
	}
}

// step advances the thermal model to the current time. Caller holds s.mu.
func (s *Sim) step() {
	t := s.now()
	if !s.last.IsZero() {
		dt := t.Sub(s.last).Seconds()
		s.innerF -= s.cfg.LossRate * (s.innerF - s.cfg.OuterTempF) * dt
		if s.heating {
			s.innerF += s.cfg.HeaterRateF * dt
		}
	}
	s.last = t
}

// InnerTempF reports the current inner zone temperature.
func (s *Sim) InnerTempF() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step()
	return s.innerF
}

// Configure is a no-op; the simulated channels are fixed by SimConfig.
func (s *Sim) Configure(dirs map[int]Direction) error {
	return nil
}

// ReadAnalog returns the simulated voltage for the channel.
func (s *Sim) ReadAnalog(channel int, longSettle bool) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step()

	if channel == s.cfg.AppliedChannel {
		return s.cfg.AppliedVolts, nil
	}
	for _, ch := range s.cfg.InnerChannels {
		if ch == channel {
			return s.cfg.VoltsForTemp(s.innerF, s.cfg.AppliedVolts), nil
		}
	}
	for _, ch := range append(s.cfg.OuterChannels, s.cfg.InfoChannels...) {
		if ch == channel {
			return s.cfg.VoltsForTemp(s.cfg.OuterTempF, s.cfg.AppliedVolts), nil
		}
	}
	return 0, fmt.Errorf("sim: no sensor on channel %d", channel)
}

// WriteDigital turns the simulated heater on or off.
func (s *Sim) WriteDigital(channel int, state bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if channel != s.cfg.HeaterChannel {
		return fmt.Errorf("sim: no output on channel %d", channel)
	}
	s.step()
	s.heating = state
	return nil
}

// ReadDigital returns the heater line state.
func (s *Sim) ReadDigital(channel int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if channel != s.cfg.HeaterChannel {
		return false, fmt.Errorf("sim: no output on channel %d", channel)
	}
	return s.heating, nil
}

// Close is a no-op.
func (s *Sim) Close() error {
	return nil
}
