package device

import (
	"testing"
	"time"
)

func simForTest() *Sim {
	return NewSim(SimConfig{
		InnerChannels:  []int{8},
		OuterChannels:  []int{0},
		AppliedChannel: 15,
		HeaterChannel:  6,
		AppliedVolts:   2.44,
		OuterTempF:     70,
		InitialInnerF:  70,
		HeaterRateF:    1.0,
		LossRate:       0.01,
		VoltsForTemp: func(tempF, applied float64) float64 {
			// Linear stand-in for the thermistor curve; the sim only
			// needs something invertible here.
			return tempF / 100.0
		},
	})
}

func TestSimHeaterRaisesInnerTemp(t *testing.T) {
	s := simForTest()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	if err := s.WriteDigital(6, true); err != nil {
		t.Fatalf("heater on: %v", err)
	}

	clock = clock.Add(10 * time.Second)
	inner := s.InnerTempF()
	if inner <= 70 {
		t.Errorf("inner temp did not rise with heater on: %.2f", inner)
	}

	// Heater off: inner relaxes back toward outer.
	if err := s.WriteDigital(6, false); err != nil {
		t.Fatalf("heater off: %v", err)
	}
	peak := s.InnerTempF()
	clock = clock.Add(30 * time.Second)
	cooled := s.InnerTempF()
	if cooled >= peak {
		t.Errorf("inner temp did not decay: peak %.2f now %.2f", peak, cooled)
	}
}

func TestSimChannelMapping(t *testing.T) {
	s := simForTest()

	v, err := s.ReadAnalog(15, true)
	if err != nil {
		t.Fatalf("applied channel: %v", err)
	}
	if v != 2.44 {
		t.Errorf("applied volts = %v, want 2.44", v)
	}

	if _, err := s.ReadAnalog(99, true); err == nil {
		t.Error("expected error for unmapped channel")
	}
	if err := s.WriteDigital(99, true); err == nil {
		t.Error("expected error for unmapped output")
	}
}
