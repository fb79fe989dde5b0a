// Package pwm drives a digital output with a duty-cycled signal. Fractional
// heater power is delivered by holding the line high for a fraction of a
// fixed period.
package pwm

import (
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Output writes digital channels. Satisfied by *device.Gate.
type Output interface {
	WriteDigital(channel int, state bool) error
}

// PWM toggles one digital output according to a duty fraction in [0, 1],
// re-read once per cycle. SetValue may be called from any goroutine;
// last write wins. Timing does not account for the execution time of the
// writes themselves, so cycles run slightly long under load.
type PWM struct {
	out     Output
	channel int
	period  time.Duration

	// duty holds math.Float64bits of the current duty fraction.
	duty atomic.Uint64

	stop     chan struct{}
	done     chan struct{}
	started  atomic.Bool
	stopOnce sync.Once

	// timeAfter is swapped out by tests.
	timeAfter func(time.Duration) <-chan time.Time
}

// New creates a PWM for the given output channel and period. The duty
// starts at zero; Start launches the cycle loop.
func New(out Output, channel int, period time.Duration) *PWM {
	p := &PWM{
		out:       out,
		channel:   channel,
		period:    period,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		timeAfter: time.After,
	}
	p.SetValue(0)
	return p
}

// SetValue sets the duty fraction, clamped to [0, 1]. Takes effect at the
// start of the next cycle.
func (p *PWM) SetValue(v float64) {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	p.duty.Store(math.Float64bits(v))
}

// Value returns the current duty fraction.
func (p *PWM) Value() float64 {
	return math.Float64frombits(p.duty.Load())
}

// Start launches the cycle loop.
func (p *PWM) Start() {
	p.started.Store(true)
	go p.run()
}

// Stop halts the cycle loop, waits for it to exit, and forces the output
// low. The heater must never be left on across shutdown. Safe to call more
// than once.
func (p *PWM) Stop() error {
	p.stopOnce.Do(func() {
		close(p.stop)
		if p.started.Load() {
			<-p.done
		}
	})
	return p.ForceOff()
}

// ForceOff zeroes the duty and immediately drives the line low, without
// waiting for the cycle loop. Idempotent and safe to call at any time,
// including mid-failure; the write goes through the device gate like any
// other.
func (p *PWM) ForceOff() error {
	p.SetValue(0)
	return p.out.WriteDigital(p.channel, false)
}

func (p *PWM) run() {
	defer close(p.done)
	for p.cycle() {
	}
}

// cycle executes one full PWM period and reports whether the loop should
// continue. Write failures are logged and the cycle carries on; the next
// cycle re-evaluates the duty, so a failed deassert cannot leave the line
// stuck high forever.
func (p *PWM) cycle() bool {
	v := p.Value()
	switch {
	case v <= 0:
		p.write(false)
		return p.wait(p.period)
	case v >= 1:
		p.write(true)
		return p.wait(p.period)
	default:
		p.write(true)
		if !p.wait(time.Duration(float64(p.period) * v)) {
			return false
		}
		p.write(false)
		return p.wait(time.Duration(float64(p.period) * (1 - v)))
	}
}

func (p *PWM) write(state bool) {
	if err := p.out.WriteDigital(p.channel, state); err != nil {
		log.Printf("pwm: write channel %d: %v", p.channel, err)
	}
}

// wait sleeps for d or until Stop is called; it reports false on stop.
func (p *PWM) wait(d time.Duration) bool {
	select {
	case <-p.stop:
		return false
	case <-p.timeAfter(d):
		return true
	}
}
