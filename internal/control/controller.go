// Package control closes the feedback loop between the chamber's thermistor
// readings and the heater's PWM duty. Each cycle it snapshots the sampled
// voltages, converts them to per-group temperatures, computes delta-T
// (inner minus outer), runs the selected policy, and pushes the resulting
// duty to the actuator.
package control

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sweeney/chamber-heater/internal/analog"
	"github.com/sweeney/chamber-heater/internal/thermistor"
)

// Snapshotter provides channel-average snapshots. Satisfied by
// *analog.Reader.
type Snapshotter interface {
	Values() map[int]float64
}

// Actuator receives the computed duty. Satisfied by *pwm.PWM.
type Actuator interface {
	SetValue(v float64)
	ForceOff() error
}

// Parameters are the operator-tunable control settings, read once per
// cycle. Changes take effect on the next cycle.
type Parameters struct {
	KP, KI, KD float64
	// MaxPWM caps the duty fraction, in [0, 1].
	MaxPWM float64
	// Enabled gates the heater entirely; while false the duty is forced
	// to zero every cycle.
	Enabled bool
	// OnOff selects bang-bang control instead of PID: full MaxPWM while
	// delta-T is negative, zero otherwise.
	OnOff bool
}

// Groups holds the thermistors of the three configured sensor groups.
// Inner and outer drive the control calculation; info sensors are
// observational only.
type Groups struct {
	Inner []*thermistor.Thermistor
	Outer []*thermistor.Thermistor
	Info  []*thermistor.Thermistor
}

// SensorReading is one sensor's temperature within a Result.
type SensorReading struct {
	Label   string
	Channel int
	TempF   float64
}

// GroupSummary is one group's average temperature plus per-sensor detail.
type GroupSummary struct {
	AverageF float64
	Sensors  []SensorReading
}

// Result is the record published after each control cycle. Immutable once
// produced; each cycle replaces the previous one.
type Result struct {
	Timestamp time.Time
	Inner     GroupSummary
	Outer     GroupSummary
	Info      GroupSummary
	// DeltaT is inner average minus outer average, °F.
	DeltaT float64
	// SmoothedDeltaT is DeltaT through the configured rolling average.
	SmoothedDeltaT float64
	// Duty is the fraction pushed to the actuator this cycle.
	Duty float64
}

// Controller runs the periodic control loop.
type Controller struct {
	reader Snapshotter
	pwm    Actuator
	groups Groups
	period time.Duration

	mu          sync.Mutex
	params      Parameters
	pid         pid
	prevOnOff   bool
	prevEnabled bool
	result      *Result
	cycles      uint64
	cycleErrs   uint64

	rolling  *analog.Rolling
	onResult func(Result)

	stop     chan struct{}
	done     chan struct{}
	started  bool
	stopOnce sync.Once

	// now and wait are swapped out by tests.
	now  func() time.Time
	wait func(time.Duration) bool
}

// New creates a Controller. onResult, if non-nil, is called after every
// successful cycle with the freshly produced Result; it runs on the control
// goroutine and must not block for long. smoothing is the number of cycles
// in the smoothed delta-T rolling average (minimum 1).
func New(reader Snapshotter, actuator Actuator, groups Groups, period time.Duration, initial Parameters, smoothing int, onResult func(Result)) *Controller {
	if smoothing < 1 {
		smoothing = 1
	}
	initial.MaxPWM = clamp(initial.MaxPWM, 0, 1)
	c := &Controller{
		reader:      reader,
		pwm:         actuator,
		groups:      groups,
		period:      period,
		params:      initial,
		prevOnOff:   initial.OnOff,
		prevEnabled: initial.Enabled,
		rolling:     analog.NewRolling(smoothing),
		onResult:    onResult,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		now:         time.Now,
	}
	c.pid.setTunings(initial.KP, initial.KI, initial.KD)
	c.wait = func(d time.Duration) bool {
		select {
		case <-c.stop:
			return false
		case <-time.After(d):
			return true
		}
	}
	return c
}

// Start launches the control loop.
func (c *Controller) Start() {
	c.mu.Lock()
	c.started = true
	c.mu.Unlock()
	go c.run()
}

// Stop halts the control loop, waits for it to exit, and turns the heater
// off. Safe to call more than once.
func (c *Controller) Stop() error {
	var wasStarted bool
	c.mu.Lock()
	wasStarted = c.started
	c.mu.Unlock()

	c.stopOnce.Do(func() {
		close(c.stop)
		if wasStarted {
			<-c.done
		}
	})
	return c.TurnOffPWM()
}

func (c *Controller) run() {
	defer close(c.done)
	for {
		c.step(c.now())
		// The sleep does not subtract the cycle's own execution time;
		// the cadence drifts long under load. Field PID tunings were
		// calibrated against that cadence, so it stays.
		if !c.wait(c.period) {
			return
		}
	}
}

// step executes one control cycle. Any failure is logged and answered by
// forcing the duty to zero: after an error the heater state is unknown, and
// an unpowered heater is the safe state.
func (c *Controller) step(now time.Time) {
	if err := c.cycle(now); err != nil {
		log.Printf("control: cycle failed: %v", err)
		c.pwm.SetValue(0)
		c.mu.Lock()
		c.cycleErrs++
		c.mu.Unlock()
	}
}

func (c *Controller) cycle(now time.Time) error {
	readings := c.reader.Values()

	inner, err := groupSummary(c.groups.Inner, readings)
	if err != nil {
		return fmt.Errorf("inner group: %w", err)
	}
	outer, err := groupSummary(c.groups.Outer, readings)
	if err != nil {
		return fmt.Errorf("outer group: %w", err)
	}
	// Info sensors are observational; one dropping out must not zero the
	// heater, so they are summarized best-effort.
	info := bestEffortSummary(c.groups.Info, readings)

	delta := inner.AverageF - outer.AverageF
	duty := c.computeDuty(delta, now)
	c.pwm.SetValue(duty)

	res := Result{
		Timestamp:      now,
		Inner:          inner,
		Outer:          outer,
		Info:           info,
		DeltaT:         delta,
		SmoothedDeltaT: c.rolling.Add(delta),
		Duty:           duty,
	}

	c.mu.Lock()
	c.result = &res
	c.cycles++
	cb := c.onResult
	c.mu.Unlock()

	if cb != nil {
		cb(res)
	}
	return nil
}

// computeDuty applies the selected policy to the delta-T error signal.
func (c *Controller) computeDuty(delta float64, now time.Time) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.params
	if p.OnOff != c.prevOnOff {
		c.pid.reset()
		c.prevOnOff = p.OnOff
	}
	// Reset on re-enable too, so the dt gap spent disabled does not
	// land in the integral on the first enabled cycle.
	if p.Enabled && !c.prevEnabled {
		c.pid.reset()
	}
	c.prevEnabled = p.Enabled

	switch {
	case !p.Enabled:
		return 0
	case p.OnOff:
		// Bang-bang: heat at full allowed output while the inner zone
		// lags the outer zone.
		if delta < 0 {
			return p.MaxPWM
		}
		return 0
	default:
		c.pid.setTunings(p.KP, p.KI, p.KD)
		return clamp(c.pid.update(delta, now), 0, p.MaxPWM)
	}
}

// groupSummary converts each sensor in the group and averages them. Any
// sensor that cannot be converted (its channel was omitted from the
// snapshot) fails the whole group.
func groupSummary(sensors []*thermistor.Thermistor, readings map[int]float64) (GroupSummary, error) {
	var sum GroupSummary
	for _, s := range sensors {
		tempF, err := s.Temperature(readings)
		if err != nil {
			return GroupSummary{}, err
		}
		sum.Sensors = append(sum.Sensors, SensorReading{Label: s.Label, Channel: s.Channel, TempF: tempF})
	}
	if len(sum.Sensors) == 0 {
		return GroupSummary{}, fmt.Errorf("no sensors in group")
	}
	total := 0.0
	for _, s := range sum.Sensors {
		total += s.TempF
	}
	sum.AverageF = total / float64(len(sum.Sensors))
	return sum, nil
}

// bestEffortSummary is groupSummary for informational sensors: failed
// conversions are logged and skipped, and an empty group is legitimate.
func bestEffortSummary(sensors []*thermistor.Thermistor, readings map[int]float64) GroupSummary {
	var sum GroupSummary
	total := 0.0
	for _, s := range sensors {
		tempF, err := s.Temperature(readings)
		if err != nil {
			log.Printf("control: info sensor %q: %v", s.Label, err)
			continue
		}
		sum.Sensors = append(sum.Sensors, SensorReading{Label: s.Label, Channel: s.Channel, TempF: tempF})
		total += tempF
	}
	if len(sum.Sensors) > 0 {
		sum.AverageF = total / float64(len(sum.Sensors))
	}
	return sum
}

// SetTunings updates the PID gains; they apply on the next cycle.
func (c *Controller) SetTunings(kp, ki, kd float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.params.KP = kp
	c.params.KI = ki
	c.params.KD = kd
}

// SetMaxPWM updates the duty cap, clamped to [0, 1].
func (c *Controller) SetMaxPWM(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.params.MaxPWM = clamp(v, 0, 1)
}

// SetEnabled engages or disengages the heater.
func (c *Controller) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.params.Enabled = enabled
}

// SetOnOffMode selects bang-bang control. The PID state resets when the
// mode actually changes, on the next cycle.
func (c *Controller) SetOnOffMode(onOff bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.params.OnOff = onOff
}

// ResetPID clears the PID's integral and derivative history without
// touching the current duty output.
func (c *Controller) ResetPID() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pid.reset()
}

// TurnOffPWM immediately forces the heater off. Idempotent; safe to call
// at any time, including while the loop is failing.
func (c *Controller) TurnOffPWM() error {
	return c.pwm.ForceOff()
}

// Parameters returns the current control parameters.
func (c *Controller) Parameters() Parameters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params
}

// CurrentResult returns the most recent Result, if any cycle has completed.
func (c *Controller) CurrentResult() (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return Result{}, false
	}
	return *c.result, true
}

// Counters reports completed and failed cycle counts.
func (c *Controller) Counters() (cycles, errors uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cycles, c.cycleErrs
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
