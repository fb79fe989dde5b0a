package control

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/chamber-heater/internal/thermistor"
)

const (
	appliedCh    = 15
	appliedVolts = 2.44
	dividerR     = 20000.0
)

// staticSnapshot is a fixed channel-average snapshot.
type staticSnapshot map[int]float64

func (s staticSnapshot) Values() map[int]float64 {
	out := make(map[int]float64, len(s))
	for ch, v := range s {
		out[ch] = v
	}
	return out
}

// fakeActuator records duty values.
type fakeActuator struct {
	mu       sync.Mutex
	values   []float64
	offCalls int
}

func (a *fakeActuator) SetValue(v float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.values = append(a.values, v)
}

func (a *fakeActuator) ForceOff() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.offCalls++
	a.values = append(a.values, 0)
	return nil
}

func (a *fakeActuator) last() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.values) == 0 {
		return math.NaN()
	}
	return a.values[len(a.values)-1]
}

func sensor(t *testing.T, label string, channel int) *thermistor.Thermistor {
	t.Helper()
	th, err := thermistor.New("TDK 5K", label, channel, appliedCh, dividerR)
	if err != nil {
		t.Fatalf("thermistor: %v", err)
	}
	return th
}

// snapshotFor builds a snapshot where the given channels read the given
// temperatures through the TDK 5K model.
func snapshotFor(t *testing.T, tempsF map[int]float64) staticSnapshot {
	t.Helper()
	ref := sensor(t, "ref", 0)
	snap := staticSnapshot{appliedCh: appliedVolts}
	for ch, tempF := range tempsF {
		snap[ch] = ref.VoltageForTemp(tempF, appliedVolts)
	}
	return snap
}

func testGroups(t *testing.T) Groups {
	t.Helper()
	return Groups{
		Inner: []*thermistor.Thermistor{sensor(t, "A", 8)},
		Outer: []*thermistor.Thermistor{sensor(t, "B", 9)},
	}
}

func newTestController(t *testing.T, snap Snapshotter, params Parameters) (*Controller, *fakeActuator) {
	t.Helper()
	act := &fakeActuator{}
	c := New(snap, act, testGroups(t), 300*time.Millisecond, params, 1, nil)
	return c, act
}

func TestOnOffModeEngagesBelowZero(t *testing.T) {
	// Inner 69, outer 70: delta-T = -1.0, heater must run at MaxPWM.
	snap := snapshotFor(t, map[int]float64{8: 69.0, 9: 70.0})
	c, act := newTestController(t, snap, Parameters{Enabled: true, OnOff: true, MaxPWM: 0.8})

	c.step(time.Now())
	if duty := act.last(); duty != 0.8 {
		t.Errorf("duty = %v, want 0.8", duty)
	}
}

func TestOnOffModeDisengagesAboveZero(t *testing.T) {
	snap := snapshotFor(t, map[int]float64{8: 71.0, 9: 70.0})
	c, act := newTestController(t, snap, Parameters{Enabled: true, OnOff: true, MaxPWM: 0.8})

	c.step(time.Now())
	if duty := act.last(); duty != 0.0 {
		t.Errorf("duty = %v, want 0.0", duty)
	}
}

func TestDisabledForcesZeroDuty(t *testing.T) {
	// Large negative delta, but control disabled: duty stays zero.
	snap := snapshotFor(t, map[int]float64{8: 50.0, 9: 70.0})
	c, act := newTestController(t, snap, Parameters{Enabled: false, OnOff: true, MaxPWM: 1.0, KP: 10})

	c.step(time.Now())
	if duty := act.last(); duty != 0.0 {
		t.Errorf("duty = %v, want 0.0 while disabled", duty)
	}
}

func TestPIDModeClampsToMaxPWM(t *testing.T) {
	// delta-T = +5.0, P=1: raw output 5, clamped to MaxPWM.
	snap := snapshotFor(t, map[int]float64{8: 75.0, 9: 70.0})
	c, act := newTestController(t, snap, Parameters{Enabled: true, MaxPWM: 0.6, KP: 1.0})

	c.step(time.Now())
	if duty := act.last(); duty != 0.6 {
		t.Errorf("duty = %v, want clamp to 0.6", duty)
	}
}

func TestPIDModeNegativeOutputClampsToZero(t *testing.T) {
	snap := snapshotFor(t, map[int]float64{8: 65.0, 9: 70.0})
	c, act := newTestController(t, snap, Parameters{Enabled: true, MaxPWM: 1.0, KP: 1.0})

	c.step(time.Now())
	if duty := act.last(); duty != 0.0 {
		t.Errorf("duty = %v, want 0.0", duty)
	}
}

func TestCycleFailsafeOnMissingInnerChannel(t *testing.T) {
	// Channel 8 missing from the snapshot entirely.
	snap := snapshotFor(t, map[int]float64{9: 70.0})
	c, act := newTestController(t, snap, Parameters{Enabled: true, OnOff: true, MaxPWM: 1.0})

	c.step(time.Now())
	if duty := act.last(); duty != 0.0 {
		t.Errorf("duty = %v, want failsafe 0.0", duty)
	}
	cycles, errs := c.Counters()
	if cycles != 0 || errs != 1 {
		t.Errorf("counters = (%d, %d), want (0, 1)", cycles, errs)
	}
	if _, ok := c.CurrentResult(); ok {
		t.Error("no result should be published for a failed cycle")
	}
}

func TestInfoSensorsAreBestEffort(t *testing.T) {
	snap := snapshotFor(t, map[int]float64{8: 69.0, 9: 70.0, 11: 72.0})
	groups := testGroups(t)
	groups.Info = []*thermistor.Thermistor{
		sensor(t, "Top Inner", 11),
		sensor(t, "West Side Inner", 12), // channel 12 absent
	}
	act := &fakeActuator{}
	c := New(snap, act, groups, 300*time.Millisecond, Parameters{Enabled: true, OnOff: true, MaxPWM: 1.0}, 1, nil)

	c.step(time.Now())

	res, ok := c.CurrentResult()
	if !ok {
		t.Fatal("expected a result despite the dead info sensor")
	}
	if len(res.Info.Sensors) != 1 || res.Info.Sensors[0].Label != "Top Inner" {
		t.Errorf("info sensors = %+v, want only Top Inner", res.Info.Sensors)
	}
	if duty := act.last(); duty != 1.0 {
		t.Errorf("duty = %v, want 1.0", duty)
	}
}

func TestResultContents(t *testing.T) {
	snap := snapshotFor(t, map[int]float64{8: 75.0, 9: 70.0})
	var published []Result
	act := &fakeActuator{}
	c := New(snap, act, testGroups(t), 300*time.Millisecond,
		Parameters{Enabled: true, MaxPWM: 1.0, KP: 1.0}, 1,
		func(r Result) { published = append(published, r) })

	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	c.step(now)

	if len(published) != 1 {
		t.Fatalf("published %d results, want 1", len(published))
	}
	res := published[0]
	if !res.Timestamp.Equal(now) {
		t.Errorf("timestamp = %v, want %v", res.Timestamp, now)
	}
	if math.Abs(res.DeltaT-5.0) > 1e-6 {
		t.Errorf("delta-T = %v, want 5.0", res.DeltaT)
	}
	if math.Abs(res.SmoothedDeltaT-res.DeltaT) > 1e-12 {
		t.Errorf("smoothed delta-T = %v, want %v on first cycle", res.SmoothedDeltaT, res.DeltaT)
	}
	if res.Duty != 1.0 {
		t.Errorf("duty = %v, want clamp(5.0, 0, 1) = 1.0", res.Duty)
	}
	if math.Abs(res.Inner.AverageF-75.0) > 1e-6 {
		t.Errorf("inner average = %v, want 75.0", res.Inner.AverageF)
	}
	if math.Abs(res.Outer.AverageF-70.0) > 1e-6 {
		t.Errorf("outer average = %v, want 70.0", res.Outer.AverageF)
	}

	cur, ok := c.CurrentResult()
	if !ok || cur.Duty != res.Duty {
		t.Errorf("CurrentResult = (%+v, %v), want published result", cur, ok)
	}
}

func TestModeSwitchResetsPID(t *testing.T) {
	snap := snapshotFor(t, map[int]float64{8: 75.0, 9: 70.0})
	c, _ := newTestController(t, snap, Parameters{Enabled: true, MaxPWM: 1.0, KP: 0, KI: 1.0})

	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	c.step(now)
	c.step(now.Add(time.Second))
	if c.pid.integral == 0 {
		t.Fatal("integral should have accumulated in PID mode")
	}

	c.SetOnOffMode(true)
	c.step(now.Add(2 * time.Second))
	if c.pid.integral != 0 {
		t.Errorf("integral = %v after mode switch, want 0", c.pid.integral)
	}
}

func TestReEnableResetsPID(t *testing.T) {
	snap := snapshotFor(t, map[int]float64{8: 75.0, 9: 70.0})
	c, act := newTestController(t, snap, Parameters{Enabled: true, MaxPWM: 1.0, KP: 0, KI: 1.0})

	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	c.step(now)
	c.step(now.Add(time.Second))
	if c.pid.integral == 0 {
		t.Fatal("integral should have accumulated in PID mode")
	}

	c.SetEnabled(false)
	c.step(now.Add(2 * time.Second))

	// Re-enable after a long idle stretch. The idle time must not be
	// folded into the integral as one giant dt.
	c.SetEnabled(true)
	c.step(now.Add(10 * time.Minute))
	if c.pid.integral != 0 {
		t.Errorf("integral = %v on first cycle after re-enable, want 0", c.pid.integral)
	}
	if duty := act.last(); duty != 0 {
		t.Errorf("duty = %v on first cycle after re-enable, want 0", duty)
	}
}

func TestResetPIDClearsHistoryOnly(t *testing.T) {
	snap := snapshotFor(t, map[int]float64{8: 75.0, 9: 70.0})
	c, act := newTestController(t, snap, Parameters{Enabled: true, MaxPWM: 1.0, KI: 1.0})

	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	c.step(now)
	c.step(now.Add(time.Second))
	before := act.last()

	c.ResetPID()
	if c.pid.integral != 0 {
		t.Errorf("integral = %v after ResetPID, want 0", c.pid.integral)
	}
	// ResetPID must not touch the actuator.
	if act.last() != before {
		t.Errorf("duty changed from %v to %v on ResetPID", before, act.last())
	}
}

func TestTurnOffPWMIdempotent(t *testing.T) {
	snap := snapshotFor(t, map[int]float64{8: 69.0, 9: 70.0})
	c, act := newTestController(t, snap, Parameters{Enabled: true, OnOff: true, MaxPWM: 1.0})

	c.step(time.Now())
	if err := c.TurnOffPWM(); err != nil {
		t.Fatalf("TurnOffPWM: %v", err)
	}
	if err := c.TurnOffPWM(); err != nil {
		t.Fatalf("second TurnOffPWM: %v", err)
	}
	if act.offCalls != 2 {
		t.Errorf("ForceOff called %d times, want 2", act.offCalls)
	}
	if act.last() != 0 {
		t.Errorf("duty = %v, want 0", act.last())
	}
}

func TestSettersApplyNextCycle(t *testing.T) {
	snap := snapshotFor(t, map[int]float64{8: 69.0, 9: 70.0})
	c, act := newTestController(t, snap, Parameters{Enabled: true, OnOff: true, MaxPWM: 0.8})

	c.step(time.Now())
	if act.last() != 0.8 {
		t.Fatalf("duty = %v, want 0.8", act.last())
	}

	c.SetMaxPWM(0.5)
	c.step(time.Now())
	if act.last() != 0.5 {
		t.Errorf("duty = %v after SetMaxPWM, want 0.5", act.last())
	}

	c.SetEnabled(false)
	c.step(time.Now())
	if act.last() != 0.0 {
		t.Errorf("duty = %v after SetEnabled(false), want 0.0", act.last())
	}

	c.SetTunings(2.0, 0.1, 0.0)
	p := c.Parameters()
	if p.KP != 2.0 || p.KI != 0.1 || p.KD != 0.0 {
		t.Errorf("parameters = %+v", p)
	}
}

func TestSetMaxPWMClamps(t *testing.T) {
	snap := snapshotFor(t, map[int]float64{8: 69.0, 9: 70.0})
	c, _ := newTestController(t, snap, Parameters{Enabled: true, MaxPWM: 1.0})

	c.SetMaxPWM(1.5)
	if p := c.Parameters(); p.MaxPWM != 1.0 {
		t.Errorf("MaxPWM = %v, want clamp to 1.0", p.MaxPWM)
	}
	c.SetMaxPWM(-0.5)
	if p := c.Parameters(); p.MaxPWM != 0.0 {
		t.Errorf("MaxPWM = %v, want clamp to 0.0", p.MaxPWM)
	}
}

func TestStartStopLoop(t *testing.T) {
	snap := snapshotFor(t, map[int]float64{8: 69.0, 9: 70.0})
	act := &fakeActuator{}
	c := New(snap, act, testGroups(t), time.Millisecond, Parameters{Enabled: true, OnOff: true, MaxPWM: 1.0}, 1, nil)

	c.Start()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cycles, _ := c.Counters(); cycles >= 3 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	cycles, _ := c.Counters()
	if cycles < 3 {
		t.Errorf("loop completed %d cycles, want >= 3", cycles)
	}
	if act.last() != 0 {
		t.Errorf("duty after Stop = %v, want 0", act.last())
	}
	// Stop twice is fine.
	if err := c.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}
