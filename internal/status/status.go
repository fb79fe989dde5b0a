// Package status provides a thread-safe status tracker for the
// chamber-heater daemon. It is read by the HTTP handlers, the MQTT system
// events, and the heater LED driver.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/chamber-heater/internal/control"
)

// NetworkInfo contains network state, read from the pi-helper env file.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	ControlPeriodMs int64
	PWMPeriodMs     int64
	PWMChannel      int
	ReadSpacingMs   int64
	RingBufferSize  int
	HeartbeatMs     int64
	Broker          string
	HTTPPort        string
	Sim             bool
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type — safe to use after the lock is released.
type Snapshot struct {
	Result        *control.Result
	Params        control.Parameters
	Cycles        uint64
	CycleErrors   uint64
	StartTime     time.Time
	Now           time.Time
	RunID         string
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time, run id and config.
func NewTracker(startTime time.Time, runID string, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			RunID:     runID,
			Config:    cfg,
		},
	}
}

// SetResult stores the latest control result and counters.
// Called from the control loop's result callback on every cycle.
func (t *Tracker) SetResult(res control.Result, cycles, cycleErrors uint64) {
	t.mu.Lock()
	r := res
	t.snap.Result = &r
	t.snap.Cycles = cycles
	t.snap.CycleErrors = cycleErrors
	t.mu.Unlock()
}

// SetParameters stores the current control parameters.
func (t *Tracker) SetParameters(p control.Parameters) {
	t.mu.Lock()
	t.snap.Params = p
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
