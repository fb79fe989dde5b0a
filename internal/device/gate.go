package device

import (
	"sync"
	"time"
)

// DefaultTimeout is how long Gate operations wait for exclusive access
// before failing with ErrTimeout.
const DefaultTimeout = 100 * time.Millisecond

// acquirePoll is the spacing between lock attempts while waiting.
const acquirePoll = time.Millisecond

// Gate serializes access to a Device. The sampler, the PWM actuator and any
// one-shot operator reads all share the same physical device; the gate turns
// their concurrent calls into a queue with a bounded wait, so a wedged device
// surfaces as an ErrTimeout on a single operation rather than an unbounded
// hang.
//
// Gate itself implements Device and is safe for concurrent use.
type Gate struct {
	dev     Device
	timeout time.Duration
	mu      sync.Mutex
}

// NewGate wraps dev. A timeout of 0 selects DefaultTimeout.
func NewGate(dev Device, timeout time.Duration) *Gate {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gate{dev: dev, timeout: timeout}
}

// acquire claims exclusive access, polling every millisecond until the lock
// is free or the deadline passes.
func (g *Gate) acquire() error {
	deadline := time.Now().Add(g.timeout)
	for !g.mu.TryLock() {
		if time.Now().After(deadline) {
			return ErrTimeout
		}
		time.Sleep(acquirePoll)
	}
	return nil
}

// Configure sets digital channel directions under the gate.
func (g *Gate) Configure(dirs map[int]Direction) error {
	if err := g.acquire(); err != nil {
		return err
	}
	defer g.mu.Unlock()
	return g.dev.Configure(dirs)
}

// ReadAnalog reads an analog channel under the gate.
func (g *Gate) ReadAnalog(channel int, longSettle bool) (float64, error) {
	if err := g.acquire(); err != nil {
		return 0, err
	}
	defer g.mu.Unlock()
	return g.dev.ReadAnalog(channel, longSettle)
}

// WriteDigital writes a digital channel under the gate.
func (g *Gate) WriteDigital(channel int, state bool) error {
	if err := g.acquire(); err != nil {
		return err
	}
	defer g.mu.Unlock()
	return g.dev.WriteDigital(channel, state)
}

// ReadDigital reads a digital channel under the gate.
func (g *Gate) ReadDigital(channel int) (bool, error) {
	if err := g.acquire(); err != nil {
		return false, err
	}
	defer g.mu.Unlock()
	return g.dev.ReadDigital(channel)
}

// Close closes the underlying device. It waits for any in-flight operation
// to finish but does not time out; shutdown must release the hardware.
func (g *Gate) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dev.Close()
}
