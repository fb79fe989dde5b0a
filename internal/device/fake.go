package device

import (
	"fmt"
	"sync"
	"time"
)

// DigitalWrite records one WriteDigital call.
type DigitalWrite struct {
	Channel int
	State   bool
	At      time.Time
}

// Fake is a test double with fixed per-channel voltages and recorded digital
// writes. Unlike the real device it is safe for concurrent use, so tests can
// drive it from several goroutines both through and around a Gate.
type Fake struct {
	mu sync.Mutex

	// Voltages maps analog channel numbers to the value Read returns.
	Voltages map[int]float64

	// AnalogErrors maps channel numbers to an error returned instead of a
	// reading.
	AnalogErrors map[int]error

	// WriteError, if set, is returned by every WriteDigital call.
	WriteError error

	// ReadDelay is added to every operation, to widen race windows in
	// gate tests.
	ReadDelay time.Duration

	// Writes holds every digital write in order.
	Writes []DigitalWrite

	// Digital holds the last written state per channel; ReadDigital
	// returns it.
	Digital map[int]bool

	// Dirs holds the directions passed to Configure.
	Dirs map[int]Direction

	// Closed tracks if Close was called.
	Closed bool

	// inFlight counts operations currently executing; a gate must never
	// let it exceed one.
	inFlight    int
	maxInFlight int
}

// NewFake creates a Fake with the given analog channel voltages.
func NewFake(voltages map[int]float64) *Fake {
	f := &Fake{
		Voltages: map[int]float64{},
		Digital:  map[int]bool{},
	}
	for ch, v := range voltages {
		f.Voltages[ch] = v
	}
	return f
}

// SetVoltage updates the value an analog channel reads.
func (f *Fake) SetVoltage(channel int, v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Voltages[channel] = v
}

func (f *Fake) enter() {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	delay := f.ReadDelay
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
}

func (f *Fake) exit() {
	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
}

// MaxInFlight reports the largest number of operations that were ever
// executing at once.
func (f *Fake) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

// Configure records the direction map.
func (f *Fake) Configure(dirs map[int]Direction) error {
	f.enter()
	defer f.exit()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Dirs = map[int]Direction{}
	for ch, d := range dirs {
		f.Dirs[ch] = d
	}
	return nil
}

// ReadAnalog returns the configured voltage for the channel.
func (f *Fake) ReadAnalog(channel int, longSettle bool) (float64, error) {
	f.enter()
	defer f.exit()
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.AnalogErrors[channel]; err != nil {
		return 0, err
	}
	v, ok := f.Voltages[channel]
	if !ok {
		return 0, fmt.Errorf("fake: no voltage configured for channel %d", channel)
	}
	return v, nil
}

// WriteDigital records the write.
func (f *Fake) WriteDigital(channel int, state bool) error {
	f.enter()
	defer f.exit()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteError != nil {
		return f.WriteError
	}
	f.Writes = append(f.Writes, DigitalWrite{Channel: channel, State: state, At: time.Now()})
	f.Digital[channel] = state
	return nil
}

// ReadDigital returns the last written state for the channel.
func (f *Fake) ReadDigital(channel int) (bool, error) {
	f.enter()
	defer f.exit()
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Digital[channel], nil
}

// Close marks the device as closed.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// LastWrite returns the most recent digital write, or false if none occurred.
func (f *Fake) LastWrite() (DigitalWrite, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Writes) == 0 {
		return DigitalWrite{}, false
	}
	return f.Writes[len(f.Writes)-1], true
}

// WriteCount returns the number of digital writes recorded so far.
func (f *Fake) WriteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Writes)
}
