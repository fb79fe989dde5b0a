// Package device provides access to the data-acquisition hardware with
// abstraction for testing. The real implementation talks to a DAQ unit over
// a USB serial line. The fake implementation allows testing without hardware,
// and the sim implementation models a thermal chamber for bench runs.
package device

import "errors"

// Direction configures a digital channel as input or output.
type Direction int

const (
	DirInput Direction = iota
	DirOutput
)

// Device is the raw acquisition hardware. Implementations are not required
// to be safe for concurrent use; callers go through a Gate, which serializes
// all access. The DAQ firmware processes one command at a time and corrupts
// interleaved command streams.
type Device interface {
	// Configure sets the direction of digital channels. Called once at
	// startup before any other operation.
	Configure(dirs map[int]Direction) error

	// ReadAnalog returns the voltage on an analog input channel.
	// With longSettle set the device uses its slow, high-impedance sampling
	// mode (about 4 ms per read instead of 0.7 ms). Thermistor divider
	// networks need it; low-impedance sources do not.
	ReadAnalog(channel int, longSettle bool) (float64, error)

	// WriteDigital sets a digital output channel high (true) or low (false).
	WriteDigital(channel int, state bool) error

	// ReadDigital returns the state of a digital channel.
	ReadDigital(channel int) (bool, error)

	// Close releases the device.
	Close() error
}

// ErrTimeout is returned by Gate operations that could not obtain exclusive
// access to the device within the gate's timeout.
var ErrTimeout = errors.New("device: timed out waiting for access")
