// Package led drives the heater activity LED with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package led

// Driver sets the LED state.
type Driver interface {
	// Set turns the LED on or off.
	Set(on bool) error

	// Close turns the LED off and releases GPIO resources.
	Close() error
}

// DefaultPin is the heater activity LED (BCM numbering).
const DefaultPin = 21
