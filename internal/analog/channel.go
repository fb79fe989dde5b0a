// Package analog continuously samples analog input channels into per-channel
// ring buffers and exposes averaged snapshots. The averages are noise
// filters feeding a thermal control loop, not correctness-critical values,
// so readers deliberately run without locks and tolerate a torn read of at
// most one buffer slot.
package analog

import "errors"

// Source reads analog channels. Satisfied by *device.Gate.
type Source interface {
	ReadAnalog(channel int, longSettle bool) (float64, error)
}

// DefaultBufferSize is the default ring buffer capacity per channel.
// Larger buffers suppress noise better but respond slower.
const DefaultBufferSize = 20

// ErrNotPrimed is returned by Average before the channel's first
// successful read.
var ErrNotPrimed = errors.New("analog: no reading yet")

// Channel is one analog input and its ring buffer of recent samples.
// Read is called only by the owning Reader goroutine; Average may be called
// concurrently from any goroutine.
type Channel struct {
	src        Source
	number     int
	longSettle bool

	buf    []float64
	ix     int
	primed bool
}

// NewChannel creates a channel sampler. A size of 0 selects
// DefaultBufferSize.
func NewChannel(src Source, number int, longSettle bool, size int) *Channel {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Channel{
		src:        src,
		number:     number,
		longSettle: longSettle,
		buf:        make([]float64, size),
	}
}

// Number returns the analog channel number.
func (c *Channel) Number() int { return c.number }

// Read samples the channel and stores the value in the ring buffer. The
// first successful read seeds the whole buffer so Average is immediately
// meaningful rather than diluted by zeroes.
func (c *Channel) Read() (float64, error) {
	v, err := c.src.ReadAnalog(c.number, c.longSettle)
	if err != nil {
		return 0, err
	}

	if !c.primed {
		for i := range c.buf {
			c.buf[i] = v
		}
		c.primed = true
	} else {
		c.buf[c.ix] = v
	}
	c.ix = (c.ix + 1) % len(c.buf)

	return v, nil
}

// Average returns the arithmetic mean of the ring buffer, or ErrNotPrimed
// before the first read.
func (c *Channel) Average() (float64, error) {
	if !c.primed {
		return 0, ErrNotPrimed
	}
	sum := 0.0
	for _, v := range c.buf {
		sum += v
	}
	return sum / float64(len(c.buf)), nil
}
