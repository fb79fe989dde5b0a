package analog

import (
	"log"
	"time"
)

// DefaultReadSpacing is the default sleep between channel reads. The gap
// exists so the sampler does not monopolize the device gate; the PWM
// actuator's writes interleave during it.
const DefaultReadSpacing = 4 * time.Millisecond

// Spec names one channel to sample.
type Spec struct {
	Number     int
	LongSettle bool
}

// Reader owns a set of Channels and samples them round-robin on a
// background goroutine. A failure on one channel is logged and skipped; a
// dead sensor must not halt the rest of the chamber.
type Reader struct {
	channels []*Channel
	spacing  time.Duration

	stop chan struct{}
	done chan struct{}

	// sleep is swapped out by tests.
	sleep func(time.Duration)
}

// NewReader creates a reader for the given channel specs. A spacing of 0
// selects DefaultReadSpacing; bufSize of 0 selects DefaultBufferSize.
func NewReader(src Source, specs []Spec, spacing time.Duration, bufSize int) *Reader {
	if spacing <= 0 {
		spacing = DefaultReadSpacing
	}
	channels := make([]*Channel, 0, len(specs))
	for _, s := range specs {
		channels = append(channels, NewChannel(src, s.Number, s.LongSettle, bufSize))
	}
	return &Reader{
		channels: channels,
		spacing:  spacing,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		sleep:    time.Sleep,
	}
}

// Start launches the background sampling loop.
func (r *Reader) Start() {
	go r.run()
}

// Stop halts the sampling loop and waits for it to exit.
func (r *Reader) Stop() {
	close(r.stop)
	<-r.done
}

func (r *Reader) run() {
	defer close(r.done)
	for {
		for _, ch := range r.channels {
			select {
			case <-r.stop:
				return
			default:
			}

			if _, err := ch.Read(); err != nil {
				log.Printf("analog: read channel %d: %v", ch.Number(), err)
			}
			r.sleep(r.spacing)
		}
	}
}

// Values returns a snapshot of current channel averages keyed by channel
// number. Channels with no value yet are omitted; consumers must handle a
// partial snapshot.
func (r *Reader) Values() map[int]float64 {
	values := make(map[int]float64, len(r.channels))
	for _, ch := range r.channels {
		avg, err := ch.Average()
		if err != nil {
			log.Printf("analog: average channel %d: %v", ch.Number(), err)
			continue
		}
		values[ch.Number()] = avg
	}
	return values
}
