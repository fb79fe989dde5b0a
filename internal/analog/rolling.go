package analog

// Rolling computes a running mean over at most max readings. Until max
// readings have arrived the mean covers only what is available. Not safe
// for concurrent use.
type Rolling struct {
	max    int
	values []float64
	ix     int
}

// NewRolling creates a rolling average over up to max readings.
func NewRolling(max int) *Rolling {
	return &Rolling{max: max}
}

// Add folds in a reading and returns the new rolling average.
func (r *Rolling) Add(v float64) float64 {
	if len(r.values) < r.max {
		r.values = append(r.values, v)
	} else {
		r.values[r.ix] = v
		r.ix = (r.ix + 1) % r.max
	}

	sum := 0.0
	for _, x := range r.values {
		sum += x
	}
	return sum / float64(len(r.values))
}
