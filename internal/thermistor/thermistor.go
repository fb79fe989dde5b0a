// Package thermistor converts thermistor divider-network voltages into
// temperatures using Steinhart-Hart log-resistance polynomials. Pure math,
// no I/O.
package thermistor

import (
	"fmt"
	"math"
)

// coefficients holds the Steinhart-Hart coefficients for the supported
// thermistor types.
var coefficients = map[string][3]float64{
	"Tekmar 071":    {0.001124476, 0.00023482, 8.54409e-08},
	"Sure 10K":      {0.00090296, 0.000249878, 1.9712e-07},
	"US Sensor 5K":  {0.00128637, 0.00023595, 9.3841e-08},
	"US Sensor J":   {0.001128437, 0.000234244, 8.71364e-08},
	"BAPI 10K-3":    {0.001028172, 0.0002392811, 1.5611865e-07},
	"InOut":         {0.00131413, 0.000174074, 5.576999e-07},
	"Quality 10K Z": {0.001125161025848, 0.000234721098632, 8.5877049e-08},
	"ACR":           {0.00105135, 0.0002475590, 2.8879777e-08},
	"Quality 10K S": {0.001028267, 0.000239267, 1.561795e-07},
	"TDK 5K":        {0.001020977743, 0.000263446501, 1.444025e-07},
}

// KnownType reports whether name is a supported thermistor type.
func KnownType(name string) bool {
	_, ok := coefficients[name]
	return ok
}

// Thermistor is one sensor: a thermistor of a known type wired into a
// divider network, read on one analog channel against the divider supply
// voltage on another.
type Thermistor struct {
	Label          string
	Channel        int
	AppliedChannel int
	DividerR       float64

	typ   string
	coeff [3]float64
}

// New creates a Thermistor. The type name must be one of the supported
// coefficient table entries.
func New(typ, label string, channel, appliedChannel int, dividerR float64) (*Thermistor, error) {
	c, ok := coefficients[typ]
	if !ok {
		return nil, fmt.Errorf("thermistor: unknown type %q for sensor %q", typ, label)
	}
	return &Thermistor{
		Label:          label,
		Channel:        channel,
		AppliedChannel: appliedChannel,
		DividerR:       dividerR,
		typ:            typ,
		coeff:          c,
	}, nil
}

// Type returns the thermistor type name.
func (t *Thermistor) Type() string { return t.typ }

// RFromV returns the thermistor resistance given the measured divider
// voltage and the voltage applied to the network. A measured voltage at or
// above the applied voltage (open sensor) yields a very large resistance
// rather than a division by zero.
func (t *Thermistor) RFromV(measuredV, appliedV float64) float64 {
	divV := appliedV - measuredV
	if divV <= 0 {
		return 9.99e99
	}
	return measuredV / divV * t.DividerR
}

// TFromR returns the temperature in °F for a resistance in ohms.
func (t *Thermistor) TFromR(resistance float64) float64 {
	lnR := -9.99e99
	if resistance > 0 {
		lnR = math.Log(resistance)
	}
	c1, c2, c3 := t.coeff[0], t.coeff[1], t.coeff[2]
	return 1.8/(c1+c2*lnR+c3*lnR*lnR*lnR) - 459.67
}

// TFromV returns the temperature in °F for a measured divider voltage and
// applied voltage.
func (t *Thermistor) TFromV(measuredV, appliedV float64) float64 {
	return t.TFromR(t.RFromV(measuredV, appliedV))
}

// Temperature returns the sensor temperature in °F from a snapshot of
// channel voltages. Both the sensor channel and the applied-voltage channel
// must be present in the snapshot.
func (t *Thermistor) Temperature(readings map[int]float64) (float64, error) {
	measured, ok := readings[t.Channel]
	if !ok {
		return 0, fmt.Errorf("thermistor %q: channel %d missing from snapshot", t.Label, t.Channel)
	}
	applied, ok := readings[t.AppliedChannel]
	if !ok {
		return 0, fmt.Errorf("thermistor %q: applied-voltage channel %d missing from snapshot", t.Label, t.AppliedChannel)
	}
	return t.TFromV(measured, applied), nil
}

// VoltageForTemp inverts the model: it returns the divider voltage a sensor
// at tempF would measure with the given applied voltage. The curve is
// monotonic (NTC: hotter means lower resistance means lower measured
// voltage), so a bisection converges quickly. Used by the chamber simulator
// and by tests to synthesize readings.
func (t *Thermistor) VoltageForTemp(tempF, appliedV float64) float64 {
	lo, hi := 0.0, appliedV
	for i := 0; i < 64; i++ {
		mid := (lo + hi) / 2
		if t.TFromV(mid, appliedV) > tempF {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}

// FToC converts Fahrenheit to Celsius.
func FToC(f float64) float64 {
	return (f - 32.0) / 1.8
}
