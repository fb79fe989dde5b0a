package control

import "time"

// pid is a plain PID controller over the chamber's delta-T error signal.
// Not safe for concurrent use; the Controller guards it with its own lock.
type pid struct {
	kp, ki, kd float64

	integral  float64
	prevErr   float64
	havePrev  bool
	lastUpdate time.Time
}

func (p *pid) setTunings(kp, ki, kd float64) {
	p.kp = kp
	p.ki = ki
	p.kd = kd
}

// reset clears the integral and derivative history. Called on explicit
// operator request and when switching into or out of on/off mode, so the
// integrator cannot carry windup across a mode change.
func (p *pid) reset() {
	p.integral = 0
	p.prevErr = 0
	p.havePrev = false
	p.lastUpdate = time.Time{}
}

// update advances the controller with the current error at time now and
// returns the unclamped output. The first update after a reset has no
// elapsed time to integrate over and returns the proportional term alone.
func (p *pid) update(err float64, now time.Time) float64 {
	var dt float64
	if !p.lastUpdate.IsZero() {
		dt = now.Sub(p.lastUpdate).Seconds()
	}
	p.lastUpdate = now

	if dt <= 0 {
		p.prevErr = err
		p.havePrev = true
		return p.kp * err
	}

	p.integral += err * dt
	derivative := 0.0
	if p.havePrev {
		derivative = (err - p.prevErr) / dt
	}
	p.prevErr = err
	p.havePrev = true

	return p.kp*err + p.ki*p.integral + p.kd*derivative
}
