// Package mqtt publishes chamber control results and system lifecycle
// events, with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/chamber-heater/internal/control"
)

// Topic is the MQTT topic for periodic control results.
const Topic = "energy/chamber/heater/results"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "energy/chamber/heater/system"

// Publisher publishes chamber data to MQTT.
type Publisher interface {
	// PublishResult sends a control result to the broker.
	// Returns error if publishing fails (should not crash the process).
	PublishResult(res control.Result) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (startup, shutdown,
// heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload is the MQTT message envelope for control results.
type Payload struct {
	Chamber ChamberPayload `json:"chamber"`
}

// ChamberPayload contains one control cycle's results.
type ChamberPayload struct {
	Timestamp      string       `json:"timestamp"`
	DeltaT         float64      `json:"delta_t"`
	SmoothedDeltaT float64      `json:"smoothed_delta_t"`
	PWM            float64      `json:"pwm"`
	Inner          GroupPayload `json:"inner"`
	Outer          GroupPayload `json:"outer"`
	Info           GroupPayload `json:"info"`
}

// GroupPayload is one sensor group's temperatures.
type GroupPayload struct {
	AverageF float64         `json:"average_f"`
	Sensors  []SensorPayload `json:"sensors"`
}

// SensorPayload is one labelled sensor temperature.
type SensorPayload struct {
	Label   string  `json:"label"`
	Channel int     `json:"channel"`
	TempF   float64 `json:"temp_f"`
}

// FormatResultPayload creates the JSON payload for a control result.
func FormatResultPayload(res control.Result) ([]byte, error) {
	payload := Payload{
		Chamber: ChamberPayload{
			Timestamp:      res.Timestamp.UTC().Format(time.RFC3339),
			DeltaT:         res.DeltaT,
			SmoothedDeltaT: res.SmoothedDeltaT,
			PWM:            res.Duty,
			Inner:          groupPayload(res.Inner),
			Outer:          groupPayload(res.Outer),
			Info:           groupPayload(res.Info),
		},
	}
	return json.Marshal(payload)
}

func groupPayload(g control.GroupSummary) GroupPayload {
	out := GroupPayload{AverageF: g.AverageF}
	for _, s := range g.Sensors {
		out.Sensors = append(out.Sensors, SensorPayload{Label: s.Label, Channel: s.Channel, TempF: s.TempF})
	}
	return out
}

// SystemPayload is the MQTT message payload for simple system events that
// don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status
// snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
