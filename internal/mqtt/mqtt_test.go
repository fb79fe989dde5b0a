package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/chamber-heater/internal/control"
)

func sampleResult() control.Result {
	return control.Result{
		Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		Inner: control.GroupSummary{
			AverageF: 75.0,
			Sensors:  []control.SensorReading{{Label: "Upper Inlet", Channel: 8, TempF: 75.0}},
		},
		Outer: control.GroupSummary{
			AverageF: 70.0,
			Sensors:  []control.SensorReading{{Label: "Top", Channel: 0, TempF: 70.0}},
		},
		DeltaT:         5.0,
		SmoothedDeltaT: 4.8,
		Duty:           1.0,
	}
}

func TestFormatResultPayload(t *testing.T) {
	payload, err := FormatResultPayload(sampleResult())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	ch := parsed.Chamber
	if ch.Timestamp != "2026-02-02T22:18:12Z" {
		t.Errorf("unexpected timestamp: %s", ch.Timestamp)
	}
	if ch.DeltaT != 5.0 {
		t.Errorf("delta_t = %v, want 5.0", ch.DeltaT)
	}
	if ch.SmoothedDeltaT != 4.8 {
		t.Errorf("smoothed_delta_t = %v, want 4.8", ch.SmoothedDeltaT)
	}
	if ch.PWM != 1.0 {
		t.Errorf("pwm = %v, want 1.0", ch.PWM)
	}
	if ch.Inner.AverageF != 75.0 {
		t.Errorf("inner average = %v, want 75.0", ch.Inner.AverageF)
	}
	if len(ch.Inner.Sensors) != 1 || ch.Inner.Sensors[0].Label != "Upper Inlet" {
		t.Errorf("inner sensors = %+v", ch.Inner.Sensors)
	}
	if len(ch.Info.Sensors) != 0 {
		t.Errorf("info sensors = %+v, want empty", ch.Info.Sensors)
	}
}

func TestFormatSystemPayload(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed SystemPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.System.Event != "SHUTDOWN" {
		t.Errorf("event = %s", parsed.System.Event)
	}
	if parsed.System.Reason != "SIGTERM" {
		t.Errorf("reason = %s", parsed.System.Reason)
	}
	if parsed.System.Timestamp != "2026-02-02T22:18:12Z" {
		t.Errorf("timestamp = %s", parsed.System.Timestamp)
	}
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"status":{"event":"STARTUP"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "STARTUP", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("payload = %s, want raw passthrough", payload)
	}
}

func TestFakePublisherRecords(t *testing.T) {
	f := NewFakePublisher()

	if err := f.PublishResult(sampleResult()); err != nil {
		t.Fatalf("PublishResult: %v", err)
	}
	if err := f.PublishSystem(SystemEvent{Event: "HEARTBEAT", Timestamp: time.Now()}); err != nil {
		t.Fatalf("PublishSystem: %v", err)
	}

	if len(f.Results) != 1 || len(f.Payloads) != 1 {
		t.Errorf("results recorded = %d/%d, want 1/1", len(f.Results), len(f.Payloads))
	}
	if len(f.SystemEvents) != 1 || f.SystemEvents[0].Event != "HEARTBEAT" {
		t.Errorf("system events = %+v", f.SystemEvents)
	}

	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !f.Closed {
		t.Error("Closed not set")
	}

	f.Reset()
	if len(f.Results) != 0 || len(f.SystemEvents) != 0 || f.Closed {
		t.Error("Reset did not clear state")
	}
}

func TestFakePublisherErrors(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("broker down")

	if err := f.PublishResult(sampleResult()); err == nil {
		t.Error("expected injected publish error")
	}
	if len(f.Results) != 0 {
		t.Error("failed publish must not be recorded")
	}
}
