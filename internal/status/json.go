package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	RunID         string       `json:"run_id"`
	Control       ControlJSON  `json:"control"`
	Result        *ResultJSON  `json:"result,omitempty"`
	Cycles        uint64       `json:"cycles"`
	CycleErrors   uint64       `json:"cycle_errors"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// ControlJSON reports the live control parameters.
type ControlJSON struct {
	Enabled bool    `json:"enabled"`
	OnOff   bool    `json:"on_off"`
	P       float64 `json:"p"`
	I       float64 `json:"i"`
	D       float64 `json:"d"`
	MaxPWM  float64 `json:"max_pwm"`
}

// ResultJSON is the latest control cycle's outcome.
type ResultJSON struct {
	Timestamp      string       `json:"timestamp"`
	DeltaT         float64      `json:"delta_t"`
	SmoothedDeltaT float64      `json:"smoothed_delta_t"`
	PWM            float64      `json:"pwm"`
	InnerF         float64      `json:"inner_f"`
	OuterF         float64      `json:"outer_f"`
	Sensors        []SensorJSON `json:"sensors"`
}

// SensorJSON is one labelled sensor temperature.
type SensorJSON struct {
	Group   string  `json:"group"`
	Label   string  `json:"label"`
	Channel int     `json:"channel"`
	TempF   float64 `json:"temp_f"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	ControlPeriodMs int64  `json:"control_period_ms"`
	PWMPeriodMs     int64  `json:"pwm_period_ms"`
	PWMChannel      int    `json:"pwm_channel"`
	ReadSpacingMs   int64  `json:"read_spacing_ms"`
	RingBufferSize  int    `json:"ring_buffer_size"`
	HeartbeatMs     int64  `json:"heartbeat_ms"`
	Broker          string `json:"broker"`
	HTTPPort        string `json:"http_port"`
	Sim             bool   `json:"sim,omitempty"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		RunID: snap.RunID,
		Control: ControlJSON{
			Enabled: snap.Params.Enabled,
			OnOff:   snap.Params.OnOff,
			P:       snap.Params.KP,
			I:       snap.Params.KI,
			D:       snap.Params.KD,
			MaxPWM:  snap.Params.MaxPWM,
		},
		Cycles:        snap.Cycles,
		CycleErrors:   snap.CycleErrors,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			ControlPeriodMs: snap.Config.ControlPeriodMs,
			PWMPeriodMs:     snap.Config.PWMPeriodMs,
			PWMChannel:      snap.Config.PWMChannel,
			ReadSpacingMs:   snap.Config.ReadSpacingMs,
			RingBufferSize:  snap.Config.RingBufferSize,
			HeartbeatMs:     snap.Config.HeartbeatMs,
			Broker:          snap.Config.Broker,
			HTTPPort:        snap.Config.HTTPPort,
			Sim:             snap.Config.Sim,
		},
	}

	if res := snap.Result; res != nil {
		rj := &ResultJSON{
			Timestamp:      res.Timestamp.UTC().Format(time.RFC3339),
			DeltaT:         res.DeltaT,
			SmoothedDeltaT: res.SmoothedDeltaT,
			PWM:            res.Duty,
			InnerF:         res.Inner.AverageF,
			OuterF:         res.Outer.AverageF,
		}
		for _, s := range res.Inner.Sensors {
			rj.Sensors = append(rj.Sensors, SensorJSON{Group: "inner", Label: s.Label, Channel: s.Channel, TempF: s.TempF})
		}
		for _, s := range res.Outer.Sensors {
			rj.Sensors = append(rj.Sensors, SensorJSON{Group: "outer", Label: s.Label, Channel: s.Channel, TempF: s.TempF})
		}
		for _, s := range res.Info.Sensors {
			rj.Sensors = append(rj.Sensors, SensorJSON{Group: "info", Label: s.Label, Channel: s.Channel, TempF: s.TempF})
		}
		inner.Result = rj
	}

	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}

	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
