package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/chamber-heater/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"tempF": func(f float64) string {
		return fmt.Sprintf("%.2f °F", f)
	},
	"pct": func(f float64) string {
		return fmt.Sprintf("%.0f%%", f*100)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Chamber Heater</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
button { font-family: monospace; margin-right: 8px; }
input { font-family: monospace; width: 6em; }
</style>
</head>
<body>
<h1>Chamber Heater</h1>

<h2>Control</h2>
<table>
<tr><th>Mode</th><td class="{{if .Params.Enabled}}on{{else}}off{{end}}">{{if not .Params.Enabled}}DISABLED{{else if .Params.OnOff}}ON-OFF{{else}}PID{{end}}</td></tr>
<tr><th>P / I / D</th><td>{{.Params.KP}} / {{.Params.KI}} / {{.Params.KD}}</td></tr>
<tr><th>Max PWM</th><td>{{pct .Params.MaxPWM}}</td></tr>
</table>

{{if .Result}}
<h2>Latest Cycle</h2>
<table>
<tr><th>Inner Avg</th><td>{{tempF .Result.Inner.AverageF}}</td></tr>
<tr><th>Outer Avg</th><td>{{tempF .Result.Outer.AverageF}}</td></tr>
<tr><th>Delta T</th><td>{{printf "%.2f" .Result.DeltaT}} °F</td></tr>
<tr><th>Smoothed Delta T</th><td>{{printf "%.2f" .Result.SmoothedDeltaT}} °F</td></tr>
<tr><th>Heater PWM</th><td>{{pct .Result.Duty}}</td></tr>
<tr><th>At</th><td>{{.Result.Timestamp.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
</table>

<h2>Sensors</h2>
<table>
{{range .Result.Inner.Sensors}}<tr><th>{{.Label}} (inner, ch {{.Channel}})</th><td>{{tempF .TempF}}</td></tr>
{{end}}{{range .Result.Outer.Sensors}}<tr><th>{{.Label}} (outer, ch {{.Channel}})</th><td>{{tempF .TempF}}</td></tr>
{{end}}{{range .Result.Info.Sensors}}<tr><th>{{.Label}} (info, ch {{.Channel}})</th><td>{{tempF .TempF}}</td></tr>
{{end}}</table>
{{else}}
<p>No control cycle has completed yet.</p>
{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Run ID</th><td>{{.RunID}}</td></tr>
<tr><th>Cycles</th><td>{{.Cycles}} ({{.CycleErrors}} errors)</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Control Period</th><td>{{.Config.ControlPeriodMs}}ms</td></tr>
<tr><th>PWM Period</th><td>{{.Config.PWMPeriodMs}}ms (channel {{.Config.PWMChannel}})</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
{{if .Config.Sim}}<tr><th>Device</th><td>simulated</td></tr>{{end}}
</table>

<h2>Actions</h2>
<p>
<button onclick="post('/api/mode', {enabled: true})">Enable</button>
<button onclick="post('/api/mode', {enabled: false})">Disable</button>
<button onclick="post('/api/mode', {on_off: true})">On-Off Mode</button>
<button onclick="post('/api/mode', {on_off: false})">PID Mode</button>
</p>
<p>
<button onclick="post('/api/reset-pid', {})">Reset PID</button>
<button onclick="post('/api/pwm-off', {})">PWM Off</button>
</p>
<p>
P <input id="p" value="{{.Params.KP}}">
I <input id="i" value="{{.Params.KI}}">
D <input id="d" value="{{.Params.KD}}">
Max <input id="max" value="{{.Params.MaxPWM}}">
<button onclick="postParams()">Apply</button>
</p>

<p><a href="/index.json">JSON</a></p>
<script>
function post(path, body) {
  fetch(path, { method: "POST", body: JSON.stringify(body) })
    .then(function() { location.reload(); });
}
function postParams() {
  post("/api/params", {
    p: parseFloat(document.getElementById("p").value),
    i: parseFloat(document.getElementById("i").value),
    d: parseFloat(document.getElementById("d").value),
    max_pwm: parseFloat(document.getElementById("max").value)
  });
}
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
