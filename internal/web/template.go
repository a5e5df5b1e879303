package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/messenger-cycler/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"duration": func(d time.Duration) string {
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
	"ms": func(v int64) time.Duration {
		return time.Duration(v) * time.Millisecond
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="10">
<title>Messenger Cycler</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.ok { color: green; font-weight: bold; }
.warn { color: orange; }
.bad { color: red; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Messenger Cycler</h1>

<h2>State</h2>
<table>
<tr><th>State</th><td id="state">{{.State}}</td></tr>
<tr><th>Cycle / phase</th><td>{{.State.Cycle}} / {{.State.Phase}}</td></tr>
<tr><th>Ticks</th><td>{{.Counter}} of {{.Threshold}}</td></tr>
<tr><th>Next action</th><td>~{{duration .NextActionIn}}</td></tr>
<tr><th>Total ticks</th><td>{{.Ticks}}</td></tr>
</table>

{{with .Last}}
<h2>Last Action</h2>
<table>
<tr><th>Action</th><td>{{.Transition.Action}}</td></tr>
<tr><th>Outcome</th><td class="{{if eq (printf "%s" .Transition.Outcome) "FAILED"}}bad{{else if eq (printf "%s" .Transition.Outcome) "TIMED_OUT"}}warn{{else}}ok{{end}}">{{.Transition.Outcome}}</td></tr>
<tr><th>From</th><td>{{.Transition.From}}</td></tr>
<tr><th>At</th><td>{{.At.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Took</th><td>{{duration .Duration}}</td></tr>
{{if .Transition.Err}}<tr><th>Error</th><td class="bad">{{.Transition.Err}}</td></tr>{{end}}
</table>
{{end}}

<h2>Action Counts</h2>
<table>
<tr><th>Power on</th><td>{{.Counts.PowerOn}}</td></tr>
<tr><th>Power off</th><td>{{.Counts.PowerOff}}</td></tr>
<tr><th>Message A</th><td>{{.Counts.SendA}}</td></tr>
<tr><th>Message B</th><td>{{.Counts.SendB}}</td></tr>
<tr><th>Timed out</th><td>{{.Counts.TimedOut}}</td></tr>
<tr><th>Failed</th><td>{{.Counts.Failed}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}} {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{duration .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Wake period</th><td>{{duration (ms .Config.WakePeriodMs)}}</td></tr>
<tr><th>Settle / send / off</th><td>{{.Config.SettleTicks}} / {{.Config.SendTicks}} / {{.Config.OffTicks}} ticks</td></tr>
<tr><th>Hold</th><td>{{.Config.HoldMs}}ms</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Power timeout</th><td>{{if eq .Config.PowerTimeoutMs 0}}unbounded{{else}}{{.Config.PowerTimeoutMs}}ms{{end}}</td></tr>
<tr><th>Watchdog</th><td>{{if .Config.Watchdog}}{{.Config.Watchdog}}{{else}}disabled{{end}}</td></tr>
<tr><th>GPIO</th><td>{{.Config.GPIODriver}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() and NextActionIn() methods but the template
	// needs fields to pass them to funcs.
	data := struct {
		status.Snapshot
		Uptime       time.Duration
		NextActionIn time.Duration
	}{
		Snapshot:     snap,
		Uptime:       snap.Uptime(),
		NextActionIn: snap.NextActionIn(),
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		log.Warnf("web: render index: %v", err)
	}
}
