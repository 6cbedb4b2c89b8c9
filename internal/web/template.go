package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/gas-rig/internal/status"
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
	"yesno": func(b bool) string {
		if b {
			return "yes"
		}
		return "no"
	},
	"secs": func(v float64) string {
		return fmt.Sprintf("%.1f s", v)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Gas Rig</title>
<style>
body { font-family: monospace; max-width: 640px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Gas Rig</h1>

<h2>Detection</h2>
<table>
<tr><th>Increase detected</th><td class="{{if .View.Detection.IncreaseDetected}}on{{else}}off{{end}}">{{yesno .View.Detection.IncreaseDetected}}</td></tr>
<tr><th>Stabilized</th><td class="{{if .View.Detection.Stabilized}}on{{else}}off{{end}}">{{yesno .View.Detection.Stabilized}}</td></tr>
<tr><th>Decrease detected</th><td>{{yesno .View.Detection.DecreaseDetected}}</td></tr>
<tr><th>Restabilized</th><td>{{yesno .View.Detection.Restabilized}}</td></tr>
{{if .View.Detection.HasIncreaseTime}}<tr><th>Percolation time</th><td>{{secs .View.Detection.IncreaseTime}}</td></tr>{{end}}
<tr><th>Max slope</th><td>{{printf "%.4f" .View.Detection.MaxSlope}}</td></tr>
</table>

<h2>Protocols</h2>
<table>
<tr><th>Active</th><td>{{if .View.ActiveKind}}{{.View.ActiveKind}}{{else}}none{{end}}</td></tr>
<tr><th>CO2</th><td>{{.View.CO2.Message}} ({{.View.CO2.Progress}}%)</td></tr>
<tr><th>Resistance</th><td>{{.View.Resistance.Message}} ({{.View.Resistance.Progress}}%)</td></tr>
<tr><th>Full</th><td>{{.View.Full.Message}} ({{.View.Full.Progress}}%)</td></tr>
<tr><th>Automatic</th><td>{{.View.Auto.Message}} ({{.View.AutoCycles}} cycles)</td></tr>
</table>

{{if .View.CO2.Results}}
<h2>Last Results</h2>
<table>
<tr><th>Delta concentration</th><td>{{printf "%.2f ppm" .View.CO2.Results.DeltaConcentration}}</td></tr>
<tr><th>Estimated mass</th><td>{{printf "%.3f µg" .View.CO2.Results.EstimatedMass}}</td></tr>
<tr><th>Percolation time</th><td>{{secs .View.CO2.Results.PercolationTime}}</td></tr>
</table>
{{end}}

<h2>Devices</h2>
<table>
<tr><th>Resistance sensor</th><td class="{{if .View.ResistanceOK}}connected{{else}}disconnected{{end}}">{{if .View.ResistanceOK}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Gas sensor</th><td class="{{if .View.GasOK}}connected{{else}}disconnected{{end}}">{{if .View.GasOK}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Reference resistance</th><td>{{printf "%.0f Ω" .View.RefResistance}}</td></tr>
<tr><th>Valve pins</th><td>retracted={{yesno .View.Pins.Retracted}} extended={{yesno .View.Pins.Extended}} open={{yesno .View.Pins.Open}} closed={{yesno .View.Pins.Closed}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
</table>

<h2>Daemon</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02 15:04:05 UTC"}}</td></tr>
<tr><th>Poll interval</th><td>{{.Config.PollMs}} ms</td></tr>
</table>
</body>
</html>
`

// renderHTML writes the status page. Render errors are logged, not
// surfaced: the page is best effort.
func renderHTML(w io.Writer, snap status.Snapshot) {
	if err := indexTmpl.Execute(w, snap); err != nil {
		logrus.WithError(err).Error("render status page")
	}
}
