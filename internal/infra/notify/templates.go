package notify

import "html/template"

var templates = template.Must(template.New("mail").Funcs(template.FuncMap{
	"riskLabel": riskLabel,
}).Parse(`
{{define "scan_complete"}}<!doctype html>
<html><body style="font-family:Arial,sans-serif;color:#1f2937">
<p>Hi {{.UserName}},</p>
<p>The accessibility scan of <a href="{{.URL}}">{{.URL}}</a> in <strong>{{.ProjectName}}</strong> has finished.</p>
<table cellpadding="6" style="border-collapse:collapse">
<tr><td>Risk score</td><td><strong>{{.RiskScore}}/100</strong> ({{riskLabel .RiskScore}})</td></tr>
<tr><td>Critical</td><td>{{.Counts.Critical}}</td></tr>
<tr><td>Serious</td><td>{{.Counts.Serious}}</td></tr>
<tr><td>Moderate</td><td>{{.Counts.Moderate}}</td></tr>
<tr><td>Minor</td><td>{{.Counts.Minor}}</td></tr>
<tr><td>Total</td><td>{{.Counts.Total}}</td></tr>
</table>
{{if .ScanURL}}<p><a href="{{.ScanURL}}">View the full results</a></p>{{end}}
</body></html>{{end}}

{{define "scan_error"}}<!doctype html>
<html><body style="font-family:Arial,sans-serif;color:#1f2937">
<p>Hi {{.UserName}},</p>
<p>The accessibility scan of <a href="{{.URL}}">{{.URL}}</a> in <strong>{{.ProjectName}}</strong> failed.</p>
<pre style="background:#f3f4f6;padding:8px">{{.Error}}</pre>
<p>Check that the page is reachable and start the scan again.</p>
</body></html>{{end}}

{{define "report_ready"}}<!doctype html>
<html><body style="font-family:Arial,sans-serif;color:#1f2937">
<p>Your {{.Frequency}} report <strong>{{.Title}}</strong> for {{.ProjectName}} is ready.</p>
<p><a href="{{.DownloadURL}}">Download the report</a> (link valid for 7 days).</p>
<p style="color:#6b7280">Generated {{.GeneratedAt.Format "2006-01-02 15:04 UTC"}}</p>
</body></html>{{end}}
`))

func riskLabel(score int) string {
	switch {
	case score >= 70:
		return "high"
	case score >= 40:
		return "medium"
	default:
		return "low"
	}
}
