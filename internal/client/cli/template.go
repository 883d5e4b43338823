package cli

import (
	"bytes"
	"text/template"
	"time"
)

const statusTemplate = `
=== Sync Status ===

Network:    {{if .IsOnline}}online{{else}}offline{{end}}
Syncing:    {{if .IsSyncing}}yes{{else}}no{{end}}
Pending:    {{.PendingCount}}
Failed:     {{.FailedCount}}
Conflicts:  {{.ConflictCount}}
Last sync:  {{lastSync .LastSyncTime}}
`

const conflictTemplate = `
--- Conflict {{.ItemID}} ---
Record:   {{.Table}}/{{.RecordID}}
Fields:   {{join .Fields}}
Local:    {{fmtTime .LocalTimestamp}}
Server:   {{fmtTime .RemoteTimestamp}}
{{- range $name := .Fields}}
  {{$name}}: local={{value (index $.LocalValues $name)}} server={{value (index $.RemoteValues $name)}}
{{- end}}
Resolve with: chartsync resolve {{.ItemID}} <keep-local|keep-server|cancel>
`

var templateFuncs = template.FuncMap{
	"fmtTime": formatTime,
	"lastSync": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return formatTime(t)
	},
	"join": func(items []string) string {
		var b bytes.Buffer
		for i, s := range items {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(s)
		}
		return b.String()
	},
	"value": func(raw []byte) string {
		if len(raw) == 0 {
			return "(none)"
		}
		return string(raw)
	},
}

var (
	statusTmpl   = template.Must(template.New("status").Funcs(templateFuncs).Parse(statusTemplate))
	conflictTmpl = template.Must(template.New("conflict").Funcs(templateFuncs).Parse(conflictTemplate))
)

func renderTemplate(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
