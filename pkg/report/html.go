package report

import (
	"html/template"
	"io"
	"strings"

	"github.com/andrej220/secuaudit/pkg/audit"
)

var htmlPage = template.Must(template.New("report").Funcs(template.FuncMap{
	"lower": func(s audit.Status) string { return strings.ToLower(string(s)) },
	"stamp": func(r Report) string { return r.GeneratedAt.Format("2006-01-02 15:04:05") },
}).Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>Security Compliance Report</title>
    <style>
        body { font-family: Arial, sans-serif; }
        .report-header { padding: 20px; background: #f5f5f5; }
        .report-table { width: 100%; border-collapse: collapse; margin: 20px 0; }
        .report-table th, .report-table td { border: 1px solid #ddd; padding: 8px; text-align: left; }
        .report-table th { background-color: #4CAF50; color: white; }
        .pass { background-color: #d4edda; color: #155724; }
        .fail { background-color: #f8d7da; color: #721c24; }
        .error { background-color: #fff3cd; color: #856404; }
        .summary { background-color: #f8f9fa; padding: 15px; }
    </style>
</head>
<body>
    <div class="report-header">
        <h1>Security Compliance Report</h1>
        <p>Target: {{.Target}}</p>
        <p>Generated on: {{stamp .}}</p>
        <p>Run: {{.RunID}}</p>
    </div>

    <table class="report-table">
        <thead>
            <tr>
                <th>Rule ID</th>
                <th>Check Name</th>
                <th>Status</th>
                <th>Details</th>
            </tr>
        </thead>
        <tbody>
{{- range .Results}}
            <tr class="{{lower .Status}}">
                <td>{{.RuleID}}</td>
                <td>{{.Name}}</td>
                <td>{{.Status}}</td>
                <td>
                {{- if eq (lower .Status) "error"}}<strong>Error:</strong> {{.Error}}
                {{- else if eq (lower .Status) "fail"}}<strong>Expected:</strong> {{.ExpectedOutput}}<br>
                <strong>Found:</strong> {{.ActualOutput}}
                {{- end}}</td>
            </tr>
{{- end}}
        </tbody>
    </table>

    <div class="summary">
        <h2>Summary</h2>
        <p>Total Checks: {{.Summary.Total}}</p>
        <p>Passed: {{.Summary.Passed}}</p>
        <p>Failed: {{.Summary.Failed}}</p>
        <p>Errors: {{.Summary.Errors}}</p>
    </div>
</body>
</html>
`))

// HTML renders a standalone page with one coloured row per result.
type HTML struct{}

func (HTML) Format() string { return FormatHTML }

func (HTML) Render(w io.Writer, r Report) error {
	return htmlPage.Execute(w, r)
}
