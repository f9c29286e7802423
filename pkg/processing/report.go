package processing

import (
	"fmt"
	"io"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// DefaultReportTemplate summarizes a run as plain text.
const DefaultReportTemplate = `{{- range .Files }}pipeline: {{ . }}
{{ end -}}
status: {{ .Status }}
steps stored: {{ len .Store }}
{{- range $name := keys .Store | sortAlpha }}
  - {{ $name }}
{{- end }}
{{- if .Errors }}
errors: {{ len .Errors }}
{{- range .Errors }}
  - {{ .StepName }} at {{ .Timestamp | date "2006-01-02T15:04:05Z07:00" }}: {{ .Message }}
{{- end }}
{{- end }}
`

// ReportData is the input of a run report template.
type ReportData struct {
	Store  map[string]any
	Errors []ExecutionError
	Status Status
	Files  []string
}

// RenderReport executes tmpl with sprig functions over data and writes the
// result to w. An empty tmpl renders DefaultReportTemplate.
func RenderReport(w io.Writer, tmpl string, data ReportData) error {
	if tmpl == "" {
		tmpl = DefaultReportTemplate
	}

	t, err := template.New("report").Funcs(sprig.TxtFuncMap()).Parse(tmpl)
	if err != nil {
		return fmt.Errorf("parsing report template: %w", err)
	}

	if err := t.Execute(w, data); err != nil {
		return fmt.Errorf("executing report template: %w", err)
	}
	return nil
}
