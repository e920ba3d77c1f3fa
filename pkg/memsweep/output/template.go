package output

import (
	"bytes"
	"sync"
	"text/template"
	"time"

	"github.com/jamesainslie/memsweep/pkg/memsweep/types"
)

// TemplateFormatter formats output using a custom Go text/template.
// It supports custom template functions for common formatting operations.
type TemplateFormatter struct {
	templateStr string
	template    *template.Template
	mu          sync.Mutex
}

// templateData is the data passed to the template.
// It wraps Report to add computed fields.
type templateData struct {
	*Report
	Freed   int64
	Current types.MemorySnapshot
}

// NewTemplateFormatter creates a new template formatter with the given template string.
func NewTemplateFormatter(templateStr string) *TemplateFormatter {
	return &TemplateFormatter{
		templateStr: templateStr,
	}
}

// SetTemplate sets or updates the template string.
func (f *TemplateFormatter) SetTemplate(templateStr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.templateStr = templateStr
	f.template = nil
}

// templateFuncs returns the custom template functions.
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		// date formats a time.Time using the provided layout.
		// Usage: {{date .Run.StartedAt "2006-01-02"}}
		"date": func(t time.Time, layout string) string {
			if t.IsZero() {
				return ""
			}
			return t.Format(layout)
		},

		// bytes formats a size in bytes as a human-readable string.
		// Usage: {{bytes .Current.AvailablePhysical}}
		"bytes": types.FormatSize,

		// signed formats a byte delta with its sign.
		// Usage: {{signed .Freed}}
		"signed": formatSigned,

		// seconds formats a duration with one decimal place.
		// Usage: {{seconds .Elapsed}}
		"seconds": types.FormatSeconds,

		// status renders an outcome as ok, unsupported, denied or failed.
		"status": outcomeStatus,
	}
}

// Format writes the formatted output to the buffer.
func (f *TemplateFormatter) Format(w *bytes.Buffer, r *Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.template == nil {
		tmpl, err := template.New("output").Funcs(templateFuncs()).Parse(f.templateStr)
		if err != nil {
			return err
		}
		f.template = tmpl
	}

	data := templateData{
		Report:  r,
		Freed:   r.Freed(),
		Current: r.Current(),
	}

	return f.template.Execute(w, data)
}

// defaultTemplate is the template used when no custom template is provided.
const defaultTemplate = `{{if .Run}}{{range .Run.Outcomes}}{{.Area.Label}}	{{status .}}	{{seconds .Elapsed}}
{{end}}freed	{{signed .Freed}}
{{else}}{{range .Areas}}{{.Label}}	{{if .Supported}}supported{{else}}unsupported{{end}}
{{end}}{{end}}`

func init() {
	Register("template", func() Formatter {
		return NewTemplateFormatter(defaultTemplate)
	})
}

// Ensure TemplateFormatter implements Formatter.
var _ Formatter = (*TemplateFormatter)(nil)
