package output

import (
	"bytes"
	"fmt"
	"sync"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"

	"github.com/jamesainslie/sitewatch/pkg/sitewatch/types"
)

// TemplateFormatter renders a report through a user supplied text/template.
// The template sees every Report field plus Changes, the flattened bucket
// list, and the functions date, ago, short and count.
type TemplateFormatter struct {
	mu       sync.Mutex
	source   string
	compiled *template.Template
}

// templateData is the value the template executes against.
type templateData struct {
	*types.Report
	Changes []Change
}

// NewTemplateFormatter returns a formatter for the given template source.
func NewTemplateFormatter(source string) *TemplateFormatter {
	return &TemplateFormatter{source: source}
}

// SetTemplate replaces the template source. It is compiled on the next Format.
func (f *TemplateFormatter) SetTemplate(source string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.source = source
	f.compiled = nil
}

var templateFuncs = template.FuncMap{
	// {{date .StartedAt "2006-01-02"}}; a zero time renders empty.
	"date": func(t time.Time, layout string) string {
		if t.IsZero() {
			return ""
		}
		return t.Format(layout)
	},
	// {{ago .StartedAt}} -> "3 minutes ago"
	"ago": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return humanize.Time(t)
	},
	// {{short .ClonedRootHash 12}}
	"short": func(hash string, n int) string {
		if n < len(hash) {
			return hash[:n]
		}
		return hash
	},
	// {{count (len .NewFiles) "new file"}} -> "2 new files"
	"count": func(n int, noun string) string {
		return english.Plural(n, noun, "")
	},
}

// Format writes the formatted output to the buffer.
func (f *TemplateFormatter) Format(w *bytes.Buffer, r *types.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.compiled == nil {
		tmpl, err := template.New("report").Funcs(templateFuncs).Parse(f.source)
		if err != nil {
			return fmt.Errorf("parsing output template: %w", err)
		}
		f.compiled = tmpl
	}

	return f.compiled.Execute(w, templateData{Report: r, Changes: Changes(r)})
}

// defaultTemplate lists one change per line.
const defaultTemplate = "{{range .Changes}}{{.Status}}\t{{.Path}}\n{{end}}"

func init() {
	Register("template", func() Formatter {
		return NewTemplateFormatter(defaultTemplate)
	})
}

var _ Formatter = (*TemplateFormatter)(nil)
