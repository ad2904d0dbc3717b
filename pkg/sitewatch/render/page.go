package render

import (
	"bytes"
	"html/template"
	"time"
)

var pageCSS = template.CSS(highlightCSS()) //nolint:gosec

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Site}} changes</title>
<style>
body { font-family: -apple-system, "Segoe UI", Helvetica, Arial, sans-serif; margin: 2em; color: #24292f; }
h1 { font-size: 1.4em; }
h2 { font-size: 1.05em; font-family: ui-monospace, Menlo, Consolas, monospace; background: #f6f8fa; padding: .4em .6em; border: 1px solid #d0d7de; margin: 0; }
section.diff { margin-bottom: 2em; }
table.lines { border-collapse: collapse; width: 100%; font-family: ui-monospace, Menlo, Consolas, monospace; font-size: 12px; border: 1px solid #d0d7de; border-top: 0; }
td.ln { width: 1%; min-width: 3em; padding: 0 .5em; text-align: right; color: #6e7781; user-select: none; }
td.code { white-space: pre-wrap; word-break: break-all; padding: 0 .5em; }
tr.add { background: #e6ffec; }
tr.del { background: #ffebe9; }
tr.gap td { background: #ddf4ff; color: #57606a; text-align: center; }
pre.json { margin: 0; padding: .5em; border: 1px solid #d0d7de; border-top: 0; font-size: 12px; }
pre.json span.add { background: #e6ffec; display: block; }
pre.json span.del { background: #ffebe9; display: block; }
p.binary, p.empty { margin: 0; padding: .5em; border: 1px solid #d0d7de; border-top: 0; color: #57606a; }
{{.CSS}}</style>
</head>
<body>
<h1>{{.Site}}: {{len .Fragments}} changed file(s)</h1>
<p>Generated {{.Generated}}</p>
{{range .Fragments}}{{.}}
{{else}}<p class="empty">No file content changed.</p>
{{end}}</body>
</html>
`))

// Page wraps diff fragments in a standalone HTML document. Empty fragments
// are skipped.
func Page(site string, fragments []string) string {
	safe := make([]template.HTML, 0, len(fragments))
	for _, f := range fragments {
		if f == "" {
			continue
		}
		// Fragments are built by this package with every value escaped.
		safe = append(safe, template.HTML(f)) //nolint:gosec
	}

	var buf bytes.Buffer
	_ = pageTemplate.Execute(&buf, struct {
		Site      string
		Generated string
		CSS       template.CSS
		Fragments []template.HTML
	}{
		Site:      site,
		CSS:       pageCSS,
		Generated: time.Now().UTC().Format(time.RFC1123),
		Fragments: safe,
	})
	return buf.String()
}
