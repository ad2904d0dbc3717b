// Package render turns a changed file into an HTML diff fragment and
// assembles fragments into a standalone page.
//
// Text files are diffed line by line with go-diff and rendered as a table
// of removed, added and context rows, each line syntax highlighted with
// chroma token classes. JSON objects are diffed structurally
// with gojsondiff.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// DefaultContext is the number of unchanged lines kept around each change.
const DefaultContext = 3

// Renderer renders the difference between two versions of a file.
type Renderer interface {
	Render(ctx context.Context, oldPath, newPath, name string) (string, error)
}

// Op is the kind of a diff line.
type Op int

// Line operations.
const (
	OpContext Op = iota
	OpDelete
	OpInsert
)

// Line is one row of a line diff. OldNo and NewNo are 1-based line numbers;
// zero means the line does not exist on that side.
type Line struct {
	Op    Op
	OldNo int
	NewNo int
	Text  string
}

// HTMLRenderer renders HTML diff fragments.
type HTMLRenderer struct {
	// Context is the number of unchanged lines shown around each change.
	// Negative shows every line.
	Context int
}

// NewHTMLRenderer returns a renderer with DefaultContext.
func NewHTMLRenderer() *HTMLRenderer {
	return &HTMLRenderer{Context: DefaultContext}
}

// Render reads both files and returns an HTML fragment titled name.
func (r *HTMLRenderer) Render(ctx context.Context, oldPath, newPath, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	oldData, err := os.ReadFile(oldPath)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", oldPath, err)
	}
	newData, err := os.ReadFile(newPath)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", newPath, err)
	}

	return r.Fragment(name, oldData, newData), nil
}

// Fragment renders the difference between two contents.
func (r *HTMLRenderer) Fragment(name string, oldData, newData []byte) string {
	lang := Language(name)

	var body string
	switch {
	case isBinary(oldData) || isBinary(newData):
		body = fmt.Sprintf(`<p class="binary">Binary file changed (%s &rarr; %s)</p>`,
			humanize.Bytes(uint64(len(oldData))), humanize.Bytes(uint64(len(newData))))
	case lang == "json":
		if jsonBody, ok := jsonDiff(oldData, newData); ok {
			body = jsonBody
			break
		}
		body = r.table(string(oldData), string(newData), lang)
	default:
		body = r.table(string(oldData), string(newData), lang)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<section class=\"diff\" data-path=\"%s\">\n", html.EscapeString(name))
	fmt.Fprintf(&b, "<h2>%s</h2>\n", html.EscapeString(name))
	b.WriteString(body)
	b.WriteString("</section>\n")
	return b.String()
}

func (r *HTMLRenderer) table(oldText, newText, lang string) string {
	lines := Lines(oldText, newText)
	oldHL, newHL := highlight(oldText, lang), highlight(newText, lang)

	var b strings.Builder
	fmt.Fprintf(&b, "<table class=\"lines chroma lang-%s\">\n", lang)
	for _, row := range visible(lines, r.Context) {
		if row == nil {
			b.WriteString("<tr class=\"gap\"><td colspan=\"3\">&hellip;</td></tr>\n")
			continue
		}
		class, marker := "ctx", " "
		switch row.Op {
		case OpDelete:
			class, marker = "del", "-"
		case OpInsert:
			class, marker = "add", "+"
		}
		code, ok := newHL.line(row.NewNo, row.Text)
		if row.Op == OpDelete {
			code, ok = oldHL.line(row.OldNo, row.Text)
		}
		if !ok {
			code = html.EscapeString(row.Text)
		}
		fmt.Fprintf(&b, "<tr class=\"%s\"><td class=\"ln\">%s</td><td class=\"ln\">%s</td><td class=\"code\">%s%s</td></tr>\n",
			class, lineNo(row.OldNo), lineNo(row.NewNo), marker, code)
	}
	b.WriteString("</table>\n")
	return b.String()
}

// Lines returns the line diff of two texts.
func Lines(oldText, newText string) []Line {
	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lineArray)

	var (
		lines        []Line
		oldNo, newNo int
	)
	for _, d := range diffs {
		for _, text := range splitLines(d.Text) {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				oldNo++
				newNo++
				lines = append(lines, Line{Op: OpContext, OldNo: oldNo, NewNo: newNo, Text: text})
			case diffmatchpatch.DiffDelete:
				oldNo++
				lines = append(lines, Line{Op: OpDelete, OldNo: oldNo, Text: text})
			case diffmatchpatch.DiffInsert:
				newNo++
				lines = append(lines, Line{Op: OpInsert, NewNo: newNo, Text: text})
			}
		}
	}
	return lines
}

// visible trims context lines farther than n from any change. A nil entry
// marks skipped lines.
func visible(lines []Line, n int) []*Line {
	if n < 0 {
		out := make([]*Line, len(lines))
		for i := range lines {
			out[i] = &lines[i]
		}
		return out
	}

	keep := make([]bool, len(lines))
	for i, l := range lines {
		if l.Op == OpContext {
			continue
		}
		for j := max(0, i-n); j <= min(len(lines)-1, i+n); j++ {
			keep[j] = true
		}
	}

	var out []*Line
	skipped := false
	for i := range lines {
		if !keep[i] {
			skipped = true
			continue
		}
		if skipped && len(out) > 0 {
			out = append(out, nil)
		}
		skipped = false
		out = append(out, &lines[i])
	}
	return out
}

func jsonDiff(oldData, newData []byte) (string, bool) {
	d, err := gojsondiff.New().Compare(oldData, newData)
	if err != nil || !d.Modified() {
		return "", false
	}

	var left map[string]interface{}
	if err := json.Unmarshal(oldData, &left); err != nil {
		return "", false
	}

	out, err := formatter.NewAsciiFormatter(left, formatter.AsciiFormatterConfig{ShowArrayIndex: true}).Format(d)
	if err != nil {
		return "", false
	}

	var b strings.Builder
	b.WriteString("<pre class=\"json\">")
	for _, line := range splitLines(out) {
		class := "ctx"
		switch {
		case strings.HasPrefix(line, "+"):
			class = "add"
		case strings.HasPrefix(line, "-"):
			class = "del"
		}
		fmt.Fprintf(&b, "<span class=\"%s\">%s</span>\n", class, html.EscapeString(line))
	}
	b.WriteString("</pre>\n")
	return b.String(), true
}

// Language returns the chroma lexer name for a file name.
func Language(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".js", ".mjs", ".cjs":
		return "javascript"
	case ".css":
		return "css"
	case ".html", ".htm":
		return "html"
	case ".json", ".map":
		return "json"
	case ".xml", ".svg", ".rss":
		return "xml"
	default:
		return "plaintext"
	}
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}

func lineNo(n int) string {
	if n == 0 {
		return ""
	}
	return fmt.Sprint(n)
}

// isBinary reports whether data has a NUL byte in its first 8000 bytes.
func isBinary(data []byte) bool {
	if len(data) > 8000 {
		data = data[:8000]
	}
	return bytes.IndexByte(data, 0) >= 0
}
