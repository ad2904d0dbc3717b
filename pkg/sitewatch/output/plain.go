package output

import (
	"bytes"
	"text/tabwriter"

	"github.com/jamesainslie/sitewatch/pkg/sitewatch/types"
)

// PlainFormatter formats output as a simple aligned table.
// It produces plain text output suitable for scripting and piping.
// No colors or styling are applied.
type PlainFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PlainFormatter) Format(w *bytes.Buffer, r *types.Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)

	if _, err := tw.Write([]byte("STATUS\tPATH\n")); err != nil {
		return err
	}

	for _, c := range Changes(r) {
		if _, err := tw.Write([]byte(string(c.Status) + "\t" + c.Path + "\n")); err != nil {
			return err
		}
	}

	return tw.Flush()
}

func init() {
	Register("plain", func() Formatter {
		return &PlainFormatter{}
	})
}

// Ensure PlainFormatter implements Formatter.
var _ Formatter = (*PlainFormatter)(nil)

// PathsFormatter writes the compare path of every new, deleted or changed
// file, one per line. Ignored paths are left out.
type PathsFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PathsFormatter) Format(w *bytes.Buffer, r *types.Report) error {
	for _, c := range Changes(r) {
		if c.Status == StatusIgnored {
			continue
		}
		w.WriteString(c.Path)
		w.WriteByte('\n')
	}
	return nil
}

func init() {
	Register("paths", func() Formatter {
		return &PathsFormatter{}
	})
}

// Ensure PathsFormatter implements Formatter.
var _ Formatter = (*PathsFormatter)(nil)
