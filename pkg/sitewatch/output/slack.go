package output

import (
	"bytes"

	"github.com/jamesainslie/sitewatch/pkg/sitewatch/notify"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/types"
)

// SlackFormatter writes the chat message for a report. A message already
// stored on the report is reused.
type SlackFormatter struct {
	Options notify.FormatOptions
}

// Format writes the formatted output to the buffer.
func (f *SlackFormatter) Format(w *bytes.Buffer, r *types.Report) error {
	msg := r.SlackMessage
	if msg == "" {
		msg = notify.Format(r, f.Options)
	}
	w.WriteString(msg)
	w.WriteByte('\n')
	return nil
}

func init() {
	Register("slack", func() Formatter {
		return &SlackFormatter{}
	})
}

// Ensure SlackFormatter implements Formatter.
var _ Formatter = (*SlackFormatter)(nil)
