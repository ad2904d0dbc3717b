package output

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize/english"

	"github.com/jamesainslie/sitewatch/pkg/sitewatch/types"
)

// PrettyFormatter formats output with colors and styling using lipgloss.
// It produces a visually appealing output suitable for terminal display.
type PrettyFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *types.Report) error {
	w.WriteString(f.formatHeader(r))
	w.WriteString("\n")

	w.WriteString(f.formatTable(r))

	w.WriteString(f.formatFooter(r))
	w.WriteString("\n")

	if len(r.MirrorWarnings) > 0 {
		w.WriteString("\n")
		w.WriteString(f.formatWarnings(r.MirrorWarnings))
	}

	return nil
}

// formatHeader builds the header box with run metadata.
func (f *PrettyFormatter) formatHeader(r *types.Report) string {
	var lines []string

	lines = append(lines, fmt.Sprintf("%s %s", LabelStyle.Render("Site:"), ValueStyle.Render(siteName(r))))
	if r.URL != "" && r.URL != r.Site {
		lines = append(lines, fmt.Sprintf("%s %s", LabelStyle.Render("URL:"), ValueStyle.Render(r.URL)))
	}

	var infoParts []string
	if !r.StartedAt.IsZero() {
		infoParts = append(infoParts, fmt.Sprintf("%s %s", LabelStyle.Render("Checked:"),
			ValueStyle.Render(r.StartedAt.Local().Format("2006-01-02 15:04:05"))))
	}
	infoParts = append(infoParts, fmt.Sprintf("%s %s", LabelStyle.Render("Took:"),
		ValueStyle.Render(formatDuration(r.Duration))))
	lines = append(lines, strings.Join(infoParts, "  "))

	if r.Baseline {
		lines = append(lines, WarningStyle.Bold(true).Render("Baseline capture, nothing to compare against"))
	}

	return HeaderBox.Render(strings.Join(lines, "\n"))
}

// formatTable lists every path with its status marker.
func (f *PrettyFormatter) formatTable(r *types.Report) string {
	changes := Changes(r)
	if len(changes) == 0 {
		return MutedStyle.Render("  No changes detected") + "\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("  %s  %s\n", TableHeaderStyle.Render(padRight("STATUS", 8)), TableHeaderStyle.Render("PATH")))
	for _, c := range changes {
		st := statusStyles[c.Status]
		label := st.style.Render(padRight(st.marker+" "+string(c.Status), 8))
		sb.WriteString(fmt.Sprintf("  %s  %s\n", label, ValueStyle.Render(c.Path)))
	}
	return sb.String()
}

// formatFooter builds the footer box with bucket counts and digests.
func (f *PrettyFormatter) formatFooter(r *types.Report) string {
	added, removed, changed, ignored := r.Counts()

	counts := strings.Join([]string{
		SuccessStyle.Render(fmt.Sprintf("%d new", added)),
		ErrorStyle.Render(fmt.Sprintf("%d deleted", removed)),
		WarningStyle.Render(fmt.Sprintf("%d changed", changed)),
		MutedStyle.Render(fmt.Sprintf("%d ignored", ignored)),
	}, "  ")

	lines := []string{counts}
	lines = append(lines, fmt.Sprintf("%s %s", LabelStyle.Render("Root hash:"), HashStyle.Render(shortHash(r.ClonedRootHash))))
	if r.CachedRootHash != "" && r.CachedRootHash != r.ClonedRootHash {
		lines = append(lines, fmt.Sprintf("%s %s", LabelStyle.Render("Previous:"), MutedStyle.Render(shortHash(r.CachedRootHash))))
	}
	if r.ArchiveID != "" {
		lines = append(lines, fmt.Sprintf("%s %s", LabelStyle.Render("Snapshot:"), ValueStyle.Render(r.ArchiveID)))
	}
	if r.Location != "" {
		lines = append(lines, fmt.Sprintf("%s %s", LabelStyle.Render("Diff:"), ValueStyle.Render(r.Location)))
	}

	return FooterBox.Render(strings.Join(lines, "\n"))
}

// formatWarnings lists the URLs that answered 404 during mirroring.
func (f *PrettyFormatter) formatWarnings(warnings []string) string {
	var sb strings.Builder

	sb.WriteString(WarningStyle.Bold(true).Render(english.Plural(len(warnings), "missing page", "") + ":"))
	sb.WriteString("\n")
	for _, warning := range warnings {
		sb.WriteString(WarningStyle.Render("  " + warning))
		sb.WriteString("\n")
	}

	return sb.String()
}

func siteName(r *types.Report) string {
	if r.Site != "" {
		return r.Site
	}
	return r.URL
}

// shortHash truncates a hex digest for display.
func shortHash(h string) string {
	if len(h) > 16 {
		return h[:16]
	}
	if h == "" {
		return "-"
	}
	return h
}

// padRight pads a string with spaces on the right to achieve the desired width.
func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// formatDuration formats a duration in a human-friendly way.
func formatDuration(d interface{ Seconds() float64 }) string {
	sec := d.Seconds()
	if sec < 1 {
		return fmt.Sprintf("%.0fms", sec*1000)
	}
	if sec < 60 {
		return fmt.Sprintf("%.1fs", sec)
	}
	minutes := int(sec) / 60
	seconds := int(sec) % 60
	if minutes < 60 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	hours := minutes / 60
	minutes = minutes % 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

// Ensure PrettyFormatter implements Formatter.
var _ Formatter = (*PrettyFormatter)(nil)
