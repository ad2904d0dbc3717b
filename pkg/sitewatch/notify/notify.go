// Package notify formats change reports as Slack messages and posts them
// to an incoming webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize/english"

	"github.com/jamesainslie/sitewatch/pkg/sitewatch/types"
)

// DefaultMention is placed at the start of every message.
const DefaultMention = "<!channel>"

// DefaultMaxPaths is the number of paths listed per bucket.
const DefaultMaxPaths = 50

// FormatOptions configures Format.
type FormatOptions struct {
	// Mention starts the message. Empty uses DefaultMention; "-" omits it.
	Mention string

	// MaxPaths limits the paths listed per bucket. Zero uses
	// DefaultMaxPaths; negative lists all.
	MaxPaths int
}

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Format renders r as Slack mrkdwn: a mention, a headline, a bolded count
// per non-empty bucket followed by its paths, an optional link to the diff
// and the root hash of the clone.
func Format(r *types.Report, opts FormatOptions) string {
	mention := opts.Mention
	if mention == "" {
		mention = DefaultMention
	}
	maxPaths := opts.MaxPaths
	if maxPaths == 0 {
		maxPaths = DefaultMaxPaths
	}

	var b strings.Builder
	if mention != "-" {
		b.WriteString(mention)
		b.WriteString(" ")
	}
	fmt.Fprintf(&b, "Changes detected on <%s|%s>\n", r.URL, escaper.Replace(siteLabel(r)))

	buckets := []struct {
		verb    string
		records []types.FileRecord
	}{
		{"new", r.NewFiles},
		{"deleted", r.DeletedFiles},
		{"changed", r.ChangedFiles},
		{"ignored", r.IgnoredFiles},
	}
	for _, bucket := range buckets {
		if len(bucket.records) == 0 {
			continue
		}
		fmt.Fprintf(&b, "*%s*\n", headline(bucket.verb, bucket.records))
		for i, rec := range bucket.records {
			if maxPaths > 0 && i == maxPaths {
				fmt.Fprintf(&b, "\t• _and %d more_\n", len(bucket.records)-maxPaths)
				break
			}
			fmt.Fprintf(&b, "\t• `%s`\n", escaper.Replace(displayPath(rec)))
		}
	}

	if r.Location != "" {
		fmt.Fprintf(&b, "<%s|View diff>\n", r.Location)
	}
	fmt.Fprintf(&b, "Root hash: `%s`", r.ClonedRootHash)
	return b.String()
}

// headline counts files and directories separately, e.g.
// "1 changed file and 1 changed directory". The ignored bucket counts changes.
func headline(verb string, records []types.FileRecord) string {
	if verb == "ignored" {
		return english.Plural(len(records), "ignored change", "")
	}
	var files, dirs int
	for _, r := range records {
		if r.Kind == types.KindDirectory {
			dirs++
		} else {
			files++
		}
	}
	var parts []string
	if files > 0 {
		parts = append(parts, english.Plural(files, verb+" file", ""))
	}
	if dirs > 0 {
		parts = append(parts, english.Plural(dirs, verb+" directory", verb+" directories"))
	}
	return english.OxfordWordSeries(parts, "and")
}

func displayPath(r types.FileRecord) string {
	if r.Kind == types.KindDirectory {
		return r.ComparePath + "/"
	}
	return r.ComparePath
}

func siteLabel(r *types.Report) string {
	if r.Site != "" {
		return r.Site
	}
	return r.URL
}

// Notifier delivers a formatted message.
type Notifier interface {
	Post(ctx context.Context, text string) error
}

// Webhook posts messages to a Slack incoming webhook.
type Webhook struct {
	URL    string
	Client *http.Client
}

// NewWebhook returns a Webhook for url with a bounded HTTP client.
func NewWebhook(url string) *Webhook {
	return &Webhook{URL: url, Client: &http.Client{Timeout: 30 * time.Second}}
}

// Post sends text as {"text": ...}. Any non-2xx response is an error.
func (w *Webhook) Post(ctx context.Context, text string) error {
	body, err := json.Marshal(struct {
		Text string `json:"text"`
	}{Text: text})
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}
	return nil
}
