// Package mirror captures a website into a local directory with wget.
//
// wget exits non-zero when any request fails. A run whose only failures are
// HTTP 404 responses still captured everything that exists, so it is
// reported as a success with warnings; every other failure is a
// *MirrorError.
package mirror

import (
	"bufio"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jamesainslie/sitewatch/pkg/sitewatch/command"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/logging"
)

// DefaultBinary is the mirroring program.
const DefaultBinary = "wget"

// MirrorError reports a failed mirror run. Output holds everything the
// program printed.
type MirrorError struct {
	URL    string
	Output string
	Err    error
}

func (e *MirrorError) Error() string {
	return fmt.Sprintf("mirroring %s: %v", e.URL, e.Err)
}

func (e *MirrorError) Unwrap() error {
	return e.Err
}

// HTTPError is one failed request found in the program output.
type HTTPError struct {
	Code int
	URL  string
}

// Result describes a successful mirror run.
type Result struct {
	// Output is everything the program printed.
	Output string

	// NotFound lists the URLs that answered 404.
	NotFound []string

	Duration time.Duration
}

// Mirror runs the mirroring program.
type Mirror struct {
	runner command.Runner
	binary string
	args   []string
}

// New returns a Mirror running binary with args through runner. An empty
// binary uses wget.
func New(runner command.Runner, binary string, args []string) *Mirror {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Mirror{runner: runner, binary: binary, args: args}
}

// Mirror captures url into dir.
func (m *Mirror) Mirror(ctx context.Context, url, dir string) (*Result, error) {
	log := logging.Get("mirror").With("url", url)

	args := make([]string, 0, len(m.args)+3)
	args = append(args, m.args...)
	args = append(args, "--directory-prefix", dir, url)

	start := time.Now()
	out, err := m.runner.Run(ctx, m.binary, args...)
	elapsed := time.Since(start)
	output := string(out)

	if err == nil {
		log.Info("mirror finished", "dir", dir, "elapsed", elapsed)
		return &Result{Output: output, Duration: elapsed}, nil
	}

	if ctx.Err() == nil {
		if notFound, ok := onlyNotFound(ScanErrors(output)); ok {
			log.Warn("mirror finished with missing pages", "not_found", len(notFound), "elapsed", elapsed)
			for _, u := range notFound {
				log.Debug("not found", "page", u)
			}
			return &Result{Output: output, NotFound: notFound, Duration: elapsed}, nil
		}
	}

	log.Error("mirror failed", "error", err, "elapsed", elapsed)
	return nil, &MirrorError{URL: url, Output: output, Err: err}
}

var (
	errorLine = regexp.MustCompile(`ERROR (\d{3})`)
	// "https://host/path:" printed by --no-verbose before its error line.
	urlLine = regexp.MustCompile(`^(https?://\S+):$`)
	// "--2024-01-02 03:04:05--  https://host/path" printed per request.
	requestLine = regexp.MustCompile(`^--\S+ \S+--\s+(https?://\S+)$`)
)

// ScanErrors returns every "ERROR <code>" line in wget output, paired with
// the request URL printed before it when there is one.
func ScanErrors(output string) []HTTPError {
	var (
		errs    []HTTPError
		lastURL string
	)

	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if m := requestLine.FindStringSubmatch(line); m != nil {
			lastURL = m[1]
			continue
		}
		if m := urlLine.FindStringSubmatch(line); m != nil {
			lastURL = m[1]
			continue
		}
		if m := errorLine.FindStringSubmatch(line); m != nil {
			code, _ := strconv.Atoi(m[1])
			errs = append(errs, HTTPError{Code: code, URL: lastURL})
			lastURL = ""
		}
	}
	return errs
}

// onlyNotFound reports whether errs is non-empty and every entry is a 404,
// returning the URLs.
func onlyNotFound(errs []HTTPError) ([]string, bool) {
	if len(errs) == 0 {
		return nil, false
	}
	urls := make([]string, 0, len(errs))
	for _, e := range errs {
		if e.Code != 404 {
			return nil, false
		}
		urls = append(urls, e.URL)
	}
	return urls, true
}
