// Package config provides configuration management for sitewatch.
package config

import "time"

// Default configuration values for sitewatch.
const (
	// DefaultInterval is the time between runs of the watch loop.
	DefaultInterval = time.Hour

	// DefaultMirrorBinary is the mirroring program.
	DefaultMirrorBinary = "wget"

	// DefaultMirrorTimeout bounds a single mirror run.
	DefaultMirrorTimeout = 30 * time.Minute

	// DefaultBeautifyBinary is the script beautifier.
	DefaultBeautifyBinary = "js-beautify"

	// DefaultRetentionDays is the number of days archived snapshots are kept.
	DefaultRetentionDays = 30

	// DefaultMention is prepended to Slack notifications.
	DefaultMention = "<!channel>"

	// DefaultHistoryLimit is the number of history records shown by default.
	DefaultHistoryLimit = 20
)

// DefaultMirrorArgs are passed to the mirror binary before the URL. They
// mirror a site with its page requisites into the directory prefix without
// a host directory level.
var DefaultMirrorArgs = []string{
	"--mirror",
	"--page-requisites",
	"--adjust-extension",
	"--no-host-directories",
	"--no-verbose",
	"--execute", "robots=off",
}
