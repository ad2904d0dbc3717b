//go:build unix

package runlock_test

import (
	"testing"

	"github.com/jamesainslie/sitewatch/pkg/sitewatch/runlock"
)

func TestIsProcessRunning_Init(t *testing.T) {
	// PID 1 always exists; without permission to signal it the answer is
	// still yes.
	if !runlock.IsProcessRunning(1) {
		t.Error("pid 1 should be running")
	}
}
