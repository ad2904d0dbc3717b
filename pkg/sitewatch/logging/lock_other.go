//go:build !unix

package logging

import "os"

// lockFile is a no-op without flock; writes are still serialized within the
// process by the writer's mutex.
func lockFile(*os.File) (func(), error) {
	return func() {}, nil
}
