// Package instance keeps a second agent with the same app GUID from running
// on one host.
package instance

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ErrAlreadyRunning is returned by Acquire when another process holds the lock.
var ErrAlreadyRunning = errors.New("another instance of the agent is already running")

// Lock is held until Release.
type Lock struct {
	path string
	f    *os.File
}

func (l *Lock) Path() string { return l.path }

// LockPath is where the lock for guid lives in dir. An empty dir means the
// system temp directory.
func LockPath(dir, guid string) string {
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "uptimeagent-"+strings.ToLower(guid)+".lock")
}

// Acquire takes the lock for guid in dir without blocking.
func Acquire(dir, guid string) (*Lock, error) {
	return acquire(LockPath(dir, guid))
}
