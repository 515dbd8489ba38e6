// Package capture brackets scenario runs with an external tshark process
// writing a per-run pcapng dump. Captures need breathing room on both sides:
// tshark misses leading frames without a settle delay, and trailing frames
// without a cool-down before it is stopped.
package capture

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
)

const (
	// settleDelay gives tshark time to attach before the workload starts.
	settleDelay = 300 * time.Millisecond

	// coolDown keeps the capture open after the workload so trailing
	// responses are not clipped.
	coolDown = 500 * time.Millisecond
)

// Tshark launches captures on a fixed interface, one at a time. The dumps
// directory is guarded by a file lock so two harness instances cannot
// interleave captures or fight over realtime priorities.
type Tshark struct {
	iface string
	dir   string
	lock  *flock.Flock
}

// NewTshark prepares the dumps directory and takes the instance lock.
func NewTshark(iface, dumpsDir string) (*Tshark, error) {
	if err := os.MkdirAll(dumpsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating dumps dir: %w", err)
	}

	dir, err := filepath.Abs(dumpsDir)
	if err != nil {
		return nil, fmt.Errorf("resolving dumps dir: %w", err)
	}

	lock := flock.New(filepath.Join(dir, ".lock"))

	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking dumps dir: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("dumps dir %s is locked by another harness instance", dir)
	}

	return &Tshark{iface: iface, dir: dir, lock: lock}, nil
}

// Close releases the instance lock.
func (t *Tshark) Close() error {
	return t.lock.Unlock()
}

// DumpPath returns the dump file path for a run name.
func (t *Tshark) DumpPath(runName string) string {
	return filepath.Join(t.dir, runName+".pcapng")
}

func (t *Tshark) args(path string) []string {
	return []string{
		"-w", path,
		"--interface", t.iface,
		// Capture only the cyclic protocol's traffic.
		"-f", "ether proto 0x88a4",
	}
}

// Start spawns tshark for one run and waits the settle delay before
// returning, so the workload cannot outrun the capture.
func (t *Tshark) Start(runName string) (*Session, error) {
	path := t.DumpPath(runName)

	cmd := exec.Command("tshark", t.args(path)...)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	logrus.WithFields(logrus.Fields{
		"dump":      path,
		"interface": t.iface,
	}).Debug("starting capture")

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawning tshark: %w", err)
	}

	time.Sleep(settleDelay)

	return &Session{cmd: cmd, path: path}, nil
}

// Session is one running capture.
type Session struct {
	cmd  *exec.Cmd
	path string
}

// Path of the dump file being written.
func (s *Session) Path() string {
	return s.path
}

// Stop waits the cool-down delay, then terminates tshark.
func (s *Session) Stop() error {
	time.Sleep(coolDown)

	if err := s.cmd.Process.Kill(); err != nil {
		return fmt.Errorf("stopping tshark: %w", err)
	}

	// The kill is the expected exit; only reap the process.
	_ = s.cmd.Wait()

	return nil
}
