package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// PIDFile guards against two daemons fighting over the same keyboards.
type PIDFile struct {
	path string
}

func NewPIDFile(runtimeDir string) *PIDFile {
	return &PIDFile{path: filepath.Join(runtimeDir, "keyrxd.pid")}
}

func (p *PIDFile) Path() string { return p.path }

// Acquire writes the current PID. A live PID already in the file is an
// error; a stale one is replaced.
func (p *PIDFile) Acquire() error {
	if pid, err := p.Read(); err == nil && processRunning(pid) {
		return fmt.Errorf("keyrxd already running with pid %d", pid)
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0700); err != nil {
		return fmt.Errorf("create runtime dir: %w", err)
	}
	return os.WriteFile(p.path, []byte(strconv.Itoa(os.Getpid())), 0600)
}

func (p *PIDFile) Release() error {
	return os.Remove(p.path)
}

func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid pid file %s: %w", p.path, err)
	}
	return pid, nil
}

// SignalStop sends SIGTERM to the recorded daemon process.
func (p *PIDFile) SignalStop() error {
	pid, err := p.Read()
	if err != nil {
		return fmt.Errorf("read pid: %w", err)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(syscall.SIGTERM)
}

// WaitForStop polls until the recorded process exits.
func (p *PIDFile) WaitForStop(timeout time.Duration) error {
	pid, err := p.Read()
	if err != nil {
		return nil
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !processRunning(pid) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon pid %d did not exit within %s", pid, timeout)
}

func processRunning(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 probes for existence without delivering anything.
	return proc.Signal(syscall.Signal(0)) == nil
}
