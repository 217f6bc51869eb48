//go:build unix

// Package pidfile guards against two dsklean daemons running against the
// same config concurrently, which would let two Clean Executors race on
// the same trash directory. On unix, locking uses flock.
package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
)

const (
	pidDirMode  = 0o755
	pidFileMode = 0o644
)

// PIDFile manages a PID file with an exclusive flock.
type PIDFile struct {
	path string
	file *os.File
}

// New creates and locks a PID file at the given path, or returns (nil,
// nil) if path is empty, meaning the daemon runs unguarded. Returns an
// error if another daemon already holds the lock.
func New(path string) (*PIDFile, error) {
	if path == "" {
		return nil, nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, pidDirMode); err != nil {
		return nil, fmt.Errorf("creating pid directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, pidFileMode)
	if err != nil {
		return nil, fmt.Errorf("opening pid file: %w", err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()

		holder := "unknown"
		if data, readErr := os.ReadFile(path); readErr == nil {
			holder = string(data)
		}
		return nil, fmt.Errorf("another dsklean daemon is running (pid: %s): %w", holder, err)
	}

	if err := file.Truncate(0); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("truncating pid file: %w", err)
	}
	if _, err := file.Seek(0, 0); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("seeking pid file: %w", err)
	}

	if _, err := fmt.Fprintf(file, "%d\n", os.Getpid()); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("writing pid: %w", err)
	}
	if err := file.Sync(); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("syncing pid file: %w", err)
	}

	return &PIDFile{path: path, file: file}, nil
}

// Close releases the lock and removes the PID file.
func (p *PIDFile) Close() error {
	if p == nil || p.file == nil {
		return nil
	}

	syscall.Flock(int(p.file.Fd()), syscall.LOCK_UN)

	if err := p.file.Close(); err != nil {
		return fmt.Errorf("closing pid file: %w", err)
	}
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing pid file: %w", err)
	}
	return nil
}

// Path returns the PID file path.
func (p *PIDFile) Path() string {
	if p == nil {
		return ""
	}
	return p.path
}

// ReadPID reads the PID recorded in an existing PID file, letting a
// caller inspect who holds the lock without taking it.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	pidStr := string(data)
	for len(pidStr) > 0 && (pidStr[len(pidStr)-1] == '\n' || pidStr[len(pidStr)-1] == '\r') {
		pidStr = pidStr[:len(pidStr)-1]
	}

	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return 0, fmt.Errorf("invalid pid in file: %w", err)
	}
	return pid, nil
}

// IsRunning checks if a process with the given PID is still running.
func IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
