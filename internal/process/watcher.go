// Package process launches the producing application and follows its
// lifecycle through the OS process table.
package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sstent/zwiftsync/internal/utils"
)

// ErrLaunch is returned when the application could not be started. It is
// fatal: no new activity can exist.
var ErrLaunch = errors.New("failed to launch application")

// DefaultInterval is the default time between two polls of the process table.
const DefaultInterval = 10 * time.Second

// Watcher polls a process table for processes matching a marker.
type Watcher struct {
	Table    Table
	Interval time.Duration

	// Sleep waits between polls; tests replace it with a fake clock.
	Sleep func(ctx context.Context, d time.Duration) error
	// Exec runs a program to completion.
	Exec func(ctx context.Context, path string, args ...string) error

	Log logrus.FieldLogger

	// self and parent are never matched, nor is any process running the
	// binary named binary.
	self   int32
	parent int32
	binary string
}

// NewWatcher returns a Watcher over the host's process table.
func NewWatcher(interval time.Duration, log logrus.FieldLogger) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Watcher{
		Table:    SystemTable(),
		Interval: interval,
		Sleep:    sleepContext,
		Exec:     execRun,
		Log:      utils.OrDefault(log),
		self:     int32(os.Getpid()),
		parent:   int32(os.Getppid()),
		binary:   ownBinary(),
	}
}

func ownBinary() string {
	if exe, err := os.Executable(); err == nil {
		return strings.ToLower(filepath.Base(exe))
	}
	return strings.ToLower(filepath.Base(os.Args[0]))
}

// Launch starts the application at path and waits for the launcher to
// return. A start error or a non-zero exit status is an ErrLaunch.
func (w *Watcher) Launch(ctx context.Context, path string, args ...string) error {
	run := w.Exec
	if run == nil {
		run = execRun
	}
	utils.OrDefault(w.Log).WithField("path", path).Info("Launching application")
	if err := run(ctx, path, args...); err != nil {
		return fmt.Errorf("%w %s: %v", ErrLaunch, path, err)
	}
	return nil
}

// Running reports whether a process whose command line contains marker is
// in the table. Processes that vanish or cannot be inspected count as no
// match, and so do other zwiftsync processes.
func (w *Watcher) Running(ctx context.Context, marker string) (bool, error) {
	procs, err := w.Table.Processes(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list processes: %w", err)
	}
	needle := strings.ToLower(marker)
	for _, p := range procs {
		if w.ignored(p.PID()) {
			continue
		}
		if w.matches(ctx, p, needle) {
			return true, nil
		}
	}
	return false, nil
}

func (w *Watcher) ignored(pid int32) bool {
	return pid != 0 && (pid == w.self || pid == w.parent)
}

func (w *Watcher) matches(ctx context.Context, p Process, needle string) bool {
	name, nameErr := p.Name(ctx)
	if nameErr == nil && w.isOwnBinary(name) {
		return false
	}
	if cmdline, err := p.Cmdline(ctx); err == nil && cmdline != "" {
		cmdline = strings.ToLower(cmdline)
		if args := strings.Fields(cmdline); len(args) > 0 && w.isOwnBinary(args[0]) {
			return false
		}
		return strings.Contains(cmdline, needle)
	}
	if nameErr != nil {
		return false
	}
	return strings.Contains(strings.ToLower(name), needle)
}

// isOwnBinary reports whether program names the zwiftsync executable.
func (w *Watcher) isOwnBinary(program string) bool {
	if w.binary == "" || program == "" {
		return false
	}
	base := strings.TrimSuffix(strings.ToLower(filepath.Base(program)), ".exe")
	return base == strings.TrimSuffix(w.binary, ".exe")
}

// WaitForStart blocks until a process matching marker is running.
func (w *Watcher) WaitForStart(ctx context.Context, marker string) error {
	utils.OrDefault(w.Log).WithField("marker", marker).Info("Waiting for application to start")
	return w.waitFor(ctx, marker, true)
}

// WaitForExit blocks until no process matching marker is running.
func (w *Watcher) WaitForExit(ctx context.Context, marker string) error {
	utils.OrDefault(w.Log).WithField("marker", marker).Info("Waiting for application to exit")
	return w.waitFor(ctx, marker, false)
}

func (w *Watcher) waitFor(ctx context.Context, marker string, want bool) error {
	log := utils.OrDefault(w.Log)
	sleep := w.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		running, err := w.Running(ctx, marker)
		switch {
		case err != nil:
			log.WithError(err).Warn("Process poll failed, retrying")
		case running == want:
			return nil
		}
		if err := sleep(ctx, interval); err != nil {
			return err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func execRun(ctx context.Context, path string, args ...string) error {
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
