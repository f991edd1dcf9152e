package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mitchellh/go-ps"

	"github.com/luffy-robotics/luffy/internal/logger"
)

// Child is one service the launcher runs directly. In production systemd
// owns the fleet processes; the supervisor is the sandbox runner for hosts
// without unit files.
type Child struct {
	// Name is the service's short name, used for registry bookkeeping.
	Name string
	// Command is the shell command line starting the service.
	Command string
}

// stoppedRecorder is the slice of the registry the supervisor needs.
type stoppedRecorder interface {
	RecordStopped(name string)
}

// Supervisor spawns child services and records their exits. It does not
// restart anything: restart policy belongs to the init system.
type Supervisor struct {
	children []Child
	registry stoppedRecorder
	wg       sync.WaitGroup
}

// New returns a supervisor for the given children.
func New(reg stoppedRecorder, children ...Child) *Supervisor {
	return &Supervisor{
		children: children,
		registry: reg,
	}
}

// Start spawns every child whose executable is not already running on the
// host, and returns how many it actually spawned. A child that fails to
// start is logged and skipped; the launcher is still useful with a partial
// fleet. Cancelling ctx kills the spawned processes.
func (s *Supervisor) Start(ctx context.Context) int {
	ctx = logger.WithName(ctx, "supervisor")

	started := 0

	for _, child := range s.children {
		ok, err := s.spawn(ctx, child)
		if err != nil {
			logger.WarnKV(ctx, "Failed to start child service",
				"child", child.Name, "error", err)

			continue
		}

		if ok {
			started++
		}
	}

	return started
}

// Stop waits for every spawned child to exit. Callers cancel the context
// passed to Start first; the wait is what makes shutdown orderly.
func (s *Supervisor) Stop() {
	s.wg.Wait()
}

func (s *Supervisor) spawn(ctx context.Context, child Child) (bool, error) {
	executable := executableName(child.Command)

	running, err := processRunning(executable)
	if err != nil {
		// A host where the process table cannot be read still gets its
		// children; a duplicate is the lesser risk.
		logger.WarnKV(ctx, "Duplicate process check failed",
			"child", child.Name, "error", err)
	}

	if running {
		logger.InfoKV(ctx, "Child already running, not spawning",
			"child", child.Name, "executable", executable)

		return false, nil
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", child.Command)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return false, fmt.Errorf("start %s: %w", child.Name, err)
	}

	logger.InfoKV(ctx, "Started child service",
		"child", child.Name, "pid", cmd.Process.Pid)

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		err := cmd.Wait()
		s.registry.RecordStopped(child.Name)

		if err != nil {
			logger.WarnKV(ctx, "Child service exited",
				"child", child.Name, "error", err)

			return
		}

		logger.InfoKV(ctx, "Child service exited cleanly", "child", child.Name)
	}()

	return true, nil
}

// processRunning reports whether another process with the executable name
// is already alive, ignoring this process itself.
func processRunning(executable string) (bool, error) {
	processes, err := ps.Processes()
	if err != nil {
		return false, fmt.Errorf("list processes: %w", err)
	}

	self := os.Getpid()

	for _, process := range processes {
		if process.Pid() == self {
			continue
		}

		if process.Executable() == executable {
			return true, nil
		}
	}

	return false, nil
}

// executableName extracts the bare executable from a shell command line.
func executableName(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}

	return filepath.Base(fields[0])
}
