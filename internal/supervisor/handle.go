package supervisor

import (
	"bufio"
	"io"
	"os/exec"
	"sync/atomic"
	"syscall"
	"time"
)

// exitClass is the internal classification of a process exit. It is state,
// not an error: it drives the record's final status and the auto-restart
// decision.
type exitClass int

const (
	exitClean exitClass = iota // code 0 or a signal the supervisor sent
	exitCrash                  // anything else
)

// handle is the ephemeral per-process state. Exactly one handle exists per
// running bot; it is created on successful spawn and destroyed by wait().
type handle struct {
	botID        string
	cmd          *exec.Cmd
	startedAt    time.Time
	restartCount int

	// stopRequested marks that the supervisor itself signalled the
	// process, so the coming exit classifies as a stop, not a crash.
	stopRequested atomic.Bool

	// done is closed by wait() after the final status is recorded.
	done chan struct{}
}

func newHandle(botID string, cmd *exec.Cmd, restartCount int) *handle {
	return &handle{
		botID:        botID,
		cmd:          cmd,
		startedAt:    time.Now().UTC(),
		restartCount: restartCount,
		done:         make(chan struct{}),
	}
}

// pid returns the OS process id, or 0 before spawn.
func (h *handle) pid() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// signalGroup delivers a signal to the whole process group so children
// spawned by the bot die with it. Falls back to the main process when the
// group lookup fails.
func (h *handle) signalGroup(sig syscall.Signal) {
	if h.cmd.Process == nil {
		return
	}
	if pgid, err := syscall.Getpgid(h.cmd.Process.Pid); err == nil {
		_ = syscall.Kill(-pgid, sig)
	} else {
		_ = h.cmd.Process.Signal(sig)
	}
}

// classify inspects the wait error. Exit code 0 is clean; so is any exit
// while a supervisor-initiated stop was in flight, whatever the code,
// since SIGTERM'd processes often exit non-zero.
func (h *handle) classify(waitErr error) exitClass {
	if h.stopRequested.Load() {
		return exitClean
	}
	if waitErr == nil {
		return exitClean
	}
	return exitCrash
}

// exitCode extracts the process exit code after Wait, -1 when unknown.
func exitCode(waitErr error) int {
	if waitErr == nil {
		return 0
	}
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			return ws.ExitStatus()
		}
	}
	return -1
}

// readOutput scans one pipe line by line into the sink until EOF. Run as a
// goroutine per pipe; EOF arrives when the process exits.
func readOutput(reader io.ReadCloser, sink func(string)) {
	defer reader.Close()
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		sink(scanner.Text())
	}
}
