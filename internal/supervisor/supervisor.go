// Package supervisor owns the 1:1 mapping between bot records and live OS
// processes: start, stop, restart, force-stop, delete, and crash
// auto-restart with exponential backoff.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	goruntime "runtime"
	"strconv"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/bot"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/common/config"
	apperrors "github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/common/errors"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/common/logger"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/docker"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/events"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/events/bus"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/logs"
	langruntime "github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/runtime"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/sandbox"
	v1 "github.com/whatsapp110x-ctrl/Host-Elite-sub000/pkg/api/v1"
)

// Supervisor supervises bot processes. All mutating operations on the same
// bot id are serialized through a per-id lock, so concurrent start/stop/
// delete calls cannot both believe they own the transition.
type Supervisor struct {
	store     *bot.Store
	sandbox   *sandbox.Manager
	logs      *logs.Aggregator
	runtimes  *langruntime.Registry
	docker    *docker.Client // nil when docker is disabled
	bus       bus.EventBus
	cfg       config.SupervisorConfig
	logger    *logger.Logger
	startedAt time.Time

	// locks is shared with the deploy pipeline so a deploy and a
	// start/stop/delete on the same bot never interleave.
	locks *bot.Locks

	mu       sync.Mutex
	handles  map[string]*handle
	restarts map[string]int         // consecutive crash count per bot
	timers   map[string]*time.Timer // pending auto-restart timers
}

// New creates a supervisor.
func New(
	store *bot.Store,
	locks *bot.Locks,
	sb *sandbox.Manager,
	agg *logs.Aggregator,
	runtimes *langruntime.Registry,
	dockerClient *docker.Client,
	eventBus bus.EventBus,
	cfg config.SupervisorConfig,
	log *logger.Logger,
) *Supervisor {
	return &Supervisor{
		store:     store,
		locks:     locks,
		sandbox:   sb,
		logs:      agg,
		runtimes:  runtimes,
		docker:    dockerClient,
		bus:       eventBus,
		cfg:       cfg,
		logger:    log.WithFields(zap.String("component", "supervisor")),
		startedAt: time.Now().UTC(),
		handles:   make(map[string]*handle),
		restarts:  make(map[string]int),
		timers:    make(map[string]*time.Timer),
	}
}

// lockFor returns the serialization lock for a bot id.
func (s *Supervisor) lockFor(botID string) *sync.Mutex {
	return s.locks.Get(botID)
}

// Start spawns the bot's process. A second start on a running bot fails
// with AlreadyRunning and leaves the original process untouched. An
// explicit start resets the crash counter.
func (s *Supervisor) Start(ctx context.Context, botID string) (*bot.Record, error) {
	l := s.lockFor(botID)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	delete(s.restarts, botID)
	s.cancelPendingRestart(botID)
	s.mu.Unlock()

	return s.startLocked(ctx, botID, 0)
}

// startLocked spawns the process. The caller must hold the bot's lock.
func (s *Supervisor) startLocked(ctx context.Context, botID string, restartCount int) (*bot.Record, error) {
	rec, err := s.store.Get(botID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	_, running := s.handles[botID]
	s.mu.Unlock()
	if running {
		return nil, apperrors.AlreadyRunning(botID)
	}

	cmd, err := s.buildCommand(rec)
	if err != nil {
		return nil, err
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, apperrors.SpawnFailed(botID, err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		s.logs.Append(botID, fmt.Sprintf("[supervisor] failed to start process: %v", err))
		if _, serr := s.store.SetStatus(botID, v1.BotStatusError); serr != nil {
			s.logger.WithBotID(botID).Warn("failed to mark bot as errored", zap.Error(serr))
		} else {
			events.PublishStatus(ctx, s.bus, s.logger, botID, string(v1.BotStatusError))
		}
		return nil, apperrors.SpawnFailed(botID, err)
	}

	h := newHandle(botID, cmd, restartCount)
	s.mu.Lock()
	s.handles[botID] = h
	s.mu.Unlock()

	pid := h.pid()
	rec, err = s.store.Update(botID, func(r *bot.Record) error {
		if !bot.CanTransition(r.Status, v1.BotStatusRunning) {
			return apperrors.Conflict(fmt.Sprintf("bot '%s' cannot start from status '%s'", botID, r.Status))
		}
		r.Status = v1.BotStatusRunning
		r.ProcessID = &pid
		return nil
	})
	if err != nil {
		// The record refused the transition after the spawn; kill the
		// orphan and surface the conflict.
		h.stopRequested.Store(true)
		h.signalGroup(syscall.SIGKILL)
		s.mu.Lock()
		delete(s.handles, botID)
		s.mu.Unlock()
		return nil, err
	}

	go readOutput(stdout, func(line string) { s.logs.Append(botID, line) })
	go s.wait(h)

	s.logs.Append(botID, fmt.Sprintf("[supervisor] process started (pid %d)", pid))
	s.logger.WithBotID(botID).Info("process started",
		zap.Int("pid", pid), zap.Int("restart_count", restartCount))
	events.PublishStatus(ctx, s.bus, s.logger, botID, string(v1.BotStatusRunning))
	s.publish(ctx, events.BotStarted, botID, map[string]interface{}{"pid": pid})
	return rec, nil
}

// Stop terminates the bot's process. immediate=false sends SIGTERM to the
// process group and escalates to SIGKILL after the configured timeout;
// immediate=true kills outright. Stop returns after the exit has been
// recorded, so the caller observes the final status.
func (s *Supervisor) Stop(ctx context.Context, botID string, immediate bool) (*bot.Record, error) {
	l := s.lockFor(botID)
	l.Lock()
	defer l.Unlock()
	return s.stopLocked(ctx, botID, immediate)
}

func (s *Supervisor) stopLocked(ctx context.Context, botID string, immediate bool) (*bot.Record, error) {
	if _, err := s.store.Get(botID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cancelPendingRestart(botID)
	delete(s.restarts, botID)
	h, ok := s.handles[botID]
	s.mu.Unlock()
	if !ok {
		return nil, apperrors.NotRunning(botID)
	}

	h.stopRequested.Store(true)
	if immediate {
		s.logs.Append(botID, "[supervisor] force stop requested")
		h.signalGroup(syscall.SIGKILL)
	} else {
		s.logs.Append(botID, "[supervisor] stop requested")
		h.signalGroup(syscall.SIGTERM)
		select {
		case <-h.done:
		case <-time.After(s.cfg.StopTimeoutDuration()):
			s.logs.Append(botID, "[supervisor] graceful stop timed out, killing process group")
			h.signalGroup(syscall.SIGKILL)
		case <-ctx.Done():
			h.signalGroup(syscall.SIGKILL)
		}
	}

	// wait() records the final status; bound the wait so a wedged wait
	// cannot hang the API.
	select {
	case <-h.done:
	case <-time.After(s.cfg.StopTimeoutDuration() + 5*time.Second):
		return nil, apperrors.InternalError("process did not exit after SIGKILL", nil)
	}

	s.publish(ctx, events.BotStopped, botID, nil)
	return s.store.Get(botID)
}

// Restart stops the bot if running, pauses for the configured delay, and
// starts it again. A bot that was not running proceeds straight to start.
func (s *Supervisor) Restart(ctx context.Context, botID string) (*bot.Record, error) {
	l := s.lockFor(botID)
	l.Lock()
	defer l.Unlock()

	if _, err := s.stopLocked(ctx, botID, true); err != nil && !apperrors.IsNotRunning(err) {
		return nil, err
	}

	select {
	case <-time.After(s.cfg.RestartDelayDuration()):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.Lock()
	delete(s.restarts, botID)
	s.mu.Unlock()
	return s.startLocked(ctx, botID, 0)
}

// Delete tears the bot down: kills any live process, removes the record,
// best-effort removes the working directory and any built image, and drops
// the log buffer. After Delete the id is gone; later operations see NotFound.
func (s *Supervisor) Delete(ctx context.Context, botID string) error {
	l := s.lockFor(botID)
	l.Lock()
	defer l.Unlock()

	rec, err := s.store.Get(botID)
	if err != nil {
		return err
	}

	if _, err := s.stopLocked(ctx, botID, true); err != nil && !apperrors.IsNotRunning(err) {
		return err
	}

	if err := s.store.Delete(botID); err != nil {
		return err
	}

	s.sandbox.DeleteAll(rec.Name)
	if rec.ImageRef != nil && s.docker != nil {
		if err := s.docker.RemoveImage(ctx, *rec.ImageRef); err != nil {
			s.logger.WithBotID(botID).Warn("failed to remove image", zap.Error(err))
		}
	}
	s.logs.Remove(botID)

	s.mu.Lock()
	delete(s.restarts, botID)
	s.mu.Unlock()
	s.locks.Forget(botID)
	s.locks.Forget("deploy:" + sandbox.SanitizeName(rec.Name))

	s.publish(ctx, events.BotDeleted, botID, map[string]interface{}{"name": rec.Name})
	s.logger.WithBotID(botID).Info("bot deleted", zap.String("name", rec.Name))
	return nil
}

// wait blocks until the process exits, classifies the exit, records the
// final status, and schedules an auto-restart for crashes. It is the sole
// authority on the handle's final state.
func (s *Supervisor) wait(h *handle) {
	waitErr := h.cmd.Wait()
	uptime := time.Since(h.startedAt)
	class := h.classify(waitErr)
	code := exitCode(waitErr)

	s.mu.Lock()
	delete(s.handles, h.botID)
	s.mu.Unlock()

	status := v1.BotStatusStopped
	if class == exitCrash {
		status = v1.BotStatusError
	}

	s.logs.Append(h.botID, fmt.Sprintf("[supervisor] process exited (code %d) after %s", code, uptime.Round(time.Second)))
	s.logger.WithBotID(h.botID).Info("process exited",
		zap.Int("exit_code", code),
		zap.Duration("uptime", uptime),
		zap.String("status", string(status)))

	ctx := context.Background()
	rec, err := s.store.Update(h.botID, func(r *bot.Record) error {
		r.Status = status
		r.ProcessID = nil
		return nil
	})
	if err != nil {
		// Record already deleted; nothing left to do.
		close(h.done)
		return
	}

	events.PublishStatus(ctx, s.bus, s.logger, h.botID, string(status))
	s.publish(ctx, events.BotExited, h.botID, map[string]interface{}{
		"exit_code": code,
		"status":    string(status),
	})
	close(h.done)

	if class == exitCrash && rec.AutoRestart {
		s.scheduleRestart(h, uptime)
	}
}

// scheduleRestart arms the backoff timer after a crash. Consecutive
// crashes double the delay up to the cap; one run longer than the
// clean-run threshold resets the ladder.
func (s *Supervisor) scheduleRestart(h *handle, uptime time.Duration) {
	s.mu.Lock()
	n := s.restarts[h.botID]
	if uptime >= s.cfg.CleanRunThresholdDuration() {
		n = 0
	}
	delay := backoffDelay(s.cfg.BackoffBaseDuration(), s.cfg.BackoffMaxDuration(), n)
	s.restarts[h.botID] = n + 1

	s.cancelPendingRestart(h.botID)
	s.timers[h.botID] = time.AfterFunc(delay, func() { s.autoRestart(h.botID, n+1) })
	s.mu.Unlock()

	s.logs.Append(h.botID, fmt.Sprintf("[supervisor] crash detected, restarting in %s (attempt %d)", delay, n+1))
	s.logger.WithBotID(h.botID).Warn("auto-restart scheduled",
		zap.Duration("delay", delay), zap.Int("attempt", n+1))
}

// autoRestart is the timer callback. A spawn failure here is a fresh
// crash, so the ladder keeps climbing rather than crashing the supervisor.
func (s *Supervisor) autoRestart(botID string, attempt int) {
	l := s.lockFor(botID)
	l.Lock()
	defer l.Unlock()

	rec, err := s.store.Get(botID)
	if err != nil || !rec.AutoRestart || rec.Status != v1.BotStatusError {
		// Deleted, redeployed, or explicitly handled in the meantime.
		return
	}

	if _, err := s.startLocked(context.Background(), botID, attempt); err != nil {
		s.logger.WithBotID(botID).Error("auto-restart failed", zap.Error(err))
		s.mu.Lock()
		n := s.restarts[botID]
		delay := backoffDelay(s.cfg.BackoffBaseDuration(), s.cfg.BackoffMaxDuration(), n)
		s.restarts[botID] = n + 1
		s.cancelPendingRestart(botID)
		s.timers[botID] = time.AfterFunc(delay, func() { s.autoRestart(botID, n+1) })
		s.mu.Unlock()
	}
}

// cancelPendingRestart stops an armed restart timer. Caller holds s.mu.
func (s *Supervisor) cancelPendingRestart(botID string) {
	if t, ok := s.timers[botID]; ok {
		t.Stop()
		delete(s.timers, botID)
	}
}

// backoffDelay returns base * 2^attempt capped at max.
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// IsRunning reports whether the supervisor holds a live handle for the id.
func (s *Supervisor) IsRunning(botID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.handles[botID]
	return ok
}

// HealthCheck reports a bot's health: healthy when a live handle backs a
// running status, unhealthy when the record says error, unknown otherwise.
func (s *Supervisor) HealthCheck(botID string) (v1.HealthState, error) {
	rec, err := s.store.Get(botID)
	if err != nil {
		return v1.HealthUnknown, err
	}

	switch {
	case rec.Status == v1.BotStatusRunning && s.IsRunning(botID):
		return v1.HealthHealthy, nil
	case rec.Status == v1.BotStatusError:
		return v1.HealthUnhealthy, nil
	default:
		return v1.HealthUnknown, nil
	}
}

// SystemStats returns process-wide informational statistics.
func (s *Supervisor) SystemStats() *v1.SystemStats {
	var mem goruntime.MemStats
	goruntime.ReadMemStats(&mem)

	s.mu.Lock()
	running := len(s.handles)
	s.mu.Unlock()

	return &v1.SystemStats{
		UptimeSeconds:  int64(time.Since(s.startedAt).Seconds()),
		AllocBytes:     mem.Alloc,
		SysBytes:       mem.Sys,
		NumGoroutine:   goruntime.NumGoroutine(),
		RunningBots:    running,
		RegisteredBots: s.store.Count(),
	}
}

// StopAll force-stops every running bot concurrently. Used on shutdown.
func (s *Supervisor) StopAll(ctx context.Context) error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.handles))
	for id := range s.handles {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if _, err := s.Stop(ctx, id, true); err != nil && !apperrors.IsNotRunning(err) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// buildCommand assembles the exec.Cmd for a record. Container bots run
// through the docker CLI so the supervised OS process is uniform across
// sources; everything else runs the record's command in its working
// directory with the merged environment plus an injected PORT.
func (s *Supervisor) buildCommand(rec *bot.Record) (*exec.Cmd, error) {
	port := derivePort(rec.ID, s.cfg.BasePort, s.cfg.MaxPort)

	var argv []string
	if rec.ImageRef != nil {
		argv = containerArgv(rec, port)
	} else {
		if rec.RunCommand == "" {
			return nil, apperrors.BadRequest(fmt.Sprintf("bot '%s' has no run command", rec.ID))
		}
		var err error
		argv, err = langruntime.SplitCommand(rec.RunCommand)
		if err != nil {
			return nil, apperrors.BadRequest("invalid run command: " + err.Error())
		}
		argv[0] = s.runtimes.ResolveInterpreter(argv[0])
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	if rec.WorkingDir != nil {
		cmd.Dir = *rec.WorkingDir
	}
	cmd.Env = processEnv(rec.Env, port)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	return cmd, nil
}

// containerArgv runs a built image in the foreground under the docker CLI.
// --rm keeps exited containers from piling up; the env is passed through.
func containerArgv(rec *bot.Record, port int) []string {
	argv := []string{
		"docker", "run", "--rm",
		"--name", "hostelite-" + sandbox.SanitizeName(rec.Name),
		"-e", "PORT=" + strconv.Itoa(port),
		"-p", fmt.Sprintf("%d:%d", port, port),
	}
	for k, v := range rec.Env {
		argv = append(argv, "-e", k+"="+v)
	}
	return append(argv, *rec.ImageRef)
}

// processEnv layers the bot environment over the supervisor's own, then
// injects the derived PORT.
func processEnv(env map[string]string, port int) []string {
	out := os.Environ()
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return append(out, "PORT="+strconv.Itoa(port))
}

func (s *Supervisor) publish(ctx context.Context, eventType, botID string, data map[string]interface{}) {
	if data == nil {
		data = map[string]interface{}{}
	}
	data["bot_id"] = botID
	event := bus.NewEvent(eventType, "hostelite", data)
	if err := s.bus.Publish(ctx, eventType, event); err != nil {
		s.logger.Warn("failed to publish event", zap.String("type", eventType), zap.Error(err))
	}
}
