// Package deploy turns a deployment source (archive, repository, or
// container recipe) into a prepared working directory with a resolved run
// command and merged environment, logging every step into the bot's stream.
package deploy

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/bot"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/common/config"
	apperrors "github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/common/errors"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/common/logger"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/docker"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/events"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/events/bus"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/logs"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/runtime"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/sandbox"
	v1 "github.com/whatsapp110x-ctrl/Host-Elite-sub000/pkg/api/v1"
)

// Request is one deployment request. Exactly one of ArchivePath and
// RepositoryURL is set depending on the source.
type Request struct {
	Name          string
	Language      v1.Language
	RunCommand    string
	BuildCommand  string
	Source        v1.DeploymentSource
	ArchivePath   string // local temp file holding the uploaded archive
	RepositoryURL string
	EnvOverrides  map[string]string
	AutoRestart   *bool // nil keeps the record's current value (true for new bots)
}

// Pipeline runs deployments. One Pipeline serves all bots; mutating
// operations on one bot are serialized through the lock registry shared
// with the supervisor.
type Pipeline struct {
	store    *bot.Store
	locks    *bot.Locks
	sandbox  *sandbox.Manager
	logs     *logs.Aggregator
	docker   *docker.Client // nil when container deployments are disabled
	runtimes *runtime.Registry
	bus      bus.EventBus
	cfg      config.DeployConfig
	logger   *logger.Logger
}

// NewPipeline creates a deployment pipeline.
func NewPipeline(
	store *bot.Store,
	locks *bot.Locks,
	sb *sandbox.Manager,
	agg *logs.Aggregator,
	dockerClient *docker.Client,
	runtimes *runtime.Registry,
	eventBus bus.EventBus,
	cfg config.DeployConfig,
	log *logger.Logger,
) *Pipeline {
	return &Pipeline{
		store:    store,
		locks:    locks,
		sandbox:  sb,
		logs:     agg,
		docker:   dockerClient,
		runtimes: runtimes,
		bus:      eventBus,
		cfg:      cfg,
		logger:   log.WithFields(zap.String("component", "deploy")),
	}
}

// Deploy runs the pipeline for the request's source. A bot record is
// created on first deployment and reused afterwards; redeployment fully
// replaces the previous working directory. Running bots must be stopped
// before redeploying.
func (p *Pipeline) Deploy(ctx context.Context, req *Request) (*bot.Record, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	// The name lock serializes record creation for concurrent first
	// deploys; the id lock is the one the supervisor holds across
	// start/stop/delete, so a deploy never interleaves with those.
	nameLock := p.locks.Get("deploy:" + sandbox.SanitizeName(req.Name))
	nameLock.Lock()
	defer nameLock.Unlock()

	rec, err := p.resolveRecord(req)
	if err != nil {
		return nil, err
	}
	botID := rec.ID

	idLock := p.locks.Get(botID)
	idLock.Lock()
	defer idLock.Unlock()

	log := p.logger.WithBotID(botID)

	if _, err := p.store.SetStatus(botID, v1.BotStatusDeploying); err != nil {
		return nil, err
	}
	events.PublishStatus(ctx, p.bus, log, botID, string(v1.BotStatusDeploying))
	p.step(botID, "deployment started (source: %s)", req.Source)

	ctx, cancel := context.WithTimeout(ctx, p.buildTimeout())
	defer cancel()

	var result *sourceResult
	switch req.Source {
	case v1.SourceArchive:
		result, err = p.deployArchive(ctx, rec, req)
	case v1.SourceRepository:
		result, err = p.deployRepository(ctx, rec, req)
	case v1.SourceContainer:
		result, err = p.deployContainer(ctx, rec, req)
	}
	if err != nil {
		return nil, p.fail(ctx, botID, err)
	}

	rec, err = p.store.Update(botID, func(r *bot.Record) error {
		r.Language = req.Language
		r.RunCommand = req.RunCommand
		r.BuildCommand = req.BuildCommand
		r.Source = req.Source
		r.RepositoryURL = req.RepositoryURL
		r.WorkingDir = result.workingDir
		r.ImageRef = result.imageRef
		r.Env = result.env
		if req.AutoRestart != nil {
			r.AutoRestart = *req.AutoRestart
		}
		r.Status = v1.BotStatusStopped
		return nil
	})
	if err != nil {
		return nil, p.fail(ctx, botID, err)
	}

	events.PublishStatus(ctx, p.bus, log, botID, string(v1.BotStatusStopped))
	p.publish(ctx, events.BotDeployed, botID, map[string]interface{}{
		"name":   rec.Name,
		"source": string(rec.Source),
	})
	p.step(botID, "deployment complete, bot is ready to start")
	log.Info("deployment complete", zap.String("source", string(req.Source)))
	return rec, nil
}

// sourceResult is what a source-specific path hands back to Deploy.
type sourceResult struct {
	workingDir *string
	imageRef   *string
	env        map[string]string
}

func (p *Pipeline) deployArchive(ctx context.Context, rec *bot.Record, req *Request) (*sourceResult, error) {
	p.step(rec.ID, "extracting archive")
	dir, err := p.sandbox.ExtractArchive(rec.Name, req.ArchivePath)
	if err != nil {
		return nil, err
	}
	p.step(rec.ID, "archive extracted to %s", dir)

	env := p.sandbox.DiscoverEnv(rec.Name, req.EnvOverrides)
	p.step(rec.ID, "environment resolved (%d variables)", len(env))

	if err := p.runBuildStep(ctx, rec.ID, dir, env, req.BuildCommand); err != nil {
		return nil, err
	}
	return &sourceResult{workingDir: &dir, env: env}, nil
}

func (p *Pipeline) deployRepository(ctx context.Context, rec *bot.Record, req *Request) (*sourceResult, error) {
	dir, err := p.cloneRepository(ctx, rec, req.RepositoryURL)
	if err != nil {
		return nil, err
	}

	env := p.sandbox.DiscoverEnv(rec.Name, req.EnvOverrides)
	p.step(rec.ID, "environment resolved (%d variables)", len(env))

	if err := p.runBuildStep(ctx, rec.ID, dir, env, req.BuildCommand); err != nil {
		return nil, err
	}
	return &sourceResult{workingDir: &dir, env: env}, nil
}

// runBuildStep runs a declared build command in the working directory,
// streaming its output into the bot's log. Package-installation commands
// are skipped entirely when the runtime environment is pre-provisioned;
// the skip is logged, never silent.
func (p *Pipeline) runBuildStep(ctx context.Context, botID, dir string, env map[string]string, buildCommand string) error {
	if buildCommand == "" {
		return nil
	}

	argv, err := runtime.SplitCommand(buildCommand)
	if err != nil {
		return apperrors.BadRequest("invalid build command: " + err.Error())
	}

	if p.cfg.SkipInstallSteps && p.runtimes.IsInstallCommand(argv) {
		p.step(botID, "skipping install step %q: packages are pre-provisioned on this host", buildCommand)
		return nil
	}

	p.step(botID, "running build step: %s", buildCommand)
	argv[0] = p.runtimes.ResolveInterpreter(argv[0])

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = mergedEnviron(env)
	if err := p.streamCommand(botID, cmd); err != nil {
		return apperrors.DeploymentFailed("build", err)
	}
	p.step(botID, "build step finished")
	return nil
}

// streamCommand runs a command and appends its combined output line by
// line to the bot's log stream.
func (p *Pipeline) streamCommand(botID string, cmd *exec.Cmd) error {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return err
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		p.logs.Append(botID, scanner.Text())
	}

	return cmd.Wait()
}

// fail records a deployment failure: the failure line goes into the bot's
// own log before the error is surfaced, so logs and the caller agree.
func (p *Pipeline) fail(ctx context.Context, botID string, cause error) error {
	p.step(botID, "deployment failed: %v", cause)
	p.logger.WithBotID(botID).Error("deployment failed", zap.Error(cause))

	if _, err := p.store.SetStatus(botID, v1.BotStatusError); err != nil {
		p.logger.WithBotID(botID).Warn("failed to mark bot as errored", zap.Error(err))
	} else {
		events.PublishStatus(ctx, p.bus, p.logger, botID, string(v1.BotStatusError))
	}

	if _, ok := cause.(*apperrors.AppError); ok {
		return cause
	}
	return apperrors.DeploymentFailed("deploy", cause)
}

// resolveRecord finds the record for the bot name or creates one.
func (p *Pipeline) resolveRecord(req *Request) (*bot.Record, error) {
	existing, err := p.store.GetByName(req.Name)
	if err == nil {
		if existing.Status == v1.BotStatusRunning {
			return nil, apperrors.Conflict(fmt.Sprintf("bot '%s' is running; stop it before redeploying", req.Name))
		}
		return existing, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, err
	}

	autoRestart := true
	if req.AutoRestart != nil {
		autoRestart = *req.AutoRestart
	}
	return p.store.Create(&bot.Record{
		Name:        req.Name,
		Language:    req.Language,
		Status:      v1.BotStatusStopped,
		Source:      req.Source,
		AutoRestart: autoRestart,
	})
}

// step appends a timestamped deployment-log line to the bot's stream.
func (p *Pipeline) step(botID, format string, args ...interface{}) {
	p.logs.Append(botID, fmt.Sprintf("[deploy] "+format, args...))
}

func (p *Pipeline) publish(ctx context.Context, eventType, botID string, data map[string]interface{}) {
	data["bot_id"] = botID
	event := bus.NewEvent(eventType, "hostelite", data)
	if err := p.bus.Publish(ctx, eventType, event); err != nil {
		p.logger.Warn("failed to publish event", zap.String("type", eventType), zap.Error(err))
	}
}

func (p *Pipeline) buildTimeout() time.Duration {
	if p.cfg.BuildTimeout <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(p.cfg.BuildTimeout) * time.Second
}

func validateRequest(req *Request) error {
	if req.Name == "" {
		return apperrors.BadRequest("bot name is required")
	}
	switch req.Source {
	case v1.SourceArchive:
		if req.ArchivePath == "" {
			return apperrors.BadRequest("archive deployment requires an uploaded archive")
		}
	case v1.SourceRepository, v1.SourceContainer:
		if req.RepositoryURL == "" {
			return apperrors.BadRequest("repository URL is required")
		}
	default:
		return apperrors.BadRequest(fmt.Sprintf("unknown deployment source '%s'", req.Source))
	}
	return nil
}
