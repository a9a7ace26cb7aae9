// Package bot defines the bot record and its in-memory store.
package bot

import (
	"time"

	v1 "github.com/whatsapp110x-ctrl/Host-Elite-sub000/pkg/api/v1"
)

// Record describes one deployable unit for the lifetime of the service.
// Records live in memory only; there is no backing database.
type Record struct {
	ID           string
	Name         string
	Language     v1.Language
	Status       v1.BotStatus
	RunCommand   string
	BuildCommand string

	Source        v1.DeploymentSource
	RepositoryURL string

	// WorkingDir is set after the first successful deployment.
	// Nil for container bots, which carry an ImageRef instead.
	WorkingDir *string
	ImageRef   *string

	// Env is the resolved merge result of all applicable sources.
	Env map[string]string

	AutoRestart bool
	ProcessID   *int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// validTransitions is the single authority over status changes.
// running → running is deliberately absent: a second start must be rejected.
var validTransitions = map[v1.BotStatus][]v1.BotStatus{
	v1.BotStatusStopped:   {v1.BotStatusDeploying, v1.BotStatusRunning, v1.BotStatusError},
	v1.BotStatusDeploying: {v1.BotStatusStopped, v1.BotStatusError},
	v1.BotStatusRunning:   {v1.BotStatusStopped, v1.BotStatusError},
	v1.BotStatusError:     {v1.BotStatusDeploying, v1.BotStatusRunning, v1.BotStatusStopped},
}

// CanTransition reports whether a status change is allowed.
func CanTransition(from, to v1.BotStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the record so callers cannot mutate store state.
func (r *Record) Clone() *Record {
	out := *r
	if r.WorkingDir != nil {
		wd := *r.WorkingDir
		out.WorkingDir = &wd
	}
	if r.ImageRef != nil {
		ref := *r.ImageRef
		out.ImageRef = &ref
	}
	if r.ProcessID != nil {
		pid := *r.ProcessID
		out.ProcessID = &pid
	}
	if r.Env != nil {
		out.Env = make(map[string]string, len(r.Env))
		for k, v := range r.Env {
			out.Env[k] = v
		}
	}
	return &out
}

// ToAPI converts the record to its wire representation.
func (r *Record) ToAPI() *v1.Bot {
	c := r.Clone()
	return &v1.Bot{
		ID:            c.ID,
		Name:          c.Name,
		Language:      c.Language,
		Status:        c.Status,
		RunCommand:    c.RunCommand,
		BuildCommand:  c.BuildCommand,
		Source:        c.Source,
		RepositoryURL: c.RepositoryURL,
		WorkingDir:    c.WorkingDir,
		ImageRef:      c.ImageRef,
		Env:           c.Env,
		AutoRestart:   c.AutoRestart,
		ProcessID:     c.ProcessID,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}
