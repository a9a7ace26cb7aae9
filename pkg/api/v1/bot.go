package v1

import "time"

// BotStatus represents the lifecycle status of a bot.
type BotStatus string

const (
	BotStatusStopped   BotStatus = "stopped"
	BotStatusDeploying BotStatus = "deploying"
	BotStatusRunning   BotStatus = "running"
	BotStatusError     BotStatus = "error"
)

// DeploymentSource identifies the origin format of a bot's code.
type DeploymentSource string

const (
	SourceArchive    DeploymentSource = "archive"
	SourceRepository DeploymentSource = "repository"
	SourceContainer  DeploymentSource = "container"
)

// Language is a runtime hint attached to a bot record.
type Language string

const (
	LanguagePython Language = "python"
	LanguageNodeJS Language = "nodejs"
)

// Bot is the wire representation of a bot record.
type Bot struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Language      Language          `json:"language"`
	Status        BotStatus         `json:"status"`
	RunCommand    string            `json:"run_command,omitempty"`
	BuildCommand  string            `json:"build_command,omitempty"`
	Source        DeploymentSource  `json:"source"`
	RepositoryURL string            `json:"repository_url,omitempty"`
	WorkingDir    *string           `json:"working_dir,omitempty"`
	ImageRef      *string           `json:"image_ref,omitempty"`
	Env           map[string]string `json:"env,omitempty"`
	AutoRestart   bool              `json:"auto_restart"`
	ProcessID     *int              `json:"process_id,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// LogLine is a single aggregated log line for a bot.
type LogLine struct {
	BotID     string    `json:"bot_id"`
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
}

// FileNode is one entry in a bot's file tree.
type FileNode struct {
	Name     string      `json:"name"`
	Path     string      `json:"path"`
	Type     string      `json:"type"` // "file" or "directory"
	Size     int64       `json:"size"`
	Children []*FileNode `json:"children,omitempty"`
}

// HealthState reports the liveness of a bot's process.
type HealthState string

const (
	HealthHealthy   HealthState = "healthy"
	HealthUnhealthy HealthState = "unhealthy"
	HealthUnknown   HealthState = "unknown"
)

// SystemStats reports process-wide informational statistics.
type SystemStats struct {
	UptimeSeconds  int64  `json:"uptime_seconds"`
	AllocBytes     uint64 `json:"alloc_bytes"`
	SysBytes       uint64 `json:"sys_bytes"`
	NumGoroutine   int    `json:"num_goroutine"`
	RunningBots    int    `json:"running_bots"`
	RegisteredBots int    `json:"registered_bots"`
}
