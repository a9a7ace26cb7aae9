// Package sandbox manages per-bot working directories under a single
// storage root, with path-escape guards on every file operation.
package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/common/config"
	apperrors "github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/common/errors"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/common/logger"
)

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Manager owns the on-disk layout: one subdirectory per bot under Root,
// named from the sanitized bot name.
type Manager struct {
	root         string
	maxFileBytes int64
	logger       *logger.Logger
}

// NewManager creates a sandbox manager and ensures the storage root exists.
func NewManager(cfg config.StorageConfig, log *logger.Logger) (*Manager, error) {
	root, err := expandHome(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving storage root: %w", err)
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving storage root: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage root %s: %w", root, err)
	}

	maxBytes := cfg.MaxFileBytes
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	return &Manager{
		root:         root,
		maxFileBytes: maxBytes,
		logger:       log.WithFields(zap.String("component", "sandbox")),
	}, nil
}

// Root returns the absolute storage root directory.
func (m *Manager) Root() string {
	return m.root
}

// SanitizeName reduces a bot name to a filesystem-safe directory name.
func SanitizeName(name string) string {
	safe := unsafeNameChars.ReplaceAllString(strings.TrimSpace(name), "-")
	safe = strings.Trim(safe, "-.")
	if safe == "" {
		safe = "bot"
	}
	return safe
}

// BotDir returns the absolute path of a bot's working directory.
// The directory is not created.
func (m *Manager) BotDir(botName string) string {
	return filepath.Join(m.root, SanitizeName(botName))
}

// EnsureBotDir creates the bot's working directory if needed and returns it.
func (m *Manager) EnsureBotDir(botName string) (string, error) {
	dir := m.BotDir(botName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", apperrors.InternalError("creating bot directory", err)
	}
	return dir, nil
}

// ResetBotDir removes any existing working directory for the bot and
// creates a fresh empty one. Deployments never merge into leftovers.
func (m *Manager) ResetBotDir(botName string) (string, error) {
	dir := m.BotDir(botName)
	if err := os.RemoveAll(dir); err != nil {
		return "", apperrors.InternalError("clearing bot directory", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", apperrors.InternalError("creating bot directory", err)
	}
	return dir, nil
}

// DeleteAll removes the bot's working directory recursively. Removal is
// best effort: failures are logged and swallowed so bot deletion never
// fails on a stubborn file.
func (m *Manager) DeleteAll(botName string) {
	dir := m.BotDir(botName)
	if err := os.RemoveAll(dir); err != nil {
		m.logger.Warn("failed to remove bot directory",
			zap.String("dir", dir), zap.Error(err))
	}
}

// resolveSafePath joins a caller-supplied relative path onto the bot's
// directory and rejects anything that resolves outside it.
func (m *Manager) resolveSafePath(botName, relativePath string) (string, error) {
	base := m.BotDir(botName)
	clean := filepath.Clean(relativePath)
	abs := filepath.Join(base, clean)

	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return "", apperrors.InvalidPath(relativePath)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", apperrors.InvalidPath(relativePath)
	}
	return abs, nil
}

func expandHome(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}
