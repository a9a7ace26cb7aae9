// Package runtime manages the language runtimes a bot can be launched with,
// including interpreter alias resolution for portability across hosts.
package runtime

import (
	"os/exec"
	"sync"

	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/common/logger"
	v1 "github.com/whatsapp110x-ctrl/Host-Elite-sub000/pkg/api/v1"
)

// Config holds configuration for one language runtime.
type Config struct {
	ID v1.Language `json:"id"`

	// Interpreters lists interchangeable interpreter names in preference
	// order. The first one present on PATH is substituted for any of the
	// others when a run command names an absent alias.
	Interpreters []string `json:"interpreters"`

	// InstallCommands are the leading tokens of dependency-installation
	// commands for this runtime. Build steps matching one of these are
	// skipped when the skip-install policy is enabled.
	InstallCommands [][]string `json:"install_commands,omitempty"`
}

// Registry holds the known language runtimes.
type Registry struct {
	runtimes map[v1.Language]*Config
	logger   *logger.Logger

	mu sync.RWMutex

	// lookPath is swappable for tests.
	lookPath func(string) (string, error)
}

// NewRegistry creates a new runtime registry.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		runtimes: make(map[v1.Language]*Config),
		logger:   log,
		lookPath: exec.LookPath,
	}
}

// LoadDefaults registers the built-in runtimes.
func (r *Registry) LoadDefaults() {
	for _, cfg := range DefaultRuntimes() {
		r.Register(cfg)
	}
}

// Register adds or replaces a runtime configuration.
func (r *Registry) Register(cfg *Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runtimes[cfg.ID] = cfg
}

// Get returns the runtime configuration for a language.
func (r *Registry) Get(lang v1.Language) (*Config, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.runtimes[lang]
	return cfg, ok
}

// List returns all registered runtimes.
func (r *Registry) List() []*Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Config, 0, len(r.runtimes))
	for _, cfg := range r.runtimes {
		out = append(out, cfg)
	}
	return out
}

// ResolveInterpreter maps an interpreter name to one that exists on PATH.
// If the named interpreter is present it is returned unchanged. If it is a
// known alias of a runtime whose preferred interpreter is present, the
// present one is returned. Otherwise the name is returned as-is and the
// spawn will surface the failure.
func (r *Registry) ResolveInterpreter(name string) string {
	if _, err := r.lookPath(name); err == nil {
		return name
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, cfg := range r.runtimes {
		if !contains(cfg.Interpreters, name) {
			continue
		}
		for _, candidate := range cfg.Interpreters {
			if candidate == name {
				continue
			}
			if _, err := r.lookPath(candidate); err == nil {
				return candidate
			}
		}
	}
	return name
}

// IsInstallCommand reports whether argv is a dependency-installation command
// for any registered runtime (e.g. "pip install", "npm install").
func (r *Registry) IsInstallCommand(argv []string) bool {
	if len(argv) == 0 {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, cfg := range r.runtimes {
		for _, prefix := range cfg.InstallCommands {
			if hasPrefix(argv, prefix) {
				return true
			}
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func hasPrefix(argv, prefix []string) bool {
	if len(argv) < len(prefix) {
		return false
	}
	for i, p := range prefix {
		if argv[i] != p {
			return false
		}
	}
	return true
}
