package deploy

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/bot"
	apperrors "github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/common/errors"
)

// cloneRepository clones the repository into a fresh bot directory,
// wholesale replacing anything already there. Clone output is streamed
// into the bot's log.
func (p *Pipeline) cloneRepository(ctx context.Context, rec *bot.Record, repoURL string) (string, error) {
	if _, err := exec.LookPath("git"); err != nil {
		return "", apperrors.DeploymentFailed("clone", fmt.Errorf("git is not installed on this host"))
	}

	dir, err := p.sandbox.ResetBotDir(rec.Name)
	if err != nil {
		return "", err
	}

	p.step(rec.ID, "cloning %s", repoURL)
	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", repoURL, dir)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	if err := p.streamCommand(rec.ID, cmd); err != nil {
		return "", apperrors.DeploymentFailed("clone", err)
	}

	// The clone is a working directory, not a repository mirror.
	if err := os.RemoveAll(dir + "/.git"); err != nil {
		p.step(rec.ID, "warning: could not remove .git directory: %v", err)
	}

	p.step(rec.ID, "repository cloned to %s", dir)
	return dir, nil
}

// mergedEnviron layers the resolved bot environment over the process
// environment for build-step execution.
func mergedEnviron(env map[string]string) []string {
	out := os.Environ()
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
