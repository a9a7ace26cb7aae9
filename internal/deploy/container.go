package deploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/bot"
	apperrors "github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/common/errors"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/sandbox"
)

// deployContainer clones the recipe repository, requires a Dockerfile at
// its root, builds the image, and records the image reference in place of
// a working directory.
func (p *Pipeline) deployContainer(ctx context.Context, rec *bot.Record, req *Request) (*sourceResult, error) {
	if p.docker == nil {
		return nil, apperrors.BadRequest("container deployments are disabled: docker is not configured")
	}

	dir, err := p.cloneRepository(ctx, rec, req.RepositoryURL)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(filepath.Join(dir, "Dockerfile")); err != nil {
		return nil, apperrors.MissingBuildRecipe(req.RepositoryURL)
	}

	tag := imageTag(rec.Name)
	p.step(rec.ID, "building image %s", tag)
	err = p.docker.BuildImage(ctx, dir, tag, func(line string) {
		p.logs.Append(rec.ID, line)
	})
	if err != nil {
		return nil, apperrors.DeploymentFailed("image-build", err)
	}
	p.step(rec.ID, "image built: %s", tag)

	env := p.sandbox.DiscoverEnv(rec.Name, req.EnvOverrides)
	p.step(rec.ID, "environment resolved (%d variables)", len(env))

	return &sourceResult{imageRef: &tag, env: env}, nil
}

func imageTag(botName string) string {
	return fmt.Sprintf("hostelite/%s:latest", sandbox.SanitizeName(botName))
}
