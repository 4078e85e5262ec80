package actions

import (
	"context"

	"github.com/poltergeist/conductor/pkg/deploy"
	"github.com/poltergeist/conductor/pkg/env"
	"github.com/poltergeist/conductor/pkg/logger"
)

// DeploySimulate selects a deployment profile from BRANCH_NAME and records
// it as DEPLOY_PROFILE and DEPLOY_TARGET. Nothing is deployed.
type DeploySimulate struct {
	Logger logger.Logger
}

// Run implements pipeline.Action
func (d *DeploySimulate) Run(ctx context.Context, vars *env.Context) error {
	branch := vars.GetOr(env.BranchName, env.Unknown)
	profile := deploy.SelectProfile(branch)

	vars.Set(env.DeployProfile, profile.String())
	vars.Set(env.DeployTarget, profile.Target())

	logger.OrNop(d.Logger).Info(profile.Message(),
		logger.WithField("branch", branch),
		logger.WithField("profile", profile),
		logger.WithField("target", profile.Target()))
	return nil
}
