// Package terraform invokes the `terraform` CLI against one module
// directory per managed database, satisfying service.TerraformRunner.
// Grounded on internal/command.Runner (the same process wrapper
// internal/builder and internal/mirror invoke docker/skopeo through);
// the runs themselves are long and uninterruptible (spec.md §5
// "Terraform runs cannot be interrupted"), so no Killer cancellation
// predicate is wired in, only a deadline.
package terraform

import (
	"context"
	"time"

	"github.com/deployforge/engine/internal/command"
	"github.com/deployforge/engine/internal/engineerr"
	"github.com/deployforge/engine/internal/event"
)

// defaultTimeout bounds one terraform apply/destroy; managed database
// provisioning (RDS, Cloud SQL) routinely takes several minutes.
const defaultTimeout = 20 * time.Minute

// Runner shells out to terraform against ModulesRoot/<module>.
type Runner struct {
	Runner      *command.Runner
	ModulesRoot string
	Emitter     event.Emitter
}

func New(runner *command.Runner, modulesRoot string, emitter event.Emitter) *Runner {
	return &Runner{Runner: runner, ModulesRoot: modulesRoot, Emitter: emitter}
}

// Apply runs `terraform init` then `terraform apply -auto-approve` with
// vars passed as -var key=value, in ModulesRoot/module.
func (r *Runner) Apply(ctx context.Context, module string, vars map[string]string) error {
	dir := r.ModulesRoot + "/" + module
	if err := r.run(ctx, dir, []string{"init", "-input=false"}); err != nil {
		return err
	}
	args := []string{"apply", "-auto-approve", "-input=false"}
	for k, v := range vars {
		args = append(args, "-var", k+"="+v)
	}
	return r.run(ctx, dir, args)
}

// Destroy runs `terraform destroy -auto-approve` in ModulesRoot/module.
func (r *Runner) Destroy(ctx context.Context, module string) error {
	dir := r.ModulesRoot + "/" + module
	return r.run(ctx, dir, []string{"destroy", "-auto-approve", "-input=false"})
}

func (r *Runner) run(ctx context.Context, dir string, args []string) error {
	killer := command.Killer{Deadline: time.Now().Add(defaultTimeout)}
	res := r.Runner.Run(ctx, command.Spec{Bin: "terraform", Args: args, Dir: dir}, killer, nil, nil)
	if !res.IsSuccess() {
		return engineerr.Wrap(engineerr.KindInfrastructure, event.Details{}, "terraform "+args[0]+" in "+dir+": "+res.Message, res.Err)
	}
	return nil
}
