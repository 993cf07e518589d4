package cli

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	goutils "go.viam.com/utils"
	"go.uber.org/multierr"

	"go.viam.com/balance/environment"
	"go.viam.com/balance/environment/cartpole"
	"go.viam.com/balance/plot"
	"go.viam.com/balance/rollout"
	"go.viam.com/balance/store"
)

// CartPoleAction evaluates a policy on independent cart-pole episodes.
func CartPoleAction(c *cli.Context) error {
	r, err := newRunner(c)
	if err != nil {
		return err
	}
	probe, err := r.newPlant(cartpole.Name, 0)
	if err != nil {
		return err
	}
	space := probe.ActionSpace()

	record := &store.RunRecord{Env: cartpole.Name, Policy: c.String(flagPolicy)}
	var policy rollout.Policy
	switch record.Policy {
	case policyLQR:
		reg, err := r.design(cartpole.Name)
		if err != nil {
			return err
		}
		if policy, err = rollout.NewLQRPolicy(reg.gain, nil, space); err != nil {
			return err
		}
		record.Policy = fmt.Sprintf("%s/%s", policyLQR, reg.source)
		record.DatasetID = reg.datasetID
		record.Gain = reg.gain.Rows()
	case policyRandom:
		policy = rollout.NewRandomPolicy(space, r.cfg.SysID.PolicySeed)
	default:
		return errors.Errorf("unknown policy %q, expected %q or %q", record.Policy, policyLQR, policyRandom)
	}

	episodes := r.cfg.Rollout.Episodes
	if c.IsSet(flagEpisodes) {
		episodes = c.Int(flagEpisodes)
	}
	traces, err := rollout.Evaluate(c.Context, episodes, func(episode int) (environment.Env, error) {
		return r.newPlant(cartpole.Name, uint64(episode))
	}, policy, r.cfg.Rollout.MaxSteps, r.cfg.Rollout.Parallelism, r.logger)
	if err != nil {
		return err
	}
	if record.Summary, err = rollout.Summarize(traces); err != nil {
		return err
	}
	printf(c.App.Writer, "%s", summaryTable(fmt.Sprintf("cartpole %s", record.Policy), record.Summary))

	if err := r.plotTrace(traces[0], cartpole.StateLabels, r.cfg.CartPole.Tau); err != nil {
		return err
	}
	return r.saveRun(record)
}

func (r *runner) saveRun(record *store.RunRecord) error {
	if r.c.Bool(flagNoSave) {
		return nil
	}
	st, err := r.openStore()
	if err != nil {
		return err
	}
	defer goutils.UncheckedErrorFunc(st.Close)
	id, err := st.SaveRun(r.ctx(), record)
	if err != nil {
		return err
	}
	printf(r.out(), "recorded run %s", id)
	return nil
}

// plotTrace writes the --plot and --html outputs when requested.
func (r *runner) plotTrace(trace *rollout.Trace, labels []string, dt float64) error {
	if path := r.c.String(flagPlot); path != "" {
		if err := plot.Trajectory(trace, labels, dt, path); err != nil {
			return err
		}
		printf(r.out(), "wrote %s", path)
	}
	path := r.c.String(flagHTML)
	if path == "" {
		return nil
	}
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := multierr.Combine(plot.TrajectoryHTML(trace, labels, dt, f), f.Close()); err != nil {
		return err
	}
	printf(r.out(), "wrote %s", path)
	return nil
}
