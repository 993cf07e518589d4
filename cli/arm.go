package cli

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/balance/control"
	"go.viam.com/balance/environment"
	"go.viam.com/balance/environment/armpendulum"
	"go.viam.com/balance/rollout"
	"go.viam.com/balance/store"
	"go.viam.com/balance/utils"
)

const loopPollInterval = 10 * time.Millisecond

// armLoopConfig wires the arm as the loop endpoint behind a state feedback block and an
// acceleration limit.
func armLoopConfig(gain control.Gain, p armpendulum.Params) control.Config {
	return control.Config{
		Blocks: []control.BlockConfig{
			{Name: "arm", Type: control.BlockEndpoint, DependsOn: []string{"limit"}},
			{
				Name:      "lqr",
				Type:      control.BlockStateFeedback,
				Attribute: utils.AttributeMap{"gain": gain.Rows()},
				DependsOn: []string{"arm"},
			},
			{
				Name:      "limit",
				Type:      control.BlockSaturation,
				Attribute: utils.AttributeMap{"lower": -p.MaxAccel, "upper": p.MaxAccel},
				DependsOn: []string{"lqr"},
			},
		},
		Frequency: 1 / p.ControlDt,
	}
}

// runLoop runs loop until it stops on its own or ctx is done. An episode ending is a normal
// stop.
func runLoop(ctx context.Context, loop *control.Loop) error {
	if err := loop.Start(); err != nil {
		return err
	}
	poll := time.NewTicker(loopPollInterval)
	defer poll.Stop()
	for loop.Err() == nil && ctx.Err() == nil {
		select {
		case <-ctx.Done():
		case <-poll.C:
		}
	}
	err := loop.Stop()
	if errors.Is(err, environment.ErrEpisodeDone) {
		return nil
	}
	return err
}

// ArmAction balances the pendulum on the simulated arm with a control loop running in real
// time.
func ArmAction(c *cli.Context) error {
	r, err := newRunner(c)
	if err != nil {
		return err
	}
	params, err := r.armParams()
	if err != nil {
		return err
	}
	reg, err := r.design(armpendulum.Name)
	if err != nil {
		return err
	}
	arm, err := armpendulum.New(params, r.logger.Sublogger(armpendulum.Name))
	if err != nil {
		return err
	}
	theta := c.Float64(flagTheta)
	if math.Abs(theta) >= params.AngleLimit {
		return errors.Errorf("initial angle %f is outside the angle limit %f", theta, params.AngleLimit)
	}
	if _, err := arm.ResetTo(c.Context, theta, 0); err != nil {
		return err
	}

	loop, err := control.NewLoop(r.logger.Sublogger("loop"), armLoopConfig(reg.gain, params), arm)
	if err != nil {
		return err
	}
	start := time.Now()
	if err := runLoop(c.Context, loop); err != nil {
		return err
	}
	elapsed := time.Since(start)

	states := arm.History()
	trace := &rollout.Trace{States: states, Steps: len(states) - 1, Return: float64(len(states) - 1)}
	last := states[len(states)-1]
	// a loop stopped by an interrupt has neither flag set
	if tr, ok := arm.LastTransition(); ok {
		trace.Terminated, trace.Truncated = tr.Terminated, tr.Truncated
	}

	summary, err := rollout.Summarize([]*rollout.Trace{trace})
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%d loop ticks in %s, final theta %.2f deg, terminated %v",
		loop.Ticks(), elapsed.Round(time.Millisecond), utils.RadToDeg(last[armpendulum.Theta]), trace.Terminated)
	if c.Context.Err() != nil {
		printf(c.App.Writer, "interrupted")
	}

	if err := r.plotTrace(trace, armpendulum.StateLabels, params.ControlDt); err != nil {
		return err
	}
	return r.saveRun(&store.RunRecord{
		Env:       armpendulum.Name,
		Policy:    fmt.Sprintf("%s/%s", policyLQR, reg.source),
		DatasetID: reg.datasetID,
		Gain:      reg.gain.Rows(),
		Summary:   summary,
	})
}
