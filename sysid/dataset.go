// Package sysid collects transition samples from an environment and identifies a local
// linear model of its dynamics by least squares.
package sysid

import (
	"context"
	"slices"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/balance/environment"
	"go.viam.com/balance/logging"
	"go.viam.com/balance/rollout"
)

// Dataset is a flat table of transitions. Consecutive transitions of the same episode are
// adjacent: one's Next is the following one's State.
type Dataset struct {
	ID          string                   `json:"id"`
	Env         string                   `json:"env"`
	Transitions []environment.Transition `json:"transitions"`
}

// Len returns the number of transitions.
func (d *Dataset) Len() int {
	return len(d.Transitions)
}

// Episodes splits the dataset into runs of temporally adjacent transitions.
func (d *Dataset) Episodes() [][]environment.Transition {
	var out [][]environment.Transition
	start := 0
	for i, tr := range d.Transitions {
		last := i == len(d.Transitions)-1
		if last || tr.Done() || !slices.Equal(tr.Next, d.Transitions[i+1].State) {
			out = append(out, d.Transitions[start:i+1])
			start = i + 1
		}
	}
	return out
}

// Sample runs policy on env, resetting whenever an episode ends, until n transitions are
// collected.
func Sample(
	ctx context.Context,
	env environment.Env,
	policy rollout.Policy,
	n int,
	logger logging.Logger,
) (*Dataset, error) {
	if n <= 0 {
		return nil, errors.Errorf("sample count must be positive, got %d", n)
	}
	ds := &Dataset{Env: env.Name(), Transitions: make([]environment.Transition, 0, n)}
	s, err := env.Reset(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to reset environment")
	}
	episodes := 1
	for ds.Len() < n {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		action, err := policy.Act(ctx, s)
		if err != nil {
			return nil, err
		}
		tr, err := env.Step(ctx, action)
		if err != nil {
			return nil, errors.Wrapf(err, "step %d failed", ds.Len())
		}
		ds.Transitions = append(ds.Transitions, tr)
		if !tr.Done() {
			s = tr.Next
			continue
		}
		if ds.Len() == n {
			break
		}
		s, err = env.Reset(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "failed to reset environment")
		}
		episodes++
	}
	logger.Infow("collected samples", "env", ds.Env, "samples", ds.Len(), "episodes", episodes)
	return ds, nil
}

// Neighborhood is an axis aligned box around a linearization point.
type Neighborhood struct {
	Center environment.State `json:"center"`
	Radius []float64         `json:"radius"`
}

// Validate checks that the box is well formed.
func (nb Neighborhood) Validate() error {
	if len(nb.Center) != len(nb.Radius) {
		return errors.Errorf("neighborhood center has %d components but radius has %d", len(nb.Center), len(nb.Radius))
	}
	for i, r := range nb.Radius {
		if r <= 0 {
			return errors.Errorf("neighborhood radius %d must be positive", i)
		}
	}
	return nil
}

// Contains reports whether s lies inside the box.
func (nb Neighborhood) Contains(s environment.State) bool {
	if len(s) != len(nb.Center) {
		return false
	}
	for i, v := range s {
		if v < nb.Center[i]-nb.Radius[i] || v > nb.Center[i]+nb.Radius[i] {
			return false
		}
	}
	return true
}

// Filter returns the transitions whose starting state lies inside the box.
func (nb Neighborhood) Filter(ds *Dataset) (*Dataset, error) {
	if err := nb.Validate(); err != nil {
		return nil, err
	}
	return &Dataset{
		Env: ds.Env,
		Transitions: lo.Filter(ds.Transitions, func(tr environment.Transition, _ int) bool {
			return nb.Contains(tr.State)
		}),
	}, nil
}
