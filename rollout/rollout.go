package rollout

import (
	"context"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"go.viam.com/balance/environment"
	"go.viam.com/balance/logging"
)

// Trace records one episode. States holds the initial state followed by the state after
// every step.
type Trace struct {
	States     []environment.State  `json:"states"`
	Actions    []environment.Action `json:"actions"`
	Rewards    []float64            `json:"rewards"`
	Terminated bool                 `json:"terminated"`
	Truncated  bool                 `json:"truncated"`
	Steps      int                  `json:"steps"`
	Return     float64              `json:"return"`
}

// Run resets env and steps it with policy until the episode terminates, is truncated, or
// maxSteps steps were taken. maxSteps <= 0 leaves truncation to the environment.
func Run(ctx context.Context, env environment.Env, policy Policy, maxSteps int) (*Trace, error) {
	s, err := env.Reset(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to reset environment")
	}
	trace := &Trace{States: []environment.State{s}}
	for maxSteps <= 0 || trace.Steps < maxSteps {
		if err := ctx.Err(); err != nil {
			return trace, err
		}
		action, err := policy.Act(ctx, s)
		if err != nil {
			return trace, err
		}
		tr, err := env.Step(ctx, action)
		if err != nil {
			return trace, errors.Wrapf(err, "step %d failed", trace.Steps)
		}
		trace.Steps++
		trace.States = append(trace.States, tr.Next)
		trace.Actions = append(trace.Actions, action)
		trace.Rewards = append(trace.Rewards, tr.Reward)
		trace.Return += tr.Reward
		if tr.Done() {
			trace.Terminated = tr.Terminated
			trace.Truncated = tr.Truncated
			return trace, nil
		}
		s = tr.Next
	}
	trace.Truncated = true
	return trace, nil
}

// EnvFactory builds the environment for one episode.
type EnvFactory func(episode int) (environment.Env, error)

// Evaluate runs episodes independent episodes, at most parallelism at a time, each on its own
// environment. The policy must be safe for concurrent use.
func Evaluate(
	ctx context.Context,
	episodes int,
	newEnv EnvFactory,
	policy Policy,
	maxSteps int,
	parallelism int,
	logger logging.Logger,
) ([]*Trace, error) {
	if episodes <= 0 {
		return nil, errors.Errorf("episode count must be positive, got %d", episodes)
	}
	if parallelism <= 0 {
		parallelism = 1
	}
	traces := make([]*Trace, episodes)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i := 0; i < episodes; i++ {
		g.Go(func() error {
			env, err := newEnv(i)
			if err != nil {
				return errors.Wrapf(err, "episode %d", i)
			}
			trace, err := Run(gctx, env, policy, maxSteps)
			if err != nil {
				return errors.Wrapf(err, "episode %d", i)
			}
			logger.Debugw("episode finished", "episode", i, "steps", trace.Steps, "terminated", trace.Terminated)
			traces[i] = trace
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return traces, nil
}

// Summary aggregates episode lengths and returns.
type Summary struct {
	Episodes     int     `json:"episodes"`
	Terminated   int     `json:"terminated"`
	MeanLength   float64 `json:"mean_length"`
	StdDevLength float64 `json:"stddev_length"`
	MedianLength float64 `json:"median_length"`
	MinLength    float64 `json:"min_length"`
	MaxLength    float64 `json:"max_length"`
	MeanReturn   float64 `json:"mean_return"`
	StdDevReturn float64 `json:"stddev_return"`
}

// Summarize computes the statistics of a set of episodes.
func Summarize(traces []*Trace) (Summary, error) {
	if len(traces) == 0 {
		return Summary{}, errors.New("no episodes to summarize")
	}
	lengths := make(stats.Float64Data, 0, len(traces))
	returns := make(stats.Float64Data, 0, len(traces))
	sum := Summary{Episodes: len(traces)}
	for _, t := range traces {
		lengths = append(lengths, float64(t.Steps))
		returns = append(returns, t.Return)
		if t.Terminated {
			sum.Terminated++
		}
	}
	var err error
	if sum.MeanLength, err = lengths.Mean(); err != nil {
		return Summary{}, err
	}
	if sum.StdDevLength, err = lengths.StandardDeviation(); err != nil {
		return Summary{}, err
	}
	if sum.MedianLength, err = lengths.Median(); err != nil {
		return Summary{}, err
	}
	if sum.MinLength, err = lengths.Min(); err != nil {
		return Summary{}, err
	}
	if sum.MaxLength, err = lengths.Max(); err != nil {
		return Summary{}, err
	}
	if sum.MeanReturn, err = returns.Mean(); err != nil {
		return Summary{}, err
	}
	if sum.StdDevReturn, err = returns.StandardDeviation(); err != nil {
		return Summary{}, err
	}
	return sum, nil
}
