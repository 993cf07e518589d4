// Package rollout runs policies against environments and summarizes the episodes.
package rollout

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/balance/control"
	"go.viam.com/balance/environment"
	"go.viam.com/balance/utils"
)

// Policy picks the action to apply in a state.
type Policy interface {
	Act(ctx context.Context, s environment.State) (environment.Action, error)
}

// PolicyFunc adapts a function to a Policy.
type PolicyFunc func(ctx context.Context, s environment.State) (environment.Action, error)

// Act implements Policy.
func (f PolicyFunc) Act(ctx context.Context, s environment.State) (environment.Action, error) {
	return f(ctx, s)
}

// RandomPolicy draws actions uniformly from an action space, ignoring the state.
type RandomPolicy struct {
	space environment.ActionSpace
	mu    sync.Mutex
	src   rand.Source
}

// NewRandomPolicy returns a random policy with a seeded source.
func NewRandomPolicy(space environment.ActionSpace, seed uint64) *RandomPolicy {
	return &RandomPolicy{space: space, src: rand.NewPCG(seed, ^seed)}
}

// Act implements Policy.
func (p *RandomPolicy) Act(ctx context.Context, s environment.State) (environment.Action, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.space.Sample(p.src), nil
}

// LQRPolicy applies a linear state feedback gain. In a continuous action space the
// feedback is the action value, clipped to the space. In a two action space the sign of
// the feedback picks the action: index 1 when it is positive, index 0 otherwise.
type LQRPolicy struct {
	gain     control.Gain
	setpoint environment.State
	space    environment.ActionSpace
}

// NewLQRPolicy returns a policy driving the state to setpoint, the origin when nil.
func NewLQRPolicy(gain control.Gain, setpoint environment.State, space environment.ActionSpace) (*LQRPolicy, error) {
	if gain.K == nil {
		return nil, errors.New("lqr policy needs a gain")
	}
	r, c := gain.K.Dims()
	if r != 1 {
		return nil, errors.Errorf("lqr policy needs a single input gain, got %d rows", r)
	}
	if setpoint != nil && len(setpoint) != c {
		return nil, errors.Errorf("setpoint has %d components, gain has %d columns", len(setpoint), c)
	}
	if space.IsDiscrete() && space.Discrete != 2 {
		return nil, errors.Errorf("lqr policy maps onto two actions, action space has %d", space.Discrete)
	}
	return &LQRPolicy{gain: gain, setpoint: setpoint, space: space}, nil
}

// Act implements Policy.
func (p *LQRPolicy) Act(ctx context.Context, s environment.State) (environment.Action, error) {
	out, err := p.gain.Control(s, p.setpoint)
	if err != nil {
		return environment.Action{}, err
	}
	u := out[0]
	if p.space.IsDiscrete() {
		if u > 0 {
			return environment.Action{Index: 1, Value: u}, nil
		}
		return environment.Action{Index: 0, Value: u}, nil
	}
	return environment.Action{Value: utils.Clamp(u, p.space.Low, p.space.High)}, nil
}
