// Package cartpole implements the classic cart-pole balancing task with the CartPole-v1
// physical constants, explicit Euler integration and its two-action push-left/push-right
// interface.
package cartpole

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/balance/environment"
	"go.viam.com/balance/logging"
	"go.viam.com/balance/utils"
	"go.viam.com/balance/utils/matrix"
)

// Name is the environment name recorded in datasets.
const Name = "cartpole"

// State component indices.
const (
	X = iota
	XDot
	Theta
	ThetaDot
	StateDim
)

// StateLabels names the state components in index order.
var StateLabels = []string{"x", "x_dot", "theta", "theta_dot"}

// Action indices of the discrete action set.
const (
	PushLeft = iota
	PushRight
)

// Params are the physical and episode parameters of the cart-pole.
type Params struct {
	Gravity   float64 `json:"gravity"`
	MassCart  float64 `json:"mass_cart"`
	MassPole  float64 `json:"mass_pole"`
	// HalfLength is the distance from the pivot to the pole's center of mass.
	HalfLength float64 `json:"half_length"`
	ForceMag   float64 `json:"force_mag"`
	Tau        float64 `json:"tau"`
	// ThetaThreshold and XThreshold terminate the episode when exceeded.
	ThetaThreshold float64 `json:"theta_threshold"`
	XThreshold     float64 `json:"x_threshold"`
	MaxSteps       int     `json:"max_steps"`
	// ResetNoise bounds the uniform draw of every initial state component.
	ResetNoise float64 `json:"reset_noise"`
	// Continuous replaces the two-action set with a force in [-ForceMag, ForceMag].
	Continuous bool   `json:"continuous"`
	Seed       uint64 `json:"seed"`
}

// DefaultParams returns the CartPole-v1 constants.
func DefaultParams() Params {
	return Params{
		Gravity:        9.8,
		MassCart:       1.0,
		MassPole:       0.1,
		HalfLength:     0.5,
		ForceMag:       10.0,
		Tau:            0.02,
		ThetaThreshold: utils.DegToRad(12),
		XThreshold:     2.4,
		MaxSteps:       500,
		ResetNoise:     0.05,
	}
}

// Validate ensures all parameters are physically meaningful.
func (p Params) Validate() error {
	switch {
	case p.MassCart <= 0 || p.MassPole <= 0:
		return errors.New("cartpole masses must be positive")
	case p.HalfLength <= 0:
		return errors.New("cartpole half_length must be positive")
	case p.ForceMag <= 0:
		return errors.New("cartpole force_mag must be positive")
	case p.Tau <= 0:
		return errors.New("cartpole tau must be positive")
	case p.ThetaThreshold <= 0 || p.XThreshold <= 0:
		return errors.New("cartpole thresholds must be positive")
	case p.MaxSteps < 0:
		return errors.New("cartpole max_steps cannot be negative")
	case p.ResetNoise < 0:
		return errors.New("cartpole reset_noise cannot be negative")
	}
	return nil
}

func (p Params) totalMass() float64 {
	return p.MassCart + p.MassPole
}

func (p Params) poleMassLength() float64 {
	return p.MassPole * p.HalfLength
}

// CartPole is a cart-pole environment. It is safe for concurrent use, though episodes are
// inherently sequential.
type CartPole struct {
	params Params
	logger logging.Logger
	src    rand.Source

	mu    sync.Mutex
	state environment.State
	steps int
	done  bool
	reset bool
}

// New returns a cart-pole environment.
func New(params Params, logger logging.Logger) (*CartPole, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &CartPole{
		params: params,
		logger: logger,
		src:    rand.NewPCG(params.Seed, params.Seed^0x9e3779b97f4a7c15),
	}, nil
}

// Name implements environment.Env.
func (cp *CartPole) Name() string {
	return Name
}

// Params returns the parameters the environment was built with.
func (cp *CartPole) Params() Params {
	return cp.params
}

// StateDim implements environment.Env.
func (cp *CartPole) StateDim() int {
	return StateDim
}

// ActionSpace implements environment.Env.
func (cp *CartPole) ActionSpace() environment.ActionSpace {
	if cp.params.Continuous {
		return environment.ActionSpace{Low: -cp.params.ForceMag, High: cp.params.ForceMag}
	}
	return environment.ActionSpace{Discrete: 2}
}

// Reset draws every state component uniformly from [-ResetNoise, ResetNoise].
func (cp *CartPole) Reset(ctx context.Context) (environment.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.state = environment.State(matrix.SampleUniform(StateDim, -cp.params.ResetNoise, cp.params.ResetNoise, cp.src))
	cp.steps = 0
	cp.done = false
	cp.reset = true
	return cp.state.Clone(), nil
}

// ResetTo starts an episode from the given state instead of a random one.
func (cp *CartPole) ResetTo(s environment.State) error {
	if len(s) != StateDim {
		return errors.Errorf("cartpole state must have %d components, got %d", StateDim, len(s))
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.state = s.Clone()
	cp.steps = 0
	cp.done = false
	cp.reset = true
	return nil
}

// InputOf maps an action to the horizontal force in Newtons applied to the cart.
func (cp *CartPole) InputOf(action environment.Action) float64 {
	if cp.params.Continuous {
		return utils.Clamp(action.Value, -cp.params.ForceMag, cp.params.ForceMag)
	}
	if action.Index == PushRight {
		return cp.params.ForceMag
	}
	return -cp.params.ForceMag
}

// Step advances the cart-pole by one tau.
func (cp *CartPole) Step(ctx context.Context, action environment.Action) (environment.Transition, error) {
	if err := ctx.Err(); err != nil {
		return environment.Transition{}, err
	}
	if !cp.params.Continuous && !cp.ActionSpace().Contains(action) {
		return environment.Transition{}, errors.Errorf("invalid cartpole action index %d", action.Index)
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	if !cp.reset {
		return environment.Transition{}, environment.ErrNotReset
	}
	if cp.done {
		return environment.Transition{}, environment.ErrEpisodeDone
	}

	next := Dynamics(cp.params, cp.state, cp.InputOf(action))
	cp.steps++
	terminated := math.Abs(next[X]) > cp.params.XThreshold || math.Abs(next[Theta]) > cp.params.ThetaThreshold
	truncated := !terminated && cp.params.MaxSteps > 0 && cp.steps >= cp.params.MaxSteps

	tr := environment.Transition{
		State:      cp.state,
		Action:     action,
		Next:       next,
		Reward:     1,
		Terminated: terminated,
		Truncated:  truncated,
	}
	cp.state = next
	cp.done = tr.Done()
	if cp.done {
		cp.logger.Debugw("cartpole episode ended", "steps", cp.steps, "terminated", terminated, "state", next)
	}
	return tr, nil
}

// Dynamics returns the state one tau after applying force to the cart in state s.
func Dynamics(p Params, s environment.State, force float64) environment.State {
	x, xDot, theta, thetaDot := s[X], s[XDot], s[Theta], s[ThetaDot]
	cosTheta, sinTheta := math.Cos(theta), math.Sin(theta)

	temp := (force + p.poleMassLength()*utils.Square(thetaDot)*sinTheta) / p.totalMass()
	thetaAcc := (p.Gravity*sinTheta - cosTheta*temp) /
		(p.HalfLength * (4.0/3.0 - p.MassPole*utils.Square(cosTheta)/p.totalMass()))
	xAcc := temp - p.poleMassLength()*thetaAcc*cosTheta/p.totalMass()

	return environment.State{
		x + p.Tau*xDot,
		xDot + p.Tau*xAcc,
		theta + p.Tau*thetaDot,
		thetaDot + p.Tau*thetaAcc,
	}
}

// Linearize hand-assembles the discrete linear model about the upright equilibrium. The input
// is the force on the cart in Newtons.
func (cp *CartPole) Linearize() (environment.LinearSystem, error) {
	return Linearize(cp.params), nil
}

// Linearize returns the Euler discretization, with step tau, of the cart-pole dynamics
// linearized about x = 0, theta = 0.
func Linearize(p Params) environment.LinearSystem {
	m, total, l := p.MassPole, p.totalMass(), p.HalfLength
	denom := l * (4.0/3.0 - m/total)
	thetaTheta := p.Gravity / denom
	thetaForce := -1 / (total * denom)
	xTheta := -m * l * thetaTheta / total
	xForce := 1/total - m*l*thetaForce/total

	continuousA := mat.NewDense(StateDim, StateDim, []float64{
		0, 1, 0, 0,
		0, 0, xTheta, 0,
		0, 0, 0, 1,
		0, 0, thetaTheta, 0,
	})
	continuousB := mat.NewDense(StateDim, 1, []float64{0, xForce, 0, thetaForce})

	a := mat.NewDense(StateDim, StateDim, nil)
	a.Scale(p.Tau, continuousA)
	for i := 0; i < StateDim; i++ {
		a.Set(i, i, a.At(i, i)+1)
	}
	b := mat.NewDense(StateDim, 1, nil)
	b.Scale(p.Tau, continuousB)
	return environment.LinearSystem{A: a, B: b, Dt: p.Tau}
}
