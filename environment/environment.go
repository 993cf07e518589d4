// Package environment defines the episodic plant interface shared by the balancing tasks,
// together with the transition records collected from it.
package environment

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/balance/utils/matrix"
)

// ErrEpisodeDone is returned when stepping an environment whose episode already ended.
var ErrEpisodeDone = errors.New("episode is done, reset the environment before stepping")

// ErrNotReset is returned when stepping an environment that was never reset.
var ErrNotReset = errors.New("environment must be reset before stepping")

// State is an observation of the plant. It is never mutated once produced.
type State []float64

// Clone returns a copy of the state.
func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

// IsValid reports whether every component is finite.
func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Vec returns the state as a gonum column vector.
func (s State) Vec() *mat.VecDense {
	return mat.NewVecDense(len(s), s.Clone())
}

// Action is a command applied for one step. Discrete environments read Index, continuous
// ones read Value.
type Action struct {
	Index int     `json:"index"`
	Value float64 `json:"value"`
}

func (a Action) String() string {
	return fmt.Sprintf("{index: %d, value: %.4f}", a.Index, a.Value)
}

// ActionSpace describes the admissible actions. Discrete > 0 means actions are indices in
// [0, Discrete); otherwise actions are continuous values in [Low, High].
type ActionSpace struct {
	Discrete int
	Low      float64
	High     float64
}

// IsDiscrete reports whether the space is a finite action set.
func (as ActionSpace) IsDiscrete() bool {
	return as.Discrete > 0
}

// Sample draws an action uniformly from the space.
func (as ActionSpace) Sample(src rand.Source) Action {
	if as.IsDiscrete() {
		return Action{Index: matrix.SampleNIntegersUniform(1, 0, as.Discrete-1, src)[0]}
	}
	return Action{Value: matrix.SampleUniform(1, as.Low, as.High, src)[0]}
}

// Contains reports whether the action belongs to the space.
func (as ActionSpace) Contains(a Action) bool {
	if as.IsDiscrete() {
		return a.Index >= 0 && a.Index < as.Discrete
	}
	return a.Value >= as.Low && a.Value <= as.High
}

// Transition is one step of experience.
type Transition struct {
	State      State   `json:"state"`
	Action     Action  `json:"action"`
	Next       State   `json:"next"`
	Reward     float64 `json:"reward"`
	Terminated bool    `json:"terminated"`
	Truncated  bool    `json:"truncated"`
}

// Done reports whether the episode ended with this transition.
func (t Transition) Done() bool {
	return t.Terminated || t.Truncated
}

// Env is an episodic plant that can be reset and stepped.
type Env interface {
	// Name identifies the environment in logs and stored datasets.
	Name() string
	// Reset starts a new episode and returns the initial state.
	Reset(ctx context.Context) (State, error)
	// Step applies the action for one control period.
	Step(ctx context.Context, action Action) (Transition, error)
	ActionSpace() ActionSpace
	StateDim() int
}

// Linearizable is implemented by environments that can hand-assemble a discrete linear model
// of themselves about their balancing equilibrium.
type Linearizable interface {
	Linearize() (LinearSystem, error)
	// InputOf maps an action to the scalar input u used by the linear model.
	InputOf(action Action) float64
}

// LinearSystem is the discrete model x[k+1] = A x[k] + B u[k].
type LinearSystem struct {
	A  *mat.Dense
	B  *mat.Dense
	Dt float64
}

// Dims returns the state and input dimensions.
func (ls LinearSystem) Dims() (n, m int) {
	n, _ = ls.A.Dims()
	_, m = ls.B.Dims()
	return n, m
}

// Validate checks that A is square and B conforms with it.
func (ls LinearSystem) Validate() error {
	if ls.A == nil || ls.B == nil {
		return errors.New("linear system requires both A and B")
	}
	r, c := ls.A.Dims()
	if r != c {
		return errors.Errorf("A must be square, got %dx%d", r, c)
	}
	br, _ := ls.B.Dims()
	if br != r {
		return errors.Errorf("B has %d rows, expected %d", br, r)
	}
	return nil
}

// Propagate returns A x + B u.
func (ls LinearSystem) Propagate(x State, u []float64) (State, error) {
	n, m := ls.Dims()
	if len(x) != n {
		return nil, errors.Errorf("invalid state vector of length %d, expected %d", len(x), n)
	}
	if len(u) != m {
		return nil, errors.Errorf("invalid input vector of length %d, expected %d", len(u), m)
	}
	out := mat.NewVecDense(n, nil)
	out.MulVec(ls.A, x.Vec())
	bu := mat.NewVecDense(n, nil)
	bu.MulVec(ls.B, mat.NewVecDense(m, append([]float64(nil), u...)))
	out.AddVec(out, bu)
	return State(out.RawVector().Data), nil
}
