package sysid

import (
	"math"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"go.viam.com/balance/environment"
)

// ErrRankDeficient is returned when the regressors do not determine a unique fit.
var ErrRankDeficient = errors.New("regression design matrix is rank deficient")

// maxCondition bounds the condition number of the design matrix.
const maxCondition = 1e12

// LinearModel predicts selected components of the next state from the current state and a
// scalar input. Row i of Coefficients holds the state coefficients followed by the input
// coefficient for output Outputs[i].
type LinearModel struct {
	Env          string      `json:"env"`
	StateDim     int         `json:"state_dim"`
	Outputs      []int       `json:"outputs"`
	Coefficients [][]float64 `json:"coefficients"`
	Intercepts   []float64   `json:"intercepts"`
	RSquared     []float64   `json:"r_squared"`
	Samples      int         `json:"samples"`
}

// FitLinear fits, independently for every output index, an ordinary least squares
// regression with intercept of Next[output] on (State, inputOf(Action)).
func FitLinear(ds *Dataset, outputs []int, inputOf func(environment.Action) float64) (*LinearModel, error) {
	if ds.Len() == 0 {
		return nil, errors.New("cannot fit a model on an empty dataset")
	}
	if len(outputs) == 0 {
		return nil, errors.New("no outputs selected")
	}
	n := len(ds.Transitions[0].State)
	for _, o := range outputs {
		if o < 0 || o >= n {
			return nil, errors.Errorf("output index %d out of range for a %d dimensional state", o, n)
		}
	}
	if dups := lo.FindDuplicates(outputs); len(dups) > 0 {
		return nil, errors.Errorf("outputs %v selected more than once", dups)
	}
	features := n + 2
	if ds.Len() <= features {
		return nil, errors.Errorf("need more than %d samples to fit %d coefficients, got %d", features, features, ds.Len())
	}

	x := mat.NewDense(ds.Len(), features, nil)
	for i, tr := range ds.Transitions {
		if len(tr.State) != n || len(tr.Next) != n {
			return nil, errors.Errorf("transition %d has inconsistent state dimensions", i)
		}
		for j, v := range tr.State {
			x.Set(i, j, v)
		}
		x.Set(i, n, inputOf(tr.Action))
		x.Set(i, n+1, 1)
	}
	var qr mat.QR
	qr.Factorize(x)
	if cond := qr.Cond(); math.IsInf(cond, 1) || cond > maxCondition {
		return nil, errors.Wrapf(ErrRankDeficient, "condition number %g", cond)
	}

	model := &LinearModel{
		Env:      ds.Env,
		StateDim: n,
		Outputs:  append([]int(nil), outputs...),
		Samples:  ds.Len(),
	}
	for _, o := range outputs {
		y := mat.NewVecDense(ds.Len(), lo.Map(ds.Transitions, func(tr environment.Transition, _ int) float64 {
			return tr.Next[o]
		}))
		var beta mat.VecDense
		if err := qr.SolveVecTo(&beta, false, y); err != nil {
			return nil, errors.Wrapf(ErrRankDeficient, "output %d: %v", o, err)
		}
		var pred mat.VecDense
		pred.MulVec(x, &beta)

		coef := make([]float64, n+1)
		for j := range coef {
			coef[j] = beta.AtVec(j)
		}
		model.Coefficients = append(model.Coefficients, coef)
		model.Intercepts = append(model.Intercepts, beta.AtVec(n+1))
		model.RSquared = append(model.RSquared, stat.RSquaredFrom(pred.RawVector().Data, y.RawVector().Data, nil))
	}
	return model, nil
}

// Predict returns the predicted outputs for state s and input u.
func (m *LinearModel) Predict(s environment.State, u float64) ([]float64, error) {
	if len(s) != m.StateDim {
		return nil, errors.Errorf("invalid state vector of length %d, expected %d", len(s), m.StateDim)
	}
	out := make([]float64, len(m.Outputs))
	for i, coef := range m.Coefficients {
		v := m.Intercepts[i] + coef[m.StateDim]*u
		for j, sv := range s {
			v += coef[j] * sv
		}
		out[i] = v
	}
	return out, nil
}

// System assembles the discrete model x' = A x + B u. Every state component must have been
// fit. Intercepts are dropped, so the model is only meaningful about an equilibrium.
func (m *LinearModel) System(dt float64) (environment.LinearSystem, error) {
	a := mat.NewDense(m.StateDim, m.StateDim, nil)
	b := mat.NewDense(m.StateDim, 1, nil)
	seen := make([]bool, m.StateDim)
	for i, o := range m.Outputs {
		seen[o] = true
		a.SetRow(o, m.Coefficients[i][:m.StateDim])
		b.Set(o, 0, m.Coefficients[i][m.StateDim])
	}
	for o, ok := range seen {
		if !ok {
			return environment.LinearSystem{}, errors.Errorf("state component %d was not fit", o)
		}
	}
	return environment.LinearSystem{A: a, B: b, Dt: dt}, nil
}
