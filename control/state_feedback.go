package control

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/balance/logging"
)

type stateFeedbackAttrs struct {
	Gain     [][]float64 `json:"gain"`
	Setpoint []float64   `json:"setpoint"`
}

// stateFeedback applies u = -K (x - x*) to the full state carried by its input.
type stateFeedback struct {
	mu       sync.Mutex
	cfg      BlockConfig
	k        *mat.Dense
	setpoint []float64
	y        []*Signal
	logger   logging.Logger
}

func newStateFeedback(config BlockConfig, logger logging.Logger) (Block, error) {
	s := &stateFeedback{cfg: config, logger: logger}
	if err := s.reset(); err != nil {
		return nil, err
	}
	return s, nil
}

func (b *stateFeedback) Next(ctx context.Context, x []*Signal, dt time.Duration) ([]*Signal, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(x) != 1 {
		return b.y, false
	}
	u, err := Gain{K: b.k}.Control(x[0].Values(), b.setpoint)
	if err != nil {
		b.logger.Warnw("state feedback input rejected", "block", b.cfg.Name, "error", err)
		return b.y, false
	}
	b.y[0].SetValues(u)
	return b.y, true
}

func (b *stateFeedback) reset() error {
	if !b.cfg.Attribute.Has("gain") {
		return errors.Errorf("state feedback block %s doesn't have a gain field", b.cfg.Name)
	}
	if len(b.cfg.DependsOn) != 1 {
		return errors.Errorf("invalid number of inputs for state feedback block %s expected 1 got %d",
			b.cfg.Name, len(b.cfg.DependsOn))
	}
	attrs, err := decodeAttributes[stateFeedbackAttrs](b.cfg)
	if err != nil {
		return err
	}
	k, err := denseFromRows(attrs.Gain)
	if err != nil {
		return errors.Wrapf(err, "state feedback block %s", b.cfg.Name)
	}
	r, c := k.Dims()
	if attrs.Setpoint != nil && len(attrs.Setpoint) != c {
		return errors.Errorf("state feedback block %s setpoint has %d values, gain has %d columns",
			b.cfg.Name, len(attrs.Setpoint), c)
	}
	b.k = k
	b.setpoint = attrs.Setpoint
	b.y = make([]*Signal, 1)
	b.y[0] = makeSignal(b.cfg.Name, b.cfg.Type, r)
	return nil
}

func (b *stateFeedback) Reset(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reset()
}

func (b *stateFeedback) UpdateConfig(ctx context.Context, config BlockConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cfg = config
	return b.reset()
}

func (b *stateFeedback) Output(ctx context.Context) []*Signal {
	return b.y
}

func (b *stateFeedback) Config(ctx context.Context) BlockConfig {
	return b.cfg
}

func denseFromRows(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, errors.New("gain matrix is empty")
	}
	c := len(rows[0])
	data := make([]float64, 0, len(rows)*c)
	for i, row := range rows {
		if len(row) != c {
			return nil, errors.Errorf("gain row %d has %d columns, expected %d", i, len(row), c)
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), c, data), nil
}
