package control

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/balance/logging"
)

type sumOperand rune

const (
	addition    sumOperand = '+'
	subtraction sumOperand = '-'
)

type sum struct {
	mu        sync.Mutex
	cfg       BlockConfig
	y         []*Signal
	operation map[string]sumOperand
	logger    logging.Logger
}

func newSum(config BlockConfig, logger logging.Logger) (Block, error) {
	s := &sum{cfg: config, logger: logger}
	if err := s.reset(); err != nil {
		return nil, err
	}
	return s, nil
}

// Next adds or subtracts its inputs component wise. All inputs must share a dimension.
func (b *sum) Next(ctx context.Context, x []*Signal, dt time.Duration) ([]*Signal, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(x) != len(b.operation) {
		return b.y, false
	}
	var y []float64
	for i := range x {
		op, ok := b.operation[x[i].name]
		if !ok {
			return b.y, false
		}
		vals := x[i].Values()
		if y == nil {
			y = make([]float64, len(vals))
		}
		if len(vals) != len(y) {
			b.logger.Warnw("sum inputs have mismatched dimensions", "block", b.cfg.Name, "input", x[i].name)
			return b.y, false
		}
		for j, v := range vals {
			switch op {
			case addition:
				y[j] += v
			case subtraction:
				y[j] -= v
			default:
				return b.y, false
			}
		}
	}
	b.y[0].SetValues(y)
	return b.y, true
}

func (b *sum) reset() error {
	if !b.cfg.Attribute.Has("sum_string") {
		return errors.Errorf("sum block %s doesn't have a sum_string", b.cfg.Name)
	}
	sumString := b.cfg.Attribute.String("sum_string")
	if len(b.cfg.DependsOn) != len(sumString) {
		return errors.Errorf("invalid number of inputs for sum block %s expected %d got %d",
			b.cfg.Name, len(sumString), len(b.cfg.DependsOn))
	}
	b.operation = make(map[string]sumOperand)
	for idx, c := range sumString {
		if c != '+' && c != '-' {
			return errors.Errorf("expected +/- for sum block %s got %c", b.cfg.Name, c)
		}
		b.operation[b.cfg.DependsOn[idx]] = sumOperand(c)
	}
	b.y = make([]*Signal, 1)
	b.y[0] = makeSignal(b.cfg.Name, b.cfg.Type, 1)
	return nil
}

func (b *sum) Reset(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reset()
}

func (b *sum) UpdateConfig(ctx context.Context, config BlockConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cfg = config
	return b.reset()
}

func (b *sum) Output(ctx context.Context) []*Signal {
	return b.y
}

func (b *sum) Config(ctx context.Context) BlockConfig {
	return b.cfg
}
