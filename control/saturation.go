package control

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/balance/logging"
	"go.viam.com/balance/utils"
)

type saturationAttrs struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

type saturation struct {
	mu     sync.Mutex
	cfg    BlockConfig
	lower  float64
	upper  float64
	y      []*Signal
	logger logging.Logger
}

func newSaturation(config BlockConfig, logger logging.Logger) (Block, error) {
	s := &saturation{cfg: config, logger: logger}
	if err := s.reset(); err != nil {
		return nil, err
	}
	return s, nil
}

// Next clamps each component of its input to [lower, upper].
func (b *saturation) Next(ctx context.Context, x []*Signal, dt time.Duration) ([]*Signal, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(x) != 1 {
		return b.y, false
	}
	vals := x[0].Values()
	for i, v := range vals {
		vals[i] = utils.Clamp(v, b.lower, b.upper)
	}
	b.y[0].SetValues(vals)
	return b.y, true
}

func (b *saturation) reset() error {
	if !b.cfg.Attribute.Has("lower") || !b.cfg.Attribute.Has("upper") {
		return errors.Errorf("saturation block %s needs lower and upper fields", b.cfg.Name)
	}
	if len(b.cfg.DependsOn) != 1 {
		return errors.Errorf("invalid number of inputs for saturation block %s expected 1 got %d",
			b.cfg.Name, len(b.cfg.DependsOn))
	}
	attrs, err := decodeAttributes[saturationAttrs](b.cfg)
	if err != nil {
		return err
	}
	if attrs.Lower > attrs.Upper {
		return errors.Errorf("saturation block %s lower %f above upper %f", b.cfg.Name, attrs.Lower, attrs.Upper)
	}
	b.lower = attrs.Lower
	b.upper = attrs.Upper
	b.y = make([]*Signal, 1)
	b.y[0] = makeSignal(b.cfg.Name, b.cfg.Type, 1)
	return nil
}

func (b *saturation) Reset(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reset()
}

func (b *saturation) UpdateConfig(ctx context.Context, config BlockConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cfg = config
	return b.reset()
}

func (b *saturation) Output(ctx context.Context) []*Signal {
	return b.y
}

func (b *saturation) Config(ctx context.Context) BlockConfig {
	return b.cfg
}
