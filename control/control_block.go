package control

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/balance/logging"
	"go.viam.com/balance/utils"
)

// BlockType names a kind of control block.
type BlockType string

// Supported block types.
const (
	BlockEndpoint      BlockType = "endpoint"
	BlockConstant      BlockType = "constant"
	BlockGain          BlockType = "gain"
	BlockSum           BlockType = "sum"
	BlockPID           BlockType = "PID"
	BlockStateFeedback BlockType = "stateFeedback"
	BlockSaturation    BlockType = "saturation"
)

// BlockConfig configuration of a given block.
type BlockConfig struct {
	Name      string             `json:"name"`       // Control Block name
	Type      BlockType          `json:"type"`       // Control Block type
	Attribute utils.AttributeMap `json:"attributes"` // Internal block configuration
	DependsOn []string           `json:"depends_on"` // List of blocks needed for calling Next
}

// Block interface for a control block.
type Block interface {
	// Reset will reset the control block to initial state. Returns an error on failure
	Reset(ctx context.Context) error

	// Next calculate the next output. Takes an array of float64 , a delta time returns True and the output value on success false otherwise
	Next(ctx context.Context, x []*Signal, dt time.Duration) ([]*Signal, bool)

	// UpdateConfig update the configuration of a pre-existing control block returns an error on failure
	UpdateConfig(ctx context.Context, config BlockConfig) error

	// Output returns the most recent valid value, useful for block aggregating signals
	Output(ctx context.Context) []*Signal

	// Config returns the underlying config for a Block
	Config(ctx context.Context) BlockConfig
}

// NewBlock builds a standalone block. Endpoint blocks only exist inside a Loop.
func NewBlock(cfg BlockConfig, logger logging.Logger) (Block, error) {
	if cfg.Type == BlockEndpoint {
		return nil, errors.Errorf("endpoint block %s can only be created by a loop", cfg.Name)
	}
	return createBlock(cfg, logger)
}

func createBlock(cfg BlockConfig, logger logging.Logger) (Block, error) {
	t := cfg.Type
	switch t {
	case BlockEndpoint:
		b, err := newEndpoint(cfg, logger, nil)
		if err != nil {
			return nil, err
		}
		return b, nil
	case BlockSum:
		b, err := newSum(cfg, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	case BlockGain:
		b, err := newGain(cfg, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	case BlockPID:
		b, err := newPID(cfg, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	case BlockConstant:
		b, err := newConstant(cfg, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	case BlockStateFeedback:
		b, err := newStateFeedback(cfg, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	case BlockSaturation:
		b, err := newSaturation(cfg, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	return nil, errors.Errorf("unsupported block type %s", t)
}

func decodeAttributes[T any](cfg BlockConfig) (T, error) {
	attrs, err := utils.TransformAttributeMap[T](cfg.Attribute)
	if err != nil {
		return attrs, errors.Wrapf(err, "invalid attributes for %s block %s", cfg.Type, cfg.Name)
	}
	return attrs, nil
}
