package control

import (
	"context"
	"testing"
	"time"

	"go.viam.com/test"

	"go.viam.com/balance/logging"
	"go.viam.com/balance/utils"
)

func TestStateFeedbackConfig(t *testing.T) {
	logger := logging.NewTestLogger(t)
	for _, c := range []struct {
		conf BlockConfig
		err  string
	}{
		{
			BlockConfig{
				Name:      "K",
				Type:      BlockStateFeedback,
				Attribute: utils.AttributeMap{"gain": [][]float64{{1, 2, 3, 4}}},
				DependsOn: []string{"plant"},
			},
			"",
		},
		{
			BlockConfig{
				Name:      "K",
				Type:      BlockStateFeedback,
				Attribute: utils.AttributeMap{},
				DependsOn: []string{"plant"},
			},
			"state feedback block K doesn't have a gain field",
		},
		{
			BlockConfig{
				Name:      "K",
				Type:      BlockStateFeedback,
				Attribute: utils.AttributeMap{"gain": [][]float64{{1, 2}, {3}}},
				DependsOn: []string{"plant"},
			},
			"state feedback block K: gain row 1 has 1 columns, expected 2",
		},
		{
			BlockConfig{
				Name:      "K",
				Type:      BlockStateFeedback,
				Attribute: utils.AttributeMap{"gain": [][]float64{{1, 2}}, "setpoint": []float64{0}},
				DependsOn: []string{"plant"},
			},
			"state feedback block K setpoint has 1 values, gain has 2 columns",
		},
	} {
		_, err := newStateFeedback(c.conf, logger)
		if c.err == "" {
			test.That(t, err, test.ShouldBeNil)
		} else {
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldResemble, c.err)
		}
	}
}

func TestStateFeedbackNext(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	b, err := newStateFeedback(BlockConfig{
		Name: "K",
		Type: BlockStateFeedback,
		Attribute: utils.AttributeMap{
			"gain":     []interface{}{[]interface{}{1.0, 2.0}, []interface{}{0.0, -1.0}},
			"setpoint": []interface{}{1.0, 0.0},
		},
		DependsOn: []string{"plant"},
	}, logger)
	test.That(t, err, test.ShouldBeNil)

	out, ok := b.Next(ctx, []*Signal{signalOf("plant", 2, 3)}, time.Millisecond)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, out[0].Values(), test.ShouldResemble, []float64{-7, 3})

	_, ok = b.Next(ctx, []*Signal{signalOf("plant", 2, 3, 4)}, time.Millisecond)
	test.That(t, ok, test.ShouldBeFalse)
}

func TestSaturationNext(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	_, err := newSaturation(BlockConfig{
		Name:      "Sat",
		Type:      BlockSaturation,
		Attribute: utils.AttributeMap{"lower": 1.0, "upper": -1.0},
		DependsOn: []string{"u"},
	}, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "lower 1.000000 above upper -1.000000")

	b, err := newSaturation(BlockConfig{
		Name:      "Sat",
		Type:      BlockSaturation,
		Attribute: utils.AttributeMap{"lower": -5.0, "upper": 5.0},
		DependsOn: []string{"u"},
	}, logger)
	test.That(t, err, test.ShouldBeNil)
	out, ok := b.Next(ctx, []*Signal{signalOf("u", -12, 3, 9)}, time.Millisecond)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, out[0].Values(), test.ShouldResemble, []float64{-5, 3, 5})
}
