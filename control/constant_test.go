package control

import (
	"context"
	"testing"
	"time"

	"go.viam.com/test"

	"go.viam.com/balance/logging"
	"go.viam.com/balance/utils"
)

func TestConstantConfig(t *testing.T) {
	logger := logging.NewTestLogger(t)
	for _, c := range []struct {
		conf BlockConfig
		err  string
	}{
		{
			BlockConfig{
				Name: "Constant1",
				Type: BlockConstant,
				Attribute: utils.AttributeMap{
					"constant_val": 1.89345,
				},
				DependsOn: []string{},
			},
			"",
		},
		{
			BlockConfig{
				Name: "Constant1",
				Type: BlockConstant,
				Attribute: utils.AttributeMap{
					"constant_S": 1.89345,
				},
				DependsOn: []string{},
			},
			"constant block Constant1 doesn't have a constant_val field",
		},
		{
			BlockConfig{
				Name: "Constant1",
				Type: BlockConstant,
				Attribute: utils.AttributeMap{
					"constant_val": 1.89345,
				},
				DependsOn: []string{"A", "B"},
			},
			"invalid number of inputs for constant block Constant1 expected 0 got 2",
		},
	} {
		b, err := newConstant(c.conf, logger)
		if c.err == "" {
			test.That(t, err, test.ShouldBeNil)
			test.That(t, len(b.(*constant).y), test.ShouldEqual, 1)
		} else {
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldResemble, c.err)
		}
	}
}

func TestConstantNext(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	c := BlockConfig{
		Name: "Constant1",
		Type: BlockConstant,
		Attribute: utils.AttributeMap{
			"constant_val": 1.89345,
		},
	}
	s, err := newConstant(c, logger)
	test.That(t, err, test.ShouldBeNil)

	out, ok := s.Next(ctx, []*Signal{}, time.Millisecond)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, out[0].GetSignalValueAt(0), test.ShouldEqual, 1.89345)

	c.Attribute = utils.AttributeMap{"constant_vals": []interface{}{0.0, 0.0, 0.1, 0}}
	test.That(t, s.UpdateConfig(ctx, c), test.ShouldBeNil)
	out, ok = s.Next(ctx, nil, time.Millisecond)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, out[0].Values(), test.ShouldResemble, []float64{0, 0, 0.1, 0})
}
