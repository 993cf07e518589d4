package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/balance/environment"
	"go.viam.com/balance/logging"
	"go.viam.com/balance/rollout"
	"go.viam.com/balance/sysid"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "balance.db"), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	t.Cleanup(func() {
		test.That(t, s.Close(), test.ShouldBeNil)
	})
	return s
}

func TestOpen(t *testing.T) {
	_, err := Open(context.Background(), "", logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)

	path := filepath.Join(t.TempDir(), "balance.db")
	s, err := Open(context.Background(), path, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.Close(), test.ShouldBeNil)

	// reopening an existing database keeps the schema
	s, err = Open(context.Background(), path, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.Close(), test.ShouldBeNil)
}

func TestDatasets(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	ds := &sysid.Dataset{
		Env: "cartpole",
		Transitions: []environment.Transition{
			{
				State:  environment.State{0, 0, 0.01, 0},
				Action: environment.Action{Index: 1},
				Next:   environment.State{0, 0.19, 0.01, -0.3},
				Reward: 1,
			},
			{
				State:      environment.State{0, 0.19, 0.01, -0.3},
				Action:     environment.Action{Value: -2.5},
				Next:       environment.State{0.01, 0.0, 0.007, 0.1},
				Reward:     1,
				Terminated: true,
			},
		},
	}
	id, err := s.SaveDataset(ctx, ds)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, id, test.ShouldNotBeEmpty)
	test.That(t, ds.ID, test.ShouldEqual, id)

	loaded, err := s.LoadDataset(ctx, id)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, loaded.ID, test.ShouldEqual, id)
	test.That(t, loaded.Env, test.ShouldEqual, "cartpole")
	test.That(t, cmp.Diff(ds.Transitions, loaded.Transitions), test.ShouldBeEmpty)

	// saving again under the same id replaces the payload
	ds.Transitions = ds.Transitions[:1]
	id2, err := s.SaveDataset(ctx, ds)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, id2, test.ShouldEqual, id)
	loaded, err = s.LoadDataset(ctx, id)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, loaded.Len(), test.ShouldEqual, 1)

	infos, err := s.ListDatasets(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, infos, test.ShouldHaveLength, 1)
	test.That(t, infos[0].ID, test.ShouldEqual, id)
	test.That(t, infos[0].Samples, test.ShouldEqual, 1)

	_, err = s.LoadDataset(ctx, "missing")
	test.That(t, errors.Is(err, ErrNotFound), test.ShouldBeTrue)
}

func TestRuns(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	runs, err := s.ListRuns(ctx, "")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, runs, test.ShouldBeEmpty)

	first := &RunRecord{
		Env:       "cartpole",
		Policy:    "lqr",
		DatasetID: "abc",
		Gain:      [][]float64{{-2.78, -5.32, -46.4, -12.0}},
		Summary:   rollout.Summary{Episodes: 8, MeanLength: 500, MinLength: 500, MaxLength: 500, MeanReturn: 500},
		CreatedAt: time.Date(2001, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	id, err := s.SaveRun(ctx, first)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, id, test.ShouldNotBeEmpty)

	second := &RunRecord{
		Env:     "armpendulum",
		Policy:  "random",
		Summary: rollout.Summary{Episodes: 2, Terminated: 2, MeanLength: 60},
	}
	_, err = s.SaveRun(ctx, second)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, second.CreatedAt.IsZero(), test.ShouldBeFalse)

	runs, err = s.ListRuns(ctx, "")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, runs, test.ShouldHaveLength, 2)
	test.That(t, runs[0].ID, test.ShouldEqual, second.ID)
	test.That(t, runs[0].DatasetID, test.ShouldBeEmpty)
	test.That(t, runs[0].Gain, test.ShouldBeNil)

	runs, err = s.ListRuns(ctx, "cartpole")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, runs, test.ShouldHaveLength, 1)
	test.That(t, runs[0].ID, test.ShouldEqual, id)
	test.That(t, cmp.Equal(runs[0], *first), test.ShouldBeTrue)
}
