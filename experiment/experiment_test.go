package experiment

import (
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/sweeprl/sweeper/environment/cleangrid"
	"github.com/sweeprl/sweeper/experiment/tracker"
	ts "github.com/sweeprl/sweeper/timestep"
)

// upAgent always moves up and never learns
type upAgent struct {
	eval     bool
	observed int
}

func (u *upAgent) Step() error { return nil }

func (u *upAgent) Observe(action mat.Vector, t ts.TimeStep) error {
	u.observed++
	return nil
}

func (u *upAgent) ObserveFirst(ts.TimeStep) error { return nil }

func (u *upAgent) EndEpisode() {}

func (u *upAgent) SelectAction(t ts.TimeStep) *mat.VecDense {
	return mat.NewVecDense(1, []float64{float64(cleangrid.Up)})
}

func (u *upAgent) Eval() { u.eval = true }

func (u *upAgent) Train() { u.eval = false }

func (u *upAgent) IsEval() bool { return u.eval }

func TestOnlineRunsAllEpisodes(t *testing.T) {
	grid, _, err := cleangrid.NewSynthetic(3, 2, 0.99, 42)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "training_log.csv")
	returns, err := tracker.NewCSVReturn(path)
	if err != nil {
		t.Fatal(err)
	}

	agent := &upAgent{}
	exp := NewOnline(grid, agent, 2, returns)
	if err := exp.Run(); err != nil {
		t.Fatal(err)
	}
	if err := exp.Save(); err != nil {
		t.Fatal(err)
	}

	// An agent that never cleans runs to the horizon in each episode
	if len(returns.Returns()) != 2 {
		t.Fatalf("want 2 tracked episodes, have %v", len(returns.Returns()))
	}
	if agent.observed != 2*cleangrid.Horizon {
		t.Errorf("agent should observe every step: want %v, have %v",
			2*cleangrid.Horizon, agent.observed)
	}
	for _, r := range returns.Returns() {
		if r >= 0 {
			t.Errorf("an agent that only walks into the border should "+
				"accrue negative return, have %v", r)
		}
	}
}
