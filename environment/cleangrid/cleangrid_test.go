package cleangrid

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func action(a int) *mat.VecDense {
	return mat.NewVecDense(1, []float64{float64(a)})
}

func TestSyntheticPlacesDirtWithoutReplacement(t *testing.T) {
	grid, step, err := NewSynthetic(6, 6, 0.99, 42)
	if err != nil {
		t.Fatal(err)
	}

	if grid.DirtyCount() != 6 {
		t.Errorf("expected 6 contaminated cells, got %v", grid.DirtyCount())
	}

	dirty := 0
	for i := 0; i < step.Observation.Len(); i++ {
		switch step.Observation.AtVec(i) {
		case CellContaminated:
			dirty++
		case CellClean:
		default:
			t.Errorf("cell %v has illegal label %v", i,
				step.Observation.AtVec(i))
		}
	}
	if dirty != 6 {
		t.Errorf("observation holds %v contaminated cells, want 6", dirty)
	}

	if !step.First() {
		t.Error("first timestep of an episode should have StepType First")
	}

	row, col := grid.AgentPosition()
	if row != 3 || col != 3 {
		t.Errorf("agent should start at grid center (3, 3), got (%v, %v)",
			row, col)
	}
}

func TestObservationExcludesAgent(t *testing.T) {
	grid, step, err := NewSynthetic(5, 3, 0.99, 14)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < step.Observation.Len(); i++ {
		if step.Observation.AtVec(i) == CellAgent {
			t.Fatalf("agent label leaked into observation at cell %v", i)
		}
	}

	overlay := grid.Overlay()
	row, col := grid.AgentPosition()
	if overlay[row*grid.Size()+col] != CellAgent {
		t.Error("overlay should mark the agent's cell")
	}
}

func TestStepCostAndBorderPenalty(t *testing.T) {
	// A 3x3 grid with a single contaminated corner cell. The agent
	// starts at the center (1, 1).
	cells := make([]float64, 9)
	cells[0] = CellContaminated
	grid, _, err := newCleanGrid(cells, 3, 0.99, nil)
	if err != nil {
		t.Fatal(err)
	}

	// Moving within the grid costs the per-step cost only
	step, last, err := grid.Step(action(Up))
	if err != nil {
		t.Fatal(err)
	}
	if last {
		t.Fatal("episode should not end on a plain move")
	}
	if step.Reward != StepCost {
		t.Errorf("move reward: want %v, have %v", StepCost, step.Reward)
	}

	// Moving off the border clamps the position and adds the penalty
	step, _, err = grid.Step(action(Up))
	if err != nil {
		t.Fatal(err)
	}
	want := StepCost + BorderPenalty
	if math.Abs(step.Reward-want) > 1e-12 {
		t.Errorf("border move reward: want %v, have %v", want, step.Reward)
	}
	if row, _ := grid.AgentPosition(); row != 0 {
		t.Errorf("agent should stay clamped at row 0, got row %v", row)
	}
}

func TestCleanRewardAndTermination(t *testing.T) {
	cells := make([]float64, 9)
	cells[4] = CellContaminated // grid center, where the agent starts
	grid, _, err := newCleanGrid(cells, 3, 0.99, nil)
	if err != nil {
		t.Fatal(err)
	}

	step, last, err := grid.Step(action(Clean))
	if err != nil {
		t.Fatal(err)
	}
	if step.Reward != CleanReward {
		t.Errorf("clean reward: want %v, have %v", CleanReward, step.Reward)
	}
	if !last || !step.Last() {
		t.Error("cleaning the last cell should end the episode")
	}
	if step.Discount != 0 {
		t.Errorf("terminal discount: want 0, have %v", step.Discount)
	}
	if grid.DirtyCount() != 0 {
		t.Errorf("no cells should stay contaminated, have %v",
			grid.DirtyCount())
	}
}

func TestCleanOnCleanCellIsAFailedMove(t *testing.T) {
	cells := make([]float64, 9)
	cells[0] = CellContaminated
	grid, _, err := newCleanGrid(cells, 3, 0.99, nil)
	if err != nil {
		t.Fatal(err)
	}

	// Cleaning a clean cell is a failed move: the agent stays in place
	// and accrues the border penalty on top of the per-step cost
	step, _, err := grid.Step(action(Clean))
	if err != nil {
		t.Fatal(err)
	}
	want := StepCost + BorderPenalty
	if math.Abs(step.Reward-want) > 1e-12 {
		t.Errorf("clean on clean cell: want %v, have %v", want, step.Reward)
	}
	if row, col := grid.AgentPosition(); row != 1 || col != 1 {
		t.Errorf("agent should not move, got (%v, %v)", row, col)
	}
	if grid.DirtyCount() != 1 {
		t.Error("the contaminated cell should stay contaminated")
	}
}

func TestHorizonTruncatesEpisode(t *testing.T) {
	cells := make([]float64, 9)
	cells[0] = CellContaminated
	grid, _, err := newCleanGrid(cells, 3, 0.99, nil)
	if err != nil {
		t.Fatal(err)
	}

	var step = grid.CurrentTimeStep()
	var last bool
	for i := 0; i < Horizon; i++ {
		step, last, err = grid.Step(action(Clean))
		if err != nil {
			t.Fatal(err)
		}
	}

	if !last || !step.Last() {
		t.Errorf("episode should end after %v steps", Horizon)
	}
	if step.Number != Horizon {
		t.Errorf("final timestep number: want %v, have %v", Horizon,
			step.Number)
	}
}

func TestResetRestoresOriginGrid(t *testing.T) {
	cells := make([]float64, 9)
	cells[4] = CellContaminated
	cells[0] = CellContaminated
	grid, _, err := newCleanGrid(cells, 3, 0.99, nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := grid.Step(action(Clean)); err != nil {
		t.Fatal(err)
	}
	if grid.DirtyCount() != 1 {
		t.Fatalf("one cell should have been cleaned, dirty=%v",
			grid.DirtyCount())
	}

	step, err := grid.Reset()
	if err != nil {
		t.Fatal(err)
	}
	if grid.DirtyCount() != 2 {
		t.Errorf("reset should restore contamination, dirty=%v",
			grid.DirtyCount())
	}
	if !step.First() || step.Number != 0 {
		t.Error("reset should return the first timestep of a new episode")
	}
}

func TestStepRejectsIllegalActions(t *testing.T) {
	grid, _, err := NewSynthetic(4, 2, 0.99, 3)
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := grid.Step(action(NumActions)); err == nil {
		t.Error("out of range action should be rejected")
	}
	if _, _, err := grid.Step(action(-1)); err == nil {
		t.Error("negative action should be rejected")
	}
	if _, _, err := grid.Step(mat.NewVecDense(2, nil)); err == nil {
		t.Error("multi-dimensional action should be rejected")
	}
}

func TestActionSpec(t *testing.T) {
	grid, _, err := NewSynthetic(4, 2, 0.99, 3)
	if err != nil {
		t.Fatal(err)
	}

	spec := grid.ActionSpec()
	if spec.LowerBound.AtVec(0) != 0 {
		t.Error("actions should be enumerated from 0")
	}
	if int(spec.UpperBound.AtVec(0)) != NumActions-1 {
		t.Errorf("action upper bound: want %v, have %v", NumActions-1,
			int(spec.UpperBound.AtVec(0)))
	}

	obsSpec := grid.ObservationSpec()
	if obsSpec.Shape.Len() != 16 {
		t.Errorf("observation size: want 16, have %v", obsSpec.Shape.Len())
	}
}
