// Package cleangrid implements grid-cleaning environments. An agent
// moves over a square grid of cells, some of which are contaminated,
// and is rewarded for cleaning contaminated cells. Grids are generated
// either synthetically or from a satellite image heuristic.
package cleangrid

import (
	"fmt"
	"image"

	env "github.com/sweeprl/sweeper/environment"
	ts "github.com/sweeprl/sweeper/timestep"
	"gonum.org/v1/gonum/mat"
)

// Environmental actions
const (
	Up int = iota
	Down
	Left
	Right
	Clean
	NumActions
)

// Cell labels in observations and overlays
const (
	CellClean        float64 = 0
	CellContaminated float64 = 1
	CellAgent        float64 = 2
)

// Reward scheme and episode horizon
const (
	CleanReward   float64 = 5.0
	StepCost      float64 = -0.001
	BorderPenalty float64 = -0.05
	Horizon       int     = 400
)

// CleanGrid implements the grid-cleaning environment. The observation
// is the flattened grid of cell labels; the agent's own position is
// not part of the observation and appears only in the rendering
// overlay. Once a cell is cleaned it stays clean for the rest of the
// episode.
type CleanGrid struct {
	origin []float64 // cell labels at episode start
	grid   []float64 // working copy mutated by Clean actions
	n      int

	row, col int
	steps    int
	dirty    int

	discount    float64
	currentStep ts.TimeStep

	// Source pixels for satellite-derived grids, nil for synthetic
	// ones. Used only for rendering.
	rgb image.Image
}

// newCleanGrid constructs a CleanGrid over the given cell labels. The
// grid must be square (n*n cells).
func newCleanGrid(grid []float64, n int, discount float64,
	rgb image.Image) (*CleanGrid, ts.TimeStep, error) {
	if len(grid) != n*n {
		return nil, ts.TimeStep{}, fmt.Errorf("cleangrid: grid must be "+
			"square \n\twant(%v cells) \n\thave(%v)", n*n, len(grid))
	}

	origin := make([]float64, len(grid))
	copy(origin, grid)

	c := &CleanGrid{
		origin:   origin,
		n:        n,
		discount: discount,
		rgb:      rgb,
	}

	step, err := c.Reset()
	if err != nil {
		return nil, ts.TimeStep{}, err
	}
	return c, step, nil
}

// Reset restores the origin grid, moves the agent back to the grid
// center, and clears the step counter
func (c *CleanGrid) Reset() (ts.TimeStep, error) {
	c.grid = make([]float64, len(c.origin))
	copy(c.grid, c.origin)

	c.row = c.n / 2
	c.col = c.n / 2
	c.steps = 0

	c.dirty = 0
	for _, cell := range c.grid {
		if cell == CellContaminated {
			c.dirty++
		}
	}

	step := ts.New(ts.First, 0, c.discount, c.observation(), 0)
	c.currentStep = step
	return step, nil
}

// Step takes one environmental step. A successful Clean replaces the
// per-step cost with the cleaning reward; moves that are clamped at
// the border accrue the border penalty on top of the per-step cost.
func (c *CleanGrid) Step(action *mat.VecDense) (ts.TimeStep, bool, error) {
	if action.Len() != 1 {
		return ts.TimeStep{}, false, fmt.Errorf("step: actions must be " +
			"1-dimensional")
	}

	a := int(action.AtVec(0))
	if a < 0 || a >= NumActions {
		return ts.TimeStep{}, false, fmt.Errorf("step: no such action %v", a)
	}

	reward := StepCost
	if a == Clean && c.grid[c.index(c.row, c.col)] == CellContaminated {
		c.grid[c.index(c.row, c.col)] = CellClean
		c.dirty--
		reward = CleanReward
	} else {
		dr, dc := 0, 0
		switch a {
		case Up:
			dr = -1
		case Down:
			dr = 1
		case Left:
			dc = -1
		case Right:
			dc = 1
		}

		newRow := clampInt(c.row+dr, 0, c.n-1)
		newCol := clampInt(c.col+dc, 0, c.n-1)
		if newRow == c.row && newCol == c.col {
			reward += BorderPenalty
		}
		c.row, c.col = newRow, newCol
	}

	c.steps++
	last := c.steps >= Horizon || c.dirty == 0

	stepType := ts.Mid
	discount := c.discount
	if last {
		stepType = ts.Last
		discount = 0
	}

	step := ts.New(stepType, reward, discount, c.observation(),
		c.currentStep.Number+1)
	c.currentStep = step

	return step, last, nil
}

// CurrentTimeStep returns the last TimeStep of the environment
func (c *CleanGrid) CurrentTimeStep() ts.TimeStep {
	return c.currentStep
}

// Size returns the side length of the grid
func (c *CleanGrid) Size() int {
	return c.n
}

// DirtyCount returns the number of cells still contaminated
func (c *CleanGrid) DirtyCount() int {
	return c.dirty
}

// AgentPosition returns the (row, col) coordinates of the agent
func (c *CleanGrid) AgentPosition() (int, int) {
	return c.row, c.col
}

// RGB returns the source pixels of a satellite-derived grid, or nil
// for a synthetic grid
func (c *CleanGrid) RGB() image.Image {
	return c.rgb
}

// Overlay returns a copy of the working grid with the agent's cell
// marked. The overlay is for rendering only and never appears in
// observations.
func (c *CleanGrid) Overlay() []float64 {
	overlay := make([]float64, len(c.grid))
	copy(overlay, c.grid)
	overlay[c.index(c.row, c.col)] = CellAgent
	return overlay
}

func (c *CleanGrid) ActionSpec() env.Spec {
	shape := mat.NewVecDense(1, nil)
	lowerBound := mat.NewVecDense(1, []float64{0})
	upperBound := mat.NewVecDense(1, []float64{float64(NumActions - 1)})

	return env.NewSpec(shape, env.Action, lowerBound, upperBound,
		env.Discrete)
}

func (c *CleanGrid) ObservationSpec() env.Spec {
	cells := c.n * c.n
	shape := mat.NewVecDense(cells, nil)

	lower := make([]float64, cells)
	upper := make([]float64, cells)
	for i := range upper {
		upper[i] = CellContaminated
	}

	return env.NewSpec(shape, env.Observation, mat.NewVecDense(cells, lower),
		mat.NewVecDense(cells, upper), env.Discrete)
}

func (c *CleanGrid) DiscountSpec() env.Spec {
	shape := mat.NewVecDense(1, nil)
	bound := mat.NewVecDense(1, []float64{c.discount})

	return env.NewSpec(shape, env.Discount, bound, bound, env.Continuous)
}

func (c *CleanGrid) String() string {
	str := "CleanGrid | At: (%v, %v)  |  Dirty: %v  |  Bounds: (%d, %d)"
	return fmt.Sprintf(str, c.row, c.col, c.dirty, c.n, c.n)
}

// observation returns the flattened working grid as a new vector
func (c *CleanGrid) observation() *mat.VecDense {
	obs := make([]float64, len(c.grid))
	copy(obs, c.grid)
	return mat.NewVecDense(len(obs), obs)
}

func (c *CleanGrid) index(row, col int) int {
	return row*c.n + col
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
