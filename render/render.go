// Package render draws grid frames and reward curves of training runs
package render

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
	"github.com/pkg/errors"
	xdraw "golang.org/x/image/draw"

	"github.com/sweeprl/sweeper/agent"
	"github.com/sweeprl/sweeper/environment/cleangrid"
)

// DefaultCellSize is the default side length of a rendered grid cell
// in pixels
const DefaultCellSize int = 12

// Frame draws the current state of a CleanGrid. Contaminated cells are
// drawn brown, clean cells white, and the agent's cell blue. When the
// grid was derived from a satellite image, the image is drawn
// underneath the cell overlay.
func Frame(grid *cleangrid.CleanGrid, cellSize int) *gg.Context {
	n := grid.Size()
	dc := gg.NewContext(n*cellSize, n*cellSize)

	dc.SetRGB(1, 1, 1)
	dc.Clear()

	if rgb := grid.RGB(); rgb != nil {
		scaled := image.NewRGBA(image.Rect(0, 0, n*cellSize, n*cellSize))
		xdraw.NearestNeighbor.Scale(scaled, scaled.Bounds(), rgb,
			rgb.Bounds(), xdraw.Over, nil)
		dc.DrawImage(scaled, 0, 0)
	}

	cells := grid.Overlay()
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			x := float64(col * cellSize)
			y := float64(row * cellSize)

			switch cells[row*n+col] {
			case cleangrid.CellContaminated:
				dc.SetRGBA(0.55, 0.35, 0.2, 0.8)
				dc.DrawRectangle(x, y, float64(cellSize), float64(cellSize))
				dc.Fill()
			case cleangrid.CellAgent:
				dc.SetRGB(0.2, 0.4, 0.85)
				dc.DrawRectangle(x, y, float64(cellSize), float64(cellSize))
				dc.Fill()
			}
		}
	}

	// Cell borders
	dc.SetRGBA(0.5, 0.5, 0.5, 0.4)
	dc.SetLineWidth(1.0)
	for i := 0; i <= n; i++ {
		offset := float64(i * cellSize)
		dc.DrawLine(offset, 0, offset, float64(n*cellSize))
		dc.DrawLine(0, offset, float64(n*cellSize), offset)
	}
	dc.Stroke()

	return dc
}

// Rollout runs a single greedy episode of the policy on the grid,
// saving one PNG frame per step into dir. The episodic return is
// returned once the episode finishes.
func Rollout(grid *cleangrid.CleanGrid, policy agent.Policy, dir string,
	cellSize int) (float64, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, errors.Wrapf(err, "rollout: could not create frame "+
			"directory %v", dir)
	}

	policy.Eval()

	step, err := grid.Reset()
	if err != nil {
		return 0, errors.Wrap(err, "rollout: could not reset environment")
	}
	if err := saveFrame(grid, dir, 0, cellSize); err != nil {
		return 0, err
	}

	var episodeReturn float64
	for !step.Last() {
		action := policy.SelectAction(step)
		step, _, err = grid.Step(action)
		if err != nil {
			return episodeReturn, errors.Wrap(err, "rollout: could not "+
				"step environment")
		}
		episodeReturn += step.Reward

		if err := saveFrame(grid, dir, step.Number, cellSize); err != nil {
			return episodeReturn, err
		}
	}

	return episodeReturn, nil
}

// saveFrame draws and saves a single frame of the rollout
func saveFrame(grid *cleangrid.CleanGrid, dir string, step,
	cellSize int) error {
	dc := Frame(grid, cellSize)
	path := filepath.Join(dir, fmt.Sprintf("step_%04d.png", step))
	if err := dc.SavePNG(path); err != nil {
		return errors.Wrapf(err, "rollout: could not save frame %v", path)
	}
	return nil
}
