package render

import (
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// RewardCurve plots the episodic returns of a training run and saves
// the plot to the image file at path. The image format follows the
// file extension.
func RewardCurve(returns []float64, path string) error {
	if len(returns) == 0 {
		return errors.New("rewardcurve: no returns to plot")
	}

	p := plot.New()
	p.Title.Text = "Training returns"
	p.X.Label.Text = "Episode"
	p.Y.Label.Text = "Return"

	points := make(plotter.XYs, len(returns))
	for i, r := range returns {
		points[i] = plotter.XY{X: float64(i + 1), Y: r}
	}

	line, err := plotter.NewLine(points)
	if err != nil {
		return errors.Wrap(err, "rewardcurve: could not create line")
	}
	p.Add(line)
	p.Add(plotter.NewGrid())

	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "rewardcurve: could not save plot %v", path)
	}
	return nil
}
