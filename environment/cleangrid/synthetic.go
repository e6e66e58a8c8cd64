package cleangrid

import (
	"fmt"
	"math/rand"

	ts "github.com/sweeprl/sweeper/timestep"
)

// Default synthetic grid parameters
const (
	DefaultSize int = 6
	DefaultDirt int = 6
)

// NewSynthetic creates a new CleanGrid over a size x size grid with
// dirt contaminated cells placed uniformly at random without
// replacement
func NewSynthetic(size, dirt int, discount float64,
	seed int64) (*CleanGrid, ts.TimeStep, error) {
	if size < 1 {
		return nil, ts.TimeStep{}, fmt.Errorf("newsynthetic: grid size must "+
			"be positive \n\thave(%v)", size)
	}
	if dirt < 0 || dirt > size*size {
		return nil, ts.TimeStep{}, fmt.Errorf("newsynthetic: contaminated "+
			"cell count out of range \n\twant(0 - %v) \n\thave(%v)",
			size*size, dirt)
	}

	rng := rand.New(rand.NewSource(seed))

	grid := make([]float64, size*size)
	for _, cell := range rng.Perm(size * size)[:dirt] {
		grid[cell] = CellContaminated
	}

	return newCleanGrid(grid, size, discount, nil)
}
