// Package tracker implements Trackers, which track and save data in an
// experiment
package tracker

import (
	ts "github.com/sweeprl/sweeper/timestep"
)

// Tracker keeps track of experiment data and saves the data after the
// experiment has finished
type Tracker interface {
	Track(t ts.TimeStep)
	Save() error
}
