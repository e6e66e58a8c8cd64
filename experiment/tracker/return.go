package tracker

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/pkg/errors"
	ts "github.com/sweeprl/sweeper/timestep"
)

// CSVReturn tracks the episodic return in an experiment and records
// one CSV row per finished episode. When an environment returns a
// TimeStep, this Tracker extracts the reward and accumulates the
// return for the episode, writing "episode,reward" rows.
//
// The log file is opened in append mode so that returns from
// successive runs accumulate in a single file. The header row is only
// written when the file is created, and episode numbering continues
// from the rows already present so that every row carries a unique
// episode index.
//
// Note: An episode must finish for this Tracker to record its return.
// If the last episode in an experiment does not finish, that episode's
// return is not written.
type CSVReturn struct {
	lastTimeStep   int
	currentReturn  float64
	episode        int
	episodeReturns []float64

	file *os.File
	w    *csv.Writer
}

// NewCSVReturn creates and returns a new *CSVReturn tracking episodic
// returns in the CSV file at filename
func NewCSVReturn(filename string) (*CSVReturn, error) {
	// Episode numbering continues from the rows an earlier run left in
	// the log
	past, err := os.ReadFile(filename)
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "newcsvreturn: could not read log "+
			"file %v", filename)
	}

	episode := 0
	if len(past) > 0 {
		rows, err := csv.NewReader(bytes.NewReader(past)).ReadAll()
		if err != nil {
			return nil, errors.Wrapf(err, "newcsvreturn: could not parse "+
				"log file %v", filename)
		}
		episode = len(rows) - 1 // excluding the header row
	}

	file, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY,
		0644)
	if err != nil {
		return nil, errors.Wrapf(err, "newcsvreturn: could not open log "+
			"file %v", filename)
	}

	w := csv.NewWriter(file)
	if len(past) == 0 {
		if err := w.Write([]string{"episode", "reward"}); err != nil {
			file.Close()
			return nil, errors.Wrap(err, "newcsvreturn: could not write "+
				"header")
		}
		w.Flush()
	}

	return &CSVReturn{
		lastTimeStep: -1,
		episode:      episode,
		file:         file,
		w:            w,
	}, nil
}

// Track tracks the rewards seen on a timestep. By calling this method
// on every timestep, the Tracker will accumulate all rewards seen in
// the episode and write the cumulative reward of the episode as a CSV
// row once the episode finishes.
//
// Track panics if it is called for non-sequential timesteps
func (r *CSVReturn) Track(step ts.TimeStep) {
	// Ensure that Track is called on sequential timesteps
	if r.lastTimeStep+1 != step.Number {
		panic(fmt.Sprintf("track: last two timesteps tracked are not "+
			"sequential: timestep %v --> timestep %v were tracked",
			r.lastTimeStep, step.Number))
	}

	r.currentReturn += step.Reward
	if !step.Last() {
		r.lastTimeStep = step.Number
		return
	}

	// Episode has ended: record the return and begin tracking the
	// return of a new episode
	r.episode++
	r.episodeReturns = append(r.episodeReturns, r.currentReturn)
	r.w.Write([]string{
		strconv.Itoa(r.episode),
		strconv.FormatFloat(r.currentReturn, 'f', 2, 64),
	})
	r.w.Flush()

	r.currentReturn = 0.0
	r.lastTimeStep = -1
}

// Returns returns the episodic returns recorded so far in this run
func (r *CSVReturn) Returns() []float64 {
	return r.episodeReturns
}

// Save flushes any buffered rows and closes the log file
func (r *CSVReturn) Save() error {
	r.w.Flush()
	if err := r.w.Error(); err != nil {
		r.file.Close()
		return errors.Wrap(err, "save: could not flush log file")
	}
	return r.file.Close()
}
