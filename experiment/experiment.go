// Package experiment implements functionality for running an experiment
package experiment

import (
	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/sweeprl/sweeper/agent"
	env "github.com/sweeprl/sweeper/environment"
	"github.com/sweeprl/sweeper/experiment/tracker"
	ts "github.com/sweeprl/sweeper/timestep"
	"github.com/sweeprl/sweeper/utils/progressbar"
)

// Number of episodes between progress reports
const reportInterval int = 50

// Reporter is an agent that can report its exploration and replay
// buffer fill level for progress reports during an experiment
type Reporter interface {
	Epsilon() float64
	BufferCapacity() int
}

// Experiment outlines structs that can run experiments. The Run()
// method runs all episodes of the experiment, sending each environment
// TimeStep to the registered tracker.Trackers. The Save() method
// finalizes all trackers after the experiment has been run.
type Experiment interface {
	Run() error
	RunEpisode() error

	// Save finalizes all tracked data
	Save() error

	// Register adds a new tracker.Tracker to the (possibly already
	// running) experiment
	Register(t tracker.Tracker)
}

// Online is an Experiment that runs an agent online for a fixed number
// of episodes. No offline evaluation is performed.
type Online struct {
	env.Environment
	agent.Agent
	episodes       int
	currentEpisode int
	trackers       []tracker.Tracker
	progress       *progressbar.ProgressBar
}

// NewOnline creates and returns a new online experiment on a given
// environment with a given agent. The episodes parameter determines
// how many episodes the experiment is run for, and the t parameter is
// a slice of tracker.Tracker which determine what data is saved.
func NewOnline(e env.Environment, a agent.Agent, episodes int,
	t ...tracker.Tracker) *Online {
	return &Online{
		Environment: e,
		Agent:       a,
		episodes:    episodes,
		trackers:    t,
		progress:    progressbar.New(50, episodes),
	}
}

// Register registers a tracker.Tracker with an Experiment so that data
// generated during the experiment can be tracked and saved
func (o *Online) Register(t tracker.Tracker) {
	o.trackers = append(o.trackers, t)
}

// RunEpisode runs a single episode of the experiment
func (o *Online) RunEpisode() error {
	step, err := o.Environment.Reset()
	if err != nil {
		return errors.Wrap(err, "runepisode: could not reset environment")
	}
	if err := o.Agent.ObserveFirst(step); err != nil {
		return errors.Wrap(err, "runepisode: could not observe first step")
	}
	o.track(step)

	for !step.Last() {
		// Select action, step in environment
		action := o.Agent.SelectAction(step)
		step, _, err = o.Environment.Step(action)
		if err != nil {
			return errors.Wrap(err, "runepisode: could not step environment")
		}

		// Cache the environment step in each Tracker
		o.track(step)

		// Observe the timestep and step the agent
		if err := o.Agent.Observe(action, step); err != nil {
			return errors.Wrap(err, "runepisode: could not observe step")
		}
		if err := o.Agent.Step(); err != nil {
			return errors.Wrap(err, "runepisode: could not step agent")
		}
	}

	o.Agent.EndEpisode()
	o.currentEpisode++
	return nil
}

// Run runs the entire experiment for all episodes
func (o *Online) Run() error {
	for o.currentEpisode < o.episodes {
		if err := o.RunEpisode(); err != nil {
			return err
		}

		o.progress.Increment()
		o.progress.Display()

		if o.currentEpisode%reportInterval == 0 {
			o.report()
		}
	}
	o.progress.Close()
	return nil
}

// Save finalizes all the data cached by the Trackers
func (o *Online) Save() error {
	for _, t := range o.trackers {
		if err := t.Save(); err != nil {
			return err
		}
	}
	return nil
}

// track tracks the current timestep by caching its data in each
// tracker
func (o *Online) track(t ts.TimeStep) {
	for _, tr := range o.trackers {
		tr.Track(t)
	}
}

// report logs a progress report of the running experiment
func (o *Online) report() {
	reporter, ok := o.Agent.(Reporter)
	if !ok {
		glog.Infof("episode %v of %v finished", o.currentEpisode, o.episodes)
		return
	}
	glog.Infof("episode %v of %v: ε=%.2f buffer=%v", o.currentEpisode,
		o.episodes, reporter.Epsilon(), reporter.BufferCapacity())
}
