// Package cmd implements the command line interface of the trainer
package cmd

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/sweeprl/sweeper/agent/deepq"
	env "github.com/sweeprl/sweeper/environment"
	"github.com/sweeprl/sweeper/environment/cleangrid"
	"github.com/sweeprl/sweeper/experiment"
	"github.com/sweeprl/sweeper/experiment/tracker"
	"github.com/sweeprl/sweeper/network"
	"github.com/sweeprl/sweeper/render"
)

// Discount rate of the grid cleaning task
const gamma float64 = 0.99

var (
	sat      string
	episodes int
	demo     bool
	size     int
	seed     int64

	logPath  string
	plotPath string
	frameDir string
)

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "sweeper",
		Short: "Train a DQN agent to clean contaminated grid cells",
		Long: "sweeper trains a DQN agent on a grid cleaning task. The " +
			"grid is either synthetic or derived from a satellite image, " +
			"where reddish-brown terrain becomes contaminated cells. " +
			"Episodic returns are appended to a CSV log and the learned " +
			"weights are persisted between runs.",
		SilenceUsage: true,
		RunE:         run,
	}

	root.Flags().StringVar(&sat, "sat", "",
		"path to a satellite image to derive the grid from")
	root.Flags().IntVar(&episodes, "episodes", 500,
		"number of episodes to run")
	root.Flags().BoolVar(&demo, "demo", false,
		"run greedily with frozen weights, learning nothing")
	root.Flags().IntVar(&size, "size", cleangrid.DefaultResolution,
		"satellite image resolution in cells per side")
	root.Flags().Int64Var(&seed, "seed", 0,
		"random seed, 0 seeds from the current time")

	root.Flags().StringVar(&logPath, "log", "training_log.csv",
		"CSV file episodic returns are appended to")
	root.Flags().StringVar(&plotPath, "plot", "",
		"image file to plot the reward curve to after the run")
	root.Flags().StringVar(&frameDir, "frames", "",
		"directory to render PNG frames of a greedy rollout into")

	// glog's -v and -logtostderr flags
	root.Flags().AddGoFlagSet(flag.CommandLine)

	return root
}

// Execute parses the command line and runs the trainer
func Execute() {
	if err := rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	environment, weightPath, err := newEnvironment()
	if err != nil {
		return err
	}

	config, err := deepq.DefaultConfig()
	if err != nil {
		return err
	}

	glog.Infof("device: %v", network.DetectDevice())
	agent, err := deepq.New(environment, config, seed)
	if err != nil {
		return err
	}
	defer agent.Close()

	if _, err := os.Stat(weightPath); err == nil {
		if err := agent.Load(weightPath); err != nil {
			return err
		}
		glog.Infof("loaded weights from %v", weightPath)
	}

	if demo {
		agent.Eval()
	}

	returns, err := tracker.NewCSVReturn(logPath)
	if err != nil {
		return err
	}

	exp := experiment.NewOnline(environment, agent, episodes, returns)
	if err := exp.Run(); err != nil {
		return err
	}
	if err := exp.Save(); err != nil {
		return err
	}

	if !demo {
		if err := agent.Save(weightPath); err != nil {
			return err
		}
		glog.Infof("saved weights to %v", weightPath)
	}

	if plotPath != "" {
		if err := render.RewardCurve(returns.Returns(), plotPath); err != nil {
			return err
		}
		glog.Infof("saved reward curve to %v", plotPath)
	}

	if frameDir != "" {
		grid, ok := environment.(*cleangrid.CleanGrid)
		if !ok {
			return fmt.Errorf("run: cannot render rollout of %T", environment)
		}
		episodeReturn, err := render.Rollout(grid, agent, frameDir,
			render.DefaultCellSize)
		if err != nil {
			return err
		}
		fmt.Printf("rollout return: %.2f (frames in %v)\n", episodeReturn,
			frameDir)
	}

	return nil
}

// newEnvironment builds the training environment and the path of the
// weight file paired with it
func newEnvironment() (env.Environment, string, error) {
	if sat == "" {
		grid, _, err := cleangrid.NewSynthetic(cleangrid.DefaultSize,
			cleangrid.DefaultDirt, gamma, seed)
		return grid, "dqn_synthetic.gob", err
	}

	grid, _, err := cleangrid.NewSatellite(sat, size, gamma,
		cleangrid.FileDecoder{})
	if err != nil {
		return nil, "", err
	}

	stem := strings.TrimSuffix(filepath.Base(sat), filepath.Ext(sat))
	return grid, fmt.Sprintf("dqn_%v.gob", stem), nil
}
