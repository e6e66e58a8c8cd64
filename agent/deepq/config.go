package deepq

import (
	"fmt"

	"github.com/sweeprl/sweeper/expreplay"
	"github.com/sweeprl/sweeper/initwfn"
	"github.com/sweeprl/sweeper/network"
	"github.com/sweeprl/sweeper/solver"
)

// Default hyperparameters of the DeepQ agent
const (
	DefaultEpsilon      float64 = 1.0
	DefaultEpsilonDecay float64 = 0.997
	DefaultMinEpsilon   float64 = 0.05

	DefaultStepSize     float64 = 1e-4
	DefaultSyncInterval int     = 750

	DefaultBatchSize   int = 64
	DefaultMaxCapacity int = 40_000
)

// Config implements a configuration for a DeepQ agent
type Config struct {
	PolicyLayers []int                 // Layer sizes in neural net
	Biases       []bool                // Whether each layer should have a bias
	Activations  []*network.Activation // Activation of each layer
	Solver       *solver.Solver        // Solver for learning weights

	// Initialization algorithm for weights
	InitWFn *initwfn.InitWFn

	// Behaviour policy epsilon and its per-episode decay schedule
	Epsilon      float64
	EpsilonDecay float64
	MinEpsilon   float64

	// Experience replay parameters
	ExpReplay expreplay.Config

	// Number of environment steps between hard target network updates
	SyncInterval int
}

// DefaultConfig returns the default configuration of a DeepQ agent:
// a two hidden layer ReLU value network trained with Adam on batches
// sampled uniformly from the replay buffer, with a hard target network
// update every SyncInterval environment steps.
func DefaultConfig() (Config, error) {
	adam, err := solver.NewDefaultAdam(DefaultStepSize, DefaultBatchSize)
	if err != nil {
		return Config{}, fmt.Errorf("defaultconfig: could not create "+
			"solver: %v", err)
	}

	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		return Config{}, fmt.Errorf("defaultconfig: could not create "+
			"weight initializer: %v", err)
	}

	return Config{
		PolicyLayers: []int{256, 128},
		Biases:       []bool{true, true},
		Activations: []*network.Activation{
			network.ReLU(),
			network.ReLU(),
		},
		Solver:  adam,
		InitWFn: init,

		Epsilon:      DefaultEpsilon,
		EpsilonDecay: DefaultEpsilonDecay,
		MinEpsilon:   DefaultMinEpsilon,

		ExpReplay: expreplay.Config{
			MinCapacity: DefaultBatchSize,
			MaxCapacity: DefaultMaxCapacity,
			BatchSize:   DefaultBatchSize,
		},

		SyncInterval: DefaultSyncInterval,
	}, nil
}

// BatchSize returns the batch size of the agent constructed using this
// Config
func (c Config) BatchSize() int {
	return c.ExpReplay.BatchSize
}

// Validate checks a Config to ensure it is a valid configuration of a
// DeepQ agent.
func (c Config) Validate() error {
	if len(c.PolicyLayers) != len(c.Biases) {
		return fmt.Errorf("config: invalid number of biases\n\twant(%v)"+
			"\n\thave(%v)", len(c.PolicyLayers), len(c.Biases))
	}

	if len(c.PolicyLayers) != len(c.Activations) {
		return fmt.Errorf("config: invalid number of activations"+
			"\n\twant(%v)\n\thave(%v)", len(c.PolicyLayers),
			len(c.Activations))
	}

	if c.Solver == nil {
		return fmt.Errorf("config: no solver provided")
	}

	if c.InitWFn == nil {
		return fmt.Errorf("config: no weight initializer provided")
	}

	if c.SyncInterval < 1 {
		return fmt.Errorf("config: target networks must be updated at "+
			"positive timestep intervals \n\twant(>0) \n\thave(%v)",
			c.SyncInterval)
	}

	if c.Epsilon < 0 || c.Epsilon > 1 {
		return fmt.Errorf("config: epsilon must be in [0, 1] \n\thave(%v)",
			c.Epsilon)
	}

	if c.EpsilonDecay <= 0 || c.EpsilonDecay > 1 {
		return fmt.Errorf("config: epsilon decay must be in (0, 1] "+
			"\n\thave(%v)", c.EpsilonDecay)
	}

	if c.MinEpsilon < 0 || c.MinEpsilon > c.Epsilon {
		return fmt.Errorf("config: minimum epsilon must be in [0, %v] "+
			"\n\thave(%v)", c.Epsilon, c.MinEpsilon)
	}

	return nil
}
