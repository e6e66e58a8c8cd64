package deepq

import (
	"math"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/sweeprl/sweeper/environment/cleangrid"
	"github.com/sweeprl/sweeper/expreplay"
	"github.com/sweeprl/sweeper/network"
	"github.com/sweeprl/sweeper/solver"
)

// testAgent builds a small DeepQ agent on a 3x3 synthetic grid
func testAgent(t *testing.T, seed int64) (*DeepQ, *cleangrid.CleanGrid) {
	t.Helper()

	grid, _, err := cleangrid.NewSynthetic(3, 2, 0.99, seed)
	if err != nil {
		t.Fatal(err)
	}

	config, err := DefaultConfig()
	if err != nil {
		t.Fatal(err)
	}
	config.PolicyLayers = []int{8}
	config.Biases = []bool{true}
	config.Activations = []*network.Activation{network.ReLU()}
	config.ExpReplay = expreplay.Config{
		MinCapacity: 4,
		MaxCapacity: 16,
		BatchSize:   4,
	}
	config.SyncInterval = 3
	config.Solver, err = solver.NewDefaultAdam(1e-4, 4)
	if err != nil {
		t.Fatal(err)
	}

	agent, err := New(grid, config, seed)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { agent.Close() })

	return agent, grid
}

func TestDefaultConfig(t *testing.T) {
	config, err := DefaultConfig()
	if err != nil {
		t.Fatal(err)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("default configuration should be valid: %v", err)
	}

	if config.BatchSize() != 64 {
		t.Errorf("batch size: want 64, have %v", config.BatchSize())
	}
	if config.ExpReplay.MaxCapacity != 40_000 {
		t.Errorf("buffer capacity: want 40000, have %v",
			config.ExpReplay.MaxCapacity)
	}
	if config.SyncInterval != 750 {
		t.Errorf("sync interval: want 750, have %v", config.SyncInterval)
	}
	if len(config.PolicyLayers) != 2 || config.PolicyLayers[0] != 256 ||
		config.PolicyLayers[1] != 128 {
		t.Errorf("hidden layers: want [256 128], have %v",
			config.PolicyLayers)
	}
}

func TestEpsilonDecaysPerEpisodeWithFloor(t *testing.T) {
	agent, _ := testAgent(t, 42)

	if agent.Epsilon() != DefaultEpsilon {
		t.Fatalf("initial epsilon: want %v, have %v", DefaultEpsilon,
			agent.Epsilon())
	}

	agent.EndEpisode()
	want := DefaultEpsilon * DefaultEpsilonDecay
	if math.Abs(agent.Epsilon()-want) > 1e-12 {
		t.Errorf("decayed epsilon: want %v, have %v", want, agent.Epsilon())
	}

	// Decay is monotone and floors at the minimum
	prev := agent.Epsilon()
	for i := 0; i < 3000; i++ {
		agent.EndEpisode()
		if agent.Epsilon() > prev {
			t.Fatal("epsilon should never grow during training")
		}
		prev = agent.Epsilon()
	}
	if agent.Epsilon() != DefaultMinEpsilon {
		t.Errorf("epsilon floor: want %v, have %v", DefaultMinEpsilon,
			agent.Epsilon())
	}
}

func TestObserveRecordsTransitions(t *testing.T) {
	agent, grid := testAgent(t, 42)

	step := grid.CurrentTimeStep()
	if err := agent.ObserveFirst(step); err != nil {
		t.Fatal(err)
	}

	// The first Observe only caches the step: there is no previous
	// state to pair it with yet
	a := mat.NewVecDense(1, []float64{float64(cleangrid.Up)})
	next, _, err := grid.Step(a)
	if err != nil {
		t.Fatal(err)
	}
	if err := agent.Observe(a, next); err != nil {
		t.Fatal(err)
	}
	if agent.BufferCapacity() != 0 {
		t.Errorf("no transition should be stored yet, have %v",
			agent.BufferCapacity())
	}

	next, _, err = grid.Step(a)
	if err != nil {
		t.Fatal(err)
	}
	if err := agent.Observe(a, next); err != nil {
		t.Fatal(err)
	}
	if agent.BufferCapacity() != 1 {
		t.Errorf("one transition should be stored, have %v",
			agent.BufferCapacity())
	}
}

func TestObserveStoresTerminalTransition(t *testing.T) {
	// A 1x1 grid with one contaminated cell: a single Clean action ends
	// the episode, so the only transition of the episode is the
	// terminal one
	grid, _, err := cleangrid.NewSynthetic(1, 1, 0.99, 42)
	if err != nil {
		t.Fatal(err)
	}

	config, err := DefaultConfig()
	if err != nil {
		t.Fatal(err)
	}
	config.PolicyLayers = []int{8}
	config.Biases = []bool{true}
	config.Activations = []*network.Activation{network.ReLU()}
	config.ExpReplay = expreplay.Config{
		MinCapacity: 1,
		MaxCapacity: 8,
		BatchSize:   1,
	}
	config.Solver, err = solver.NewDefaultAdam(1e-4, 1)
	if err != nil {
		t.Fatal(err)
	}

	agent, err := New(grid, config, 42)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { agent.Close() })

	if err := agent.ObserveFirst(grid.CurrentTimeStep()); err != nil {
		t.Fatal(err)
	}

	a := mat.NewVecDense(1, []float64{float64(cleangrid.Clean)})
	next, last, err := grid.Step(a)
	if err != nil {
		t.Fatal(err)
	}
	if !last {
		t.Fatal("cleaning the only contaminated cell should end the episode")
	}
	if err := agent.Observe(a, next); err != nil {
		t.Fatal(err)
	}

	if agent.BufferCapacity() != 1 {
		t.Fatalf("the terminal transition should be stored, have %v",
			agent.BufferCapacity())
	}

	// The stored transition carries the cleaning reward and a discount
	// of 0, truncating the bootstrap in the update target
	_, _, rewards, discounts, _, err := agent.replay.Sample()
	if err != nil {
		t.Fatal(err)
	}
	if rewards[0] != cleangrid.CleanReward {
		t.Errorf("terminal reward: want %v, have %v", cleangrid.CleanReward,
			rewards[0])
	}
	if discounts[0] != 0 {
		t.Errorf("terminal discount: want 0, have %v", discounts[0])
	}
}

func TestEvalModeRecordsAndLearnsNothing(t *testing.T) {
	agent, grid := testAgent(t, 42)
	agent.Eval()

	if !agent.IsEval() {
		t.Fatal("agent should report evaluation mode")
	}
	if agent.Epsilon() != DefaultMinEpsilon {
		t.Errorf("evaluation exploration: want %v, have %v",
			DefaultMinEpsilon, agent.Epsilon())
	}

	step := grid.CurrentTimeStep()
	if err := agent.ObserveFirst(step); err != nil {
		t.Fatal(err)
	}
	a := mat.NewVecDense(1, []float64{float64(cleangrid.Right)})
	for i := 0; i < 5; i++ {
		next, _, err := grid.Step(a)
		if err != nil {
			t.Fatal(err)
		}
		if err := agent.Observe(a, next); err != nil {
			t.Fatal(err)
		}
		if err := agent.Step(); err != nil {
			t.Fatal(err)
		}
	}

	if agent.BufferCapacity() != 0 {
		t.Errorf("evaluation mode should record nothing, have %v",
			agent.BufferCapacity())
	}

	// Exploration stays at the floor between episodes
	agent.EndEpisode()
	if agent.Epsilon() != DefaultMinEpsilon {
		t.Error("evaluation mode should not decay epsilon")
	}
}

func TestTargetNetworkSyncsAtInterval(t *testing.T) {
	agent, grid := testAgent(t, 42)

	// Knock the target network out of sync
	for _, node := range agent.targetNet.Learnables() {
		zeroes := tensor.New(
			tensor.Of(tensor.Float64),
			tensor.WithShape(node.Shape()...),
		)
		if err := G.Let(node, zeroes); err != nil {
			t.Fatal(err)
		}
	}

	step := grid.CurrentTimeStep()
	if err := agent.ObserveFirst(step); err != nil {
		t.Fatal(err)
	}

	a := mat.NewVecDense(1, []float64{float64(cleangrid.Left)})
	for i := 0; i < 3; i++ {
		next, _, err := grid.Step(a)
		if err != nil {
			t.Fatal(err)
		}
		if err := agent.Observe(a, next); err != nil {
			t.Fatal(err)
		}
	}

	// After syncInterval environment steps the target weights equal
	// the learned weights exactly
	trainNodes := agent.trainNet.Learnables()
	for i, node := range agent.targetNet.Learnables() {
		have := node.Value().(*tensor.Dense).Data().([]float64)
		want := trainNodes[i].Value().(*tensor.Dense).Data().([]float64)
		for j := range want {
			if have[j] != want[j] {
				t.Fatalf("learnable %v not synced to the train network", i)
			}
		}
	}
}

func TestStepAdaptsWeights(t *testing.T) {
	agent, grid := testAgent(t, 42)

	step := grid.CurrentTimeStep()
	if err := agent.ObserveFirst(step); err != nil {
		t.Fatal(err)
	}

	// Gather enough experience to fill a batch
	for i := 0; i < 8; i++ {
		action := agent.SelectAction(grid.CurrentTimeStep())
		next, last, err := grid.Step(action)
		if err != nil {
			t.Fatal(err)
		}
		if err := agent.Observe(action, next); err != nil {
			t.Fatal(err)
		}
		if last {
			agent.EndEpisode()
			first, err := grid.Reset()
			if err != nil {
				t.Fatal(err)
			}
			if err := agent.ObserveFirst(first); err != nil {
				t.Fatal(err)
			}
		}
	}

	before := make([][]float64, 0)
	for _, node := range agent.trainNet.Learnables() {
		data := node.Value().(*tensor.Dense).Data().([]float64)
		before = append(before, append([]float64(nil), data...))
	}

	if err := agent.Step(); err != nil {
		t.Fatal(err)
	}

	changed := false
	for i, node := range agent.trainNet.Learnables() {
		after := node.Value().(*tensor.Dense).Data().([]float64)
		for j := range after {
			if after[j] != before[i][j] {
				changed = true
			}
		}
	}
	if !changed {
		t.Error("a learning step on a full batch should adapt the weights")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	source, _ := testAgent(t, 42)
	dest, _ := testAgent(t, 14)

	path := filepath.Join(t.TempDir(), "dqn_test.gob")
	if err := source.Save(path); err != nil {
		t.Fatal(err)
	}
	if err := dest.Load(path); err != nil {
		t.Fatal(err)
	}

	sourceNodes := source.trainNet.Learnables()
	for i, node := range dest.trainNet.Learnables() {
		have := node.Value().(*tensor.Dense).Data().([]float64)
		want := sourceNodes[i].Value().(*tensor.Dense).Data().([]float64)
		for j := range want {
			if have[j] != want[j] {
				t.Fatalf("learnable %v differs after loading", i)
			}
		}
	}
}

func TestNewValidatesConfig(t *testing.T) {
	grid, _, err := cleangrid.NewSynthetic(3, 2, 0.99, 42)
	if err != nil {
		t.Fatal(err)
	}

	config, err := DefaultConfig()
	if err != nil {
		t.Fatal(err)
	}
	config.SyncInterval = 0

	if _, err := New(grid, config, 42); err == nil {
		t.Error("a sync interval of 0 should be rejected")
	}
}
