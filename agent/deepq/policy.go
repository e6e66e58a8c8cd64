package deepq

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"

	"github.com/sweeprl/sweeper/agent"
	env "github.com/sweeprl/sweeper/environment"
	"github.com/sweeprl/sweeper/network"
	"github.com/sweeprl/sweeper/utils/floatutils"
)

// EGreedyMLP implements an epsilon greedy policy using a feedforward
// neural network/MLP. Given an environment with N actions, the neural
// network will produce N outputs, each predicting the value of a
// distinct action.
//
// EGreedyMLP simply populates a gorgonia.ExprGraph with the neural
// network function approximator and selects actions based on the
// output of this neural network. The struct does not have a vm of its
// own. An external VM should be used to run the computational graph of
// the policy, and the VM should always be run before selecting an
// action with the policy:
//
//	Set up VM with policy's graph:	vm = NewTapeMachine(policy.Graph())
//	Get state observation vector:	obs
//	Set input to policy's network:	policy.SetInput(obs)
//	Predict the action values:		vm.RunAll()
//	Select an action:				action, _ = policy.SelectAction()
type EGreedyMLP struct {
	network.NeuralNet
	epsilon float64

	rng  *rand.Rand
	seed int64
}

// NewEGreedyMLP creates and returns a new EGreedyMLP. The hiddenSizes
// parameter defines the number of nodes in each hidden layer. The
// biases parameter outlines which layers should include bias units.
// The activations parameter determines the activation function for
// each layer. The batch parameter determines the number of inputs in
// a batch.
//
// Note that this constructor will always add an additional final
// linear layer (with a bias unit and no activation) such that the
// number of network outputs equals the number of actions in the
// environment.
func NewEGreedyMLP(epsilon float64, e env.Environment, batch int,
	g *G.ExprGraph, hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*network.Activation,
	seed int64) (agent.EGreedyNNPolicy, error) {
	// Calculate the number of actions and state features
	numActions := int(e.ActionSpec().UpperBound.AtVec(0)) + 1
	features := e.ObservationSpec().Shape.Len()

	net, err := network.NewQMLP(features, batch, numActions, g, hiddenSizes,
		biases, init, activations)
	if err != nil {
		return &EGreedyMLP{},
			fmt.Errorf("new: could not create policy: %v", err)
	}

	// Create RNG for sampling actions
	source := rand.NewSource(seed)
	rng := rand.New(source)

	nn := EGreedyMLP{
		epsilon:   epsilon,
		rng:       rng,
		seed:      seed,
		NeuralNet: net,
	}

	return &nn, nil
}

// Network returns the neural network function approximator that the
// policy uses.
func (e *EGreedyMLP) Network() network.NeuralNet {
	return e.NeuralNet
}

// ClonePolicy clones an EGreedyMLP
func (e *EGreedyMLP) ClonePolicy() (agent.NNPolicy, error) {
	return e.ClonePolicyWithBatch(e.BatchSize())
}

// ClonePolicyWithBatch clones an EGreedyMLP with a new input batch
// size.
func (e *EGreedyMLP) ClonePolicyWithBatch(
	batchSize int) (agent.NNPolicy, error) {
	net, err := e.Network().CloneWithBatch(batchSize)
	if err != nil {
		return &EGreedyMLP{}, fmt.Errorf("clonepolicywithbatch: could not "+
			"clone policy: %v", err)
	}

	source := rand.NewSource(e.seed)
	rng := rand.New(source)

	nn := EGreedyMLP{
		epsilon:   e.epsilon,
		rng:       rng,
		seed:      e.seed,
		NeuralNet: net,
	}

	return &nn, nil
}

// SetEpsilon sets the value for epsilon in the epsilon greedy policy.
func (e *EGreedyMLP) SetEpsilon(ε float64) {
	e.epsilon = ε
}

// Epsilon gets the value of epsilon for the policy.
func (e *EGreedyMLP) Epsilon() float64 {
	return e.epsilon
}

// SelectAction selects an action according to the action values
// generated from the last run of the computational graph. This
// funtion returns the action selected as well as the approximated
// value of that action.
func (e *EGreedyMLP) SelectAction() (*mat.VecDense, float64) {
	if e.Output() == nil {
		panic("selectaction: vm must be run before selecting an action")
	}

	// Get the action values from the last run of the computational
	// graph
	actionValues := e.Output().Data().([]float64)

	// With probability epsilon return a random action
	if probability := e.rng.Float64(); probability < e.epsilon {
		action := e.rng.Intn(e.numActions())
		return mat.NewVecDense(1, []float64{float64(action)}),
			actionValues[action]
	}

	// Get the actions of maximum value
	_, maxIndices := floatutils.MaxSlice(actionValues)

	// If multiple actions have max value, return a random max-valued
	// action
	action := maxIndices[e.rng.Intn(len(maxIndices))]
	return mat.NewVecDense(1, []float64{float64(action)}),
		actionValues[action]
}

// numActions returns the number of actions that the policy chooses
// between.
func (e *EGreedyMLP) numActions() int {
	return e.Outputs()
}
