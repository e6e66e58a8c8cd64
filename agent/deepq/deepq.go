// Package deepq implements the DQN algorithm with experience replay
// and a hard-synced target network.
package deepq

import (
	"encoding/gob"
	"fmt"
	"os"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/sweeprl/sweeper/agent"
	"github.com/sweeprl/sweeper/environment"
	"github.com/sweeprl/sweeper/expreplay"
	ts "github.com/sweeprl/sweeper/timestep"
	"github.com/sweeprl/sweeper/utils/floatutils"
)

// DeepQ implements the DQN algorithm. Action values are approximated
// by a feedforward neural network trained on uniformly sampled batches
// of replayed experience with the Huber loss:
//
//	Q(s, a) <- r + γ * max[Q'(s', a')]
//
// where Q' is a target network whose weights are hard-synced to the
// learned weights every SyncInterval environment steps.
type DeepQ struct {
	// Action selection policy
	behaviourPolicy   agent.EGreedyNNPolicy
	behaviourPolicyVM G.VM

	// Policy for learning weights that takes in batches of inputs
	trainNet   agent.EGreedyNNPolicy
	trainNetVM G.VM
	solver     G.Solver // Adapts the weights of trainNet

	// Network providing the update target for a batch of inputs
	targetNet   agent.EGreedyNNPolicy
	targetNetVM G.VM

	// Target network update schedule, tracked in cumulative
	// environment steps
	syncInterval int
	envSteps     int

	// Epsilon decay schedule of the behaviour policy
	epsilon      float64
	epsilonDecay float64
	minEpsilon   float64

	selectedActions *G.Node // Actions taken at the previous states
	numActions      int

	replay expreplay.ExperienceReplayer

	// nextStateActionValues is the input node in the graph of trainNet
	// that is given the action values of the next state, computed by
	// targetNet.
	nextStateActionValues *G.Node
	rewards               *G.Node
	discounts             *G.Node

	// Keep track of previous states and actions to add to replay buffer
	prevStep   ts.TimeStep
	prevAction int
	nextStep   ts.TimeStep

	batchSize int
	eval      bool // Whether or not in evaluation mode
}

// New creates and returns a new DeepQ agent
func New(env environment.Environment, config Config,
	seed int64) (*DeepQ, error) {
	// Ensure environment has discrete actions
	if env.ActionSpec().Cardinality != environment.Discrete {
		return &DeepQ{}, fmt.Errorf("deepq: cannot use non-discrete " +
			"actions")
	}

	// Ensure actions are one-dimensional
	if env.ActionSpec().LowerBound.Len() > 1 {
		return &DeepQ{}, fmt.Errorf("deepq: actions must be " +
			"1-dimensional")
	}

	// Ensure actions are enumerated from 0
	if env.ActionSpec().LowerBound.AtVec(0) != 0.0 {
		return &DeepQ{}, fmt.Errorf("deepq: actions must be " +
			"enumerated starting from 0")
	}

	// Ensure the configuration is valid
	if err := config.Validate(); err != nil {
		return &DeepQ{}, err
	}

	// Extract configuration variables
	batchSize := config.BatchSize()
	numActions := int(env.ActionSpec().UpperBound.AtVec(0)) + 1
	hiddenSizes := config.PolicyLayers
	biases := config.Biases
	activations := config.Activations
	init := config.InitWFn.InitWFn()
	ε := config.Epsilon

	// Behaviour network for selecting actions
	g := G.NewGraph()
	behaviourPolicy, err := NewEGreedyMLP(
		ε,
		env,
		1, // For the behaviour policy, a single action is selected
		g,
		hiddenSizes,
		biases,
		init,
		activations,
		seed,
	)
	if err != nil {
		return &DeepQ{}, err
	}
	behaviourPolicyVM := G.NewTapeMachine(g)

	// Create the target network which provides the update target
	targetNetClone, err := behaviourPolicy.ClonePolicyWithBatch(batchSize)
	if err != nil {
		return &DeepQ{}, fmt.Errorf("new: could not create target "+
			"network: %v", err)
	}
	targetNet := targetNetClone.(agent.EGreedyNNPolicy)
	targetNet.SetEpsilon(0.0) // The update target is greedy
	targetNetVM := G.NewTapeMachine(targetNet.Graph())

	// Create a training network which learns the weights
	trainNetClone, err := behaviourPolicy.ClonePolicyWithBatch(batchSize)
	if err != nil {
		return &DeepQ{}, fmt.Errorf("new: could not create learning "+
			"network: %v", err)
	}
	trainNet := trainNetClone.(agent.EGreedyNNPolicy)
	gTrain := trainNet.Graph()

	// Create nodes to compute the update target: r + γ * max[Q(s', a')]
	nextStateActionValues := G.NewMatrix(gTrain, tensor.Float64,
		G.WithShape(batchSize, numActions), G.WithName("targetActionVals"))
	rewards := G.NewVector(gTrain, tensor.Float64, G.WithShape(batchSize),
		G.WithName("reward"))
	discounts := G.NewVector(gTrain, tensor.Float64, G.WithShape(batchSize),
		G.WithName("discount"))

	// Compute the update target. Transitions into terminal states are
	// stored with a discount of 0, truncating the bootstrap there.
	updateTarget := G.Must(G.Max(nextStateActionValues, 1))
	updateTarget = G.Must(G.HadamardProd(updateTarget, discounts))
	updateTarget = G.Must(G.Add(updateTarget, rewards))

	// Action selected in the previous state. This is needed to compute
	// the loss using the correct action value since the network outputs
	// N action values, one for each environmental action
	selectedActions := G.NewMatrix(
		gTrain,
		tensor.Float64,
		G.WithName("actionSelected"),
		G.WithShape(batchSize, numActions),
	)
	selectedActionsValue := G.Must(G.HadamardProd(trainNet.Prediction(),
		selectedActions))
	selectedActionsValue = G.Must(G.Sum(selectedActionsValue, 1))

	// Compute the Huber loss of the TD error, quadratic within unit
	// distance of the update target and linear outside it
	one := G.NewConstant(1.0)
	half := G.NewConstant(0.5)

	diff := G.Must(G.Sub(updateTarget, selectedActionsValue))
	absDiff := G.Must(G.Abs(diff))

	isSmall := G.Must(G.Lt(absDiff, one, true))
	isLarge := G.Must(G.Sub(one, isSmall))

	quadratic := G.Must(G.Mul(half, G.Must(G.Square(diff))))
	linear := G.Must(G.Sub(absDiff, half))

	losses := G.Must(G.Add(
		G.Must(G.HadamardProd(isSmall, quadratic)),
		G.Must(G.HadamardProd(isLarge, linear)),
	))
	cost := G.Must(G.Mean(losses))

	// Compute the gradient with respect to the Huber loss
	if _, err := G.Grad(cost, trainNet.Learnables()...); err != nil {
		return &DeepQ{}, fmt.Errorf("new: could not compute gradient: %v",
			err)
	}

	// Compile the trainNet graph into a VM
	trainNetVM := G.NewTapeMachine(
		gTrain,
		G.BindDualValues(trainNet.Learnables()...),
	)

	// Create the experience replay buffer. The replay buffer stores
	// actions selected as one-hot vectors
	numFeatures := env.ObservationSpec().Shape.Len()
	replay, err := config.ExpReplay.Create(numFeatures, numActions, seed)
	if err != nil {
		return &DeepQ{}, fmt.Errorf("new: could not create experience "+
			"replay buffer: %v", err)
	}

	return &DeepQ{
		behaviourPolicy:       behaviourPolicy,
		behaviourPolicyVM:     behaviourPolicyVM,
		trainNet:              trainNet,
		trainNetVM:            trainNetVM,
		solver:                config.Solver,
		targetNet:             targetNet,
		targetNetVM:           targetNetVM,
		syncInterval:          config.SyncInterval,
		envSteps:              0,
		epsilon:               ε,
		epsilonDecay:          config.EpsilonDecay,
		minEpsilon:            config.MinEpsilon,
		selectedActions:       selectedActions,
		numActions:            numActions,
		replay:                replay,
		nextStateActionValues: nextStateActionValues,
		rewards:               rewards,
		discounts:             discounts,
		prevStep:              ts.TimeStep{},
		prevAction:            0,
		nextStep:              ts.TimeStep{},
		batchSize:             batchSize,
		eval:                  false,
	}, nil
}

// ObserveFirst observes and records the first episodic timestep
func (d *DeepQ) ObserveFirst(t ts.TimeStep) error {
	if !t.First() {
		fmt.Fprintf(os.Stderr, "Warning: ObserveFirst() should only be "+
			"called on the first timestep (current timestep = %d)\n",
			t.Number)
	}
	d.prevStep = ts.TimeStep{}
	d.nextStep = t
	return nil
}

// Observe observes and records any timestep other than the first
// timestep. In evaluation mode nothing is recorded into the replay
// buffer, but the environment step counter still advances so the
// target network sync schedule is unchanged.
func (d *DeepQ) Observe(action mat.Vector, nextStep ts.TimeStep) error {
	if action.Len() != 1 {
		return fmt.Errorf("observe: value-based methods cannot have "+
			"multi-dimensional actions (action dim = %d)", action.Len())
	}

	// Add to replay buffer
	if !d.eval && !d.nextStep.First() {
		if err := d.cacheTransition(); err != nil {
			return errors.Wrap(err, "observe: could not record transition")
		}
	}

	// Update internal variables
	d.prevStep = d.nextStep
	d.nextStep = nextStep
	d.prevAction = int(action.AtVec(0))

	// No Observe follows the last step of an episode, so the terminal
	// transition is recorded immediately. Its discount of 0 truncates
	// the bootstrap in the update target.
	if !d.eval && nextStep.Last() {
		if err := d.cacheTransition(); err != nil {
			return errors.Wrap(err, "observe: could not record terminal "+
				"transition")
		}
	}

	d.envSteps++
	if d.envSteps%d.syncInterval == 0 {
		if err := d.targetNet.Set(d.trainNet); err != nil {
			return errors.Wrap(err, "observe: could not sync target network")
		}
		glog.V(2).Infof("target network synced at step %v", d.envSteps)
	}

	return nil
}

// cacheTransition adds the currently cached transition, with the
// cached action stored as a one-hot vector, to the replay buffer
func (d *DeepQ) cacheTransition() error {
	prevAction := mat.NewVecDense(d.numActions, nil)
	prevAction.SetVec(d.prevAction, 1.0)

	return d.replay.Add(ts.NewTransition(d.prevStep, prevAction, d.nextStep))
}

// Step updates the weights of the Agent's policies on a single batch
// of replayed experience. The update is skipped in evaluation mode and
// while the replay buffer holds fewer samples than a full batch.
func (d *DeepQ) Step() error {
	if d.eval {
		return nil
	}

	S, A, R, discount, NextS, err := d.replay.Sample()
	if expreplay.IsEmptyBuffer(err) || expreplay.IsInsufficientSamples(err) {
		return nil
	} else if err != nil {
		return errors.Wrap(err, "step: could not sample replay buffer")
	}

	// Previous action one-hot vectors
	prevActions := tensor.New(
		tensor.WithShape(d.batchSize, d.numActions),
		tensor.WithBacking(A),
	)
	if err := G.Let(d.selectedActions, prevActions); err != nil {
		return errors.Wrap(err, "step: could not set selected actions")
	}

	// Predict the action values in state S
	if err := d.trainNet.SetInput(S); err != nil {
		return errors.Wrap(err, "step: could not set trainNet input")
	}

	// Predict the action values in the next state NextS
	if err := d.targetNet.SetInput(NextS); err != nil {
		return errors.Wrap(err, "step: could not set target net input")
	}

	// Compute the next state-action values
	if err := d.targetNetVM.RunAll(); err != nil {
		return errors.Wrap(err, "step: could not run target network")
	}

	// Set the action values for the actions in the next state
	if err := G.Let(d.nextStateActionValues, d.targetNet.Output()); err != nil {
		return errors.Wrap(err, "step: could not set next state-action "+
			"values")
	}

	rewardTensor := tensor.New(tensor.WithBacking(R),
		tensor.WithShape(d.batchSize))
	if err := G.Let(d.rewards, rewardTensor); err != nil {
		return errors.Wrap(err, "step: could not set reward")
	}

	discountTensor := tensor.New(tensor.WithBacking(discount),
		tensor.WithShape(d.batchSize))
	if err := G.Let(d.discounts, discountTensor); err != nil {
		return errors.Wrap(err, "step: could not set discount")
	}

	d.targetNetVM.Reset()

	// Run the learning step
	if err := d.trainNetVM.RunAll(); err != nil {
		return errors.Wrap(err, "step: could not run learning step")
	}
	if err := d.solver.Step(d.trainNet.Model()); err != nil {
		return errors.Wrap(err, "step: could not adapt weights")
	}
	d.trainNetVM.Reset()

	// The behaviour policy selects actions with the newly learned
	// weights
	if err := d.behaviourPolicy.Set(d.trainNet); err != nil {
		return errors.Wrap(err, "step: could not update behaviour policy")
	}

	return nil
}

// SelectAction runs the necessary VMs and then returns an action
// selected by the behaviour policy.
func (d *DeepQ) SelectAction(t ts.TimeStep) *mat.VecDense {
	obs := t.Observation.(*mat.VecDense).RawVector().Data
	if err := d.behaviourPolicy.SetInput(obs); err != nil {
		panic(fmt.Sprintf("selectaction: %v", err))
	}

	// Run the policy's computational graph
	if err := d.behaviourPolicyVM.RunAll(); err != nil {
		panic(fmt.Sprintf("selectaction: %v", err))
	}

	// Get the policy to select an action using the data generated by
	// running the computational graph
	action, _ := d.behaviourPolicy.SelectAction()

	d.behaviourPolicyVM.Reset()
	return action
}

// EndEpisode performs cleanup at the end of an episode, decaying the
// exploration of the behaviour policy
func (d *DeepQ) EndEpisode() {
	if d.eval {
		return
	}
	d.epsilon = floatutils.Max(d.epsilon*d.epsilonDecay, d.minEpsilon)
	d.behaviourPolicy.SetEpsilon(d.epsilon)
}

// Epsilon returns the current exploration of the behaviour policy
func (d *DeepQ) Epsilon() float64 {
	if d.eval {
		return d.behaviourPolicy.Epsilon()
	}
	return d.epsilon
}

// BufferCapacity returns the number of transitions currently stored in
// the replay buffer
func (d *DeepQ) BufferCapacity() int {
	return d.replay.Capacity()
}

// Eval sets the agent into evaluation mode. Exploration is pinned to
// the decay floor and no further transitions are recorded or learned
// from.
func (d *DeepQ) Eval() {
	d.eval = true
	d.behaviourPolicy.SetEpsilon(d.minEpsilon)
}

// Train sets the agent into training mode
func (d *DeepQ) Train() {
	d.eval = false
	d.behaviourPolicy.SetEpsilon(d.epsilon)
}

// IsEval returns whether the agent is in evaluation mode
func (d *DeepQ) IsEval() bool {
	return d.eval
}

// Save writes the learned weights to the file at path
func (d *DeepQ) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "save: could not create weight file %v",
			path)
	}
	defer f.Close()

	learnables := d.trainNet.Learnables()
	weights := make([]*tensor.Dense, len(learnables))
	for i, node := range learnables {
		weights[i] = node.Value().(*tensor.Dense)
	}

	if err := gob.NewEncoder(f).Encode(weights); err != nil {
		return errors.Wrap(err, "save: could not encode weights")
	}
	return nil
}

// Load reads previously saved weights from the file at path into all
// of the agent's networks
func (d *DeepQ) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "load: could not open weight file %v", path)
	}
	defer f.Close()

	var weights []*tensor.Dense
	if err := gob.NewDecoder(f).Decode(&weights); err != nil {
		return errors.Wrap(err, "load: could not decode weights")
	}

	for _, net := range []agent.EGreedyNNPolicy{d.trainNet, d.targetNet,
		d.behaviourPolicy} {
		learnables := net.Learnables()
		if len(weights) != len(learnables) {
			return errors.Errorf("load: invalid number of weights"+
				"\n\twant(%v)\n\thave(%v)", len(learnables), len(weights))
		}
		for i, node := range learnables {
			if err := G.Let(node, weights[i].Clone().(*tensor.Dense)); err != nil {
				return errors.Wrapf(err, "load: could not set weights of %v",
					node.Name())
			}
		}
	}
	return nil
}

// Close releases the tape machines of the agent's networks
func (d *DeepQ) Close() error {
	behaviourErr := d.behaviourPolicyVM.Close()
	trainErr := d.trainNetVM.Close()
	targetErr := d.targetNetVM.Close()

	if behaviourErr != nil {
		return behaviourErr
	}
	if trainErr != nil {
		return trainErr
	}
	return targetErr
}
