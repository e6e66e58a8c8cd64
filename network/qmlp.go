package network

import (
	"bytes"
	"encoding/gob"
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// qMLP implements a multi-layered perceptron that predicts one action
// value per output node. The input is a flattened grid observation and
// the output is a row of action values per input row.
type qMLP struct {
	g          *G.ExprGraph
	layers     []Layer
	input      *G.Node
	numOutputs int
	numInputs  int
	batchSize  int

	// Data needed for gobbing
	hiddenSizes []int
	biases      []bool
	activations []*Activation

	learnables G.Nodes
	model      []G.ValueGrad

	prediction *G.Node
	predVal    G.Value
}

// NewQMLP creates and returns a new multi-layered perceptron for
// action value prediction. The graph parameter g is populated with the
// MLP.
//
// The MLP has number of layers equal to len(hiddenSizes) + 1. A final
// linear layer with a bias unit and no activation is always added so
// that the network predicts outputs action values per input row. For
// index i, hiddenSizes[i] is the number of nodes in hidden layer i,
// biases[i] is true if hidden layer i has a bias unit, and
// activations[i] is the activation function of hidden layer i. The
// parameter init determines the weight initialization scheme.
func NewQMLP(features, batch, outputs int, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation) (NeuralNet, error) {
	// Ensure one activation per layer
	if len(hiddenSizes) != len(activations) {
		msg := "newqmlp: invalid number of activations\n\twant(%d)" +
			"\n\thave(%d)"
		return nil, fmt.Errorf(msg, len(hiddenSizes), len(activations))
	}

	// Ensure one bias flag per layer
	if len(hiddenSizes) != len(biases) {
		msg := "newqmlp: invalid number of biases\n\twant(%d)\n\thave(%d)"
		return nil, fmt.Errorf(msg, len(hiddenSizes), len(biases))
	}

	input := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, features),
		G.WithName("input"), G.WithInit(G.Zeroes()))

	// Add the final linear layer predicting one value per action
	hiddenSizes = append(hiddenSizes, outputs)
	biases = append(biases, true)
	activations = append(activations, Identity())

	layers := addFCLayers(g, hiddenSizes, biases, activations, init, features)

	network := qMLP{
		g:           g,
		layers:      layers,
		input:       input,
		numOutputs:  outputs,
		numInputs:   features,
		batchSize:   batch,
		hiddenSizes: hiddenSizes,
		biases:      biases,
		activations: activations,
	}
	if _, err := network.fwd(input); err != nil {
		return &qMLP{}, fmt.Errorf("newqmlp: could not compute forward "+
			"pass: %v", err)
	}

	return &network, nil
}

// Graph returns the computational graph of the qMLP
func (e *qMLP) Graph() *G.ExprGraph {
	return e.g
}

// Clone clones a qMLP
func (e *qMLP) Clone() (NeuralNet, error) {
	return e.CloneWithBatch(e.batchSize)
}

// CloneWithBatch clones a qMLP with a new input batch size
func (e *qMLP) CloneWithBatch(batchSize int) (NeuralNet, error) {
	graph := G.NewGraph()

	if !e.input.IsMatrix() {
		return nil, fmt.Errorf("clonewithbatch: invalid input type")
	}
	input := G.NewMatrix(
		graph,
		tensor.Float64,
		G.WithShape(batchSize, e.numInputs),
		G.WithName("input"),
		G.WithInit(G.Zeroes()),
	)

	// Copy fully connected layers
	l := make([]Layer, len(e.layers))
	for i := range e.layers {
		l[i] = e.layers[i].CloneTo(graph)
	}

	network := qMLP{
		g:           graph,
		layers:      l,
		input:       input,
		numOutputs:  e.numOutputs,
		numInputs:   e.numInputs,
		batchSize:   batchSize,
		hiddenSizes: e.hiddenSizes,
		biases:      e.biases,
		activations: e.activations,
	}
	if _, err := network.fwd(input); err != nil {
		return nil, fmt.Errorf("clonewithbatch: could not clone: %v", err)
	}

	return &network, nil
}

// BatchSize returns the batch size of inputs to the network
func (e *qMLP) BatchSize() int {
	return e.batchSize
}

// Features returns the number of features in a single observation
// vector that the network takes as input
func (e *qMLP) Features() int {
	return e.numInputs
}

// Outputs returns the number of action values predicted per input row
func (e *qMLP) Outputs() int {
	return e.numOutputs
}

// SetInput sets the value of the input node before running the forward
// pass
func (e *qMLP) SetInput(input []float64) error {
	if len(input) != e.numInputs*e.batchSize {
		return fmt.Errorf("setinput: invalid number of inputs\n\twant(%v)"+
			"\n\thave(%v)", e.numInputs*e.batchSize, len(input))
	}
	inputTensor := tensor.New(
		tensor.WithBacking(input),
		tensor.WithShape(e.input.Shape()...),
	)
	return G.Let(e.input, inputTensor)
}

// Set sets the weights of a qMLP to be equal to the weights of another
// qMLP
func (dest *qMLP) Set(source NeuralNet) error {
	sourceNodes := source.Learnables()
	nodes := dest.Learnables()
	for i, destLearnable := range nodes {
		sourceLearnable := sourceNodes[i].Clone()
		err := G.Let(destLearnable, sourceLearnable.(*G.Node).Value())
		if err != nil {
			return err
		}
	}
	return nil
}

// Polyak sets the weights of a qMLP to be a polyak average between its
// existing weights and the weights of another qMLP
func (dest *qMLP) Polyak(source NeuralNet, tau float64) error {
	sourceNodes := source.Learnables()
	nodes := dest.Learnables()
	for i := range nodes {
		weights := nodes[i].Value().(*tensor.Dense)
		sourceWeights := sourceNodes[i].Value().(*tensor.Dense)

		weights, err := weights.MulScalar(1-tau, true)
		if err != nil {
			return err
		}

		sourceWeights, err = sourceWeights.MulScalar(tau, true)
		if err != nil {
			return err
		}

		var newWeights *tensor.Dense
		newWeights, err = weights.Add(sourceWeights)
		if err != nil {
			return err
		}

		if err := G.Let(nodes[i], newWeights); err != nil {
			return err
		}
	}
	return nil
}

// Learnables returns the learnable nodes in a qMLP
func (e *qMLP) Learnables() G.Nodes {
	// Lazy instantiation
	if e.learnables == nil {
		learnables := make([]*G.Node, 0, 2*len(e.layers))
		for i := range e.layers {
			learnables = append(learnables, e.layers[i].Weights())
			if bias := e.layers[i].Bias(); bias != nil {
				learnables = append(learnables, bias)
			}
		}
		e.learnables = G.Nodes(learnables)
	}
	return e.learnables
}

// Model returns the learnable nodes with their gradients
func (e *qMLP) Model() []G.ValueGrad {
	// Lazy instantiation
	if e.model == nil {
		model := make([]G.ValueGrad, 0, 2*len(e.layers))
		for _, node := range e.Learnables() {
			model = append(model, node)
		}
		e.model = model
	}
	return e.model
}

// fwd performs the forward pass of the qMLP on the input node
func (e *qMLP) fwd(input *G.Node) (*G.Node, error) {
	inputShape := input.Shape()[len(input.Shape())-1]
	if inputShape%e.numInputs != 0 {
		return nil, fmt.Errorf("fwd: invalid shape for input to neural net:"+
			" \n\twant(%v) \n\thave(%v)", e.numInputs, inputShape)
	}

	pred := input
	var err error
	for i, l := range e.layers {
		if pred, err = l.fwd(pred); err != nil {
			return nil, fmt.Errorf("fwd: could not compute forward pass of "+
				"layer %v: %v", i, err)
		}
	}

	e.prediction = pred
	G.Read(e.prediction, &e.predVal)

	return pred, nil
}

// Output returns the output of the qMLP after the last run of a VM
func (e *qMLP) Output() G.Value {
	return e.predVal
}

// Prediction returns the node of the computational graph that stores
// the output of the qMLP
func (e *qMLP) Prediction() *G.Node {
	return e.prediction
}

// GobEncode implements the gob.GobEncoder interface
func (e *qMLP) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	if err := enc.Encode(e.numOutputs); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode number of outputs")
	}
	if err := enc.Encode(e.numInputs); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode number of inputs")
	}
	if err := enc.Encode(e.batchSize); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode batch size")
	}
	if err := enc.Encode(e.hiddenSizes); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode hidden sizes")
	}
	if err := enc.Encode(e.biases); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode biases")
	}
	if err := enc.Encode(e.activations); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode activations")
	}

	for i, layer := range e.layers {
		if err := enc.Encode(layer.(*fcLayer)); err != nil {
			return nil, fmt.Errorf("gobencode: could not encode layer %v: %v",
				i, err)
		}
	}

	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface
func (e *qMLP) GobDecode(in []byte) error {
	buf := bytes.NewReader(in)
	dec := gob.NewDecoder(buf)

	var numOutputs int
	if err := dec.Decode(&numOutputs); err != nil {
		return fmt.Errorf("gobdecode: could not decode number of outputs")
	}

	var numInputs int
	if err := dec.Decode(&numInputs); err != nil {
		return fmt.Errorf("gobdecode: could not decode number of inputs")
	}

	var batchSize int
	if err := dec.Decode(&batchSize); err != nil {
		return fmt.Errorf("gobdecode: could not decode batch size")
	}

	var hiddenSizes []int
	if err := dec.Decode(&hiddenSizes); err != nil {
		return fmt.Errorf("gobdecode: could not decode hidden sizes")
	}
	hiddenSizes = hiddenSizes[:len(hiddenSizes)-1]

	var biases []bool
	if err := dec.Decode(&biases); err != nil {
		return fmt.Errorf("gobdecode: could not decode biases")
	}
	biases = biases[:len(biases)-1]

	var activations []*Activation
	if err := dec.Decode(&activations); err != nil {
		return fmt.Errorf("gobdecode: could not decode activations")
	}
	activations = activations[:len(activations)-1]

	// Create a new MLP, then fill its layers with the encoded weights
	g := G.NewGraph()
	newNet, err := NewQMLP(numInputs, batchSize, numOutputs, g, hiddenSizes,
		biases, G.Zeroes(), activations)
	if err != nil {
		return fmt.Errorf("gobdecode: could not construct new MLP: %v", err)
	}
	newMLP, ok := newNet.(*qMLP)
	if !ok {
		panic("gobdecode: NewQMLP() returned type != qMLP")
	}

	for i := range newMLP.layers {
		if err := dec.Decode(newMLP.layers[i].(*fcLayer)); err != nil {
			return fmt.Errorf("gobdecode: could not decode layer %v: %v", i,
				err)
		}
	}

	*e = *newMLP
	return nil
}
