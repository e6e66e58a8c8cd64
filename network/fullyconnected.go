package network

import (
	"bytes"
	"encoding/gob"
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Layer implements a single layer of a neural network
type Layer interface {
	fwd(*G.Node) (*G.Node, error)
	CloneTo(g *G.ExprGraph) Layer
	Weights() *G.Node
	Bias() *G.Node
	Activation() *Activation
}

// fcLayer implements a fully connected layer of a feed forward neural
// network
type fcLayer struct {
	weights *G.Node
	bias    *G.Node
	act     *Activation
}

// fwd adds the forward pass of the fcLayer to the computational graph
func (f *fcLayer) fwd(x *G.Node) (*G.Node, error) {
	if f.Weights() != nil {
		x = G.Must(G.Mul(x, f.Weights()))
	}
	if f.Bias() != nil {
		// Broadcast the bias weights to all samples along the batch
		// dimension
		x = G.Must(G.BroadcastAdd(x, f.Bias(), nil, []byte{0}))
	}
	if f.Activation() == nil || f.Activation().IsIdentity() {
		return x, nil
	}
	return f.Activation().fwd(x)
}

// CloneTo clones an fcLayer to a new computational graph
func (f *fcLayer) CloneTo(g *G.ExprGraph) Layer {
	var newWeights, newBias *G.Node

	if f.Weights() != nil {
		newWeights = f.Weights().CloneTo(g)
	}
	if f.Bias() != nil {
		newBias = f.Bias().CloneTo(g)
	}

	return &fcLayer{
		weights: newWeights,
		bias:    newBias,
		act:     f.act,
	}
}

func (f *fcLayer) Activation() *Activation {
	return f.act
}

func (f *fcLayer) Bias() *G.Node {
	return f.bias
}

func (f *fcLayer) Weights() *G.Node {
	return f.weights
}

// GobEncode implements the gob.GobEncoder interface. Only the layer's
// weight values are encoded; the graph nodes themselves belong to
// whichever network the layer is decoded into.
func (f *fcLayer) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	hasWeights := f.weights != nil
	if err := enc.Encode(hasWeights); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode weights flag")
	}
	if hasWeights {
		if err := enc.Encode(f.weights.Value().(*tensor.Dense)); err != nil {
			return nil, fmt.Errorf("gobencode: could not encode weights: %v",
				err)
		}
	}

	hasBias := f.bias != nil
	if err := enc.Encode(hasBias); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode bias flag")
	}
	if hasBias {
		if err := enc.Encode(f.bias.Value().(*tensor.Dense)); err != nil {
			return nil, fmt.Errorf("gobencode: could not encode bias: %v", err)
		}
	}

	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface. The layer's graph
// nodes must already exist; decoding sets their values to the encoded
// weights.
func (f *fcLayer) GobDecode(in []byte) error {
	buf := bytes.NewReader(in)
	dec := gob.NewDecoder(buf)

	var hasWeights bool
	if err := dec.Decode(&hasWeights); err != nil {
		return fmt.Errorf("gobdecode: could not decode weights flag")
	}
	if hasWeights {
		var weights *tensor.Dense
		if err := dec.Decode(&weights); err != nil {
			return fmt.Errorf("gobdecode: could not decode weights: %v", err)
		}
		if f.weights == nil {
			return fmt.Errorf("gobdecode: layer has no weights node")
		}
		if err := G.Let(f.weights, weights); err != nil {
			return fmt.Errorf("gobdecode: could not set weights: %v", err)
		}
	}

	var hasBias bool
	if err := dec.Decode(&hasBias); err != nil {
		return fmt.Errorf("gobdecode: could not decode bias flag")
	}
	if hasBias {
		var bias *tensor.Dense
		if err := dec.Decode(&bias); err != nil {
			return fmt.Errorf("gobdecode: could not decode bias: %v", err)
		}
		if f.bias == nil {
			return fmt.Errorf("gobdecode: layer has no bias node")
		}
		if err := G.Let(f.bias, bias); err != nil {
			return fmt.Errorf("gobdecode: could not set bias: %v", err)
		}
	}

	return nil
}

// addFCLayers creates the fully connected layers of a network on graph
// g. For index i, hiddenSizes[i] is the number of nodes in layer i,
// biases[i] determines whether layer i has a bias unit, and
// activations[i] is the activation of layer i.
func addFCLayers(g *G.ExprGraph, hiddenSizes []int, biases []bool,
	activations []*Activation, init G.InitWFn, features int) []Layer {
	layers := make([]Layer, len(hiddenSizes))

	inputs := features
	for i, size := range hiddenSizes {
		weights := G.NewMatrix(
			g,
			tensor.Float64,
			G.WithShape(inputs, size),
			G.WithName(fmt.Sprintf("L%vW", i)),
			G.WithInit(init),
		)

		var bias *G.Node
		if biases[i] {
			bias = G.NewMatrix(
				g,
				tensor.Float64,
				G.WithShape(1, size),
				G.WithName(fmt.Sprintf("L%vB", i)),
				G.WithInit(G.Zeroes()),
			)
		}

		layers[i] = &fcLayer{
			weights: weights,
			bias:    bias,
			act:     activations[i],
		}
		inputs = size
	}

	return layers
}
