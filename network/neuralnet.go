// Package network implements the neural networks used as value
// function approximators
package network

import (
	"encoding/gob"

	G "gorgonia.org/gorgonia"
)

// NeuralNet implements a neural network which can be used in a Policy
// or a Learner
type NeuralNet interface {
	gob.GobEncoder
	gob.GobDecoder

	// Graph returns the computational graph that the network is a
	// part of
	Graph() *G.ExprGraph

	// Clone clones the network to a new computational graph
	Clone() (NeuralNet, error)

	// CloneWithBatch clones the network to a new computational graph
	// with a new input batch size
	CloneWithBatch(batch int) (NeuralNet, error)

	// BatchSize returns the number of rows the network predicts on in
	// a single forward pass
	BatchSize() int

	// Features returns the number of features in a single input row
	Features() int

	// Outputs returns the number of values the network predicts per
	// input row
	Outputs() int

	// SetInput sets the value of the network's input node before the
	// forward pass is run
	SetInput(input []float64) error

	// Set sets the weights of the network to be equal to those of
	// another network
	Set(source NeuralNet) error

	// Polyak sets the weights of the network to a polyak average
	// between its existing weights and those of another network
	Polyak(source NeuralNet, tau float64) error

	// Learnables returns the learnable nodes of the network
	Learnables() G.Nodes

	// Model returns the learnable nodes with their gradients
	Model() []G.ValueGrad

	// Output returns the output of the last forward pass run by a VM
	Output() G.Value

	// Prediction returns the node of the computational graph that
	// stores the network's prediction
	Prediction() *G.Node
}
