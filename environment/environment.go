// Package environment outlines the interfaces and structs needed to
// implement concrete environments
package environment

import (
	"fmt"

	"github.com/sweeprl/sweeper/timestep"
	"gonum.org/v1/gonum/mat"
)

// SpecType determines what kind of specification a Spec is. A Spec can
// specify the layout of an action, an observation, a discount, or a
// reward
type SpecType int

const (
	Action SpecType = iota
	Observation
	Discount
	Reward
)

// Cardinality determines the cardinality of a number (discrete or
// continuous)
type Cardinality string

const (
	Continuous Cardinality = "Continuous"
	Discrete   Cardinality = "Discrete"
)

// Spec implements an environment specification, which tells the type,
// shape, and bounds of an action, observation, discount, or reward in
// an environment
type Spec struct {
	Shape      mat.Vector
	Type       SpecType
	LowerBound mat.Vector
	UpperBound mat.Vector
	Cardinality
}

// NewSpec constructs a new environment specification. The shape
// argument outlines the shape of the data described by the
// specification. The argument t outlines what the specification is
// describing (e.g. actions, observations, etc.). The cardinality
// argument describes whether the values that the spec describes are
// continuous or discrete.
func NewSpec(shape mat.Vector, t SpecType, lowerBound,
	upperBound mat.Vector, cardinality Cardinality) Spec {
	if shape.Len() != lowerBound.Len() {
		panic(fmt.Sprintf("shape length %v must match lower bounds length %v",
			shape.Len(), lowerBound.Len()))
	}
	if shape.Len() != upperBound.Len() {
		panic(fmt.Sprintf("shape length %v must match upper bounds length %v",
			shape.Len(), upperBound.Len()))
	}
	return Spec{shape, t, lowerBound, upperBound, cardinality}
}

// Environment implements a simulated environment that an agent can
// interact with through Reset and Step. Environments start ready to
// use: the constructor returns the first TimeStep of the first episode.
type Environment interface {
	// Reset resets the environment between episodes and returns the
	// first TimeStep of the new episode
	Reset() (timestep.TimeStep, error)

	// Step takes one environmental step given an action, returning the
	// next TimeStep and whether it is the last in the episode
	Step(action *mat.VecDense) (timestep.TimeStep, bool, error)

	// CurrentTimeStep returns the last TimeStep of the environment
	CurrentTimeStep() timestep.TimeStep

	ActionSpec() Spec
	ObservationSpec() Spec
	DiscountSpec() Spec
}
