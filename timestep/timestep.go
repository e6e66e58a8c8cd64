// Package timestep implements timesteps of the agent-environment interaction
package timestep

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// StepType denotes the type of step that a TimeStep can be: the first
// environmental step, a middle step, or a last step
type StepType int

const (
	First StepType = iota
	Mid
	Last
)

func (s StepType) String() string {
	switch s {
	case First:
		return "First"
	case Last:
		return "Last"
	default:
		return "Mid"
	}
}

// TimeStep packages together a single timestep in an environment
type TimeStep struct {
	StepType    StepType
	Reward      float64
	Discount    float64
	Observation mat.Vector
	Number      int
}

func New(t StepType, r, d float64, o mat.Vector, n int) TimeStep {
	return TimeStep{t, r, d, o, n}
}

// First returns whether a TimeStep is the first in an episode
func (t TimeStep) First() bool {
	return t.StepType == First
}

// Mid returns whether a TimeStep is a middle step in an episode
func (t TimeStep) Mid() bool {
	return t.StepType == Mid
}

// Last returns whether a TimeStep is the last step in an episode
func (t TimeStep) Last() bool {
	return t.StepType == Last
}

func (t TimeStep) String() string {
	str := "TimeStep | Type: %v  |  Reward:  %.2f  |  Discount: %.2f  |  " +
		"Step Number:  %v"

	return fmt.Sprintf(str, t.StepType, t.Reward, t.Discount, t.Number)
}

// Transition packages together a single environmental transition
// (s, a, r, γ, s'). The discount is the discount applicable to values
// of the next state, so it is 0 on transitions into terminal states.
type Transition struct {
	State     mat.Vector
	Action    mat.Vector
	Reward    float64
	Discount  float64
	NextState mat.Vector
}

// NewTransition packages the TimeStep at which action was selected and
// the TimeStep the action led to into a Transition
func NewTransition(step TimeStep, action mat.Vector,
	nextStep TimeStep) Transition {
	return Transition{
		State:     step.Observation,
		Action:    action,
		Reward:    nextStep.Reward,
		Discount:  nextStep.Discount,
		NextState: nextStep.Observation,
	}
}
