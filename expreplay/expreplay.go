// Package expreplay implements experience replay buffers
package expreplay

import (
	"fmt"
	"math/rand"

	"github.com/sweeprl/sweeper/timestep"
)

// Config implements a specific configuration of an ExperienceReplayer
type Config struct {
	MinCapacity int
	MaxCapacity int
	BatchSize   int
}

// Create creates and returns the ExperienceReplayer with the specified
// Config
func (c Config) Create(featureSize, actionSize int,
	seed int64) (ExperienceReplayer, error) {
	return New(c.MinCapacity, c.MaxCapacity, featureSize, actionSize,
		c.BatchSize, seed)
}

// ExperienceReplayer implements an experience replay buffer
type ExperienceReplayer interface {
	// Add adds a transition to the buffer, evicting the oldest
	// transition when the buffer is full
	Add(t timestep.Transition) error

	// Sample samples a batch of experience from the buffer and returns
	// the batch as flattened (S, A, R, γ, S') slices
	Sample() ([]float64, []float64, []float64, []float64, []float64, error)

	// Capacity returns the current number of samples in the buffer
	Capacity() int

	// MaxCapacity returns the maximum allowable samples in the buffer
	MaxCapacity() int

	// MinCapacity returns the number of samples required to be in
	// the buffer before the buffer can be sampled
	MinCapacity() int

	// BatchSize returns the number of samples returned by Sample()
	BatchSize() int
}

// cache implements a concrete ExperienceReplayer. Transitions are
// stored in flat caches indexed by a ring position: once the buffer is
// full, each insert overwrites the oldest transition (FIFO eviction).
// Sampling is uniform without replacement.
type cache struct {
	stateCache     []float64
	actionCache    []float64
	rewardCache    []float64
	discountCache  []float64
	nextStateCache []float64

	insertAt int
	size     int

	minCapacity int
	maxCapacity int
	batchSize   int
	featureSize int
	actionSize  int

	rng *rand.Rand
}

// New creates and returns a new ExperienceReplayer. The featureSize
// and actionSize parameters define the size of the feature and action
// vectors stored per transition.
func New(minCapacity, maxCapacity, featureSize, actionSize, batchSize int,
	seed int64) (ExperienceReplayer, error) {
	if minCapacity <= 0 {
		return nil, fmt.Errorf("new: minCapacity must be > 0")
	}
	if maxCapacity < minCapacity {
		return nil, fmt.Errorf("new: cannot have min capacity (%v) > max "+
			"capacity (%v)", minCapacity, maxCapacity)
	}
	if batchSize > minCapacity {
		return nil, fmt.Errorf("new: cannot have batch size (%v) > min "+
			"buffer capacity (%v)", batchSize, minCapacity)
	}

	return &cache{
		stateCache:     make([]float64, maxCapacity*featureSize),
		actionCache:    make([]float64, maxCapacity*actionSize),
		rewardCache:    make([]float64, maxCapacity),
		discountCache:  make([]float64, maxCapacity),
		nextStateCache: make([]float64, maxCapacity*featureSize),

		minCapacity: minCapacity,
		maxCapacity: maxCapacity,
		batchSize:   batchSize,
		featureSize: featureSize,
		actionSize:  actionSize,

		rng: rand.New(rand.NewSource(seed)),
	}, nil
}

// Add adds a transition to the cache
func (c *cache) Add(t timestep.Transition) error {
	if t.State.Len() != c.featureSize || t.NextState.Len() != c.featureSize {
		return fmt.Errorf("add: invalid feature size \n\twant(%v)\n\thave(%v)",
			c.featureSize, t.State.Len())
	}
	if t.Action.Len() != c.actionSize {
		return fmt.Errorf("add: invalid action size \n\twant(%v)\n\thave(%v)",
			c.actionSize, t.Action.Len())
	}

	index := c.insertAt
	c.insertAt = (c.insertAt + 1) % c.maxCapacity
	if c.size < c.maxCapacity {
		c.size++
	}

	stateInd := index * c.featureSize
	for i := 0; i < c.featureSize; i++ {
		c.stateCache[stateInd+i] = t.State.AtVec(i)
		c.nextStateCache[stateInd+i] = t.NextState.AtVec(i)
	}

	actionInd := index * c.actionSize
	for i := 0; i < c.actionSize; i++ {
		c.actionCache[actionInd+i] = t.Action.AtVec(i)
	}

	c.rewardCache[index] = t.Reward
	c.discountCache[index] = t.Discount

	return nil
}

// Sample samples and returns a batch of transitions from the replay
// buffer. Sampling is uniform over the stored transitions, without
// replacement within a batch.
func (c *cache) Sample() ([]float64, []float64, []float64, []float64,
	[]float64, error) {
	if c.size == 0 {
		err := &ExpReplayError{
			Op:  "sample",
			Err: errEmptyCache,
		}
		return nil, nil, nil, nil, nil, err
	}
	if c.size < c.minCapacity {
		err := &ExpReplayError{
			Op:  "sample",
			Err: errInsufficientSamples,
		}
		return nil, nil, nil, nil, nil, err
	}

	indices := c.rng.Perm(c.size)[:c.batchSize]

	stateBatch := make([]float64, c.batchSize*c.featureSize)
	nextStateBatch := make([]float64, c.batchSize*c.featureSize)
	actionBatch := make([]float64, c.batchSize*c.actionSize)
	rewardBatch := make([]float64, c.batchSize)
	discountBatch := make([]float64, c.batchSize)

	for i, index := range indices {
		batchStart := i * c.featureSize
		expStart := index * c.featureSize
		copy(stateBatch[batchStart:batchStart+c.featureSize],
			c.stateCache[expStart:expStart+c.featureSize])
		copy(nextStateBatch[batchStart:batchStart+c.featureSize],
			c.nextStateCache[expStart:expStart+c.featureSize])

		batchStart = i * c.actionSize
		expStart = index * c.actionSize
		copy(actionBatch[batchStart:batchStart+c.actionSize],
			c.actionCache[expStart:expStart+c.actionSize])

		rewardBatch[i] = c.rewardCache[index]
		discountBatch[i] = c.discountCache[index]
	}

	return stateBatch, actionBatch, rewardBatch, discountBatch,
		nextStateBatch, nil
}

// Capacity returns the current number of elements in the cache that
// are available for sampling
func (c *cache) Capacity() int {
	return c.size
}

// MaxCapacity returns the maximum number of elements that are allowed
// in the cache
func (c *cache) MaxCapacity() int {
	return c.maxCapacity
}

// MinCapacity returns the minimum number of elements required in the
// cache before sampling is allowed
func (c *cache) MinCapacity() int {
	return c.minCapacity
}

// BatchSize returns the number of samples returned by Sample()
func (c *cache) BatchSize() int {
	return c.batchSize
}

// String returns the string representation of the cache
func (c *cache) String() string {
	baseStr := "Capacity: %v of %v \nStates: %v \nActions: %v \nRewards: " +
		"%v \nDiscounts: %v \nNext States: %v"
	return fmt.Sprintf(baseStr, c.size, c.maxCapacity, c.stateCache,
		c.actionCache, c.rewardCache, c.discountCache, c.nextStateCache)
}
