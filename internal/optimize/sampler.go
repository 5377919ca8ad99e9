package optimize

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"strategy-lab/internal/domain"
)

// Observation is one completed proposal and its objective value.
type Observation struct {
	Params    domain.Assignment
	Objective float64
}

// Sampler proposes parameter assignments and learns from their outcomes.
type Sampler interface {
	Propose(history []Observation) (domain.Assignment, error)
	Observe(params domain.Assignment, objective float64)
}

// BatchSampler can propose several assignments at once, enabling parallel trials.
type BatchSampler interface {
	Sampler
	ProposeBatch(history []Observation, n int) ([]domain.Assignment, error)
}

// RandomSampler draws every parameter uniformly and independently.
type RandomSampler struct {
	space Space
	names []string

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomSampler creates a RandomSampler. Equal seeds give equal proposal sequences.
func NewRandomSampler(space Space, seed int64) *RandomSampler {
	return &RandomSampler{
		space: space,
		names: space.Names(),
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// Propose draws one assignment.
func (s *RandomSampler) Propose(_ []Observation) (domain.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draw()
}

// ProposeBatch draws n assignments.
func (s *RandomSampler) ProposeBatch(_ []Observation, n int) ([]domain.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Assignment, n)
	for i := range out {
		a, err := s.draw()
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}

// Observe is a no-op: random search ignores history.
func (s *RandomSampler) Observe(domain.Assignment, float64) {}

func (s *RandomSampler) draw() (domain.Assignment, error) {
	a := make(domain.Assignment, len(s.names))
	for _, name := range s.names {
		spec := s.space[name]
		switch spec.Type {
		case domain.ParamInt:
			lo, hi := int64(math.Ceil(spec.Min)), int64(math.Floor(spec.Max))
			if hi < lo {
				return nil, fmt.Errorf("%s: empty integer range", name)
			}
			a[name] = domain.IntValue(lo + s.rng.Int63n(hi-lo+1))
		case domain.ParamFloat:
			a[name] = domain.FloatValue(spec.Min + s.rng.Float64()*(spec.Max-spec.Min))
		case domain.ParamCategorical:
			if len(spec.Choices) == 0 {
				return nil, fmt.Errorf("%s: no choices", name)
			}
			a[name] = domain.CategoricalValue(spec.Choices[s.rng.Intn(len(spec.Choices))])
		default:
			return nil, fmt.Errorf("%s: unsupported type %q", name, spec.Type)
		}
	}
	return a, nil
}

// Grid step bounds.
const (
	DefaultGridSteps = 5    // points per float axis
	MaxGridSteps     = 1000 // upper bound accepted by NewSampler
)

// gridAxis is one dimension of the grid. Values are computed from the
// position on demand, so huge integer ranges cost no memory.
type gridAxis struct {
	spec  Spec
	lo    int64 // first integer of an int axis
	steps int64 // points on a float axis
	size  int64
}

func newGridAxis(spec Spec, steps int) gridAxis {
	ax := gridAxis{spec: spec}
	switch spec.Type {
	case domain.ParamInt:
		lo, hi := math.Ceil(spec.Min), math.Floor(spec.Max)
		if hi >= lo {
			ax.lo = int64(lo)
			ax.size = saturatingSize(hi - lo + 1)
		}
	case domain.ParamFloat:
		ax.steps = int64(steps)
		ax.size = ax.steps
		if spec.Min == spec.Max {
			ax.size = 1
		}
	case domain.ParamCategorical:
		ax.size = int64(len(spec.Choices))
	}
	return ax
}

func (ax gridAxis) value(pos int64) domain.ParamValue {
	switch ax.spec.Type {
	case domain.ParamInt:
		return domain.IntValue(ax.lo + pos)
	case domain.ParamFloat:
		if ax.size == 1 {
			return domain.FloatValue(ax.spec.Min)
		}
		return domain.FloatValue(ax.spec.Min + (ax.spec.Max-ax.spec.Min)*float64(pos)/float64(ax.steps-1))
	default:
		return domain.CategoricalValue(ax.spec.Choices[pos])
	}
}

// saturatingSize converts a float count to int64, clamping at MaxInt64.
func saturatingSize(n float64) int64 {
	if n >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(n)
}

// GridSampler walks the cartesian product of the space in a fixed order:
// every integer in range, every categorical choice and Steps evenly spaced
// points per float axis. It starts over once the grid is exhausted.
type GridSampler struct {
	names []string
	axes  []gridAxis
	total int64 // saturates at MaxInt64

	mu     sync.Mutex
	cursor int64
}

// NewGridSampler creates a GridSampler. steps <= 1 selects DefaultGridSteps.
func NewGridSampler(space Space, steps int) *GridSampler {
	if steps <= 1 {
		steps = DefaultGridSteps
	}
	g := &GridSampler{names: space.Names(), total: 1}
	for _, name := range g.names {
		ax := newGridAxis(space[name], steps)
		g.axes = append(g.axes, ax)
		switch {
		case ax.size == 0 || g.total == 0:
			g.total = 0
		case g.total > math.MaxInt64/ax.size:
			g.total = math.MaxInt64
		default:
			g.total *= ax.size
		}
	}
	return g
}

// Size returns the number of distinct grid points, capped at MaxInt.
func (g *GridSampler) Size() int {
	if g.total > math.MaxInt {
		return math.MaxInt
	}
	return int(g.total)
}

// Propose returns the next grid point.
func (g *GridSampler) Propose(_ []Observation) (domain.Assignment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.next()
}

// ProposeBatch returns the next n grid points.
func (g *GridSampler) ProposeBatch(_ []Observation, n int) ([]domain.Assignment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]domain.Assignment, n)
	for i := range out {
		a, err := g.next()
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}

// Observe is a no-op: the grid order is fixed.
func (g *GridSampler) Observe(domain.Assignment, float64) {}

func (g *GridSampler) next() (domain.Assignment, error) {
	if g.total == 0 {
		return nil, fmt.Errorf("grid is empty")
	}
	idx := g.cursor % g.total
	g.cursor = (g.cursor + 1) % g.total

	a := make(domain.Assignment, len(g.names))
	// Mixed-radix decode, last axis varies fastest.
	for i := len(g.names) - 1; i >= 0; i-- {
		ax := g.axes[i]
		a[g.names[i]] = ax.value(idx % ax.size)
		idx /= ax.size
	}
	return a, nil
}

var (
	_ BatchSampler = (*RandomSampler)(nil)
	_ BatchSampler = (*GridSampler)(nil)
)

// Sampler names accepted by NewSampler.
const (
	SamplerRandom = "random"
	SamplerGrid   = "grid"
)

// NewSampler builds the sampler named kind. Empty selects random.
func NewSampler(kind string, space Space, seed int64, gridSteps int) (Sampler, error) {
	switch kind {
	case SamplerRandom, "":
		return NewRandomSampler(space, seed), nil
	case SamplerGrid:
		if gridSteps > MaxGridSteps {
			return nil, fmt.Errorf("%w: grid steps %d exceed %d", ErrConfiguration, gridSteps, MaxGridSteps)
		}
		return NewGridSampler(space, gridSteps), nil
	default:
		return nil, fmt.Errorf("%w: unknown sampler %q", ErrConfiguration, kind)
	}
}
