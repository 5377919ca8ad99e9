package strategy

// FlatStrategy never signals. Used as a baseline.
type FlatStrategy struct{}

// NewFlatStrategy creates a FlatStrategy.
func NewFlatStrategy() *FlatStrategy { return &FlatStrategy{} }

// Name returns the strategy identifier.
func (s *FlatStrategy) Name() string { return TypeFlat }

// ShouldBuy never signals.
func (s *FlatStrategy) ShouldBuy(Window) Decision { return Hold }

// ShouldSell never signals.
func (s *FlatStrategy) ShouldSell(Window) Decision { return Hold }

var _ Decider = (*FlatStrategy)(nil)
