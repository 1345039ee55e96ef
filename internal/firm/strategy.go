// Pluggable per-firm behavior — one firm core, many behavioral variants.
package firm

import "github.com/talgya/firmsim/internal/entropy"

// Strategy is the capability set that varies across the population: how much
// to budget for fixed capital, whom to imitate, and how to drift. One Firm
// core with a Strategy per member replaces a hierarchy of near-duplicate
// firm implementations.
type Strategy interface {
	// InvestmentBudget returns the cash the firm is willing to commit to
	// machine purchases this period.
	InvestmentBudget(f *Firm) int64
	// Imitate lets the firm copy behavior from its peers.
	Imitate(self *Firm, peers []*Firm)
	// Mutate drifts the strategy's parameters.
	Mutate(stream *entropy.Stream)
}

// AdaptiveStrategy invests a share of free cash, imitates the markup of the
// most profitable peer, and drifts its parameters by small jitters.
type AdaptiveStrategy struct {
	// InvestmentShare of cash above debt service committed to machines.
	InvestmentShare float64
	// Markup aspiration passed to the sales floor via unit cost.
	Markup float64
	// Jitter bounds parameter drift per mutation.
	Jitter float64
}

// NewAdaptiveStrategy returns the default strategy variant.
func NewAdaptiveStrategy(investmentShare, markup, jitter float64) *AdaptiveStrategy {
	return &AdaptiveStrategy{
		InvestmentShare: investmentShare,
		Markup:          markup,
		Jitter:          jitter,
	}
}

func (s *AdaptiveStrategy) InvestmentBudget(f *Firm) int64 {
	free := f.Account().Balance() - f.Finance().RequiredPayments()
	if free <= 0 {
		return 0
	}
	return int64(s.InvestmentShare * float64(free))
}

func (s *AdaptiveStrategy) Imitate(self *Firm, peers []*Firm) {
	var best *Firm
	for _, p := range peers {
		if p == self || p.Bankrupt() {
			continue
		}
		if best == nil || p.LastProfit() > best.LastProfit() {
			best = p
		}
	}
	if best == nil {
		return
	}
	if peer, ok := best.Strategy().(*AdaptiveStrategy); ok && peer.Markup > 0 {
		s.Markup = peer.Markup
	}
}

func (s *AdaptiveStrategy) Mutate(stream *entropy.Stream) {
	s.Markup *= 1 + s.Jitter*(2*stream.Float()-1)
	if s.Markup < 0 {
		s.Markup = 0
	}
	s.InvestmentShare *= 1 + s.Jitter*(2*stream.Float()-1)
	if s.InvestmentShare < 0 {
		s.InvestmentShare = 0
	}
	if s.InvestmentShare > 1 {
		s.InvestmentShare = 1
	}
}
