package scoring

import "github.com/1sec-project/instatrace/internal/core"

// Tiers discretizes probabilities into risk tiers. Bins are right-closed,
// (lo, hi], and the first bin also includes its lower edge.
type Tiers struct {
	edges []float64
}

// NewTiers validates the bin edges. A nil slice selects the default edges.
func NewTiers(edges []float64) (Tiers, error) {
	if edges == nil {
		edges = core.DefaultTierEdges
	}
	if err := core.ValidateTierEdges(edges); err != nil {
		return Tiers{}, err
	}
	return Tiers{edges: append([]float64(nil), edges...)}, nil
}

// Classify maps p onto a tier. Values outside the edge range clamp to the
// lowest or highest tier.
func (t Tiers) Classify(p float64) core.RiskTier {
	for i := 1; i < len(t.edges); i++ {
		if p <= t.edges[i] {
			return core.RiskTier(i - 1)
		}
	}
	return core.TierVeryHigh
}
