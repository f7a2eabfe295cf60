// README: Candidate scorer ranking vehicles for a shipment.
package scoring

import (
	"sort"

	"trackas/internal/modules/fleet"
	"trackas/internal/modules/shipment"
	"trackas/internal/types"
)

const (
	// MaxRadiusKm is the hard candidate radius. Vehicles beyond it are
	// excluded outright, not merely down-weighted.
	MaxRadiusKm = 50.0
	// DefaultLimit caps the ranked list when the caller does not say otherwise.
	DefaultLimit = 5

	weightCompatibility = 0.40
	weightDistance      = 0.25
	weightReliability   = 0.20
	weightWorkload      = 0.10

	// subscriptionBonusPerTier is additive on top of the normalized 1.0
	// scale, so a subscribed fleet can out-rank a perfect non-subscriber.
	subscriptionBonusPerTier = 0.15

	// workloadSaturation is the active-shipment count at which the workload
	// term bottoms out at zero.
	workloadSaturation = 5
)

// Request describes the shipment side of a scoring run.
type Request struct {
	Pickup        types.Point
	RequiredClass string
	Urgency       shipment.Urgency
}

// Breakdown reports each weighted term of a candidate's score.
type Breakdown struct {
	Compatibility     float64
	Distance          float64
	Reliability       float64
	Workload          float64
	SubscriptionBonus float64
}

type Ranked struct {
	Candidate fleet.Candidate
	Score     float64
	Breakdown Breakdown
}

// Score computes the weighted score for a single candidate. The bool result
// is false when the candidate is excluded (beyond the radius cap).
func Score(req Request, c fleet.Candidate) (Ranked, bool) {
	if c.DistanceKm > MaxRadiusKm {
		return Ranked{}, false
	}

	var b Breakdown

	if c.VehicleClass == req.RequiredClass {
		b.Compatibility = weightCompatibility
	}

	distNorm := 1.0 - c.DistanceKm/MaxRadiusKm
	if distNorm < 0 {
		distNorm = 0
	}
	b.Distance = weightDistance * distNorm

	rel := c.Reliability / 100.0
	if rel < 0 {
		rel = 0
	}
	if rel > 1 {
		rel = 1
	}
	b.Reliability = weightReliability * rel

	load := float64(c.ActiveShipments) / workloadSaturation
	if load > 1 {
		load = 1
	}
	b.Workload = weightWorkload * (1.0 - load)

	if c.Owner.Kind == fleet.KindFleet && c.Subscribed {
		b.SubscriptionBonus = subscriptionBonusPerTier * float64(c.SubscriptionTier)
	}

	score := b.Compatibility + b.Distance + b.Reliability + b.Workload + b.SubscriptionBonus
	return Ranked{Candidate: c, Score: score, Breakdown: b}, true
}

// Rank scores the pool and returns at most limit candidates by descending
// score. Ties keep pool order (stable sort); callers that want a
// deterministic tie-break feed the pool nearest-first.
func Rank(req Request, pool []fleet.Candidate, limit int) []Ranked {
	if limit <= 0 {
		limit = DefaultLimit
	}

	ranked := make([]Ranked, 0, len(pool))
	for _, c := range pool {
		if r, ok := Score(req, c); ok {
			ranked = append(ranked, r)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
