// Credit contracts and the ranked external credit search.
package firm

import (
	"math"

	"github.com/talgya/firmsim/internal/market"
)

// CreditContract is one loan from one creditor. Principal falls due at
// maturity; interest is due every period on the outstanding volume; unpaid
// interest defers to the next period as an additional liability.
type CreditContract struct {
	seq        uint64 // creation order, the haircut tie-break
	CreditorID uint64
	Volume     int64 // outstanding principal
	Rate       float64
	Horizon    int
	Maturity   int // period the principal falls due
	Deferred   int64
	Operating  bool // operating vs investment/fixed-capital loan
}

// InterestDue returns this period's interest on the outstanding principal.
func (c *CreditContract) InterestDue() int64 {
	return int64(c.Rate * float64(c.Volume))
}

// PrincipalDue returns the principal falling due at the given period.
func (c *CreditContract) PrincipalDue(period int) int64 {
	if period >= c.Maturity {
		return c.Volume
	}
	return 0
}

// TotalDue returns interest + deferred interest + due principal.
func (c *CreditContract) TotalDue(period int) int64 {
	return c.InterestDue() + c.Deferred + c.PrincipalDue(period)
}

// Outstanding returns the contract's remaining liability.
func (c *CreditContract) Outstanding() int64 {
	return c.Volume + c.Deferred
}

// CreditDraw is one accepted slice of a standing credit offer.
type CreditDraw struct {
	LenderID uint64
	Rate     float64
	Amount   int64
}

// CreditPlan is the outcome of a credit search: enough accepted offers to
// cover the required credit, plus the blended carrying cost.
type CreditPlan struct {
	Draws []CreditDraw
	// Available is the total credit accumulated, >= the required credit
	// when the search succeeded.
	Available int64
	// Cost is the straight-line average carrying cost of the drawn credit
	// over the horizon, risk premium included.
	Cost float64
}

// CreditSearch queries the external credit market for offers, cheapest
// first, accumulating until the required credit is met. Volume planned by a
// served search is reserved until the plan is drawn or released, so repeated
// feasibility checks within a period don't double-count a lender's standing
// volume.
type CreditSearch struct {
	credit    market.CreditMarket
	collected map[uint64]int64 // lender id → volume reserved by pending plans
}

// NewCreditSearch creates a search over the given credit market.
func NewCreditSearch(credit market.CreditMarket) *CreditSearch {
	cs := &CreditSearch{credit: credit}
	cs.Reset()
	return cs
}

// Reset forgets the reservations collected so far. Called once per period at
// open.
func (cs *CreditSearch) Reset() {
	cs.collected = make(map[uint64]int64)
}

// Release drops the reservations behind the given draws: either the credit
// was actually drawn, so the lender's standing offer already reflects it, or
// the plan was abandoned before funding.
func (cs *CreditSearch) Release(draws ...CreditDraw) {
	for _, d := range draws {
		rest := cs.collected[d.LenderID] - d.Amount
		if rest > 0 {
			cs.collected[d.LenderID] = rest
		} else {
			delete(cs.collected, d.LenderID)
		}
	}
}

// Search accumulates the cheapest standing offers until they cover the
// required credit. Returns the plan and whether the market could serve it.
// The financing cost of each accepted offer is
// (price + price·riskPremium) × volume × (horizon+1) / (2·horizon),
// pro-rated on the final partially-used offer.
func (cs *CreditSearch) Search(required int64, horizon int, riskPremium float64) (CreditPlan, bool) {
	plan := CreditPlan{}
	if required <= 0 {
		return plan, true
	}

	carry := float64(horizon+1) / float64(2*horizon)
	for _, offer := range cs.credit.Offers() {
		available := offer.Volume - cs.collected[offer.SupplierID]
		if available <= 0 {
			continue
		}
		draw := available
		if plan.Available+draw > required {
			draw = required - plan.Available
		}
		plan.Draws = append(plan.Draws, CreditDraw{
			LenderID: offer.SupplierID,
			Rate:     offer.Price,
			Amount:   draw,
		})
		plan.Available += draw
		plan.Cost += (offer.Price + offer.Price*riskPremium) * float64(draw) * carry
		if plan.Available >= required {
			// Only a served plan reserves its draws; a failed search
			// leaves the market untouched.
			for _, d := range plan.Draws {
				cs.collected[d.LenderID] += d.Amount
			}
			return plan, true
		}
	}
	// Market exhausted short of the requirement.
	return plan, false
}

// CostUnits returns the plan cost in whole units of account, rounded up so
// the gate never understates financing cost.
func (p CreditPlan) CostUnits() int64 {
	return int64(math.Ceil(p.Cost))
}
