// Sales management — offer sizing, inventory-signal pricing, FIFO selling.
package firm

import (
	"math"

	"github.com/talgya/firmsim/internal/entropy"
	"github.com/talgya/firmsim/internal/sim"
)

// SalesManager converts inventory into a market offer each period and adapts
// price and offering target from the inventory-ratio signal.
type SalesManager struct {
	cfg    sim.SalesConfig
	stream *entropy.Stream

	inventory *Inventory

	price            float64
	postedPrice      float64 // price the standing offer was posted at
	productionTarget int

	// Per-period counters, reset at open.
	offeredVolume   int64
	remainingOffer  int64
	salesVolume     int64
	salesValue      int64
	costOfGoodsSold int64
}

// NewSalesManager creates a sales manager over the finished-goods inventory.
func NewSalesManager(cfg sim.SalesConfig, stream *entropy.Stream, inv *Inventory) *SalesManager {
	return &SalesManager{
		cfg:              cfg,
		stream:           stream,
		inventory:        inv,
		price:            cfg.InitialPrice,
		postedPrice:      cfg.InitialPrice,
		productionTarget: cfg.TargetFloor,
	}
}

// Open resets the per-period counters and sizes the offer from inventory.
// The divisor smooths supply: only a slice of inventory is offered at once.
func (s *SalesManager) Open() {
	s.salesVolume = 0
	s.salesValue = 0
	s.costOfGoodsSold = 0
	s.offeredVolume = s.inventory.Volume() / int64(s.cfg.OfferDivisor)
	s.remainingOffer = s.offeredVolume
}

// Refresh re-sizes the offer after production added to inventory and locks
// in the price the offer stands at. A standing offer is honored at its
// posted price until replaced, even after the next price update.
func (s *SalesManager) Refresh() {
	s.offeredVolume = s.inventory.Volume() / int64(s.cfg.OfferDivisor)
	s.remainingOffer = s.offeredVolume
	s.postedPrice = s.price
}

// Price returns the current unit price.
func (s *SalesManager) Price() float64 {
	return s.price
}

// ProductionTarget returns the current offering/production target.
func (s *SalesManager) ProductionTarget() int {
	return s.productionTarget
}

// OfferedVolume returns the volume posted this period.
func (s *SalesManager) OfferedVolume() int64 {
	return s.remainingOffer
}

// SalesVolume returns units sold this period.
func (s *SalesManager) SalesVolume() int64 {
	return s.salesVolume
}

// SalesValue returns payments received this period.
func (s *SalesManager) SalesValue() int64 {
	return s.salesValue
}

// CostOfGoodsSold returns the FIFO book value of units sold this period.
func (s *SalesManager) CostOfGoodsSold() int64 {
	return s.costOfGoodsSold
}

// UpdatePrice adapts price and target from the inventory ratio: inventory
// volume against the current target, compared to the two thresholds. Below
// sigma1 the shelves are emptying — raise the price and expand the target;
// above sigma2 inventory piles up — cut the price and shrink the target. In
// between, leave both alone. A cost warning from the financing gate forces
// the raise branch regardless of the ratio.
func (s *SalesManager) UpdatePrice(unitCost float64, costWarning bool) {
	target := s.productionTarget
	if target < 1 {
		target = 1
	}
	ratio := float64(s.inventory.Volume()) / float64(target)

	switch {
	case costWarning || ratio < s.cfg.Sigma1:
		s.price *= 1 + s.cfg.PriceFlex*s.stream.Float()
		if floor := (1 + s.cfg.MinMarkup) * unitCost; s.price < floor {
			s.price = floor
		}
		s.productionTarget += s.cfg.TargetIncrement
	case ratio > s.cfg.Sigma2:
		s.price *= 1 - s.cfg.PriceFlex*s.stream.Float()
		if s.price < 1 {
			s.price = 1
		}
		s.productionTarget -= s.cfg.TargetIncrement
		if s.productionTarget < s.cfg.TargetFloor {
			s.productionTarget = s.cfg.TargetFloor
		}
	}
}

// Sell validates the payment against the posted price, removes the volume
// FIFO from inventory, and updates sales and cost-of-goods-sold counters.
// The payment must equal price × volume; at volume 1 an off-by-one unit is
// tolerated to absorb rounding on the buyer's side.
func (s *SalesManager) Sell(volume int64, payment int64) (int64, error) {
	if volume <= 0 {
		return 0, violationf("sale of non-positive volume %d", volume)
	}
	if volume > s.remainingOffer {
		return 0, violationf("sale of %d exceeds remaining offer %d", volume, s.remainingOffer)
	}
	expected := int64(math.Floor(s.postedPrice * float64(volume)))
	if payment != expected {
		tolerated := volume == 1 && (payment == expected+1 || payment == expected-1)
		if !tolerated {
			return 0, violationf("payment %d for %d units at price %.2f, expected %d",
				payment, volume, s.postedPrice, expected)
		}
	}

	cost, err := s.inventory.Consume(volume)
	if err != nil {
		return 0, err
	}
	s.remainingOffer -= volume
	s.salesVolume += volume
	s.salesValue += payment
	s.costOfGoodsSold += cost
	return cost, nil
}
