package firm

import (
	"math"
	"testing"

	"github.com/talgya/firmsim/internal/entropy"
	"github.com/talgya/firmsim/internal/sim"
)

func testSalesConfig() sim.SalesConfig {
	return sim.SalesConfig{
		OfferDivisor:    4,
		Sigma1:          0.4,
		Sigma2:          0.8,
		PriceFlex:       0.1,
		InitialPrice:    10,
		MinMarkup:       0.05,
		TargetIncrement: 10,
		TargetFloor:     50,
	}
}

func newTestSales(cfg sim.SalesConfig, stock int64) (*SalesManager, *Inventory) {
	inv := NewInventory(1)
	if stock > 0 {
		inv.Push(Materials{Stage: 1, Volume: stock, Value: stock * 2, ProducedPeriod: 0})
	}
	return NewSalesManager(cfg, entropy.NewStream(9), inv), inv
}

func TestOpenSizesOfferFromInventory(t *testing.T) {
	s, _ := newTestSales(testSalesConfig(), 100)
	s.Open()
	if s.OfferedVolume() != 25 {
		t.Fatalf("offer %d, want inventory/divisor = 25", s.OfferedVolume())
	}
}

func TestUpdatePriceRaisesOnLowInventory(t *testing.T) {
	s, _ := newTestSales(testSalesConfig(), 0)
	before := s.Price()
	target := s.ProductionTarget()

	s.UpdatePrice(1, false)
	if s.Price() < before {
		t.Fatalf("price fell from %g to %g on empty inventory", before, s.Price())
	}
	if s.ProductionTarget() != target+10 {
		t.Fatalf("target %d, want %d", s.ProductionTarget(), target+10)
	}
}

func TestUpdatePriceRespectsMarkupFloor(t *testing.T) {
	cfg := testSalesConfig()
	s, _ := newTestSales(cfg, 0)

	unitCost := 100.0
	s.UpdatePrice(unitCost, false)
	if floor := (1 + cfg.MinMarkup) * unitCost; s.Price() != floor {
		t.Fatalf("price %g, want clamped to the markup floor %g", s.Price(), floor)
	}
}

func TestUpdatePriceCutsOnHighInventory(t *testing.T) {
	cfg := testSalesConfig()
	s, _ := newTestSales(cfg, 1000) // ratio 1000/50 far above sigma2
	before := s.Price()

	s.UpdatePrice(1, false)
	if s.Price() >= before {
		t.Fatalf("price %g did not fall from %g on overflowing inventory", s.Price(), before)
	}
	// Target shrinks but never below the floor.
	if s.ProductionTarget() != cfg.TargetFloor {
		t.Fatalf("target %d, want floor %d", s.ProductionTarget(), cfg.TargetFloor)
	}
}

func TestUpdatePriceNeverBelowOneUnit(t *testing.T) {
	cfg := testSalesConfig()
	cfg.InitialPrice = 1
	s, _ := newTestSales(cfg, 1000)

	s.UpdatePrice(0, false)
	if s.Price() < 1 {
		t.Fatalf("price %g fell below one unit of account", s.Price())
	}
}

func TestCostWarningForcesPriceRaise(t *testing.T) {
	s, _ := newTestSales(testSalesConfig(), 1000) // inventory signal says cut
	before := s.Price()
	target := s.ProductionTarget()

	s.UpdatePrice(1, true)
	if s.Price() < before {
		t.Fatalf("cost warning ignored: price %g below %g", s.Price(), before)
	}
	if s.ProductionTarget() != target+10 {
		t.Fatalf("cost warning ignored: target %d", s.ProductionTarget())
	}
}

func TestSellValidatesPayment(t *testing.T) {
	s, _ := newTestSales(testSalesConfig(), 100)
	s.Open()

	expected := int64(math.Floor(s.Price() * 10))
	if _, err := s.Sell(10, expected+1); err == nil {
		t.Fatal("mispriced multi-unit payment accepted")
	}
	cost, err := s.Sell(10, expected)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if cost != 20 {
		t.Fatalf("cost of goods sold %d, want 20", cost)
	}
	if s.SalesVolume() != 10 || s.SalesValue() != expected || s.CostOfGoodsSold() != 20 {
		t.Fatalf("counters volume=%d value=%d cogs=%d",
			s.SalesVolume(), s.SalesValue(), s.CostOfGoodsSold())
	}
}

func TestSellToleratesRoundingOnSingleUnit(t *testing.T) {
	s, _ := newTestSales(testSalesConfig(), 100)
	s.Open()

	expected := int64(math.Floor(s.Price()))
	if _, err := s.Sell(1, expected+1); err != nil {
		t.Fatalf("one-unit rounding rejected: %v", err)
	}
	if _, err := s.Sell(1, expected-1); err != nil {
		t.Fatalf("one-unit rounding rejected: %v", err)
	}
	if _, err := s.Sell(1, expected+2); err == nil {
		t.Fatal("two-unit mispricing accepted")
	}
}

func TestSellBoundedByRemainingOffer(t *testing.T) {
	s, _ := newTestSales(testSalesConfig(), 100)
	s.Open() // offer 25

	if _, err := s.Sell(26, int64(math.Floor(s.Price()*26))); err == nil {
		t.Fatal("sale beyond the standing offer accepted")
	}
	if _, err := s.Sell(0, 0); err == nil {
		t.Fatal("zero-volume sale accepted")
	}
}

func TestStandingOfferHonoredAfterPriceUpdate(t *testing.T) {
	s, _ := newTestSales(testSalesConfig(), 100)
	s.Open()
	posted := s.Price()

	// The price moves, but the standing offer was posted at the old price
	// and sells at it until the offer is replaced.
	s.UpdatePrice(1, true)
	if s.Price() == posted {
		t.Fatal("price update did not move the price")
	}
	if _, err := s.Sell(10, int64(math.Floor(posted*10))); err != nil {
		t.Fatalf("sale at the posted price rejected: %v", err)
	}

	s.Refresh()
	if _, err := s.Sell(10, int64(math.Floor(s.Price()*10))); err != nil {
		t.Fatalf("sale at the refreshed price rejected: %v", err)
	}
}
