package firm

import (
	"testing"

	"github.com/talgya/firmsim/internal/market"
)

func newTestCredit() *market.CreditBook {
	return market.NewCreditBook(
		market.NewBasicBank(1, 0.03, 500),
		market.NewBasicBank(2, 0.05, 500),
	)
}

func TestCreditSearchCheapestFirst(t *testing.T) {
	cs := NewCreditSearch(newTestCredit())

	plan, ok := cs.Search(800, 1, 0)
	if !ok {
		t.Fatal("search failed with sufficient market depth")
	}
	if plan.Available != 800 {
		t.Fatalf("accumulated %d, want exactly 800", plan.Available)
	}
	if len(plan.Draws) != 2 {
		t.Fatalf("got %d draws, want 2", len(plan.Draws))
	}
	if plan.Draws[0].LenderID != 1 || plan.Draws[0].Amount != 500 {
		t.Fatalf("first draw %+v, want the cheap bank in full", plan.Draws[0])
	}
	if plan.Draws[1].LenderID != 2 || plan.Draws[1].Amount != 300 {
		t.Fatalf("second draw %+v, want 300 pro-rated from the dearer bank", plan.Draws[1])
	}

	// Horizon 1, no premium: carrying cost is just rate × volume.
	want := 0.03*500 + 0.05*300
	if plan.Cost != want {
		t.Fatalf("cost %g, want %g", plan.Cost, want)
	}
	if plan.CostUnits() != 30 {
		t.Fatalf("cost units %d, want 30", plan.CostUnits())
	}
}

func TestCreditSearchSkipsCollectedOffers(t *testing.T) {
	cs := NewCreditSearch(newTestCredit())

	if _, ok := cs.Search(800, 1, 0); !ok {
		t.Fatal("first search failed")
	}
	// 200 remains standing across the market; a second round for 300 in
	// the same period must not re-count what was already collected.
	if _, ok := cs.Search(300, 1, 0); ok {
		t.Fatal("second search re-used offers collected this round")
	}
	if plan, ok := cs.Search(200, 1, 0); !ok || plan.Draws[0].LenderID != 2 {
		t.Fatalf("remaining volume not served: ok=%v plan=%+v", ok, plan)
	}

	cs.Reset()
	if _, ok := cs.Search(800, 1, 0); !ok {
		t.Fatal("search after reset still skips offers")
	}
}

func TestCreditSearchFailedRoundLeavesOffersStanding(t *testing.T) {
	cs := NewCreditSearch(newTestCredit())

	// 1000 stands across the market; an unserved search must not keep the
	// partial draws it accumulated reserved.
	if _, ok := cs.Search(2000, 1, 0); ok {
		t.Fatal("search succeeded beyond total market depth")
	}
	plan, ok := cs.Search(800, 1, 0)
	if !ok {
		t.Fatal("standing credit unavailable after a failed search")
	}
	if plan.Available != 800 || len(plan.Draws) != 2 {
		t.Fatalf("plan %+v, want 800 across both banks", plan)
	}
}

func TestCreditSearchReleaseRestoresReservation(t *testing.T) {
	cs := NewCreditSearch(newTestCredit())

	plan, ok := cs.Search(800, 1, 0)
	if !ok {
		t.Fatal("search failed")
	}
	cs.Release(plan.Draws...)
	if again, ok := cs.Search(800, 1, 0); !ok || again.Available != 800 {
		t.Fatalf("released credit not searchable: ok=%v plan=%+v", ok, again)
	}
}

func TestCreditSearchExhaustedMarket(t *testing.T) {
	cs := NewCreditSearch(newTestCredit())
	if _, ok := cs.Search(2000, 1, 0); ok {
		t.Fatal("search succeeded beyond total market depth")
	}
}

func TestCreditSearchRiskPremiumAndHorizon(t *testing.T) {
	cs := NewCreditSearch(newTestCredit())

	// Horizon 3: average life of straight-line repayment is (3+1)/(2·3).
	plan, ok := cs.Search(500, 3, 0.5)
	if !ok {
		t.Fatal("search failed")
	}
	want := (0.03 + 0.03*0.5) * 500 * (4.0 / 6.0)
	if plan.Cost != want {
		t.Fatalf("cost %g, want %g", plan.Cost, want)
	}
}

func TestCreditSearchZeroRequirement(t *testing.T) {
	cs := NewCreditSearch(newTestCredit())
	plan, ok := cs.Search(0, 1, 0)
	if !ok || len(plan.Draws) != 0 {
		t.Fatalf("zero requirement: ok=%v draws=%d", ok, len(plan.Draws))
	}
}

func TestCreditContractDues(t *testing.T) {
	c := &CreditContract{Volume: 9000, Rate: 0.1, Maturity: 5}

	if got := c.InterestDue(); got != 900 {
		t.Fatalf("interest %d, want 900", got)
	}
	if got := c.PrincipalDue(4); got != 0 {
		t.Fatalf("principal %d before maturity, want 0", got)
	}
	if got := c.PrincipalDue(5); got != 9000 {
		t.Fatalf("principal %d at maturity, want 9000", got)
	}
	if got := c.TotalDue(4); got != 900 {
		t.Fatalf("total due %d before maturity, want 900", got)
	}
	if got := c.TotalDue(5); got != 9900 {
		t.Fatalf("total due %d at maturity, want 9900", got)
	}

	c.Deferred = 50
	if got := c.TotalDue(4); got != 950 {
		t.Fatalf("total due with deferral %d, want 950", got)
	}
	if got := c.Outstanding(); got != 9050 {
		t.Fatalf("outstanding %d, want 9050", got)
	}
}
