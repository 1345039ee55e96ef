package firm

import (
	"testing"

	"github.com/talgya/firmsim/internal/entropy"
	"github.com/talgya/firmsim/internal/market"
	"github.com/talgya/firmsim/internal/sim"
)

// poolLabor hands out as many workers as asked for and swallows wage bills.
type poolLabor struct {
	nextWorker uint64
	lastBill   int64
}

func (l *poolLabor) Hire(employerID uint64, count int, wage int64) []JobContract {
	out := make([]JobContract, count)
	for i := range out {
		l.nextWorker++
		out[i] = JobContract{WorkerID: l.nextWorker, Wage: wage}
	}
	return out
}

func (l *poolLabor) PayWages(p Payment) error {
	l.lastBill = p.Amount()
	return nil
}

type firmFixture struct {
	firm  *Firm
	clock *sim.Clock
	goods *market.OfferBook
	pool  []*market.Household
}

func newFirmFixture(t *testing.T, extraHouseholds int) *firmFixture {
	t.Helper()
	cfg := sim.DefaultConfig()
	clock := sim.NewClock()
	stream := entropy.NewStream(cfg.Seed)

	households := int(cfg.Sector.InitialCapital/cfg.Sector.ContributionPerShareholder) + extraHouseholds
	pool := make([]*market.Household, households)
	for i := range pool {
		pool[i] = market.NewHousehold(uint64(1000+i), cfg.Sector.ContributionPerShareholder)
	}

	goods := market.NewOfferBook()
	credit := market.NewCreditBook(
		market.NewBasicBank(1, 0.03, 2_000_000),
		market.NewBasicBank(2, 0.05, 2_000_000),
	)

	f := New(1, cfg, Deps{
		Clock:        clock,
		Stream:       stream.Derive(1),
		Account:      market.NewAccount(1, 0),
		Goods:        goods,
		Credit:       credit,
		Labor:        &poolLabor{},
		Shareholders: market.NewHouseholdPool(pool),
		Strategy:     NewAdaptiveStrategy(0.2, 0.1, 0.05),
	})
	goods.Register(f)
	if err := f.SeedOwnership(); err != nil {
		t.Fatalf("seed ownership: %v", err)
	}
	return &firmFixture{firm: f, clock: clock, goods: goods, pool: pool}
}

func (fx *firmFixture) runPeriod(t *testing.T, trade func()) {
	t.Helper()
	f := fx.firm
	f.Open()
	if err := f.PlanProduction(); err != nil {
		t.Fatalf("period %d plan: %v", fx.clock.Period(), err)
	}
	f.OfferJobs()
	if err := f.Production(); err != nil {
		t.Fatalf("period %d production: %v", fx.clock.Period(), err)
	}
	if trade != nil {
		trade()
	}
	if err := f.PayInterest(); err != nil {
		t.Fatalf("period %d pay interest: %v", fx.clock.Period(), err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("period %d close: %v", fx.clock.Period(), err)
	}
	fx.clock.Advance()
}

func TestSeedOwnershipRaisesInitialCapital(t *testing.T) {
	fx := newFirmFixture(t, 0)
	f := fx.firm

	if f.Equity() != 200_000 {
		t.Fatalf("equity %d after seeding, want 200000", f.Equity())
	}
	if f.Account().Balance() != 200_000 {
		t.Fatalf("cash %d, want 200000", f.Account().Balance())
	}
	if f.Registry().SubscribedCapital() != 200_000 {
		t.Fatalf("subscribed capital %d", f.Registry().SubscribedCapital())
	}
}

// The balance-sheet identity must hold at every period close; Close returns
// a violation if it does not, so a clean multi-period run is the assertion.
func TestBalanceSheetInvariantAcrossPeriods(t *testing.T) {
	fx := newFirmFixture(t, 0)
	consumer := market.NewAccount(999, 1_000_000)

	for p := 0; p < 8; p++ {
		fx.runPeriod(t, func() {
			if _, err := fx.goods.Buy(consumer, 50); err != nil {
				t.Fatalf("period %d trade: %v", p, err)
			}
		})
	}

	f := fx.firm
	if f.Bankrupt() {
		t.Fatal("healthy firm exited")
	}
	// By period 8 the pipeline has cycled at least once: goods were made,
	// some were sold, and the books still balance.
	if f.Facility().ProducedLastPeriod() == 0 {
		t.Fatal("pipeline produced nothing")
	}
	snap := f.Report()
	if snap["sales_volume"] == 0 {
		t.Fatal("no sales despite standing demand")
	}
	if snap["equity"] != float64(f.Equity()) {
		t.Fatalf("snapshot equity %g, firm equity %d", snap["equity"], f.Equity())
	}
}

func TestCloseDetectsLeakedMoney(t *testing.T) {
	fx := newFirmFixture(t, 0)
	fx.runPeriod(t, nil)

	// Siphon cash past the books: the invariant check at close must trip.
	if _, err := fx.firm.Account().NewCheque(100); err != nil {
		t.Fatal(err)
	}
	f := fx.firm
	f.Open()
	if err := f.PlanProduction(); err != nil {
		t.Fatal(err)
	}
	f.OfferJobs()
	if err := f.Production(); err != nil {
		t.Fatal(err)
	}
	if err := f.PayInterest(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err == nil {
		t.Fatal("close balanced the books despite leaked cash")
	}
}

func TestBankruptcyResolutionRecapitalizes(t *testing.T) {
	fx := newFirmFixture(t, 1) // one household keeps its money for the recap
	f := fx.firm

	// A properly funded but ruinous loan: the cash arrives, and the
	// per-period interest dwarfs anything the firm can earn.
	bank := market.NewBasicBank(7, 2.0, 2_000_000)
	f.finance.credit = market.NewCreditBook(bank)
	cheque, err := bank.Lend(f.ID(), 1_000_000)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Account().Deposit(cheque); err != nil {
		t.Fatal(err)
	}
	addContract(f.finance, 7, 1_000_000, 2.0, 100)

	wantQuality := []DebtorQuality{QualityDoubtful, QualityBad}
	for i, want := range wantQuality {
		fx.runPeriod(t, nil)
		if f.WentBankrupt() {
			t.Fatalf("period %d: bankrupt too early", i)
		}
		if f.Finance().Quality() != want {
			t.Fatalf("period %d: quality %v, want %v", i, f.Finance().Quality(), want)
		}
	}

	fx.runPeriod(t, nil)
	if !f.WentBankrupt() {
		t.Fatal("third underpaid period did not trigger the resolution")
	}
	if f.Bankrupt() {
		t.Fatal("firm exited despite a willing investor")
	}
	if f.Finance().Quality() != QualityGood {
		t.Fatalf("quality %v after recapitalization, want good", f.Finance().Quality())
	}
	if got := f.Registry().SubscribedCapital(); got != 20_000 {
		t.Fatalf("new subscribed capital %d, want the 20000 contribution", got)
	}
	if f.Finance().OutstandingDebt() != 0 {
		t.Fatal("debt survived the cancellation")
	}
	if f.Finance().CanceledDebt() == 0 {
		t.Fatal("creditor loss not recorded")
	}
	// With no real assets left, the recapitalized firm is worth exactly
	// the fresh equity.
	if f.Equity() != 20_000 {
		t.Fatalf("equity %d after resolution, want 20000", f.Equity())
	}

	// The next period runs normally on the fresh balance sheet.
	fx.runPeriod(t, nil)
	if f.Bankrupt() {
		t.Fatal("recapitalized firm did not survive the following period")
	}
}

func TestBankruptcyWithoutInvestorsLiquidates(t *testing.T) {
	fx := newFirmFixture(t, 0) // every household spent at seeding
	f := fx.firm

	bank := market.NewBasicBank(7, 2.0, 2_000_000)
	f.finance.credit = market.NewCreditBook(bank)
	cheque, err := bank.Lend(f.ID(), 1_000_000)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Account().Deposit(cheque); err != nil {
		t.Fatal(err)
	}
	addContract(f.finance, 7, 1_000_000, 2.0, 100)

	for p := 0; p < 3; p++ {
		fx.runPeriod(t, nil)
	}
	if !f.Bankrupt() {
		t.Fatal("firm with no investors survived liquidation")
	}

	// Liquidation removes the firm from the goods market and destroys its
	// facility; nothing is left for a buyer to reach.
	for _, o := range fx.goods.Offers() {
		if o.SupplierID == f.ID() {
			t.Fatalf("liquidated firm still posts offer %+v", o)
		}
	}
	if _, ok := fx.goods.Supplier(f.ID()); ok {
		t.Fatal("liquidated firm still registered as a supplier")
	}
	if v := f.facility.Finished().Volume(); v != 0 {
		t.Fatalf("liquidated firm holds %d finished units", v)
	}
	if v := f.facility.MachineryValue() + f.facility.InProcessValue(); v != 0 {
		t.Fatalf("liquidated firm carries %d of capital", v)
	}
	consumer := market.NewAccount(998, 10_000)
	if got, err := fx.goods.Buy(consumer, 1); err != nil || got.Volume != 0 {
		t.Fatalf("market still sold for the dead firm: got=%+v err=%v", got, err)
	}

	// A dead firm ignores further phases instead of erroring.
	fx.runPeriod(t, nil)
}
