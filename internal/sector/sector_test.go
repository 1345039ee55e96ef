package sector

import (
	"testing"

	"github.com/talgya/firmsim/internal/entropy"
	"github.com/talgya/firmsim/internal/firm"
	"github.com/talgya/firmsim/internal/market"
	"github.com/talgya/firmsim/internal/sim"
)

type testLabor struct {
	nextWorker uint64
}

func (l *testLabor) Hire(employerID uint64, count int, wage int64) []firm.JobContract {
	out := make([]firm.JobContract, count)
	for i := range out {
		l.nextWorker++
		out[i] = firm.JobContract{WorkerID: l.nextWorker, Wage: wage}
	}
	return out
}

func (l *testLabor) PayWages(p firm.Payment) error { return nil }

type testWorld struct {
	sector   *Sector
	clock    *sim.Clock
	goods    *market.OfferBook
	consumer *market.BasicAccount
}

func newTestWorld(t *testing.T, seed int64) *testWorld {
	t.Helper()
	cfg := sim.DefaultConfig()
	cfg.Seed = seed
	cfg.Sector.Firms = 3

	clock := sim.NewClock()
	stream := entropy.NewStream(cfg.Seed)

	households := make([]*market.Household, 40)
	for i := range households {
		households[i] = market.NewHousehold(uint64(1000+i), cfg.Sector.ContributionPerShareholder)
	}

	goods := market.NewOfferBook()
	credit := market.NewCreditBook(
		market.NewBasicBank(1, 0.03, 2_000_000),
		market.NewBasicBank(2, 0.05, 2_000_000),
	)

	sec, err := New(cfg, clock, stream, goods, credit, &testLabor{}, market.NewHouseholdPool(households))
	if err != nil {
		t.Fatalf("new sector: %v", err)
	}

	w := &testWorld{sector: sec, clock: clock, goods: goods,
		consumer: market.NewAccount(999, 5_000_000)}
	sec.Trade = func(period int) error {
		_, err := goods.Buy(w.consumer, 100)
		return err
	}
	return w
}

func (w *testWorld) run(t *testing.T, periods int) []Aggregates {
	t.Helper()
	out := make([]Aggregates, 0, periods)
	for p := 0; p < periods; p++ {
		agg, err := w.sector.RunPeriod()
		if err != nil {
			t.Fatalf("period %d: %v", p, err)
		}
		out = append(out, agg)
		w.clock.Advance()
	}
	return out
}

func TestSectorRunsPeriods(t *testing.T) {
	w := newTestWorld(t, 42)
	aggs := w.run(t, 6)

	if len(w.sector.Firms()) != 3 {
		t.Fatalf("population %d, want 3", len(w.sector.Firms()))
	}
	last := aggs[len(aggs)-1]
	if last.Firms != 3 || last.AvgPrice <= 0 {
		t.Fatalf("final aggregates %+v", last)
	}
	if last.TotalEquity <= 0 {
		t.Fatalf("total equity %d after 6 calm periods", last.TotalEquity)
	}

	reports := w.sector.DrainReports()
	if len(reports) != 3*6 {
		t.Fatalf("collected %d reports, want 18", len(reports))
	}
	if len(w.sector.DrainReports()) != 0 {
		t.Fatal("drain did not clear the buffer")
	}
	for _, r := range reports {
		if _, ok := r.Values["equity"]; !ok {
			t.Fatalf("report for firm %d period %d lacks equity", r.FirmID, r.Period)
		}
	}
}

func TestSectorDeterminism(t *testing.T) {
	a := newTestWorld(t, 7).run(t, 5)
	b := newTestWorld(t, 7).run(t, 5)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("period %d diverged: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestSectorSeedSensitivity(t *testing.T) {
	a := newTestWorld(t, 7).run(t, 5)
	b := newTestWorld(t, 8).run(t, 5)
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("different seeds produced identical runs")
	}
}
