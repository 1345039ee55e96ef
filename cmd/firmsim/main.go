// Command firmsim runs the firm production/financing/insolvency simulation.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/talgya/firmsim/internal/api"
	"github.com/talgya/firmsim/internal/entropy"
	"github.com/talgya/firmsim/internal/firm"
	"github.com/talgya/firmsim/internal/market"
	"github.com/talgya/firmsim/internal/persistence"
	"github.com/talgya/firmsim/internal/sector"
	"github.com/talgya/firmsim/internal/sim"
)

const (
	householdsPerFirm = 20
	householdOpening  = 5_000
	dbPath            = "data/firmsim.db"
	apiPort           = 8080
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := sim.DefaultConfig()
	if len(os.Args) > 1 {
		loaded, err := sim.LoadConfig(os.Args[1])
		if err != nil {
			slog.Error("scenario rejected", "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	slog.Info("firmsim starting", "scenario", cfg.Name, "periods", cfg.Periods, "firms", cfg.Sector.Firms, "seed", cfg.Seed)

	// ── Database ──────────────────────────────────────────────────────
	os.MkdirAll("data", 0755)
	db, err := persistence.Open(dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	db.SaveMeta("scenario", cfg.Name)
	db.SaveMeta("seed", fmt.Sprintf("%d", cfg.Seed))

	// ── World wiring ─────────────────────────────────────────────────
	clock := sim.NewClock()
	root := entropy.NewStream(cfg.Seed)

	households := make([]*market.Household, 0, cfg.Sector.Firms*householdsPerFirm)
	for i := 0; i < cfg.Sector.Firms*householdsPerFirm; i++ {
		households = append(households, market.NewHousehold(uint64(1_000_000+i), householdOpening))
	}
	pool := market.NewHouseholdPool(households)

	goods := market.NewOfferBook()
	banks := []*market.BasicBank{
		market.NewBasicBank(1, 0.03, 2_000_000),
		market.NewBasicBank(2, 0.05, 2_000_000),
		market.NewBasicBank(3, 0.08, 4_000_000),
	}
	credit := market.NewCreditBook(banks...)
	labor := newLaborPool(households, root.Derive(0x1ab0))

	sec, err := sector.New(cfg, clock, root.Derive(0x5ec), goods, credit, labor, pool)
	if err != nil {
		slog.Error("sector construction failed", "error", err)
		os.Exit(1)
	}

	demand := market.NewDemandSeries(cfg.Seed, 0.6, 0.25)
	sec.Trade = func(period int) error {
		propensity := demand.Propensity(period)
		for _, h := range households {
			budget := int64(propensity * float64(h.Account().Balance()))
			if budget <= 0 {
				continue
			}
			if _, err := spend(goods, h.Account(), budget); err != nil {
				return err
			}
		}
		return nil
	}

	server := &api.Server{Sector: sec, Clock: clock, DB: db, Port: apiPort}
	server.Start()

	// ── Period loop ──────────────────────────────────────────────────
	for p := 0; p < cfg.Periods; p++ {
		agg, err := sec.RunPeriod()
		if err != nil {
			slog.Error("run aborted", "period", p, "error", err)
			os.Exit(1)
		}
		if err := db.SaveRun(sec.DrainReports(), agg, nil); err != nil {
			slog.Error("persistence failed", "period", p, "error", err)
			os.Exit(1)
		}
		clock.Advance()
	}
	if err := db.SaveEvents(sec.Events()); err != nil {
		slog.Error("event persistence failed", "error", err)
	}
	db.SaveMeta("last_period", fmt.Sprintf("%d", clock.Period()-1))

	var writtenOff int64
	for _, b := range banks {
		writtenOff += b.WrittenOff
	}
	slog.Info("run complete",
		"periods", cfg.Periods,
		"surviving_firms", len(sec.Firms()),
		"bank_write_offs", writtenOff,
	)
}

// spend buys goods for a household up to the budget, walking the cheapest
// offers first.
func spend(book *market.OfferBook, buyer market.Account, budget int64) (market.Goods, error) {
	var got market.Goods
	for _, o := range book.Offers() {
		remaining := budget - got.Value
		if remaining <= 0 {
			break
		}
		volume := int64(float64(remaining) / o.Price)
		if volume <= 0 {
			continue
		}
		if volume > o.Volume {
			volume = o.Volume
		}
		s, ok := book.Supplier(o.SupplierID)
		if !ok {
			continue
		}
		payment, err := buyer.NewCheque(market.PaymentFor(o.Price, volume))
		if err != nil {
			return got, err
		}
		g, err := s.Sell(volume, payment)
		if err != nil {
			return got, err
		}
		book.Take(o.SupplierID, g.Volume)
		got.Volume += g.Volume
		got.Value += g.Value
	}
	return got, nil
}

// laborPool hands out job contracts and spreads wage payments across the
// household population.
type laborPool struct {
	households []*market.Household
	stream     *entropy.Stream
	cursor     int
}

func newLaborPool(hh []*market.Household, stream *entropy.Stream) *laborPool {
	return &laborPool{households: hh, stream: stream}
}

func (lp *laborPool) Hire(employerID uint64, count int, wage int64) []firm.JobContract {
	contracts := make([]firm.JobContract, 0, count)
	for i := 0; i < count && i < len(lp.households); i++ {
		h := lp.households[lp.cursor%len(lp.households)]
		lp.cursor++
		contracts = append(contracts, firm.JobContract{WorkerID: h.ShareholderID(), Wage: wage})
	}
	return contracts
}

func (lp *laborPool) PayWages(c firm.Payment) error {
	// The wage bill lands in one household account per deposit; spreading
	// exactly per worker would need per-worker cheques, and the firm core
	// only conserves money at the bill level.
	h := lp.households[lp.stream.Intn(len(lp.households))]
	cheque, ok := c.(*market.Cheque)
	if !ok {
		return fmt.Errorf("labor: unexpected payment type %T", c)
	}
	return h.Account().Deposit(cheque)
}
