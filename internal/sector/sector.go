// Package sector drives the firm population through the fixed phase order
// each period: every firm completes a phase before any firm starts the next,
// which is what makes the balance-sheet invariant checkable at period close.
package sector

import (
	"fmt"
	"log/slog"

	"github.com/talgya/firmsim/internal/entropy"
	"github.com/talgya/firmsim/internal/firm"
	"github.com/talgya/firmsim/internal/market"
	"github.com/talgya/firmsim/internal/sim"
)

// Event is a notable occurrence in the sector.
type Event struct {
	Period      int
	FirmID      uint64
	Description string
	Category    string // "bankruptcy", "liquidation", "entry"
}

// FirmReport pairs a firm's period snapshot with its identity.
type FirmReport struct {
	Period int
	FirmID uint64
	Values firm.Snapshot
}

// Aggregates are the sector-level statistics of one period.
type Aggregates struct {
	Period       int
	Firms        int
	AvgPrice     float64
	TotalDebt    int64
	TotalEquity  int64
	Bankruptcies int
	Liquidations int
}

// Sector owns the firm population and the period loop.
type Sector struct {
	cfg    sim.Config
	clock  *sim.Clock
	stream *entropy.Stream

	goods  market.GoodsMarket
	credit market.CreditMarket
	labor  firm.LaborMarket
	pool   market.ShareholderPool

	firms  []*firm.Firm
	nextID uint64

	// Trade runs between production and debt service: the driver's
	// consumption loop buys from the posted offers here.
	Trade func(period int) error

	events  []Event
	reports []FirmReport
}

// New constructs the sector and its initial firm population. A firm that
// cannot raise its initial capital is a construction error, fatal for the
// run.
func New(cfg sim.Config, clock *sim.Clock, stream *entropy.Stream,
	goods market.GoodsMarket, credit market.CreditMarket,
	labor firm.LaborMarket, pool market.ShareholderPool) (*Sector, error) {

	s := &Sector{
		cfg:    cfg,
		clock:  clock,
		stream: stream,
		goods:  goods,
		credit: credit,
		labor:  labor,
		pool:   pool,
	}
	for i := 0; i < cfg.Sector.Firms; i++ {
		f, err := s.newFirm()
		if err != nil {
			return nil, fmt.Errorf("sector: create firm %d: %w", i, err)
		}
		s.firms = append(s.firms, f)
	}
	return s, nil
}

func (s *Sector) newFirm() (*firm.Firm, error) {
	s.nextID++
	id := s.nextID
	f := firm.New(id, s.cfg, firm.Deps{
		Clock:        s.clock,
		Stream:       s.stream.Derive(int64(id)),
		Account:      market.NewAccount(id, 0),
		Goods:        s.goods,
		Credit:       s.credit,
		Labor:        s.labor,
		Shareholders: s.pool,
		Strategy:     firm.NewAdaptiveStrategy(0.2, 0.1, 0.05),
	})
	if err := f.SeedOwnership(); err != nil {
		return nil, err
	}
	s.goods.Register(f)
	return f, nil
}

// Firms returns the active population.
func (s *Sector) Firms() []*firm.Firm {
	return s.firms
}

// Events returns the events recorded so far.
func (s *Sector) Events() []Event {
	return s.events
}

// DrainReports returns the reports collected so far and clears the buffer.
func (s *Sector) DrainReports() []FirmReport {
	r := s.reports
	s.reports = nil
	return r
}

// RunPeriod executes one full period: imitation, then every phase across the
// whole population, then the close checkpoint, then bankruptcy replacement.
// Any error is a modeling violation and aborts the run.
func (s *Sector) RunPeriod() (Aggregates, error) {
	period := s.clock.Period()

	// Behavioral drift before the period opens.
	for _, f := range s.firms {
		f.Strategy().Imitate(f, s.firms)
		f.Strategy().Mutate(s.stream)
	}

	for _, f := range s.firms {
		f.Open()
	}
	for _, f := range s.firms {
		if err := f.PlanProduction(); err != nil {
			return Aggregates{}, fmt.Errorf("period %d firm %d planProduction: %w", period, f.ID(), err)
		}
	}
	for _, f := range s.firms {
		f.OfferJobs()
	}
	for _, f := range s.firms {
		if err := f.Production(); err != nil {
			return Aggregates{}, fmt.Errorf("period %d firm %d production: %w", period, f.ID(), err)
		}
	}

	if s.Trade != nil {
		if err := s.Trade(period); err != nil {
			return Aggregates{}, fmt.Errorf("period %d trade: %w", period, err)
		}
	}

	agg := Aggregates{Period: period}
	for _, f := range s.firms {
		if err := f.PayInterest(); err != nil {
			return agg, fmt.Errorf("period %d firm %d payInterest: %w", period, f.ID(), err)
		}
		if f.WentBankrupt() {
			agg.Bankruptcies++
			s.events = append(s.events, Event{
				Period:      period,
				FirmID:      f.ID(),
				Description: fmt.Sprintf("firm %d went bankrupt", f.ID()),
				Category:    "bankruptcy",
			})
		}
	}

	for _, f := range s.firms {
		if err := f.Close(); err != nil {
			return agg, fmt.Errorf("period %d firm %d close: %w", period, f.ID(), err)
		}
		s.reports = append(s.reports, FirmReport{Period: period, FirmID: f.ID(), Values: f.Report()})
	}

	if err := s.replaceLiquidated(period, &agg); err != nil {
		return agg, err
	}

	var priceSum float64
	for _, f := range s.firms {
		priceSum += f.Sales().Price()
		agg.TotalDebt += f.Finance().OutstandingDebt()
		agg.TotalEquity += f.Equity()
	}
	agg.Firms = len(s.firms)
	if agg.Firms > 0 {
		agg.AvgPrice = priceSum / float64(agg.Firms)
	}

	slog.Info("period closed",
		"period", period,
		"firms", agg.Firms,
		"avg_price", fmt.Sprintf("%.2f", agg.AvgPrice),
		"total_debt", agg.TotalDebt,
		"total_equity", agg.TotalEquity,
		"bankruptcies", agg.Bankruptcies,
	)
	return agg, nil
}

// replaceLiquidated removes firms that exited through liquidation and, when
// the scenario asks for it, replaces each with a freshly capitalized entrant.
func (s *Sector) replaceLiquidated(period int, agg *Aggregates) error {
	kept := s.firms[:0]
	removed := 0
	for _, f := range s.firms {
		if !f.Bankrupt() {
			kept = append(kept, f)
			continue
		}
		removed++
		agg.Liquidations++
		s.events = append(s.events, Event{
			Period:      period,
			FirmID:      f.ID(),
			Description: fmt.Sprintf("firm %d liquidated", f.ID()),
			Category:    "liquidation",
		})
	}
	s.firms = kept

	if !s.cfg.Sector.ReplaceBankrupt {
		return nil
	}
	for i := 0; i < removed; i++ {
		f, err := s.newFirm()
		if err != nil {
			// The pool had no capital for an entrant; the population
			// shrinks instead.
			slog.Info("no capital for replacement entrant", "period", period)
			return nil
		}
		s.firms = append(s.firms, f)
		s.events = append(s.events, Event{
			Period:      period,
			FirmID:      f.ID(),
			Description: fmt.Sprintf("firm %d entered", f.ID()),
			Category:    "entry",
		})
	}
	return nil
}
