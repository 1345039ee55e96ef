// Firm lifecycle glue — the fixed phase order, balance-sheet accounting, and
// the per-period reporting snapshot.
package firm

import (
	"log/slog"
	"math"

	"github.com/talgya/firmsim/internal/entropy"
	"github.com/talgya/firmsim/internal/market"
	"github.com/talgya/firmsim/internal/sim"
)

// Constraint records the shortfalls a firm ran into during a period. A
// constrained state is never an error; the firm retries next period.
type Constraint uint8

const (
	LiquidityConstrained Constraint = 1 << iota
	InputConstrained
	CapacityConstrained
	LaborConstrained
)

// Has reports whether the flag is set.
func (c Constraint) Has(flag Constraint) bool {
	return c&flag != 0
}

// Snapshot is the key→value report the reporting collaborator pulls after
// close.
type Snapshot map[string]float64

// Firm is one member of the simulated population: a production facility, a
// sales desk, a financing desk, and an ownership registry sequenced through
// the fixed period phases.
type Firm struct {
	id     uint64
	cfg    sim.Config
	clock  *sim.Clock
	stream *entropy.Stream

	account  market.Account
	goods    market.GoodsMarket
	labor    LaborMarket
	facility *ProductionFacility
	sales    *SalesManager
	finance  *FinancingManager
	registry *OwnershipRegistry
	strategy Strategy

	equity      int64
	constraints Constraint

	// Planning state between phases.
	plannedWorkers int
	contracts      []JobContract

	// Per-period results.
	overheadExpense int64
	depreciation    int64
	lastProfit      int64
	lastDividend    int64
	dead            bool
	wentBankrupt    bool
	bankruptcies    int

	lastSnapshot Snapshot
}

// Deps bundles the collaborators a firm is built against.
type Deps struct {
	Clock        *sim.Clock
	Stream       *entropy.Stream
	Account      market.Account
	Goods        market.GoodsMarket
	Credit       market.CreditMarket
	Labor        LaborMarket
	Shareholders market.ShareholderPool
	Strategy     Strategy
}

// New creates a firm with an empty balance sheet. Call SeedOwnership before
// the first period to raise the initial capital.
func New(id uint64, cfg sim.Config, d Deps) *Firm {
	f := &Firm{
		id:      id,
		cfg:     cfg,
		clock:   d.Clock,
		stream:  d.Stream,
		account: d.Account,
		goods:   d.Goods,
		labor:   d.Labor,
	}
	f.facility = NewProductionFacility(d.Clock, cfg.Technology, d.Stream)
	f.sales = NewSalesManager(cfg.Sales, d.Stream, f.facility.Finished())
	f.finance = NewFinancingManager(id, cfg.Finance, d.Clock, d.Account, d.Credit)
	f.registry = NewOwnershipRegistry(id, d.Shareholders, d.Stream)
	f.strategy = d.Strategy
	return f
}

// ID returns the firm's identity.
func (f *Firm) ID() uint64 { return f.id }

// SupplierID implements market.Supplier.
func (f *Firm) SupplierID() uint64 { return f.id }

// Account exposes the firm's bank account.
func (f *Firm) Account() market.Account { return f.account }

// Facility exposes the production side.
func (f *Firm) Facility() *ProductionFacility { return f.facility }

// Sales exposes the sales side.
func (f *Firm) Sales() *SalesManager { return f.sales }

// Finance exposes the financing side.
func (f *Firm) Finance() *FinancingManager { return f.finance }

// Registry exposes the ownership side.
func (f *Firm) Registry() *OwnershipRegistry { return f.registry }

// Strategy exposes the behavior variant.
func (f *Firm) Strategy() Strategy { return f.strategy }

// Equity returns the firm's current capital.
func (f *Firm) Equity() int64 { return f.equity }

// LastProfit returns the previous period's profit.
func (f *Firm) LastProfit() int64 { return f.lastProfit }

// Bankrupt reports whether the firm has exited through bankruptcy without a
// successful recapitalization.
func (f *Firm) Bankrupt() bool { return f.dead }

// Constraints returns the flags recorded this period.
func (f *Firm) Constraints() Constraint { return f.constraints }

// SeedOwnership raises the firm's initial capital from the shareholder pool.
func (f *Firm) SeedOwnership() error {
	raised, err := f.registry.Seed(f.cfg.Sector.InitialCapital, f.cfg.Sector.ContributionPerShareholder, f.account)
	if err != nil {
		return err
	}
	if raised == 0 {
		return violationf("firm %d found no initial shareholders", f.id)
	}
	f.equity += raised
	return nil
}

// UnitCost estimates the full unit cost of a finished good: one wage per
// pipeline advance, loaded for overhead labor.
func (f *Firm) UnitCost() float64 {
	t := f.cfg.Technology
	return float64(f.cfg.Labor.Wage) * float64(t.ProductionStages) /
		float64(t.Productivity) * (1 + t.OverheadRatio)
}

// Open starts a period: collect obligations, adapt the price from last
// period's inventory signal, reset counters.
func (f *Firm) Open() {
	if f.dead {
		return
	}
	f.constraints = 0
	f.wentBankrupt = false
	f.plannedWorkers = 0
	f.contracts = nil
	f.overheadExpense = 0
	f.depreciation = 0
	f.finance.Open()
	f.sales.UpdatePrice(f.UnitCost(), f.finance.ConsumeCostWarning())
	f.sales.Open()
}

// PlanProduction runs the feasibility and profitability gates over this
// period's expenditure increments and acquires the funding for the accepted
// ones: first the fixed-capital purchase, then the workforce, one marginal
// worker at a time.
func (f *Firm) PlanProduction() error {
	if f.dead {
		return nil
	}
	if err := f.planInvestment(); err != nil {
		return err
	}
	return f.planWorkforce()
}

func (f *Firm) planInvestment() error {
	budget := f.strategy.InvestmentBudget(f)
	if budget <= 0 {
		return nil
	}
	t := f.cfg.Technology

	// Price the input purchase off the cheapest standing offer.
	var offer market.Offer
	found := false
	for _, o := range f.goods.Offers() {
		if o.SupplierID != f.id {
			offer = o
			found = true
			break
		}
	}
	if !found {
		f.constraints |= InputConstrained
		return nil
	}
	expenditure := market.PaymentFor(offer.Price, t.InputPerMachine)
	if expenditure > budget {
		return nil
	}

	cand, feasible := f.finance.CheckFeasibility(expenditure, f.cfg.Finance.InvestmentHorizon, true, f.facility.MarginalOutput())
	if !feasible {
		f.constraints |= LiquidityConstrained
		return nil
	}
	if !f.finance.CheckProfitability(cand, f.sales.Price(), f.overheadExpense, f.facility.NextDepreciationTranche()) {
		return nil
	}
	if err := f.finance.AcquireFunding(cand); err != nil {
		return err
	}

	goods, err := f.buyInputs(t.InputPerMachine, expenditure)
	if err != nil {
		return err
	}
	if goods.Volume < t.InputPerMachine {
		// Supply ran short; hold the unspent funds for next period's try.
		f.constraints |= InputConstrained
		f.finance.SetInvestmentReserve(expenditure - goods.Value)
	} else {
		f.finance.SetInvestmentReserve(0)
	}
	f.facility.ExpandCapacity(Goods{Volume: goods.Volume, Value: goods.Value}, f.stream)
	return nil
}

// buyInputs purchases up to volume units of investment goods from the
// cheapest standing offers, skipping the firm's own.
func (f *Firm) buyInputs(volume, budget int64) (market.Goods, error) {
	var got market.Goods
	for _, o := range f.goods.Offers() {
		if o.SupplierID == f.id || got.Volume >= volume {
			continue
		}
		take := volume - got.Volume
		if take > o.Volume {
			take = o.Volume
		}
		cost := market.PaymentFor(o.Price, take)
		if cost > budget-got.Value {
			take = int64(float64(budget-got.Value) / o.Price)
			if take <= 0 {
				break
			}
			cost = market.PaymentFor(o.Price, take)
		}
		supplier, ok := f.goods.Supplier(o.SupplierID)
		if !ok {
			return got, violationf("offer from unregistered supplier %d", o.SupplierID)
		}
		payment, err := f.account.NewCheque(cost)
		if err != nil {
			return got, err
		}
		g, err := supplier.Sell(take, payment)
		if err != nil {
			return got, err
		}
		f.goods.Take(o.SupplierID, g.Volume)
		got.Volume += g.Volume
		got.Value += g.Value
	}
	return got, nil
}

func (f *Firm) planWorkforce() error {
	t := f.cfg.Technology
	wage := f.cfg.Labor.Wage

	// Workers needed to hit the production target in steady state: every
	// unit passes through each stage.
	want := (f.sales.ProductionTarget()*t.ProductionStages + t.Productivity - 1) / t.Productivity
	if want > f.facility.MachineCount() {
		want = f.facility.MachineCount()
		f.constraints |= CapacityConstrained
	}

	workers := 0
	for workers < want {
		cand, feasible := f.finance.CheckFeasibility(wage, f.cfg.Finance.OperatingHorizon, false, f.facility.MarginalOutput())
		if !feasible {
			f.constraints |= LiquidityConstrained
			break
		}
		if !f.finance.CheckProfitability(cand, f.sales.Price(), f.overheadExpense, f.facility.NextDepreciationTranche()) {
			break
		}
		if err := f.finance.AcquireFunding(cand); err != nil {
			return err
		}
		workers++
	}

	overhead := int(t.OverheadRatio * float64(workers))
	if overhead > 0 {
		cand, feasible := f.finance.CheckFeasibility(int64(overhead)*wage, f.cfg.Finance.OperatingHorizon, false, 0)
		if !feasible {
			f.constraints |= LiquidityConstrained
			overhead = 0
		} else if err := f.finance.AcquireFunding(cand); err != nil {
			return err
		}
	}

	f.plannedWorkers = workers + overhead
	return nil
}

// OfferJobs hires the planned crew from the labor market.
func (f *Firm) OfferJobs() {
	if f.dead || f.plannedWorkers == 0 {
		return
	}
	f.contracts = f.labor.Hire(f.id, f.plannedWorkers, f.cfg.Labor.Wage)
	if len(f.contracts) < f.plannedWorkers {
		f.constraints |= LaborConstrained
	}
}

// Production pays the wage bill, runs the facility, and posts the period's
// sales offer.
func (f *Firm) Production() error {
	if f.dead {
		return nil
	}
	if len(f.contracts) > 0 {
		var wageBill int64
		for _, c := range f.contracts {
			wageBill += c.Wage
		}
		cheque, err := f.account.NewCheque(wageBill)
		if err != nil {
			return err
		}
		if err := f.labor.PayWages(cheque); err != nil {
			return err
		}
		overhead, err := f.facility.Produce(f.contracts)
		if err != nil {
			return err
		}
		f.overheadExpense = overhead
	}

	f.sales.Refresh()
	if v := f.sales.OfferedVolume(); v > 0 {
		f.goods.Post(f.id, v, f.sales.Price())
	}
	return nil
}

// Sell implements market.Supplier: a buyer purchases from the firm's
// standing offer. The goods are carried into the buyer's books at the price
// paid.
func (f *Firm) Sell(volume int64, payment *market.Cheque) (market.Goods, error) {
	if payment == nil {
		return market.Goods{}, violationf("sale to firm %d with nil payment", f.id)
	}
	if _, err := f.sales.Sell(volume, payment.Amount()); err != nil {
		return market.Goods{}, err
	}
	if err := f.account.Deposit(payment); err != nil {
		return market.Goods{}, err
	}
	return market.Goods{Volume: volume, Value: payment.Amount()}, nil
}

// PayInterest runs the period's debt service and, on a third consecutive
// underpaid period, the bankruptcy resolution: cancel the debts, write down
// the inventories, wipe the owners, and re-capitalize through new equity —
// or exit if no investor steps up.
func (f *Firm) PayInterest() error {
	if f.dead {
		return nil
	}
	bankrupt, err := f.finance.PayInterest()
	if err != nil {
		return err
	}
	if !bankrupt {
		return nil
	}
	return f.liquidate()
}

// WentBankrupt reports whether this period's debt service triggered the
// bankruptcy resolution.
func (f *Firm) WentBankrupt() bool { return f.wentBankrupt }

func (f *Firm) liquidate() error {
	f.bankruptcies++
	f.wentBankrupt = true

	writeDown := f.facility.DepreciateInventories(int64(math.Floor(f.UnitCost())))
	f.equity -= writeDown

	assets := f.account.Balance() + f.facility.Finished().Value() +
		f.facility.InProcessValue() + f.facility.MachineryValue()
	cancelled := f.finance.CancelDebts(assets)
	f.equity += cancelled
	f.registry.Clear(true)

	target := int64(f.cfg.Finance.CapitalRatio * float64(assets))
	if target < f.cfg.Sector.ContributionPerShareholder {
		target = f.cfg.Sector.ContributionPerShareholder
	}
	raised, err := f.registry.Recapitalize(target, f.cfg.Sector.ContributionPerShareholder,
		f.cfg.Sector.RecapRetries, f.account)
	if err != nil {
		return err
	}
	f.equity += raised

	if raised == 0 {
		f.dead = true
		// Remove the firm from the goods market and destroy its facility;
		// a dead firm must not keep selling from a stale offer.
		f.goods.Unregister(f.id)
		f.equity -= f.facility.Scrap()
		slog.Info("firm liquidated", "firm", f.id, "period", f.clock.Period(),
			"canceled_debt", f.finance.CanceledDebt())
		return nil
	}

	f.finance.ResetAfterRecapitalization()
	slog.Info("firm recapitalized after bankruptcy",
		"firm", f.id,
		"period", f.clock.Period(),
		"raised", raised,
		"canceled_debt", f.finance.CanceledDebt(),
	)
	return nil
}

// Close updates profits, pays dividends, restates the equity titles, checks
// the balance-sheet invariant, and builds the period snapshot.
func (f *Firm) Close() error {
	if f.dead {
		f.lastSnapshot = f.snapshot()
		return nil
	}

	dep, err := f.facility.Depreciate()
	if err != nil {
		return err
	}
	f.depreciation = dep

	profit := f.sales.SalesValue() - f.sales.CostOfGoodsSold() -
		f.overheadExpense - f.depreciation - f.finance.InterestAccrued()
	f.equity += profit
	f.lastProfit = profit

	nonMoney := f.facility.Finished().Value() + f.facility.InProcessValue() + f.facility.MachineryValue()
	dividend := f.finance.CalculateDividend(nonMoney, f.registry.SubscribedCapital())
	if err := f.registry.PayDividends(dividend, f.account); err != nil {
		return err
	}
	f.equity -= dividend
	f.lastDividend = dividend

	f.registry.Restate(f.equity)

	if err := f.checkInvariant(); err != nil {
		return err
	}
	f.lastSnapshot = f.snapshot()
	return nil
}

// checkInvariant verifies assets = liabilities + equity and that the equity
// titles sum to the firm's capital.
func (f *Firm) checkInvariant() error {
	residual := f.account.Balance() + f.facility.Finished().Value() +
		f.facility.InProcessValue() + f.facility.MachineryValue() -
		f.finance.OutstandingDebt()
	if residual != f.equity {
		return violationf("firm %d period %d: assets - liabilities = %d, equity = %d",
			f.id, f.clock.Period(), residual, f.equity)
	}
	want := f.equity
	if want < 0 {
		want = 0
	}
	if len(f.registry.Titles()) > 0 && f.registry.TitleValue() != want {
		return violationf("firm %d period %d: titles sum to %d, equity is %d",
			f.id, f.clock.Period(), f.registry.TitleValue(), want)
	}
	return nil
}

// Report returns the latest period snapshot.
func (f *Firm) Report() Snapshot {
	return f.lastSnapshot
}

func (f *Firm) snapshot() Snapshot {
	s := Snapshot{
		"price":             f.sales.Price(),
		"production_target": float64(f.sales.ProductionTarget()),
		"production_volume": float64(f.facility.ProducedLastPeriod()),
		"sales_volume":      float64(f.sales.SalesVolume()),
		"sales_value":       float64(f.sales.SalesValue()),
		"inventory_volume":  float64(f.facility.Finished().Volume()),
		"inventory_value":   float64(f.facility.Finished().Value()),
		"in_process_value":  float64(f.facility.InProcessValue()),
		"machinery_value":   float64(f.facility.MachineryValue()),
		"machines":          float64(f.facility.MachineCount()),
		"cash":              float64(f.account.Balance()),
		"debt":              float64(f.finance.OutstandingDebt()),
		"equity":            float64(f.equity),
		"profit":            float64(f.lastProfit),
		"dividends":         float64(f.lastDividend),
		"interest":          float64(f.finance.InterestAccrued()),
		"depreciation":      float64(f.depreciation),
		"external_finance":  float64(f.finance.ExternalFinance()),
		"canceled_debt":     float64(f.finance.CanceledDebt()),
		"haircut":           f.finance.Haircut(),
		"quality":           float64(f.finance.Quality()),
		"workers":           float64(len(f.contracts)),
	}
	if assets := f.account.Balance() + f.facility.Finished().Value() +
		f.facility.InProcessValue() + f.facility.MachineryValue(); assets > 0 {
		s["debt_ratio"] = float64(f.finance.OutstandingDebt()) / float64(assets)
	}
	var constrained float64
	if f.constraints != 0 {
		constrained = 1
	}
	s["constrained"] = constrained
	s["liquidity_constrained"] = boolToFloat(f.constraints.Has(LiquidityConstrained))
	s["input_constrained"] = boolToFloat(f.constraints.Has(InputConstrained))
	s["capacity_constrained"] = boolToFloat(f.constraints.Has(CapacityConstrained))
	s["labor_constrained"] = boolToFloat(f.constraints.Has(LaborConstrained))
	return s
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
