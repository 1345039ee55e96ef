// Financing management — available funds, the feasibility and profitability
// gates, funding acquisition, and the periodic payment / insolvency
// resolution protocol.
package firm

import (
	"log/slog"

	"github.com/talgya/firmsim/internal/market"
	"github.com/talgya/firmsim/internal/sim"
)

// DebtorQuality is the firm's solvency classification. It only worsens on an
// underpaid period and resets to Good on a fully-paid one; Bankrupt is the
// terminal exit.
type DebtorQuality uint8

const (
	QualityGood DebtorQuality = iota
	QualityDoubtful
	QualityBad
	QualityBankrupt
)

// String returns the quality name.
func (q DebtorQuality) String() string {
	switch q {
	case QualityGood:
		return "good"
	case QualityDoubtful:
		return "doubtful"
	case QualityBad:
		return "bad"
	case QualityBankrupt:
		return "bankrupt"
	}
	return "unknown"
}

// FinancingCandidate is one queued expenditure increment passed through the
// feasibility and profitability gates before funding is acquired.
type FinancingCandidate struct {
	RequiredExpenditure int64
	FinancingCost       int64
	ExternalFinance     int64
	InternalFinance     int64
	MarginalOutput      int64
	Horizon             int
	ForFixedCapital     bool
	plan                CreditPlan
}

// FinancingManager tracks obligations, gates expenditure, acquires funding,
// and runs the per-period payment protocol.
type FinancingManager struct {
	firmID  uint64
	cfg     sim.FinanceConfig
	clock   *sim.Clock
	account market.Account
	credit  market.CreditMarket
	search  *CreditSearch

	contracts   []*CreditContract // outstanding, creation order
	obligations []*CreditContract // due this period
	nextSeq     uint64

	quality           DebtorQuality
	requiredPayments  int64
	openingCash       int64
	investmentReserve int64
	costWarning       bool

	// Cumulative expected contribution margin of the increments accepted
	// this planning round.
	plannedMargin float64

	// Per-period results for profit accounting and reporting.
	interestAccrued int64
	externalFinance int64
	canceledDebt    int64
	haircut         float64
	fullyPaid       bool
}

// NewFinancingManager creates the financing side of a firm.
func NewFinancingManager(firmID uint64, cfg sim.FinanceConfig, clock *sim.Clock,
	account market.Account, credit market.CreditMarket) *FinancingManager {
	return &FinancingManager{
		firmID:  firmID,
		cfg:     cfg,
		clock:   clock,
		account: account,
		credit:  credit,
		search:  NewCreditSearch(credit),
		quality: QualityGood,
	}
}

// Quality returns the current debtor quality.
func (fm *FinancingManager) Quality() DebtorQuality {
	return fm.quality
}

// OutstandingDebt returns total principal plus deferred interest owed.
func (fm *FinancingManager) OutstandingDebt() int64 {
	var total int64
	for _, c := range fm.contracts {
		total += c.Outstanding()
	}
	return total
}

// RequiredPayments returns this period's debt service requirement.
func (fm *FinancingManager) RequiredPayments() int64 {
	return fm.requiredPayments
}

// InterestAccrued returns the interest expense recognized this period.
func (fm *FinancingManager) InterestAccrued() int64 {
	return fm.interestAccrued
}

// ExternalFinance returns the credit drawn this period.
func (fm *FinancingManager) ExternalFinance() int64 {
	return fm.externalFinance
}

// CanceledDebt returns the debt written off in a bankruptcy this period.
func (fm *FinancingManager) CanceledDebt() int64 {
	return fm.canceledDebt
}

// Haircut returns the pro-rata payment fraction applied this period, 1 when
// every obligation was paid in full.
func (fm *FinancingManager) Haircut() float64 {
	return fm.haircut
}

// ConsumeCostWarning returns and clears the cost-warning flag raised by a
// profitability rejection; the sales manager reads it at the next price
// update.
func (fm *FinancingManager) ConsumeCostWarning() bool {
	w := fm.costWarning
	fm.costWarning = false
	return w
}

// InvestmentReserve returns cash withheld for a pending fixed-capital plan.
func (fm *FinancingManager) InvestmentReserve() int64 {
	return fm.investmentReserve
}

// SetInvestmentReserve records cash withheld for a deferred machine purchase.
func (fm *FinancingManager) SetInvestmentReserve(amount int64) {
	if amount < 0 {
		amount = 0
	}
	fm.investmentReserve = amount
}

// Open snapshots opening cash, collects the obligations falling due this
// period, and resets the financing counters.
func (fm *FinancingManager) Open() {
	period := fm.clock.Period()
	fm.openingCash = fm.account.Balance()
	fm.obligations = fm.obligations[:0]
	fm.requiredPayments = 0
	for _, c := range fm.contracts {
		if due := c.TotalDue(period); due > 0 {
			fm.obligations = append(fm.obligations, c)
			fm.requiredPayments += due
		}
	}
	fm.search.Reset()
	fm.plannedMargin = 0
	fm.interestAccrued = 0
	fm.externalFinance = 0
	fm.canceledDebt = 0
	fm.haircut = 1
	fm.fullyPaid = false
}

// availableFunds returns cash net of debt service, and net of the investment
// reserve when the expenditure is itself for fixed capital.
func (fm *FinancingManager) availableFunds(forFixedCapital bool) int64 {
	available := fm.account.Balance() - fm.requiredPayments
	if forFixedCapital {
		available -= fm.investmentReserve
	}
	return available
}

// CheckFeasibility decides whether the expenditure can be funded. Debt
// service takes absolute priority; internal funds are used first; a Bad
// debtor gets no further credit; otherwise the external market is searched
// cheapest-first for the shortfall.
func (fm *FinancingManager) CheckFeasibility(expenditure int64, horizon int, forFixedCapital bool, marginalOutput int64) (FinancingCandidate, bool) {
	cand := FinancingCandidate{
		RequiredExpenditure: expenditure,
		MarginalOutput:      marginalOutput,
		Horizon:             horizon,
		ForFixedCapital:     forFixedCapital,
	}

	available := fm.availableFunds(forFixedCapital)
	if available < 0 {
		return cand, false
	}
	if available >= expenditure {
		cand.InternalFinance = expenditure
		return cand, true
	}
	if fm.quality == QualityBad {
		return cand, false
	}

	required := expenditure - available
	plan, ok := fm.search.Search(required, horizon, fm.cfg.RiskPremium)
	if !ok {
		return cand, false
	}
	cand.plan = plan
	cand.ExternalFinance = plan.Available
	cand.InternalFinance = expenditure - plan.Available
	cand.FinancingCost = plan.CostUnits()
	return cand, true
}

// CheckProfitability gates an increment on its expected contribution margin:
// the cumulative margin of accepted increments must stay above fixed costs
// plus the next depreciation tranche. A secondary cap rejects increments
// whose financing cost exceeds the configured share of the expenditure.
// Rejection raises the cost-warning flag.
func (fm *FinancingManager) CheckProfitability(cand FinancingCandidate, price float64, fixedCosts, nextDepreciation int64) bool {
	if cand.MarginalOutput <= 0 {
		return fm.rejectCandidate(cand)
	}
	if float64(cand.FinancingCost) > fm.cfg.MaxFinancingShare*float64(cand.RequiredExpenditure) {
		return fm.rejectCandidate(cand)
	}
	marginalRevenue := price * float64(cand.MarginalOutput)
	margin := marginalRevenue - float64(cand.RequiredExpenditure+cand.FinancingCost)
	if fm.plannedMargin+margin <= float64(fixedCosts+nextDepreciation) {
		return fm.rejectCandidate(cand)
	}
	fm.plannedMargin += margin
	return true
}

// rejectCandidate abandons an increment: its planned credit is released back
// to the search and the cost warning is raised.
func (fm *FinancingManager) rejectCandidate(cand FinancingCandidate) bool {
	fm.search.Release(cand.plan.Draws...)
	fm.costWarning = true
	return false
}

// AcquireFunding draws the candidate's accepted offers cheapest-first,
// creating one contract per drawn offer and depositing the proceeds. The
// remainder of the expenditure is internal financing.
func (fm *FinancingManager) AcquireFunding(cand FinancingCandidate) error {
	period := fm.clock.Period()
	for _, draw := range cand.plan.Draws {
		lender, ok := fm.credit.Lender(draw.LenderID)
		if !ok {
			return violationf("accepted offer from unknown lender %d", draw.LenderID)
		}
		cheque, err := lender.Lend(fm.firmID, draw.Amount)
		if err != nil {
			return violationf("lender %d refused accepted draw of %d: %v", draw.LenderID, draw.Amount, err)
		}
		if err := fm.account.Deposit(cheque); err != nil {
			return err
		}
		fm.nextSeq++
		contract := &CreditContract{
			seq:        fm.nextSeq,
			CreditorID: draw.LenderID,
			Volume:     draw.Amount,
			Rate:       draw.Rate,
			Horizon:    cand.Horizon,
			Maturity:   period + cand.Horizon,
			Operating:  !cand.ForFixedCapital,
		}
		fm.contracts = append(fm.contracts, contract)
		fm.externalFinance += draw.Amount
		// The lender's standing offer now reflects the draw; keeping the
		// reservation would discount it twice.
		fm.search.Release(draw)
	}
	return nil
}

// PayInterest runs the insolvency protocol once per period after production
// and sales. Returns true when the firm went bankrupt.
func (fm *FinancingManager) PayInterest() (bool, error) {
	period := fm.clock.Period()
	cash := fm.account.Balance()

	// Interest expense accrues whether or not it can be paid.
	for _, c := range fm.obligations {
		fm.interestAccrued += c.InterestDue()
	}

	if cash >= fm.requiredPayments {
		if err := fm.payInFull(period); err != nil {
			return false, err
		}
		fm.quality = QualityGood
		fm.fullyPaid = true
		fm.haircut = 1
		if err := fm.clearing(period); err != nil {
			return false, err
		}
		fm.dropSettled()
		return false, nil
	}

	// Illiquid: haircut payment, quality downgrade, possibly bankruptcy.
	if err := fm.payHaircut(period, cash); err != nil {
		return false, err
	}
	if fm.quality == QualityBad {
		// Third consecutive underpaid period: the cash is gone to the
		// creditors and the firm's liquidation path takes over.
		return true, nil
	}
	switch fm.quality {
	case QualityGood:
		fm.quality = QualityDoubtful
	case QualityDoubtful:
		fm.quality = QualityBad
	}
	slog.Debug("firm underpaid obligations",
		"firm", fm.firmID,
		"period", period,
		"haircut", fm.haircut,
		"quality", fm.quality.String(),
	)
	fm.dropSettled()
	return false, nil
}

// payInFull settles every obligation, interest then redemption.
func (fm *FinancingManager) payInFull(period int) error {
	for _, c := range fm.obligations {
		due := c.TotalDue(period)
		if due == 0 {
			continue
		}
		if err := fm.payCreditor(c, due); err != nil {
			return err
		}
		principal := c.PrincipalDue(period)
		c.Deferred = 0
		c.Volume -= principal
	}
	return nil
}

// payHaircut distributes all cash pro rata across the obligations in
// contract-creation order: each receives ⌊haircut × due⌋, then the integer
// remainder goes one unit at a time to the earliest contracts. A payment
// short of the required interest defers the shortfall; principal is never
// reduced unless interest is fully paid.
func (fm *FinancingManager) payHaircut(period int, cash int64) error {
	fm.haircut = float64(cash) / float64(fm.requiredPayments)

	// ⌊haircut × due⌋ in exact integer arithmetic; the float form can land
	// one unit low on hairline cases.
	due := make([]int64, len(fm.obligations))
	pay := make([]int64, len(fm.obligations))
	var distributed int64
	for i, c := range fm.obligations {
		due[i] = c.TotalDue(period)
		pay[i] = cash * due[i] / fm.requiredPayments
		distributed += pay[i]
	}
	remainder := cash - distributed
	for remainder > 0 {
		progressed := false
		for i := range pay {
			if remainder == 0 {
				break
			}
			if pay[i] < due[i] {
				pay[i]++
				remainder--
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}

	for i, c := range fm.obligations {
		if pay[i] > 0 {
			if err := fm.payCreditor(c, pay[i]); err != nil {
				return err
			}
		}
		interest := c.InterestDue() + c.Deferred
		if pay[i] >= interest {
			// Interest fully covered; the excess redeems due principal.
			c.Deferred = 0
			c.Volume -= pay[i] - interest
		} else {
			// Shortfall defers to next period; principal untouched.
			c.Deferred = interest - pay[i]
		}
	}
	return nil
}

// clearing settles any now-due principal left from earlier haircut periods,
// in full, while cash remains.
func (fm *FinancingManager) clearing(period int) error {
	for _, c := range fm.contracts {
		if c.Volume == 0 || period < c.Maturity {
			continue
		}
		if c.Volume > fm.account.Balance() {
			continue
		}
		if err := fm.payCreditor(c, c.Volume); err != nil {
			return err
		}
		c.Volume = 0
	}
	return nil
}

func (fm *FinancingManager) payCreditor(c *CreditContract, amount int64) error {
	lender, ok := fm.credit.Lender(c.CreditorID)
	if !ok {
		return violationf("payment to unknown creditor %d", c.CreditorID)
	}
	cheque, err := fm.account.NewCheque(amount)
	if err != nil {
		return err
	}
	return lender.Collect(cheque)
}

// dropSettled removes fully settled contracts.
func (fm *FinancingManager) dropSettled() {
	kept := fm.contracts[:0]
	for _, c := range fm.contracts {
		if c.Outstanding() > 0 {
			kept = append(kept, c)
		}
	}
	fm.contracts = kept
}

// CancelDebts cancels every remaining contract during bankruptcy, notifying
// each creditor of default. Returns the total debt cancelled; the reported
// canceled-debt stat is the creditors' net loss, debt − assets.
func (fm *FinancingManager) CancelDebts(assets int64) int64 {
	debt := fm.OutstandingDebt()
	loss := debt - assets
	if loss < 0 {
		loss = 0
	}
	for _, c := range fm.contracts {
		if lender, ok := fm.credit.Lender(c.CreditorID); ok {
			lender.AcknowledgeDefault(fm.firmID, c.Outstanding())
		}
	}
	fm.contracts = nil
	fm.obligations = nil
	fm.requiredPayments = 0
	fm.canceledDebt = loss
	fm.quality = QualityBankrupt
	return debt
}

// ResetAfterRecapitalization returns the firm to Good standing with a clean
// slate once new equity has been raised.
func (fm *FinancingManager) ResetAfterRecapitalization() {
	fm.quality = QualityGood
	fm.investmentReserve = 0
	fm.costWarning = false
}

// TiedUpMoney returns the cash that must be retained so that
// cash + non-money assets >= liabilities + subscribed capital.
func (fm *FinancingManager) TiedUpMoney(nonMoneyAssets, subscribedCapital int64) int64 {
	tied := fm.OutstandingDebt() + subscribedCapital - nonMoneyAssets
	if tied < 0 {
		tied = 0
	}
	return tied
}

// CalculateDividend returns the distributable surplus: cash above the larger
// of the capital-adequacy floor and the investment reserve plus required
// payments.
func (fm *FinancingManager) CalculateDividend(nonMoneyAssets, subscribedCapital int64) int64 {
	tied := fm.TiedUpMoney(nonMoneyAssets, subscribedCapital)
	reserve := fm.investmentReserve + fm.requiredPayments
	if tied > reserve {
		reserve = tied
	}
	dividend := fm.account.Balance() - reserve
	if dividend < 0 {
		return 0
	}
	return dividend
}
