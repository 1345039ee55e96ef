// Shareholder-side collaborators: the narrow interface the firm calls to
// raise or return capital, plus the in-memory household used by the driver.
package market

import "github.com/talgya/firmsim/internal/entropy"

// Shareholder is an agent that can hold equity in a firm.
type Shareholder interface {
	ShareholderID() uint64
	// Contribute solicits a fixed capital contribution toward the firm.
	// A nil cheque means the shareholder declines.
	Contribute(firmID uint64, amount int64) *Cheque
	// AcceptTitle records that the shareholder now holds equity of the given
	// value in the firm.
	AcceptTitle(firmID uint64, value int64)
	// AcceptDividend receives a dividend payment.
	AcceptDividend(c *Cheque) error
	// NotifyDefault informs the shareholder its titles in the firm are void.
	NotifyDefault(firmID uint64)
}

// ShareholderPool samples candidate equity investors during firm creation
// and bankruptcy recapitalization.
type ShareholderPool interface {
	Sample(n int, stream *entropy.Stream) []Shareholder
}

// Household is a wage earner and equity investor. It implements Shareholder
// and funds contributions from its account balance.
type Household struct {
	id      uint64
	account *BasicAccount
	// Titles held, face value by firm id.
	holdings map[uint64]int64
	// Dividends received, for driver statistics.
	DividendIncome int64
}

// NewHousehold creates a household with an opening money balance.
func NewHousehold(id uint64, opening int64) *Household {
	return &Household{
		id:       id,
		account:  NewAccount(id, opening),
		holdings: make(map[uint64]int64),
	}
}

func (h *Household) ShareholderID() uint64 { return h.id }

// Account exposes the household's account to the driver's consumption loop.
func (h *Household) Account() *BasicAccount { return h.account }

func (h *Household) Contribute(firmID uint64, amount int64) *Cheque {
	if amount > h.account.Balance() {
		return nil
	}
	c, err := h.account.NewCheque(amount)
	if err != nil {
		return nil
	}
	return c
}

func (h *Household) AcceptTitle(firmID uint64, value int64) {
	h.holdings[firmID] = value
}

func (h *Household) AcceptDividend(c *Cheque) error {
	h.DividendIncome += c.Amount()
	return h.account.Deposit(c)
}

func (h *Household) NotifyDefault(firmID uint64) {
	delete(h.holdings, firmID)
}

// HouseholdPool samples without replacement from a fixed population.
type HouseholdPool struct {
	households []*Household
}

// NewHouseholdPool wraps a household population for shareholder sampling.
func NewHouseholdPool(hh []*Household) *HouseholdPool {
	return &HouseholdPool{households: hh}
}

func (p *HouseholdPool) Sample(n int, stream *entropy.Stream) []Shareholder {
	if n > len(p.households) {
		n = len(p.households)
	}
	perm := stream.Perm(len(p.households))
	out := make([]Shareholder, 0, n)
	for _, idx := range perm[:n] {
		out = append(out, p.households[idx])
	}
	return out
}
