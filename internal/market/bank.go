// Credit-side collaborators: lenders, the credit market snapshot, and the
// basic in-memory bank used by the driver and tests.
package market

import (
	"fmt"
	"sort"
)

// Lender is one creditor standing in the credit market.
type Lender interface {
	LenderID() uint64
	// Lend draws down the lender's standing offer and returns the funds.
	// Fails if the lender cannot serve the amount.
	Lend(borrowerID uint64, amount int64) (*Cheque, error)
	// Collect receives a debt-service payment from a borrower.
	Collect(c *Cheque) error
	// AcknowledgeDefault notifies the lender that the borrower's remaining
	// debt of the given amount is cancelled.
	AcknowledgeDefault(borrowerID uint64, loss int64)
}

// CreditMarket is the firm's view of standing credit offers.
type CreditMarket interface {
	// Offers returns a snapshot sorted by price (interest rate) ascending.
	Offers() []Offer
	// Lender resolves an offer's supplier id.
	Lender(id uint64) (Lender, bool)
}

// BasicBank is an in-memory lender with a fixed standing offer. A driver
// usually runs several of these at different rates to give the ranking
// algorithm something to rank.
type BasicBank struct {
	id       uint64
	rate     float64
	loanable int64
	// Outstanding principal per borrower, for default accounting.
	outstanding map[uint64]int64
	// Interest and redemption actually collected, for driver statistics.
	Collected int64
	// Principal written off through borrower defaults.
	WrittenOff int64
}

// NewBasicBank creates a bank offering loanable funds at the given rate.
func NewBasicBank(id uint64, rate float64, loanable int64) *BasicBank {
	return &BasicBank{
		id:          id,
		rate:        rate,
		loanable:    loanable,
		outstanding: make(map[uint64]int64),
	}
}

func (b *BasicBank) LenderID() uint64 { return b.id }

// Offer returns the bank's current standing offer.
func (b *BasicBank) Offer() Offer {
	return Offer{SupplierID: b.id, Price: b.rate, Volume: b.loanable}
}

func (b *BasicBank) Lend(borrowerID uint64, amount int64) (*Cheque, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("bank %d: loan amount %d must be positive", b.id, amount)
	}
	if amount > b.loanable {
		return nil, fmt.Errorf("bank %d: loan amount %d exceeds loanable funds %d", b.id, amount, b.loanable)
	}
	b.loanable -= amount
	b.outstanding[borrowerID] += amount
	return &Cheque{amount: amount, drawerID: b.id}, nil
}

func (b *BasicBank) Collect(c *Cheque) error {
	if c == nil {
		return fmt.Errorf("bank %d: collect of nil cheque", b.id)
	}
	if c.deposited {
		return fmt.Errorf("bank %d: cheque from %d already deposited", b.id, c.drawerID)
	}
	c.deposited = true
	b.Collected += c.amount
	// Collected funds become loanable again next search.
	b.loanable += c.amount
	return nil
}

func (b *BasicBank) AcknowledgeDefault(borrowerID uint64, loss int64) {
	b.WrittenOff += loss
	delete(b.outstanding, borrowerID)
}

// CreditBook aggregates lender offers into a CreditMarket.
type CreditBook struct {
	lenders map[uint64]*BasicBank
}

// NewCreditBook creates a credit market over the given banks.
func NewCreditBook(banks ...*BasicBank) *CreditBook {
	book := &CreditBook{lenders: make(map[uint64]*BasicBank, len(banks))}
	for _, b := range banks {
		book.lenders[b.id] = b
	}
	return book
}

func (cb *CreditBook) Offers() []Offer {
	out := make([]Offer, 0, len(cb.lenders))
	for _, b := range cb.lenders {
		if o := b.Offer(); o.Volume > 0 {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Price != out[j].Price {
			return out[i].Price < out[j].Price
		}
		return out[i].SupplierID < out[j].SupplierID
	})
	return out
}

func (cb *CreditBook) Lender(id uint64) (Lender, bool) {
	b, ok := cb.lenders[id]
	return b, ok
}
