// Package market provides the external collaborators of the firm core:
// goods and credit offer books, bank accounts, and shareholders. The firm
// only ever sees the narrow interfaces here; clearing mechanics live in the
// driver-side implementations.
package market

import "fmt"

// Cheque is a one-shot payment instrument. Funds leave the drawer's account
// when the cheque is written and arrive when it is deposited, so money is
// conserved across every transfer.
type Cheque struct {
	amount    int64
	drawerID  uint64
	deposited bool
}

// Amount returns the face value of the cheque.
func (c *Cheque) Amount() int64 {
	return c.amount
}

// DrawerID identifies the paying account holder.
func (c *Cheque) DrawerID() uint64 {
	return c.drawerID
}

// Account is the firm's view of its bank account.
type Account interface {
	// Deposit credits the cheque's amount. Depositing the same cheque twice
	// is a modeling violation.
	Deposit(c *Cheque) error
	// NewCheque debits the account and returns a cheque for the amount.
	// Fails when the amount exceeds the balance.
	NewCheque(amount int64) (*Cheque, error)
	// Balance returns the current money holding.
	Balance() int64
}

// BasicAccount is the in-memory Account used by the driver and tests.
type BasicAccount struct {
	holderID uint64
	balance  int64
}

// NewAccount creates an account for the given holder with an opening balance.
func NewAccount(holderID uint64, opening int64) *BasicAccount {
	return &BasicAccount{holderID: holderID, balance: opening}
}

func (a *BasicAccount) Deposit(c *Cheque) error {
	if c == nil {
		return fmt.Errorf("account %d: deposit of nil cheque", a.holderID)
	}
	if c.deposited {
		return fmt.Errorf("account %d: cheque from %d already deposited", a.holderID, c.drawerID)
	}
	c.deposited = true
	a.balance += c.amount
	return nil
}

func (a *BasicAccount) NewCheque(amount int64) (*Cheque, error) {
	if amount < 0 {
		return nil, fmt.Errorf("account %d: cheque amount %d is negative", a.holderID, amount)
	}
	if amount > a.balance {
		return nil, fmt.Errorf("account %d: cheque amount %d exceeds balance %d", a.holderID, amount, a.balance)
	}
	a.balance -= amount
	return &Cheque{amount: amount, drawerID: a.holderID}, nil
}

func (a *BasicAccount) Balance() int64 {
	return a.balance
}
