// Ownership registry — equity titles, pro-rata dividends, recapitalization.
package firm

import (
	"log/slog"

	"github.com/talgya/firmsim/internal/entropy"
	"github.com/talgya/firmsim/internal/market"
)

// EquityTitle is one shareholder's claim on the firm. Face is the capital
// contributed at issuance; Value is the current pro-rata share of equity,
// restated at every period close.
type EquityTitle struct {
	Owner market.Shareholder
	Face  int64
	Value int64
}

// OwnershipRegistry issues and clears equity titles, pays dividends, and
// re-capitalizes the firm after a debt cancellation.
type OwnershipRegistry struct {
	firmID uint64
	pool   market.ShareholderPool
	stream *entropy.Stream
	titles []*EquityTitle
}

// NewOwnershipRegistry creates an empty registry backed by the candidate pool.
func NewOwnershipRegistry(firmID uint64, pool market.ShareholderPool, stream *entropy.Stream) *OwnershipRegistry {
	return &OwnershipRegistry{firmID: firmID, pool: pool, stream: stream}
}

// Titles returns the current titles, issuance order.
func (r *OwnershipRegistry) Titles() []*EquityTitle {
	return r.titles
}

// SubscribedCapital returns the sum of contributed face values.
func (r *OwnershipRegistry) SubscribedCapital() int64 {
	var total int64
	for _, t := range r.titles {
		total += t.Face
	}
	return total
}

// TitleValue returns the sum of current title values.
func (r *OwnershipRegistry) TitleValue() int64 {
	var total int64
	for _, t := range r.titles {
		total += t.Value
	}
	return total
}

// Issue creates a title for a contribution and notifies the owner.
func (r *OwnershipRegistry) Issue(owner market.Shareholder, contribution int64) *EquityTitle {
	t := &EquityTitle{Owner: owner, Face: contribution, Value: contribution}
	r.titles = append(r.titles, t)
	owner.AcceptTitle(r.firmID, contribution)
	return t
}

// Restate resets title values to their pro-rata share of the firm's equity,
// by face value, so the set always sums to max(equity, 0). The integer
// remainder goes one unit at a time to the earliest titles.
func (r *OwnershipRegistry) Restate(equity int64) {
	if len(r.titles) == 0 {
		return
	}
	if equity < 0 {
		equity = 0
	}
	capital := r.SubscribedCapital()
	if capital == 0 {
		for _, t := range r.titles {
			t.Value = 0
		}
		return
	}
	var assigned int64
	for _, t := range r.titles {
		t.Value = equity * t.Face / capital
		assigned += t.Value
	}
	for i, remainder := 0, equity-assigned; remainder > 0; remainder-- {
		r.titles[i%len(r.titles)].Value++
		i++
	}
}

// PayDividends distributes the amount pro rata by title value. Any integer
// remainder from rounding goes one unit at a time to randomly-ordered
// owners, so the sum paid exactly equals the amount.
func (r *OwnershipRegistry) PayDividends(amount int64, account market.Account) error {
	if amount <= 0 || len(r.titles) == 0 {
		return nil
	}
	total := r.TitleValue()
	if total == 0 {
		return nil
	}

	shares := make([]int64, len(r.titles))
	var assigned int64
	for i, t := range r.titles {
		shares[i] = amount * t.Value / total
		assigned += shares[i]
	}
	remainder := amount - assigned
	for _, idx := range r.stream.Perm(len(r.titles)) {
		if remainder == 0 {
			break
		}
		shares[idx]++
		remainder--
	}

	var paid int64
	for i, t := range r.titles {
		if shares[i] == 0 {
			continue
		}
		cheque, err := account.NewCheque(shares[i])
		if err != nil {
			return err
		}
		if err := t.Owner.AcceptDividend(cheque); err != nil {
			return err
		}
		paid += shares[i]
	}
	if paid != amount {
		return violationf("dividends paid %d, computed %d", paid, amount)
	}
	return nil
}

// Clear voids every title, notifying owners when the clearing is a default.
func (r *OwnershipRegistry) Clear(isDefault bool) {
	if isDefault {
		for _, t := range r.titles {
			t.Owner.NotifyDefault(r.firmID)
		}
	}
	r.titles = nil
}

// Recapitalize raises fresh equity after a debt cancellation: candidate
// shareholders are sampled in increasing batch sizes, each solicited for the
// fixed per-candidate contribution (clamped so the raise stops exactly at
// the target), until the target is met or the retry budget runs out. Every
// accepted contribution is deposited and issues a title sized to it.
// Returns the amount raised.
func (r *OwnershipRegistry) Recapitalize(target, contribution int64, retries int, account market.Account) (int64, error) {
	raised, err := r.solicit(target, contribution, retries, account)
	if err != nil {
		return raised, err
	}
	if raised == 0 {
		// Nobody contributed: fall back to the default ownership seeding
		// used at firm creation.
		slog.Debug("recapitalization found no investors, reseeding", "firm", r.firmID)
		return r.Seed(target, contribution, account)
	}
	return raised, nil
}

// Seed performs the default ownership seeding used at firm creation: the
// same sampling mechanism, with the full retry budget.
func (r *OwnershipRegistry) Seed(target, contribution int64, account market.Account) (int64, error) {
	return r.solicit(target, contribution, defaultSeedRetries, account)
}

const defaultSeedRetries = 5

func (r *OwnershipRegistry) solicit(target, contribution int64, retries int, account market.Account) (int64, error) {
	var raised int64
	batch := 4
	for attempt := 0; attempt <= retries && raised < target; attempt++ {
		for _, candidate := range r.pool.Sample(batch, r.stream) {
			if raised >= target {
				break
			}
			ask := contribution
			if remaining := target - raised; ask > remaining {
				ask = remaining
			}
			cheque := candidate.Contribute(r.firmID, ask)
			if cheque == nil {
				continue
			}
			if cheque.Amount() != ask {
				return raised, violationf("contribution cheque of %d, solicited %d", cheque.Amount(), ask)
			}
			if err := account.Deposit(cheque); err != nil {
				return raised, err
			}
			r.Issue(candidate, ask)
			raised += ask
		}
		batch *= 2
	}
	return raised, nil
}
