// Offers and offer books — explicit value types looked up by supplier id,
// never closures over mutable firm state.
package market

import (
	"fmt"
	"sort"
)

// Offer is a standing offer on a market: so much volume at such a price.
// For goods offers the price is per unit; for credit offers the price is the
// per-period interest rate and the volume is the loanable amount.
type Offer struct {
	SupplierID uint64
	Price      float64
	Volume     int64
}

// Goods is the result of a purchase: a volume of goods and the value paid
// for them, carried at cost into the buyer's books.
type Goods struct {
	Volume int64
	Value  int64
}

// Supplier executes sales against its own inventory when a buyer purchases
// from its standing offer.
type Supplier interface {
	SupplierID() uint64
	// Sell delivers up to volume units against the payment. The payment must
	// equal the posted price times the volume; a mismatch is a modeling
	// violation on the buyer's side.
	Sell(volume int64, payment *Cheque) (Goods, error)
}

// GoodsMarket is the firm's view of the commodity market.
type GoodsMarket interface {
	// Register makes a supplier purchasable.
	Register(s Supplier)
	// Post replaces the supplier's standing offer for this period.
	Post(supplierID uint64, volume int64, price float64)
	// Offers returns a snapshot of standing offers sorted by price ascending.
	Offers() []Offer
	// Supplier resolves an offer's supplier id for purchase.
	Supplier(id uint64) (Supplier, bool)
	// Unregister removes a supplier and withdraws its standing offer when
	// it exits the market.
	Unregister(supplierID uint64)
	// Take decrements a supplier's standing volume after a purchase.
	Take(supplierID uint64, volume int64)
}

// OfferBook is the in-memory GoodsMarket used by the driver and tests.
type OfferBook struct {
	offers    map[uint64]*Offer
	suppliers map[uint64]Supplier
}

// NewOfferBook creates an empty offer book.
func NewOfferBook() *OfferBook {
	return &OfferBook{
		offers:    make(map[uint64]*Offer),
		suppliers: make(map[uint64]Supplier),
	}
}

// Register makes a supplier purchasable. Posting without registering is a
// wiring mistake surfaced at purchase time.
func (b *OfferBook) Register(s Supplier) {
	b.suppliers[s.SupplierID()] = s
}

func (b *OfferBook) Post(supplierID uint64, volume int64, price float64) {
	if volume <= 0 {
		delete(b.offers, supplierID)
		return
	}
	b.offers[supplierID] = &Offer{SupplierID: supplierID, Price: price, Volume: volume}
}

func (b *OfferBook) Offers() []Offer {
	out := make([]Offer, 0, len(b.offers))
	for _, o := range b.offers {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Price != out[j].Price {
			return out[i].Price < out[j].Price
		}
		return out[i].SupplierID < out[j].SupplierID
	})
	return out
}

func (b *OfferBook) Supplier(id uint64) (Supplier, bool) {
	s, ok := b.suppliers[id]
	return s, ok
}

// Unregister removes a supplier and withdraws its standing offer.
func (b *OfferBook) Unregister(supplierID uint64) {
	delete(b.suppliers, supplierID)
	delete(b.offers, supplierID)
}

func (b *OfferBook) Take(supplierID uint64, volume int64) {
	o, ok := b.offers[supplierID]
	if !ok {
		return
	}
	o.Volume -= volume
	if o.Volume <= 0 {
		delete(b.offers, supplierID)
	}
}

// Buy is the driver-side convenience: purchase up to volume units from the
// cheapest standing offers, paying from the buyer's account. Returns the
// goods actually obtained.
func (b *OfferBook) Buy(buyer Account, volume int64) (Goods, error) {
	var got Goods
	for _, o := range b.Offers() {
		if got.Volume >= volume {
			break
		}
		take := volume - got.Volume
		if take > o.Volume {
			take = o.Volume
		}
		cost := PaymentFor(o.Price, take)
		if cost > buyer.Balance() {
			affordable := int64(float64(buyer.Balance()) / o.Price)
			if affordable <= 0 {
				break
			}
			take = affordable
			cost = PaymentFor(o.Price, take)
		}
		s, ok := b.Supplier(o.SupplierID)
		if !ok {
			return got, fmt.Errorf("market: offer from unregistered supplier %d", o.SupplierID)
		}
		payment, err := buyer.NewCheque(cost)
		if err != nil {
			return got, err
		}
		g, err := s.Sell(take, payment)
		if err != nil {
			return got, err
		}
		b.Take(o.SupplierID, g.Volume)
		got.Volume += g.Volume
		got.Value += g.Value
	}
	return got, nil
}

// PaymentFor converts a price and volume into the integer payment amount.
func PaymentFor(price float64, volume int64) int64 {
	return int64(price * float64(volume))
}
