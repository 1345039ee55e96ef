// Package firm implements the firm's production, financing, and insolvency
// engine: the machine fleet, the inventory-signal sales rule, the
// internal-funds-first financing protocol, and the multi-step insolvency
// resolution state machine.
package firm

import "fmt"

// Materials is a heap of goods somewhere in the production pipeline. Value is
// the money capitalized into the heap so far; per-unit value is Value/Volume
// and feeds FIFO cost-of-goods-sold accounting once the heap is finished.
type Materials struct {
	Stage          int
	Volume         int64
	Value          int64
	ProducedPeriod int
}

// Merge absorbs another heap. Heaps at different pipeline stages never mix.
func (m *Materials) Merge(other Materials) error {
	if m.Stage != other.Stage {
		return violationf("merge of materials at stage %d into stage %d", other.Stage, m.Stage)
	}
	m.Volume += other.Volume
	m.Value += other.Value
	if other.ProducedPeriod > m.ProducedPeriod {
		m.ProducedPeriod = other.ProducedPeriod
	}
	return nil
}

// Inventory is the finished-goods store: a FIFO queue of batches, oldest
// first, each carrying the value capitalized into it during production.
type Inventory struct {
	batches []Materials
	stage   int
}

// NewInventory creates a finished-goods inventory for the given final stage.
func NewInventory(finalStage int) *Inventory {
	return &Inventory{stage: finalStage}
}

// Volume returns the total finished volume.
func (inv *Inventory) Volume() int64 {
	var v int64
	for i := range inv.batches {
		v += inv.batches[i].Volume
	}
	return v
}

// Value returns the total book value of finished goods.
func (inv *Inventory) Value() int64 {
	var v int64
	for i := range inv.batches {
		v += inv.batches[i].Value
	}
	return v
}

// Push appends a finished batch. The batch must be at the final stage.
func (inv *Inventory) Push(m Materials) error {
	if m.Stage != inv.stage {
		return violationf("finished-goods push at stage %d, final stage is %d", m.Stage, inv.stage)
	}
	if m.Volume <= 0 {
		return nil
	}
	// Same-period batches merge to keep the queue short.
	if n := len(inv.batches); n > 0 && inv.batches[n-1].ProducedPeriod == m.ProducedPeriod {
		return inv.batches[n-1].Merge(m)
	}
	inv.batches = append(inv.batches, m)
	return nil
}

// Consume removes volume units FIFO and returns their book value, the cost
// of goods sold. Asking for more than is held is a modeling violation.
func (inv *Inventory) Consume(volume int64) (int64, error) {
	if volume < 0 {
		return 0, violationf("inventory consume of negative volume %d", volume)
	}
	if volume > inv.Volume() {
		return 0, violationf("inventory consume of %d exceeds held volume %d", volume, inv.Volume())
	}
	var cost int64
	for volume > 0 {
		b := &inv.batches[0]
		if b.Volume <= volume {
			cost += b.Value
			volume -= b.Volume
			inv.batches = inv.batches[1:]
			continue
		}
		share := b.Value * volume / b.Volume
		cost += share
		b.Value -= share
		b.Volume -= volume
		volume = 0
	}
	return cost, nil
}

// WriteDown forces the book value down to volume × unitCost and returns the
// total write-down. Used only during bankruptcy liquidation; the new value
// can never exceed the prior value.
func (inv *Inventory) WriteDown(unitCost int64) int64 {
	var total int64
	for i := range inv.batches {
		b := &inv.batches[i]
		target := b.Volume * unitCost
		if target < b.Value {
			total += b.Value - target
			b.Value = target
		}
	}
	return total
}

// Scrap empties the inventory on a liquidation exit and returns the book
// value destroyed.
func (inv *Inventory) Scrap() int64 {
	v := inv.Value()
	inv.batches = nil
	return v
}

// ViolationError marks a modeling-invariant violation: a logic defect, not a
// recoverable runtime condition. The sector aborts the run on one.
type ViolationError struct {
	msg string
}

func (e *ViolationError) Error() string {
	return "modeling violation: " + e.msg
}

func violationf(format string, args ...any) error {
	return &ViolationError{msg: fmt.Sprintf(format, args...)}
}
