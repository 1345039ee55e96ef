// Production facility — the machine fleet and the staged production pipeline.
package firm

import (
	"github.com/talgya/firmsim/internal/entropy"
	"github.com/talgya/firmsim/internal/sim"
)

// Machine is one unit of fixed capital. Productivity is fixed at creation,
// the exact expiration is randomized around the mean lifetime, and the book
// value amortizes straight-line over the estimated lifetime.
type Machine struct {
	Productivity int
	Expiration   int   // last period the machine runs; scrapped after
	BookValue    int64 // zero at or after expiration
	created      int
	estimatedEnd int // amortization horizon from the mean lifetime
}

// JobContract is one period's claim on one worker's labor.
type JobContract struct {
	WorkerID uint64
	Wage     int64
}

// LaborMarket is the narrow slice of the labor side the firm calls: offer
// jobs, receive contracts, settle the wage bill.
type LaborMarket interface {
	Hire(employerID uint64, count int, wage int64) []JobContract
	PayWages(c Payment) error
}

// Payment is what the labor market accepts for a wage bill. It matches
// *market.Cheque without importing it here.
type Payment interface {
	Amount() int64
}

// ProductionFacility owns the machine fleet and the in-process pipeline.
type ProductionFacility struct {
	clock *sim.Clock
	tech  sim.TechnologyConfig

	machines  []*Machine // newest first
	inProcess []Materials
	finished  *Inventory

	// Uncommissioned investment-goods input, accumulated toward the next
	// machine.
	inputVolume int64
	inputValue  int64

	productionAtFullCapacity int64
	lastDepreciated          int // period of the last depreciate() call
	producedLastPeriod       int64
}

// NewProductionFacility creates a facility with the initial machine fleet.
// Initial machines carry zero book value: they are endowment, not purchased
// capital, so they do not appear on the opening balance sheet.
func NewProductionFacility(clock *sim.Clock, tech sim.TechnologyConfig, stream *entropy.Stream) *ProductionFacility {
	f := &ProductionFacility{
		clock:           clock,
		tech:            tech,
		finished:        NewInventory(tech.ProductionStages),
		lastDepreciated: -1,
	}
	for i := 0; i < tech.InitialMachines; i++ {
		f.commission(0)
	}
	// Spread initial expirations so the fleet does not expire all at once.
	for i, m := range f.machines {
		m.Expiration = stream.NormalInt(tech.MachineLifetimeMean*(i+1)/tech.InitialMachines,
			tech.MachineLifetimeStdev, 1)
		m.estimatedEnd = m.Expiration
	}
	return f
}

// commission adds a machine at the front of the fleet with the given book
// value. Newest machines sit first so they are depreciated with full
// remaining life.
func (f *ProductionFacility) commission(bookValue int64) *Machine {
	m := &Machine{
		Productivity: f.tech.Productivity,
		BookValue:    bookValue,
		created:      f.clock.Period(),
	}
	f.machines = append([]*Machine{m}, f.machines...)
	f.productionAtFullCapacity += int64(f.tech.Productivity)
	return m
}

// MachineCount returns the current fleet size.
func (f *ProductionFacility) MachineCount() int {
	return len(f.machines)
}

// ProductionAtFullCapacity returns total productivity of the fleet.
func (f *ProductionFacility) ProductionAtFullCapacity() int64 {
	return f.productionAtFullCapacity
}

// MachineryValue returns the amortized book value of the fleet plus the
// uncommissioned investment-goods input.
func (f *ProductionFacility) MachineryValue() int64 {
	v := f.inputValue
	for _, m := range f.machines {
		v += m.BookValue
	}
	return v
}

// InProcessValue returns the value capitalized into unfinished materials.
func (f *ProductionFacility) InProcessValue() int64 {
	var v int64
	for i := range f.inProcess {
		v += f.inProcess[i].Value
	}
	return v
}

// Finished exposes the finished-goods inventory to the sales manager.
func (f *ProductionFacility) Finished() *Inventory {
	return f.finished
}

// ProducedLastPeriod returns the finished volume of the last produce() call.
func (f *ProductionFacility) ProducedLastPeriod() int64 {
	return f.producedLastPeriod
}

// OverheadCapacity returns how many overhead workers the fleet supports.
func (f *ProductionFacility) OverheadCapacity() int {
	return int(f.tech.OverheadRatio * float64(len(f.machines)))
}

// MarginalOutput is the extra finished volume per period from one more
// machine worker: one pipeline advance of productivity units, spread over
// the stages a unit must pass through.
func (f *ProductionFacility) MarginalOutput() int64 {
	out := int64(f.tech.Productivity / f.tech.ProductionStages)
	if out < 1 {
		out = 1
	}
	return out
}

// Depreciate amortizes every machine for the period and scraps expired ones.
// Straight-line over the estimated lifetime; a machine past its estimated or
// randomized expiration loses its full remaining value. Returns total
// depreciation, always >= 0. Calling it twice in the same period is a
// modeling violation.
func (f *ProductionFacility) Depreciate() (int64, error) {
	period := f.clock.Period()
	if f.lastDepreciated == period {
		return 0, violationf("depreciate called twice in period %d", period)
	}
	f.lastDepreciated = period

	var total int64
	kept := f.machines[:0]
	for _, m := range f.machines {
		remaining := m.estimatedEnd - period
		if remaining <= 0 || period >= m.Expiration {
			total += m.BookValue
			m.BookValue = 0
		} else {
			tranche := m.BookValue / int64(remaining)
			m.BookValue -= tranche
			total += tranche
		}
		if period >= m.Expiration {
			f.productionAtFullCapacity -= int64(m.Productivity)
			continue
		}
		kept = append(kept, m)
	}
	f.machines = kept
	return total, nil
}

// NextDepreciationTranche estimates next period's depreciation without
// mutating the fleet. The profitability gate compares contribution margin
// against fixed costs plus this tranche.
func (f *ProductionFacility) NextDepreciationTranche() int64 {
	period := f.clock.Period() + 1
	var total int64
	for _, m := range f.machines {
		remaining := m.estimatedEnd - period
		if remaining <= 0 || period >= m.Expiration {
			total += m.BookValue
		} else {
			total += m.BookValue / int64(remaining)
		}
	}
	return total
}

// ExpandCapacity accumulates investment-goods input and commissions a new
// machine each time the per-machine input threshold is met. Returns the
// number of machines commissioned.
func (f *ProductionFacility) ExpandCapacity(goods Goods, stream *entropy.Stream) int {
	f.inputVolume += goods.Volume
	f.inputValue += goods.Value

	commissioned := 0
	for f.inputVolume >= f.tech.InputPerMachine {
		bookValue := f.inputValue * f.tech.InputPerMachine / f.inputVolume
		f.inputVolume -= f.tech.InputPerMachine
		f.inputValue -= bookValue

		m := f.commission(bookValue)
		lifetime := stream.NormalInt(f.tech.MachineLifetimeMean, f.tech.MachineLifetimeStdev, 1)
		m.Expiration = f.clock.Period() + lifetime
		m.estimatedEnd = f.clock.Period() + f.tech.MachineLifetimeMean
		commissioned++
	}
	return commissioned
}

// Goods mirrors market.Goods for the facility's input side.
type Goods struct {
	Volume int64
	Value  int64
}

// Produce runs one period of production with the given crew. Overhead labor
// is assigned first, bounded by the overhead ratio; remaining workers go one
// per machine, each advancing materials one pipeline stage. Materials that
// reach the final stage merge into finished-goods inventory. Overhead wages
// are expensed; machine-worker wages are capitalized into the materials they
// advanced. Returns the expensed overhead wage bill.
func (f *ProductionFacility) Produce(contracts []JobContract) (int64, error) {
	overheadMax := f.OverheadCapacity()
	if len(contracts) > overheadMax+len(f.machines) {
		return 0, violationf("crew of %d exceeds overhead %d + machines %d",
			len(contracts), overheadMax, len(f.machines))
	}

	overhead := len(contracts)
	if overhead > overheadMax {
		overhead = overheadMax
	}
	var overheadWages int64
	for _, c := range contracts[:overhead] {
		overheadWages += c.Wage
	}
	workers := contracts[overhead:]

	period := f.clock.Period()
	f.producedLastPeriod = 0

	// Heaps not yet advanced this period, deepest stage first.
	pending := f.inProcess
	f.inProcess = nil
	var advanced []Materials

	for i, c := range workers {
		machine := f.machines[i%len(f.machines)]
		capacity := int64(machine.Productivity)

		idx := deepestUnfinished(pending, f.tech.ProductionStages)
		if idx < 0 {
			// Nothing to advance: start a new heap at stage 1.
			advanced = append(advanced, Materials{
				Stage:          1,
				Volume:         capacity,
				Value:          c.Wage,
				ProducedPeriod: period,
			})
			continue
		}

		heap := &pending[idx]
		take := capacity
		if take > heap.Volume {
			take = heap.Volume
		}
		share := heap.Value * take / heap.Volume
		heap.Volume -= take
		heap.Value -= share
		if heap.Volume == 0 {
			pending = append(pending[:idx], pending[idx+1:]...)
		}
		advanced = append(advanced, Materials{
			Stage:          heap.Stage + 1,
			Volume:         take,
			Value:          share + c.Wage,
			ProducedPeriod: period,
		})
	}

	// Reassemble the pipeline, moving finished heaps into inventory.
	for _, h := range append(pending, advanced...) {
		if h.Volume == 0 {
			continue
		}
		if h.Stage == f.tech.ProductionStages {
			if err := f.finished.Push(h); err != nil {
				return overheadWages, err
			}
			f.producedLastPeriod += h.Volume
			continue
		}
		f.inProcess = mergeHeap(f.inProcess, h)
	}

	return overheadWages, nil
}

// deepestUnfinished returns the index of the heap closest to completion, or
// -1 when the pipeline holds nothing advanceable.
func deepestUnfinished(heaps []Materials, finalStage int) int {
	best := -1
	for i := range heaps {
		if heaps[i].Stage >= finalStage || heaps[i].Volume == 0 {
			continue
		}
		if best < 0 || heaps[i].Stage > heaps[best].Stage {
			best = i
		}
	}
	return best
}

// mergeHeap folds a heap into the pipeline, merging with an equal-stage heap
// when one exists.
func mergeHeap(heaps []Materials, h Materials) []Materials {
	for i := range heaps {
		if heaps[i].Stage == h.Stage {
			// Equal stages never fail to merge.
			_ = heaps[i].Merge(h)
			return heaps
		}
	}
	return append(heaps, h)
}

// DepreciateInventories forces finished-goods value down to volume × unitCost
// during bankruptcy liquidation. Returns the write-down.
func (f *ProductionFacility) DepreciateInventories(unitCost int64) int64 {
	return f.finished.WriteDown(unitCost)
}

// Scrap destroys the facility on a liquidation exit: the fleet, the pipeline,
// the uncommissioned input, and the finished goods. Returns the total book
// value destroyed.
func (f *ProductionFacility) Scrap() int64 {
	destroyed := f.MachineryValue() + f.InProcessValue() + f.finished.Scrap()
	f.machines = nil
	f.productionAtFullCapacity = 0
	f.inProcess = nil
	f.inputVolume = 0
	f.inputValue = 0
	return destroyed
}
