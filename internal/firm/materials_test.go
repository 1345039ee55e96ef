package firm

import "testing"

func TestMaterialsMergeRejectsStageMismatch(t *testing.T) {
	m := Materials{Stage: 2, Volume: 10, Value: 100}
	if err := m.Merge(Materials{Stage: 3, Volume: 5, Value: 50}); err == nil {
		t.Fatal("merge across stages accepted")
	}
	if err := m.Merge(Materials{Stage: 2, Volume: 5, Value: 50, ProducedPeriod: 3}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if m.Volume != 15 || m.Value != 150 || m.ProducedPeriod != 3 {
		t.Fatalf("merged heap %+v", m)
	}
}

func TestInventoryPushRejectsWrongStage(t *testing.T) {
	inv := NewInventory(4)
	if err := inv.Push(Materials{Stage: 3, Volume: 10, Value: 100}); err == nil {
		t.Fatal("push of unfinished materials accepted")
	}
	if err := inv.Push(Materials{Stage: 4, Volume: 10, Value: 100}); err != nil {
		t.Fatalf("push: %v", err)
	}
}

func TestInventoryMergesSamePeriodBatches(t *testing.T) {
	inv := NewInventory(1)
	for i := 0; i < 3; i++ {
		if err := inv.Push(Materials{Stage: 1, Volume: 10, Value: 50, ProducedPeriod: 7}); err != nil {
			t.Fatal(err)
		}
	}
	if len(inv.batches) != 1 {
		t.Fatalf("same-period batches not merged: %d batches", len(inv.batches))
	}
	if inv.Volume() != 30 || inv.Value() != 150 {
		t.Fatalf("inventory volume %d value %d", inv.Volume(), inv.Value())
	}
}

func TestInventoryConsumeFIFO(t *testing.T) {
	inv := NewInventory(1)
	inv.Push(Materials{Stage: 1, Volume: 10, Value: 100, ProducedPeriod: 1}) // 10/unit
	inv.Push(Materials{Stage: 1, Volume: 10, Value: 200, ProducedPeriod: 2}) // 20/unit

	cost, err := inv.Consume(15)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	// Oldest batch entirely (100) plus half the newer one (100).
	if cost != 200 {
		t.Fatalf("cost of goods sold %d, want 200", cost)
	}
	if inv.Volume() != 5 || inv.Value() != 100 {
		t.Fatalf("remaining volume %d value %d, want 5 and 100", inv.Volume(), inv.Value())
	}
}

func TestInventoryConsumeConservesValue(t *testing.T) {
	inv := NewInventory(1)
	inv.Push(Materials{Stage: 1, Volume: 7, Value: 100, ProducedPeriod: 1})

	before := inv.Value()
	cost, err := inv.Consume(3)
	if err != nil {
		t.Fatal(err)
	}
	if cost+inv.Value() != before {
		t.Fatalf("value leaked: consumed %d + remaining %d != %d", cost, inv.Value(), before)
	}
}

func TestInventoryConsumeBounds(t *testing.T) {
	inv := NewInventory(1)
	inv.Push(Materials{Stage: 1, Volume: 5, Value: 50, ProducedPeriod: 1})
	if _, err := inv.Consume(6); err == nil {
		t.Fatal("consume beyond held volume accepted")
	}
	if _, err := inv.Consume(-1); err == nil {
		t.Fatal("negative consume accepted")
	}
}

func TestInventoryWriteDown(t *testing.T) {
	inv := NewInventory(1)
	inv.Push(Materials{Stage: 1, Volume: 10, Value: 300, ProducedPeriod: 1})

	wd := inv.WriteDown(20)
	if wd != 100 || inv.Value() != 200 {
		t.Fatalf("write-down %d, remaining value %d", wd, inv.Value())
	}
	// Never writes value up.
	if wd := inv.WriteDown(50); wd != 0 || inv.Value() != 200 {
		t.Fatalf("write-down above book value changed it: %d, %d", wd, inv.Value())
	}
}
