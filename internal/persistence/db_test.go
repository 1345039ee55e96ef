package persistence

import (
	"path/filepath"
	"testing"

	"github.com/talgya/firmsim/internal/firm"
	"github.com/talgya/firmsim/internal/sector"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSaveAndQueryReports(t *testing.T) {
	db := openTestDB(t)

	reports := []sector.FirmReport{
		{Period: 0, FirmID: 1, Values: firm.Snapshot{"price": 10.5, "equity": 200000}},
		{Period: 1, FirmID: 1, Values: firm.Snapshot{"price": 11.0, "equity": 199500}},
		{Period: 1, FirmID: 2, Values: firm.Snapshot{"price": 9.0}},
	}
	if err := db.SaveReports(reports); err != nil {
		t.Fatalf("save: %v", err)
	}

	series, err := db.FirmSeries(1, "price")
	if err != nil {
		t.Fatalf("series: %v", err)
	}
	if len(series) != 2 || series[0] != 10.5 || series[1] != 11.0 {
		t.Fatalf("series %v, want [10.5 11]", series)
	}

	if empty, err := db.FirmSeries(3, "price"); err != nil || len(empty) != 0 {
		t.Fatalf("unknown firm: %v, %v", empty, err)
	}
	if err := db.SaveReports(nil); err != nil {
		t.Fatalf("empty save: %v", err)
	}
}

func TestSaveAggregates(t *testing.T) {
	db := openTestDB(t)

	agg := sector.Aggregates{
		Period: 3, Firms: 10, AvgPrice: 10.2,
		TotalDebt: 5000, TotalEquity: 2_000_000,
		Bankruptcies: 1, Liquidations: 0,
	}
	if err := db.SaveAggregates(agg); err != nil {
		t.Fatalf("save: %v", err)
	}
	// Same period twice replaces, never duplicates.
	agg.AvgPrice = 10.4
	if err := db.SaveAggregates(agg); err != nil {
		t.Fatalf("replace: %v", err)
	}

	var price float64
	if err := db.conn.Get(&price,
		"SELECT avg_price FROM sector_periods WHERE period = 3"); err != nil {
		t.Fatalf("query: %v", err)
	}
	if price != 10.4 {
		t.Fatalf("avg price %g, want the replaced 10.4", price)
	}
}

func TestSaveAndQueryEvents(t *testing.T) {
	db := openTestDB(t)

	events := []sector.Event{
		{Period: 1, FirmID: 4, Description: "firm 4 went bankrupt", Category: "bankruptcy"},
		{Period: 2, FirmID: 9, Description: "firm 9 entered", Category: "entry"},
	}
	if err := db.SaveEvents(events); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := db.RecentEvents(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	// Most recent first.
	if got[0].FirmID != 9 || got[1].FirmID != 4 {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got[1].Category != "bankruptcy" {
		t.Fatalf("category %q", got[1].Category)
	}
}

func TestRunMetaRoundTrip(t *testing.T) {
	db := openTestDB(t)

	if err := db.SaveMeta("scenario", "baseline"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := db.SaveMeta("scenario", "stress"); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, err := db.GetMeta("scenario")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "stress" {
		t.Fatalf("meta %q, want the replaced value", got)
	}
	if _, err := db.GetMeta("missing"); err == nil {
		t.Fatal("missing key returned no error")
	}
}

func TestSaveRun(t *testing.T) {
	db := openTestDB(t)

	reports := []sector.FirmReport{
		{Period: 0, FirmID: 1, Values: firm.Snapshot{"cash": 100}},
	}
	agg := sector.Aggregates{Period: 0, Firms: 1, AvgPrice: 10}
	events := []sector.Event{{Period: 0, FirmID: 1, Description: "x", Category: "entry"}}

	if err := db.SaveRun(reports, agg, events); err != nil {
		t.Fatalf("save run: %v", err)
	}
	series, err := db.FirmSeries(1, "cash")
	if err != nil || len(series) != 1 {
		t.Fatalf("series after run save: %v, %v", series, err)
	}
}
