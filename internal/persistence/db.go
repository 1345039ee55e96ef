// Package persistence provides SQLite-based storage for period reports. The
// core produces key→value snapshots; formatting and analysis belong to
// whatever reads this database afterwards.
package persistence

import (
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/firmsim/internal/sector"
)

// DB wraps a SQLite connection for report storage.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS firm_reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		period INTEGER NOT NULL,
		firm_id INTEGER NOT NULL,
		key TEXT NOT NULL,
		value REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sector_periods (
		period INTEGER PRIMARY KEY,
		firms INTEGER NOT NULL,
		avg_price REAL NOT NULL,
		total_debt INTEGER NOT NULL,
		total_equity INTEGER NOT NULL,
		bankruptcies INTEGER NOT NULL,
		liquidations INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		period INTEGER NOT NULL,
		firm_id INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS run_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reports_period ON firm_reports(period);
	CREATE INDEX IF NOT EXISTS idx_reports_firm ON firm_reports(firm_id);
	CREATE INDEX IF NOT EXISTS idx_events_period ON events(period);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveReports appends firm snapshots for one or more periods.
func (db *DB) SaveReports(reports []sector.FirmReport) error {
	if len(reports) == 0 {
		return nil
	}
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(
		"INSERT INTO firm_reports (period, firm_id, key, value) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range reports {
		for key, value := range r.Values {
			if _, err := stmt.Exec(r.Period, r.FirmID, key, value); err != nil {
				return fmt.Errorf("insert report firm %d period %d: %w", r.FirmID, r.Period, err)
			}
		}
	}
	return tx.Commit()
}

// SaveAggregates stores the sector-level row for one period.
func (db *DB) SaveAggregates(a sector.Aggregates) error {
	_, err := db.conn.Exec(`INSERT OR REPLACE INTO sector_periods
		(period, firms, avg_price, total_debt, total_equity, bankruptcies, liquidations)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.Period, a.Firms, a.AvgPrice, a.TotalDebt, a.TotalEquity, a.Bankruptcies, a.Liquidations,
	)
	return err
}

// SaveEvents appends sector events.
func (db *DB) SaveEvents(events []sector.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range events {
		_, err := tx.Exec(
			"INSERT INTO events (period, firm_id, description, category) VALUES (?, ?, ?, ?)",
			e.Period, e.FirmID, e.Description, e.Category,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SaveMeta stores a key-value pair of run metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO run_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM run_meta WHERE key = ?", key)
	return value, err
}

// FirmSeries returns one report key's values for a firm, ordered by period.
func (db *DB) FirmSeries(firmID uint64, key string) ([]float64, error) {
	var values []float64
	err := db.conn.Select(&values,
		"SELECT value FROM firm_reports WHERE firm_id = ? AND key = ? ORDER BY period",
		firmID, key,
	)
	return values, err
}

// RecentEvents returns the most recent N events.
func (db *DB) RecentEvents(limit int) ([]sector.Event, error) {
	rows, err := db.conn.Query(
		"SELECT period, firm_id, description, category FROM events ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []sector.Event
	for rows.Next() {
		var e sector.Event
		if err := rows.Scan(&e.Period, &e.FirmID, &e.Description, &e.Category); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// SaveRun persists everything a finished period produced.
func (db *DB) SaveRun(reports []sector.FirmReport, agg sector.Aggregates, events []sector.Event) error {
	if err := db.SaveReports(reports); err != nil {
		return fmt.Errorf("save reports: %w", err)
	}
	if err := db.SaveAggregates(agg); err != nil {
		return fmt.Errorf("save aggregates: %w", err)
	}
	if err := db.SaveEvents(events); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	slog.Debug("period persisted", "period", agg.Period, "reports", len(reports))
	return nil
}
