// Package resultdb persists alignment runs to SQLite so batch results can
// be inspected and compared after the fact.
package resultdb

import (
	"database/sql"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the results database at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id INTEGER PRIMARY KEY AUTOINCREMENT,
			mode TEXT,
			enantiomorphs BOOLEAN,
			reference_idx INTEGER,
			radius_bound DOUBLE,
			timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS run_models (
			run_id INTEGER,
			model_idx INTEGER,
			file TEXT,
			valid BOOLEAN,
			rfactor DOUBLE,
			nsd_to_reference DOUBLE,
			PRIMARY KEY(run_id, model_idx),
			FOREIGN KEY(run_id) REFERENCES runs(run_id)
		);
		CREATE TABLE IF NOT EXISTS run_pairs (
			run_id INTEGER,
			i INTEGER,
			j INTEGER,
			nsd DOUBLE,
			PRIMARY KEY(run_id, i, j),
			FOREIGN KEY(run_id) REFERENCES runs(run_id)
		);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// Run describes one recorded alignment run.
type Run struct {
	Mode          string
	Enantiomorphs bool
	Reference     int
	RadiusBound   float64
}

// RecordRun stores a completed many-model run: the run header, one row per
// input model, and the upper triangle of the NSD matrix. Returns the new
// run id.
func (db *DB) RecordRun(run Run, files []string, valid []bool, rfactors, nsdToRef []float64, nsdMatrix *mat.SymDense) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		"INSERT INTO runs (mode, enantiomorphs, reference_idx, radius_bound) VALUES (?, ?, ?, ?)",
		run.Mode, run.Enantiomorphs, run.Reference, run.RadiusBound)
	if err != nil {
		return 0, err
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for i, f := range files {
		rf := sql.NullFloat64{}
		if rfactors != nil && !math.IsNaN(rfactors[i]) {
			rf = sql.NullFloat64{Float64: rfactors[i], Valid: true}
		}
		nsd := 0.0
		if nsdToRef != nil {
			nsd = nsdToRef[i]
		}
		if _, err := tx.Exec(
			"INSERT INTO run_models (run_id, model_idx, file, valid, rfactor, nsd_to_reference) VALUES (?, ?, ?, ?, ?, ?)",
			runID, i, f, valid[i], rf, nsd); err != nil {
			return 0, err
		}
	}

	if nsdMatrix != nil {
		n, _ := nsdMatrix.Dims()
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				if _, err := tx.Exec(
					"INSERT INTO run_pairs (run_id, i, j, nsd) VALUES (?, ?, ?, ?)",
					runID, i, j, nsdMatrix.At(i, j)); err != nil {
					return 0, err
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return runID, nil
}

// ModelRow is one model of a recorded run.
type ModelRow struct {
	Index          int
	File           string
	Valid          bool
	RFactor        sql.NullFloat64
	NSDToReference float64
}

// Models returns the model rows of a run in index order.
func (db *DB) Models(runID int64) ([]ModelRow, error) {
	rows, err := db.Query(
		"SELECT model_idx, file, valid, rfactor, nsd_to_reference FROM run_models WHERE run_id = ? ORDER BY model_idx",
		runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ModelRow
	for rows.Next() {
		var m ModelRow
		if err := rows.Scan(&m.Index, &m.File, &m.Valid, &m.RFactor, &m.NSDToReference); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// PairNSD returns the recorded NSD for an unordered pair of a run.
func (db *DB) PairNSD(runID int64, i, j int) (float64, error) {
	if i > j {
		i, j = j, i
	}
	var nsd float64
	err := db.QueryRow(
		"SELECT nsd FROM run_pairs WHERE run_id = ? AND i = ? AND j = ?",
		runID, i, j).Scan(&nsd)
	if err != nil {
		return 0, fmt.Errorf("resultdb: pair (%d,%d) of run %d: %w", i, j, runID, err)
	}
	return nsd, nil
}
