package resultdb

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecordRun(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)

	m := mat.NewSymDense(3, nil)
	m.SetSym(0, 1, 0.4)
	m.SetSym(0, 2, 1.1)
	m.SetSym(1, 2, 0.6)

	runID, err := db.RecordRun(
		Run{Mode: "slow", Enantiomorphs: true, Reference: 1, RadiusBound: 48.2},
		[]string{"a.pdb", "b.pdb", "c.pdb"},
		[]bool{true, true, false},
		[]float64{0.101, 0.099, math.NaN()},
		[]float64{0.4, 0.0, 0.85},
		m)
	require.NoError(t, err)
	assert.Greater(t, runID, int64(0))

	models, err := db.Models(runID)
	require.NoError(t, err)
	require.Len(t, models, 3)
	assert.Equal(t, "a.pdb", models[0].File)
	assert.True(t, models[0].Valid)
	assert.False(t, models[2].Valid)
	assert.True(t, models[0].RFactor.Valid)
	assert.InDelta(t, 0.101, models[0].RFactor.Float64, 1e-12)
	// NaN R factor stored as NULL.
	assert.False(t, models[2].RFactor.Valid)
	assert.InDelta(t, 0.85, models[2].NSDToReference, 1e-12)

	nsd, err := db.PairNSD(runID, 2, 0)
	require.NoError(t, err)
	assert.InDelta(t, 1.1, nsd, 1e-12)
}

func TestRecordRunWithoutMatrix(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	runID, err := db.RecordRun(
		Run{Mode: "fast"},
		[]string{"a.pdb", "b.pdb"},
		[]bool{true, true},
		nil, nil, nil)
	require.NoError(t, err)

	_, err = db.PairNSD(runID, 0, 1)
	assert.Error(t, err)
}

func TestRunsAreIndependent(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	m := mat.NewSymDense(2, nil)
	m.SetSym(0, 1, 0.3)

	id1, err := db.RecordRun(Run{Mode: "slow"}, []string{"a", "b"}, []bool{true, true}, nil, nil, m)
	require.NoError(t, err)
	m.SetSym(0, 1, 0.9)
	id2, err := db.RecordRun(Run{Mode: "slow"}, []string{"a", "b"}, []bool{true, true}, nil, nil, m)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	v1, err := db.PairNSD(id1, 0, 1)
	require.NoError(t, err)
	v2, err := db.PairNSD(id2, 0, 1)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, v1, 1e-12)
	assert.InDelta(t, 0.9, v2, 1e-12)
}
