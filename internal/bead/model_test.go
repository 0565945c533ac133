package bead

import (
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

// randomModel builds a reproducible model of n beads on an integer lattice
// jittered into general position.
func randomModel(t *testing.T, seed int64, n int) *Model {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	m := NewModel()
	m.Atoms = make([]r3.Vec, n)
	for i := range m.Atoms {
		m.Atoms[i] = r3.Vec{
			X: float64(rng.Intn(100)) + 0.3*rng.Float64(),
			Y: float64(rng.Intn(100)) + 0.3*rng.Float64(),
			Z: float64(rng.Intn(100)) + 0.3*rng.Float64(),
		}
	}
	return m
}

func TestComputeCentroid(t *testing.T) {
	t.Parallel()

	t.Run("tetrahedron", func(t *testing.T) {
		t.Parallel()
		m := NewModel()
		m.Atoms = []r3.Vec{{}, {X: 1}, {Y: 1}, {Z: 1}}
		require.NoError(t, m.ComputeCentroid())
		assert.InDelta(t, 0.25, m.Centroid.X, 1e-12)
		assert.InDelta(t, 0.25, m.Centroid.Y, 1e-12)
		assert.InDelta(t, 0.25, m.Centroid.Z, 1e-12)
	})

	t.Run("empty model fails", func(t *testing.T) {
		t.Parallel()
		assert.ErrorIs(t, NewModel().ComputeCentroid(), ErrEmptyModel)
	})

	t.Run("non-finite coordinates fail", func(t *testing.T) {
		t.Parallel()
		m := NewModel()
		m.Atoms = []r3.Vec{{X: math.NaN()}, {X: 1}}
		assert.ErrorIs(t, m.ComputeCentroid(), ErrDegenerateModel)
	})
}

func TestInertiaTensor(t *testing.T) {
	t.Parallel()

	m := randomModel(t, 9, 100)
	require.NoError(t, m.ComputeCentroid())
	require.NoError(t, m.ComputeInertiaTensor())

	r, c := m.Inertia.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 3, c)
	// Symmetric by construction, diagonal nonnegative.
	for i := 0; i < 3; i++ {
		assert.GreaterOrEqual(t, m.Inertia.At(i, i), 0.0)
		for j := 0; j < 3; j++ {
			assert.Equal(t, m.Inertia.At(i, j), m.Inertia.At(j, i))
		}
	}
}

func TestCanonicalRotation(t *testing.T) {
	t.Parallel()

	t.Run("determinant is +1 for random models", func(t *testing.T) {
		t.Parallel()
		for seed := int64(1); seed <= 5; seed++ {
			m := randomModel(t, seed, 80)
			require.NoError(t, m.ComputeCentroid())
			require.NoError(t, m.ComputeInertiaTensor())
			rot, err := m.CanonicalRotation()
			require.NoError(t, err)
			assert.InDelta(t, 1.0, rot.Det3(), 1e-10, "seed %d", seed)
		}
	})

	t.Run("determinant is +1 for a symmetric shape", func(t *testing.T) {
		t.Parallel()
		// A cube has a fully degenerate inertia spectrum.
		m := NewModel()
		for x := 0; x < 3; x++ {
			for y := 0; y < 3; y++ {
				for z := 0; z < 3; z++ {
					m.Atoms = append(m.Atoms, r3.Vec{X: float64(x), Y: float64(y), Z: float64(z)})
				}
			}
		}
		require.NoError(t, m.ComputeCentroid())
		require.NoError(t, m.ComputeInertiaTensor())
		rot, err := m.CanonicalRotation()
		require.NoError(t, err)
		assert.InDelta(t, 1.0, rot.Det3(), 1e-10)
	})

	t.Run("convention is deterministic", func(t *testing.T) {
		t.Parallel()
		m := randomModel(t, 21, 60)
		require.NoError(t, m.ComputeCentroid())
		require.NoError(t, m.ComputeInertiaTensor())
		r1, err := m.CanonicalRotation()
		require.NoError(t, err)
		r2, err := m.CanonicalRotation()
		require.NoError(t, err)
		assert.Equal(t, r1, r2)
	})
}

func TestApplyCanonicalPose(t *testing.T) {
	t.Parallel()

	t.Run("centroid moves to origin", func(t *testing.T) {
		t.Parallel()
		m := NewModel()
		m.Atoms = []r3.Vec{{}, {X: 1}, {Y: 1}, {Z: 1}}
		require.NoError(t, m.ApplyCanonicalPose())
		require.NoError(t, m.ComputeCentroid())
		assert.InDelta(t, 0.0, m.Centroid.X, 1e-12)
		assert.InDelta(t, 0.0, m.Centroid.Y, 1e-12)
		assert.InDelta(t, 0.0, m.Centroid.Z, 1e-12)
	})

	t.Run("inertia tensor diagonalises", func(t *testing.T) {
		t.Parallel()
		m := randomModel(t, 33, 150)
		require.NoError(t, m.ApplyCanonicalPose())
		require.NoError(t, m.ComputeCentroid())
		require.NoError(t, m.ComputeInertiaTensor())
		assert.InDelta(t, 0.0, m.Inertia.At(0, 1), 1e-8)
		assert.InDelta(t, 0.0, m.Inertia.At(0, 2), 1e-8)
		assert.InDelta(t, 0.0, m.Inertia.At(1, 2), 1e-8)
	})

	t.Run("recorded parameters reproduce the pose", func(t *testing.T) {
		t.Parallel()
		m := randomModel(t, 44, 70)
		orig := append([]r3.Vec(nil), m.Atoms...)
		require.NoError(t, m.ApplyCanonicalPose())
		require.Len(t, m.CanonicalParams, 6)

		var p [6]float64
		copy(p[:], m.CanonicalParams)
		replayed := PoseTransform(p).ApplyAll(orig)
		for i := range replayed {
			d := r3.Sub(replayed[i], m.Atoms[i])
			assert.InDelta(t, 0.0, math.Sqrt(r3.Dot(d, d)), 1e-9)
		}
	})
}

func TestFineness(t *testing.T) {
	t.Parallel()

	t.Run("invariant under canonical pose", func(t *testing.T) {
		t.Parallel()
		m := randomModel(t, 55, 120)
		before, err := NewModelFrom(m.Atoms).Fineness()
		require.NoError(t, err)

		require.NoError(t, m.ApplyCanonicalPose())
		after, err := NewModelFrom(m.Atoms).Fineness()
		require.NoError(t, err)
		assert.InDelta(t, before, after, 1e-9)
	})

	t.Run("computed at most once under concurrency", func(t *testing.T) {
		t.Parallel()
		m := randomModel(t, 66, 200)

		var wg sync.WaitGroup
		results := make([]float64, 16)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				f, err := m.Fineness()
				assert.NoError(t, err)
				results[i] = f
			}(i)
		}
		wg.Wait()
		for _, f := range results[1:] {
			assert.Equal(t, results[0], f)
		}
	})

	t.Run("single bead is degenerate", func(t *testing.T) {
		t.Parallel()
		m := NewModel()
		m.Atoms = []r3.Vec{{X: 1, Y: 2, Z: 3}}
		_, err := m.Fineness()
		assert.ErrorIs(t, err, ErrDegenerateModel)
		// The error is cached like the value.
		_, err = m.Fineness()
		assert.ErrorIs(t, err, ErrDegenerateModel)
	})

	t.Run("empty model", func(t *testing.T) {
		t.Parallel()
		_, err := NewModel().Fineness()
		assert.ErrorIs(t, err, ErrEmptyModel)
	})
}

func TestDistance(t *testing.T) {
	t.Parallel()

	t.Run("self distance is zero", func(t *testing.T) {
		t.Parallel()
		m := randomModel(t, 77, 90)
		n := NewModelFrom(m.Atoms)
		d, err := m.Distance(n)
		require.NoError(t, err)
		assert.Equal(t, 0.0, d)
	})

	t.Run("symmetric", func(t *testing.T) {
		t.Parallel()
		a := randomModel(t, 88, 90)
		b := randomModel(t, 99, 60)
		dab, err := a.Distance(b)
		require.NoError(t, err)
		dba, err := b.Distance(a)
		require.NoError(t, err)
		assert.InDelta(t, dab, dba, 1e-12)
	})

	t.Run("coincident cloud is degenerate", func(t *testing.T) {
		t.Parallel()
		a := randomModel(t, 12, 30)
		b := NewModel()
		b.Atoms = []r3.Vec{{X: 1, Y: 1, Z: 1}, {X: 1, Y: 1, Z: 1}}
		_, err := a.Distance(b)
		assert.ErrorIs(t, err, ErrDegenerateModel)
	})
}
