package bead

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestTransform4(t *testing.T) {
	t.Parallel()

	t.Run("identity leaves points unchanged", func(t *testing.T) {
		t.Parallel()
		p := r3.Vec{X: 1, Y: -2, Z: 3}
		assert.Equal(t, p, IdentityTransform().Apply(p))
	})

	t.Run("translation", func(t *testing.T) {
		t.Parallel()
		tr := Translation(r3.Vec{X: 1, Y: 2, Z: 3})
		got := tr.Apply(r3.Vec{X: 10, Y: 20, Z: 30})
		assert.Equal(t, r3.Vec{X: 11, Y: 22, Z: 33}, got)
		assert.Equal(t, r3.Vec{X: 1, Y: 2, Z: 3}, tr.TranslationPart())
	})

	t.Run("composition order", func(t *testing.T) {
		t.Parallel()
		// Rotate 90 degrees about Z after translating by +X.
		rot := EulerTransform(0, 0, math.Pi/2)
		shift := Translation(r3.Vec{X: 1})
		got := rot.Mul(shift).Apply(r3.Vec{})
		assert.InDelta(t, 0.0, got.X, 1e-12)
		assert.InDelta(t, 1.0, got.Y, 1e-12)
		assert.InDelta(t, 0.0, got.Z, 1e-12)
	})

	t.Run("axis flip determinants", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, 1.0, AxisFlips(1, -1, -1).Det3())
		assert.Equal(t, -1.0, AxisFlips(-1, 1, 1).Det3())
		assert.Equal(t, -1.0, AxisFlips(-1, -1, -1).Det3())
	})

	t.Run("negate3 recovers the proper factor", func(t *testing.T) {
		t.Parallel()
		mirror := AxisFlips(-1, -1, -1).Mul(EulerTransform(0.3, -0.2, 1.1))
		assert.InDelta(t, -1.0, mirror.Det3(), 1e-12)
		assert.InDelta(t, 1.0, mirror.Negate3().Det3(), 1e-12)
	})
}

func TestEulerRoundTrip(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(17))
	for i := 0; i < 50; i++ {
		ax := (2*rng.Float64() - 1) * math.Pi
		ay := (2*rng.Float64() - 1) * (math.Pi/2 - 1e-3)
		az := (2*rng.Float64() - 1) * math.Pi

		rot := EulerTransform(ax, ay, az)
		assert.InDelta(t, 1.0, rot.Det3(), 1e-10)

		gx, gy, gz := rot.EulerAngles()
		back := EulerTransform(gx, gy, gz)
		for j := range rot {
			assert.InDelta(t, rot[j], back[j], 1e-9)
		}
	}
}

func TestPoseParams(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(23))
	for i := 0; i < 20; i++ {
		p := [6]float64{
			rng.NormFloat64() * 10,
			rng.NormFloat64() * 10,
			rng.NormFloat64() * 10,
			(2*rng.Float64() - 1) * math.Pi,
			(2*rng.Float64() - 1) * (math.Pi/2 - 1e-3),
			(2*rng.Float64() - 1) * math.Pi,
		}
		tr := PoseTransform(p)
		got := tr.PoseParams()

		// The recovered parameters rebuild the same transform.
		back := PoseTransform(got)
		q := r3.Vec{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()}
		d := r3.Sub(tr.Apply(q), back.Apply(q))
		require.InDelta(t, 0.0, math.Sqrt(r3.Dot(d, d)), 1e-9)
	}
}
