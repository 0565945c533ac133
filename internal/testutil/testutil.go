// Package testutil provides shared fixtures for alignment tests:
// reproducible bead clouds and dummy-atom files built from them.
package testutil

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

// Cloud returns a reproducible, deliberately anisotropic cloud so that the
// principal axes of inertia are well separated.
func Cloud(seed int64, n int) []r3.Vec {
	rng := rand.New(rand.NewSource(seed))
	pts := make([]r3.Vec, n)
	for i := range pts {
		pts[i] = r3.Vec{
			X: rng.NormFloat64() * 12,
			Y: rng.NormFloat64() * 5,
			Z: rng.NormFloat64() * 2,
		}
	}
	return pts
}

// PDB renders pts as a minimal dummy-atom file. A non-empty rfactor is
// embedded as a REMARK line ahead of the atom records.
func PDB(pts []r3.Vec, rfactor string) string {
	var sb strings.Builder
	sb.WriteString("REMARK 265 reconstruction fixture\n")
	if rfactor != "" {
		fmt.Fprintf(&sb, "REMARK 265 Final R factor : %s\n", rfactor)
	}
	for i, p := range pts {
		fmt.Fprintf(&sb, "ATOM  %5d  CA  ASP A%4d    %8.3f%8.3f%8.3f  1.00 20.00\n",
			i+1, i+1, p.X, p.Y, p.Z)
	}
	sb.WriteString("END\n")
	return sb.String()
}

// WriteModelFiles writes count rigidly moved, lightly jittered copies of one
// base cloud into dir and returns the file paths in order.
func WriteModelFiles(t *testing.T, dir string, count int, seed int64) []string {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	base := Cloud(seed, 40)

	paths := make([]string, count)
	for i := range paths {
		angle := float64(i) * 0.35
		shift := r3.Vec{X: float64(i) * 3, Y: -float64(i), Z: float64(i) * 0.5}
		pts := make([]r3.Vec, len(base))
		c, s := math.Cos(angle), math.Sin(angle)
		for j, p := range base {
			pts[j] = r3.Vec{
				X: c*p.X - s*p.Z + shift.X + rng.NormFloat64()*0.2,
				Y: p.Y + shift.Y + rng.NormFloat64()*0.2,
				Z: s*p.X + c*p.Z + shift.Z + rng.NormFloat64()*0.2,
			}
		}

		path := filepath.Join(dir, fmt.Sprintf("in-%02d.pdb", i+1))
		rf := fmt.Sprintf("0.1%02d", i)
		if err := os.WriteFile(path, []byte(PDB(pts, rf)), 0o644); err != nil {
			t.Fatalf("write fixture %s: %v", path, err)
		}
		paths[i] = path
	}
	return paths
}
