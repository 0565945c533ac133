// Package bead models low-resolution dummy-atom reconstructions from
// small-angle scattering. A Model is a bead cloud with derived geometric
// state: centroid, inertia tensor, canonical pose, and a cached fineness
// (characteristic bead spacing). The canonical pose places the centroid at
// the origin and aligns the principal inertia axes with the coordinate
// axes, which is the reference frame used by the alignment engine.
package bead

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/scatterlab/supalign/internal/nsd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrEmptyModel reports an operation on a model with no atoms.
	ErrEmptyModel = errors.New("bead: model has no atoms")
	// ErrDegenerateModel reports geometry for which the requested
	// quantity is undefined: a single bead, coincident beads, or
	// non-finite coordinates.
	ErrDegenerateModel = errors.New("bead: degenerate model geometry")
)

// Model is one bead reconstruction. Geometry operations mutate Atoms and
// the derived fields in place; the fineness cache is fixed after first
// access and survives rigid transforms, which leave it unchanged anyway.
type Model struct {
	// Atoms holds the bead coordinates in file order.
	Atoms []r3.Vec
	// Radius is the per-bead radius used only for serialization and
	// rendering, never by the discrepancy metric.
	Radius float64
	// Centroid is valid after ComputeCentroid; it is not refreshed
	// automatically when Atoms change.
	Centroid r3.Vec
	// Inertia is valid after ComputeInertiaTensor.
	Inertia *mat.SymDense
	// CanonicalParams records the 6-parameter pose (translation then
	// static-XYZ Euler angles) applied by ApplyCanonicalPose. Nil until
	// the pose has been applied.
	CanonicalParams []float64

	// header holds the raw file lines the model was loaded from,
	// including the atom records whose coordinates get rewritten on
	// serialization. Owned exclusively by this model.
	header []string

	// Strategy selects the nearest-neighbour implementation used for
	// fineness. The zero value is nsd.StrategyAuto.
	Strategy nsd.Strategy

	mu           sync.RWMutex
	finenessDone bool
	fineness     float64
	finenessErr  error
}

// NewModel returns an empty model with the default bead radius.
func NewModel() *Model {
	return &Model{Radius: 1.0}
}

// NewModelFrom returns a model over a copy of the given atoms. The new
// model has a fresh fineness cache.
func NewModelFrom(atoms []r3.Vec) *Model {
	m := NewModel()
	m.Atoms = append([]r3.Vec(nil), atoms...)
	return m
}

func (m *Model) String() string {
	return fmt.Sprintf("bead model with %d atoms", len(m.Atoms))
}

// ComputeCentroid stores the arithmetic mean of the atom coordinates.
func (m *Model) ComputeCentroid() error {
	if len(m.Atoms) == 0 {
		return ErrEmptyModel
	}
	var sum r3.Vec
	for _, a := range m.Atoms {
		sum = r3.Add(sum, a)
	}
	m.Centroid = r3.Scale(1/float64(len(m.Atoms)), sum)
	if !isFinite(m.Centroid) {
		return ErrDegenerateModel
	}
	return nil
}

// ComputeInertiaTensor stores the symmetric tensor
//
//	T[i,j] = mean( delta(i,j)*|r|^2 - r_i*r_j )
//
// over the centered coordinates r = atom - centroid. ComputeCentroid must
// have been run first.
func (m *Model) ComputeInertiaTensor() error {
	if len(m.Atoms) == 0 {
		return ErrEmptyModel
	}
	var xx, yy, zz, xy, xz, yz float64
	for _, a := range m.Atoms {
		r := r3.Sub(a, m.Centroid)
		n2 := r3.Dot(r, r)
		xx += n2 - r.X*r.X
		yy += n2 - r.Y*r.Y
		zz += n2 - r.Z*r.Z
		xy -= r.X * r.Y
		xz -= r.X * r.Z
		yz -= r.Y * r.Z
	}
	n := float64(len(m.Atoms))
	m.Inertia = mat.NewSymDense(3, []float64{
		xx / n, xy / n, xz / n,
		xy / n, yy / n, yz / n,
		xz / n, yz / n, zz / n,
	})
	return nil
}

// CanonicalTranslation returns the transform moving the centroid to the
// origin. ComputeCentroid must have been run first.
func (m *Model) CanonicalTranslation() Transform4 {
	return Translation(r3.Scale(-1, m.Centroid))
}

// CanonicalRotation returns the proper rotation aligning the principal
// inertia axes with the coordinate axes: its rows are the inertia tensor's
// eigenvectors ordered by ascending eigenvalue.
//
// Eigenvectors are defined only up to sign, so a deterministic convention
// is applied: each eigenvector is oriented so its largest-magnitude
// component is positive, then the third axis is negated if needed to make
// the determinant +1. Enantiomorph enumeration relies on this convention
// being stable. For repeated eigenvalues the eigensolver's ordering is
// kept as is.
func (m *Model) CanonicalRotation() (Transform4, error) {
	if m.Inertia == nil {
		return Transform4{}, fmt.Errorf("bead: inertia tensor not computed")
	}
	var eig mat.EigenSym
	if !eig.Factorize(m.Inertia, true) {
		return Transform4{}, fmt.Errorf("%w: inertia eigen-decomposition failed", ErrDegenerateModel)
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs) // columns ordered by ascending eigenvalue

	var axes [3]r3.Vec
	for j := 0; j < 3; j++ {
		v := r3.Vec{X: vecs.At(0, j), Y: vecs.At(1, j), Z: vecs.At(2, j)}
		axes[j] = orientAxis(v)
	}

	rot := rotationFromRows(axes)
	if rot.Det3() < 0 {
		axes[2] = r3.Scale(-1, axes[2])
		rot = rotationFromRows(axes)
	}
	return rot, nil
}

// orientAxis flips v so its largest-magnitude component is positive.
func orientAxis(v r3.Vec) r3.Vec {
	ax, ay, az := math.Abs(v.X), math.Abs(v.Y), math.Abs(v.Z)
	lead := v.X
	if ay > ax && ay >= az {
		lead = v.Y
	} else if az > ax && az > ay {
		lead = v.Z
	}
	if lead < 0 {
		return r3.Scale(-1, v)
	}
	return v
}

func rotationFromRows(rows [3]r3.Vec) Transform4 {
	return Transform4{
		rows[0].X, rows[0].Y, rows[0].Z, 0,
		rows[1].X, rows[1].Y, rows[1].Z, 0,
		rows[2].X, rows[2].Y, rows[2].Z, 0,
		0, 0, 0, 1,
	}
}

// ApplyCanonicalPose recomputes the centroid and inertia tensor, moves the
// atoms into the canonical frame (translation, then principal-axis
// rotation) and records the applied pose into CanonicalParams.
func (m *Model) ApplyCanonicalPose() error {
	if err := m.ComputeCentroid(); err != nil {
		return err
	}
	if err := m.ComputeInertiaTensor(); err != nil {
		return err
	}
	rot, err := m.CanonicalRotation()
	if err != nil {
		return err
	}
	pose := rot.Mul(m.CanonicalTranslation())
	m.Atoms = pose.ApplyAll(m.Atoms)

	shift := r3.Scale(-1, m.Centroid)
	ax, ay, az := rot.EulerAngles()
	m.CanonicalParams = []float64{shift.X, shift.Y, shift.Z, ax, ay, az}
	return nil
}

// Fineness returns the model's characteristic bead spacing, computing it
// at most once per model instance. Concurrent callers share one
// computation; both the value and any error are cached.
func (m *Model) Fineness() (float64, error) {
	m.mu.RLock()
	if m.finenessDone {
		f, err := m.fineness, m.finenessErr
		m.mu.RUnlock()
		return f, err
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finenessDone {
		return m.fineness, m.finenessErr
	}
	m.fineness, m.finenessErr = m.computeFineness()
	m.finenessDone = true
	return m.fineness, m.finenessErr
}

func (m *Model) computeFineness() (float64, error) {
	if len(m.Atoms) == 0 {
		return 0, ErrEmptyModel
	}
	f, err := nsd.Fineness(m.Atoms, m.Strategy)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDegenerateModel, err)
	}
	return f, nil
}

// Distance computes the normalised spatial discrepancy to another model in
// their current poses.
func (m *Model) Distance(other *Model) (float64, error) {
	if len(m.Atoms) == 0 || len(other.Atoms) == 0 {
		return 0, ErrEmptyModel
	}
	fm, err := m.Fineness()
	if err != nil {
		return 0, err
	}
	fo, err := other.Fineness()
	if err != nil {
		return 0, err
	}
	d := nsd.Distance(m.Atoms, other.Atoms, fm, fo, m.Strategy)
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return 0, ErrDegenerateModel
	}
	return d, nil
}

func isFinite(v r3.Vec) bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) &&
		!math.IsNaN(v.Y) && !math.IsInf(v.Y, 0) &&
		!math.IsNaN(v.Z) && !math.IsInf(v.Z, 0)
}
