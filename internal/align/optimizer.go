// Package align drives the alignment of bead models: pairwise orientation
// optimization over the residual principal-axis ambiguity, NSD matrix
// construction across a model set, medoid reference selection, and batch
// alignment onto the reference.
package align

import (
	"fmt"
	"math"

	"github.com/scatterlab/supalign/internal/bead"
	"github.com/scatterlab/supalign/internal/nsd"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/spatial/r3"
)

// Mode selects how much work the orientation search does.
type Mode int

const (
	// ModeSlow evaluates every discrete axis-sign candidate and then
	// polishes the winner with a local Nelder-Mead refinement over the
	// six pose parameters.
	ModeSlow Mode = iota
	// ModeFast keeps the best discrete candidate without refinement.
	// The speedup over ModeSlow comes entirely from skipping that
	// refinement pass.
	ModeFast
)

func (m Mode) String() string {
	if m == ModeFast {
		return "fast"
	}
	return "slow"
}

// properFlips are the axis-sign combinations with determinant +1: the
// residual ambiguity left by canonical-frame normalization. Order is fixed;
// ties in the search keep the first candidate encountered.
var properFlips = [4][3]float64{
	{1, 1, 1},
	{1, -1, -1},
	{-1, 1, -1},
	{-1, -1, 1},
}

// mirrorFlips are the determinant -1 combinations, the enantiomorph
// candidates, enumerated after the proper set.
var mirrorFlips = [4][3]float64{
	{-1, 1, 1},
	{1, -1, 1},
	{1, 1, -1},
	{-1, -1, -1},
}

// Result reports the outcome of one pairwise orientation search.
type Result struct {
	// NSD is the minimal discrepancy found.
	NSD float64
	// Transform maps the moving model's canonical-frame atoms onto the
	// reference frame. It includes the mirror reflection when Mirrored
	// is set, so its determinant is -1 in that case.
	Transform bead.Transform4
	// Params is the 6-parameter pose (translation then Euler angles) of
	// the proper part of Transform.
	Params [6]float64
	// Mirrored reports that the winning candidate is an enantiomorph of
	// the canonical moving model.
	Mirrored bool
}

// Optimizer searches the rigid-motion ambiguity between two canonicalized
// models for the pose minimising the normalised spatial discrepancy.
type Optimizer struct {
	Mode Mode
	// Enantiomorphs enables the mirrored candidate set.
	Enantiomorphs bool
	// Strategy selects the nearest-neighbour implementation.
	Strategy nsd.Strategy
	// MaxRefineEvals caps the Nelder-Mead function evaluations in
	// ModeSlow; zero means the method's own convergence test decides.
	MaxRefineEvals int
}

// Align searches for the pose of mov minimising its discrepancy to ref.
// Both models must already be in their canonical frames. Neither model is
// mutated; the caller applies Result.Transform when it wants the aligned
// coordinates.
func (o *Optimizer) Align(ref, mov *bead.Model) (Result, error) {
	if len(ref.Atoms) == 0 || len(mov.Atoms) == 0 {
		return Result{}, bead.ErrEmptyModel
	}
	fRef, err := ref.Fineness()
	if err != nil {
		return Result{}, fmt.Errorf("reference model: %w", err)
	}
	fMov, err := mov.Fineness()
	if err != nil {
		return Result{}, fmt.Errorf("moving model: %w", err)
	}

	refSearch := nsd.NewSearcher(ref.Atoms, o.Strategy)
	eval := func(tr bead.Transform4) float64 {
		return crossDistance(refSearch, ref.Atoms, tr.ApplyAll(mov.Atoms), fRef, fMov, o.Strategy)
	}

	// Discrete stage: fixed enumeration order, strict improvement only,
	// so equal minima keep the earliest candidate.
	best := Result{NSD: math.Inf(1)}
	candidates := properFlips[:]
	if o.Enantiomorphs {
		candidates = append(candidates, mirrorFlips[:]...)
	}
	for i, s := range candidates {
		tr := bead.AxisFlips(s[0], s[1], s[2])
		d := eval(tr)
		if d < best.NSD {
			best = Result{
				NSD:       d,
				Transform: tr,
				Mirrored:  i >= len(properFlips),
			}
		}
	}
	if math.IsInf(best.NSD, 1) || math.IsNaN(best.NSD) {
		return Result{}, bead.ErrDegenerateModel
	}

	if o.Mode == ModeSlow {
		best = o.refine(best, eval)
	}

	best.Params = poseParamsOf(best.Transform, best.Mirrored)
	return best, nil
}

// refine polishes the winning discrete candidate with a gradient-free
// local search over the six residual pose parameters. The refined pose is
// kept only if it strictly improves on the discrete optimum, so refinement
// never makes the result worse.
func (o *Optimizer) refine(discrete Result, eval func(bead.Transform4) float64) Result {
	flips := discrete.Transform
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			var p [6]float64
			copy(p[:], x)
			return eval(flips.Mul(bead.PoseTransform(p)))
		},
	}

	settings := &optimize.Settings{FuncEvaluations: o.MaxRefineEvals}
	res, err := optimize.Minimize(problem, make([]float64, 6), settings, &optimize.NelderMead{})
	if err != nil || res == nil {
		return discrete
	}
	if res.F >= discrete.NSD {
		return discrete
	}

	var p [6]float64
	copy(p[:], res.X)
	return Result{
		NSD:       res.F,
		Transform: flips.Mul(bead.PoseTransform(p)),
		Mirrored:  discrete.Mirrored,
	}
}

// poseParamsOf extracts the 6-parameter pose of the proper part of tr. For
// a mirrored transform the proper factor is -tr.
func poseParamsOf(tr bead.Transform4, mirrored bool) [6]float64 {
	if mirrored {
		tr = tr.Negate3()
	}
	return tr.PoseParams()
}

// crossDistance is nsd.Distance with the searcher over the reference cloud
// reused across candidate evaluations; only the moving cloud changes
// between evaluations, so only its searcher is rebuilt.
func crossDistance(refSearch nsd.Searcher, ref, mov []r3.Vec, fRef, fMov float64, s nsd.Strategy) float64 {
	movSearch := nsd.NewSearcher(mov, s)

	sumRefToMov := 0.0
	for _, p := range ref {
		_, d2 := movSearch.Nearest(p, -1)
		sumRefToMov += d2
	}
	sumMovToRef := 0.0
	for _, p := range mov {
		_, d2 := refSearch.Nearest(p, -1)
		sumMovToRef += d2
	}

	nRef := float64(len(ref))
	nMov := float64(len(mov))
	return math.Sqrt(0.5 * (sumRefToMov/(nRef*fMov*fMov) + sumMovToRef/(nMov*fRef*fRef)))
}
