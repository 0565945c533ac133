package align

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/scatterlab/supalign/internal/bead"
	"github.com/scatterlab/supalign/internal/monitoring"
	"github.com/scatterlab/supalign/internal/nsd"
	"gonum.org/v1/gonum/mat"
)

// ErrInsufficientModels reports a many-model run left with fewer than two
// valid models after selection.
var ErrInsufficientModels = errors.New("align: fewer than two valid models")

// Options configures a Set.
type Options struct {
	Mode          Mode
	Enantiomorphs bool
	Strategy      nsd.Strategy
	// Workers bounds the goroutines computing NSD matrix cells; zero
	// means one per CPU.
	Workers int
	// MaxRefineEvals caps the Nelder-Mead refinement per pair.
	MaxRefineEvals int
}

// DefaultOptions returns the production defaults: thorough search with
// enantiomorph detection enabled.
func DefaultOptions() Options {
	return Options{Mode: ModeSlow, Enantiomorphs: true}
}

// Set is the many-model alignment workflow. The expected call order is
// Load (or assigning Models directly), Select, BuildNSDMatrix,
// SelectReference, AlignAll; each step validates that its prerequisites
// have run.
type Set struct {
	Options Options

	// Files and Models are parallel slices, one entry per input.
	Files  []string
	Models []*bead.Model

	// Valid flags the models that survived selection.
	Valid []bool
	// RFactors holds the per-model R factor parsed from the header, NaN
	// when absent.
	RFactors []float64
	// RadiusBound is a display-scaling radius derived from the valid
	// models. It does not affect alignment.
	RadiusBound float64

	// NSD is the symmetric discrepancy matrix over all inputs; cells
	// touching an invalid model stay zero. Diagonal is zero by
	// definition.
	NSD *mat.SymDense
	// Reference is the index of the selected reference model, -1 until
	// SelectReference has run.
	Reference int
	// AlignedNSD records each valid model's discrepancy to the
	// reference after optimization; the reference's own entry is zero.
	AlignedNSD []float64
}

// NewSet returns an empty workflow with the given options.
func NewSet(opts Options) *Set {
	return &Set{Options: opts, Reference: -1}
}

func (s *Set) optimizer() *Optimizer {
	return &Optimizer{
		Mode:           s.Options.Mode,
		Enantiomorphs:  s.Options.Enantiomorphs,
		Strategy:       s.Options.Strategy,
		MaxRefineEvals: s.Options.MaxRefineEvals,
	}
}

// Load reads every input file into a model.
func (s *Set) Load(files []string) error {
	s.Files = append([]string(nil), files...)
	s.Models = make([]*bead.Model, len(files))
	for i, f := range files {
		m := bead.NewModel()
		m.Strategy = s.Options.Strategy
		if err := m.ReadFile(f); err != nil {
			return err
		}
		if len(m.Atoms) == 0 {
			return fmt.Errorf("%s: %w", f, bead.ErrEmptyModel)
		}
		s.Models[i] = m
	}
	monitoring.Debugf("loaded %d models", len(files))
	return nil
}

// AlignTwo runs the two-model workflow: canonicalize both models, optimize
// the relative orientation, apply the winning transform to the moving
// model, then serialize the canonicalized reference to refPath and the
// aligned moving model to movPath. An empty path skips that file. Returns
// the final discrepancy.
func AlignTwo(ref, mov *bead.Model, opts Options, refPath, movPath string) (float64, error) {
	if err := ref.ApplyCanonicalPose(); err != nil {
		return 0, fmt.Errorf("align: reference: %w", err)
	}
	if err := mov.ApplyCanonicalPose(); err != nil {
		return 0, fmt.Errorf("align: moving: %w", err)
	}

	opt := &Optimizer{
		Mode:           opts.Mode,
		Enantiomorphs:  opts.Enantiomorphs,
		Strategy:       opts.Strategy,
		MaxRefineEvals: opts.MaxRefineEvals,
	}
	res, err := opt.Align(ref, mov)
	if err != nil {
		return 0, err
	}
	mov.Atoms = res.Transform.ApplyAll(mov.Atoms)

	if refPath != "" {
		if err := ref.WriteFile(refPath); err != nil {
			return 0, err
		}
	}
	if movPath != "" {
		if err := mov.WriteFile(movPath); err != nil {
			return 0, err
		}
		monitoring.Debugf("aligned model written to %s (NSD %.4f, mirrored %v)",
			movPath, res.NSD, res.Mirrored)
	}
	return res.NSD, nil
}

// BuildNSDMatrix canonicalizes every valid model and computes the
// symmetric discrepancy matrix, one optimization per unordered pair. Pairs
// are computed concurrently by a bounded worker pool; each cell is written
// by exactly one worker. Fineness caches are warmed sequentially first so
// the per-model at-most-once guarantee is exercised before fan-out and
// degenerate models surface early.
func (s *Set) BuildNSDMatrix() error {
	if s.Valid == nil {
		s.markAllValid()
	}
	valid := s.validIndices()
	if len(valid) < 2 {
		return ErrInsufficientModels
	}

	for _, i := range valid {
		if err := s.Models[i].ApplyCanonicalPose(); err != nil {
			return fmt.Errorf("%s: %w", s.Files[i], err)
		}
		if _, err := s.Models[i].Fineness(); err != nil {
			return fmt.Errorf("%s: %w", s.Files[i], err)
		}
	}

	n := len(s.Models)
	s.NSD = mat.NewSymDense(n, nil)

	type pair struct{ i, j int }
	var pairs []pair
	for a := 0; a < len(valid); a++ {
		for b := a + 1; b < len(valid); b++ {
			pairs = append(pairs, pair{valid[a], valid[b]})
		}
	}

	workers := s.Options.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(pairs) {
		workers = len(pairs)
	}

	jobs := make(chan pair)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			opt := s.optimizer()
			for p := range jobs {
				res, err := opt.Align(s.Models[p.i], s.Models[p.j])
				mu.Lock()
				if err != nil {
					if firstErr == nil {
						firstErr = fmt.Errorf("align: %s vs %s: %w", s.Files[p.i], s.Files[p.j], err)
					}
				} else {
					s.NSD.SetSym(p.i, p.j, res.NSD)
				}
				mu.Unlock()
			}
		}()
	}
	for _, p := range pairs {
		jobs <- p
	}
	close(jobs)
	wg.Wait()

	return firstErr
}

// SelectReference picks the medoid of the valid models: the one minimising
// the summed discrepancy to all other valid models. Ties keep the lowest
// index.
func (s *Set) SelectReference() (int, error) {
	if s.NSD == nil {
		return -1, fmt.Errorf("align: NSD matrix not built")
	}
	valid := s.validIndices()
	if len(valid) < 2 {
		return -1, ErrInsufficientModels
	}

	best := -1
	bestSum := 0.0
	for _, i := range valid {
		sum := 0.0
		for _, j := range valid {
			sum += s.NSD.At(i, j)
		}
		if best < 0 || sum < bestSum {
			best = i
			bestSum = sum
		}
	}
	s.Reference = best
	monitoring.Debugf("reference model: %s (mean NSD %.4f)",
		s.Files[best], bestSum/float64(len(valid)-1))
	return best, nil
}

// AlignAll aligns every valid non-reference model onto the reference and
// serializes all valid models, the reference included, using the
// index-based naming pattern (e.g. "model-%02d.pdb", 1-based). An output
// file is written only after its model's optimization succeeded.
func (s *Set) AlignAll(pattern string) error {
	if s.Reference < 0 {
		return fmt.Errorf("align: reference not selected")
	}
	ref := s.Models[s.Reference]
	opt := s.optimizer()

	s.AlignedNSD = make([]float64, len(s.Models))
	for i, m := range s.Models {
		if !s.Valid[i] {
			continue
		}
		if i != s.Reference {
			res, err := opt.Align(ref, m)
			if err != nil {
				return fmt.Errorf("align: %s: %w", s.Files[i], err)
			}
			m.Atoms = res.Transform.ApplyAll(m.Atoms)
			s.AlignedNSD[i] = res.NSD
		}
		if pattern != "" {
			out := fmt.Sprintf(pattern, i+1)
			if err := m.WriteFile(out); err != nil {
				return err
			}
			monitoring.Debugf("wrote %s (NSD to reference %.4f)", out, s.AlignedNSD[i])
		}
	}
	return nil
}

// MeanNSD returns, per model, the mean discrepancy to the other valid
// models, the quantity plotted by the NSD chart. Invalid models get NaN.
func (s *Set) MeanNSD() []float64 {
	valid := s.validIndices()
	out := make([]float64, len(s.Models))
	for i := range out {
		out[i] = math.NaN()
	}
	if len(valid) < 2 || s.NSD == nil {
		return out
	}
	for _, i := range valid {
		sum := 0.0
		for _, j := range valid {
			sum += s.NSD.At(i, j)
		}
		out[i] = sum / float64(len(valid)-1)
	}
	return out
}

func (s *Set) markAllValid() {
	s.Valid = make([]bool, len(s.Models))
	for i := range s.Valid {
		s.Valid[i] = true
	}
}

func (s *Set) validIndices() []int {
	var out []int
	for i, v := range s.Valid {
		if v {
			out = append(out, i)
		}
	}
	return out
}
