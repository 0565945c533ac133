package align

import (
	"math"
	"regexp"
	"strconv"

	"github.com/scatterlab/supalign/internal/monitoring"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"
)

// Dummy-atom reconstruction programs record the fit quality of each model
// as an R factor in the header remarks. The selector uses it to drop
// outlier reconstructions before the NSD matrix is built.
var rFactorPattern = regexp.MustCompile(`(?i)R[- ]?factor\s*[:=]?\s*([0-9]*\.?[0-9]+)`)

// RFactorSigmas is the selection width: models whose R factor exceeds the
// population mean by more than this many standard deviations are invalid.
const RFactorSigmas = 2.0

// headerRFactor scans header lines for an R factor remark. Returns NaN
// when none is present.
func headerRFactor(header []string) float64 {
	for _, line := range header {
		if m := rFactorPattern.FindStringSubmatch(line); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				return v
			}
		}
	}
	return math.NaN()
}

// Select implements the input-selection collaborator: it parses per-model
// R factors, marks models within RFactorSigmas of the mean as valid, and
// derives the radius bound used by downstream plotting. Models without an
// R factor are invalid unless no model carries one, in which case the
// whole set is kept (plain bead files with bare headers).
func (s *Set) Select() error {
	n := len(s.Models)
	s.Valid = make([]bool, n)
	s.RFactors = make([]float64, n)

	var known []float64
	for i, m := range s.Models {
		s.RFactors[i] = headerRFactor(m.Header())
		if !math.IsNaN(s.RFactors[i]) {
			known = append(known, s.RFactors[i])
		}
	}

	if len(known) == 0 {
		for i := range s.Valid {
			s.Valid[i] = true
		}
	} else {
		mean, std := stat.MeanStdDev(known, nil)
		if math.IsNaN(std) { // single sample
			std = 0
		}
		cutoff := mean + RFactorSigmas*std
		for i, rf := range s.RFactors {
			s.Valid[i] = !math.IsNaN(rf) && rf <= cutoff
			if !s.Valid[i] {
				monitoring.Debugf("model %s rejected (R factor %.4f, cutoff %.4f)",
					s.Files[i], rf, cutoff)
			}
		}
	}

	if err := s.computeRadiusBound(); err != nil {
		return err
	}
	monitoring.Logf("%d of %d models valid", len(s.validIndices()), n)
	return nil
}

// RFactorCutoff returns the validity threshold used by Select, NaN when no
// model carries an R factor.
func (s *Set) RFactorCutoff() float64 {
	var known []float64
	for _, rf := range s.RFactors {
		if !math.IsNaN(rf) {
			known = append(known, rf)
		}
	}
	if len(known) == 0 {
		return math.NaN()
	}
	mean, std := stat.MeanStdDev(known, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return mean + RFactorSigmas*std
}

// computeRadiusBound sets RadiusBound to the largest centroid-to-bead
// distance over the valid models, a scale for chart axes only.
func (s *Set) computeRadiusBound() error {
	bound := 0.0
	for i, m := range s.Models {
		if !s.Valid[i] {
			continue
		}
		if err := m.ComputeCentroid(); err != nil {
			return err
		}
		for _, a := range m.Atoms {
			d := r3.Sub(a, m.Centroid)
			if r := math.Sqrt(r3.Dot(d, d)); r > bound {
				bound = r
			}
		}
	}
	s.RadiusBound = bound
	return nil
}
