// Command supalign aligns dummy-atom bead models. With two input files it
// aligns the second onto the first; with more it builds the full NSD matrix,
// picks a reference and aligns the whole set onto it.
package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"

	"github.com/scatterlab/supalign/internal/align"
	"github.com/scatterlab/supalign/internal/bead"
	"github.com/scatterlab/supalign/internal/config"
	"github.com/scatterlab/supalign/internal/monitoring"
	"github.com/scatterlab/supalign/internal/nsd"
	"github.com/scatterlab/supalign/internal/report"
	"github.com/scatterlab/supalign/internal/resultdb"
	"github.com/scatterlab/supalign/internal/version"
	"gonum.org/v1/gonum/mat"
)

var (
	mode          = flag.String("mode", "slow", "Search mode: slow (discrete plus refinement) or fast")
	enantiomorphs = flag.Bool("enantiomorphs", true, "Also try mirror-image orientations")
	search        = flag.String("search", "auto", "Nearest-neighbour search: auto, grid or brute")
	workers       = flag.Int("workers", 0, "NSD matrix workers (0 = one per CPU)")
	outFile       = flag.String("o", "aligned.pdb", "Output file for the aligned model (two-model mode)")
	refOutFile    = flag.String("ref-out", "reference.pdb", "Output file for the canonicalized reference; empty skips it (two-model mode)")
	pattern       = flag.String("pattern", "model-%02d.pdb", "Output naming pattern, 1-based (many-model mode)")
	plotDir       = flag.String("plot-dir", "", "Directory for NSD and R-factor charts (many-model mode)")
	htmlReport    = flag.String("html-report", "", "Path for the NSD matrix HTML heat map (many-model mode)")
	dbFile        = flag.String("db", "", "SQLite file recording run results")
	configFile    = flag.String("config", "", "JSON tuning file")
	quiet         = flag.Bool("quiet", false, "Suppress progress logging")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("supalign %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	if *quiet {
		monitoring.SetLogger(nil)
	} else {
		monitoring.SetVerbose(true)
	}

	opts, err := buildOptions()
	if err != nil {
		log.Fatalf("supalign: %v", err)
	}

	files := flag.Args()
	switch {
	case len(files) < 2:
		log.Fatal("supalign: need at least two input files")
	case len(files) == 2:
		if err := runTwo(files, opts, *refOutFile, *outFile, *dbFile); err != nil {
			log.Fatalf("supalign: %v", err)
		}
	default:
		if err := runMany(files, opts, *pattern, *plotDir, *htmlReport, *dbFile); err != nil {
			log.Fatalf("supalign: %v", err)
		}
	}
}

// buildOptions resolves the final engine options: defaults, then the config
// file, then explicit flags.
func buildOptions() (align.Options, error) {
	opts := align.DefaultOptions()

	if *configFile != "" {
		cfg, err := config.Load(*configFile)
		if err != nil {
			return opts, err
		}
		cfg.Apply(&opts)
	}

	switch *mode {
	case "slow":
		opts.Mode = align.ModeSlow
	case "fast":
		opts.Mode = align.ModeFast
	default:
		return opts, fmt.Errorf("unknown mode %q", *mode)
	}
	opts.Enantiomorphs = *enantiomorphs

	switch *search {
	case "auto":
		opts.Strategy = nsd.StrategyAuto
	case "grid":
		opts.Strategy = nsd.StrategyGrid
	case "brute":
		opts.Strategy = nsd.StrategyBruteForce
	default:
		return opts, fmt.Errorf("unknown search strategy %q", *search)
	}
	if *workers != 0 {
		opts.Workers = *workers
	}
	return opts, nil
}

// runTwo aligns files[1] onto files[0], writing the canonicalized
// reference to refOut and the moved model to out.
func runTwo(files []string, opts align.Options, refOut, out, dbPath string) error {
	ref := bead.NewModel()
	ref.Strategy = opts.Strategy
	if err := ref.ReadFile(files[0]); err != nil {
		return err
	}
	mov := bead.NewModel()
	mov.Strategy = opts.Strategy
	if err := mov.ReadFile(files[1]); err != nil {
		return err
	}

	d, err := align.AlignTwo(ref, mov, opts, refOut, out)
	if err != nil {
		return err
	}
	fmt.Printf("NSD: %.6f\n", d)

	if dbPath != "" {
		m := mat.NewSymDense(2, nil)
		m.SetSym(0, 1, d)
		return recordRun(dbPath, opts, files, []bool{true, true}, nil, []float64{0, d}, m, 0, 0)
	}
	return nil
}

// runMany runs the full batch workflow: selection, NSD matrix, reference
// choice, alignment of the set onto the reference, then the optional
// reports.
func runMany(files []string, opts align.Options, pattern, plots, html, dbPath string) error {
	s := align.NewSet(opts)
	if err := s.Load(files); err != nil {
		return err
	}
	if err := s.Select(); err != nil {
		return err
	}
	if err := s.BuildNSDMatrix(); err != nil {
		return err
	}
	ref, err := s.SelectReference()
	if err != nil {
		return err
	}
	if err := s.AlignAll(pattern); err != nil {
		return err
	}

	means := s.MeanNSD()
	fmt.Printf("reference: %s (mean NSD %.6f)\n", files[ref], means[ref])

	if plots != "" {
		if err := report.SaveNSDChart(filepath.Join(plots, "nsd.png"), means, s.Valid, ref, s.RadiusBound); err != nil {
			return err
		}
		if err := report.SaveRFactorChart(filepath.Join(plots, "rfactor.png"), s.RFactors, s.Valid, s.RFactorCutoff()); err != nil {
			return err
		}
	}
	if html != "" {
		labels := make([]string, len(files))
		for i, f := range files {
			labels[i] = filepath.Base(f)
		}
		if err := report.SaveNSDHeatmap(html, labels, s.NSD); err != nil {
			return err
		}
	}
	if dbPath != "" {
		return recordRun(dbPath, opts, files, s.Valid, s.RFactors, s.AlignedNSD, s.NSD, ref, s.RadiusBound)
	}
	return nil
}

func recordRun(dbPath string, opts align.Options, files []string, valid []bool, rfactors, nsdToRef []float64, m *mat.SymDense, ref int, radiusBound float64) error {
	db, err := resultdb.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	runID, err := db.RecordRun(resultdb.Run{
		Mode:          opts.Mode.String(),
		Enantiomorphs: opts.Enantiomorphs,
		Reference:     ref,
		RadiusBound:   radiusBound,
	}, files, valid, rfactors, nsdToRef, m)
	if err != nil {
		return err
	}
	monitoring.Debugf("recorded run %d in %s", runID, dbPath)
	return nil
}
