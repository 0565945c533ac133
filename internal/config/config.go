// Package config loads optional JSON tuning for the alignment engine. The
// schema uses pointer-typed optional fields so partial configs are safe:
// anything omitted keeps its default.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/scatterlab/supalign/internal/align"
	"github.com/scatterlab/supalign/internal/nsd"
)

// AlignConfig is the root configuration for alignment tuning. The same
// JSON schema is accepted by the -config CLI flag.
type AlignConfig struct {
	// Mode is "slow" (discrete search plus refinement) or "fast".
	Mode *string `json:"mode,omitempty"`
	// Enantiomorphs toggles the mirrored candidate set.
	Enantiomorphs *bool `json:"enantiomorphs,omitempty"`
	// NeighborSearch is "auto", "grid" or "brute".
	NeighborSearch *string `json:"neighbor_search,omitempty"`
	// Workers bounds the NSD matrix worker pool; 0 means one per CPU.
	Workers *int `json:"workers,omitempty"`
	// MaxRefineEvals caps the Nelder-Mead evaluations per pair in slow
	// mode; 0 lets the convergence test decide.
	MaxRefineEvals *int `json:"max_refine_evals,omitempty"`
}

// Load reads an AlignConfig from a JSON file. The path must carry a .json
// extension and stay under the size cap.
func Load(path string) (*AlignConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &AlignConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *AlignConfig) Validate() error {
	if c.Mode != nil {
		switch *c.Mode {
		case "slow", "fast":
		default:
			return fmt.Errorf("mode must be \"slow\" or \"fast\", got %q", *c.Mode)
		}
	}
	if c.NeighborSearch != nil {
		switch *c.NeighborSearch {
		case "auto", "grid", "brute":
		default:
			return fmt.Errorf("neighbor_search must be \"auto\", \"grid\" or \"brute\", got %q", *c.NeighborSearch)
		}
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	if c.MaxRefineEvals != nil && *c.MaxRefineEvals < 0 {
		return fmt.Errorf("max_refine_evals must be non-negative, got %d", *c.MaxRefineEvals)
	}
	return nil
}

// Apply overlays the configured values onto opts, leaving unset fields
// untouched.
func (c *AlignConfig) Apply(opts *align.Options) {
	if c.Mode != nil {
		if *c.Mode == "fast" {
			opts.Mode = align.ModeFast
		} else {
			opts.Mode = align.ModeSlow
		}
	}
	if c.Enantiomorphs != nil {
		opts.Enantiomorphs = *c.Enantiomorphs
	}
	if c.NeighborSearch != nil {
		switch *c.NeighborSearch {
		case "grid":
			opts.Strategy = nsd.StrategyGrid
		case "brute":
			opts.Strategy = nsd.StrategyBruteForce
		default:
			opts.Strategy = nsd.StrategyAuto
		}
	}
	if c.Workers != nil {
		opts.Workers = *c.Workers
	}
	if c.MaxRefineEvals != nil {
		opts.MaxRefineEvals = *c.MaxRefineEvals
	}
}
