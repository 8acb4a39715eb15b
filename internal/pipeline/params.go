package pipeline

import (
	"github.com/KaramelBytes/algamark-cli/internal/config"
	"github.com/KaramelBytes/algamark-cli/internal/dataset"
)

// Params are the knobs of one run. They are recorded verbatim in the manifest.
type Params struct {
	Seed               uint64  `json:"seed"`
	Permutations       int     `json:"permutations"`
	SimperPermutations int     `json:"simper_permutations"`
	Workers            int     `json:"workers"`
	NMDSTries          int     `json:"nmds_tries"`
	NMDSMaxIter        int     `json:"nmds_max_iter"`
	NMDSTolerance      float64 `json:"nmds_tolerance"`
	SimperThreshold    float64 `json:"simper_threshold"`
	ClusterK           int     `json:"cluster_k"`
	DiagnosticSims     int     `json:"diagnostic_sims"`
	AbsTransform       bool    `json:"abs_transform"`
	ControlColumn      string  `json:"control_column"`
	Delimiter          rune    `json:"delimiter,omitempty"`
	TaxonomyFile       string  `json:"taxonomy_file,omitempty"`
}

// DefaultParams mirrors the configuration defaults.
func DefaultParams() Params {
	return Params{
		Seed:            20240101,
		Permutations:    999,
		NMDSTries:       20,
		NMDSMaxIter:     200,
		NMDSTolerance:   1e-4,
		SimperThreshold: 0.83,
		ClusterK:        4,
		DiagnosticSims:  250,
		AbsTransform:    true,
		ControlColumn:   dataset.DefaultControlColumn,
	}
}

// FromConfig copies the analysis settings out of a loaded configuration.
func FromConfig(c *config.Global) Params {
	return Params{
		Seed:               c.Seed,
		Permutations:       c.Permutations,
		SimperPermutations: c.SimperPermutations,
		Workers:            c.Workers,
		NMDSTries:          c.NMDSTries,
		NMDSMaxIter:        c.NMDSMaxIter,
		NMDSTolerance:      c.NMDSTolerance,
		SimperThreshold:    c.SimperThreshold,
		ClusterK:           c.ClusterK,
		DiagnosticSims:     c.DiagnosticSims,
		AbsTransform:       c.AbsTransform,
		ControlColumn:      c.ControlColumn,
		Delimiter:          c.DelimiterRune(),
		TaxonomyFile:       c.TaxonomyFile,
	}
}

func (p Params) loadOptions() dataset.LoadOptions {
	return dataset.LoadOptions{ControlColumn: p.ControlColumn, Delimiter: p.Delimiter}
}
