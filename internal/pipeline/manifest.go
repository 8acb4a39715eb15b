package pipeline

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/KaramelBytes/algamark-cli/internal/community"
	"github.com/KaramelBytes/algamark-cli/internal/dataset"
	"github.com/KaramelBytes/algamark-cli/internal/distance"
	"github.com/KaramelBytes/algamark-cli/internal/ordination"
	"github.com/KaramelBytes/algamark-cli/internal/summary"
	"github.com/KaramelBytes/algamark-cli/internal/univariate"
	"github.com/KaramelBytes/algamark-cli/internal/utils"
)

// State of one analysis.
type State string

const (
	StateOK      State = "ok"
	StateFailed  State = "failed"
	StateSkipped State = "skipped"
)

// Status records how one analysis went.
type Status struct {
	Analysis   string   `json:"analysis"`
	View       string   `json:"view"`
	Filters    []string `json:"filters,omitempty"`
	Transforms []string `json:"transforms,omitempty"`
	State      State    `json:"state"`
	Error      string   `json:"error,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
	ElapsedMS  int64    `json:"elapsed_ms"`
}

// ViewInfo describes a derived view without its values. Error is set, and Rows is
// zero, for a view that could not be built.
type ViewInfo struct {
	Name       string   `json:"name"`
	Rows       int      `json:"rows"`
	Markers    []string `json:"markers"`
	Filters    []string `json:"filters,omitempty"`
	Transforms []string `json:"transforms,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Manifest identifies a run and everything needed to repeat it.
type Manifest struct {
	RunID    string     `json:"run_id"`
	Input    string     `json:"input"`
	Started  time.Time  `json:"started"`
	Finished time.Time  `json:"finished"`
	Seed     uint64     `json:"seed"`
	Params   Params     `json:"params"`
	Views    []ViewInfo `json:"views"`
	Analyses []Status   `json:"analyses"`
}

// Failed lists the analyses that did not complete.
func (m *Manifest) Failed() []Status {
	var out []Status
	for _, s := range m.Analyses {
		if s.State == StateFailed {
			out = append(out, s)
		}
	}
	return out
}

// AnalysisError attributes an engine failure to its analysis and input view.
type AnalysisError struct {
	Analysis string
	View     string
	Filters  []string
	Err      error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("%s on view %q [filters: %s]: %v", e.Analysis, e.View, strings.Join(e.Filters, ", "), e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// SummaryRun is one grouped summary.
type SummaryRun struct {
	Name    string           `json:"name"`
	Summary *summary.Summary `json:"summary"`
}

// Clustering is the Ward tree of species-mean fatty-acid profiles and its cut.
type Clustering struct {
	View       string               `json:"view"`
	Dendrogram *distance.Dendrogram `json:"dendrogram"`
	K          int                  `json:"k"`
	Clusters   []int                `json:"clusters"`
}

// PermanovaRun is one PERMANOVA model.
type PermanovaRun struct {
	Name    string                     `json:"name"`
	View    string                     `json:"view"`
	Factors []string                   `json:"factors"`
	Result  *community.PermanovaResult `json:"result"`
}

// SimperRun is the SIMPER ranking and the markers it selects.
type SimperRun struct {
	View           string                 `json:"view"`
	Factor         string                 `json:"factor"`
	Threshold      float64                `json:"threshold"`
	Pairs          []community.SimperPair `json:"pairs"`
	Discriminating []string               `json:"discriminating"`
}

// NMDSRun is one ordination with the species label of every point.
type NMDSRun struct {
	View   string                `json:"view"`
	Labels []string              `json:"labels"`
	Groups []string              `json:"groups"`
	Result *community.NMDSResult `json:"result"`
}

// PCARun is the PCA of the reduced overlap view.
type PCARun struct {
	View   string             `json:"view"`
	Labels []string           `json:"labels"`
	Result *ordination.Result `json:"result"`
}

// UnivariateRun is the log-scale ANOVA with its follow-ups.
type UnivariateRun struct {
	View        string                  `json:"view"`
	Model       *univariate.Model       `json:"model"`
	ANOVA       *univariate.ANOVATable  `json:"anova"`
	Tukey       []univariate.Comparison `json:"tukey"`
	Diagnostics *univariate.Diagnostics `json:"diagnostics,omitempty"`
}

// Results holds every analysis of a run. Fields of failed analyses stay nil.
type Results struct {
	Manifest   *Manifest      `json:"manifest"`
	Summaries  []SummaryRun   `json:"summaries"`
	Clustering *Clustering    `json:"clustering,omitempty"`
	Permanova  []PermanovaRun `json:"permanova"`
	Simper     *SimperRun     `json:"simper,omitempty"`
	NMDS       []NMDSRun      `json:"nmds"`
	PCA        *PCARun        `json:"pca,omitempty"`
	Univariate *UnivariateRun `json:"univariate,omitempty"`

	Views     map[string]*dataset.View `json:"-"`
	ViewOrder []string                 `json:"-"`

	missing map[string]*dataset.ViewError
}

// Write stores manifest.json, results.json and one CSV per view under dir/<run id>
// and returns that directory.
func (r *Results) Write(dir string) (string, error) {
	runDir := filepath.Join(dir, r.Manifest.RunID)
	if _, err := utils.WriteJSON(runDir, "manifest.json", r.Manifest); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	if _, err := utils.WriteJSON(runDir, "results.json", r); err != nil {
		return "", fmt.Errorf("write results: %w", err)
	}
	viewDir := filepath.Join(runDir, "views")
	if err := utils.EnsureDir(viewDir); err != nil {
		return "", fmt.Errorf("create %s: %w", viewDir, err)
	}
	for _, name := range r.ViewOrder {
		var buf bytes.Buffer
		if err := r.Views[name].WriteCSV(&buf); err != nil {
			return "", fmt.Errorf("export view %s: %w", name, err)
		}
		if err := utils.SafeWriteFile(filepath.Join(viewDir, name+".csv"), buf.Bytes()); err != nil {
			return "", fmt.Errorf("export view %s: %w", name, err)
		}
	}
	return runDir, nil
}
