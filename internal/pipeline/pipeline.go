// Package pipeline runs the fixed analysis sequence over the standard views of one
// biomarker table and records what happened in a run manifest.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/algamark-cli/internal/community"
	"github.com/KaramelBytes/algamark-cli/internal/dataset"
	"github.com/KaramelBytes/algamark-cli/internal/distance"
	"github.com/KaramelBytes/algamark-cli/internal/ordination"
	"github.com/KaramelBytes/algamark-cli/internal/summary"
	"github.com/KaramelBytes/algamark-cli/internal/taxonomy"
	"github.com/KaramelBytes/algamark-cli/internal/univariate"
)

// Runner executes pipeline runs.
type Runner struct {
	log    *zap.Logger
	params Params
}

// NewRunner returns a Runner. A nil logger discards output.
func NewRunner(log *zap.Logger, params Params) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{log: log, params: params}
}

// Params returns the run parameters.
func (r *Runner) Params() Params { return r.params }

// Prepare loads path, resolves every species and returns a view builder.
func (r *Runner) Prepare(path string) (*dataset.Builder, error) {
	tbl, err := dataset.Load(path, r.params.loadOptions())
	if err != nil {
		return nil, err
	}
	res, err := r.resolver()
	if err != nil {
		return nil, err
	}
	b, err := dataset.NewBuilder(tbl, res)
	if err != nil {
		return nil, err
	}
	r.log.Info("loaded table",
		zap.String("file", tbl.Name),
		zap.Int("samples", len(tbl.Samples)),
		zap.Int("isotopes", len(tbl.Isotopes)),
		zap.Int("fatty_acids", len(tbl.FattyAcids)),
		zap.String("dropped", tbl.Dropped))
	return b, nil
}

func (r *Runner) resolver() (*taxonomy.Resolver, error) {
	if r.params.TaxonomyFile != "" {
		return taxonomy.LoadFile(r.params.TaxonomyFile)
	}
	return taxonomy.Default()
}

// task is one analysis. run returns the warnings it wants recorded. src names the
// standard view the input derives from; view is nil when src could not be built.
type task struct {
	name string
	src  string
	view *dataset.View
	run  func(ctx context.Context) ([]string, error)
}

// Run executes the full sequence. Analyses are independent: a failing one is
// recorded in the manifest and joined into the returned error while the others
// still complete, so Results is non-nil whenever the table could be loaded. A
// standard view that cannot be built fails only the analyses that read it.
func (r *Runner) Run(ctx context.Context, path string) (*Results, error) {
	started := time.Now()
	b, err := r.Prepare(path)
	if err != nil {
		return nil, err
	}
	views, order, failed := b.Standard()
	res := &Results{
		Manifest: &Manifest{
			RunID:   uuid.NewString(),
			Input:   path,
			Started: started,
			Seed:    r.params.Seed,
			Params:  r.params,
		},
		Views:     views,
		ViewOrder: order,
		missing:   map[string]*dataset.ViewError{},
	}
	for _, name := range order {
		v := views[name]
		res.Manifest.Views = append(res.Manifest.Views, ViewInfo{
			Name: v.Name, Rows: v.Len(), Markers: v.Markers, Filters: v.Filters, Transforms: v.Transforms,
		})
	}
	for _, ve := range failed {
		res.missing[ve.View] = ve
		res.Manifest.Views = append(res.Manifest.Views, ViewInfo{Name: ve.View, Filters: ve.Filters, Error: ve.Err.Error()})
		r.log.Warn("view not built", zap.String("view", ve.View), zap.Strings("filters", ve.Filters), zap.Error(ve.Err))
	}
	r.log.Info("built views", zap.Strings("views", order), zap.String("run_id", res.Manifest.RunID))

	errs := r.execute(ctx, res, r.analyses(res, views))
	// PCA needs the SIMPER selection.
	errs = append(errs, r.execute(ctx, res, []task{r.pcaTask(res, views[dataset.ViewOverlap])})...)

	res.Manifest.Finished = time.Now()
	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return res, errors.Join(errs...)
}

// execute runs tasks concurrently and appends their statuses in task order.
func (r *Runner) execute(ctx context.Context, res *Results, tasks []task) []error {
	statuses := make([]Status, len(tasks))
	errs := make([]error, len(tasks))
	run := func(ctx context.Context, i int) {
		t := tasks[i]
		if t.view == nil {
			statuses[i], errs[i] = r.missingView(res, t)
			return
		}
		st := Status{Analysis: t.name, View: t.view.Name, Filters: t.view.Filters, Transforms: t.view.Transforms}
		start := time.Now()
		r.log.Debug("analysis started", zap.String("analysis", t.name), zap.String("view", t.view.Name))
		warnings, err := t.run(ctx)
		st.ElapsedMS = time.Since(start).Milliseconds()
		st.Warnings = warnings
		switch {
		case errors.Is(err, errSkipped):
			st.State = StateSkipped
			st.Error = err.Error()
			r.log.Info("analysis skipped", zap.String("analysis", t.name), zap.Error(err))
		case err != nil:
			st.State = StateFailed
			st.Error = err.Error()
			errs[i] = &AnalysisError{Analysis: t.name, View: t.view.Name, Filters: t.view.Filters, Err: err}
			r.log.Warn("analysis failed", zap.String("analysis", t.name), zap.String("view", t.view.Name), zap.Error(err))
		default:
			st.State = StateOK
			r.log.Info("analysis done", zap.String("analysis", t.name), zap.Int64("elapsed_ms", st.ElapsedMS))
		}
		for _, w := range warnings {
			r.log.Warn("analysis warning", zap.String("analysis", t.name), zap.String("warning", w))
		}
		statuses[i] = st
	}

	workers := r.params.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for i := range tasks {
			i := i
			g.Go(func() error {
				run(gctx, i)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range tasks {
			run(ctx, i)
		}
	}
	res.Manifest.Analyses = append(res.Manifest.Analyses, statuses...)
	var out []error
	for _, err := range errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}

var errSkipped = errors.New("skipped")

// missingView fails t without running it because its input view was not built.
func (r *Runner) missingView(res *Results, t task) (Status, error) {
	ve := res.missing[t.src]
	if ve == nil {
		ve = &dataset.ViewError{View: t.src, Err: dataset.ErrEmptyView}
	}
	r.log.Warn("analysis failed", zap.String("analysis", t.name), zap.String("view", t.src), zap.Error(ve))
	st := Status{Analysis: t.name, View: t.src, Filters: ve.Filters, State: StateFailed, Error: ve.Error()}
	return st, &AnalysisError{Analysis: t.name, View: t.src, Filters: ve.Filters, Err: ve}
}

// BrayView returns v, or its absolute values when configured and v has isotope columns.
func (r *Runner) BrayView(v *dataset.View) *dataset.View {
	if v == nil || !r.params.AbsTransform {
		return v
	}
	for _, m := range dataset.IsotopeMarkers {
		if _, err := v.MarkerIndex(m); err == nil {
			return v.Abs()
		}
	}
	return v
}

func (r *Runner) analyses(res *Results, views map[string]*dataset.View) []task {
	fa, si, overlap := views[dataset.ViewFA], views[dataset.ViewSI], views[dataset.ViewOverlap]
	p := r.params
	var tasks []task

	// group summaries
	sums := []struct {
		name string
		src  string
		view *dataset.View
		keys []string
	}{
		{"fa_by_phylum_species", dataset.ViewFA, fa, []string{dataset.FactorPhylum, dataset.FactorSpecies}},
		{"fa_by_phylum", dataset.ViewFA, fa, []string{dataset.FactorPhylum}},
		{"si_by_phylum_species", dataset.ViewSI, si, []string{dataset.FactorPhylum, dataset.FactorSpecies}},
		{"fa_percent_by_phylum", dataset.ViewFAPercent, views[dataset.ViewFAPercent], []string{dataset.FactorPhylum}},
	}
	res.Summaries = make([]SummaryRun, len(sums))
	for i, s := range sums {
		i, s := i, s
		tasks = append(tasks, task{name: "summary " + s.name, src: s.src, view: s.view, run: func(context.Context) ([]string, error) {
			out, err := summary.GroupSummary(s.view, s.keys, nil)
			if err != nil {
				return nil, err
			}
			res.Summaries[i] = SummaryRun{Name: s.name, Summary: out}
			return nil, nil
		}})
	}

	// Ward clustering of species-mean FA profiles
	var means *dataset.View
	if fa != nil {
		means = fa.SpeciesMeans()
	}
	tasks = append(tasks, task{name: "ward clustering", src: dataset.ViewFA, view: means, run: func(context.Context) ([]string, error) {
		dm, err := distance.Compute(means.Rows, distance.Bray)
		if err != nil {
			return nil, err
		}
		tree, err := distance.Ward(dm, means.Labels())
		if err != nil {
			return nil, err
		}
		var warnings []string
		k := p.ClusterK
		if k > tree.Len() {
			warnings = append(warnings, fmt.Sprintf("cluster_k %d exceeds %d species; cut at %d", k, tree.Len(), tree.Len()))
			k = tree.Len()
		}
		clusters, err := tree.Cut(k)
		if err != nil {
			return warnings, err
		}
		res.Clustering = &Clustering{View: means.Name, Dendrogram: tree, K: k, Clusters: clusters}
		return warnings, nil
	}})

	// PERMANOVA
	models := []struct {
		name    string
		src     string
		view    *dataset.View
		factors []string
	}{
		{"fa ~ phylum + order", dataset.ViewFA, fa, []string{dataset.FactorPhylum, dataset.FactorOrder}},
		{"si ~ phylum", dataset.ViewSI, r.BrayView(si), []string{dataset.FactorPhylum}},
		{"overlap ~ phylum", dataset.ViewOverlap, r.BrayView(overlap), []string{dataset.FactorPhylum}},
	}
	res.Permanova = make([]PermanovaRun, len(models))
	for i, m := range models {
		i, m := i, m
		tasks = append(tasks, task{name: "permanova " + m.name, src: m.src, view: m.view, run: func(ctx context.Context) ([]string, error) {
			out, err := r.Permanova(ctx, m.view, m.factors)
			if err != nil {
				return nil, err
			}
			res.Permanova[i] = PermanovaRun{Name: m.name, View: m.view.Name, Factors: m.factors, Result: out}
			return absWarning(out.AbsApplied), nil
		}})
	}

	// SIMPER
	tasks = append(tasks, task{name: "simper by phylum", src: dataset.ViewFA, view: fa, run: func(ctx context.Context) ([]string, error) {
		groups, err := fa.Factor(dataset.FactorPhylum)
		if err != nil {
			return nil, err
		}
		pairs, err := community.SIMPER(ctx, fa.Rows, fa.Markers, groups, community.SimperOptions{
			Permutations: p.SimperPermutations, Seed: p.Seed, Workers: p.Workers,
		})
		if err != nil {
			return nil, err
		}
		res.Simper = &SimperRun{
			View: fa.Name, Factor: dataset.FactorPhylum, Threshold: p.SimperThreshold,
			Pairs: pairs, Discriminating: community.DiscriminatingMarkers(pairs, p.SimperThreshold),
		}
		return nil, nil
	}})

	// nMDS
	ords := []struct {
		src  string
		view *dataset.View
	}{
		{dataset.ViewFA, fa},
		{dataset.ViewOverlap, r.BrayView(overlap)},
	}
	res.NMDS = make([]NMDSRun, len(ords))
	for i, o := range ords {
		i, v := i, o.view
		name := o.src
		if v != nil {
			name = v.Name
		}
		tasks = append(tasks, task{name: "nmds " + name, src: o.src, view: v, run: func(ctx context.Context) ([]string, error) {
			out, err := community.NMDS(ctx, v.Rows, community.NMDSOptions{
				Metric: distance.Bray, Tries: p.NMDSTries, MaxIter: p.NMDSMaxIter, Tolerance: p.NMDSTolerance,
				Seed: p.Seed, Workers: p.Workers,
			})
			if err != nil {
				return nil, err
			}
			groups, _ := v.Factor(dataset.FactorPhylum)
			res.NMDS[i] = NMDSRun{View: v.Name, Labels: v.Labels(), Groups: groups, Result: out}
			warnings := absWarning(out.AbsApplied)
			if out.Warning != nil {
				warnings = append(warnings, out.Warning.Error())
			}
			return warnings, nil
		}})
	}

	// log10(CN ratio) ~ phylum
	tasks = append(tasks, task{name: "anova log10(CN ratio) ~ phylum", src: dataset.ViewSI, view: si, run: func(context.Context) ([]string, error) {
		y, err := si.Column(dataset.MarkerCN)
		if err != nil {
			return nil, err
		}
		g, err := si.Factor(dataset.FactorPhylum)
		if err != nil {
			return nil, err
		}
		model, table, err := univariate.ANOVAOnLog(y, g, dataset.MarkerCN, dataset.FactorPhylum)
		if err != nil {
			return nil, err
		}
		cmps, err := univariate.PairwiseTukey(model)
		if err != nil {
			return nil, fmt.Errorf("tukey: %w", err)
		}
		diag, err := univariate.ResidualDiagnostics(model, p.DiagnosticSims, p.Seed)
		if err != nil {
			return nil, fmt.Errorf("diagnostics: %w", err)
		}
		res.Univariate = &UnivariateRun{View: si.Name, Model: model, ANOVA: table, Tukey: cmps, Diagnostics: diag}
		return nil, nil
	}})
	return tasks
}

func (r *Runner) pcaTask(res *Results, overlap *dataset.View) task {
	return task{name: "pca on discriminating markers", src: dataset.ViewOverlap, view: overlap, run: func(context.Context) ([]string, error) {
		if res.Simper == nil {
			return nil, fmt.Errorf("simper did not complete: %w", errSkipped)
		}
		if len(res.Simper.Discriminating) < 2 {
			return nil, fmt.Errorf("%d discriminating markers: %w", len(res.Simper.Discriminating), errSkipped)
		}
		reduced, err := overlap.Reduced(res.Simper.Discriminating)
		if err != nil {
			return nil, err
		}
		out, err := ordination.PCA(reduced.Rows, reduced.Markers, true)
		if err != nil {
			return nil, err
		}
		res.PCA = &PCARun{View: reduced.Name, Labels: reduced.Labels(), Result: out}
		return nil, nil
	}}
}

// Permanova fits a sequential Bray-Curtis PERMANOVA of v on the named annotation
// factors, in order.
func (r *Runner) Permanova(ctx context.Context, v *dataset.View, factorNames []string) (*community.PermanovaResult, error) {
	factors := make([]community.Factor, len(factorNames))
	for k, f := range factorNames {
		vals, err := v.Factor(f)
		if err != nil {
			return nil, err
		}
		factors[k] = community.Factor{Name: f, Values: vals}
	}
	return community.PERMANOVA(ctx, v.Rows, factors, community.PermanovaOptions{
		Metric: distance.Bray, Permutations: r.params.Permutations, Seed: r.params.Seed, Workers: r.params.Workers,
	})
}

func absWarning(applied bool) []string {
	if applied {
		return []string{"negative values entered Bray-Curtis as absolute values"}
	}
	return nil
}
