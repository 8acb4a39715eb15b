package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/algamark-cli/internal/pipeline"
	"github.com/KaramelBytes/algamark-cli/internal/report"
)

var (
	runSeed         uint64
	runPermutations int
	runWorkers      int
	runClusterK     int
	runResultsDir   string
	runNoAbs        bool
)

var runCmd = &cobra.Command{
	Use:   "run <table>",
	Short: "Run the full analysis sequence on a biomarker table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := settings()
		if err != nil {
			return err
		}
		f := cmd.Flags()
		if f.Changed("seed") {
			c.Seed = runSeed
		}
		if f.Changed("permutations") {
			c.Permutations = runPermutations
		}
		if f.Changed("workers") {
			c.Workers = runWorkers
		}
		if f.Changed("cluster-k") {
			c.ClusterK = runClusterK
		}
		if f.Changed("results-dir") {
			c.ResultsDir = runResultsDir
		}
		if runNoAbs {
			c.AbsTransform = false
		}
		mode, err := outputMode()
		if err != nil {
			return err
		}
		r, err := newRunner()
		if err != nil {
			return err
		}

		res, runErr := r.Run(cmd.Context(), args[0])
		if res == nil {
			return runErr
		}
		out := cmd.OutOrStdout()
		printResults(out, mode, res)

		for _, v := range res.Manifest.Views {
			if v.Error != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "⚠ Warning: view %s not built: %s\n", v.Name, v.Error)
			}
		}
		for _, s := range res.Manifest.Failed() {
			fmt.Fprintf(cmd.ErrOrStderr(), "⚠ Warning: %s on %s failed: %s\n", s.Analysis, s.View, s.Error)
		}
		if c.ResultsDir != "" {
			dir, err := res.Write(c.ResultsDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "✓ Wrote results to %s\n", dir)
		}
		fmt.Fprintf(out, "✓ Run %s finished (seed %d)\n", res.Manifest.RunID, res.Manifest.Seed)
		return runErr
	},
}

func printResults(w io.Writer, m report.Mode, res *pipeline.Results) {
	section := func(title, body string) {
		fmt.Fprint(w, report.Title(m, title))
		fmt.Fprintln(w, body)
		fmt.Fprintln(w)
	}
	section("Views", report.Views(m, res.Views, res.ViewOrder))
	for _, s := range res.Summaries {
		if s.Summary != nil {
			section("Summary "+s.Name, report.Summary(m, s.Summary))
		}
	}
	if cl := res.Clustering; cl != nil {
		section("Ward clustering ("+cl.View+")", report.Dendrogram(m, cl.Dendrogram))
		section(fmt.Sprintf("Clusters (k=%d)", cl.K), report.Clusters(m, cl.Dendrogram, cl.Clusters))
	}
	for _, p := range res.Permanova {
		if p.Result != nil {
			section("PERMANOVA "+p.Name, report.Permanova(m, p.Result))
		}
	}
	if s := res.Simper; s != nil {
		section(fmt.Sprintf("SIMPER %s by %s (cumulative %.2f)", s.View, s.Factor, s.Threshold), report.Simper(m, s.Pairs, s.Threshold))
	}
	for _, n := range res.NMDS {
		if n.Result != nil {
			section("nMDS "+n.View, report.NMDS(m, n.Result, n.Labels))
		}
	}
	if p := res.PCA; p != nil {
		section("PCA "+p.View, report.PCAImportance(m, p.Result))
		section("PCA loadings", report.PCALoadings(m, p.Result, 2))
	}
	if u := res.Univariate; u != nil {
		section("ANOVA log10("+u.Model.Response+") ~ "+u.Model.Factor, report.ANOVA(m, u.ANOVA))
		section("Coefficients", report.Coefficients(m, u.Model))
		section("Tukey HSD", report.Tukey(m, u.Tukey))
		if u.Diagnostics != nil {
			section("Residual diagnostics", report.Diagnostics(m, u.Diagnostics))
		}
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Uint64Var(&runSeed, "seed", 0, "random seed (overrides config)")
	runCmd.Flags().IntVar(&runPermutations, "permutations", 0, "PERMANOVA permutations (overrides config)")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "parallel workers, 0 = all CPUs (overrides config)")
	runCmd.Flags().IntVar(&runClusterK, "cluster-k", 0, "number of Ward clusters (overrides config)")
	runCmd.Flags().StringVar(&runResultsDir, "results-dir", "", "write manifest.json, results.json and view CSVs here")
	runCmd.Flags().BoolVar(&runNoAbs, "no-abs", false, "do not take absolute values of isotope views before Bray-Curtis")
}
