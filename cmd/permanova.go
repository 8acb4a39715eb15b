package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/algamark-cli/internal/dataset"
	"github.com/KaramelBytes/algamark-cli/internal/report"
)

var (
	permView         string
	permFactors      []string
	permPermutations int
	permSeed         uint64
)

var permanovaCmd = &cobra.Command{
	Use:   "permanova <table>",
	Short: "Sequential Bray-Curtis PERMANOVA of one view",
	Long: `Fits the factors in the order given; with --factor phylum --factor order the
order term is tested after phylum.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := settings()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("permutations") {
			c.Permutations = permPermutations
		}
		if cmd.Flags().Changed("seed") {
			c.Seed = permSeed
		}
		mode, err := outputMode()
		if err != nil {
			return err
		}
		r, err := newRunner()
		if err != nil {
			return err
		}
		b, err := r.Prepare(args[0])
		if err != nil {
			return err
		}
		views, _ := standardViews(cmd, b)
		v, err := pickView(views, permView)
		if err != nil {
			return err
		}
		v = r.BrayView(v)
		res, err := r.Permanova(cmd.Context(), v, permFactors)
		if err != nil {
			return fmt.Errorf("permanova on view %q: %w", v.Name, err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprint(out, report.Title(mode, fmt.Sprintf("PERMANOVA %s (%d rows)", v.Name, v.Len())))
		fmt.Fprintln(out, report.Permanova(mode, res))
		if res.AbsApplied {
			fmt.Fprintln(cmd.ErrOrStderr(), "⚠ Warning: negative values entered Bray-Curtis as absolute values")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(permanovaCmd)
	permanovaCmd.Flags().StringVar(&permView, "view", dataset.ViewFA, "view to test")
	permanovaCmd.Flags().StringSliceVar(&permFactors, "factor", []string{dataset.FactorPhylum}, "grouping factor, repeatable; fitted in order")
	permanovaCmd.Flags().IntVar(&permPermutations, "permutations", 0, "number of permutations (overrides config)")
	permanovaCmd.Flags().Uint64Var(&permSeed, "seed", 0, "random seed (overrides config)")
}
