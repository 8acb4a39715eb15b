package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/algamark-cli/internal/dataset"
	"github.com/KaramelBytes/algamark-cli/internal/report"
	"github.com/KaramelBytes/algamark-cli/internal/summary"
)

var (
	sumView    string
	sumGroupBy []string
	sumMarkers []string
	sumTop     int
)

var summaryCmd = &cobra.Command{
	Use:   "summary <table>",
	Short: "Group-wise mean and SD of the markers of one view",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
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
		v, err := pickView(views, sumView)
		if err != nil {
			return err
		}
		s, err := summary.GroupSummary(v, sumGroupBy, sumMarkers)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if sumTop > 0 {
			fmt.Fprint(out, report.Title(mode, fmt.Sprintf("Top %d markers of %s", sumTop, v.Name)))
			fmt.Fprintln(out, report.Ranked(mode, summary.Ranked(s, sumTop)))
			return nil
		}
		fmt.Fprint(out, report.Title(mode, "Summary of "+v.Name))
		fmt.Fprintln(out, report.Summary(mode, s))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(summaryCmd)
	summaryCmd.Flags().StringVar(&sumView, "view", dataset.ViewFA, "view to summarise")
	summaryCmd.Flags().StringSliceVar(&sumGroupBy, "group-by", []string{dataset.FactorPhylum}, "grouping factors: phylum, order, family, species, site")
	summaryCmd.Flags().StringSliceVar(&sumMarkers, "markers", nil, "restrict to these markers (default all)")
	summaryCmd.Flags().IntVar(&sumTop, "top", 0, "rank markers by mean and keep the top N per group")
}
