package cmd

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/algamark-cli/internal/dataset"
	"github.com/KaramelBytes/algamark-cli/internal/report"
)

var (
	viewsExport string
	viewsLong   bool
	viewsOutput string
)

var viewsCmd = &cobra.Command{
	Use:   "views <table>",
	Short: "List the derived views of a table or export one as CSV",
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
		views, order := standardViews(cmd, b)
		out := cmd.OutOrStdout()
		if viewsExport == "" {
			fmt.Fprint(out, report.Title(mode, "Views of "+b.Table().Name))
			fmt.Fprintln(out, report.Views(mode, views, order))
			if b.Table().Dropped != "" {
				fmt.Fprintf(out, "control column dropped: %s\n", b.Table().Dropped)
			}
			return nil
		}

		v, err := pickView(views, viewsExport)
		if err != nil {
			return err
		}
		var buf bytes.Buffer
		if viewsLong {
			err = v.Melt().WriteCSV(&buf)
		} else {
			err = v.WriteCSV(&buf)
		}
		if err != nil {
			return err
		}
		if viewsOutput == "" {
			_, err := out.Write(buf.Bytes())
			return err
		}
		if err := os.WriteFile(viewsOutput, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		fmt.Fprintf(out, "✓ Wrote %s (%d rows) to %s\n", v.Name, v.Len(), viewsOutput)
		return nil
	},
}

// standardViews builds the standard views and warns about any that could not be built.
func standardViews(cmd *cobra.Command, b *dataset.Builder) (map[string]*dataset.View, []string) {
	views, order, failed := b.Standard()
	for _, ve := range failed {
		fmt.Fprintf(cmd.ErrOrStderr(), "⚠ Warning: view %s not built: %v\n", ve.View, ve.Err)
	}
	return views, order
}

// pickView looks a view up by name. The suffixes _abs and _species_means derive
// the view on the fly.
func pickView(views map[string]*dataset.View, name string) (*dataset.View, error) {
	if v, ok := views[name]; ok {
		return v, nil
	}
	if base, ok := strings.CutSuffix(name, "_abs"); ok {
		if v, err := pickView(views, base); err == nil {
			return v.Abs(), nil
		}
	}
	if base, ok := strings.CutSuffix(name, "_species_means"); ok {
		if v, err := pickView(views, base); err == nil {
			return v.SpeciesMeans(), nil
		}
	}
	known := make([]string, 0, len(views))
	for k := range views {
		known = append(known, k)
	}
	sort.Strings(known)
	return nil, fmt.Errorf("unknown view %q (have %s)", name, strings.Join(known, ", "))
}

func init() {
	rootCmd.AddCommand(viewsCmd)
	viewsCmd.Flags().StringVar(&viewsExport, "export", "", "export the named view as CSV")
	viewsCmd.Flags().BoolVar(&viewsLong, "long", false, "export in long form, one row per sample and marker")
	viewsCmd.Flags().StringVarP(&viewsOutput, "output", "o", "", "write the export to this file instead of stdout")
}
