package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/algamark-cli/internal/profile"
	"github.com/KaramelBytes/algamark-cli/internal/tabular"
	"github.com/KaramelBytes/algamark-cli/internal/utils"
)

var (
	descOutputPath string
	descOutputDir  string
	descSampleRows int
	descGroupBy    []string
	descSheetName  string
	descSheetIndex int
	descOutliers   bool
	descOutlierThr float64
	descQuiet      bool
)

var describeCmd = &cobra.Command{
	Use:   "describe <files...>",
	Short: "Profile CSV/TSV/XLSX tables and print a Markdown summary",
	Long: `Profiles one or more tables (globs allowed). With several inputs use --output-dir
to write one <name>.profile.md per file; clashing base names get a __2, __3 suffix.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := settings()
		if err != nil {
			return err
		}
		files, err := expandInputs(args)
		if err != nil {
			return err
		}
		if len(files) > 1 && descOutputPath != "" {
			return fmt.Errorf("--output takes a single input; use --output-dir for %d files", len(files))
		}

		opt := profile.DefaultOptions()
		if descSampleRows >= 0 {
			opt.SampleRows = descSampleRows
		}
		opt.GroupBy = descGroupBy
		if cmd.Flags().Changed("outliers") {
			opt.Outliers = descOutliers
		}
		if descOutlierThr > 0 {
			opt.OutlierThreshold = descOutlierThr
		}
		read := tabular.Options{Delimiter: c.DelimiterRune(), Sheet: descSheetName, SheetIndex: descSheetIndex}

		out := cmd.OutOrStdout()
		used := map[string]int{}
		for i, path := range files {
			if len(files) > 1 && !descQuiet {
				fmt.Fprintf(cmd.ErrOrStderr(), "[%d/%d] Processing %s...\n", i+1, len(files), filepath.Base(path))
			}
			t, err := tabular.Read(path, read)
			if err != nil {
				return err
			}
			md := profile.Profile(t, opt).Markdown()

			switch {
			case descOutputPath != "":
				if err := os.WriteFile(descOutputPath, []byte(md), 0o644); err != nil {
					return fmt.Errorf("write output: %w", err)
				}
				fmt.Fprintf(out, "✓ Wrote profile to %s\n", descOutputPath)
			case descOutputDir != "":
				if err := utils.EnsureDir(descOutputDir); err != nil {
					return err
				}
				dest := filepath.Join(descOutputDir, profileName(path, used))
				if err := utils.SafeWriteFile(dest, []byte(md)); err != nil {
					return fmt.Errorf("write output: %w", err)
				}
				fmt.Fprintf(out, "✓ Wrote profile to %s\n", dest)
			default:
				fmt.Fprintln(out, md)
			}
		}
		return nil
	},
}

// expandInputs resolves globs, keeps literal paths that exist and drops duplicates.
func expandInputs(args []string) ([]string, error) {
	var files []string
	seen := map[string]struct{}{}
	for _, arg := range args {
		matches, _ := filepath.Glob(arg)
		if len(matches) == 0 {
			if _, err := os.Stat(arg); err == nil {
				matches = []string{arg}
			}
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no input files matched")
	}
	sort.Strings(files)
	return files, nil
}

func profileName(path string, used map[string]int) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if descSheetName != "" {
		base += "__sheet-" + sheetSlug(descSheetName)
	}
	used[base]++
	if n := used[base]; n > 1 {
		base = fmt.Sprintf("%s__%d", base, n)
	}
	return base + ".profile.md"
}

func sheetSlug(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else if r == ' ' || r == '-' || r == '_' {
			b.WriteRune('-')
		}
	}
	if s := strings.Trim(b.String(), "-"); s != "" {
		return s
	}
	return "sheet"
}

func init() {
	rootCmd.AddCommand(describeCmd)
	describeCmd.Flags().StringVarP(&descOutputPath, "output", "o", "", "optional path to write the profile (Markdown)")
	describeCmd.Flags().StringVar(&descOutputDir, "output-dir", "", "write one <name>.profile.md per input into this directory")
	describeCmd.Flags().IntVar(&descSampleRows, "sample-rows", 5, "number of sample rows to include")
	describeCmd.Flags().StringSliceVar(&descGroupBy, "group-by", nil, "comma-separated column names to group by (repeatable)")
	describeCmd.Flags().BoolVar(&descOutliers, "outliers", true, "compute robust outlier counts (MAD)")
	describeCmd.Flags().Float64Var(&descOutlierThr, "outlier-threshold", 3.5, "robust |z| threshold for outliers (MAD-based)")
	describeCmd.Flags().StringVar(&descSheetName, "sheet-name", "", "XLSX: sheet name to read")
	describeCmd.Flags().IntVar(&descSheetIndex, "sheet-index", 1, "XLSX: 1-based sheet index (used if --sheet-name not provided)")
	describeCmd.Flags().BoolVarP(&descQuiet, "quiet", "q", false, "suppress per-file progress")
}
