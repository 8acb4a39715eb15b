package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const fixtureCSV = `Project ID,Site,Species,Ice cover,CN ratio,d15N,d13C,C16:0,C18:1n9,C19:0,C20:5n3
P1,Palmer,Desmarestia menziesii,0.4,12.1,4.2,-28.1,0.30,0.20,0.01,0.50
P1,Palmer,Desmarestia menziesii,0.4,11.8,4.0,-27.9,0.32,0.18,0.01,0.50
P1,Biscoe,Palmaria decipiens,0.7,9.4,5.1,-22.3,0.25,0.05,0.01,0.70
P1,Biscoe,Palmaria decipiens,0.7,9.9,5.3,-22.0,0.27,0.06,0.02,0.67
P2,Palmer,Ulva intestinalis,0.1,NA,NA,NA,0.40,0.30,0.01,0.30
P2,Palmer,Ulva intestinalis,0.1,,,,0.42,0.28,0.01,0.30
P2,Biscoe,Iridaea cordata,0.6,10.5,6.0,-30.2,0.20,0.10,0.01,0.70
P2,Biscoe,Iridaea cordata,0.6,10.2,6.2,-30.0,0.22,n/a,0.01,0.68
`

// resetFlags restores every flag of c and its children to its default so that
// values and Changed state do not leak between invocations.
func resetFlags(c *cobra.Command) {
	reset := func(fl *pflag.Flag) {
		if sv, ok := fl.Value.(pflag.SliceValue); ok {
			def := strings.Trim(fl.DefValue, "[]")
			var vals []string
			if def != "" {
				vals = strings.Split(def, ",")
			}
			_ = sv.Replace(vals)
		} else {
			_ = fl.Value.Set(fl.DefValue)
		}
		fl.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// runCLI executes the root command with args and returns stdout.
func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execCmd(args...)
	if err != nil {
		t.Fatalf("command %v failed: %v", args, err)
	}
	return out
}

func execCmd(args ...string) (string, error) {
	resetFlags(rootCmd)
	cfg = nil
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), err
}

// setupHome isolates config under a temp HOME and writes the fixture table.
func setupHome(t *testing.T) (home, table string) {
	t.Helper()
	home = t.TempDir()
	t.Setenv("HOME", home)
	table = filepath.Join(home, "biomarkers.csv")
	if err := os.WriteFile(table, []byte(fixtureCSV), 0o644); err != nil {
		t.Fatalf("write table: %v", err)
	}
	// keep the full run quick
	runCLI(t, "config", "set", "nmds_tries", "3")
	runCLI(t, "config", "set", "diagnostic_sims", "20")
	runCLI(t, "config", "set", "permutations", "49")
	return home, table
}

func TestCLI_ConfigSetShow(t *testing.T) {
	home, _ := setupHome(t)

	out := runCLI(t, "config", "show")
	for _, want := range []string{"permutations: 49", "nmds_tries: 3", "control_column: C19:0"} {
		if !strings.Contains(out, want) {
			t.Fatalf("config show missing %q:\n%s", want, out)
		}
	}
	if _, err := os.Stat(filepath.Join(home, ".algamark", "config.yaml")); err != nil {
		t.Fatalf("config file not saved: %v", err)
	}
	if _, err := execCmd("config", "set", "no_such_key", "1"); err == nil {
		t.Fatalf("expected error for unknown key")
	}
	if _, err := execCmd("config", "set", "simper_threshold", "1.5"); err == nil {
		t.Fatalf("expected error for threshold outside (0, 1]")
	}
	if out := runCLI(t, "config", "keys"); !strings.Contains(out, "results_dir") {
		t.Fatalf("keys missing results_dir:\n%s", out)
	}
}

func TestCLI_RunWritesResults(t *testing.T) {
	home, table := setupHome(t)
	resultsDir := filepath.Join(home, "results")

	out := runCLI(t, "run", table, "--workers", "2", "--results-dir", resultsDir)
	for _, want := range []string{
		"PERMANOVA fa ~ phylum + order",
		"SIMPER fa by phylum",
		"nMDS overlap_abs",
		"Tukey HSD",
		"Rhodophyta-Ochrophyta",
		"✓ Wrote results to",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("run output missing %q:\n%s", want, out)
		}
	}
	entries, err := os.ReadDir(resultsDir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one run directory, got %v (%v)", entries, err)
	}
	runDir := filepath.Join(resultsDir, entries[0].Name())
	for _, f := range []string{"manifest.json", "results.json", filepath.Join("views", "si.csv")} {
		if _, err := os.Stat(filepath.Join(runDir, f)); err != nil {
			t.Fatalf("missing %s: %v", f, err)
		}
	}
}

func TestCLI_RunUnknownSpeciesFails(t *testing.T) {
	home, _ := setupHome(t)
	bad := filepath.Join(home, "bad.csv")
	body := strings.Replace(fixtureCSV, "Iridaea cordata", "Iridaea nova", 2)
	if err := os.WriteFile(bad, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := execCmd("run", bad)
	if err == nil || !strings.Contains(err.Error(), "Iridaea nova") {
		t.Fatalf("expected unresolved species error, got %v", err)
	}
}

func TestCLI_ViewsListAndExport(t *testing.T) {
	home, table := setupHome(t)

	out := runCLI(t, "views", table)
	for _, want := range []string{"overlap", "fa_percent", "fa_rhodophyta", "control column dropped: C19:0"} {
		if !strings.Contains(out, want) {
			t.Fatalf("views output missing %q:\n%s", want, out)
		}
	}

	dest := filepath.Join(home, "si_abs.csv")
	runCLI(t, "views", table, "--export", "si_abs", "-o", dest)
	b, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(b), "-28.1") || !strings.Contains(string(b), "28.1") {
		t.Fatalf("si_abs export should hold absolute d13C values:\n%s", b)
	}

	long := runCLI(t, "views", table, "--export", "overlap", "--long")
	lines := strings.Split(strings.TrimSpace(long), "\n")
	if !strings.HasPrefix(lines[0], "key,species,phylum") {
		t.Fatalf("unexpected long header %q", lines[0])
	}
	// 5 overlap rows × 6 markers
	if len(lines) != 1+5*6 {
		t.Fatalf("long export has %d lines", len(lines))
	}

	if _, err := execCmd("views", table, "--export", "nope"); err == nil {
		t.Fatalf("expected unknown view error")
	}
}

func TestCLI_Describe(t *testing.T) {
	_, table := setupHome(t)
	out := runCLI(t, "describe", table, "--group-by", "Site", "--sample-rows", "2")
	for _, want := range []string{"[DATASET SUMMARY]", "[SCHEMA]", "Site=Palmer", "C16:0"} {
		if !strings.Contains(out, want) {
			t.Fatalf("describe output missing %q:\n%s", want, out)
		}
	}
}

func TestCLI_SummaryMarkdown(t *testing.T) {
	_, table := setupHome(t)
	out := runCLI(t, "--format", "markdown", "summary", table, "--view", "si", "--group-by", "phylum", "--markers", "d13C")
	if !strings.Contains(out, "### Summary of si") || !strings.Contains(out, "| Rhodophyta |") {
		t.Fatalf("unexpected summary output:\n%s", out)
	}
	if strings.Contains(out, "C16:0") {
		t.Fatalf("--markers should restrict the table:\n%s", out)
	}

	top := runCLI(t, "summary", table, "--top", "1")
	if !strings.Contains(top, "Top 1 markers of fa") {
		t.Fatalf("unexpected ranked output:\n%s", top)
	}
}

func TestCLI_PermanovaFactorsInOrder(t *testing.T) {
	_, table := setupHome(t)
	out := runCLI(t, "permanova", table, "--factor", "phylum", "--factor", "order", "--permutations", "9")
	i, j := strings.Index(out, "phylum"), strings.Index(out, "order")
	if i < 0 || j < 0 || i > j {
		t.Fatalf("expected phylum before order:\n%s", out)
	}
	if !strings.Contains(out, "9 perms") {
		t.Fatalf("permutation count not reported:\n%s", out)
	}
	if _, err := execCmd("permanova", table, "--factor", "genus"); err == nil {
		t.Fatalf("expected error for unknown factor")
	}
}

func TestCLI_DescribeBatchNameCollisions(t *testing.T) {
	home, _ := setupHome(t)
	for _, d := range []string{"d1", "d2"} {
		dir := filepath.Join(home, d)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "metrics.csv"), []byte("col1,col2\nA,1\nB,2\nC,3\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	outDir := filepath.Join(home, "profiles")
	runCLI(t, "describe", filepath.Join(home, "d*", "metrics.csv"), "--output-dir", outDir, "--sample-rows", "0", "-q")

	first, err := os.ReadFile(filepath.Join(outDir, "metrics.profile.md"))
	if err != nil {
		t.Fatalf("missing first profile: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "metrics__2.profile.md")); err != nil {
		t.Fatalf("missing second profile: %v", err)
	}
	if strings.Contains(string(first), "HEAD AND SAMPLE ROWS") {
		t.Fatalf("sample rows should be suppressed:\n%s", first)
	}

	if _, err := execCmd("describe", filepath.Join(home, "d*", "metrics.csv"), "-o", filepath.Join(home, "x.md")); err == nil {
		t.Fatalf("expected error for --output with several inputs")
	}
	if _, err := execCmd("describe", filepath.Join(home, "nothing*.csv")); err == nil {
		t.Fatalf("expected error when nothing matches")
	}
}

func TestCLI_RunWithoutIsotopes(t *testing.T) {
	home, _ := setupHome(t)
	lines := strings.Split(strings.TrimSpace(fixtureCSV), "\n")
	for i := 1; i < len(lines); i++ {
		f := strings.Split(lines[i], ",")
		f[4], f[5], f[6] = "NA", "NA", "NA"
		lines[i] = strings.Join(f, ",")
	}
	table := filepath.Join(home, "fa_only.csv")
	if err := os.WriteFile(table, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execCmd("run", table)
	if err == nil || !strings.Contains(err.Error(), "view has no rows") {
		t.Fatalf("expected empty view error, got %v", err)
	}
	for _, want := range []string{"PERMANOVA fa ~ phylum + order", "SIMPER fa by phylum", "nMDS fa", "✓ Run"} {
		if !strings.Contains(out, want) {
			t.Fatalf("run output missing %q:\n%s", want, out)
		}
	}

	views := runCLI(t, "views", table)
	if !strings.Contains(views, "fa_percent") || strings.Contains(views, "overlap") {
		t.Fatalf("unexpected views output:\n%s", views)
	}
	if _, err := execCmd("summary", table, "--view", "si"); err == nil {
		t.Fatalf("expected error for a view that was not built")
	}
}
