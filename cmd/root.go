package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	cfgpkg "github.com/KaramelBytes/algamark-cli/internal/config"
	"github.com/KaramelBytes/algamark-cli/internal/pipeline"
	"github.com/KaramelBytes/algamark-cli/internal/report"
)

var (
	// Global flags
	cfgFile      string
	debug        bool
	flagFormat   string
	flagDelim    string
	flagTaxonomy string
	flagControl  string

	// Loaded configuration
	cfg *cfgpkg.Global
	log = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "algamark",
	Short: "algamark: biomarker statistics for Antarctic macroalgae",
	Long: `algamark reads one wide table of fatty-acid and stable-isotope measurements, derives
taxonomy-annotated views and runs group summaries, Ward clustering, PERMANOVA, SIMPER,
nMDS, PCA and a log-scale ANOVA with Tukey comparisons.`,
	SilenceUsage: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	defer func() { _ = log.Sync() }()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.algamark/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "", "table format: ascii | markdown (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagDelim, "delimiter", "", "input delimiter: ',' | ';' | 'tab' (sniffed if omitted)")
	rootCmd.PersistentFlags().StringVar(&flagTaxonomy, "taxonomy", "", "YAML species table replacing the built-in taxonomy")
	rootCmd.PersistentFlags().StringVar(&flagControl, "control-column", "", "internal-standard column to drop (overrides config)")
}

func loadConfig() {
	log = newLogger(debug)
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		return
	}
	cfg = c

	// Apply CLI overrides if provided
	f := rootCmd.PersistentFlags()
	if f.Changed("format") {
		cfg.OutputFormat = flagFormat
	}
	if f.Changed("delimiter") {
		cfg.Delimiter = flagDelim
		if flagDelim == "tab" {
			cfg.Delimiter = `\t`
		}
	}
	if f.Changed("taxonomy") {
		cfg.TaxonomyFile = flagTaxonomy
	}
	if f.Changed("control-column") {
		cfg.ControlColumn = flagControl
	}
}

func newLogger(debug bool) *zap.Logger {
	var zc zap.Config
	if debug {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	l, err := zc.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// settings returns the loaded configuration, falling back to defaults.
func settings() (*cfgpkg.Global, error) {
	if cfg != nil {
		return cfg, nil
	}
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg = c
	return cfg, nil
}

func outputMode() (report.Mode, error) {
	c, err := settings()
	if err != nil {
		return report.ASCII, err
	}
	return report.ParseMode(c.OutputFormat)
}

func newRunner() (*pipeline.Runner, error) {
	c, err := settings()
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return pipeline.NewRunner(log, pipeline.FromConfig(c)), nil
}
