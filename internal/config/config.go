package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Global configuration structure.
type Global struct {
	// Randomness and resampling
	Seed               uint64 `mapstructure:"seed" yaml:"seed"`
	Permutations       int    `mapstructure:"permutations" yaml:"permutations"`
	SimperPermutations int    `mapstructure:"simper_permutations" yaml:"simper_permutations"`
	Workers            int    `mapstructure:"workers" yaml:"workers"`

	// nMDS
	NMDSTries     int     `mapstructure:"nmds_tries" yaml:"nmds_tries"`
	NMDSMaxIter   int     `mapstructure:"nmds_max_iter" yaml:"nmds_max_iter"`
	NMDSTolerance float64 `mapstructure:"nmds_tolerance" yaml:"nmds_tolerance"`

	SimperThreshold float64 `mapstructure:"simper_threshold" yaml:"simper_threshold"`
	ClusterK        int     `mapstructure:"cluster_k" yaml:"cluster_k"`
	DiagnosticSims  int     `mapstructure:"diagnostic_sims" yaml:"diagnostic_sims"`
	AbsTransform    bool    `mapstructure:"abs_transform" yaml:"abs_transform"`

	// Input
	ControlColumn string `mapstructure:"control_column" yaml:"control_column"`
	Delimiter     string `mapstructure:"delimiter" yaml:"delimiter"`
	TaxonomyFile  string `mapstructure:"taxonomy_file" yaml:"taxonomy_file"`

	// Output
	OutputFormat string `mapstructure:"output_format" yaml:"output_format"`
	ResultsDir   string `mapstructure:"results_dir" yaml:"results_dir"`
}

var defaults = map[string]any{
	"seed":                20240101,
	"permutations":        999,
	"simper_permutations": 0,
	"workers":             0,
	"nmds_tries":          20,
	"nmds_max_iter":       200,
	"nmds_tolerance":      1e-4,
	"simper_threshold":    0.83,
	"cluster_k":           4,
	"diagnostic_sims":     250,
	"abs_transform":       true,
	"control_column":      "C19:0",
	"delimiter":           "",
	"taxonomy_file":       "",
	"output_format":       "ascii",
	"results_dir":         "",
}

// Keys lists every configuration key in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Dir is ~/.algamark.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".algamark"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.algamark/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults. Flags are applied by the caller.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("ALGAMARK")
	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		// optional read
		_ = v.ReadInConfig()
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects values no analysis can run with.
func (c *Global) Validate() error {
	switch {
	case c.Permutations < 0:
		return fmt.Errorf("config: permutations must be >= 0, got %d", c.Permutations)
	case c.SimperPermutations < 0:
		return fmt.Errorf("config: simper_permutations must be >= 0, got %d", c.SimperPermutations)
	case c.SimperThreshold <= 0 || c.SimperThreshold > 1:
		return fmt.Errorf("config: simper_threshold must be in (0, 1], got %v", c.SimperThreshold)
	case c.ClusterK < 1:
		return fmt.Errorf("config: cluster_k must be >= 1, got %d", c.ClusterK)
	case c.DiagnosticSims < 2:
		return fmt.Errorf("config: diagnostic_sims must be >= 2, got %d", c.DiagnosticSims)
	case len([]rune(c.Delimiter)) > 1 && c.Delimiter != `\t`:
		return fmt.Errorf("config: delimiter must be a single character, got %q", c.Delimiter)
	}
	switch strings.ToLower(c.OutputFormat) {
	case "", "ascii", "markdown", "md":
	default:
		return fmt.Errorf("config: output_format must be ascii or markdown, got %q", c.OutputFormat)
	}
	return nil
}

// DelimiterRune is the configured delimiter, 0 when it should be sniffed.
func (c *Global) DelimiterRune() rune {
	if c.Delimiter == `\t` {
		return '\t'
	}
	r := []rune(c.Delimiter)
	if len(r) == 0 {
		return 0
	}
	return r[0]
}

// Set parses val for key and stores it.
func (c *Global) Set(key, val string) error {
	switch key {
	case "seed":
		u, err := strconv.ParseUint(val, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid uint for seed: %w", err)
		}
		c.Seed = u
	case "permutations", "simper_permutations", "workers", "nmds_tries", "nmds_max_iter", "cluster_k", "diagnostic_sims":
		i, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid int for %s: %w", key, err)
		}
		*c.intField(key) = i
	case "nmds_tolerance", "simper_threshold":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid float for %s: %w", key, err)
		}
		if key == "nmds_tolerance" {
			c.NMDSTolerance = f
		} else {
			c.SimperThreshold = f
		}
	case "abs_transform":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid bool for abs_transform: %w", err)
		}
		c.AbsTransform = b
	case "control_column":
		c.ControlColumn = val
	case "delimiter":
		c.Delimiter = val
	case "taxonomy_file":
		c.TaxonomyFile = val
	case "output_format":
		c.OutputFormat = strings.ToLower(val)
	case "results_dir":
		c.ResultsDir = val
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return c.Validate()
}

func (c *Global) intField(key string) *int {
	switch key {
	case "permutations":
		return &c.Permutations
	case "simper_permutations":
		return &c.SimperPermutations
	case "workers":
		return &c.Workers
	case "nmds_tries":
		return &c.NMDSTries
	case "nmds_max_iter":
		return &c.NMDSMaxIter
	case "cluster_k":
		return &c.ClusterK
	default:
		return &c.DiagnosticSims
	}
}

// Lines renders the effective configuration as "key: value" lines in key order.
func (c *Global) Lines() []string {
	b, _ := yaml.Marshal(c)
	var m map[string]any
	_ = yaml.Unmarshal(b, &m)
	out := make([]string, 0, len(m))
	for _, k := range Keys() {
		out = append(out, fmt.Sprintf("%s: %v", k, m[k]))
	}
	return out
}
