// Package config loads and validates the run configuration.
//
// Configuration is YAML on disk, validated against an embedded CUE schema
// before unmarshalling so that out-of-range thresholds or unknown priority
// levels fail with a position-carrying diagnostic instead of silently
// producing a misconfigured run. Configuration errors are fatal; a run
// never starts with a config it could not fully understand.
package config

import (
	"cmp"
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"

	"github.com/refinery-project/refinery/internal/model"
)

//go:embed schema.cue
var schemaCUE string

// OpenAI configures the collaborator client. The API key falls back to
// the OPENAI_API_KEY environment variable when absent from the file.
type OpenAI struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Attempts       int    `yaml:"attempts"`
	BackoffSeconds int    `yaml:"backoff_seconds"`
}

// Timeout returns the per-call limit as a duration.
func (o OpenAI) Timeout() time.Duration {
	return time.Duration(o.TimeoutSeconds) * time.Second
}

// Backoff returns the initial retry backoff as a duration.
func (o OpenAI) Backoff() time.Duration {
	return time.Duration(o.BackoffSeconds) * time.Second
}

// Convergence holds the stopping-rule thresholds.
type Convergence struct {
	TokenChangeRatio     float64 `yaml:"token_change_ratio"`
	MaxNewP0             int     `yaml:"max_new_p0"`
	MaxNewP1             int     `yaml:"max_new_p1"`
	MaxSectionsModified  int     `yaml:"max_sections_modified"`
	ConsecutiveLowChange int     `yaml:"consecutive_low_change"`
	MinIterations        int     `yaml:"min_iterations"`
}

// Config is the full run configuration.
type Config struct {
	Input         string             `yaml:"input"`
	Workdir       string             `yaml:"workdir"`
	MaxIterations int                `yaml:"max_iterations"`
	OpenAI        OpenAI             `yaml:"openai"`
	Convergence   Convergence        `yaml:"convergence"`
	Passes        []model.PassConfig `yaml:"passes"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Workdir:       "refinery_work",
		MaxIterations: 3,
		OpenAI: OpenAI{
			Model:          "gpt-4o",
			TimeoutSeconds: 120,
			Attempts:       3,
			BackoffSeconds: 2,
		},
		Convergence: Convergence{
			TokenChangeRatio:     0.05,
			MaxNewP0:             0,
			MaxNewP1:             2,
			MaxSectionsModified:  2,
			ConsecutiveLowChange: 2,
			MinIterations:        1,
		},
		Passes: model.DefaultPasses(),
	}
}

// Load reads, validates, and unmarshals the configuration at path,
// layering it over the defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return Parse(path, data)
}

// Parse validates and unmarshals YAML config bytes. The filename is used
// in diagnostics only.
func Parse(filename string, data []byte) (Config, error) {
	if err := validateSchema(filename, data); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", filename, err)
	}

	cfg := Default()
	// Zero out so a partial passes list replaces the default table rather
	// than merging into it element-wise.
	base := cfg.Passes
	cfg.Passes = nil
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", filename, err)
	}
	if cfg.Passes == nil {
		cfg.Passes = base
	}
	applyDefaults(&cfg)

	if cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	for _, p := range cfg.Passes {
		if err := p.Validate(); err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", filename, err)
		}
	}
	return cfg, nil
}

func validateSchema(filename string, data []byte) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	file, err := cueyaml.Extract(filename, data)
	if err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	val := ctx.BuildFile(file)
	if err := val.Err(); err != nil {
		return fmt.Errorf("build yaml: %w", err)
	}

	if err := schema.Unify(val).Validate(cue.Final()); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// applyDefaults fills fields a sparse pass override left empty, and any
// scalar the file set to zero.
func applyDefaults(cfg *Config) {
	def := Default()
	cfg.Workdir = cmp.Or(cfg.Workdir, def.Workdir)
	cfg.MaxIterations = cmp.Or(cfg.MaxIterations, def.MaxIterations)
	cfg.OpenAI.Model = cmp.Or(cfg.OpenAI.Model, def.OpenAI.Model)
	cfg.OpenAI.TimeoutSeconds = cmp.Or(cfg.OpenAI.TimeoutSeconds, def.OpenAI.TimeoutSeconds)
	cfg.OpenAI.Attempts = cmp.Or(cfg.OpenAI.Attempts, def.OpenAI.Attempts)
	cfg.OpenAI.BackoffSeconds = cmp.Or(cfg.OpenAI.BackoffSeconds, def.OpenAI.BackoffSeconds)
	cfg.Convergence.TokenChangeRatio = cmp.Or(cfg.Convergence.TokenChangeRatio, def.Convergence.TokenChangeRatio)
	cfg.Convergence.MaxNewP1 = cmp.Or(cfg.Convergence.MaxNewP1, def.Convergence.MaxNewP1)
	cfg.Convergence.MaxSectionsModified = cmp.Or(cfg.Convergence.MaxSectionsModified, def.Convergence.MaxSectionsModified)
	cfg.Convergence.ConsecutiveLowChange = cmp.Or(cfg.Convergence.ConsecutiveLowChange, def.Convergence.ConsecutiveLowChange)
	cfg.Convergence.MinIterations = cmp.Or(cfg.Convergence.MinIterations, def.Convergence.MinIterations)

	defaults := map[int]model.PassConfig{}
	for _, p := range def.Passes {
		defaults[p.ID] = p
	}
	for i := range cfg.Passes {
		d, ok := defaults[cfg.Passes[i].ID]
		if !ok {
			continue
		}
		cfg.Passes[i].Focus = cmp.Or(cfg.Passes[i].Focus, d.Focus)
		if cfg.Passes[i].IssueTypes == nil {
			cfg.Passes[i].IssueTypes = d.IssueTypes
		}
		cfg.Passes[i].MaxRounds = cmp.Or(cfg.Passes[i].MaxRounds, d.MaxRounds)
		cfg.Passes[i].PriorityFloor = cmp.Or(cfg.Passes[i].PriorityFloor, d.PriorityFloor)
	}
}
