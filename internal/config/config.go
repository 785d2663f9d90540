// Package config loads the optional alchemy.hcl file that selects the
// training command, feature gates, rewrite strategy and logging.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/agentic-research/alchemy/internal/ctxlog"
	"github.com/agentic-research/alchemy/internal/rewrite"
	"github.com/agentic-research/alchemy/internal/runner"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// DefaultPath is looked up in the working directory when no --config is given.
const DefaultPath = "alchemy.hcl"

// Config is the resolved configuration.
type Config struct {
	Run      Run
	Features Features
	Rewrite  Rewrite
	Log      Log
}

// Run selects the training command and batch size.
type Run struct {
	Interpreter string
	Script      string
	Batch       bool
	Num         int
}

// Features gates optional behaviour.
type Features struct {
	BatchMode  bool
	DictParams bool
}

// Rewrite controls how edits are written back.
type Rewrite struct {
	Strategy       string
	ValidateWrites bool
}

// Log configures the process logger.
type Log struct {
	Level  string
	Format string
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Run: Run{
			Interpreter: runner.DefaultInterpreter,
			Script:      runner.DefaultScript,
			Num:         1,
		},
		Features: Features{BatchMode: true, DictParams: true},
		Rewrite:  Rewrite{Strategy: string(rewrite.StrategySplice)},
		Log:      Log{Level: "info", Format: "text"},
	}
}

// file mirrors the HCL layout. Every attribute is a pointer so an omitted
// attribute keeps its default.
type file struct {
	Run      *runBlock      `hcl:"run,block"`
	Features *featuresBlock `hcl:"features,block"`
	Rewrite  *rewriteBlock  `hcl:"rewrite,block"`
	Log      *logBlock      `hcl:"log,block"`
}

type runBlock struct {
	Interpreter *string `hcl:"interpreter,optional"`
	Script      *string `hcl:"script,optional"`
	Batch       *bool   `hcl:"batch,optional"`
	Num         *int    `hcl:"num,optional"`
}

type featuresBlock struct {
	BatchMode  *bool `hcl:"batch_mode,optional"`
	DictParams *bool `hcl:"dict_params,optional"`
}

type rewriteBlock struct {
	Strategy       *string `hcl:"strategy,optional"`
	ValidateWrites *bool   `hcl:"validate_writes,optional"`
}

type logBlock struct {
	Level  *string `hcl:"level,optional"`
	Format *string `hcl:"format,optional"`
}

// Load reads path and overlays it on Default. A missing file is only an
// error when required is true.
func Load(ctx context.Context, path string, required bool) (*Config, error) {
	logger := ctxlog.FromContext(ctx)

	src, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			logger.Debug("no config file, using defaults", "path", path)
			return Default(), nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg, err := Parse(src, path)
	if err != nil {
		return nil, err
	}
	logger.Debug("config loaded", "path", path)
	return cfg, nil
}

// Parse decodes HCL source and validates the result.
func Parse(src []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}

	var raw file
	if diags := gohcl.DecodeBody(hclFile.Body, nil, &raw); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	cfg := Default()
	raw.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return cfg, nil
}

func (f *file) apply(cfg *Config) {
	if r := f.Run; r != nil {
		set(&cfg.Run.Interpreter, r.Interpreter)
		set(&cfg.Run.Script, r.Script)
		set(&cfg.Run.Batch, r.Batch)
		set(&cfg.Run.Num, r.Num)
	}
	if ft := f.Features; ft != nil {
		set(&cfg.Features.BatchMode, ft.BatchMode)
		set(&cfg.Features.DictParams, ft.DictParams)
	}
	if rw := f.Rewrite; rw != nil {
		set(&cfg.Rewrite.Strategy, rw.Strategy)
		set(&cfg.Rewrite.ValidateWrites, rw.ValidateWrites)
	}
	if l := f.Log; l != nil {
		set(&cfg.Log.Level, l.Level)
		set(&cfg.Log.Format, l.Format)
	}
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// Validate rejects values the rest of the program cannot act on.
func (c *Config) Validate() error {
	var errs []error
	if c.Run.Interpreter == "" {
		errs = append(errs, errors.New("run.interpreter must not be empty"))
	}
	if c.Run.Script == "" {
		errs = append(errs, errors.New("run.script must not be empty"))
	}
	if c.Run.Num < 1 {
		errs = append(errs, fmt.Errorf("run.num must be at least 1, got %d", c.Run.Num))
	}
	if c.Run.Batch && !c.Features.BatchMode {
		errs = append(errs, errors.New("run.batch requires features.batch_mode"))
	}
	if _, err := rewrite.ParseStrategy(c.Rewrite.Strategy); err != nil {
		errs = append(errs, fmt.Errorf("rewrite.strategy: %w", err))
	}
	if _, err := ctxlog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q (want text or json)", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Strategy returns the parsed rewrite strategy. Call after Validate.
func (c *Config) Strategy() rewrite.Strategy {
	s, _ := rewrite.ParseStrategy(c.Rewrite.Strategy)
	return s
}
