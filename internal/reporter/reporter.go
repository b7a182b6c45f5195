// Package reporter writes finished flow tables to output files.
package reporter

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/multierr"

	"firestige.xyz/flowstat/internal/config"
	"firestige.xyz/flowstat/internal/log"
	"firestige.xyz/flowstat/internal/pipeline"
)

// Run describes one finished analysis handed to reporters.
type Run struct {
	ID        string
	Input     string
	OutputDir string
	StartedAt time.Time
	Result    *pipeline.Result
}

// NewRun wraps a pipeline result with a fresh run id.
func NewRun(input, outputDir string, started time.Time, res *pipeline.Result) *Run {
	if outputDir == "" {
		outputDir = DefaultOutputDir(input)
	}
	return &Run{
		ID:        uuid.NewString(),
		Input:     input,
		OutputDir: outputDir,
		StartedAt: started,
		Result:    res,
	}
}

// Reporter writes a run to some destination.
type Reporter interface {
	Name() string
	// Init configures the reporter from its options map.
	Init(cfg map[string]any) error
	Report(ctx context.Context, run *Run) error
	// Files lists the paths written by the last Report.
	Files() []string
	Close() error
}

// decodeOptions decodes a reporter options map into out, rejecting
// unknown keys.
func decodeOptions(cfg map[string]any, out any) error {
	if len(cfg) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(cfg)
}

// Build creates and initialises the configured reporters.
func Build(cfgs []config.ReporterConfig) ([]Reporter, error) {
	reporters := make([]Reporter, 0, len(cfgs))
	for _, rc := range cfgs {
		r, err := New(rc.Name)
		if err != nil {
			return nil, err
		}
		if err := r.Init(rc.Config); err != nil {
			return nil, fmt.Errorf("reporter %s: %w", rc.Name, err)
		}
		reporters = append(reporters, r)
	}
	return reporters, nil
}

// ReportAll creates the output directory and runs every reporter. One
// failing reporter does not stop the others; all errors, including
// close errors, are combined.
func ReportAll(ctx context.Context, run *Run, reporters []Reporter) error {
	if err := os.MkdirAll(run.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	logger := log.GetLogger().WithField("prefix", "reporter")
	var errs error
	for _, r := range reporters {
		if err := r.Report(ctx, run); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("reporter %s: %w", r.Name(), err))
			continue
		}
		for _, f := range r.Files() {
			logger.WithField("reporter", r.Name()).Infof("wrote %s", f)
		}
	}
	for _, r := range reporters {
		if err := r.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close reporter %s: %w", r.Name(), err))
		}
	}
	return errs
}

// DefaultOutputDir returns the output directory used when none is
// configured: the input path with ".out" appended.
func DefaultOutputDir(input string) string {
	return input + ".out"
}
