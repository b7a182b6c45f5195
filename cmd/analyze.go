package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/flowstat/internal/config"
	"firestige.xyz/flowstat/internal/log"
	"firestige.xyz/flowstat/internal/metrics"
	"firestige.xyz/flowstat/internal/pipeline"
	"firestige.xyz/flowstat/internal/reporter"
	"firestige.xyz/flowstat/internal/source/file"
)

// analyzeOptions holds the analyze flags. Zero values leave the
// configuration untouched.
type analyzeOptions struct {
	input       string
	local       string
	outputDir   string
	workers     int
	ports       []int
	reporters   []string
	metricsFile string
}

func newAnalyzeCmd() *cobra.Command {
	var opts analyzeOptions

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Build flow statistics from a trace file",
		Long: `Read a pcap or pcapng trace and write flow statistics.

Results go to <input>.out/ unless an output directory is given. Frames that
cannot be decoded are counted and skipped; a trace that cannot be opened
or an invalid configuration aborts the run.

Examples:
  flowstat analyze -i trace.pcap                          # csv output, any host may initiate
  flowstat analyze -i trace.pcap -s 10.0.0.0/8            # only 10/8 hosts open TCP flows
  flowstat analyze -i trace.pcapng -s private -w 4        # RFC 1918 initiators, 4 workers
  flowstat analyze -i trace.pcap --port 53 --port 443 --reporter csv,npy,summary`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := runAnalyze(ctx, opts, cmd.OutOrStdout()); err != nil {
				exitWithError("analyze failed", err)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.input, "input", "i", "", "trace file to analyze (required)")
	f.StringVarP(&opts.local, "subnet", "s", "", `local network allowed to initiate TCP flows: CIDR, "private" or "any"`)
	f.StringVarP(&opts.outputDir, "output", "o", "", "output directory (default <input>.out)")
	f.IntVarP(&opts.workers, "workers", "w", 0, "flow table shards (1 = serial)")
	f.IntSliceVar(&opts.ports, "port", nil, "only keep frames with this source or destination port (repeatable)")
	f.StringSliceVar(&opts.reporters, "reporter", nil, "reporters to run: csv, npy, summary")
	f.StringVar(&opts.metricsFile, "metrics-file", "", "write prometheus metrics in textfile format")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

// loadAnalyzeConfig loads the config file and applies flag overrides.
func loadAnalyzeConfig(opts analyzeOptions) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	if opts.local != "" {
		cfg.Engine.Local = opts.local
	}
	if opts.outputDir != "" {
		cfg.Output.Dir = opts.outputDir
	}
	if opts.workers != 0 {
		cfg.Engine.Workers = opts.workers
	}
	if len(opts.ports) > 0 {
		cfg.Filter.Ports = opts.ports
	}
	if len(opts.reporters) > 0 {
		cfg.Output.Reporters = cfg.Output.Reporters[:0]
		for _, name := range opts.reporters {
			cfg.Output.Reporters = append(cfg.Output.Reporters, config.ReporterConfig{Name: name})
		}
	}
	if opts.metricsFile != "" {
		cfg.Output.MetricsFile = opts.metricsFile
	}

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runAnalyze(ctx context.Context, opts analyzeOptions, out io.Writer) error {
	cfg, err := loadAnalyzeConfig(opts)
	if err != nil {
		return err
	}

	if err := log.Init(cfg.Log); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Close()

	reporters, err := reporter.Build(cfg.Output.Reporters)
	if err != nil {
		return err
	}

	m := metrics.New()
	p, err := pipeline.NewBuilder().
		FromConfig(cfg).
		WithMetrics(m).
		Build()
	if err != nil {
		return err
	}

	src, err := file.Open(opts.input)
	if err != nil {
		return err
	}
	defer src.Close()

	log.GetLogger().WithFields(map[string]interface{}{
		"input":  src.Path(),
		"format": string(src.Format()),
	}).Info("trace opened")

	started := time.Now()
	res, runErr := p.Run(ctx, src)
	log.GetLogger().WithFields(map[string]interface{}{
		"input":  src.Path(),
		"frames": src.Frames(),
	}).Info("trace read")
	if res == nil {
		return runErr
	}

	run := reporter.NewRun(opts.input, cfg.Output.Dir, started, res)
	reportErr := reporter.ReportAll(ctx, run, reporters)
	if cfg.Output.MetricsFile != "" {
		reportErr = errors.Join(reportErr, m.WriteTextfile(cfg.Output.MetricsFile))
	}

	st := res.Stats
	fmt.Fprintf(out, "%s: %d frames (%d rejected, %d filtered), %d tcp flows, %d udp flows -> %s\n",
		opts.input, st.Read, st.Rejected, st.Filtered, st.TCPFlows, st.UDPFlows, run.OutputDir)

	if runErr != nil {
		return fmt.Errorf("trace processing stopped early: %w", runErr)
	}
	return reportErr
}
