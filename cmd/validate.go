package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"firestige.xyz/flowstat/internal/config"
	"firestige.xyz/flowstat/internal/flow"
	"firestige.xyz/flowstat/internal/reporter"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Long: `Validate a configuration file without reading any trace.

The file is loaded the same way analyze loads it, environment overrides
included, and every configured reporter is initialised.

Examples:
  flowstat validate -c flowstat.yml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configFile == "" {
				exitWithError("--config is required", nil)
			}
			if err := runValidate(configFile, cmd.OutOrStdout()); err != nil {
				exitWithError("INVALID", err)
			}
			return nil
		},
	}
}

func runValidate(path string, out io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	reporters, err := reporter.Build(cfg.Output.Reporters)
	if err != nil {
		return err
	}
	classifier, err := flow.ParseClassifier(cfg.Engine.Local)
	if err != nil {
		return err
	}

	names := make([]string, len(reporters))
	for i, r := range reporters {
		names[i] = r.Name()
	}
	fmt.Fprintf(out, "VALID: %s: local=%s workers=%d udp_idle_timeout=%s ports=%v reporters=%s\n",
		path, classifier, cfg.Engine.Workers, cfg.Engine.UDPIdleTimeout, cfg.Filter.Ports,
		strings.Join(names, ","))
	return nil
}
