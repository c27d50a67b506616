package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kilianp07/crowdsense/app"
	"github.com/kilianp07/crowdsense/config"
	"github.com/kilianp07/crowdsense/core/model"
	"github.com/kilianp07/crowdsense/core/scheduler"
	"github.com/kilianp07/crowdsense/pkg/export"
)

var (
	runAlgorithm string
	runWindow    int
	runPolicy    string
	outPath      string
	outFormat    string
	withActions  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Schedule the configured scenario once",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withService(cmd, overrides, func(ctx context.Context, svc *app.Service) error {
			res, err := svc.Run(ctx)
			if err != nil {
				return err
			}
			return writeResults(cmd.OutOrStdout(), []*model.RunResult{res})
		})
	},
}

func init() {
	runCmd.Flags().StringVarP(&runAlgorithm, "algorithm", "a", "", "rolling, greedy or oracle (overrides the config)")
	runCmd.Flags().IntVarP(&runWindow, "window", "w", 0, "window length (overrides the config)")
	runCmd.Flags().StringVarP(&runPolicy, "policy", "p", "", "YAML or JSON scheduling policy file (replaces the configured policy)")
	addOutputFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func addOutputFlags(c *cobra.Command) {
	c.Flags().StringVarP(&outPath, "out", "o", "", "output file, stdout when empty")
	c.Flags().StringVarP(&outFormat, "format", "f", "summary", "summary, json, csv, actions or html")
}

// overrides applies the command line flags to cfg. --window wins over the
// window length of a --policy file.
func overrides(cfg *config.Config) error {
	if runPolicy != "" {
		p, err := scheduler.LoadPolicy(runPolicy)
		if err != nil {
			return fmt.Errorf("policy %s: %w", runPolicy, err)
		}
		if p.WindowLength == 0 {
			p.WindowLength = cfg.Scheduler.Policy.WindowLength
		}
		cfg.Scheduler.Policy = p
	}
	if runAlgorithm != "" {
		cfg.Scheduler.Algorithm = runAlgorithm
	}
	if runWindow > 0 {
		cfg.Scheduler.Policy.WindowLength = runWindow
	}
	return nil
}

func writeResults(stdout io.Writer, results []*model.RunResult) (err error) {
	w := stdout
	if outPath != "" {
		f, cerr := os.Create(outPath)
		if cerr != nil {
			return cerr
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		w = f
	}
	switch strings.ToLower(outFormat) {
	case "summary":
		return export.WriteSummaryCSV(w, results)
	case "json":
		return export.WriteJSON(w, results)
	case "csv":
		return export.WriteCSV(w, results)
	case "actions":
		for _, r := range results {
			if err := export.WriteActionsCSV(w, r); err != nil {
				return err
			}
		}
		return nil
	case "html":
		return export.WriteHTML(w, results)
	default:
		return fmt.Errorf("unknown format %q", outFormat)
	}
}
