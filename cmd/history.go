package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/crowdsense/core/runlog"
)

var (
	histKind      string
	histRun       string
	histAlgorithm string
	histSince     time.Duration
	histLimit     int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List persisted window and run reports",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if !cfg.RunLog.Enabled() {
			return fmt.Errorf("run log is disabled")
		}
		store, err := runlog.Open(cfg.RunLog.Options())
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		q := runlog.Query{Kind: runlog.Kind(histKind), RunID: histRun, Algorithm: histAlgorithm, Limit: histLimit}
		if histSince > 0 {
			q.Start = time.Now().Add(-histSince)
		}
		recs, err := store.Query(cmd.Context(), q)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "TIME\tRUN\tALGORITHM\tKIND\tDETAIL")
		for _, r := range recs {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Timestamp.Format(time.RFC3339), r.RunID, r.Algorithm, r.Kind, detail(r))
		}
		return tw.Flush()
	},
}

func detail(r runlog.Record) string {
	switch {
	case r.Window != nil:
		w := r.Window
		return fmt.Sprintf("window %d [%d,%d) %s cost %.3f delivered %d/%d", w.Window, w.Start, w.End, w.Status, w.WindowCost, w.Delivered, w.Targets)
	case r.Run != nil:
		res := r.Run
		return fmt.Sprintf("%s %d/%d delivered, total %.3f, max %.3f", res.Outcome, res.DeliveredCount(), len(res.Delivered), res.TotalCost, res.MaxCost)
	default:
		return ""
	}
}

func init() {
	historyCmd.Flags().StringVar(&histKind, "kind", "", "window or run")
	historyCmd.Flags().StringVar(&histRun, "run", "", "run id")
	historyCmd.Flags().StringVar(&histAlgorithm, "algorithm", "", "algorithm name")
	historyCmd.Flags().DurationVar(&histSince, "since", 0, "only records newer than this")
	historyCmd.Flags().IntVar(&histLimit, "limit", 50, "most recent records to show, 0 for all")
	rootCmd.AddCommand(historyCmd)
}
