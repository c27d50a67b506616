package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kilianp07/crowdsense/app"
	"github.com/kilianp07/crowdsense/config"
)

var compareAlgorithms []string

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Run several algorithms on the same scenario",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withService(cmd, overrides, func(ctx context.Context, svc *app.Service) error {
			results, err := svc.Compare(ctx, compareAlgorithms)
			if err != nil {
				return err
			}
			return writeResults(cmd.OutOrStdout(), results)
		})
	},
}

func init() {
	compareCmd.Flags().StringSliceVar(&compareAlgorithms, "algorithms",
		[]string{config.AlgorithmRolling, config.AlgorithmGreedy, config.AlgorithmOracle}, "algorithms to run")
	compareCmd.Flags().IntVarP(&runWindow, "window", "w", 0, "window length (overrides the config)")
	compareCmd.Flags().StringVarP(&runPolicy, "policy", "p", "", "YAML or JSON scheduling policy file (replaces the configured policy)")
	addOutputFlags(compareCmd)
	rootCmd.AddCommand(compareCmd)
}
