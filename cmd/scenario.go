package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kilianp07/crowdsense/core/scenario"
	"github.com/kilianp07/crowdsense/infra/logger"
)

var (
	genSeed    uint64
	genPhones  int
	genHorizon int
	genOut     string
)

var scenarioCmd = &cobra.Command{
	Use:   "scenario",
	Short: "Scenario related commands",
}

var scenarioGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Simulate the crossroad mobility model and write a static fixture",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := scenario.DefaultGeneratorConfig()
		cfg.Seed = genSeed
		cfg.Phones = genPhones
		cfg.Horizon = genHorizon
		cfg.StartTime.Max = min(cfg.StartTime.Max, genHorizon-1)
		g, err := scenario.NewGenerator(cfg, logger.New("generator"))
		if err != nil {
			return err
		}
		return writeFixture(cmd, g)
	},
}

var scenarioExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the configured scenario as a static fixture",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		p, err := scenario.New(cfg.Scenario, logger.New("scenario"))
		if err != nil {
			return err
		}
		return writeFixture(cmd, p)
	},
}

func writeFixture(cmd *cobra.Command, p scenario.Provider) error {
	f, err := scenario.Export(p)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(f)
	if err != nil {
		return err
	}
	if genOut == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(genOut, data, 0o644); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d contacts over %d steps to %s\n", len(f.Contacts), f.Horizon, genOut)
	return err
}

func init() {
	scenarioGenerateCmd.Flags().Uint64Var(&genSeed, "seed", 1, "random seed")
	scenarioGenerateCmd.Flags().IntVar(&genPhones, "phones", 50, "number of phones")
	scenarioGenerateCmd.Flags().IntVar(&genHorizon, "horizon", 1000, "number of time steps")
	scenarioCmd.PersistentFlags().StringVarP(&genOut, "out", "o", "", "output file, stdout when empty")
	scenarioCmd.AddCommand(scenarioGenerateCmd, scenarioExportCmd)
	rootCmd.AddCommand(scenarioCmd)
}
