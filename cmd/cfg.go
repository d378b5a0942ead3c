package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/cqlang/cq/internal/config"
)

var cfgCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved .cq.yaml configuration",
	Run: func(cmd *cobra.Command, args []string) {
		runPrintConfig(logger, cfgFile)
	},
}

func runPrintConfig(logger *zap.Logger, path string) {
	resolved := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			logger.Error("could not load config", zap.Error(err))
			return
		}
		resolved = loaded
	}

	d, err := yaml.Marshal(resolved)
	if err != nil {
		logger.Error("could not marshal config", zap.Error(err))
		return
	}
	fmt.Print(string(d))
}
