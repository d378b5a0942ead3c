package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/cqlang/cq/internal/config"
)

// initCmd: cq init
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default .cq.yaml configuration file",
	Run: func(cmd *cobra.Command, args []string) {
		if err := initConfigurationFile(cfgFile); err != nil {
			logger.Error("error initializing config file", zap.Error(err))
			return
		}
		fmt.Printf("Configuration file created/updated: %s\n", configPathOrDefault(cfgFile))
	},
}

func configPathOrDefault(path string) string {
	if path == "" {
		return ".cq.yaml"
	}
	return path
}

func initConfigurationFile(configurationPath string) error {
	configurationPath = configPathOrDefault(configurationPath)

	d, err := yaml.Marshal(config.Default())
	if err != nil {
		return err
	}

	f, err := os.Create(configurationPath)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(d)
	return err
}
