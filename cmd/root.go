package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile string
	timeout time.Duration

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:              "cq [paths...]",
	Short:            "cq - structural pattern search for C/C++",
	TraverseChildren: true, // Prioritize subcommands
	Run: func(cmd *cobra.Command, args []string) {
		// no subcommand
		if len(args) == 0 {
			// display help when only 'cq' is entered
			_ = cmd.Help()
			return
		}
		// Format: cq -p PATTERN [path1 path2 ...] => behaves like the search subcommand
		searchCmd.Run(searchCmd, args)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	var err error
	logger, err = zap.NewProduction()
	if err != nil {
		logger = zap.NewNop()
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to .cq.yaml")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "search timeout")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(cfgCmd)
}
