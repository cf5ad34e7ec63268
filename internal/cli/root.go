package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"book-features/internal/app"
	"book-features/internal/config"
	"book-features/internal/logging"
)

var (
	cfgFile   string
	logLevel  string
	symbol    string
	appHandle *app.App
)

var rootCmd = &cobra.Command{
	Use:   "bookfeatures",
	Short: "Build order-book features and evaluate them walk-forward",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appHandle != nil {
			return nil
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if symbol != "" {
			cfg.Features.Symbol = symbol
		}

		logger := logging.NewLogger(cfg.Logging)
		appHandle = app.NewApp(cfg, logger)
		return nil
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")
	rootCmd.PersistentFlags().StringVar(&symbol, "symbol", "", "Override features.symbol")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(versionCmd)
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}
