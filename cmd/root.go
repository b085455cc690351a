package cmd

import (
	"fmt"
	"os"

	logger "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/NamanBalaji/fetchq/internal/config"
	"github.com/NamanBalaji/fetchq/internal/engine"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "fetchq",
	Short: "Queue-driven download orchestrator",
	Long: `fetchq accepts download requests, runs them under a concurrency cap with
priority ordering, survives restarts, and pauses/resumes with the network.`,
	Version: "<unknown>",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetCount("verbose")
		switch verbose {
		case 0:
			logger.SetLevel(logger.WarnLevel)
		case 1:
			logger.SetLevel(logger.InfoLevel)
		case 2:
			logger.SetLevel(logger.DebugLevel)
		default: // 3 or more
			logger.SetLevel(logger.TraceLevel)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().CountP("verbose", "v", "Verbose output (use -v, -vv, or --verbose=N)")
}

// withEngine loads the configuration, brings an engine up, runs fn and
// shuts the engine down again.
func withEngine(fn func(*engine.Engine) error) error {
	cfg, err := config.GetConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	eng, err := engine.New(cfg, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	if err := eng.Init(); err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	defer func() {
		if err := eng.Shutdown(); err != nil {
			logger.Errorf("shutdown error: %v", err)
		}
	}()

	return fn(eng)
}
