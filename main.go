package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Aafimalek/animation-genai/config"
	"github.com/Aafimalek/animation-genai/logging"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

var (
	configPath string
	logLevel   string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger

	rootCmd = &cobra.Command{
		Use:   "animgen",
		Short: "Generate Manim animations from a text prompt with an LLM",
		Long: `animgen asks a language model for a Manim scene, renders it, and when
rendering fails feeds the diagnosed error back to the model until the scene
renders or the attempt budget runs out.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "shorthand for --log-level=debug")

	rootCmd.AddCommand(generateCmd, renderCmd, fixCmd, serveCmd, pruneCmd, versionCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}
	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	if verbose {
		level = "debug"
	}
	logger, err = logging.New(level, cfg.Log.Format)
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(logger)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// A give-up has already been reported on stdout.
		if !errors.Is(err, errGaveUp) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	// Needs no configuration.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "animgen", version)
	},
}
