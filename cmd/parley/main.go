package main

import (
	"fmt"
	"os"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/spf13/cobra"

	"parley/config"
	"parley/core"
	"parley/engine/anthropic"
	"parley/engine/openai"
	"parley/logging"
)

var (
	configPath string
	modelFlag  string
	workingDir string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "parley - multi-frontend chat client for agent engines",
	Long: `parley drives an agent engine through a shared session layer and
streams replies into the frontend of your choice.

Run without arguments to start the interactive terminal interface.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		eng, err := buildEngine(cfg)
		if err != nil {
			return err
		}
		return runTUI(cfg, eng, logger)
	},
}

func loadConfig() (*config.Config, logging.Logger, error) {
	path := configPath
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if modelFlag != "" {
		cfg.Model = modelFlag
	}
	if workingDir != "" {
		cfg.WorkingDir = workingDir
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	level := logging.ParseLevel(cfg.LogLevel)
	var logger logging.Logger
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		logger = logging.NewLogger(&logging.LoggerConfig{Level: level, Format: "text", Output: f})
	} else {
		logger = logging.NewLogger(&logging.LoggerConfig{Level: level, Format: "text", Output: os.Stderr})
	}
	return cfg, logger, nil
}

func buildEngine(cfg *config.Config) (core.Engine, error) {
	switch cfg.Provider {
	case "anthropic":
		return anthropic.New(func(o *anthropic.Options) {
			if cfg.Model != "" {
				o.Model = sdkanthropic.Model(cfg.Model)
			}
			o.APIKey = cfg.APIKey
		}), nil
	case "openai":
		return openai.New(func(o *openai.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
			o.APIKey = cfg.APIKey
		}), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.parley/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "override the configured model")
	rootCmd.PersistentFlags().StringVarP(&workingDir, "dir", "d", "", "working directory for new sessions")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(serveCmd, sessionsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
