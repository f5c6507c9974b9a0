/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/valpere/listforge/internal/config"
)

var version = "0.1.0"

var (
	cfgFile   string
	verbose   bool
	logFormat string

	v      = config.New()
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "listforge",
	Short: "LLM real-estate listing generator with automatic quality review",
	Long: `A CLI application that turns structured property descriptions into HTML
listing pages with a language model, scores each page with a second model
against a quality rubric, and regenerates until the score passes.

Supported backends: OpenAI, OpenRouter, Gemini, Ollama (LLM)

Use "listforge serve --help" for the HTTP API and
"listforge generate --help" for one-shot generation.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := newLogger(v.GetString("log.format"), verbose)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ./listforge.yaml if present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "Log format: json or console")

	_ = v.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// loadConfig reads and validates the configuration, then rebuilds the
// logger from the log section so a config file can change it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	l, err := newLogger(cfg.Log.Format, cfg.Log.Level == "debug")
	if err != nil {
		return nil, err
	}
	logger = l
	return cfg, nil
}

func newLogger(format string, debug bool) (*zap.Logger, error) {
	var zcfg zap.Config
	switch format {
	case "console":
		zcfg = zap.NewDevelopmentConfig()
		if !debug {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		}
	case "json", "":
		zcfg = zap.NewProductionConfig()
		if debug {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
	default:
		return nil, &config.ConfigurationError{Field: "log.format", Reason: fmt.Sprintf("must be json or console, got %q", format)}
	}
	zcfg.OutputPaths = []string{"stderr"}
	return zcfg.Build()
}
