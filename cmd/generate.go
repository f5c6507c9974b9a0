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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/valpere/listforge/internal/language"
)

var (
	genInputFile  string
	genOutputFile string
	genLang       string
	genJSON       bool
	genNoCache    bool
)

// errQualityRejected is returned when every attempt scored below the threshold.
var errQualityRejected = errors.New("quality rejected")

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate one listing from a property file",
	Long: `Generate a listing page for a single property description (JSON or YAML).

The HTML is written to --output, or stdout when --output is "-". With --json
the full outcome (evaluation, retries, attempt log) is written instead.

Example:
  listforge generate -i sunny-flat.json -o sunny-flat.html
  listforge generate -i casa.yaml --lang pt --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		props, err := readProperties(genInputFile)
		if err != nil {
			return err
		}
		if len(props) != 1 {
			return fmt.Errorf("expected one property in %s, found %d (use batch for lists)", genInputFile, len(props))
		}
		d := props[0]
		if genLang != "" {
			d.Language = language.Normalize(genLang)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		st, err := buildStack(ctx, cfg, genNoCache)
		if err != nil {
			return err
		}
		defer st.Close()

		out, err := st.svc.Generate(ctx, d)
		if err != nil {
			return err
		}
		res := out.Result

		var payload []byte
		if genJSON {
			payload, err = json.MarshalIndent(newBatchOutput(out, nil), "", "  ")
			if err != nil {
				return err
			}
			payload = append(payload, '\n')
		} else if res.Accepted() {
			payload = []byte(res.HTML + "\n")
		}

		if len(payload) > 0 {
			if err := writeOutput(genOutputFile, payload); err != nil {
				return err
			}
		}

		if !res.Accepted() {
			for _, e := range res.Log {
				fmt.Fprintf(os.Stderr, "attempt %d: total_score=%d failing=%v\n", e.Attempt, e.TotalScore, e.FailingCriteria)
			}
			return fmt.Errorf("%w: %s", errQualityRejected, res.Reason)
		}

		cached := ""
		if out.Cached {
			cached = " (from cache)"
		}
		fmt.Fprintf(os.Stderr, "Listing accepted with score %d after %d rejected attempt(s)%s [request %s]\n",
			res.Evaluation.TotalScore, res.AttemptCount, cached, out.RequestID)
		if out.LanguageCheck != nil && out.LanguageCheck.Mismatch() {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", out.LanguageCheck)
		}
		return nil
	},
}

func writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringVarP(&genInputFile, "input", "i", "", "Property file, JSON or YAML (required)")
	generateCmd.Flags().StringVarP(&genOutputFile, "output", "o", "-", "Output file for the HTML listing")
	generateCmd.Flags().StringVarP(&genLang, "lang", "l", "", "Override the property language (en, pt, es)")
	generateCmd.Flags().BoolVar(&genJSON, "json", false, "Write the full outcome as JSON instead of HTML")
	generateCmd.Flags().BoolVar(&genNoCache, "no-cache", false, "Always generate, ignoring cached listings")

	generateCmd.MarkFlagRequired("input")
}
