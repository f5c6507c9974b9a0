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

	"github.com/spf13/cobra"

	"github.com/valpere/listforge/internal/prompt"
)

var (
	templatesDir    string
	templatesSample string
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Work with the generator and evaluator prompt templates",
}

var templatesCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate prompt templates and optionally render one property",
	Long: `Load the prompt templates from --dir (or the built-in set when empty) and
report any missing file, parse error, or undeclared variable. With --sample
the generator prompt for that property is printed.

Example:
  listforge templates check --dir ./prompts
  listforge templates check --sample sunny-flat.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := prompt.Load(templatesDir)
		if err != nil {
			return err
		}

		source := templatesDir
		if source == "" {
			source = "built-in"
		}
		fmt.Printf("Templates OK (%s): %s, %s\n", source, prompt.GeneratorFile, prompt.EvaluatorFile)

		if templatesSample == "" {
			return nil
		}
		props, err := readProperties(templatesSample)
		if err != nil {
			return err
		}
		for _, d := range props {
			p, err := r.RenderGenerator(d)
			if err != nil {
				return fmt.Errorf("failed to render %q: %w", d.Title, err)
			}
			fmt.Printf("\n--- %s [%s] ---\n%s\n", d.Title, p.LanguageCode, p.Text)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(templatesCmd)

	templatesCheckCmd.Flags().StringVar(&templatesDir, "dir", "", "Template directory (default: built-in templates)")
	templatesCheckCmd.Flags().StringVar(&templatesSample, "sample", "", "Property file to render through the generator template")

	templatesCmd.AddCommand(templatesCheckCmd)
}
