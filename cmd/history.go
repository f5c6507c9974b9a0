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
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/valpere/listforge/internal/store"
)

var (
	historyDBPath string
	historyLimit  int
	historyOffset int
	historyMemory bool
	historyLang   string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect generation history and listing memory",
	Long:  `List, inspect, and clear the SQLite generation history and listing memory.`,
}

func openHistory() (*store.Store, error) {
	db, err := store.New(historyDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent generation runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistory()
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListRuns(context.Background(), historyLimit, historyOffset)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}

		if len(runs) == 0 {
			fmt.Println("No generation runs recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tLANG\tSTATUS\tRETRIES\tSCORE\tCACHED\tCREATED\tTITLE")
		for _, r := range runs {
			score := "-"
			if r.TotalScore != nil {
				score = fmt.Sprintf("%d", *r.TotalScore)
			}
			status := r.Status
			if status == "" {
				status = "in_flight"
			}
			title := r.Title
			if len(title) > 40 {
				title = title[:37] + "..."
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%v\t%s\t%s\n",
				r.ID, r.Language, status, r.AttemptCount, score, r.Cached,
				r.CreatedAt.Format("2006-01-02 15:04"), title)
		}
		return w.Flush()
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a run with all of its attempts as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistory()
		if err != nil {
			return err
		}
		defer db.Close()

		run, err := db.GetRun(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("failed to load run %s: %w", args[0], err)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show generation and listing memory statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistory()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.Stats(context.Background())
		if err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}

		fmt.Printf("Requests:         %d\n", stats.Requests)
		statuses := make([]string, 0, len(stats.ByStatus))
		for s := range stats.ByStatus {
			statuses = append(statuses, s)
		}
		sort.Strings(statuses)
		for _, s := range statuses {
			fmt.Printf("  %-22s %d\n", s+":", stats.ByStatus[s])
		}
		fmt.Printf("Average retries:  %.2f\n", stats.AverageAttempts)
		fmt.Printf("Average score:    %.2f\n", stats.AverageScore)
		fmt.Printf("Memory entries:   %d\n", stats.MemoryEntries)
		fmt.Printf("Memory active:    %d\n", stats.MemoryActive)
		fmt.Printf("Memory usage:     %d\n", stats.MemoryUsage)
		return nil
	},
}

var historyMemoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "List cached accepted listings",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistory()
		if err != nil {
			return err
		}
		defer db.Close()

		entries, err := db.ListMemory(context.Background())
		if err != nil {
			return fmt.Errorf("failed to list entries: %w", err)
		}

		if len(entries) == 0 {
			fmt.Println("No entries in listing memory.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tLANG\tUSED\tLAST USED\tINVALID\tFINGERPRINT")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%v\t%s\n",
				e.ID, e.Language, e.UsageCount,
				e.LastUsed.Format("2006-01-02 15:04"), e.Invalidated, e.Fingerprint)
		}
		return w.Flush()
	},
}

var historyInvalidateCmd = &cobra.Command{
	Use:   "invalidate <fingerprint>",
	Short: "Stop reusing a cached listing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistory()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.InvalidateListing(context.Background(), args[0], historyLang); err != nil {
			return fmt.Errorf("failed to invalidate listing: %w", err)
		}
		fmt.Printf("Invalidated listing %s (%s)\n", args[0], historyLang)
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all generation runs, or listing memory with --memory",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistory()
		if err != nil {
			return err
		}
		defer db.Close()

		if historyMemory {
			n, err := db.ClearMemory(context.Background())
			if err != nil {
				return fmt.Errorf("failed to clear listing memory: %w", err)
			}
			fmt.Printf("Cleared %d entries from listing memory.\n", n)
			return nil
		}

		n, err := db.ClearHistory(context.Background())
		if err != nil {
			return fmt.Errorf("failed to clear history: %w", err)
		}
		fmt.Printf("Cleared %d generation runs.\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.PersistentFlags().StringVar(&historyDBPath, "db", "./data/listforge.db", "Database path")

	historyListCmd.Flags().IntVar(&historyLimit, "limit", 50, "Maximum runs to list")
	historyListCmd.Flags().IntVar(&historyOffset, "offset", 0, "Runs to skip")
	historyInvalidateCmd.Flags().StringVarP(&historyLang, "lang", "l", "en", "Language of the cached listing")
	historyClearCmd.Flags().BoolVar(&historyMemory, "memory", false, "Clear listing memory instead of run history")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyStatsCmd)
	historyCmd.AddCommand(historyMemoryCmd)
	historyCmd.AddCommand(historyInvalidateCmd)
	historyCmd.AddCommand(historyClearCmd)
}
