package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/andresmejia3/facecurator/internal/utils"
	"github.com/spf13/cobra"
)

var (
	resetDB      bool
	resetResults bool
	resetDebug   bool
	resetResDir  string
	resetDbgDir  string
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset system state (Database, Results, Debug Crops)",
	Long:  "Clears curation state. By default, it resets everything that is configured. Use flags to clear specific components.",
	Run: func(cmd *cobra.Command, args []string) {
		// If no flags are set, default to clearing EVERYTHING
		if !resetDB && !resetResults && !resetDebug {
			resetDB = DB != nil
			resetResults = true
			resetDebug = true
		}

		resultsDir := appConfig.ResultsDir
		if cmd.Flags().Changed("results-dir") {
			resultsDir = resetResDir
		}
		debugDir := appConfig.DebugDir
		if cmd.Flags().Changed("debug-dir") {
			debugDir = resetDbgDir
		}

		reader := bufio.NewReader(os.Stdin)

		if resetDB {
			if err := requireDB(); err != nil {
				utils.Die("Cannot reset database", err, nil)
			}
			if confirm(reader, "⚠️  Are you sure you want to DROP all curation tables?") {
				fmt.Println("🗑️  Clearing Database...")
				if err := DB.Reset(cmd.Context()); err != nil {
					utils.Die("Failed to reset database", err, nil)
				}
			}
		}

		if resetResults && resultsDir != "" {
			if confirm(reader, fmt.Sprintf("⚠️  Are you sure you want to delete %s and %s?", resultsDir, appConfig.OutputPath)) {
				fmt.Println("🗑️  Clearing Results (copied clips, results file)...")
				removeDir(resultsDir)
				removeFile(appConfig.OutputPath)
			}
		}

		if resetDebug && debugDir != "" {
			if confirm(reader, fmt.Sprintf("⚠️  Are you sure you want to delete all debug crops in %s?", debugDir)) {
				fmt.Println("🗑️  Clearing Debug Crops...")
				removeDir(debugDir)
			}
		}

		fmt.Println("✨ System Reset Complete.")
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetDB, "history", false, "Clear PostgreSQL curation history")
	resetCmd.Flags().BoolVar(&resetResults, "results", false, "Clear copied clips and the results file")
	resetCmd.Flags().BoolVar(&resetDebug, "debug", false, "Clear debug cluster crops")
	resetCmd.Flags().StringVar(&resetResDir, "results-dir", "", "Results directory (default: from config)")
	resetCmd.Flags().StringVar(&resetDbgDir, "debug-dir", "", "Debug crop directory (default: from config)")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removeDir(path string) {
	if err := os.RemoveAll(path); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}

func removeFile(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
