package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/andresmejia3/facecurator/internal/store"
	"github.com/andresmejia3/facecurator/internal/utils"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	listBatch  string
	listLatest bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List curation batches, or the clips accepted in one batch",
	Run: func(cmd *cobra.Command, args []string) {
		if err := requireDB(); err != nil {
			utils.Die("Cannot list curation history", err, nil)
		}
		runList(cmd)
	},
}

func init() {
	listCmd.Flags().StringVarP(&listBatch, "batch", "b", "", "Show the clips accepted in this batch")
	listCmd.Flags().BoolVar(&listLatest, "latest", false, "Show the clips accepted in the most recent batch")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command) {
	ctx := cmd.Context()

	batchID := listBatch
	if listLatest {
		latest, err := DB.LatestBatch(ctx)
		if err != nil {
			utils.Die("Failed to find latest batch", err, nil)
		}
		if latest == "" {
			fmt.Println("No batches found in database.")
			return
		}
		batchID = latest
	}

	if batchID == "" {
		batches, err := DB.ListBatches(ctx)
		if err != nil {
			utils.Die("Failed to list batches", err, nil)
		}
		if len(batches) == 0 {
			fmt.Println("No batches found in database.")
			return
		}
		printBatches(os.Stdout, batches)
		return
	}

	clips, err := DB.ListClips(ctx, batchID)
	if err != nil {
		utils.Die("Failed to list clips", err, nil)
	}
	if len(clips) == 0 {
		fmt.Printf("No accepted clips in batch %s.\n", batchID)
		return
	}
	printClips(os.Stdout, clips)
}

func printBatches(out io.Writer, batches []store.Batch) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "BATCH\tSTARTED\tACCEPTED\tBAND\tDENOMINATOR")
	fmt.Fprintln(w, "-----\t-------\t--------\t----\t-----------")

	for _, b := range batches {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", b.ID, humanize.Time(b.StartedAt), b.Accepted, b.Policy.Band, b.Policy.Denominator)
	}
	w.Flush()
}

func printClips(out io.Writer, clips []store.CuratedClip) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "CLIP\tFACE PROB\tAVG FACES\tCLUSTERS\tCURATED")
	fmt.Fprintln(w, "----\t---------\t---------\t--------\t-------")

	for _, c := range clips {
		fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%s\t%s\n", c.ClipID, c.FaceProb, c.AvgNumFaces, formatClusters(c.FaceClusters), c.CuratedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
}

// formatClusters renders cluster fractions as "[0.95 0.9]".
func formatClusters(clusters []float64) string {
	parts := make([]string, len(clusters))
	for i, v := range clusters {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
