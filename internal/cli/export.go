package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/dsmeta/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export <root>",
	Short: "Collect every meta.json / meta.yaml under root into one CSV file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		output, _ := cmd.Flags().GetString("output")
		summary, _ := cmd.Flags().GetBool("summary")

		res, err := export.New(log).Export(args[0], output, summary)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Exported %d of %d metadata files to %s\n", res.ExportedRows, res.TotalFiles, res.OutputFile)
		for _, f := range res.FailedFiles {
			fmt.Fprintf(w, "  failed: %s\n", f)
		}
		if res.Summary != nil {
			s := res.Summary
			fmt.Fprintf(w, "\nDatasets: %d\n", s.TotalDatasets)
			printDist(cmd, "Modality", s.Modality)
			printDist(cmd, "Domain", s.Domain)
			printDist(cmd, "Use case", s.UseCase)
			printDist(cmd, "Rating", s.Rating)
			printDist(cmd, "Creators", s.Creators)
			fc := s.FileCount
			fmt.Fprintf(w, "Files per dataset: mean %.1f, median %.1f, min %d, max %d\n", fc.Mean, fc.Median, fc.Min, fc.Max)
		}
		return nil
	},
}

func printDist(cmd *cobra.Command, title string, dist map[string]int) {
	if len(dist) == 0 {
		return
	}
	keys := make([]string, 0, len(dist))
	for k := range dist {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if dist[keys[i]] != dist[keys[j]] {
			return dist[keys[i]] > dist[keys[j]]
		}
		return keys[i] < keys[j]
	})
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-30s %d\n", k, dist[k])
	}
}

func init() {
	exportCmd.Flags().StringP("output", "o", "datasets_summary.csv", "CSV file to write")
	exportCmd.Flags().BoolP("summary", "s", false, "print a distribution summary")
}
