package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/dsmeta/internal/db"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent processing runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		database, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		status, _ := cmd.Flags().GetString("status")
		f := db.RunFilter{Status: status, Limit: limit}
		if ds, _ := cmd.Flags().GetString("dataset"); ds != "" {
			abs, err := filepath.Abs(ds)
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			f.DatasetPath = abs
		}

		runs, err := database.ListRuns(cmd.Context(), f)
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			sum, err := database.Summary(cmd.Context())
			if err != nil {
				return err
			}
			if runs == nil {
				runs = []db.Run{}
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{"summary": sum, "runs": runs})
		}

		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
			return nil
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-19s %-8s %-4s %-7s %-10s %s\n", "WHEN", "STATUS", "ATT", "QUALITY", "STAGE", "DATASET")
		fmt.Fprintf(w, "%-19s %-8s %-4s %-7s %-10s %s\n",
			strings.Repeat("-", 19),
			strings.Repeat("-", 8),
			strings.Repeat("-", 4),
			strings.Repeat("-", 7),
			strings.Repeat("-", 10),
			strings.Repeat("-", 7))
		for _, r := range runs {
			name := r.DatasetName
			if name == "" {
				name = filepath.Base(r.DatasetPath)
			}
			if len(name) > 40 {
				name = name[:37] + "..."
			}
			fmt.Fprintf(w, "%-19s %-8s %-4d %-7.2f %-10s %s\n",
				r.CreatedAt, r.Status, r.Attempt, r.QualityScore, r.FailedStage, name)
			if r.ErrorMessage != "" {
				fmt.Fprintf(w, "%19s   %s\n", "", r.ErrorMessage)
			}
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().String("format", "text", "output format: text or json")
	statusCmd.Flags().Int("limit", 20, "maximum number of runs to show")
	statusCmd.Flags().String("status", "", "only runs with this status (success or failed)")
	statusCmd.Flags().String("dataset", "", "only runs for this dataset directory")
}
