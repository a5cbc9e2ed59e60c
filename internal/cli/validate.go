package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/dsmeta/internal/dataset"
	"github.com/lucasnoah/dsmeta/internal/scan"
	"github.com/lucasnoah/dsmeta/internal/stage"
)

// validateReport is the --format json shape of the validate command.
type validateReport struct {
	Path      string         `json:"path"`
	Name      string         `json:"name"`
	Creator   string         `json:"creator,omitempty"`
	Date      string         `json:"date,omitempty"`
	Files     int            `json:"files"`
	TotalSize int64          `json:"total_size"`
	Documents []string       `json:"documents"`
	DocInfo   map[string]any `json:"doc_info"`
}

var validateCmd = &cobra.Command{
	Use:   "validate <path>",
	Short: "Scan a dataset directory and report what was found, without calling any service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		path, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("resolve path: %w", err)
		}
		res, err := scan.NewScanner(log).Scan(cmd.Context(), path)
		if err != nil {
			return err
		}
		name := scan.ParseName(filepath.Base(path))
		doc := scan.NewExtractor(log).Extract(path)

		var docs []string
		for _, c := range scan.Candidates(path) {
			if _, err := os.Stat(filepath.Join(path, c)); err == nil {
				docs = append(docs, c)
			}
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			return writeJSON(cmd.OutOrStdout(), validateReport{
				Path: path, Name: name.Name, Creator: name.Creator, Date: name.Date,
				Files: len(res.Files), TotalSize: res.TotalSize,
				Documents: docs, DocInfo: doc,
			})
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Dataset:  %s\n", path)
		fmt.Fprintf(w, "Name:     %s\n", name.Name)
		if name.Creator != "" {
			fmt.Fprintf(w, "Creator:  %s\n", name.Creator)
			fmt.Fprintf(w, "Date:     %s\n", name.Date)
		}
		fmt.Fprintf(w, "Files:    %d (%s)\n", len(res.Files), dataset.HumanSize(res.TotalSize))
		fmt.Fprintln(w, stage.FormatStats(res.Files))
		if len(docs) == 0 {
			fmt.Fprintln(w, "Documents: none")
		} else {
			fmt.Fprintf(w, "Documents: %v\n", docs)
		}
		fmt.Fprintln(w, stage.FormatDocInfo(doc))
		return nil
	},
}

func init() {
	validateCmd.Flags().String("format", "text", "output format: text or json")
}
