package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lucasnoah/dsmeta/internal/orchestrator"
)

var runCmd = &cobra.Command{
	Use:   "run <path>",
	Short: "Generate metadata for one dataset directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		path, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("resolve path: %w", err)
		}
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("dataset path: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("dataset path %s is not a directory", path)
		}

		orch, stages, err := newPipeline(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		if tmpl, _ := cmd.Flags().GetString("template"); tmpl != "" {
			stages.SetTemplate(tmpl)
		}
		force, _ := cmd.Flags().GetBool("force")
		stages.SetForce(force)

		res := orch.Run(cmd.Context(), path)

		if database := openHistory(cfg, log); database != nil {
			if err := database.RecordRun(cmd.Context(), res, 1); err != nil {
				log.Warn("record run", zap.Error(err))
			}
			database.Close()
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
		} else {
			printResult(cmd, res)
		}
		if !res.Success {
			return fmt.Errorf("processing %s failed: %s", res.DatasetPath, res.ErrorMessage)
		}
		return nil
	},
}

func printResult(cmd *cobra.Command, res orchestrator.Result) {
	w := cmd.OutOrStdout()
	if !res.Success {
		fmt.Fprintf(w, "FAILED  %s\n", res.DatasetPath)
		fmt.Fprintf(w, "  error:    %s\n", res.ErrorMessage)
		if res.State != nil && res.State.CurrentStep != "" {
			fmt.Fprintf(w, "  stage:    %s\n", res.State.CurrentStep)
		}
		return
	}
	fmt.Fprintf(w, "OK      %s\n", res.DatasetPath)
	fmt.Fprintf(w, "  dataset:  %s\n", res.DatasetName)
	fmt.Fprintf(w, "  quality:  %.2f\n", res.QualityScore)
	fmt.Fprintf(w, "  duration: %s\n", res.Duration.Round(time.Millisecond))
	for _, f := range res.WrittenFiles {
		line := fmt.Sprintf("  %-9s %s", f.Status, f.Path)
		if f.Backup != "" {
			line += " (backup " + filepath.Base(f.Backup) + ")"
		}
		if f.Error != "" {
			line += ": " + f.Error
		}
		fmt.Fprintln(w, line)
	}
	if res.State != nil {
		for _, e := range res.State.ValidationErrors {
			fmt.Fprintf(w, "  note:     %s\n", e)
		}
	}
}

func init() {
	runCmd.Flags().String("template", "", "markdown template name or path")
	runCmd.Flags().Bool("force", false, "rewrite artifacts even when unchanged")
	runCmd.Flags().String("format", "text", "output format: text or json")
}
