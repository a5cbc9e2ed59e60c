package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lucasnoah/dsmeta/internal/monitor"
	"github.com/lucasnoah/dsmeta/internal/web"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch directories and process new dataset folders as they appear",
	Long: `Watch the configured directories for newly created dataset folders whose path
matches one of the patterns, and run the metadata pipeline for each on a
bounded worker pool. Failed runs are retried with exponential backoff.

--status-addr additionally serves the status page and JSON endpoints.
Stop with Ctrl-C.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		m := cfg.Monitoring
		if dirs, _ := cmd.Flags().GetStringSlice("dir"); len(dirs) > 0 {
			m.Directories = dirs
		}
		if patterns, _ := cmd.Flags().GetStringSlice("pattern"); len(patterns) > 0 {
			m.Patterns = patterns
		}
		if n, _ := cmd.Flags().GetInt("concurrency"); n > 0 {
			m.MaxConcurrentTasks = n
		}
		if addr, _ := cmd.Flags().GetString("status-addr"); addr != "" {
			m.StatusAddr = addr
		}
		if len(m.Directories) == 0 {
			return fmt.Errorf("no directories to watch: pass --dir or set monitoring.directories")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		orch, _, err := newPipeline(ctx, cfg, log)
		if err != nil {
			return err
		}

		var rec monitor.RunRecorder
		database := openHistory(cfg, log)
		if database != nil {
			defer database.Close()
			rec = database
		}

		svc, err := monitor.NewService(m, orch, rec, log)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Watching %v for %v (%d workers). Ctrl-C to stop.\n",
			m.Directories, m.Patterns, m.MaxConcurrentTasks)

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error { return svc.Run(ctx) })
		if m.StatusAddr != "" {
			var runs web.RunStore
			if database != nil {
				runs = database
			}
			srv := web.NewServer(svc, runs, m.StatusAddr, log)
			g.Go(func() error { return srv.Start(ctx) })
		}
		err = g.Wait()
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}

		st := svc.Status()
		log.Info("monitoring stopped",
			zap.Int("succeeded", st.Succeeded),
			zap.Int("abandoned", st.Abandoned),
			zap.Int("dropped", st.Dropped))
		return nil
	},
}

func init() {
	watchCmd.Flags().StringSliceP("dir", "d", nil, "directory to watch (repeatable)")
	watchCmd.Flags().StringSliceP("pattern", "p", nil, "glob a new folder path must match (repeatable)")
	watchCmd.Flags().IntP("concurrency", "n", 0, "number of datasets processed at once")
	watchCmd.Flags().String("status-addr", "", "serve the status page on this address, e.g. :8080")
}
