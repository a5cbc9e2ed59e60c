package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/dsmeta/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the run history over HTTP",
	Long: `Start a read-only status server showing the run history: an HTML page on /
and JSON on /runs and /summary.

Live monitor state (/status, /events) is only available from "dsmeta watch --status-addr".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		database, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		addr, _ := cmd.Flags().GetString("addr")
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return web.NewServer(nil, database, addr, log).Start(ctx)
	},
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "address to listen on")
}
