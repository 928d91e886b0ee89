package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/lapboard-cli/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the upload and analysis HTTP API",
	Long: `Serve accepts telemetry uploads (POST /api/v1/sessions, multipart field "file")
and answers filtered analyses per session. Each upload is an isolated session
that is dropped after --session-ttl without use. Metrics are exposed on /metrics.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ttl, err := cfg.TTL()
		if err != nil {
			return err
		}
		if cfg.MaxUploadMB < 1 {
			return fmt.Errorf("invalid --max-upload-mb: %d (must be >= 1)", cfg.MaxUploadMB)
		}
		opt, err := ingestOptions()
		if err != nil {
			return err
		}

		srv := server.New(server.NewStore(ttl), server.Options{
			MaxUploadBytes: int64(cfg.MaxUploadMB) << 20,
			Ingest:         opt,
		})
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Fprintf(cmd.OutOrStdout(), "✓ Listening on %s (sessions expire after %s idle)\n", cfg.ListenAddr, ttl)
		return srv.ListenAndServe(ctx, cfg.ListenAddr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", ":8080", "address to listen on")
	serveCmd.Flags().String("session-ttl", "30m", "drop sessions unused for this long")
	serveCmd.Flags().Int("max-upload-mb", 32, "maximum upload size in MiB")
	serveCmd.Flags().String("sheet-name", "", "XLSX: default sheet name for uploads")
	serveCmd.Flags().Int("sheet-index", 1, "XLSX: default 1-based sheet index for uploads")
	serveCmd.Flags().String("decimal", "auto", "decimal separator for CSV numbers: auto|dot|comma")
	serveCmd.Flags().String("delimiter", "auto", "CSV delimiter: auto|,|;|tab")
}
