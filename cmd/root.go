package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	cfgpkg "github.com/KaramelBytes/lapboard-cli/internal/config"
	"github.com/KaramelBytes/lapboard-cli/internal/ingest"
	"github.com/KaramelBytes/lapboard-cli/internal/log"
	"github.com/KaramelBytes/lapboard-cli/internal/report"
)

var (
	// Global flags
	cfgFile string
	debug   bool

	// Loaded configuration
	cfg *cfgpkg.Global
)

var rootCmd = &cobra.Command{
	Use:   "lapboard",
	Short: "Lapboard: kart race lap telemetry analyzer",
	Long: `Lapboard reads lap telemetry exported from kart timing systems (CSV or XLSX),
drops malformed rows and reports best lap, lap times, averages, classification
and laps completed for any selection of drivers and laps.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loadConfig(cmd)
		return nil
	},
}

// Execute is the entry point called by main.main()
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.lapboard/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug output")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug|info|warn|error (overrides config)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format: console|json (overrides config)")
}

// flagKeys maps flag names to config keys where they differ beyond dashes.
var flagKeys = map[string]string{
	"decimal":   "decimal_separator",
	"delimiter": "csv_delimiter",
	"format":    "output_format",
	"listen":    "listen_addr",
}

// loadConfig resolves flags > env > config file > defaults for the command
// about to run and initialises logging.
func loadConfig(cmd *cobra.Command) {
	v, err := cfgpkg.New(cfgFile)
	if err != nil {
		// Non-fatal: fall back to defaults and environment
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		v = cfgpkg.Defaults()
	}
	bindFlags(cmd, v)

	c, err := cfgpkg.FromViper(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		c, _ = cfgpkg.FromViper(cfgpkg.Defaults())
	}
	cfg = c

	level := cfg.LogLevel
	if debug {
		level = "debug"
	}
	if err := log.Init(level, cfg.LogFormat); err != nil {
		fmt.Fprintf(os.Stderr, "⚠ Warning: %v\n", err)
	}
	log.Logger.Debug("config resolved", zap.String("file", v.ConfigFileUsed()), zap.String("command", cmd.Name()))
}

// bindFlags binds every flag of cmd (inherited ones included) that names a
// config key, so an explicitly set flag wins over file and environment.
func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	known := map[string]bool{}
	for _, k := range cfgpkg.Keys {
		known[k] = true
	}
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok {
			key = strings.ReplaceAll(f.Name, "-", "_")
		}
		if !known[key] {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			fmt.Fprintf(os.Stderr, "⚠ Warning: could not bind --%s: %v\n", f.Name, err)
		}
	})
}

// addInputFlags registers the reader flags shared by analyze and analyze-batch.
// Their values are read back through the bound configuration.
func addInputFlags(c *cobra.Command) {
	c.Flags().String("sheet-name", "", "XLSX: sheet name to read")
	c.Flags().Int("sheet-index", 1, "XLSX: 1-based sheet index (used if --sheet-name not provided)")
	c.Flags().String("decimal", "auto", "decimal separator for CSV numbers: auto|dot|comma")
	c.Flags().String("delimiter", "auto", "CSV delimiter: auto|,|;|tab")
	c.Flags().String("format", "markdown", "output format: markdown|json")
}

func ingestOptions() (ingest.Options, error) {
	dec, err := cfgpkg.ParseDecimal(cfg.DecimalSeparator)
	if err != nil {
		return ingest.Options{}, fmt.Errorf("unsupported --decimal: %w", err)
	}
	delim, err := cfgpkg.ParseDelimiter(cfg.CSVDelimiter)
	if err != nil {
		return ingest.Options{}, fmt.Errorf("unsupported --delimiter: %w", err)
	}
	return ingest.Options{
		SheetName:        cfg.SheetName,
		SheetIndex:       cfg.SheetIndex,
		Delimiter:        delim,
		DecimalSeparator: dec,
	}, nil
}

// render returns the report in the configured output format and the file
// extension that goes with it.
func render(rep *report.Report) ([]byte, string, error) {
	switch strings.ToLower(cfg.OutputFormat) {
	case "", "markdown", "md":
		return []byte(rep.Markdown()), ".md", nil
	case "json":
		b, err := rep.JSON()
		return b, ".json", err
	}
	return nil, "", fmt.Errorf("unsupported --format: %s (use markdown or json)", cfg.OutputFormat)
}
