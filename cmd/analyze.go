package cmd

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/lapboard-cli/internal/ingest"
	"github.com/KaramelBytes/lapboard-cli/internal/race"
	"github.com/KaramelBytes/lapboard-cli/internal/report"
	"github.com/KaramelBytes/lapboard-cli/internal/utils"
)

var (
	anaOutputPath string
	anaXLSXPath   string
	anaDrivers    []string
	anaLaps       []string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Analyze a lap telemetry CSV/XLSX and print the race report",
	Long: `Analyze reads one telemetry file and prints best lap, lap times, average lap,
classification and laps completed. --driver and --lap narrow the view; when
omitted every driver and lap in the file is selected. An explicitly empty
selection (--driver= or --lap=) yields a report without data.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opt, err := ingestOptions()
		if err != nil {
			return err
		}
		res, err := ingest.ReadFile(args[0], opt)
		if err != nil {
			return err
		}

		sess := race.NewSession(res.Name, res.Dataset, res.Stats)
		f := sess.DefaultFilter()
		drivers, laps := f.Drivers(), f.Laps()
		if cmd.Flags().Changed("driver") {
			drivers = anaDrivers
		}
		if cmd.Flags().Changed("lap") {
			if laps, err = parseLaps(anaLaps); err != nil {
				return err
			}
		}
		rep := report.Build(res.Name, sess.Analyze(race.NewFilter(drivers, laps)), res.Stats)

		out, _, err := render(rep)
		if err != nil {
			return err
		}
		if anaXLSXPath != "" {
			var buf bytes.Buffer
			if err := rep.WriteXLSX(&buf); err != nil {
				return err
			}
			if err := utils.SafeWriteFile(anaXLSXPath, buf.Bytes()); err != nil {
				return fmt.Errorf("write workbook: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote workbook to %s\n", anaXLSXPath)
		}
		if anaOutputPath != "" {
			if err := utils.SafeWriteFile(anaOutputPath, out); err != nil {
				return fmt.Errorf("write analysis: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote analysis to %s\n", anaOutputPath)
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
		}
		if n := res.Stats.Dropped(); n > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "⚠ Warning: dropped %d of %d rows with missing or malformed values\n", n, res.Stats.Input)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	addInputFlags(analyzeCmd)
	analyzeCmd.Flags().StringVarP(&anaOutputPath, "output", "o", "", "write the report to a file instead of stdout")
	analyzeCmd.Flags().StringVar(&anaXLSXPath, "xlsx", "", "also write the report as an XLSX workbook")
	analyzeCmd.Flags().StringSliceVar(&anaDrivers, "driver", nil, "drivers to include (repeatable or comma-separated; default all)")
	analyzeCmd.Flags().StringSliceVar(&anaLaps, "lap", nil, "laps to include (repeatable or comma-separated; default all)")
}

func parseLaps(vals []string) ([]int, error) {
	laps := make([]int, 0, len(vals))
	for _, v := range vals {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("invalid --lap: %q", v)
		}
		laps = append(laps, n)
	}
	return laps, nil
}
