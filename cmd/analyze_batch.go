package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/lapboard-cli/internal/ingest"
	"github.com/KaramelBytes/lapboard-cli/internal/log"
	"github.com/KaramelBytes/lapboard-cli/internal/race"
	"github.com/KaramelBytes/lapboard-cli/internal/report"
	"github.com/KaramelBytes/lapboard-cli/internal/utils"
)

var (
	abOutDir string
	abQuiet  bool
)

var analyzeBatchCmd = &cobra.Command{
	Use:   "analyze-batch <files...>",
	Short: "Analyze multiple CSV/XLSX telemetry files with progress",
	Long: `Analyze every matched file with all drivers and laps selected. Arguments may be
globs. With --out-dir each report is written next to the others as
<name>.report.md (or .json); otherwise reports are printed in turn. A file that
cannot be read is reported and skipped; the command fails at the end if any did.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files := expandInputs(args)
		if len(files) == 0 {
			return fmt.Errorf("no input files matched")
		}
		opt, err := ingestOptions()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		used := map[string]int{}
		failed := 0
		total := len(files)
		for i, path := range files {
			if !abQuiet {
				fmt.Fprintf(out, "[%d/%d] Processing %s...\n", i+1, total, filepath.Base(path))
			}
			res, err := ingest.ReadFile(path, opt)
			if err != nil {
				failed++
				fmt.Fprintf(cmd.ErrOrStderr(), "✗ %s: %v\n", path, err)
				log.Logger.Debug("batch input failed", zap.String("path", path), zap.Error(err))
				continue
			}
			sess := race.NewSession(res.Name, res.Dataset, res.Stats)
			rep := report.Build(res.Name, sess.Analyze(sess.DefaultFilter()), res.Stats)
			body, ext, err := render(rep)
			if err != nil {
				return err
			}

			if abOutDir == "" {
				fmt.Fprintln(out, string(body))
				continue
			}
			base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			used[base]++
			if n := used[base]; n > 1 {
				// same basename from another directory
				base = fmt.Sprintf("%s__%d", base, n)
			}
			outFile := filepath.Join(abOutDir, base+".report"+ext)
			if err := utils.SafeWriteFile(outFile, body); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			if !abQuiet {
				fmt.Fprintf(out, "✓ Wrote %s (%d laps kept, %d dropped)\n", outFile, res.Stats.Kept, res.Stats.Dropped())
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, total)
		}
		return nil
	},
}

// expandInputs resolves globs, keeps literal paths that exist, drops
// duplicates and sorts the result.
func expandInputs(args []string) []string {
	var files []string
	seen := map[string]struct{}{}
	for _, arg := range args {
		matches, _ := filepath.Glob(arg)
		if len(matches) == 0 {
			// treat as literal path if exists
			if _, err := os.Stat(arg); err == nil {
				matches = []string{arg}
			}
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files
}

func init() {
	rootCmd.AddCommand(analyzeBatchCmd)
	addInputFlags(analyzeBatchCmd)
	analyzeBatchCmd.Flags().StringVar(&abOutDir, "out-dir", "", "directory for per-file reports (default: print to stdout)")
	analyzeBatchCmd.Flags().BoolVar(&abQuiet, "quiet", false, "suppress progress and non-essential output")
}
