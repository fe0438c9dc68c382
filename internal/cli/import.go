package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"lifehub/internal/ics"
	"lifehub/internal/store"
)

var importCalendar string

var importCmd = &cobra.Command{
	Use:   "import <file.ics>",
	Short: "Import events from a calendar file",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func init() {
	importCmd.Flags().StringVar(&importCalendar, "calendar", "", "Target calendar id (default: main)")
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	body, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	st, _ := openStore(cfg)
	st.Hydrate()

	if importCalendar != "" && !st.HasCalendar(importCalendar) {
		return fmt.Errorf("unknown calendar %q", importCalendar)
	}

	loc := cfg.Location()
	now := time.Now().In(loc)
	recs, err := ics.ParseRecords(ics.Source{ID: filepath.Base(args[0])}, body, ics.ExpandConfig{
		Location:   loc,
		RangeStart: now.AddDate(0, 0, -1),
		RangeEnd:   now.AddDate(0, 0, cfg.HorizonDays),
	})
	if err != nil {
		return err
	}

	res := st.ImportEvents(importCalendar, recs)
	printImportResult(cmd, res)
	return nil
}

func printImportResult(cmd *cobra.Command, res store.ImportResult) {
	fmt.Fprintf(cmd.OutOrStdout(), "added %d, updated %d, skipped %d\n", res.Added, res.Updated, res.Skipped)
}
