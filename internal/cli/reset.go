package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Replace all stored data with the demo dataset",
	Args:  cobra.NoArgs,
	RunE:  runReset,
}

func runReset(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, fs := openStore(cfg)
	st.ResetData()

	snap := st.Snapshot()
	fmt.Fprintf(cmd.OutOrStdout(), "reset %s: %d calendars, %d events, %d todos\n",
		fs.Path(), len(snap.Calendars), len(snap.Events), len(snap.Todos))
	return nil
}
