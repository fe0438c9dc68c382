package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"lifehub/internal/config"
	"lifehub/internal/model"
	"lifehub/internal/slot"
)

var slotFromStore bool

var slotCmd = &cobra.Command{
	Use:   "slot <request.json>",
	Short: "Propose the earliest free slot for an event",
	Long: `Reads a request in the same shape as POST /api/ai/reschedule
({events, targetEvent, workHours}) from a file, or stdin with "-", and prints
the proposed slot. With --from-store the stored events are added as busy time.`,
	Args: cobra.ExactArgs(1),
	RunE: runSlot,
}

func init() {
	slotCmd.Flags().BoolVar(&slotFromStore, "from-store", false, "Also treat events in the local snapshot as busy")
}

type slotFile struct {
	Events []struct {
		StartISO string `json:"startISO"`
		EndISO   string `json:"endISO"`
	} `json:"events"`
	TargetEvent *struct {
		DurationMins int    `json:"durationMins"`
		EarliestISO  string `json:"earliestISO"`
		LatestISO    string `json:"latestISO"`
	} `json:"targetEvent"`
	WorkHours *slot.WorkHours `json:"workHours"`
}

func runSlot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var r io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	busy, req, err := parseSlotFile(r, cfg)
	if err != nil {
		return err
	}

	if slotFromStore {
		st, _ := openStore(cfg)
		st.Hydrate()
		busy = append(busy, st.BusyIntervals(req.Earliest, req.Latest)...)
	}

	p, err := slot.Find(busy, req, cfg.Location())
	if err != nil {
		return err
	}

	loc := cfg.Location()
	fmt.Fprintf(cmd.OutOrStdout(), "%s - %s\n%s\n",
		p.Start.In(loc).Format(time.RFC3339), p.End.In(loc).Format(time.RFC3339), p.Reason)
	return nil
}

// parseSlotFile decodes a reschedule request. Unparsable busy entries are
// dropped; a bad target is an error.
func parseSlotFile(r io.Reader, cfg *config.Config) ([]model.Interval, slot.Request, error) {
	var in slotFile
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return nil, slot.Request{}, fmt.Errorf("decode request: %w", err)
	}
	if in.TargetEvent == nil {
		return nil, slot.Request{}, errors.New("request has no targetEvent")
	}

	earliest, err := model.ParseTime(in.TargetEvent.EarliestISO)
	if err != nil {
		return nil, slot.Request{}, fmt.Errorf("earliestISO: %w", err)
	}
	latest, err := model.ParseTime(in.TargetEvent.LatestISO)
	if err != nil {
		return nil, slot.Request{}, fmt.Errorf("latestISO: %w", err)
	}

	wh := slot.WorkHours{Start: cfg.WorkHours.Start, End: cfg.WorkHours.End}
	if in.WorkHours != nil {
		wh = *in.WorkHours
	}

	busy := make([]model.Interval, 0, len(in.Events))
	for _, ev := range in.Events {
		s, err1 := model.ParseTime(ev.StartISO)
		e, err2 := model.ParseTime(ev.EndISO)
		if err1 != nil || err2 != nil {
			continue
		}
		busy = append(busy, model.Interval{Start: s, End: e})
	}

	d, err := slot.Minutes(in.TargetEvent.DurationMins)
	if err != nil {
		return nil, slot.Request{}, fmt.Errorf("durationMins: %w", err)
	}

	return busy, slot.Request{
		Duration:  d,
		Earliest:  earliest,
		Latest:    latest,
		WorkHours: wh,
	}, nil
}
