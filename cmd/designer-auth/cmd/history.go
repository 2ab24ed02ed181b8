package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/designer_auth_bridge/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent login attempts from the audit log",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var (
	historyLimit int
	historyJSON  bool
)

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of attempts to show")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Output as JSON")
}

// HistoryItem is the JSON form of one audit entry.
type HistoryItem struct {
	ID         string    `json:"id"`
	RunID      string    `json:"run_id,omitempty"`
	Transport  string    `json:"transport"`
	State      string    `json:"state"`
	Error      string    `json:"error,omitempty"`
	TargetHost string    `json:"target_host,omitempty"`
	Redirect   string    `json:"redirect_redacted,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// HistoryOutput is the JSON output of the history command.
type HistoryOutput struct {
	Attempts []HistoryItem   `json:"attempts"`
	Count    int            `json:"count"`
	Totals   map[string]int `json:"totals"`
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if historyLimit <= 0 {
		return fmt.Errorf("--limit must be positive")
	}

	path := cfg.HistoryPath
	if path == "" {
		path = history.DefaultPath()
	}
	store, err := history.OpenAt(path)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()

	ctx := cmd.Context()
	entries, err := store.Recent(ctx, historyLimit)
	if err != nil {
		return err
	}
	totals, err := store.Counts(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if historyJSON {
		output := HistoryOutput{
			Attempts: make([]HistoryItem, 0, len(entries)),
			Count:    len(entries),
			Totals:   totals,
		}
		for _, e := range entries {
			output.Attempts = append(output.Attempts, HistoryItem{
				ID:         e.ID,
				RunID:      e.RunID,
				Transport:  e.Transport,
				State:      e.State,
				Error:      e.Error,
				TargetHost: e.TargetHost,
				Redirect:   e.RedirectRedacted,
				StartedAt:  e.StartedAt,
				FinishedAt: e.FinishedAt,
			})
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(output)
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "No login attempts recorded.")
		return nil
	}
	return renderHistory(out, entries, totals, stylesFor(out))
}

func renderHistory(w io.Writer, entries []history.Entry, totals map[string]int, styles outputStyles) error {
	_, _ = fmt.Fprintln(w, styles.Header("Recent Login Attempts"))
	_, _ = fmt.Fprintln(w, "───────────────────────────────────────")

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "FINISHED\tSTATE\tTRANSPORT\tHOST\tDURATION\tID")
	for _, e := range entries {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.FinishedAt.Local().Format("2006-01-02 15:04:05"),
			styles.State(e.State),
			e.Transport,
			orDash(e.TargetHost),
			e.Duration().Round(time.Millisecond),
			shortID(e.ID),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(totals) > 0 {
		states := make([]string, 0, len(totals))
		for s := range totals {
			states = append(states, s)
		}
		sort.Strings(states)
		parts := make([]string, 0, len(states))
		for _, s := range states {
			parts = append(parts, fmt.Sprintf("%s=%d", s, totals[s]))
		}
		_, _ = fmt.Fprintln(w, styles.Muted("Totals: "+strings.Join(parts, " ")))
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
