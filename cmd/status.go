package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/arakabCL/TheNotch/internal/calendar"
)

// statusOutput is the JSON snapshot consumed by the bar UI.
type statusOutput struct {
	Current    *eventSummary `json:"current"`
	Next       *eventSummary `json:"next"`
	EventCount int           `json:"event_count"`
	LastSync   string        `json:"last_sync,omitempty"`
	LastError  string        `json:"last_error,omitempty"`
}

type eventSummary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Start        string `json:"start"`
	End          string `json:"end"`
	Location     string `json:"location,omitempty"`
	URL          string `json:"url,omitempty"`
	MinutesUntil int    `json:"minutes_until"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print a JSON snapshot of the current and next event",
	Long: `Fetch the event window and print a JSON snapshot with the in-progress
event, the next upcoming event, and sync health. Intended for the bar UI.`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	tokens, err := newTokenManager()
	if err != nil {
		return err
	}

	syncer := newSynchronizer(tokens)
	if err := syncer.Refresh(cmd.Context()); err != nil {
		// Sync failures keep the previous snapshot; still report what we have.
		fmt.Fprintln(cmd.ErrOrStderr(), "warning: refresh failed:", err)
	}

	out, err := formatStatusJSON(syncer, time.Now())
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

func formatStatusJSON(syncer *calendar.Synchronizer, now time.Time) (string, error) {
	status := statusOutput{
		Current:    summarize(syncer.CurrentEvent(now), now),
		Next:       summarize(syncer.NextEvent(now), now),
		EventCount: len(syncer.Events()),
		LastError:  syncer.LastError(),
	}
	if last := syncer.LastSync(); !last.IsZero() {
		status.LastSync = last.Format(time.RFC3339)
	}

	data, err := json.Marshal(status)
	if err != nil {
		return "", fmt.Errorf("failed to marshal status: %w", err)
	}
	return string(data), nil
}

func summarize(event *calendar.Event, now time.Time) *eventSummary {
	if event == nil {
		return nil
	}
	return &eventSummary{
		ID:           event.ID,
		Title:        event.Title,
		Start:        event.Start.Format(time.RFC3339),
		End:          event.End.Format(time.RFC3339),
		Location:     event.Location,
		URL:          event.URL,
		MinutesUntil: event.MinutesUntilStart(now),
	}
}
