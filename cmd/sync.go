package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/arakabCL/TheNotch/internal/calendar"
)

var syncFormatFlag string

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch the upcoming event window and print the agenda",
	Long: `Fetch the upcoming event window (today plus the configured number of
days) from Google Calendar and print it.

Examples:
  notchd sync                # agenda as plain text
  notchd sync --format=json  # machine-readable snapshot`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncFormatFlag, "format", "text", "output format (text/json)")
}

func runSync(cmd *cobra.Command, args []string) error {
	tokens, err := newTokenManager()
	if err != nil {
		return err
	}

	if !tokens.IsSignedIn() {
		return fmt.Errorf("authentication required. Run 'notchd auth' first")
	}

	syncer := newSynchronizer(tokens)
	if err := syncer.Refresh(cmd.Context()); err != nil {
		return fmt.Errorf("failed to fetch calendar events: %w", err)
	}

	now := time.Now()

	switch syncFormatFlag {
	case "text":
		printAgenda(syncer.Events(), now)
	case "json":
		jsonOut, err := formatStatusJSON(syncer, now)
		if err != nil {
			return err
		}
		fmt.Println(jsonOut)
	default:
		return fmt.Errorf("unknown format: %s (supported: text, json)", syncFormatFlag)
	}

	return nil
}

func printAgenda(events []calendar.Event, now time.Time) {
	if len(events) == 0 {
		fmt.Println("No upcoming events")
		return
	}

	for i := range events {
		event := &events[i]
		marker := " "
		if event.IsCurrentAt(now) {
			marker = ">"
		}
		line := fmt.Sprintf("%s %-12s %s", marker, event.TimeString(), event.ShortTitle())
		if event.HasLocation() {
			line += fmt.Sprintf(" (%s)", event.Location)
		}
		fmt.Println(line)
	}
}
