package calendar

import (
	"fmt"
	"strings"
	"time"

	gcal "google.golang.org/api/calendar/v3"
)

// ResponseStatus is an attendee's reply to an invitation.
type ResponseStatus string

const (
	ResponseAccepted  ResponseStatus = "accepted"
	ResponseDeclined  ResponseStatus = "declined"
	ResponseTentative ResponseStatus = "tentative"
	ResponsePending   ResponseStatus = "pending"
	ResponseUnknown   ResponseStatus = "unknown"
)

type Attendee struct {
	Email       string
	DisplayName string
	Response    ResponseStatus
	IsOrganizer bool
	IsSelf      bool
}

// Event is the local value object for one calendar event instance.
// Recurring-event instances carry distinct IDs sharing a RecurringSeriesID.
type Event struct {
	ID                string
	RecurringSeriesID string
	Title             string
	Location          string
	Notes             string
	URL               string
	ColorID           string
	Start             time.Time
	End               time.Time
	IsAllDay          bool
	Attendees         []Attendee
}

// eventFromAPI maps a remote item into the local model. Items without a
// parseable start are rejected; a missing end defaults to one hour.
func eventFromAPI(item *gcal.Event) (Event, error) {
	event := Event{
		ID:                item.Id,
		RecurringSeriesID: item.RecurringEventId,
		Title:             item.Summary,
		Location:          item.Location,
		Notes:             item.Description,
		URL:               item.HtmlLink,
		ColorID:           item.ColorId,
	}

	if item.Start == nil {
		return event, fmt.Errorf("event has no start")
	}

	var err error
	if item.Start.DateTime != "" {
		event.Start, err = time.Parse(time.RFC3339, item.Start.DateTime)
		if err != nil {
			return event, fmt.Errorf("failed to parse start time: %w", err)
		}
		event.IsAllDay = false
	} else if item.Start.Date != "" {
		event.Start, err = time.Parse("2006-01-02", item.Start.Date)
		if err != nil {
			return event, fmt.Errorf("failed to parse start date: %w", err)
		}
		event.IsAllDay = true
	} else {
		return event, fmt.Errorf("event has no start time or date")
	}

	switch {
	case item.End != nil && item.End.DateTime != "":
		event.End, err = time.Parse(time.RFC3339, item.End.DateTime)
		if err != nil {
			return event, fmt.Errorf("failed to parse end time: %w", err)
		}
	case item.End != nil && item.End.Date != "":
		event.End, err = time.Parse("2006-01-02", item.End.Date)
		if err != nil {
			return event, fmt.Errorf("failed to parse end date: %w", err)
		}
	default:
		event.End = event.Start.Add(time.Hour)
	}

	for _, attendee := range item.Attendees {
		event.Attendees = append(event.Attendees, Attendee{
			Email:       attendee.Email,
			DisplayName: attendee.DisplayName,
			Response:    responseStatusFromAPI(attendee.ResponseStatus),
			IsOrganizer: attendee.Organizer,
			IsSelf:      attendee.Self,
		})
	}

	return event, nil
}

func responseStatusFromAPI(status string) ResponseStatus {
	switch status {
	case "accepted":
		return ResponseAccepted
	case "declined":
		return ResponseDeclined
	case "tentative":
		return ResponseTentative
	case "needsAction":
		return ResponsePending
	default:
		return ResponseUnknown
	}
}

func attendeesToAPI(attendees []Attendee) []*gcal.EventAttendee {
	out := make([]*gcal.EventAttendee, 0, len(attendees))
	for _, a := range attendees {
		out = append(out, &gcal.EventAttendee{
			Email:       a.Email,
			DisplayName: a.DisplayName,
		})
	}
	return out
}

// Helper methods for Event

func (e *Event) IsCurrentAt(t time.Time) bool {
	return !e.Start.After(t) && t.Before(e.End)
}

func (e *Event) IsUpcomingAt(t time.Time) bool {
	return e.Start.After(t)
}

func (e *Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

func (e *Event) MinutesUntilStart(t time.Time) int {
	if e.Start.Before(t) {
		return 0
	}
	return int(e.Start.Sub(t).Minutes())
}

func (e *Event) ShortTitle() string {
	if len(e.Title) <= 30 {
		return e.Title
	}
	return e.Title[:27] + "..."
}

func (e *Event) TimeString() string {
	if e.IsAllDay {
		return "All day"
	}

	start := e.Start.Format("15:04")
	end := e.End.Format("15:04")

	if e.Start.YearDay() == e.End.YearDay() {
		return start + "-" + end
	}

	// Multi-day event
	return e.Start.Format("Jan 2 15:04") + "-" + e.End.Format("Jan 2 15:04")
}

func (e *Event) HasLocation() bool {
	return strings.TrimSpace(e.Location) != ""
}
