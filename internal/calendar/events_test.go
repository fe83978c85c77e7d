package calendar

import (
	"testing"
	"time"

	gcal "google.golang.org/api/calendar/v3"
)

func TestEventFromAPI_TimedEvent(t *testing.T) {
	item := &gcal.Event{
		Id:               "ev1",
		Summary:          "Design review",
		Description:      "bring sketches",
		Location:         "Room 4",
		HtmlLink:         "https://calendar.example/ev1",
		ColorId:          "7",
		RecurringEventId: "series-1",
		Start:            &gcal.EventDateTime{DateTime: "2024-12-22T10:00:00+01:00"},
		End:              &gcal.EventDateTime{DateTime: "2024-12-22T10:30:00+01:00"},
		Attendees: []*gcal.EventAttendee{
			{Email: "a@example.com", ResponseStatus: "accepted", Organizer: true},
			{Email: "b@example.com", ResponseStatus: "needsAction", Self: true},
			{Email: "c@example.com", ResponseStatus: "something-new"},
		},
	}

	event, err := eventFromAPI(item)
	if err != nil {
		t.Fatalf("eventFromAPI() error = %v", err)
	}

	if event.IsAllDay {
		t.Error("IsAllDay = true for dateTime event")
	}
	if event.ID != "ev1" || event.RecurringSeriesID != "series-1" {
		t.Errorf("identity fields = %q/%q", event.ID, event.RecurringSeriesID)
	}
	if got := event.Duration(); got != 30*time.Minute {
		t.Errorf("Duration() = %s, want 30m", got)
	}
	if len(event.Attendees) != 3 {
		t.Fatalf("attendee count = %d, want 3", len(event.Attendees))
	}
	if event.Attendees[0].Response != ResponseAccepted || !event.Attendees[0].IsOrganizer {
		t.Errorf("attendee 0 = %+v", event.Attendees[0])
	}
	if event.Attendees[1].Response != ResponsePending || !event.Attendees[1].IsSelf {
		t.Errorf("attendee 1 = %+v", event.Attendees[1])
	}
	if event.Attendees[2].Response != ResponseUnknown {
		t.Errorf("attendee 2 response = %q, want unknown", event.Attendees[2].Response)
	}
}

func TestEventFromAPI_AllDayEvent(t *testing.T) {
	item := &gcal.Event{
		Id:      "ev2",
		Summary: "Holiday",
		Start:   &gcal.EventDateTime{Date: "2024-12-22"},
		End:     &gcal.EventDateTime{Date: "2024-12-23"},
	}

	event, err := eventFromAPI(item)
	if err != nil {
		t.Fatalf("eventFromAPI() error = %v", err)
	}
	if !event.IsAllDay {
		t.Error("IsAllDay = false for date-only event")
	}
	if event.Start.Hour() != 0 || event.Start.Day() != 22 {
		t.Errorf("Start = %s", event.Start)
	}
}

func TestEventFromAPI_Invalid(t *testing.T) {
	tests := []struct {
		name string
		item *gcal.Event
	}{
		{name: "nil start", item: &gcal.Event{Id: "x"}},
		{name: "empty start", item: &gcal.Event{Id: "x", Start: &gcal.EventDateTime{}}},
		{name: "garbage dateTime", item: &gcal.Event{Id: "x", Start: &gcal.EventDateTime{DateTime: "not-a-time"}}},
		{name: "garbage date", item: &gcal.Event{Id: "x", Start: &gcal.EventDateTime{Date: "22/12/2024"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := eventFromAPI(tt.item); err == nil {
				t.Error("eventFromAPI() succeeded, want error")
			}
		})
	}
}

func TestEventFromAPI_MissingEndDefaultsToOneHour(t *testing.T) {
	item := &gcal.Event{
		Id:    "ev3",
		Start: &gcal.EventDateTime{DateTime: "2024-12-22T10:00:00Z"},
	}

	event, err := eventFromAPI(item)
	if err != nil {
		t.Fatalf("eventFromAPI() error = %v", err)
	}
	if got := event.Duration(); got != time.Hour {
		t.Errorf("Duration() = %s, want 1h", got)
	}
}

func TestEventHelpers(t *testing.T) {
	start := time.Date(2024, 12, 22, 10, 0, 0, 0, time.UTC)
	event := Event{ID: "e", Title: "Standup", Start: start, End: start.Add(30 * time.Minute)}

	if !event.IsCurrentAt(start) {
		t.Error("IsCurrentAt(start) = false, want inclusive start")
	}
	if event.IsCurrentAt(start.Add(30 * time.Minute)) {
		t.Error("IsCurrentAt(end) = true, want exclusive end")
	}
	if !event.IsUpcomingAt(start.Add(-time.Minute)) {
		t.Error("IsUpcomingAt before start = false")
	}
	if got := event.MinutesUntilStart(start.Add(-10 * time.Minute)); got != 10 {
		t.Errorf("MinutesUntilStart = %d, want 10", got)
	}
	if got := event.TimeString(); got != "10:00-10:30" {
		t.Errorf("TimeString() = %q", got)
	}
}
