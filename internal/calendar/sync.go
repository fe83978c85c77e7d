package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/arakabCL/TheNotch/internal/auth"
	"github.com/arakabCL/TheNotch/internal/config"
	"github.com/arakabCL/TheNotch/internal/logger"
)

// APIError reports a non-2xx response from the calendar API.
type APIError struct {
	StatusCode int
	cause      error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("calendar api error: status %d", e.StatusCode)
}

func (e *APIError) Unwrap() error {
	return e.cause
}

const resizeStep = 15 * time.Minute

// Synchronizer polls the calendar API over a rolling window and reconciles
// results into a stable local event set. The set is replaced wholesale on
// each successful poll; failures leave the previous set untouched.
type Synchronizer struct {
	tokens     *auth.TokenManager
	calendarID string
	windowDays int
	maxResults int
	opts       []option.ClientOption

	mu       sync.RWMutex
	events   []Event
	lastErr  string
	lastSync time.Time

	now func() time.Time
}

// NewSynchronizer creates a synchronizer reading tokens through the given
// manager. Extra client options (endpoint overrides) are for tests.
func NewSynchronizer(tokens *auth.TokenManager, cfg config.SyncConfig, opts ...option.ClientOption) *Synchronizer {
	calendarID := cfg.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}
	windowDays := cfg.WindowDays
	if windowDays <= 0 {
		windowDays = 2
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 50
	}

	return &Synchronizer{
		tokens:     tokens,
		calendarID: calendarID,
		windowDays: windowDays,
		maxResults: maxResults,
		opts:       opts,
		now:        time.Now,
	}
}

// Refresh fetches the current event window and replaces the in-memory set.
// When signed out it clears the set without error. A 401 triggers exactly
// one forced token refresh and one retry; any other failure keeps the
// previous set and records a last-error string.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	if !s.tokens.IsSignedIn() {
		s.mu.Lock()
		s.events = nil
		s.lastErr = ""
		s.mu.Unlock()
		return nil
	}

	events, err := s.fetchWindow(ctx)
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusUnauthorized {
			logger.Info("calendar fetch got 401, forcing token refresh")
			if refreshErr := s.tokens.ForceRefresh(ctx); refreshErr != nil {
				s.setLastError(refreshErr)
				return refreshErr
			}
			events, err = s.fetchWindow(ctx)
		}
	}
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			apiErr := &APIError{StatusCode: gerr.Code, cause: gerr}
			s.setLastError(apiErr)
			return apiErr
		}
		s.setLastError(err)
		return err
	}

	s.mu.Lock()
	s.events = events
	s.lastErr = ""
	s.lastSync = s.now()
	s.mu.Unlock()

	logger.Info("calendar synchronized", "event_count", len(events))
	return nil
}

func (s *Synchronizer) fetchWindow(ctx context.Context) ([]Event, error) {
	svc, err := s.service(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 0, s.windowDays)

	resp, err := svc.Events.List(s.calendarID).
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(end.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(int64(s.maxResults)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(resp.Items))
	for _, item := range resp.Items {
		event, err := eventFromAPI(item)
		if err != nil {
			logger.Debug("skipping invalid event", "event_id", item.Id, "error", err)
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

func (s *Synchronizer) service(ctx context.Context) (*gcal.Service, error) {
	token, err := s.tokens.GetValidAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	opts := append([]option.ClientOption{
		option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})),
	}, s.opts...)

	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return svc, nil
}

func (s *Synchronizer) setLastError(err error) {
	s.mu.Lock()
	s.lastErr = err.Error()
	s.mu.Unlock()
	logger.Warn("calendar sync failed", "error", err)
}

// Events returns a snapshot of the current event set in API order
// (start-time ascending).
func (s *Synchronizer) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// LastError returns the most recent sync failure, empty after a success.
func (s *Synchronizer) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// LastSync returns the time of the last successful poll.
func (s *Synchronizer) LastSync() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync
}

// CurrentEvent returns the first non-all-day event in progress at now.
func (s *Synchronizer) CurrentEvent(now time.Time) *Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.events {
		e := s.events[i]
		if !e.IsAllDay && e.IsCurrentAt(now) {
			return &e
		}
	}
	return nil
}

// NextEvent returns the first non-all-day event starting after now.
func (s *Synchronizer) NextEvent(now time.Time) *Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.events {
		e := s.events[i]
		if !e.IsAllDay && e.Start.After(now) {
			return &e
		}
	}
	return nil
}

// EventPatch selects the fields to change in an update. Nil pointers leave
// the remote value untouched; empty strings clear it.
type EventPatch struct {
	Title     *string
	Notes     *string
	Location  *string
	ColorID   *string
	Start     *time.Time
	End       *time.Time
	Attendees []Attendee
}

// UpdateEvent applies a partial patch to one remote event, then runs a full
// Refresh to reconcile local state. No optimistic local mutation happens
// before the round trip completes.
func (s *Synchronizer) UpdateEvent(ctx context.Context, eventID string, patch EventPatch) error {
	svc, err := s.service(ctx)
	if err != nil {
		return err
	}

	body := &gcal.Event{}
	if patch.Title != nil {
		body.Summary = *patch.Title
		if *patch.Title == "" {
			body.ForceSendFields = append(body.ForceSendFields, "Summary")
		}
	}
	if patch.Notes != nil {
		body.Description = *patch.Notes
		if *patch.Notes == "" {
			body.ForceSendFields = append(body.ForceSendFields, "Description")
		}
	}
	if patch.Location != nil {
		body.Location = *patch.Location
		if *patch.Location == "" {
			body.ForceSendFields = append(body.ForceSendFields, "Location")
		}
	}
	if patch.ColorID != nil {
		body.ColorId = *patch.ColorID
	}
	if patch.Start != nil {
		body.Start = &gcal.EventDateTime{
			DateTime: patch.Start.Format(time.RFC3339),
			TimeZone: patch.Start.Location().String(),
		}
	}
	if patch.End != nil {
		body.End = &gcal.EventDateTime{
			DateTime: patch.End.Format(time.RFC3339),
			TimeZone: patch.End.Location().String(),
		}
	}
	if patch.Attendees != nil {
		body.Attendees = attendeesToAPI(patch.Attendees)
	}

	if _, err := svc.Events.Patch(s.calendarID, eventID, body).Context(ctx).Do(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			apiErr := &APIError{StatusCode: gerr.Code, cause: gerr}
			s.setLastError(apiErr)
			return apiErr
		}
		s.setLastError(err)
		return err
	}

	return s.Refresh(ctx)
}

// RescheduleEvent moves an event to newStart, preserving its duration.
func (s *Synchronizer) RescheduleEvent(ctx context.Context, event Event, newStart time.Time) error {
	newEnd := newStart.Add(event.Duration())
	return s.UpdateEvent(ctx, event.ID, EventPatch{
		Start: &newStart,
		End:   &newEnd,
	})
}

// ResizeEvent adjusts an event's end time by steps of 15 minutes. Changes
// that would shrink the event below 15 minutes are rejected.
func (s *Synchronizer) ResizeEvent(ctx context.Context, event Event, steps int) error {
	newEnd := event.End.Add(time.Duration(steps) * resizeStep)
	if newEnd.Sub(event.Start) < resizeStep {
		return fmt.Errorf("event duration cannot drop below %s", resizeStep)
	}
	return s.UpdateEvent(ctx, event.ID, EventPatch{End: &newEnd})
}

// Run polls Refresh on the given interval until the context is cancelled.
// An in-flight fetch is abandoned via the context rather than interrupted.
func (s *Synchronizer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	if err := s.Refresh(ctx); err != nil {
		logger.Warn("initial calendar refresh failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("calendar refresh failed", "error", err)
			}
		}
	}
}
