package notify

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/arakabCL/TheNotch/internal/calendar"
	"github.com/arakabCL/TheNotch/internal/logger"
)

// Stage is a named reminder threshold before an event's start.
type Stage struct {
	Label     string
	Threshold time.Duration
}

// nowStageGrace lets the final "now" stage fire shortly after start too.
const nowStageGrace = 30 * time.Second

// DefaultStages returns the standard reminder ladder.
func DefaultStages() []Stage {
	return []Stage{
		{Label: "25min", Threshold: 25 * time.Minute},
		{Label: "5min", Threshold: 5 * time.Minute},
		{Label: "now", Threshold: 30 * time.Second},
	}
}

// StagesFromLeadTimes builds a stage ladder from configured lead times in
// minutes, always ending with the "now" stage.
func StagesFromLeadTimes(minutes []int) []Stage {
	if len(minutes) == 0 {
		return DefaultStages()
	}

	sorted := append([]int(nil), minutes...)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))

	stages := make([]Stage, 0, len(sorted)+1)
	for _, m := range sorted {
		if m <= 0 {
			continue
		}
		stages = append(stages, Stage{
			Label:     fmt.Sprintf("%dmin", m),
			Threshold: time.Duration(m) * time.Minute,
		})
	}
	stages = append(stages, Stage{Label: "now", Threshold: 30 * time.Second})
	return stages
}

// EventSource provides the current synchronized event set.
type EventSource interface {
	Events() []calendar.Event
}

// Alert is the most recently fired reminder, published for the bar UI.
type Alert struct {
	Event calendar.Event
	Stage string
	At    time.Time
}

type seenKey struct {
	eventID string
	stage   string
}

// Stager compares the synchronized event set against the clock and fires
// staged reminders. A given (event, stage) pair fires at most once, and an
// event fires at most one stage per cycle.
type Stager struct {
	source EventSource
	sink   Sink
	stages []Stage

	mu        sync.Mutex
	seen      map[seenKey]struct{}
	lastAlert *Alert

	now func() time.Time
}

// NewStager creates a stager over the given source and sink. Stages must be
// ordered longest threshold first; DefaultStages is used when empty.
func NewStager(source EventSource, sink Sink, stages []Stage) *Stager {
	if len(stages) == 0 {
		stages = DefaultStages()
	}
	return &Stager{
		source: source,
		sink:   sink,
		stages: stages,
		seen:   make(map[seenKey]struct{}),
		now:    time.Now,
	}
}

// Active returns the most recently fired alert, or nil.
func (s *Stager) Active() *Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastAlert == nil {
		return nil
	}
	alert := *s.lastAlert
	return &alert
}

// Check runs one monitoring cycle at the given instant.
func (s *Stager) Check(now time.Time) {
	events := s.source.Events()

	s.mu.Lock()
	defer s.mu.Unlock()

	present := make(map[string]calendar.Event, len(events))
	for _, event := range events {
		present[event.ID] = event

		if event.IsAllDay {
			continue
		}

		untilStart := event.Start.Sub(now)
		for i, stage := range s.stages {
			lower := -nowStageGrace
			if i+1 < len(s.stages) {
				lower = s.stages[i+1].Threshold
			}
			if untilStart <= lower || untilStart > stage.Threshold {
				continue
			}

			key := seenKey{eventID: event.ID, stage: stage.Label}
			if _, fired := s.seen[key]; !fired {
				s.seen[key] = struct{}{}
				s.fire(event, stage, untilStart, now)
			}
			// At most one stage per event per cycle.
			break
		}
	}

	// Prune tracking for events that vanished or already ended.
	for key := range s.seen {
		event, ok := present[key.eventID]
		if !ok || event.End.Before(now) {
			delete(s.seen, key)
		}
	}
}

func (s *Stager) fire(event calendar.Event, stage Stage, untilStart time.Duration, now time.Time) {
	title := event.ShortTitle()
	body := reminderBody(stage, untilStart)
	if event.HasLocation() {
		body += " · " + event.Location
	}
	identifier := event.ID + "-" + stage.Label

	s.lastAlert = &Alert{Event: event, Stage: stage.Label, At: now}

	// A sink failure still counts as fired; retrying would break the
	// at-most-once guarantee.
	if err := s.sink.Post(title, body, identifier, event.URL); err != nil {
		logger.Warn("failed to post notification", "event_id", event.ID, "stage", stage.Label, "error", err)
		return
	}
	logger.Info("reminder fired", "event_id", event.ID, "stage", stage.Label)
}

func reminderBody(stage Stage, untilStart time.Duration) string {
	switch {
	case stage.Label == "now" || untilStart <= 0:
		return "Starting now"
	case untilStart < time.Minute:
		return "Starting in less than a minute"
	default:
		return fmt.Sprintf("Starting in %d minutes", int(untilStart.Minutes()))
	}
}

// Run checks on the given interval until the context is cancelled.
func (s *Stager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 20 * time.Second
	}

	s.Check(s.now())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Check(s.now())
		}
	}
}
