// Package stats computes a single-pass aggregate summary over the full
// parsed event list, before the pipeline discards the events to reclaim
// memory.
package stats

import (
	"time"

	"github.com/soundtrace/eras-api/internal/event"
)

// DateRange is an inclusive calendar-date span.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Aggregate holds whole-history counts computed once before segmentation.
type Aggregate struct {
	TotalTracks  int
	TotalArtists int
	TotalMs      int64
	DateRange    DateRange
}

// Compute derives an Aggregate from the full event list in one pass.
// Compute(nil) and Compute of an empty slice both return a zero Aggregate.
func Compute(events []event.Event) Aggregate {
	if len(events) == 0 {
		return Aggregate{}
	}

	tracks := make(map[event.TrackKey]struct{})
	artists := make(map[string]struct{})

	var totalMs int64
	minTS := events[0].Timestamp
	maxTS := events[0].Timestamp

	for _, e := range events {
		tracks[event.TrackKey{Track: e.Track, Artist: e.Artist}] = struct{}{}
		artists[e.Artist] = struct{}{}
		totalMs += e.MsPlayed

		if e.Timestamp.Before(minTS) {
			minTS = e.Timestamp
		}
		if e.Timestamp.After(maxTS) {
			maxTS = e.Timestamp
		}
	}

	return Aggregate{
		TotalTracks:  len(tracks),
		TotalArtists: len(artists),
		TotalMs:      totalMs,
		DateRange: DateRange{
			Start: dateOnly(minTS),
			End:   dateOnly(maxTS),
		},
	}
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
