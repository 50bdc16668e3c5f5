// Package segment turns a chronological event stream into a timeline of
// eras: weekly aggregation, Jaccard-similarity boundary detection, era
// assembly, and a significance filter.
package segment

import (
	"sort"
	"time"

	"github.com/soundtrace/eras-api/internal/event"
)

// Config tunes the boundary detector and significance filter. The zero
// value is not usable directly — use DefaultConfig.
type Config struct {
	// SimilarityThreshold is the minimum Jaccard similarity between
	// adjacent weeks for them to stay in the same era.
	SimilarityThreshold float64
	// MaxGapDays is the listening-hiatus threshold: a gap between
	// consecutive weeks larger than this always starts a new era.
	MaxGapDays int
	// MinWeeks is the minimum era duration, in weeks, to survive the
	// significance filter.
	MinWeeks int
	// MinMs is the minimum total listening time, in milliseconds, to
	// survive the significance filter.
	MinMs int64
}

// DefaultConfig matches the defaults given in the segmentation spec.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.3,
		MaxGapDays:          28,
		MinWeeks:            2,
		MinMs:               3_600_000, // one hour
	}
}

// TopArtist is one ranked entry of an era's top-artists list.
type TopArtist struct {
	Artist string
	Plays  int
}

// TopTrack is one ranked entry of an era's top-tracks list.
type TopTrack struct {
	Track  string
	Artist string
	Plays  int
}

// Era is a maximal contiguous run of weeks sharing a coherent top-artist
// set. Title and Summary are left empty; the LLM client fills them in.
type Era struct {
	ID            int
	StartDate     time.Time
	EndDate       time.Time
	TopArtists    []TopArtist
	TopTracks     []TopTrack
	TotalMsPlayed int64
	Title         string
	Summary       string
}

const (
	maxTopArtists = 10
	maxTopTracks  = 20
)

// AggregateByWeek groups events by ISO (year, week) and returns the
// resulting buckets sorted ascending by week start. An empty event list
// yields an empty bucket list.
func AggregateByWeek(events []event.Event) []*event.WeekBucket {
	if len(events) == 0 {
		return nil
	}

	buckets := make(map[event.WeekKey]*event.WeekBucket)
	for _, e := range events {
		isoYear, isoWeek := e.Timestamp.ISOWeek()
		key := event.WeekKey{ISOYear: isoYear, ISOWeek: isoWeek}

		b, ok := buckets[key]
		if !ok {
			b = event.NewWeekBucket(key, mondayOfISOWeek(isoYear, isoWeek))
			buckets[key] = b
		}
		b.Add(e)
	}

	out := make([]*event.WeekBucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].WeekStart.Before(out[j].WeekStart)
	})
	return out
}

// mondayOfISOWeek computes the Monday of the given ISO (year, week), per
// the standard "Jan 4 always falls in week 1" rule.
func mondayOfISOWeek(isoYear, isoWeek int) time.Time {
	jan4 := time.Date(isoYear, time.January, 4, 0, 0, 0, 0, time.UTC)
	// weekday: Monday=1 .. Sunday=7
	weekday := int(jan4.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	week1Monday := jan4.AddDate(0, 0, -(weekday - 1))
	return week1Monday.AddDate(0, 0, (isoWeek-1)*7)
}

// topNArtists returns up to n artist names from a bucket's artist counter,
// ranked by descending play count, ties broken lexicographically by name —
// the deterministic tie-break this spec prescribes since the source
// algorithm left it unspecified.
func topNArtists(counts map[string]int, n int) []string {
	type entry struct {
		artist string
		plays  int
	}
	entries := make([]entry, 0, len(counts))
	for artist, plays := range counts {
		entries = append(entries, entry{artist, plays})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].plays != entries[j].plays {
			return entries[i].plays > entries[j].plays
		}
		return entries[i].artist < entries[j].artist
	})
	if n > len(entries) {
		n = len(entries)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = entries[i].artist
	}
	return out
}

// Similarity computes the Jaccard similarity of two weekly buckets' top
// artist sets, per spec.md §4.2: N = min(20, min(|A|, |B|)) top artists
// from each side, ties broken lexicographically.
func Similarity(a, b *event.WeekBucket) float64 {
	if len(a.ArtistCounts) == 0 || len(b.ArtistCounts) == 0 {
		return 0.0
	}

	n := len(a.ArtistCounts)
	if len(b.ArtistCounts) < n {
		n = len(b.ArtistCounts)
	}
	if n > 20 {
		n = 20
	}

	setA := topNArtists(a.ArtistCounts, n)
	setB := topNArtists(b.ArtistCounts, n)

	lookupB := make(map[string]struct{}, len(setB))
	for _, artist := range setB {
		lookupB[artist] = struct{}{}
	}

	intersection := 0
	for _, artist := range setA {
		if _, ok := lookupB[artist]; ok {
			intersection++
		}
	}

	union := make(map[string]struct{}, len(setA)+len(setB))
	for _, artist := range setA {
		union[artist] = struct{}{}
	}
	for _, artist := range setB {
		union[artist] = struct{}{}
	}
	if len(union) == 0 {
		return 0.0
	}

	return float64(intersection) / float64(len(union))
}

// Boundaries returns the indices into a sorted WeekBucket slice at which a
// new era begins. The first index is always a boundary. Empty input
// yields no boundaries; a single week yields [0].
func Boundaries(weeks []*event.WeekBucket, cfg Config) []int {
	if len(weeks) == 0 {
		return nil
	}

	boundaries := []int{0}
	for i := 1; i < len(weeks); i++ {
		gapDays := int(weeks[i].WeekStart.Sub(weeks[i-1].WeekStart).Hours() / 24)
		if gapDays > cfg.MaxGapDays {
			boundaries = append(boundaries, i)
			continue
		}
		if Similarity(weeks[i-1], weeks[i]) < cfg.SimilarityThreshold {
			boundaries = append(boundaries, i)
		}
	}
	return boundaries
}

// Assemble merges the weeks within each (boundary, nextBoundary) span into
// one Era, assigning preliminary sequential IDs. Title and Summary are
// left empty for the LLM naming stage.
func Assemble(weeks []*event.WeekBucket, boundaries []int) []Era {
	if len(weeks) == 0 || len(boundaries) == 0 {
		return nil
	}

	eras := make([]Era, 0, len(boundaries))
	for i, start := range boundaries {
		end := len(weeks)
		if i+1 < len(boundaries) {
			end = boundaries[i+1]
		}
		eras = append(eras, assembleOne(weeks[start:end], i+1))
	}
	return eras
}

func assembleOne(span []*event.WeekBucket, id int) Era {
	artistCounts := make(map[string]int)
	trackCounts := make(map[event.TrackKey]int)
	var totalMs int64

	for _, w := range span {
		for artist, plays := range w.ArtistCounts {
			artistCounts[artist] += plays
		}
		for key, plays := range w.TrackCounts {
			trackCounts[key] += plays
		}
		totalMs += w.TotalMs
	}

	return Era{
		ID:            id,
		StartDate:     span[0].WeekStart,
		EndDate:       span[len(span)-1].WeekStart.AddDate(0, 0, 6),
		TopArtists:    rankArtists(artistCounts),
		TopTracks:     rankTracks(trackCounts),
		TotalMsPlayed: totalMs,
	}
}

func rankArtists(counts map[string]int) []TopArtist {
	out := make([]TopArtist, 0, len(counts))
	for artist, plays := range counts {
		out = append(out, TopArtist{Artist: artist, Plays: plays})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Plays != out[j].Plays {
			return out[i].Plays > out[j].Plays
		}
		return out[i].Artist < out[j].Artist
	})
	if len(out) > maxTopArtists {
		out = out[:maxTopArtists]
	}
	return out
}

func rankTracks(counts map[event.TrackKey]int) []TopTrack {
	out := make([]TopTrack, 0, len(counts))
	for key, plays := range counts {
		out = append(out, TopTrack{Track: key.Track, Artist: key.Artist, Plays: plays})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Plays != out[j].Plays {
			return out[i].Plays > out[j].Plays
		}
		if out[i].Track != out[j].Track {
			return out[i].Track < out[j].Track
		}
		return out[i].Artist < out[j].Artist
	})
	if len(out) > maxTopTracks {
		out = out[:maxTopTracks]
	}
	return out
}

// Filter drops eras whose duration or total listening time falls below the
// configured significance thresholds and renumbers the survivors 1..N in
// chronological order. Returns an empty (non-nil-safe) slice, never an
// error, if everything is dropped.
func Filter(eras []Era, cfg Config) []Era {
	survivors := make([]Era, 0, len(eras))
	for _, e := range eras {
		weeks := durationWeeks(e.StartDate, e.EndDate)
		if weeks < cfg.MinWeeks {
			continue
		}
		if e.TotalMsPlayed < cfg.MinMs {
			continue
		}
		survivors = append(survivors, e)
	}

	for i := range survivors {
		survivors[i].ID = i + 1
	}
	return survivors
}

func durationWeeks(start, end time.Time) int {
	days := int(end.Sub(start).Hours() / 24)
	return days/7 + 1
}

// Detect runs the full pipeline — week aggregation, boundary detection,
// era assembly, significance filtering — over a chronological event list.
func Detect(events []event.Event, cfg Config) []Era {
	weeks := AggregateByWeek(events)
	boundaries := Boundaries(weeks, cfg)
	eras := Assemble(weeks, boundaries)
	return Filter(eras, cfg)
}
