package segment

import (
	"testing"
	"time"

	"github.com/soundtrace/eras-api/internal/event"
)

func mkEvent(ts time.Time, artist, track string) event.Event {
	return event.Event{
		Timestamp: ts,
		Artist:    artist,
		Track:     track,
		MsPlayed:  event.MinPlayMs + 1,
	}
}

func TestAggregateByWeekEmpty(t *testing.T) {
	if got := AggregateByWeek(nil); got != nil {
		t.Fatalf("AggregateByWeek(nil) = %v, want nil", got)
	}
}

func TestAggregateByWeekSortedAndCounted(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) // Monday, ISO week 1
	events := []event.Event{
		mkEvent(base.AddDate(0, 0, 10), "B", "song-b"), // later week
		mkEvent(base, "A", "song-a"),
		mkEvent(base.AddDate(0, 0, 1), "A", "song-a"),
	}

	buckets := AggregateByWeek(events)
	if len(buckets) != 2 {
		t.Fatalf("got %d buckets, want 2", len(buckets))
	}
	if !buckets[0].WeekStart.Before(buckets[1].WeekStart) {
		t.Fatalf("buckets not sorted ascending by week start")
	}
	if buckets[0].ArtistCounts["A"] != 2 {
		t.Fatalf("artist A count = %d, want 2", buckets[0].ArtistCounts["A"])
	}
	if got := buckets[0].EventCount(); got != 2 {
		t.Fatalf("EventCount = %d, want 2", got)
	}
}

func TestSimilarityLaws(t *testing.T) {
	a := event.NewWeekBucket(event.WeekKey{}, time.Time{})
	a.ArtistCounts = map[string]int{"A": 3, "B": 2, "C": 1}

	b := event.NewWeekBucket(event.WeekKey{}, time.Time{})
	b.ArtistCounts = map[string]int{"A": 5, "B": 1, "C": 1}

	if got := Similarity(a, a); got != 1.0 {
		t.Fatalf("similarity(A, A) = %v, want 1.0", got)
	}

	sAB := Similarity(a, b)
	sBA := Similarity(b, a)
	if sAB != sBA {
		t.Fatalf("similarity not symmetric: %v vs %v", sAB, sBA)
	}
	if sAB < 0 || sAB > 1 {
		t.Fatalf("similarity out of [0,1]: %v", sAB)
	}

	disjoint := event.NewWeekBucket(event.WeekKey{}, time.Time{})
	disjoint.ArtistCounts = map[string]int{"X": 1, "Y": 1}
	if got := Similarity(a, disjoint); got != 0.0 {
		t.Fatalf("similarity of disjoint sets = %v, want 0.0", got)
	}

	empty := event.NewWeekBucket(event.WeekKey{}, time.Time{})
	if got := Similarity(a, empty); got != 0.0 {
		t.Fatalf("similarity with empty bucket = %v, want 0.0", got)
	}
}

func TestBoundariesEmptyAndSingle(t *testing.T) {
	if got := Boundaries(nil, DefaultConfig()); got != nil {
		t.Fatalf("Boundaries(nil) = %v, want nil", got)
	}

	one := []*event.WeekBucket{event.NewWeekBucket(event.WeekKey{}, time.Time{})}
	got := Boundaries(one, DefaultConfig())
	if len(got) != 1 || got[0] != 0 {
		t.Fatalf("Boundaries(single) = %v, want [0]", got)
	}
}

func TestBoundariesGapSplit(t *testing.T) {
	// S3: week 2 and week 9 of the same year, same artist — 49-day gap.
	w1 := mondayOfISOWeek(2024, 2)
	w2 := mondayOfISOWeek(2024, 9)

	weeks := []*event.WeekBucket{
		bucketWithArtist(w1, "A", 4),
		bucketWithArtist(w2, "A", 4),
	}

	got := Boundaries(weeks, DefaultConfig())
	want := []int{0, 1}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("Boundaries(gap) = %v, want %v", got, want)
	}
}

func TestBoundariesSimilaritySplit(t *testing.T) {
	// S4: disjoint top-artist sets one week apart, no gap.
	w1 := mondayOfISOWeek(2024, 1)
	w2 := mondayOfISOWeek(2024, 2)

	b1 := event.NewWeekBucket(event.WeekKey{}, w1)
	for _, a := range []string{"A", "B", "C", "D", "E"} {
		b1.ArtistCounts[a] = 10
	}
	b2 := event.NewWeekBucket(event.WeekKey{}, w2)
	for _, a := range []string{"F", "G", "H", "I", "J"} {
		b2.ArtistCounts[a] = 10
	}

	got := Boundaries([]*event.WeekBucket{b1, b2}, DefaultConfig())
	if len(got) != 2 {
		t.Fatalf("Boundaries(disjoint) = %v, want 2 boundaries", got)
	}
}

func bucketWithArtist(weekStart time.Time, artist string, plays int) *event.WeekBucket {
	b := event.NewWeekBucket(event.WeekKey{}, weekStart)
	b.ArtistCounts[artist] = plays
	b.TrackCounts[event.TrackKey{Track: "t", Artist: artist}] = plays
	b.TotalMs = int64(plays) * (event.MinPlayMs + 1)
	return b
}

func TestEraIDsSequentialAfterFilter(t *testing.T) {
	cfg := DefaultConfig()

	insignificant := Era{ID: 1, StartDate: mondayOfISOWeek(2024, 1), EndDate: mondayOfISOWeek(2024, 1).AddDate(0, 0, 6), TotalMsPlayed: 1000}
	significant := Era{ID: 2, StartDate: mondayOfISOWeek(2024, 10), EndDate: mondayOfISOWeek(2024, 13).AddDate(0, 0, 6), TotalMsPlayed: 5 * 3_600_000}

	out := Filter([]Era{insignificant, significant}, cfg)
	if len(out) != 1 {
		t.Fatalf("got %d surviving eras, want 1", len(out))
	}
	if out[0].ID != 1 {
		t.Fatalf("surviving era ID = %d, want renumbered to 1", out[0].ID)
	}
}

func TestFilterAllDroppedIsEmptyNotError(t *testing.T) {
	cfg := DefaultConfig()
	tiny := Era{ID: 1, StartDate: mondayOfISOWeek(2024, 1), EndDate: mondayOfISOWeek(2024, 1).AddDate(0, 0, 6), TotalMsPlayed: 1}
	out := Filter([]Era{tiny}, cfg)
	if len(out) != 0 {
		t.Fatalf("got %d eras, want 0", len(out))
	}
}

func TestDetectTinyHappyPath(t *testing.T) {
	// S1: 3 valid events same ISO week, one artist "A".
	base := mondayOfISOWeek(2024, 20)
	events := []event.Event{
		mkEvent(base, "A", "song-a"),
		mkEvent(base.AddDate(0, 0, 1), "A", "song-a"),
		mkEvent(base.AddDate(0, 0, 2), "A", "song-a"),
	}

	cfg := Config{SimilarityThreshold: 0.3, MaxGapDays: 28, MinWeeks: 1, MinMs: 0}
	eras := Detect(events, cfg)
	if len(eras) != 1 {
		t.Fatalf("got %d eras, want 1", len(eras))
	}
	era := eras[0]
	if era.ID != 1 {
		t.Fatalf("era ID = %d, want 1", era.ID)
	}
	if len(era.TopArtists) != 1 || era.TopArtists[0].Artist != "A" || era.TopArtists[0].Plays != 3 {
		t.Fatalf("top artists = %+v, want [{A 3}]", era.TopArtists)
	}
}

func TestEraCoverageBeforeFiltering(t *testing.T) {
	base := mondayOfISOWeek(2024, 1)
	var weeks []*event.WeekBucket
	for i := 0; i < 5; i++ {
		weeks = append(weeks, bucketWithArtist(base.AddDate(0, 0, 7*i), "A", 1))
	}
	boundaries := Boundaries(weeks, DefaultConfig())
	eras := Assemble(weeks, boundaries)

	covered := 0
	for _, e := range eras {
		weekCount := int(e.EndDate.Sub(e.StartDate).Hours()/24)/7 + 1
		covered += weekCount
	}
	if covered != len(weeks) {
		t.Fatalf("covered %d weeks across eras, want %d", covered, len(weeks))
	}
}
