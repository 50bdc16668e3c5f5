// Package pipeline drives a single session through parse → stats →
// segment → name → playlist, one session per worker goroutine, publishing
// progress to the session store as it goes.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/soundtrace/eras-api/internal/event"
	"github.com/soundtrace/eras-api/internal/llmclient"
	"github.com/soundtrace/eras-api/internal/metrics"
	"github.com/soundtrace/eras-api/internal/parser"
	"github.com/soundtrace/eras-api/internal/playlist"
	"github.com/soundtrace/eras-api/internal/segment"
	"github.com/soundtrace/eras-api/internal/session"
	"github.com/soundtrace/eras-api/internal/stats"
)

// progress milestones. Parsing/stats and segmentation are CPU-bound and
// fast; naming dominates wall-clock time since it's one network round trip
// per era, so it gets the widest band.
const (
	percentParsed    = 20
	percentSegmented = 40
	percentNamedLow  = 40
	percentNamedHigh = 70
	percentPlaylists = 80
	percentComplete  = 100
)

// FailedProcessingError means the pipeline ran to completion but produced
// nothing usable — e.g. zero eras survived the significance filter.
type FailedProcessingError struct {
	Reason string
}

func (e *FailedProcessingError) Error() string { return e.Reason }

// Driver owns the dependencies a session run needs beyond its own data:
// the session store to publish progress into, and the LLM client to name
// eras with.
type Driver struct {
	Store     *session.Store
	Namer     *llmclient.Client
	SegConfig segment.Config
}

// NewDriver builds a Driver with the given store, namer, and segmentation
// config.
func NewDriver(store *session.Store, namer *llmclient.Client, segConfig segment.Config) *Driver {
	return &Driver{Store: store, Namer: namer, SegConfig: segConfig}
}

// Ingest parses the uploaded bytes synchronously and stores the resulting
// events on the session, advancing it to StageParsed. This runs on the
// request goroutine (parsing errors must surface synchronously from
// /upload, per the API contract) — Run is what continues from here in the
// background.
func (d *Driver) Ingest(sessionID string, data []byte, filename string) ([]event.Event, error) {
	kind := parser.DetectKind(data, filename)
	events, err := parser.Parse(data, kind)
	if err != nil {
		return nil, err
	}

	d.Store.Update(sessionID, func(sess *session.Session) {
		sess.Events = events
	})
	d.Store.AdvanceStage(sessionID, session.StageParsed, percentParsed, "parsed upload")

	return events, nil
}

// Run executes the rest of the pipeline — stats, segmentation, LLM naming,
// playlist building — for an already-parsed session. Intended to run on a
// dedicated goroutine per session so that distinct sessions proceed in
// parallel while each session's own stages run strictly in sequence.
func (d *Driver) Run(ctx context.Context, sessionID string) {
	sess, ok := d.Store.Get(sessionID)
	if !ok {
		return
	}
	events := sess.Events

	started := time.Now()
	failed := false
	defer func() {
		if r := recover(); r != nil {
			d.Store.Fail(sessionID, fmt.Errorf("internal error: %v", r))
			failed = true
		}
		metrics.PipelineDuration.Observe(time.Since(started).Seconds())
		if failed {
			metrics.PipelineFailures.Inc()
		} else {
			metrics.PipelineCompletions.Inc()
		}
	}()

	summary := stats.Compute(events)
	d.Store.Update(sessionID, func(s *session.Session) {
		s.Stats = summary
		s.Events = nil // reclaim the session's copy now that stats are computed; segmentation below uses the local slice
	})

	eras := segment.Detect(events, d.SegConfig)
	if len(eras) == 0 {
		d.Store.Fail(sessionID, &FailedProcessingError{Reason: "No distinct eras found"})
		failed = true
		return
	}
	d.Store.AdvanceStage(sessionID, session.StageSegmented, percentSegmented, "segmented into eras")

	named := llmclient.NameAll(ctx, d.Namer, eras, func(fraction float64) {
		percent := percentNamedLow + int(fraction*float64(percentNamedHigh-percentNamedLow))
		d.Store.AdvanceStage(sessionID, session.StageSegmented, percent, "naming eras")
	})
	d.Store.Update(sessionID, func(s *session.Session) {
		s.Eras = named
	})
	d.Store.AdvanceStage(sessionID, session.StageNamed, percentNamedHigh, "named eras")

	playlists := playlist.BuildAll(named)
	d.Store.Update(sessionID, func(s *session.Session) {
		s.Playlist = playlists
	})
	d.Store.AdvanceStage(sessionID, session.StagePlaylists, percentPlaylists, "built playlists")

	d.Store.AdvanceStage(sessionID, session.StageComplete, percentComplete, "done")
}
