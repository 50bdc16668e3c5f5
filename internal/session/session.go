// Package session holds the in-memory, TTL-swept session store that backs
// the upload → process → read lifecycle. Sessions are never persisted:
// losing the process loses every in-flight session, which is the accepted
// tradeoff of the no-database scope.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soundtrace/eras-api/internal/event"
	"github.com/soundtrace/eras-api/internal/logging"
	"github.com/soundtrace/eras-api/internal/playlist"
	"github.com/soundtrace/eras-api/internal/segment"
	"github.com/soundtrace/eras-api/internal/stats"
)

// Stage is one step of the linear pipeline state machine.
type Stage string

const (
	StageUploading Stage = "uploading"
	StageParsed    Stage = "parsed"
	StageSegmented Stage = "segmented"
	StageNamed     Stage = "named"
	StagePlaylists Stage = "playlists"
	StageComplete  Stage = "complete"
	StageError     Stage = "error"
)

// stageOrder gives each stage except StageError its position in the
// pipeline, used to reject any attempt to move a session backward.
var stageOrder = map[Stage]int{
	StageUploading: 0,
	StageParsed:    1,
	StageSegmented: 2,
	StageNamed:     3,
	StagePlaylists: 4,
	StageComplete:  5,
}

// Progress is a point-in-time snapshot of pipeline progress, safe to copy.
type Progress struct {
	Stage   Stage
	Percent int // 0-100, monotonically non-decreasing within a session
	Message string
}

// Session is one uploaded-history lifecycle: raw events while parsing,
// then derived stats/eras/playlists as the pipeline advances.
type Session struct {
	ID       string
	Events   []event.Event
	Stats    stats.Aggregate
	Eras     []segment.Era
	Playlist map[int]playlist.Playlist
	Progress Progress
	Err      error

	CreatedAt      time.Time
	LastAccessedAt time.Time
}

// Store is a mutex-protected, TTL-swept collection of Sessions. The zero
// value is not usable; use NewStore.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration

	stopSweep chan struct{}
}

// NewStore creates a Store and starts its background TTL sweeper, which
// walks the session map every ttl/4 and drops anything idle longer than
// ttl.
func NewStore(ttl time.Duration) *Store {
	s := &Store{
		sessions:  make(map[string]*Session),
		ttl:       ttl,
		stopSweep: make(chan struct{}),
	}
	go s.sweepLoop(ttl / 4)
	return s
}

// Close stops the background sweeper. Sessions already in the store are
// left as-is.
func (s *Store) Close() {
	close(s.stopSweep)
}

func (s *Store) sweepLoop(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopSweep:
			return
		}
	}
}

func (s *Store) sweep() {
	cutoff := time.Now().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if sess.LastAccessedAt.Before(cutoff) {
			delete(s.sessions, id)
		}
	}
}

// New creates and stores a fresh Session in StageUploading, returning it.
func (s *Store) New() *Session {
	now := time.Now()
	sess := &Session{
		ID:             uuid.NewString(),
		Progress:       Progress{Stage: StageUploading, Percent: 0},
		CreatedAt:      now,
		LastAccessedAt: now,
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	return sess
}

// Get retrieves a session by ID, touching its LastAccessedAt, or returns
// (nil, false) if it doesn't exist (including if the sweeper already
// reclaimed it).
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	sess.LastAccessedAt = time.Now()
	return sess, true
}

// Update applies fn to the session under lock, so callers can mutate
// multiple fields (e.g. Eras and Progress together) atomically. fn must not
// retain the *Session pointer past its call.
func (s *Store) Update(id string, fn func(*Session)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	fn(sess)
	sess.LastAccessedAt = time.Now()
	return true
}

// AdvanceStage moves a session to the given stage and percent, rejecting
// any move that would go backward in the pipeline (StageError is always
// accepted, as a terminal override) or decrease Percent.
func (s *Store) AdvanceStage(id string, stage Stage, percent int, message string) bool {
	applied := false
	ok := s.Update(id, func(sess *Session) {
		if stage != StageError {
			if sess.Progress.Stage == StageError {
				return
			}
			if stageOrder[stage] < stageOrder[sess.Progress.Stage] {
				return
			}
			if percent < sess.Progress.Percent {
				percent = sess.Progress.Percent
			}
		}
		sess.Progress = Progress{Stage: stage, Percent: percent, Message: message}
		applied = true
	})
	if ok && applied {
		logging.Logger().Info().
			Str("session_id", id).
			Str("stage", string(stage)).
			Int("percent", percent).
			Str("message", message).
			Msg("session stage advanced")
	}
	return ok
}

// Fail marks a session StageError with the given error, at its current
// Percent (error is not a progress regression, it freezes progress).
func (s *Store) Fail(id string, err error) bool {
	ok := s.Update(id, func(sess *Session) {
		sess.Err = err
		sess.Progress = Progress{Stage: StageError, Percent: sess.Progress.Percent, Message: err.Error()}
	})
	if ok {
		logging.Logger().Error().
			Str("session_id", id).
			Err(err).
			Msg("session pipeline failed")
	}
	return ok
}
