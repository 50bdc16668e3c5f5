package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/soundtrace/eras-api/internal/logging"
	"github.com/soundtrace/eras-api/internal/metrics"
	"github.com/soundtrace/eras-api/internal/parser"
	"github.com/soundtrace/eras-api/internal/pipeline"
	"github.com/soundtrace/eras-api/internal/session"
)

// handleUpload accepts a multipart "file" field, parses it synchronously,
// and returns the new session id. Parse errors surface directly as 400s —
// they never enter the progress stream.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		metrics.UploadsRejected.Inc()
		writeError(w, http.StatusBadRequest, "missing upload field \"file\"")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		metrics.UploadsRejected.Inc()
		writeError(w, http.StatusBadRequest, "reading upload: "+err.Error())
		return
	}

	sess := s.store.New()
	if _, err := s.driver.Ingest(sess.ID, data, header.Filename); err != nil {
		metrics.UploadsRejected.Inc()
		var parseErr *parser.ParseError
		if errors.As(err, &parseErr) {
			writeError(w, http.StatusBadRequest, parseErr.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	metrics.UploadsAccepted.Inc()
	writeJSON(w, http.StatusOK, map[string]string{"session_id": sess.ID})
}

// handleProcess triggers the rest of the pipeline in the background and
// acknowledges immediately. Pipeline failures never surface here — they
// land in the session's progress and error fields instead.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	sess, ok := s.store.Get(sessionID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	if sess.Progress.Stage != session.StageParsed {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("session is not ready to process (stage: %s)", sess.Progress.Stage))
		return
	}

	go s.driver.Run(context.Background(), sessionID)

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

const (
	progressPollInterval = 500 * time.Millisecond
	progressKeepalive    = 15 * time.Second
)

// handleProgress streams progress snapshots as server-sent events until the
// session completes, errors, the ceiling elapses, or the client disconnects.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	if _, ok := s.store.Get(sessionID); !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ProgressCeiling)
	defer cancel()

	pollTicker := time.NewTicker(progressPollInterval)
	defer pollTicker.Stop()
	keepaliveTicker := time.NewTicker(progressKeepalive)
	defer keepaliveTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepaliveTicker.C:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-pollTicker.C:
			sess, ok := s.store.Get(sessionID)
			if !ok {
				return
			}
			if !writeProgressFrame(w, sess.Progress) {
				return
			}
			flusher.Flush()
			if sess.Progress.Stage == session.StageComplete || sess.Progress.Stage == session.StageError {
				return
			}
		}
	}
}

func writeProgressFrame(w io.Writer, p session.Progress) bool {
	payload, err := marshalProgress(p)
	if err != nil {
		logging.Logger().Error().Err(err).Msg("encoding progress frame")
		return false
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err == nil
}

// handleSummary returns the whole-history aggregate, available once the
// pipeline reaches StageComplete.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	if !s.requireComplete(w, sess) {
		return
	}

	writeJSON(w, http.StatusOK, summaryResponse{
		TotalEras:            len(sess.Eras),
		DateRange:            dateRangeJSON{Start: sess.Stats.DateRange.Start.Format("2006-01-02"), End: sess.Stats.DateRange.End.Format("2006-01-02")},
		TotalListeningTimeMs: sess.Stats.TotalMs,
		TotalTracks:          sess.Stats.TotalTracks,
		TotalArtists:         sess.Stats.TotalArtists,
	})
}

// handleEraList returns every era in summary form, sorted ascending by
// start date (the segmenter already produces them in that order).
func (s *Server) handleEraList(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	if !s.requireComplete(w, sess) {
		return
	}

	out := make([]eraSummaryJSON, len(sess.Eras))
	for i, era := range sess.Eras {
		out[i] = toEraSummaryJSON(era, len(sess.Playlist[era.ID].Tracks))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleEraDetail returns one era's full detail plus its playlist.
func (s *Server) handleEraDetail(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	if !s.requireComplete(w, sess) {
		return
	}

	eraIDParam := chi.URLParam(r, "era_id")
	eraID, err := strconv.Atoi(eraIDParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, "era_id must be an integer")
		return
	}

	for _, era := range sess.Eras {
		if era.ID == eraID {
			writeJSON(w, http.StatusOK, toEraDetailJSON(era, sess.Playlist[era.ID]))
			return
		}
	}
	writeError(w, http.StatusNotFound, "unknown era")
}

// lookupSession resolves the session id path param, writing a 404 if it
// doesn't exist.
func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sessionID := chi.URLParam(r, "session_id")
	sess, ok := s.store.Get(sessionID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return nil, false
	}
	return sess, true
}

// requireComplete writes the appropriate non-2xx response and returns false
// unless the session has finished processing.
func (s *Server) requireComplete(w http.ResponseWriter, sess *session.Session) bool {
	switch sess.Progress.Stage {
	case session.StageComplete:
		return true
	case session.StageError:
		writeErrorWithStage(w, http.StatusBadRequest, errMessage(sess), string(sess.Progress.Stage))
		return false
	default:
		writeErrorWithStage(w, http.StatusTooEarly, "Processing not complete", string(sess.Progress.Stage))
		return false
	}
}

func errMessage(sess *session.Session) string {
	var fpe *pipeline.FailedProcessingError
	if errors.As(sess.Err, &fpe) {
		return fpe.Error()
	}
	if sess.Err != nil {
		return sess.Err.Error()
	}
	return "processing failed"
}
