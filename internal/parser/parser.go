// Package parser decodes an uploaded Spotify extended-streaming-history
// export — either a single JSON document or a ZIP archive of them — into a
// deduplicated, sorted slice of event.Event. It never writes to disk.
package parser

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/flate"

	"github.com/soundtrace/eras-api/internal/event"
)

// flateDecompressor backs every deflate-compressed ZIP member with
// klauspost/compress's faster flate implementation instead of the
// standard library's, which matters under the 500 MiB upload ceiling.
func flateDecompressor(r io.Reader) io.ReadCloser {
	return flate.NewReader(r)
}

// Kind identifies the shape of the uploaded bytes.
type Kind string

const (
	KindJSON Kind = "json"
	KindZIP  Kind = "zip"
)

// ZIPMagic is the four-byte signature ("PK\x03\x04") that identifies a ZIP
// archive regardless of its declared filename extension.
var ZIPMagic = []byte{'P', 'K', 0x03, 0x04}

// DetectKind inspects the first bytes of an upload and falls back to the
// filename extension when the magic bytes are inconclusive.
func DetectKind(data []byte, filename string) Kind {
	if bytes.HasPrefix(data, ZIPMagic) {
		return KindZIP
	}
	if strings.HasSuffix(strings.ToLower(filename), ".zip") {
		return KindZIP
	}
	return KindJSON
}

// maxZipUncompressed is the zip-bomb guard: the running total of declared
// uncompressed member sizes may never exceed this.
const maxZipUncompressed = 1 << 30 // 1 GiB

// audioHistoryGlob matches Spotify's extended-streaming-history member
// names, wherever they sit in the archive tree.
const audioHistoryGlob = "*Streaming_History_Audio_*.json"

// ParseError is returned for any decode failure, archive-validity failure,
// or defense-triggered rejection. The HTTP layer maps it to 400.
type ParseError struct {
	Msg string
}

func (e *ParseError) Error() string { return e.Msg }

func newParseError(format string, args ...any) error {
	return &ParseError{Msg: fmt.Sprintf(format, args...)}
}

// rawEntry mirrors one element of the extended-streaming-history JSON
// array. Unknown keys are ignored by encoding/json-compatible decoders;
// missing required keys cause the entry to be skipped, not a parse failure.
type rawEntry struct {
	TS         string `json:"ts"`
	TrackName  string `json:"master_metadata_track_name"`
	ArtistName string `json:"master_metadata_album_artist_name"`
	MsPlayed   int64  `json:"ms_played"`
	SpotifyURI string `json:"spotify_track_uri"`
}

// Parse decodes raw bytes of the given kind into a deduplicated,
// timestamp-sorted event list.
func Parse(data []byte, kind Kind) ([]event.Event, error) {
	switch kind {
	case KindJSON:
		events, err := parseJSON(data)
		if err != nil {
			return nil, err
		}
		return finalize(events), nil
	case KindZIP:
		events, err := parseZIP(data)
		if err != nil {
			return nil, err
		}
		return finalize(events), nil
	default:
		return nil, newParseError("unrecognized file kind %q", kind)
	}
}

// parseJSON decodes a single JSON array of streaming-history entries.
func parseJSON(data []byte) ([]event.Event, error) {
	var entries []rawEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, newParseError("invalid JSON: %v", err)
	}

	events := make([]event.Event, 0, len(entries))
	for _, entry := range entries {
		if entry.TrackName == "" || entry.ArtistName == "" {
			continue
		}
		if entry.MsPlayed < event.MinPlayMs {
			continue
		}
		if entry.TS == "" {
			continue
		}

		ts, err := parseTimestamp(entry.TS)
		if err != nil {
			continue
		}

		events = append(events, event.Event{
			Timestamp: ts,
			Artist:    entry.ArtistName,
			Track:     entry.TrackName,
			MsPlayed:  entry.MsPlayed,
			URI:       entry.SpotifyURI,
		})
	}
	return events, nil
}

// parseTimestamp parses an ISO-8601 timestamp, normalizing a trailing "Z"
// to UTC the way the Spotify export formats it.
func parseTimestamp(ts string) (time.Time, error) {
	if strings.HasSuffix(ts, "Z") {
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return time.Time{}, err
		}
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// parseZIP decodes every selected member of an in-memory ZIP archive and
// concatenates the results. It never extracts to disk.
func parseZIP(data []byte) ([]event.Event, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, newParseError("invalid ZIP archive: %v", err)
	}
	reader.RegisterDecompressor(zip.Deflate, flateDecompressor)

	var events []event.Event
	var totalUncompressed uint64

	for _, f := range reader.File {
		if err := validateMemberName(f.Name); err != nil {
			return nil, err
		}

		totalUncompressed += f.UncompressedSize64
		if totalUncompressed > maxZipUncompressed {
			return nil, newParseError("archive exceeds %d byte uncompressed size limit", maxZipUncompressed)
		}

		if !matchesAudioHistory(f.Name) {
			continue
		}

		memberEvents, err := decodeZipMember(f)
		if err != nil {
			return nil, err
		}
		events = append(events, memberEvents...)
	}

	return events, nil
}

// validateMemberName rejects path traversal and absolute paths before any
// bytes of the member are read.
func validateMemberName(name string) error {
	if path.IsAbs(name) {
		return newParseError("archive member %q has an absolute path", name)
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return newParseError("archive member %q contains a path traversal segment", name)
		}
	}
	return nil
}

// matchesAudioHistory reports whether a member's basename matches
// audioHistoryGlob (*Streaming_History_Audio_*.json), regardless of its
// containing directories.
func matchesAudioHistory(name string) bool {
	base := path.Base(name)
	ok, err := path.Match(audioHistoryGlob, base)
	return err == nil && ok
}

func decodeZipMember(f *zip.File) ([]event.Event, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, newParseError("opening archive member %q: %v", f.Name, err)
	}
	defer rc.Close()

	// Bound the read to the overall uncompressed limit plus one byte; the
	// running-total guard above already caught any member that would blow
	// the overall budget, this just stops one member from streaming forever.
	limited := io.LimitReader(rc, int64(maxZipUncompressed)+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, newParseError("reading archive member %q: %v", f.Name, err)
	}

	events, err := parseJSON(body)
	if err != nil {
		return nil, fmt.Errorf("member %q: %w", f.Name, err)
	}
	return events, nil
}

// finalize deduplicates by (timestamp, track, artist) keeping the first
// occurrence, then sorts ascending by timestamp.
func finalize(events []event.Event) []event.Event {
	seen := make(map[dedupKey]struct{}, len(events))
	out := make([]event.Event, 0, len(events))

	for _, e := range events {
		key := dedupKey{ts: e.Timestamp.UnixNano(), track: e.Track, artist: e.Artist}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	return out
}

type dedupKey struct {
	ts     int64
	track  string
	artist string
}
