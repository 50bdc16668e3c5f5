// Package playlist projects an era's ranked track list into the derived
// playlist shape served by the HTTP API. It holds no state and makes no
// external calls — Spotify playlist creation is out of scope.
package playlist

import "github.com/soundtrace/eras-api/internal/segment"

// Track is one playlist entry. URI is always nil: nothing in this system
// resolves a track back to a Spotify URI.
type Track struct {
	TrackName  string
	ArtistName string
	PlayCount  int
	URI        *string
}

// Playlist is the derived track list for one era.
type Playlist struct {
	EraID  int
	Tracks []Track
}

// Build projects an era's top tracks into a Playlist, preserving the
// ranking order the segmenter already established.
func Build(era segment.Era) Playlist {
	tracks := make([]Track, len(era.TopTracks))
	for i, t := range era.TopTracks {
		tracks[i] = Track{
			TrackName:  t.Track,
			ArtistName: t.Artist,
			PlayCount:  t.Plays,
		}
	}
	return Playlist{EraID: era.ID, Tracks: tracks}
}

// BuildAll projects every era's playlist, keyed by era ID.
func BuildAll(eras []segment.Era) map[int]Playlist {
	out := make(map[int]Playlist, len(eras))
	for _, era := range eras {
		out[era.ID] = Build(era)
	}
	return out
}
