package httpapi

import (
	json "github.com/goccy/go-json"

	"github.com/soundtrace/eras-api/internal/playlist"
	"github.com/soundtrace/eras-api/internal/segment"
	"github.com/soundtrace/eras-api/internal/session"
)

type dateRangeJSON struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type summaryResponse struct {
	TotalEras            int           `json:"total_eras"`
	DateRange            dateRangeJSON `json:"date_range"`
	TotalListeningTimeMs int64         `json:"total_listening_time_ms"`
	TotalTracks          int           `json:"total_tracks"`
	TotalArtists         int           `json:"total_artists"`
}

type namedCountJSON struct {
	Name  string `json:"name"`
	Plays int    `json:"plays"`
}

type eraSummaryJSON struct {
	ID                 int              `json:"id"`
	Title              string           `json:"title"`
	StartDate          string           `json:"start_date"`
	EndDate            string           `json:"end_date"`
	TopArtists         []namedCountJSON `json:"top_artists"`
	PlaylistTrackCount int              `json:"playlist_track_count"`
}

const eraSummaryTopArtists = 3

func toEraSummaryJSON(era segment.Era, playlistTrackCount int) eraSummaryJSON {
	n := len(era.TopArtists)
	if n > eraSummaryTopArtists {
		n = eraSummaryTopArtists
	}
	top := make([]namedCountJSON, n)
	for i := 0; i < n; i++ {
		top[i] = namedCountJSON{Name: era.TopArtists[i].Artist, Plays: era.TopArtists[i].Plays}
	}

	return eraSummaryJSON{
		ID:                 era.ID,
		Title:              era.Title,
		StartDate:          era.StartDate.Format("2006-01-02"),
		EndDate:            era.EndDate.Format("2006-01-02"),
		TopArtists:         top,
		PlaylistTrackCount: playlistTrackCount,
	}
}

type trackCountJSON struct {
	Track  string `json:"track"`
	Artist string `json:"artist"`
	Plays  int    `json:"plays"`
}

type playlistTrackJSON struct {
	TrackName  string  `json:"track_name"`
	ArtistName string  `json:"artist_name"`
	PlayCount  int     `json:"play_count"`
	URI        *string `json:"uri"`
}

type playlistJSON struct {
	EraID  int                 `json:"era_id"`
	Tracks []playlistTrackJSON `json:"tracks"`
}

type eraDetailJSON struct {
	ID            int              `json:"id"`
	Title         string           `json:"title"`
	Summary       string           `json:"summary"`
	StartDate     string           `json:"start_date"`
	EndDate       string           `json:"end_date"`
	TotalMsPlayed int64            `json:"total_ms_played"`
	TopArtists    []namedCountJSON `json:"top_artists"`
	TopTracks     []trackCountJSON `json:"top_tracks"`
	Playlist      *playlistJSON    `json:"playlist"`
}

func toEraDetailJSON(era segment.Era, pl playlist.Playlist) eraDetailJSON {
	topArtists := make([]namedCountJSON, len(era.TopArtists))
	for i, a := range era.TopArtists {
		topArtists[i] = namedCountJSON{Name: a.Artist, Plays: a.Plays}
	}

	topTracks := make([]trackCountJSON, len(era.TopTracks))
	for i, t := range era.TopTracks {
		topTracks[i] = trackCountJSON{Track: t.Track, Artist: t.Artist, Plays: t.Plays}
	}

	var playlistOut *playlistJSON
	if len(pl.Tracks) > 0 {
		tracks := make([]playlistTrackJSON, len(pl.Tracks))
		for i, t := range pl.Tracks {
			tracks[i] = playlistTrackJSON{TrackName: t.TrackName, ArtistName: t.ArtistName, PlayCount: t.PlayCount, URI: t.URI}
		}
		playlistOut = &playlistJSON{EraID: pl.EraID, Tracks: tracks}
	}

	return eraDetailJSON{
		ID:            era.ID,
		Title:         era.Title,
		Summary:       era.Summary,
		StartDate:     era.StartDate.Format("2006-01-02"),
		EndDate:       era.EndDate.Format("2006-01-02"),
		TotalMsPlayed: era.TotalMsPlayed,
		TopArtists:    topArtists,
		TopTracks:     topTracks,
		Playlist:      playlistOut,
	}
}

type progressJSON struct {
	Stage   string `json:"stage"`
	Percent int    `json:"percent"`
	Message string `json:"message,omitempty"`
}

func marshalProgress(p session.Progress) ([]byte, error) {
	return json.Marshal(progressJSON{Stage: string(p.Stage), Percent: p.Percent, Message: p.Message})
}
