package models

import (
	"encoding/json"
	"time"
)

// MediaKind discriminates between the two catalog media types. The values
// match TMDB path segments so they can be used directly in API calls.
type MediaKind string

const (
	KindMovie MediaKind = "movie"
	KindTV    MediaKind = "tv"
)

// Valid reports whether the kind is one of the known media types.
func (k MediaKind) Valid() bool {
	return k == KindMovie || k == KindTV
}

// Genre is a catalog genre tag.
type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// CastMember is an actor credit, truncated to the top billed names.
type CastMember struct {
	Name      string `json:"name"`
	Character string `json:"character"`
}

// CrewMember is a key crew credit (Director, Writer, Producer, Creator).
type CrewMember struct {
	Name string `json:"name"`
	Job  string `json:"job"`
}

// Entry represents a media item held in the watchlist or watched collection.
// The pair (Kind, ID) is its identity within a collection; the same TMDB ID
// can denote different items across kinds.
type Entry struct {
	ID             int             `json:"id"`
	Kind           MediaKind       `json:"kind"`
	Title          string          `json:"title"`
	PosterPath     string          `json:"poster_path,omitempty"`
	BackdropPath   string          `json:"backdrop_path,omitempty"`
	ReleaseDate    string          `json:"release_date,omitempty"` // YYYY-MM-DD, may be empty
	Overview       string          `json:"overview,omitempty"`
	Tagline        string          `json:"tagline,omitempty"`
	Genres         []Genre         `json:"genres,omitempty"`
	RuntimeMinutes int             `json:"runtime,omitempty"`
	VoteAverage    float64         `json:"vote_average,omitempty"`
	Cast           []CastMember    `json:"cast,omitempty"`
	Crew           []CrewMember    `json:"crew,omitempty"`
	WatchProviders json.RawMessage `json:"watch_providers,omitempty"`
	ExternalIDs    json.RawMessage `json:"external_ids,omitempty"`
	AddedAt        time.Time       `json:"added_at"`
	WatchedAt      time.Time       `json:"watched_at"`
	UserRating     int             `json:"user_rating,omitempty"` // 0 means unrated
	UserReview     string          `json:"user_review,omitempty"`
}

// Key returns the (kind, id) identity of the entry.
func (e *Entry) Key() MediaKey {
	return MediaKey{Kind: e.Kind, ID: e.ID}
}

// Year extracts the release year, or an empty string when the release date
// is missing or malformed.
func (e *Entry) Year() string {
	if len(e.ReleaseDate) < 4 {
		return ""
	}
	return e.ReleaseDate[:4]
}

// Director returns the name of the first Director crew credit, or "Unknown".
func (e *Entry) Director() string {
	for _, c := range e.Crew {
		if c.Job == "Director" {
			return c.Name
		}
	}
	return "Unknown"
}

// MediaKey identifies a media item across collections and candidate lists.
type MediaKey struct {
	Kind MediaKind
	ID   int
}

// Collection is the persisted root object: the two entry lists.
type Collection struct {
	Watchlist []Entry `json:"watchlist"`
	Watched   []Entry `json:"watched"`
}

// Recommendation is a ranked catalog candidate. Priority is the source
// tier (higher ranks first), Source is a human-readable provenance label.
// Recommendations are derived and never persisted.
type Recommendation struct {
	ID          int       `json:"id"`
	Kind        MediaKind `json:"kind"`
	Title       string    `json:"title"`
	PosterPath  string    `json:"poster_path,omitempty"`
	ReleaseDate string    `json:"release_date,omitempty"`
	Overview    string    `json:"overview,omitempty"`
	VoteAverage float64   `json:"vote_average"`
	Priority    int       `json:"priority"`
	Source      string    `json:"source"`
}

// Key returns the (kind, id) identity of the candidate.
func (r *Recommendation) Key() MediaKey {
	return MediaKey{Kind: r.Kind, ID: r.ID}
}

// GenreCount is one row of the genre frequency ranking. BarWidth is the
// count normalized against the most frequent genre, in (0, 1].
type GenreCount struct {
	Name     string  `json:"name"`
	Count    int     `json:"count"`
	BarWidth float64 `json:"bar_width"`
}

// Stats aggregates both collections for the statistics view.
type Stats struct {
	TotalItems    int          `json:"total_items"`
	TotalWatched  int          `json:"total_watched"`
	AverageRating float64      `json:"average_rating"`
	TotalHours    int          `json:"total_hours"`
	TopRated      []Entry      `json:"top_rated"`
	TopGenres     []GenreCount `json:"top_genres"`
}
