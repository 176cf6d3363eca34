package tmdb

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"

	"media-tracker/internal/models"
)

const (
	defaultBaseURL  = "https://api.themoviedb.org/3"
	defaultTimeout  = 10 * time.Second
	requestInterval = 100 * time.Millisecond // spacing between requests to stay under API limits
	retryAttempts   = 3
	retryDelay      = 200 * time.Millisecond

	maxCastCredits = 10
	maxCrewCredits = 5
)

// keyCrewJobs are the crew roles kept on an Entry; everything else is dropped
// at fetch time.
var keyCrewJobs = map[string]bool{
	"Director": true,
	"Writer":   true,
	"Producer": true,
	"Creator":  true,
}

// Client handles all interactions with the TMDB API. Safe for concurrent
// use.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client

	mu          sync.Mutex
	lastRequest time.Time
}

// MediaSummary is a normalized catalog list item. Movie and TV payloads use
// different field names (title/name, release_date/first_air_date); both are
// folded into this shape at decode time.
type MediaSummary struct {
	ID          int              `json:"id"`
	Kind        models.MediaKind `json:"kind"`
	Title       string           `json:"title"`
	PosterPath  string           `json:"poster_path"`
	ReleaseDate string           `json:"release_date"`
	Overview    string           `json:"overview"`
	VoteAverage float64          `json:"vote_average"`
	VoteCount   int              `json:"vote_count"`
	GenreIDs    []int            `json:"genre_ids"`
}

// Details is a normalized detail record with credits, providers and external
// ids already folded in.
type Details struct {
	ID             int                 `json:"id"`
	Kind           models.MediaKind    `json:"kind"`
	Title          string              `json:"title"`
	PosterPath     string              `json:"poster_path"`
	BackdropPath   string              `json:"backdrop_path"`
	ReleaseDate    string              `json:"release_date"`
	Overview       string              `json:"overview"`
	Tagline        string              `json:"tagline"`
	Genres         []models.Genre      `json:"genres"`
	RuntimeMinutes int                 `json:"runtime"`
	VoteAverage    float64             `json:"vote_average"`
	Cast           []models.CastMember `json:"cast"`
	Crew           []models.CrewMember `json:"crew"`
	WatchProviders json.RawMessage     `json:"watch_providers,omitempty"`
	ExternalIDs    json.RawMessage     `json:"external_ids,omitempty"`
}

// QualityFloor is the minimum vote count and average applied to genre
// discovery queries.
type QualityFloor struct {
	MinVoteCount   int
	MinVoteAverage float64
}

// APIError represents an error returned by the TMDB API. StatusCode is
// TMDB's own error code from the response body (34 = not found); HTTPStatus
// is the HTTP status of the response and drives retry classification.
type APIError struct {
	StatusCode    int    `json:"status_code"`
	StatusMessage string `json:"status_message"`
	HTTPStatus    int    `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("TMDB API error (code %d): %s", e.StatusCode, e.StatusMessage)
}

// NewClient creates a new TMDB API client.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// NewClientWithHTTP creates a new TMDB API client with a custom HTTP client.
func NewClientWithHTTP(apiKey string, httpClient *http.Client) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: httpClient,
	}
}

// SetBaseURL allows overriding the base URL (useful for testing).
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

// rawSummary holds the union of movie and TV list-item fields.
type rawSummary struct {
	ID           int     `json:"id"`
	Title        string  `json:"title"`
	Name         string  `json:"name"`
	PosterPath   string  `json:"poster_path"`
	ReleaseDate  string  `json:"release_date"`
	FirstAirDate string  `json:"first_air_date"`
	Overview     string  `json:"overview"`
	VoteAverage  float64 `json:"vote_average"`
	VoteCount    int     `json:"vote_count"`
	GenreIDs     []int   `json:"genre_ids"`
}

func (r rawSummary) normalize(kind models.MediaKind) MediaSummary {
	s := MediaSummary{
		ID:          r.ID,
		Kind:        kind,
		Title:       r.Title,
		PosterPath:  r.PosterPath,
		ReleaseDate: r.ReleaseDate,
		Overview:    r.Overview,
		VoteAverage: r.VoteAverage,
		VoteCount:   r.VoteCount,
		GenreIDs:    r.GenreIDs,
	}
	if kind == models.KindTV {
		s.Title = r.Name
		s.ReleaseDate = r.FirstAirDate
	}
	return s
}

// listResponse wraps the TMDB paged list responses (search, discover,
// recommendations, similar).
type listResponse struct {
	Results []rawSummary `json:"results"`
}

type rawCredit struct {
	Name      string `json:"name"`
	Character string `json:"character"`
	Job       string `json:"job"`
}

// rawDetails holds the union of movie and TV detail fields with the
// appended credits, providers and external ids.
type rawDetails struct {
	ID             int            `json:"id"`
	Title          string         `json:"title"`
	Name           string         `json:"name"`
	PosterPath     string         `json:"poster_path"`
	BackdropPath   string         `json:"backdrop_path"`
	ReleaseDate    string         `json:"release_date"`
	FirstAirDate   string         `json:"first_air_date"`
	Overview       string         `json:"overview"`
	Tagline        string         `json:"tagline"`
	Genres         []models.Genre `json:"genres"`
	Runtime        int            `json:"runtime"`
	EpisodeRunTime []int          `json:"episode_run_time"`
	VoteAverage    float64        `json:"vote_average"`
	CreatedBy      []struct {
		Name string `json:"name"`
	} `json:"created_by"`
	Credits struct {
		Cast []rawCredit `json:"cast"`
		Crew []rawCredit `json:"crew"`
	} `json:"credits"`
	WatchProviders json.RawMessage `json:"watch/providers"`
	ExternalIDs    json.RawMessage `json:"external_ids"`
}

func (r *rawDetails) normalize(kind models.MediaKind) *Details {
	d := &Details{
		ID:             r.ID,
		Kind:           kind,
		Title:          r.Title,
		PosterPath:     r.PosterPath,
		BackdropPath:   r.BackdropPath,
		ReleaseDate:    r.ReleaseDate,
		Overview:       r.Overview,
		Tagline:        r.Tagline,
		Genres:         r.Genres,
		RuntimeMinutes: r.Runtime,
		VoteAverage:    r.VoteAverage,
		WatchProviders: r.WatchProviders,
		ExternalIDs:    r.ExternalIDs,
	}
	if kind == models.KindTV {
		d.Title = r.Name
		d.ReleaseDate = r.FirstAirDate
		if len(r.EpisodeRunTime) > 0 {
			d.RuntimeMinutes = r.EpisodeRunTime[0]
		}
	}

	for _, c := range r.Credits.Cast {
		if len(d.Cast) >= maxCastCredits {
			break
		}
		d.Cast = append(d.Cast, models.CastMember{Name: c.Name, Character: c.Character})
	}

	// TV shows credit their creators outside the crew list.
	for _, c := range r.CreatedBy {
		d.Crew = append(d.Crew, models.CrewMember{Name: c.Name, Job: "Creator"})
	}
	for _, c := range r.Credits.Crew {
		if !keyCrewJobs[c.Job] {
			continue
		}
		d.Crew = append(d.Crew, models.CrewMember{Name: c.Name, Job: c.Job})
	}
	if len(d.Crew) > maxCrewCredits {
		d.Crew = d.Crew[:maxCrewCredits]
	}

	return d
}

// Search searches the catalog by free-text query.
// Calls TMDB /search/movie or /search/tv.
func (c *Client) Search(query string, kind models.MediaKind) ([]MediaSummary, error) {
	if query == "" {
		return []MediaSummary{}, nil
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("invalid media kind: %q", kind)
	}

	endpoint := fmt.Sprintf("%s/search/%s?api_key=%s&query=%s&page=1",
		c.baseURL, kind, c.apiKey, url.QueryEscape(query))

	var result listResponse
	if err := c.getJSON(endpoint, &result); err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", kind, err)
	}
	return normalizeAll(result.Results, kind), nil
}

// GetDetails fetches the full detail record for a media item, with credits,
// watch providers and external ids appended in a single request.
func (c *Client) GetDetails(id int, kind models.MediaKind) (*Details, error) {
	if id <= 0 {
		return nil, fmt.Errorf("invalid TMDB ID: %d", id)
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("invalid media kind: %q", kind)
	}

	endpoint := fmt.Sprintf("%s/%s/%d?api_key=%s&append_to_response=credits,watch/providers,external_ids",
		c.baseURL, kind, id, c.apiKey)

	var raw rawDetails
	if err := c.getJSON(endpoint, &raw); err != nil {
		return nil, fmt.Errorf("failed to get %s details: %w", kind, err)
	}
	return raw.normalize(kind), nil
}

// GetRecommendations fetches catalog recommendations seeded by a media item.
func (c *Client) GetRecommendations(id int, kind models.MediaKind) ([]MediaSummary, error) {
	return c.relatedList(id, kind, "recommendations")
}

// GetSimilar fetches items the catalog considers similar to a media item.
func (c *Client) GetSimilar(id int, kind models.MediaKind) ([]MediaSummary, error) {
	return c.relatedList(id, kind, "similar")
}

func (c *Client) relatedList(id int, kind models.MediaKind, relation string) ([]MediaSummary, error) {
	if id <= 0 {
		return nil, fmt.Errorf("invalid TMDB ID: %d", id)
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("invalid media kind: %q", kind)
	}

	endpoint := fmt.Sprintf("%s/%s/%d/%s?api_key=%s&page=1",
		c.baseURL, kind, id, relation, c.apiKey)

	var result listResponse
	if err := c.getJSON(endpoint, &result); err != nil {
		return nil, fmt.Errorf("failed to get %s for %s %d: %w", relation, kind, id, err)
	}
	return normalizeAll(result.Results, kind), nil
}

// DiscoverByGenre runs a genre discovery query sorted by rating, restricted
// to items above the given quality floor.
func (c *Client) DiscoverByGenre(genreIDs []int, kind models.MediaKind, floor QualityFloor) ([]MediaSummary, error) {
	if len(genreIDs) == 0 {
		return []MediaSummary{}, nil
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("invalid media kind: %q", kind)
	}

	ids := make([]string, len(genreIDs))
	for i, id := range genreIDs {
		ids[i] = strconv.Itoa(id)
	}

	endpoint := fmt.Sprintf("%s/discover/%s?api_key=%s&with_genres=%s&sort_by=vote_average.desc&vote_count.gte=%d&vote_average.gte=%.1f&page=1",
		c.baseURL, kind, c.apiKey, strings.Join(ids, ","), floor.MinVoteCount, floor.MinVoteAverage)

	var result listResponse
	if err := c.getJSON(endpoint, &result); err != nil {
		return nil, fmt.Errorf("failed to discover %s by genre: %w", kind, err)
	}
	return normalizeAll(result.Results, kind), nil
}

// genreListResponse wraps the TMDB genre list response.
type genreListResponse struct {
	Genres []models.Genre `json:"genres"`
}

// GetGenres fetches the catalog genre list for a media kind.
func (c *Client) GetGenres(kind models.MediaKind) ([]models.Genre, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("invalid media kind: %q", kind)
	}

	endpoint := fmt.Sprintf("%s/genre/%s/list?api_key=%s", c.baseURL, kind, c.apiKey)

	var result genreListResponse
	if err := c.getJSON(endpoint, &result); err != nil {
		return nil, fmt.Errorf("failed to get %s genres: %w", kind, err)
	}
	return result.Genres, nil
}

// GetWatchProviders fetches streaming availability for a media item as an
// opaque payload passed through to the display layer.
func (c *Client) GetWatchProviders(id int, kind models.MediaKind) (json.RawMessage, error) {
	if id <= 0 {
		return nil, fmt.Errorf("invalid TMDB ID: %d", id)
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("invalid media kind: %q", kind)
	}

	endpoint := fmt.Sprintf("%s/%s/%d/watch/providers?api_key=%s", c.baseURL, kind, id, c.apiKey)

	var result json.RawMessage
	if err := c.getJSON(endpoint, &result); err != nil {
		return nil, fmt.Errorf("failed to get watch providers for %s %d: %w", kind, id, err)
	}
	return result, nil
}

func normalizeAll(raw []rawSummary, kind models.MediaKind) []MediaSummary {
	out := make([]MediaSummary, 0, len(raw))
	for _, r := range raw {
		out = append(out, r.normalize(kind))
	}
	return out
}

// getJSON performs a rate-limited GET with retries and decodes the response
// body into out. Client errors are not retried; server errors and transport
// failures are.
func (c *Client) getJSON(endpoint string, out any) error {
	c.rateLimit()

	return retry.Do(
		func() error {
			resp, err := c.httpClient.Get(endpoint)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if err := c.checkResponse(resp); err != nil {
				var apiErr *APIError
				if errors.As(err, &apiErr) && apiErr.HTTPStatus >= 400 && apiErr.HTTPStatus < 500 && apiErr.HTTPStatus != http.StatusTooManyRequests {
					return retry.Unrecoverable(err)
				}
				return err
			}

			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return retry.Unrecoverable(fmt.Errorf("failed to decode response: %w", err))
			}
			return nil
		},
		retry.Attempts(retryAttempts),
		retry.Delay(retryDelay),
		retry.LastErrorOnly(true),
	)
}

// checkResponse checks the HTTP response for errors.
func (c *Client) checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{
			StatusCode:    resp.StatusCode,
			StatusMessage: fmt.Sprintf("HTTP %d: failed to read error response", resp.StatusCode),
			HTTPStatus:    resp.StatusCode,
		}
	}

	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		return &APIError{
			StatusCode:    resp.StatusCode,
			StatusMessage: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body)),
			HTTPStatus:    resp.StatusCode,
		}
	}

	apiErr.HTTPStatus = resp.StatusCode
	if apiErr.StatusCode == 0 {
		apiErr.StatusCode = resp.StatusCode
	}
	if apiErr.StatusMessage == "" {
		apiErr.StatusMessage = fmt.Sprintf("HTTP %d error", resp.StatusCode)
	}

	return &apiErr
}

// rateLimit ensures requests are spaced out to avoid hitting API limits.
// Concurrent callers are serialized onto the request interval.
func (c *Client) rateLimit() {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.lastRequest)
	if elapsed < requestInterval {
		time.Sleep(requestInterval - elapsed)
	}
	c.lastRequest = time.Now()
}
