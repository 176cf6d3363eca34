package service

import (
	"errors"
	"fmt"
	"sync"

	"media-tracker/internal/models"
	"media-tracker/internal/repository"
	"media-tracker/internal/timeutil"
	"media-tracker/internal/tmdb"
)

// ErrInvalidRating is returned when a rating outside [1,10] is submitted.
var ErrInvalidRating = errors.New("rating must be between 1 and 10")

// CollectionStore is the exclusive owner of the watchlist and watched
// collections. All mutation goes through it, and every mutation persists the
// full collection immediately. Removal and rating of absent entries are
// silent no-ops so the operations stay idempotent.
type CollectionStore struct {
	mu       sync.Mutex
	cacheSvc *DetailsCacheService
	repo     *repository.CollectionRepository
	col      models.Collection
}

// NewCollectionStore creates a CollectionStore, restoring any previously
// persisted collection.
func NewCollectionStore(cacheSvc *DetailsCacheService, repo *repository.CollectionRepository) (*CollectionStore, error) {
	store := &CollectionStore{
		cacheSvc: cacheSvc,
		repo:     repo,
	}

	col, err := repo.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to restore collection: %w", err)
	}
	if col != nil {
		store.col = *col
	}
	return store, nil
}

// AddToWatchlist fetches details for a media item and appends it to the
// watchlist. Returns the existing entry with already=true when the item is
// held in either collection, so a watched item can never re-enter the
// watchlist; a failed detail fetch performs no mutation.
func (s *CollectionStore) AddToWatchlist(id int, kind models.MediaKind) (*models.Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := models.MediaKey{Kind: kind, ID: id}
	if i := findEntry(s.col.Watchlist, key); i >= 0 {
		existing := s.col.Watchlist[i]
		return &existing, true, nil
	}
	if i := findEntry(s.col.Watched, key); i >= 0 {
		existing := s.col.Watched[i]
		return &existing, true, nil
	}

	details, _, err := s.cacheSvc.GetOrRefresh(id, kind)
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch details: %w", err)
	}

	entry := entryFromDetails(details)
	entry.AddedAt = timeutil.Now()

	s.col.Watchlist = append(s.col.Watchlist, entry)
	if err := s.persist(); err != nil {
		return nil, false, err
	}
	return &entry, false, nil
}

// AddToWatched fetches details for a media item and appends it to the
// watched collection, dropping any matching watchlist entry in the same
// operation. The detail fetch happens before the watchlist removal so a
// failed fetch cannot strand an entry that belongs to neither list.
func (s *CollectionStore) AddToWatched(id int, kind models.MediaKind) (*models.Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := models.MediaKey{Kind: kind, ID: id}
	if i := findEntry(s.col.Watched, key); i >= 0 {
		existing := s.col.Watched[i]
		return &existing, true, nil
	}

	details, _, err := s.cacheSvc.GetOrRefresh(id, kind)
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch details: %w", err)
	}

	entry := entryFromDetails(details)
	entry.WatchedAt = timeutil.Now()
	entry.UserRating = 0
	entry.UserReview = ""

	s.col.Watchlist, _ = removeEntry(s.col.Watchlist, key)
	s.col.Watched = append(s.col.Watched, entry)
	if err := s.persist(); err != nil {
		return nil, false, err
	}
	return &entry, false, nil
}

// MoveToWatched moves an existing watchlist entry to the watched collection
// without re-fetching details. The watched timestamp is set and any previous
// rating and review are reset. Returns nil when the entry is not in the
// watchlist.
func (s *CollectionStore) MoveToWatched(id int, kind models.MediaKind) (*models.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := models.MediaKey{Kind: kind, ID: id}
	i := findEntry(s.col.Watchlist, key)
	if i < 0 {
		return nil, nil
	}

	entry := s.col.Watchlist[i]
	entry.WatchedAt = timeutil.Now()
	entry.UserRating = 0
	entry.UserReview = ""

	s.col.Watchlist = append(s.col.Watchlist[:i], s.col.Watchlist[i+1:]...)
	s.col.Watched = append(s.col.Watched, entry)
	if err := s.persist(); err != nil {
		return nil, err
	}
	return &entry, nil
}

// RemoveFromWatchlist removes a watchlist entry if present.
func (s *CollectionStore) RemoveFromWatchlist(id int, kind models.MediaKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	remaining, removed := removeEntry(s.col.Watchlist, models.MediaKey{Kind: kind, ID: id})
	if !removed {
		return nil
	}
	s.col.Watchlist = remaining
	return s.persist()
}

// RemoveFromWatched removes a watched entry if present.
func (s *CollectionStore) RemoveFromWatched(id int, kind models.MediaKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	remaining, removed := removeEntry(s.col.Watched, models.MediaKey{Kind: kind, ID: id})
	if !removed {
		return nil
	}
	s.col.Watched = remaining
	return s.persist()
}

// Rate sets the user rating on a watched entry. The rating must be between
// 1 and 10; returns nil entry when the item is not in the watched collection.
func (s *CollectionStore) Rate(id int, kind models.MediaKind, rating int) (*models.Entry, error) {
	if rating < 1 || rating > 10 {
		return nil, ErrInvalidRating
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := findEntry(s.col.Watched, models.MediaKey{Kind: kind, ID: id})
	if i < 0 {
		return nil, nil
	}

	s.col.Watched[i].UserRating = rating
	if err := s.persist(); err != nil {
		return nil, err
	}
	entry := s.col.Watched[i]
	return &entry, nil
}

// Review sets the user review text on a watched entry. Returns nil entry
// when the item is not in the watched collection.
func (s *CollectionStore) Review(id int, kind models.MediaKind, text string) (*models.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := findEntry(s.col.Watched, models.MediaKey{Kind: kind, ID: id})
	if i < 0 {
		return nil, nil
	}

	s.col.Watched[i].UserReview = text
	if err := s.persist(); err != nil {
		return nil, err
	}
	entry := s.col.Watched[i]
	return &entry, nil
}

// ClearWatchlist empties the watchlist collection.
func (s *CollectionStore) ClearWatchlist() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.col.Watchlist = nil
	return s.persist()
}

// Watchlist returns a snapshot copy of the watchlist.
func (s *CollectionStore) Watchlist() []models.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Entry(nil), s.col.Watchlist...)
}

// Watched returns a snapshot copy of the watched collection.
func (s *CollectionStore) Watched() []models.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Entry(nil), s.col.Watched...)
}

// HeldKeys returns the set of (kind, id) keys present in either collection.
func (s *CollectionStore) HeldKeys() map[models.MediaKey]bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	held := make(map[models.MediaKey]bool, len(s.col.Watchlist)+len(s.col.Watched))
	for i := range s.col.Watchlist {
		held[s.col.Watchlist[i].Key()] = true
	}
	for i := range s.col.Watched {
		held[s.col.Watched[i].Key()] = true
	}
	return held
}

// persist writes the current collection to durable storage. Must be called
// with the lock held.
func (s *CollectionStore) persist() error {
	if err := s.repo.Save(&s.col); err != nil {
		return fmt.Errorf("failed to persist collection: %w", err)
	}
	return nil
}

// entryFromDetails builds a collection entry from a detail record. Cast and
// crew are already truncated by the client at fetch time.
func entryFromDetails(d *tmdb.Details) models.Entry {
	return models.Entry{
		ID:             d.ID,
		Kind:           d.Kind,
		Title:          d.Title,
		PosterPath:     d.PosterPath,
		BackdropPath:   d.BackdropPath,
		ReleaseDate:    d.ReleaseDate,
		Overview:       d.Overview,
		Tagline:        d.Tagline,
		Genres:         d.Genres,
		RuntimeMinutes: d.RuntimeMinutes,
		VoteAverage:    d.VoteAverage,
		Cast:           d.Cast,
		Crew:           d.Crew,
		WatchProviders: d.WatchProviders,
		ExternalIDs:    d.ExternalIDs,
	}
}

// findEntry returns the index of the entry with the given key, or -1.
func findEntry(entries []models.Entry, key models.MediaKey) int {
	for i := range entries {
		if entries[i].Key() == key {
			return i
		}
	}
	return -1
}

// removeEntry returns the slice without the entry matching key, and whether
// an entry was removed.
func removeEntry(entries []models.Entry, key models.MediaKey) ([]models.Entry, bool) {
	i := findEntry(entries, key)
	if i < 0 {
		return entries, false
	}
	return append(entries[:i], entries[i+1:]...), true
}
