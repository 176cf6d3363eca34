package service

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"media-tracker/internal/models"
	"media-tracker/internal/repository"
	"media-tracker/internal/tmdb"
)

// newMockCatalog serves plausible detail payloads for any /movie/{id} or
// /tv/{id} request.
func newMockCatalog(t *testing.T) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) < 2 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		kind := parts[0]
		id, err := strconv.Atoi(parts[1])
		if err != nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		response := map[string]any{
			"id":           id,
			"title":        fmt.Sprintf("Movie %d", id),
			"name":         fmt.Sprintf("Show %d", id),
			"release_date": "2020-05-01",
			"first_air_date": "2019-01-01",
			"overview":     "An item from the test catalog.",
			"genres": []map[string]any{
				{"id": 28, "name": "Action"},
				{"id": 18, "name": "Drama"},
			},
			"runtime":          120,
			"episode_run_time": []int{45},
			"vote_average":     7.4,
			"credits": map[string]any{
				"cast": []map[string]any{
					{"name": "Lead Actor", "character": "Protagonist"},
				},
				"crew": []map[string]any{
					{"name": "Famous Director", "job": "Director"},
					{"name": "Key Grip", "job": "Key Grip"},
				},
			},
		}
		_ = kind
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(response)
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestStore(t *testing.T, catalogURL string) (*CollectionStore, *repository.CollectionRepository) {
	t.Helper()

	db, err := repository.NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.InitSchema())

	client := tmdb.NewClient("test-api-key")
	client.SetBaseURL(catalogURL)

	cacheSvc := NewDetailsCacheService(client, repository.NewDetailsCacheRepository(db))
	collectionRepo := repository.NewCollectionRepository(db)

	store, err := NewCollectionStore(cacheSvc, collectionRepo)
	require.NoError(t, err)
	return store, collectionRepo
}

func TestAddToWatchlistFetchesDetails(t *testing.T) {
	server := newMockCatalog(t)
	store, _ := newTestStore(t, server.URL)

	entry, already, err := store.AddToWatchlist(603, models.KindMovie)
	require.NoError(t, err)
	require.False(t, already)
	require.Equal(t, "Movie 603", entry.Title)
	require.Equal(t, models.KindMovie, entry.Kind)
	require.Equal(t, 120, entry.RuntimeMinutes)
	require.False(t, entry.AddedAt.IsZero())
	require.Zero(t, entry.UserRating)

	_, already, err = store.AddToWatchlist(603, models.KindMovie)
	require.NoError(t, err)
	require.True(t, already)
	require.Len(t, store.Watchlist(), 1)
}

func TestSameIDAcrossKindsAreDistinctEntries(t *testing.T) {
	server := newMockCatalog(t)
	store, _ := newTestStore(t, server.URL)

	_, already, err := store.AddToWatchlist(42, models.KindMovie)
	require.NoError(t, err)
	require.False(t, already)

	_, already, err = store.AddToWatchlist(42, models.KindTV)
	require.NoError(t, err)
	require.False(t, already)

	require.Len(t, store.Watchlist(), 2)
}

func TestAddToWatchlistRefusesWatchedEntry(t *testing.T) {
	server := newMockCatalog(t)
	store, _ := newTestStore(t, server.URL)

	watched, _, err := store.AddToWatched(3, models.KindTV)
	require.NoError(t, err)

	// A watched item must not re-enter the watchlist; the existing watched
	// entry is reported instead.
	entry, already, err := store.AddToWatchlist(3, models.KindTV)
	require.NoError(t, err)
	require.True(t, already)
	require.Equal(t, watched.Title, entry.Title)
	require.Empty(t, store.Watchlist())
	require.Len(t, store.Watched(), 1)
}

func TestAddToWatchedRemovesWatchlistEntry(t *testing.T) {
	server := newMockCatalog(t)
	store, _ := newTestStore(t, server.URL)

	_, _, err := store.AddToWatchlist(603, models.KindMovie)
	require.NoError(t, err)

	entry, already, err := store.AddToWatched(603, models.KindMovie)
	require.NoError(t, err)
	require.False(t, already)
	require.False(t, entry.WatchedAt.IsZero())

	require.Empty(t, store.Watchlist())
	require.Len(t, store.Watched(), 1)
}

func TestFailedDetailFetchLeavesWatchlistIntact(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"status_code": 34, "status_message": "not found"})
	}))
	t.Cleanup(server.Close)

	good := newMockCatalog(t)

	db, err := repository.NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.InitSchema())

	client := tmdb.NewClient("test-api-key")
	client.SetBaseURL(good.URL)
	cacheSvc := NewDetailsCacheService(client, repository.NewDetailsCacheRepository(db))
	store, err := NewCollectionStore(cacheSvc, repository.NewCollectionRepository(db))
	require.NoError(t, err)

	_, _, err = store.AddToWatchlist(603, models.KindMovie)
	require.NoError(t, err)

	// Point the client at the failing catalog; AddToWatched must not touch
	// the watchlist when the fetch fails.
	client.SetBaseURL(server.URL)
	_, _, err = store.AddToWatched(604, models.KindMovie)
	require.Error(t, err)
	require.Len(t, store.Watchlist(), 1)
	require.Empty(t, store.Watched())
}

func TestMoveToWatchedPreservesDataAndResetsRating(t *testing.T) {
	server := newMockCatalog(t)
	store, _ := newTestStore(t, server.URL)

	added, _, err := store.AddToWatchlist(603, models.KindMovie)
	require.NoError(t, err)

	moved, err := store.MoveToWatched(603, models.KindMovie)
	require.NoError(t, err)
	require.NotNil(t, moved)
	require.Equal(t, added.Title, moved.Title)
	require.Equal(t, added.Genres, moved.Genres)
	require.Zero(t, moved.UserRating)
	require.Empty(t, moved.UserReview)
	require.False(t, moved.WatchedAt.IsZero())

	require.Empty(t, store.Watchlist())
	require.Len(t, store.Watched(), 1)

	// Moving an entry that is not in the watchlist is a no-op.
	missing, err := store.MoveToWatched(999, models.KindMovie)
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestRateBoundsAndPersistence(t *testing.T) {
	server := newMockCatalog(t)
	store, repo := newTestStore(t, server.URL)

	_, _, err := store.AddToWatched(603, models.KindMovie)
	require.NoError(t, err)

	for _, bad := range []int{-1, 0, 11, 100} {
		_, err := store.Rate(603, models.KindMovie, bad)
		require.ErrorIs(t, err, ErrInvalidRating)
	}
	require.Zero(t, store.Watched()[0].UserRating)

	entry, err := store.Rate(603, models.KindMovie, 8)
	require.NoError(t, err)
	require.Equal(t, 8, entry.UserRating)

	// Rating an entry that is not watched is a no-op.
	entry, err = store.Rate(999, models.KindMovie, 5)
	require.NoError(t, err)
	require.Nil(t, entry)

	// The rating must survive a reload from storage.
	loaded, err := repo.Load()
	require.NoError(t, err)
	require.Equal(t, 8, loaded.Watched[0].UserRating)
}

func TestRemoveIsIdempotent(t *testing.T) {
	server := newMockCatalog(t)
	store, _ := newTestStore(t, server.URL)

	_, _, err := store.AddToWatched(603, models.KindMovie)
	require.NoError(t, err)

	require.NoError(t, store.RemoveFromWatched(603, models.KindMovie))
	require.NoError(t, store.RemoveFromWatched(603, models.KindMovie))
	require.Empty(t, store.Watched())

	require.NoError(t, store.RemoveFromWatchlist(603, models.KindMovie))
}

func TestClearWatchlist(t *testing.T) {
	server := newMockCatalog(t)
	store, _ := newTestStore(t, server.URL)

	for _, id := range []int{1, 2, 3} {
		_, _, err := store.AddToWatchlist(id, models.KindMovie)
		require.NoError(t, err)
	}
	_, _, err := store.AddToWatched(4, models.KindMovie)
	require.NoError(t, err)

	require.NoError(t, store.ClearWatchlist())
	require.Empty(t, store.Watchlist())
	require.Len(t, store.Watched(), 1)
}

func TestStoreRestoresFromStorage(t *testing.T) {
	server := newMockCatalog(t)

	db, err := repository.NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.InitSchema())

	client := tmdb.NewClient("test-api-key")
	client.SetBaseURL(server.URL)
	cacheSvc := NewDetailsCacheService(client, repository.NewDetailsCacheRepository(db))
	collectionRepo := repository.NewCollectionRepository(db)

	store, err := NewCollectionStore(cacheSvc, collectionRepo)
	require.NoError(t, err)
	_, _, err = store.AddToWatchlist(603, models.KindMovie)
	require.NoError(t, err)
	_, _, err = store.AddToWatched(604, models.KindMovie)
	require.NoError(t, err)

	// A fresh store over the same database sees the same collection.
	restored, err := NewCollectionStore(cacheSvc, collectionRepo)
	require.NoError(t, err)
	require.Len(t, restored.Watchlist(), 1)
	require.Len(t, restored.Watched(), 1)
	require.Equal(t, "Movie 603", restored.Watchlist()[0].Title)
}

// For any sequence of add/move/remove operations, no collection ever holds
// two entries with the same (kind, id), and no key is in both collections
// at once.
func TestCollectionInvariantsProperty(t *testing.T) {
	server := newMockCatalog(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30

	properties := gopter.NewProperties(parameters)

	properties.Property("uniqueness and mutual exclusion hold", prop.ForAll(
		func(ops []int) bool {
			store, _ := newTestStore(t, server.URL)

			for _, op := range ops {
				// Decode each int into an operation over a small id space so
				// collisions actually happen.
				id := op%5 + 1
				kind := models.KindMovie
				if (op/5)%2 == 1 {
					kind = models.KindTV
				}
				switch (op / 10) % 4 {
				case 0:
					store.AddToWatchlist(id, kind)
				case 1:
					store.AddToWatched(id, kind)
				case 2:
					store.MoveToWatched(id, kind)
				case 3:
					store.RemoveFromWatched(id, kind)
				}
			}

			watchlist := store.Watchlist()
			watched := store.Watched()

			seen := map[models.MediaKey]bool{}
			for i := range watchlist {
				if seen[watchlist[i].Key()] {
					return false
				}
				seen[watchlist[i].Key()] = true
			}
			inWatchlist := seen
			seen = map[models.MediaKey]bool{}
			for i := range watched {
				if seen[watched[i].Key()] || inWatchlist[watched[i].Key()] {
					return false
				}
				seen[watched[i].Key()] = true
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 79)),
	))

	properties.TestingRun(t)
}
