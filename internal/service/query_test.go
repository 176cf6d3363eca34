package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-tracker/internal/models"
)

func entry(id int, kind models.MediaKind, title string) models.Entry {
	return models.Entry{ID: id, Kind: kind, Title: title}
}

func TestFilterEntriesByKind(t *testing.T) {
	entries := []models.Entry{
		entry(1, models.KindMovie, "Heat"),
		entry(2, models.KindTV, "The Wire"),
		entry(3, models.KindMovie, "Ronin"),
	}

	movies := FilterEntries(entries, FilterOptions{Kind: models.KindMovie})
	require.Len(t, movies, 2)
	assert.Equal(t, "Heat", movies[0].Title)
	assert.Equal(t, "Ronin", movies[1].Title)
}

func TestFilterEntriesByGenre(t *testing.T) {
	entries := []models.Entry{
		{ID: 1, Kind: models.KindMovie, Title: "Heat", Genres: []models.Genre{{ID: 80, Name: "Crime"}}},
		{ID: 2, Kind: models.KindMovie, Title: "Up", Genres: []models.Genre{{ID: 16, Name: "Animation"}}},
	}

	crime := FilterEntries(entries, FilterOptions{GenreID: 80})
	require.Len(t, crime, 1)
	assert.Equal(t, "Heat", crime[0].Title)
}

func TestFilterEntriesByRating(t *testing.T) {
	entries := []models.Entry{
		{ID: 1, Kind: models.KindMovie, Title: "A", UserRating: 8},
		{ID: 2, Kind: models.KindMovie, Title: "B", UserRating: 5},
		{ID: 3, Kind: models.KindMovie, Title: "C"},
	}

	highRated := FilterEntries(entries, FilterOptions{MinRating: 7})
	require.Len(t, highRated, 1)
	assert.Equal(t, "A", highRated[0].Title)

	unrated := FilterEntries(entries, FilterOptions{OnlyUnrated: true})
	require.Len(t, unrated, 1)
	assert.Equal(t, "C", unrated[0].Title)
}

func TestFilterEntriesByTextQuery(t *testing.T) {
	entries := []models.Entry{
		{
			ID: 1, Kind: models.KindMovie, Title: "Heat",
			Crew: []models.CrewMember{{Name: "Michael Mann", Job: "Director"}},
			Cast: []models.CastMember{{Name: "Al Pacino", Character: "Vincent Hanna"}},
			Genres: []models.Genre{{ID: 80, Name: "Crime"}},
		},
		{ID: 2, Kind: models.KindMovie, Title: "Collateral"},
	}

	assert.Len(t, FilterEntries(entries, FilterOptions{Query: "heat"}), 1)          // title
	assert.Len(t, FilterEntries(entries, FilterOptions{Query: "michael mann"}), 1)  // director
	assert.Len(t, FilterEntries(entries, FilterOptions{Query: "PACINO"}), 1)        // cast, case-insensitive
	assert.Len(t, FilterEntries(entries, FilterOptions{Query: "crime"}), 1)         // genre
	assert.Len(t, FilterEntries(entries, FilterOptions{Query: "nonexistent"}), 0)
	assert.Len(t, FilterEntries(entries, FilterOptions{Query: "  "}), 2) // blank query matches all
}

func TestFilterEntriesIsConjunctive(t *testing.T) {
	entries := []models.Entry{
		{ID: 1, Kind: models.KindMovie, Title: "Heat", UserRating: 9, Genres: []models.Genre{{ID: 80, Name: "Crime"}}},
		{ID: 2, Kind: models.KindTV, Title: "The Wire", UserRating: 9, Genres: []models.Genre{{ID: 80, Name: "Crime"}}},
	}

	out := FilterEntries(entries, FilterOptions{Kind: models.KindMovie, GenreID: 80, MinRating: 8})
	require.Len(t, out, 1)
	assert.Equal(t, "Heat", out[0].Title)
}

func TestSortEntriesByTitle(t *testing.T) {
	entries := []models.Entry{
		entry(1, models.KindMovie, "Zodiac"),
		entry(2, models.KindMovie, "Alien"),
		entry(3, models.KindMovie, "Heat"),
	}

	sorted := SortEntries(entries, SortTitle)
	assert.Equal(t, []string{"Alien", "Heat", "Zodiac"},
		[]string{sorted[0].Title, sorted[1].Title, sorted[2].Title})

	// Input order untouched.
	assert.Equal(t, "Zodiac", entries[0].Title)
}

func TestSortEntriesByTitleIsStable(t *testing.T) {
	entries := []models.Entry{
		entry(1, models.KindMovie, "Dune"),
		entry(2, models.KindMovie, "Alien"),
		entry(3, models.KindTV, "Dune"),
	}

	sorted := SortEntries(entries, SortTitle)
	require.Len(t, sorted, 3)
	// The two "Dune" entries keep their original relative order.
	assert.Equal(t, 1, sorted[1].ID)
	assert.Equal(t, 3, sorted[2].ID)
}

func TestSortEntriesByYear(t *testing.T) {
	entries := []models.Entry{
		{ID: 1, Kind: models.KindMovie, Title: "Old", ReleaseDate: "1972-03-24"},
		{ID: 2, Kind: models.KindMovie, Title: "Missing"},
		{ID: 3, Kind: models.KindMovie, Title: "New", ReleaseDate: "2023-07-21"},
	}

	sorted := SortEntries(entries, SortYear)
	assert.Equal(t, "New", sorted[0].Title)
	assert.Equal(t, "Old", sorted[1].Title)
	// No release date sorts last.
	assert.Equal(t, "Missing", sorted[2].Title)
}

func TestSortEntriesByRating(t *testing.T) {
	entries := []models.Entry{
		{ID: 1, Kind: models.KindMovie, Title: "Unrated"},
		{ID: 2, Kind: models.KindMovie, Title: "Great", UserRating: 9},
		{ID: 3, Kind: models.KindMovie, Title: "Fine", UserRating: 6},
	}

	sorted := SortEntries(entries, SortRating)
	assert.Equal(t, "Great", sorted[0].Title)
	assert.Equal(t, "Fine", sorted[1].Title)
	assert.Equal(t, "Unrated", sorted[2].Title)
}

func TestSortEntriesByDirector(t *testing.T) {
	entries := []models.Entry{
		{ID: 1, Kind: models.KindMovie, Title: "Heat", Crew: []models.CrewMember{{Name: "Michael Mann", Job: "Director"}}},
		{ID: 2, Kind: models.KindMovie, Title: "Alien", Crew: []models.CrewMember{{Name: "Ridley Scott", Job: "Director"}}},
		{ID: 3, Kind: models.KindTV, Title: "Show"}, // no director -> "Unknown"
	}

	sorted := SortEntries(entries, SortDirector)
	assert.Equal(t, "Heat", sorted[0].Title)
	assert.Equal(t, "Alien", sorted[1].Title)
	assert.Equal(t, "Show", sorted[2].Title)
}

func TestSortEntriesByRecency(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	entries := []models.Entry{
		{ID: 1, Kind: models.KindMovie, Title: "First", AddedAt: base},
		{ID: 2, Kind: models.KindMovie, Title: "Third", AddedAt: base.Add(2 * time.Hour)},
		{ID: 3, Kind: models.KindMovie, Title: "Second", AddedAt: base.Add(time.Hour)},
	}

	sorted := SortEntries(entries, SortAdded)
	assert.Equal(t, []string{"Third", "Second", "First"},
		[]string{sorted[0].Title, sorted[1].Title, sorted[2].Title})

	watched := []models.Entry{
		{ID: 1, Kind: models.KindMovie, Title: "Older", WatchedAt: base},
		{ID: 2, Kind: models.KindMovie, Title: "Newer", WatchedAt: base.Add(time.Hour)},
	}
	sorted = SortEntries(watched, SortWatched)
	assert.Equal(t, "Newer", sorted[0].Title)
}
