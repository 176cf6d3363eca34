package service

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"media-tracker/internal/models"
)

// Sort keys accepted by SortEntries.
const (
	SortAdded    = "added"    // watchlist default, most recently added first
	SortWatched  = "watched"  // watched default, most recently watched first
	SortTitle    = "title"    // locale-aware, ascending
	SortYear     = "year"     // release date descending, missing dates last
	SortDirector = "director" // ascending, entries without a director under "Unknown"
	SortRating   = "rating"   // user rating descending, unrated last
)

// FilterOptions are conjunctive predicates applied by FilterEntries. Zero
// values mean "no constraint".
type FilterOptions struct {
	Kind        models.MediaKind
	GenreID     int
	MinRating   int
	OnlyUnrated bool
	Query       string
}

// FilterEntries returns the entries matching every set predicate. The input
// slice is never mutated. Text queries match case-insensitively against the
// title, director, cast names and genre names.
func FilterEntries(entries []models.Entry, opts FilterOptions) []models.Entry {
	query := strings.ToLower(strings.TrimSpace(opts.Query))

	out := make([]models.Entry, 0, len(entries))
	for _, e := range entries {
		if opts.Kind != "" && e.Kind != opts.Kind {
			continue
		}
		if opts.GenreID != 0 && !hasGenre(e.Genres, opts.GenreID) {
			continue
		}
		if opts.MinRating > 0 && e.UserRating < opts.MinRating {
			continue
		}
		if opts.OnlyUnrated && e.UserRating != 0 {
			continue
		}
		if query != "" && !matchesQuery(&e, query) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func hasGenre(genres []models.Genre, id int) bool {
	for _, g := range genres {
		if g.ID == id {
			return true
		}
	}
	return false
}

func matchesQuery(e *models.Entry, query string) bool {
	if strings.Contains(strings.ToLower(e.Title), query) {
		return true
	}
	if strings.Contains(strings.ToLower(e.Director()), query) {
		return true
	}
	for _, c := range e.Cast {
		if strings.Contains(strings.ToLower(c.Name), query) {
			return true
		}
	}
	for _, g := range e.Genres {
		if strings.Contains(strings.ToLower(g.Name), query) {
			return true
		}
	}
	return false
}

// SortEntries returns a copy of the entries ordered by the given key. Every
// sort is stable: entries comparing equal keep their prior relative order.
// Unknown keys fall back to recency (watched time, then added time).
func SortEntries(entries []models.Entry, key string) []models.Entry {
	sorted := append([]models.Entry(nil), entries...)

	switch key {
	case SortTitle:
		c := collate.New(language.English)
		sort.SliceStable(sorted, func(i, j int) bool {
			return c.CompareString(sorted[i].Title, sorted[j].Title) < 0
		})
	case SortYear:
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].ReleaseDate > sorted[j].ReleaseDate
		})
	case SortDirector:
		c := collate.New(language.English)
		sort.SliceStable(sorted, func(i, j int) bool {
			return c.CompareString(sorted[i].Director(), sorted[j].Director()) < 0
		})
	case SortRating:
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].UserRating > sorted[j].UserRating
		})
	case SortAdded:
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].AddedAt.After(sorted[j].AddedAt)
		})
	case SortWatched:
		fallthrough
	default:
		sort.SliceStable(sorted, func(i, j int) bool {
			if !sorted[i].WatchedAt.Equal(sorted[j].WatchedAt) {
				return sorted[i].WatchedAt.After(sorted[j].WatchedAt)
			}
			return sorted[i].AddedAt.After(sorted[j].AddedAt)
		})
	}
	return sorted
}
