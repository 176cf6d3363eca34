package service

import (
	"math"
	"sort"

	"media-tracker/internal/models"
)

const (
	topRatedLimit = 5
	topGenreLimit = 5
)

// ComputeStats aggregates both collections into the statistics view. The
// average rating only considers rated entries and is rounded to one decimal;
// total hours is the rounded sum of watched runtimes.
func ComputeStats(watchlist, watched []models.Entry) models.Stats {
	stats := models.Stats{
		TotalItems:   len(watchlist) + len(watched),
		TotalWatched: len(watched),
	}

	ratedCount := 0
	ratingSum := 0
	totalMinutes := 0
	for _, e := range watched {
		if e.UserRating > 0 {
			ratedCount++
			ratingSum += e.UserRating
		}
		totalMinutes += e.RuntimeMinutes
	}
	if ratedCount > 0 {
		stats.AverageRating = math.Round(float64(ratingSum)/float64(ratedCount)*10) / 10
	}
	stats.TotalHours = int(math.Round(float64(totalMinutes) / 60))

	stats.TopRated = topRated(watched)
	stats.TopGenres = genreFrequency(watched)
	return stats
}

// topRated returns the highest-rated watched entries, rating descending,
// unrated entries excluded.
func topRated(watched []models.Entry) []models.Entry {
	rated := make([]models.Entry, 0, len(watched))
	for _, e := range watched {
		if e.UserRating > 0 {
			rated = append(rated, e)
		}
	}
	sort.SliceStable(rated, func(i, j int) bool {
		return rated[i].UserRating > rated[j].UserRating
	})
	if len(rated) > topRatedLimit {
		rated = rated[:topRatedLimit]
	}
	return rated
}

// genreFrequency counts how many watched entries carry each genre and
// returns the most frequent ones with bar widths normalized against the
// top genre.
func genreFrequency(watched []models.Entry) []models.GenreCount {
	counts := make(map[string]int)
	for _, e := range watched {
		for _, g := range e.Genres {
			counts[g.Name]++
		}
	}
	if len(counts) == 0 {
		return nil
	}

	ranked := make([]models.GenreCount, 0, len(counts))
	for name, count := range counts {
		ranked = append(ranked, models.GenreCount{Name: name, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Name < ranked[j].Name
	})
	if len(ranked) > topGenreLimit {
		ranked = ranked[:topGenreLimit]
	}

	max := ranked[0].Count
	for i := range ranked {
		ranked[i].BarWidth = float64(ranked[i].Count) / float64(max)
	}
	return ranked
}
