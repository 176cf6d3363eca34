package service

import (
	"log"
	"sort"
	"sync"

	"github.com/sourcegraph/conc"

	"media-tracker/internal/models"
	"media-tracker/internal/tmdb"
)

const (
	maxHighRatedSeeds = 8 // watched entries rated >= seedRatingFloor
	maxRecentSeeds    = 5 // most recently watched entries
	maxFallbackSeeds  = 6 // seeds drawn from watched then watchlist when nothing qualifies
	seedRatingFloor   = 7

	maxRecommendationSeeds = 6 // seeds queried for catalog recommendations
	maxSimilarSeeds        = 3 // highest-priority seeds queried for similar items
	topAffinityGenres      = 3

	priorityRecommended = 3
	prioritySimilar     = 2
	priorityDiscovery   = 1

	discoverySource = "Your Genres"
)

// Quality floors for genre discovery. TV shows accumulate votes more slowly
// than films, so their count floor is lower and the average floor higher.
var (
	movieDiscoveryFloor = tmdb.QualityFloor{MinVoteCount: 500, MinVoteAverage: 7.0}
	tvDiscoveryFloor    = tmdb.QualityFloor{MinVoteCount: 200, MinVoteAverage: 7.5}
)

// RecommendationEngine derives ranked catalog candidates from the current
// collection. Candidates come from three tiers of sources: per-seed
// recommendations, per-seed similar items, and genre discovery driven by the
// user's genre-affinity profile. The ranked list is cached so kind filtering
// does not recompute.
type RecommendationEngine struct {
	client *tmdb.Client
	store  *CollectionStore

	mu       sync.Mutex
	cached   []models.Recommendation
	noSignal bool
	ready    bool
}

// NewRecommendationEngine creates a new RecommendationEngine.
func NewRecommendationEngine(client *tmdb.Client, store *CollectionStore) *RecommendationEngine {
	return &RecommendationEngine{
		client: client,
		store:  store,
	}
}

// sourceResult is the contribution of a single fan-out source. A failed
// source keeps an empty item list and never aborts the pipeline.
type sourceResult struct {
	priority int
	source   string
	items    []tmdb.MediaSummary
}

// Refresh recomputes the ranked candidate list. The second return value is
// false when the collection offers no seeds at all ("no signal"); that is an
// informational condition, not an error.
func (e *RecommendationEngine) Refresh() ([]models.Recommendation, bool, error) {
	watched := e.store.Watched()
	watchlist := e.store.Watchlist()

	seeds := selectSeeds(watched, watchlist)
	if len(seeds) == 0 {
		e.mu.Lock()
		e.cached = nil
		e.noSignal = true
		e.ready = true
		e.mu.Unlock()
		return nil, false, nil
	}

	affinity := topGenresByAffinity(watched)
	excluded := e.store.HeldKeys()

	results := e.fanOut(seeds, affinity)
	ranked := mergeAndRank(results, excluded)

	e.mu.Lock()
	e.cached = ranked
	e.noSignal = false
	e.ready = true
	e.mu.Unlock()
	return ranked, true, nil
}

// Cached returns the last ranked list without recomputation, filtered by
// kind (empty = all). The exclusion check is re-applied at read time because
// the collection may have changed since the list was computed. noSignal
// reports that the last refresh found no seeds, so an empty list means "no
// collection to work from" rather than "everything excluded"; ready reports
// whether a computation has run at all.
func (e *RecommendationEngine) Cached(kind models.MediaKind) (recs []models.Recommendation, noSignal, ready bool) {
	e.mu.Lock()
	cached := append([]models.Recommendation(nil), e.cached...)
	noSignal = e.noSignal
	ready = e.ready
	e.mu.Unlock()

	if !ready {
		return nil, false, false
	}

	held := e.store.HeldKeys()
	out := make([]models.Recommendation, 0, len(cached))
	for _, r := range cached {
		if kind != "" && r.Kind != kind {
			continue
		}
		if held[r.Key()] {
			continue
		}
		out = append(out, r)
	}
	return out, noSignal, true
}

// fanOut queries every candidate source concurrently. Slots in the result
// slice are fixed per source, so completion order never affects the final
// ranking; each goroutine only writes its own slot.
func (e *RecommendationEngine) fanOut(seeds []models.Entry, affinity []int) []sourceResult {
	recSeeds := seeds
	if len(recSeeds) > maxRecommendationSeeds {
		recSeeds = recSeeds[:maxRecommendationSeeds]
	}
	simSeeds := seeds
	if len(simSeeds) > maxSimilarSeeds {
		simSeeds = simSeeds[:maxSimilarSeeds]
	}

	// Result slots are laid out in merge order: recommendations, similar,
	// then discovery.
	results := make([]sourceResult, 0, len(recSeeds)+len(simSeeds)+2)
	for _, seed := range recSeeds {
		results = append(results, sourceResult{priority: priorityRecommended, source: seed.Title})
	}
	for _, seed := range simSeeds {
		results = append(results, sourceResult{priority: prioritySimilar, source: seed.Title})
	}
	discoveryStart := len(results)
	if len(affinity) > 0 {
		results = append(results,
			sourceResult{priority: priorityDiscovery, source: discoverySource},
			sourceResult{priority: priorityDiscovery, source: discoverySource},
		)
	}

	var wg conc.WaitGroup
	for i, seed := range recSeeds {
		i, seed := i, seed
		wg.Go(func() {
			items, err := e.client.GetRecommendations(seed.ID, seed.Kind)
			if err != nil {
				log.Printf("Warning: recommendations source %q failed: %v", seed.Title, err)
				return
			}
			results[i].items = items
		})
	}
	for i, seed := range simSeeds {
		i, seed := len(recSeeds)+i, seed
		wg.Go(func() {
			items, err := e.client.GetSimilar(seed.ID, seed.Kind)
			if err != nil {
				log.Printf("Warning: similar source %q failed: %v", seed.Title, err)
				return
			}
			results[i].items = items
		})
	}
	if len(affinity) > 0 {
		wg.Go(func() {
			items, err := e.client.DiscoverByGenre(affinity, models.KindMovie, movieDiscoveryFloor)
			if err != nil {
				log.Printf("Warning: movie genre discovery failed: %v", err)
				return
			}
			results[discoveryStart].items = items
		})
		wg.Go(func() {
			items, err := e.client.DiscoverByGenre(affinity, models.KindTV, tvDiscoveryFloor)
			if err != nil {
				log.Printf("Warning: tv genre discovery failed: %v", err)
				return
			}
			results[discoveryStart+1].items = items
		})
	}
	wg.Wait()

	return results
}

// selectSeeds picks the watched entries that drive the fan-out: the highest
// rated ones plus the most recently watched, first occurrence winning the
// dedup. When the watched collection offers nothing, seeds fall back to the
// first entries of watched then watchlist.
func selectSeeds(watched, watchlist []models.Entry) []models.Entry {
	highRated := make([]models.Entry, 0, len(watched))
	for _, e := range watched {
		if e.UserRating >= seedRatingFloor {
			highRated = append(highRated, e)
		}
	}
	sort.SliceStable(highRated, func(i, j int) bool {
		return highRated[i].UserRating > highRated[j].UserRating
	})
	if len(highRated) > maxHighRatedSeeds {
		highRated = highRated[:maxHighRatedSeeds]
	}

	recent := append([]models.Entry(nil), watched...)
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].WatchedAt.After(recent[j].WatchedAt)
	})
	if len(recent) > maxRecentSeeds {
		recent = recent[:maxRecentSeeds]
	}

	seeds := dedupeEntries(append(highRated, recent...), 0)
	if len(seeds) > 0 {
		return seeds
	}

	pool := make([]models.Entry, 0, len(watched)+len(watchlist))
	pool = append(pool, watched...)
	pool = append(pool, watchlist...)
	return dedupeEntries(pool, maxFallbackSeeds)
}

// dedupeEntries keeps the first occurrence of each (kind, id), optionally
// capped at limit (0 = unlimited).
func dedupeEntries(entries []models.Entry, limit int) []models.Entry {
	seen := make(map[models.MediaKey]bool, len(entries))
	out := make([]models.Entry, 0, len(entries))
	for _, e := range entries {
		if seen[e.Key()] {
			continue
		}
		seen[e.Key()] = true
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// topGenresByAffinity accumulates a per-genre preference score over the
// watched collection: rating/10 per entry, or a neutral 0.5 when unrated.
// Returns the strongest genre ids.
func topGenresByAffinity(watched []models.Entry) []int {
	scores := make(map[int]float64)
	for _, e := range watched {
		weight := 0.5
		if e.UserRating > 0 {
			weight = float64(e.UserRating) / 10
		}
		for _, g := range e.Genres {
			scores[g.ID] += weight
		}
	}
	if len(scores) == 0 {
		return nil
	}

	ids := make([]int, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if len(ids) > topAffinityGenres {
		ids = ids[:topAffinityGenres]
	}
	return ids
}

// mergeAndRank folds the source contributions into one ranked list. Sources
// are walked in priority order, so when the same candidate shows up at two
// tiers the higher-priority copy wins the dedup; anything already held in a
// collection is dropped. The final order is priority descending with catalog
// rating breaking ties.
func mergeAndRank(results []sourceResult, excluded map[models.MediaKey]bool) []models.Recommendation {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].priority > results[j].priority
	})

	seen := make(map[models.MediaKey]bool)
	merged := make([]models.Recommendation, 0, 64)
	for _, res := range results {
		for _, item := range res.items {
			key := models.MediaKey{Kind: item.Kind, ID: item.ID}
			if seen[key] || excluded[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, models.Recommendation{
				ID:          item.ID,
				Kind:        item.Kind,
				Title:       item.Title,
				PosterPath:  item.PosterPath,
				ReleaseDate: item.ReleaseDate,
				Overview:    item.Overview,
				VoteAverage: item.VoteAverage,
				Priority:    res.priority,
				Source:      res.source,
			})
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Priority != merged[j].Priority {
			return merged[i].Priority > merged[j].Priority
		}
		return merged[i].VoteAverage > merged[j].VoteAverage
	})
	return merged
}
