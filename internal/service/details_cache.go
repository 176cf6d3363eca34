package service

import (
	"encoding/json"
	"fmt"

	"media-tracker/internal/models"
	"media-tracker/internal/repository"
	"media-tracker/internal/timeutil"
	"media-tracker/internal/tmdb"
)

// DetailsCacheService caches TMDB detail records so that re-adding an item
// does not trigger another network fetch.
type DetailsCacheService struct {
	client *tmdb.Client
	repo   *repository.DetailsCacheRepository
}

// NewDetailsCacheService creates a new DetailsCacheService.
func NewDetailsCacheService(client *tmdb.Client, repo *repository.DetailsCacheRepository) *DetailsCacheService {
	return &DetailsCacheService{
		client: client,
		repo:   repo,
	}
}

// GetCached returns cached details for a media item.
func (s *DetailsCacheService) GetCached(id int, kind models.MediaKind) (*tmdb.Details, bool, error) {
	payload, ok, err := s.repo.Get(id, kind)
	if err != nil || !ok {
		return nil, ok, err
	}

	var details tmdb.Details
	if err := json.Unmarshal([]byte(payload), &details); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached detail payload: %w", err)
	}
	return &details, true, nil
}

// Refresh fetches details from TMDB and updates the cache.
func (s *DetailsCacheService) Refresh(id int, kind models.MediaKind) (*tmdb.Details, error) {
	details, err := s.client.GetDetails(id, kind)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("failed to encode detail payload: %w", err)
	}

	fetchedAt := timeutil.Now().Format("2006-01-02 15:04:05")
	if err := s.repo.Upsert(id, kind, string(payload), fetchedAt); err != nil {
		return nil, err
	}

	return details, nil
}

// GetOrRefresh returns cached data when present, otherwise refreshes.
func (s *DetailsCacheService) GetOrRefresh(id int, kind models.MediaKind) (*tmdb.Details, bool, error) {
	cached, ok, err := s.GetCached(id, kind)
	if err != nil {
		return nil, false, err
	}
	if ok {
		return cached, true, nil
	}

	refreshed, err := s.Refresh(id, kind)
	if err != nil {
		return nil, false, err
	}
	return refreshed, false, nil
}
