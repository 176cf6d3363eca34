package repository

import (
	"database/sql"

	"media-tracker/internal/models"
)

// DetailsCacheRepository stores raw TMDB detail snapshots keyed by
// (media kind, TMDB id).
type DetailsCacheRepository struct {
	db *sql.DB
}

// NewDetailsCacheRepository creates a new DetailsCacheRepository.
func NewDetailsCacheRepository(sqliteDB *SQLiteDB) *DetailsCacheRepository {
	return &DetailsCacheRepository{db: sqliteDB.db}
}

// Get returns the cached payload JSON for a media item.
func (r *DetailsCacheRepository) Get(id int, kind models.MediaKind) (string, bool, error) {
	var payload string
	err := r.db.QueryRow(`
		SELECT payload_json
		FROM details_cache
		WHERE media_kind = ? AND tmdb_id = ?
	`, string(kind), id).Scan(&payload)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return payload, true, nil
}

// Upsert writes the latest detail payload JSON for a media item.
func (r *DetailsCacheRepository) Upsert(id int, kind models.MediaKind, payloadJSON string, fetchedAt string) error {
	_, err := r.db.Exec(`
		INSERT INTO details_cache (media_kind, tmdb_id, payload_json, fetched_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(media_kind, tmdb_id) DO UPDATE SET
			payload_json = excluded.payload_json,
			fetched_at = excluded.fetched_at
	`, string(kind), id, payloadJSON, fetchedAt)
	return err
}
