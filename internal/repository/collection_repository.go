package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"media-tracker/internal/models"
	"media-tracker/internal/timeutil"
)

// CollectionRepository persists the watchlist/watched collection as a single
// logical record with overwrite-on-save semantics. Earlier versions of the
// tracker stored movie-only entries without a kind field; those are
// normalized at load time.
type CollectionRepository struct {
	db *sql.DB
}

// NewCollectionRepository creates a new CollectionRepository.
func NewCollectionRepository(sqliteDB *SQLiteDB) *CollectionRepository {
	return &CollectionRepository{db: sqliteDB.db}
}

// storedEntry mirrors models.Entry but keeps Kind as a plain string so the
// legacy shape (no kind field at all) decodes cleanly.
type storedEntry struct {
	models.Entry
	Kind string `json:"kind"`
}

// toEntry converts a stored entry into a fully-typed Entry, defaulting
// legacy kind-less records to movie.
func (s storedEntry) toEntry() models.Entry {
	e := s.Entry
	e.Kind = models.MediaKind(s.Kind)
	if !e.Kind.Valid() {
		e.Kind = models.KindMovie
	}
	return e
}

type storedCollection struct {
	Watchlist []storedEntry `json:"watchlist"`
	Watched   []storedEntry `json:"watched"`
}

// Load restores the collection from the database. Returns nil when no
// collection has been saved yet.
func (r *CollectionRepository) Load() (*models.Collection, error) {
	var payload string
	err := r.db.QueryRow(`
		SELECT payload_json FROM collection_state WHERE id = 1
	`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var stored storedCollection
	if err := json.Unmarshal([]byte(payload), &stored); err != nil {
		return nil, fmt.Errorf("failed to decode collection payload: %w", err)
	}

	col := &models.Collection{
		Watchlist: make([]models.Entry, 0, len(stored.Watchlist)),
		Watched:   make([]models.Entry, 0, len(stored.Watched)),
	}
	for _, s := range stored.Watchlist {
		col.Watchlist = append(col.Watchlist, s.toEntry())
	}
	for _, s := range stored.Watched {
		col.Watched = append(col.Watched, s.toEntry())
	}
	return col, nil
}

// Save overwrites the persisted collection with the given snapshot.
func (r *CollectionRepository) Save(col *models.Collection) error {
	payload, err := json.Marshal(col)
	if err != nil {
		return fmt.Errorf("failed to encode collection payload: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO collection_state (id, payload_json, saved_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			payload_json = excluded.payload_json,
			saved_at = excluded.saved_at
	`, string(payload), timeutil.Now())
	return err
}
