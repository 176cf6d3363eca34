package handler

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"media-tracker/internal/models"
	"media-tracker/internal/service"
	"media-tracker/internal/tmdb"
)

// HTTPHandler exposes the collection store, query engine, statistics and
// recommendation engine over the HTTP API.
type HTTPHandler struct {
	tmdbClient *tmdb.Client
	cacheSvc   *service.DetailsCacheService
	store      *service.CollectionStore
	engine     *service.RecommendationEngine
	backupSvc  *service.BackupService
	apiToken   string
}

// NewHTTPHandler creates a new HTTPHandler.
func NewHTTPHandler(
	tmdbClient *tmdb.Client,
	cacheSvc *service.DetailsCacheService,
	store *service.CollectionStore,
	engine *service.RecommendationEngine,
	backupSvc *service.BackupService,
	apiToken string,
) *HTTPHandler {
	return &HTTPHandler{
		tmdbClient: tmdbClient,
		cacheSvc:   cacheSvc,
		store:      store,
		engine:     engine,
		backupSvc:  backupSvc,
		apiToken:   strings.TrimSpace(apiToken),
	}
}

// RegisterRoutes registers all HTTP routes.
func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	// Health check must allow unauthenticated ping for probes
	r.GET("/api/health", h.Health)

	api := r.Group("/api")
	api.Use(h.authMiddleware)

	// Catalog
	api.GET("/search", h.Search)
	api.GET("/media/:kind/:id", h.GetMediaDetails)
	api.GET("/media/:kind/:id/providers", h.GetWatchProviders)
	api.GET("/genres/:kind", h.GetGenres)

	// Watchlist
	api.GET("/watchlist", h.GetWatchlist)
	api.POST("/watchlist", h.AddToWatchlist)
	api.DELETE("/watchlist", h.ClearWatchlist)
	api.POST("/watchlist/:kind/:id/watched", h.MoveToWatched)
	api.DELETE("/watchlist/:kind/:id", h.RemoveFromWatchlist)

	// Watched
	api.GET("/watched", h.GetWatched)
	api.POST("/watched", h.AddToWatched)
	api.DELETE("/watched/:kind/:id", h.RemoveFromWatched)
	api.POST("/watched/:kind/:id/rating", h.Rate)
	api.PUT("/watched/:kind/:id/review", h.Review)

	// Derived views
	api.GET("/stats", h.GetStats)
	api.GET("/recommendations", h.GetRecommendations)

	// Backups
	api.POST("/backup", h.Backup)
}

// Search searches the catalog by free text.
// GET /api/search?q=<query>&kind=movie|tv
func (h *HTTPHandler) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter is required"})
		return
	}

	kind := models.MediaKind(c.DefaultQuery("kind", string(models.KindMovie)))
	if !kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be movie or tv"})
		return
	}

	results, err := h.tmdbClient.Search(query, kind)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if results == nil {
		results = []tmdb.MediaSummary{}
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

// GetMediaDetails returns the full detail record for a catalog item.
// GET /api/media/:kind/:id
func (h *HTTPHandler) GetMediaDetails(c *gin.Context) {
	id, kind, ok := h.mediaParams(c)
	if !ok {
		return
	}

	details, _, err := h.cacheSvc.GetOrRefresh(id, kind)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, details)
}

// GetWatchProviders returns streaming availability for a catalog item.
// GET /api/media/:kind/:id/providers
func (h *HTTPHandler) GetWatchProviders(c *gin.Context) {
	id, kind, ok := h.mediaParams(c)
	if !ok {
		return
	}

	providers, err := h.tmdbClient.GetWatchProviders(id, kind)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"providers": providers})
}

// GetGenres returns the catalog genre list for a media kind.
// GET /api/genres/:kind
func (h *HTTPHandler) GetGenres(c *gin.Context) {
	kind := models.MediaKind(c.Param("kind"))
	if !kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be movie or tv"})
		return
	}

	genres, err := h.tmdbClient.GetGenres(kind)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"genres": genres})
}

// GetWatchlist returns the filtered, sorted watchlist.
// GET /api/watchlist?sort=added|title|year|director&kind=&genre=&q=
func (h *HTTPHandler) GetWatchlist(c *gin.Context) {
	entries, ok := h.filteredEntries(c, h.store.Watchlist())
	if !ok {
		return
	}
	entries = service.SortEntries(entries, c.DefaultQuery("sort", service.SortAdded))

	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// GetWatched returns the filtered, sorted watched collection.
// GET /api/watched?sort=watched|title|year|director|rating&kind=&genre=&min_rating=&unrated=&q=
func (h *HTTPHandler) GetWatched(c *gin.Context) {
	entries, ok := h.filteredEntries(c, h.store.Watched())
	if !ok {
		return
	}
	entries = service.SortEntries(entries, c.DefaultQuery("sort", service.SortWatched))

	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// addRequest is the body for both add endpoints.
type addRequest struct {
	ID   int              `json:"id" binding:"required"`
	Kind models.MediaKind `json:"kind" binding:"required"`
}

// AddToWatchlist adds a catalog item to the watchlist.
// POST /api/watchlist
func (h *HTTPHandler) AddToWatchlist(c *gin.Context) {
	var req addRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.Kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id and kind (movie|tv) are required"})
		return
	}

	entry, already, err := h.store.AddToWatchlist(req.ID, req.Kind)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if already {
		c.JSON(http.StatusConflict, gin.H{"error": "already tracked", "entry": entry})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"entry": entry})
}

// AddToWatched adds a catalog item directly to the watched collection,
// removing any matching watchlist entry.
// POST /api/watched
func (h *HTTPHandler) AddToWatched(c *gin.Context) {
	var req addRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.Kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id and kind (movie|tv) are required"})
		return
	}

	entry, already, err := h.store.AddToWatched(req.ID, req.Kind)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if already {
		c.JSON(http.StatusConflict, gin.H{"error": "already in watched list", "entry": entry})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"entry": entry})
}

// MoveToWatched moves a watchlist entry to the watched collection.
// POST /api/watchlist/:kind/:id/watched
func (h *HTTPHandler) MoveToWatched(c *gin.Context) {
	id, kind, ok := h.mediaParams(c)
	if !ok {
		return
	}

	entry, err := h.store.MoveToWatched(id, kind)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if entry == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not in watchlist"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entry": entry})
}

// RemoveFromWatchlist removes a watchlist entry. Removing an absent entry
// is a no-op.
// DELETE /api/watchlist/:kind/:id
func (h *HTTPHandler) RemoveFromWatchlist(c *gin.Context) {
	id, kind, ok := h.mediaParams(c)
	if !ok {
		return
	}

	if err := h.store.RemoveFromWatchlist(id, kind); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "removed"})
}

// RemoveFromWatched removes a watched entry. Removing an absent entry is a
// no-op.
// DELETE /api/watched/:kind/:id
func (h *HTTPHandler) RemoveFromWatched(c *gin.Context) {
	id, kind, ok := h.mediaParams(c)
	if !ok {
		return
	}

	if err := h.store.RemoveFromWatched(id, kind); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "removed"})
}

// ClearWatchlist empties the watchlist.
// DELETE /api/watchlist
func (h *HTTPHandler) ClearWatchlist(c *gin.Context) {
	if err := h.store.ClearWatchlist(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "watchlist cleared"})
}

// Rate sets the user rating on a watched entry.
// POST /api/watched/:kind/:id/rating
func (h *HTTPHandler) Rate(c *gin.Context) {
	id, kind, ok := h.mediaParams(c)
	if !ok {
		return
	}

	var req struct {
		Rating int `json:"rating" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rating is required"})
		return
	}

	entry, err := h.store.Rate(id, kind, req.Rating)
	if err == service.ErrInvalidRating {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if entry == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not in watched list"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entry": entry})
}

// Review sets the user review text on a watched entry.
// PUT /api/watched/:kind/:id/review
func (h *HTTPHandler) Review(c *gin.Context) {
	id, kind, ok := h.mediaParams(c)
	if !ok {
		return
	}

	var req struct {
		Review string `json:"review"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	entry, err := h.store.Review(id, kind, req.Review)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if entry == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not in watched list"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entry": entry})
}

// GetStats returns the aggregate statistics view.
// GET /api/stats
func (h *HTTPHandler) GetStats(c *gin.Context) {
	stats := service.ComputeStats(h.store.Watchlist(), h.store.Watched())
	c.JSON(http.StatusOK, stats)
}

// GetRecommendations returns the ranked candidate list, optionally filtered
// by kind. The cached ranking is reused unless refresh=1 or nothing has been
// computed yet.
// GET /api/recommendations?kind=&refresh=
func (h *HTTPHandler) GetRecommendations(c *gin.Context) {
	kind := models.MediaKind(c.Query("kind"))
	if kind != "" && !kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be movie or tv"})
		return
	}

	refresh := c.Query("refresh") == "1" || c.Query("refresh") == "true"
	if _, _, ok := h.engine.Cached(kind); !ok {
		refresh = true
	}

	if refresh {
		if _, _, err := h.engine.Refresh(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	recs, noSignal, _ := h.engine.Cached(kind)
	if noSignal {
		c.JSON(http.StatusOK, gin.H{
			"recommendations": []models.Recommendation{},
			"no_signal":       true,
		})
		return
	}
	if recs == nil {
		recs = []models.Recommendation{}
	}

	c.JSON(http.StatusOK, gin.H{"recommendations": recs})
}

// Backup creates a database backup on demand.
// POST /api/backup
func (h *HTTPHandler) Backup(c *gin.Context) {
	backupPath, err := h.backupSvc.Backup()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"backup_path": backupPath})
}

// Health returns health status.
func (h *HTTPHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// authMiddleware enforces Bearer token authentication when an API token is
// configured. A single-user local deployment may run without one.
func (h *HTTPHandler) authMiddleware(c *gin.Context) {
	if h.apiToken == "" {
		c.Next()
		return
	}

	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid Authorization header"})
		c.Abort()
		return
	}

	if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(h.apiToken)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		c.Abort()
		return
	}

	c.Next()
}

// filteredEntries applies the common filter query parameters to a snapshot.
func (h *HTTPHandler) filteredEntries(c *gin.Context, entries []models.Entry) ([]models.Entry, bool) {
	opts := FilterOptionsFromQuery(c)
	if opts.Kind != "" && !opts.Kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be movie or tv"})
		return nil, false
	}
	filtered := service.FilterEntries(entries, opts)
	if filtered == nil {
		filtered = []models.Entry{}
	}
	return filtered, true
}

// FilterOptionsFromQuery builds filter options from request query params.
func FilterOptionsFromQuery(c *gin.Context) service.FilterOptions {
	genreID, _ := strconv.Atoi(c.Query("genre"))
	minRating, _ := strconv.Atoi(c.Query("min_rating"))
	unrated := c.Query("unrated") == "1" || c.Query("unrated") == "true"

	return service.FilterOptions{
		Kind:        models.MediaKind(c.Query("kind")),
		GenreID:     genreID,
		MinRating:   minRating,
		OnlyUnrated: unrated,
		Query:       c.Query("q"),
	}
}

// mediaParams parses and validates the :kind/:id path segments.
func (h *HTTPHandler) mediaParams(c *gin.Context) (int, models.MediaKind, bool) {
	kind := models.MediaKind(c.Param("kind"))
	if !kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be movie or tv"})
		return 0, "", false
	}

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid media id"})
		return 0, "", false
	}

	return id, kind, true
}
