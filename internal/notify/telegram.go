package notify

import (
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"media-tracker/internal/models"
	"media-tracker/internal/service"
	"media-tracker/internal/timeutil"
)

const digestRecommendations = 5

// TelegramBot is the optional chat frontend: it answers /stats, /recommend
// and /watchlist commands and pushes the daily digest. Only the configured
// chat is served.
type TelegramBot struct {
	bot    *tele.Bot
	chatID int64
	store  *service.CollectionStore
	engine *service.RecommendationEngine
}

// NewTelegramBot creates and wires the bot. It does not start polling.
func NewTelegramBot(token string, chatID int64, store *service.CollectionStore, engine *service.RecommendationEngine) (*TelegramBot, error) {
	bot, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	t := &TelegramBot{
		bot:    bot,
		chatID: chatID,
		store:  store,
		engine: engine,
	}
	t.registerHandlers()
	return t, nil
}

// Start begins polling for updates. Blocking.
func (t *TelegramBot) Start() {
	t.bot.Start()
}

// Stop stops the poller.
func (t *TelegramBot) Stop() {
	t.bot.Stop()
}

func (t *TelegramBot) registerHandlers() {
	// Single-user bot: ignore everyone except the configured chat.
	t.bot.Use(func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if c.Chat() == nil || c.Chat().ID != t.chatID {
				return nil
			}
			return next(c)
		}
	})

	t.bot.Handle("/stats", func(c tele.Context) error {
		stats := service.ComputeStats(t.store.Watchlist(), t.store.Watched())
		return c.Send(FormatStats(stats), tele.ModeHTML)
	})

	t.bot.Handle("/recommend", func(c tele.Context) error {
		recs, noSignal, ok := t.engine.Cached("")
		if !ok {
			refreshed, hasSignal, err := t.engine.Refresh()
			if err != nil {
				return c.Send("Could not compute recommendations right now.")
			}
			noSignal = !hasSignal
			recs = refreshed
		}
		if noSignal {
			return c.Send("Add or watch something first to get recommendations.")
		}
		return c.Send(FormatRecommendations(recs, digestRecommendations), tele.ModeHTML)
	})

	t.bot.Handle("/watchlist", func(c tele.Context) error {
		entries := service.SortEntries(t.store.Watchlist(), service.SortAdded)
		return c.Send(FormatWatchlist(entries), tele.ModeHTML)
	})
}

// SendDailyDigest pushes the stats summary and top recommendations to the
// configured chat. Implements service.DigestSender.
func (t *TelegramBot) SendDailyDigest() error {
	stats := service.ComputeStats(t.store.Watchlist(), t.store.Watched())

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🎬 <b>Daily digest</b> (%s)\n\n", timeutil.Now().Format("2006-01-02")))
	sb.WriteString(FormatStats(stats))

	recs, _, err := t.engine.Refresh()
	if err == nil && len(recs) > 0 {
		sb.WriteString("\n\n")
		sb.WriteString(FormatRecommendations(recs, digestRecommendations))
	}

	_, err = t.bot.Send(tele.ChatID(t.chatID), sb.String(), tele.ModeHTML)
	return err
}

// FormatStats renders the statistics view as a chat message.
// Exported for testing purposes.
func FormatStats(stats models.Stats) string {
	var sb strings.Builder
	sb.WriteString("📊 <b>Collection</b>\n")
	sb.WriteString(fmt.Sprintf("Tracked: %d · Watched: %d\n", stats.TotalItems, stats.TotalWatched))
	sb.WriteString(fmt.Sprintf("Average rating: %.1f · Hours watched: %d\n", stats.AverageRating, stats.TotalHours))

	if len(stats.TopRated) > 0 {
		sb.WriteString("\n⭐ <b>Top rated</b>\n")
		for i, e := range stats.TopRated {
			sb.WriteString(fmt.Sprintf("%d. %s — %d/10\n", i+1, e.Title, e.UserRating))
		}
	}
	if len(stats.TopGenres) > 0 {
		sb.WriteString("\n🎭 <b>Top genres</b>\n")
		for _, g := range stats.TopGenres {
			sb.WriteString(fmt.Sprintf("%s: %d\n", g.Name, g.Count))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatRecommendations renders the top ranked candidates as a chat message.
// Exported for testing purposes.
func FormatRecommendations(recs []models.Recommendation, limit int) string {
	if len(recs) == 0 {
		return "No recommendations yet."
	}
	if len(recs) > limit {
		recs = recs[:limit]
	}

	var sb strings.Builder
	sb.WriteString("💡 <b>Recommended for you</b>\n")
	for i, r := range recs {
		year := ""
		if len(r.ReleaseDate) >= 4 {
			year = " (" + r.ReleaseDate[:4] + ")"
		}
		sb.WriteString(fmt.Sprintf("%d. %s%s — via %s\n", i+1, r.Title, year, r.Source))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatWatchlist renders the watchlist as a chat message.
// Exported for testing purposes.
func FormatWatchlist(entries []models.Entry) string {
	if len(entries) == 0 {
		return "Your watchlist is empty."
	}

	var sb strings.Builder
	sb.WriteString("📝 <b>Watchlist</b>\n")
	for i, e := range entries {
		year := e.Year()
		if year != "" {
			year = " (" + year + ")"
		}
		sb.WriteString(fmt.Sprintf("%d. %s%s\n", i+1, e.Title, year))
	}
	return strings.TrimRight(sb.String(), "\n")
}
