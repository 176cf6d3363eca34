package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gin-gonic/gin"

	"media-tracker/internal/handler"
	"media-tracker/internal/notify"
	"media-tracker/internal/repository"
	"media-tracker/internal/service"
	"media-tracker/internal/tmdb"
)

// Config holds the application configuration
type Config struct {
	TMDBAPIKey       string
	TelegramBotToken string
	TelegramChatID   int64
	DBPath           string
	BackupDir        string
	DigestTime       string // Format: "HH:MM"
	ListenAddr       string
	APIToken         string
}

func main() {
	// Parse CLI flags
	digestMode := flag.Bool("digest", false, "Send daily digest and exit")
	flag.Parse()

	// Load configuration
	config := loadConfig()

	// Initialize database
	db, err := repository.NewSQLiteDB(config.DBPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.InitSchema(); err != nil {
		log.Fatalf("Failed to initialize database schema: %v", err)
	}

	// Initialize repositories
	collectionRepo := repository.NewCollectionRepository(db)
	cacheRepo := repository.NewDetailsCacheRepository(db)

	// Initialize TMDB client
	tmdbClient := tmdb.NewClient(config.TMDBAPIKey)

	// Initialize services
	cacheSvc := service.NewDetailsCacheService(tmdbClient, cacheRepo)
	store, err := service.NewCollectionStore(cacheSvc, collectionRepo)
	if err != nil {
		log.Fatalf("Failed to restore collection: %v", err)
	}
	engine := service.NewRecommendationEngine(tmdbClient, store)
	backupSvc := service.NewBackupService(config.DBPath, config.BackupDir)

	// Initialize Telegram bot when configured
	var bot *notify.TelegramBot
	if config.TelegramBotToken != "" && config.TelegramChatID != 0 {
		bot, err = notify.NewTelegramBot(config.TelegramBotToken, config.TelegramChatID, store, engine)
		if err != nil {
			log.Fatalf("Failed to create Telegram bot: %v", err)
		}
	}

	// CLI mode: send daily digest and exit
	if *digestMode {
		if bot == nil {
			log.Fatal("Telegram bot not configured. Set TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID environment variables.")
		}
		log.Println("Sending daily digest...")
		if err := bot.SendDailyDigest(); err != nil {
			log.Fatalf("Failed to send daily digest: %v", err)
		}
		fmt.Println("Daily digest sent successfully!")
		return
	}

	// Initialize scheduler
	var digestSender service.DigestSender
	if bot != nil {
		digestSender = bot
	}
	scheduler := service.NewScheduler(digestSender, backupSvc, config.DigestTime)
	scheduler.Start()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Shutting down...")
		scheduler.Stop()
		if bot != nil {
			bot.Stop()
		}
		os.Exit(0)
	}()

	if bot != nil {
		go bot.Start()
		log.Printf("Telegram bot started. Chat ID: %d", config.TelegramChatID)
	}

	// Start HTTP server (blocking)
	h := handler.NewHTTPHandler(tmdbClient, cacheSvc, store, engine, backupSvc, config.APIToken)
	r := gin.Default()
	h.RegisterRoutes(r)

	log.Printf("Media tracker listening on %s", config.ListenAddr)
	if err := r.Run(config.ListenAddr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// loadConfig loads configuration from environment variables
func loadConfig() *Config {
	chatID, _ := strconv.ParseInt(getEnv("TELEGRAM_CHAT_ID", "0"), 10, 64)

	config := &Config{
		TMDBAPIKey:       getEnv("TMDB_API_KEY", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   chatID,
		DBPath:           getEnv("DB_PATH", "media_tracker.db"),
		BackupDir:        getEnv("BACKUP_DIR", "backups"),
		DigestTime:       getEnv("DIGEST_TIME", "08:00"),
		ListenAddr:       getEnv("LISTEN_ADDR", ":8080"),
		APIToken:         getEnv("WEB_API_TOKEN", ""),
	}

	if config.TMDBAPIKey == "" {
		log.Println("Warning: TMDB_API_KEY not set. TMDB API calls will fail.")
	}

	return config
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
