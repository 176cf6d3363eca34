package service

import (
	"fmt"
	"log"
	"time"

	"media-tracker/internal/timeutil"
)

// DigestSender is the capability to push the daily collection digest.
type DigestSender interface {
	SendDailyDigest() error
}

// Scheduler runs the recurring background jobs: the daily digest push and
// the weekly database backup.
type Scheduler struct {
	digestSender DigestSender
	backupSvc    *BackupService
	digestTime   string // "HH:MM"
	stopChan     chan struct{}
}

// NewScheduler creates a new Scheduler.
func NewScheduler(digestSender DigestSender, backupSvc *BackupService, digestTime string) *Scheduler {
	return &Scheduler{
		digestSender: digestSender,
		backupSvc:    backupSvc,
		digestTime:   digestTime,
		stopChan:     make(chan struct{}),
	}
}

// Start starts all scheduled tasks.
func (s *Scheduler) Start() {
	if s.digestSender != nil {
		go s.runDailyDigestScheduler()
	}
	go s.runWeeklyBackupScheduler()
	log.Printf("Scheduler started - daily digest at %s, weekly backup on Sundays at 03:00", s.digestTime)
}

// Stop stops all scheduled tasks.
func (s *Scheduler) Stop() {
	close(s.stopChan)
}

func (s *Scheduler) runDailyDigestScheduler() {
	for {
		nextRun := s.calculateNextDigestTime()
		duration := time.Until(nextRun)

		log.Printf("Next daily digest scheduled at %s (in %v)", nextRun.Format("2006-01-02 15:04:05"), duration.Round(time.Minute))

		select {
		case <-time.After(duration):
			log.Println("Sending daily digest...")
			if err := s.digestSender.SendDailyDigest(); err != nil {
				log.Printf("Failed to send daily digest: %v", err)
			} else {
				log.Println("Daily digest sent successfully")
			}
		case <-s.stopChan:
			return
		}
	}
}

func (s *Scheduler) runWeeklyBackupScheduler() {
	for {
		nextRun := s.calculateNextBackupTime()
		duration := time.Until(nextRun)

		log.Printf("Next backup scheduled at %s (in %v)", nextRun.Format("2006-01-02 15:04:05"), duration.Round(time.Hour))

		select {
		case <-time.After(duration):
			log.Println("Running weekly backup...")
			backupPath, err := s.backupSvc.Backup()
			if err != nil {
				log.Printf("Failed to create backup: %v", err)
			} else {
				log.Printf("Backup created successfully: %s", backupPath)
			}
		case <-s.stopChan:
			return
		}
	}
}

// calculateNextDigestTime calculates the next time to send the daily digest.
func (s *Scheduler) calculateNextDigestTime() time.Time {
	now := timeutil.Now()

	hour, minute := 8, 0 // default 08:00
	if s.digestTime != "" {
		fmt.Sscanf(s.digestTime, "%d:%d", &hour, &minute)
	}

	digestTime := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if now.After(digestTime) {
		digestTime = digestTime.Add(24 * time.Hour)
	}

	return digestTime
}

// calculateNextBackupTime calculates the next Sunday at 03:00.
func (s *Scheduler) calculateNextBackupTime() time.Time {
	now := timeutil.Now()

	daysUntilSunday := (7 - int(now.Weekday())) % 7
	if daysUntilSunday == 0 {
		backupTime := time.Date(now.Year(), now.Month(), now.Day(), 3, 0, 0, 0, now.Location())
		if now.After(backupTime) {
			daysUntilSunday = 7
		}
	}

	nextSunday := now.AddDate(0, 0, daysUntilSunday)
	return time.Date(nextSunday.Year(), nextSunday.Month(), nextSunday.Day(), 3, 0, 0, 0, now.Location())
}
