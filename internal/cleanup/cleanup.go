// internal/cleanup/cleanup.go
package cleanup

import (
	"time"

	"github.com/dustin/go-humanize"

	"cartbackend/internal/logger"
	"cartbackend/internal/storage"
)

const (
	cleanupHour       = 2   // 2 AM
	retentionDays     = 14  // abandoned carts older than this are dropped
	maxDeletionPerRun = 200 // Maximum records to delete per run
)

// StartCleanupRoutine starts the daily cleanup job
func StartCleanupRoutine() {
	go func() {
		logger.LogInfo("Cleanup routine started - will run daily at %d:00 AM", cleanupHour)

		for {
			// Calculate next 2 AM
			now := time.Now()
			next2AM := time.Date(now.Year(), now.Month(), now.Day(), cleanupHour, 0, 0, 0, now.Location())

			// If it's past 2 AM today, schedule for tomorrow
			if now.After(next2AM) {
				next2AM = next2AM.Add(24 * time.Hour)
			}

			sleepDuration := next2AM.Sub(now)
			logger.LogInfo("Next cleanup scheduled for %v (in %v)", next2AM.Format("2006-01-02 15:04:05"), sleepDuration)

			time.Sleep(sleepDuration)

			runCleanup()
		}
	}()
}

// runCleanup purges carts nobody has touched within the retention window
func runCleanup() {
	logger.LogInfo("Starting daily cleanup of abandoned carts")

	cutoffTime := time.Now().Add(-retentionDays * 24 * time.Hour)
	logger.LogInfo("Cleaning carts untouched since %v (%s)",
		cutoffTime.Format("2006-01-02 15:04:05"), humanize.Time(cutoffTime))

	cleaned, err := storage.PurgeStale(cutoffTime, maxDeletionPerRun)
	if err != nil {
		logger.LogError("Failed to cleanup abandoned carts: %v", err)
		return
	}

	if cleaned == 0 {
		logger.LogInfo("Cleanup completed - no abandoned carts found")
	} else {
		logger.LogInfo("Cleanup completed - %d abandoned carts removed", cleaned)
	}

	if count, oldest, err := storage.CartStats(); err == nil && oldest != nil {
		logger.LogInfo("Carts remaining: %d, oldest last touched %s", count, humanize.Time(*oldest))
	}
}
