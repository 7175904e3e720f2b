// internal/notifications/cleanup.go

package notifications

import (
	"context"
	"log"
	"time"
)

// CleanupJob periodically deletes notifications past the retention window
type CleanupJob struct {
	service  Service
	interval time.Duration
}

// NewCleanupJob creates a cleanup job running at the given interval
func NewCleanupJob(service Service, interval time.Duration) *CleanupJob {
	return &CleanupJob{
		service:  service,
		interval: interval,
	}
}

// Start runs the job until the context is cancelled
func (j *CleanupJob) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			n, err := j.service.CleanupExpired(runCtx)
			cancel()
			if err != nil {
				log.Printf("Failed to cleanup expired notifications: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("Cleaned up %d expired notifications", n)
			}

		case <-ctx.Done():
			return
		}
	}
}
