package workers

import (
	"context"
	"database/sql"
	"log"
	"time"
)

// CleanupWorker prunes rows that only matter for a while: read notifications
// past their retention window and long-expired refresh tokens.
type CleanupWorker struct {
	DB              *sql.DB
	RetentionHours  int // How long to keep read notifications (default: 24)
	TokenGraceDays  int // How long to keep expired auth tokens (default: 7)
	CheckIntervalMs int // How often to run cleanup (default: 3600000 = 1 hour)
}

// Start begins the cleanup worker loop.
func (w *CleanupWorker) Start(ctx context.Context) {
	if w.RetentionHours <= 0 {
		w.RetentionHours = 24
	}
	if w.TokenGraceDays <= 0 {
		w.TokenGraceDays = 7
	}
	if w.CheckIntervalMs <= 0 {
		w.CheckIntervalMs = 3600000 // 1 hour
	}

	ticker := time.NewTicker(time.Duration(w.CheckIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	log.Printf("[CleanupWorker] started (retention=%dh, tokenGrace=%dd, interval=%dms)",
		w.RetentionHours, w.TokenGraceDays, w.CheckIntervalMs)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[CleanupWorker] stopped")
			return
		case <-ticker.C:
			w.cleanupNotifications(ctx)
			w.cleanupAuthTokens(ctx)
		}
	}
}

// cleanupNotifications removes read notifications older than the retention period.
func (w *CleanupWorker) cleanupNotifications(ctx context.Context) {
	cutoffTime := time.Now().Add(-time.Duration(w.RetentionHours) * time.Hour)

	result, err := w.DB.ExecContext(ctx, `
		DELETE FROM public.notifications
		WHERE read_at IS NOT NULL
		AND read_at < $1
	`, cutoffTime)
	if err != nil {
		log.Printf("[CleanupWorker] notifications error: %v", err)
		return
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		log.Printf("[CleanupWorker] notifications rows affected error: %v", err)
		return
	}
	if deleted > 0 {
		log.Printf("[CleanupWorker] deleted %d old read notifications", deleted)
	}
}

// cleanupAuthTokens removes refresh tokens expired for longer than the grace
// period.
func (w *CleanupWorker) cleanupAuthTokens(ctx context.Context) {
	cutoffTime := time.Now().Add(-time.Duration(w.TokenGraceDays) * 24 * time.Hour)

	result, err := w.DB.ExecContext(ctx, `
		DELETE FROM public.auth_tokens
		WHERE expires_at < $1
	`, cutoffTime)
	if err != nil {
		log.Printf("[CleanupWorker] auth tokens error: %v", err)
		return
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		log.Printf("[CleanupWorker] auth tokens rows affected error: %v", err)
		return
	}
	if deleted > 0 {
		log.Printf("[CleanupWorker] deleted %d expired auth tokens", deleted)
	}
}
