package handlers

import (
	"context"
	"database/sql"
	"log"
	"strings"
	"time"
)

// processDueScheduledContentOnce publishes content items whose scheduled time
// has passed. The UPDATE is the claim: the status/scheduled_for predicates make
// it safe to run from multiple instances.
func (h *Handler) processDueScheduledContentOnce(ctx context.Context, limit int) (int, error) {
	if h == nil || h.db == nil {
		return 0, nil
	}
	if limit <= 0 {
		limit = 25
	}

	rows, err := h.db.QueryContext(ctx, `
		UPDATE public.content_items
		   SET status = 'published',
		       published_at = NOW(),
		       scheduled_for = NULL,
		       updated_at = NOW()
		 WHERE id IN (
		       SELECT id FROM public.content_items
		        WHERE status = 'scheduled'
		          AND published_at IS NULL
		          AND scheduled_for IS NOT NULL
		          AND scheduled_for <= NOW()
		        ORDER BY scheduled_for ASC
		        LIMIT $1
		        FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, user_id, title
	`, limit)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	type published struct {
		id     string
		userID string
		title  string
	}
	batch := make([]published, 0)
	for rows.Next() {
		var p published
		if err := rows.Scan(&p.id, &p.userID, &p.title); err != nil {
			return 0, err
		}
		batch = append(batch, p)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, p := range batch {
		log.Printf("[ScheduledContent] published contentId=%s userId=%s title=%q", p.id, p.userID, truncate(p.title, 80))
		body := "\"" + truncate(p.title, 120) + "\" went live."
		url := "/content/" + p.id
		_ = h.createNotification(p.userID, "content_published", "Content published", &body, &url)
		h.emitEvent(p.userID, realtimeEvent{
			Type:      "content.published",
			ContentID: p.id,
			Status:    "published",
		})
	}

	return len(batch), nil
}

// StartScheduledContentWorker runs a periodic poller that publishes due
// scheduled content. Enable it by wiring it from `main` using an env gate.
func (h *Handler) StartScheduledContentWorker(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	log.Printf("[ScheduledContent] worker started interval=%s", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Log a lightweight summary periodically even when nothing is due.
	sweepCount := 0
	sweepStats := func() (due int, next sql.NullTime) {
		if h == nil || h.db == nil {
			return 0, sql.NullTime{}
		}
		_ = h.db.QueryRowContext(ctx, `
			SELECT COUNT(*)
			  FROM public.content_items
			 WHERE status = 'scheduled'
			   AND published_at IS NULL
			   AND scheduled_for IS NOT NULL
			   AND scheduled_for <= NOW()
		`).Scan(&due)
		_ = h.db.QueryRowContext(ctx, `
			SELECT MIN(scheduled_for)
			  FROM public.content_items
			 WHERE status = 'scheduled'
			   AND published_at IS NULL
			   AND scheduled_for IS NOT NULL
			   AND scheduled_for > NOW()
		`).Scan(&next)
		return due, next
	}

	run := func() {
		sweepCount++
		limit := 25
		backoffs := []time.Duration{700 * time.Millisecond, 1500 * time.Millisecond, 3 * time.Second}
		var n int
		var err error
		for attempt := 0; attempt < len(backoffs)+1; attempt++ {
			// Timebox each sweep attempt.
			sweepCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
			n, err = h.processDueScheduledContentOnce(sweepCtx, limit)
			cancel()
			if err == nil {
				break
			}
			// If the DB reports OOM, reduce the batch size to reduce pressure.
			if strings.Contains(strings.ToLower(err.Error()), "out of memory") && limit > 5 {
				limit = 5
			}
			if attempt < len(backoffs) {
				log.Printf("[ScheduledContent] sweep error attempt=%d/%d limit=%d err=%v", attempt+1, len(backoffs)+1, limit, err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(backoffs[attempt]):
				}
				continue
			}
		}
		if err != nil {
			log.Printf("[ScheduledContent] sweep error final limit=%d err=%v", limit, err)
			return
		}
		if n > 0 {
			log.Printf("[ScheduledContent] published=%d", n)
			return
		}
		// Every ~10 sweeps, print a summary so "nothing happening" is diagnosable.
		if sweepCount%10 == 0 {
			due, next := sweepStats()
			nextStr := ""
			if next.Valid {
				nextStr = next.Time.UTC().Format(time.RFC3339)
			}
			log.Printf("[ScheduledContent] sweep ok published=0 due=%d next=%s", due, nextStr)
		}
	}

	run()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[ScheduledContent] worker stopped err=%v", ctx.Err())
			return
		case <-ticker.C:
			run()
		}
	}
}
