package handlers

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/solostudio-app/solostudio/backend/internal/models"
)

func parseLimit(r *http.Request, def, min, max int) int {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

func (h *Handler) ListNotificationsForUser(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	userID := pathVar(r, "userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	limit := parseLimit(r, 50, 1, 200)
	if limit <= 0 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	onlyUnread := strings.TrimSpace(strings.ToLower(r.URL.Query().Get("unread"))) == "true"

	q := `
		SELECT id, user_id, type, title, body, url, created_at, read_at
		FROM public.notifications
		WHERE user_id = $1
	`
	args := []any{userID}
	if onlyUnread {
		q += " AND read_at IS NULL"
	}
	q += " ORDER BY created_at DESC LIMIT $2"
	args = append(args, limit)

	rows, err := h.db.Query(q, args...)
	if err != nil {
		log.Printf("[Notifications][List] query error userId=%s err=%v", userID, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	out := []models.Notification{}
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &n.URL, &n.CreatedAt, &n.ReadAt); err != nil {
			log.Printf("[Notifications][List] scan error userId=%s err=%v", userID, err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		log.Printf("[Notifications][List] rows error userId=%s err=%v", userID, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) MarkNotificationReadForUser(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	userID := pathVar(r, "userId")
	id := pathVar(r, "id")
	if userID == "" || id == "" {
		writeError(w, http.StatusBadRequest, "userId and id are required")
		return
	}
	res, err := h.db.Exec(`
		UPDATE public.notifications
		   SET read_at = COALESCE(read_at, NOW())
		 WHERE user_id = $1 AND id = $2
	`, userID, id)
	if err != nil {
		log.Printf("[Notifications][Read] exec error userId=%s id=%s err=%v", userID, truncate(id, 80), err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) createNotification(userID, typ, title string, body *string, urlStr *string) string {
	id := fmt.Sprintf("n_%d", time.Now().UTC().UnixNano())
	_, err := h.db.Exec(`
		INSERT INTO public.notifications (id, user_id, type, title, body, url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, id, userID, typ, title, body, urlStr)
	if err != nil {
		log.Printf("[Notifications][Create] insert error userId=%s type=%s err=%v", userID, typ, err)
		return ""
	}
	log.Printf("[Notifications][Create] ok userId=%s id=%s type=%s", userID, id, typ)

	// Realtime: notify UI (so it can show a badge/toast).
	h.emitEvent(userID, realtimeEvent{
		Type:   "notification.created",
		Status: typ,
	})
	return id
}
