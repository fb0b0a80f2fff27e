package handlers

import (
	"net/http"
	"strings"

	"github.com/solostudio-app/solostudio/backend/internal/models"
)

// ListInsightsForUser lists stored AI insights, newest first.
// Query params: type, all=1 to include acknowledged rows.
func (h *Handler) ListInsightsForUser(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(pathVar(r, "userId"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	q := r.URL.Query()
	conds := []string{"user_id = $1"}
	args := []any{userID}
	if q.Get("all") != "1" {
		conds = append(conds, "acknowledged = false")
	}
	if t := strings.TrimSpace(q.Get("type")); t != "" {
		args = append(args, t)
		conds = append(conds, "type = $2")
	}

	rows, err := h.db.Query(`
		SELECT id, user_id, type, title, description, payload, confidence, acknowledged, content_id, lead_id, created_at
		FROM public.ai_insights
		WHERE `+strings.Join(conds, " AND ")+`
		ORDER BY created_at DESC LIMIT 200
	`, args...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	items := []models.AIInsight{}
	for rows.Next() {
		var in models.AIInsight
		if err := rows.Scan(
			&in.ID, &in.UserID, &in.Type, &in.Title, &in.Description, &in.Payload,
			&in.Confidence, &in.Acknowledged, &in.ContentID, &in.LeadID, &in.CreatedAt,
		); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		items = append(items, in)
	}
	if err := rows.Err(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "items": items})
}

// AcknowledgeInsightForUser marks one insight as seen. Idempotent.
func (h *Handler) AcknowledgeInsightForUser(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(pathVar(r, "userId"))
	insightID := strings.TrimSpace(pathVar(r, "insightId"))
	if userID == "" || insightID == "" {
		writeError(w, http.StatusBadRequest, "userId and insightId are required")
		return
	}

	res, err := h.db.Exec(`
		UPDATE public.ai_insights SET acknowledged = true
		WHERE id = $1 AND user_id = $2
	`, insightID, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// DeleteInsightForUser removes a stored insight.
func (h *Handler) DeleteInsightForUser(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(pathVar(r, "userId"))
	insightID := strings.TrimSpace(pathVar(r, "insightId"))
	if userID == "" || insightID == "" {
		writeError(w, http.StatusBadRequest, "userId and insightId are required")
		return
	}

	res, err := h.db.Exec(`DELETE FROM public.ai_insights WHERE id = $1 AND user_id = $2`, insightID, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
