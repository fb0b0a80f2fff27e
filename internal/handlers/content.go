package handlers

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/solostudio-app/solostudio/backend/internal/models"
)

var contentTypes = map[string]bool{
	"post": true, "article": true, "video": true, "image": true, "story": true,
}

var contentStatuses = map[string]bool{
	"draft": true, "scheduled": true, "published": true, "archived": true,
}

var contentSortFields = map[string]string{
	"created_at":       "created_at",
	"updated_at":       "updated_at",
	"scheduled_for":    "scheduled_for",
	"published_at":     "published_at",
	"title":            "title",
	"engagement_score": "engagement_score",
}

const contentCols = `id, user_id, title, body, content_type,
	COALESCE(platforms, ARRAY[]::text[]), status, scheduled_for, published_at,
	COALESCE(hashtags, ARRAY[]::text[]), COALESCE(media_ids, ARRAY[]::text[]),
	metrics, ai_analysis, engagement_score, created_at, updated_at`

func scanContentRow(scan func(dest ...any) error, c *models.ContentItem) error {
	return scan(
		&c.ID, &c.UserID, &c.Title, &c.Body, &c.ContentType,
		pq.Array(&c.Platforms), &c.Status, &c.ScheduledFor, &c.PublishedAt,
		pq.Array(&c.Hashtags), pq.Array(&c.MediaIDs),
		&c.Metrics, &c.AIAnalysis, &c.EngagementScore, &c.CreatedAt, &c.UpdatedAt,
	)
}

type contentListResponse struct {
	OK    bool                 `json:"ok"`
	Items []models.ContentItem `json:"items"`
	Total int                  `json:"total"`
	Page  int                  `json:"page"`
	Limit int                  `json:"limit"`
}

// ListContentForUser returns a filtered, paginated page of content items plus
// the total matching count (not the page size).
//
// Query params: status, type, platform, q (title/body substring), from, to
// (RFC3339 bounds on created_at), sort, order, page, limit.
func (h *Handler) ListContentForUser(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(pathVar(r, "userId"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	q := r.URL.Query()
	conds := []string{"user_id = $1"}
	args := []any{userID}

	if status := strings.TrimSpace(q.Get("status")); status != "" {
		if !contentStatuses[status] {
			writeError(w, http.StatusBadRequest, "invalid status filter")
			return
		}
		args = append(args, status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if ct := strings.TrimSpace(q.Get("type")); ct != "" {
		if !contentTypes[ct] {
			writeError(w, http.StatusBadRequest, "invalid type filter")
			return
		}
		args = append(args, ct)
		conds = append(conds, fmt.Sprintf("content_type = $%d", len(args)))
	}
	if platform := strings.TrimSpace(strings.ToLower(q.Get("platform"))); platform != "" {
		args = append(args, pq.Array([]string{platform}))
		conds = append(conds, fmt.Sprintf("platforms && $%d::text[]", len(args)))
	}
	if search := strings.TrimSpace(q.Get("q")); search != "" {
		args = append(args, "%"+search+"%")
		conds = append(conds, fmt.Sprintf("(title ILIKE $%d OR body ILIKE $%d)", len(args), len(args)))
	}
	if from := strings.TrimSpace(q.Get("from")); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from timestamp")
			return
		}
		args = append(args, t)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if to := strings.TrimSpace(q.Get("to")); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to timestamp")
			return
		}
		args = append(args, t)
		conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	sortCol := "created_at"
	if s := strings.TrimSpace(q.Get("sort")); s != "" {
		col, ok := contentSortFields[s]
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid sort field")
			return
		}
		sortCol = col
	}
	order := "DESC"
	if strings.EqualFold(q.Get("order"), "asc") {
		order = "ASC"
	}

	page := 1
	if p, err := strconv.Atoi(q.Get("page")); err == nil && p > 0 {
		page = p
	}
	limit := 20
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 {
		limit = l
	}
	if limit > 100 {
		limit = 100
	}

	where := strings.Join(conds, " AND ")

	var total int
	if err := h.db.QueryRow(`SELECT COUNT(*) FROM public.content_items WHERE `+where, args...).Scan(&total); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	args = append(args, limit, (page-1)*limit)
	query := fmt.Sprintf(`SELECT %s FROM public.content_items WHERE %s ORDER BY %s %s LIMIT $%d OFFSET $%d`,
		contentCols, where, sortCol, order, len(args)-1, len(args))
	rows, err := h.db.Query(query, args...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	items := []models.ContentItem{}
	for rows.Next() {
		var c models.ContentItem
		if err := scanContentRow(rows.Scan, &c); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, contentListResponse{OK: true, Items: items, Total: total, Page: page, Limit: limit})
}

func (h *Handler) GetContentForUser(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(pathVar(r, "userId"))
	contentID := strings.TrimSpace(pathVar(r, "contentId"))
	if userID == "" || contentID == "" {
		writeError(w, http.StatusBadRequest, "userId and contentId are required")
		return
	}

	var c models.ContentItem
	err := scanContentRow(h.db.QueryRow(
		`SELECT `+contentCols+` FROM public.content_items WHERE id = $1 AND user_id = $2`,
		contentID, userID,
	).Scan, &c)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type createOrUpdateContentRequest struct {
	Title        *string          `json:"title,omitempty"`
	Body         *string          `json:"body,omitempty"`
	ContentType  *string          `json:"contentType,omitempty"`
	Platforms    []string         `json:"platforms,omitempty"`
	Status       *string          `json:"status,omitempty"`
	ScheduledFor *time.Time       `json:"scheduledFor,omitempty"`
	Hashtags     []string         `json:"hashtags,omitempty"`
	MediaIDs     []string         `json:"mediaIds,omitempty"`
	Metrics      *json.RawMessage `json:"metrics,omitempty"`
}

func normalizeList(in []string, lower bool) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, v := range in {
		vv := strings.TrimSpace(v)
		if lower {
			vv = strings.ToLower(vv)
		}
		if vv == "" || seen[vv] {
			continue
		}
		seen[vv] = true
		out = append(out, vv)
	}
	return out
}

// CreateContentForUser inserts a new content item (default status draft).
func (h *Handler) CreateContentForUser(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(pathVar(r, "userId"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	var req createOrUpdateContentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.Title == nil || strings.TrimSpace(*req.Title) == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	contentType := "post"
	if req.ContentType != nil {
		contentType = strings.TrimSpace(*req.ContentType)
	}
	if !contentTypes[contentType] {
		writeError(w, http.StatusBadRequest, "invalid contentType")
		return
	}
	status := "draft"
	if req.Status != nil {
		status = strings.TrimSpace(*req.Status)
	}
	if status != "draft" && status != "scheduled" {
		writeError(w, http.StatusBadRequest, "new content must be draft or scheduled")
		return
	}
	if status == "scheduled" && req.ScheduledFor == nil {
		writeError(w, http.StatusBadRequest, "scheduledFor is required when status=scheduled")
		return
	}

	var metricsArg interface{}
	if req.Metrics != nil {
		metricsArg = []byte(*req.Metrics)
	}

	var out models.ContentItem
	query := `
		INSERT INTO public.content_items
		  (id, user_id, title, body, content_type, platforms, status, scheduled_for, hashtags, media_ids, metrics, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb, NOW(), NOW())
		RETURNING ` + contentCols
	err := scanContentRow(h.db.QueryRow(query,
		randHex(16), userID, strings.TrimSpace(*req.Title), req.Body, contentType,
		pq.Array(normalizeList(req.Platforms, true)), status, req.ScheduledFor,
		pq.Array(normalizeList(req.Hashtags, false)), pq.Array(normalizeList(req.MediaIDs, false)),
		metricsArg,
	).Scan, &out)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, out)
}

// UpdateContentForUser applies only the provided fields. Status changes must
// go through the transition endpoints; archived rows are immutable.
func (h *Handler) UpdateContentForUser(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(pathVar(r, "userId"))
	contentID := strings.TrimSpace(pathVar(r, "contentId"))
	if userID == "" || contentID == "" {
		writeError(w, http.StatusBadRequest, "userId and contentId are required")
		return
	}

	var req createOrUpdateContentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.Status != nil {
		writeError(w, http.StatusBadRequest, "status changes must use the schedule/publish/archive endpoints")
		return
	}
	if req.ContentType != nil && !contentTypes[strings.TrimSpace(*req.ContentType)] {
		writeError(w, http.StatusBadRequest, "invalid contentType")
		return
	}

	var platformsArg, hashtagsArg, mediaArg, metricsArg interface{}
	if req.Platforms != nil {
		platformsArg = pq.Array(normalizeList(req.Platforms, true))
	}
	if req.Hashtags != nil {
		hashtagsArg = pq.Array(normalizeList(req.Hashtags, false))
	}
	if req.MediaIDs != nil {
		mediaArg = pq.Array(normalizeList(req.MediaIDs, false))
	}
	if req.Metrics != nil {
		metricsArg = []byte(*req.Metrics)
	}

	var out models.ContentItem
	query := `
		UPDATE public.content_items
		SET title = COALESCE($3, title),
		    body = COALESCE($4, body),
		    content_type = COALESCE($5, content_type),
		    platforms = COALESCE($6::text[], platforms),
		    scheduled_for = COALESCE($7, scheduled_for),
		    hashtags = COALESCE($8::text[], hashtags),
		    media_ids = COALESCE($9::text[], media_ids),
		    metrics = COALESCE($10::jsonb, metrics),
		    updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND status <> 'archived'
		RETURNING ` + contentCols
	err := scanContentRow(h.db.QueryRow(query,
		contentID, userID, req.Title, req.Body, req.ContentType,
		platformsArg, req.ScheduledFor, hashtagsArg, mediaArg, metricsArg,
	).Scan, &out)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "not found or archived")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) DeleteContentForUser(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(pathVar(r, "userId"))
	contentID := strings.TrimSpace(pathVar(r, "contentId"))
	if userID == "" || contentID == "" {
		writeError(w, http.StatusBadRequest, "userId and contentId are required")
		return
	}

	res, err := h.db.Exec(`DELETE FROM public.content_items WHERE id = $1 AND user_id = $2`, contentID, userID)
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

// copySuffix is appended to duplicated titles (product UI copy is pt-BR).
const copySuffix = " (Cópia)"

// DuplicateContentForUser clones an item as a fresh draft: new id, no
// schedule/publish timestamps, no metrics or analysis carried over.
func (h *Handler) DuplicateContentForUser(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(pathVar(r, "userId"))
	contentID := strings.TrimSpace(pathVar(r, "contentId"))
	if userID == "" || contentID == "" {
		writeError(w, http.StatusBadRequest, "userId and contentId are required")
		return
	}

	var src models.ContentItem
	err := scanContentRow(h.db.QueryRow(
		`SELECT `+contentCols+` FROM public.content_items WHERE id = $1 AND user_id = $2`,
		contentID, userID,
	).Scan, &src)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var out models.ContentItem
	query := `
		INSERT INTO public.content_items
		  (id, user_id, title, body, content_type, platforms, status, hashtags, media_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'draft', $7, $8, NOW(), NOW())
		RETURNING ` + contentCols
	err = scanContentRow(h.db.QueryRow(query,
		randHex(16), userID, src.Title+copySuffix, src.Body, src.ContentType,
		pq.Array(src.Platforms), pq.Array(src.Hashtags), pq.Array(src.MediaIDs),
	).Scan, &out)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, out)
}

type scheduleContentRequest struct {
	ScheduledFor *time.Time `json:"scheduledFor"`
}

// ScheduleContent moves an item to scheduled with the given timestamp.
// It never stamps published_at. The future-ness of scheduledFor is the
// caller's responsibility.
func (h *Handler) ScheduleContent(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(pathVar(r, "userId"))
	contentID := strings.TrimSpace(pathVar(r, "contentId"))
	if userID == "" || contentID == "" {
		writeError(w, http.StatusBadRequest, "userId and contentId are required")
		return
	}

	var req scheduleContentRequest
	if err := decodeJSON(r, &req); err != nil || req.ScheduledFor == nil {
		writeError(w, http.StatusBadRequest, "scheduledFor is required")
		return
	}

	var out models.ContentItem
	query := `
		UPDATE public.content_items
		SET status = 'scheduled', scheduled_for = $3, updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND status <> 'archived'
		RETURNING ` + contentCols
	err := scanContentRow(h.db.QueryRow(query, contentID, userID, req.ScheduledFor).Scan, &out)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "not found or archived")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, out)
}

// PublishContent moves an item to published and stamps published_at = NOW().
func (h *Handler) PublishContent(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(pathVar(r, "userId"))
	contentID := strings.TrimSpace(pathVar(r, "contentId"))
	if userID == "" || contentID == "" {
		writeError(w, http.StatusBadRequest, "userId and contentId are required")
		return
	}

	var out models.ContentItem
	query := `
		UPDATE public.content_items
		SET status = 'published', published_at = NOW(), scheduled_for = NULL, updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND status <> 'archived'
		RETURNING ` + contentCols
	err := scanContentRow(h.db.QueryRow(query, contentID, userID).Scan, &out)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "not found or archived")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Printf("[Content] published id=%s userId=%s", out.ID, userID)
	h.emitEvent(userID, realtimeEvent{Type: "content.published", ContentID: out.ID, Status: out.Status})
	writeJSON(w, http.StatusOK, out)
}

// ArchiveContent moves an item to archived. Archived is terminal.
func (h *Handler) ArchiveContent(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(pathVar(r, "userId"))
	contentID := strings.TrimSpace(pathVar(r, "contentId"))
	if userID == "" || contentID == "" {
		writeError(w, http.StatusBadRequest, "userId and contentId are required")
		return
	}

	var out models.ContentItem
	query := `
		UPDATE public.content_items
		SET status = 'archived', updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING ` + contentCols
	err := scanContentRow(h.db.QueryRow(query, contentID, userID).Scan, &out)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, out)
}
