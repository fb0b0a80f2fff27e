package handlers

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/solostudio-app/solostudio/backend/internal/models"
)

// Pipeline order: new -> contacted -> qualified -> proposal -> negotiation -> won|lost.
var leadStatuses = map[string]bool{
	"new": true, "contacted": true, "qualified": true, "proposal": true,
	"negotiation": true, "won": true, "lost": true,
}

var interactionTypes = map[string]bool{
	"email": true, "call": true, "meeting": true, "message": true, "proposal": true,
}

const leadCols = `id, user_id, name, email, phone, company, source, status, score,
	estimated_value, COALESCE(tags, ARRAY[]::text[]), notes, next_action, next_action_at,
	created_at, updated_at`

func scanLeadRow(scan func(dest ...any) error, l *models.Lead) error {
	return scan(
		&l.ID, &l.UserID, &l.Name, &l.Email, &l.Phone, &l.Company, &l.Source, &l.Status,
		&l.Score, &l.EstimatedValue, pq.Array(&l.Tags), &l.Notes, &l.NextAction, &l.NextActionAt,
		&l.CreatedAt, &l.UpdatedAt,
	)
}

type leadListResponse struct {
	OK    bool          `json:"ok"`
	Items []models.Lead `json:"items"`
	Total int           `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// ListLeadsForUser mirrors the content listing: filters, pagination, total count.
// Query params: status, source, q (name/company/email substring), page, limit.
func (h *Handler) ListLeadsForUser(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(pathVar(r, "userId"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	q := r.URL.Query()
	conds := []string{"user_id = $1"}
	args := []any{userID}

	if status := strings.TrimSpace(q.Get("status")); status != "" {
		if !leadStatuses[status] {
			writeError(w, http.StatusBadRequest, "invalid status filter")
			return
		}
		args = append(args, status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if source := strings.TrimSpace(q.Get("source")); source != "" {
		args = append(args, source)
		conds = append(conds, fmt.Sprintf("source = $%d", len(args)))
	}
	if search := strings.TrimSpace(q.Get("q")); search != "" {
		args = append(args, "%"+search+"%")
		conds = append(conds, fmt.Sprintf("(name ILIKE $%d OR company ILIKE $%d OR email ILIKE $%d)", len(args), len(args), len(args)))
	}

	page := 1
	if p, err := strconv.Atoi(q.Get("page")); err == nil && p > 0 {
		page = p
	}
	limit := 20
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 {
		limit = l
	}
	if limit > 200 {
		limit = 200
	}

	where := strings.Join(conds, " AND ")

	var total int
	if err := h.db.QueryRow(`SELECT COUNT(*) FROM public.leads WHERE `+where, args...).Scan(&total); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	args = append(args, limit, (page-1)*limit)
	query := fmt.Sprintf(`SELECT %s FROM public.leads WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		leadCols, where, len(args)-1, len(args))
	rows, err := h.db.Query(query, args...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	items := []models.Lead{}
	for rows.Next() {
		var l models.Lead
		if err := scanLeadRow(rows.Scan, &l); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		items = append(items, l)
	}
	if err := rows.Err(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, leadListResponse{OK: true, Items: items, Total: total, Page: page, Limit: limit})
}

func (h *Handler) GetLeadForUser(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(pathVar(r, "userId"))
	leadID := strings.TrimSpace(pathVar(r, "leadId"))
	if userID == "" || leadID == "" {
		writeError(w, http.StatusBadRequest, "userId and leadId are required")
		return
	}

	var l models.Lead
	err := scanLeadRow(h.db.QueryRow(
		`SELECT `+leadCols+` FROM public.leads WHERE id = $1 AND user_id = $2`, leadID, userID,
	).Scan, &l)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, l)
}

type createOrUpdateLeadRequest struct {
	Name           *string  `json:"name,omitempty"`
	Email          *string  `json:"email,omitempty"`
	Phone          *string  `json:"phone,omitempty"`
	Company        *string  `json:"company,omitempty"`
	Source         *string  `json:"source,omitempty"`
	Status         *string  `json:"status,omitempty"`
	Score          *int     `json:"score,omitempty"`
	EstimatedValue *float64 `json:"estimatedValue,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	Notes          *string  `json:"notes,omitempty"`
	NextAction     *string  `json:"nextAction,omitempty"`
}

func (h *Handler) CreateLeadForUser(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(pathVar(r, "userId"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	var req createOrUpdateLeadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	status := "new"
	if req.Status != nil {
		status = strings.TrimSpace(*req.Status)
	}
	if !leadStatuses[status] {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}
	source := "manual"
	if req.Source != nil && strings.TrimSpace(*req.Source) != "" {
		source = strings.TrimSpace(*req.Source)
	}
	score := 0
	if req.Score != nil {
		score = *req.Score
	}
	if score < 0 || score > 100 {
		writeError(w, http.StatusBadRequest, "score must be between 0 and 100")
		return
	}

	var out models.Lead
	query := `
		INSERT INTO public.leads
		  (id, user_id, name, email, phone, company, source, status, score, estimated_value, tags, notes, next_action, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())
		RETURNING ` + leadCols
	err := scanLeadRow(h.db.QueryRow(query,
		randHex(16), userID, strings.TrimSpace(*req.Name), req.Email, req.Phone, req.Company,
		source, status, score, req.EstimatedValue, pq.Array(normalizeList(req.Tags, false)),
		req.Notes, req.NextAction,
	).Scan, &out)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) UpdateLeadForUser(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(pathVar(r, "userId"))
	leadID := strings.TrimSpace(pathVar(r, "leadId"))
	if userID == "" || leadID == "" {
		writeError(w, http.StatusBadRequest, "userId and leadId are required")
		return
	}

	var req createOrUpdateLeadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.Status != nil && !leadStatuses[strings.TrimSpace(*req.Status)] {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}
	if req.Score != nil && (*req.Score < 0 || *req.Score > 100) {
		writeError(w, http.StatusBadRequest, "score must be between 0 and 100")
		return
	}

	var tagsArg interface{}
	if req.Tags != nil {
		tagsArg = pq.Array(normalizeList(req.Tags, false))
	}

	var out models.Lead
	query := `
		UPDATE public.leads
		SET name = COALESCE($3, name),
		    email = COALESCE($4, email),
		    phone = COALESCE($5, phone),
		    company = COALESCE($6, company),
		    source = COALESCE($7, source),
		    status = COALESCE($8, status),
		    score = COALESCE($9, score),
		    estimated_value = COALESCE($10, estimated_value),
		    tags = COALESCE($11::text[], tags),
		    notes = COALESCE($12, notes),
		    next_action = COALESCE($13, next_action),
		    updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING ` + leadCols
	err := scanLeadRow(h.db.QueryRow(query,
		leadID, userID, req.Name, req.Email, req.Phone, req.Company, req.Source,
		req.Status, req.Score, req.EstimatedValue, tagsArg, req.Notes, req.NextAction,
	).Scan, &out)
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

func (h *Handler) DeleteLeadForUser(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(pathVar(r, "userId"))
	leadID := strings.TrimSpace(pathVar(r, "leadId"))
	if userID == "" || leadID == "" {
		writeError(w, http.StatusBadRequest, "userId and leadId are required")
		return
	}

	res, err := h.db.Exec(`DELETE FROM public.leads WHERE id = $1 AND user_id = $2`, leadID, userID)
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

// ---- Derived analytics ----
//
// Pure functions over a loaded page of leads. Global accuracy requires paging
// through the full set or requesting a large limit; the stats endpoint below
// uses the same filters as the list endpoint.

func leadCountsByStatus(leads []models.Lead) map[string]int {
	out := map[string]int{}
	for _, l := range leads {
		out[l.Status]++
	}
	return out
}

func leadCountsBySource(leads []models.Lead) map[string]int {
	out := map[string]int{}
	for _, l := range leads {
		out[l.Source]++
	}
	return out
}

func totalEstimatedValue(leads []models.Lead) float64 {
	var sum float64
	for _, l := range leads {
		if l.EstimatedValue != nil {
			sum += *l.EstimatedValue
		}
	}
	return sum
}

// conversionRate returns won/total*100, and 0 for an empty slice.
func conversionRate(leads []models.Lead) float64 {
	if len(leads) == 0 {
		return 0
	}
	won := 0
	for _, l := range leads {
		if l.Status == "won" {
			won++
		}
	}
	return float64(won) / float64(len(leads)) * 100
}

type leadStatsResponse struct {
	OK             bool           `json:"ok"`
	ByStatus       map[string]int `json:"byStatus"`
	BySource       map[string]int `json:"bySource"`
	TotalValue     float64        `json:"totalEstimatedValue"`
	ConversionRate float64        `json:"conversionRate"`
	SampleSize     int            `json:"sampleSize"`
}

// LeadStatsForUser loads up to 1000 leads and computes the derived analytics
// over that sample.
func (h *Handler) LeadStatsForUser(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(pathVar(r, "userId"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	rows, err := h.db.Query(
		`SELECT `+leadCols+` FROM public.leads WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1000`,
		userID,
	)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	leads := []models.Lead{}
	for rows.Next() {
		var l models.Lead
		if err := scanLeadRow(rows.Scan, &l); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		leads = append(leads, l)
	}
	if err := rows.Err(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, leadStatsResponse{
		OK:             true,
		ByStatus:       leadCountsByStatus(leads),
		BySource:       leadCountsBySource(leads),
		TotalValue:     totalEstimatedValue(leads),
		ConversionRate: conversionRate(leads),
		SampleSize:     len(leads),
	})
}

// ---- Interactions ----

const interactionCols = `id, lead_id, user_id, type, subject, content, outcome, sentiment,
	ai_analysis, COALESCE(attachments, ARRAY[]::text[]), created_at`

func scanInteractionRow(scan func(dest ...any) error, it *models.Interaction) error {
	return scan(
		&it.ID, &it.LeadID, &it.UserID, &it.Type, &it.Subject, &it.Content,
		&it.Outcome, &it.Sentiment, &it.AIAnalysis, pq.Array(&it.Attachments), &it.CreatedAt,
	)
}

// ListInteractionsForUser lists interactions, optionally scoped to ?leadId=.
func (h *Handler) ListInteractionsForUser(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(pathVar(r, "userId"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	leadID := strings.TrimSpace(r.URL.Query().Get("leadId"))
	var rows *sql.Rows
	var err error
	if leadID != "" {
		rows, err = h.db.Query(
			`SELECT `+interactionCols+` FROM public.interactions WHERE user_id = $1 AND lead_id = $2 ORDER BY created_at ASC`,
			userID, leadID,
		)
	} else {
		rows, err = h.db.Query(
			`SELECT `+interactionCols+` FROM public.interactions WHERE user_id = $1 ORDER BY created_at DESC LIMIT 500`,
			userID,
		)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	items := []models.Interaction{}
	for rows.Next() {
		var it models.Interaction
		if err := scanInteractionRow(rows.Scan, &it); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "items": items})
}

type createInteractionRequest struct {
	LeadID      string           `json:"leadId"`
	Type        string           `json:"type"`
	Subject     *string          `json:"subject,omitempty"`
	Content     *string          `json:"content,omitempty"`
	Outcome     *string          `json:"outcome,omitempty"`
	Sentiment   *string          `json:"sentiment,omitempty"`
	AIAnalysis  *json.RawMessage `json:"aiAnalysis,omitempty"`
	Attachments []string         `json:"attachments,omitempty"`
}

func (h *Handler) CreateInteractionForUser(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(pathVar(r, "userId"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	var req createInteractionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.LeadID = strings.TrimSpace(req.LeadID)
	req.Type = strings.TrimSpace(strings.ToLower(req.Type))
	if req.LeadID == "" {
		writeError(w, http.StatusBadRequest, "leadId is required")
		return
	}
	if !interactionTypes[req.Type] {
		writeError(w, http.StatusBadRequest, "invalid type")
		return
	}

	// The lead must belong to the same user.
	var owner string
	err := h.db.QueryRow(`SELECT user_id FROM public.leads WHERE id = $1`, req.LeadID).Scan(&owner)
	if err == sql.ErrNoRows || (err == nil && owner != userID) {
		writeError(w, http.StatusNotFound, "lead not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var analysisArg interface{}
	if req.AIAnalysis != nil {
		analysisArg = []byte(*req.AIAnalysis)
	}

	var out models.Interaction
	query := `
		INSERT INTO public.interactions
		  (id, lead_id, user_id, type, subject, content, outcome, sentiment, ai_analysis, attachments, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10, NOW())
		RETURNING ` + interactionCols
	err = scanInteractionRow(h.db.QueryRow(query,
		randHex(16), req.LeadID, userID, req.Type, req.Subject, req.Content,
		req.Outcome, req.Sentiment, analysisArg, pq.Array(normalizeList(req.Attachments, false)),
	).Scan, &out)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, out)
}

type updateInteractionRequest struct {
	Type        *string          `json:"type,omitempty"`
	Subject     *string          `json:"subject,omitempty"`
	Content     *string          `json:"content,omitempty"`
	Outcome     *string          `json:"outcome,omitempty"`
	Sentiment   *string          `json:"sentiment,omitempty"`
	AIAnalysis  *json.RawMessage `json:"aiAnalysis,omitempty"`
	Attachments []string         `json:"attachments,omitempty"`
}

// UpdateInteractionForUser applies only the provided fields. Typical use is
// recording outcome and sentiment after a call or meeting.
func (h *Handler) UpdateInteractionForUser(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(pathVar(r, "userId"))
	interactionID := strings.TrimSpace(pathVar(r, "interactionId"))
	if userID == "" || interactionID == "" {
		writeError(w, http.StatusBadRequest, "userId and interactionId are required")
		return
	}

	var req updateInteractionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.Type != nil {
		t := strings.TrimSpace(strings.ToLower(*req.Type))
		if !interactionTypes[t] {
			writeError(w, http.StatusBadRequest, "invalid type")
			return
		}
		req.Type = &t
	}

	var analysisArg, attachmentsArg interface{}
	if req.AIAnalysis != nil {
		analysisArg = []byte(*req.AIAnalysis)
	}
	if req.Attachments != nil {
		attachmentsArg = pq.Array(normalizeList(req.Attachments, false))
	}

	var out models.Interaction
	query := `
		UPDATE public.interactions
		SET type = COALESCE($3, type),
		    subject = COALESCE($4, subject),
		    content = COALESCE($5, content),
		    outcome = COALESCE($6, outcome),
		    sentiment = COALESCE($7, sentiment),
		    ai_analysis = COALESCE($8::jsonb, ai_analysis),
		    attachments = COALESCE($9::text[], attachments)
		WHERE id = $1 AND user_id = $2
		RETURNING ` + interactionCols
	err := scanInteractionRow(h.db.QueryRow(query,
		interactionID, userID, req.Type, req.Subject, req.Content,
		req.Outcome, req.Sentiment, analysisArg, attachmentsArg,
	).Scan, &out)
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

func (h *Handler) DeleteInteractionForUser(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(pathVar(r, "userId"))
	interactionID := strings.TrimSpace(pathVar(r, "interactionId"))
	if userID == "" || interactionID == "" {
		writeError(w, http.StatusBadRequest, "userId and interactionId are required")
		return
	}

	res, err := h.db.Exec(`DELETE FROM public.interactions WHERE id = $1 AND user_id = $2`, interactionID, userID)
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
