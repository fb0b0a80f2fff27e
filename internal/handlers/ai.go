package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/solostudio-app/solostudio/backend/internal/ai"
	"github.com/solostudio-app/solostudio/backend/internal/models"
)

// writeAIError maps generation failures to HTTP statuses: upstream call
// failures become 502, rejected responses become 422.
func (h *Handler) writeAIError(w http.ResponseWriter, err error) {
	var se *ai.ServiceError
	if errors.As(err, &se) {
		log.Printf("[AI] service error op=%s status=%d msg=%s", se.Op, se.Status, se.Msg)
		writeError(w, http.StatusBadGateway, "ai service error: "+se.Msg)
		return
	}
	var pe *ai.ParseError
	if errors.As(err, &pe) {
		log.Printf("[AI] rejected response op=%s msg=%s raw=%q", pe.Op, pe.Msg, truncate(pe.Raw, 200))
		writeError(w, http.StatusUnprocessableEntity, "ai response rejected: "+pe.Msg)
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// userContextFor builds the prompt profile slice from business_info.
func (h *Handler) userContextFor(userID string) ai.UserContext {
	var raw []byte
	if err := h.db.QueryRow(`SELECT business_info FROM public.users WHERE id = $1`, userID).Scan(&raw); err != nil || len(raw) == 0 {
		return ai.UserContext{}
	}
	var info struct {
		Industry    string `json:"industry"`
		Preferences string `json:"preferences"`
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		return ai.UserContext{}
	}
	return ai.UserContext{Industry: info.Industry, Preferences: info.Preferences}
}

// insertInsight persists one AI insight row and emits a realtime event.
func (h *Handler) insertInsight(userID, insightType, title string, description *string, payload any, confidence float64, contentID, leadID *string) (*models.AIInsight, error) {
	blob, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var in models.AIInsight
	query := `
		INSERT INTO public.ai_insights
		  (id, user_id, type, title, description, payload, confidence, acknowledged, content_id, lead_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, false, $8, $9, NOW())
		RETURNING id, user_id, type, title, description, payload, confidence, acknowledged, content_id, lead_id, created_at`
	err = h.db.QueryRow(query,
		randHex(16), userID, insightType, title, description, blob, confidence, contentID, leadID,
	).Scan(
		&in.ID, &in.UserID, &in.Type, &in.Title, &in.Description, &in.Payload,
		&in.Confidence, &in.Acknowledged, &in.ContentID, &in.LeadID, &in.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	h.emitEvent(userID, realtimeEvent{Type: "insight.created", InsightID: in.ID})
	return &in, nil
}

// AnalyzeContentForUser runs copy analysis over one content item. A rejected
// model response leaves both the content row and the insights table untouched.
func (h *Handler) AnalyzeContentForUser(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(pathVar(r, "userId"))
	contentID := strings.TrimSpace(pathVar(r, "contentId"))
	if userID == "" || contentID == "" {
		writeError(w, http.StatusBadRequest, "userId and contentId are required")
		return
	}
	if h.gen == nil {
		writeError(w, http.StatusServiceUnavailable, "ai service not configured")
		return
	}

	var title string
	var body sql.NullString
	err := h.db.QueryRow(
		`SELECT title, body FROM public.content_items WHERE id = $1 AND user_id = $2`,
		contentID, userID,
	).Scan(&title, &body)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	text := title
	if body.Valid && strings.TrimSpace(body.String) != "" {
		text += "\n\n" + body.String
	}

	raw, err := h.gen.Generate(r.Context(), ai.ContentAnalysisPrompt(h.userContextFor(userID), text))
	if err != nil {
		h.writeAIError(w, err)
		return
	}
	analysis, err := ai.ParseContentAnalysis(raw)
	if err != nil {
		h.writeAIError(w, err)
		return
	}

	blob, err := json.Marshal(analysis)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if _, err := h.db.Exec(`
		UPDATE public.content_items
		SET ai_analysis = $3::jsonb, engagement_score = $4, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
	`, contentID, userID, blob, analysis.EngagementScore); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	desc := fmt.Sprintf("Sentiment %s, engagement %.0f/100.", analysis.Sentiment, analysis.EngagementScore)
	insight, err := h.insertInsight(userID, "content_analysis",
		"Content analysis: "+truncate(title, 80), &desc, analysis,
		analysis.EngagementScore/100, &contentID, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Printf("[AI] content analyzed userId=%s contentId=%s engagement=%.0f", userID, contentID, analysis.EngagementScore)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "analysis": analysis, "insight": insight})
}

// ScoreLeadForUser scores one lead from its profile and interaction history,
// writes the score and suggested next action back to the lead row, and records
// a lead_analysis insight.
func (h *Handler) ScoreLeadForUser(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(pathVar(r, "userId"))
	leadID := strings.TrimSpace(pathVar(r, "leadId"))
	if userID == "" || leadID == "" {
		writeError(w, http.StatusBadRequest, "userId and leadId are required")
		return
	}
	if h.gen == nil {
		writeError(w, http.StatusServiceUnavailable, "ai service not configured")
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

	summary := ai.LeadSummary{
		Name:   l.Name,
		Source: l.Source,
		Status: l.Status,
	}
	if l.Company != nil {
		summary.Company = *l.Company
	}
	if l.EstimatedValue != nil {
		summary.EstimatedValue = *l.EstimatedValue
	}
	if l.Notes != nil {
		summary.Notes = *l.Notes
	}

	rows, err := h.db.Query(`
		SELECT type, subject, outcome, created_at FROM public.interactions
		WHERE lead_id = $1 AND user_id = $2 ORDER BY created_at ASC LIMIT 50
	`, leadID, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for rows.Next() {
		var itype string
		var subject, outcome sql.NullString
		var at time.Time
		if err := rows.Scan(&itype, &subject, &outcome, &at); err != nil {
			rows.Close()
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		line := at.Format("2006-01-02") + " " + itype
		if subject.Valid && subject.String != "" {
			line += ": " + subject.String
		}
		if outcome.Valid && outcome.String != "" {
			line += " (" + outcome.String + ")"
		}
		summary.Interactions = append(summary.Interactions, line)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	rows.Close()

	raw, err := h.gen.Generate(r.Context(), ai.LeadScoringPrompt(h.userContextFor(userID), summary))
	if err != nil {
		h.writeAIError(w, err)
		return
	}
	scoring, err := ai.ParseLeadScoring(raw)
	if err != nil {
		h.writeAIError(w, err)
		return
	}

	if _, err := h.db.Exec(`
		UPDATE public.leads
		SET score = $3, next_action = $4, next_action_at = NOW() + INTERVAL '24 hours', updated_at = NOW()
		WHERE id = $1 AND user_id = $2
	`, leadID, userID, scoring.Score, scoring.NextAction); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	desc := fmt.Sprintf("Score %d/100, priority %s.", scoring.Score, scoring.Priority)
	insight, err := h.insertInsight(userID, "lead_analysis",
		"Lead scoring: "+truncate(l.Name, 80), &desc, scoring,
		scoring.ConversionProbability, nil, &leadID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Printf("[AI] lead scored userId=%s leadId=%s score=%d", userID, leadID, scoring.Score)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "scoring": scoring, "insight": insight})
}

type smartContentRequest struct {
	Topic     string   `json:"topic"`
	Platforms []string `json:"platforms,omitempty"`
}

// SmartContentForUser generates content ideas for a topic; each suggestion
// becomes one content_suggestion insight.
func (h *Handler) SmartContentForUser(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(pathVar(r, "userId"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if h.gen == nil {
		writeError(w, http.StatusServiceUnavailable, "ai service not configured")
		return
	}

	var req smartContentRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Topic) == "" {
		writeError(w, http.StatusBadRequest, "topic is required")
		return
	}
	platforms := normalizeList(req.Platforms, true)
	if len(platforms) == 0 {
		platforms = []string{"instagram"}
	}

	raw, err := h.gen.Generate(r.Context(), ai.SmartContentPrompt(h.userContextFor(userID), req.Topic, platforms))
	if err != nil {
		h.writeAIError(w, err)
		return
	}
	suggestions, err := ai.ParseContentSuggestions(raw)
	if err != nil {
		h.writeAIError(w, err)
		return
	}

	insights := make([]models.AIInsight, 0, len(suggestions))
	for _, s := range suggestions {
		in, err := h.insertInsight(userID, "content_suggestion",
			truncate(s.Title, 120), nil, s, 0.5, nil, nil)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		insights = append(insights, *in)
	}

	log.Printf("[AI] smart content userId=%s topic=%q suggestions=%d", userID, req.Topic, len(suggestions))
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "suggestions": suggestions, "insights": insights})
}

type dashboardResponse struct {
	OK        bool                  `json:"ok"`
	Summary   ai.AccountSummary     `json:"summary"`
	Generated *ai.DashboardInsights `json:"generated,omitempty"`
	Insights  []models.AIInsight    `json:"insights"`
}

// DashboardInsightsForUser aggregates account stats, asks the model for a
// personalized reading of them, and merges in unacknowledged stored insights.
// If generation fails the stats and stored insights are still returned.
func (h *Handler) DashboardInsightsForUser(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(pathVar(r, "userId"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	var s ai.AccountSummary
	err := h.db.QueryRow(`
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'published'),
		       COUNT(*) FILTER (WHERE status = 'scheduled')
		FROM public.content_items WHERE user_id = $1
	`, userID).Scan(&s.ContentTotal, &s.ContentPublished, &s.ContentScheduled)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	err = h.db.QueryRow(`
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'won'),
		       COALESCE(SUM(estimated_value), 0)
		FROM public.leads WHERE user_id = $1
	`, userID).Scan(&s.LeadTotal, &s.LeadWon, &s.PipelineValue)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var generated *ai.DashboardInsights
	if h.gen != nil {
		raw, err := h.gen.Generate(r.Context(), ai.DashboardInsightsPrompt(h.userContextFor(userID), s))
		if err == nil {
			if parsed, perr := ai.ParseDashboardInsights(raw); perr == nil {
				generated = parsed
			} else {
				log.Printf("[AI] dashboard insights rejected userId=%s err=%v", userID, perr)
			}
		} else {
			log.Printf("[AI] dashboard insights failed userId=%s err=%v", userID, err)
		}
	}

	stored, err := h.loadUnacknowledgedInsights(userID, 20)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, dashboardResponse{OK: true, Summary: s, Generated: generated, Insights: stored})
}

func (h *Handler) loadUnacknowledgedInsights(userID string, limit int) ([]models.AIInsight, error) {
	rows, err := h.db.Query(`
		SELECT id, user_id, type, title, description, payload, confidence, acknowledged, content_id, lead_id, created_at
		FROM public.ai_insights
		WHERE user_id = $1 AND acknowledged = false
		ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.AIInsight{}
	for rows.Next() {
		var in models.AIInsight
		if err := rows.Scan(
			&in.ID, &in.UserID, &in.Type, &in.Title, &in.Description, &in.Payload,
			&in.Confidence, &in.Acknowledged, &in.ContentID, &in.LeadID, &in.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}
