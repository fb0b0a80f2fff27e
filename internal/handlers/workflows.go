package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/solostudio-app/solostudio/backend/internal/models"
)

// Workflows are an authoring surface only. Definitions are stored and listed;
// nothing in the backend executes them.

var workflowStatuses = map[string]bool{"draft": true, "active": true, "inactive": true}

var workflowTriggerTypes = map[string]bool{
	"lead_created": true, "lead_status_changed": true, "content_published": true, "schedule": true,
}

const workflowCols = `id, user_id, name, trigger_type, trigger_config, actions, status, created_at, updated_at`

func scanWorkflowRow(scan func(dest ...any) error, wf *models.Workflow) error {
	return scan(
		&wf.ID, &wf.UserID, &wf.Name, &wf.TriggerType, &wf.TriggerConfig,
		&wf.Actions, &wf.Status, &wf.CreatedAt, &wf.UpdatedAt,
	)
}

func (h *Handler) ListWorkflowsForUser(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(pathVar(r, "userId"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	rows, err := h.db.Query(
		`SELECT `+workflowCols+` FROM public.workflows WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	items := []models.Workflow{}
	for rows.Next() {
		var wf models.Workflow
		if err := scanWorkflowRow(rows.Scan, &wf); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		items = append(items, wf)
	}
	if err := rows.Err(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "items": items})
}

type createOrUpdateWorkflowRequest struct {
	Name          *string          `json:"name,omitempty"`
	TriggerType   *string          `json:"triggerType,omitempty"`
	TriggerConfig *json.RawMessage `json:"triggerConfig,omitempty"`
	Actions       *json.RawMessage `json:"actions,omitempty"`
	Status        *string          `json:"status,omitempty"`
}

func (h *Handler) CreateWorkflowForUser(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(pathVar(r, "userId"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	var req createOrUpdateWorkflowRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.TriggerType == nil || !workflowTriggerTypes[strings.TrimSpace(*req.TriggerType)] {
		writeError(w, http.StatusBadRequest, "invalid triggerType")
		return
	}
	status := "draft"
	if req.Status != nil {
		status = strings.TrimSpace(*req.Status)
	}
	if !workflowStatuses[status] {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}

	var cfgArg, actionsArg interface{}
	if req.TriggerConfig != nil {
		cfgArg = []byte(*req.TriggerConfig)
	}
	if req.Actions != nil {
		actionsArg = []byte(*req.Actions)
	}

	var wf models.Workflow
	query := `
		INSERT INTO public.workflows
		  (id, user_id, name, trigger_type, trigger_config, actions, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6::jsonb, $7, NOW(), NOW())
		RETURNING ` + workflowCols
	err := scanWorkflowRow(h.db.QueryRow(query,
		randHex(16), userID, strings.TrimSpace(*req.Name), strings.TrimSpace(*req.TriggerType),
		cfgArg, actionsArg, status,
	).Scan, &wf)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, wf)
}

func (h *Handler) UpdateWorkflowForUser(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(pathVar(r, "userId"))
	workflowID := strings.TrimSpace(pathVar(r, "workflowId"))
	if userID == "" || workflowID == "" {
		writeError(w, http.StatusBadRequest, "userId and workflowId are required")
		return
	}

	var req createOrUpdateWorkflowRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.TriggerType != nil && !workflowTriggerTypes[strings.TrimSpace(*req.TriggerType)] {
		writeError(w, http.StatusBadRequest, "invalid triggerType")
		return
	}
	if req.Status != nil && !workflowStatuses[strings.TrimSpace(*req.Status)] {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}

	var cfgArg, actionsArg interface{}
	if req.TriggerConfig != nil {
		cfgArg = []byte(*req.TriggerConfig)
	}
	if req.Actions != nil {
		actionsArg = []byte(*req.Actions)
	}

	var wf models.Workflow
	query := `
		UPDATE public.workflows
		SET name = COALESCE($3, name),
		    trigger_type = COALESCE($4, trigger_type),
		    trigger_config = COALESCE($5::jsonb, trigger_config),
		    actions = COALESCE($6::jsonb, actions),
		    status = COALESCE($7, status),
		    updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING ` + workflowCols
	err := scanWorkflowRow(h.db.QueryRow(query,
		workflowID, userID, req.Name, req.TriggerType, cfgArg, actionsArg, req.Status,
	).Scan, &wf)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, wf)
}

func (h *Handler) DeleteWorkflowForUser(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(pathVar(r, "userId"))
	workflowID := strings.TrimSpace(pathVar(r, "workflowId"))
	if userID == "" || workflowID == "" {
		writeError(w, http.StatusBadRequest, "userId and workflowId are required")
		return
	}

	res, err := h.db.Exec(`DELETE FROM public.workflows WHERE id = $1 AND user_id = $2`, workflowID, userID)
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
