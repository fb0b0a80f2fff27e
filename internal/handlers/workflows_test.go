package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
)

var workflowRowCols = []string{
	"id", "user_id", "name", "trigger_type", "trigger_config", "actions", "status",
	"created_at", "updated_at",
}

func TestCreateWorkflow_DefaultsToDraft(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer func() { _ = db.Close() }()

	h := New(db, nil)
	now := time.Now().UTC()
	mock.ExpectQuery(`INSERT INTO public\.workflows`).
		WithArgs(sqlmock.AnyArg(), "u1", "Welcome flow", "lead_created", nil, nil, "draft").
		WillReturnRows(sqlmock.NewRows(workflowRowCols).
			AddRow("w1", "u1", "Welcome flow", "lead_created", nil, nil, "draft", now, now))

	body := `{"name":"Welcome flow","triggerType":"lead_created"}`
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/workflows/user/u1", bytes.NewBufferString(body))
	req = mux.SetURLVars(req, map[string]string{"userId": "u1"})

	h.CreateWorkflowForUser(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%q", rr.Code, rr.Body.String())
	}
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if out["status"] != "draft" {
		t.Fatalf("expected draft status, got %#v", out["status"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestCreateWorkflow_InactiveStatusAccepted(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer func() { _ = db.Close() }()

	h := New(db, nil)
	now := time.Now().UTC()
	mock.ExpectQuery(`INSERT INTO public\.workflows`).
		WithArgs(sqlmock.AnyArg(), "u1", "Nurture flow", "schedule", nil, nil, "inactive").
		WillReturnRows(sqlmock.NewRows(workflowRowCols).
			AddRow("w1", "u1", "Nurture flow", "schedule", nil, nil, "inactive", now, now))

	body := `{"name":"Nurture flow","triggerType":"schedule","status":"inactive"}`
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/workflows/user/u1", bytes.NewBufferString(body))
	req = mux.SetURLVars(req, map[string]string{"userId": "u1"})

	h.CreateWorkflowForUser(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%q", rr.Code, rr.Body.String())
	}
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if out["status"] != "inactive" {
		t.Fatalf("expected inactive status, got %#v", out["status"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestCreateWorkflow_PausedStatusRejected(t *testing.T) {
	h := New(nil, nil)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/workflows/user/u1", bytes.NewBufferString(`{"name":"x","triggerType":"schedule","status":"paused"}`))
	req = mux.SetURLVars(req, map[string]string{"userId": "u1"})

	h.CreateWorkflowForUser(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestCreateWorkflow_InvalidTrigger(t *testing.T) {
	h := New(nil, nil)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/workflows/user/u1", bytes.NewBufferString(`{"name":"x","triggerType":"full_moon"}`))
	req = mux.SetURLVars(req, map[string]string{"userId": "u1"})

	h.CreateWorkflowForUser(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestUpdateWorkflow_InvalidStatus(t *testing.T) {
	h := New(nil, nil)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/workflows/user/u1/w1", bytes.NewBufferString(`{"status":"running"}`))
	req = mux.SetURLVars(req, map[string]string{"userId": "u1", "workflowId": "w1"})

	h.UpdateWorkflowForUser(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestDeleteWorkflow_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer func() { _ = db.Close() }()

	h := New(db, nil)
	mock.ExpectExec(`DELETE FROM public\.workflows`).
		WithArgs("missing", "u1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/workflows/user/u1/missing", nil)
	req = mux.SetURLVars(req, map[string]string{"userId": "u1", "workflowId": "missing"})

	h.DeleteWorkflowForUser(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
