package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/cucumber/godog"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/solostudio-app/solostudio/backend/internal/auth"
	"github.com/solostudio-app/solostudio/backend/internal/handlers"
)

type bddTestContext struct {
	db             *sql.DB
	server         *httptest.Server
	router         *mux.Router
	handler        *handlers.Handler
	lastResponse   *http.Response
	lastBody       []byte
	testData       map[string]interface{}
	internalSecret string
}

func (ctx *bddTestContext) reset() {
	if ctx.lastResponse != nil && ctx.lastResponse.Body != nil {
		ctx.lastResponse.Body.Close()
	}
	ctx.lastResponse = nil
	ctx.lastBody = nil
	ctx.testData = make(map[string]interface{})
}

func (ctx *bddTestContext) theDatabaseIsClean() error {
	// Children before parents so foreign keys never block the wipe.
	tables := []string{
		"public.billing_events",
		"public.subscriptions",
		"public.notifications",
		"public.workflows",
		"public.ai_insights",
		"public.interactions",
		"public.media_files",
		"public.leads",
		"public.content_items",
		"public.auth_tokens",
		"public.users",
	}

	for _, table := range tables {
		_, err := ctx.db.Exec(fmt.Sprintf("DELETE FROM %s", table))
		if err != nil {
			return fmt.Errorf("failed to clean %s: %w", table, err)
		}
	}
	return nil
}

func (ctx *bddTestContext) theAPIServerIsRunning() error {
	if ctx.server != nil {
		return nil
	}

	// Auth/tier middleware is exercised in its own package tests; scenarios
	// here hit the handlers directly.
	ctx.handler = handlers.New(ctx.db, nil)
	ctx.router = buildTestRouter(ctx.handler)
	ctx.server = httptest.NewServer(ctx.router)
	return nil
}

func buildTestRouter(h *handlers.Handler) *mux.Router {
	r := mux.NewRouter()
	handlers.RegisterRoutes(h, r)
	handlers.RegisterBillingRoutes(h, r)
	return r
}

func (ctx *bddTestContext) iSendAGETRequestTo(path string) error {
	return ctx.iSendARequestTo("GET", path, "")
}

func (ctx *bddTestContext) iSendAPOSTRequestToWithJSON(path, body string) error {
	return ctx.iSendARequestTo("POST", path, body)
}

func (ctx *bddTestContext) iSendAPOSTRequestTo(path string) error {
	return ctx.iSendARequestTo("POST", path, "")
}

func (ctx *bddTestContext) iSendAPUTRequestToWithJSON(path, body string) error {
	return ctx.iSendARequestTo("PUT", path, body)
}

func (ctx *bddTestContext) iSendADELETERequestTo(path string) error {
	return ctx.iSendARequestTo("DELETE", path, "")
}

func (ctx *bddTestContext) iSendARequestTo(method, path, body string) error {
	url := ctx.server.URL + path
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}

	ctx.lastResponse = resp
	ctx.lastBody, err = io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	return nil
}

func (ctx *bddTestContext) theResponseStatusCodeShouldBe(expectedCode int) error {
	if ctx.lastResponse == nil {
		return fmt.Errorf("no response received")
	}

	if ctx.lastResponse.StatusCode != expectedCode {
		return fmt.Errorf("expected status code %d, got %d. Body: %s",
			expectedCode, ctx.lastResponse.StatusCode, string(ctx.lastBody))
	}

	return nil
}

func (ctx *bddTestContext) theResponseShouldContainJSONWithSetTo(key, value string) error {
	var data map[string]interface{}
	if err := json.Unmarshal(ctx.lastBody, &data); err != nil {
		return fmt.Errorf("failed to parse JSON: %w. Body: %s", err, string(ctx.lastBody))
	}

	actualValue, ok := data[key]
	if !ok {
		return fmt.Errorf("key %q not found in response: %s", key, string(ctx.lastBody))
	}

	actualStr := fmt.Sprintf("%v", actualValue)
	if actualStr != value {
		return fmt.Errorf("expected %q to be %q, got %q", key, value, actualStr)
	}

	return nil
}

func (ctx *bddTestContext) theResponseShouldContainError(errorMsg string) error {
	bodyStr := string(ctx.lastBody)
	if !strings.Contains(bodyStr, errorMsg) {
		return fmt.Errorf("expected error message %q not found in response: %s", errorMsg, bodyStr)
	}
	return nil
}

func (ctx *bddTestContext) theResponseShouldBeAJSONArrayWithItems(count int) error {
	var data []interface{}
	if err := json.Unmarshal(ctx.lastBody, &data); err != nil {
		return fmt.Errorf("failed to parse JSON array: %w. Body: %s", err, string(ctx.lastBody))
	}

	if len(data) != count {
		return fmt.Errorf("expected %d items, got %d", count, len(data))
	}

	return nil
}

func (ctx *bddTestContext) theResponseShouldContainItems(count int) error {
	var data struct {
		Items []interface{} `json:"items"`
	}
	if err := json.Unmarshal(ctx.lastBody, &data); err != nil {
		return fmt.Errorf("failed to parse JSON: %w. Body: %s", err, string(ctx.lastBody))
	}

	if len(data.Items) != count {
		return fmt.Errorf("expected %d items, got %d. Body: %s", count, len(data.Items), string(ctx.lastBody))
	}

	return nil
}

func (ctx *bddTestContext) theResponseShouldContainAField(field string) error {
	var data map[string]interface{}
	if err := json.Unmarshal(ctx.lastBody, &data); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}

	if _, ok := data[field]; !ok {
		return fmt.Errorf("field %q not found in response: %s", field, string(ctx.lastBody))
	}

	return nil
}

func (ctx *bddTestContext) aUserExistsWithIdAndEmail(id, email string) error {
	query := `INSERT INTO public.users (id, email, password_hash, name, created_at, updated_at)
	          VALUES ($1, $2, '', 'Test User', NOW(), NOW())`
	_, err := ctx.db.Exec(query, id, email)
	return err
}

func (ctx *bddTestContext) aUserExistsWithEmailAndPassword(id, email, password string) error {
	hash, err := auth.HashPassword(password, bcrypt.MinCost)
	if err != nil {
		return err
	}
	query := `INSERT INTO public.users (id, email, password_hash, name, created_at, updated_at)
	          VALUES ($1, $2, $3, 'Test User', NOW(), NOW())`
	_, err = ctx.db.Exec(query, id, email, hash)
	return err
}

func (ctx *bddTestContext) theUserShouldHaveEmail(userId, email string) error {
	var actualEmail string
	query := `SELECT email FROM public.users WHERE id = $1`
	err := ctx.db.QueryRow(query, userId).Scan(&actualEmail)
	if err != nil {
		return err
	}
	if actualEmail != email {
		return fmt.Errorf("expected email %q, got %q", email, actualEmail)
	}
	return nil
}

func (ctx *bddTestContext) theUserHasContentItems(userId string, count int) error {
	for i := 0; i < count; i++ {
		contentId := fmt.Sprintf("content_%s_%d", userId, i)
		query := `INSERT INTO public.content_items (id, user_id, title, status, platforms, hashtags, media_ids, created_at, updated_at)
		          VALUES ($1, $2, $3, 'draft', '{}', '{}', '{}', NOW(), NOW())`
		_, err := ctx.db.Exec(query, contentId, userId, fmt.Sprintf("Content %d", i))
		if err != nil {
			return err
		}
	}
	return nil
}

func (ctx *bddTestContext) theUserHasAContentItemWithIdTitled(userId, contentId, title string) error {
	query := `INSERT INTO public.content_items (id, user_id, title, status, platforms, hashtags, media_ids, created_at, updated_at)
	          VALUES ($1, $2, $3, 'draft', '{}', '{}', '{}', NOW(), NOW())`
	_, err := ctx.db.Exec(query, contentId, userId, title)
	if err != nil {
		return err
	}
	ctx.testData[contentId] = true
	return nil
}

func (ctx *bddTestContext) theUserHasAScheduledContentItemWithId(userId, contentId string) error {
	query := `INSERT INTO public.content_items (id, user_id, title, status, scheduled_for, platforms, hashtags, media_ids, created_at, updated_at)
	          VALUES ($1, $2, 'Scheduled content', 'scheduled', NOW() + INTERVAL '1 hour', '{}', '{}', '{}', NOW(), NOW())`
	_, err := ctx.db.Exec(query, contentId, userId)
	return err
}

func (ctx *bddTestContext) theContentShouldBePublished(contentId string) error {
	var status string
	var publishedAt sql.NullTime
	query := `SELECT status, published_at FROM public.content_items WHERE id = $1`
	err := ctx.db.QueryRow(query, contentId).Scan(&status, &publishedAt)
	if err != nil {
		return err
	}
	if status != "published" {
		return fmt.Errorf("expected status published, got %q", status)
	}
	if !publishedAt.Valid {
		return fmt.Errorf("content %s has no publish timestamp", contentId)
	}
	return nil
}

func (ctx *bddTestContext) theContentShouldBeScheduledWithoutAPublishTimestamp(contentId string) error {
	var status string
	var scheduledFor, publishedAt sql.NullTime
	query := `SELECT status, scheduled_for, published_at FROM public.content_items WHERE id = $1`
	err := ctx.db.QueryRow(query, contentId).Scan(&status, &scheduledFor, &publishedAt)
	if err != nil {
		return err
	}
	if status != "scheduled" {
		return fmt.Errorf("expected status scheduled, got %q", status)
	}
	if !scheduledFor.Valid {
		return fmt.Errorf("content %s has no scheduled_for timestamp", contentId)
	}
	if publishedAt.Valid {
		return fmt.Errorf("content %s must not carry a publish timestamp while scheduled", contentId)
	}
	return nil
}

func (ctx *bddTestContext) aDraftCopyOfShouldExistForUser(title, userId string) error {
	var exists bool
	query := `SELECT EXISTS(
		SELECT 1 FROM public.content_items
		WHERE user_id = $1 AND title = $2 || ' (Cópia)' AND status = 'draft' AND published_at IS NULL
	)`
	err := ctx.db.QueryRow(query, userId, title).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("no draft copy of %q found for user %s", title, userId)
	}
	return nil
}

func (ctx *bddTestContext) theContentShouldNotExist(contentId string) error {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM public.content_items WHERE id = $1)`
	err := ctx.db.QueryRow(query, contentId).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("content %s still exists", contentId)
	}
	return nil
}

func (ctx *bddTestContext) theUserHasLeadsWithStatus(userId string, count int, status string) error {
	for i := 0; i < count; i++ {
		leadId := fmt.Sprintf("lead_%s_%s_%d", userId, status, i)
		query := `INSERT INTO public.leads (id, user_id, name, source, status, score, tags, created_at, updated_at)
		          VALUES ($1, $2, $3, 'manual', $4, 0, '{}', NOW(), NOW())`
		_, err := ctx.db.Exec(query, leadId, userId, fmt.Sprintf("Lead %d", i), status)
		if err != nil {
			return err
		}
	}
	return nil
}

func (ctx *bddTestContext) theUserHasALeadWithIdWorth(userId, leadId string, value int) error {
	query := `INSERT INTO public.leads (id, user_id, name, source, status, score, estimated_value, tags, created_at, updated_at)
	          VALUES ($1, $2, 'Valued Lead', 'manual', 'new', 0, $3, '{}', NOW(), NOW())`
	_, err := ctx.db.Exec(query, leadId, userId, value)
	return err
}

func (ctx *bddTestContext) theUserHasALeadWithId(userId, leadId string) error {
	query := `INSERT INTO public.leads (id, user_id, name, source, status, score, tags, created_at, updated_at)
	          VALUES ($1, $2, 'Test Lead', 'manual', 'new', 0, '{}', NOW(), NOW())`
	_, err := ctx.db.Exec(query, leadId, userId)
	return err
}

func (ctx *bddTestContext) theLeadShouldNotExist(leadId string) error {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM public.leads WHERE id = $1)`
	err := ctx.db.QueryRow(query, leadId).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("lead %s still exists", leadId)
	}
	return nil
}

func (ctx *bddTestContext) theUserHasNotifications(userId string, count int) error {
	for i := 0; i < count; i++ {
		notifId := fmt.Sprintf("notif_%s_%d", userId, i)
		query := `INSERT INTO public.notifications (id, user_id, type, title, created_at)
		          VALUES ($1, $2, 'info', $3, NOW())`
		_, err := ctx.db.Exec(query, notifId, userId, fmt.Sprintf("Notification %d", i))
		if err != nil {
			return err
		}
	}
	return nil
}

func (ctx *bddTestContext) theUserHasANotificationWithId(userId, notifId string) error {
	query := `INSERT INTO public.notifications (id, user_id, type, title, created_at)
	          VALUES ($1, $2, 'info', 'Test notification', NOW())`
	_, err := ctx.db.Exec(query, notifId, userId)
	return err
}

func (ctx *bddTestContext) theNotificationShouldBeMarkedAsRead(notifId string) error {
	var readAt sql.NullTime
	query := `SELECT read_at FROM public.notifications WHERE id = $1`
	err := ctx.db.QueryRow(query, notifId).Scan(&readAt)
	if err != nil {
		return err
	}
	if !readAt.Valid {
		return fmt.Errorf("notification %s is not marked as read", notifId)
	}
	return nil
}

func (ctx *bddTestContext) theUserHasAnInsightWithId(userId, insightId string) error {
	query := `INSERT INTO public.ai_insights (id, user_id, type, title, payload, confidence, acknowledged, created_at)
	          VALUES ($1, $2, 'content_analysis', 'Test insight', '{}'::jsonb, 0.5, false, NOW())`
	_, err := ctx.db.Exec(query, insightId, userId)
	return err
}

func (ctx *bddTestContext) theInsightShouldBeAcknowledged(insightId string) error {
	var acknowledged bool
	query := `SELECT acknowledged FROM public.ai_insights WHERE id = $1`
	err := ctx.db.QueryRow(query, insightId).Scan(&acknowledged)
	if err != nil {
		return err
	}
	if !acknowledged {
		return fmt.Errorf("insight %s is not acknowledged", insightId)
	}
	return nil
}

func (ctx *bddTestContext) theUserHasAWorkflowWithId(userId, workflowId string) error {
	query := `INSERT INTO public.workflows (id, user_id, name, trigger_type, status, created_at, updated_at)
	          VALUES ($1, $2, 'Test workflow', 'lead_created', 'draft', NOW(), NOW())`
	_, err := ctx.db.Exec(query, workflowId, userId)
	return err
}

func (ctx *bddTestContext) iSendAGETRequestToWithInternalAuth(path string) error {
	url := ctx.server.URL + path
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return err
	}

	req.Header.Set("X-Internal-WS-Secret", ctx.internalSecret)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}

	ctx.lastResponse = resp
	ctx.lastBody, err = io.ReadAll(resp.Body)
	return err
}

func (ctx *bddTestContext) iSendAGETRequestToWithoutInternalAuth(path string) error {
	return ctx.iSendAGETRequestTo(path)
}

func (ctx *bddTestContext) theInternalWebSocketSecretIsConfigured() error {
	ctx.internalSecret = "test-secret-123"
	os.Setenv("INTERNAL_WS_SECRET", ctx.internalSecret)
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	testCtx := &bddTestContext{
		testData: make(map[string]interface{}),
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		databaseURL = "postgres://localhost/solostudio_test?sslmode=disable"
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		panic(fmt.Sprintf("failed to connect to test database: %v", err))
	}
	testCtx.db = db

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		testCtx.reset()
		return ctx, nil
	})

	ctx.After(func(ctx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		if testCtx.server != nil {
			testCtx.server.Close()
			testCtx.server = nil
		}
		return ctx, nil
	})

	ctx.Step(`^the database is clean$`, testCtx.theDatabaseIsClean)
	ctx.Step(`^the API server is running$`, testCtx.theAPIServerIsRunning)
	ctx.Step(`^I send a GET request to "([^"]*)"$`, testCtx.iSendAGETRequestTo)
	ctx.Step(`^I send a POST request to "([^"]*)"$`, testCtx.iSendAPOSTRequestTo)
	ctx.Step(`^I send a POST request to "([^"]*)" with JSON:$`, testCtx.iSendAPOSTRequestToWithJSON)
	ctx.Step(`^I send a PUT request to "([^"]*)" with JSON:$`, testCtx.iSendAPUTRequestToWithJSON)
	ctx.Step(`^I send a DELETE request to "([^"]*)"$`, testCtx.iSendADELETERequestTo)
	ctx.Step(`^the response status code should be (\d+)$`, testCtx.theResponseStatusCodeShouldBe)
	ctx.Step(`^the response should contain JSON with "([^"]*)" set to "([^"]*)"$`, testCtx.theResponseShouldContainJSONWithSetTo)
	ctx.Step(`^the response should contain JSON with "([^"]*)" set to (.+)$`, testCtx.theResponseShouldContainJSONWithSetTo)
	ctx.Step(`^the response should contain error "([^"]*)"$`, testCtx.theResponseShouldContainError)
	ctx.Step(`^the response should be a JSON array with (\d+) items$`, testCtx.theResponseShouldBeAJSONArrayWithItems)
	ctx.Step(`^the response should contain (\d+) items$`, testCtx.theResponseShouldContainItems)
	ctx.Step(`^the response should contain a "([^"]*)" field$`, testCtx.theResponseShouldContainAField)
	ctx.Step(`^the response should contain a "([^"]*)" timestamp$`, testCtx.theResponseShouldContainAField)
	ctx.Step(`^a user exists with id "([^"]*)" and email "([^"]*)"$`, testCtx.aUserExistsWithIdAndEmail)
	ctx.Step(`^a user exists with id "([^"]*)", email "([^"]*)" and password "([^"]*)"$`, testCtx.aUserExistsWithEmailAndPassword)
	ctx.Step(`^the user "([^"]*)" should have email "([^"]*)"$`, testCtx.theUserShouldHaveEmail)
	ctx.Step(`^the user "([^"]*)" has (\d+) content items$`, testCtx.theUserHasContentItems)
	ctx.Step(`^the user "([^"]*)" has a content item with id "([^"]*)" titled "([^"]*)"$`, testCtx.theUserHasAContentItemWithIdTitled)
	ctx.Step(`^the user "([^"]*)" has a scheduled content item with id "([^"]*)"$`, testCtx.theUserHasAScheduledContentItemWithId)
	ctx.Step(`^the content "([^"]*)" should be published$`, testCtx.theContentShouldBePublished)
	ctx.Step(`^the content "([^"]*)" should be scheduled without a publish timestamp$`, testCtx.theContentShouldBeScheduledWithoutAPublishTimestamp)
	ctx.Step(`^a draft copy of "([^"]*)" should exist for user "([^"]*)"$`, testCtx.aDraftCopyOfShouldExistForUser)
	ctx.Step(`^the content "([^"]*)" should not exist$`, testCtx.theContentShouldNotExist)
	ctx.Step(`^the user "([^"]*)" has (\d+) leads with status "([^"]*)"$`, testCtx.theUserHasLeadsWithStatus)
	ctx.Step(`^the user "([^"]*)" has a lead with id "([^"]*)" worth (\d+)$`, testCtx.theUserHasALeadWithIdWorth)
	ctx.Step(`^the user "([^"]*)" has a lead with id "([^"]*)"$`, testCtx.theUserHasALeadWithId)
	ctx.Step(`^the lead "([^"]*)" should not exist$`, testCtx.theLeadShouldNotExist)
	ctx.Step(`^the user "([^"]*)" has (\d+) notifications$`, testCtx.theUserHasNotifications)
	ctx.Step(`^the user "([^"]*)" has a notification with id "([^"]*)"$`, testCtx.theUserHasANotificationWithId)
	ctx.Step(`^the notification "([^"]*)" should be marked as read$`, testCtx.theNotificationShouldBeMarkedAsRead)
	ctx.Step(`^the user "([^"]*)" has an insight with id "([^"]*)"$`, testCtx.theUserHasAnInsightWithId)
	ctx.Step(`^the insight "([^"]*)" should be acknowledged$`, testCtx.theInsightShouldBeAcknowledged)
	ctx.Step(`^the user "([^"]*)" has a workflow with id "([^"]*)"$`, testCtx.theUserHasAWorkflowWithId)
	ctx.Step(`^I send a GET request to "([^"]*)" with internal auth$`, testCtx.iSendAGETRequestToWithInternalAuth)
	ctx.Step(`^I send a GET request to "([^"]*)" without internal auth$`, testCtx.iSendAGETRequestToWithoutInternalAuth)
	ctx.Step(`^the internal WebSocket secret is configured$`, testCtx.theInternalWebSocketSecretIsConfigured)

	ctx.Step(`^I connect to WebSocket "([^"]*)" with internal auth$`, func(path string) error {
		return godog.ErrPending
	})
	ctx.Step(`^the WebSocket connection should be established$`, func() error {
		return godog.ErrPending
	})
	ctx.Step(`^I should receive a "([^"]*)" event for user "([^"]*)"$`, func(eventType, userId string) error {
		return godog.ErrPending
	})
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
