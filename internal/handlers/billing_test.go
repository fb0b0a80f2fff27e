package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
)

func TestGetBillingPlans(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer func() { _ = db.Close() }()

	h := New(db, nil)
	mock.ExpectQuery(`FROM public\.billing_plans\s+WHERE is_active = true`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "description", "tier", "price_cents", "currency", "interval", "stripe_price_id", "is_active",
		}).
			AddRow("free", "Free", nil, "free", 0, "usd", "month", nil, true).
			AddRow("professional_monthly", "Professional", nil, "professional", 2900, "usd", "month", "price_123", true))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/billing/plans", nil)

	h.GetBillingPlans(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%q", rr.Code, rr.Body.String())
	}
	var plans []BillingPlan
	if err := json.Unmarshal(rr.Body.Bytes(), &plans); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if len(plans) != 2 {
		t.Fatalf("expected 2 plans, got %d", len(plans))
	}
	if plans[1].PriceCents != 2900 || plans[1].Tier != "professional" {
		t.Fatalf("unexpected plan: %+v", plans[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestGetUserSubscription_NoRowFallsBackToFree(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer func() { _ = db.Close() }()

	h := New(db, nil)
	mock.ExpectQuery(`FROM public\.subscriptions\s+WHERE user_id = \$1`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/billing/subscription/user/u1", nil)
	req = mux.SetURLVars(req, map[string]string{"userId": "u1"})

	h.GetUserSubscription(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if out["tier"] != "free" || out["status"] != "active" {
		t.Fatalf("expected free/active fallback, got %#v", out)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestGetUserSubscription_ReturnsRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer func() { _ = db.Close() }()

	h := New(db, nil)
	now := time.Now().UTC()
	mock.ExpectQuery(`FROM public\.subscriptions\s+WHERE user_id = \$1`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "plan_id", "stripe_subscription_id", "stripe_customer_id", "status",
			"current_period_start", "current_period_end", "cancel_at_period_end", "canceled_at",
			"created_at", "updated_at",
		}).AddRow("sub_1", "u1", "professional_monthly", "sub_str", "cus_str", "active",
			now, now.Add(30*24*time.Hour), false, nil, now, now))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/billing/subscription/user/u1", nil)
	req = mux.SetURLVars(req, map[string]string{"userId": "u1"})

	h.GetUserSubscription(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%q", rr.Code, rr.Body.String())
	}
	var out Subscription
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if out.PlanID != "professional_monthly" || out.Status != "active" {
		t.Fatalf("unexpected subscription: %+v", out)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestCreateSubscription_FreePlanSkipsStripe(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer func() { _ = db.Close() }()

	h := New(db, nil)
	mock.ExpectExec(`INSERT INTO public\.subscriptions`).
		WithArgs("u1", "free").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE public\.users SET subscription_tier = \$2`).
		WithArgs("u1", "free").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/billing/subscription/user/u1",
		strings.NewReader(`{"planId": "free"}`))
	req = mux.SetURLVars(req, map[string]string{"userId": "u1"})

	h.CreateSubscription(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%q", rr.Code, rr.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestCreateSubscription_PlanRequired(t *testing.T) {
	h := New(nil, nil)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/billing/subscription/user/u1",
		strings.NewReader(`{}`))
	req = mux.SetURLVars(req, map[string]string{"userId": "u1"})

	h.CreateSubscription(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestStripeWebhook_UnsignedEventIsStored(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", "")

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer func() { _ = db.Close() }()

	h := New(db, nil)
	mock.ExpectExec(`INSERT INTO public\.billing_events`).
		WithArgs("evt_evt_1", "evt_1", "invoice.payment_succeeded", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	payload := `{"id": "evt_1", "type": "invoice.payment_succeeded", "data": {"object": {}}}`
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/billing/webhook", strings.NewReader(payload))

	h.StripeWebhook(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%q", rr.Code, rr.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestStripeWebhook_MissingSignatureRejected(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_test")

	h := New(nil, nil)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/billing/webhook", strings.NewReader(`{}`))

	h.StripeWebhook(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestStripeWebhook_BadSignatureRejected(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_test")

	h := New(nil, nil)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/billing/webhook", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=bogus")

	h.StripeWebhook(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}
