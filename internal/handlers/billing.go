package handlers

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

type BillingPlan struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Description   *string `json:"description,omitempty"`
	Tier          string  `json:"tier"`
	PriceCents    int     `json:"priceCents"`
	Currency      string  `json:"currency"`
	Interval      string  `json:"interval"`
	StripePriceID *string `json:"stripePriceId,omitempty"`
	IsActive      bool    `json:"isActive"`
}

type Subscription struct {
	ID                   string     `json:"id"`
	UserID               string     `json:"userId"`
	PlanID               string     `json:"planId"`
	StripeSubscriptionID *string    `json:"stripeSubscriptionId,omitempty"`
	StripeCustomerID     *string    `json:"stripeCustomerId,omitempty"`
	Status               string     `json:"status"`
	CurrentPeriodStart   *time.Time `json:"currentPeriodStart,omitempty"`
	CurrentPeriodEnd     *time.Time `json:"currentPeriodEnd,omitempty"`
	CancelAtPeriodEnd    bool       `json:"cancelAtPeriodEnd"`
	CanceledAt           *time.Time `json:"canceledAt,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// Stripe client instance
var stripeClient *client.API

func initStripe() {
	if stripeClient != nil {
		return
	}

	secretKey := os.Getenv("STRIPE_SECRET_KEY")
	if secretKey == "" {
		log.Printf("[Billing] STRIPE_SECRET_KEY not set, Stripe features disabled")
		return
	}

	stripeClient = &client.API{}
	stripeClient.Init(secretKey, nil)
}

// GetBillingPlans returns available billing plans
func (h *Handler) GetBillingPlans(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	rows, err := h.db.Query(`
		SELECT id, name, description, tier, price_cents, currency, interval, stripe_price_id, is_active
		FROM public.billing_plans
		WHERE is_active = true
		ORDER BY price_cents ASC
	`)
	if err != nil {
		log.Printf("[Billing][Plans] query error: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	var plans []BillingPlan
	for rows.Next() {
		var p BillingPlan
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Tier, &p.PriceCents, &p.Currency, &p.Interval, &p.StripePriceID, &p.IsActive); err != nil {
			log.Printf("[Billing][Plans] scan error: %v", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		log.Printf("[Billing][Plans] rows error: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, plans)
}

// GetUserSubscription returns the current user's subscription
func (h *Handler) GetUserSubscription(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	userID := pathVar(r, "userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	var sub Subscription
	err := h.db.QueryRow(`
		SELECT id, user_id, plan_id, stripe_subscription_id, stripe_customer_id, status,
		       current_period_start, current_period_end, cancel_at_period_end, canceled_at,
		       created_at, updated_at
		FROM public.subscriptions
		WHERE user_id = $1
	`, userID).Scan(
		&sub.ID, &sub.UserID, &sub.PlanID, &sub.StripeSubscriptionID, &sub.StripeCustomerID, &sub.Status,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.CancelAtPeriodEnd, &sub.CanceledAt,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		// No subscription found, return free plan
		writeJSON(w, http.StatusOK, map[string]any{
			"planId":   "free",
			"tier":     "free",
			"status":   "active",
			"isActive": true,
		})
		return
	}
	if err != nil {
		log.Printf("[Billing][Subscription] query error userId=%s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, sub)
}

// setUserTier updates the denormalized tier on the user profile.
func (h *Handler) setUserTier(userID, tier string) {
	if _, err := h.db.Exec(`
		UPDATE public.users SET subscription_tier = $2, updated_at = NOW() WHERE id = $1
	`, userID, tier); err != nil {
		log.Printf("[Billing] tier update error userId=%s tier=%s: %v", userID, tier, err)
	}
}

// CreateSubscription creates a new subscription for a user
func (h *Handler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	userID := pathVar(r, "userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	var req struct {
		PlanID          string `json:"planId"`
		PaymentMethodID string `json:"paymentMethodId"`
		TrialDays       *int   `json:"trialDays,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.PlanID == "" {
		writeError(w, http.StatusBadRequest, "planId is required")
		return
	}

	if req.PlanID == "free" {
		// Free plan needs no Stripe round trip.
		_, err := h.db.Exec(`
			INSERT INTO public.subscriptions (id, user_id, plan_id, status)
			VALUES (gen_random_uuid()::text, $1, $2, 'active')
			ON CONFLICT (user_id) DO UPDATE SET
				plan_id = EXCLUDED.plan_id,
				status = 'active',
				updated_at = NOW()
		`, userID, req.PlanID)
		if err != nil {
			log.Printf("[Billing][CreateSubscription] free plan error userId=%s: %v", userID, err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		h.setUserTier(userID, "free")
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
		return
	}

	initStripe()
	if stripeClient == nil {
		writeError(w, http.StatusServiceUnavailable, "Stripe not configured")
		return
	}

	var plan BillingPlan
	err := h.db.QueryRow(`
		SELECT id, name, tier, price_cents, currency, stripe_price_id
		FROM public.billing_plans
		WHERE id = $1 AND is_active = true
	`, req.PlanID).Scan(&plan.ID, &plan.Name, &plan.Tier, &plan.PriceCents, &plan.Currency, &plan.StripePriceID)
	if err != nil {
		log.Printf("[Billing][CreateSubscription] plan lookup error userId=%s planId=%s: %v", userID, req.PlanID, err)
		writeError(w, http.StatusBadRequest, "Invalid plan")
		return
	}
	if plan.StripePriceID == nil || *plan.StripePriceID == "" {
		writeError(w, http.StatusBadRequest, "Plan not configured for payment")
		return
	}

	var existingSubID string
	err = h.db.QueryRow(`SELECT id FROM public.subscriptions WHERE user_id = $1 AND status = 'active' AND plan_id <> 'free'`, userID).Scan(&existingSubID)
	if err != nil && err != sql.ErrNoRows {
		log.Printf("[Billing][CreateSubscription] subscription check error userId=%s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err == nil {
		writeError(w, http.StatusBadRequest, "User already has an active subscription")
		return
	}

	// Get or create Stripe customer.
	var customerID string
	err = h.db.QueryRow(`SELECT stripe_customer_id FROM public.subscriptions WHERE user_id = $1 AND stripe_customer_id IS NOT NULL`, userID).Scan(&customerID)
	if err == sql.ErrNoRows {
		var email string
		if qerr := h.db.QueryRow(`SELECT email FROM public.users WHERE id = $1`, userID).Scan(&email); qerr != nil {
			log.Printf("[Billing][CreateSubscription] email lookup error userId=%s: %v", userID, qerr)
			writeError(w, http.StatusInternalServerError, "Failed to create customer")
			return
		}
		customer, cerr := stripeClient.Customers.New(&stripe.CustomerParams{
			Email: stripe.String(email),
		})
		if cerr != nil {
			log.Printf("[Billing][CreateSubscription] customer creation error userId=%s: %v", userID, cerr)
			writeError(w, http.StatusInternalServerError, "Failed to create customer")
			return
		}
		customerID = customer.ID
	}

	if req.PaymentMethodID != "" {
		_, err = stripeClient.PaymentMethods.Attach(req.PaymentMethodID, &stripe.PaymentMethodAttachParams{
			Customer: stripe.String(customerID),
		})
		if err != nil {
			log.Printf("[Billing][CreateSubscription] payment method attach error userId=%s: %v", userID, err)
			writeError(w, http.StatusBadRequest, "Invalid payment method")
			return
		}
		_, err = stripeClient.Customers.Update(customerID, &stripe.CustomerParams{
			InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
				DefaultPaymentMethod: stripe.String(req.PaymentMethodID),
			},
		})
		if err != nil {
			log.Printf("[Billing][CreateSubscription] default payment method error userId=%s: %v", userID, err)
		}
	}

	subscriptionParams := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{
				Price: stripe.String(*plan.StripePriceID),
			},
		},
		PaymentBehavior: stripe.String("default_incomplete"),
		Expand:          []*string{stripe.String("latest_invoice.payment_intent")},
	}
	if req.TrialDays != nil && *req.TrialDays > 0 {
		subscriptionParams.TrialPeriodDays = stripe.Int64(int64(*req.TrialDays))
	}

	subscription, err := stripeClient.Subscriptions.New(subscriptionParams)
	if err != nil {
		log.Printf("[Billing][CreateSubscription] subscription creation error userId=%s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "Failed to create subscription")
		return
	}

	subID := fmt.Sprintf("sub_%s", subscription.ID)
	_, err = h.db.Exec(`
		INSERT INTO public.subscriptions (
			id, user_id, plan_id, stripe_subscription_id, stripe_customer_id, status,
			current_period_start, current_period_end, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			plan_id = EXCLUDED.plan_id,
			stripe_subscription_id = EXCLUDED.stripe_subscription_id,
			stripe_customer_id = EXCLUDED.stripe_customer_id,
			status = EXCLUDED.status,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			updated_at = NOW()
	`, subID, userID, req.PlanID, subscription.ID, customerID, subscription.Status,
		time.Unix(subscription.CurrentPeriodStart, 0), time.Unix(subscription.CurrentPeriodEnd, 0))
	if err != nil {
		log.Printf("[Billing][CreateSubscription] database save error userId=%s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if subscription.Status == stripe.SubscriptionStatusActive || subscription.Status == stripe.SubscriptionStatusTrialing {
		h.setUserTier(userID, plan.Tier)
	}

	response := map[string]any{
		"subscriptionId":       subID,
		"stripeSubscriptionId": subscription.ID,
		"status":               subscription.Status,
	}
	if subscription.LatestInvoice != nil && subscription.LatestInvoice.PaymentIntent != nil {
		response["clientSecret"] = subscription.LatestInvoice.PaymentIntent.ClientSecret
	}

	writeJSON(w, http.StatusOK, response)
}

// CancelSubscription cancels a user's subscription
func (h *Handler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	initStripe()
	if stripeClient == nil {
		writeError(w, http.StatusServiceUnavailable, "Stripe not configured")
		return
	}

	userID := pathVar(r, "userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	var req struct {
		CancelAtPeriodEnd bool `json:"cancelAtPeriodEnd"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var stripeSubID string
	err := h.db.QueryRow(`
		SELECT stripe_subscription_id
		FROM public.subscriptions
		WHERE user_id = $1 AND stripe_subscription_id IS NOT NULL
	`, userID).Scan(&stripeSubID)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "No active subscription found")
		return
	}
	if err != nil {
		log.Printf("[Billing][CancelSubscription] query error userId=%s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if req.CancelAtPeriodEnd {
		_, err = stripeClient.Subscriptions.Update(stripeSubID, &stripe.SubscriptionParams{
			CancelAtPeriodEnd: stripe.Bool(true),
		})
	} else {
		_, err = stripeClient.Subscriptions.Cancel(stripeSubID, &stripe.SubscriptionCancelParams{})
	}
	if err != nil {
		log.Printf("[Billing][CancelSubscription] Stripe cancel error userId=%s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "Failed to cancel subscription")
		return
	}

	if req.CancelAtPeriodEnd {
		_, err = h.db.Exec(`
			UPDATE public.subscriptions
			SET cancel_at_period_end = true, canceled_at = NOW(), updated_at = NOW()
			WHERE user_id = $1
		`, userID)
	} else {
		_, err = h.db.Exec(`
			UPDATE public.subscriptions
			SET status = 'canceled', cancel_at_period_end = false, canceled_at = NOW(), updated_at = NOW()
			WHERE user_id = $1
		`, userID)
		h.setUserTier(userID, "free")
	}
	if err != nil {
		log.Printf("[Billing][CancelSubscription] database update error userId=%s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// StripeWebhook handles Stripe webhook events
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	const MaxBodyBytes = int64(65536)
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		log.Printf("[Billing][Webhook] read error: %v", err)
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	webhookSecret := os.Getenv("STRIPE_WEBHOOK_SECRET")
	if webhookSecret == "" {
		log.Printf("[Billing][Webhook] STRIPE_WEBHOOK_SECRET not set, skipping signature verification")
		var event stripe.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			log.Printf("[Billing][Webhook] unmarshal error: %v", err)
			writeError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		h.processStripeEvent(event)
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
		return
	}

	sig := r.Header.Get("Stripe-Signature")
	if sig == "" {
		log.Printf("[Billing][Webhook] missing Stripe-Signature header")
		writeError(w, http.StatusBadRequest, "Missing signature")
		return
	}

	event, err := webhook.ConstructEvent(payload, sig, webhookSecret)
	if err != nil {
		log.Printf("[Billing][Webhook] signature verification error: %v", err)
		writeError(w, http.StatusBadRequest, "Invalid signature")
		return
	}

	h.processStripeEvent(event)
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (h *Handler) processStripeEvent(event stripe.Event) {
	// Store every event for audit/replay; duplicates are ignored.
	eventID := fmt.Sprintf("evt_%s", event.ID)
	_, err := h.db.Exec(`
		INSERT INTO public.billing_events (id, stripe_event_id, stripe_event_type, data, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (stripe_event_id) DO NOTHING
	`, eventID, event.ID, event.Type, event.Data.Raw)
	if err != nil {
		log.Printf("[Billing][Webhook] event save error: %v", err)
	}

	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated":
		h.handleSubscriptionEvent(event)
	case "customer.subscription.deleted":
		h.handleSubscriptionCancellation(event)
	case "invoice.payment_failed":
		h.handlePaymentFailure(event)
	default:
		log.Printf("[Billing][Webhook] unhandled event type: %s", event.Type)
	}
}

func (h *Handler) handleSubscriptionEvent(event stripe.Event) {
	var subscription stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &subscription); err != nil {
		log.Printf("[Billing][SubscriptionEvent] unmarshal error: %v", err)
		return
	}

	_, err := h.db.Exec(`
		UPDATE public.subscriptions
		SET status = $2, current_period_start = $3, current_period_end = $4,
		    cancel_at_period_end = $5, updated_at = NOW()
		WHERE stripe_subscription_id = $1
	`, subscription.ID, subscription.Status,
		time.Unix(subscription.CurrentPeriodStart, 0),
		time.Unix(subscription.CurrentPeriodEnd, 0),
		subscription.CancelAtPeriodEnd)
	if err != nil {
		log.Printf("[Billing][SubscriptionEvent] update error: %v", err)
		return
	}

	// Keep the denormalized tier in sync with subscription state.
	var userID, tier string
	err = h.db.QueryRow(`
		SELECT s.user_id, p.tier
		FROM public.subscriptions s
		JOIN public.billing_plans p ON p.id = s.plan_id
		WHERE s.stripe_subscription_id = $1
	`, subscription.ID).Scan(&userID, &tier)
	if err != nil {
		log.Printf("[Billing][SubscriptionEvent] tier lookup error: %v", err)
		return
	}
	switch subscription.Status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		h.setUserTier(userID, tier)
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusUnpaid, stripe.SubscriptionStatusIncompleteExpired:
		h.setUserTier(userID, "free")
	}
}

func (h *Handler) handleSubscriptionCancellation(event stripe.Event) {
	var subscription stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &subscription); err != nil {
		log.Printf("[Billing][CancellationEvent] unmarshal error: %v", err)
		return
	}

	var userID string
	_ = h.db.QueryRow(`
		SELECT user_id FROM public.subscriptions WHERE stripe_subscription_id = $1
	`, subscription.ID).Scan(&userID)

	_, err := h.db.Exec(`
		UPDATE public.subscriptions
		SET status = 'canceled', canceled_at = NOW(), updated_at = NOW()
		WHERE stripe_subscription_id = $1
	`, subscription.ID)
	if err != nil {
		log.Printf("[Billing][CancellationEvent] update error: %v", err)
	}
	if userID != "" {
		h.setUserTier(userID, "free")
	}
}

func (h *Handler) handlePaymentFailure(event stripe.Event) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		log.Printf("[Billing][PaymentFailure] unmarshal error: %v", err)
		return
	}

	log.Printf("[Billing][PaymentFailure] Payment failed for invoice %s, customer %s", invoice.ID, invoice.Customer.ID)
	var userID string
	if err := h.db.QueryRow(`
		SELECT user_id FROM public.subscriptions WHERE stripe_customer_id = $1
	`, invoice.Customer.ID).Scan(&userID); err == nil && userID != "" {
		body := "A payment attempt failed. Update your payment method to keep your plan."
		url := "/settings/billing"
		_ = h.createNotification(userID, "payment_failed", "Payment failed", &body, &url)
	}
}
