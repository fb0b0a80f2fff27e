package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterRoutes wires every API endpoint onto the router.
func RegisterRoutes(h *Handler, r *mux.Router) {
	// Health check
	r.HandleFunc("/health", h.Health).Methods("GET")

	// Auth
	r.HandleFunc("/api/auth/signup", h.SignUp).Methods("POST")
	r.HandleFunc("/api/auth/signin", h.SignIn).Methods("POST")
	r.HandleFunc("/api/auth/signout", h.SignOut).Methods("POST")
	r.HandleFunc("/api/auth/session", h.Session).Methods("GET")
	r.HandleFunc("/api/auth/refresh", h.RefreshSession).Methods("POST")

	// User profile
	r.HandleFunc("/api/users/{id}", h.GetUser).Methods("GET")
	r.HandleFunc("/api/users/{id}", h.UpdateUser).Methods("PUT")

	// Content
	r.HandleFunc("/api/content/user/{userId}", h.ListContentForUser).Methods("GET")
	r.HandleFunc("/api/content/user/{userId}", h.CreateContentForUser).Methods("POST")
	r.HandleFunc("/api/content/user/{userId}/{contentId}", h.GetContentForUser).Methods("GET")
	r.HandleFunc("/api/content/user/{userId}/{contentId}", h.UpdateContentForUser).Methods("PUT")
	r.HandleFunc("/api/content/user/{userId}/{contentId}", h.DeleteContentForUser).Methods("DELETE")
	r.HandleFunc("/api/content/user/{userId}/{contentId}/duplicate", h.DuplicateContentForUser).Methods("POST")
	r.HandleFunc("/api/content/user/{userId}/{contentId}/schedule", h.ScheduleContent).Methods("POST")
	r.HandleFunc("/api/content/user/{userId}/{contentId}/publish", h.PublishContent).Methods("POST")
	r.HandleFunc("/api/content/user/{userId}/{contentId}/archive", h.ArchiveContent).Methods("POST")

	// Leads
	r.HandleFunc("/api/leads/user/{userId}", h.ListLeadsForUser).Methods("GET")
	r.HandleFunc("/api/leads/user/{userId}", h.CreateLeadForUser).Methods("POST")
	r.HandleFunc("/api/leads/user/{userId}/stats", h.LeadStatsForUser).Methods("GET")
	r.HandleFunc("/api/leads/user/{userId}/{leadId}", h.GetLeadForUser).Methods("GET")
	r.HandleFunc("/api/leads/user/{userId}/{leadId}", h.UpdateLeadForUser).Methods("PUT")
	r.HandleFunc("/api/leads/user/{userId}/{leadId}", h.DeleteLeadForUser).Methods("DELETE")

	// Interactions
	r.HandleFunc("/api/interactions/user/{userId}", h.ListInteractionsForUser).Methods("GET")
	r.HandleFunc("/api/interactions/user/{userId}", h.CreateInteractionForUser).Methods("POST")
	r.HandleFunc("/api/interactions/user/{userId}/{interactionId}", h.UpdateInteractionForUser).Methods("PUT")
	r.HandleFunc("/api/interactions/user/{userId}/{interactionId}", h.DeleteInteractionForUser).Methods("DELETE")

	// Media library
	r.HandleFunc("/api/media/user/{userId}", h.ListMediaForUser).Methods("GET")
	r.HandleFunc("/api/media/user/{userId}", h.UploadMediaForUser).Methods("POST")
	r.HandleFunc("/api/media/user/{userId}/{mediaId}", h.UpdateMediaForUser).Methods("PUT")
	r.HandleFunc("/api/media/user/{userId}/{mediaId}", h.DeleteMediaForUser).Methods("DELETE")
	r.HandleFunc("/api/media/user/{userId}/{mediaId}/describe", h.DescribeMediaForUser).Methods("POST")

	// AI orchestration
	r.HandleFunc("/api/ai/user/{userId}/content/{contentId}/analyze", h.AnalyzeContentForUser).Methods("POST")
	r.HandleFunc("/api/ai/user/{userId}/leads/{leadId}/score", h.ScoreLeadForUser).Methods("POST")
	r.HandleFunc("/api/ai/user/{userId}/smart-content", h.SmartContentForUser).Methods("POST")
	r.HandleFunc("/api/ai/user/{userId}/dashboard", h.DashboardInsightsForUser).Methods("GET")

	// Stored insights
	r.HandleFunc("/api/insights/user/{userId}", h.ListInsightsForUser).Methods("GET")
	r.HandleFunc("/api/insights/user/{userId}/{insightId}/acknowledge", h.AcknowledgeInsightForUser).Methods("POST")
	r.HandleFunc("/api/insights/user/{userId}/{insightId}", h.DeleteInsightForUser).Methods("DELETE")

	// Workflows (authoring only)
	r.HandleFunc("/api/workflows/user/{userId}", h.ListWorkflowsForUser).Methods("GET")
	r.HandleFunc("/api/workflows/user/{userId}", h.CreateWorkflowForUser).Methods("POST")
	r.HandleFunc("/api/workflows/user/{userId}/{workflowId}", h.UpdateWorkflowForUser).Methods("PUT")
	r.HandleFunc("/api/workflows/user/{userId}/{workflowId}", h.DeleteWorkflowForUser).Methods("DELETE")

	// Notifications
	r.HandleFunc("/api/notifications/user/{userId}", h.ListNotificationsForUser).Methods("GET")
	r.HandleFunc("/api/notifications/user/{userId}/{id}/read", h.MarkNotificationReadForUser).Methods("POST")

	// Realtime events (internal, proxied)
	r.HandleFunc("/api/events/ping", h.EventsPing).Methods("GET")
	r.HandleFunc("/api/events/ws", h.EventsWebSocket)

	// Uploaded files. Paths under media/ are HMAC-derived, so URLs are
	// unguessable without the row.
	r.PathPrefix("/media/").Handler(
		http.StripPrefix("/media/", http.FileServer(http.Dir("media"))),
	).Methods("GET")
}

// RegisterBillingRoutes registers all billing-related routes
func RegisterBillingRoutes(h *Handler, r *mux.Router) {
	r.HandleFunc("/api/billing/plans", h.GetBillingPlans).Methods("GET")
	r.HandleFunc("/api/billing/subscription/user/{userId}", h.GetUserSubscription).Methods("GET")
	r.HandleFunc("/api/billing/subscription/user/{userId}", h.CreateSubscription).Methods("POST")
	r.HandleFunc("/api/billing/subscription/cancel/user/{userId}", h.CancelSubscription).Methods("POST")

	// Stripe webhook endpoint
	r.HandleFunc("/api/billing/webhook", h.StripeWebhook).Methods("POST")
}
