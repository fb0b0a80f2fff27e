package middleware

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// TierLimits defines the limits for each subscription tier
type TierLimits struct {
	ContentItems   int `json:"content_items"`     // -1 = unlimited
	LeadsTotal     int `json:"leads_total"`       // -1 = unlimited
	AICallsPerDay  int `json:"ai_calls_per_day"`  // -1 = unlimited
	MediaStorageMB int `json:"media_storage_mb"`  // -1 = unlimited
}

// SubscriptionEnforcer middleware that enforces tier limits
type SubscriptionEnforcer struct {
	DB     *sql.DB
	Limits map[string]TierLimits
}

// NewSubscriptionEnforcer creates a new subscription enforcer middleware
func NewSubscriptionEnforcer(db *sql.DB) *SubscriptionEnforcer {
	// Default limits - these could be loaded from database
	limits := map[string]TierLimits{
		"free": {
			ContentItems:   50,
			LeadsTotal:     25,
			AICallsPerDay:  10,
			MediaStorageMB: 100,
		},
		"professional": {
			ContentItems:   1000,
			LeadsTotal:     500,
			AICallsPerDay:  200,
			MediaStorageMB: 5000,
		},
		"enterprise": {
			ContentItems:   -1,
			LeadsTotal:     -1,
			AICallsPerDay:  -1,
			MediaStorageMB: -1,
		},
	}

	return &SubscriptionEnforcer{
		DB:     db,
		Limits: limits,
	}
}

type ctxKey string

const (
	ctxKeyTier   ctxKey = "user_tier"
	ctxKeyLimits ctxKey = "tier_limits"
)

// Middleware returns an HTTP middleware that enforces tier limits
func (se *SubscriptionEnforcer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if se.shouldSkip(r) {
			next.ServeHTTP(w, r)
			return
		}

		userID := se.extractUserID(r)
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}

		tier, err := se.getUserTier(userID)
		if err != nil {
			// If we can't determine the tier, default to free
			tier = "free"
		}

		if !se.checkLimits(r, userID, tier) {
			se.respondLimitExceeded(w, tier)
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyTier, tier)
		ctx = context.WithValue(ctx, ctxKeyLimits, se.Limits[tier])
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// shouldSkip returns true if this route should skip tier enforcement
func (se *SubscriptionEnforcer) shouldSkip(r *http.Request) bool {
	// Skip auth routes, billing routes, and public routes
	skipPaths := []string{
		"/api/auth",
		"/api/users",
		"/api/billing",
		"/health",
		"/api/events",
	}

	for _, path := range skipPaths {
		if strings.HasPrefix(r.URL.Path, path) {
			return true
		}
	}

	return false
}

// extractUserID extracts the user ID from the request path
func (se *SubscriptionEnforcer) extractUserID(r *http.Request) string {
	// Look for user ID in path segments like /api/content/user/{userId}
	parts := strings.Split(r.URL.Path, "/")
	for i, part := range parts {
		if part == "user" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}

// getUserTier returns the user's current subscription tier
func (se *SubscriptionEnforcer) getUserTier(userID string) (string, error) {
	var tier string
	err := se.DB.QueryRow(`
		SELECT COALESCE(subscription_tier, 'free')
		FROM public.users
		WHERE id = $1
	`, userID).Scan(&tier)

	if err == sql.ErrNoRows {
		return "free", nil
	}

	return tier, err
}

// checkLimits checks if the request is within the tier limits
func (se *SubscriptionEnforcer) checkLimits(r *http.Request, userID, tier string) bool {
	limits, ok := se.Limits[tier]
	if !ok {
		limits = se.Limits["free"]
	}

	// Creating content counts against the content item cap.
	if strings.HasPrefix(r.URL.Path, "/api/content/user/") && r.Method == http.MethodPost &&
		!strings.Contains(r.URL.Path, "/duplicate") {
		if limits.ContentItems >= 0 {
			var count int
			_ = se.DB.QueryRow(`
				SELECT COUNT(*) FROM public.content_items WHERE user_id = $1 AND status <> 'archived'
			`, userID).Scan(&count)
			if count >= limits.ContentItems {
				return false
			}
		}
	}

	// Creating leads counts against the lead cap.
	if strings.HasPrefix(r.URL.Path, "/api/leads/user/") && r.Method == http.MethodPost {
		if limits.LeadsTotal >= 0 {
			var count int
			_ = se.DB.QueryRow(`
				SELECT COUNT(*) FROM public.leads WHERE user_id = $1
			`, userID).Scan(&count)
			if count >= limits.LeadsTotal {
				return false
			}
		}
	}

	// AI endpoints count insights created today as a proxy for call volume.
	if strings.HasPrefix(r.URL.Path, "/api/ai/user/") && r.Method == http.MethodPost {
		if limits.AICallsPerDay >= 0 {
			var count int
			since := time.Now().UTC().Truncate(24 * time.Hour)
			_ = se.DB.QueryRow(`
				SELECT COUNT(*) FROM public.ai_insights WHERE user_id = $1 AND created_at >= $2
			`, userID, since).Scan(&count)
			if count >= limits.AICallsPerDay {
				return false
			}
		}
	}

	// Media uploads count against the storage cap.
	if strings.HasPrefix(r.URL.Path, "/api/media/user/") && r.Method == http.MethodPost &&
		!strings.Contains(r.URL.Path, "/describe") {
		if limits.MediaStorageMB >= 0 {
			var totalBytes int64
			_ = se.DB.QueryRow(`
				SELECT COALESCE(SUM(size), 0) FROM public.media_files WHERE user_id = $1
			`, userID).Scan(&totalBytes)
			if totalBytes >= int64(limits.MediaStorageMB)<<20 {
				return false
			}
		}
	}

	return true
}

// respondLimitExceeded sends a limit exceeded response
func (se *SubscriptionEnforcer) respondLimitExceeded(w http.ResponseWriter, tier string) {
	limits := se.Limits[tier]

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired) // 402 Payment Required

	response := map[string]interface{}{
		"error":       "subscription_limit_exceeded",
		"message":     "Your current plan has reached its limits",
		"tier":        tier,
		"limits":      limits,
		"upgrade_url": "/settings/billing",
	}

	json.NewEncoder(w).Encode(response)
}
