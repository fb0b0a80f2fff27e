package handlers

import (
	"database/sql"
	"log"
	"net/http"
	"strings"

	"github.com/lib/pq"
	"github.com/solostudio-app/solostudio/backend/internal/auth"
	"github.com/solostudio-app/solostudio/backend/internal/models"
)

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type authResponse struct {
	User    models.User       `json:"user"`
	Access  auth.AccessToken  `json:"access"`
	Refresh auth.RefreshToken `json:"refresh"`
}

// SignUp registers a new identity. The account starts unconfirmed and no
// tokens are issued; the client must sign in after e-mail confirmation.
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeError(w, http.StatusBadRequest, "valid email is required")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	hash, err := auth.HashPassword(req.Password, h.bcryptCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	id := randHex(16)
	var user models.User
	query := `
		INSERT INTO public.users (id, email, password_hash, name, subscription_tier, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'free', NOW(), NOW())
		RETURNING ` + userCols
	err = scanUser(h.db.QueryRow(query, id, req.Email, hash, req.Name), &user)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Printf("[Auth] signup id=%s email=%s", user.ID, user.Email)
	writeJSON(w, http.StatusCreated, user)
}

// SignIn verifies credentials and returns the profile row plus a token pair.
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	var user models.User
	var passwordHash string
	query := `SELECT ` + userCols + `, password_hash FROM public.users WHERE email = $1`
	err := h.db.QueryRow(query, req.Email).Scan(
		&user.ID, &user.Email, &user.Name, &user.AvatarURL, &user.SubscriptionTier,
		&user.BusinessInfo, &user.Settings, &user.ConfirmedAt, &user.CreatedAt, &user.UpdatedAt,
		&passwordHash,
	)
	if err == sql.ErrNoRows || (err == nil && !auth.VerifyPassword(passwordHash, req.Password)) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	access, err := auth.NewAccessToken(h.jwtSecret, user.ID, user.SubscriptionTier, h.accessTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	refresh, err := auth.NewRefreshToken(h.refreshTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_, err = h.db.Exec(`
		INSERT INTO public.auth_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, randHex(16), user.ID, auth.HashRefresh(refresh.Raw), refresh.Exp)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Printf("[Auth] signin id=%s", user.ID)
	writeJSON(w, http.StatusOK, authResponse{User: user, Access: access, Refresh: refresh})
}

// SignOut revokes the presented refresh token; with a bearer token and no
// refresh token it revokes every session for that user.
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	_ = decodeJSON(r, &req)
	raw := strings.TrimSpace(req.RefreshToken)

	if raw != "" {
		_, err := h.db.Exec(`
			UPDATE public.auth_tokens SET revoked_at = NOW()
			WHERE token_hash = $1 AND revoked_at IS NULL
		`, auth.HashRefresh(raw))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	userID := h.bearerUserID(r)
	if userID == "" {
		writeError(w, http.StatusBadRequest, "refreshToken or Authorization header required")
		return
	}
	if _, err := h.db.Exec(`
		UPDATE public.auth_tokens SET revoked_at = NOW()
		WHERE user_id = $1 AND revoked_at IS NULL
	`, userID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Session re-fetches the profile for the bearer token. This is the
// authoritative reconciliation call; any client-side snapshot is advisory.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	userID := h.bearerUserID(r)
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"authenticated": false})
		return
	}

	var user models.User
	err := scanUser(h.db.QueryRow(`SELECT `+userCols+` FROM public.users WHERE id = $1`, userID), &user)
	if err == sql.ErrNoRows {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"authenticated": false})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"authenticated": true, "user": user})
}

// RefreshSession validates a refresh token, rotates it, and issues a new
// access token.
func (h *Handler) RefreshSession(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, http.StatusBadRequest, "refreshToken is required")
		return
	}
	hash := auth.HashRefresh(strings.TrimSpace(req.RefreshToken))

	// Revoking in the validating statement makes rotation atomic: of two
	// concurrent refreshes with the same token, only one sees a row.
	var userID string
	err := h.db.QueryRow(`
		UPDATE public.auth_tokens SET revoked_at = NOW()
		WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > NOW()
		RETURNING user_id
	`, hash).Scan(&userID)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var user models.User
	if err := scanUser(h.db.QueryRow(`SELECT `+userCols+` FROM public.users WHERE id = $1`, userID), &user); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	access, err := auth.NewAccessToken(h.jwtSecret, user.ID, user.SubscriptionTier, h.accessTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	refresh, err := auth.NewRefreshToken(h.refreshTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if _, err := h.db.Exec(`
		INSERT INTO public.auth_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, randHex(16), user.ID, auth.HashRefresh(refresh.Raw), refresh.Exp); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, authResponse{User: user, Access: access, Refresh: refresh})
}

// bearerUserID extracts and verifies the Authorization bearer token, returning
// the subject user id or "".
func (h *Handler) bearerUserID(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	userID, err := auth.ParseAccessToken(h.jwtSecret, strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		return ""
	}
	return userID
}
