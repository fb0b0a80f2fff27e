package handlers

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/solostudio-app/solostudio/backend/internal/ai"
	"github.com/solostudio-app/solostudio/backend/internal/models"
	"golang.org/x/crypto/bcrypt"
)

type Handler struct {
	db  *sql.DB
	gen ai.Generator
	rt  *realtimeHub

	jwtSecret  string
	bcryptCost int
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// New builds a Handler. gen may be nil; AI endpoints then return 503.
func New(db *sql.DB, gen ai.Generator) *Handler {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "dev-secret"
		log.Printf("[Auth] WARNING: JWT_SECRET is empty; using a dev-only secret")
	}
	return &Handler{
		db:         db,
		gen:        gen,
		rt:         newRealtimeHub(),
		jwtSecret:  secret,
		bcryptCost: bcrypt.DefaultCost,
		accessTTL:  time.Hour,
		refreshTTL: 30 * 24 * time.Hour,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

const userCols = `id, email, name, avatar_url, subscription_tier, business_info, settings, confirmed_at, created_at, updated_at`

func scanUser(row *sql.Row, u *models.User) error {
	return row.Scan(&u.ID, &u.Email, &u.Name, &u.AvatarURL, &u.SubscriptionTier,
		&u.BusinessInfo, &u.Settings, &u.ConfirmedAt, &u.CreatedAt, &u.UpdatedAt)
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")

	var user models.User
	query := `SELECT ` + userCols + ` FROM public.users WHERE id = $1`
	err := scanUser(h.db.QueryRow(query, id), &user)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, user)
}

type updateUserRequest struct {
	Name         *string          `json:"name,omitempty"`
	AvatarURL    *string          `json:"avatarUrl,omitempty"`
	BusinessInfo *json.RawMessage `json:"businessInfo,omitempty"`
	Settings     *json.RawMessage `json:"settings,omitempty"`
}

// UpdateUser applies only the provided fields and returns the server row.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")

	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	var bizArg, setArg interface{}
	if req.BusinessInfo != nil {
		bizArg = []byte(*req.BusinessInfo)
	}
	if req.Settings != nil {
		setArg = []byte(*req.Settings)
	}

	var user models.User
	query := `
		UPDATE public.users
		SET name = COALESCE($2, name),
		    avatar_url = COALESCE($3, avatar_url),
		    business_info = COALESCE($4::jsonb, business_info),
		    settings = COALESCE($5::jsonb, settings),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userCols
	err := scanUser(h.db.QueryRow(query, id, req.Name, req.AvatarURL, bizArg, setArg), &user)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func randHex(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	return s[:max]
}
