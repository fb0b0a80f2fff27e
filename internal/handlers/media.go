package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/lib/pq"
	"github.com/solostudio-app/solostudio/backend/internal/ai"
	"github.com/solostudio-app/solostudio/backend/internal/mediautil"
	"github.com/solostudio-app/solostudio/backend/internal/models"
)

var reSafeFilename = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

var (
	mediaHMACSecretOnce sync.Once
	mediaHMACSecret     []byte
)

func getMediaHMACSecret() []byte {
	mediaHMACSecretOnce.Do(func() {
		// Production should set MEDIA_URL_HMAC_SECRET to a strong random value.
		// For local dev we fall back to a fixed value to keep URLs stable across restarts.
		sec := strings.TrimSpace(os.Getenv("MEDIA_URL_HMAC_SECRET"))
		if sec == "" {
			sec = "dev-insecure-media-secret"
			log.Printf("[Media] WARNING: MEDIA_URL_HMAC_SECRET is not set; using a dev default (do not use in production)")
		}
		mediaHMACSecret = []byte(sec)
	})
	return mediaHMACSecret
}

func hmacSHA256Hex(key []byte, msg string) string {
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}

func mediaUserHash(userID string) string {
	userID = strings.TrimSpace(userID)
	return hmacSHA256Hex(getMediaHMACSecret(), "user:"+userID)
}

func extForUpload(filename string, contentType string) string {
	ext := strings.ToLower(strings.TrimSpace(filepath.Ext(filename)))
	if ext != "" && len(ext) <= 16 && strings.HasPrefix(ext, ".") {
		return ext
	}
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if semi := strings.Index(ct, ";"); semi >= 0 {
		ct = strings.TrimSpace(ct[:semi])
	}
	if ct != "" {
		if exts, _ := mime.ExtensionsByType(ct); len(exts) > 0 {
			e := strings.ToLower(strings.TrimSpace(exts[0]))
			if e != "" && strings.HasPrefix(e, ".") && len(e) <= 16 {
				return e
			}
		}
	}
	return ".bin"
}

// saveMediaFile writes bytes under media/<hmac(userId)>/<shard>/<hmac(file)>.ext
// and returns (storedFilename, publicURL).
func saveMediaFile(userID, originalName, contentType string, data []byte) (string, string, error) {
	orig := strings.TrimSpace(originalName)
	if orig == "" {
		orig = "upload.bin"
	}
	orig = reSafeFilename.ReplaceAllString(orig, "_")
	ext := extForUpload(orig, contentType)

	nonce := randHex(16)
	fileHash := hmacSHA256Hex(getMediaHMACSecret(), fmt.Sprintf("file:%s:%s:%s", strings.TrimSpace(userID), nonce, orig))
	prefix := fileHash
	if len(prefix) > 5 {
		prefix = prefix[:5]
	}
	fn := fileHash + ext
	userHash := mediaUserHash(userID)
	dir := filepath.Join("media", userHash, prefix)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", err
	}
	if err := os.WriteFile(filepath.Join(dir, fn), data, 0o644); err != nil {
		return "", "", err
	}
	return fn, fmt.Sprintf("/media/%s/%s/%s", userHash, prefix, fn), nil
}

const mediaCols = `id, user_id, filename, original_name, mime_type, url, size,
	width, height, COALESCE(tags, ARRAY[]::text[]), COALESCE(palette, ARRAY[]::text[]),
	ai_description, alt_text, created_at`

func scanMediaRow(scan func(dest ...any) error, m *models.MediaFile) error {
	return scan(
		&m.ID, &m.UserID, &m.Filename, &m.OriginalName, &m.MimeType, &m.URL, &m.Size,
		&m.Width, &m.Height, pq.Array(&m.Tags), pq.Array(&m.Palette),
		&m.AIDescription, &m.AltText, &m.CreatedAt,
	)
}

// UploadMediaForUser accepts multipart files, stores them on disk, extracts
// image dimensions and a dominant-color palette, and records a row per file.
// Field name supported: files (preferred) or media (fallback).
func (h *Handler) UploadMediaForUser(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	userID := strings.TrimSpace(pathVar(r, "userId"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	ct := r.Header.Get("Content-Type")
	if !strings.Contains(ct, "multipart/form-data") {
		writeError(w, http.StatusBadRequest, "expected multipart/form-data")
		return
	}

	// 50MB total parsing limit.
	if err := r.ParseMultipartForm(50 << 20); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if r.MultipartForm == nil || r.MultipartForm.File == nil {
		writeError(w, http.StatusBadRequest, "missing files")
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		files = r.MultipartForm.File["media"]
	}
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "missing files")
		return
	}
	if len(files) > 30 {
		writeError(w, http.StatusBadRequest, "too many files (max 30)")
		return
	}

	const maxPerFile = 25 << 20 // 25MB per file
	items := make([]models.MediaFile, 0, len(files))
	for _, fh := range files {
		if fh == nil {
			continue
		}
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		b, err := io.ReadAll(io.LimitReader(f, maxPerFile+1))
		_ = f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if len(b) > maxPerFile {
			writeError(w, http.StatusBadRequest, "file too large (max 25MB per file)")
			return
		}
		contentType := strings.TrimSpace(fh.Header.Get("Content-Type"))
		if contentType == "" {
			contentType = http.DetectContentType(b)
		}

		fn, url, err := saveMediaFile(userID, fh.Filename, contentType, b)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		var width, height *int
		var palette []string
		if strings.HasPrefix(strings.ToLower(contentType), "image/") {
			if cw, chh, ok := mediautil.Dimensions(b); ok {
				width, height = &cw, &chh
			}
			if p, err := mediautil.Palette(b, 5); err == nil {
				palette = p
			}
		}

		var m models.MediaFile
		query := `
			INSERT INTO public.media_files
			  (id, user_id, filename, original_name, mime_type, url, size, width, height, tags, palette, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, ARRAY[]::text[], $10, NOW())
			RETURNING ` + mediaCols
		err = scanMediaRow(h.db.QueryRow(query,
			randHex(16), userID, fn, fh.Filename, contentType, url, len(b),
			width, height, pq.Array(palette),
		).Scan, &m)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		items = append(items, m)
	}

	log.Printf("[Media] upload userId=%s files=%d", userID, len(items))
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "items": items})
}

func (h *Handler) ListMediaForUser(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(pathVar(r, "userId"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	rows, err := h.db.Query(
		`SELECT `+mediaCols+` FROM public.media_files WHERE user_id = $1 ORDER BY created_at DESC LIMIT 500`,
		userID,
	)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	items := []models.MediaFile{}
	for rows.Next() {
		var m models.MediaFile
		if err := scanMediaRow(rows.Scan, &m); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "items": items})
}

type updateMediaRequest struct {
	Tags    []string `json:"tags,omitempty"`
	AltText *string  `json:"altText,omitempty"`
}

func (h *Handler) UpdateMediaForUser(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(pathVar(r, "userId"))
	mediaID := strings.TrimSpace(pathVar(r, "mediaId"))
	if userID == "" || mediaID == "" {
		writeError(w, http.StatusBadRequest, "userId and mediaId are required")
		return
	}

	var req updateMediaRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	var tagsArg interface{}
	if req.Tags != nil {
		tagsArg = pq.Array(normalizeList(req.Tags, false))
	}

	var m models.MediaFile
	query := `
		UPDATE public.media_files
		SET tags = COALESCE($3::text[], tags),
		    alt_text = COALESCE($4, alt_text)
		WHERE id = $1 AND user_id = $2
		RETURNING ` + mediaCols
	err := scanMediaRow(h.db.QueryRow(query, mediaID, userID, tagsArg, req.AltText).Scan, &m)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, m)
}

// DeleteMediaForUser removes the DB row and best-effort deletes the file on disk.
func (h *Handler) DeleteMediaForUser(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(pathVar(r, "userId"))
	mediaID := strings.TrimSpace(pathVar(r, "mediaId"))
	if userID == "" || mediaID == "" {
		writeError(w, http.StatusBadRequest, "userId and mediaId are required")
		return
	}

	var url string
	err := h.db.QueryRow(
		`DELETE FROM public.media_files WHERE id = $1 AND user_id = $2 RETURNING url`,
		mediaID, userID,
	).Scan(&url)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	rel := strings.TrimPrefix(url, "/")
	if rel != "" && !strings.Contains(rel, "..") && strings.HasPrefix(rel, "media/") {
		if err := os.Remove(filepath.FromSlash(rel)); err != nil && !os.IsNotExist(err) {
			log.Printf("[Media] delete file failed url=%s err=%v", url, err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// DescribeMediaForUser runs the vision model over a stored image and persists
// the generated description plus alt text.
func (h *Handler) DescribeMediaForUser(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(pathVar(r, "userId"))
	mediaID := strings.TrimSpace(pathVar(r, "mediaId"))
	if userID == "" || mediaID == "" {
		writeError(w, http.StatusBadRequest, "userId and mediaId are required")
		return
	}
	if h.gen == nil {
		writeError(w, http.StatusServiceUnavailable, "ai service not configured")
		return
	}

	var m models.MediaFile
	err := scanMediaRow(h.db.QueryRow(
		`SELECT `+mediaCols+` FROM public.media_files WHERE id = $1 AND user_id = $2`, mediaID, userID,
	).Scan, &m)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !strings.HasPrefix(strings.ToLower(m.MimeType), "image/") {
		writeError(w, http.StatusBadRequest, "only images can be described")
		return
	}

	rel := strings.TrimPrefix(m.URL, "/")
	data, err := os.ReadFile(filepath.FromSlash(rel))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "file missing on disk")
		return
	}

	raw, err := h.gen.GenerateWithImage(r.Context(), ai.ImageDescriptionPrompt(), data, m.MimeType)
	if err != nil {
		h.writeAIError(w, err)
		return
	}
	desc, perr := ai.ParseImageDescription(raw)
	if perr != nil {
		h.writeAIError(w, perr)
		return
	}

	query := `
		UPDATE public.media_files
		SET ai_description = $3, alt_text = $4
		WHERE id = $1 AND user_id = $2
		RETURNING ` + mediaCols
	if err := scanMediaRow(h.db.QueryRow(query, mediaID, userID, desc.Description, desc.AltText).Scan, &m); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, m)
}
