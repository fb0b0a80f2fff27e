package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Generator is the text-in/text-out generation capability. No streaming, no
// function calling; callers instruct JSON-only output in the prompt and parse
// the raw text themselves.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateWithImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error)
}

// Client calls a Gemini-style generateContent REST endpoint.
type Client struct {
	APIKey  string
	Model   string
	BaseURL string
	HTTP    *http.Client

	// Limiter throttles outbound generation calls so a burst of dashboard
	// loads can't exhaust the provider quota.
	Limiter *rate.Limiter
}

// NewClient returns a client with sane defaults (60s timeout, 1 req/s burst 3).
func NewClient(apiKey, model string) *Client {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &Client{
		APIKey:  apiKey,
		Model:   model,
		BaseURL: "https://generativelanguage.googleapis.com/v1beta",
		HTTP:    &http.Client{Timeout: 60 * time.Second},
		Limiter: rate.NewLimiter(rate.Limit(1), 3),
	}
}

type generatePart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *generateInline `json:"inline_data,omitempty"`
}

type generateInline struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generateRequest struct {
	Contents []struct {
		Parts []generatePart `json:"parts"`
	} `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	return c.call(ctx, "generate", []generatePart{{Text: prompt}})
}

func (c *Client) GenerateWithImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	parts := []generatePart{
		{Text: prompt},
		{InlineData: &generateInline{
			MimeType: mimeType,
			Data:     base64.StdEncoding.EncodeToString(image),
		}},
	}
	return c.call(ctx, "generate_with_image", parts)
}

func (c *Client) call(ctx context.Context, op string, parts []generatePart) (string, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return "", &ServiceError{Op: op, Msg: "API key not configured"}
	}
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return "", &ServiceError{Op: op, Msg: "rate limiter wait aborted", Err: err}
		}
	}

	var req generateRequest
	req.Contents = make([]struct {
		Parts []generatePart `json:"parts"`
	}, 1)
	req.Contents[0].Parts = parts

	body, err := json.Marshal(req)
	if err != nil {
		return "", &ServiceError{Op: op, Msg: "encode request", Err: err}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", strings.TrimRight(c.BaseURL, "/"), c.Model, c.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", &ServiceError{Op: op, Msg: "build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return "", &ServiceError{Op: op, Msg: "request failed", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", &ServiceError{Op: op, Status: resp.StatusCode, Msg: "read response", Err: err}
	}

	var out generateResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", &ServiceError{Op: op, Status: resp.StatusCode, Msg: "undecodable response body", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := "non-2xx response"
		if out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return "", &ServiceError{Op: op, Status: resp.StatusCode, Msg: msg}
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", &ServiceError{Op: op, Status: resp.StatusCode, Msg: "empty candidate list"}
	}

	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}
