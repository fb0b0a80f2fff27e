package models

import (
	"encoding/json"
	"time"
)

type User struct {
	ID               string          `json:"id"`
	Email            string          `json:"email"`
	Name             string          `json:"name"`
	AvatarURL        *string         `json:"avatarUrl,omitempty"`
	SubscriptionTier string          `json:"subscriptionTier"`
	BusinessInfo     json.RawMessage `json:"businessInfo,omitempty"`
	Settings         json.RawMessage `json:"settings,omitempty"`
	ConfirmedAt      *time.Time      `json:"confirmedAt,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// ContentItem statuses: draft -> scheduled -> published, any -> archived (terminal).
type ContentItem struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	Title           string          `json:"title"`
	Body            *string         `json:"body,omitempty"`
	ContentType     string          `json:"contentType"`
	Platforms       []string        `json:"platforms"`
	Status          string          `json:"status"`
	ScheduledFor    *time.Time      `json:"scheduledFor,omitempty"`
	PublishedAt     *time.Time      `json:"publishedAt,omitempty"`
	Hashtags        []string        `json:"hashtags"`
	MediaIDs        []string        `json:"mediaIds"`
	Metrics         json.RawMessage `json:"metrics,omitempty"`
	AIAnalysis      json.RawMessage `json:"aiAnalysis,omitempty"`
	EngagementScore *float64        `json:"engagementScore,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

type Lead struct {
	ID             string     `json:"id"`
	UserID         string     `json:"userId"`
	Name           string     `json:"name"`
	Email          *string    `json:"email,omitempty"`
	Phone          *string    `json:"phone,omitempty"`
	Company        *string    `json:"company,omitempty"`
	Source         string     `json:"source"`
	Status         string     `json:"status"`
	Score          int        `json:"score"`
	EstimatedValue *float64   `json:"estimatedValue,omitempty"`
	Tags           []string   `json:"tags"`
	Notes          *string    `json:"notes,omitempty"`
	NextAction     *string    `json:"nextAction,omitempty"`
	NextActionAt   *time.Time `json:"nextActionAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

type Interaction struct {
	ID          string          `json:"id"`
	LeadID      string          `json:"leadId"`
	UserID      string          `json:"userId"`
	Type        string          `json:"type"`
	Subject     *string         `json:"subject,omitempty"`
	Content     *string         `json:"content,omitempty"`
	Outcome     *string         `json:"outcome,omitempty"`
	Sentiment   *string         `json:"sentiment,omitempty"`
	AIAnalysis  json.RawMessage `json:"aiAnalysis,omitempty"`
	Attachments []string        `json:"attachments"`
	CreatedAt   time.Time       `json:"createdAt"`
}

type MediaFile struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	Filename      string    `json:"filename"`
	OriginalName  string    `json:"originalName"`
	MimeType      string    `json:"mimeType"`
	URL           string    `json:"url"`
	Size          int64     `json:"size"`
	Width         *int      `json:"width,omitempty"`
	Height        *int      `json:"height,omitempty"`
	Tags          []string  `json:"tags"`
	Palette       []string  `json:"palette"`
	AIDescription *string   `json:"aiDescription,omitempty"`
	AltText       *string   `json:"altText,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// AIInsight types: content_analysis, lead_analysis, content_suggestion, automation_suggestion.
type AIInsight struct {
	ID           string          `json:"id"`
	UserID       string          `json:"userId"`
	Type         string          `json:"type"`
	Title        string          `json:"title"`
	Description  *string         `json:"description,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Confidence   float64         `json:"confidence"`
	Acknowledged bool            `json:"acknowledged"`
	ContentID    *string         `json:"contentId,omitempty"`
	LeadID       *string         `json:"leadId,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Workflow is a pure authoring model; nothing in the backend executes it.
type Workflow struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId"`
	Name          string          `json:"name"`
	TriggerType   string          `json:"triggerType"`
	TriggerConfig json.RawMessage `json:"triggerConfig,omitempty"`
	Actions       json.RawMessage `json:"actions,omitempty"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Body      *string    `json:"body,omitempty"`
	URL       *string    `json:"url,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
}
