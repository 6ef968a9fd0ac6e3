package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

// notificationRecord is one row of engage_notifications. ID is a surrogate
// key; NotificationID carries the id stamped by the service.
type notificationRecord struct {
	bun.BaseModel `bun:"table:engage_notifications,alias:en"`

	ID             string    `bun:"id,pk"`
	NotificationID string    `bun:"notification_id,notnull"`
	Kind           string    `bun:"kind,notnull"`
	Scope          string    `bun:"scope,notnull"`
	ScopeID        string    `bun:"scope_id,notnull"`
	Sequence       int64     `bun:"sequence_no,notnull"`
	Provider       string    `bun:"provider,notnull"`
	Terminal       bool      `bun:"terminal,notnull"`
	AuthInfo       string    `bun:"auth_info,nullzero"`
	Activity       string    `bun:"activity,nullzero"`
	TokenURL       string    `bun:"token_url,nullzero"`
	Error          string    `bun:"error,nullzero"`
	OccurredAt     time.Time `bun:"occurred_at,notnull"`
	CreatedAt      time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type tokenURLPayload struct {
	URL     string          `json:"url"`
	Headers []headerPayload `json:"headers,omitempty"`
	Payload string          `json:"payload,omitempty"`
}

type headerPayload struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

type errorPayload struct {
	Kind     string `json:"kind"`
	Code     string `json:"code"`
	Message  string `json:"message,omitempty"`
	Provider string `json:"provider,omitempty"`
}
