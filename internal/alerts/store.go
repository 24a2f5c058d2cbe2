// Package alerts defines the alert store contract and an in-memory
// implementation. SQL and Redis implementations live in storage and
// docstore.
package alerts

import (
	"context"
	"errors"
	"strings"

	"farmwatch/internal/model"
)

// DefaultListLimit applies when List is called with a non-positive limit.
const DefaultListLimit = 50

var (
	ErrNotFound      = errors.New("alerts: alert not found")
	ErrTitleRequired = errors.New("alerts: title required")
)

// Draft is the caller-supplied part of a new alert. Identity, timestamp and
// read/resolved state are assigned by the store.
type Draft struct {
	Title    string         `json:"title"`
	Message  string         `json:"message"`
	Priority model.Priority `json:"priority"`
	Source   string         `json:"source,omitempty"`
}

// Store persists alerts. Implementations never hard-delete, assign ids with
// their backing store's own primitive, and are safe for concurrent use.
//
// List returns alerts newest first. With unreadOnly the read filter is
// applied before the limit. MarkRead and Resolve are idempotent; Resolve also
// marks the alert read and keeps the note and time of the first resolution.
type Store interface {
	Create(ctx context.Context, d Draft) (string, error)
	Get(ctx context.Context, id string) (model.Alert, error)
	List(ctx context.Context, unreadOnly bool, limit int) ([]model.Alert, error)
	MarkRead(ctx context.Context, id string) error
	Resolve(ctx context.Context, id, note string) error
}

// Normalize fills defaults on a draft and rejects drafts without a title.
func Normalize(d Draft) (Draft, error) {
	d.Title = strings.TrimSpace(d.Title)
	if d.Title == "" {
		return d, ErrTitleRequired
	}
	d.Priority = model.ParsePriority(strings.ToLower(strings.TrimSpace(string(d.Priority))))
	d.Source = strings.TrimSpace(d.Source)
	return d, nil
}

// Limit resolves a caller's limit against DefaultListLimit.
func Limit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
