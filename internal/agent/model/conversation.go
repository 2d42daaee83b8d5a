package model

import (
	"context"
	"time"
)

// Session is a persisted chat transcript.
type Session struct {
	ID        string      `json:"id"`
	Messages  []UIMessage `json:"messages"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

type SessionRepository interface {
	// Save stores the transcript under id, replacing any previous copy.
	Save(ctx context.Context, id string, messages []UIMessage) error

	// Load returns the stored transcript or an errx not-found error.
	Load(ctx context.Context, id string) (*Session, error)
}

// DocumentTextRepository caches extracted plain text per bucket object key.
type DocumentTextRepository interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, text string) error
}
