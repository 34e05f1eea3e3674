package transcript

import (
	"context"
	"strings"
	"time"
)

// Turn stores a single user or assistant turn of a capture session.
// SpeechID links user turns back to the voice segment that produced them.
type Turn struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	SessionID   string    `json:"session_id"`
	SpeechID    string    `json:"speech_id,omitempty"`
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	Redacted    bool      `json:"redacted"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists and retrieves session transcripts.
type Store interface {
	SaveTurn(ctx context.Context, turn Turn) error
	RecentTurns(ctx context.Context, workspaceID string, limit int) ([]Turn, error)
	Close() error
}

// NewStore creates a postgres-backed store when configured, otherwise
// in-memory.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryStore(), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}
