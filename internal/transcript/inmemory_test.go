package transcript

import (
	"context"
	"testing"
)

func TestInMemoryStoreRoundTrip(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	turns := []Turn{
		{WorkspaceID: "ws-1", SessionID: "s1", SpeechID: "sp-1", Role: "user", Content: "rename the parser"},
		{WorkspaceID: "ws-1", SessionID: "s1", Role: "assistant", Content: "Renamed it."},
		{WorkspaceID: "ws-2", SessionID: "s2", Role: "user", Content: "unrelated workspace"},
	}
	for _, turn := range turns {
		if err := s.SaveTurn(ctx, turn); err != nil {
			t.Fatalf("SaveTurn() error = %v", err)
		}
	}

	got, err := s.RecentTurns(ctx, "ws-1", 10)
	if err != nil {
		t.Fatalf("RecentTurns() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(RecentTurns) = %d, want 2", len(got))
	}
	if got[0].Content != "rename the parser" || got[1].Content != "Renamed it." {
		t.Fatalf("turns out of order: %+v", got)
	}
	if got[0].ID == "" || got[0].CreatedAt.IsZero() {
		t.Fatalf("SaveTurn should assign ID and timestamp: %+v", got[0])
	}
}

func TestInMemoryStoreLimit(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_ = s.SaveTurn(ctx, Turn{WorkspaceID: "ws-1", Content: string(rune('a' + i))})
	}

	got, err := s.RecentTurns(ctx, "ws-1", 2)
	if err != nil {
		t.Fatalf("RecentTurns() error = %v", err)
	}
	if len(got) != 2 || got[0].Content != "d" || got[1].Content != "e" {
		t.Fatalf("RecentTurns(limit 2) = %+v, want last two turns", got)
	}
}
