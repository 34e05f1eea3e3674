package realtime

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mgriva/voxbridge/internal/rtproto"
)

func descriptorWithInstructions(instructions string) func() (rtproto.SessionDescriptor, error) {
	return func() (rtproto.SessionDescriptor, error) {
		return rtproto.SessionDescriptor{
			Instructions: instructions,
			Voice:        "alloy",
		}, nil
	}
}

func TestReconcileSendsOneFrameForUnchangedConfig(t *testing.T) {
	s := NewSession(Options{
		Dialer:  &fakeDialer{},
		URL:     "ws://test",
		Desired: descriptorWithInstructions("be brief"),
	})
	q := newFrameQueue()
	s.mu.Lock()
	s.queue = q
	s.mu.Unlock()

	s.reconcileOnce()
	s.reconcileOnce()

	if got := q.Len(); got != 1 {
		t.Fatalf("frames queued after two identical reconciles = %d, want 1", got)
	}
	frame, _ := q.Pop()
	raw, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &env); err != nil || env.Type != "session.update" {
		t.Fatalf("frame type = %q (%v), want session.update", env.Type, err)
	}
}

func TestReconcilePushesAgainWhenConfigChanges(t *testing.T) {
	instructions := "be brief"
	s := NewSession(Options{
		Dialer: &fakeDialer{},
		URL:    "ws://test",
		Desired: func() (rtproto.SessionDescriptor, error) {
			return rtproto.SessionDescriptor{Instructions: instructions}, nil
		},
	})
	q := newFrameQueue()
	s.mu.Lock()
	s.queue = q
	s.mu.Unlock()

	s.reconcileOnce()
	instructions = "be verbose"
	s.reconcileOnce()

	if got := q.Len(); got != 2 {
		t.Fatalf("frames queued after a config change = %d, want 2", got)
	}
}

func TestReconcileSkipsCycleOnDescriptorError(t *testing.T) {
	failing := true
	s := NewSession(Options{
		Dialer: &fakeDialer{},
		URL:    "ws://test",
		Desired: func() (rtproto.SessionDescriptor, error) {
			if failing {
				return rtproto.SessionDescriptor{}, errors.New("tool schema unavailable")
			}
			return rtproto.SessionDescriptor{Instructions: "ready"}, nil
		},
	})
	q := newFrameQueue()
	s.mu.Lock()
	s.queue = q
	s.mu.Unlock()

	s.reconcileOnce()
	if got := q.Len(); got != 0 {
		t.Fatalf("frames queued after failed descriptor build = %d, want 0", got)
	}

	failing = false
	s.reconcileOnce()
	if got := q.Len(); got != 1 {
		t.Fatalf("frames queued after recovery = %d, want 1", got)
	}
}

func TestReconcilePushesFreshDescriptorAfterReconnect(t *testing.T) {
	_, dialer, stop := startSession(t, Options{
		Desired:           descriptorWithInstructions("hold context"),
		ReconcileInterval: 10 * time.Millisecond,
	})
	defer stop()

	conn := dialer.conn(0)
	waitFor(t, "initial session.update", func() bool {
		for _, ft := range conn.writtenTypes() {
			if ft == "session.update" {
				return true
			}
		}
		return false
	})
}
