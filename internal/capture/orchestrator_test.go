package capture

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mgriva/voxbridge/internal/llm"
	"github.com/mgriva/voxbridge/internal/protocol"
	"github.com/mgriva/voxbridge/internal/realtime"
	"github.com/mgriva/voxbridge/internal/session"
	"github.com/mgriva/voxbridge/internal/tools"
	"github.com/mgriva/voxbridge/internal/transcript"
	"github.com/mgriva/voxbridge/internal/vad"
)

type fakeBackendConn struct {
	mu      sync.Mutex
	wrote   [][]byte
	inbound chan []byte
	closed  chan struct{}
	once    sync.Once
}

func newFakeBackendConn() *fakeBackendConn {
	return &fakeBackendConn{
		inbound: make(chan []byte, 64),
		closed:  make(chan struct{}),
	}
}

func (c *fakeBackendConn) ReadMessage() ([]byte, error) {
	select {
	case <-c.closed:
		return nil, errors.New("use of closed connection")
	case data := <-c.inbound:
		return data, nil
	}
}

func (c *fakeBackendConn) WriteJSON(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.wrote = append(c.wrote, raw)
	c.mu.Unlock()
	return nil
}

func (c *fakeBackendConn) Close(bool) error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeBackendConn) serverSend(raw string) {
	c.inbound <- []byte(raw)
}

func (c *fakeBackendConn) sawFrame(frameType string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, raw := range c.wrote {
		var env struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(raw, &env)
		if env.Type == frameType {
			return true
		}
	}
	return false
}

type fakeBackendDialer struct {
	mu    sync.Mutex
	conns []*fakeBackendConn
}

func (d *fakeBackendDialer) Dial(context.Context, string, http.Header) (realtime.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := newFakeBackendConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeBackendDialer) conn(i int) *fakeBackendConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

type connFixture struct {
	orch     *Orchestrator
	sess     *session.Session
	dialer   *fakeBackendDialer
	store    *transcript.InMemoryStore
	inbound  chan any
	outbound chan any
	done     chan error
	cancel   context.CancelFunc
}

func startConnection(t *testing.T) *connFixture {
	t.Helper()
	sessions := session.NewManager(time.Minute)
	sess := sessions.Create("ws-1")
	dialer := &fakeBackendDialer{}
	store := transcript.NewInMemoryStore()

	orch := NewOrchestrator(sessions, tools.NewRegistry(), llm.NewMockClient(), store, nil, nil, dialer, Config{
		RealtimeURL:       "ws://backend",
		Model:             "test-model",
		ConnectTimeout:    50 * time.Millisecond,
		ReconcileInterval: time.Hour,
		VAD: vad.Config{
			SustainedDuration:      time.Millisecond,
			AmnestyPeriod:          2 * time.Millisecond,
			VoiceSilenceThreshold:  2 * time.Millisecond,
			SpeechSilenceThreshold: 5 * time.Millisecond,
		},
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	f := &connFixture{
		orch:     orch,
		sess:     sess,
		dialer:   dialer,
		store:    store,
		inbound:  make(chan any, 64),
		outbound: make(chan any, 64),
		done:     make(chan error, 1),
		cancel:   cancel,
	}
	go func() { f.done <- orch.RunConnection(ctx, sess, f.inbound, f.outbound) }()

	waitUntil(t, "backend connection", func() bool { return dialer.conn(0) != nil })
	return f
}

func (f *connFixture) stop(t *testing.T) {
	t.Helper()
	close(f.inbound)
	select {
	case <-f.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("RunConnection did not return")
	}
	f.cancel()
}

func (f *connFixture) audioChunk(voice bool) protocol.ClientAudioChunk {
	return protocol.ClientAudioChunk{
		Type:        protocol.TypeClientAudioChunk,
		SessionID:   f.sess.ID,
		PCM16Base64: base64.StdEncoding.EncodeToString([]byte{1, 2, 3, 4}),
		SampleRate:  16000,
		Voice:       voice,
	}
}

// collect drains outbound until a message satisfies match or the deadline
// passes.
func collect[T any](t *testing.T, outbound <-chan any, what string, match func(T) bool) T {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case msg := <-outbound:
			if m, ok := msg.(T); ok && match(m) {
				return m
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		}
	}
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSpeechSegmentDrivesCommitAndReply(t *testing.T) {
	f := startConnection(t)
	defer f.stop(t)

	// Two voiced frames across the sustain window open the segment.
	f.inbound <- f.audioChunk(true)
	time.Sleep(5 * time.Millisecond)
	f.inbound <- f.audioChunk(true)

	started := collect[protocol.SpeechStarted](t, f.outbound, "speech_started", func(protocol.SpeechStarted) bool { return true })
	if started.SpeechID == "" {
		t.Fatalf("speech_started without a speech id")
	}

	time.Sleep(10 * time.Millisecond)
	f.inbound <- f.audioChunk(false)

	ended := collect[protocol.SpeechEnded](t, f.outbound, "speech_ended", func(protocol.SpeechEnded) bool { return true })
	if ended.SpeechID != started.SpeechID {
		t.Fatalf("speech ids differ: started %q ended %q", started.SpeechID, ended.SpeechID)
	}

	conn := f.dialer.conn(0)
	waitUntil(t, "commit frame", func() bool { return conn.sawFrame("input_audio_buffer.commit") })
	waitUntil(t, "response.create frame", func() bool { return conn.sawFrame("response.create") })

	conn.serverSend(`{"type":"response.text.done","text":"All done."}`)
	turn := collect[protocol.AssistantTurnEnd](t, f.outbound, "assistant_turn_end", func(protocol.AssistantTurnEnd) bool { return true })
	if turn.Text != "All done." {
		t.Fatalf("turn.Text = %q, want %q", turn.Text, "All done.")
	}
	if turn.SpeechID != started.SpeechID {
		t.Fatalf("turn.SpeechID = %q, want %q", turn.SpeechID, started.SpeechID)
	}
}

func TestAssistantToolCallReachesClientWithRisk(t *testing.T) {
	f := startConnection(t)
	defer f.stop(t)

	f.inbound <- protocol.ClientControl{
		Type:      protocol.TypeClientControl,
		SessionID: f.sess.ID,
		Action:    "send_text",
		Text:      "open the parser file",
	}

	conn := f.dialer.conn(0)
	waitUntil(t, "item create frame", func() bool { return conn.sawFrame("conversation.item.create") })

	reply := "### write_file\n```json\n{\"path\":\"parser.go\",\"content\":\"x\"}\n```"
	raw, _ := json.Marshal(map[string]string{"type": "response.text.done", "text": reply})
	conn.serverSend(string(raw))

	call := collect[protocol.ToolCall](t, f.outbound, "tool_call", func(protocol.ToolCall) bool { return true })
	if call.Name != "write_file" {
		t.Fatalf("call.Name = %q, want %q", call.Name, "write_file")
	}
	if call.Risk != "medium" || !call.RequiresApproval {
		t.Fatalf("call gate = %s/%v, want medium/approval", call.Risk, call.RequiresApproval)
	}
}

func TestBlockedToolCallIsHeldBack(t *testing.T) {
	f := startConnection(t)
	defer f.stop(t)

	f.inbound <- protocol.ClientControl{
		Type:      protocol.TypeClientControl,
		SessionID: f.sess.ID,
		Action:    "send_text",
		Text:      "clean the disk",
	}

	conn := f.dialer.conn(0)
	waitUntil(t, "item create frame", func() bool { return conn.sawFrame("conversation.item.create") })

	reply := "### run_command\n```json\n{\"cmd\":\"rm -rf / --force\"}\n```"
	raw, _ := json.Marshal(map[string]string{"type": "response.text.done", "text": reply})
	conn.serverSend(string(raw))

	ev := collect[protocol.ErrorEvent](t, f.outbound, "blocked tool error", func(e protocol.ErrorEvent) bool {
		return e.Code == "tool_call_blocked"
	})
	if ev.Source != "policy" {
		t.Fatalf("ev.Source = %q, want policy", ev.Source)
	}
}

func TestTranscriptRowsAreRedacted(t *testing.T) {
	f := startConnection(t)
	defer f.stop(t)

	f.inbound <- protocol.ClientControl{
		Type:      protocol.TypeClientControl,
		SessionID: f.sess.ID,
		Action:    "send_text",
		Text:      "use the key sk-abcdef1234567890abcdef please",
	}

	waitUntil(t, "user turn persisted", func() bool {
		turns, _ := f.store.RecentTurns(context.Background(), "ws-1", 10)
		return len(turns) >= 1
	})
	turns, _ := f.store.RecentTurns(context.Background(), "ws-1", 10)
	if !turns[0].Redacted {
		t.Fatalf("turn not marked redacted: %+v", turns[0])
	}
	if want := "[REDACTED_KEY]"; !strings.Contains(turns[0].Content, want) {
		t.Fatalf("content %q missing %q", turns[0].Content, want)
	}
}

func TestStopControlEndsConnection(t *testing.T) {
	f := startConnection(t)
	f.inbound <- protocol.ClientControl{
		Type:      protocol.TypeClientControl,
		SessionID: f.sess.ID,
		Action:    "stop",
	}
	select {
	case err := <-f.done:
		if err != nil {
			t.Fatalf("RunConnection() = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("RunConnection did not return after stop")
	}
	f.cancel()
}
