package realtime

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mgriva/voxbridge/internal/reliability"
	"github.com/mgriva/voxbridge/internal/rtproto"
)

// ErrNotConnected is returned when a frame is pushed while no connection is
// live (before the first connect or during a reconnect window).
var ErrNotConnected = errors.New("realtime: not connected")

const (
	defaultReconcileInterval = 500 * time.Millisecond
	reconnectBackoffBase     = 500 * time.Millisecond
	reconnectBackoffCap      = 5 * time.Second
)

// UsageSink receives cost and latency observations. Implementations must
// tolerate being a no-op.
type UsageSink interface {
	ObserveLatency(stage string, d time.Duration)
	ObserveCost(usd float64)
}

// NopSink discards all observations.
type NopSink struct{}

func (NopSink) ObserveLatency(string, time.Duration) {}
func (NopSink) ObserveCost(float64)                  {}

// Options configures a Session. Dialer, URL and Desired are required; every
// callback is optional.
type Options struct {
	Dialer Dialer
	URL    string
	Header http.Header

	ConnectAttempts   int
	ConnectTimeout    time.Duration
	ReconcileInterval time.Duration

	// Desired computes the session descriptor the backend should hold.
	// Called on every reconcile cycle; errors skip the cycle.
	Desired func() (rtproto.SessionDescriptor, error)

	// Cost rates in USD per million tokens, used with usage events.
	InputUSDPerMTok  float64
	OutputUSDPerMTok float64

	// OnToolCall executes a completed tool call. A returned error keeps the
	// assembler in flight so a later retry can finalize it again.
	OnToolCall func(name, argumentsJSON string) error
	// OnAudioClip receives a finished synthesized clip.
	OnAudioClip func(id string, audio []byte) error
	// OnBargeIn fires when the backend detects the user speaking over
	// playback.
	OnBargeIn func()
	// OnWarning surfaces protocol errors that are not on the benign list.
	OnWarning func(code, detail string)
	// OnEvent observes every inbound event type, for metrics.
	OnEvent func(eventType string)

	Sink   UsageSink
	Logger *log.Logger
}

// Session owns exactly one live connection to the realtime backend plus all
// correlation state attached to it. The connection handle is replaced
// wholesale on every reconnect; correlation futures that cannot be answered
// any more are failed, never left pending.
type Session struct {
	transport *Transport
	opts      Options

	mu            sync.Mutex
	conn          Conn
	queue         *frameQueue
	pendingText   []*Response
	pendingDeltas []*DeltaStream
	toolCalls     map[string]*toolCallAssembler
	audioClips    map[string]*audioClipAssembler
	completedIDs  map[string]bool
	activeConfig  []byte

	speechStoppedAt time.Time
	firstDeltaSeen  bool

	disposed     atomic.Bool
	shutdownOnce sync.Once
	reconnects   atomic.Int64
}

func NewSession(opts Options) *Session {
	if opts.ReconcileInterval <= 0 {
		opts.ReconcileInterval = defaultReconcileInterval
	}
	if opts.Sink == nil {
		opts.Sink = NopSink{}
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Session{
		transport:    NewTransport(opts.Dialer, opts.URL, opts.Header, opts.ConnectAttempts, opts.ConnectTimeout),
		opts:         opts,
		toolCalls:    make(map[string]*toolCallAssembler),
		audioClips:   make(map[string]*audioClipAssembler),
		completedIDs: make(map[string]bool),
	}
}

// Run drives the session until the context ends, Shutdown is called, or a
// connect cycle exhausts its attempt budget. A mid-stream read failure
// triggers a reconnect, not a return: queues are cleared, correlation state
// reset, and Connect re-run.
func (s *Session) Run(ctx context.Context) error {
	for {
		if s.disposed.Load() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := s.transport.Connect(ctx)
		if err != nil {
			s.resetCorrelation(err)
			if s.disposed.Load() {
				return nil
			}
			return err
		}
		if s.disposed.Load() {
			_ = conn.Close(true)
			return nil
		}

		queue := newFrameQueue()
		s.mu.Lock()
		s.conn = conn
		s.queue = queue
		s.activeConfig = nil
		s.mu.Unlock()

		readErr := make(chan error, 1)
		writerDone := make(chan struct{})
		go func() {
			readErr <- s.readLoop(conn)
		}()
		go func() {
			defer close(writerDone)
			s.writeLoop(conn, queue)
		}()

		connErr := s.supervise(ctx, readErr)

		queue.Close()
		_ = conn.Close(connErr == nil)
		<-writerDone
		s.mu.Lock()
		s.conn = nil
		s.queue = nil
		s.mu.Unlock()
		s.resetCorrelation(ErrCorrelationAbandoned)

		if s.disposed.Load() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if connErr == nil {
			return nil
		}

		n := s.reconnects.Add(1)
		backoff := reliability.ExponentialBackoff(int(n-1), reconnectBackoffBase, reconnectBackoffCap)
		s.logf("realtime: connection lost (%v), reconnecting in %s", connErr, backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// supervise owns the reconcile cadence for one live connection and returns
// the read-loop error that ended it (nil for a deliberate stop).
func (s *Session) supervise(ctx context.Context, readErr <-chan error) error {
	ticker := time.NewTicker(s.opts.ReconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if s.disposed.Load() {
				return nil
			}
			return err
		case <-ticker.C:
			if s.disposed.Load() {
				return nil
			}
			s.reconcileOnce()
		}
	}
}

// reconcileOnce pushes the desired session descriptor when it differs from
// the last one pushed on this connection. Comparison is on the serialized
// form, so a no-op recompute sends no traffic. Descriptor build errors skip
// the cycle and never stop the loop.
func (s *Session) reconcileOnce() {
	if s.opts.Desired == nil {
		return
	}
	desired, err := s.opts.Desired()
	if err != nil {
		s.logf("realtime: session descriptor build failed: %v", err)
		return
	}
	raw, err := json.Marshal(desired)
	if err != nil {
		s.logf("realtime: session descriptor marshal failed: %v", err)
		return
	}

	s.mu.Lock()
	queue := s.queue
	changed := queue != nil && !bytes.Equal(raw, s.activeConfig)
	if changed {
		s.activeConfig = raw
	}
	s.mu.Unlock()

	if changed {
		queue.Push(rtproto.SessionUpdate(desired))
	}
}

func (s *Session) readLoop(conn Conn) error {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		ev, err := rtproto.ParseServerEvent(data)
		if err != nil {
			// One bad frame must not kill the stream.
			s.logf("realtime: dropping undecodable frame: %v", err)
			continue
		}
		s.handleEvent(ev)
	}
}

func (s *Session) writeLoop(conn Conn, queue *frameQueue) {
	for {
		frame, ok := queue.Pop()
		if !ok {
			return
		}
		if err := conn.WriteJSON(frame); err != nil {
			s.logf("realtime: write failed: %v", err)
			return
		}
	}
}

// AppendAudio queues one PCM frame for the input buffer.
func (s *Session) AppendAudio(pcm []byte) error {
	return s.push(rtproto.AudioAppend(base64.StdEncoding.EncodeToString(pcm)))
}

// CommitUtterance marks end of utterance: it flushes the input buffer,
// requests a response, and returns the correlation future for it.
func (s *Session) CommitUtterance() (*Response, error) {
	return s.request(rtproto.AudioCommit(), rtproto.ResponseCreate())
}

// SendText submits a text turn and returns the correlation future.
func (s *Session) SendText(text string) (*Response, error) {
	return s.request(rtproto.UserTextItem(text), rtproto.ResponseCreate())
}

// SendTextStreaming is SendText plus a delta stream for incremental output.
func (s *Session) SendTextStreaming(text string) (*DeltaStream, *Response, error) {
	if s.disposed.Load() {
		return nil, nil, ErrSessionDisposed
	}
	ds := newDeltaStream()
	fut := newResponse()
	s.mu.Lock()
	queue := s.queue
	if queue == nil {
		s.mu.Unlock()
		return nil, nil, ErrNotConnected
	}
	s.pendingDeltas = append(s.pendingDeltas, ds)
	s.pendingText = append(s.pendingText, fut)
	s.mu.Unlock()

	queue.Push(rtproto.UserTextItem(text))
	queue.Push(rtproto.ResponseCreate())
	return ds, fut, nil
}

func (s *Session) request(frames ...any) (*Response, error) {
	if s.disposed.Load() {
		return nil, ErrSessionDisposed
	}
	fut := newResponse()
	s.mu.Lock()
	queue := s.queue
	if queue == nil {
		s.mu.Unlock()
		return nil, ErrNotConnected
	}
	s.pendingText = append(s.pendingText, fut)
	s.mu.Unlock()

	for _, f := range frames {
		queue.Push(f)
	}
	return fut, nil
}

func (s *Session) push(frame any) error {
	if s.disposed.Load() {
		return ErrSessionDisposed
	}
	s.mu.Lock()
	queue := s.queue
	s.mu.Unlock()
	if queue == nil || !queue.Push(frame) {
		return ErrNotConnected
	}
	return nil
}

// StopAllAudio discards every in-flight synthesized clip, e.g. when the
// user starts talking over playback.
func (s *Session) StopAllAudio() {
	s.mu.Lock()
	s.audioClips = make(map[string]*audioClipAssembler)
	s.mu.Unlock()
}

// Shutdown disposes the session. Idempotent, safe from any goroutine, and
// safe before the first connect.
func (s *Session) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.disposed.Store(true)
		s.mu.Lock()
		conn := s.conn
		queue := s.queue
		s.mu.Unlock()
		if queue != nil {
			queue.Close()
		}
		if conn != nil {
			_ = conn.Close(true)
		}
		s.resetCorrelation(ErrSessionDisposed)
	})
}

// Reconnects reports how many reconnect cycles the session has run.
func (s *Session) Reconnects() int64 { return s.reconnects.Load() }

// resetCorrelation fails every pending future and clears all in-flight
// assemblers. Called whenever the connection that would have answered them
// is gone.
func (s *Session) resetCorrelation(err error) {
	s.mu.Lock()
	futures := s.pendingText
	deltas := s.pendingDeltas
	s.pendingText = nil
	s.pendingDeltas = nil
	s.toolCalls = make(map[string]*toolCallAssembler)
	s.audioClips = make(map[string]*audioClipAssembler)
	s.completedIDs = make(map[string]bool)
	s.speechStoppedAt = time.Time{}
	s.firstDeltaSeen = false
	s.mu.Unlock()

	for _, f := range futures {
		f.fail(err)
	}
	for _, d := range deltas {
		d.close(err)
	}
}

func (s *Session) logf(format string, args ...any) {
	s.opts.Logger.Printf(format, args...)
}
