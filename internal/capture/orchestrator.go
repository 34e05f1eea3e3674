package capture

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/mgriva/voxbridge/internal/llm"
	"github.com/mgriva/voxbridge/internal/observability"
	"github.com/mgriva/voxbridge/internal/parse"
	"github.com/mgriva/voxbridge/internal/policy"
	"github.com/mgriva/voxbridge/internal/protocol"
	"github.com/mgriva/voxbridge/internal/realtime"
	"github.com/mgriva/voxbridge/internal/rtproto"
	"github.com/mgriva/voxbridge/internal/session"
	"github.com/mgriva/voxbridge/internal/tools"
	"github.com/mgriva/voxbridge/internal/transcript"
	"github.com/mgriva/voxbridge/internal/vad"
)

// Config holds the per-connection pipeline settings.
type Config struct {
	RealtimeURL    string
	RealtimeAPIKey string
	Model          string
	Voice          string
	Instructions   string

	ConnectAttempts   int
	ConnectTimeout    time.Duration
	ReconcileInterval time.Duration

	InputUSDPerMTok  float64
	OutputUSDPerMTok float64

	VAD vad.Config
}

// Orchestrator drives one capture connection: client audio in, detector
// boundaries, realtime backend turns, assistant output back out. Each
// websocket connection gets its own realtime session.
type Orchestrator struct {
	sessions *session.Manager
	registry *tools.Registry
	fallback llm.Client
	store    transcript.Store
	metrics  *observability.Metrics
	sink     realtime.UsageSink
	dialer   realtime.Dialer
	cfg      Config
	logger   *log.Logger
}

func NewOrchestrator(
	sessions *session.Manager,
	registry *tools.Registry,
	fallback llm.Client,
	store transcript.Store,
	metrics *observability.Metrics,
	sink realtime.UsageSink,
	dialer realtime.Dialer,
	cfg Config,
	logger *log.Logger,
) *Orchestrator {
	if logger == nil {
		logger = log.Default()
	}
	if dialer == nil {
		dialer = realtime.WSDialer{}
	}
	if sink == nil {
		sink = realtime.NopSink{}
	}
	return &Orchestrator{
		sessions: sessions,
		registry: registry,
		fallback: fallback,
		store:    store,
		metrics:  metrics,
		sink:     sink,
		dialer:   dialer,
		cfg:      cfg,
		logger:   logger,
	}
}

// RunConnection owns the pipeline for one client websocket. It returns when
// inbound closes, the context ends, or the client asks to stop.
func (o *Orchestrator) RunConnection(ctx context.Context, sess *session.Session, inbound <-chan any, outbound chan<- any) error {
	det := vad.NewDetector(o.cfg.VAD)
	send := func(msg any) {
		select {
		case outbound <- msg:
		default:
			// Keep websocket writes single-threaded; drop when saturated.
			o.logger.Printf("capture: outbound queue full for session %s, dropping message", sess.ID)
		}
	}

	rt := realtime.NewSession(o.realtimeOptions(sess, send))
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	rtDone := make(chan error, 1)
	go func() { rtDone <- rt.Run(runCtx) }()
	defer func() {
		rt.Shutdown()
		<-rtDone
		if o.metrics != nil {
			o.metrics.TransportReconnects.Add(float64(rt.Reconnects()))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-inbound:
			if !ok {
				return nil
			}
			switch m := msg.(type) {
			case protocol.ClientAudioChunk:
				o.handleAudioChunk(ctx, sess, det, rt, m, send)
			case protocol.ClientControl:
				if stop := o.handleControl(ctx, sess, det, rt, m, send); stop {
					return nil
				}
			}
		}
	}
}

func (o *Orchestrator) realtimeOptions(sess *session.Session, send func(any)) realtime.Options {
	header := http.Header{}
	if o.cfg.RealtimeAPIKey != "" {
		header.Set("Authorization", "Bearer "+o.cfg.RealtimeAPIKey)
	}
	return realtime.Options{
		Dialer:            o.dialer,
		URL:               o.cfg.RealtimeURL,
		Header:            header,
		ConnectAttempts:   o.cfg.ConnectAttempts,
		ConnectTimeout:    o.cfg.ConnectTimeout,
		ReconcileInterval: o.cfg.ReconcileInterval,
		Desired:           o.desiredDescriptor,
		InputUSDPerMTok:   o.cfg.InputUSDPerMTok,
		OutputUSDPerMTok:  o.cfg.OutputUSDPerMTok,
		Sink:              o.sink,
		Logger:            o.logger,
		OnToolCall: func(name, argsJSON string) error {
			o.dispatchToolCall(sess, name, argsJSON, send)
			return nil
		},
		OnAudioClip: func(id string, audio []byte) error {
			send(protocol.AssistantAudioChunk{
				Type:        protocol.TypeAssistantAudio,
				SessionID:   sess.ID,
				ClipID:      id,
				Format:      "pcm16",
				AudioBase64: base64.StdEncoding.EncodeToString(audio),
			})
			return nil
		},
		OnBargeIn: func() {
			_ = o.sessions.Interrupt(sess.ID)
			if o.metrics != nil {
				o.metrics.Interruptions.Inc()
			}
			send(protocol.SystemEvent{
				Type:      protocol.TypeSystemEvent,
				SessionID: sess.ID,
				Code:      "barge_in",
			})
		},
		OnWarning: func(code, detail string) {
			if o.metrics != nil {
				o.metrics.BackendErrors.WithLabelValues(code).Inc()
			}
			send(protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sess.ID,
				Code:      code,
				Source:    "realtime",
				Retryable: true,
				Detail:    detail,
			})
		},
		OnEvent: func(eventType string) {
			if o.metrics != nil {
				o.metrics.RealtimeEvents.WithLabelValues(eventType).Inc()
			}
		},
	}
}

// desiredDescriptor is recomputed on every reconcile cycle, so registry
// changes flow to the backend without explicit pushes.
func (o *Orchestrator) desiredDescriptor() (rtproto.SessionDescriptor, error) {
	specs := make([]rtproto.ToolSpec, 0)
	for _, schema := range o.registry.All() {
		specs = append(specs, rtproto.ToolSpec{
			Type:        "function",
			Name:        schema.Name,
			Description: schema.Description,
			Parameters:  schema.Parameters,
		})
	}
	return rtproto.SessionDescriptor{
		Model:             o.cfg.Model,
		Instructions:      o.cfg.Instructions,
		Voice:             o.cfg.Voice,
		Modalities:        []string{"text", "audio"},
		InputAudioFormat:  "pcm16",
		OutputAudioFormat: "pcm16",
		Tools:             specs,
	}, nil
}

func (o *Orchestrator) handleAudioChunk(ctx context.Context, sess *session.Session, det *vad.Detector, rt *realtime.Session, chunk protocol.ClientAudioChunk, send func(any)) {
	pcm, err := base64.StdEncoding.DecodeString(chunk.PCM16Base64)
	if err != nil {
		send(protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			SessionID: sess.ID,
			Code:      "invalid_audio",
			Source:    "capture",
			Detail:    err.Error(),
		})
		return
	}
	if err := rt.AppendAudio(pcm); err != nil && !errors.Is(err, realtime.ErrNotConnected) {
		o.logger.Printf("capture: append audio failed: %v", err)
	}
	_ = o.sessions.Touch(sess.ID)

	ev, fired := det.Observe(chunk.Voice, time.Now())
	if !fired {
		return
	}
	switch ev.Kind {
	case vad.EventSpeechStarted:
		_ = o.sessions.StartSpeech(sess.ID, ev.SpeechID)
		if o.metrics != nil {
			o.metrics.SpeechSegments.Inc()
		}
		send(protocol.SpeechStarted{
			Type:      protocol.TypeSpeechStarted,
			SessionID: sess.ID,
			SpeechID:  ev.SpeechID,
			TSMs:      ev.At.UnixMilli(),
		})
	case vad.EventSpeechEnded:
		_ = o.sessions.EndSpeech(sess.ID)
		send(protocol.SpeechEnded{
			Type:      protocol.TypeSpeechEnded,
			SessionID: sess.ID,
			SpeechID:  ev.SpeechID,
			TSMs:      ev.At.UnixMilli(),
		})
		fut, err := rt.CommitUtterance()
		if err != nil {
			send(protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sess.ID,
				Code:      "commit_failed",
				Source:    "realtime",
				Retryable: true,
				Detail:    err.Error(),
			})
			return
		}
		go o.awaitResponse(ctx, sess, ev.SpeechID, fut, send)
	}
}

// handleControl returns true when the connection should end.
func (o *Orchestrator) handleControl(ctx context.Context, sess *session.Session, det *vad.Detector, rt *realtime.Session, ctl protocol.ClientControl, send func(any)) bool {
	switch strings.ToLower(strings.TrimSpace(ctl.Action)) {
	case "stop":
		return true
	case "reset":
		det.Reset()
		rt.StopAllAudio()
		return false
	case "send_text":
		o.handleText(ctx, sess, rt, ctl.Text, send)
		return false
	default:
		send(protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			SessionID: sess.ID,
			Code:      "unknown_action",
			Source:    "capture",
			Detail:    ctl.Action,
		})
		return false
	}
}

// handleText answers a typed turn. The realtime channel is preferred; when
// it is down the fallback completion client answers instead.
func (o *Orchestrator) handleText(ctx context.Context, sess *session.Session, rt *realtime.Session, text string, send func(any)) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	o.saveTurn(ctx, sess, "", "user", text)

	ds, fut, err := rt.SendTextStreaming(text)
	if err == nil {
		go func() {
			for delta := range ds.Deltas() {
				send(protocol.AssistantTextDelta{
					Type:      protocol.TypeAssistantTextDelta,
					SessionID: sess.ID,
					TextDelta: delta,
				})
			}
		}()
		go o.awaitResponse(ctx, sess, "", fut, send)
		return
	}
	if !errors.Is(err, realtime.ErrNotConnected) || o.fallback == nil {
		send(protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			SessionID: sess.ID,
			Code:      "send_failed",
			Source:    "realtime",
			Retryable: true,
			Detail:    err.Error(),
		})
		return
	}

	go func() {
		resp, err := o.fallback.StreamCompletion(ctx, llm.Request{
			SessionID:    sess.ID,
			Input:        text,
			Context:      o.recentContext(ctx, sess),
			Instructions: o.cfg.Instructions,
		}, func(delta string) error {
			send(protocol.AssistantTextDelta{
				Type:      protocol.TypeAssistantTextDelta,
				SessionID: sess.ID,
				TextDelta: delta,
			})
			return nil
		})
		if err != nil {
			send(protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sess.ID,
				Code:      "fallback_failed",
				Source:    "llm",
				Retryable: true,
				Detail:    err.Error(),
			})
			return
		}
		o.deliverAssistantText(ctx, sess, "", resp.Text, send)
	}()
}

func (o *Orchestrator) awaitResponse(ctx context.Context, sess *session.Session, speechID string, fut *realtime.Response, send func(any)) {
	text, err := fut.Await(ctx)
	if err != nil {
		if errors.Is(err, realtime.ErrCorrelationAbandoned) {
			send(protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sess.ID,
				Code:      "response_abandoned",
				Source:    "realtime",
				Retryable: true,
				Detail:    "connection lost before the response completed",
			})
		}
		return
	}
	o.deliverAssistantText(ctx, sess, speechID, text, send)
}

// deliverAssistantText runs the parser cascade over a completed response and
// fans the resulting tool calls out to the client.
func (o *Orchestrator) deliverAssistantText(ctx context.Context, sess *session.Session, speechID, text string, send func(any)) {
	calls := parse.ExtractToolCalls(parse.ModelResponse{Text: text}, o.registry.Names())
	for _, call := range calls {
		if call.Name == tools.SpeakToolName {
			spoken := speakText(call.Arguments)
			send(protocol.AssistantTurnEnd{
				Type:      protocol.TypeAssistantTurnEnd,
				SessionID: sess.ID,
				SpeechID:  speechID,
				Text:      spoken,
				Reason:    "completed",
			})
			o.saveTurn(ctx, sess, speechID, "assistant", spoken)
			continue
		}
		o.dispatchToolCall(sess, call.Name, call.Arguments, send)
	}
}

func (o *Orchestrator) dispatchToolCall(sess *session.Session, name, argsJSON string, send func(any)) {
	decision := policy.DecideToolCall(name, argsJSON)
	if decision.Blocked {
		send(protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			SessionID: sess.ID,
			Code:      "tool_call_blocked",
			Source:    "policy",
			Detail:    decision.Reason,
		})
		return
	}
	send(protocol.ToolCall{
		Type:             protocol.TypeToolCall,
		SessionID:        sess.ID,
		Name:             name,
		ArgumentsJSON:    argsJSON,
		Risk:             decision.Risk,
		RequiresApproval: decision.RequiresApproval,
	})
	o.saveTurn(context.Background(), sess, "", "tool", name+" "+argsJSON)
}

func (o *Orchestrator) saveTurn(ctx context.Context, sess *session.Session, speechID, role, content string) {
	if o.store == nil || strings.TrimSpace(content) == "" {
		return
	}
	redacted, changed := policy.RedactSecrets(content)
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	err := o.store.SaveTurn(saveCtx, transcript.Turn{
		WorkspaceID: sess.WorkspaceID,
		SessionID:   sess.ID,
		SpeechID:    speechID,
		Role:        role,
		Content:     redacted,
		Redacted:    changed,
	})
	if err != nil {
		o.logger.Printf("capture: save transcript turn failed: %v", err)
	}
}

func (o *Orchestrator) recentContext(ctx context.Context, sess *session.Session) []string {
	if o.store == nil {
		return nil
	}
	turns, err := o.store.RecentTurns(ctx, sess.WorkspaceID, 8)
	if err != nil {
		o.logger.Printf("capture: recent turns lookup failed: %v", err)
		return nil
	}
	out := make([]string, 0, len(turns))
	for _, t := range turns {
		out = append(out, t.Role+": "+t.Content)
	}
	return out
}

func speakText(argsJSON string) string {
	var payload struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(argsJSON), &payload); err == nil && payload.Text != "" {
		return payload.Text
	}
	return argsJSON
}
