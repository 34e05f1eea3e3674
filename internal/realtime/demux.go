package realtime

import (
	"time"

	"github.com/mgriva/voxbridge/internal/reliability"
	"github.com/mgriva/voxbridge/internal/rtproto"
)

// handleEvent classifies one inbound event and routes it to the in-flight
// operation it belongs to. Called only from the read loop; any processing
// failure is logged and the loop moves on. New event types get new cases
// here without touching existing ones.
func (s *Session) handleEvent(ev rtproto.ServerEvent) {
	if s.opts.OnEvent != nil {
		s.opts.OnEvent(string(ev.Type))
	}

	switch ev.Type {
	case rtproto.TypeError:
		s.handleError(ev)

	case rtproto.TypeSessionCreated, rtproto.TypeSessionUpdated, rtproto.TypeInputCommitted:
		// Acknowledgements; the reconciler already tracks what it pushed.

	case rtproto.TypeResponseCreated:
		s.assignResponseID(ev.ResponseID)

	case rtproto.TypeToolArgsDelta:
		s.mu.Lock()
		a := s.toolCalls[ev.CallID]
		if a == nil {
			a = newToolCallAssembler(ev.CallID)
			s.toolCalls[ev.CallID] = a
		}
		a.appendDelta(ev.Name, ev.Delta)
		s.mu.Unlock()

	case rtproto.TypeToolArgsDone:
		s.finishToolCall(ev)

	case rtproto.TypeResponseAudioDelta:
		s.mu.Lock()
		key := audioClipKey(ev)
		a := s.audioClips[key]
		if a == nil {
			a = newAudioClipAssembler(key)
			s.audioClips[key] = a
		}
		err := a.appendBase64(ev.Delta)
		s.mu.Unlock()
		if err != nil {
			s.logf("realtime: bad audio delta for %s: %v", key, err)
		}

	case rtproto.TypeResponseAudioDone:
		s.finishAudioClip(audioClipKey(ev))

	case rtproto.TypeSpeechStarted:
		// The user is talking over playback: stop it.
		s.StopAllAudio()
		if s.opts.OnBargeIn != nil {
			s.opts.OnBargeIn()
		}

	case rtproto.TypeSpeechStopped:
		s.mu.Lock()
		s.speechStoppedAt = time.Now()
		s.firstDeltaSeen = false
		s.mu.Unlock()

	case rtproto.TypeResponseTextDelta:
		s.routeDelta(ev.ResponseID, ev.Delta)

	case rtproto.TypeTranscriptDone:
		s.completeResponse(ev.ResponseID, ev.Transcript)

	case rtproto.TypeResponseTextDone:
		text := ev.Text
		if text == "" {
			text = ev.Delta
		}
		s.completeResponse(ev.ResponseID, text)

	case rtproto.TypeResponseDone:
		s.finishResponse(ev)

	default:
		// Unknown event types are fine; vendors add them constantly.
	}
}

func (s *Session) handleError(ev rtproto.ServerEvent) {
	var code, msg string
	if ev.Error != nil {
		code, msg = ev.Error.Code, ev.Error.Message
	}
	if reliability.IsBenignRealtimeError(code, msg) {
		s.logf("realtime: benign backend error %s: %s", code, msg)
		return
	}
	s.logf("realtime: backend error %s: %s", code, msg)
	if s.opts.OnWarning != nil {
		s.opts.OnWarning(code, msg)
	}
}

func (s *Session) finishToolCall(ev rtproto.ServerEvent) {
	s.mu.Lock()
	a := s.toolCalls[ev.CallID]
	if a == nil {
		a = newToolCallAssembler(ev.CallID)
		s.toolCalls[ev.CallID] = a
	}
	name, args := a.finalize(ev.Name, ev.Arguments)
	s.mu.Unlock()

	if s.opts.OnToolCall != nil {
		if err := s.opts.OnToolCall(name, args); err != nil {
			// Keep the assembler in flight so the failure is visible and a
			// replayed done event can finalize again.
			s.logf("realtime: tool call %s failed: %v", name, err)
			return
		}
	}
	s.mu.Lock()
	delete(s.toolCalls, ev.CallID)
	s.mu.Unlock()
}

func (s *Session) finishAudioClip(key string) {
	s.mu.Lock()
	a := s.audioClips[key]
	s.mu.Unlock()
	if a == nil {
		return
	}

	if s.opts.OnAudioClip != nil {
		if err := s.opts.OnAudioClip(key, a.finalize()); err != nil {
			s.logf("realtime: audio clip %s playback failed: %v", key, err)
			return
		}
	}
	s.mu.Lock()
	delete(s.audioClips, key)
	s.mu.Unlock()
}

// assignResponseID attaches a backend response id to the oldest unassigned
// pending futures, so later done events can correlate by id instead of
// relying purely on FIFO order.
func (s *Session) assignResponseID(responseID string) {
	if responseID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.pendingText {
		if f.responseID == "" {
			f.responseID = responseID
			break
		}
	}
	for _, d := range s.pendingDeltas {
		if d.responseID == "" {
			d.responseID = responseID
			break
		}
	}
}

// completeResponse resolves the pending future for a finished response.
// Matching prefers the backend response id; FIFO order is the fallback for
// backends that never issue ids.
func (s *Session) completeResponse(responseID, text string) {
	fut, stoppedAt := s.takePending(responseID)
	if fut == nil {
		return
	}
	fut.complete(text)
	if !stoppedAt.IsZero() {
		s.opts.Sink.ObserveLatency("speech_stop_to_final_text", time.Since(stoppedAt))
	}
}

func (s *Session) takePending(responseID string) (*Response, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if responseID != "" {
		// A transcript-done plus a text-done (or a response.done after
		// either) must consume one future, not two.
		if s.completedIDs[responseID] {
			return nil, time.Time{}
		}
		if len(s.completedIDs) > 1024 {
			s.completedIDs = make(map[string]bool)
		}
		s.completedIDs[responseID] = true
	}
	if len(s.pendingText) == 0 {
		return nil, time.Time{}
	}
	idx := -1
	if responseID != "" {
		anyAssigned := false
		for i, f := range s.pendingText {
			if f.responseID != "" {
				anyAssigned = true
			}
			if f.responseID == responseID {
				idx = i
				break
			}
		}
		if idx < 0 && anyAssigned {
			// Ids are in play and none matches: this completion belongs to
			// a response we no longer track.
			return nil, time.Time{}
		}
	}
	if idx < 0 {
		idx = 0
	}
	fut := s.pendingText[idx]
	s.pendingText = append(s.pendingText[:idx], s.pendingText[idx+1:]...)
	return fut, s.speechStoppedAt
}

func (s *Session) routeDelta(responseID, delta string) {
	if delta == "" {
		return
	}
	s.mu.Lock()
	var target *DeltaStream
	for _, d := range s.pendingDeltas {
		if responseID != "" && d.responseID == responseID {
			target = d
			break
		}
	}
	if target == nil && len(s.pendingDeltas) > 0 {
		target = s.pendingDeltas[0]
	}
	stoppedAt := s.speechStoppedAt
	first := !s.firstDeltaSeen
	s.firstDeltaSeen = true
	s.mu.Unlock()

	if target != nil {
		target.push(delta)
	}
	if first && !stoppedAt.IsZero() {
		s.opts.Sink.ObserveLatency("speech_stop_to_first_delta", time.Since(stoppedAt))
	}
}

func (s *Session) finishResponse(ev rtproto.ServerEvent) {
	// A response that produced only tool calls never emits text.done; the
	// done event still has to resolve its future so callers never block.
	s.completeResponse(ev.ResponseID, ev.Text)

	s.mu.Lock()
	var ds *DeltaStream
	idx := -1
	for i, d := range s.pendingDeltas {
		if ev.ResponseID != "" && d.responseID == ev.ResponseID {
			idx = i
			break
		}
	}
	if idx < 0 && ev.ResponseID == "" && len(s.pendingDeltas) > 0 {
		idx = 0
	}
	if idx >= 0 {
		ds = s.pendingDeltas[idx]
		s.pendingDeltas = append(s.pendingDeltas[:idx], s.pendingDeltas[idx+1:]...)
	}
	stoppedAt := s.speechStoppedAt
	s.mu.Unlock()

	if ds != nil {
		ds.close(nil)
	}
	if !stoppedAt.IsZero() {
		s.opts.Sink.ObserveLatency("speech_stop_to_response_done", time.Since(stoppedAt))
	}
	if ev.Usage != nil {
		usd := float64(ev.Usage.InputTokens)/1e6*s.opts.InputUSDPerMTok +
			float64(ev.Usage.OutputTokens)/1e6*s.opts.OutputUSDPerMTok
		if usd > 0 {
			s.opts.Sink.ObserveCost(usd)
		}
	}
}

func audioClipKey(ev rtproto.ServerEvent) string {
	if ev.ItemID != "" {
		return ev.ItemID
	}
	return ev.ResponseID
}
