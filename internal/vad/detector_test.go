package vad

import (
	"testing"
	"time"
)

var testCfg = Config{
	SustainedDuration:      300 * time.Millisecond,
	AmnestyPeriod:          2 * time.Second,
	VoiceSilenceThreshold:  700 * time.Millisecond,
	SpeechSilenceThreshold: 1200 * time.Millisecond,
}

const frameStep = 20 * time.Millisecond

func feed(d *Detector, start time.Time, voice bool, dur time.Duration) ([]Event, time.Time) {
	var events []Event
	now := start
	for elapsed := time.Duration(0); elapsed <= dur; elapsed += frameStep {
		if ev, ok := d.Observe(voice, now); ok {
			events = append(events, ev)
		}
		now = now.Add(frameStep)
	}
	return events, now
}

func TestSustainedVoiceStartsSpeechExactlyOnce(t *testing.T) {
	d := NewDetector(testCfg)
	start := time.Unix(1700000000, 0)

	events, _ := feed(d, start, true, 2*time.Second)

	if len(events) != 1 {
		t.Fatalf("events = %d, want exactly 1 speech start", len(events))
	}
	if events[0].Kind != EventSpeechStarted {
		t.Fatalf("Kind = %q, want %q", events[0].Kind, EventSpeechStarted)
	}
	if events[0].SpeechID == "" {
		t.Fatalf("SpeechID is empty, want minted id")
	}
	if !d.SpeechDetected() {
		t.Fatalf("SpeechDetected() = false, want true")
	}
	if !d.VoiceDetected() {
		t.Fatalf("VoiceDetected() = false, want true")
	}
	if got := events[0].At.Sub(start); got < testCfg.SustainedDuration {
		t.Fatalf("speech started after %s, want >= %s", got, testCfg.SustainedDuration)
	}
}

func TestShortNoiseSpikeDoesNotStartSpeech(t *testing.T) {
	d := NewDetector(testCfg)
	now := time.Unix(1700000000, 0)

	// 100ms of voice is below the sustain window.
	events, now := feed(d, now, true, 100*time.Millisecond)
	if len(events) != 0 {
		t.Fatalf("events = %d, want 0 during sub-sustain voice", len(events))
	}
	events, _ = feed(d, now, false, time.Second)
	if len(events) != 0 {
		t.Fatalf("events = %d, want 0 after noise spike", len(events))
	}
	if d.SpeechDetected() {
		t.Fatalf("SpeechDetected() = true, want false")
	}
}

func TestSpeechEndsAfterSpeechSilenceThreshold(t *testing.T) {
	d := NewDetector(testCfg)
	now := time.Unix(1700000000, 0)

	// Talk long enough that speechBeganAt != voiceLastDetectedAt.
	startEvents, now := feed(d, now, true, 2*time.Second)
	if len(startEvents) != 1 {
		t.Fatalf("start events = %d, want 1", len(startEvents))
	}
	speechID := startEvents[0].SpeechID

	endEvents, _ := feed(d, now, false, testCfg.SpeechSilenceThreshold+100*time.Millisecond)
	if len(endEvents) != 1 {
		t.Fatalf("end events = %d, want 1", len(endEvents))
	}
	if endEvents[0].Kind != EventSpeechEnded {
		t.Fatalf("Kind = %q, want %q", endEvents[0].Kind, EventSpeechEnded)
	}
	if endEvents[0].SpeechID != speechID {
		t.Fatalf("end SpeechID = %q, want %q", endEvents[0].SpeechID, speechID)
	}
	if d.SpeechDetected() {
		t.Fatalf("SpeechDetected() = true after end, want false")
	}
	if d.VoiceDetected() {
		t.Fatalf("VoiceDetected() = true after end, want false")
	}
}

func TestAmnestyWindowAtSpeechOnset(t *testing.T) {
	d := NewDetector(testCfg)
	now := time.Unix(1700000000, 0)

	// Feed exactly enough voice to cross the sustain window, then go silent
	// on the very next frame so speechBeganAt == voiceLastDetectedAt.
	var started bool
	for !started {
		if _, ok := d.Observe(true, now); ok {
			started = true
		}
		now = now.Add(frameStep)
	}

	// Silence past the speech threshold but inside the amnesty window must
	// keep the segment open.
	events, now := feed(d, now, false, testCfg.SpeechSilenceThreshold+200*time.Millisecond)
	if len(events) != 0 {
		t.Fatalf("events = %d, want 0 inside amnesty window", len(events))
	}
	if !d.SpeechDetected() {
		t.Fatalf("SpeechDetected() = false inside amnesty window, want true")
	}

	events, _ = feed(d, now, false, testCfg.AmnestyPeriod)
	if len(events) != 1 || events[0].Kind != EventSpeechEnded {
		t.Fatalf("events = %v, want single speech end after amnesty elapses", events)
	}
}

func TestFreshSpeechIDPerRisingEdge(t *testing.T) {
	d := NewDetector(testCfg)
	now := time.Unix(1700000000, 0)

	var ids []string
	for i := 0; i < 3; i++ {
		events, next := feed(d, now, true, 2*time.Second)
		if len(events) != 1 {
			t.Fatalf("segment %d: start events = %d, want 1", i, len(events))
		}
		ids = append(ids, events[0].SpeechID)
		_, next = feed(d, next, false, testCfg.SpeechSilenceThreshold+3*time.Second)
		now = next
	}

	seen := map[string]bool{}
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("SpeechID %q reused across segments", id)
		}
		seen[id] = true
	}
}

func TestVoiceExitClearsVoiceOnly(t *testing.T) {
	d := NewDetector(testCfg)
	now := time.Unix(1700000000, 0)

	_, now = feed(d, now, true, 2*time.Second)

	// Between the voice and speech silence thresholds: voice drops, speech
	// segment stays open.
	_, _ = feed(d, now, false, testCfg.VoiceSilenceThreshold+100*time.Millisecond)
	if d.VoiceDetected() {
		t.Fatalf("VoiceDetected() = true, want false after voice silence")
	}
	if !d.SpeechDetected() {
		t.Fatalf("SpeechDetected() = false, want true before speech silence")
	}
}

func TestResetDiscardsOpenSegment(t *testing.T) {
	d := NewDetector(testCfg)
	now := time.Unix(1700000000, 0)
	_, now = feed(d, now, true, 2*time.Second)

	d.Reset()
	if d.SpeechDetected() || d.VoiceDetected() {
		t.Fatalf("detector still active after Reset")
	}
	if events, _ := feed(d, now, false, 5*time.Second); len(events) != 0 {
		t.Fatalf("events after Reset = %d, want 0", len(events))
	}
}
