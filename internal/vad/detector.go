package vad

import (
	"time"

	"github.com/google/uuid"
)

// Config holds the detector thresholds. Zero values fall back to defaults
// tuned for 20ms PCM frames from a webrtc-style energy detector.
type Config struct {
	// SustainedDuration is how long voice must persist before it counts.
	SustainedDuration time.Duration
	// AmnestyPeriod tolerates one short silence right at speech onset.
	AmnestyPeriod time.Duration
	// VoiceSilenceThreshold ends the voice-detected window.
	VoiceSilenceThreshold time.Duration
	// SpeechSilenceThreshold ends an active speech segment.
	SpeechSilenceThreshold time.Duration
}

func (c Config) withDefaults() Config {
	if c.SustainedDuration <= 0 {
		c.SustainedDuration = 300 * time.Millisecond
	}
	if c.AmnestyPeriod <= 0 {
		c.AmnestyPeriod = 2 * time.Second
	}
	if c.VoiceSilenceThreshold <= 0 {
		c.VoiceSilenceThreshold = 700 * time.Millisecond
	}
	if c.SpeechSilenceThreshold <= 0 {
		c.SpeechSilenceThreshold = 1200 * time.Millisecond
	}
	return c
}

type EventKind string

const (
	EventSpeechStarted EventKind = "speech_started"
	EventSpeechEnded   EventKind = "speech_ended"
)

// Event marks a speech boundary. SpeechID is stable for the whole segment.
type Event struct {
	Kind     EventKind
	SpeechID string
	At       time.Time
	BeganAt  time.Time
}

// Detector turns a per-frame voice-presence signal into discrete speech
// segments. It is invoked synchronously on the capture path, holds no locks,
// and does O(1) work per frame. Not safe for concurrent use.
type Detector struct {
	cfg Config

	speechID      string
	voiceFirstAt  time.Time
	voiceLastAt   time.Time
	speechBeganAt time.Time

	voiceCaptured  bool
	voiceDetected  bool
	speechDetected bool
}

func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg.withDefaults()}
}

// VoiceDetected reports whether sustained voice is currently present.
func (d *Detector) VoiceDetected() bool { return d.voiceDetected }

// SpeechDetected reports whether a speech segment is open.
func (d *Detector) SpeechDetected() bool { return d.speechDetected }

// SpeechID returns the identifier of the current (or last) segment.
func (d *Detector) SpeechID() string { return d.speechID }

// Observe processes one frame and returns a boundary event when one fires.
func (d *Detector) Observe(voicePresent bool, now time.Time) (Event, bool) {
	if voicePresent {
		return d.observeVoice(now)
	}
	return d.observeSilence(now)
}

func (d *Detector) observeVoice(now time.Time) (Event, bool) {
	if !d.voiceCaptured {
		d.voiceFirstAt = now
	}
	d.voiceCaptured = true
	d.voiceLastAt = now

	if now.Sub(d.voiceFirstAt) < d.cfg.SustainedDuration {
		return Event{}, false
	}
	d.voiceDetected = true
	if d.speechDetected {
		return Event{}, false
	}

	d.speechDetected = true
	d.speechID = uuid.NewString()
	if d.speechBeganAt.IsZero() {
		d.speechBeganAt = d.voiceLastAt
	}
	return Event{
		Kind:     EventSpeechStarted,
		SpeechID: d.speechID,
		At:       now,
		BeganAt:  d.speechBeganAt,
	}, true
}

func (d *Detector) observeSilence(now time.Time) (Event, bool) {
	silence := now.Sub(d.voiceLastAt)
	// The opening frame of a segment gets the amnesty window instead of the
	// regular speech-silence threshold: detectors often flag a false start
	// and go quiet for a beat right after onset.
	openingFrame := !d.speechBeganAt.IsZero() && d.speechBeganAt.Equal(d.voiceLastAt)

	var (
		ev    Event
		fired bool
	)

	speechExpired := !openingFrame && silence > d.cfg.SpeechSilenceThreshold
	amnestyExpired := openingFrame && silence > d.cfg.AmnestyPeriod
	if d.speechDetected && (speechExpired || amnestyExpired) {
		d.voiceDetected = false
		d.speechDetected = false
		d.speechBeganAt = time.Time{}
		ev = Event{Kind: EventSpeechEnded, SpeechID: d.speechID, At: now}
		fired = true
	} else if d.voiceDetected && !openingFrame && silence > d.cfg.VoiceSilenceThreshold {
		d.voiceDetected = false
	}

	d.voiceFirstAt = time.Time{}
	d.voiceCaptured = false
	return ev, fired
}

// Reset clears all state, discarding any open segment without emitting an
// end event. Used when the owning capture session is torn down.
func (d *Detector) Reset() {
	d.speechID = ""
	d.voiceFirstAt = time.Time{}
	d.voiceLastAt = time.Time{}
	d.speechBeganAt = time.Time{}
	d.voiceCaptured = false
	d.voiceDetected = false
	d.speechDetected = false
}
