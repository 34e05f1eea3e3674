package main

import (
	"bufio"
	"encoding/binary"
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mgriva/voxbridge/internal/audio"
	"github.com/mgriva/voxbridge/internal/vad"
)

// voxprobe replays a voice-presence trace through the detector offline and
// prints the speech segments it produces. Traces come from an inline spec,
// a step file, or a WAV recording run through the energy gate. Useful for
// tuning thresholds against real captures without a live client.

type options struct {
	trace      string
	traceFile  string
	wavFile    string
	emitWAV    string
	frameMS    int
	sampleRate int
	energy     float64
	sustain    time.Duration
	amnesty    time.Duration
	voiceSil   time.Duration
	speechSil  time.Duration
	verbose    bool
}

type segment struct {
	SpeechID string
	StartOff time.Duration
	EndOff   time.Duration
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxprobe: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "voxprobe: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var cfg options
	var sustainMS, amnestyMS, voiceSilMS, speechSilMS int

	flag.StringVar(&cfg.trace, "trace", "", "inline trace, e.g. 'v:400,s:200,v:1500,s:2000' (v=voice, s=silence, ms)")
	flag.StringVar(&cfg.traceFile, "trace-file", "", "file with one trace step per line")
	flag.StringVar(&cfg.wavFile, "wav", "", "16-bit mono PCM WAV file to gate into a trace")
	flag.StringVar(&cfg.emitWAV, "emit-wav", "", "write the loaded trace as a synthetic WAV file")
	flag.IntVar(&cfg.frameMS, "frame-ms", 20, "frame duration in milliseconds")
	flag.IntVar(&cfg.sampleRate, "sample-rate", 16000, "sample rate for -emit-wav output")
	flag.Float64Var(&cfg.energy, "energy-threshold", 0.02, "RMS level treated as voice when gating a WAV")
	flag.IntVar(&sustainMS, "sustain-ms", 300, "sustained voice required to open a segment")
	flag.IntVar(&amnestyMS, "amnesty-ms", 2000, "silence tolerated right at segment onset")
	flag.IntVar(&voiceSilMS, "voice-silence-ms", 700, "silence that clears the voice flag")
	flag.IntVar(&speechSilMS, "speech-silence-ms", 1200, "silence that closes a segment")
	flag.BoolVar(&cfg.verbose, "verbose", false, "print every boundary event as it fires")
	flag.Parse()

	sources := 0
	for _, s := range []string{cfg.trace, cfg.traceFile, cfg.wavFile} {
		if s != "" {
			sources++
		}
	}
	if sources != 1 {
		return options{}, fmt.Errorf("exactly one of -trace, -trace-file or -wav is required")
	}
	if cfg.frameMS < 1 || cfg.frameMS > 1000 {
		return options{}, fmt.Errorf("frame-ms must be in [1,1000]")
	}
	if cfg.sampleRate < 8000 || cfg.sampleRate > 48000 {
		return options{}, fmt.Errorf("sample-rate must be in [8000,48000]")
	}
	cfg.sustain = time.Duration(sustainMS) * time.Millisecond
	cfg.amnesty = time.Duration(amnestyMS) * time.Millisecond
	cfg.voiceSil = time.Duration(voiceSilMS) * time.Millisecond
	cfg.speechSil = time.Duration(speechSilMS) * time.Millisecond
	return cfg, nil
}

func run(cfg options) error {
	steps, err := loadTrace(cfg)
	if err != nil {
		return err
	}

	if cfg.emitWAV != "" {
		pcm := synthesizePCM(steps, cfg.sampleRate)
		if err := audio.WriteWAVPCM16LEFile(cfg.emitWAV, pcm, cfg.sampleRate); err != nil {
			return fmt.Errorf("write %s: %w", cfg.emitWAV, err)
		}
		fmt.Printf("wrote %s (%d samples)\n", cfg.emitWAV, len(pcm)/2)
	}

	segments := replay(steps, cfg, func(ev vad.Event, off time.Duration) {
		if cfg.verbose {
			fmt.Printf("%8s  %s  %s\n", off.Round(time.Millisecond), ev.Kind, ev.SpeechID)
		}
	})

	if len(segments) == 0 {
		fmt.Println("no speech segments detected")
		return nil
	}
	fmt.Printf("%-38s %10s %10s %10s\n", "speech_id", "start", "end", "duration")
	for _, seg := range segments {
		end := "open"
		dur := "-"
		if seg.EndOff > 0 {
			end = seg.EndOff.Round(time.Millisecond).String()
			dur = (seg.EndOff - seg.StartOff).Round(time.Millisecond).String()
		}
		fmt.Printf("%-38s %10s %10s %10s\n", seg.SpeechID, seg.StartOff.Round(time.Millisecond), end, dur)
	}
	return nil
}

// replay feeds the trace through a detector using a synthetic clock, one
// frame at a time.
func replay(steps []traceStep, cfg options, onEvent func(vad.Event, time.Duration)) []segment {
	det := vad.NewDetector(vad.Config{
		SustainedDuration:      cfg.sustain,
		AmnestyPeriod:          cfg.amnesty,
		VoiceSilenceThreshold:  cfg.voiceSil,
		SpeechSilenceThreshold: cfg.speechSil,
	})

	frame := time.Duration(cfg.frameMS) * time.Millisecond
	base := time.Unix(0, 0)
	var (
		off      time.Duration
		segments []segment
	)
	for _, step := range steps {
		for elapsed := time.Duration(0); elapsed < step.duration; elapsed += frame {
			ev, fired := det.Observe(step.voice, base.Add(off))
			if fired {
				if onEvent != nil {
					onEvent(ev, off)
				}
				switch ev.Kind {
				case vad.EventSpeechStarted:
					segments = append(segments, segment{SpeechID: ev.SpeechID, StartOff: off})
				case vad.EventSpeechEnded:
					for i := len(segments) - 1; i >= 0; i-- {
						if segments[i].SpeechID == ev.SpeechID {
							segments[i].EndOff = off
							break
						}
					}
				}
			}
			off += frame
		}
	}
	return segments
}

type traceStep struct {
	voice    bool
	duration time.Duration
}

func loadTrace(cfg options) ([]traceStep, error) {
	switch {
	case cfg.trace != "":
		return parseTrace(strings.Split(cfg.trace, ","))
	case cfg.wavFile != "":
		return traceFromWAV(cfg)
	}

	f, err := os.Open(cfg.traceFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var parts []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts = append(parts, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return parseTrace(parts)
}

// traceFromWAV gates a recording into voice/silence steps using per-frame
// RMS energy.
func traceFromWAV(cfg options) ([]traceStep, error) {
	f, err := os.Open(cfg.wavFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pcm, rate, err := audio.DecodeWAVPCM16LE(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", cfg.wavFile, err)
	}

	frameDur := time.Duration(cfg.frameMS) * time.Millisecond
	frameBytes := rate * cfg.frameMS / 1000 * 2
	if frameBytes == 0 {
		return nil, fmt.Errorf("frame-ms %d too small for sample rate %d", cfg.frameMS, rate)
	}

	var steps []traceStep
	for off := 0; off < len(pcm); off += frameBytes {
		end := off + frameBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		voiced := audio.VoicePresent(pcm[off:end], cfg.energy)
		if n := len(steps); n > 0 && steps[n-1].voice == voiced {
			steps[n-1].duration += frameDur
			continue
		}
		steps = append(steps, traceStep{voice: voiced, duration: frameDur})
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("no audio frames in %s", cfg.wavFile)
	}
	return steps, nil
}

// synthesizePCM renders a trace as audio: a 220 Hz tone for voiced steps,
// silence otherwise.
func synthesizePCM(steps []traceStep, rate int) []byte {
	var (
		out   []byte
		phase float64
	)
	inc := 2 * math.Pi * 220 / float64(rate)
	for _, step := range steps {
		n := int(step.duration.Seconds() * float64(rate))
		for i := 0; i < n; i++ {
			var s int16
			if step.voice {
				s = int16(0.3 * 32767 * math.Sin(phase))
				phase += inc
			}
			out = binary.LittleEndian.AppendUint16(out, uint16(s))
		}
	}
	return out
}

// parseTrace turns step tokens like "v:400" or "s:1200" into trace steps.
func parseTrace(tokens []string) ([]traceStep, error) {
	steps := make([]traceStep, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		kind, msRaw, ok := strings.Cut(tok, ":")
		if !ok {
			return nil, fmt.Errorf("bad trace step %q (want v:<ms> or s:<ms>)", tok)
		}
		ms, err := strconv.Atoi(strings.TrimSpace(msRaw))
		if err != nil || ms <= 0 {
			return nil, fmt.Errorf("bad duration in trace step %q", tok)
		}
		var voice bool
		switch strings.ToLower(strings.TrimSpace(kind)) {
		case "v", "voice":
			voice = true
		case "s", "silence":
			voice = false
		default:
			return nil, fmt.Errorf("bad kind in trace step %q (want v or s)", tok)
		}
		steps = append(steps, traceStep{voice: voice, duration: time.Duration(ms) * time.Millisecond})
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("empty trace")
	}
	return steps, nil
}
