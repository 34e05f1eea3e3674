package audio

import (
	"encoding/binary"
	"math"
)

// FrameRMS returns the root-mean-square level of a PCM16LE frame,
// normalized to [0,1]. A trailing odd byte is ignored.
func FrameRMS(frame []byte) float64 {
	n := len(frame) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(frame[2*i:]))
		v := float64(s) / 32768
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// VoicePresent reports whether a frame's energy clears the threshold.
// It is a deliberately crude gate for clients and offline tools that have
// no proper VAD of their own.
func VoicePresent(frame []byte, threshold float64) bool {
	return FrameRMS(frame) >= threshold
}
