package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// WAV container support for the only format the pipeline speaks: 16-bit
// little-endian mono PCM.

type wavHeader struct {
	RIFF     [4]byte
	RIFFSize uint32
	WAVE     [4]byte
	FmtID    [4]byte
	FmtSize  uint32
	Format   uint16
	Channels uint16
	Rate     uint32
	ByteRate uint32
	Align    uint16
	Bits     uint16
	DataID   [4]byte
	DataSize uint32
}

// EncodeWAVPCM16LE wraps raw PCM16LE mono samples in a WAV container.
func EncodeWAVPCM16LE(pcm []byte, sampleRate int) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteWAVPCM16LETo(&buf, pcm, sampleRate); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteWAVPCM16LEFile writes raw PCM16LE mono samples to path as a WAV file.
func WriteWAVPCM16LEFile(path string, pcm []byte, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteWAVPCM16LETo(f, pcm, sampleRate); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteWAVPCM16LETo streams a WAV rendering of pcm to out.
func WriteWAVPCM16LETo(out io.Writer, pcm []byte, sampleRate int) error {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	hdr := wavHeader{
		RIFF:     [4]byte{'R', 'I', 'F', 'F'},
		RIFFSize: 36 + uint32(len(pcm)),
		WAVE:     [4]byte{'W', 'A', 'V', 'E'},
		FmtID:    [4]byte{'f', 'm', 't', ' '},
		FmtSize:  16,
		Format:   1, // PCM
		Channels: 1,
		Rate:     uint32(sampleRate),
		ByteRate: uint32(sampleRate * 2),
		Align:    2,
		Bits:     16,
		DataID:   [4]byte{'d', 'a', 't', 'a'},
		DataSize: uint32(len(pcm)),
	}
	if err := binary.Write(out, binary.LittleEndian, hdr); err != nil {
		return err
	}
	_, err := out.Write(pcm)
	return err
}

// DecodeWAVPCM16LE reads a WAV stream and returns its PCM16LE mono samples
// and sample rate. Chunks other than fmt and data are skipped.
func DecodeWAVPCM16LE(r io.Reader) (pcm []byte, sampleRate int, err error) {
	var riff struct {
		RIFF     [4]byte
		RIFFSize uint32
		WAVE     [4]byte
	}
	if err := binary.Read(r, binary.LittleEndian, &riff); err != nil {
		return nil, 0, fmt.Errorf("read riff header: %w", err)
	}
	if string(riff.RIFF[:]) != "RIFF" || string(riff.WAVE[:]) != "WAVE" {
		return nil, 0, fmt.Errorf("not a wav stream")
	}

	var sawFmt bool
	for {
		var chunk struct {
			ID   [4]byte
			Size uint32
		}
		if err := binary.Read(r, binary.LittleEndian, &chunk); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, 0, fmt.Errorf("read chunk header: %w", err)
		}

		switch string(chunk.ID[:]) {
		case "fmt ":
			var f struct {
				Format   uint16
				Channels uint16
				Rate     uint32
				ByteRate uint32
				Align    uint16
				Bits     uint16
			}
			if chunk.Size < 16 {
				return nil, 0, fmt.Errorf("fmt chunk too small: %d", chunk.Size)
			}
			if err := binary.Read(r, binary.LittleEndian, &f); err != nil {
				return nil, 0, fmt.Errorf("read fmt chunk: %w", err)
			}
			if f.Format != 1 || f.Channels != 1 || f.Bits != 16 {
				return nil, 0, fmt.Errorf("unsupported wav format: fmt=%d channels=%d bits=%d", f.Format, f.Channels, f.Bits)
			}
			sampleRate = int(f.Rate)
			sawFmt = true
			if extra := int64(chunk.Size) - 16; extra > 0 {
				if _, err := io.CopyN(io.Discard, r, extra); err != nil {
					return nil, 0, err
				}
			}
		case "data":
			pcm = make([]byte, chunk.Size)
			if _, err := io.ReadFull(r, pcm); err != nil {
				return nil, 0, fmt.Errorf("read data chunk: %w", err)
			}
		default:
			skip := int64(chunk.Size)
			if chunk.Size%2 == 1 {
				skip++ // chunks are word aligned
			}
			if _, err := io.CopyN(io.Discard, r, skip); err != nil {
				if err == io.EOF {
					break
				}
				return nil, 0, err
			}
		}
	}

	if !sawFmt {
		return nil, 0, fmt.Errorf("wav stream missing fmt chunk")
	}
	if pcm == nil {
		return nil, 0, fmt.Errorf("wav stream missing data chunk")
	}
	return pcm, sampleRate, nil
}
