package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrInvalidWAV is returned when data is not a PCM RIFF/WAVE file.
var ErrInvalidWAV = errors.New("invalid WAV data")

// Format describes PCM sample layout.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// BytesPerSecond returns the data rate of the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * f.BitsPerSample / 8
}

// WAV is a decoded PCM WAV file.
type WAV struct {
	Format Format
	Data   []byte
}

// Duration returns the playback length of the PCM data.
func (w *WAV) Duration() time.Duration {
	bps := w.Format.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(len(w.Data)) * time.Second / time.Duration(bps)
}

// ParseWAV decodes a RIFF/WAVE file holding integer PCM. Chunks other than
// "fmt " and "data" are skipped. A data chunk whose declared size runs past
// the end of the input (as written by engines streaming to stdout) is
// truncated to what is present.
func ParseWAV(data []byte) (*WAV, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: missing RIFF/WAVE header", ErrInvalidWAV)
	}

	var (
		w      WAV
		hasFmt bool
	)
	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		end := body + size
		if end > len(data) || end < body {
			end = len(data)
		}

		switch id {
		case "fmt ":
			if end-body < 16 {
				return nil, fmt.Errorf("%w: short fmt chunk", ErrInvalidWAV)
			}
			chunk := data[body:end]
			if tag := binary.LittleEndian.Uint16(chunk[0:2]); tag != 1 && tag != 0xFFFE {
				return nil, fmt.Errorf("%w: unsupported format tag %d", ErrInvalidWAV, tag)
			}
			w.Format = Format{
				Channels:      int(binary.LittleEndian.Uint16(chunk[2:4])),
				SampleRate:    int(binary.LittleEndian.Uint32(chunk[4:8])),
				BitsPerSample: int(binary.LittleEndian.Uint16(chunk[14:16])),
			}
			hasFmt = true
		case "data":
			if !hasFmt {
				return nil, fmt.Errorf("%w: data chunk before fmt chunk", ErrInvalidWAV)
			}
			w.Data = data[body:end]
			return &w, nil
		}

		// chunks are word aligned
		offset = end + (size & 1)
	}

	return nil, fmt.Errorf("%w: no data chunk", ErrInvalidWAV)
}

// WriteWAV writes pcm as a canonical 44-byte-header WAV file.
func WriteWAV(w io.Writer, f Format, pcm []byte) error {
	var header bytes.Buffer
	header.Grow(44)

	blockAlign := f.Channels * f.BitsPerSample / 8

	// RIFF header
	header.WriteString("RIFF")
	_ = binary.Write(&header, binary.LittleEndian, uint32(36+len(pcm)))
	header.WriteString("WAVE")

	// fmt sub-chunk
	header.WriteString("fmt ")
	_ = binary.Write(&header, binary.LittleEndian, uint32(16))                 // sub-chunk size
	_ = binary.Write(&header, binary.LittleEndian, uint16(1))                  // PCM
	_ = binary.Write(&header, binary.LittleEndian, uint16(f.Channels))         // channels
	_ = binary.Write(&header, binary.LittleEndian, uint32(f.SampleRate))       // sample rate
	_ = binary.Write(&header, binary.LittleEndian, uint32(f.BytesPerSecond())) // byte rate
	_ = binary.Write(&header, binary.LittleEndian, uint16(blockAlign))         // block align
	_ = binary.Write(&header, binary.LittleEndian, uint16(f.BitsPerSample))    // bits per sample

	// data sub-chunk
	header.WriteString("data")
	_ = binary.Write(&header, binary.LittleEndian, uint32(len(pcm)))

	if _, err := w.Write(header.Bytes()); err != nil {
		return err
	}
	_, err := w.Write(pcm)
	return err
}
