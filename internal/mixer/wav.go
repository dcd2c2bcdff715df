package mixer

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/lumodate/capturekit/internal/media"
)

// AudioDecoder turns an encoded audio blob into a sample buffer. The host
// injects richer decoders; WAVDecoder is the built-in implementation.
type AudioDecoder interface {
	Decode(ctx context.Context, blob media.Blob) (media.Clip, error)
}

// WAVDecoder decodes RIFF/WAVE blobs carrying PCM16 or IEEE float32 data.
type WAVDecoder struct{}

var errNotWAV = errors.New("mixer: not a RIFF/WAVE stream")

const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
)

// Decode implements AudioDecoder.
func (WAVDecoder) Decode(_ context.Context, blob media.Blob) (media.Clip, error) {
	data := blob.Data
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return media.Clip{}, errNotWAV
	}

	var (
		format     uint16
		channels   int
		sampleRate int
		bits       int
		haveFmt    bool
	)

	rest := data[12:]
	for len(rest) >= 8 {
		id := string(rest[0:4])
		size := int(binary.LittleEndian.Uint32(rest[4:8]))
		rest = rest[8:]
		if size > len(rest) {
			return media.Clip{}, fmt.Errorf("mixer: truncated %q chunk", id)
		}
		body := rest[:size]
		// Chunks are word-aligned.
		advance := size + size%2
		if advance > len(rest) {
			advance = len(rest)
		}
		rest = rest[advance:]

		switch id {
		case "fmt ":
			if size < 16 {
				return media.Clip{}, errors.New("mixer: short fmt chunk")
			}
			format = binary.LittleEndian.Uint16(body[0:2])
			channels = int(binary.LittleEndian.Uint16(body[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			bits = int(binary.LittleEndian.Uint16(body[14:16]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return media.Clip{}, errors.New("mixer: data chunk before fmt")
			}
			if channels <= 0 || sampleRate <= 0 {
				return media.Clip{}, errors.New("mixer: invalid wav format")
			}
			samples, err := decodeWAVData(format, bits, body)
			if err != nil {
				return media.Clip{}, err
			}
			return media.Clip{Samples: samples, Channels: channels, SampleRate: sampleRate}, nil
		}
	}
	return media.Clip{}, errors.New("mixer: no data chunk")
}

func decodeWAVData(format uint16, bits int, body []byte) ([]float32, error) {
	switch {
	case format == wavFormatPCM && bits == 16:
		n := len(body) / 2
		out := make([]float32, n)
		for i := 0; i < n; i++ {
			out[i] = float32(int16(binary.LittleEndian.Uint16(body[2*i:]))) / 32768
		}
		return out, nil
	case format == wavFormatFloat && bits == 32:
		n := len(body) / 4
		out := make([]float32, n)
		for i := 0; i < n; i++ {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[4*i:]))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("mixer: unsupported wav encoding (format=%d bits=%d)", format, bits)
	}
}

// EncodeWAV renders a clip back to a PCM16 RIFF/WAVE blob. Used by tests
// and the demo binary to produce overlay fixtures.
func EncodeWAV(clip media.Clip) media.Blob {
	n := len(clip.Samples)
	dataSize := 2 * n
	buf := make([]byte, 44+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(clip.Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(clip.SampleRate))
	byteRate := clip.SampleRate * clip.Channels * 2
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(clip.Channels*2))
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	for i, s := range clip.Samples {
		v := int16(0)
		switch {
		case s >= 1:
			v = 32767
		case s <= -1:
			v = -32768
		default:
			v = int16(s * 32767)
		}
		binary.LittleEndian.PutUint16(buf[44+2*i:], uint16(v))
	}
	return media.Blob{Data: buf, MIME: "audio/wav"}
}
