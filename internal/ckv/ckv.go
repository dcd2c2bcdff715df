// Package ckv implements the capturekit deliverable container: a header
// followed by interleaved video (JPEG) and audio (PCM16) records. The format
// is append-only so an encoder can emit it incrementally, and self-describing
// so the overlay mixer can replay a recording frame by frame.
package ckv

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"time"
)

// MIME types negotiated by the recorder's codec ladder for this container.
const (
	MIMEVideo      = "video/x-capturekit;codecs=mjpeg"
	MIMEVideoAudio = "video/x-capturekit;codecs=mjpeg,pcm"
)

var (
	ErrBadMagic  = errors.New("ckv: bad magic")
	ErrTruncated = errors.New("ckv: truncated record")
)

var magic = [4]byte{'C', 'K', 'V', '1'}

const (
	flagAudio = 1 << 0

	recVideo = 'V'
	recAudio = 'A'

	headerSize = 20
)

// Header describes the stream layout of a container.
type Header struct {
	Width      int
	Height     int
	FPS        int
	HasAudio   bool
	Channels   int
	SampleRate int
}

// HeaderChunk encodes the header as the container's first record.
func HeaderChunk(h Header) []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:4], magic[:])
	buf[4] = 1 // version
	if h.HasAudio {
		buf[5] |= flagAudio
	}
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Width))
	binary.BigEndian.PutUint16(buf[8:10], uint16(h.Height))
	binary.BigEndian.PutUint16(buf[10:12], uint16(h.FPS))
	buf[12] = byte(h.Channels)
	binary.BigEndian.PutUint32(buf[14:18], uint32(h.SampleRate))
	return buf
}

// VideoChunk wraps one encoded JPEG frame as a video record.
func VideoChunk(jpegData []byte) []byte {
	return record(recVideo, jpegData)
}

// AudioChunk wraps interleaved PCM16 samples as an audio record.
func AudioChunk(pcm []int16) []byte {
	payload := make([]byte, 2*len(pcm))
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(payload[2*i:], uint16(s))
	}
	return record(recAudio, payload)
}

func record(kind byte, payload []byte) []byte {
	buf := make([]byte, 5+len(payload))
	buf[0] = kind
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(payload)))
	copy(buf[5:], payload)
	return buf
}

// EncodeFrame compresses an RGBA frame to the JPEG payload of a video record.
func EncodeFrame(img *image.RGBA) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("ckv: encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

// Reader is a fully parsed container.
type Reader struct {
	Header Header
	frames [][]byte // JPEG payloads in presentation order
	audio  []int16  // interleaved PCM
}

// Parse reads a complete container from memory.
func Parse(data []byte) (*Reader, error) {
	if len(data) < headerSize || !bytes.Equal(data[0:4], magic[:]) {
		return nil, ErrBadMagic
	}
	h := Header{
		HasAudio:   data[5]&flagAudio != 0,
		Width:      int(binary.BigEndian.Uint16(data[6:8])),
		Height:     int(binary.BigEndian.Uint16(data[8:10])),
		FPS:        int(binary.BigEndian.Uint16(data[10:12])),
		Channels:   int(data[12]),
		SampleRate: int(binary.BigEndian.Uint32(data[14:18])),
	}
	r := &Reader{Header: h}

	rest := data[headerSize:]
	for len(rest) > 0 {
		if len(rest) < 5 {
			return nil, ErrTruncated
		}
		kind := rest[0]
		n := int(binary.BigEndian.Uint32(rest[1:5]))
		rest = rest[5:]
		if len(rest) < n {
			return nil, ErrTruncated
		}
		payload := rest[:n]
		rest = rest[n:]

		switch kind {
		case recVideo:
			r.frames = append(r.frames, payload)
		case recAudio:
			if n%2 != 0 {
				return nil, ErrTruncated
			}
			pcm := make([]int16, n/2)
			for i := range pcm {
				pcm[i] = int16(binary.LittleEndian.Uint16(payload[2*i:]))
			}
			r.audio = append(r.audio, pcm...)
		default:
			return nil, fmt.Errorf("ckv: unknown record kind 0x%02x", kind)
		}
	}
	return r, nil
}

// FrameCount returns the number of video records.
func (r *Reader) FrameCount() int { return len(r.frames) }

// DecodeFrame decompresses video record i.
func (r *Reader) DecodeFrame(i int) (image.Image, error) {
	if i < 0 || i >= len(r.frames) {
		return nil, fmt.Errorf("ckv: frame %d out of range", i)
	}
	img, err := jpeg.Decode(bytes.NewReader(r.frames[i]))
	if err != nil {
		return nil, fmt.Errorf("ckv: decode frame %d: %w", i, err)
	}
	return img, nil
}

// Audio returns the container's interleaved PCM samples.
func (r *Reader) Audio() []int16 { return r.audio }

// Duration derives play time from the frame count and frame rate.
func (r *Reader) Duration() time.Duration {
	if r.Header.FPS == 0 {
		return 0
	}
	return time.Duration(len(r.frames)) * time.Second / time.Duration(r.Header.FPS)
}

// PCM16FromFloat32 converts normalized samples to PCM16 with clipping.
func PCM16FromFloat32(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, s := range in {
		switch {
		case s >= 1:
			out[i] = 32767
		case s <= -1:
			out[i] = -32768
		default:
			out[i] = int16(s * 32767)
		}
	}
	return out
}

// Float32FromPCM16 converts PCM16 samples to normalized float32.
func Float32FromPCM16(in []int16) []float32 {
	out := make([]float32, len(in))
	for i, s := range in {
		out[i] = float32(s) / 32768
	}
	return out
}
