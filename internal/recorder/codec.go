package recorder

import "github.com/lumodate/capturekit/internal/ckv"

// Codec is one rung of the negotiation ladder.
type Codec struct {
	MIME       string
	NeedsAudio bool // rung only applies when the stream carries audio
}

// DefaultLadder prefers higher-efficiency codecs with audio and falls back
// to video-only and finally the generic in-process container.
var DefaultLadder = []Codec{
	{MIME: "video/webm;codecs=vp9,opus", NeedsAudio: true},
	{MIME: "video/webm;codecs=vp8,opus", NeedsAudio: true},
	{MIME: ckv.MIMEVideoAudio, NeedsAudio: true},
	{MIME: "video/webm;codecs=vp8"},
	{MIME: "video/webm"},
	{MIME: ckv.MIMEVideo},
}

// Negotiate returns the first ladder MIME the factory supports. Audio rungs
// are skipped for video-only streams.
func Negotiate(factory EncoderFactory, ladder []Codec, hasAudio bool) (string, error) {
	for _, c := range ladder {
		if c.NeedsAudio && !hasAudio {
			continue
		}
		if factory.Supports(c.MIME) {
			return c.MIME, nil
		}
	}
	return "", ErrEncoderUnsupported
}
