// Package compositor implements the color-key pipeline: per frame the source
// video is drawn into an off-screen buffer sized by the current quality
// state, run through the chroma-key fragment kernel, and composited over a
// solid background. The engine monitors its own frame rate and demotes
// render quality when it cannot keep up; quality never recovers within a
// session.
package compositor

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lumodate/capturekit/internal/frameclock"
	"github.com/lumodate/capturekit/internal/log"
	"github.com/lumodate/capturekit/internal/media"
)

var (
	// ErrUnavailable is returned when a render context cannot be created.
	ErrUnavailable = errors.New("compositor: render context unavailable")

	// ErrNoSource is returned by SampleKeyColor before any frame arrived.
	ErrNoSource = errors.New("compositor: no source frame")
)

// Config carries the compositor's tunables.
type Config struct {
	KeyColor       color.RGBA
	Background     color.RGBA
	InnerThreshold float64
	OuterThreshold float64
	Spill          float64
	Mirror         bool

	OutputFPS      int           // fixed capture rate of output tracks
	FPSFloor       float64       // demote below this achieved fps
	MonitorWindow  time.Duration // fps measurement window
	DemoteCooldown time.Duration // suppression window after a demotion

	// NewTarget allocates a render target. Returning an error simulates an
	// unavailable or lost graphics context. nil uses plain allocation.
	NewTarget func(w, h int) (*image.RGBA, error)
}

// DefaultConfig returns the tunables used in production.
func DefaultConfig() Config {
	return Config{
		KeyColor:       color.RGBA{G: 255, A: 255},
		Background:     color.RGBA{R: 16, G: 16, B: 20, A: 255},
		InnerThreshold: 0.08,
		OuterThreshold: 0.22,
		Spill:          0.5,
		OutputFPS:      30,
		FPSFloor:       22,
		MonitorWindow:  time.Second,
		DemoteCooldown: 3 * time.Second,
	}
}

// Compositor renders the color-keyed stream.
type Compositor struct {
	logger    zerolog.Logger
	clock     frameclock.Clock
	newTarget func(w, h int) (*image.RGBA, error)

	outputFPS int
	fpsFloor  float64
	window    time.Duration
	cooldown  time.Duration

	mu      sync.Mutex
	kernel  Kernel
	source  Source
	quality Quality
	target  *image.RGBA // scaled source buffer
	frame   *image.RGBA // composited result
	running bool
	lost    bool
	cancel  frameclock.CancelFunc
	started time.Time

	// letterbox of the last render, for inverse mapping
	scale      float64
	offX, offY int
	srcW, srcH int

	winStart   time.Time
	winFrames  int
	lastDemote time.Time
	achieved   float64

	outputs map[*OutputTrack]struct{}
}

// New builds a compositor. It probes the render target factory once so an
// unavailable graphics context surfaces at construction, not mid-session.
func New(clock frameclock.Clock, cfg Config, logger zerolog.Logger) (*Compositor, error) {
	if cfg.OutputFPS <= 0 {
		cfg.OutputFPS = 30
	}
	if cfg.FPSFloor <= 0 {
		cfg.FPSFloor = 22
	}
	if cfg.MonitorWindow <= 0 {
		cfg.MonitorWindow = time.Second
	}
	if cfg.DemoteCooldown <= 0 {
		cfg.DemoteCooldown = 3 * time.Second
	}
	if cfg.OuterThreshold <= cfg.InnerThreshold {
		return nil, fmt.Errorf("compositor: outer threshold %v must exceed inner %v", cfg.OuterThreshold, cfg.InnerThreshold)
	}
	newTarget := cfg.NewTarget
	if newTarget == nil {
		newTarget = func(w, h int) (*image.RGBA, error) {
			return image.NewRGBA(image.Rect(0, 0, w, h)), nil
		}
	}

	long, short := QualityHigh.EdgeBudget()
	if _, err := newTarget(long, short); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	c := &Compositor{
		logger:    logger,
		clock:     clock,
		newTarget: newTarget,
		outputFPS: cfg.OutputFPS,
		fpsFloor:  cfg.FPSFloor,
		window:    cfg.MonitorWindow,
		cooldown:  cfg.DemoteCooldown,
		kernel: Kernel{
			KeyColor:       cfg.KeyColor,
			Background:     cfg.Background,
			InnerThreshold: cfg.InnerThreshold,
			OuterThreshold: cfg.OuterThreshold,
			Spill:          cfg.Spill,
			Mirror:         cfg.Mirror,
		},
		quality: QualityHigh,
		outputs: make(map[*OutputTrack]struct{}),
	}
	qualityLevel.Set(float64(QualityHigh))
	return c, nil
}

// Attach binds the compositor to a source video. Rendering picks it up on
// the next frame.
func (c *Compositor) Attach(source Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.source = source
}

// SetKeyColor updates the keyed-out color.
func (c *Compositor) SetKeyColor(col color.RGBA) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kernel.KeyColor = col
}

// SetBackgroundColor updates the replacement background.
func (c *Compositor) SetBackgroundColor(col color.RGBA) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kernel.Background = col
}

// SetThreshold updates the inner/outer chroma distance ramp.
func (c *Compositor) SetThreshold(inner, outer float64) error {
	if outer <= inner {
		return fmt.Errorf("compositor: outer threshold %v must exceed inner %v", outer, inner)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kernel.InnerThreshold = inner
	c.kernel.OuterThreshold = outer
	return nil
}

// SetMirror toggles horizontal mirroring.
func (c *Compositor) SetMirror(mirror bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kernel.Mirror = mirror
}

// Start begins the per-frame render loop.
func (c *Compositor) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.running = true
	c.winStart = time.Time{}
	c.winFrames = 0
	if !c.lost {
		c.cancel = c.clock.Request(c.render)
	}
}

// Stop halts rendering and closes every output track. The compositor cannot
// be restarted after Stop with open outputs; sessions build a fresh one.
func (c *Compositor) Stop() {
	c.mu.Lock()
	c.running = false
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	tracks := make([]*OutputTrack, 0, len(c.outputs))
	for t := range c.outputs {
		tracks = append(tracks, t)
	}
	c.outputs = make(map[*OutputTrack]struct{})
	c.mu.Unlock()

	for _, t := range tracks {
		t.close()
	}
}

// OutputStream returns a video track carrying the composited canvas at the
// given fixed frame rate (the configured rate when fps <= 0).
func (c *Compositor) OutputStream(fps int) *OutputTrack {
	if fps <= 0 {
		fps = c.outputFPS
	}
	t := newOutputTrack(fps, c.removeOutput)
	c.mu.Lock()
	c.outputs[t] = struct{}{}
	c.mu.Unlock()
	return t
}

func (c *Compositor) removeOutput(t *OutputTrack) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.outputs, t)
}

// HandleContextLost pauses rendering and drops render resources. Mirrors
// the platform's context-loss event.
func (c *Compositor) HandleContextLost() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lost {
		return
	}
	c.lost = true
	c.target = nil
	c.frame = nil
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	contextLosses.Inc()
	c.logger.Warn().Msg("render context lost, rendering paused")
}

// HandleContextRestored recreates resources lazily and resumes rendering if
// a source is still attached.
func (c *Compositor) HandleContextRestored() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.lost {
		return
	}
	c.lost = false
	if c.running && c.source != nil {
		c.cancel = c.clock.Request(c.render)
	}
	c.logger.Info().Msg("render context restored")
}

// Quality returns the current render quality.
func (c *Compositor) Quality() Quality {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quality
}

// AchievedFPS returns the frame rate measured over the last full window.
func (c *Compositor) AchievedFPS() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.achieved
}

// render is the per-frame loop body.
func (c *Compositor) render(now time.Time) {
	c.mu.Lock()

	if !c.running || c.lost {
		c.mu.Unlock()
		return
	}
	// Keep the loop alive first: demotions and missing frames must not
	// stall the schedule.
	c.cancel = c.clock.Request(c.render)

	var out *image.RGBA
	if c.source != nil {
		if src, ok := c.source.Latest(); ok {
			if err := c.ensureTargets(src); err != nil {
				c.mu.Unlock()
				c.HandleContextLost()
				return
			}
			c.drawLetterboxed(src)
			c.kernel.Shade(c.frame, c.target)
			out = cloneRGBA(c.frame)
		}
	}

	if c.started.IsZero() {
		c.started = now
	}
	c.observeFrame(now)

	var tracks []*OutputTrack
	var pts time.Duration
	if out != nil {
		tracks = make([]*OutputTrack, 0, len(c.outputs))
		for t := range c.outputs {
			tracks = append(tracks, t)
		}
		pts = now.Sub(c.started)
		for _, t := range tracks {
			t.push(media.Frame{Image: out, PTS: pts}, now)
		}
	}
	c.mu.Unlock()
}

// ensureTargets sizes the render buffers for the current quality and source
// aspect, reallocating only when the desired geometry changes.
func (c *Compositor) ensureTargets(src *image.RGBA) error {
	bw, bh := c.boxFor(src.Bounds().Dx(), src.Bounds().Dy())
	if c.target != nil && c.target.Bounds().Dx() == bw && c.target.Bounds().Dy() == bh {
		return nil
	}
	target, err := c.newTarget(bw, bh)
	if err != nil {
		return err
	}
	frame, err := c.newTarget(bw, bh)
	if err != nil {
		return err
	}
	c.target = target
	c.frame = frame
	return nil
}

// drawLetterboxed scales the source frame into the render target with
// contain semantics, filling the bars with the key color so they join the
// keyed-out region.
func (c *Compositor) drawLetterboxed(src *image.RGBA) {
	b := c.target.Bounds()
	bw, bh := b.Dx(), b.Dy()
	sw, sh := src.Bounds().Dx(), src.Bounds().Dy()
	c.srcW, c.srcH = sw, sh
	c.scale, c.offX, c.offY = containScale(sw, sh, bw, bh)
	dw := int(float64(sw) * c.scale)
	dh := int(float64(sh) * c.scale)

	key := c.kernel.KeyColor
	for y := 0; y < bh; y++ {
		for x := 0; x < bw; x++ {
			inX := x >= c.offX && x < c.offX+dw
			inY := y >= c.offY && y < c.offY+dh
			if inX && inY {
				sx := int(float64(x-c.offX) / c.scale)
				sy := int(float64(y-c.offY) / c.scale)
				if sx >= sw {
					sx = sw - 1
				}
				if sy >= sh {
					sy = sh - 1
				}
				c.target.SetRGBA(x, y, src.RGBAAt(src.Bounds().Min.X+sx, src.Bounds().Min.Y+sy))
			} else {
				c.target.SetRGBA(x, y, key)
			}
		}
	}
}

// observeFrame updates the fps window and applies the demotion ratchet.
func (c *Compositor) observeFrame(now time.Time) {
	if c.winStart.IsZero() {
		c.winStart = now
		c.winFrames = 0
		return
	}
	c.winFrames++
	elapsed := now.Sub(c.winStart)
	if elapsed < c.window {
		return
	}

	c.achieved = float64(c.winFrames) / elapsed.Seconds()
	achievedFPS.Set(c.achieved)
	c.winStart = now
	c.winFrames = 0

	if c.achieved >= c.fpsFloor || c.quality == QualityLow {
		return
	}
	if !c.lastDemote.IsZero() && now.Sub(c.lastDemote) < c.cooldown {
		return
	}
	old := c.quality
	c.quality = c.quality.Demote()
	c.lastDemote = now
	c.target = nil // reallocated next frame at the smaller budget
	c.frame = nil
	demotions.Inc()
	qualityLevel.Set(float64(c.quality))
	c.logger.Info().
		Float64(log.FieldFPS, c.achieved).
		Str(log.FieldOldState, old.String()).
		Str(log.FieldNewState, c.quality.String()).
		Msg("render quality demoted")
}

// SampleKeyColor averages a small neighborhood around the tapped point,
// given in normalized output coordinates, inverse-mapped through the
// current letterbox into source space.
func (c *Compositor) SampleKeyColor(normX, normY float64) (color.RGBA, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.source == nil {
		return color.RGBA{}, ErrNoSource
	}
	src, ok := c.source.Latest()
	if !ok {
		return color.RGBA{}, ErrNoSource
	}
	if c.scale == 0 {
		// Nothing rendered yet: derive the mapping for the current source.
		c.srcW = src.Bounds().Dx()
		c.srcH = src.Bounds().Dy()
		bw, bh := c.boxFor(c.srcW, c.srcH)
		c.scale, c.offX, c.offY = containScale(c.srcW, c.srcH, bw, bh)
	}

	bw, bh := c.boxFor(c.srcW, c.srcH)
	sx := (normX*float64(bw) - float64(c.offX)) / c.scale
	sy := (normY*float64(bh) - float64(c.offY)) / c.scale
	if c.kernel.Mirror {
		sx = float64(c.srcW) - 1 - sx
	}

	cx := clampInt(int(sx), 0, c.srcW-1)
	cy := clampInt(int(sy), 0, c.srcH-1)

	var r, g, b, n float64
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			x := clampInt(cx+dx, 0, c.srcW-1)
			y := clampInt(cy+dy, 0, c.srcH-1)
			px := src.RGBAAt(src.Bounds().Min.X+x, src.Bounds().Min.Y+y)
			r += float64(px.R)
			g += float64(px.G)
			b += float64(px.B)
			n++
		}
	}
	return color.RGBA{R: clamp8(r / n), G: clamp8(g / n), B: clamp8(b / n), A: 255}, nil
}

// boxFor orients the quality edge budget to the source aspect.
func (c *Compositor) boxFor(srcW, srcH int) (bw, bh int) {
	long, short := c.quality.EdgeBudget()
	if srcH > srcW {
		return short, long
	}
	return long, short
}

// containScale fits (sw,sh) inside (bw,bh) preserving aspect, returning the
// scale and centering offsets of the drawn rectangle.
func containScale(sw, sh, bw, bh int) (scale float64, offX, offY int) {
	scaleX := float64(bw) / float64(sw)
	scaleY := float64(bh) / float64(sh)
	scale = scaleX
	if scaleY < scaleX {
		scale = scaleY
	}
	offX = (bw - int(float64(sw)*scale)) / 2
	offY = (bh - int(float64(sh)*scale)) / 2
	return scale, offX, offY
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	return dst
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
