// capturectl drives one full capture session against the synthetic camera:
// select -> record -> review -> post, writing the deliverable to disk. It
// exists to exercise the pipeline end to end without host bindings.
package main

import (
	"context"
	"flag"
	"fmt"
	"image/color"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lumodate/capturekit/internal/capture"
	"github.com/lumodate/capturekit/internal/compositor"
	"github.com/lumodate/capturekit/internal/config"
	"github.com/lumodate/capturekit/internal/device"
	"github.com/lumodate/capturekit/internal/frameclock"
	cklog "github.com/lumodate/capturekit/internal/log"
	"github.com/lumodate/capturekit/internal/media"
	"github.com/lumodate/capturekit/internal/mixer"
	"github.com/lumodate/capturekit/internal/recorder"
)

var (
	version   = "v0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	duration := flag.Duration("duration", 3*time.Second, "recording length")
	greenScreen := flag.Bool("green-screen", false, "composite against a solid background")
	overlayPath := flag.String("overlay", "", "WAV file mixed over the recording before posting")
	caption := flag.String("caption", "", "caption passed to the post collaborator")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	cklog.Configure(cklog.Config{Level: "info", Service: "capturekit", Version: version})
	logger := cklog.WithComponent("capturectl")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Str("config_path", *configPath).Msg("failed to load configuration")
	}
	cklog.Configure(cklog.Config{Level: cfg.LogLevel, Service: cfg.LogService, Version: version})

	if *duration > cfg.Capture.MaxDuration {
		*duration = cfg.Capture.MaxDuration
	}

	if err := run(ctx, cfg, *duration, *greenScreen, *overlayPath, *caption); err != nil {
		logger.Fatal().Err(err).Msg("capture session failed")
	}
}

func run(ctx context.Context, cfg config.Config, duration time.Duration, greenScreen bool, overlayPath, caption string) error {
	logger := cklog.WithComponent("capturectl")

	clock := frameclock.NewTicker(cfg.Capture.FPS)
	defer clock.Close()

	device.Register(device.NewSynthetic())
	drivers := device.List()
	if len(drivers) == 0 {
		return fmt.Errorf("no capture drivers registered")
	}
	drv := drivers[0]
	logger.Info().Str("driver", drv.Name()).Int("registered", len(drivers)).Msg("capture driver selected")
	acq := device.NewAcquirer(drv)
	engine := recorder.NewEngine(recorder.NewCKVFactory())
	mix := mixer.New(engine)
	sink := capture.NewFileSink(cfg.Output.Dir)

	compCfg := compositor.DefaultConfig()
	if r, g, b, err := config.ParseHexColor(cfg.Compositor.KeyColor); err == nil {
		compCfg.KeyColor = colorRGBA(r, g, b)
	}
	compCfg.OuterThreshold = cfg.Compositor.Threshold
	compCfg.Mirror = cfg.Compositor.Mirror
	compCfg.OutputFPS = cfg.Capture.FPS

	ctrl := capture.NewController(acq, engine, mix, clock,
		capture.WithMaxDuration(cfg.Capture.MaxDuration),
		capture.WithCompositorConfig(compCfg),
		capture.WithPoster(sink),
	)
	defer ctrl.Shutdown()

	if err := ctrl.EnterRecord(ctx, greenScreen); err != nil {
		return fmt.Errorf("enter record: %w", err)
	}
	if _, err := ctrl.StartRecording(); err != nil {
		return fmt.Errorf("start recording: %w", err)
	}
	logger.Info().Dur("duration", duration).Bool("green_screen", greenScreen).Msg("recording")

	select {
	case <-time.After(duration):
	case <-ctx.Done():
		logger.Warn().Msg("interrupted, finalizing current take")
	}

	rec, err := ctrl.StopRecording(context.Background())
	if err != nil {
		return fmt.Errorf("stop recording: %w", err)
	}
	logger.Info().Int("bytes", rec.Blob.Size()).Str("mime", rec.Blob.MIME).Msg("recorded")

	if overlayPath != "" {
		data, err := os.ReadFile(overlayPath)
		if err != nil {
			return fmt.Errorf("read overlay: %w", err)
		}
		overlay := mixer.Overlay{
			Source: media.Blob{Data: data, MIME: "audio/wav"},
			Volume: 1,
		}
		if err := ctrl.SetOverlay(overlay); err != nil {
			return err
		}
		logger.Info().Str("overlay", overlayPath).Msg("mixing overlay audio")
	}

	f, err := ctrl.Post(ctx, caption)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	logger.Info().Str("file", f.Name).Str("path", sink.LastPath()).Msg("deliverable written")
	fmt.Println(sink.LastPath())
	return nil
}

func colorRGBA(r, g, b uint8) color.RGBA {
	return color.RGBA{R: r, G: g, B: b, A: 255}
}
