package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/voxlink/live-client/internal/analyser"
	"github.com/voxlink/live-client/internal/capture"
	"github.com/voxlink/live-client/internal/config"
	"github.com/voxlink/live-client/internal/frames"
	"github.com/voxlink/live-client/internal/live"
	"github.com/voxlink/live-client/internal/observability"
	"github.com/voxlink/live-client/internal/player"
	"github.com/voxlink/live-client/internal/recorder"
	"github.com/voxlink/live-client/internal/session"
)

// logVisual is the default visualization sink: it has no display surface, so
// tool-driven color changes are just logged alongside the analyser snapshot.
type logVisual struct {
	logger zerolog.Logger
}

func (v *logVisual) SetColor(color string) {
	v.logger.Info().Str("color", color).Msg("Visualizer color changed")
}

// peakLevel reduces a frequency snapshot to its loudest bin value.
func peakLevel(data []byte) int {
	peak := 0
	for _, v := range data {
		if int(v) > peak {
			peak = int(v)
		}
	}
	return peak
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	voice, err := session.ParseVoice(cfg.Voice)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid voice configuration")
	}

	logger.Info().
		Str("model", cfg.Model).
		Str("voice", string(voice)).
		Bool("video", cfg.VideoEnabled).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Live client starting")

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			addr := fmt.Sprintf(":%s", cfg.MetricsPort)
			logger.Info().Str("addr", addr).Msg("Prometheus metrics listening")
			if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	// Audio output: ffplay sink behind the playback scheduler
	speaker := player.NewFFPlaySpeaker(cfg.FFplayPath, cfg.OutputSampleRate, 1)
	if err := speaker.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start audio output")
	}
	defer speaker.Close()

	clock := player.NewSystemClock()
	scheduler := player.NewScheduler(clock, player.NewSpeakerOutput(speaker, clock))

	// Audio input: microphone via the system capture backend
	micCtx, err := capture.NewMalgoContext()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize audio capture backend")
	}
	defer micCtx.Close()

	// The manager is created after the pipelines that reference it, so the
	// pipelines resolve the session through a closure.
	var mgr *session.Manager
	resolveCapture := func() (capture.Sender, bool) {
		s, ok := mgr.Resolve()
		if !ok {
			return nil, false
		}
		return s, true
	}
	resolveFrames := func() (frames.Sender, bool) {
		s, ok := mgr.Resolve()
		if !ok {
			return nil, false
		}
		return s, true
	}

	mic := capture.NewPipeline(micCtx, resolveCapture, capture.Config{
		SampleRate:   cfg.InputSampleRate,
		BlockSamples: cfg.BlockSamples,
	})

	var cameraPipe *frames.Pipeline
	if cfg.VideoEnabled {
		camera := frames.NewFFMPEGCamera(cfg.FFmpegPath, "v4l2", cfg.CameraDevice)
		cameraPipe = frames.NewPipeline(camera, resolveFrames, frames.Config{
			FramesPerSecond: cfg.FramesPerSecond,
		})
	}

	// Recording mixer fed by the microphone and playback taps
	screen := recorder.NewFFmpegScreen(cfg.FFmpegPath, "", filepath.Join(cfg.RecordingDir, "screen.mkv"))
	mixer := recorder.NewMixer(recorder.Config{
		SampleRate:    cfg.OutputSampleRate,
		MicSampleRate: cfg.InputSampleRate,
		UserGain:      cfg.UserGain,
		AssistantGain: cfg.AssistantGain,
		OutputDir:     cfg.RecordingDir,
		FFmpegPath:    cfg.FFmpegPath,
	}, screen)
	mixer.SetAutoStopHook(func() {
		logger.Info().Str("file", filepath.Join(cfg.RecordingDir, recorder.RecordingFilename)).
			Msg("Screen share ended, recording stopped")
	})
	mic.AddTap(capture.TapFunc(mixer.OnMicFrame))
	scheduler.AddTap(player.TapFunc(mixer.OnPlaybackFrame))

	// Frequency analysers on both directions, polled for the debug view
	inputAnalyser := analyser.New(analyser.DefaultConfig())
	outputAnalyser := analyser.New(analyser.DefaultConfig())
	mic.AddTap(capture.TapFunc(inputAnalyser.OnFrame))
	scheduler.AddTap(player.TapFunc(outputAnalyser.OnFrame))

	deps := session.Deps{
		Dialer:   live.NewDialer(cfg.GeminiAPIKey),
		Player:   scheduler,
		Mic:      mic,
		Recorder: mixer,
		Visual:   &logVisual{logger: observability.WithComponent("visual")},
	}
	if cameraPipe != nil {
		deps.Camera = cameraPipe
	}

	mgr = session.NewManager(deps, session.Config{
		Model:            cfg.Model,
		InputSampleRate:  cfg.InputSampleRate,
		OutputSampleRate: cfg.OutputSampleRate,
	}, session.Settings{Voice: voice, SystemPrompt: cfg.SystemPrompt})

	ctx := context.Background()
	if err := mgr.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start conversation")
	}

	// Periodic analyser refresh while the conversation runs; the headless
	// client has no visualizer surface, so the snapshots feed a debug log.
	analyserDone := make(chan struct{})
	go func() {
		analyserLog := observability.WithComponent("analyser")
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		ticks := 0
		for {
			select {
			case <-ticker.C:
				inputAnalyser.Update()
				outputAnalyser.Update()
				ticks++
				if ticks%20 == 0 {
					analyserLog.Debug().
						Int("input_peak", peakLevel(inputAnalyser.Data())).
						Int("output_peak", peakLevel(outputAnalyser.Data())).
						Msg("Frequency snapshot")
				}
			case <-analyserDone:
				return
			}
		}
	}()

	// SIGUSR1 toggles recording, SIGINT/SIGTERM shut down
	toggle := make(chan os.Signal, 1)
	signal.Notify(toggle, syscall.SIGUSR1)
	go func() {
		for range toggle {
			if mixer.Recording() {
				mixer.Stop()
				logger.Info().Str("file", filepath.Join(cfg.RecordingDir, recorder.RecordingFilename)).
					Msg("Recording stopped")
			} else if err := mgr.StartRecording(); err != nil {
				logger.Error().Err(err).Msg("Cannot start recording")
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down...")
	close(analyserDone)
	mgr.Stop()

	if path, err := mgr.ExportTranscript(cfg.RecordingDir); err != nil {
		logger.Error().Err(err).Msg("Failed to export transcript")
	} else {
		logger.Info().Str("file", path).Msg("Transcript exported")
	}

	logger.Info().Msg("Client exited gracefully")
}
