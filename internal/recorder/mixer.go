// Package recorder captures a conversation on demand: the microphone and the
// synthesized response audio are mixed at independent gains into a single
// mono track, combined with a screen grab, and assembled into one file on
// stop.
package recorder

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/voxlink/live-client/internal/codec"
	"github.com/voxlink/live-client/internal/observability"
)

const (
	// RecordingFilename is the fixed name of the assembled output file.
	RecordingFilename = "recording.webm"

	audioFilename  = "recording.wav"
	screenFilename = "screen.mkv"
)

// Config tunes the mixing graph.
type Config struct {
	// SampleRate is the mixdown rate, matching the response audio.
	SampleRate int
	// MicSampleRate is the rate microphone frames arrive at.
	MicSampleRate int
	// UserGain scales the microphone track.
	UserGain float64
	// AssistantGain scales the response track. Synthesized speech tends to
	// be quieter than a close microphone, so it defaults above unity.
	AssistantGain float64
	// OutputDir receives the assembled recording.
	OutputDir string
	// FFmpegPath is the muxer binary. Empty disables muxing and leaves the
	// mixed WAV as the final artifact.
	FFmpegPath string
}

func (c *Config) applyDefaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = 24000
	}
	if c.MicSampleRate <= 0 {
		c.MicSampleRate = 16000
	}
	if c.UserGain == 0 {
		c.UserGain = 1.0
	}
	if c.AssistantGain == 0 {
		c.AssistantGain = 2.0
	}
	if c.OutputDir == "" {
		c.OutputDir = "."
	}
}

// Mixer accumulates both live audio tracks while recording and renders them
// into one file on stop. Frames arriving while not recording are dropped.
type Mixer struct {
	cfg    Config
	screen Screen

	mu        sync.Mutex
	running   bool
	gen       int
	user      []float32
	assistant []float32

	autoStop func()
	logger   zerolog.Logger
}

// NewMixer creates a mixer. screen may be nil for audio-only recordings.
func NewMixer(cfg Config, screen Screen) *Mixer {
	cfg.applyDefaults()
	return &Mixer{
		cfg:    cfg,
		screen: screen,
		logger: observability.WithComponent("recorder"),
	}
}

// SetAutoStopHook registers a callback invoked after the mixer stops itself
// because the screen capture ended externally.
func (m *Mixer) SetAutoStopHook(fn func()) {
	m.mu.Lock()
	m.autoStop = fn
	m.mu.Unlock()
}

// Recording reports whether a recording is in progress.
func (m *Mixer) Recording() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Start begins accumulating audio and launches the screen grab. Starting an
// already-running mixer is a no-op.
func (m *Mixer) Start() error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.gen++
	gen := m.gen
	m.running = true
	m.user = nil
	m.assistant = nil
	m.mu.Unlock()

	if m.screen != nil {
		if err := m.screen.Start(); err != nil {
			// The recording continues audio-only.
			m.logger.Warn().Err(err).Msg("Screen capture unavailable, recording audio only")
			observability.RecordError("screen_capture_error", "recorder")
		} else {
			go m.watchScreen(gen)
		}
	}

	observability.RecordRecordingStart()
	m.logger.Info().Msg("Recording started")
	return nil
}

// watchScreen stops the recording when the capture process dies underneath
// us, e.g. the user ended the screen share externally.
func (m *Mixer) watchScreen(gen int) {
	<-m.screen.Done()

	m.mu.Lock()
	stale := gen != m.gen || !m.running
	hook := m.autoStop
	m.mu.Unlock()
	if stale {
		return
	}

	m.logger.Info().Msg("Screen capture ended, stopping recording")
	m.Stop()
	if hook != nil {
		hook()
	}
}

// Stop finalizes the recording. It is idempotent, and stopping a mixer that
// was never started still resets all recording state.
func (m *Mixer) Stop() {
	m.mu.Lock()
	wasRunning := m.running
	m.running = false
	m.gen++
	user := m.user
	assistant := m.assistant
	m.user = nil
	m.assistant = nil
	m.mu.Unlock()

	if m.screen != nil {
		m.screen.Stop()
		if wasRunning {
			select {
			case <-m.screen.Done():
			case <-time.After(3 * time.Second):
				m.logger.Warn().Msg("Screen capture did not finalize in time")
			}
		}
	}

	if !wasRunning {
		return
	}

	if err := m.finalize(user, assistant); err != nil {
		m.logger.Error().Err(err).Msg("Failed to assemble recording")
		observability.RecordError("recording_finalize_error", "recorder")
		return
	}
	m.logger.Info().
		Float64("seconds", float64(max(len(user), len(assistant)))/float64(m.cfg.SampleRate)).
		Msg("Recording saved")
}

// OnMicFrame accepts one block of microphone samples. Compatible with the
// capture pipeline's tap.
func (m *Mixer) OnMicFrame(samples []float32) {
	resampled := codec.Resample(samples, m.cfg.MicSampleRate, m.cfg.SampleRate)
	m.mu.Lock()
	if m.running {
		m.user = append(m.user, resampled...)
	}
	m.mu.Unlock()
}

// OnPlaybackFrame accepts one block of response samples at the mixdown rate.
// Compatible with the playback scheduler's tap.
func (m *Mixer) OnPlaybackFrame(samples []float32) {
	m.mu.Lock()
	if m.running {
		m.assistant = append(m.assistant, samples...)
	}
	m.mu.Unlock()
}

// mixdown sums both tracks at their configured gains, clamped to [-1, 1].
func (m *Mixer) mixdown(user, assistant []float32) []float32 {
	n := max(len(user), len(assistant))
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		var v float64
		if i < len(user) {
			v += float64(user[i]) * m.cfg.UserGain
		}
		if i < len(assistant) {
			v += float64(assistant[i]) * m.cfg.AssistantGain
		}
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		out[i] = float32(v)
	}
	return out
}

func (m *Mixer) finalize(user, assistant []float32) error {
	mixed := m.mixdown(user, assistant)
	wavPath := filepath.Join(m.cfg.OutputDir, audioFilename)
	if err := writeWAV(wavPath, mixed, m.cfg.SampleRate); err != nil {
		return err
	}
	if m.cfg.FFmpegPath == "" {
		return nil
	}

	outPath := filepath.Join(m.cfg.OutputDir, RecordingFilename)
	args := []string{}
	videoPath := ""
	if m.screen != nil {
		if fi, err := os.Stat(m.screen.Path()); err == nil && fi.Size() > 0 {
			videoPath = m.screen.Path()
		}
	}
	if videoPath != "" {
		args = append(args,
			"-i", videoPath,
			"-i", wavPath,
			"-c:v", "copy",
			"-c:a", "libvorbis",
			"-shortest",
		)
	} else {
		args = append(args, "-i", wavPath, "-c:a", "libvorbis")
	}
	args = append(args, "-y", outPath)

	cmd := exec.Command(m.cfg.FFmpegPath, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("mux recording: %w: %s", err, output)
	}
	return nil
}
