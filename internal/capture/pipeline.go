// Package capture streams microphone audio to the live session in
// fixed-size sample blocks.
package capture

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/voxlink/live-client/internal/codec"
	"github.com/voxlink/live-client/internal/observability"
)

// Sender submits one transport-encoded media chunk to the live session.
type Sender interface {
	SendMedia(mimeType, data string) error
}

// Resolver returns the current session stream, or false when no conversation
// is active. It is consulted before every send so all producers observe a
// session replacement atomically.
type Resolver func() (Sender, bool)

// Tap observes captured mono sample blocks.
type Tap interface {
	OnFrame(samples []float32)
}

// TapFunc adapts a function to the Tap interface.
type TapFunc func(samples []float32)

// OnFrame implements Tap.
func (f TapFunc) OnFrame(samples []float32) { f(samples) }

// Config sets the capture format.
type Config struct {
	SampleRate   int
	BlockSamples int
}

// Pipeline owns the microphone device and the block pump.
type Pipeline struct {
	ctx     Context
	resolve Resolver
	cfg     Config

	mu      sync.Mutex
	device  Device
	ring    *Ring
	taps    []Tap
	running bool
	done    chan struct{}
	wg      sync.WaitGroup

	logger zerolog.Logger
}

// NewPipeline creates a capture pipeline over a device context.
func NewPipeline(ctx Context, resolve Resolver, cfg Config) *Pipeline {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.BlockSamples <= 0 {
		cfg.BlockSamples = 4096
	}
	return &Pipeline{
		ctx:     ctx,
		resolve: resolve,
		cfg:     cfg,
		logger:  observability.WithComponent("capture"),
	}
}

// AddTap registers an observer for captured sample blocks.
func (p *Pipeline) AddTap(t Tap) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.taps = append(p.taps, t)
}

// Start acquires the microphone and begins pumping fixed-size blocks to the
// resolved session. Acquisition failures surface ErrPermissionDenied or
// ErrDeviceUnavailable to the caller.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}

	blockBytes := p.cfg.BlockSamples * 2
	p.ring = NewRing(blockBytes * 8)

	device, err := p.ctx.OpenCapture(DeviceConfig{
		SampleRate: p.cfg.SampleRate,
		Channels:   1,
	}, p.onData)
	if err != nil {
		return fmt.Errorf("failed to acquire microphone: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Close()
		return fmt.Errorf("failed to start microphone: %w", err)
	}

	p.device = device
	p.running = true
	p.done = make(chan struct{})
	p.wg.Add(1)
	go p.pump(p.done)

	p.logger.Info().
		Int("sample_rate", p.cfg.SampleRate).
		Int("block_samples", p.cfg.BlockSamples).
		Msg("Microphone capture started")
	return nil
}

// Stop disconnects the pump, stops the device, and clears all handles.
// Idempotent and safe to call when never started. No block is submitted once
// Stop has returned.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.done)
	device := p.device
	p.device = nil
	p.mu.Unlock()

	device.Stop()
	device.Close()
	p.wg.Wait()

	p.mu.Lock()
	p.ring = nil
	p.mu.Unlock()

	p.logger.Info().Msg("Microphone capture stopped")
}

// Running reports whether capture is active.
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// onData runs on the device thread; it only buffers.
func (p *Pipeline) onData(pcm []byte) {
	p.mu.Lock()
	ring := p.ring
	running := p.running
	p.mu.Unlock()
	if !running || ring == nil {
		return
	}
	if written := ring.Write(pcm); written < len(pcm) {
		p.logger.Warn().Int("dropped", len(pcm)-written).Msg("Capture ring full, dropping audio")
	}
}

func (p *Pipeline) pump(done chan struct{}) {
	defer p.wg.Done()

	blockBytes := p.cfg.BlockSamples * 2
	block := make([]byte, blockBytes)
	mimeType := fmt.Sprintf("audio/pcm;rate=%d", p.cfg.SampleRate)

	for {
		select {
		case <-done:
			return
		default:
		}

		p.mu.Lock()
		ring := p.ring
		p.mu.Unlock()
		if ring == nil || ring.Available() < blockBytes {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		ring.Read(block)

		samples := codec.SamplesFromPCM16(block)

		p.mu.Lock()
		taps := make([]Tap, len(p.taps))
		copy(taps, p.taps)
		p.mu.Unlock()
		for _, t := range taps {
			t.OnFrame(samples)
		}

		sender, ok := p.resolve()
		if !ok {
			// Conversation not active; the block is stale, drop it.
			continue
		}

		payload := codec.EncodePCM16(samples)
		if err := sender.SendMedia(mimeType, payload); err != nil {
			// Fire-and-forget relative to block capture: log and move on.
			p.logger.Error().Err(err).Msg("Failed to submit audio block")
			observability.RecordError("audio_send_error", "capture")
			continue
		}
		observability.RecordAudioBytes("in", int64(blockBytes))
	}
}
