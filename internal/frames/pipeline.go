// Package frames periodically rasterizes camera frames and forwards them to
// the live session. Delivery is best-effort: a failed frame is dropped, never
// queued or retried.
package frames

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/voxlink/live-client/internal/observability"
)

// Sender submits one transport-encoded media chunk to the live session.
type Sender interface {
	SendMedia(mimeType, data string) error
}

// Resolver returns the current session stream, or false when no conversation
// is active.
type Resolver func() (Sender, bool)

// Config sets the frame capture rate.
type Config struct {
	FramesPerSecond int
	GrabTimeout     time.Duration
}

// Pipeline owns the camera and the fixed-rate frame timer.
type Pipeline struct {
	camera  Camera
	resolve Resolver
	cfg     Config

	mu      sync.Mutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup

	logger zerolog.Logger
}

// NewPipeline creates a frame capture pipeline.
func NewPipeline(camera Camera, resolve Resolver, cfg Config) *Pipeline {
	if cfg.FramesPerSecond <= 0 {
		cfg.FramesPerSecond = 2
	}
	if cfg.GrabTimeout <= 0 {
		cfg.GrabTimeout = 2 * time.Second
	}
	return &Pipeline{
		camera:  camera,
		resolve: resolve,
		cfg:     cfg,
		logger:  observability.WithComponent("frames"),
	}
}

// Start acquires the camera and begins the fixed-rate frame timer.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}

	// Probe once so acquisition failures surface to the caller instead of
	// being swallowed by the lossy per-frame path.
	probeCtx, cancel := context.WithTimeout(context.Background(), p.cfg.GrabTimeout)
	defer cancel()
	if _, err := p.camera.Grab(probeCtx); err != nil {
		return fmt.Errorf("failed to acquire camera: %w", err)
	}

	p.running = true
	p.done = make(chan struct{})
	p.wg.Add(1)
	go p.loop(p.done)

	p.logger.Info().Int("fps", p.cfg.FramesPerSecond).Msg("Frame capture started")
	return nil
}

// Stop clears the timer and detaches the camera. Idempotent.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.done)
	p.mu.Unlock()

	p.wg.Wait()
	_ = p.camera.Close()
	p.logger.Info().Msg("Frame capture stopped")
}

// Running reports whether the frame timer is active.
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Pipeline) loop(done chan struct{}) {
	defer p.wg.Done()

	interval := time.Second / time.Duration(p.cfg.FramesPerSecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			p.captureFrame()
		}
	}
}

func (p *Pipeline) captureFrame() {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.GrabTimeout)
	defer cancel()

	frame, err := p.camera.Grab(ctx)
	if err != nil {
		p.logger.Debug().Err(err).Msg("Frame grab failed, dropping")
		observability.RecordFrame("dropped")
		return
	}

	sender, ok := p.resolve()
	if !ok {
		observability.RecordFrame("dropped")
		return
	}

	payload := base64.StdEncoding.EncodeToString(frame)
	if err := sender.SendMedia("image/jpeg", payload); err != nil {
		p.logger.Debug().Err(err).Msg("Frame submission failed, dropping")
		observability.RecordFrame("dropped")
		return
	}
	observability.RecordFrame("sent")
}
