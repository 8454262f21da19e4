package frames

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeCamera struct {
	mu      sync.Mutex
	frame   []byte
	grabErr error
	grabs   int
	closed  bool
}

func (c *fakeCamera) Grab(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.grabs++
	if c.grabErr != nil {
		return nil, c.grabErr
	}
	return c.frame, nil
}

func (c *fakeCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeCamera) grabCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.grabs
}

type fakeSender struct {
	mu      sync.Mutex
	sendErr error
	frames  []string
	mimes   []string
}

func (s *fakeSender) SendMedia(mimeType, data string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.mimes = append(s.mimes, mimeType)
	s.frames = append(s.frames, data)
	return nil
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestPipeline_SubmitsFramesAtFixedRate(t *testing.T) {
	cam := &fakeCamera{frame: []byte{0xFF, 0xD8, 0xFF}}
	sender := &fakeSender{}
	p := NewPipeline(cam, func() (Sender, bool) { return sender, true }, Config{
		FramesPerSecond: 50, // fast rate keeps the test quick
	})

	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Stop()

	if !waitFor(t, time.Second, func() bool { return sender.count() >= 3 }) {
		t.Fatalf("Expected at least 3 frames, got %d", sender.count())
	}
	if sender.mimes[0] != "image/jpeg" {
		t.Errorf("Unexpected MIME type %q", sender.mimes[0])
	}
}

func TestPipeline_StartSurfacesCameraError(t *testing.T) {
	cam := &fakeCamera{grabErr: ErrCameraUnavailable}
	p := NewPipeline(cam, func() (Sender, bool) { return nil, false }, Config{})

	err := p.Start()
	if err == nil {
		t.Fatal("Expected error from Start")
	}
	if !errors.Is(err, ErrCameraUnavailable) {
		t.Errorf("Expected ErrCameraUnavailable, got %v", err)
	}
	if p.Running() {
		t.Error("Expected pipeline not running after failed Start")
	}
}

func TestPipeline_DropsFramesSilentlyWhenInactive(t *testing.T) {
	cam := &fakeCamera{frame: []byte{1}}
	sender := &fakeSender{}
	p := NewPipeline(cam, func() (Sender, bool) { return sender, false }, Config{
		FramesPerSecond: 50,
	})

	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Stop()

	// Grabs keep happening, nothing is submitted, nothing blows up.
	if !waitFor(t, time.Second, func() bool { return cam.grabCount() >= 3 }) {
		t.Fatal("Expected grabs to continue while inactive")
	}
	if sender.count() != 0 {
		t.Errorf("Expected no submissions while inactive, got %d", sender.count())
	}
}

func TestPipeline_DropsFramesOnSendFailure(t *testing.T) {
	cam := &fakeCamera{frame: []byte{1}}
	sender := &fakeSender{sendErr: errors.New("session not connected")}
	p := NewPipeline(cam, func() (Sender, bool) { return sender, true }, Config{
		FramesPerSecond: 50,
	})

	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Stop()

	before := cam.grabCount()
	if !waitFor(t, time.Second, func() bool { return cam.grabCount() > before+2 }) {
		t.Error("Expected timer to keep running despite send failures")
	}
}

func TestPipeline_StopIsIdempotent(t *testing.T) {
	cam := &fakeCamera{frame: []byte{1}}
	p := NewPipeline(cam, func() (Sender, bool) { return nil, false }, Config{})

	// Stop before start is a no-op.
	p.Stop()

	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	p.Stop()
	p.Stop()

	if !cam.closed {
		t.Error("Expected camera closed after Stop")
	}

	grabs := cam.grabCount()
	time.Sleep(100 * time.Millisecond)
	if cam.grabCount() != grabs {
		t.Error("Expected no grabs after Stop")
	}
}
