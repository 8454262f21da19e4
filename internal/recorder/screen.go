package recorder

import (
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/rs/zerolog"

	"github.com/voxlink/live-client/internal/observability"
)

// Screen captures the display into a video file for the duration of a
// recording. Done closes when the capture process exits for any reason,
// including the user killing it externally.
type Screen interface {
	Start() error
	Stop()
	Path() string
	Done() <-chan struct{}
}

// FFmpegScreen grabs the X display with an ffmpeg child process.
type FFmpegScreen struct {
	command string
	display string
	path    string

	mu      sync.Mutex
	cmd     *exec.Cmd
	done    chan struct{}
	stopped bool

	logger zerolog.Logger
}

// NewFFmpegScreen creates a screen grabber writing to path. Empty command
// and display fall back to "ffmpeg" and $DISPLAY (or ":0.0").
func NewFFmpegScreen(command, display, path string) *FFmpegScreen {
	if command == "" {
		command = "ffmpeg"
	}
	if display == "" {
		display = os.Getenv("DISPLAY")
	}
	if display == "" {
		display = ":0.0"
	}
	return &FFmpegScreen{
		command: command,
		display: display,
		path:    path,
		logger:  observability.WithComponent("recorder"),
	}
}

func (s *FFmpegScreen) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != nil {
		return nil
	}

	cmd := exec.Command(s.command,
		"-f", "x11grab",
		"-framerate", "15",
		"-i", s.display,
		"-c:v", "libvpx",
		"-y",
		s.path,
	)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start screen capture: %w", err)
	}
	s.cmd = cmd
	s.stopped = false
	s.done = make(chan struct{})
	s.logger.Info().Str("display", s.display).Str("path", s.path).Msg("Screen capture started")

	done := s.done
	go func() {
		err := cmd.Wait()
		s.mu.Lock()
		deliberate := s.stopped
		s.cmd = nil
		s.mu.Unlock()
		if err != nil && !deliberate {
			s.logger.Warn().Err(err).Msg("Screen capture process exited")
		}
		close(done)
	}()
	return nil
}

// Stop interrupts the capture process so ffmpeg finalizes the file. Safe to
// call repeatedly or when never started.
func (s *FFmpegScreen) Stop() {
	s.mu.Lock()
	cmd := s.cmd
	s.stopped = true
	s.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Signal(os.Interrupt)
	}
}

func (s *FFmpegScreen) Path() string { return s.path }

func (s *FFmpegScreen) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return s.done
}
