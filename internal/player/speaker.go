package player

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/voxlink/live-client/internal/codec"
)

// FFPlaySpeaker feeds raw PCM to an ffplay child process over stdin.
type FFPlaySpeaker struct {
	path       string
	sampleRate int
	channels   int

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

// NewFFPlaySpeaker creates a speaker for s16le PCM at the given rate.
func NewFFPlaySpeaker(path string, sampleRate, channels int) *FFPlaySpeaker {
	if path == "" {
		path = "ffplay"
	}
	if channels <= 0 {
		channels = 1
	}
	return &FFPlaySpeaker{path: path, sampleRate: sampleRate, channels: channels}
}

// Start launches the ffplay process if it is not already running.
func (s *FFPlaySpeaker) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked()
}

func (s *FFPlaySpeaker) startLocked() error {
	if s.cmd != nil && s.cmd.Process != nil {
		return nil
	}
	// ffplay does not accept ffmpeg-style `-ac`; use `-ch_layout`.
	chLayout := "mono"
	if s.channels == 2 {
		chLayout = "stereo"
	}
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostats",
		"-nodisp",
		"-f", "s16le",
		"-ch_layout", chLayout,
		"-ar", fmt.Sprintf("%d", s.sampleRate),
		"-i", "-",
	}
	cmd := exec.Command(s.path, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create ffplay stdin pipe: %w", err)
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("failed to start ffplay: %w", err)
	}
	s.cmd = cmd
	s.stdin = stdin
	go func(c *exec.Cmd) {
		_ = c.Wait()
		s.mu.Lock()
		if s.cmd == c {
			s.cmd = nil
			s.stdin = nil
		}
		s.mu.Unlock()
	}(cmd)
	return nil
}

// Write pushes interleaved s16le PCM into the speaker.
func (s *FFPlaySpeaker) Write(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	s.mu.Lock()
	stdin := s.stdin
	s.mu.Unlock()
	if stdin == nil {
		return fmt.Errorf("speaker is not running")
	}
	_, err := stdin.Write(pcm)
	return err
}

// Restart kills the process and launches a fresh one, discarding any audio
// ffplay still had buffered. This is the hard-stop used on interruption.
func (s *FFPlaySpeaker) Restart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return s.startLocked()
}

// Close tears down the ffplay process.
func (s *FFPlaySpeaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return nil
}

func (s *FFPlaySpeaker) closeLocked() {
	if s.stdin != nil {
		_ = s.stdin.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	s.cmd = nil
	s.stdin = nil
}

// speakerOutput adapts an FFPlaySpeaker to the scheduler's Output interface.
// Sources arm timers against the output clock and write their PCM when the
// scheduled instant arrives; ffplay then plays bytes in write order.
type speakerOutput struct {
	speaker *FFPlaySpeaker
	clock   Clock
}

// NewSpeakerOutput wraps a speaker as a scheduler Output.
func NewSpeakerOutput(speaker *FFPlaySpeaker, clock Clock) Output {
	return &speakerOutput{speaker: speaker, clock: clock}
}

func (o *speakerOutput) NewSource(buf *codec.Buffer, onEnded func()) (Source, error) {
	if err := o.speaker.Start(); err != nil {
		return nil, err
	}
	return &speakerSource{
		out:      o,
		pcm:      buf.PCM16(),
		duration: buf.Duration(),
		onEnded:  onEnded,
	}, nil
}

func (o *speakerOutput) Reset() error {
	return o.speaker.Restart()
}

type speakerSource struct {
	out      *speakerOutput
	pcm      []byte
	duration float64

	mu         sync.Mutex
	stopped    bool
	startTimer *time.Timer
	endTimer   *time.Timer
	onEnded    func()
}

func (s *speakerSource) StartAt(when float64) {
	delay := time.Duration((when - s.out.clock.Now()) * float64(time.Second))
	if delay < 0 {
		delay = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.startTimer = time.AfterFunc(delay, s.begin)
}

func (s *speakerSource) begin() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	pcm := s.pcm
	s.endTimer = time.AfterFunc(time.Duration(s.duration*float64(time.Second)), s.finish)
	s.mu.Unlock()

	// Write errors are not fatal to the timeline: the ended timer still
	// fires, so the in-flight set cannot leak the source.
	_ = s.out.speaker.Write(pcm)
}

func (s *speakerSource) finish() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	ended := s.onEnded
	s.mu.Unlock()
	if ended != nil {
		ended()
	}
}

func (s *speakerSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.startTimer != nil {
		s.startTimer.Stop()
	}
	if s.endTimer != nil {
		s.endTimer.Stop()
	}
}
