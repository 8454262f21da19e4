package player

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/voxlink/live-client/internal/codec"
	"github.com/voxlink/live-client/internal/observability"
)

// Source is one scheduled playback of a decoded buffer.
type Source interface {
	// StartAt schedules playback to begin at the given output-clock instant.
	StartAt(when float64)
	// Stop halts the source immediately. A stopped source never fires its
	// ended callback.
	Stop()
}

// Output creates playback sources connected into the shared output mix.
type Output interface {
	// NewSource binds a decoded buffer to a new source. onEnded fires once
	// the source finishes playing naturally.
	NewSource(buf *codec.Buffer, onEnded func()) (Source, error)
	// Reset hard-stops everything currently audible.
	Reset() error
}

// Tap observes mono sample frames flowing through the output path.
type Tap interface {
	OnFrame(samples []float32)
}

// TapFunc adapts a function to the Tap interface.
type TapFunc func(samples []float32)

// OnFrame implements Tap.
func (f TapFunc) OnFrame(samples []float32) { f(samples) }

// Scheduler plays decoded response chunks gaplessly against the output clock.
// Each chunk starts exactly when the previous chunk ends, or immediately when
// the cursor has fallen behind the clock.
type Scheduler struct {
	mu       sync.Mutex
	clock    Clock
	out      Output
	cursor   float64
	inflight map[Source]struct{}
	taps     []Tap
	logger   zerolog.Logger
}

// NewScheduler creates a scheduler over the given clock and output.
func NewScheduler(clock Clock, out Output) *Scheduler {
	return &Scheduler{
		clock:    clock,
		out:      out,
		inflight: make(map[Source]struct{}),
		logger:   observability.WithComponent("player"),
	}
}

// AddTap registers an observer for enqueued audio. Taps see the mono mixdown
// of every chunk at enqueue time.
func (s *Scheduler) AddTap(t Tap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taps = append(s.taps, t)
}

// Enqueue schedules a decoded chunk to start when the previous chunk ends.
// A source creation failure drops the chunk and leaves the cursor untouched,
// so one bad chunk cannot desynchronize subsequent playback.
func (s *Scheduler) Enqueue(buf *codec.Buffer) {
	s.mu.Lock()

	now := s.clock.Now()
	if s.cursor < now {
		// Never schedule in the past.
		s.cursor = now
	}

	var src Source
	src, err := s.out.NewSource(buf, func() {
		s.remove(src)
	})
	if err != nil {
		s.mu.Unlock()
		s.logger.Error().Err(err).Msg("Failed to create playback source, dropping chunk")
		observability.RecordError("source_create_error", "player")
		return
	}

	start := s.cursor
	s.cursor += buf.Duration()
	s.inflight[src] = struct{}{}
	src.StartAt(start)

	taps := make([]Tap, len(s.taps))
	copy(taps, s.taps)
	s.mu.Unlock()

	observability.RecordChunkScheduled()
	observability.RecordAudioBytes("out", int64(buf.Frames()*buf.NumChannels()*2))

	if len(taps) > 0 {
		mono := buf.Mono()
		for _, t := range taps {
			t.OnFrame(mono)
		}
	}

	s.logger.Debug().
		Float64("start", start).
		Float64("duration", buf.Duration()).
		Msg("Scheduled playback chunk")
}

// Interrupt stops every in-flight source, clears the set, and resets the
// cursor to zero. The next enqueued chunk starts immediately relative to the
// current clock because Enqueue clamps the cursor forward; the zero reset and
// that clamp are interdependent.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	stopped := len(s.inflight)
	for src := range s.inflight {
		src.Stop()
	}
	s.inflight = make(map[Source]struct{})
	s.cursor = 0
	s.mu.Unlock()

	if err := s.out.Reset(); err != nil {
		s.logger.Warn().Err(err).Msg("Output reset failed during interruption")
	}

	observability.RecordInterruption()
	s.logger.Info().Int("stopped_sources", stopped).Msg("Playback interrupted")
}

// InFlight returns the number of currently scheduled or playing sources.
func (s *Scheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

// Cursor returns the output-timeline instant the next chunk would start at.
func (s *Scheduler) Cursor() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

func (s *Scheduler) remove(src Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, src)
}
