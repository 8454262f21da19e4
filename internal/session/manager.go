// Package session owns the single logical connection to the live service:
// connect, replace on settings change, tear down, and route every inbound
// message to the right handler.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/voxlink/live-client/internal/codec"
	"github.com/voxlink/live-client/internal/observability"
)

// SetColorTool is the tool name the manager dispatches to the visual sink.
const SetColorTool = "set_color"

// State is the session connection state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Player schedules decoded response audio and handles interruption.
type Player interface {
	Enqueue(buf *codec.Buffer)
	Interrupt()
}

// Pipeline is a start/stoppable media producer (microphone, camera).
type Pipeline interface {
	Start() error
	Stop()
}

// Recorder is the recording mixer the stop cascade reaches.
type Recorder interface {
	Start() error
	Stop()
}

// VisualSink consumes side effects from the tool-call path.
type VisualSink interface {
	SetColor(color string)
}

// Config fixes the transport parameters of every session this manager opens.
type Config struct {
	Model            string
	InputSampleRate  int
	OutputSampleRate int
}

// Deps are the collaborators the manager drives.
type Deps struct {
	Dialer   Dialer
	Player   Player
	Mic      Pipeline
	Camera   Pipeline   // optional
	Recorder Recorder   // optional
	Visual   VisualSink // optional
}

// Manager owns the Session lifecycle and inbound message routing.
type Manager struct {
	deps Deps
	cfg  Config

	mu      sync.Mutex
	state   State
	gen     int
	stream  Stream
	applied Settings
	pending Settings
	acc     accumulator
	history []Entry
	metrics *observability.SessionMetrics

	logger zerolog.Logger
}

// NewManager creates a manager with initial settings, which become both the
// pending and (on first start) the applied copy.
func NewManager(deps Deps, cfg Config, settings Settings) *Manager {
	if cfg.InputSampleRate <= 0 {
		cfg.InputSampleRate = 16000
	}
	if cfg.OutputSampleRate <= 0 {
		cfg.OutputSampleRate = 24000
	}
	return &Manager{
		deps:    deps,
		cfg:     cfg,
		applied: settings,
		pending: settings,
		logger:  observability.WithComponent("session"),
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Resolve returns the current stream when a conversation is active. All
// producers go through this accessor so they observe a session replacement
// atomically.
func (m *Manager) Resolve() (Stream, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected || m.stream == nil {
		return nil, false
	}
	return m.stream, true
}

// UpdateSettings edits the pending settings copy. The live session is not
// touched until Apply.
func (m *Manager) UpdateSettings(s Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = s
}

// PendingSettings returns the editable settings copy.
func (m *Manager) PendingSettings() Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

// AppliedSettings returns the settings bound to the live session.
func (m *Manager) AppliedSettings() Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applied
}

// History returns a copy of the completed transcript entries.
func (m *Manager) History() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.history))
	copy(out, m.history)
	return out
}

// ExportTranscript writes the transcript history into dir.
func (m *Manager) ExportTranscript(dir string) (string, error) {
	return ExportTranscript(dir, m.History())
}

// Start opens a session with the pending settings and starts the capture
// pipelines. Starting an already-connected manager is a no-op.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateConnected || m.state == StateConnecting {
		m.mu.Unlock()
		return nil
	}
	m.gen++
	gen := m.gen
	settings := m.pending
	m.state = StateConnecting
	m.mu.Unlock()
	observability.SetSessionState(int(StateConnecting))

	stream, err := m.deps.Dialer.Dial(ctx, m.streamConfig(settings))
	if err != nil {
		m.mu.Lock()
		if gen == m.gen {
			m.state = StateError
		}
		m.mu.Unlock()
		observability.SetSessionState(int(StateError))
		observability.RecordError("connection_error", "session")
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}

	m.mu.Lock()
	if gen != m.gen {
		// Superseded by a newer Start/Stop/Apply while dialing.
		m.mu.Unlock()
		_ = stream.Close()
		return nil
	}
	m.stream = stream
	m.state = StateConnected
	m.applied = settings
	m.metrics = observability.NewSessionMetrics()
	m.mu.Unlock()
	observability.SetSessionState(int(StateConnected))

	go m.route(stream, gen)

	if err := m.deps.Mic.Start(); err != nil {
		m.logger.Error().Err(err).Msg("Microphone start failed, stopping conversation")
		m.Stop()
		return err
	}
	if m.deps.Camera != nil {
		if err := m.deps.Camera.Start(); err != nil {
			// Video is best-effort; the conversation continues audio-only.
			m.logger.Warn().Err(err).Msg("Camera unavailable, continuing without video")
			observability.RecordError("camera_error", "session")
		}
	}

	m.logger.Info().
		Str("session_id", observability.NewSessionID()).
		Str("voice", string(settings.Voice)).
		Msg("Conversation started")
	return nil
}

// Stop tears down the conversation: pipelines first, then the stream.
// Stopping a conversation that was never started is a no-op.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.state == StateIdle && m.stream == nil {
		m.mu.Unlock()
		return
	}
	m.gen++ // invalidate the route loop before the close races it
	stream := m.stream
	m.stream = nil
	m.state = StateIdle
	m.acc.reset()
	if m.metrics != nil {
		m.metrics.RecordEnd()
		m.metrics = nil
	}
	m.mu.Unlock()

	m.stopPipelines()
	if stream != nil {
		_ = stream.Close()
	}
	observability.SetSessionState(int(StateIdle))
	m.logger.Info().Msg("Conversation stopped")
}

// Apply replaces the session with one configured from the pending settings:
// pipelines stop, the old session closes, transcription state and history are
// discarded, and a new session opens.
func (m *Manager) Apply(ctx context.Context) error {
	m.mu.Lock()
	m.gen++
	stream := m.stream
	m.stream = nil
	m.state = StateIdle
	m.acc.reset()
	m.history = nil
	if m.metrics != nil {
		m.metrics.RecordEnd()
		m.metrics = nil
	}
	m.mu.Unlock()

	m.stopPipelines()
	if stream != nil {
		_ = stream.Close()
	}

	m.logger.Info().Msg("Applying settings, reconnecting")
	return m.Start(ctx)
}

// StartRecording starts the recording mixer. Fails when no conversation is
// active.
func (m *Manager) StartRecording() error {
	m.mu.Lock()
	active := m.state == StateConnected
	m.mu.Unlock()
	if !active {
		return ErrPrecondition
	}
	if m.deps.Recorder == nil {
		return fmt.Errorf("no recorder configured")
	}
	return m.deps.Recorder.Start()
}

// StopRecording stops the recording mixer, if any.
func (m *Manager) StopRecording() {
	if m.deps.Recorder != nil {
		m.deps.Recorder.Stop()
	}
}

func (m *Manager) stopPipelines() {
	m.deps.Mic.Stop()
	if m.deps.Camera != nil {
		m.deps.Camera.Stop()
	}
	if m.deps.Recorder != nil {
		m.deps.Recorder.Stop()
	}
	m.deps.Player.Interrupt()
}

// route consumes one stream's messages until it closes. It is bound to the
// generation that opened the stream; a replaced stream's late messages are
// dropped by the generation check.
func (m *Manager) route(stream Stream, gen int) {
	for msg := range stream.Messages() {
		m.handle(gen, msg)
	}
	m.onStreamClosed(gen, stream.Err())
}

func (m *Manager) handle(gen int, msg ServerMessage) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}

	switch msg.Kind {
	case KindSetupComplete:
		m.logger.Debug().Msg("Session setup complete")
		m.mu.Unlock()

	case KindToolCall:
		stream := m.stream
		m.mu.Unlock()
		m.dispatchToolCalls(stream, msg.Calls)

	case KindAudio:
		m.mu.Unlock()
		m.enqueueAudio(gen, msg.Audio)

	case KindInputTranscript:
		m.acc.appendUser(msg.Text)
		m.mu.Unlock()

	case KindOutputTranscript:
		m.acc.appendAssistant(msg.Text)
		m.mu.Unlock()

	case KindTurnComplete:
		entries := m.acc.flush()
		m.history = append(m.history, entries...)
		m.mu.Unlock()
		for _, e := range entries {
			observability.RecordTranscriptTurn(string(e.Speaker))
		}

	case KindInterrupted:
		m.mu.Unlock()
		m.logger.Info().Msg("User interruption signalled")
		m.deps.Player.Interrupt()

	case KindGoAway:
		m.mu.Unlock()
		m.logger.Warn().Msg("Live service signalled imminent disconnect")

	default:
		m.mu.Unlock()
		m.logger.Warn().Str("kind", msg.Kind.String()).Msg("Unhandled message kind")
	}
}

func (m *Manager) dispatchToolCalls(stream Stream, calls []ToolCall) {
	for _, call := range calls {
		switch call.Name {
		case SetColorTool:
			if m.deps.Visual != nil {
				color, _ := call.Args["color"].(string)
				// Passed through unvalidated; the sink decides what a bad
				// color means.
				m.deps.Visual.SetColor(color)
			}
			if stream != nil {
				resp := ToolResponse{
					ID:     call.ID,
					Name:   call.Name,
					Result: map[string]any{"ok": true},
				}
				if err := stream.SendToolResponse(resp); err != nil {
					m.logger.Error().Err(err).Str("tool", call.Name).Msg("Failed to send tool response")
					observability.RecordError("tool_response_error", "session")
				}
			}
		default:
			m.logger.Debug().Str("tool", call.Name).Msg("Ignoring unknown tool call")
		}
	}
}

func (m *Manager) enqueueAudio(gen int, payload string) {
	data, err := codec.Decode(payload)
	if err != nil {
		m.logger.Error().Err(err).Msg("Dropping malformed audio chunk")
		observability.RecordError("decode_error", "session")
		return
	}
	buf, err := codec.DecodeAudioData(data, m.cfg.OutputSampleRate, 1)
	if err != nil {
		m.logger.Error().Err(err).Msg("Dropping undecodable audio chunk")
		observability.RecordError("decode_error", "session")
		return
	}
	// The session may have been replaced while decoding; a stale chunk must
	// not reach the player.
	m.mu.Lock()
	stale := gen != m.gen
	m.mu.Unlock()
	if stale {
		return
	}
	m.deps.Player.Enqueue(buf)
}

// onStreamClosed runs the stop cascade when the connection ends underneath
// us. A dangling capture or frame pipeline after session teardown is a
// correctness bug, so every pipeline stops here, synchronously.
func (m *Manager) onStreamClosed(gen int, err error) {
	m.mu.Lock()
	if gen != m.gen {
		// Deliberately replaced; the replacement already cleaned up.
		m.mu.Unlock()
		return
	}
	m.gen++
	m.stream = nil
	if err != nil {
		m.state = StateError
	} else {
		m.state = StateIdle
	}
	m.acc.reset()
	if m.metrics != nil {
		m.metrics.RecordEnd()
		m.metrics = nil
	}
	state := m.state
	m.mu.Unlock()

	m.stopPipelines()
	observability.SetSessionState(int(state))

	if err != nil {
		m.logger.Error().Err(err).Msg("Session closed with error")
		observability.RecordError("connection_error", "session")
	} else {
		m.logger.Info().Msg("Session closed")
	}
}

func (m *Manager) streamConfig(settings Settings) StreamConfig {
	return StreamConfig{
		Model:            m.cfg.Model,
		Voice:            string(settings.Voice),
		SystemPrompt:     settings.SystemPrompt,
		InputSampleRate:  m.cfg.InputSampleRate,
		OutputSampleRate: m.cfg.OutputSampleRate,
		Tools: []ToolDeclaration{
			{
				Name:        SetColorTool,
				Description: "Set the visualizer color.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"color": map[string]any{"type": "string"},
					},
					"required": []string{"color"},
				},
			},
		},
	}
}
