// Package live implements the websocket transport for the bidirectional
// generate-content API: one connection per session, JSON frames both ways.
package live

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/voxlink/live-client/internal/observability"
	"github.com/voxlink/live-client/internal/session"
)

const defaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

// Dialer opens live sessions against the generative service.
type Dialer struct {
	apiKey   string
	endpoint string
	dialer   *websocket.Dialer
	logger   zerolog.Logger
}

// NewDialer creates a dialer authenticated with the given API key.
func NewDialer(apiKey string) *Dialer {
	return &Dialer{
		apiKey:   apiKey,
		endpoint: defaultEndpoint,
		dialer:   websocket.DefaultDialer,
		logger:   observability.WithComponent("live"),
	}
}

// WithEndpoint overrides the service endpoint, mainly for tests.
func (d *Dialer) WithEndpoint(endpoint string) *Dialer {
	d.endpoint = endpoint
	return d
}

// Dial connects, sends the session setup frame, and returns a stream whose
// reader goroutine is already running.
func (d *Dialer) Dial(ctx context.Context, cfg session.StreamConfig) (session.Stream, error) {
	u, err := url.Parse(d.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Set("key", d.apiKey)
	u.RawQuery = q.Encode()

	conn, resp, err := d.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	s := &stream{
		conn:   conn,
		msgs:   make(chan session.ServerMessage, 64),
		logger: d.logger,
	}
	if err := s.writeJSON(buildSetup(cfg)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("session setup failed: %w", err)
	}

	go s.readLoop()
	d.logger.Info().Str("model", cfg.Model).Str("voice", cfg.Voice).Msg("Live session opened")
	return s, nil
}

func buildSetup(cfg session.StreamConfig) setupMessage {
	model := cfg.Model
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}
	setup := setupPayload{
		Model: model,
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"AUDIO"},
		},
		InputAudioTranscription:  &struct{}{},
		OutputAudioTranscription: &struct{}{},
	}
	if cfg.Voice != "" {
		setup.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{
				PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}
	if cfg.SystemPrompt != "" {
		setup.SystemInstruction = &content{Parts: []part{{Text: cfg.SystemPrompt}}}
	}
	if len(cfg.Tools) > 0 {
		decls := make([]functionDeclaration, 0, len(cfg.Tools))
		for _, t := range cfg.Tools {
			decls = append(decls, functionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			})
		}
		setup.Tools = []toolSet{{FunctionDeclarations: decls}}
	}
	return setupMessage{Setup: setup}
}

// stream is one live websocket connection.
type stream struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
	err    error

	msgs   chan session.ServerMessage
	logger zerolog.Logger
}

func (s *stream) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

// SendMedia submits one base64 media chunk on the realtime input channel.
func (s *stream) SendMedia(mimeType, data string) error {
	msg := realtimeInputMessage{
		RealtimeInput: realtimeInput{
			MediaChunks: []inlineData{{MimeType: mimeType, Data: data}},
		},
	}
	if err := s.writeJSON(msg); err != nil {
		return fmt.Errorf("%w: %v", session.ErrConnection, err)
	}
	return nil
}

// SendToolResponse answers a function call from the model.
func (s *stream) SendToolResponse(r session.ToolResponse) error {
	msg := toolResponseMessage{
		ToolResponse: toolResponsePayload{
			FunctionResponses: []functionResponse{{
				ID:       r.ID,
				Name:     r.Name,
				Response: r.Result,
			}},
		},
	}
	if err := s.writeJSON(msg); err != nil {
		return fmt.Errorf("%w: %v", session.ErrConnection, err)
	}
	return nil
}

func (s *stream) Messages() <-chan session.ServerMessage { return s.msgs }

// Err reports why the message channel closed. Nil after a deliberate Close.
func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close sends a close frame and tears down the connection.
func (s *stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.writeMu.Lock()
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	return s.conn.Close()
}

func (s *stream) readLoop() {
	defer close(s.msgs)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			deliberate := s.closed
			if !deliberate && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.err = fmt.Errorf("%w: %v", session.ErrConnection, err)
			}
			s.mu.Unlock()
			if !deliberate {
				s.conn.Close()
			}
			return
		}

		msgs, err := decodeServerMessage(data)
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to decode server frame")
			observability.RecordError("decode_error", "live")
			continue
		}
		for _, m := range msgs {
			s.msgs <- m
		}
	}
}

// decodeServerMessage translates one server frame into zero or more stream
// messages. A single serverContent frame can carry an interruption flag,
// audio parts, transcriptions, and a turn-complete flag at once; they are
// emitted in that order so consumers see the interruption before new audio.
func decodeServerMessage(data []byte) ([]session.ServerMessage, error) {
	var env serverEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal server frame: %w", err)
	}

	var out []session.ServerMessage

	if env.SetupComplete != nil {
		out = append(out, session.ServerMessage{Kind: session.KindSetupComplete})
	}

	if sc := env.ServerContent; sc != nil {
		if sc.Interrupted {
			out = append(out, session.ServerMessage{Kind: session.KindInterrupted})
		}
		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				if p.InlineData != nil && p.InlineData.Data != "" {
					out = append(out, session.ServerMessage{
						Kind:  session.KindAudio,
						Audio: p.InlineData.Data,
					})
				}
			}
		}
		if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
			out = append(out, session.ServerMessage{
				Kind: session.KindInputTranscript,
				Text: sc.InputTranscription.Text,
			})
		}
		if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
			out = append(out, session.ServerMessage{
				Kind: session.KindOutputTranscript,
				Text: sc.OutputTranscription.Text,
			})
		}
		if sc.TurnComplete {
			out = append(out, session.ServerMessage{Kind: session.KindTurnComplete})
		}
	}

	if env.ToolCall != nil {
		calls := make([]session.ToolCall, 0, len(env.ToolCall.FunctionCalls))
		for _, fc := range env.ToolCall.FunctionCalls {
			calls = append(calls, session.ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
		out = append(out, session.ServerMessage{Kind: session.KindToolCall, Calls: calls})
	}

	if env.GoAway != nil {
		out = append(out, session.ServerMessage{Kind: session.KindGoAway})
	}

	return out, nil
}
