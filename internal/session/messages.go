package session

import (
	"context"
	"errors"
)

var (
	// ErrConnection indicates a live session open or runtime failure.
	ErrConnection = errors.New("live session connection failed")
	// ErrPrecondition indicates an action requested in an invalid state.
	ErrPrecondition = errors.New("no active conversation")
)

// MessageKind discriminates every inbound message shape from the live
// service. Routing switches over it exhaustively; there is no field sniffing.
type MessageKind int

const (
	KindSetupComplete MessageKind = iota
	KindAudio
	KindInputTranscript
	KindOutputTranscript
	KindToolCall
	KindTurnComplete
	KindInterrupted
	KindGoAway
)

func (k MessageKind) String() string {
	switch k {
	case KindSetupComplete:
		return "setup_complete"
	case KindAudio:
		return "audio"
	case KindInputTranscript:
		return "input_transcript"
	case KindOutputTranscript:
		return "output_transcript"
	case KindToolCall:
		return "tool_call"
	case KindTurnComplete:
		return "turn_complete"
	case KindInterrupted:
		return "interrupted"
	case KindGoAway:
		return "go_away"
	default:
		return "unknown"
	}
}

// ToolCall is one function invocation requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ServerMessage is the tagged union delivered by a Stream, one variant per
// inbound message kind.
type ServerMessage struct {
	Kind  MessageKind
	Audio string // transport-encoded PCM payload, KindAudio only
	Text  string // transcription delta, transcript kinds only
	Calls []ToolCall
}

// ToolResponse answers a tool call, keyed by the call's identifier and name.
type ToolResponse struct {
	ID     string
	Name   string
	Result map[string]any
}

// ToolDeclaration describes one callable function advertised at session open.
type ToolDeclaration struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// StreamConfig carries everything the transport needs to open a session.
type StreamConfig struct {
	Model            string
	Voice            string
	SystemPrompt     string
	InputSampleRate  int
	OutputSampleRate int
	Tools            []ToolDeclaration
}

// Stream is the single logical connection to the remote live service.
type Stream interface {
	// SendMedia submits one realtime media chunk (transport-encoded).
	SendMedia(mimeType, data string) error
	// SendToolResponse answers a tool call.
	SendToolResponse(resp ToolResponse) error
	// Messages yields inbound messages in arrival order. The channel closes
	// when the connection ends; Err then reports the terminal error, if any.
	Messages() <-chan ServerMessage
	// Err returns the terminal connection error after Messages has closed.
	Err() error
	// Close tears the connection down.
	Close() error
}

// Dialer opens live session streams.
type Dialer interface {
	Dial(ctx context.Context, cfg StreamConfig) (Stream, error)
}
