package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TranscriptFilename is the fixed export filename.
const TranscriptFilename = "transcript.txt"

// Speaker tags one side of the conversation.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Entry is the full text of one completed turn. Immutable once appended.
type Entry struct {
	Speaker Speaker
	Text    string
}

// accumulator holds the in-progress transcript for both directions. Partial
// results append here; a turn-completion flushes non-empty buffers into
// history entries and clears them.
type accumulator struct {
	user      strings.Builder
	assistant strings.Builder
}

func (a *accumulator) appendUser(text string) {
	a.user.WriteString(text)
}

func (a *accumulator) appendAssistant(text string) {
	a.assistant.WriteString(text)
}

// flush returns the completed entries, user first, assistant second, only
// when non-empty, and clears both buffers.
func (a *accumulator) flush() []Entry {
	var entries []Entry
	if a.user.Len() > 0 {
		entries = append(entries, Entry{Speaker: SpeakerUser, Text: a.user.String()})
	}
	if a.assistant.Len() > 0 {
		entries = append(entries, Entry{Speaker: SpeakerAssistant, Text: a.assistant.String()})
	}
	a.reset()
	return entries
}

func (a *accumulator) reset() {
	a.user.Reset()
	a.assistant.Reset()
}

// FormatTranscript renders history as "<speaker>: <text>" blocks separated
// by a blank line.
func FormatTranscript(entries []Entry) string {
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = fmt.Sprintf("%s: %s", e.Speaker, e.Text)
	}
	return strings.Join(parts, "\n\n")
}

// ExportTranscript writes the formatted history into dir under the fixed
// filename and returns the written path.
func ExportTranscript(dir string, entries []Entry) (string, error) {
	path := filepath.Join(dir, TranscriptFilename)
	if err := os.WriteFile(path, []byte(FormatTranscript(entries)), 0o644); err != nil {
		return "", fmt.Errorf("failed to write transcript: %w", err)
	}
	return path, nil
}
