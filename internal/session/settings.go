package session

import "fmt"

// Voice identifies one of the prebuilt voices offered by the live service.
type Voice string

const (
	VoiceZephyr Voice = "Zephyr"
	VoicePuck   Voice = "Puck"
	VoiceCharon Voice = "Charon"
	VoiceKore   Voice = "Kore"
	VoiceFenrir Voice = "Fenrir"
)

// Voices lists every selectable voice.
func Voices() []Voice {
	return []Voice{VoiceZephyr, VoicePuck, VoiceCharon, VoiceKore, VoiceFenrir}
}

// ParseVoice validates a voice name against the fixed set.
func ParseVoice(s string) (Voice, error) {
	for _, v := range Voices() {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown voice %q", s)
}

// Settings configure one live conversation. Two copies exist at runtime: the
// applied copy bound to the open session and the pending copy under edit.
// They converge only when the user applies, which replaces the session.
type Settings struct {
	Voice        Voice
	SystemPrompt string
}
