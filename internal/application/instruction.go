package application

import (
	"fmt"
	"strings"
	"time"

	"voice-companion/internal/domain"
)

const (
	DefaultModel = "gemini-2.5-flash-native-audio-preview-09-2025"
	DefaultVoice = "Puck"
)

// SessionOptions are the per-deployment knobs that are not part of the user
// profile.
type SessionOptions struct {
	Model         string
	Location      *time.Location
	Transcription bool
}

func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		Model:         DefaultModel,
		Location:      time.UTC,
		Transcription: true,
	}
}

// BuildSessionConfig derives everything the remote session needs from a
// settings snapshot.
func BuildSessionConfig(settings domain.Settings, opts SessionOptions, now time.Time) SessionConfig {
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}
	voice := settings.VoiceID
	if voice == "" {
		voice = DefaultVoice
	}

	return SessionConfig{
		Model:             model,
		Voice:             voice,
		SystemInstruction: BuildSystemInstruction(settings, opts.Location, now),
		Tools:             ToolDeclarations(),
		InputFormat:       InputAudioFormat(),
		OutputFormat:      OutputAudioFormat(),
		Transcription:     opts.Transcription,
	}
}

func BuildSystemInstruction(settings domain.Settings, loc *time.Location, now time.Time) string {
	if loc == nil {
		loc = time.UTC
	}

	var b strings.Builder

	fmt.Fprintf(&b, "You are a friendly voice companion. Your name is '%s'. The user is '%s'. Speak in %s.\n",
		settings.AIName, settings.UserName, settings.Language)
	b.WriteString("Keep responses short and natural. Respond quickly.\n")

	if settings.VoiceEnrolled {
		fmt.Fprintf(&b, "VOICE ISOLATION: Only respond to '%s'. Ignore background noise, music and other people talking; treat them as silence.\n",
			settings.UserName)
	} else {
		b.WriteString("NOISE REDUCTION: Ignore background noise and focus only on the person speaking directly to you.\n")
	}

	if platforms := settings.Platforms(); len(platforms) > 0 {
		fmt.Fprintf(&b, "AVAILABLE APIS (for context only): %s.\n", strings.Join(platforms, ", "))
	}

	fmt.Fprintf(&b, "CURRENT TIME: %s.\n", now.In(loc).Format("Monday, January 2, 2006 at 3:04:05 PM MST"))
	b.WriteString("COMMANDS: Use 'open_link' when the user asks to open a website, play a video, call or message someone. ")
	b.WriteString("Use 'system_action' to lock, unlock, sleep or shut down.")

	return b.String()
}

func ToolDeclarations() []domain.ToolDeclaration {
	return []domain.ToolDeclaration{
		{
			Name:        domain.ToolOpenLink,
			Description: "ONLY use this tool if the user EXPLICITLY asks you to open a website, play a video on YouTube, or open an app. Do NOT use it for general questions or conversation.",
			Params: []domain.ToolParam{
				{
					Name:        "url",
					Description: "The URL or deep link to open. Examples: https://www.youtube.com/results?search_query=..., tel:+1234567890 (calls), https://wa.me/1234567890?text=Hello (WhatsApp).",
					Required:    true,
				},
				{
					Name:        "reason",
					Description: "A brief reason why this link is being opened.",
				},
			},
		},
		{
			Name:        domain.ToolSystemAction,
			Description: "Simulates a system action like locking, unlocking, or shutting down the assistant.",
			Params: []domain.ToolParam{
				{
					Name:        "action",
					Description: "The action to perform. One of 'lock', 'unlock', 'sleep', 'shutdown'.",
					Required:    true,
				},
			},
		},
	}
}
