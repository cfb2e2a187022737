// Package provider normalizes the three realtime speech-AI backends into one
// capability interface. Each adapter parses its own native wire shapes
// internally and emits canonical events upward; the session controller never
// sees provider-specific payloads.
package provider

import (
	"context"
	"fmt"
)

// Name selects a backend implementation.
type Name string

const (
	OpenAI     Name = "openai"
	ElevenLabs Name = "elevenlabs"
	Yandex     Name = "yandex"
)

// TranscriptMode tells the session how the adapter delivers text events.
type TranscriptMode int

const (
	// DeltaTranscripts means per-speaker fragments flushed by a completion event.
	DeltaTranscripts TranscriptMode = iota
	// DirectTranscripts means each text event carries one finalized utterance.
	DirectTranscripts
)

// EventType enumerates the canonical events an adapter can emit.
type EventType int

const (
	EventUserPartialText EventType = iota
	EventUserFinalText
	EventAgentPartialText
	EventAgentFinalText
	EventSpeechStarted
	EventAudioOut
	EventEndCallRequested
	EventSocketError
)

// Event is the canonical adapter event. Text carries transcript fragments or
// finalized utterances, Audio carries a base64 payload relayed untouched to
// the telephony leg, Err is set only for EventSocketError.
type Event struct {
	Type  EventType
	Text  string
	Audio string
	Err   error
}

// VADParams tunes the backend's server-side voice-activity detection.
type VADParams struct {
	Threshold         float64
	SilenceDurationMs int
	PrefixPaddingMs   int
}

// Default VAD tuning per adapter family. These numbers are part of the
// contract with the backends; override only when the caller knows better.
var (
	DefaultFragmentVAD  = VADParams{Threshold: 0.4, SilenceDurationMs: 500, PrefixPaddingMs: 50}
	DefaultFinalizedVAD = VADParams{Threshold: 0.5, SilenceDurationMs: 400}
)

// SessionParams configures the provider session after connect.
type SessionParams struct {
	Voice        string
	Language     string
	Instructions string
	// Greeting is the scripted first utterance. Adapters that deliver the
	// first message through session configuration consume it here; the rest
	// receive it later via SendGreeting.
	Greeting        string
	Stability       float64
	Speed           float64
	SimilarityBoost float64
	VAD             VADParams
}

// Adapter is the uniform capability surface over one streaming backend.
// Exactly one live adapter exists per call session.
type Adapter interface {
	// Connect establishes the streaming socket. Failure surfaces as
	// *ConnectError; the session treats it as terminal.
	Connect(ctx context.Context) error
	ConfigureSession(p SessionParams) error
	// SendGreeting asks the backend to synthesize the scripted greeting.
	SendGreeting(text string) error
	// SendAudio relays one base64 caller-audio payload as-is.
	SendAudio(payload string) error
	// Interrupt clears the backend's output audio buffer, cancelling any
	// in-flight synthesized speech. Fire-and-forget.
	Interrupt() error
	// Events delivers canonical events in backend emission order. The channel
	// closes when the socket shuts down.
	Events() <-chan Event
	Mode() TranscriptMode
	Close() error
}

// Credentials carries the per-backend secrets from the start request.
type Credentials struct {
	OpenAIKey         string
	ElevenLabsKey     string
	ElevenLabsAgentID string
	YandexKey         string
	YandexFolderID    string
}

// New builds the adapter for the selected backend. The choice is made once
// at session start; there is no runtime dispatch on provider name after this.
func New(name Name, creds Credentials) (Adapter, error) {
	switch name {
	case OpenAI:
		if creds.OpenAIKey == "" {
			return nil, fmt.Errorf("openai: missing api key")
		}
		return NewOpenAIAdapter(creds.OpenAIKey), nil
	case ElevenLabs:
		if creds.ElevenLabsKey == "" || creds.ElevenLabsAgentID == "" {
			return nil, fmt.Errorf("elevenlabs: missing api key or agent id")
		}
		return NewElevenLabsAdapter(creds.ElevenLabsKey, creds.ElevenLabsAgentID), nil
	case Yandex:
		if creds.YandexKey == "" || creds.YandexFolderID == "" {
			return nil, fmt.Errorf("yandex: missing api key or folder id")
		}
		return NewYandexAdapter(creds.YandexKey, creds.YandexFolderID), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

// ConnectError reports a failed provider connect handshake.
type ConnectError struct {
	Provider Name
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("provider %s connect: %v", e.Provider, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// StreamError reports a mid-call socket failure. No reconnection is attempted.
type StreamError struct {
	Provider Name
	Err      error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("provider %s stream: %v", e.Provider, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }
