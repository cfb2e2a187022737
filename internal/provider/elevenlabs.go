package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
)

const elevenLabsConvAIURL = "wss://api.elevenlabs.io/v1/convai/conversation?agent_id=%s"

var _ Adapter = (*ElevenLabsAdapter)(nil)

// ElevenLabsAdapter speaks the ElevenLabs Conversational AI protocol.
// Transcript events arrive utterance-sized; the adapter still runs delta
// mode, emitting each as a fragment followed by its commit event, so bursts
// of fragments before a commit accumulate correctly downstream.
type ElevenLabsAdapter struct {
	apiKey  string
	agentID string
	sock    *socket
	events  chan Event
}

// NewElevenLabsAdapter creates a disconnected adapter for the given agent.
func NewElevenLabsAdapter(apiKey, agentID string) *ElevenLabsAdapter {
	return &ElevenLabsAdapter{
		apiKey:  apiKey,
		agentID: agentID,
		sock:    newSocket(),
		events:  make(chan Event, eventQueueSize),
	}
}

func (a *ElevenLabsAdapter) Mode() TranscriptMode { return DeltaTranscripts }

func (a *ElevenLabsAdapter) Connect(ctx context.Context) error {
	header := http.Header{}
	header.Set("xi-api-key", a.apiKey)
	url := fmt.Sprintf(elevenLabsConvAIURL, a.agentID)
	if err := a.sock.dial(ctx, url, header); err != nil {
		return &ConnectError{Provider: ElevenLabs, Err: err}
	}
	go a.readLoop()
	log.Println("elevenlabs: conversation socket connected")
	return nil
}

func (a *ElevenLabsAdapter) readLoop() {
	defer close(a.events)
	if err := a.sock.readFrames(a.handleMessage); err != nil {
		a.emit(Event{Type: EventSocketError, Err: &StreamError{Provider: ElevenLabs, Err: err}})
	}
}

func (a *ElevenLabsAdapter) emit(ev Event) {
	select {
	case a.events <- ev:
	case <-a.sock.stopCh:
	}
}

type elevenInitData struct {
	Type     string         `json:"type"`
	Override elevenOverride `json:"conversation_config_override"`
}

type elevenOverride struct {
	TTS   elevenTTSOverride   `json:"tts"`
	Agent elevenAgentOverride `json:"agent"`
	Turn  elevenTurnOverride  `json:"turn"`
}

type elevenTTSOverride struct {
	VoiceID         string  `json:"voice_id"`
	Stability       float64 `json:"stability,omitempty"`
	Speed           float64 `json:"speed,omitempty"`
	SimilarityBoost float64 `json:"similarity_boost,omitempty"`
}

type elevenAgentOverride struct {
	Prompt       elevenPrompt `json:"prompt"`
	FirstMessage string       `json:"first_message"`
	Language     string       `json:"language"`
}

type elevenPrompt struct {
	Prompt string `json:"prompt"`
}

type elevenTurnOverride struct {
	Threshold         float64 `json:"threshold"`
	SilenceDurationMs int     `json:"silence_duration_ms"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms"`
}

// ConfigureSession overrides the agent's platform configuration for this
// conversation: voice shaping, prompt, language and the scripted first
// message, which the backend speaks on its own once media flows.
func (a *ElevenLabsAdapter) ConfigureSession(p SessionParams) error {
	vad := p.VAD
	if vad == (VADParams{}) {
		vad = DefaultFragmentVAD
	}
	return a.sock.enqueue(elevenInitData{
		Type: "conversation_initiation_client_data",
		Override: elevenOverride{
			TTS: elevenTTSOverride{
				VoiceID:         p.Voice,
				Stability:       p.Stability,
				Speed:           p.Speed,
				SimilarityBoost: p.SimilarityBoost,
			},
			Agent: elevenAgentOverride{
				Prompt:       elevenPrompt{Prompt: p.Instructions},
				FirstMessage: p.Greeting,
				Language:     p.Language,
			},
			Turn: elevenTurnOverride{
				Threshold:         vad.Threshold,
				SilenceDurationMs: vad.SilenceDurationMs,
				PrefixPaddingMs:   vad.PrefixPaddingMs,
			},
		},
	})
}

// SendGreeting is a no-op: the greeting was delivered as first_message in the
// conversation initiation override and the agent speaks it unprompted.
func (a *ElevenLabsAdapter) SendGreeting(string) error { return nil }

func (a *ElevenLabsAdapter) SendAudio(payload string) error {
	return a.sock.enqueue(map[string]string{"user_audio_chunk": payload})
}

// Interrupt signals user activity so the backend stops the in-flight
// response and flushes its output audio.
func (a *ElevenLabsAdapter) Interrupt() error {
	return a.sock.enqueue(map[string]string{"type": "user_activity"})
}

func (a *ElevenLabsAdapter) Events() <-chan Event { return a.events }

func (a *ElevenLabsAdapter) Close() error {
	a.sock.close()
	return nil
}

type elevenServerFrame struct {
	Type    string `json:"type"`
	PingEvt *struct {
		EventID int `json:"event_id"`
	} `json:"ping_event"`
	UserEvt *struct {
		UserTranscript string `json:"user_transcript"`
	} `json:"user_transcription_event"`
	AgentEvt *struct {
		AgentResponse string `json:"agent_response"`
	} `json:"agent_response_event"`
	AudioEvt *struct {
		AudioBase64 string `json:"audio_base_64"`
	} `json:"audio_event"`
}

func (a *ElevenLabsAdapter) handleMessage(msg []byte) {
	var frame elevenServerFrame
	if err := json.Unmarshal(msg, &frame); err != nil {
		log.Printf("elevenlabs: unmarshal frame: %v", err)
		return
	}
	switch frame.Type {
	case "ping":
		pong := map[string]any{"type": "pong"}
		if frame.PingEvt != nil {
			pong["event_id"] = frame.PingEvt.EventID
		}
		_ = a.sock.enqueue(pong)
	case "user_transcript":
		if frame.UserEvt != nil && frame.UserEvt.UserTranscript != "" {
			a.emit(Event{Type: EventUserPartialText, Text: frame.UserEvt.UserTranscript})
			a.emit(Event{Type: EventUserFinalText})
		}
	case "agent_response":
		if frame.AgentEvt != nil && frame.AgentEvt.AgentResponse != "" {
			a.emit(Event{Type: EventAgentPartialText, Text: frame.AgentEvt.AgentResponse})
			a.emit(Event{Type: EventAgentFinalText})
		}
	case "interruption":
		a.emit(Event{Type: EventSpeechStarted})
	case "audio":
		if frame.AudioEvt != nil && frame.AudioEvt.AudioBase64 != "" {
			a.emit(Event{Type: EventAudioOut, Audio: frame.AudioEvt.AudioBase64})
		}
	case "internal_tentative_agent_response", "agent_response_correction", "conversation_initiation_metadata", "vad_score":
		// informational only
	default:
		log.Printf("elevenlabs: unhandled event type %q", frame.Type)
	}
}
