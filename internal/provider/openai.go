package provider

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
)

const openAIRealtimeURL = "wss://api.openai.com/v1/realtime?model=gpt-realtime"

// Verify interface compliance at compile time.
var _ Adapter = (*OpenAIAdapter)(nil)

// OpenAIAdapter speaks the OpenAI Realtime API. Transcripts arrive as
// per-speaker deltas flushed by separate completion events (delta mode).
type OpenAIAdapter struct {
	apiKey string
	sock   *socket
	events chan Event
}

// NewOpenAIAdapter creates a disconnected adapter.
func NewOpenAIAdapter(apiKey string) *OpenAIAdapter {
	return &OpenAIAdapter{
		apiKey: apiKey,
		sock:   newSocket(),
		events: make(chan Event, eventQueueSize),
	}
}

func (a *OpenAIAdapter) Mode() TranscriptMode { return DeltaTranscripts }

func (a *OpenAIAdapter) Connect(ctx context.Context) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+a.apiKey)
	header.Set("OpenAI-Beta", "realtime=v1")
	if err := a.sock.dial(ctx, openAIRealtimeURL, header); err != nil {
		return &ConnectError{Provider: OpenAI, Err: err}
	}
	go a.readLoop()
	log.Println("openai: realtime socket connected")
	return nil
}

func (a *OpenAIAdapter) readLoop() {
	defer close(a.events)
	if err := a.sock.readFrames(a.handleMessage); err != nil {
		a.emit(Event{Type: EventSocketError, Err: &StreamError{Provider: OpenAI, Err: err}})
	}
}

func (a *OpenAIAdapter) emit(ev Event) {
	select {
	case a.events <- ev:
	case <-a.sock.stopCh:
	}
}

type openAISessionUpdate struct {
	Type    string        `json:"type"`
	Session openAISession `json:"session"`
}

type openAISession struct {
	Type            string      `json:"type"`
	Instructions    string      `json:"instructions"`
	MaxOutputTokens int         `json:"max_response_output_tokens"`
	Audio           openAIAudio `json:"audio"`
}

type openAIAudio struct {
	Output openAIAudioOutput `json:"output"`
	Input  openAIAudioInput  `json:"input"`
}

type openAIAudioOutput struct {
	Voice         string                 `json:"voice"`
	Transcription openAITranscriptionCfg `json:"transcription"`
}

type openAIAudioInput struct {
	Transcription openAITranscriptionCfg `json:"transcription"`
	TurnDetection openAITurnDetection    `json:"turn_detection"`
}

type openAITranscriptionCfg struct {
	Model    string `json:"model"`
	Language string `json:"language,omitempty"`
}

type openAITurnDetection struct {
	Type              string  `json:"type"`
	CreateResponse    bool    `json:"create_response"`
	InterruptResponse bool    `json:"interrupt_response"`
	Threshold         float64 `json:"threshold"`
	SilenceDurationMs int     `json:"silence_duration_ms"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms"`
}

func (a *OpenAIAdapter) ConfigureSession(p SessionParams) error {
	vad := p.VAD
	if vad == (VADParams{}) {
		vad = DefaultFragmentVAD
	}
	return a.sock.enqueue(openAISessionUpdate{
		Type: "session.update",
		Session: openAISession{
			Type:            "realtime",
			Instructions:    p.Instructions,
			MaxOutputTokens: 4096,
			Audio: openAIAudio{
				Output: openAIAudioOutput{
					Voice:         p.Voice,
					Transcription: openAITranscriptionCfg{Model: "whisper-1"},
				},
				Input: openAIAudioInput{
					Transcription: openAITranscriptionCfg{Model: "whisper-1", Language: p.Language},
					TurnDetection: openAITurnDetection{
						Type:              "server_vad",
						CreateResponse:    true,
						InterruptResponse: true,
						Threshold:         vad.Threshold,
						SilenceDurationMs: vad.SilenceDurationMs,
						PrefixPaddingMs:   vad.PrefixPaddingMs,
					},
				},
			},
		},
	})
}

type openAIItemCreate struct {
	Type string     `json:"type"`
	Item openAIItem `json:"item"`
}

type openAIItem struct {
	Type    string              `json:"type"`
	Role    string              `json:"role"`
	Content []openAIItemContent `json:"content"`
}

type openAIItemContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// SendGreeting injects the greeting as a synthetic assistant message and
// requests its synthesis.
func (a *OpenAIAdapter) SendGreeting(text string) error {
	if err := a.sock.enqueue(openAIItemCreate{
		Type: "conversation.item.create",
		Item: openAIItem{
			Type:    "message",
			Role:    "assistant",
			Content: []openAIItemContent{{Type: "text", Text: text}},
		},
	}); err != nil {
		return err
	}
	return a.sock.enqueue(map[string]string{"type": "response.create"})
}

func (a *OpenAIAdapter) SendAudio(payload string) error {
	return a.sock.enqueue(map[string]string{"type": "input_audio_buffer.append", "audio": payload})
}

// Interrupt cancels the in-flight response and drops any queued output audio.
func (a *OpenAIAdapter) Interrupt() error {
	if err := a.sock.enqueue(map[string]string{"type": "response.cancel"}); err != nil {
		return err
	}
	return a.sock.enqueue(map[string]string{"type": "output_audio_buffer.clear"})
}

func (a *OpenAIAdapter) Events() <-chan Event { return a.events }

func (a *OpenAIAdapter) Close() error {
	a.sock.close()
	return nil
}

type openAIServerFrame struct {
	Type       string `json:"type"`
	Delta      string `json:"delta"`
	Transcript string `json:"transcript"`
	Error      *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (a *OpenAIAdapter) handleMessage(msg []byte) {
	var frame openAIServerFrame
	if err := json.Unmarshal(msg, &frame); err != nil {
		log.Printf("openai: unmarshal frame: %v", err)
		return
	}
	switch frame.Type {
	case "conversation.item.input_audio_transcription.delta":
		if frame.Delta != "" {
			a.emit(Event{Type: EventUserPartialText, Text: frame.Delta})
		}
	case "conversation.item.input_audio_transcription.completed":
		a.emit(Event{Type: EventUserFinalText})
	case "response.output_audio_transcript.delta":
		if frame.Delta != "" {
			a.emit(Event{Type: EventAgentPartialText, Text: frame.Delta})
		}
	case "response.output_audio_transcript.done":
		a.emit(Event{Type: EventAgentFinalText})
	case "input_audio_buffer.speech_started":
		a.emit(Event{Type: EventSpeechStarted})
	case "response.output_audio.delta":
		if frame.Delta != "" {
			a.emit(Event{Type: EventAudioOut, Audio: frame.Delta})
		}
	case "error":
		if frame.Error != nil {
			log.Printf("openai: server error: %s", frame.Error.Message)
		}
	}
}
