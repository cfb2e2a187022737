package provider

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
)

const yandexRealtimeURL = "wss://assistant.api.cloud.yandex.net/v1/realtime"

var _ Adapter = (*YandexAdapter)(nil)

// YandexAdapter speaks the Yandex realtime assistant protocol. Each
// transcript event carries one already-finalized utterance (direct mode).
// The session also declares a hangup_call function tool; when the model
// invokes it the adapter answers the tool call and emits EventEndCallRequested,
// which the session honors as a normal disconnect.
type YandexAdapter struct {
	apiKey   string
	folderID string
	sock     *socket
	events   chan Event
}

// NewYandexAdapter creates a disconnected adapter.
func NewYandexAdapter(apiKey, folderID string) *YandexAdapter {
	return &YandexAdapter{
		apiKey:   apiKey,
		folderID: folderID,
		sock:     newSocket(),
		events:   make(chan Event, eventQueueSize),
	}
}

func (a *YandexAdapter) Mode() TranscriptMode { return DirectTranscripts }

func (a *YandexAdapter) Connect(ctx context.Context) error {
	header := http.Header{}
	header.Set("Authorization", "api-key "+a.apiKey)
	header.Set("x-folder-id", a.folderID)
	if err := a.sock.dial(ctx, yandexRealtimeURL, header); err != nil {
		return &ConnectError{Provider: Yandex, Err: err}
	}
	go a.readLoop()
	log.Println("yandex: realtime socket connected")
	return nil
}

func (a *YandexAdapter) readLoop() {
	defer close(a.events)
	if err := a.sock.readFrames(a.handleMessage); err != nil {
		a.emit(Event{Type: EventSocketError, Err: &StreamError{Provider: Yandex, Err: err}})
	}
}

func (a *YandexAdapter) emit(ev Event) {
	select {
	case a.events <- ev:
	case <-a.sock.stopCh:
	}
}

type yandexSessionUpdate struct {
	Type    string        `json:"type"`
	Session yandexSession `json:"session"`
}

type yandexSession struct {
	Type             string              `json:"type"`
	OutputModalities []string            `json:"output_modalities"`
	Instructions     string              `json:"instructions"`
	Audio            yandexAudio         `json:"audio"`
	TurnDetection    yandexTurnDetection `json:"turn_detection"`
	Tools            []yandexTool        `json:"tools"`
}

type yandexAudio struct {
	Output yandexAudioOutput `json:"output"`
}

type yandexAudioOutput struct {
	Voice string  `json:"voice"`
	Speed float64 `json:"speed,omitempty"`
}

type yandexTurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	SilenceDurationMs int     `json:"silence_duration_ms"`
}

type yandexTool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

func (a *YandexAdapter) ConfigureSession(p SessionParams) error {
	vad := p.VAD
	if vad == (VADParams{}) {
		vad = DefaultFinalizedVAD
	}
	return a.sock.enqueue(yandexSessionUpdate{
		Type: "session.update",
		Session: yandexSession{
			Type:             "realtime",
			OutputModalities: []string{"audio"},
			Instructions:     p.Instructions,
			Audio: yandexAudio{
				Output: yandexAudioOutput{Voice: p.Voice, Speed: p.Speed},
			},
			TurnDetection: yandexTurnDetection{
				Type:              "server_vad",
				Threshold:         vad.Threshold,
				SilenceDurationMs: vad.SilenceDurationMs,
			},
			Tools: []yandexTool{{
				Type:        "function",
				Name:        "hangup_call",
				Description: "End the phone call",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{},
					"required":   []string{},
				},
			}},
		},
	})
}

type yandexResponseCreate struct {
	Type     string         `json:"type"`
	Response yandexResponse `json:"response"`
}

type yandexResponse struct {
	Instructions string `json:"instructions"`
}

// SendGreeting requests a response scripted to the greeting text.
func (a *YandexAdapter) SendGreeting(text string) error {
	return a.sock.enqueue(yandexResponseCreate{
		Type:     "response.create",
		Response: yandexResponse{Instructions: text},
	})
}

func (a *YandexAdapter) SendAudio(payload string) error {
	return a.sock.enqueue(map[string]string{"type": "input_audio_buffer.append", "audio": payload})
}

func (a *YandexAdapter) Interrupt() error {
	if err := a.sock.enqueue(map[string]string{"type": "response.cancel"}); err != nil {
		return err
	}
	return a.sock.enqueue(map[string]string{"type": "output_audio_buffer.clear"})
}

func (a *YandexAdapter) Events() <-chan Event { return a.events }

func (a *YandexAdapter) Close() error {
	a.sock.close()
	return nil
}

type yandexServerFrame struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript"`
	Delta      string `json:"delta"`
	Item       *struct {
		Type   string `json:"type"`
		Name   string `json:"name"`
		CallID string `json:"call_id"`
	} `json:"item"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type yandexToolOutput struct {
	Type string               `json:"type"`
	Item yandexToolOutputItem `json:"item"`
}

type yandexToolOutputItem struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

func (a *YandexAdapter) handleMessage(msg []byte) {
	var frame yandexServerFrame
	if err := json.Unmarshal(msg, &frame); err != nil {
		log.Printf("yandex: unmarshal frame: %v", err)
		return
	}
	switch frame.Type {
	case "conversation.item.input_audio_transcription.completed":
		if frame.Transcript != "" {
			a.emit(Event{Type: EventUserFinalText, Text: frame.Transcript})
		}
	case "response.output_audio_transcript.done":
		if frame.Transcript != "" {
			a.emit(Event{Type: EventAgentFinalText, Text: frame.Transcript})
		}
	case "input_audio_buffer.speech_started":
		a.emit(Event{Type: EventSpeechStarted})
	case "response.output_audio.delta":
		if frame.Delta != "" {
			a.emit(Event{Type: EventAudioOut, Audio: frame.Delta})
		}
	case "response.output_item.done":
		if frame.Item != nil && frame.Item.Type == "function_call" && frame.Item.Name == "hangup_call" {
			_ = a.sock.enqueue(yandexToolOutput{
				Type: "conversation.item.create",
				Item: yandexToolOutputItem{
					Type:   "function_call_output",
					CallID: frame.Item.CallID,
					Output: "Ok",
				},
			})
			// let the model say goodbye before the leg is torn down
			_ = a.sock.enqueue(yandexResponseCreate{
				Type:     "response.create",
				Response: yandexResponse{Instructions: "Say goodbye before the call ends."},
			})
			a.emit(Event{Type: EventEndCallRequested})
		}
	case "error":
		if frame.Error != nil {
			log.Printf("yandex: server error: %s", frame.Error.Message)
		}
	}
}
