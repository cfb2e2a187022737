package provider

import (
	"encoding/json"
	"testing"
)

func drainEvents(t *testing.T, ch <-chan Event, n int) []Event {
	t.Helper()
	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			t.Fatalf("expected %d events, got %d", n, len(out))
		}
	}
	return out
}

func nextFrame(t *testing.T, s *socket) map[string]any {
	t.Helper()
	select {
	case data := <-s.sendCh:
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("unmarshal queued frame: %v", err)
		}
		return m
	default:
		t.Fatalf("expected a queued frame")
		return nil
	}
}

func TestOpenAI_DeltaAndCompletionEvents(t *testing.T) {
	a := NewOpenAIAdapter("key")
	a.handleMessage([]byte(`{"type":"conversation.item.input_audio_transcription.delta","delta":"при"}`))
	a.handleMessage([]byte(`{"type":"conversation.item.input_audio_transcription.completed","transcript":"привет"}`))
	a.handleMessage([]byte(`{"type":"response.output_audio_transcript.delta","delta":"Здра"}`))
	a.handleMessage([]byte(`{"type":"response.output_audio_transcript.done"}`))

	evs := drainEvents(t, a.Events(), 4)
	want := []EventType{EventUserPartialText, EventUserFinalText, EventAgentPartialText, EventAgentFinalText}
	for i, ev := range evs {
		if ev.Type != want[i] {
			t.Fatalf("event %d: got type %d want %d", i, ev.Type, want[i])
		}
	}
	if evs[0].Text != "при" || evs[2].Text != "Здра" {
		t.Fatalf("fragment text mismatch: %+v", evs)
	}
}

func TestOpenAI_SpeechStartedAndAudio(t *testing.T) {
	a := NewOpenAIAdapter("key")
	a.handleMessage([]byte(`{"type":"input_audio_buffer.speech_started"}`))
	a.handleMessage([]byte(`{"type":"response.output_audio.delta","delta":"QUJD"}`))
	evs := drainEvents(t, a.Events(), 2)
	if evs[0].Type != EventSpeechStarted {
		t.Fatalf("expected speech started, got %+v", evs[0])
	}
	if evs[1].Type != EventAudioOut || evs[1].Audio != "QUJD" {
		t.Fatalf("expected audio passthrough, got %+v", evs[1])
	}
}

func TestOpenAI_ConfigureSessionCarriesVADDefaults(t *testing.T) {
	a := NewOpenAIAdapter("key")
	if err := a.ConfigureSession(SessionParams{Voice: "alloy", Language: "ru", Instructions: "be nice"}); err != nil {
		t.Fatalf("configure: %v", err)
	}
	frame := nextFrame(t, a.sock)
	if frame["type"] != "session.update" {
		t.Fatalf("expected session.update, got %v", frame["type"])
	}
	session := frame["session"].(map[string]any)
	td := session["audio"].(map[string]any)["input"].(map[string]any)["turn_detection"].(map[string]any)
	if td["threshold"].(float64) != 0.4 {
		t.Fatalf("threshold: got %v want 0.4", td["threshold"])
	}
	if td["silence_duration_ms"].(float64) != 500 {
		t.Fatalf("silence: got %v want 500", td["silence_duration_ms"])
	}
	if td["prefix_padding_ms"].(float64) != 50 {
		t.Fatalf("prefix: got %v want 50", td["prefix_padding_ms"])
	}
}

func TestOpenAI_GreetingQueuesItemAndResponse(t *testing.T) {
	a := NewOpenAIAdapter("key")
	if err := a.SendGreeting("Hello, I am AI assistant"); err != nil {
		t.Fatalf("greeting: %v", err)
	}
	item := nextFrame(t, a.sock)
	if item["type"] != "conversation.item.create" {
		t.Fatalf("expected conversation.item.create, got %v", item["type"])
	}
	resp := nextFrame(t, a.sock)
	if resp["type"] != "response.create" {
		t.Fatalf("expected response.create, got %v", resp["type"])
	}
}

func TestOpenAI_InterruptClearsOutputBuffer(t *testing.T) {
	a := NewOpenAIAdapter("key")
	if err := a.Interrupt(); err != nil {
		t.Fatalf("interrupt: %v", err)
	}
	if frame := nextFrame(t, a.sock); frame["type"] != "response.cancel" {
		t.Fatalf("expected response.cancel, got %v", frame["type"])
	}
	if frame := nextFrame(t, a.sock); frame["type"] != "output_audio_buffer.clear" {
		t.Fatalf("expected output_audio_buffer.clear, got %v", frame["type"])
	}
}

func TestNew_UnknownProviderAndMissingCreds(t *testing.T) {
	if _, err := New("nope", Credentials{}); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
	if _, err := New(OpenAI, Credentials{}); err == nil {
		t.Fatalf("expected error for missing openai key")
	}
	if _, err := New(ElevenLabs, Credentials{ElevenLabsKey: "k"}); err == nil {
		t.Fatalf("expected error for missing agent id")
	}
	if _, err := New(Yandex, Credentials{YandexKey: "k", YandexFolderID: "f"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
