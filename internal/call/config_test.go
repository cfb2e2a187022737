package call

import (
	"errors"
	"strings"
	"testing"

	"github.com/NutaEnjoyer/halomax/internal/provider"
)

func TestCallConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*CallConfig)
		reason string
	}{
		{"valid", func(c *CallConfig) {}, ""},
		{"missing call id", func(c *CallConfig) { c.CallID = "" }, "call_id"},
		{"missing phone", func(c *CallConfig) { c.Phone = "" }, "phone"},
		{"missing caller id", func(c *CallConfig) { c.CallerID = "" }, "caller_id"},
		{"unknown provider", func(c *CallConfig) { c.Provider = "acme" }, "unknown provider"},
		{"openai without key", func(c *CallConfig) { c.Credentials.OpenAIKey = "" }, "openai"},
		{"elevenlabs without agent", func(c *CallConfig) {
			c.Provider = provider.ElevenLabs
			c.Credentials = provider.Credentials{ElevenLabsKey: "k"}
		}, "elevenlabs"},
		{"yandex without folder", func(c *CallConfig) {
			c.Provider = provider.Yandex
			c.Credentials = provider.Credentials{YandexKey: "k"}
		}, "yandex"},
		{"webhook bad scheme", func(c *CallConfig) { c.WebhookURL = "ftp://example.com" }, "webhook_url"},
		{"webhook not a url", func(c *CallConfig) { c.WebhookURL = "://nope" }, "webhook_url"},
		{"webhook optional", func(c *CallConfig) { c.WebhookURL = "" }, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.reason == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var cerr *ConfigError
			if !errors.As(err, &cerr) {
				t.Fatalf("expected *ConfigError, got %v", err)
			}
			if !strings.Contains(cerr.Reason, tc.reason) {
				t.Fatalf("reason %q does not mention %q", cerr.Reason, tc.reason)
			}
		})
	}
}

func TestCallConfigInstructions(t *testing.T) {
	cfg := validConfig()
	cfg.Greeting = "Добрый день!"
	cfg.FunnelGoal = "schedule a demo"
	cfg.Prompt = "speak politely"

	got := cfg.Instructions()
	for _, want := range []string{"Добрый день!", "CALL GOAL: schedule a demo", "SYSTEM INSTRUCTIONS: speak politely"} {
		if !strings.Contains(got, want) {
			t.Fatalf("instructions missing %q:\n%s", want, got)
		}
	}
	if strings.Index(got, "Добрый день!") > strings.Index(got, "CALL GOAL") {
		t.Fatalf("greeting preamble must come first:\n%s", got)
	}
}

func TestCallConfigSessionParams(t *testing.T) {
	cfg := validConfig()
	cfg.Stability = 0.5
	cfg.Speed = 1.1
	cfg.SimilarityBoost = 0.8

	p := cfg.SessionParams()
	if p.Voice != cfg.Voice || p.Language != cfg.Language || p.Greeting != cfg.Greeting {
		t.Fatalf("session params mismatch: %+v", p)
	}
	if p.Stability != 0.5 || p.Speed != 1.1 || p.SimilarityBoost != 0.8 {
		t.Fatalf("voice shaping not carried: %+v", p)
	}
	if !strings.Contains(p.Instructions, "SYSTEM INSTRUCTIONS") {
		t.Fatalf("instructions not composed: %q", p.Instructions)
	}
}
