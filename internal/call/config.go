package call

import (
	"fmt"
	"net/url"

	"github.com/NutaEnjoyer/halomax/internal/provider"
)

// CallConfig is built once from the inbound start request and never mutated.
type CallConfig struct {
	CallID   string
	Phone    string
	CallerID string
	Provider provider.Name
	Language string
	Voice    string
	Greeting string
	// Prompt is the system instruction, FunnelGoal the desired call outcome.
	Prompt     string
	FunnelGoal string
	WebhookURL string

	// Voice shaping, provider-specific where unsupported.
	Stability       float64
	Speed           float64
	SimilarityBoost float64

	Credentials provider.Credentials
}

// ConfigError reports a malformed or empty start payload. The session never
// starts and no webhook fires.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "config: " + e.Reason }

// Validate checks the config is non-empty and well-formed. It returns
// *ConfigError on the first problem found.
func (c CallConfig) Validate() error {
	if c.CallID == "" {
		return &ConfigError{Reason: "missing call_id"}
	}
	if c.Phone == "" {
		return &ConfigError{Reason: "missing phone"}
	}
	if c.CallerID == "" {
		return &ConfigError{Reason: "missing caller_id"}
	}
	switch c.Provider {
	case provider.OpenAI:
		if c.Credentials.OpenAIKey == "" {
			return &ConfigError{Reason: "missing openai credentials"}
		}
	case provider.ElevenLabs:
		if c.Credentials.ElevenLabsKey == "" || c.Credentials.ElevenLabsAgentID == "" {
			return &ConfigError{Reason: "missing elevenlabs credentials"}
		}
	case provider.Yandex:
		if c.Credentials.YandexKey == "" || c.Credentials.YandexFolderID == "" {
			return &ConfigError{Reason: "missing yandex credentials"}
		}
	default:
		return &ConfigError{Reason: fmt.Sprintf("unknown provider %q", c.Provider)}
	}
	if c.WebhookURL != "" {
		u, err := url.Parse(c.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return &ConfigError{Reason: "invalid webhook_url"}
		}
	}
	return nil
}

// Instructions composes the provider system instructions: the forced
// first-message greeting, the call goal and the operator's prompt.
func (c CallConfig) Instructions() string {
	return fmt.Sprintf(
		"Always open the conversation with exactly this phrase: %q. Say it as your first message and never repeat it.\n\n"+
			"CALL GOAL: %s\n\nSYSTEM INSTRUCTIONS: %s",
		c.Greeting, c.FunnelGoal, c.Prompt,
	)
}

// SessionParams maps the config onto the provider session surface.
func (c CallConfig) SessionParams() provider.SessionParams {
	return provider.SessionParams{
		Voice:           c.Voice,
		Language:        c.Language,
		Instructions:    c.Instructions(),
		Greeting:        c.Greeting,
		Stability:       c.Stability,
		Speed:           c.Speed,
		SimilarityBoost: c.SimilarityBoost,
	}
}
