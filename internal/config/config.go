package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress   string
	PublicBaseURL string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioCallerID   string

	SupabaseURL            string
	SupabaseServiceRoleKey string
	SupabaseBucket         string
	RecordCalls            bool

	OpenAIKey         string
	ElevenLabsKey     string
	ElevenLabsAgentID string
	YandexAPIKey      string
	YandexFolderID    string

	DefaultWebhookURL string
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Error loading .env file")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	baseURL := os.Getenv("PUBLIC_BASE_URL")
	if baseURL == "" {
		log.Println("Warning: PUBLIC_BASE_URL not set - Twilio cannot reach the media stream")
	}

	twilioSID := os.Getenv("TWILIO_ACCOUNT_SID")
	twilioToken := os.Getenv("TWILIO_AUTH_TOKEN")
	if twilioSID == "" || twilioToken == "" {
		log.Println("Warning: TWILIO_ACCOUNT_SID/TWILIO_AUTH_TOKEN not set - outbound calls will not work")
	}
	callerID := os.Getenv("TWILIO_CALLER_ID")

	bucket := os.Getenv("SUPABASE_BUCKET")
	if bucket == "" {
		bucket = "voice-recording"
	}

	openAIKey := os.Getenv("OPENAI_API_KEY")
	elevenKey := os.Getenv("ELEVENLABS_API_KEY")
	yandexKey := os.Getenv("YANDEX_API_KEY")
	if openAIKey == "" && elevenKey == "" && yandexKey == "" {
		log.Println("Warning: no voice provider keys set - start requests must carry their own credentials")
	}

	log.Printf("config: HTTP_ADDRESS=%s", addr)
	return Config{
		HTTPAddress:            addr,
		PublicBaseURL:          baseURL,
		TwilioAccountSID:       twilioSID,
		TwilioAuthToken:        twilioToken,
		TwilioCallerID:         callerID,
		SupabaseURL:            os.Getenv("SUPABASE_URL"),
		SupabaseServiceRoleKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseBucket:         bucket,
		RecordCalls:            os.Getenv("RECORD_CALLS") == "true",
		OpenAIKey:              openAIKey,
		ElevenLabsKey:          elevenKey,
		ElevenLabsAgentID:      os.Getenv("ELEVENLABS_AGENT_ID"),
		YandexAPIKey:           yandexKey,
		YandexFolderID:         os.Getenv("YANDEX_FOLDER_ID"),
		DefaultWebhookURL:      os.Getenv("WEBHOOK_URL"),
	}
}
