package config

import (
	"os"
	"testing"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	os.Setenv("HTTP_ADDRESS", "")
	os.Setenv("SUPABASE_BUCKET", "")
	os.Setenv("RECORD_CALLS", "")
	cfg := Load()
	if cfg.HTTPAddress != ":8080" {
		t.Fatalf("expected default http address, got %q", cfg.HTTPAddress)
	}
	if cfg.SupabaseBucket != "voice-recording" {
		t.Fatalf("expected default bucket, got %q", cfg.SupabaseBucket)
	}
	if cfg.RecordCalls {
		t.Fatalf("recording must default to off")
	}

	os.Setenv("HTTP_ADDRESS", ":9090")
	os.Setenv("RECORD_CALLS", "true")
	os.Setenv("WEBHOOK_URL", "https://crm.example.com")
	cfg = Load()
	if cfg.HTTPAddress != ":9090" {
		t.Fatalf("env address not picked up, got %q", cfg.HTTPAddress)
	}
	if !cfg.RecordCalls {
		t.Fatalf("RECORD_CALLS=true not picked up")
	}
	if cfg.DefaultWebhookURL != "https://crm.example.com" {
		t.Fatalf("webhook url not picked up, got %q", cfg.DefaultWebhookURL)
	}
}
