// Package webhook builds the terminal outcome artifact and delivers it to
// the external system's call-transcript endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/NutaEnjoyer/halomax/internal/transcript"
)

// TranscriptPath is the reporting endpoint appended to bare base URLs.
const TranscriptPath = "/api/call-transcript"

// Status is the coarse terminal status visible to external pollers. Every
// provider or telephony failure collapses to StatusFailed.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Outcome is the final artifact of one call session.
type Outcome struct {
	CallID          string
	Phone           string
	DurationSeconds int
	Turns           []transcript.Turn
	Status          Status
}

// Payload is the webhook POST body.
type Payload struct {
	CallID          string   `json:"call_id"`
	Phone           string   `json:"phone"`
	DurationSeconds int      `json:"duration_seconds"`
	Transcript      []string `json:"transcript"`
	RawText         string   `json:"raw_text"`
	Status          string   `json:"status"`
}

// BuildPayload renders the outcome: turns become "role: text" lines in
// commit order, raw_text joins them with newlines.
func BuildPayload(o Outcome) Payload {
	return Payload{
		CallID:          o.CallID,
		Phone:           o.Phone,
		DurationSeconds: o.DurationSeconds,
		Transcript:      transcript.Lines(o.Turns),
		RawText:         transcript.RawText(o.Turns),
		Status:          string(o.Status),
	}
}

// ResolveURL appends the reporting path unless the configured URL already
// ends with it. Already-correct URLs pass through unchanged.
func ResolveURL(base string) string {
	trimmed := strings.TrimRight(base, "/")
	if strings.HasSuffix(trimmed, TranscriptPath) {
		return trimmed
	}
	return trimmed + TranscriptPath
}

// DeliveryError reports a failed webhook POST. It is logged and swallowed by
// callers; delivery failure never affects session teardown.
type DeliveryError struct {
	URL string
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("webhook delivery to %s: %v", e.URL, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Reporter delivers outcome artifacts. One POST per session, no retry.
type Reporter struct {
	client *http.Client
}

// NewReporter builds a reporter with a bounded HTTP client. The POST is
// fire-and-forget telemetry but must not hold session resources forever.
func NewReporter() *Reporter {
	return &Reporter{client: &http.Client{Timeout: 30 * time.Second}}
}

// Deliver POSTs the outcome to the resolved URL. An empty base URL logs the
// transcript and returns nil: webhook-less calls are not an error. Any
// failure is returned as *DeliveryError for the caller to log.
func (r *Reporter) Deliver(ctx context.Context, baseURL string, o Outcome) error {
	payload := BuildPayload(o)
	if baseURL == "" {
		log.Printf("webhook: no url configured, transcript for call %s:\n%s", o.CallID, payload.RawText)
		return nil
	}
	url := ResolveURL(baseURL)

	body, err := json.Marshal(payload)
	if err != nil {
		return &DeliveryError{URL: url, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{URL: url, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return &DeliveryError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &DeliveryError{URL: url, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	log.Printf("webhook: delivered outcome for call %s (%d turns, %ds)", o.CallID, len(o.Turns), o.DurationSeconds)
	return nil
}
