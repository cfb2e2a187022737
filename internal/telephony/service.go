package telephony

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/twilio/twilio-go/twiml"
)

// Storage persists downloaded call recordings.
type Storage interface {
	Upload(key, contentType string, data []byte) error
}

type Config struct {
	AccountSID string
	AuthToken  string
	// PublicBaseURL is the externally reachable https origin of this server,
	// used for media stream and status callback URLs.
	PublicBaseURL string
}

// Service places and tears down outbound PSTN calls through Twilio.
type Service struct {
	cfg        Config
	storage    Storage
	client     *twilio.RestClient
	httpClient *http.Client
}

func NewService(cfg Config, storage Storage) *Service {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &Service{
		cfg:        cfg,
		storage:    storage,
		client:     client,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Dial places the outbound call. The returned leg ID is the Twilio call SID.
func (s *Service) Dial(ctx context.Context, callID, to, from string) (string, error) {
	doc, err := streamTwiML(s.cfg.PublicBaseURL, callID)
	if err != nil {
		return "", fmt.Errorf("build twiml: %w", err)
	}

	params := &twilioApi.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetTwiml(doc)
	params.SetStatusCallback(statusCallbackURL(s.cfg.PublicBaseURL, callID))
	params.SetStatusCallbackMethod("POST")
	params.SetStatusCallbackEvent([]string{"initiated", "ringing", "answered", "completed"})

	resp, err := s.client.Api.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("create call: %w", err)
	}
	if resp.Sid == nil {
		return "", fmt.Errorf("create call: empty SID in response")
	}
	return *resp.Sid, nil
}

// Hangup asks Twilio to complete the call leg.
func (s *Service) Hangup(legID string) error {
	params := &twilioApi.UpdateCallParams{}
	params.SetStatus("completed")
	if _, err := s.client.Api.UpdateCall(legID, params); err != nil {
		return fmt.Errorf("hangup %s: %w", legID, err)
	}
	return nil
}

// StartRecording begins mono recording of an answered leg.
func (s *Service) StartRecording(legID string) error {
	params := &twilioApi.CreateCallRecordingParams{}
	params.SetRecordingStatusCallback(s.cfg.PublicBaseURL + "/twilio/recording-status")
	params.SetRecordingStatusCallbackMethod("POST")
	params.SetRecordingStatusCallbackEvent([]string{"completed"})
	params.SetRecordingChannels("mono")
	if _, err := s.client.Api.CreateCallRecording(legID, params); err != nil {
		return fmt.Errorf("start recording %s: %w", legID, err)
	}
	return nil
}

// OnRecordingStatus handles Twilio's recording status callback parameters and
// archives completed recordings in the background.
func (s *Service) OnRecordingStatus(params map[string]string) {
	if params["RecordingStatus"] != "completed" {
		return
	}
	recordingURL := params["RecordingUrl"]
	recordingSID := params["RecordingSid"]
	if recordingURL == "" || s.storage == nil {
		return
	}

	filename := fmt.Sprintf("recording_%s_%d.wav", recordingSID, time.Now().Unix())
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.uploadRecording(ctx, recordingURL, filename); err != nil {
			log.Printf("Failed to upload recording %s: %v", recordingSID, err)
			return
		}
		log.Printf("Recording uploaded: %s", filename)
	}()
}

func (s *Service) uploadRecording(ctx context.Context, recordingURL, filename string) error {
	req, err := http.NewRequestWithContext(ctx, "GET", recordingURL+".wav", nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(s.cfg.AccountSID, s.cfg.AuthToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download recording failed: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return s.storage.Upload(filename, "audio/wav", data)
}

// CallEvent classifies a Twilio CallStatus callback value for the session.
type CallEvent int

const (
	EventIgnore CallEvent = iota
	EventConnected
	EventDisconnected
	EventFailed
)

// MapCallStatus translates Twilio call progress statuses into session events.
// Intermediate statuses (queued, initiated, ringing) map to EventIgnore.
func MapCallStatus(status string) CallEvent {
	switch status {
	case "in-progress", "answered":
		return EventConnected
	case "completed":
		return EventDisconnected
	case "busy", "failed", "no-answer", "canceled":
		return EventFailed
	default:
		return EventIgnore
	}
}

// streamTwiML builds the answer document that bridges the call audio onto a
// bidirectional media stream websocket.
func streamTwiML(baseURL, callID string) (string, error) {
	stream := &twiml.VoiceStream{Url: mediaStreamURL(baseURL, callID)}
	connect := &twiml.VoiceConnect{InnerElements: []twiml.Element{stream}}
	return twiml.Voice([]twiml.Element{connect})
}

func mediaStreamURL(baseURL, callID string) string {
	host := strings.TrimPrefix(strings.TrimPrefix(baseURL, "https://"), "http://")
	return fmt.Sprintf("wss://%s/media/%s", strings.TrimRight(host, "/"), callID)
}

func statusCallbackURL(baseURL, callID string) string {
	return fmt.Sprintf("%s/twilio/status?call_id=%s", strings.TrimRight(baseURL, "/"), url.QueryEscape(callID))
}
