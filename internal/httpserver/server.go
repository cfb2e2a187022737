package httpserver

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/NutaEnjoyer/halomax/internal/call"
	"github.com/NutaEnjoyer/halomax/internal/config"
	"github.com/NutaEnjoyer/halomax/internal/provider"
	"github.com/NutaEnjoyer/halomax/internal/telephony"
)

// retainTerminated is how long a finished session stays queryable before the
// manager evicts it.
const retainTerminated = 5 * time.Minute

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Twilio media streams carry no Origin header worth checking.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Telephony is what the HTTP surface needs from the telephony layer: the
// session dial/hangup pair plus recording control.
type Telephony interface {
	call.Telephony
	StartRecording(legID string) error
	OnRecordingStatus(params map[string]string)
}

// Server exposes the call API, the Twilio callbacks and the media stream
// websocket endpoint.
type Server struct {
	cfg      config.Config
	echo     *echo.Echo
	manager  *call.Manager
	tel      Telephony
	reporter call.Reporter
	factory  call.AdapterFactory
}

// New wires the routes onto a configured Echo instance.
func New(cfg config.Config, tel Telephony, manager *call.Manager, reporter call.Reporter, factory call.AdapterFactory) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	s := &Server{
		cfg:      cfg,
		echo:     e,
		manager:  manager,
		tel:      tel,
		reporter: reporter,
		factory:  factory,
	}

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.POST("/api/calls/start", s.handleStartCall)
	e.GET("/api/calls/:id", s.handleCallStatus)
	e.GET("/media/:id", s.handleMediaStream)

	sig := telephony.SignatureAuth(cfg.TwilioAuthToken)
	e.POST("/twilio/status", s.handleTwilioStatus, sig)
	e.POST("/twilio/recording-status", s.handleRecordingStatus, sig)

	return s
}

// Handler returns the root http.Handler for the server.
func (s *Server) Handler() http.Handler { return s.echo }

type startRequest struct {
	CallID   string `json:"call_id"`
	Phone    string `json:"phone"`
	CallerID string `json:"caller_id"`
	// tts_provider is the canonical selector; provider is accepted as an
	// alias.
	TTSProvider string `json:"tts_provider"`
	Provider    string `json:"provider"`
	Language    string `json:"language"`
	Voice       string `json:"voice"`
	Greeting    string `json:"greeting_message"`
	Prompt      string `json:"prompt"`
	FunnelGoal  string `json:"funnel_goal"`
	WebhookURL  string `json:"webhook_url"`

	Stability       float64 `json:"stability"`
	Speed           float64 `json:"speed"`
	SimilarityBoost float64 `json:"similarity_boost"`

	OpenAIKey         string `json:"openai_api_key"`
	ElevenLabsKey     string `json:"elevenlabs_api_key"`
	ElevenLabsAgentID string `json:"elevenlabs_agent_id"`
	YandexKey         string `json:"yandex_api_key"`
	YandexFolderID    string `json:"yandex_folder_id"`
}

type startResponse struct {
	CallID string `json:"call_id"`
	Status string `json:"status"`
}

type statusResponse struct {
	CallID string `json:"call_id"`
	Status string `json:"status"`
}

func (s *Server) handleStartCall(c echo.Context) error {
	var req startRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
	}

	cfg := s.buildCallConfig(req)
	ctrl := call.NewController(cfg, s.tel, s.factory, s.reporter)
	if !s.manager.Register(ctrl) {
		return c.JSON(http.StatusConflict, map[string]string{"error": "call_id already in use"})
	}
	// the session outlives this request, so it gets its own context
	if err := ctrl.Start(context.Background()); err != nil {
		s.manager.Remove(cfg.CallID)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	go func() {
		<-ctrl.Done()
		time.Sleep(retainTerminated)
		s.manager.Remove(cfg.CallID)
	}()

	return c.JSON(http.StatusAccepted, startResponse{CallID: cfg.CallID, Status: ctrl.State().ExternalStatus()})
}

// buildCallConfig merges the request with server-side defaults: generated
// call ID, configured caller ID, configured credentials and webhook URL.
func (s *Server) buildCallConfig(req startRequest) call.CallConfig {
	selected := req.TTSProvider
	if selected == "" {
		selected = req.Provider
	}
	cfg := call.CallConfig{
		CallID:          req.CallID,
		Phone:           req.Phone,
		CallerID:        req.CallerID,
		Provider:        provider.Name(selected),
		Language:        req.Language,
		Voice:           req.Voice,
		Greeting:        req.Greeting,
		Prompt:          req.Prompt,
		FunnelGoal:      req.FunnelGoal,
		WebhookURL:      req.WebhookURL,
		Stability:       req.Stability,
		Speed:           req.Speed,
		SimilarityBoost: req.SimilarityBoost,
		Credentials: provider.Credentials{
			OpenAIKey:         req.OpenAIKey,
			ElevenLabsKey:     req.ElevenLabsKey,
			ElevenLabsAgentID: req.ElevenLabsAgentID,
			YandexKey:         req.YandexKey,
			YandexFolderID:    req.YandexFolderID,
		},
	}
	if cfg.CallID == "" {
		cfg.CallID = uuid.NewString()
	}
	if cfg.CallerID == "" {
		cfg.CallerID = s.cfg.TwilioCallerID
	}
	if cfg.WebhookURL == "" {
		cfg.WebhookURL = s.cfg.DefaultWebhookURL
	}
	if cfg.Credentials.OpenAIKey == "" {
		cfg.Credentials.OpenAIKey = s.cfg.OpenAIKey
	}
	if cfg.Credentials.ElevenLabsKey == "" {
		cfg.Credentials.ElevenLabsKey = s.cfg.ElevenLabsKey
	}
	if cfg.Credentials.ElevenLabsAgentID == "" {
		cfg.Credentials.ElevenLabsAgentID = s.cfg.ElevenLabsAgentID
	}
	if cfg.Credentials.YandexKey == "" {
		cfg.Credentials.YandexKey = s.cfg.YandexAPIKey
	}
	if cfg.Credentials.YandexFolderID == "" {
		cfg.Credentials.YandexFolderID = s.cfg.YandexFolderID
	}
	return cfg
}

func (s *Server) handleCallStatus(c echo.Context) error {
	ctrl, ok := s.manager.Get(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown call_id"})
	}
	return c.JSON(http.StatusOK, statusResponse{
		CallID: ctrl.Config().CallID,
		Status: ctrl.State().ExternalStatus(),
	})
}

func (s *Server) handleMediaStream(c echo.Context) error {
	callID := c.Param("id")
	ctrl, ok := s.manager.Get(callID)
	if !ok {
		return c.String(http.StatusNotFound, "unknown call_id")
	}

	conn, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("media stream upgrade for %s: %v", callID, err)
		return nil
	}

	leg := telephony.NewStreamLeg(conn)
	ctrl.OnTelephonyConnected(leg)
	return nil
}

func (s *Server) handleTwilioStatus(c echo.Context) error {
	params := c.Get("twilioParams").(map[string]string)
	callID := c.QueryParam("call_id")
	status := params["CallStatus"]

	ctrl, ok := s.manager.Get(callID)
	if !ok {
		log.Printf("status callback for unknown call %s: %s", callID, status)
		return c.String(http.StatusOK, "OK")
	}

	switch telephony.MapCallStatus(status) {
	case telephony.EventConnected:
		if s.cfg.RecordCalls {
			if sid := params["CallSid"]; sid != "" {
				if err := s.tel.StartRecording(sid); err != nil {
					log.Printf("start recording for %s: %v", callID, err)
				}
			}
		}
	case telephony.EventDisconnected:
		ctrl.OnTelephonyDisconnected()
	case telephony.EventFailed:
		ctrl.OnTelephonyFailure(status)
	}
	return c.String(http.StatusOK, "OK")
}

func (s *Server) handleRecordingStatus(c echo.Context) error {
	params := c.Get("twilioParams").(map[string]string)
	s.tel.OnRecordingStatus(params)
	return c.String(http.StatusOK, "OK")
}
