package telephony

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// mediaFrame is the envelope Twilio Media Streams exchanges in both
// directions. Only the fields this side reads or writes are declared.
type mediaFrame struct {
	Event     string        `json:"event"`
	StreamSID string        `json:"streamSid,omitempty"`
	Start     *streamStart  `json:"start,omitempty"`
	Media     *mediaPayload `json:"media,omitempty"`
}

type streamStart struct {
	StreamSID string `json:"streamSid"`
	CallSID   string `json:"callSid"`
}

type mediaPayload struct {
	Payload string `json:"payload"`
}

// StreamLeg is one live Twilio media stream websocket. Audio payloads stay
// base64 encoded end to end.
type StreamLeg struct {
	conn *websocket.Conn

	audioIn chan string
	ready   chan struct{}

	mu        sync.Mutex
	streamSID string

	stopCh chan struct{}
	once   sync.Once
}

// NewStreamLeg wraps an upgraded media stream connection and starts reading
// frames. Ready is signalled once Twilio sends its start frame.
func NewStreamLeg(conn *websocket.Conn) *StreamLeg {
	l := &StreamLeg{
		conn:    conn,
		audioIn: make(chan string, 256),
		ready:   make(chan struct{}),
		stopCh:  make(chan struct{}),
	}
	go l.readLoop()
	return l
}

// AudioIn delivers inbound caller audio payloads. The channel closes when the
// stream ends.
func (l *StreamLeg) AudioIn() <-chan string { return l.audioIn }

// Ready closes once the start frame has arrived and playout is possible.
func (l *StreamLeg) Ready() <-chan struct{} { return l.ready }

// WriteAudio sends one synthesized audio payload down the stream.
func (l *StreamLeg) WriteAudio(payload string) error {
	return l.writeFrame(mediaFrame{
		Event:     "media",
		StreamSID: l.sid(),
		Media:     &mediaPayload{Payload: payload},
	})
}

// ClearPlayout drops all audio Twilio has buffered but not yet played.
func (l *StreamLeg) ClearPlayout() error {
	return l.writeFrame(mediaFrame{Event: "clear", StreamSID: l.sid()})
}

// Close tears the websocket down. Safe to call more than once.
func (l *StreamLeg) Close() error {
	l.once.Do(func() { close(l.stopCh) })
	return l.conn.Close()
}

func (l *StreamLeg) sid() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.streamSID
}

func (l *StreamLeg) writeFrame(f mediaFrame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn.WriteMessage(websocket.TextMessage, data)
}

func (l *StreamLeg) readLoop() {
	defer close(l.audioIn)
	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			select {
			case <-l.stopCh:
			default:
				log.Printf("media stream read: %v", err)
			}
			return
		}
		var f mediaFrame
		if err := json.Unmarshal(data, &f); err != nil {
			log.Printf("media stream: bad frame: %v", err)
			continue
		}
		switch f.Event {
		case "start":
			if f.Start != nil {
				l.mu.Lock()
				if l.streamSID == "" {
					l.streamSID = f.Start.StreamSID
					close(l.ready)
				}
				l.mu.Unlock()
			}
		case "media":
			if f.Media == nil {
				continue
			}
			select {
			case l.audioIn <- f.Media.Payload:
			default:
				// realtime audio: stale frames are worthless, drop
			}
		case "stop":
			return
		}
	}
}
