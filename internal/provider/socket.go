package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 10 * time.Second
	sendQueueSize    = 256
	eventQueueSize   = 256
)

// socket is the shared websocket plumbing behind the three adapters: a write
// pump fed by a queue, a read loop owned by the adapter, and stop signalling.
type socket struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	sendCh chan []byte
	stopCh chan struct{}
	once   sync.Once
}

func newSocket() *socket {
	return &socket{
		sendCh: make(chan []byte, sendQueueSize),
		stopCh: make(chan struct{}),
	}
}

// dial connects the socket and starts the write pump.
func (s *socket) dial(ctx context.Context, url string, header http.Header) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: status %d: %w", url, resp.StatusCode, err)
		}
		return fmt.Errorf("dial %s: %w", url, err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	go s.writePump()
	return nil
}

// enqueue marshals v and queues it for delivery. It never blocks the caller:
// a full queue drops the frame with a log line, matching how the audio path
// must behave under backpressure.
func (s *socket) enqueue(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	select {
	case <-s.stopCh:
		return fmt.Errorf("socket closed")
	case s.sendCh <- data:
		return nil
	default:
		log.Println("provider send queue full, dropping frame")
		return nil
	}
}

func (s *socket) writePump() {
	for {
		select {
		case <-s.stopCh:
			return
		case data, ok := <-s.sendCh:
			if !ok {
				return
			}
			s.mu.Lock()
			conn := s.conn
			s.mu.Unlock()
			if conn == nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("provider socket write: %v", err)
				return
			}
		}
	}
}

// readFrames delivers raw frames to handle until the socket fails or closes.
// The returned error is nil on deliberate shutdown.
func (s *socket) readFrames(handle func([]byte)) error {
	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return nil
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stopCh:
				return nil
			default:
				return err
			}
		}
		handle(msg)
	}
}

// close is idempotent and safe from any goroutine.
func (s *socket) close() {
	s.once.Do(func() {
		close(s.stopCh)
		s.mu.Lock()
		if s.conn != nil {
			_ = s.conn.Close()
		}
		s.mu.Unlock()
	})
}

func (s *socket) closed() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}
