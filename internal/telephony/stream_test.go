package telephony

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialTestLeg(t *testing.T) (*StreamLeg, *websocket.Conn) {
	t.Helper()
	legCh := make(chan *StreamLeg, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		legCh <- NewStreamLeg(conn)
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	select {
	case leg := <-legCh:
		t.Cleanup(func() { leg.Close() })
		return leg, client
	case <-time.After(2 * time.Second):
		t.Fatalf("server never produced a stream leg")
		return nil, nil
	}
}

func sendFrame(t *testing.T, client *websocket.Conn, frame string) {
	t.Helper()
	if err := client.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func readFrame(t *testing.T, client *websocket.Conn) mediaFrame {
	t.Helper()
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var f mediaFrame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	return f
}

func TestStreamLegStartSignalsReady(t *testing.T) {
	leg, client := dialTestLeg(t)

	select {
	case <-leg.Ready():
		t.Fatalf("leg must not be ready before the start frame")
	default:
	}

	sendFrame(t, client, `{"event":"start","start":{"streamSid":"MZ123","callSid":"CA123"}}`)
	select {
	case <-leg.Ready():
	case <-time.After(2 * time.Second):
		t.Fatalf("start frame did not signal readiness")
	}

	if err := leg.WriteAudio("cGNt"); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	f := readFrame(t, client)
	if f.Event != "media" || f.StreamSID != "MZ123" || f.Media == nil || f.Media.Payload != "cGNt" {
		t.Fatalf("unexpected outbound frame: %+v", f)
	}
}

func TestStreamLegInboundAudio(t *testing.T) {
	leg, client := dialTestLeg(t)

	sendFrame(t, client, `{"event":"start","start":{"streamSid":"MZ1"}}`)
	sendFrame(t, client, `{"event":"media","media":{"payload":"AAAA"}}`)

	select {
	case got := <-leg.AudioIn():
		if got != "AAAA" {
			t.Fatalf("payload %q, want AAAA", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("media frame never reached AudioIn")
	}

	sendFrame(t, client, `{"event":"stop"}`)
	select {
	case _, ok := <-leg.AudioIn():
		if ok {
			t.Fatalf("expected AudioIn to close after stop")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("AudioIn did not close after stop")
	}
}

func TestStreamLegClearPlayout(t *testing.T) {
	leg, client := dialTestLeg(t)

	sendFrame(t, client, `{"event":"start","start":{"streamSid":"MZ9"}}`)
	select {
	case <-leg.Ready():
	case <-time.After(2 * time.Second):
		t.Fatalf("not ready")
	}

	if err := leg.ClearPlayout(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	f := readFrame(t, client)
	if f.Event != "clear" || f.StreamSID != "MZ9" {
		t.Fatalf("unexpected clear frame: %+v", f)
	}
}
