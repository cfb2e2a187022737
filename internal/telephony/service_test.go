package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestMapCallStatus(t *testing.T) {
	cases := map[string]CallEvent{
		"queued":      EventIgnore,
		"initiated":   EventIgnore,
		"ringing":     EventIgnore,
		"in-progress": EventConnected,
		"answered":    EventConnected,
		"completed":   EventDisconnected,
		"busy":        EventFailed,
		"failed":      EventFailed,
		"no-answer":   EventFailed,
		"canceled":    EventFailed,
	}
	for status, want := range cases {
		if got := MapCallStatus(status); got != want {
			t.Errorf("status %q mapped to %v, want %v", status, got, want)
		}
	}
}

func TestStreamTwiML(t *testing.T) {
	doc, err := streamTwiML("https://calls.example.com", "abc-123")
	if err != nil {
		t.Fatalf("twiml: %v", err)
	}
	for _, want := range []string{"<Connect>", "<Stream", "wss://calls.example.com/media/abc-123"} {
		if !strings.Contains(doc, want) {
			t.Fatalf("twiml missing %q:\n%s", want, doc)
		}
	}
}

func TestStatusCallbackURL(t *testing.T) {
	got := statusCallbackURL("https://calls.example.com/", "id with space")
	if got != "https://calls.example.com/twilio/status?call_id=id+with+space" {
		t.Fatalf("unexpected callback URL: %s", got)
	}
}

func signBody(token, fullURL string, form url.Values) string {
	data := fullURL
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		data += k + form.Get(k)
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestSignatureAuth(t *testing.T) {
	const token = "secret-token"
	e := echo.New()
	var seen map[string]string
	handler := func(c echo.Context) error {
		seen = c.Get("twilioParams").(map[string]string)
		return c.String(http.StatusOK, "OK")
	}

	form := url.Values{}
	form.Set("CallStatus", "completed")
	fullURL := "https://calls.example.com/twilio/status?call_id=c1"

	req := httptest.NewRequest(http.MethodPost, "/twilio/status?call_id=c1", strings.NewReader(form.Encode()))
	req.Host = "calls.example.com"
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	req.Header.Set("X-Twilio-Signature", signBody(token, fullURL, form))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := SignatureAuth(token)(handler)(c); err != nil {
		t.Fatalf("middleware: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("valid signature rejected: %d %s", rec.Code, rec.Body.String())
	}
	if seen["CallStatus"] != "completed" {
		t.Fatalf("verified params not stored: %+v", seen)
	}
}

func TestSignatureAuthRejectsTamperedBody(t *testing.T) {
	const token = "secret-token"
	e := echo.New()
	handler := func(c echo.Context) error { return c.String(http.StatusOK, "OK") }

	form := url.Values{}
	form.Set("CallStatus", "completed")
	sig := signBody(token, "https://calls.example.com/twilio/status", form)

	tampered := url.Values{}
	tampered.Set("CallStatus", "failed")
	req := httptest.NewRequest(http.MethodPost, "/twilio/status", strings.NewReader(tampered.Encode()))
	req.Host = "calls.example.com"
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	req.Header.Set("X-Twilio-Signature", sig)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := SignatureAuth(token)(handler)(c); err != nil {
		t.Fatalf("middleware: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("tampered body accepted: %d", rec.Code)
	}
}
