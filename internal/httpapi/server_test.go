package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aruizmd/medassist/internal/chatauth"
	"github.com/aruizmd/medassist/internal/config"
	"github.com/aruizmd/medassist/internal/gateway"
	"github.com/aruizmd/medassist/internal/observability"
	"github.com/aruizmd/medassist/internal/orchestrator"
)

var testMetrics = observability.NewMetrics("medassist_httpapi_test")

type fakePipeline struct {
	hub      *orchestrator.Hub
	received chan gateway.InboundMessage
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{
		hub:      orchestrator.NewHub(),
		received: make(chan gateway.InboundMessage, 8),
	}
}

func (f *fakePipeline) HandleInbound(_ context.Context, msg gateway.InboundMessage) error {
	f.received <- msg
	return nil
}

func (f *fakePipeline) Hub() *orchestrator.Hub { return f.hub }

func newTestServer(t *testing.T) (*httptest.Server, *fakePipeline, *chatauth.Issuer, config.Config) {
	t.Helper()
	cfg := config.Config{GatewaySigningSecret: "test-secret"}
	pipeline := newFakePipeline()
	issuer := chatauth.NewIssuer(chatauth.NewInMemoryStore(), time.Hour)
	srv := New(cfg, pipeline, issuer, testMetrics)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, pipeline, issuer, cfg
}

func postWebhook(t *testing.T, ts *httptest.Server, form url.Values, signature string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/webhook/messages", strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if signature != "" {
		req.Header.Set(signatureHeader, signature)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("webhook request error = %v", err)
	}
	return res
}

func TestWebhookAcceptsSignedCallback(t *testing.T) {
	ts, pipeline, _, cfg := newTestServer(t)

	form := url.Values{}
	form.Set("MessageSid", "SM-123")
	form.Set("From", "whatsapp:+15550001111")
	form.Set("To", "whatsapp:+15559990000")
	form.Set("Body", "hello")
	sig := gateway.ComputeSignature(cfg.GatewaySigningSecret, ts.URL+"/webhook/messages", form)

	res := postWebhook(t, ts, form, sig)
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	select {
	case msg := <-pipeline.received:
		if msg.MessageID != "SM-123" || msg.Body != "hello" {
			t.Fatalf("pipeline received %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline never received the message")
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	ts, pipeline, _, _ := newTestServer(t)

	form := url.Values{}
	form.Set("MessageSid", "SM-456")
	form.Set("From", "+15550001111")
	form.Set("Body", "hello")

	res := postWebhook(t, ts, form, "bogus")
	defer res.Body.Close()
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusForbidden)
	}

	select {
	case msg := <-pipeline.received:
		t.Fatalf("pipeline received %+v despite bad signature", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWebhookRejectsMissingFields(t *testing.T) {
	ts, _, _, cfg := newTestServer(t)

	form := url.Values{}
	form.Set("Body", "no sender")
	sig := gateway.ComputeSignature(cfg.GatewaySigningSecret, ts.URL+"/webhook/messages", form)

	res := postWebhook(t, ts, form, sig)
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestChatSessionRequiresValidToken(t *testing.T) {
	ts, _, issuer, _ := newTestServer(t)

	res, err := http.Get(ts.URL + "/v1/chat/session?token=nope")
	if err != nil {
		t.Fatalf("request error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status for bogus token = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}

	sess, err := issuer.GetOrCreateSession(context.Background(), "+15550001111", "clin-1")
	if err != nil {
		t.Fatalf("GetOrCreateSession() error = %v", err)
	}
	res, err = http.Get(ts.URL + "/v1/chat/session?token=" + sess.Token)
	if err != nil {
		t.Fatalf("request error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status for valid token = %d, want %d", res.StatusCode, http.StatusOK)
	}
}

func TestHealthAndReady(t *testing.T) {
	ts, _, _, _ := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		res, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s error = %v", path, err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d", path, res.StatusCode)
		}
	}
}
