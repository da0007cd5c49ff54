package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/aruizmd/medassist/internal/chatauth"
	"github.com/aruizmd/medassist/internal/config"
	"github.com/aruizmd/medassist/internal/gateway"
	"github.com/aruizmd/medassist/internal/observability"
	"github.com/aruizmd/medassist/internal/orchestrator"
	"github.com/aruizmd/medassist/internal/policy"
)

// signatureHeader carries the provider's HMAC of the callback payload.
const signatureHeader = "X-Twilio-Signature"

// webhookTimeout bounds the async processing of one inbound message after
// the webhook has been acked.
const webhookTimeout = 2 * time.Minute

// Pipeline is the inbound-processing surface the server drives.
type Pipeline interface {
	HandleInbound(ctx context.Context, msg gateway.InboundMessage) error
	Hub() *orchestrator.Hub
}

type Server struct {
	cfg      config.Config
	pipeline Pipeline
	issuer   *chatauth.Issuer
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, pipeline Pipeline, issuer *chatauth.Issuer, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		pipeline: pipeline,
		issuer:   issuer,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only allow browser websocket connections from the same
				// origin unless explicitly opened up.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/webhook/messages", s.handleInboundWebhook)
	r.Get("/v1/chat/session", s.handleChatSession)
	r.Get("/v1/chat/ws", s.handleChatWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":           "ready",
		"database_enabled": s.cfg.DatabaseURL != "",
	})
}

// handleInboundWebhook validates the provider signature, acks immediately,
// and processes the message asynchronously: the provider's delivery timeout
// is far shorter than a completion round trip.
func (s *Server) handleInboundWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_form", err.Error())
		return
	}

	callbackURL := s.cfg.GatewayCallbackURL
	if callbackURL == "" {
		callbackURL = requestURL(r)
	}
	if !gateway.ValidateSignature(s.cfg.GatewaySigningSecret, callbackURL, r.PostForm, r.Header.Get(signatureHeader)) {
		s.metrics.InboundMessages.WithLabelValues("bad_signature").Inc()
		respondError(w, http.StatusForbidden, "invalid_signature", "signature verification failed")
		return
	}

	msg, err := gateway.ParseInbound(r.PostForm)
	if err != nil {
		s.metrics.InboundMessages.WithLabelValues("invalid").Inc()
		respondError(w, http.StatusBadRequest, "invalid_callback", err.Error())
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
		defer cancel()
		if err := s.pipeline.HandleInbound(ctx, msg); err != nil {
			redacted, _ := policy.RedactPHI(err.Error())
			log.Printf("httpapi: inbound %s: %s", msg.MessageID, redacted)
		}
	}()

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("<Response></Response>"))
}

func (s *Server) handleChatSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.authorize(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

// handleChatWS streams companion-view events for the clinician behind the
// presented token.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.authorize(w, r)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	events, cancelSub := s.pipeline.Hub().Subscribe(sess.ClinicianID)
	defer cancelSub()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reads are discarded; the loop only notices the peer going away.
	go func() {
		defer cancel()
		conn.SetReadLimit(1 << 16)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case raw, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		}
	}
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request) (chatauth.Session, bool) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		respondError(w, http.StatusUnauthorized, "missing_token", "query parameter token is required")
		return chatauth.Session{}, false
	}
	sess, err := s.issuer.Validate(r.Context(), token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid_token", "token unknown or expired")
		return chatauth.Session{}, false
	}
	return sess, true
}

func requestURL(r *http.Request) string {
	scheme := "https"
	if r.TLS == nil {
		scheme = "http"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
