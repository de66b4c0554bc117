// Package api exposes Jym's HTTP surface: channel webhooks, the trigger
// management endpoints, and a health check.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jymapp/jym/internal/messaging"
	"github.com/jymapp/jym/internal/store"
	"github.com/jymapp/jym/internal/trigger"
)

// DefaultAddr is the default listen address.
const DefaultAddr = ":8080"

// Opts holds server configuration and dependencies.
type Opts struct {
	Addr     string
	Store    store.Store
	Triggers *trigger.Scheduler
	Telegram *messaging.TelegramClient
	WhatsApp *messaging.TwilioWhatsAppClient
	IMessage *messaging.LoopMessageClient
}

// Option configures the server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithStore sets the persistence backend.
func WithStore(st store.Store) Option {
	return func(o *Opts) { o.Store = st }
}

// WithTriggerScheduler sets the trigger scheduler.
func WithTriggerScheduler(s *trigger.Scheduler) Option {
	return func(o *Opts) { o.Triggers = s }
}

// WithTelegramClient enables the Telegram webhook.
func WithTelegramClient(c *messaging.TelegramClient) Option {
	return func(o *Opts) { o.Telegram = c }
}

// WithWhatsAppClient enables the WhatsApp webhook.
func WithWhatsAppClient(c *messaging.TwilioWhatsAppClient) Option {
	return func(o *Opts) { o.WhatsApp = c }
}

// WithIMessageClient enables the iMessage webhook.
func WithIMessageClient(c *messaging.LoopMessageClient) Option {
	return func(o *Opts) { o.IMessage = c }
}

// Server is the HTTP server over the webhook and trigger endpoints.
type Server struct {
	opts Opts
	http *http.Server
}

// NewServer creates a server from options. Store and trigger scheduler are
// required; channel webhooks register only for configured clients.
func NewServer(opts ...Option) (*Server, error) {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store must be provided")
	}
	if cfg.Triggers == nil {
		return nil, fmt.Errorf("trigger scheduler must be provided")
	}

	s := &Server{opts: cfg}
	mux := http.NewServeMux()
	s.routes(mux)
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) routes(mux *http.ServeMux) {
	if s.opts.Telegram != nil {
		mux.HandleFunc("POST /webhooks/telegram", s.telegramWebhookHandler)
	}
	if s.opts.WhatsApp != nil {
		mux.HandleFunc("POST /webhooks/whatsapp", s.whatsappWebhookHandler)
	}
	if s.opts.IMessage != nil {
		mux.HandleFunc("POST /webhooks/imessage", s.imessageWebhookHandler)
	}
	mux.HandleFunc("POST /triggers", s.createTriggerHandler)
	mux.HandleFunc("GET /triggers", s.listTriggersHandler)
	mux.HandleFunc("DELETE /triggers/{id}", s.cancelTriggerHandler)
	mux.HandleFunc("GET /health", s.healthHandler)
}

// Start serves HTTP until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	slog.Info("API server listening", "addr", s.opts.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
