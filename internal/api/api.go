// Package api provides the HTTP server and the bootstrap logic for VetBot.
//
// It exposes the messaging webhooks, a proactive send endpoint and read-only
// admin endpoints, and wires transports, storage, AI, the dispatcher and the
// maintenance scheduler together.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Alex3496/VetBot/internal/flow"
	"github.com/Alex3496/VetBot/internal/genai"
	"github.com/Alex3496/VetBot/internal/messaging"
	"github.com/Alex3496/VetBot/internal/observability"
	"github.com/Alex3496/VetBot/internal/scheduler"
	"github.com/Alex3496/VetBot/internal/sheets"
	"github.com/Alex3496/VetBot/internal/store"
	"github.com/Alex3496/VetBot/internal/twiliowhatsapp"
	"github.com/Alex3496/VetBot/internal/whatsapp"
)

// Transport names accepted by WithTransport.
const (
	TransportCloud     = "cloud"
	TransportTwilio    = "twilio"
	TransportWhatsmeow = "whatsmeow"
)

// Server defaults
const (
	DefaultAddr            = ":8080"
	DefaultSweepSchedule   = "@every 1m"
	DefaultPruneSchedule   = "@hourly"
	DefaultDedupRetention  = 24 * time.Hour
	DefaultIdleTimeout     = 30 * time.Minute
	DefaultShutdownTimeout = 10 * time.Second
	DefaultListLimit       = 50
	MetricsNamespace       = "vetbot"
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr             string
	Transport        string
	SweepSchedule    string
	IdleTimeout      time.Duration
	DedupEnabled     bool
	TwilioAuthToken  string
	TwilioWebhookURL string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithTransport selects the messaging transport: cloud, twilio or whatsmeow.
func WithTransport(name string) Option {
	return func(o *Opts) { o.Transport = name }
}

// WithSweepSchedule sets the cron expression of the idle-session sweep.
func WithSweepSchedule(expr string) Option {
	return func(o *Opts) { o.SweepSchedule = expr }
}

// WithIdleTimeout sets how long an untouched session survives.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *Opts) { o.IdleTimeout = d }
}

// WithDedup toggles inbound message deduplication.
func WithDedup(enabled bool) Option {
	return func(o *Opts) { o.DedupEnabled = enabled }
}

// WithTwilioSignature enables X-Twilio-Signature checks for the given public webhook URL.
func WithTwilioSignature(authToken, webhookURL string) Option {
	return func(o *Opts) {
		o.TwilioAuthToken = authToken
		o.TwilioWebhookURL = webhookURL
	}
}

// Modules groups the per-module options passed to Run.
type Modules struct {
	API      []Option
	Cloud    []messaging.CloudOption
	Twilio   []twiliowhatsapp.Option
	WhatsApp []whatsapp.Option
	Store    []store.Option
	GenAI    []genai.Option
	Sheets   []sheets.Option
}

// Server holds the HTTP-facing dependencies.
type Server struct {
	msgService   messaging.Service
	dispatcher   *flow.Dispatcher
	appointments store.AppointmentRepo
	metrics      *observability.Metrics
	router       chi.Router
}

// NewServer builds the router for msgService. Webhook routes are only mounted
// for the transports that receive them.
func NewServer(msgService messaging.Service, dispatcher *flow.Dispatcher, appointments store.AppointmentRepo, metrics *observability.Metrics) *Server {
	s := &Server{
		msgService:   msgService,
		dispatcher:   dispatcher,
		appointments: appointments,
		metrics:      metrics,
	}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/healthz", s.healthHandler)
	r.Post("/send", s.sendHandler)
	r.Get("/appointments", s.appointmentsHandler)
	r.Get("/sessions", s.sessionsHandler)
	r.Delete("/sessions/{id}", s.deleteSessionHandler)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	switch svc := s.msgService.(type) {
	case *messaging.CloudService:
		r.Get("/webhook", svc.VerifyHandler)
		r.Post("/webhook", svc.WebhookHandler)
		r.Get("/templates", s.templatesHandler)
	case *messaging.TwilioService:
		r.Post("/twilio/webhook", svc.TwilioWebhookHandler)
	}
	return r
}

// Run bootstraps every module and serves HTTP until SIGINT or SIGTERM.
func Run(mods Modules) error {
	cfg := Opts{
		Addr:          DefaultAddr,
		Transport:     TransportCloud,
		SweepSchedule: DefaultSweepSchedule,
		IdleTimeout:   DefaultIdleTimeout,
		DedupEnabled:  true,
	}
	for _, opt := range mods.API {
		opt(&cfg)
	}
	slog.Debug("api.Run: configuration", "addr", cfg.Addr, "transport", cfg.Transport, "sweep", cfg.SweepSchedule, "idleTimeout", cfg.IdleTimeout, "dedup", cfg.DedupEnabled)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics(MetricsNamespace)

	st, err := openStore(mods.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	msgService, err := buildTransport(ctx, cfg, mods)
	if err != nil {
		return err
	}

	sinks := flow.MultiSink{st}
	if len(mods.Sheets) > 0 {
		sheetsClient, err := sheets.NewClient(ctx, mods.Sheets...)
		if err != nil {
			slog.Warn("api.Run: spreadsheet sink disabled", "error", err)
		} else {
			sinks = append(sinks, sheetsClient)
		}
	}

	states := flow.NewInMemoryStateManager(flow.WithIdleTimeout(cfg.IdleTimeout))
	dispatcherOpts := []flow.DispatcherOption{
		flow.WithAppointmentSink(sinks),
		flow.WithObserver(metrics),
	}
	if ai, err := genai.NewClient(mods.GenAI...); err != nil {
		slog.Warn("api.Run: assistant disabled, answers will fall back to an apology", "error", err)
	} else {
		dispatcherOpts = append(dispatcherOpts, flow.WithAssistant(ai))
	}
	dispatcher := flow.NewDispatcher(states, msgService, dispatcherOpts...)

	handlerOpts := []messaging.ResponseHandlerOption{messaging.WithInboundObserver(metrics)}
	if cfg.DedupEnabled {
		handlerOpts = append(handlerOpts, messaging.WithDedup(st))
	}
	respHandler := messaging.NewResponseHandler(msgService, dispatcher, handlerOpts...)

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	sweep := scheduler.SweepSessionsJob(states, time.Now, metrics.SessionsExpired)
	if err := sched.AddJob(cfg.SweepSchedule, func() {
		sweep()
		if sessions, err := states.List(ctx); err == nil {
			metrics.SetActiveSessions(len(sessions))
		}
	}); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", cfg.SweepSchedule, err)
	}
	if cfg.DedupEnabled {
		if err := sched.AddJob(DefaultPruneSchedule, scheduler.PruneDedupJob(st, DefaultDedupRetention, time.Now)); err != nil {
			return err
		}
	}

	if err := msgService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start %s transport: %w", msgService.Name(), err)
	}
	respHandler.Start(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewServer(msgService, dispatcher, st, metrics).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("VetBot API listening", "addr", cfg.Addr, "transport", msgService.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		slog.Info("api.Run: shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			slog.Error("api.Run: HTTP server failed", "error", err)
			_ = msgService.Stop()
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("api.Run: HTTP shutdown incomplete", "error", err)
	}
	if err := msgService.Stop(); err != nil {
		slog.Warn("api.Run: transport stop failed", "error", err)
	}
	respHandler.Wait()
	slog.Info("api.Run: stopped")
	return nil
}

// openStore opens the SQL store named by the options or falls back to memory.
func openStore(opts []store.Option) (store.Store, error) {
	var cfg store.Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Info("api.Run: no database configured, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	st, err := store.Open(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	slog.Info("api.Run: store opened", "driver", store.DetectDSNType(cfg.DSN))
	return st, nil
}

// buildTransport creates the messaging service selected by cfg.Transport.
func buildTransport(ctx context.Context, cfg Opts, mods Modules) (messaging.Service, error) {
	switch cfg.Transport {
	case TransportCloud, "":
		return messaging.NewCloudService(mods.Cloud...)
	case TransportTwilio:
		client, err := twiliowhatsapp.NewClient(mods.Twilio...)
		if err != nil {
			return nil, fmt.Errorf("failed to create Twilio client: %w", err)
		}
		return messaging.NewTwilioService(client, messaging.WithTwilioSignatureValidation(cfg.TwilioAuthToken, cfg.TwilioWebhookURL)), nil
	case TransportWhatsmeow:
		client, err := whatsapp.NewClient(ctx, mods.WhatsApp...)
		if err != nil {
			return nil, fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		return messaging.NewWhatsAppService(client), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}
