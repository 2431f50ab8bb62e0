// Package api provides the HTTP surface of LabFlow.
//
// It exposes the WhatsApp webhook that feeds the conversational flows, a
// small REST read surface over committed appointments and reports, an
// outbound message endpoint, health and Prometheus metrics endpoints. Run
// wires the storage, messaging, media and flow modules together from their
// option sets and serves until the process exits.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/labflowhq/labflow/internal/cache"
	"github.com/labflowhq/labflow/internal/flow"
	"github.com/labflowhq/labflow/internal/genai"
	"github.com/labflowhq/labflow/internal/insight"
	"github.com/labflowhq/labflow/internal/media"
	"github.com/labflowhq/labflow/internal/messaging"
	"github.com/labflowhq/labflow/internal/reminder"
	"github.com/labflowhq/labflow/internal/scheduler"
	"github.com/labflowhq/labflow/internal/store"
	"github.com/labflowhq/labflow/internal/twilioclient"
)

// Default server configuration.
const (
	DefaultAddr      = ":8080"
	DefaultLabID     = "lab_default"
	DefaultUploadDir = "/var/lib/labflow/uploads"

	readHeaderTimeout = 10 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr           string
	LabID          string
	RedisAddr      string
	S3Bucket       string
	UploadDir      string
	UploadBaseURL  string
	InsightBaseURL string
	ReminderCron   string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithLabID sets the lab that booked appointments are attributed to.
func WithLabID(labID string) Option {
	return func(o *Opts) { o.LabID = labID }
}

// WithRedisAddr moves the scratch cache from the relational store to Redis.
func WithRedisAddr(addr string) Option {
	return func(o *Opts) { o.RedisAddr = addr }
}

// WithS3Bucket stores uploaded report media in the given S3 bucket.
func WithS3Bucket(bucket string) Option {
	return func(o *Opts) { o.S3Bucket = bucket }
}

// WithUploadDir stores uploaded report media in a local directory, served
// under /uploads/. Ignored when an S3 bucket is configured.
func WithUploadDir(dir, baseURL string) Option {
	return func(o *Opts) { o.UploadDir = dir; o.UploadBaseURL = baseURL }
}

// WithInsightBaseURL enables the report-analysis service integration.
func WithInsightBaseURL(url string) Option {
	return func(o *Opts) { o.InsightBaseURL = url }
}

// WithReminderCron enables the appointment reminder sweep on the given
// cron expression.
func WithReminderCron(expr string) Option {
	return func(o *Opts) { o.ReminderCron = expr }
}

// Server carries the handlers' collaborators.
type Server struct {
	store      store.Store
	router     *flow.Router
	msgService messaging.Service
	uploadDir  string // serve /uploads/ from here when set
}

// NewServer creates an API server over pre-built collaborators.
func NewServer(st store.Store, router *flow.Router, msgService messaging.Service) *Server {
	return &Server{store: st, router: router, msgService: msgService}
}

// Run wires all modules from their options and serves HTTP until the
// listener fails. It owns the lifetime of the store connection.
func Run(storeOpts []store.Option, twilioOpts []twilioclient.Option, genaiOpts []genai.Option, apiOpts []Option) error {
	var cfg Opts
	for _, opt := range apiOpts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.LabID == "" {
		cfg.LabID = DefaultLabID
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = DefaultUploadDir
	}

	st, err := buildStore(storeOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	cacheStore := store.CacheStore(st)
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedisCache(cache.WithAddr(cfg.RedisAddr))
		if err != nil {
			return fmt.Errorf("failed to initialize redis cache: %w", err)
		}
		defer rc.Close()
		cacheStore = rc
		slog.Info("Server using Redis scratch cache", "addr", cfg.RedisAddr)
	}

	tw, err := twilioclient.NewClient(twilioOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize Twilio client: %w", err)
	}
	msgService := messaging.NewTwilioService(tw)
	defer msgService.Stop()

	var objects media.ObjectStore
	serveUploads := ""
	if cfg.S3Bucket != "" {
		s3Store, err := media.NewS3Store(context.Background(), cfg.S3Bucket)
		if err != nil {
			return fmt.Errorf("failed to initialize S3 store: %w", err)
		}
		objects = s3Store
		slog.Info("Server storing media in S3", "bucket", cfg.S3Bucket)
	} else {
		baseURL := cfg.UploadBaseURL
		if baseURL == "" {
			baseURL = "http://localhost" + cfg.Addr + "/uploads"
		}
		dirStore, err := media.NewDirStore(cfg.UploadDir, baseURL)
		if err != nil {
			return fmt.Errorf("failed to initialize upload directory: %w", err)
		}
		objects = dirStore
		serveUploads = cfg.UploadDir
		slog.Info("Server storing media locally", "dir", cfg.UploadDir)
	}
	pipeline := media.NewPipeline(tw, objects, "")

	deps := flow.Dependencies{Store: st, Cache: cacheStore, Media: pipeline}
	if cfg.InsightBaseURL != "" {
		insightClient, err := insight.NewClient(insight.WithBaseURL(cfg.InsightBaseURL))
		if err != nil {
			return fmt.Errorf("failed to initialize insight client: %w", err)
		}
		deps.Insight = insightClient
	} else {
		slog.Warn("Server insight service not configured; analysis flow degraded")
	}

	var classifier flow.Classifier
	if gc, err := genai.NewClient(genaiOpts...); err != nil {
		slog.Warn("Server GenAI classifier unavailable, keyword heuristic only", "error", err)
	} else {
		classifier = gc
	}

	if cfg.ReminderCron != "" {
		sched := scheduler.NewScheduler()
		defer sched.Stop()
		if err := reminder.NewService(st, msgService, sched).Start(cfg.ReminderCron); err != nil {
			return fmt.Errorf("failed to start reminder sweep: %w", err)
		}
	}

	router := flow.NewRouter(deps, classifier,
		flow.NewBookingHandler(deps, cfg.LabID),
		flow.NewUploadHandler(deps),
		flow.NewRetrieveHandler(deps),
		flow.NewAnalyzeHandler(deps),
	)

	srv := NewServer(st, router, msgService)
	srv.uploadDir = serveUploads
	slog.Info("LabFlow API listening", "addr", cfg.Addr, "labID", cfg.LabID)
	return srv.Serve(cfg.Addr)
}

// buildStore picks the storage backend from the configured DSN, defaulting
// to the in-memory store when none is set.
func buildStore(storeOpts []store.Option) (store.Store, error) {
	var opts store.Opts
	for _, opt := range storeOpts {
		opt(&opts)
	}
	switch {
	case opts.DSN == "":
		slog.Warn("Server no database DSN configured, using in-memory store")
		return store.NewInMemoryStore(), nil
	case store.DetectDSNType(opts.DSN) == "postgres":
		return store.NewPostgresStore(storeOpts...)
	default:
		return store.NewSQLiteStore(storeOpts...)
	}
}

// Handler builds the HTTP routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook/whatsapp", s.webhookHandler)
	mux.HandleFunc("POST /api/messages", s.sendHandler)
	mux.HandleFunc("GET /api/patients/{patientID}/appointments", s.appointmentsHandler)
	mux.HandleFunc("GET /api/users/{userID}/reports", s.reportsHandler)
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /metrics", promhttp.Handler())
	if s.uploadDir != "" {
		mux.Handle("GET /uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.uploadDir))))
	}
	return mux
}

// Serve blocks on the HTTP listener.
func (s *Server) Serve(addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return httpServer.ListenAndServe()
}
