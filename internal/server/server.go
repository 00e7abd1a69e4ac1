// Package server orchestrates all components: NATS client, DB, catalog, dispatcher, metrics, HTTP introspection.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/command-runner/internal/config"
	"github.com/morezero/command-runner/internal/console"
	"github.com/morezero/command-runner/internal/hasher"
	"github.com/morezero/command-runner/pkg/bootstrap"
	"github.com/morezero/command-runner/pkg/commsutil"
	"github.com/morezero/command-runner/pkg/db"
	"github.com/morezero/command-runner/pkg/dispatcher"
	"github.com/morezero/command-runner/pkg/events"
	"github.com/morezero/command-runner/pkg/metrics"
	"github.com/morezero/command-runner/pkg/peers"
	"github.com/morezero/command-runner/pkg/provider"
	"github.com/morezero/command-runner/pkg/registry"
	"github.com/morezero/command-runner/pkg/semver"
	"github.com/morezero/command-runner/pkg/sink"
	"github.com/morezero/command-runner/pkg/transport"
)

const logPrefix = "server:server"

// Server is one running peer.
type Server struct {
	cfg        *config.Config
	deployment *bootstrap.Deployment
	nc         *comms.Conn
	pool       *pgxpool.Pool
	httpServer *http.Server
	reg        *registry.Registry
	disp       *dispatcher.Dispatcher
	directory  *peers.Directory
	records    sink.Finder
	console    *console.Console
	metrics    *metrics.Metrics
	ready      atomic.Bool
}

// SetupLogging installs the default slog handler for level.
func SetupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

// RegisterBuiltins declares the services every runner carries.
func RegisterBuiltins(reg *registry.Registry) error {
	if err := console.Register(reg); err != nil {
		return err
	}
	return hasher.Register(reg)
}

// Run starts the peer, blocks until shutdown signal, then cleans up.
func Run(deploymentPath string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	SetupLogging(cfg.LogLevel)

	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("%s - Starting command-runner", logPrefix))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if deploymentPath == "" {
		deploymentPath = cfg.DeploymentFile
	}
	dep, err := bootstrap.LoadDeployment(deploymentPath)
	if err != nil {
		return fmt.Errorf("%s - failed to load deployment: %w", logPrefix, err)
	}

	if err := RegisterBuiltins(registry.Default); err != nil {
		return fmt.Errorf("%s - failed to register built-in services: %w", logPrefix, err)
	}

	s, err := New(ctx, cfg, dep, registry.Default)
	if err != nil {
		return err
	}
	if err := s.Start(ctx); err != nil {
		s.Close(ctx)
		return err
	}

	slog.Info(fmt.Sprintf("%s - Peer %s is ready", logPrefix, dep.Peer.ID))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	s.Close(shutdownCtx)

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

// New wires a peer from cfg and the deployment manifest. reg must already
// hold the services the manifest exposes. Nothing is served until Start.
func New(ctx context.Context, cfg *config.Config, dep *bootstrap.Deployment, reg *registry.Registry) (*Server, error) {
	if cfg.PeerID != "" {
		dep.Peer.ID = cfg.PeerID
	}
	if len(cfg.PeerHosts) > 0 {
		dep.Peer.Hosts = cfg.PeerHosts
	}
	if err := dep.Validate(); err != nil {
		return nil, fmt.Errorf("%s - invalid deployment: %w", logPrefix, err)
	}
	identity := dep.PeerInfo()

	codec, err := cfg.Codec()
	if err != nil {
		return nil, fmt.Errorf("%s - %w", logPrefix, err)
	}

	constraint := cfg.PeerVersionConstraint
	if constraint == "" {
		constraint = dep.PeerVersionConstraint
	}
	gate, err := semver.NewGate(dep.ProtocolVersion, constraint)
	if err != nil {
		return nil, fmt.Errorf("%s - invalid peer version constraint: %w", logPrefix, err)
	}
	directory, err := peers.NewDirectory(cfg.PeerDirectorySize, gate)
	if err != nil {
		return nil, err
	}

	s := &Server{cfg: cfg, deployment: dep, reg: reg, directory: directory, metrics: metrics.New()}

	// Step 1: Connect to NATS
	nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to NATS: %w", logPrefix, err)
	}
	s.nc = nc

	// Step 2: Error sinks, persisted when a database is configured
	logSink := sink.NewLogSink(slog.Default())
	errorSink := sink.NewTee(logSink)
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
		}
		s.pool = pool

		if cfg.RunMigrations {
			migrationSQL, err := db.LoadMigrationFiles(cfg.MigrationPath)
			if err != nil {
				s.closeConnections()
				return nil, fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
			}
			if err := db.RunMigrations(ctx, pool, migrationSQL); err != nil {
				s.closeConnections()
				return nil, fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
			}
		}

		errorSink = sink.NewTee(sink.NewPostgresSink(db.NewRepository(pool), string(identity.PeerID)), logSink)
	}
	s.records = errorSink

	// Step 3: Service instances
	s.console = console.New(console.DefaultBufferSize, nil)
	prov := provider.New()
	prov.Provide(console.Ref.Token, s.console)
	prov.ProvideFactory(hasher.Ref.Token, func(context.Context) (any, error) {
		return hasher.Hasher{}, nil
	})

	// Step 4: Dispatcher over NATS
	opts := []dispatcher.Option{
		dispatcher.WithLogger(slog.Default()),
		dispatcher.WithRequestTimeout(cfg.RequestTimeout),
		dispatcher.WithObserver(s.metrics),
	}
	if cfg.IntakeRate > 0 {
		opts = append(opts, dispatcher.WithIntakeLimit(cfg.IntakeRate, cfg.IntakeBurst))
	}
	disp, err := dispatcher.New(dispatcher.Deps{
		Registry:        reg,
		Transport:       transport.NewCommsTransport(nc, identity.PeerID, &transport.CommsOpts{Codec: codec}),
		Provider:        prov,
		Sink:            errorSink,
		Identity:        identity,
		Expose:          dep.Expose(),
		Updates:         events.NewCommsStream(nc, nil),
		Directory:       directory,
		ProtocolVersion: dep.ProtocolVersion,
	}, opts...)
	if err != nil {
		s.closeConnections()
		return nil, err
	}
	s.disp = disp

	if err := s.metrics.Gauge("pending_calls", "Outbound calls awaiting a reply.", disp.PendingCount); err != nil {
		s.closeConnections()
		return nil, err
	}
	if err := s.metrics.Gauge("known_peers", "Remote peers in the directory.", directory.Len); err != nil {
		s.closeConnections()
		return nil, err
	}
	return s, nil
}

// Start begins serving commands and, when an address is configured, HTTP.
func (s *Server) Start(ctx context.Context) error {
	if err := s.disp.Start(ctx); err != nil {
		return fmt.Errorf("%s - failed to start dispatcher: %w", logPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Serving %s on %s", logPrefix, s.deployment.Peer.ID, commsutil.InboxSubject(s.deployment.Peer.ID)))

	if addr := s.httpAddr(); addr != "" {
		s.httpServer = &http.Server{Addr: addr, Handler: s.Handler()}
		go func() {
			slog.Info(fmt.Sprintf("%s - HTTP server listening on %s", logPrefix, addr))
			if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
				slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
			}
		}()
	}

	s.ready.Store(true)
	return nil
}

func (s *Server) httpAddr() string {
	if s.cfg.HTTPAddr != "" {
		return s.cfg.HTTPAddr
	}
	if s.cfg.HTTPPort > 0 {
		return fmt.Sprintf(":%d", s.cfg.HTTPPort)
	}
	return ""
}

// Dispatcher returns the peer's dispatcher.
func (s *Server) Dispatcher() *dispatcher.Dispatcher {
	return s.disp
}

// Close stops HTTP, the dispatcher and the connections.
func (s *Server) Close(ctx context.Context) {
	s.ready.Store(false)
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			slog.Warn(fmt.Sprintf("%s - HTTP shutdown: %v", logPrefix, err))
		}
	}
	if s.disp != nil {
		if err := s.disp.Close(); err != nil {
			slog.Warn(fmt.Sprintf("%s - dispatcher close: %v", logPrefix, err))
		}
	}
	s.closeConnections()
}

func (s *Server) closeConnections() {
	if s.nc != nil {
		if err := s.nc.Drain(); err != nil {
			s.nc.Close()
		}
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

// Handler returns the HTTP introspection routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth())
	mux.HandleFunc("/ready", s.handleReady())
	mux.HandleFunc("/services", s.handleServices())
	mux.HandleFunc("/peers", s.handlePeers())
	mux.HandleFunc("/errors/", s.handleErrorRecord())
	mux.Handle("/metrics", s.metrics.Handler())
	return mux
}

// HealthChecks reports the state of each connection.
type HealthChecks struct {
	Comms    bool  `json:"comms"`
	Database *bool `json:"database,omitempty"`
}

// HealthOutput is the body of /health.
type HealthOutput struct {
	Status    string       `json:"status"`
	PeerID    string       `json:"peerId"`
	Checks    HealthChecks `json:"checks"`
	Pending   int          `json:"pending"`
	Peers     int          `json:"peers"`
	Timestamp string       `json:"timestamp"`
}

func (s *Server) health(ctx context.Context) *HealthOutput {
	out := &HealthOutput{
		Status:    "healthy",
		PeerID:    s.deployment.Peer.ID,
		Checks:    HealthChecks{Comms: s.nc != nil && s.nc.IsConnected()},
		Pending:   s.disp.PendingCount(),
		Peers:     s.directory.Len(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if s.pool != nil {
		ok := s.pool.Ping(ctx) == nil
		out.Checks.Database = &ok
		if !ok {
			out.Status = "unhealthy"
		}
	}
	if !out.Checks.Comms {
		out.Status = "unhealthy"
	}
	return out
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()
		h := s.health(ctx)
		status := http.StatusOK
		if h.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, h)
	}
}

func (s *Server) handleReady() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// ServicesOutput is the body of /services.
type ServicesOutput struct {
	PeerID          string                       `json:"peerId"`
	ProtocolVersion string                       `json:"protocolVersion"`
	Services        []registry.ServiceDescriptor `json:"services"`
}

func (s *Server) handleServices() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, &ServicesOutput{
			PeerID:          s.deployment.Peer.ID,
			ProtocolVersion: s.deployment.ProtocolVersion,
			Services:        s.reg.Services(),
		})
	}
}

func (s *Server) handlePeers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list := s.directory.List()
		if list == nil {
			list = []*events.PeerUpdated{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"peers": list})
	}
}

func (s *Server) handleErrorRecord() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := strings.TrimPrefix(r.URL.Path, "/errors/")
		if _, err := uuid.Parse(ref); err != nil {
			http.NotFound(w, r)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()

		rec, err := s.records.Find(ctx, ref)
		if err != nil {
			if errors.Is(err, sink.ErrNotFound) {
				http.NotFound(w, r)
				return
			}
			slog.Error(fmt.Sprintf("%s - error record %s lookup: %v", logPrefix, ref, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error(fmt.Sprintf("%s - response encode: %v", logPrefix, err))
	}
}
