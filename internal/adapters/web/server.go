package web

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/lcalzada-xor/trapwire/internal/adapters/web/middleware"
	"github.com/lcalzada-xor/trapwire/internal/core/ports"
	"github.com/lcalzada-xor/trapwire/internal/core/services/correlation"
)

// Server handles HTTP and WebSocket connections for the dashboard.
type Server struct {
	Addr      string
	Handlers  *Handlers
	WSManager *WSManager
	auth      ports.AuthService
	srv       *http.Server
}

// NewServer creates the dashboard server.
func NewServer(addr string, service ports.DefenseService, auth ports.AuthService, audits ports.AuditRepository, correlator *correlation.Engine) *Server {
	return &Server{
		Addr:      addr,
		Handlers:  NewHandlers(service, auth, audits, correlator),
		WSManager: NewWSManager(service),
		auth:      auth,
	}
}

// Routes builds the router. Exposed for handler tests.
func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()

	// Public
	r.HandleFunc("/api/login", s.Handlers.HandleLogin).Methods(http.MethodPost)
	r.HandleFunc("/api/logout", s.Handlers.HandleLogout).Methods(http.MethodPost)

	auth := middleware.AuthMiddleware(s.auth)

	// Read-only views
	api := r.PathPrefix("/api").Subrouter()
	api.Use(mux.MiddlewareFunc(auth))
	api.HandleFunc("/devices", s.Handlers.HandleDevices).Methods(http.MethodGet)
	api.HandleFunc("/alerts", s.Handlers.HandleAlerts).Methods(http.MethodGet)
	api.HandleFunc("/honeypot", s.Handlers.HandleHoneypot).Methods(http.MethodGet)
	api.HandleFunc("/audit-logs", s.Handlers.HandleAuditLogs).Methods(http.MethodGet)
	api.HandleFunc("/report", s.Handlers.HandleReport).Methods(http.MethodGet)
	api.HandleFunc("/honeypot/event", s.Handlers.HandleInteractionEvent).Methods(http.MethodPost)
	api.Handle("/ws", http.HandlerFunc(s.WSManager.HandleWebSocket)).Methods(http.MethodGet)

	// Enforcement actions need operator rights on top of auth.
	api.Handle("/action/{name}", middleware.RequireOperator(http.HandlerFunc(s.Handlers.HandleAction))).Methods(http.MethodPost)
	api.Handle("/lockdown", middleware.RequireOperator(http.HandlerFunc(s.Handlers.HandleLockdown))).Methods(http.MethodPost)

	// Metrics (authenticated)
	r.Handle("/metrics", auth(promhttp.Handler())).Methods(http.MethodGet)

	// Static dashboard assets
	r.PathPrefix("/").Handler(http.FileServer(http.Dir("./web/static")))

	return r
}

// Run starts the server and the websocket broadcaster; it shuts down with the
// context.
func (s *Server) Run(ctx context.Context) error {
	s.WSManager.Start(ctx)

	handler := otelhttp.NewHandler(s.Routes(), "trapwire-dashboard")
	s.srv = &http.Server{
		Addr:              s.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Dashboard shutdown error: %v", err)
		}
	}()

	log.Printf("Dashboard listening on %s", s.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
