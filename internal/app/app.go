// Package app bootstraps and wires the system: storage, services, the
// defense loop and the dashboard. It acts as the facade for the whole
// gateway.
package app

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/lcalzada-xor/trapwire/internal/adapters/firewall"
	"github.com/lcalzada-xor/trapwire/internal/adapters/sniffer"
	"github.com/lcalzada-xor/trapwire/internal/adapters/storage"
	"github.com/lcalzada-xor/trapwire/internal/adapters/web"
	"github.com/lcalzada-xor/trapwire/internal/config"
	"github.com/lcalzada-xor/trapwire/internal/core/domain"
	"github.com/lcalzada-xor/trapwire/internal/core/services/audit"
	"github.com/lcalzada-xor/trapwire/internal/core/services/auth"
	"github.com/lcalzada-xor/trapwire/internal/core/services/correlation"
	"github.com/lcalzada-xor/trapwire/internal/core/services/detection"
	"github.com/lcalzada-xor/trapwire/internal/core/services/engine"
	"github.com/lcalzada-xor/trapwire/internal/core/services/presence"
	"github.com/lcalzada-xor/trapwire/internal/core/services/registry"
	"github.com/lcalzada-xor/trapwire/internal/telemetry"
)

// Application holds the core components of the gateway.
type Application struct {
	Config    *config.Config
	Engine    *engine.Engine
	WebServer *web.Server
	Detector  *detection.HybridDetector

	store          *storage.SQLiteAdapter
	tracerShutdown func(context.Context) error
}

// New creates an Application instance and bootstraps its components.
func New(cfg *config.Config) (*Application, error) {
	app := &Application{Config: cfg}
	if err := app.bootstrap(); err != nil {
		return nil, fmt.Errorf("application bootstrap failed: %w", err)
	}
	return app, nil
}

func (app *Application) bootstrap() error {
	telemetry.InitMetrics()

	shutdown, err := telemetry.InitTracer()
	if err != nil {
		log.Printf("Warning: tracer initialization failed: %v", err)
	} else {
		app.tracerShutdown = shutdown
	}

	// Relational store: audit history + dashboard accounts.
	store, err := storage.NewSQLiteAdapter(app.Config.DBPath)
	if err != nil {
		return fmt.Errorf("failed to init system storage: %w", err)
	}
	app.store = store

	authService := auth.NewAuthService(store)
	if err := app.ensureDefaultAdmin(authService); err != nil {
		log.Printf("Warning: could not ensure default admin: %v", err)
	}
	auditService := audit.NewAuditService(store)

	// File-contract stores.
	behaviorLog := storage.NewBehaviorCSV(app.Config.BehaviorPath())
	interactionLog := storage.NewInteractionCSV(app.Config.InteractionPath())
	reg := registry.New(storage.NewJSONRegistryStore(app.Config.RegistryPath()))

	// Detection, warmed from any existing history.
	detector := detection.NewHybridDetector(app.Config.Thresholds, behaviorLog)
	detector.RetrainNow()
	app.Detector = detector

	correlator := correlation.New(app.Config.Thresholds, interactionLog, interactionLog)

	// Enforcement with audit trail and evidence packaging.
	auditLog := firewall.NewAuditLog(app.Config.AuditLogPath())
	archiver := firewall.NewArchiver(app.Config.DataDir,
		app.Config.BehaviorPath(), app.Config.InteractionPath(), app.Config.AuditLogPath())
	enforcer := firewall.NewIPTables(app.Config.APInterface, auditLog, archiver)

	trinity := presence.NewTrinity(app.Config.APInterface, app.Config.LeaseFiles)
	collector := sniffer.NewFlowCollector(app.Config.APInterface)

	app.Engine = engine.New(app.Config, reg, trinity, collector, nil,
		detector, correlator, enforcer, auditService, interactionLog)

	app.WebServer = web.NewServer(app.Config.Addr, app.Engine, authService, store, correlator)
	return nil
}

func (app *Application) ensureDefaultAdmin(authService *auth.AuthService) error {
	if _, err := app.store.GetByUsername(context.Background(), "admin"); err != nil {
		log.Println("Provisioning default admin user...")
		return authService.CreateUser(context.Background(), domain.User{
			Username: "admin",
			Role:     domain.RoleAdmin,
		}, "changeit")
	}
	return nil
}

// Run starts the loop, the capture opener and the dashboard, and blocks until
// the context ends.
func (app *Application) Run(ctx context.Context) error {
	slog.Info("Starting trapwire components...")

	app.Detector.Start(ctx)
	go app.openCaptureWithRetry(ctx)

	errChan := make(chan error, 2)

	go func() {
		if err := app.WebServer.Run(ctx); err != nil {
			errChan <- fmt.Errorf("dashboard error: %w", err)
		}
	}()

	go func() {
		app.Engine.Run(ctx)
		errChan <- nil
	}()

	slog.Info("Trapwire ready", "interface", app.Config.APInterface, "addr", app.Config.Addr)

	select {
	case <-ctx.Done():
		slog.Info("Termination signal received")
	case err := <-errChan:
		if err != nil {
			return err
		}
	}

	return app.cleanup()
}

// openCaptureWithRetry keeps trying to open the live packet source. Until it
// succeeds the loop runs presence-only; a capture failure is never fatal.
func (app *Application) openCaptureWithRetry(ctx context.Context) {
	for {
		src, err := sniffer.NewPcapSource(app.Config.APInterface)
		if err == nil {
			slog.Info("Packet capture open", "interface", app.Config.APInterface)
			app.Engine.SetCapture(src)
			go func() {
				<-ctx.Done()
				src.Close()
			}()
			return
		}
		log.Printf("Capture open failed, retrying: %v", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(10 * time.Second):
		}
	}
}

func (app *Application) cleanup() error {
	slog.Info("Cleaning up resources...")

	// Firewall rules are deliberately left installed on shutdown.
	if app.tracerShutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := app.tracerShutdown(shutdownCtx); err != nil {
			log.Printf("Tracer shutdown error: %v", err)
		}
	}
	if app.store != nil {
		return app.store.Close()
	}
	return nil
}
