package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/vitalink/platform/internal/adapters/his"
	"github.com/vitalink/platform/internal/appointment"
	"github.com/vitalink/platform/internal/audit"
	"github.com/vitalink/platform/internal/booking"
	"github.com/vitalink/platform/internal/document"
	"github.com/vitalink/platform/internal/notification"
	"github.com/vitalink/platform/internal/patient"
	"github.com/vitalink/platform/internal/reporting"
	"github.com/vitalink/platform/internal/shared/auth"
	"github.com/vitalink/platform/internal/shared/config"
	"github.com/vitalink/platform/internal/shared/database"
	"github.com/vitalink/platform/internal/shared/events"
	"github.com/vitalink/platform/internal/shared/metrics"
	secmiddleware "github.com/vitalink/platform/internal/shared/middleware"
)

// App holds all application dependencies
type App struct {
	Config *config.Config
	DB     *database.DB
	Bus    *events.Bus
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	app := &App{Config: cfg}

	// Initialize database (optional - skip if not available)
	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		fmt.Printf("Warning: Database not available: %v\n", err)
		fmt.Println("Running in limited mode without database...")
	} else {
		app.DB = db
		defer db.Close()

		if err := database.Migrate(ctx, db.Pool); err != nil {
			fmt.Printf("Warning: Migration failed: %v\n", err)
		}
	}

	// Initialize event bus (optional - skip if not available)
	bus, err := events.NewBus(ctx, cfg.EventStore)
	if err != nil {
		fmt.Printf("Warning: EventStore not available: %v\n", err)
		fmt.Println("Running without event streaming...")
	} else {
		app.Bus = bus
		defer bus.Close()
		fmt.Println("EventStore event bus initialized")
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(metrics.Middleware)
	r.Use(corsMiddleware)

	// Health checks (unauthenticated)
	r.Get("/health", healthHandler(app))
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())

	// API info
	r.Get("/", infoHandler)

	r.Route("/api/v1", func(r chi.Router) {
		// Auth is enforced in production; dev mode stays open
		if cfg.Server.Env == "production" {
			r.Use(auth.Middleware(cfg.Auth))
		}
		r.Use(secmiddleware.RateLimiter(50, 100))

		if app.DB == nil {
			return
		}

		patientRepo := patient.NewRepository(app.DB.Pool)
		patientHandler := patient.NewHandler(patientRepo, nil)
		r.Mount("/patients", patientHandler.Routes())

		appointmentRepo := appointment.NewRepository(app.DB.Pool)
		appointmentHandler := appointment.NewHandler(appointmentRepo, app.Bus, nil)
		r.Mount("/appointments", appointmentHandler.Routes())

		bookingStore := booking.NewStore(30*time.Minute, nil)
		bookingHandler := booking.NewHandler(bookingStore, appointmentRepo, app.Bus, nil)
		r.Mount("/booking", bookingHandler.Routes())

		documentRepo := document.NewRepository(app.DB.Pool)
		documentHandler := document.NewHandler(documentRepo, app.Bus, cfg.Upload, nil)
		r.Mount("/documents", documentHandler.Routes())

		reportingHandler := reporting.NewHandler(appointmentRepo, nil)
		r.Route("/reports", func(r chi.Router) {
			if cfg.Server.Env == "production" {
				r.Use(auth.RequireRoles(auth.RoleDoctor, auth.RoleAdmin))
			}
			r.Mount("/", reportingHandler.Routes())
		})

		// Audit trail lives in the append-only event store
		if app.Bus != nil {
			auditRepo := audit.NewStreamRepository(app.Bus.Client())
			if err := auditRepo.Initialize(ctx); err != nil {
				fmt.Printf("Warning: Audit initialization failed: %v\n", err)
			}

			r.Route("/audit", func(r chi.Router) {
				if cfg.Server.Env == "production" {
					r.Use(auth.RequireRoles(auth.RoleAdmin))
				}
				r.Mount("/", audit.NewHandler(auditRepo).Routes())
			})

			auditSubscriber := audit.NewSubscriber(auditRepo, app.Bus)
			if err := auditSubscriber.Start(ctx); err != nil {
				fmt.Printf("Warning: Audit subscriber failed to start: %v\n", err)
			} else {
				fmt.Println("Audit subscriber started")
			}
		}

		// Appointment reminders
		reminderService := notification.NewService(map[notification.Channel]notification.Provider{
			notification.ChannelEmail: notification.NewConsoleProvider("email"),
			notification.ChannelSMS:   notification.NewConsoleProvider("sms"),
		}, cfg.Notification)
		if err := reminderService.Start(ctx); err != nil {
			fmt.Printf("Warning: Reminder service failed to start: %v\n", err)
		} else {
			scheduler := notification.NewScheduler(
				reminderService, appointmentRepo, patientRepo,
				cfg.Notification.ReminderLead, time.Hour, nil,
			)
			scheduler.Start(ctx)
			fmt.Printf("Reminder scheduler started (lead %s)\n", cfg.Notification.ReminderLead)
		}

		r.Route("/reminders", func(r chi.Router) {
			if cfg.Server.Env == "production" {
				r.Use(auth.RequireRoles(auth.RoleAdmin))
			}
			r.Mount("/", notification.NewHandler(reminderService).Routes())
		})

		// Legacy HIS import
		if cfg.HIS.Enabled {
			adapter := his.New(cfg.HIS, appointmentRepo, patientRepo)
			if err := adapter.Start(ctx); err != nil {
				fmt.Printf("Warning: HIS adapter failed to start: %v\n", err)
			} else {
				fmt.Printf("HIS import adapter started (poll interval %s)\n", cfg.HIS.PollInterval)
			}
		}
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		fmt.Println("\nShutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			fmt.Printf("Server shutdown error: %v\n", err)
		}
		close(done)
	}()

	fmt.Println("============================================")
	fmt.Println("VitaLink Telemedicine Platform")
	fmt.Println("============================================")
	fmt.Printf("Environment:  %s\n", cfg.Server.Env)
	fmt.Printf("Server:       http://localhost:%d\n", cfg.Server.Port)
	fmt.Printf("API:          http://localhost:%d/api/v1\n", cfg.Server.Port)
	fmt.Printf("Health:       http://localhost:%d/health\n", cfg.Server.Port)
	fmt.Printf("EventStore:   %s:%d\n", cfg.EventStore.Host, cfg.EventStore.Port)
	fmt.Printf("HIS import:   %v\n", cfg.HIS.Enabled)
	fmt.Println("============================================")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}

	<-done
	fmt.Println("Server stopped")
}

func infoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":    "VitaLink Telemedicine Platform",
		"version": "0.1.0",
		"docs":    "/api/v1",
	})
}

func healthHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
		})
	}
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"server": "ready",
		}

		if app.DB != nil {
			if err := app.DB.Health(r.Context()); err != nil {
				checks["database"] = "not ready: " + err.Error()
			} else {
				checks["database"] = "ready"
			}
		} else {
			checks["database"] = "not configured"
		}

		if app.Bus != nil {
			if err := app.Bus.Health(); err != nil {
				checks["eventstore"] = "not ready: " + err.Error()
			} else {
				checks["eventstore"] = "ready"
			}
		} else {
			checks["eventstore"] = "not configured"
		}

		allReady := true
		for _, status := range checks {
			if status != "ready" && status != "not configured" {
				allReady = false
				break
			}
		}

		status := http.StatusOK
		if !allReady {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[bool]string{true: "ready", false: "not ready"}[allReady],
			"checks": checks,
		})
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
