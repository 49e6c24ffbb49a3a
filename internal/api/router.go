package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/cryptiomt/cryptiomt/internal/api/handlers"
	"github.com/cryptiomt/cryptiomt/internal/api/middleware"
	"github.com/cryptiomt/cryptiomt/internal/auth"
	"github.com/cryptiomt/cryptiomt/internal/inventory"
	"github.com/cryptiomt/cryptiomt/internal/notify"
	"github.com/cryptiomt/cryptiomt/pkg/crypto"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Router struct {
	chi.Router
}

type RouterConfig struct {
	DB             *gorm.DB
	Redis          *redis.Client
	Logger         *slog.Logger
	JWTService     *auth.JWTService
	AuthService    *auth.Service
	Encryptor      *crypto.Encryptor
	AsynqClient    *asynq.Client
	AllowedOrigins []string // CORS allowed origins
	RateLimitReqs  int      // Rate limit requests per window
	RateLimitSecs  int      // Rate limit window in seconds
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))

	// Rate limiting - applied globally to prevent abuse
	if cfg.RateLimitReqs > 0 {
		r.Use(middleware.RateLimit(cfg.RateLimitReqs, cfg.RateLimitSecs))
	}

	// CORS - restrict to configured origins, or allow all in development
	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		// Default to localhost for development - configure in production
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Initialize services
	inventoryService := inventory.NewService(cfg.DB, cfg.Logger)
	notifyService := notify.NewService(cfg.DB, cfg.Logger)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis)
	authHandler := handlers.NewAuthHandler(cfg.AuthService)
	deviceHandler := handlers.NewDeviceHandler(cfg.DB, inventoryService)
	vulnerabilityHandler := handlers.NewVulnerabilityHandler(cfg.DB)
	linkHandler := handlers.NewLinkHandler(cfg.DB)
	scheduleHandler := handlers.NewScheduleHandler(cfg.DB, cfg.AsynqClient)
	reportHandler := handlers.NewReportHandler(cfg.DB)
	notificationHandler := handlers.NewNotificationHandler(notifyService)
	settingsHandler := handlers.NewSettingsHandler(cfg.DB, cfg.Encryptor)
	dashboardHandler := handlers.NewDashboardHandler(cfg.DB, cfg.Redis)
	adminHandler := handlers.NewAdminHandler(cfg.AsynqClient)

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public auth endpoints
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/logout", authHandler.Logout)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTService))

			// Per-user limit on top of the global IP limit; authenticated
			// clients get their own window instead of sharing a NAT'd IP.
			if cfg.RateLimitReqs > 0 {
				r.Use(middleware.RateLimitByUser(cfg.RateLimitReqs, cfg.RateLimitSecs))
			}

			// User endpoints
			r.Get("/me", func(w http.ResponseWriter, r *http.Request) {
				userID := middleware.GetUserID(r.Context())
				user, err := cfg.AuthService.GetUserByID(r.Context(), userID)
				if err != nil {
					http.Error(w, "User not found", http.StatusNotFound)
					return
				}
				writeJSON(w, http.StatusOK, user)
			})

			// Device inventory endpoints
			r.Route("/devices", func(r chi.Router) {
				r.Get("/", deviceHandler.List)
				r.Post("/", deviceHandler.Create)
				r.Post("/import", deviceHandler.Import)
				r.Get("/export", deviceHandler.Export)
				r.Get("/{id}", deviceHandler.Get)
				r.Put("/{id}", deviceHandler.Update)
				r.Delete("/{id}", deviceHandler.Delete)
			})

			// Vulnerability feed endpoints
			r.Route("/vulnerabilities", func(r chi.Router) {
				r.Get("/", vulnerabilityHandler.List)
				r.Get("/{id}", vulnerabilityHandler.Get)
			})

			// Device/vulnerability link endpoints
			r.Route("/links", func(r chi.Router) {
				r.Get("/", linkHandler.List)
				r.Put("/{id}/status", linkHandler.UpdateStatus)
			})

			// Report schedule endpoints
			r.Route("/schedules", func(r chi.Router) {
				r.Get("/", scheduleHandler.List)
				r.Post("/", scheduleHandler.Create)
				r.Get("/{id}", scheduleHandler.Get)
				r.Put("/{id}", scheduleHandler.Update)
				r.Delete("/{id}", scheduleHandler.Delete)
				r.Post("/{id}/trigger", scheduleHandler.Trigger)
			})

			// Report endpoints
			r.Route("/reports", func(r chi.Router) {
				r.Get("/summary", reportHandler.Summary)
				r.Get("/summary.csv", reportHandler.SummaryCSV)
				r.Get("/summary.pdf", reportHandler.SummaryPDF)
				r.Get("/runs", reportHandler.Runs)
			})

			// Notification endpoints
			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", notificationHandler.List)
				r.Put("/{id}/read", notificationHandler.MarkRead)
				r.Post("/read-all", notificationHandler.MarkAllRead)
			})

			// Settings endpoints
			r.Route("/settings", func(r chi.Router) {
				r.Get("/delivery", settingsHandler.GetDelivery)
				r.Put("/delivery", settingsHandler.PutDelivery)
			})

			// Dashboard endpoint
			r.Get("/dashboard", dashboardHandler.Stats)

			// Admin endpoints
			r.Post("/admin/feed/sync", adminHandler.FeedSync)
		})
	})

	return &Router{r}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
