package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/techxpo/clinic-kiosk/internal/http/handlers"
	httpmiddleware "github.com/techxpo/clinic-kiosk/internal/http/middleware"
	"github.com/techxpo/clinic-kiosk/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger *logging.Logger

	CatalogHandler    *handlers.CatalogHandler
	ScheduleHandler   *handlers.ScheduleHandler
	VisitHandler      *handlers.VisitHandler
	TokenHandler      *handlers.TokenHandler
	TranscriptHandler *handlers.TranscriptHandler

	// RealtimeHandler is the WebSocket upgrade endpoint for /ws.
	RealtimeHandler http.HandlerFunc
	// TokenSecret guards /ws when set; the same secret signs /api/token.
	TokenSecret string

	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Static mounts. Dashboard is mounted before the kiosk catch-all so both
	// can serve from root.
	DashboardStaticDir string
	KioskStaticDir     string
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/healthz", handlers.Healthz)
	r.Get("/healthz-unified", handlers.Healthz)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		if cfg.CatalogHandler != nil {
			api.Get("/hospitals", cfg.CatalogHandler.Hospitals)
			api.Get("/departments", cfg.CatalogHandler.Departments)
			api.Get("/meta", cfg.CatalogHandler.Meta)
		}
		if cfg.ScheduleHandler != nil {
			api.Get("/overview", cfg.ScheduleHandler.Overview)
			api.Get("/bookings", cfg.ScheduleHandler.Bookings)
			api.Get("/bookings_by_code", cfg.ScheduleHandler.BookingsByCode)
			api.Post("/book", cfg.ScheduleHandler.Book)
			api.Post("/book_by_code", cfg.ScheduleHandler.BookByCode)
			api.Post("/backfill_department_codes", cfg.ScheduleHandler.Backfill)
		}
		if cfg.VisitHandler != nil {
			api.Get("/visit_detail", cfg.VisitHandler.VisitDetail)
		}
		if cfg.TranscriptHandler != nil {
			api.Get("/transcript", cfg.TranscriptHandler.List)
		}
		if cfg.TokenHandler != nil {
			api.With(httpmiddleware.RateLimit(5, 10)).Get("/token", cfg.TokenHandler.Mint)
		}
	})

	if cfg.RealtimeHandler != nil {
		r.With(httpmiddleware.JoinToken(cfg.TokenSecret)).Get("/ws", cfg.RealtimeHandler)
	}

	if cfg.DashboardStaticDir != "" {
		mountStatic(r, "/dashboard", cfg.DashboardStaticDir)
	}
	if cfg.KioskStaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(cfg.KioskStaticDir)))
	}

	return r
}

func mountStatic(r chi.Router, prefix, dir string) {
	fs := http.StripPrefix(prefix, http.FileServer(http.Dir(dir)))
	r.Handle(prefix+"/*", fs)
	r.Handle(prefix, http.RedirectHandler(prefix+"/", http.StatusMovedPermanently))
}
