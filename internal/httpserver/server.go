package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/consultease/central/internal/adminops"
	"github.com/consultease/central/internal/auth"
	"github.com/consultease/central/internal/bus"
	"github.com/consultease/central/internal/config"
	"github.com/consultease/central/internal/consultation"
	"github.com/consultease/central/internal/persistence"
)

// Server holds the HTTP server dependencies for ConsultEase's admin
// dashboard and kiosk-facing REST surface (§4.9/§7). This is the one
// HTTP-shaped component of the system: faculty desk units and the kiosk's
// real-time events flow over the message bus, not this router.
type Server struct {
	Router *chi.Mux
	Logger *slog.Logger
	Pool   *persistence.Pool
	Bus    *bus.Client

	Sessions  *auth.SessionManager
	AdminAuth *auth.AdminAuthenticator
	AdminOps  *adminops.AdminOps

	FacultyOps  *adminops.FacultyOps
	StudentOps  *adminops.StudentOps
	Consults    *consultation.Engine
	Consultants *persistence.ConsultationStore

	scans *scanCache

	startedAt time.Time
}

// NewServer creates the router, mounts middleware and health/metrics
// endpoints, and wires the ConsultEase domain routes onto it.
func NewServer(cfg *config.Config, logger *slog.Logger, pool *persistence.Pool, busClient *bus.Client,
	metricsReg *prometheus.Registry, sessions *auth.SessionManager, adminAuth *auth.AdminAuthenticator,
	adminOps *adminops.AdminOps, facultyOps *adminops.FacultyOps, studentOps *adminops.StudentOps,
	consults *consultation.Engine, consultStore *persistence.ConsultationStore) *Server {

	s := &Server{
		Router:      chi.NewRouter(),
		Logger:      logger,
		Pool:        pool,
		Bus:         busClient,
		Sessions:    sessions,
		AdminAuth:   adminAuth,
		AdminOps:    adminOps,
		FacultyOps:  facultyOps,
		StudentOps:  studentOps,
		Consults:    consults,
		Consultants: consultStore,
		scans:       newScanCache(),
		startedAt:   time.Now(),
	}

	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.HTTP.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Session-Token", "X-CSRF-Token", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.Router.Get("/healthz", s.handleHealthz)
	s.Router.Get("/readyz", s.handleReadyz)
	s.Router.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	s.Router.Route("/api", func(r chi.Router) {
		r.Route("/setup", func(r chi.Router) {
			r.Get("/status", s.handleSetupStatus)
			r.Post("/first-admin", s.handleSetupFirstAdmin)
		})

		r.Route("/auth", func(r chi.Router) {
			r.Post("/admin/login", s.handleAdminLogin)
			r.Post("/admin/logout", s.withAdminSession(s.handleAdminLogout))
			r.Post("/admin/change-password", s.withAdminSession(s.handleAdminChangePassword))
			r.Get("/kiosk/scan", s.handleKioskScan)
		})

		r.Route("/faculty", func(r chi.Router) {
			r.Get("/", s.handleListFaculty) // public within the LAN: kiosk availability board
			r.Get("/{id}", s.handleGetFaculty)
			r.Group(func(r chi.Router) {
				r.Use(s.requireAdminSession)
				r.Post("/", s.handleCreateFaculty)
				r.Put("/{id}", s.handleUpdateFaculty)
				r.Put("/{id}/always-present", s.handleSetFacultyAlwaysPresent)
				r.Put("/{id}/beacon", s.handleAssignFacultyBeacon)
				r.Put("/{id}/active", s.handleSetFacultyActive)
			})
		})

		r.Route("/students", func(r chi.Router) {
			r.Use(s.requireAdminSession)
			r.Get("/", s.handleListStudents)
			r.Get("/{id}", s.handleGetStudent)
			r.Post("/", s.handleCreateStudent)
			r.Put("/{id}", s.handleUpdateStudent)
			r.Put("/{id}/active", s.handleSetStudentActive)
		})

		r.Route("/admins", func(r chi.Router) {
			r.Use(s.requireAdminSession)
			r.Get("/", s.handleListAdmins)
			r.Post("/", s.handleCreateAdmin)
			r.Put("/{id}/active", s.handleSetAdminActive)
		})

		r.Route("/consultations", func(r chi.Router) {
			r.Use(s.requireStudentSession)
			r.Post("/", s.handleCreateConsultation)
			r.Get("/mine", s.handleListMyConsultations)
		})
	})

	return s
}

// ScanCallback returns the function the coordinator should pass to
// auth.NewStudentAuthenticator so scan results land in the kiosk poll cache.
func (s *Server) ScanCallback() func(auth.StudentLoginResult, error) {
	return s.scans.OnResult
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := s.Pool.Ping(ctx); err != nil {
		s.Logger.Error("readiness check: database ping failed", "error", err)
		RespondError(w, http.StatusServiceUnavailable, "unavailable", "database not ready")
		return
	}
	if !s.Bus.Connected() {
		RespondError(w, http.StatusServiceUnavailable, "unavailable", "message bus not connected")
		return
	}

	Respond(w, http.StatusOK, map[string]string{"status": "ready", "uptime": time.Since(s.startedAt).String()})
}
