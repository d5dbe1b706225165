package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/KaramelBytes/nutrilens-cli/internal/insight"
	"github.com/KaramelBytes/nutrilens-cli/internal/record"
	"github.com/KaramelBytes/nutrilens-cli/internal/session"
	"github.com/KaramelBytes/nutrilens-cli/internal/stats"
)

// PatientHeader names the request header that selects the session patient.
const PatientHeader = "X-Patient-ID"

// Server exposes records, statistics and insights over HTTP.
type Server struct {
	router   *chi.Mux
	records  record.Reader
	stats    *stats.Service
	insights *insight.Orchestrator
	log      logrus.FieldLogger
}

func NewServer(records record.Reader, insights *insight.Orchestrator, log logrus.FieldLogger) *Server {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	s := &Server{
		router:   chi.NewRouter(),
		records:  records,
		stats:    stats.NewService(records),
		insights: insights,
		log:      log,
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/patients/{id}", s.handlePatient)
		r.Get("/patients/{id}/statistics", s.handlePatientStatistics)
		r.With(withSession).Get("/me/statistics", s.handleSessionStatistics)
		r.Get("/statistics/average", s.handleAverage)
		r.Get("/insights", s.handleInsights)
		r.Post("/insights", s.handleStartInsights)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
		}).Info("http request")
	})
}

// withSession attaches the patient named by PatientHeader to the request context.
func withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(PatientHeader))
		if id == "" {
			writeError(w, http.StatusUnauthorized, "missing "+PatientHeader+" header")
			return
		}
		ctx := session.WithSession(r.Context(), session.Session{PatientID: id})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	n, err := s.records.Count(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "records": n})
}

func (s *Server) handlePatient(w http.ResponseWriter, r *http.Request) {
	rec, err := s.records.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handlePatientStatistics(w http.ResponseWriter, r *http.Request) {
	st, err := s.stats.ForRecord(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSessionStatistics(w http.ResponseWriter, r *http.Request) {
	st, err := s.stats.ForSession(r.Context())
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleAverage(w http.ResponseWriter, r *http.Request) {
	var pred record.Predicate = record.Everyone
	raw := r.URL.Query().Get("sex")
	sex := record.ParseSex(raw)
	if raw != "" {
		if sex == record.SexUnknown {
			writeError(w, http.StatusBadRequest, "sex must be male or female")
			return
		}
		pred = record.BySex(sex)
	}
	avg, err := s.stats.AverageBy(r.Context(), pred)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sex": string(sex), "average": avg})
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, insight.Describe(s.insights.State()))
}

func (s *Server) handleStartInsights(w http.ResponseWriter, r *http.Request) {
	loading := s.insights.Start(r.Context())
	writeJSON(w, http.StatusAccepted, insight.Describe(loading))
}

func (s *Server) writeLookupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, record.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, stats.ErrEmptyPopulation):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, stats.ErrNoSession):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		s.log.WithError(err).Error("lookup failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
