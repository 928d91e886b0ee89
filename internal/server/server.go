package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/KaramelBytes/lapboard-cli/internal/ingest"
	"github.com/KaramelBytes/lapboard-cli/internal/log"
	"github.com/KaramelBytes/lapboard-cli/internal/race"
	"github.com/KaramelBytes/lapboard-cli/internal/report"
)

// unzipRatio bounds how far an uploaded workbook may expand when unpacked.
const unzipRatio = 20

// Options configures a Server.
type Options struct {
	// MaxUploadBytes caps the request body of an upload.
	MaxUploadBytes int64
	// Ingest holds the default read options; uploads may override the sheet.
	Ingest ingest.Options
}

// Server is the HTTP handler for the upload and analysis API.
type Server struct {
	store    *Store
	opt      Options
	metrics  *metrics
	registry *prometheus.Registry
	router   *mux.Router
}

// New creates a Server backed by st and registers all routes.
func New(st *Store, opt Options) *Server {
	if opt.MaxUploadBytes <= 0 {
		opt.MaxUploadBytes = 32 << 20
	}
	if opt.Ingest.MaxUnzipBytes <= 0 {
		opt.Ingest.MaxUnzipBytes = opt.MaxUploadBytes * unzipRatio
	}
	reg := prometheus.NewRegistry()
	s := &Server{
		store:    st,
		opt:      opt,
		metrics:  newMetrics(reg, st),
		registry: reg,
		router:   mux.NewRouter(),
	}

	r := s.router
	r.Use(logRequests)
	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/sessions", s.upload).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", s.getSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.deleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/analysis", s.analysis).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/report.xlsx", s.workbook).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr and runs session eviction until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go s.store.Run(ctx, func(n int) { s.metrics.evictions.Add(float64(n)) })

	errc := make(chan error, 1)
	go func() {
		log.Logger.Info("listening", zap.String("addr", addr), zap.Duration("session_ttl", s.store.TTL()))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

// --- route handlers ---------------------------------------------------------

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, healthResponse{Status: "ok", Sessions: s.store.Count()})
}

// upload handles POST /api/v1/sessions with a multipart "file" field.
func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opt.MaxUploadBytes)
	file, hdr, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.metrics.uploads.WithLabelValues("too_large").Inc()
			jsonErr(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", s.opt.MaxUploadBytes))
			return
		}
		s.metrics.uploads.WithLabelValues("bad_request").Inc()
		jsonErr(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	opt := s.opt.Ingest
	if v := r.FormValue("sheet_name"); v != "" {
		opt.SheetName = v
	}
	if v := r.FormValue("sheet_index"); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil || i < 1 {
			s.metrics.uploads.WithLabelValues("bad_request").Inc()
			jsonErr(w, http.StatusBadRequest, "sheet_index must be a positive integer")
			return
		}
		opt.SheetIndex = i
	}

	res, err := ingest.Read(hdr.Filename, file, opt)
	if err != nil {
		var schema *ingest.SchemaError
		switch {
		case errors.As(err, &schema):
			s.metrics.uploads.WithLabelValues("schema_error").Inc()
			jsonResp(w, http.StatusUnprocessableEntity, errorResponse{Error: schema.Error(), Missing: schema.Missing})
		case errors.Is(err, ingest.ErrUnsupportedFormat):
			s.metrics.uploads.WithLabelValues("unsupported").Inc()
			jsonErr(w, http.StatusUnsupportedMediaType, err.Error())
		case errors.Is(err, ingest.ErrSheetNotFound):
			s.metrics.uploads.WithLabelValues("bad_request").Inc()
			jsonErr(w, http.StatusUnprocessableEntity, err.Error())
		default:
			s.metrics.uploads.WithLabelValues("bad_request").Inc()
			jsonErr(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	e := s.store.Put(race.NewSession(res.Name, res.Dataset, res.Stats))
	s.metrics.uploads.WithLabelValues("ok").Inc()
	s.metrics.observeRows(res.Stats)
	log.Logger.Info("session created",
		zap.String("id", e.ID),
		zap.String("name", res.Name),
		zap.Int("kept", res.Stats.Kept),
		zap.Int("dropped", res.Stats.Dropped()))
	jsonResp(w, http.StatusCreated, s.sessionResponse(e))
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	jsonResp(w, http.StatusOK, s.sessionResponse(e))
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.store.Delete(mux.Vars(r)["id"]) {
		jsonErr(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// analysis handles GET /api/v1/sessions/{id}/analysis?driver=A&lap=1.
func (s *Server) analysis(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.buildReport(w, r)
	if !ok {
		return
	}
	jsonResp(w, http.StatusOK, rep)
}

// workbook handles GET /api/v1/sessions/{id}/report.xlsx.
func (s *Server) workbook(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.buildReport(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := rep.WriteXLSX(&buf); err != nil {
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=report.xlsx")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) buildReport(w http.ResponseWriter, r *http.Request) (*report.Report, bool) {
	e, ok := s.lookup(w, r)
	if !ok {
		return nil, false
	}
	f, err := filterFromQuery(r.URL.Query(), e.Session)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	s.metrics.analyses.Inc()
	sess := e.Session
	return report.Build(sess.Name, sess.Analyze(f), sess.Stats), true
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*Entry, bool) {
	e, ok := s.store.Get(mux.Vars(r)["id"])
	if !ok {
		jsonErr(w, http.StatusNotFound, "session not found")
	}
	return e, ok
}

func (s *Server) sessionResponse(e *Entry) SessionResponse {
	ds := e.Session.Dataset
	return SessionResponse{
		ID:        e.ID,
		Name:      e.Session.Name,
		Rows:      e.Session.Stats,
		Dropped:   e.Session.Stats.Dropped(),
		Drivers:   race.ObservedDrivers(ds),
		Laps:      race.ObservedLaps(ds),
		CreatedAt: e.CreatedAt,
		ExpiresIn: s.store.TTL().String(),
	}
}

// filterFromQuery builds the selection for a request. An absent parameter
// selects everything observed; a present but empty one selects nothing.
func filterFromQuery(q url.Values, sess *race.Session) (race.Filter, error) {
	def := sess.DefaultFilter()
	drivers := def.Drivers()
	if vals, ok := q["driver"]; ok {
		drivers = lo.Filter(vals, func(v string, _ int) bool { return v != "" })
	}
	laps := def.Laps()
	if vals, ok := q["lap"]; ok {
		laps = []int{}
		for _, v := range vals {
			for _, part := range strings.Split(v, ",") {
				part = strings.TrimSpace(part)
				if part == "" {
					continue
				}
				n, err := strconv.Atoi(part)
				if err != nil {
					return race.Filter{}, fmt.Errorf("invalid lap %q", part)
				}
				laps = append(laps, n)
			}
		}
	}
	return race.NewFilter(drivers, laps), nil
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)))
	})
}
