package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	gochi "github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/sift/internal/db"
	"github.com/kailas-cloud/sift/internal/domain"
	"github.com/kailas-cloud/sift/internal/domain/search/codec"
	logpkg "github.com/kailas-cloud/sift/internal/logger"
	healthuc "github.com/kailas-cloud/sift/internal/usecase/health"
	"github.com/kailas-cloud/sift/internal/usecase/materialize"
	searchuc "github.com/kailas-cloud/sift/internal/usecase/search"
)

// DefaultOffset is the window size used when a request does not set one.
const DefaultOffset = 10

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Options configures request limits of the server.
type Options struct {
	// DefaultIndex serves POST /v1/search. Empty disables the route.
	DefaultIndex string
	MaxOffset    int
}

// Server exposes the search service over HTTP.
type Server struct {
	search        *searchuc.Service
	health        *healthuc.Service
	validate      *validator.Validate
	opts          Options
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	search *searchuc.Service,
	health *healthuc.Service,
	opts Options,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		search:   search,
		health:   health,
		validate: validator.New(),
		opts:     opts,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		compileErrorHandler,
		sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrFormat, http.StatusBadRequest, CodeInvalidFormat),
		sentinelHandler(db.ErrIndexNotFound, http.StatusNotFound, CodeIndexNotFound),
		sentinelHandler(db.ErrScrollExpired, http.StatusGone, CodeScrollExpired),
		sentinelHandler(domain.ErrSearchExecution, http.StatusBadGateway, CodeSearchFailed),
	}
	return s
}

// Routes registers the API on r.
func (s *Server) Routes(r gochi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/v1", func(r gochi.Router) {
		r.Post("/query/compile", s.CompileQuery)
		r.Post("/search", s.SearchDefaultIndex)
		r.Post("/indexes/{index}/search", s.SearchIndex)
		r.Post("/indexes/{index}/sources", s.SourcesIndex)
	})
}

// CompileQuery handles POST /v1/query/compile.
func (s *Server) CompileQuery(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !s.decode(w, r, &req) {
		return
	}
	sreq, err := req.toDomain(materialize.Window{})
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}

	body, err := s.search.Compile(sreq)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CompileResponse{Body: body})
}

// SearchIndex handles POST /v1/indexes/{index}/search.
func (s *Server) SearchIndex(w http.ResponseWriter, r *http.Request) {
	s.runSearch(w, r, gochi.URLParam(r, "index"))
}

// SearchDefaultIndex handles POST /v1/search against the configured index.
func (s *Server) SearchDefaultIndex(w http.ResponseWriter, r *http.Request) {
	if s.opts.DefaultIndex == "" {
		writeError(w, http.StatusNotFound, CodeIndexNotFound, "no default index configured")
		return
	}
	s.runSearch(w, r, s.opts.DefaultIndex)
}

func (s *Server) runSearch(w http.ResponseWriter, r *http.Request, index string) {
	r = r.WithContext(logpkg.WithFields(r.Context(), zap.String("index", index)))
	win, err := s.windowFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	var idField string
	if err := runtime.BindQueryParameter("form", true, false, "id_field", r.URL.Query(), &idField); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, fmt.Sprintf("invalid id_field: %v", err))
		return
	}

	var req SearchRequest
	if !s.decode(w, r, &req) {
		return
	}
	sreq, err := req.toDomain(win)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}

	page, err := s.search.Search(r.Context(), index, sreq)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	hits := page.Hits
	if hits == nil {
		hits = []json.RawMessage{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{
		Total:        page.Total,
		From:         win.From,
		Offset:       win.Offset,
		Hits:         hits,
		Aggregations: page.Aggregations,
		IDs:          hitIDs(hits, idField),
	})
}

// SourcesIndex handles POST /v1/indexes/{index}/sources: the raw sources of
// the first offset hits as a JSON array, without scrolling.
func (s *Server) SourcesIndex(w http.ResponseWriter, r *http.Request) {
	index := gochi.URLParam(r, "index")
	r = r.WithContext(logpkg.WithFields(r.Context(), zap.String("index", index)))
	win, err := s.windowFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	var req SearchRequest
	if !s.decode(w, r, &req) {
		return
	}
	sreq, err := req.toDomain(win)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}

	out, err := s.search.Sources(r.Context(), index, sreq)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if out == "" {
		out = "[]"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(out))
}

func hitIDs(hits []json.RawMessage, field string) []string {
	if field == "" {
		return nil
	}
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i], _ = codec.LookupID(h, field)
	}
	return ids
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, HealthResponse{Status: string(report.Status), Checks: checks})
}

func (s *Server) windowFromQuery(r *http.Request) (materialize.Window, error) {
	from, offset := 0, DefaultOffset
	q := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "from", q, &from); err != nil {
		return materialize.Window{}, fmt.Errorf("invalid from: %w", err)
	}
	if err := runtime.BindQueryParameter("form", true, false, "offset", q, &offset); err != nil {
		return materialize.Window{}, fmt.Errorf("invalid offset: %w", err)
	}
	if from < 0 {
		return materialize.Window{}, fmt.Errorf("from must be >= 0, got %d", from)
	}
	if offset < 0 || (s.opts.MaxOffset > 0 && offset > s.opts.MaxOffset) {
		return materialize.Window{}, fmt.Errorf("offset must be between 0 and %d, got %d", s.opts.MaxOffset, offset)
	}
	return materialize.Window{From: from, Offset: offset}, nil
}

// decode reads and validates a JSON body. It writes the error response and
// returns false when the body is unusable.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	return fmt.Sprintf("field %s failed on %q", fe.Namespace(), fe.Tag())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
// The client sees the sentinel message only.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, sentinel.Error())
		return true
	}
}

// compileErrorHandler reports the offending field and value back to the client.
func compileErrorHandler(w http.ResponseWriter, err error) bool {
	var qce *domain.QueryCompileError
	if !errors.As(err, &qce) {
		return false
	}
	writeError(w, http.StatusBadRequest, CodeQueryCompile, qce.Error())
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context())
	log.Warn("domain error", zap.Error(err))
	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
