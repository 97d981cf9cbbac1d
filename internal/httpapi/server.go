// Package httpapi exposes the remote call gateway over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/alexisbeaulieu97/jumpgate/internal/domain/remotecall"
	"github.com/alexisbeaulieu97/jumpgate/internal/infrastructure/logging"
	"github.com/alexisbeaulieu97/jumpgate/internal/ports"
)

const (
	defaultMaxBodyBytes = 1 << 20
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

// Executor runs a remote call and always returns an envelope.
type Executor interface {
	Execute(ctx context.Context, in remotecall.Input) remotecall.Envelope
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Options configures a Server.
type Options struct {
	Executor Executor
	// History is optional; without it the history endpoint answers 404.
	History      ports.HistoryStore
	Checks       map[string]HealthCheck
	MaxBodyBytes int64
	Validator    *validator.Validate
	Logger       ports.Logger
}

// Server routes the gateway endpoints.
type Server struct {
	opts     Options
	mux      *http.ServeMux
	validate *validator.Validate
	logger   ports.Logger
}

// New builds a Server.
func New(opts Options) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	validate := opts.Validator
	if validate == nil {
		validate = validator.New()
	}
	s := &Server{
		opts:     opts,
		mux:      http.NewServeMux(),
		validate: validate,
		logger:   logger.With("component", "http"),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/v1/remote_call", s.handleRemoteCall)
	s.mux.HandleFunc("GET /api/v1/history", s.handleHistory)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
}

// Handler returns the root handler with correlation and access logging.
func (s *Server) Handler() http.Handler {
	return withCorrelation(s.logger, s.mux)
}

func (s *Server) handleRemoteCall(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeEnvelope(w, http.StatusRequestEntityTooLarge, remotecall.Failure(
				remotecall.NewValidationError("body", "request body too large")))
			return
		}
		writeEnvelope(w, http.StatusBadRequest, remotecall.Failure(
			remotecall.NewValidationError("body", "unreadable request body")))
		return
	}

	in, derr := DecodeRemoteCall(body, s.validate)
	if derr != nil {
		status := http.StatusBadRequest
		if derr.Code == remotecall.ErrCodeInternal {
			status = http.StatusInternalServerError
		}
		writeEnvelope(w, status, remotecall.Failure(derr))
		return
	}

	env := s.opts.Executor.Execute(r.Context(), in)
	writeEnvelope(w, statusFor(env), env)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		writeJSON(w, http.StatusNotFound, errorResponse("NOT_FOUND", "history is disabled"))
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, errorResponse(string(remotecall.ErrCodeValidation), "limit must be a positive integer"))
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := s.opts.History.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error(r.Context(), "history query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse(string(remotecall.ErrCodeInternal), "history query failed"))
		return
	}
	if entries == nil {
		entries = []ports.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	checks := make(map[string]string, len(s.opts.Checks))
	for name, check := range s.opts.Checks {
		if err := check(r.Context()); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	writeJSON(w, status, map[string]interface{}{"status": state, "checks": checks})
}

func fieldError(err error) *remotecall.DomainError {
	var ves validator.ValidationErrors
	if errors.As(err, &ves) && len(ves) > 0 {
		fe := ves[0]
		field := jsonFieldNames[fe.StructField()]
		if field == "" {
			field = fe.Field()
		}
		return remotecall.NewValidationError(field, field+" failed validation for tag '"+fe.Tag()+"'")
	}
	return remotecall.NewValidationError("", err.Error())
}

var jsonFieldNames = map[string]string{
	"OSType":     "os_type",
	"IP":         "ip",
	"Username":   "username",
	"Password":   "password",
	"Port":       "port",
	"Command":    "command",
	"FilePath":   "file_path",
	"UseBastion": "use_bastion",
}

func errorResponse(code, message string) map[string]interface{} {
	return map[string]interface{}{
		"status": remotecall.StatusError,
		"error":  map[string]string{"code": code, "message": message},
	}
}

func writeEnvelope(w http.ResponseWriter, status int, env remotecall.Envelope) {
	writeJSON(w, status, env)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
