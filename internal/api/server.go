// Package api exposes the broadcast core behind a single entry point whose
// behaviour is selected by the "action" parameter.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"kuraberu-broadcast/internal/admission"
	"kuraberu-broadcast/internal/broadcast"
	apperrors "kuraberu-broadcast/internal/common/errors"
	"kuraberu-broadcast/internal/common/logger"
	"kuraberu-broadcast/internal/common/metrics"
	"kuraberu-broadcast/internal/common/validation"
	"kuraberu-broadcast/internal/models"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Broadcaster interface {
	GetTargets(ctx context.Context, caseID string) (*broadcast.Targets, error)
	GetPreview(ctx context.Context, caseID string) (*broadcast.Preview, error)
	Send(ctx context.Context, caseID string) (*broadcast.SendResult, error)
}

type Admissions interface {
	HandleApply(ctx context.Context, token, roundID string) (*admission.Confirmation, error)
	HandleInterest(ctx context.Context, token string) (*admission.Confirmation, error)
	GetAppliedFranchises(ctx context.Context, caseID string) ([]models.AppliedFranchise, error)
}

type RoundReader interface {
	Get(ctx context.Context, id string) (*models.BroadcastRound, error)
	ListByCase(ctx context.Context, caseID string) ([]models.BroadcastRound, error)
}

type TokenLister interface {
	ListByRound(ctx context.Context, roundID string) ([]models.ResponseToken, error)
}

// Pinger is one readiness dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a health-check function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type Deps struct {
	Broadcast Broadcaster
	Admission Admissions
	Rounds    RoundReader
	Tokens    TokenLister
	// Ready maps a dependency name to its check for /ready.
	Ready map[string]Pinger
}

type params map[string]interface{}

func (p params) str(key string) string {
	s, _ := p[key].(string)
	return s
}

// handler serves one action. fail renders any error serve returns, including
// parameter validation errors.
type handler struct {
	serve func(w http.ResponseWriter, r *http.Request, p params) error
	fail  func(w http.ResponseWriter, p params, err error)
}

type Server struct {
	deps    Deps
	actions map[string]handler
	logger  logger.Logger
	now     func() time.Time
}

func NewServer(deps Deps, log logger.Logger) *Server {
	s := &Server{
		deps:   deps,
		logger: log.WithFields(map[string]interface{}{"component": "api"}),
		now:    time.Now,
	}
	s.actions = s.actionTable()
	return s
}

// Handler returns the mux with the action entry point and the ops endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.dispatch)
	mux.HandleFunc("/health", s.health)
	mux.HandleFunc("/ready", s.ready)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/exec" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, nil, apperrors.NewInvalidParameterError("malformed request"))
		return
	}

	p := params(validation.QueryToMap(r.Form))
	action := p.str("action")
	start := s.now()

	h, ok := s.actions[action]
	if !ok {
		metrics.APIRequests.WithLabelValues("unknown", string(apperrors.ErrCodeUnknownAction)).Inc()
		writeError(w, p, apperrors.NewUnknownActionError(action))
		return
	}

	err := s.validate(action, p)
	if err == nil {
		err = h.serve(w, r, p)
	}

	result := "ok"
	if err != nil {
		result = string(apperrors.CodeOf(err))
		s.logError(action, err)
		h.fail(w, p, err)
	}
	metrics.APIRequests.WithLabelValues(action, result).Inc()
	metrics.APIRequestDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
}

func (s *Server) validate(action string, p params) error {
	res, err := validation.ValidateParams(action, p)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if !res.Valid {
		return apperrors.NewInvalidParameterError(res.Error())
	}
	return nil
}

func (s *Server) logError(action string, err error) {
	fields := map[string]interface{}{"action": action, "code": string(apperrors.CodeOf(err))}
	stdErr, ok := apperrors.AsStandardError(err)
	if ok && !apperrors.IsRetryableErrorCode(stdErr.Code) && stdErr.Code != apperrors.ErrCodeInternal {
		s.logger.Info("action rejected", fields)
		return
	}
	fields["error"] = err
	s.logger.Error("action failed", fields)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
		"time":   s.now().Format(time.RFC3339),
	})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(s.deps.Ready))
	for name := range s.deps.Ready {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	checks := make(map[string]string, len(names))
	for _, name := range names {
		if err := s.deps.Ready[name].Ping(ctx); err != nil {
			checks[name] = "unavailable"
			status = http.StatusServiceUnavailable
			s.logger.Warn("readiness check failed", map[string]interface{}{"dependency": name, "error": err})
			continue
		}
		checks[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status": state,
		"checks": checks,
		"time":   s.now().Format(time.RFC3339),
	})
}
