package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/lflhelper/fixtures-bot/internal/fixtures"
	"github.com/lflhelper/fixtures-bot/internal/metrics"
	"github.com/lflhelper/fixtures-bot/internal/payment"
	"github.com/lflhelper/fixtures-bot/internal/render"
	"github.com/lflhelper/fixtures-bot/internal/subscription"
)

const (
	userIDHeader       = "X-User-ID"
	maxBodyBytes       = 1 << 20
	defaultReqTimeout  = 60 * time.Second
	enqueueWaitTimeout = 5 * time.Second
)

// FixtureRunner answers team queries.
type FixtureRunner interface {
	RunReport(ctx context.Context, query string) fixtures.Report
}

// Subscriptions is the subscription gate and lifecycle.
type Subscriptions interface {
	Register(ctx context.Context, id string) (subscription.User, error)
	Get(ctx context.Context, id string) (subscription.User, error)
	IsActive(ctx context.Context, id string) (bool, error)
	AttachPayment(ctx context.Context, id, paymentID string) error
	List(ctx context.Context) ([]subscription.User, error)
	Now() time.Time
}

// PaymentWatcher queues created payments for settlement polling.
type PaymentWatcher interface {
	Watch(ctx context.Context, userID, paymentID, chatID string) (payment.WatchItem, error)
}

// Mailer delivers feedback email.
type Mailer interface {
	Send(ctx context.Context, subject, body string) error
}

// ReadyChecker reports whether a downstream dependency is reachable.
type ReadyChecker interface {
	Ping(ctx context.Context) error
}

// Product describes what a checkout sells.
type Product struct {
	Amount      payment.Amount
	Description string
	ItemName    string
	ReturnURL   string
}

// Deps are the collaborators the handlers call. Payments, Watcher, Mailer and
// Ready are optional; the routes depending on them answer 503 when absent.
type Deps struct {
	Fixtures      FixtureRunner
	Subscriptions Subscriptions
	Payments      payment.Provider
	Watcher       PaymentWatcher
	Mailer        Mailer
	Ready         ReadyChecker
	Formatter     render.Formatter
	Logger        *zap.Logger
}

// Options tune server behavior.
type Options struct {
	// APIKey enables X-API-Key authentication when non-empty. The operator
	// routes under /v1/admin are only mounted when it is set.
	APIKey         string
	Product        Product
	RequestTimeout time.Duration
}

// Server wires HTTP handlers to the pipeline, subscriptions and payments.
type Server struct {
	router   chi.Router
	deps     Deps
	opts     Options
	logger   *zap.Logger
	validate *validator.Validate
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, opts Options) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("api")
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultReqTimeout
	}

	s := &Server{
		deps:     deps,
		opts:     opts,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metricsMiddleware)
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if opts.APIKey != "" {
			r.Use(apiKeyMiddleware(opts.APIKey))
		}
		r.Get("/fixtures", s.getFixtures)
		r.Route("/users/{user_id}", func(r chi.Router) {
			r.Post("/", s.registerUser)
			r.Get("/subscription", s.getSubscription)
			r.Post("/checkout", s.checkout)
			r.Post("/feedback", s.feedback)
		})
		if opts.APIKey != "" {
			r.Get("/admin/users", s.listUsers)
		}
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		if err := s.deps.Ready.Ping(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			s.writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// decodeJSON reads a size-capped body into dst and validates it.
func (s *Server) decodeJSON(r *http.Request, dst any) error {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	if err := sonic.Unmarshal(raw, dst); err != nil {
		return err
	}
	return s.validate.Struct(dst)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := sonic.Marshal(payload)
	if err != nil {
		s.logger.Error("encode JSON failed", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		s.logger.Debug("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

// writeDenied answers with an error plus the chat text for the user.
func (s *Server) writeDenied(w http.ResponseWriter, status int, msg, text string) {
	s.writeJSON(w, status, errorResponse{Error: msg, Message: text})
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
