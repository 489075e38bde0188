package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/xhaelri/qitchen/internal/domain"
)

// SentryConfig holds configuration for Sentry error tracking
type SentryConfig struct {
	DSN         string
	Enabled     bool
	Environment string
	Release     string

	// SampleRate is the share of errors captured. Zero means all of them.
	SampleRate       float64
	TracesSampleRate float64
	Debug            bool
}

var sentryEnabled atomic.Bool

// Headers and query keys that carry customer contact details or gateway
// signatures. They are stripped before an event leaves the process.
var (
	scrubbedHeaders = []string{"Authorization", "Cookie", "Stripe-Signature", "X-User-Email", "X-User-Phone", "X-User-Name"}
	scrubbedQuery   = []string{"hmac"}
)

// InitSentry initializes the Sentry client and returns a flush function for
// shutdown. A disabled or DSN-less config leaves every capture a no-op.
func InitSentry(cfg SentryConfig, logger *slog.Logger) (func(), error) {
	sentryEnabled.Store(false)

	if !cfg.Enabled {
		logger.Info("Sentry disabled (SENTRY_ENABLED=false or DSN not configured)")
		return func() {}, nil
	}
	if cfg.DSN == "" {
		logger.Warn("Sentry DSN not configured, disabling error tracking")
		return func() {}, nil
	}

	sampleRate := cfg.SampleRate
	if sampleRate == 0 {
		sampleRate = 1.0
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		SampleRate:       sampleRate,
		TracesSampleRate: cfg.TracesSampleRate,
		Debug:            cfg.Debug,
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			scrubRequest(event.Request)
			return event
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Sentry: %w", err)
	}
	sentryEnabled.Store(true)

	logger.Info("Sentry initialized",
		"environment", cfg.Environment,
		"release", cfg.Release,
		"sample_rate", sampleRate,
		"traces_sample_rate", cfg.TracesSampleRate,
	)

	return func() {
		sentry.Flush(2 * time.Second)
	}, nil
}

// IsEnabled returns whether Sentry is currently enabled
func IsEnabled() bool {
	return sentryEnabled.Load()
}

// scrubRequest drops webhook bodies, identity headers and signature
// parameters from a captured request.
func scrubRequest(req *sentry.Request) {
	if req == nil {
		return
	}
	req.Data = ""
	req.Cookies = ""
	for _, h := range scrubbedHeaders {
		delete(req.Headers, h)
	}
	if req.QueryString == "" {
		return
	}
	q, err := url.ParseQuery(req.QueryString)
	if err != nil {
		req.QueryString = ""
		return
	}
	for _, k := range scrubbedQuery {
		if q.Has(k) {
			q.Set(k, "[redacted]")
		}
	}
	req.QueryString = q.Encode()
}

// SentryMiddleware returns an HTTP middleware that captures panics and adds request context
func SentryMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !IsEnabled() {
				next.ServeHTTP(w, r)
				return
			}

			hub := hubFor(r.Context()).Clone()
			hub.Scope().SetRequest(r)
			ctx := sentry.SetHubOnContext(r.Context(), hub)

			defer func() {
				if err := recover(); err != nil {
					hub.RecoverWithContext(ctx, err)
					sentry.Flush(2 * time.Second)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"success":false,"message":"An internal error occurred. Please try again later.","code":"internal"}`))
				}
			}()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserInfo is the caller identity attached to events.
type UserInfo struct {
	ID    string
	Email string
	Role  string
}

// UserContextExtractor is a function that extracts user info from a request context
type UserContextExtractor func(ctx context.Context) *UserInfo

// SentryContextMiddleware tags the request's hub with the caller identity.
// It must run after the identity middleware.
func SentryContextMiddleware(userExtractor UserContextExtractor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !IsEnabled() {
				next.ServeHTTP(w, r)
				return
			}

			hub := hubFor(r.Context())
			hub.ConfigureScope(func(scope *sentry.Scope) {
				scope.SetTag("route", r.Pattern)
				if userExtractor == nil {
					return
				}
				if user := userExtractor(r.Context()); user != nil {
					scope.SetUser(sentry.User{ID: user.ID, Email: user.Email})
					scope.SetTag("user.role", user.Role)
				}
			})

			next.ServeHTTP(w, r.WithContext(sentry.SetHubOnContext(r.Context(), hub)))
		})
	}
}

// CaptureErrorFromContext reports err on the request's hub. Domain errors are
// tagged with their code and operation so gateway and storage failures group
// separately.
func CaptureErrorFromContext(ctx context.Context, err error, extras map[string]interface{}) {
	if !IsEnabled() || err == nil {
		return
	}

	hub := hubFor(ctx)
	hub.WithScope(func(scope *sentry.Scope) {
		var derr *domain.Error
		if errors.As(err, &derr) {
			scope.SetTag("error.code", derr.Code)
			if derr.Op != "" {
				scope.SetTag("error.op", derr.Op)
			}
		}
		for key, value := range extras {
			scope.SetExtra(key, value)
		}
		hub.CaptureException(err)
	})
}

func hubFor(ctx context.Context) *sentry.Hub {
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		return hub
	}
	return sentry.CurrentHub()
}

// HTTPTransport wraps an http.RoundTripper so outbound gateway calls show up
// as spans on the request's trace.
type HTTPTransport struct {
	Transport http.RoundTripper
}

func (t *HTTPTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	if !IsEnabled() {
		return base.RoundTrip(req)
	}

	span := sentry.StartSpan(req.Context(), "http.client")
	span.Description = fmt.Sprintf("%s %s%s", req.Method, req.URL.Host, req.URL.Path)
	defer span.Finish()

	resp, err := base.RoundTrip(req)
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		return nil, err
	}
	span.SetData("http.status_code", resp.StatusCode)
	if resp.StatusCode >= http.StatusInternalServerError {
		span.Status = sentry.SpanStatusUnavailable
	}
	return resp, nil
}
