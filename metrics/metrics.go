// Package metrics counts session backend calls for Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jrsteele09/go-session-claims/payload"
	"github.com/jrsteele09/go-session-claims/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeOK           = "ok"
	OutcomeNotFound     = "not_found"
	OutcomeUnauthorised = "unauthorised"
	OutcomeTryRefresh   = "try_refresh"
	OutcomeTheft        = "token_theft"
	OutcomeError        = "error"
)

type Metrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	gatherer prometheus.Gatherer
}

// New registers the collectors on a fresh registry.
func New(namespace string) (*Metrics, error) {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "backend_calls_total",
			Help:      "Session backend calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "backend_call_duration_seconds",
			Help:      "Session backend call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		gatherer: reg,
	}
	for _, c := range []prometheus.Collector{m.calls, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Calls returns the current count for op and outcome.
func (m *Metrics) Calls(op, outcome string) float64 {
	mfs, err := m.gatherer.Gather()
	if err != nil {
		return 0
	}
	for _, mf := range mfs {
		for _, metric := range mf.GetMetric() {
			if metric.GetCounter() == nil {
				continue
			}
			var gotOp, gotOutcome string
			for _, lp := range metric.GetLabel() {
				switch lp.GetName() {
				case "op":
					gotOp = lp.GetValue()
				case "outcome":
					gotOutcome = lp.GetValue()
				}
			}
			if gotOp == op && gotOutcome == outcome {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func outcome(err error, found bool) string {
	var theft *session.TokenTheftError
	switch {
	case err == nil && !found:
		return OutcomeNotFound
	case err == nil:
		return OutcomeOK
	case errors.As(err, &theft):
		return OutcomeTheft
	case errors.Is(err, session.ErrTryRefreshToken):
		return OutcomeTryRefresh
	case errors.Is(err, session.ErrUnauthorised):
		return OutcomeUnauthorised
	default:
		return OutcomeError
	}
}

func (m *Metrics) observe(op string, start time.Time, err error, found bool) {
	m.calls.WithLabelValues(op, outcome(err, found)).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Override returns a session.Override recording every backend call.
func (m *Metrics) Override() session.Override {
	return func(next session.RecipeInterface) session.RecipeInterface {
		return &instrumented{next: next, m: m}
	}
}

type instrumented struct {
	next session.RecipeInterface
	m    *Metrics
}

var _ session.RecipeInterface = (*instrumented)(nil)

func (i *instrumented) CreateNewSession(ctx context.Context, in session.CreateSessionInput) (*session.SessionState, error) {
	start := time.Now()
	st, err := i.next.CreateNewSession(ctx, in)
	i.m.observe("CreateNewSession", start, err, st != nil)
	return st, err
}

func (i *instrumented) GetSession(ctx context.Context, accessToken string, opts session.GetSessionOptions) (*session.SessionState, error) {
	start := time.Now()
	st, err := i.next.GetSession(ctx, accessToken, opts)
	i.m.observe("GetSession", start, err, st != nil)
	return st, err
}

func (i *instrumented) RefreshSession(ctx context.Context, refreshToken string, antiCSRFToken *string) (*session.SessionState, error) {
	start := time.Now()
	st, err := i.next.RefreshSession(ctx, refreshToken, antiCSRFToken)
	i.m.observe("RefreshSession", start, err, st != nil)
	return st, err
}

func (i *instrumented) RegenerateAccessToken(ctx context.Context, accessToken string, newPayload payload.Payload) (*session.RegenerateResult, error) {
	start := time.Now()
	res, err := i.next.RegenerateAccessToken(ctx, accessToken, newPayload)
	i.m.observe("RegenerateAccessToken", start, err, res != nil)
	return res, err
}

func (i *instrumented) MergeIntoAccessTokenPayload(ctx context.Context, handle string, update payload.Payload) (bool, error) {
	start := time.Now()
	ok, err := i.next.MergeIntoAccessTokenPayload(ctx, handle, update)
	i.m.observe("MergeIntoAccessTokenPayload", start, err, ok)
	return ok, err
}

func (i *instrumented) GetSessionInformation(ctx context.Context, handle string) (*session.SessionInformation, error) {
	start := time.Now()
	info, err := i.next.GetSessionInformation(ctx, handle)
	i.m.observe("GetSessionInformation", start, err, info != nil)
	return info, err
}

func (i *instrumented) RevokeSession(ctx context.Context, handle string) (bool, error) {
	start := time.Now()
	ok, err := i.next.RevokeSession(ctx, handle)
	i.m.observe("RevokeSession", start, err, ok)
	return ok, err
}

func (i *instrumented) RevokeAllSessionsForUser(ctx context.Context, userID, tenantID string) ([]string, error) {
	start := time.Now()
	handles, err := i.next.RevokeAllSessionsForUser(ctx, userID, tenantID)
	i.m.observe("RevokeAllSessionsForUser", start, err, true)
	return handles, err
}

func (i *instrumented) GetAllSessionHandlesForUser(ctx context.Context, userID, tenantID string) ([]string, error) {
	start := time.Now()
	handles, err := i.next.GetAllSessionHandlesForUser(ctx, userID, tenantID)
	i.m.observe("GetAllSessionHandlesForUser", start, err, true)
	return handles, err
}

func (i *instrumented) UpdateSessionDataInDatabase(ctx context.Context, handle string, data payload.Payload) (bool, error) {
	start := time.Now()
	ok, err := i.next.UpdateSessionDataInDatabase(ctx, handle, data)
	i.m.observe("UpdateSessionDataInDatabase", start, err, ok)
	return ok, err
}
