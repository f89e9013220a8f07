// Package gateway implements the request pipeline: authentication, rate
// limiting, forwarding, and audit recording, in that order. Each request
// produces exactly one audit entry whether it succeeds or fails at any
// stage.
package gateway

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/keygate/keygate/internal/core"
	apperrors "github.com/keygate/keygate/internal/errors"
	"github.com/keygate/keygate/internal/metrics"
	"github.com/keygate/keygate/internal/ratelimit"
)

// Pipeline wires the gateway stages together. Stages run in a fixed
// order and the first failure short-circuits the rest; the audit record
// is written regardless of where the request stopped.
type Pipeline struct {
	auth      *Authenticator
	limiter   *ratelimit.Limiter
	forwarder *Forwarder
	recorder  *Recorder
}

// NewPipeline assembles the pipeline from its stages.
func NewPipeline(auth *Authenticator, limiter *ratelimit.Limiter, forwarder *Forwarder, recorder *Recorder) *Pipeline {
	return &Pipeline{
		auth:      auth,
		limiter:   limiter,
		forwarder: forwarder,
		recorder:  recorder,
	}
}

type requestState struct {
	started    time.Time
	service    string
	rest       string
	body       []byte
	clientIP   string
	credential *core.Credential
	result     *ForwardResult
}

type stageFunc func(r *http.Request, st *requestState) *apperrors.GatewayError

// Handle processes one proxied request end to end. service and rest come
// from the route; rest is the path remainder below the service segment.
func (p *Pipeline) Handle(w http.ResponseWriter, r *http.Request, service, rest string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		body = nil
	}

	st := &requestState{
		started:  time.Now(),
		service:  service,
		rest:     rest,
		body:     body,
		clientIP: clientIP(r),
	}

	var gwErr *apperrors.GatewayError
	for _, stage := range []stageFunc{p.authenticate, p.rateLimit, p.forward} {
		if gwErr = stage(r, st); gwErr != nil {
			break
		}
	}

	status := p.respond(w, r, st, gwErr)
	duration := time.Since(st.started)

	metrics.RecordRequest(service, r.Method, status, duration)
	p.recorder.Record(p.auditEntry(r, st, gwErr, status, duration))
}

func (p *Pipeline) authenticate(r *http.Request, st *requestState) *apperrors.GatewayError {
	cred, gwErr := p.auth.Authenticate(r)
	if gwErr != nil {
		return gwErr
	}
	st.credential = cred
	return nil
}

func (p *Pipeline) rateLimit(r *http.Request, st *requestState) *apperrors.GatewayError {
	cred := st.credential
	err := p.limiter.Allow(r.Context(), cred.Key, st.clientIP, cred.RequestsPerMinute, cred.RequestsPerHour)
	if err == nil {
		return nil
	}

	var limitErr *ratelimit.LimitExceededError
	if errors.As(err, &limitErr) {
		metrics.RecordRateLimitHit(limitErr.Window.String())
		gwErr := apperrors.New(apperrors.KindRateLimitExceeded,
			fmt.Sprintf("Rate limit exceeded: %d requests per %s allowed", limitErr.Limit, limitErr.Window))
		gwErr.RetryAfter = limitErr.RetryAfter()
		return gwErr
	}
	return apperrors.Wrap(apperrors.KindInternalError, err, "An unexpected error occurred")
}

func (p *Pipeline) forward(r *http.Request, st *requestState) *apperrors.GatewayError {
	result, gwErr := p.forwarder.Forward(r.Context(), &ProxyRequest{
		Service:  st.service,
		Rest:     st.rest,
		Method:   r.Method,
		Query:    r.URL.RawQuery,
		Header:   r.Header,
		Body:     st.body,
		ClientIP: st.clientIP,
		Host:     r.Host,
		Proto:    requestProto(r),
	})
	if gwErr != nil {
		return gwErr
	}
	st.result = result
	return nil
}

// respond writes either the relayed downstream response or the gateway
// error, and returns the status sent to the client.
func (p *Pipeline) respond(w http.ResponseWriter, r *http.Request, st *requestState, gwErr *apperrors.GatewayError) int {
	if gwErr != nil {
		apperrors.WriteGatewayError(w, r, gwErr)
		return gwErr.HTTPStatus()
	}

	copyResponseHeaders(w.Header(), st.result.Header)
	w.WriteHeader(st.result.StatusCode)
	_, _ = w.Write(st.result.Body)
	return st.result.StatusCode
}

func (p *Pipeline) auditEntry(r *http.Request, st *requestState, gwErr *apperrors.GatewayError, status int, duration time.Duration) *core.AuditEntry {
	entry := &core.AuditEntry{
		ID:             uuid.NewString(),
		Method:         r.Method,
		Path:           r.URL.Path,
		QueryParams:    r.URL.RawQuery,
		Headers:        flattenHeaders(sanitizeRequestHeaders(r.Header)),
		Body:           CaptureBody(st.body),
		StatusCode:     status,
		ResponseTimeMS: float64(duration.Microseconds()) / 1000,
		ClientIP:       st.clientIP,
		UserAgent:      r.UserAgent(),
		Timestamp:      st.started.UTC(),
		ServiceName:    st.service,
		IsError:        status >= http.StatusBadRequest,
	}

	if st.credential != nil {
		entry.APIKeyID = st.credential.ID
		entry.APIKeyName = st.credential.Name
	}
	if st.result != nil {
		entry.DownstreamURL = st.result.TargetURL
	} else {
		entry.DownstreamURL = p.forwarder.TargetURL(r.Context(), st.service, st.rest, r.URL.RawQuery)
	}
	if gwErr != nil {
		entry.ErrorMessage = gwErr.Message
	}
	return entry
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func requestProto(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
