package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/keygate/keygate/internal/core"
	apperrors "github.com/keygate/keygate/internal/errors"
	"github.com/keygate/keygate/internal/metrics"
)

// ServiceRegistry resolves service names and records probe outcomes.
type ServiceRegistry interface {
	LookupService(ctx context.Context, name string) (*core.ServiceDescriptor, error)
	ActiveServices(ctx context.Context) ([]core.ServiceDescriptor, error)
	SetHealth(ctx context.Context, name string, healthy bool, checkedAt time.Time) error
}

// ProxyRequest is the inbound request reduced to what forwarding needs.
type ProxyRequest struct {
	Service  string
	Rest     string
	Method   string
	Query    string
	Header   http.Header
	Body     []byte
	ClientIP string
	Host     string
	Proto    string
}

// ForwardResult is the downstream response relayed back to the client.
type ForwardResult struct {
	ServiceName string
	TargetURL   string
	StatusCode  int
	Header      http.Header
	Body        []byte
}

// Forwarder relays requests to registered downstream services. The injected
// client never follows redirects; Location headers pass through to the
// caller untouched.
type Forwarder struct {
	services ServiceRegistry
	client   *http.Client
}

// NewForwarder returns a Forwarder. A nil client gets a default that
// returns redirect responses as-is; per-service timeouts are applied via
// context, not the client.
func NewForwarder(services ServiceRegistry, client *http.Client) *Forwarder {
	if client == nil {
		client = &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	return &Forwarder{services: services, client: client}
}

// Forward resolves the target service and relays the request. Unknown and
// inactive services fail before any network activity; unhealthy services
// are refused until a probe clears them.
func (f *Forwarder) Forward(ctx context.Context, req *ProxyRequest) (*ForwardResult, *apperrors.GatewayError) {
	svc, err := f.services.LookupService(ctx, req.Service)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, apperrors.New(apperrors.KindServiceNotConfigured,
				fmt.Sprintf("Service '%s' is not configured", req.Service))
		}
		return nil, apperrors.Wrap(apperrors.KindInternalError, err, "An unexpected error occurred")
	}
	if !svc.IsActive {
		return nil, apperrors.New(apperrors.KindServiceNotConfigured,
			fmt.Sprintf("Service '%s' is not configured", req.Service))
	}
	if !svc.IsHealthy {
		return nil, apperrors.New(apperrors.KindServiceUnavailable,
			fmt.Sprintf("Service '%s' is currently unavailable", req.Service))
	}

	target := joinTarget(svc.BaseURL, req.Rest, req.Query)

	timeout := svc.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	outbound, err := http.NewRequestWithContext(reqCtx, req.Method, target, bytes.NewReader(req.Body))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindProxyError, err,
			fmt.Sprintf("Error communicating with service '%s'", req.Service))
	}

	outbound.Header = sanitizeRequestHeaders(req.Header)
	outbound.Header.Set("X-Forwarded-For", req.ClientIP)
	outbound.Header.Set("X-Forwarded-Proto", req.Proto)
	if req.Host != "" {
		outbound.Header.Set("X-Forwarded-Host", req.Host)
	}

	resp, err := f.client.Do(outbound)
	if err != nil {
		gwErr := classifyTransportError(req.Service, err)
		metrics.RecordUpstreamError(req.Service, string(gwErr.Kind))
		return nil, gwErr
	}
	defer resp.Body.Close() // nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		gwErr := classifyTransportError(req.Service, err)
		metrics.RecordUpstreamError(req.Service, string(gwErr.Kind))
		return nil, gwErr
	}

	return &ForwardResult{
		ServiceName: svc.Name,
		TargetURL:   target,
		StatusCode:  resp.StatusCode,
		Header:      resp.Header,
		Body:        body,
	}, nil
}

// TargetURL resolves the downstream URL for audit purposes without
// performing the request.
func (f *Forwarder) TargetURL(ctx context.Context, service, rest, query string) string {
	svc, err := f.services.LookupService(ctx, service)
	if err != nil {
		return ""
	}
	return joinTarget(svc.BaseURL, rest, query)
}

func joinTarget(baseURL, rest, query string) string {
	target := strings.TrimRight(baseURL, "/")
	rest = strings.TrimLeft(rest, "/")
	if rest != "" {
		target += "/" + rest
	}
	if query != "" {
		target += "?" + query
	}
	return target
}

// classifyTransportError maps a transport failure to the client-visible
// error kind. Timeouts, unreachable hosts, and everything else get
// distinct statuses.
func classifyTransportError(service string, err error) *apperrors.GatewayError {
	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		return apperrors.Wrap(apperrors.KindRequestTimeout, err,
			fmt.Sprintf("Request to service '%s' timed out", service))
	}

	var dnsErr *net.DNSError
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.As(err, &dnsErr) {
		return apperrors.Wrap(apperrors.KindServiceUnavailable, err,
			fmt.Sprintf("Service '%s' is currently unavailable", service))
	}

	return apperrors.Wrap(apperrors.KindProxyError, err,
		fmt.Sprintf("Error communicating with service '%s'", service))
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
