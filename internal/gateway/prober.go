package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/keygate/keygate/internal/core"
	"github.com/keygate/keygate/internal/metrics"
	"github.com/keygate/keygate/internal/observability"
)

const defaultHealthCheckPath = "/health"

// Prober checks downstream service health and records the outcome in the
// registry. Run starts a periodic sweep; Probe and ProbeAll also serve
// on-demand checks from the management surface.
type Prober struct {
	services ServiceRegistry
	client   *http.Client
	timeout  time.Duration
	interval time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewProber returns a Prober. A nil client gets a plain default; the probe
// timeout is applied per request via context.
func NewProber(services ServiceRegistry, client *http.Client, timeout, interval time.Duration) *Prober {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Prober{
		services: services,
		client:   client,
		timeout:  timeout,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Probe performs one health check against the service. The result message
// carries the observed status or the transport error.
func (p *Prober) Probe(ctx context.Context, svc *core.ServiceDescriptor) (bool, string) {
	path := svc.HealthCheckPath
	if path == "" {
		path = defaultHealthCheckPath
	}
	target := strings.TrimRight(svc.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")

	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	started := time.Now()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return false, err.Error()
	}

	resp, err := p.client.Do(req)
	duration := time.Since(started)
	if err != nil {
		metrics.RecordHealthProbe(svc.Name, false, duration)
		return false, err.Error()
	}
	defer resp.Body.Close() // nolint:errcheck

	healthy := resp.StatusCode >= 200 && resp.StatusCode < 300
	metrics.RecordHealthProbe(svc.Name, healthy, duration)
	return healthy, fmt.Sprintf("status: %d", resp.StatusCode)
}

// ProbeAll checks every active service and persists each outcome.
func (p *Prober) ProbeAll(ctx context.Context) ([]core.ServiceHealth, error) {
	services, err := p.services.ActiveServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list services for probing: %w", err)
	}

	results := make([]core.ServiceHealth, 0, len(services))
	for i := range services {
		svc := &services[i]
		healthy, message := p.Probe(ctx, svc)
		checkedAt := time.Now().UTC()

		if err := p.services.SetHealth(ctx, svc.Name, healthy, checkedAt); err != nil && observability.ServerLogger != nil {
			observability.ServerLogger.Warn("Failed to persist probe outcome",
				zap.String("service", svc.Name),
				zap.Error(err),
			)
		}

		results = append(results, core.ServiceHealth{
			Name:            svc.Name,
			BaseURL:         svc.BaseURL,
			Healthy:         healthy,
			Message:         message,
			LastHealthCheck: &checkedAt,
		})
	}
	return results, nil
}

// Run starts the periodic probe loop. A full sweep happens immediately,
// then every interval until Stop. An in-flight sweep is cancelled on Stop.
func (p *Prober) Run() {
	if p.interval <= 0 {
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			<-p.stopCh
			cancel()
		}()

		p.sweep(ctx)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.sweep(ctx)
			}
		}
	}()
}

// Stop halts the probe loop and waits for any in-flight sweep.
func (p *Prober) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}

func (p *Prober) sweep(ctx context.Context) {
	if _, err := p.ProbeAll(ctx); err != nil && observability.ServerLogger != nil {
		observability.ServerLogger.Warn("Health probe sweep failed", zap.Error(err))
	}
}
