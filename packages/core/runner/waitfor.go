package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/flowspec/packages/http"
)

// WaitFor holds the readiness check run before a scenario starts.
type WaitFor struct {
	URL      string
	Status   int
	Timeout  time.Duration
	Interval time.Duration
}

const (
	defaultWaitTimeout  = 30 * time.Second
	defaultWaitInterval = 500 * time.Millisecond
)

// waitForService polls the readiness URL until it answers with the expected
// status or the wait times out.
func (ex *execution) waitForService(ctx context.Context, cfg *WaitFor) error {
	if cfg == nil || cfg.URL == "" {
		return nil
	}

	target, err := ex.store.ResolveTemplate(cfg.URL)
	if err != nil {
		return fmt.Errorf("wait-for url: %w", err)
	}
	target, err = http.JoinURL(ex.baseURL, target)
	if err != nil {
		return fmt.Errorf("wait-for url: %w", err)
	}

	status := cfg.Status
	if status == 0 {
		status = 200
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultWaitTimeout
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultWaitInterval
	}

	log := ex.r.log.WithField("url", target)
	log.WithField("timeout", timeout).Info("waiting for service")

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	var lastStatus int
	for {
		req := http.NewRequest("GET", target).SetTimeout(5 * time.Second)
		resp, err := ex.transport.Do(ctx, req)
		if err != nil {
			lastErr = err
		} else {
			lastStatus = resp.StatusCode
			if resp.StatusCode == status {
				log.Info("service is ready")
				return nil
			}
		}

		if sleep(ctx, interval) != nil {
			break
		}
	}

	if lastErr != nil && lastStatus == 0 {
		return fmt.Errorf("service %s not ready after %v: %w", target, timeout, lastErr)
	}
	return fmt.Errorf("service %s not ready after %v: got status %d, expected %d", target, timeout, lastStatus, status)
}
