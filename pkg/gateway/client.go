package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"slumber/pkg/logger"
	"slumber/pkg/metrics"
)

// Waker asks the orchestrator to wake the workload
type Waker interface {
	Wake(ctx context.Context) error
}

// WakeClient calls the orchestrator's internal wake route
type WakeClient struct {
	url        string
	token      string
	httpClient *http.Client
}

// NewWakeClient creates a wake client for one workload
func NewWakeClient(baseURL, workloadID, token string) *WakeClient {
	return &WakeClient{
		url:   strings.TrimRight(baseURL, "/") + "/internal/v1/workloads/" + url.PathEscape(workloadID) + "/wake",
		token: token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type wakeAck struct {
	ID     string `json:"id"`
	State  string `json:"state"`
	Target string `json:"target"`
}

// Wake sends the trigger. Any non-200 answer is an error.
func (c *WakeClient) Wake(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create wake request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("wake request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("failed to read wake response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("wake rejected with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var ack wakeAck
	if err := json.Unmarshal(body, &ack); err == nil {
		logger.InfoCtx(ctx, "wake acknowledged, state=%s target=%s", ack.State, ack.Target)
	}
	return nil
}

// Trigger fires the waker at most once per debounce window. Callers never
// wait for the request.
type Trigger struct {
	waker   Waker
	window  time.Duration
	timeout time.Duration
	metrics *metrics.GatewayMetrics

	mu    sync.Mutex
	last  time.Time
	fired bool
	now   func() time.Time
	wg    sync.WaitGroup
}

// NewTrigger debounces waker over window
func NewTrigger(waker Waker, window time.Duration, m *metrics.GatewayMetrics) *Trigger {
	return &Trigger{
		waker:   waker,
		window:  window,
		timeout: 10 * time.Second,
		metrics: m,
		now:     time.Now,
	}
}

// Fire sends a wake unless one was sent within the window, and reports
// whether a request was started
func (t *Trigger) Fire(ctx context.Context) bool {
	t.mu.Lock()
	now := t.now()
	if t.fired && now.Sub(t.last) < t.window {
		t.mu.Unlock()
		t.metrics.RecordTrigger("debounced")
		return false
	}
	t.fired = true
	t.last = now
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.timeout)
		defer cancel()

		if err := t.waker.Wake(ctx); err != nil {
			logger.WarnCtx(ctx, "wake trigger failed: %v", err)
			t.metrics.RecordTrigger("error")
			return
		}
		t.metrics.RecordTrigger("sent")
	}()
	return true
}

// Wait blocks until in-flight requests finish
func (t *Trigger) Wait() {
	t.wg.Wait()
}
