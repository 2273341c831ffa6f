// Package alert posts a webhook when the combined daemon status changes.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/monero-ecosystem/monerohealth/internal/health"
)

// Source identifies this program in webhook payloads.
const Source = "monerohealth"

// Alerter sends webhook notifications on status changes.
type Alerter struct {
	webhookURL string
	cooldown   time.Duration
	client     *http.Client
	lastAlert  map[string]time.Time
	mu         sync.Mutex
	wg         sync.WaitGroup
	logger     *zap.Logger
	now        func() time.Time
}

// New creates a new Alerter. Pass nil logger to discard logs.
func New(webhookURL string, cooldown time.Duration, logger *zap.Logger) *Alerter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Alerter{
		webhookURL: webhookURL,
		cooldown:   cooldown,
		client:     &http.Client{Timeout: 10 * time.Second},
		lastAlert:  make(map[string]time.Time),
		logger:     logger,
		now:        time.Now,
	}
}

// Payload is the JSON body posted to the webhook.
type Payload struct {
	Host           string   `json:"host"`
	Status         string   `json:"status"`
	PreviousStatus string   `json:"previous_status"`
	Error          string   `json:"error"`
	Errors         []string `json:"errors,omitempty"`
	CheckedAt      string   `json:"checked_at"`
	Source         string   `json:"source"`
}

// Notify sends a webhook if the status has changed and the cooldown for the
// host has elapsed. It does not block on delivery.
func (a *Alerter) Notify(res health.CombinedResult, previousStatus *health.Status) {
	// No previous status means first check.
	if previousStatus == nil {
		return
	}
	if res.Status == *previousStatus {
		return
	}

	now := a.now()
	a.mu.Lock()
	last, exists := a.lastAlert[res.Host]
	if exists && now.Sub(last) < a.cooldown {
		a.mu.Unlock()
		a.logger.Info("alert suppressed by cooldown", zap.String("host", res.Host))
		return
	}
	a.lastAlert[res.Host] = now
	a.mu.Unlock()

	errs := res.Errors()
	payload := Payload{
		Host:           res.Host,
		Status:         string(res.Status),
		PreviousStatus: string(*previousStatus),
		Error:          strings.Join(errs, "; "),
		Errors:         errs,
		CheckedAt:      now.UTC().Format(time.RFC3339),
		Source:         Source,
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.send(context.Background(), payload); err != nil {
			a.logger.Error("sending webhook", zap.String("host", res.Host), zap.String("url", a.webhookURL), zap.Error(err))
		}
	}()
}

// Wait blocks until all pending deliveries have finished.
func (a *Alerter) Wait() {
	a.wg.Wait()
}

func (a *Alerter) send(ctx context.Context, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		a.logger.Warn("webhook returned non-2xx status",
			zap.String("host", payload.Host),
			zap.Int("status", resp.StatusCode),
		)
	}
	return nil
}
