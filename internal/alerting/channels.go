// Package alerting evaluates NHM's near-threshold failure count and
// prober outcome against operator-configured rules and fires
// notifications. It is ambient observability built on top of the
// counters exposed by internal/metrics.
package alerting

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/wemix/nhm/internal/metrics"
	"github.com/wemix/nhm/pkg/logger"
)

// NotificationChannel delivers a fired Alert somewhere.
type NotificationChannel interface {
	Send(alert metrics.Alert) error
	Name() string
}

// ConsoleChannel logs the alert through pkg/logger; always available.
// cmd/nhm registers it whether or not a webhook is configured.
type ConsoleChannel struct {
	log *logger.Logger
}

// NewConsoleChannel builds a ConsoleChannel.
func NewConsoleChannel(log *logger.Logger) *ConsoleChannel {
	return &ConsoleChannel{log: log}
}

func (c *ConsoleChannel) Name() string { return "console" }

func (c *ConsoleChannel) Send(alert metrics.Alert) error {
	if c.log != nil {
		c.log.Warn("alerting: fired",
			"name", alert.Name,
			"level", string(alert.Level),
			"message", alert.Message,
			"value", alert.Value,
			"threshold", alert.Threshold)
	}
	return nil
}

// WebhookChannel POSTs the alert as JSON to a single configured URL.
type WebhookChannel struct {
	url    string
	client *http.Client
	log    *logger.Logger
}

// NewWebhookChannel builds a WebhookChannel posting to url.
func NewWebhookChannel(url string, timeout time.Duration, log *logger.Logger) *WebhookChannel {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookChannel{url: url, client: &http.Client{Timeout: timeout}, log: log}
}

func (w *WebhookChannel) Name() string { return "webhook" }

type webhookPayload struct {
	Name      string    `json:"name"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	FiredAt   time.Time `json:"fired_at"`
}

func (w *WebhookChannel) Send(alert metrics.Alert) error {
	body, err := json.Marshal(webhookPayload{
		Name:      alert.Name,
		Level:     string(alert.Level),
		Message:   alert.Message,
		Value:     alert.Value,
		Threshold: alert.Threshold,
		FiredAt:   alert.FiredAt,
	})
	if err != nil {
		return fmt.Errorf("alerting: marshal webhook payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("alerting: build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("alerting: webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("alerting: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
