package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Notifier is one alert delivery channel (webhook, email, SMS, push).
// Channels are best-effort: a failing channel never blocks the others.
type Notifier interface {
	Name() string
	Send(severity, subject, body string) error
}

// AlertService fans safety-critical events out to every configured
// channel. It is the alert-dispatch hook behind disconnection and
// emergency-stop handling.
type AlertService struct {
	notifiers []Notifier
}

// NewAlertService creates an AlertService with the given channels.
// With no channels configured, alerts still reach the process log.
func NewAlertService(notifiers ...Notifier) *AlertService {
	return &AlertService{notifiers: notifiers}
}

// Dispatch sends an alert through every channel, logging failures
func (s *AlertService) Dispatch(severity, subject, body string) {
	log.Printf("[Alert] %s: %s - %s", severity, subject, body)

	for _, n := range s.notifiers {
		if err := n.Send(severity, subject, body); err != nil {
			log.Printf("[Alert] Channel %s failed: %v", n.Name(), err)
		}
	}
}

// WebhookNotifier posts alerts to an HTTP endpoint as JSON
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a webhook channel for the given URL
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name returns the channel name
func (n *WebhookNotifier) Name() string {
	return "webhook"
}

// Send posts the alert payload
func (n *WebhookNotifier) Send(severity, subject, body string) error {
	payload, err := json.Marshal(map[string]interface{}{
		"severity":  severity,
		"subject":   subject,
		"body":      body,
		"timestamp": time.Now().Unix(),
	})
	if err != nil {
		return err
	}

	resp, err := n.client.Post(n.url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
