package workers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

// Message is one outgoing notification.
type Message struct {
	To      string
	ToName  string
	Subject string
	HTML    string
}

type Notifier interface {
	Channel() string
	Send(ctx context.Context, m Message) error
}

/* =========================================================
   Brevo transactional email
========================================================= */

const brevoEndpoint = "https://api.brevo.com/v3/smtp/email"

type BrevoNotifier struct {
	APIKey      string
	SenderEmail string
	SenderName  string
	Endpoint    string
	Client      *http.Client
}

type brevoPayload struct {
	Sender      map[string]string   `json:"sender"`
	To          []map[string]string `json:"to"`
	Subject     string              `json:"subject"`
	HTMLContent string              `json:"htmlContent"`
}

func NewBrevoNotifier(apiKey, senderEmail, senderName string) *BrevoNotifier {
	return &BrevoNotifier{
		APIKey:      apiKey,
		SenderEmail: senderEmail,
		SenderName:  senderName,
		Endpoint:    brevoEndpoint,
		Client:      &http.Client{Timeout: 10 * time.Second},
	}
}

func (b *BrevoNotifier) Channel() string { return "email" }

func (b *BrevoNotifier) Send(ctx context.Context, m Message) error {
	if !strings.Contains(m.To, "@") {
		return fmt.Errorf("invalid recipient email: %q", m.To)
	}
	name := m.ToName
	if name == "" {
		name = m.To[:strings.Index(m.To, "@")]
	}
	body, err := sonic.Marshal(brevoPayload{
		Sender:      map[string]string{"name": b.SenderName, "email": b.SenderEmail},
		To:          []map[string]string{{"email": m.To, "name": name}},
		Subject:     m.Subject,
		HTMLContent: m.HTML,
	})
	if err != nil {
		return fmt.Errorf("encode brevo payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("api-key", b.APIKey)
	req.Header.Set("content-type", "application/json")

	resp, err := b.Client.Do(req)
	if err != nil {
		return fmt.Errorf("brevo send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("brevo send: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

/* =========================================================
   Log notifier (local runs, no BREVO_API_KEY)
========================================================= */

type LogNotifier struct{}

func (LogNotifier) Channel() string { return "email" }

func (LogNotifier) Send(_ context.Context, m Message) error {
	log.Printf("[INFO] notify %s: %s", m.To, m.Subject)
	return nil
}
