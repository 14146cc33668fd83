package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/modwatch/modwatch/internal/types"
)

const (
	defaultTimeout = 10 * time.Second
	schemaVersion  = "v1"
	userAgent      = "modwatch/v1"
)

// envelope is the JSON payload POSTed to the webhook endpoint.
type envelope struct {
	SchemaVersion string `json:"schemaVersion"`
	RecordID      string `json:"recordId"`
	GuildID       string `json:"guildId"`
	Body          string `json:"body"`
	Amendment     bool   `json:"amendment"`
	Timestamp     string `json:"timestamp"`
}

// WebhookSink delivers records via HTTP POST to a single endpoint. Sends and
// amendments share the endpoint; an amendment repeats the record ID with the
// rewritten body.
type WebhookSink struct {
	httpClient *http.Client
	logger     *zap.Logger
	url        string
	authToken  string
}

// WebhookConfig configures a WebhookSink.
type WebhookConfig struct {
	URL       string
	Timeout   time.Duration
	AuthToken string
}

// NewWebhookSink creates a WebhookSink. Returns an error if the URL is invalid.
func NewWebhookSink(logger *zap.Logger, cfg WebhookConfig) (*WebhookSink, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook URL is required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("webhook URL must use http or https scheme, got %q", u.Scheme)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &WebhookSink{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("webhook-sink"),
		url:        cfg.URL,
		authToken:  cfg.AuthToken,
	}, nil
}

// Send posts a new record and returns its handle.
func (w *WebhookSink) Send(ctx context.Context, guildID types.EntityID, body string) (Handle, error) {
	h := Handle{ID: uuid.New(), GuildID: guildID}
	if err := w.post(ctx, h, body, false); err != nil {
		sendTotal.WithLabelValues("error").Inc()
		return Handle{}, err
	}
	sendTotal.WithLabelValues("ok").Inc()
	return h, nil
}

// Amend posts the rewritten body for an existing record.
func (w *WebhookSink) Amend(ctx context.Context, h Handle, body string) error {
	if err := w.post(ctx, h, body, true); err != nil {
		amendTotal.WithLabelValues("error").Inc()
		return err
	}
	amendTotal.WithLabelValues("ok").Inc()
	return nil
}

func (w *WebhookSink) post(ctx context.Context, h Handle, body string, amendment bool) error {
	payload, err := json.Marshal(envelope{
		SchemaVersion: schemaVersion,
		RecordID:      h.ID.String(),
		GuildID:       fmt.Sprintf("%d", h.GuildID),
		Body:          body,
		Amendment:     amendment,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if w.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+w.authToken)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post record: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck // drain for connection reuse

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
