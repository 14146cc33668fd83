package auditlog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/modwatch/modwatch/internal/types"
)

const defaultQueryTimeout = 5 * time.Second

// HTTPQuerier queries the platform's audit-log REST API. It implements
// Querier; a 403 response maps to ErrPermissionDenied so the Correlator
// degrades it to an absent result.
type HTTPQuerier struct {
	httpClient *http.Client
	logger     *zap.Logger
	baseURL    string
	authToken  string
}

// HTTPQuerierConfig configures an HTTPQuerier.
type HTTPQuerierConfig struct {
	// BaseURL is the API root, e.g. "https://api.example.com/v1".
	BaseURL   string
	Timeout   time.Duration
	AuthToken string
}

// NewHTTPQuerier creates an HTTPQuerier. Returns an error if the base URL is
// invalid.
func NewHTTPQuerier(logger *zap.Logger, cfg HTTPQuerierConfig) (*HTTPQuerier, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("audit API base URL is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid audit API base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("audit API base URL must use http or https scheme, got %q", u.Scheme)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}

	return &HTTPQuerier{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("auditlog-http"),
		baseURL:    u.String(),
		authToken:  cfg.AuthToken,
	}, nil
}

// wireEntry is one entry as the audit-log API returns it.
type wireEntry struct {
	TargetID  types.EntityID `json:"target_id"`
	Actor     types.Member   `json:"actor"`
	Reason    string         `json:"reason,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Query fetches up to limit entries for action in guildID, newest first.
func (q *HTTPQuerier) Query(ctx context.Context, guildID types.EntityID, action types.ActionKind, limit int) ([]types.AuditEntry, error) {
	endpoint := fmt.Sprintf("%s/guilds/%d/audit-log?action=%s&limit=%s",
		q.baseURL, guildID, url.QueryEscape(string(action)), strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if q.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+q.authToken)
	}

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck // drain for connection reuse
		return nil, ErrPermissionDenied
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck // drain for connection reuse
		return nil, fmt.Errorf("audit API returned status %d", resp.StatusCode)
	}

	var payload struct {
		Entries []wireEntry `json:"entries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode audit entries: %w", err)
	}

	entries := make([]types.AuditEntry, len(payload.Entries))
	for i, e := range payload.Entries {
		entries[i] = types.AuditEntry{
			TargetID:  e.TargetID,
			Actor:     e.Actor,
			Reason:    e.Reason,
			CreatedAt: e.CreatedAt,
		}
	}
	return entries, nil
}

var _ Querier = (*HTTPQuerier)(nil)
