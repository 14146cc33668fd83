package sink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWebhookSinkValidation(t *testing.T) {
	_, err := NewWebhookSink(zap.NewNop(), WebhookConfig{})
	assert.Error(t, err)

	_, err = NewWebhookSink(zap.NewNop(), WebhookConfig{URL: "ftp://example.com"})
	assert.Error(t, err)

	_, err = NewWebhookSink(zap.NewNop(), WebhookConfig{URL: "https://example.com/hook"})
	assert.NoError(t, err)
}

func TestWebhookSinkSendAndAmend(t *testing.T) {
	var got []envelope
	var auth []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var e envelope
		require.NoError(t, json.NewDecoder(r.Body).Decode(&e))
		got = append(got, e)
		auth = append(auth, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s, err := NewWebhookSink(zap.NewNop(), WebhookConfig{URL: srv.URL, AuthToken: "secret"})
	require.NoError(t, err)

	h, err := s.Send(context.Background(), 42, "first body")
	require.NoError(t, err)
	require.NotEqual(t, "", h.ID.String())

	require.NoError(t, s.Amend(context.Background(), h, "amended body"))

	require.Len(t, got, 2)
	assert.Equal(t, "first body", got[0].Body)
	assert.False(t, got[0].Amendment)
	assert.Equal(t, "42", got[0].GuildID)
	assert.Equal(t, "amended body", got[1].Body)
	assert.True(t, got[1].Amendment)
	assert.Equal(t, got[0].RecordID, got[1].RecordID, "amendment must target the original record")
	assert.Equal(t, "Bearer secret", auth[0])
}

func TestWebhookSinkErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	s, err := NewWebhookSink(zap.NewNop(), WebhookConfig{URL: srv.URL})
	require.NoError(t, err)

	_, err = s.Send(context.Background(), 42, "body")
	assert.Error(t, err)
}
