package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookNotifierPostsText(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	err := n.Notify(context.Background(), AlertMessage{
		RunID:         "run-1",
		Table:         "mis.asset_da_rt",
		Status:        "failed",
		FailedBatches: []string{"2025-03-01..2025-03-30"},
		Counts:        map[string]int{"upserted": 0, "fetched": 12},
	})
	require.NoError(t, err)
	assert.Equal(t, "text", got.MsgType)
	assert.Contains(t, got.Text.Content, "[MIS Reconcile Alert]")
	assert.Contains(t, got.Text.Content, "Run: run-1")
	assert.Contains(t, got.Text.Content, "Failed batches: 2025-03-01..2025-03-30")
	assert.Contains(t, got.Text.Content, "Counts: fetched=12 upserted=0")
}

func TestWebhookNotifierNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL).Notify(context.Background(), AlertMessage{RunID: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-2xx status 502")
}

func TestWebhookNotifierEmptyURL(t *testing.T) {
	var n *WebhookNotifier
	assert.Error(t, n.Notify(context.Background(), AlertMessage{}))
	assert.NoError(t, Nop{}.Notify(context.Background(), AlertMessage{}))
}
