package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slumber/pkg/interfaces"
)

func TestFeishuNotifier_PostsCard(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewFeishuNotifier(srv.URL)
	err := n.NotifyOrphan(context.Background(), &interfaces.OrphanAlert{
		WorkloadID: "w1",
		Operation:  "hibernate",
		Handles:    []string{"c-123"},
		Reason:     "daemon unavailable",
	})
	require.NoError(t, err)

	assert.Equal(t, "interactive", body["msg_type"])
	raw, _ := json.Marshal(body)
	assert.True(t, strings.Contains(string(raw), "c-123"))
	assert.True(t, strings.Contains(string(raw), "hibernate"))
}

func TestFeishuNotifier_Non200IsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewFeishuNotifier(srv.URL).NotifyOrphan(context.Background(), &interfaces.OrphanAlert{WorkloadID: "w1"})
	assert.ErrorContains(t, err, "502")
}

func TestFeishuNotifier_NoWebhookOnlyLogs(t *testing.T) {
	t.Setenv("FEISHU_WEBHOOK_URL", "")
	n := NewFeishuNotifier("")
	assert.NoError(t, n.NotifyOrphan(context.Background(), &interfaces.OrphanAlert{WorkloadID: "w1"}))
}
