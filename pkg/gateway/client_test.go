package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWakeClient_SendsBearerToken(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"w-1","state":"STARTING","target":"wl-w-1:25565"}`))
	}))
	defer srv.Close()

	c := NewWakeClient(srv.URL+"/", "w-1", "secret")
	require.NoError(t, c.Wake(context.Background()))
	assert.Equal(t, "/internal/v1/workloads/w-1/wake", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
}

func TestWakeClient_RejectedStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":"insufficient credit"}`))
	}))
	defer srv.Close()

	err := NewWakeClient(srv.URL, "w-1", "secret").Wake(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "402")
}

func TestTrigger_DebouncesWithinWindow(t *testing.T) {
	waker := &countingWaker{}
	tr := NewTrigger(waker, 10*time.Second, nil)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return now }

	assert.True(t, tr.Fire(context.Background()))
	for i := 0; i < 4; i++ {
		assert.False(t, tr.Fire(context.Background()))
	}

	now = now.Add(9 * time.Second)
	assert.False(t, tr.Fire(context.Background()))

	now = now.Add(2 * time.Second)
	assert.True(t, tr.Fire(context.Background()))

	tr.Wait()
	assert.Equal(t, int32(2), waker.calls.Load())
}
