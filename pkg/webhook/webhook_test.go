package webhook_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haven-project/haven/pkg/logging"
	"github.com/haven-project/haven/pkg/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(hooks ...webhook.HookConfig) *webhook.Client {
	cfg := webhook.DefaultConfig()
	cfg.MaxRetries = 0
	cfg.Hooks = hooks
	return webhook.NewClient(cfg, logging.Nop())
}

func TestSend_DeliversSignedPayload(t *testing.T) {
	var body []byte
	var signature, eventHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		signature = r.Header.Get("X-Haven-Signature")
		eventHeader = r.Header.Get("X-Haven-Event")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newClient(webhook.HookConfig{
		URL:     srv.URL,
		Secret:  "hunter2",
		Events:  []webhook.EventType{webhook.EventBackupCreated},
		Enabled: true,
	})
	defer c.Close()

	require.NoError(t, c.SendBackupCreated("vault-1", "inventory", "0000000000001-aabbccdd", 1024, false))

	var ev webhook.Event
	require.NoError(t, json.Unmarshal(body, &ev))
	assert.Equal(t, webhook.EventBackupCreated, ev.Event)
	assert.Equal(t, "inventory", ev.Resource)
	assert.NotEmpty(t, ev.Timestamp)
	assert.Equal(t, string(webhook.EventBackupCreated), eventHeader)
	assert.True(t, webhook.VerifySignature(body, "hunter2", signature))
	assert.False(t, webhook.VerifySignature(body, "wrong", signature))
}

func TestSend_EventFiltering(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newClient(webhook.HookConfig{
		URL:     srv.URL,
		Events:  []webhook.EventType{webhook.EventAcquireFailed},
		Enabled: true,
	})
	defer c.Close()

	require.NoError(t, c.SendAcquireComplete("v", "inventory", "/x", "primary", false, false))
	assert.Equal(t, int32(0), hits.Load(), "unsubscribed event must not be delivered")

	require.NoError(t, c.SendAcquireFailed("v", "inventory", "boom", false))
	assert.Equal(t, int32(1), hits.Load())
}

func TestSend_WildcardSubscription(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newClient(webhook.HookConfig{
		URL:     srv.URL,
		Events:  []webhook.EventType{"*"},
		Enabled: true,
	})
	defer c.Close()

	require.NoError(t, c.SendRecoveryAttempt("v", "inventory", "backup-restore", "success", false))
	require.NoError(t, c.SendResourceDegraded("v", "inventory", "/x", "gone", false))
	assert.Equal(t, int32(2), hits.Load())
}

func TestSend_AsyncDelivery(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newClient(webhook.HookConfig{
		URL:     srv.URL,
		Events:  []webhook.EventType{"*"},
		Enabled: true,
	})

	require.NoError(t, c.SendBackupPruned("v", "inventory", 3, 4096, true))
	// Close drains the queue before returning.
	require.NoError(t, c.Close())
	assert.Equal(t, int32(1), hits.Load())
}

func TestSend_ErrorStatusReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	c := newClient(webhook.HookConfig{
		URL:     srv.URL,
		Events:  []webhook.EventType{"*"},
		Enabled: true,
	})
	defer c.Close()

	err := c.SendBackupRestored("v", "inventory", "id", "/x", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestSend_DisabledHookSkipped(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c := newClient(webhook.HookConfig{
		URL:     srv.URL,
		Events:  []webhook.EventType{"*"},
		Enabled: false,
	})
	defer c.Close()

	require.NoError(t, c.SendAcquireFailed("v", "inventory", "boom", false))
	assert.Equal(t, int32(0), hits.Load())
}

func TestClose_Idempotent(t *testing.T) {
	c := newClient()
	require.NoError(t, c.Close())
	// Second close must not panic or hang.
	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second Close hung")
	}
}
