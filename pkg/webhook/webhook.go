// Package webhook delivers Haven lifecycle events to HTTP endpoints:
// acquisitions, recovery attempts, and backup activity. Payloads are signed
// with HMAC-SHA256 when a hook carries a secret.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType classifies notifiable Haven events.
type EventType string

const (
	EventAcquireComplete  EventType = "acquire.complete"
	EventAcquireFailed    EventType = "acquire.failed"
	EventRecoveryAttempt  EventType = "recovery.attempt"
	EventBackupCreated    EventType = "backup.created"
	EventBackupRestored   EventType = "backup.restored"
	EventBackupPruned     EventType = "backup.pruned"
	EventResourceDegraded EventType = "resource.degraded"
)

// Event is the JSON payload delivered to endpoints.
type Event struct {
	Event     EventType      `json:"event"`
	Timestamp string         `json:"timestamp"`
	VaultID   string         `json:"vault_id,omitempty"`
	Resource  string         `json:"resource,omitempty"`
	Path      string         `json:"path,omitempty"`
	BackupID  string         `json:"backup_id,omitempty"`
	Mode      string         `json:"mode,omitempty"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// HookConfig configures one endpoint.
type HookConfig struct {
	URL     string      `json:"url" yaml:"url"`
	Secret  string      `json:"secret,omitempty" yaml:"secret,omitempty"`
	Events  []EventType `json:"events" yaml:"events"`
	Enabled bool        `json:"enabled" yaml:"enabled"`
}

// Config configures delivery behavior across all hooks.
type Config struct {
	Hooks          []HookConfig  `json:"hooks" yaml:"hooks"`
	Enabled        bool          `json:"enabled" yaml:"enabled"`
	MaxRetries     int           `json:"max_retries" yaml:"max_retries"`
	RetryDelay     time.Duration `json:"retry_delay" yaml:"retry_delay"`
	AsyncQueueSize int           `json:"async_queue_size" yaml:"async_queue_size"`
}

// DefaultConfig returns the default delivery settings.
func DefaultConfig() *Config {
	return &Config{
		Enabled:        true,
		MaxRetries:     3,
		RetryDelay:     5 * time.Second,
		AsyncQueueSize: 100,
	}
}

// Client fans events out to configured endpoints, asynchronously by default.
type Client struct {
	config *Config
	http   *http.Client
	log    zerolog.Logger
	queue  chan *job
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	mu     sync.RWMutex
}

type job struct {
	event Event
	hook  HookConfig
}

// NewClient creates a webhook client. A nil config uses defaults (no hooks).
func NewClient(cfg *Config, log zerolog.Logger) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		config: cfg,
		http:   &http.Client{Timeout: 30 * time.Second},
		log:    log,
		queue:  make(chan *job, cfg.AsyncQueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	if cfg.Enabled {
		c.start()
	}
	return c
}

func (c *Client) start() {
	c.once.Do(func() {
		c.wg.Add(1)
		go c.worker()
	})
}

func (c *Client) worker() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			// Drain what was already queued before shutdown.
			for len(c.queue) > 0 {
				c.send(<-c.queue)
			}
			return
		case j := <-c.queue:
			c.send(j)
		}
	}
}

// Send delivers event to all hooks subscribed to its type. Async queues the
// deliveries; synchronous delivery returns the last endpoint error.
func (c *Client) Send(event Event, async bool) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.config.Enabled {
		return nil
	}

	var hooks []HookConfig
	for _, hook := range c.config.Hooks {
		if hook.Enabled && matchesEvent(hook, event.Event) {
			hooks = append(hooks, hook)
		}
	}
	if len(hooks) == 0 {
		return nil
	}

	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	if async {
		for _, hook := range hooks {
			select {
			case c.queue <- &job{event: event, hook: hook}:
			default:
				c.log.Warn().Str("event", string(event.Event)).
					Msg("webhook queue full, dropping event")
			}
		}
		return nil
	}

	var lastErr error
	for _, hook := range hooks {
		if err := c.sendSync(&job{event: event, hook: hook}); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (c *Client) send(j *job) {
	if err := c.sendSync(j); err != nil {
		c.log.Warn().Str("event", string(j.event.Event)).Str("url", j.hook.URL).
			Err(err).Msg("webhook delivery failed")
	}
}

func (c *Client) sendSync(j *job) error {
	payload, err := json.Marshal(j.event)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-c.ctx.Done():
				return c.ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}

		req, err := c.createRequest(j.hook, j.event.Event, payload)
		if err != nil {
			return err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}
	return lastErr
}

func (c *Client) createRequest(hook HookConfig, event EventType, payload []byte) (*http.Request, error) {
	// Deliberately not bound to c.ctx: queued deliveries are drained after
	// Close cancels the context.
	req, err := http.NewRequest(http.MethodPost, hook.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Haven-Webhook/1.0")
	req.Header.Set("X-Haven-Event", string(event))
	if hook.Secret != "" {
		req.Header.Set("X-Haven-Signature", sign(payload, hook.Secret))
	}
	return req, nil
}

// sign creates the sha256= HMAC signature endpoints verify payloads with.
func sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature against the raw request body.
// Intended for endpoint implementations.
func VerifySignature(payload []byte, secret, signature string) bool {
	return hmac.Equal([]byte(sign(payload, secret)), []byte(signature))
}

func matchesEvent(hook HookConfig, event EventType) bool {
	for _, e := range hook.Events {
		if e == event || e == "*" {
			return true
		}
	}
	return false
}

// Close drains queued deliveries and stops the worker.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.config.Enabled {
		return nil
	}
	c.cancel()
	c.wg.Wait()
	return nil
}

// SendAcquireComplete notifies that a resource was acquired.
func (c *Client) SendAcquireComplete(vaultID, resource, path, mode string, dataLossWarning bool, async bool) error {
	return c.Send(Event{
		Event:    EventAcquireComplete,
		VaultID:  vaultID,
		Resource: resource,
		Path:     path,
		Mode:     mode,
		Metadata: map[string]any{"data_loss_warning": dataLossWarning},
	}, async)
}

// SendAcquireFailed notifies that acquisition failed beyond recovery.
func (c *Client) SendAcquireFailed(vaultID, resource, errMsg string, async bool) error {
	return c.Send(Event{
		Event:    EventAcquireFailed,
		VaultID:  vaultID,
		Resource: resource,
		Error:    errMsg,
	}, async)
}

// SendRecoveryAttempt notifies about one cascade strategy attempt.
func (c *Client) SendRecoveryAttempt(vaultID, resource, strategy, outcome string, async bool) error {
	return c.Send(Event{
		Event:    EventRecoveryAttempt,
		VaultID:  vaultID,
		Resource: resource,
		Metadata: map[string]any{"strategy": strategy, "outcome": outcome},
	}, async)
}

// SendBackupCreated notifies that a snapshot completed.
func (c *Client) SendBackupCreated(vaultID, resource, backupID string, sizeBytes int64, async bool) error {
	return c.Send(Event{
		Event:    EventBackupCreated,
		VaultID:  vaultID,
		Resource: resource,
		BackupID: backupID,
		Metadata: map[string]any{"size_bytes": sizeBytes},
	}, async)
}

// SendBackupRestored notifies that a backup was restored.
func (c *Client) SendBackupRestored(vaultID, resource, backupID, targetPath string, async bool) error {
	return c.Send(Event{
		Event:    EventBackupRestored,
		VaultID:  vaultID,
		Resource: resource,
		BackupID: backupID,
		Path:     targetPath,
	}, async)
}

// SendBackupPruned notifies about a retention pass.
func (c *Client) SendBackupPruned(vaultID, resource string, deleted int, bytesReclaimed int64, async bool) error {
	return c.Send(Event{
		Event:    EventBackupPruned,
		VaultID:  vaultID,
		Resource: resource,
		Metadata: map[string]any{"deleted": deleted, "bytes_reclaimed": bytesReclaimed},
	}, async)
}

// SendResourceDegraded notifies that an open resource failed a health check.
func (c *Client) SendResourceDegraded(vaultID, resource, path, detail string, async bool) error {
	return c.Send(Event{
		Event:    EventResourceDegraded,
		VaultID:  vaultID,
		Resource: resource,
		Path:     path,
		Error:    detail,
	}, async)
}
