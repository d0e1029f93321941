package metrics_test

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/haven-project/haven/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesObservations(t *testing.T) {
	m := metrics.New()
	m.ObserveAcquisition("inventory", "primary", 120*time.Millisecond)
	m.ObserveRecoveryAttempt("backup-restore", "success")
	m.ObserveRetries(3)
	m.ObserveBackupOperation("create", nil)
	m.ObserveBackupOperation("restore", errors.New("boom"))
	m.SetBackupBytes(4096)
	m.SetDegradedResources(1)
	m.ObserveHealthCheck(false)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `haven_acquisitions_total{mode="primary",resource="inventory"} 1`)
	assert.Contains(t, body, `haven_recovery_attempts_total{outcome="success",strategy="backup-restore"} 1`)
	assert.Contains(t, body, "haven_retry_attempts_total 3")
	assert.Contains(t, body, `haven_backup_operations_total{operation="create",result="success"} 1`)
	assert.Contains(t, body, `haven_backup_operations_total{operation="restore",result="failure"} 1`)
	assert.Contains(t, body, "haven_backup_bytes 4096")
	assert.Contains(t, body, "haven_degraded_resources 1")
	assert.Contains(t, body, `haven_health_checks_total{result="degraded"} 1`)
}

func TestSeparateRegistries(t *testing.T) {
	// Two instances must not collide on registration.
	a := metrics.New()
	b := metrics.New()
	assert.NotSame(t, a.Registry(), b.Registry())
}
