package v1alpha1

import (
	"testing"

	"github.com/stretchr/testify/assert"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func TestBackupPolicyPhase(t *testing.T) {
	tests := []struct {
		name  string
		phase BackupPolicyPhase
		valid bool
	}{
		{"active phase", BackupPolicyPhaseActive, true},
		{"suspended phase", BackupPolicyPhaseSuspended, true},
		{"failed phase", BackupPolicyPhaseFailed, true},
		{"invalid phase", BackupPolicyPhase("Invalid"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validPhases := map[BackupPolicyPhase]bool{
				BackupPolicyPhaseActive:    true,
				BackupPolicyPhaseSuspended: true,
				BackupPolicyPhaseFailed:    true,
			}
			assert.Equal(t, tt.valid, validPhases[tt.phase])
		})
	}
}

func TestBackupPolicySpec(t *testing.T) {
	policy := &BackupPolicy{
		Spec: BackupPolicySpec{
			Resource:          "inventory",
			Interval:          "30m",
			KeepLast:          5,
			MaxAge:            "168h",
			VerifyAfterCreate: true,
		},
	}

	assert.Equal(t, "inventory", policy.Spec.Resource)
	assert.Equal(t, "30m", policy.Spec.Interval)
	assert.Equal(t, int32(5), policy.Spec.KeepLast)
	assert.Equal(t, "168h", policy.Spec.MaxAge)
	assert.True(t, policy.Spec.VerifyAfterCreate)
	assert.False(t, policy.Spec.Suspend)
}

func TestBackupPolicyConditions(t *testing.T) {
	policy := &BackupPolicy{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "inventory-hourly",
			Namespace: "default",
		},
	}

	now := metav1.Now()
	policy.SetConditions(metav1.Condition{
		Type:               "BackupSucceeded",
		Status:             metav1.ConditionTrue,
		LastTransitionTime: now,
		Reason:             "BackupCreated",
		Message:            "Backup created",
	})

	assert.Equal(t, 1, len(policy.Status.Conditions))

	cond := policy.GetCondition("BackupSucceeded")
	assert.NotNil(t, cond)
	assert.Equal(t, metav1.ConditionTrue, cond.Status)

	assert.Nil(t, policy.GetCondition("NonExistent"))
}

func TestBackupPolicyStatus(t *testing.T) {
	now := metav1.Now()
	next := metav1.NewTime(now.Add(1))
	policy := &BackupPolicy{
		Status: BackupPolicyStatus{
			Phase:          BackupPolicyPhaseActive,
			LastBackupID:   "0000000001700-a1b2c3d4",
			LastBackupTime: &now,
			NextBackupTime: &next,
			BackupCount:    3,
			TotalBytes:     4096,
		},
	}

	assert.Equal(t, BackupPolicyPhaseActive, policy.Status.Phase)
	assert.Equal(t, "0000000001700-a1b2c3d4", policy.Status.LastBackupID)
	assert.Equal(t, int32(3), policy.Status.BackupCount)
	assert.Equal(t, int64(4096), policy.Status.TotalBytes)

	clone := policy.DeepCopy()
	assert.Equal(t, policy.Status.LastBackupID, clone.Status.LastBackupID)
	assert.NotSame(t, policy.Status.LastBackupTime, clone.Status.LastBackupTime)
}
