package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// BackupPolicySpec defines the desired state of BackupPolicy
type BackupPolicySpec struct {
	// Resource is the name of the managed resource this policy backs up
	Resource string `json:"resource"`

	// Interval is how often a new backup is taken (Go duration string)
	// +optional
	// +kubebuilder:default="1h"
	Interval string `json:"interval,omitempty"`

	// KeepLast is the number of most recent verified backups always kept
	// +optional
	// +kubebuilder:default=10
	KeepLast int32 `json:"keepLast,omitempty"`

	// MaxAge is the age past which released backups become prunable
	// (Go duration string)
	// +optional
	// +kubebuilder:default="720h"
	MaxAge string `json:"maxAge,omitempty"`

	// VerifyAfterCreate re-reads each new backup and checks its payload
	// hash before the policy reports success
	// +optional
	VerifyAfterCreate bool `json:"verifyAfterCreate,omitempty"`

	// Suspend pauses the policy without deleting it
	// +optional
	Suspend bool `json:"suspend,omitempty"`
}

// BackupPolicyStatus defines the observed state of BackupPolicy
type BackupPolicyStatus struct {
	// Phase is the current phase of the policy
	// +optional
	Phase BackupPolicyPhase `json:"phase,omitempty"`

	// Message provides human-readable status information
	// +optional
	Message string `json:"message,omitempty"`

	// LastBackupID is the identifier of the most recent backup
	// +optional
	LastBackupID string `json:"lastBackupID,omitempty"`

	// LastBackupTime is when the most recent backup completed
	// +optional
	LastBackupTime *metav1.Time `json:"lastBackupTime,omitempty"`

	// NextBackupTime is when the next backup is due
	// +optional
	NextBackupTime *metav1.Time `json:"nextBackupTime,omitempty"`

	// BackupCount is the number of backups currently held for the resource
	// +optional
	BackupCount int32 `json:"backupCount,omitempty"`

	// TotalBytes is the total payload size held for the resource
	// +optional
	TotalBytes int64 `json:"totalBytes,omitempty"`

	// Conditions represent the latest available observations
	// +optional
	Conditions []metav1.Condition `json:"conditions,omitempty"`
}

// BackupPolicyPhase represents the lifecycle phase of a backup policy
// +kubebuilder:validation:Enum=Active;Suspended;Failed
type BackupPolicyPhase string

const (
	// BackupPolicyPhaseActive means the policy is taking scheduled backups
	BackupPolicyPhaseActive BackupPolicyPhase = "Active"

	// BackupPolicyPhaseSuspended means the policy is paused
	BackupPolicyPhaseSuspended BackupPolicyPhase = "Suspended"

	// BackupPolicyPhaseFailed means the last backup run failed
	BackupPolicyPhaseFailed BackupPolicyPhase = "Failed"
)

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:shortName=hvnbp
// +kubebuilder:printcolumn:name="Resource",type=string,JSONPath=`.spec.resource`
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=`.status.phase`
// +kubebuilder:printcolumn:name="Backups",type=integer,JSONPath=`.status.backupCount`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`
// +genclient

// BackupPolicy is the Schema for the backuppolicies API
type BackupPolicy struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   BackupPolicySpec   `json:"spec,omitempty"`
	Status BackupPolicyStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// BackupPolicyList contains a list of BackupPolicy
type BackupPolicyList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []BackupPolicy `json:"items"`
}

func init() {
	SchemeBuilder.Register(&BackupPolicy{}, &BackupPolicyList{})
}

// SetConditions sets the conditions on the policy status
func (b *BackupPolicy) SetConditions(conditions ...metav1.Condition) {
	b.Status.Conditions = conditions
}

// GetCondition returns the condition with the given type
func (b *BackupPolicy) GetCondition(conditionType string) *metav1.Condition {
	for i := range b.Status.Conditions {
		if b.Status.Conditions[i].Type == conditionType {
			return &b.Status.Conditions[i]
		}
	}
	return nil
}
