package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ManagedResourceSpec defines the desired state of ManagedResource
type ManagedResourceSpec struct {
	// ResourceName is the logical resource name inside the vault. Defaults
	// to the object name when empty.
	// +optional
	ResourceName string `json:"resourceName,omitempty"`

	// Kind is the resource kind (file, database, bundle)
	// +kubebuilder:validation:Enum=file;database;bundle
	// +kubebuilder:default="file"
	Kind string `json:"kind,omitempty"`

	// Mode is the required access mode (ro, rw, create)
	// +kubebuilder:validation:Enum=ro;rw;create
	// +kubebuilder:default="rw"
	Mode string `json:"mode,omitempty"`

	// CandidateTemplates are the candidate path templates, highest
	// preference first. Templates may reference {app_dir}, {user_profile}
	// and {temp_dir}.
	// +kubebuilder:validation:MinItems=1
	CandidateTemplates []string `json:"candidateTemplates"`

	// BundleManifest lists the required member files of a bundle resource
	// +optional
	BundleManifest []string `json:"bundleManifest,omitempty"`

	// Purpose is recorded in the advisory lock held during acquisition
	// +optional
	Purpose string `json:"purpose,omitempty"`

	// HealthCheckInterval is how often the acquired resource is re-probed
	// +optional
	// +kubebuilder:default="5m"
	HealthCheckInterval string `json:"healthCheckInterval,omitempty"`
}

// ManagedResourceStatus defines the observed state of ManagedResource
type ManagedResourceStatus struct {
	// Phase is the current phase of the resource
	// +optional
	Phase ManagedResourcePhase `json:"phase,omitempty"`

	// Message provides human-readable status information
	// +optional
	Message string `json:"message,omitempty"`

	// ActivePath is the path the last successful acquisition settled on
	// +optional
	ActivePath string `json:"activePath,omitempty"`

	// DataLossWarning is set when recovery discarded prior state or the
	// resource is operating on an ephemeral path
	// +optional
	DataLossWarning bool `json:"dataLossWarning,omitempty"`

	// AttemptCount is the number of recovery attempts during the last
	// acquisition
	// +optional
	AttemptCount int32 `json:"attemptCount,omitempty"`

	// RetryCount is the total retry-executor attempts spent during the last
	// acquisition
	// +optional
	RetryCount int32 `json:"retryCount,omitempty"`

	// LastAcquiredAt is when the resource was last acquired successfully
	// +optional
	LastAcquiredAt *metav1.Time `json:"lastAcquiredAt,omitempty"`

	// Conditions represent the latest available observations
	// +optional
	Conditions []metav1.Condition `json:"conditions,omitempty"`
}

// ManagedResourcePhase represents the lifecycle phase of a managed resource
// +kubebuilder:validation:Enum=Pending;Ready;Fallback;Ephemeral;Failed
type ManagedResourcePhase string

const (
	// ManagedResourcePhasePending means the resource has not been acquired yet
	ManagedResourcePhasePending ManagedResourcePhase = "Pending"

	// ManagedResourcePhaseReady means a primary candidate passed validation
	ManagedResourcePhaseReady ManagedResourcePhase = "Ready"

	// ManagedResourcePhaseFallback means a recovery strategy produced a
	// usable durable path
	ManagedResourcePhaseFallback ManagedResourcePhase = "Fallback"

	// ManagedResourcePhaseEphemeral means the resource operates on a
	// temporary path and writes will not survive
	ManagedResourcePhaseEphemeral ManagedResourcePhase = "Ephemeral"

	// ManagedResourcePhaseFailed means acquisition failed outright
	ManagedResourcePhaseFailed ManagedResourcePhase = "Failed"
)

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:shortName=hvnres
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=`.status.phase`
// +kubebuilder:printcolumn:name="Path",type=string,JSONPath=`.status.activePath`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`
// +genclient

// ManagedResource is the Schema for the managedresources API
type ManagedResource struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   ManagedResourceSpec   `json:"spec,omitempty"`
	Status ManagedResourceStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// ManagedResourceList contains a list of ManagedResource
type ManagedResourceList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []ManagedResource `json:"items"`
}

func init() {
	SchemeBuilder.Register(&ManagedResource{}, &ManagedResourceList{})
}

// EffectiveResourceName returns spec.resourceName, falling back to the
// object name.
func (m *ManagedResource) EffectiveResourceName() string {
	if m.Spec.ResourceName != "" {
		return m.Spec.ResourceName
	}
	return m.Name
}

// SetConditions sets the conditions on the resource status
func (m *ManagedResource) SetConditions(conditions ...metav1.Condition) {
	m.Status.Conditions = conditions
}

// GetCondition returns the condition with the given type
func (m *ManagedResource) GetCondition(conditionType string) *metav1.Condition {
	for i := range m.Status.Conditions {
		if m.Status.Conditions[i].Type == conditionType {
			return &m.Status.Conditions[i]
		}
	}
	return nil
}
