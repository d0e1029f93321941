package v1alpha1

import (
	"testing"

	"github.com/stretchr/testify/assert"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func TestManagedResourcePhase(t *testing.T) {
	tests := []struct {
		name  string
		phase ManagedResourcePhase
		valid bool
	}{
		{"pending phase", ManagedResourcePhasePending, true},
		{"ready phase", ManagedResourcePhaseReady, true},
		{"fallback phase", ManagedResourcePhaseFallback, true},
		{"ephemeral phase", ManagedResourcePhaseEphemeral, true},
		{"failed phase", ManagedResourcePhaseFailed, true},
		{"invalid phase", ManagedResourcePhase("Invalid"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validPhases := map[ManagedResourcePhase]bool{
				ManagedResourcePhasePending:   true,
				ManagedResourcePhaseReady:     true,
				ManagedResourcePhaseFallback:  true,
				ManagedResourcePhaseEphemeral: true,
				ManagedResourcePhaseFailed:    true,
			}
			assert.Equal(t, tt.valid, validPhases[tt.phase])
		})
	}
}

func TestManagedResourceEffectiveName(t *testing.T) {
	resource := &ManagedResource{
		ObjectMeta: metav1.ObjectMeta{Name: "inventory-db"},
	}
	assert.Equal(t, "inventory-db", resource.EffectiveResourceName())

	resource.Spec.ResourceName = "inventory"
	assert.Equal(t, "inventory", resource.EffectiveResourceName())
}

func TestManagedResourceConditions(t *testing.T) {
	resource := &ManagedResource{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "test-resource",
			Namespace: "default",
		},
	}

	now := metav1.Now()
	acquirableCondition := metav1.Condition{
		Type:               "Acquirable",
		Status:             metav1.ConditionTrue,
		LastTransitionTime: now,
		Reason:             "AcquisitionSucceeded",
		Message:            "acquired via primary mode",
	}

	resource.SetConditions(acquirableCondition)

	assert.Equal(t, 1, len(resource.Status.Conditions))
	assert.Equal(t, "Acquirable", resource.Status.Conditions[0].Type)

	cond := resource.GetCondition("Acquirable")
	assert.NotNil(t, cond)
	assert.Equal(t, "Acquirable", cond.Type)

	cond = resource.GetCondition("NonExistent")
	assert.Nil(t, cond)
}

func TestManagedResourceSpec(t *testing.T) {
	resource := &ManagedResource{
		Spec: ManagedResourceSpec{
			ResourceName:       "inventory",
			Kind:               "database",
			Mode:               "rw",
			CandidateTemplates: []string{"data/inventory.db", "{user_profile}/inventory.db"},
			Purpose:            "fleet-acquire",
		},
	}

	assert.Equal(t, "inventory", resource.Spec.ResourceName)
	assert.Equal(t, "database", resource.Spec.Kind)
	assert.Equal(t, "rw", resource.Spec.Mode)
	assert.Equal(t, []string{"data/inventory.db", "{user_profile}/inventory.db"}, resource.Spec.CandidateTemplates)
	assert.Equal(t, "fleet-acquire", resource.Spec.Purpose)
}

func TestManagedResourceDeepCopy(t *testing.T) {
	resource := &ManagedResource{
		ObjectMeta: metav1.ObjectMeta{Name: "settings"},
		Spec: ManagedResourceSpec{
			Kind:               "bundle",
			Mode:               "ro",
			CandidateTemplates: []string{"config/"},
			BundleManifest:     []string{"app.yaml", "theme.yaml"},
		},
		Status: ManagedResourceStatus{
			Phase:      ManagedResourcePhaseReady,
			ActivePath: "/srv/config",
		},
	}

	clone := resource.DeepCopy()
	clone.Spec.CandidateTemplates[0] = "mutated/"
	clone.Spec.BundleManifest[0] = "mutated.yaml"

	assert.Equal(t, "config/", resource.Spec.CandidateTemplates[0])
	assert.Equal(t, "app.yaml", resource.Spec.BundleManifest[0])
	assert.Equal(t, ManagedResourcePhaseReady, clone.Status.Phase)
}
