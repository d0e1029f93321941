// Package controllers implements the reconcilers that run Haven acquisition
// and backup policies for a fleet of nodes sharing vault-backed resources.
package controllers

import (
	"context"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/log"

	havenv1alpha1 "github.com/haven-project/haven/api/v1alpha1"
	"github.com/haven-project/haven/pkg/haven"
	"github.com/haven-project/haven/pkg/model"
)

const (
	resourceFinalizer        = "haven.dev/resource-finalizer"
	resourceRequeueAfter     = 5 * time.Minute
	resourceRequeueOnFailure = 1 * time.Minute
)

// ManagedResourceReconciler reconciles a ManagedResource object
type ManagedResourceReconciler struct {
	client.Client
	Scheme *runtime.Scheme
	Haven  *haven.Client
}

// +kubebuilder:rbac:groups=haven.dev,resources=managedresources,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=haven.dev,resources=managedresources/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=haven.dev,resources=managedresources/finalizers,verbs=update
// +kubebuilder:rbac:groups=core,resources=events,verbs=create;patch

// Reconcile is the main reconciliation loop for ManagedResource objects. It
// runs the acquisition pipeline against the node-local vault, records the
// outcome in status, and re-probes on an interval.
func (r *ManagedResourceReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	logger := log.FromContext(ctx)

	resource := &havenv1alpha1.ManagedResource{}
	if err := r.Get(ctx, req.NamespacedName, resource); err != nil {
		if errors.IsNotFound(err) {
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, err
	}

	if !resource.ObjectMeta.DeletionTimestamp.IsZero() {
		if controllerutil.ContainsFinalizer(resource, resourceFinalizer) {
			if err := r.finalizeResource(ctx, resource); err != nil {
				return ctrl.Result{RequeueAfter: resourceRequeueOnFailure}, err
			}
			controllerutil.RemoveFinalizer(resource, resourceFinalizer)
			if err := r.Update(ctx, resource); err != nil {
				return ctrl.Result{}, err
			}
		}
		return ctrl.Result{}, nil
	}

	if !controllerutil.ContainsFinalizer(resource, resourceFinalizer) {
		controllerutil.AddFinalizer(resource, resourceFinalizer)
		if err := r.Update(ctx, resource); err != nil {
			return ctrl.Result{}, err
		}
	}

	desc, err := descriptorFor(resource)
	if err != nil {
		r.updateStatus(ctx, resource, havenv1alpha1.ManagedResourcePhaseFailed, err.Error())
		return ctrl.Result{}, nil
	}

	handle, status, err := r.Haven.Acquire(ctx, desc)
	if err != nil {
		logger.Error(err, "acquisition failed", "resource", desc.Name)
		r.updateStatus(ctx, resource, havenv1alpha1.ManagedResourcePhaseFailed, err.Error())
		return ctrl.Result{RequeueAfter: resourceRequeueOnFailure}, nil
	}
	// The controller only proves the resource is acquirable; the workload
	// on this node opens ActivePath itself.
	if err := handle.Close(); err != nil {
		logger.Error(err, "handle close failed", "resource", desc.Name)
	}

	now := metav1.Now()
	resource.Status.Phase = phaseFor(status.Mode)
	resource.Status.Message = fmt.Sprintf("acquired via %s mode", status.Mode)
	resource.Status.ActivePath = status.Path
	resource.Status.DataLossWarning = status.DataLossWarning
	resource.Status.AttemptCount = int32(len(status.Attempts))
	resource.Status.RetryCount = int32(status.RetryCount)
	resource.Status.LastAcquiredAt = &now
	resource.SetConditions(metav1.Condition{
		Type:               "Acquirable",
		Status:             metav1.ConditionTrue,
		LastTransitionTime: now,
		Reason:             "AcquisitionSucceeded",
		Message:            resource.Status.Message,
	})
	if err := r.Status().Update(ctx, resource); err != nil {
		return ctrl.Result{}, err
	}

	return ctrl.Result{RequeueAfter: healthInterval(resource)}, nil
}

// descriptorFor converts the spec into a resource descriptor.
func descriptorFor(resource *havenv1alpha1.ManagedResource) (model.ResourceDescriptor, error) {
	kind := model.ResourceKind(resource.Spec.Kind)
	if !kind.Valid() {
		return model.ResourceDescriptor{}, fmt.Errorf("invalid kind %q", resource.Spec.Kind)
	}
	mode := model.AccessMode(resource.Spec.Mode)
	if !mode.Valid() {
		return model.ResourceDescriptor{}, fmt.Errorf("invalid mode %q", resource.Spec.Mode)
	}
	return model.ResourceDescriptor{
		Name:               resource.EffectiveResourceName(),
		Kind:               kind,
		Mode:               mode,
		CandidateTemplates: resource.Spec.CandidateTemplates,
		BundleManifest:     resource.Spec.BundleManifest,
	}, nil
}

// phaseFor maps an operating mode to a resource phase.
func phaseFor(mode model.OperatingMode) havenv1alpha1.ManagedResourcePhase {
	switch mode {
	case model.OperatingPrimary:
		return havenv1alpha1.ManagedResourcePhaseReady
	case model.OperatingFallback:
		return havenv1alpha1.ManagedResourcePhaseFallback
	case model.OperatingEphemeral:
		return havenv1alpha1.ManagedResourcePhaseEphemeral
	}
	return havenv1alpha1.ManagedResourcePhasePending
}

// healthInterval parses spec.healthCheckInterval, falling back to the default.
func healthInterval(resource *havenv1alpha1.ManagedResource) time.Duration {
	if resource.Spec.HealthCheckInterval == "" {
		return resourceRequeueAfter
	}
	d, err := time.ParseDuration(resource.Spec.HealthCheckInterval)
	if err != nil || d <= 0 {
		return resourceRequeueAfter
	}
	return d
}

// updateStatus updates the resource status
func (r *ManagedResourceReconciler) updateStatus(ctx context.Context, resource *havenv1alpha1.ManagedResource, phase havenv1alpha1.ManagedResourcePhase, message string) {
	resource.Status.Phase = phase
	resource.Status.Message = message
	if phase == havenv1alpha1.ManagedResourcePhaseFailed {
		resource.SetConditions(metav1.Condition{
			Type:               "Acquirable",
			Status:             metav1.ConditionFalse,
			LastTransitionTime: metav1.Now(),
			Reason:             "AcquisitionFailed",
			Message:            message,
		})
	}
	if err := r.Status().Update(ctx, resource); err != nil {
		log.FromContext(ctx).Error(err, "status update failed")
	}
}

// finalizeResource releases any advisory lease left behind for the resource.
func (r *ManagedResourceReconciler) finalizeResource(ctx context.Context, resource *havenv1alpha1.ManagedResource) error {
	name := resource.EffectiveResourceName()
	state, _, err := r.Haven.LockStatus(name)
	if err != nil {
		return fmt.Errorf("lock status for %s: %w", name, err)
	}
	if state == model.LockStateFree {
		return nil
	}
	if err := r.Haven.ForceUnlock(name); err != nil {
		return fmt.Errorf("force unlock %s: %w", name, err)
	}
	log.FromContext(ctx).Info("released lease during finalization", "resource", name)
	return nil
}

// SetupWithManager sets up the controller with the Manager
func (r *ManagedResourceReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&havenv1alpha1.ManagedResource{}).
		Complete(r)
}
