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
)

const (
	policyFinalizer        = "haven.dev/backup-policy-finalizer"
	policyRequeueOnFailure = 30 * time.Second
	defaultBackupInterval  = time.Hour
)

// BackupPolicyReconciler reconciles a BackupPolicy object
type BackupPolicyReconciler struct {
	client.Client
	Scheme *runtime.Scheme
	Haven  *haven.Client
}

// +kubebuilder:rbac:groups=haven.dev,resources=backuppolicies,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=haven.dev,resources=backuppolicies/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=haven.dev,resources=backuppolicies/finalizers,verbs=update
// +kubebuilder:rbac:groups=haven.dev,resources=managedresources,verbs=get;list;watch
// +kubebuilder:rbac:groups=core,resources=events,verbs=create;patch

// Reconcile runs scheduled backups for one policy. A backup is taken when the
// interval has elapsed since the last one, followed by an optional verify and
// a retention prune, then the reconcile requeues for the next tick.
func (r *BackupPolicyReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	logger := log.FromContext(ctx)

	policy := &havenv1alpha1.BackupPolicy{}
	if err := r.Get(ctx, req.NamespacedName, policy); err != nil {
		if errors.IsNotFound(err) {
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, err
	}

	if !policy.ObjectMeta.DeletionTimestamp.IsZero() {
		if controllerutil.ContainsFinalizer(policy, policyFinalizer) {
			if err := r.finalizePolicy(ctx, policy); err != nil {
				return ctrl.Result{RequeueAfter: policyRequeueOnFailure}, err
			}
			controllerutil.RemoveFinalizer(policy, policyFinalizer)
			if err := r.Update(ctx, policy); err != nil {
				return ctrl.Result{}, err
			}
		}
		return ctrl.Result{}, nil
	}

	if !controllerutil.ContainsFinalizer(policy, policyFinalizer) {
		controllerutil.AddFinalizer(policy, policyFinalizer)
		if err := r.Update(ctx, policy); err != nil {
			return ctrl.Result{}, err
		}
	}

	if policy.Spec.Suspend {
		r.updateStatus(ctx, policy, havenv1alpha1.BackupPolicyPhaseSuspended, "Policy suspended")
		return ctrl.Result{}, nil
	}

	interval := backupInterval(policy)

	if remaining := untilDue(policy, interval); remaining > 0 {
		return ctrl.Result{RequeueAfter: remaining}, nil
	}

	if err := r.runBackup(ctx, policy); err != nil {
		logger.Error(err, "scheduled backup failed", "resource", policy.Spec.Resource)
		r.updateStatus(ctx, policy, havenv1alpha1.BackupPolicyPhaseFailed, err.Error())
		return ctrl.Result{RequeueAfter: policyRequeueOnFailure}, nil
	}

	return ctrl.Result{RequeueAfter: interval}, nil
}

// runBackup takes one backup of the policy's resource, verifies it when
// requested, prunes per retention, and refreshes the status counters.
func (r *BackupPolicyReconciler) runBackup(ctx context.Context, policy *havenv1alpha1.BackupPolicy) error {
	name := policy.Spec.Resource

	entry, err := r.Haven.Resource(name)
	if err != nil {
		return fmt.Errorf("resource %s not registered: %w", name, err)
	}
	if entry.ActivePath == "" {
		return fmt.Errorf("resource %s has never been acquired", name)
	}

	rec, err := r.Haven.Snapshot(ctx, entry.Descriptor, entry.ActivePath)
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", name, err)
	}

	if policy.Spec.VerifyAfterCreate {
		if _, err := r.Haven.VerifyBackup(ctx, name, rec.ID); err != nil {
			return fmt.Errorf("verify backup %s: %w", rec.ID, err)
		}
	}

	if _, err := r.Haven.Prune(ctx, name); err != nil {
		log.FromContext(ctx).Error(err, "retention prune failed", "resource", name)
	}

	backups, err := r.Haven.Backups(name)
	if err != nil {
		return fmt.Errorf("list backups for %s: %w", name, err)
	}
	var totalBytes int64
	for _, b := range backups {
		totalBytes += b.SizeBytes
	}

	now := metav1.Now()
	next := metav1.NewTime(now.Add(backupInterval(policy)))
	policy.Status.Phase = havenv1alpha1.BackupPolicyPhaseActive
	policy.Status.Message = fmt.Sprintf("Backup %s created", rec.ID)
	policy.Status.LastBackupID = string(rec.ID)
	policy.Status.LastBackupTime = &now
	policy.Status.NextBackupTime = &next
	policy.Status.BackupCount = int32(len(backups))
	policy.Status.TotalBytes = totalBytes
	policy.SetConditions(metav1.Condition{
		Type:               "BackupSucceeded",
		Status:             metav1.ConditionTrue,
		LastTransitionTime: now,
		Reason:             "BackupCreated",
		Message:            policy.Status.Message,
	})
	return r.Status().Update(ctx, policy)
}

// backupInterval parses spec.interval, falling back to the default.
func backupInterval(policy *havenv1alpha1.BackupPolicy) time.Duration {
	if policy.Spec.Interval == "" {
		return defaultBackupInterval
	}
	d, err := time.ParseDuration(policy.Spec.Interval)
	if err != nil || d <= 0 {
		return defaultBackupInterval
	}
	return d
}

// untilDue returns how long until the next backup is due, zero when overdue.
func untilDue(policy *havenv1alpha1.BackupPolicy, interval time.Duration) time.Duration {
	if policy.Status.LastBackupTime == nil {
		return 0
	}
	elapsed := time.Since(policy.Status.LastBackupTime.Time)
	if elapsed >= interval {
		return 0
	}
	return interval - elapsed
}

// updateStatus updates the policy status
func (r *BackupPolicyReconciler) updateStatus(ctx context.Context, policy *havenv1alpha1.BackupPolicy, phase havenv1alpha1.BackupPolicyPhase, message string) {
	policy.Status.Phase = phase
	policy.Status.Message = message
	if err := r.Status().Update(ctx, policy); err != nil {
		log.FromContext(ctx).Error(err, "status update failed")
	}
}

// finalizePolicy releases the backups the policy was protecting so retention
// can eventually reclaim them. The payloads themselves are not deleted.
func (r *BackupPolicyReconciler) finalizePolicy(ctx context.Context, policy *havenv1alpha1.BackupPolicy) error {
	name := policy.Spec.Resource
	backups, err := r.Haven.Backups(name)
	if err != nil {
		return fmt.Errorf("list backups for %s: %w", name, err)
	}
	for _, b := range backups {
		if b.Released {
			continue
		}
		if err := r.Haven.ReleaseBackup(name, b.ID); err != nil {
			return fmt.Errorf("release backup %s: %w", b.ID, err)
		}
	}
	log.FromContext(ctx).Info("released policy backups during finalization",
		"resource", name, "count", len(backups))
	return nil
}

// SetupWithManager sets up the controller with the Manager
func (r *BackupPolicyReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&havenv1alpha1.BackupPolicy{}).
		Complete(r)
}
