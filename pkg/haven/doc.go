// Package haven provides a high-level library API for Haven, the resilient
// local resource access and recovery layer.
//
// This package is the primary integration point for host applications. It
// wraps internal packages into a clean, stable public API: descriptor-based
// resource acquisition with a fallback cascade, verified backups with
// retention, and vault diagnostics.
//
// # Concurrency Safety
//
// Haven operations are filesystem-based and follow these concurrency rules:
//
//   - A Client is safe for concurrent use by multiple goroutines.
//
//   - Acquire holds an advisory lock for the resource until the returned
//     Handle is closed. A second Acquire for the same resource fails with a
//     lock conflict, in-process or cross-process.
//
//   - Snapshot is safe when nothing writes to the source path concurrently.
//     Snapshot database resources through their own engine (the store does
//     this) rather than copying live files.
//
//   - Multiple Client instances over DIFFERENT vaults are fully independent.
//
// # Recommended Usage Pattern
//
//	client, err := haven.OpenOrInit(haven.Options{})
//	defer client.Close()
//
//	handle, status, err := client.Acquire(ctx, model.ResourceDescriptor{
//	    Name:               "inventory",
//	    Kind:               model.KindDatabase,
//	    Mode:               model.ModeReadWrite,
//	    CandidateTemplates: []string{"data/inventory.db"},
//	})
//	if status.DataLossWarning {
//	    // surface the warning to the user before proceeding
//	}
//	defer handle.Close()
//
//	// Periodic protection while the app runs.
//	client.Snapshot(ctx, desc, handle.Path())
package haven
