// Package tenant carries the active tenant namespace as an explicit context
// value and defines the narrow contract to the tenant directory.
//
// The namespace is the isolation boundary for all tenant-owned relational
// data. Every tenant-scoped operation must obtain it via FromContext and
// fail with ErrNoActiveTenant when it is absent. There is deliberately no
// default namespace and no fallback resolution: an unset tenant is always a
// hard error, never a silent default into shared data.
//
// The asynchronous worker never inherits a namespace. It builds a fresh
// context per job from the job payload:
//
//	ctx, err := tenant.WithNamespace(context.Background(), job.Namespace)
//
// and the context is discarded with the job, so a pooled goroutine can never
// leak one tenant's namespace into the next job.
package tenant
