package tenant

import "errors"

var (
	// ErrNoActiveTenant is returned when a tenant-scoped operation runs
	// without a namespace in its context. Callers must treat this as fatal
	// for the operation; defaulting to a shared namespace is forbidden.
	ErrNoActiveTenant = errors.New("no active tenant namespace in context")

	ErrInvalidNamespace  = errors.New("invalid tenant namespace")
	ErrReservedNamespace = errors.New("tenant namespace is reserved")
	ErrTenantNotFound    = errors.New("tenant not found")
	ErrTenantInactive    = errors.New("tenant is not active")
)
