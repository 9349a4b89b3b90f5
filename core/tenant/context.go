package tenant

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Namespace identifies a tenant's logical schema in the relational store.
type Namespace string

func (n Namespace) String() string { return string(n) }

// namespacePattern matches safe schema identifiers: it is also the injection
// guard for schema-qualified SQL, so it must stay this strict.
var namespacePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// Validate checks the namespace against the identifier pattern and the
// reserved set. The shared "public" schema and Postgres system schemas are
// never valid tenant namespaces.
func (n Namespace) Validate() error {
	s := string(n)
	if !namespacePattern.MatchString(s) {
		return fmt.Errorf("%w: %q", ErrInvalidNamespace, s)
	}
	if s == "public" || s == "information_schema" || strings.HasPrefix(s, "pg_") {
		return fmt.Errorf("%w: %q", ErrReservedNamespace, s)
	}
	return nil
}

// nsContextKey is an unexported key type to avoid context key collisions.
type nsContextKey struct{}

// WithNamespace returns a context carrying the validated namespace. It is
// the only way to activate a tenant; invalid namespaces never make it into
// a context.
func WithNamespace(ctx context.Context, ns Namespace) (context.Context, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ns.Validate(); err != nil {
		return nil, err
	}
	return context.WithValue(ctx, nsContextKey{}, ns), nil
}

// FromContext extracts the active namespace. A missing value is a hard
// error: there is no fallback namespace.
func FromContext(ctx context.Context) (Namespace, error) {
	if ctx == nil {
		return "", ErrNoActiveTenant
	}
	ns, ok := ctx.Value(nsContextKey{}).(Namespace)
	if !ok || ns == "" {
		return "", ErrNoActiveTenant
	}
	return ns, nil
}
