package pg

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridoc/veridoc/core/tenant"
)

func TestSchemaIdent(t *testing.T) {
	t.Parallel()

	t.Run("quotes valid namespaces", func(t *testing.T) {
		t.Parallel()

		ident, err := schemaIdent("acme_corp")
		require.NoError(t, err)
		assert.Equal(t, `"acme_corp"`, ident)
	})

	t.Run("rejects reserved namespaces", func(t *testing.T) {
		t.Parallel()

		for _, ns := range []tenant.Namespace{"public", "pg_catalog", "information_schema"} {
			_, err := schemaIdent(ns)
			assert.Error(t, err, "namespace %q must not become a schema", ns)
		}
	})

	t.Run("rejects injection attempts", func(t *testing.T) {
		t.Parallel()

		for _, ns := range []tenant.Namespace{`acme"; DROP SCHEMA shared; --`, "acme corp", "Acme", ""} {
			_, err := schemaIdent(ns)
			assert.Error(t, err, "namespace %q must not become a schema", ns)
		}
	})
}

func TestSchemaFromContext(t *testing.T) {
	t.Parallel()

	t.Run("resolves the active namespace", func(t *testing.T) {
		t.Parallel()

		ctx, err := tenant.WithNamespace(context.Background(), "acme")
		require.NoError(t, err)

		ident, err := schemaFromContext(ctx)
		require.NoError(t, err)
		assert.Equal(t, `"acme"`, ident)
	})

	t.Run("fails without a tenant", func(t *testing.T) {
		t.Parallel()

		_, err := schemaFromContext(context.Background())
		assert.ErrorIs(t, err, tenant.ErrNoActiveTenant)
	})
}
