package certificate

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridoc/veridoc/core/tenant"
)

func TestFormatNumber(t *testing.T) {
	t.Parallel()

	on := time.Date(2026, time.August, 28, 23, 59, 0, 0, time.UTC)

	assert.Equal(t, "DIPLOMA-20260828-XK42QZ", FormatNumber("diploma", on, "XK42QZ"))
	assert.Equal(t, "CERT-20260828-XK42QZ", FormatNumber("", on, "XK42QZ"),
		"empty template code falls back to a generic prefix")
}

func TestRandomSuffix(t *testing.T) {
	t.Parallel()

	pattern := regexp.MustCompile(`^[A-HJ-NP-Z2-9]{6}$`)
	for range 100 {
		suffix, err := randomSuffix()
		require.NoError(t, err)
		assert.Regexp(t, pattern, suffix, "suffix must avoid lookalike characters")
	}
}

func TestGenerateNumber(t *testing.T) {
	t.Parallel()

	ctx, err := tenant.WithNamespace(context.Background(), "acme")
	require.NoError(t, err)

	on := time.Date(2026, time.August, 28, 12, 0, 0, 0, time.UTC)

	t.Run("generated numbers stay distinct", func(t *testing.T) {
		t.Parallel()

		repo := NewMemoryRepository()
		seen := make(map[string]struct{})
		for range 200 {
			number, err := generateNumber(ctx, repo, "DIPLOMA", on, 5)
			require.NoError(t, err)

			_, dup := seen[number]
			assert.False(t, dup, "number %s produced twice", number)
			seen[number] = struct{}{}

			require.NoError(t, repo.Create(ctx, &Certificate{
				ID:     uuid.New(),
				Number: number,
				Status: StatusPending,
			}))
		}
	})

	t.Run("exhausts after the attempt budget", func(t *testing.T) {
		t.Parallel()

		_, err := generateNumber(ctx, everyNumberTaken{}, "DIPLOMA", on, 3)
		assert.ErrorIs(t, err, ErrNumberGenerationExhausted)
	})
}

// everyNumberTaken reports every candidate number as already in use.
type everyNumberTaken struct{ Repository }

func (everyNumberTaken) NumberExists(context.Context, string) (bool, error) {
	return true, nil
}
