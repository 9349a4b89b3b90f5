package hash_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/veridoc/veridoc/core/hash"
)

func TestDigest(t *testing.T) {
	t.Parallel()

	t.Run("deterministic", func(t *testing.T) {
		t.Parallel()

		a := hash.Digest([]byte("certificate body"))
		b := hash.Digest([]byte("certificate body"))
		assert.Equal(t, a, b)
	})

	t.Run("encoded length matches algorithm", func(t *testing.T) {
		t.Parallel()

		d := hash.Digest([]byte("x"))
		assert.Len(t, d, hash.EncodedLength)
		assert.Equal(t, 64, hash.EncodedLength)
		assert.Equal(t, "sha256", hash.Algorithm)
	})

	t.Run("known vector", func(t *testing.T) {
		t.Parallel()

		// sha256("")
		assert.Equal(t,
			"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
			hash.Digest(nil))
	})
}

func TestMatches(t *testing.T) {
	t.Parallel()

	d := hash.Digest([]byte("artifact"))

	assert.True(t, hash.Matches(d, d))
	assert.False(t, hash.Matches(d, strings.ToUpper(d)), "comparison is case-sensitive")
	assert.False(t, hash.Matches(d, d+"0"))
	assert.False(t, hash.Matches("", ""))
}
