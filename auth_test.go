package tsunami

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeDigestMatchesWithSameSecret(t *testing.T) {
	challenge, err := GenerateChallenge()
	require.NoError(t, err)

	secretA := []byte("shared-secret")
	secretB := []byte("shared-secret")
	digestA := ComputeDigest(challenge, secretA)
	digestB := ComputeDigest(challenge, secretB)
	assert.True(t, DigestsEqual(digestA, digestB))
}

func TestComputeDigestMismatchWithWrongSecret(t *testing.T) {
	challenge, err := GenerateChallenge()
	require.NoError(t, err)

	good := ComputeDigest(challenge, []byte("correct-secret"))
	bad := ComputeDigest(challenge, []byte("wrong-secret"))
	assert.False(t, DigestsEqual(good, bad))
}

func TestZeroSecret(t *testing.T) {
	secret := []byte("top-secret")
	ZeroSecret(secret)
	for _, b := range secret {
		assert.Equal(t, byte(0), b)
	}
}

func TestLoadSecretTrimsTrailingNewline(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "secret")
	require.NoError(t, err)
	_, err = f.WriteString("my-secret\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	secret, err := LoadSecret(f.Name())
	require.NoError(t, err)
	assert.Equal(t, "my-secret", string(secret))
}

func TestGenerateChallengeIsNotConstant(t *testing.T) {
	a, err := GenerateChallenge()
	require.NoError(t, err)
	b, err := GenerateChallenge()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
