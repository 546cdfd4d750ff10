package httpsig

import (
	"crypto/rand"
	"crypto/rsa"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

const testKeyID = "https://remote.example/users/bob#main-key"

var (
	rsaKeyOnce sync.Once
	rsaKey     *rsa.PrivateKey
	rsaKeyErr  error
)

// testRSAKey returns a 2048-bit key shared by all tests in the package.
func testRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()

	rsaKeyOnce.Do(func() {
		rsaKey, rsaKeyErr = rsa.GenerateKey(rand.Reader, 2048)
	})
	require.NoError(t, rsaKeyErr)

	return rsaKey
}

func testRSASigner(t *testing.T) Signer {
	t.Helper()

	signer, err := NewRSASigner(testKeyID, testRSAKey(t))
	require.NoError(t, err)

	return signer
}

func testRSAPublicKey(t *testing.T) PublicKey {
	t.Helper()

	return PublicKey{
		ID:    testKeyID,
		Owner: "https://remote.example/users/bob",
		Key:   &testRSAKey(t).PublicKey,
	}
}
