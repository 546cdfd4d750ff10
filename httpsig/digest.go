package httpsig

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// digestPrefix is the algorithm label of the Digest header value.
const digestPrefix = "SHA-256="

// DigestSHA256 returns the Digest header value for body:
// "SHA-256=" + base64(sha256(body)). An empty or nil body still hashes.
func DigestSHA256(body []byte) string {
	sum := sha256.Sum256(body)

	return digestPrefix + base64.StdEncoding.EncodeToString(sum[:])
}

// VerifyDigest compares a received Digest header value against body. The
// algorithm label is matched case-insensitively; the digest bytes must be
// equal. A missing header is a mismatch.
func VerifyDigest(header string, body []byte) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return fmt.Errorf("%w: no digest header", ErrDigestMismatch)
	}

	// Several digests may be listed; only SHA-256 is checked.
	for _, entry := range strings.Split(header, ",") {
		alg, encoded, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok || !strings.EqualFold(alg, "SHA-256") {
			continue
		}

		actual, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return fmt.Errorf("%w: invalid base64 in digest", ErrDigestMismatch)
		}

		expected := sha256.Sum256(body)
		if subtle.ConstantTimeCompare(expected[:], actual) != 1 {
			return ErrDigestMismatch
		}

		return nil
	}

	return fmt.Errorf("%w: no SHA-256 digest", ErrDigestMismatch)
}

// readAndRestoreBody reads the entire request body and replaces it with a
// new reader so the body can be consumed again by downstream handlers.
func readAndRestoreBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}

	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))

	return body, nil
}
