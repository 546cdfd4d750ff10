package httpsig

// Algorithm is the value of the algorithm parameter in a Signature header.
//
// It is informational only: verification dispatches on the scheme of the
// resolved public key, never on the algorithm a sender claims.
type Algorithm string

const (
	// AlgorithmRSASHA256 is RSASSA-PKCS1-v1_5 using SHA-256.
	AlgorithmRSASHA256 Algorithm = "rsa-sha256"

	// AlgorithmEd25519 is Edwards-Curve DSA over curve 25519.
	AlgorithmEd25519 Algorithm = "ed25519"

	// AlgorithmHS2019 is the placeholder algorithm that defers to the key.
	AlgorithmHS2019 Algorithm = "hs2019"
)

// String returns the string representation of the algorithm.
func (a Algorithm) String() string {
	return string(a)
}

// Signer creates signatures over canonical signing strings.
type Signer interface {
	// Sign produces a signature over the given message bytes.
	Sign(message []byte) ([]byte, error)

	// Algorithm returns the algorithm identifier for this signer.
	Algorithm() Algorithm

	// KeyID returns the key identifier included in the Signature header.
	KeyID() string
}

// Verifier validates signatures over canonical signing strings.
type Verifier interface {
	// Verify checks that signature is valid for the given message bytes.
	// Returns nil on success, non-nil on failure.
	Verify(message, signature []byte) error

	// KeyID returns the key identifier for this verifier.
	KeyID() string
}
