package httpsig

import "errors"

// Signing errors.
var (
	// ErrNoSigner is returned when SignConfig has no Signer configured.
	ErrNoSigner = errors.New("httpsig: signer must not be nil")
)

// Verification errors. Each one is a distinct reject reason.
var (
	// ErrNoResolver is returned when MiddlewareConfig has no Resolver configured.
	ErrNoResolver = errors.New("httpsig: key resolver must not be nil")

	// ErrSignatureNotFound is returned when the request carries no
	// Signature header.
	ErrSignatureNotFound = errors.New("httpsig: missing signature header")

	// ErrMalformedHeader is returned when the Signature header cannot be
	// parsed.
	ErrMalformedHeader = errors.New("httpsig: malformed signature header")

	// ErrMissingField is returned when a required field is absent from the
	// signed field list, or when a declared field is absent from the request.
	ErrMissingField = errors.New("httpsig: missing required signature fields")

	// ErrKeyIDMismatch is returned when the keyId of the signature differs
	// from the key the request is checked against.
	ErrKeyIDMismatch = errors.New("httpsig: key id mismatch")

	// ErrUnsupportedKey is returned when the public key scheme has no
	// verifier.
	ErrUnsupportedKey = errors.New("httpsig: unsupported public key type")

	// ErrSignatureInvalid is returned when signature verification fails.
	ErrSignatureInvalid = errors.New("httpsig: invalid signature")

	// ErrSignatureExpired is returned when the signed date is outside the
	// configured maximum age.
	ErrSignatureExpired = errors.New("httpsig: signature expired")
)

// Key material errors.
var (
	// ErrInvalidKey is returned when key material is invalid (nil, bad PEM,
	// insufficient size, etc.).
	ErrInvalidKey = errors.New("httpsig: invalid key material")
)

// Digest errors.
var (
	// ErrDigestMismatch is returned when the Digest header does not match
	// the body, or is missing on a request that must carry one.
	ErrDigestMismatch = errors.New("httpsig: digest mismatch")
)

// reasons maps each verification sentinel to its short log label.
var reasons = []struct {
	err    error
	reason string
}{
	{ErrSignatureNotFound, "missing signature header"},
	{ErrDigestMismatch, "digest mismatch"},
	{ErrMalformedHeader, "malformed signature header"},
	{ErrMissingField, "missing required signature fields"},
	{ErrKeyIDMismatch, "key id mismatch"},
	{ErrUnsupportedKey, "unsupported public key type"},
	{ErrSignatureInvalid, "invalid signature"},
	{ErrSignatureExpired, "signature expired"},
}

// Reason returns the short reject reason for a verification error, or
// "unknown" when err is not a verification failure.
func Reason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}

	return "unknown"
}
