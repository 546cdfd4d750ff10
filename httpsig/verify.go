package httpsig

import (
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"
)

// VerifyConfig configures inbound signature verification.
type VerifyConfig struct {
	// RequiredFields lists field names that must be in the signed field
	// list. Defaults to RequiredFields.
	RequiredFields []string

	// MaxAge is the maximum distance between the signed Date header and
	// now. Zero disables the check.
	MaxAge time.Duration

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// VerifyRequest checks that r was signed by the holder of key and returns
// the key owner's identity. Callers must trust this identity, not any actor
// named inside the request body.
//
// Checks run in order and stop at the first failure:
// signature presence, body digest (POST only), header parse, required
// fields, signing string reconstruction from the declared field order,
// key id match, then the cryptographic check for the key's scheme.
func VerifyRequest(r *http.Request, key PublicKey, cfg VerifyConfig) (string, error) {
	raw := r.Header.Get("Signature")
	if raw == "" {
		return "", ErrSignatureNotFound
	}

	if r.Method == http.MethodPost {
		body, err := readAndRestoreBody(r)
		if err != nil {
			return "", err
		}

		if err := VerifyDigest(r.Header.Get("Digest"), body); err != nil {
			return "", err
		}
	}

	sh, err := ParseSignatureHeader(raw)
	if err != nil {
		return "", err
	}

	declared := make([]string, len(sh.Headers))
	for i, name := range sh.Headers {
		declared[i] = strings.ToLower(name)
	}

	required := cfg.RequiredFields
	if required == nil {
		required = RequiredFields
	}

	var missing []string
	for _, name := range required {
		if !slices.Contains(declared, name) {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
	}

	fields, err := requestFields(r, declared)
	if err != nil {
		return "", err
	}

	if sh.KeyID != key.ID {
		return "", fmt.Errorf("%w: signed with %q, resolved %q", ErrKeyIDMismatch, sh.KeyID, key.ID)
	}

	verifier, err := NewVerifier(key)
	if err != nil {
		return "", err
	}

	if err := verifier.Verify([]byte(BuildSigningString(fields)), sh.Signature); err != nil {
		return "", err
	}

	if cfg.MaxAge > 0 {
		if err := checkDate(r.Header.Get("Date"), cfg); err != nil {
			return "", err
		}
	}

	return key.Owner, nil
}

// checkDate rejects a signed Date outside the MaxAge window around now.
func checkDate(value string, cfg VerifyConfig) error {
	date, err := http.ParseTime(value)
	if err != nil {
		return fmt.Errorf("%w: unparseable date %q", ErrSignatureExpired, value)
	}

	now := time.Now
	if cfg.Now != nil {
		now = cfg.Now
	}

	skew := now().Sub(date)
	if skew < -cfg.MaxAge || skew > cfg.MaxAge {
		return fmt.Errorf("%w: date %s", ErrSignatureExpired, value)
	}

	return nil
}
