package httpsig

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// Minimum RSA key size in bits.
const minRSAKeyBits = 2048

// KeyScheme names the asymmetric scheme of a public key.
type KeyScheme string

const (
	// SchemeRSA is an RSA key verified with PKCS#1 v1.5 over SHA-256.
	SchemeRSA KeyScheme = "rsa"

	// SchemeEd25519 is an Ed25519 key verified over the raw message.
	SchemeEd25519 KeyScheme = "ed25519"

	// SchemeUnknown is any other key type.
	SchemeUnknown KeyScheme = "unknown"
)

// PublicKey is the key material an actor publishes: the key id, the
// identity that controls the key and the key itself.
type PublicKey struct {
	// ID is the key id URI, typically "<actor>#main-key".
	ID string

	// Owner is the controller identity URI. It becomes the authenticated
	// principal when a signature made with this key verifies.
	Owner string

	// Key is *rsa.PublicKey, ed25519.PublicKey or any other crypto key.
	Key crypto.PublicKey
}

// Scheme reports the key scheme of k.
func (k PublicKey) Scheme() KeyScheme {
	switch k.Key.(type) {
	case *rsa.PublicKey:
		return SchemeRSA
	case ed25519.PublicKey:
		return SchemeEd25519
	default:
		return SchemeUnknown
	}
}

// NewVerifier returns the Verifier matching the scheme of k. It returns
// ErrUnsupportedKey for schemes other than RSA and Ed25519.
func NewVerifier(k PublicKey) (Verifier, error) {
	switch key := k.Key.(type) {
	case *rsa.PublicKey:
		return NewRSAVerifier(k.ID, key)
	case ed25519.PublicKey:
		return NewEd25519Verifier(k.ID, key)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, k.Key)
	}
}

// --- RSA PKCS#1 v1.5 SHA-256 ---

type rsaSigner struct {
	key   *rsa.PrivateKey
	keyID string
}

// NewRSASigner creates a Signer using RSASSA-PKCS1-v1_5 with SHA-256.
func NewRSASigner(keyID string, key *rsa.PrivateKey) (Signer, error) {
	if key == nil {
		return nil, fmt.Errorf("%w: rsa private key must not be nil", ErrInvalidKey)
	}

	if key.N.BitLen() < minRSAKeyBits {
		return nil, fmt.Errorf("%w: rsa key must be at least %d bits", ErrInvalidKey, minRSAKeyBits)
	}

	return &rsaSigner{key: key, keyID: keyID}, nil
}

func (s *rsaSigner) Sign(message []byte) ([]byte, error) {
	digest := sha256.Sum256(message)

	return rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
}

func (s *rsaSigner) Algorithm() Algorithm { return AlgorithmRSASHA256 }
func (s *rsaSigner) KeyID() string        { return s.keyID }

type rsaVerifier struct {
	key   *rsa.PublicKey
	keyID string
}

// NewRSAVerifier creates a Verifier using RSASSA-PKCS1-v1_5 with SHA-256.
func NewRSAVerifier(keyID string, key *rsa.PublicKey) (Verifier, error) {
	if key == nil {
		return nil, fmt.Errorf("%w: rsa public key must not be nil", ErrInvalidKey)
	}

	return &rsaVerifier{key: key, keyID: keyID}, nil
}

func (v *rsaVerifier) Verify(message, signature []byte) error {
	digest := sha256.Sum256(message)

	if err := rsa.VerifyPKCS1v15(v.key, crypto.SHA256, digest[:], signature); err != nil {
		return ErrSignatureInvalid
	}

	return nil
}

func (v *rsaVerifier) KeyID() string { return v.keyID }

// --- Ed25519 ---

type ed25519Signer struct {
	key   ed25519.PrivateKey
	keyID string
}

// NewEd25519Signer creates a Signer using Ed25519.
func NewEd25519Signer(keyID string, key ed25519.PrivateKey) (Signer, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: ed25519 private key must be %d bytes", ErrInvalidKey, ed25519.PrivateKeySize)
	}

	return &ed25519Signer{key: key, keyID: keyID}, nil
}

func (s *ed25519Signer) Sign(message []byte) ([]byte, error) {
	return ed25519.Sign(s.key, message), nil
}

func (s *ed25519Signer) Algorithm() Algorithm { return AlgorithmEd25519 }
func (s *ed25519Signer) KeyID() string        { return s.keyID }

type ed25519Verifier struct {
	key   ed25519.PublicKey
	keyID string
}

// NewEd25519Verifier creates a Verifier using Ed25519.
func NewEd25519Verifier(keyID string, key ed25519.PublicKey) (Verifier, error) {
	if len(key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: ed25519 public key must be %d bytes", ErrInvalidKey, ed25519.PublicKeySize)
	}

	return &ed25519Verifier{key: key, keyID: keyID}, nil
}

func (v *ed25519Verifier) Verify(message, signature []byte) error {
	if !ed25519.Verify(v.key, message, signature) {
		return ErrSignatureInvalid
	}

	return nil
}

func (v *ed25519Verifier) KeyID() string { return v.keyID }

// --- PEM ---

// ParsePrivateKeyPEM parses a PKCS#1 or PKCS#8 PEM private key. Only RSA
// and Ed25519 keys are accepted.
func ParsePrivateKeyPEM(data []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrInvalidKey)
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}

		return key, nil

	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}

		switch k := key.(type) {
		case *rsa.PrivateKey:
			return k, nil
		case ed25519.PrivateKey:
			return k, nil
		default:
			return nil, fmt.Errorf("%w: unsupported private key type %T", ErrInvalidKey, key)
		}

	default:
		return nil, fmt.Errorf("%w: unexpected PEM block %q", ErrInvalidKey, block.Type)
	}
}

// NewSignerFromPEM parses a PEM private key and returns the matching Signer.
func NewSignerFromPEM(keyID string, data []byte) (Signer, error) {
	key, err := ParsePrivateKeyPEM(data)
	if err != nil {
		return nil, err
	}

	switch k := key.(type) {
	case *rsa.PrivateKey:
		return NewRSASigner(keyID, k)
	case ed25519.PrivateKey:
		return NewEd25519Signer(keyID, k)
	default:
		return nil, fmt.Errorf("%w: unsupported private key type %T", ErrInvalidKey, key)
	}
}

// ParsePublicKeyPEM parses a PKIX ("PUBLIC KEY") or PKCS#1
// ("RSA PUBLIC KEY") PEM public key. Key types outside RSA and Ed25519
// are returned as-is; verification rejects them later.
func ParsePublicKeyPEM(data []byte) (crypto.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrInvalidKey)
	}

	switch block.Type {
	case "PUBLIC KEY":
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}

		return key, nil

	case "RSA PUBLIC KEY":
		key, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}

		return key, nil

	default:
		return nil, fmt.Errorf("%w: unexpected PEM block %q", ErrInvalidKey, block.Type)
	}
}

// EncodePublicKeyPEM encodes a public key as a PKIX PEM block.
func EncodePublicKeyPEM(key crypto.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// PublicKeyPEMFromPrivate derives the PKIX PEM public key of a PEM private key.
func PublicKeyPEMFromPrivate(data []byte) ([]byte, error) {
	key, err := ParsePrivateKeyPEM(data)
	if err != nil {
		return nil, err
	}

	return EncodePublicKeyPEM(key.Public())
}

// GenerateRSAKeyPEM generates an RSA private key of the given size and
// returns it PKCS#8 PEM encoded.
func GenerateRSAKeyPEM(bits int) ([]byte, error) {
	if bits < minRSAKeyBits {
		return nil, fmt.Errorf("%w: rsa key must be at least %d bits", ErrInvalidKey, minRSAKeyBits)
	}

	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, err
	}

	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, err
	}

	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}
