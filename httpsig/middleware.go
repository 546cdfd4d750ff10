package httpsig

import (
	"context"
	"errors"
	"net/http"
)

// KeyResolver returns the key material published under keyID. It is called
// during request verification; the request is provided for its context.
type KeyResolver func(r *http.Request, keyID string) (PublicKey, error)

type identityKey struct{}

// IdentityFromContext returns the identity authenticated by Middleware.
// Returns an empty string if the request was not verified.
func IdentityFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(identityKey{}).(string); ok {
		return id
	}

	return ""
}

// WithIdentity returns a copy of ctx carrying an authenticated identity.
func WithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// MiddlewareConfig configures the server-side signature verification
// middleware.
type MiddlewareConfig struct {
	// Resolver looks up key material by key id. Required.
	Resolver KeyResolver

	// Invalidate, when set, drops cached key material for keyID. A
	// verification that fails against a cached key is retried once with
	// freshly resolved material.
	Invalidate func(keyID string)

	// Verify configures how signatures are verified.
	Verify VerifyConfig

	// OnError is called when resolution or verification fails. When nil,
	// a plain 401 Unauthorized response is sent.
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

// Middleware returns a middleware that verifies the Signature header of
// incoming requests and stores the authenticated identity in the request
// context.
//
// It returns ErrNoResolver if Resolver is nil.
func Middleware(cfg MiddlewareConfig) (func(http.Handler) http.Handler, error) {
	if cfg.Resolver == nil {
		return nil, ErrNoResolver
	}

	onError := cfg.OnError
	if onError == nil {
		onError = defaultOnError
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := verifyWithResolver(r, cfg)
			if err != nil {
				onError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}, nil
}

func verifyWithResolver(r *http.Request, cfg MiddlewareConfig) (string, error) {
	raw := r.Header.Get("Signature")
	if raw == "" {
		return "", ErrSignatureNotFound
	}

	sh, err := ParseSignatureHeader(raw)
	if err != nil {
		return "", err
	}

	key, err := cfg.Resolver(r, sh.KeyID)
	if err != nil {
		return "", err
	}

	identity, err := VerifyRequest(r, key, cfg.Verify)
	if err == nil || cfg.Invalidate == nil {
		return identity, err
	}

	if !errors.Is(err, ErrSignatureInvalid) && !errors.Is(err, ErrKeyIDMismatch) {
		return "", err
	}

	// The cached key may be stale; refetch once.
	cfg.Invalidate(sh.KeyID)

	key, err = cfg.Resolver(r, sh.KeyID)
	if err != nil {
		return "", err
	}

	return VerifyRequest(r, key, cfg.Verify)
}

// defaultOnError writes a 401 Unauthorized response with no body.
func defaultOnError(w http.ResponseWriter, _ *http.Request, _ error) {
	w.WriteHeader(http.StatusUnauthorized)
}
