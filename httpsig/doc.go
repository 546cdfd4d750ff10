// Package httpsig signs and verifies HTTP requests with the Signature and
// Digest headers used between federated servers ("Cavage" draft style).
//
// # Signing String
//
// The signed content is a list of "<name>: <value>" lines joined by "\n".
// The pseudo-field (request-target) is the lowercased method, a space and
// the path:
//
//	(request-target): post /users/alice/inbox
//	host: example.com
//	date: Tue, 07 Jun 2022 20:51:35 GMT
//	digest: SHA-256=X48E9qOokqqrvdts8nOJRJN3OWDUoyWxBf7kbu9DBPE=
//	content-type: application/activity+json
//
// The Signature header carries the field order it was built with:
//
//	keyId="https://example.com/users/alice#main-key",algorithm="rsa-sha256",headers="(request-target) host date digest content-type",signature="..."
//
// # Signing Requests
//
//	signer, err := httpsig.NewSignerFromPEM("https://example.com/users/alice#main-key", privatePEM)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	err = httpsig.SignRequest(req, httpsig.SignConfig{Signer: signer})
//
// SignRequest sets Host, Date, Digest, Content-Type and Signature. Only
// RSA keys are required on the signing side; Ed25519 signing is provided
// for symmetry.
//
// # Verifying Requests
//
// VerifyRequest checks a request against previously resolved key material
// and returns the key owner as the authenticated identity:
//
//	identity, err := httpsig.VerifyRequest(req, key, httpsig.VerifyConfig{})
//	if err != nil {
//	    log.Println(httpsig.Reason(err))
//	}
//
// Every failure wraps one sentinel error (ErrSignatureNotFound,
// ErrDigestMismatch, ErrMalformedHeader, ErrMissingField, ErrKeyIDMismatch,
// ErrUnsupportedKey, ErrSignatureInvalid, ErrSignatureExpired). RSA keys
// verify with PKCS#1 v1.5 over SHA-256 and Ed25519 keys verify the raw
// signing string; any other key type is rejected.
//
// # Server Middleware
//
// Middleware resolves the key named by keyId, verifies the request and
// stores the identity in the request context:
//
//	mw, err := httpsig.Middleware(httpsig.MiddlewareConfig{
//	    Resolver: func(r *http.Request, keyID string) (httpsig.PublicKey, error) {
//	        return res.ResolveKey(r.Context(), keyID)
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	router.Use(mw)
//
// # Client Transport
//
// NewTransport creates an http.RoundTripper that signs every outgoing
// request:
//
//	client := &http.Client{
//	    Transport: httpsig.NewTransport(nil, httpsig.SignConfig{Signer: signer}),
//	}
package httpsig
