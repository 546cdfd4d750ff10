package httpsig

import "net/http"

// Transport is an http.RoundTripper that signs every outgoing request on
// behalf of a single key.
type Transport struct {
	base      http.RoundTripper
	config    SignConfig
	userAgent string
}

// NewTransport creates a signing Transport that delegates to base after
// signing. When base is nil, a clone of http.DefaultTransport is used.
//
// Pass one shared *http.Transport to all per-actor Transports so they share
// a connection pool:
//
//	shared := &http.Transport{IdleConnTimeout: 90 * time.Second}
//	client := &http.Client{
//	    Transport: httpsig.NewTransport(shared, httpsig.SignConfig{Signer: signer}),
//	    Timeout:   10 * time.Second,
//	}
func NewTransport(base http.RoundTripper, cfg SignConfig) *Transport {
	if base == nil {
		base = http.DefaultTransport.(*http.Transport).Clone()
	}

	return &Transport{base: base, config: cfg}
}

// WithUserAgent sets the User-Agent sent with each request that has none.
func (t *Transport) WithUserAgent(ua string) *Transport {
	t.userAgent = ua
	return t
}

// RoundTrip clones req, signs the clone and delegates to the base
// transport. When GetBody is available the clone gets its own body copy
// so the caller's body is left unread.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())

	if clone.Body != nil && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}

		clone.Body = body
	}

	if clone.Header.Get("Accept") == "" {
		clone.Header.Set("Accept", ContentTypeActivity)
	}

	if t.userAgent != "" && clone.Header.Get("User-Agent") == "" {
		clone.Header.Set("User-Agent", t.userAgent)
	}

	if err := SignRequest(clone, t.config); err != nil {
		return nil, err
	}

	return t.base.RoundTrip(clone)
}
