package httpsig

import (
	"net/http"
	"net/url"
	"time"
)

// ContentTypeActivity is the media type of activity documents.
const ContentTypeActivity = "application/activity+json"

// SignConfig configures outbound request signing.
type SignConfig struct {
	// Signer produces signatures. Required.
	Signer Signer

	// Fields lists the field names to sign, in order. Defaults to
	// DefaultFields.
	Fields []string

	// ContentType is sent and signed when the request has none. Defaults
	// to ContentTypeActivity.
	ContentType string

	// Date sets the signing time. When zero, time.Now() is used.
	Date time.Time
}

// Sign computes the headers for a request with the given method, target URL
// and body: Host, Date, Digest, Content-Type and Signature. Date is GMT in
// the form "Mon, 02 Jan 2006 15:04:05 GMT". The digest covers body even
// when it is empty.
func Sign(method string, u *url.URL, body []byte, cfg SignConfig) (http.Header, error) {
	r, err := http.NewRequest(method, u.String(), nil)
	if err != nil {
		return nil, err
	}

	if err := signHeaders(r, body, cfg); err != nil {
		return nil, err
	}

	h := r.Header.Clone()
	h.Set("Host", r.Host)

	return h, nil
}

// SignRequest signs an HTTP request in-place. It reads and restores the
// body to compute the digest, sets Host, Date, Digest and Content-Type,
// then adds the Signature header.
func SignRequest(r *http.Request, cfg SignConfig) error {
	if cfg.Signer == nil {
		return ErrNoSigner
	}

	body, err := readAndRestoreBody(r)
	if err != nil {
		return err
	}

	return signHeaders(r, body, cfg)
}

func signHeaders(r *http.Request, body []byte, cfg SignConfig) error {
	if cfg.Signer == nil {
		return ErrNoSigner
	}

	fields := cfg.Fields
	if len(fields) == 0 {
		fields = DefaultFields
	}

	date := cfg.Date
	if date.IsZero() {
		date = time.Now()
	}

	if r.Host == "" {
		r.Host = r.URL.Host
	}

	contentType := cfg.ContentType
	if contentType == "" {
		contentType = ContentTypeActivity
	}

	if r.Header.Get("Content-Type") == "" {
		r.Header.Set("Content-Type", contentType)
	}

	r.Header.Set("Date", date.UTC().Format(http.TimeFormat))
	r.Header.Set("Digest", DigestSHA256(body))

	signed, err := requestFields(r, fields)
	if err != nil {
		return err
	}

	sig, err := cfg.Signer.Sign([]byte(BuildSigningString(signed)))
	if err != nil {
		return err
	}

	names := make([]string, len(signed))
	for i, f := range signed {
		names[i] = f.Name
	}

	r.Header.Set("Signature", SignatureHeader{
		KeyID:     cfg.Signer.KeyID(),
		Algorithm: cfg.Signer.Algorithm(),
		Headers:   names,
		Signature: sig,
	}.String())

	return nil
}
