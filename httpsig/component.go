package httpsig

import (
	"fmt"
	"net/http"
	"strings"
)

// Field names used in signing strings.
const (
	FieldRequestTarget = "(request-target)"
	FieldHost          = "host"
	FieldDate          = "date"
	FieldDigest        = "digest"
	FieldContentType   = "content-type"
)

// DefaultFields are signed for outbound requests, in this order.
var DefaultFields = []string{FieldRequestTarget, FieldHost, FieldDate, FieldDigest, FieldContentType}

// RequiredFields must appear in the signed field list of any accepted
// inbound signature.
var RequiredFields = []string{FieldRequestTarget, FieldDate}

// RequestTarget returns the (request-target) value: the lowercased method,
// a space and the path.
func RequestTarget(method, path string) string {
	if path == "" {
		path = "/"
	}

	return strings.ToLower(method) + " " + path
}

// fieldValue extracts the value of a signed field from an HTTP request.
//
// (request-target) is synthesised from the method and escaped path. Header
// names are matched case-insensitively and multiple values are joined with
// ", ". A field the request lacks is ErrMissingField.
func fieldValue(name string, r *http.Request) (string, error) {
	name = strings.ToLower(name)

	switch name {
	case FieldRequestTarget:
		return RequestTarget(r.Method, r.URL.EscapedPath()), nil

	case FieldHost:
		// net/http moves the Host header into Request.Host.
		if host := authority(r); host != "" {
			return host, nil
		}
	}

	values := r.Header.Values(name)
	if len(values) == 0 {
		return "", fmt.Errorf("%w: header %q not present", ErrMissingField, name)
	}

	return strings.Join(values, ", "), nil
}

// authority returns the host[:port] the request was addressed to.
func authority(r *http.Request) string {
	if r.Host != "" {
		return r.Host
	}

	if r.URL != nil {
		return r.URL.Host
	}

	return ""
}
