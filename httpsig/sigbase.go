package httpsig

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

// Field is one (name, value) line of a signing string.
type Field struct {
	Name  string
	Value string
}

// BuildSigningString joins fields as "<name>: <value>" lines separated by a
// single "\n", with no trailing newline. The order of fields is preserved.
func BuildSigningString(fields []Field) string {
	var b strings.Builder

	for i, f := range fields {
		if i > 0 {
			b.WriteByte('\n')
		}

		b.WriteString(f.Name)
		b.WriteString(": ")
		b.WriteString(f.Value)
	}

	return b.String()
}

// requestFields collects the values of names from r in the given order.
func requestFields(r *http.Request, names []string) ([]Field, error) {
	fields := make([]Field, 0, len(names))

	for _, name := range names {
		val, err := fieldValue(name, r)
		if err != nil {
			return nil, err
		}

		fields = append(fields, Field{Name: strings.ToLower(name), Value: val})
	}

	return fields, nil
}

// SignatureHeader is the parsed form of a Signature header:
//
//	keyId="<uri>",algorithm="rsa-sha256",headers="<fields>",signature="<base64>"
type SignatureHeader struct {
	KeyID     string
	Algorithm Algorithm

	// Headers is the ordered list of signed field names. Verification
	// rebuilds the signing string in exactly this order.
	Headers []string

	Signature []byte
}

// String encodes h in the Signature header wire format.
func (h SignatureHeader) String() string {
	parts := []string{
		`keyId="` + h.KeyID + `"`,
		`algorithm="` + h.Algorithm.String() + `"`,
		`headers="` + strings.Join(h.Headers, " ") + `"`,
		`signature="` + base64.StdEncoding.EncodeToString(h.Signature) + `"`,
	}

	return strings.Join(parts, ",")
}

// ParseSignatureHeader parses a Signature header value.
//
// The value is split on ","; every part must be key="value" with the value
// enclosed in exactly one pair of double quotes. Escaped or embedded quotes
// are not supported and make the header malformed, as do duplicate keys and
// a missing keyId, headers or signature parameter. Unknown parameters are
// ignored.
func ParseSignatureHeader(header string) (SignatureHeader, error) {
	var h SignatureHeader

	seen := make(map[string]bool, 4)

	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)

		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return h, fmt.Errorf("%w: parameter %q has no value", ErrMalformedHeader, part)
		}

		if len(value) < 2 || value[0] != '"' || value[len(value)-1] != '"' {
			return h, fmt.Errorf("%w: parameter %q is not quoted", ErrMalformedHeader, key)
		}

		value = value[1 : len(value)-1]
		if strings.Contains(value, `"`) {
			return h, fmt.Errorf("%w: parameter %q contains a quote", ErrMalformedHeader, key)
		}

		if seen[key] {
			return h, fmt.Errorf("%w: duplicate parameter %q", ErrMalformedHeader, key)
		}
		seen[key] = true

		switch key {
		case "keyId":
			h.KeyID = value

		case "algorithm":
			h.Algorithm = Algorithm(value)

		case "headers":
			h.Headers = strings.Fields(value)

		case "signature":
			sig, err := base64.StdEncoding.DecodeString(value)
			if err != nil {
				return h, fmt.Errorf("%w: invalid base64 in signature", ErrMalformedHeader)
			}

			h.Signature = sig
		}
	}

	switch {
	case h.KeyID == "":
		return h, fmt.Errorf("%w: missing keyId", ErrMalformedHeader)
	case len(h.Headers) == 0:
		return h, fmt.Errorf("%w: missing headers", ErrMalformedHeader)
	case len(h.Signature) == 0:
		return h, fmt.Errorf("%w: missing signature", ErrMalformedHeader)
	}

	return h, nil
}
