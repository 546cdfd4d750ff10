package resolver

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// RelSelf is the webfinger link relation pointing at the actor document.
const RelSelf = "self"

// JRD is a webfinger JSON Resource Descriptor.
type JRD struct {
	Subject string   `json:"subject"`
	Aliases []string `json:"aliases,omitempty"`
	Links   []Link   `json:"links"`
}

// Link is one entry of a JRD links array.
type Link struct {
	Rel  string `json:"rel"`
	Type string `json:"type,omitempty"`
	Href string `json:"href,omitempty"`
}

// ActorLink returns the href of the self link to an activity document.
func (j JRD) ActorLink() (string, bool) {
	for _, l := range j.Links {
		if l.Rel != RelSelf || l.Href == "" {
			continue
		}

		if l.Type == MediaTypeActivity || strings.HasPrefix(l.Type, "application/ld+json") {
			return l.Href, true
		}
	}

	return "", false
}

// Handle is a parsed user@domain account handle. Domain is in ASCII
// (punycode) form and may carry a port.
type Handle struct {
	User   string
	Domain string
}

// ParseHandle parses "user@domain", "@user@domain" or "acct:user@domain".
func ParseHandle(s string) (Handle, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "acct:")
	s = strings.TrimPrefix(s, "@")

	user, domain, ok := strings.Cut(s, "@")
	if !ok || user == "" || domain == "" || strings.Contains(domain, "@") {
		return Handle{}, fmt.Errorf("%w: %q", ErrInvalidHandle, s)
	}

	host, port := domain, ""
	if h, p, err := net.SplitHostPort(domain); err == nil {
		host, port = h, p
	}

	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: %q: %v", ErrInvalidHandle, s, err)
	}

	if port != "" {
		ascii = net.JoinHostPort(ascii, port)
	}

	return Handle{User: user, Domain: ascii}, nil
}

// Resource returns the webfinger resource for h.
func (h Handle) Resource() string {
	return "acct:" + h.String()
}

func (h Handle) String() string {
	return h.User + "@" + h.Domain
}

// Discover maps a user@domain handle to the actor it names: it fetches the
// domain's webfinger document, follows the self link and resolves the
// actor there.
func (r *Resolver) Discover(ctx context.Context, handle string) (Actor, error) {
	h, err := ParseHandle(handle)
	if err != nil {
		return Actor{}, err
	}

	resource := h.Resource()

	if id, ok := r.handles.Get(resource); ok {
		return r.ResolveActor(ctx, id)
	}

	v, err, _ := r.inflight.Do("webfinger:"+resource, func() (any, error) {
		return r.finger(ctx, h)
	})
	if err != nil {
		return Actor{}, err
	}

	id := v.(string)
	r.handles.Add(resource, id)

	return r.ResolveActor(ctx, id)
}

// finger fetches the webfinger document for h and returns the actor id.
func (r *Resolver) finger(ctx context.Context, h Handle) (string, error) {
	u := url.URL{
		Scheme:   r.scheme,
		Host:     h.Domain,
		Path:     "/.well-known/webfinger",
		RawQuery: url.Values{"resource": {h.Resource()}}.Encode(),
	}

	var jrd JRD
	if err := r.getJSON(ctx, u.String(), MediaTypeJRD, &jrd); err != nil {
		r.logger.Warn("webfinger lookup failed", "handle", h.String(), "error", err)
		return "", err
	}

	id, ok := jrd.ActorLink()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoActorLink, h)
	}

	return id, nil
}
