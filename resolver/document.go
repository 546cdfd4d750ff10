package resolver

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/staythepath/threadtalk/httpsig"
)

// Media types of the documents the resolver reads.
const (
	MediaTypeActivity = httpsig.ContentTypeActivity
	MediaTypeLDJSON   = `application/ld+json; profile="https://www.w3.org/ns/activitystreams"`
	MediaTypeJRD      = "application/jrd+json"
)

// acceptActivity is sent when fetching actor documents.
const acceptActivity = MediaTypeActivity + ", " + MediaTypeLDJSON

// ActorDocument is the JSON form of an actor as published at its id.
type ActorDocument struct {
	Context           any        `json:"@context,omitempty"`
	ID                string     `json:"id"`
	Type              string     `json:"type"`
	PreferredUsername string     `json:"preferredUsername,omitempty"`
	Name              string     `json:"name,omitempty"`
	Summary           string     `json:"summary,omitempty"`
	Inbox             string     `json:"inbox"`
	Outbox            string     `json:"outbox,omitempty"`
	Followers         string     `json:"followers,omitempty"`
	Following         string     `json:"following,omitempty"`
	Endpoints         *Endpoints `json:"endpoints,omitempty"`
	PublicKey         PublicKeys `json:"publicKey"`
}

// Endpoints lists optional server-wide endpoints of an actor.
type Endpoints struct {
	SharedInbox string `json:"sharedInbox,omitempty"`
}

// PublicKeyDocument is one entry of an actor's publicKey property.
type PublicKeyDocument struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	PublicKeyPEM string `json:"publicKeyPem"`
}

// UnmarshalJSON accepts publicKeyPem as a string or as a JSON-LD value
// object {"@value": "..."}.
func (k *PublicKeyDocument) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID           string          `json:"id"`
		Owner        string          `json:"owner"`
		PublicKeyPEM json.RawMessage `json:"publicKeyPem"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	pem, err := literalString(raw.PublicKeyPEM)
	if err != nil {
		return fmt.Errorf("publicKeyPem: %w", err)
	}

	*k = PublicKeyDocument{ID: raw.ID, Owner: raw.Owner, PublicKeyPEM: pem}

	return nil
}

// literalString decodes a JSON string or a JSON-LD value object holding one.
func literalString(data json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return "", nil
	}

	if strings.HasPrefix(trimmed, "{") {
		var v struct {
			Value string `json:"@value"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return "", err
		}

		return v.Value, nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return "", err
	}

	return s, nil
}

// PublicKeys holds the publicKey property, which remote servers publish
// either as a single object or as an array.
type PublicKeys []PublicKeyDocument

func (p *PublicKeys) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))

	switch {
	case trimmed == "null":
		*p = nil
		return nil

	case strings.HasPrefix(trimmed, "["):
		var keys []PublicKeyDocument
		if err := json.Unmarshal(data, &keys); err != nil {
			return err
		}

		*p = keys
		return nil

	default:
		var key PublicKeyDocument
		if err := json.Unmarshal(data, &key); err != nil {
			return err
		}

		*p = PublicKeys{key}
		return nil
	}
}

func (p PublicKeys) MarshalJSON() ([]byte, error) {
	if len(p) == 1 {
		return json.Marshal(p[0])
	}

	return json.Marshal([]PublicKeyDocument(p))
}

// Actor is the resolved view of a remote actor.
type Actor struct {
	ID                string
	Type              string
	PreferredUsername string
	Name              string
	Inbox             string
	Outbox            string
	SharedInbox       string

	// Key is the actor's main key. Key.Owner equals ID.
	Key httpsig.PublicKey

	// Keys holds every parsable key the actor publishes.
	Keys []httpsig.PublicKey
}

// Handle returns "user@host" for the actor, or "" when the actor has no
// preferred username.
func (a Actor) Handle() string {
	if a.PreferredUsername == "" {
		return ""
	}

	u, err := url.Parse(a.ID)
	if err != nil {
		return ""
	}

	return a.PreferredUsername + "@" + u.Host
}

// KeyByID returns the published key with the given id.
func (a Actor) KeyByID(keyID string) (httpsig.PublicKey, bool) {
	for _, k := range a.Keys {
		if k.ID == keyID {
			return k, true
		}
	}

	return httpsig.PublicKey{}, false
}

// actorFromDocument validates doc as the document served at id and
// converts it. Keys owned by another actor are ignored.
func actorFromDocument(id string, doc ActorDocument) (Actor, error) {
	if doc.ID != id {
		return Actor{}, fmt.Errorf("%w: document id %q does not match %q", ErrInvalidDocument, doc.ID, id)
	}

	if doc.Inbox == "" {
		return Actor{}, fmt.Errorf("%w: %s has no inbox", ErrInvalidDocument, id)
	}

	actor := Actor{
		ID:                doc.ID,
		Type:              doc.Type,
		PreferredUsername: doc.PreferredUsername,
		Name:              doc.Name,
		Inbox:             doc.Inbox,
		Outbox:            doc.Outbox,
	}

	if doc.Endpoints != nil {
		actor.SharedInbox = doc.Endpoints.SharedInbox
	}

	for _, k := range doc.PublicKey {
		if k.ID == "" || k.Owner != doc.ID {
			continue
		}

		key, err := httpsig.ParsePublicKeyPEM([]byte(k.PublicKeyPEM))
		if err != nil {
			continue
		}

		actor.Keys = append(actor.Keys, httpsig.PublicKey{ID: k.ID, Owner: doc.ID, Key: key})
	}

	if len(actor.Keys) == 0 {
		return Actor{}, fmt.Errorf("%w: %s publishes no usable public key", ErrInvalidDocument, id)
	}

	actor.Key = actor.Keys[0]

	return actor, nil
}

// stripFragment returns id without its fragment, validated as an absolute
// http(s) URL.
func stripFragment(id string) (string, error) {
	u, err := url.Parse(id)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidID, err)
	}

	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	u.Fragment = ""
	u.RawFragment = ""

	return u.String(), nil
}
