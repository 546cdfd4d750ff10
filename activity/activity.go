package activity

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ContextActivityStreams is the JSON-LD context of every emitted activity.
const ContextActivityStreams = "https://www.w3.org/ns/activitystreams"

// PublicCollection addresses an activity to everyone.
const PublicCollection = "https://www.w3.org/ns/activitystreams#Public"

// Activity types handled by the Dispatcher.
const (
	TypeFollow   = "Follow"
	TypeAccept   = "Accept"
	TypeReject   = "Reject"
	TypeUndo     = "Undo"
	TypeLike     = "Like"
	TypeAnnounce = "Announce"
	TypeCreate   = "Create"
	TypeDelete   = "Delete"
)

// Activity is one node of an activity document: the activity itself or
// any object nested in it. A node that was sent as a bare IRI has only ID
// set and IRIOnly true.
//
// Actor and AttributedTo are reduced to their IRI when sent embedded.
type Activity struct {
	Context      any
	ID           string
	Type         string
	Actor        string
	Object       *Activity
	Target       string
	AttributedTo string
	Name         string
	Summary      string
	Content      string
	InReplyTo    string
	URL          string
	Published    string
	To           []string
	Cc           []string

	// IRIOnly is true when the node was a JSON string.
	IRIOnly bool

	// Raw holds the node exactly as received.
	Raw json.RawMessage
}

// NewIRI returns a node referencing id without embedding it.
func NewIRI(id string) *Activity {
	return &Activity{ID: id, IRIOnly: true}
}

// Parse decodes an inbound activity document. The document must be a JSON
// object with a type.
func Parse(data []byte) (*Activity, error) {
	var a Activity
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if a.IRIOnly {
		return nil, fmt.Errorf("%w: activity must be an object", ErrMalformed)
	}

	if a.Type == "" {
		return nil, fmt.Errorf("%w: activity has no type", ErrMalformed)
	}

	return &a, nil
}

// ObjectID returns the id of the activity's object, or "" when absent.
func (a *Activity) ObjectID() string {
	if a == nil || a.Object == nil {
		return ""
	}

	return a.Object.ID
}

// Embedded reports whether a is a full object rather than an IRI.
func (a *Activity) Embedded() bool {
	return a != nil && !a.IRIOnly
}

type wireActivity struct {
	Context      any             `json:"@context,omitempty"`
	ID           string          `json:"id,omitempty"`
	Type         string          `json:"type,omitempty"`
	Actor        json.RawMessage `json:"actor,omitempty"`
	Object       *Activity       `json:"object,omitempty"`
	Target       json.RawMessage `json:"target,omitempty"`
	AttributedTo json.RawMessage `json:"attributedTo,omitempty"`
	Name         string          `json:"name,omitempty"`
	Summary      string          `json:"summary,omitempty"`
	Content      string          `json:"content,omitempty"`
	InReplyTo    json.RawMessage `json:"inReplyTo,omitempty"`
	URL          json.RawMessage `json:"url,omitempty"`
	Published    string          `json:"published,omitempty"`
	To           json.RawMessage `json:"to,omitempty"`
	Cc           json.RawMessage `json:"cc,omitempty"`
}

func (a *Activity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	if len(data) > 0 && data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}

		*a = Activity{ID: id, IRIOnly: true, Raw: append(json.RawMessage(nil), data...)}

		return nil
	}

	var w wireActivity
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*a = Activity{
		Context:   w.Context,
		ID:        w.ID,
		Type:      w.Type,
		Object:    w.Object,
		Name:      w.Name,
		Summary:   w.Summary,
		Content:   w.Content,
		Published: w.Published,
		Raw:       append(json.RawMessage(nil), data...),
	}

	var err error

	fields := []struct {
		raw json.RawMessage
		dst *string
	}{
		{w.Actor, &a.Actor},
		{w.Target, &a.Target},
		{w.AttributedTo, &a.AttributedTo},
		{w.InReplyTo, &a.InReplyTo},
		{w.URL, &a.URL},
	}

	for _, f := range fields {
		if *f.dst, err = iri(f.raw); err != nil {
			return err
		}
	}

	if a.To, err = iris(w.To); err != nil {
		return err
	}

	if a.Cc, err = iris(w.Cc); err != nil {
		return err
	}

	return nil
}

func (a Activity) MarshalJSON() ([]byte, error) {
	if a.IRIOnly {
		return json.Marshal(a.ID)
	}

	w := wireActivity{
		Context:      a.Context,
		ID:           a.ID,
		Type:         a.Type,
		Object:       a.Object,
		Name:         a.Name,
		Summary:      a.Summary,
		Content:      a.Content,
		Published:    a.Published,
		Actor:        rawString(a.Actor),
		Target:       rawString(a.Target),
		AttributedTo: rawString(a.AttributedTo),
		InReplyTo:    rawString(a.InReplyTo),
		URL:          rawString(a.URL),
	}

	if len(a.To) > 0 {
		w.To, _ = json.Marshal(a.To)
	}

	if len(a.Cc) > 0 {
		w.Cc, _ = json.Marshal(a.Cc)
	}

	return json.Marshal(w)
}

// iri reads a property that is either an IRI string, an object with an
// id, or a link object with an href. Arrays yield their first entry.
func iri(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}

	switch raw[0] {
	case '"':
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err

	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return "", err
		}

		if len(items) == 0 {
			return "", nil
		}

		return iri(items[0])

	default:
		var ref struct {
			ID   string `json:"id"`
			Href string `json:"href"`
		}
		if err := json.Unmarshal(raw, &ref); err != nil {
			return "", err
		}

		if ref.ID != "" {
			return ref.ID, nil
		}

		return ref.Href, nil
	}
}

// iris reads a property holding one IRI or a list of them.
func iris(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	if raw[0] != '[' {
		s, err := iri(raw)
		if err != nil || s == "" {
			return nil, err
		}

		return []string{s}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		s, err := iri(item)
		if err != nil {
			return nil, err
		}

		if s != "" {
			out = append(out, s)
		}
	}

	return out, nil
}

func rawString(s string) json.RawMessage {
	if s == "" {
		return nil
	}

	data, _ := json.Marshal(s)

	return data
}
