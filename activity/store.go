package activity

import (
	"context"
	"encoding/json"
	"time"
)

// LocalActor is an actor hosted by this server.
type LocalActor struct {
	ID        string
	Username  string
	Name      string
	Summary   string
	Inbox     string
	Outbox    string
	Followers string
	Following string

	// KeyID is the id of the actor's signing key, "<ID>#main-key".
	KeyID string

	PrivateKeyPEM []byte
	PublicKeyPEM  []byte
}

// Relationship records that Follower follows Followee. ActivityID is the
// id of the Follow that created it.
type Relationship struct {
	Follower   string
	Followee   string
	ActivityID string
	Accepted   bool
	CreatedAt  time.Time
}

// Content is a stored object: a local post or a remote copy.
type Content struct {
	ID           string
	Type         string
	AttributedTo string
	Content      string
	Summary      string
	InReplyTo    string
	URL          string
	Published    string
	To           []string
	Cc           []string
	Raw          json.RawMessage
	UpdatedAt    time.Time
}

// ReactionKind distinguishes the reaction sets of a content record.
type ReactionKind string

const (
	ReactionLike     ReactionKind = "like"
	ReactionAnnounce ReactionKind = "announce"
)

// Reaction is one member of a content record's like or boost set. The set
// is keyed by (ContentID, Actor, Kind).
type Reaction struct {
	ContentID  string
	Actor      string
	Kind       ReactionKind
	ActivityID string
}

// Store is the persistence collaborator of the Dispatcher. Every mutation
// is keyed by its pair and must be atomic for that key. Lookups return
// ErrNotFound when the record does not exist.
type Store interface {
	LocalActor(ctx context.Context, id string) (LocalActor, error)
	LocalActorByUsername(ctx context.Context, username string) (LocalActor, error)

	// PutRelationship stores rel unless a relationship for the same
	// (Follower, Followee) pair exists. It reports whether it was created.
	PutRelationship(ctx context.Context, rel Relationship) (bool, error)
	Relationship(ctx context.Context, follower, followee string) (Relationship, error)
	// AcceptRelationship marks the pair accepted and reports whether it
	// changed.
	AcceptRelationship(ctx context.Context, follower, followee string) (bool, error)
	// SetRelationshipActivity records activityID as the Follow behind the
	// pair and reports whether it changed. A missing pair is ErrNotFound.
	SetRelationshipActivity(ctx context.Context, follower, followee, activityID string) (bool, error)
	// DeleteRelationship removes the pair and reports whether it existed.
	DeleteRelationship(ctx context.Context, follower, followee string) (bool, error)
	Followers(ctx context.Context, followee string) ([]Relationship, error)

	Content(ctx context.Context, id string) (Content, error)
	// UpsertContent stores c keyed by its ID and reports whether it was
	// created.
	UpsertContent(ctx context.Context, c Content) (bool, error)

	// AddReaction adds r to its set and reports whether it was absent. A
	// repeat keeps one member and records the newer ActivityID.
	AddReaction(ctx context.Context, r Reaction) (bool, error)
	// RemoveReaction removes r from its set and reports whether it was
	// present.
	RemoveReaction(ctx context.Context, r Reaction) (bool, error)
	Reactions(ctx context.Context, contentID string, kind ReactionKind) ([]Reaction, error)
	// ReactionByActivity returns the reaction actor added with the activity
	// activityID.
	ReactionByActivity(ctx context.Context, actor, activityID string) (Reaction, error)
}
