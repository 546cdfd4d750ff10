package activity

import "errors"

// Rejections returned by Dispatch. None of them leave a partial effect.
var (
	// ErrMalformed is returned for unparseable activities or activities
	// missing a property their type requires.
	ErrMalformed = errors.New("activity: malformed activity")

	// ErrUnsupportedType is returned for activity types the dispatcher
	// does not handle.
	ErrUnsupportedType = errors.New("activity: unsupported activity type")

	// ErrObjectMismatch is returned when the object of an activity does
	// not name the local actor it claims to, or claims a local id it
	// must not.
	ErrObjectMismatch = errors.New("activity: object does not match local actor")

	// ErrActorMismatch is returned when an activity names an actor or
	// author other than the authenticated sender.
	ErrActorMismatch = errors.New("activity: actor does not match authenticated identity")

	// ErrNoSuchContent is returned when a reaction targets content that is
	// not stored.
	ErrNoSuchContent = errors.New("activity: no such content")

	// ErrNoSuchRelationship is returned when an Accept or Reject has no
	// outstanding follow to apply to.
	ErrNoSuchRelationship = errors.New("activity: no such relationship")

	// ErrUnknownActor is returned when the recipient is not a local actor.
	ErrUnknownActor = errors.New("activity: unknown local actor")

	// ErrUnauthenticated is returned when Dispatch is called without an
	// authenticated identity.
	ErrUnauthenticated = errors.New("activity: missing authenticated identity")
)

var (
	// ErrNotFound is returned by a Store when a record does not exist.
	ErrNotFound = errors.New("activity: record not found")

	// ErrInvalidConfig is returned by NewDispatcher for an unusable Config.
	ErrInvalidConfig = errors.New("activity: invalid dispatcher config")
)
