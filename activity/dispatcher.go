package activity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/staythepath/threadtalk/httpsig"
	"github.com/staythepath/threadtalk/resolver"
)

// DefaultDeliveryTimeout bounds a reply delivery when Config leaves it zero.
const DefaultDeliveryTimeout = 10 * time.Second

// Resolver finds remote actors. *resolver.Resolver satisfies it.
type Resolver interface {
	ResolveActor(ctx context.Context, id string) (resolver.Actor, error)
	Discover(ctx context.Context, handle string) (resolver.Actor, error)
}

// Deliverer posts a signed activity to a remote inbox.
// *delivery.Client satisfies it.
type Deliverer interface {
	Deliver(ctx context.Context, inbox string, signer httpsig.Signer, payload []byte) error
}

// Config configures a Dispatcher.
type Config struct {
	Store     Store
	Resolver  Resolver
	Deliverer Deliverer

	// BaseURL is the public origin of this server, e.g.
	// "https://local.example". Ids on its host are local.
	BaseURL string

	DeliveryTimeout time.Duration

	// NewID returns a fresh id suffix for emitted activities. Defaults to
	// uuid.NewString.
	NewID func() string

	Now    func() time.Time
	Logger *slog.Logger
}

// Result describes an applied activity.
type Result struct {
	Type string

	// Changed is false when the activity was a repeat or a no-op.
	Changed bool

	// Reply is the activity sent back to the sender, if any.
	Reply *Activity

	// DeliveryErr records a failed reply delivery. The effect of the
	// activity stands regardless.
	DeliveryErr error
}

// Dispatcher applies verified inbound activities to local state.
type Dispatcher struct {
	store     Store
	resolver  Resolver
	deliverer Deliverer
	base      *url.URL
	timeout   time.Duration
	newID     func() string
	now       func() time.Time
	logger    *slog.Logger
}

// NewDispatcher creates a Dispatcher. Store, Resolver, Deliverer and an
// absolute BaseURL are required.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.Store == nil || cfg.Resolver == nil || cfg.Deliverer == nil {
		return nil, fmt.Errorf("%w: store, resolver and deliverer are required", ErrInvalidConfig)
	}

	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: base url %q", ErrInvalidConfig, cfg.BaseURL)
	}

	d := &Dispatcher{
		store:     cfg.Store,
		resolver:  cfg.Resolver,
		deliverer: cfg.Deliverer,
		base:      base,
		timeout:   cfg.DeliveryTimeout,
		newID:     cfg.NewID,
		now:       cfg.Now,
		logger:    cfg.Logger,
	}

	if d.timeout <= 0 {
		d.timeout = DefaultDeliveryTimeout
	}

	if d.newID == nil {
		d.newID = uuid.NewString
	}

	if d.now == nil {
		d.now = time.Now
	}

	if d.logger == nil {
		d.logger = slog.Default()
	}

	d.logger = d.logger.With("component", "dispatcher")

	return d, nil
}

// Dispatch applies a to the state of the local actor recipient on behalf of
// identity, the sender authenticated by signature verification. The
// activity's own actor property is never trusted over identity.
func (d *Dispatcher) Dispatch(ctx context.Context, recipient string, a *Activity, identity string) (Result, error) {
	if identity == "" {
		return Result{}, ErrUnauthenticated
	}

	if a == nil || !a.Embedded() || a.Type == "" {
		return Result{}, fmt.Errorf("%w: activity has no type", ErrMalformed)
	}

	if a.Actor != "" && a.Actor != identity {
		return Result{}, fmt.Errorf("%w: actor %q, signed by %q", ErrActorMismatch, a.Actor, identity)
	}

	local, err := d.store.LocalActor(ctx, recipient)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Result{}, fmt.Errorf("%w: %s", ErrUnknownActor, recipient)
		}

		return Result{}, err
	}

	var res Result

	switch a.Type {
	case TypeFollow:
		res, err = d.follow(ctx, local, a, identity)
	case TypeAccept:
		res, err = d.accept(ctx, local, a, identity)
	case TypeReject:
		res, err = d.reject(ctx, local, a, identity)
	case TypeUndo:
		res, err = d.undo(ctx, local, a, identity)
	case TypeLike:
		res, err = d.react(ctx, a, identity, ReactionLike)
	case TypeAnnounce:
		res, err = d.react(ctx, a, identity, ReactionAnnounce)
	case TypeCreate:
		res, err = d.create(ctx, a, identity)
	case TypeDelete:
		res = Result{}
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedType, a.Type)
	}

	if err != nil {
		d.logger.Info("activity rejected",
			"type", a.Type, "id", a.ID, "actor", identity, "recipient", local.ID, "error", err)

		return Result{}, err
	}

	res.Type = a.Type

	d.logger.Info("activity applied",
		"type", a.Type, "id", a.ID, "actor", identity, "recipient", local.ID, "changed", res.Changed)

	return res, nil
}

// follow records identity as a follower of local and replies with Accept.
func (d *Dispatcher) follow(ctx context.Context, local LocalActor, a *Activity, identity string) (Result, error) {
	if a.ID == "" || a.Object == nil {
		return Result{}, fmt.Errorf("%w: follow needs an id and an object", ErrMalformed)
	}

	if a.Object.ID != local.ID {
		return Result{}, fmt.Errorf("%w: follow of %q delivered to %s", ErrObjectMismatch, a.Object.ID, local.ID)
	}

	created, err := d.store.PutRelationship(ctx, Relationship{
		Follower:   identity,
		Followee:   local.ID,
		ActivityID: a.ID,
		Accepted:   true,
		CreatedAt:  d.now(),
	})
	if err != nil {
		return Result{}, err
	}

	if !created {
		// A repeat Follow under a new id becomes the one an Undo names.
		if _, err := d.store.SetRelationshipActivity(ctx, identity, local.ID, a.ID); err != nil {
			return Result{}, err
		}
	}

	accept := &Activity{
		Context: ContextActivityStreams,
		ID:      d.activityID(),
		Type:    TypeAccept,
		Actor:   local.ID,
		Object: &Activity{
			ID:     a.ID,
			Type:   TypeFollow,
			Actor:  identity,
			Object: NewIRI(local.ID),
		},
		To: []string{identity},
	}

	res := Result{Changed: created, Reply: accept}
	res.DeliveryErr = d.deliverTo(ctx, local, identity, accept)

	return res, nil
}

// accept confirms a follow that local sent to identity.
func (d *Dispatcher) accept(ctx context.Context, local LocalActor, a *Activity, identity string) (Result, error) {
	rel, err := d.outstandingFollow(ctx, local, a, identity)
	if err != nil {
		return Result{}, err
	}

	changed, err := d.store.AcceptRelationship(ctx, rel.Follower, rel.Followee)
	if err != nil {
		return Result{}, err
	}

	return Result{Changed: changed}, nil
}

// reject drops a follow that local sent to identity.
func (d *Dispatcher) reject(ctx context.Context, local LocalActor, a *Activity, identity string) (Result, error) {
	rel, err := d.outstandingFollow(ctx, local, a, identity)
	if err != nil {
		return Result{}, err
	}

	removed, err := d.store.DeleteRelationship(ctx, rel.Follower, rel.Followee)
	if err != nil {
		return Result{}, err
	}

	return Result{Changed: removed}, nil
}

// outstandingFollow finds the relationship local -> identity that the
// object of an Accept or Reject refers to. The object is either the
// embedded Follow or its id.
func (d *Dispatcher) outstandingFollow(ctx context.Context, local LocalActor, a *Activity, identity string) (Relationship, error) {
	obj := a.Object
	if obj == nil || obj.ID == "" && obj.IRIOnly {
		return Relationship{}, fmt.Errorf("%w: %s needs an object", ErrMalformed, a.Type)
	}

	if obj.Embedded() {
		if obj.Type != TypeFollow {
			return Relationship{}, fmt.Errorf("%w: %s of %q", ErrUnsupportedType, a.Type, obj.Type)
		}

		if obj.Actor != local.ID {
			return Relationship{}, fmt.Errorf("%w: follow by %q delivered to %s", ErrObjectMismatch, obj.Actor, local.ID)
		}

		if target := obj.ObjectID(); target != "" && target != identity {
			return Relationship{}, fmt.Errorf("%w: follow of %q answered by %q", ErrActorMismatch, target, identity)
		}
	}

	rel, err := d.store.Relationship(ctx, local.ID, identity)
	if errors.Is(err, ErrNotFound) {
		return Relationship{}, fmt.Errorf("%w: %s -> %s", ErrNoSuchRelationship, local.ID, identity)
	}
	if err != nil {
		return Relationship{}, err
	}

	if obj.ID != "" && rel.ActivityID != "" && obj.ID != rel.ActivityID {
		return Relationship{}, fmt.Errorf("%w: follow %q is not outstanding", ErrNoSuchRelationship, obj.ID)
	}

	return rel, nil
}

// undo reverses a Follow, Like or Announce previously sent by identity.
func (d *Dispatcher) undo(ctx context.Context, local LocalActor, a *Activity, identity string) (Result, error) {
	obj := a.Object
	if obj == nil {
		return Result{}, fmt.Errorf("%w: undo needs an object", ErrMalformed)
	}

	if obj.IRIOnly {
		return d.undoByID(ctx, local, obj.ID, identity)
	}

	if obj.Actor != "" && obj.Actor != identity {
		return Result{}, fmt.Errorf("%w: undo of activity by %q", ErrActorMismatch, obj.Actor)
	}

	switch obj.Type {
	case TypeFollow:
		if obj.Object == nil {
			return Result{}, fmt.Errorf("%w: undone follow has no object", ErrMalformed)
		}

		if obj.Object.ID != local.ID {
			return Result{}, fmt.Errorf("%w: undo of follow of %q delivered to %s", ErrObjectMismatch, obj.Object.ID, local.ID)
		}

		removed, err := d.store.DeleteRelationship(ctx, identity, local.ID)
		if err != nil {
			return Result{}, err
		}

		return Result{Changed: removed}, nil

	case TypeLike:
		return d.unreact(ctx, obj, identity, ReactionLike)

	case TypeAnnounce:
		return d.unreact(ctx, obj, identity, ReactionAnnounce)

	default:
		return Result{}, fmt.Errorf("%w: undo of %q", ErrUnsupportedType, obj.Type)
	}
}

// undoByID handles an Undo whose object is only the id of the retracted
// activity: the sender's Follow of local, or one of the sender's Likes or
// Announces. An id that matches neither is a no-op.
func (d *Dispatcher) undoByID(ctx context.Context, local LocalActor, activityID, identity string) (Result, error) {
	if activityID == "" {
		return Result{}, fmt.Errorf("%w: undo needs an object", ErrMalformed)
	}

	rel, err := d.store.Relationship(ctx, identity, local.ID)
	switch {
	case err == nil && rel.ActivityID == activityID:
		removed, err := d.store.DeleteRelationship(ctx, identity, local.ID)
		if err != nil {
			return Result{}, err
		}

		return Result{Changed: removed}, nil
	case err != nil && !errors.Is(err, ErrNotFound):
		return Result{}, err
	}

	reaction, err := d.store.ReactionByActivity(ctx, identity, activityID)
	if errors.Is(err, ErrNotFound) {
		return Result{}, nil
	}
	if err != nil {
		return Result{}, err
	}

	removed, err := d.store.RemoveReaction(ctx, reaction)
	if err != nil {
		return Result{}, err
	}

	return Result{Changed: removed}, nil
}

func (d *Dispatcher) react(ctx context.Context, a *Activity, identity string, kind ReactionKind) (Result, error) {
	contentID := a.ObjectID()
	if contentID == "" {
		return Result{}, fmt.Errorf("%w: %s needs an object", ErrMalformed, a.Type)
	}

	if err := d.contentExists(ctx, contentID); err != nil {
		return Result{}, err
	}

	added, err := d.store.AddReaction(ctx, Reaction{
		ContentID:  contentID,
		Actor:      identity,
		Kind:       kind,
		ActivityID: a.ID,
	})
	if err != nil {
		return Result{}, err
	}

	return Result{Changed: added}, nil
}

func (d *Dispatcher) unreact(ctx context.Context, reaction *Activity, identity string, kind ReactionKind) (Result, error) {
	contentID := reaction.ObjectID()
	if contentID == "" {
		return Result{}, fmt.Errorf("%w: undone %s has no object", ErrMalformed, reaction.Type)
	}

	if err := d.contentExists(ctx, contentID); err != nil {
		return Result{}, err
	}

	removed, err := d.store.RemoveReaction(ctx, Reaction{ContentID: contentID, Actor: identity, Kind: kind})
	if err != nil {
		return Result{}, err
	}

	return Result{Changed: removed}, nil
}

func (d *Dispatcher) contentExists(ctx context.Context, id string) error {
	_, err := d.store.Content(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNoSuchContent, id)
	}

	return err
}

// create stores a remote copy of the created object.
func (d *Dispatcher) create(ctx context.Context, a *Activity, identity string) (Result, error) {
	obj := a.Object
	if !obj.Embedded() || obj.ID == "" {
		return Result{}, fmt.Errorf("%w: create needs an embedded object with an id", ErrMalformed)
	}

	if d.IsLocal(obj.ID) {
		return Result{}, fmt.Errorf("%w: create of local object %q", ErrObjectMismatch, obj.ID)
	}

	if obj.AttributedTo != "" && obj.AttributedTo != identity {
		return Result{}, fmt.Errorf("%w: object attributed to %q", ErrActorMismatch, obj.AttributedTo)
	}

	existing, err := d.store.Content(ctx, obj.ID)
	switch {
	case err == nil && existing.AttributedTo != identity:
		return Result{}, fmt.Errorf("%w: %s belongs to %q", ErrActorMismatch, obj.ID, existing.AttributedTo)
	case err != nil && !errors.Is(err, ErrNotFound):
		return Result{}, err
	}

	created, err := d.store.UpsertContent(ctx, Content{
		ID:           obj.ID,
		Type:         obj.Type,
		AttributedTo: identity,
		Content:      obj.Content,
		Summary:      obj.Summary,
		InReplyTo:    obj.InReplyTo,
		URL:          obj.URL,
		Published:    obj.Published,
		To:           obj.To,
		Cc:           obj.Cc,
		Raw:          obj.Raw,
		UpdatedAt:    d.now(),
	})
	if err != nil {
		return Result{}, err
	}

	return Result{Changed: created}, nil
}

// IsLocal reports whether id is on this server's host.
func (d *Dispatcher) IsLocal(id string) bool {
	u, err := url.Parse(id)
	if err != nil {
		return false
	}

	return strings.EqualFold(u.Host, d.base.Host)
}

func (d *Dispatcher) activityID() string {
	return d.base.String() + "/activities/" + d.newID()
}
