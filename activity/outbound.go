package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/staythepath/threadtalk/httpsig"
	"github.com/staythepath/threadtalk/resolver"
)

// Follow sends a Follow from the local actor to target, an actor id or a
// user@domain handle. The relationship is stored as pending before the
// Follow is delivered and is confirmed by the remote Accept. Following an
// actor again re-sends the stored Follow.
func (d *Dispatcher) Follow(ctx context.Context, local, target string) error {
	actor, err := d.store.LocalActor(ctx, local)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownActor, local)
		}

		return err
	}

	remote, err := d.lookup(ctx, target)
	if err != nil {
		return err
	}

	rel := Relationship{
		Follower:   actor.ID,
		Followee:   remote.ID,
		ActivityID: d.activityID(),
		CreatedAt:  d.now(),
	}

	created, err := d.store.PutRelationship(ctx, rel)
	if err != nil {
		return err
	}

	if !created {
		if rel, err = d.store.Relationship(ctx, actor.ID, remote.ID); err != nil {
			return err
		}
	}

	follow := &Activity{
		Context: ContextActivityStreams,
		ID:      rel.ActivityID,
		Type:    TypeFollow,
		Actor:   actor.ID,
		Object:  NewIRI(remote.ID),
		To:      []string{remote.ID},
	}

	return d.deliver(ctx, actor, remote.Inbox, follow)
}

func (d *Dispatcher) lookup(ctx context.Context, target string) (resolver.Actor, error) {
	if strings.Contains(target, "://") {
		return d.resolver.ResolveActor(ctx, target)
	}

	return d.resolver.Discover(ctx, target)
}

// deliverTo resolves the inbox of recipient and delivers a to it.
func (d *Dispatcher) deliverTo(ctx context.Context, local LocalActor, recipient string, a *Activity) error {
	remote, err := d.resolver.ResolveActor(ctx, recipient)
	if err != nil {
		d.logger.Warn("reply not delivered", "type", a.Type, "to", recipient, "error", err)
		return err
	}

	return d.deliver(ctx, local, remote.Inbox, a)
}

// deliver signs a as local and posts it to inbox within the delivery
// timeout. Store state is never locked here.
func (d *Dispatcher) deliver(ctx context.Context, local LocalActor, inbox string, a *Activity) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}

	signer, err := httpsig.NewSignerFromPEM(local.KeyID, local.PrivateKeyPEM)
	if err != nil {
		return fmt.Errorf("activity: signing key of %s: %w", local.ID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.deliverer.Deliver(ctx, inbox, signer, payload); err != nil {
		d.logger.Warn("delivery failed", "type", a.Type, "id", a.ID, "inbox", inbox, "error", err)
		return err
	}

	d.logger.Debug("delivered", "type", a.Type, "id", a.ID, "inbox", inbox)

	return nil
}
