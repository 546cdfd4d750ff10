// Package memstore is an in-memory activity.Store.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/staythepath/threadtalk/activity"
)

type pair struct {
	follower, followee string
}

type reactionKey struct {
	contentID string
	actor     string
	kind      activity.ReactionKind
}

// Store keeps all records in maps guarded by one RWMutex. Returned
// records are copies.
type Store struct {
	mu sync.RWMutex

	actors        map[string]activity.LocalActor
	relationships map[pair]activity.Relationship
	content       map[string]activity.Content
	reactions     map[reactionKey]activity.Reaction
}

var _ activity.Store = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{
		actors:        make(map[string]activity.LocalActor),
		relationships: make(map[pair]activity.Relationship),
		content:       make(map[string]activity.Content),
		reactions:     make(map[reactionKey]activity.Reaction),
	}
}

// PutLocalActor adds or replaces a local actor.
func (s *Store) PutLocalActor(_ context.Context, a activity.LocalActor) error {
	if a.ID == "" || a.Username == "" {
		return fmt.Errorf("memstore: local actor needs an id and a username")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.actors {
		if id != a.ID && strings.EqualFold(existing.Username, a.Username) {
			return fmt.Errorf("memstore: username %q already taken", a.Username)
		}
	}

	s.actors[a.ID] = a

	return nil
}

func (s *Store) LocalActor(_ context.Context, id string) (activity.LocalActor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.actors[id]
	if !ok {
		return activity.LocalActor{}, activity.ErrNotFound
	}

	return a, nil
}

func (s *Store) LocalActorByUsername(_ context.Context, username string) (activity.LocalActor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.actors {
		if strings.EqualFold(a.Username, username) {
			return a, nil
		}
	}

	return activity.LocalActor{}, activity.ErrNotFound
}

func (s *Store) PutRelationship(_ context.Context, rel activity.Relationship) (bool, error) {
	key := pair{rel.Follower, rel.Followee}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.relationships[key]; ok {
		return false, nil
	}

	s.relationships[key] = rel

	return true, nil
}

func (s *Store) Relationship(_ context.Context, follower, followee string) (activity.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rel, ok := s.relationships[pair{follower, followee}]
	if !ok {
		return activity.Relationship{}, activity.ErrNotFound
	}

	return rel, nil
}

func (s *Store) AcceptRelationship(_ context.Context, follower, followee string) (bool, error) {
	key := pair{follower, followee}

	s.mu.Lock()
	defer s.mu.Unlock()

	rel, ok := s.relationships[key]
	if !ok {
		return false, activity.ErrNotFound
	}

	if rel.Accepted {
		return false, nil
	}

	rel.Accepted = true
	s.relationships[key] = rel

	return true, nil
}

func (s *Store) SetRelationshipActivity(_ context.Context, follower, followee, activityID string) (bool, error) {
	key := pair{follower, followee}

	s.mu.Lock()
	defer s.mu.Unlock()

	rel, ok := s.relationships[key]
	if !ok {
		return false, activity.ErrNotFound
	}

	if rel.ActivityID == activityID {
		return false, nil
	}

	rel.ActivityID = activityID
	s.relationships[key] = rel

	return true, nil
}

func (s *Store) DeleteRelationship(_ context.Context, follower, followee string) (bool, error) {
	key := pair{follower, followee}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.relationships[key]; !ok {
		return false, nil
	}

	delete(s.relationships, key)

	return true, nil
}

// Followers returns the accepted followers of followee ordered by follower.
func (s *Store) Followers(_ context.Context, followee string) ([]activity.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []activity.Relationship
	for key, rel := range s.relationships {
		if key.followee == followee && rel.Accepted {
			out = append(out, rel)
		}
	}

	slices.SortFunc(out, func(a, b activity.Relationship) int {
		return strings.Compare(a.Follower, b.Follower)
	})

	return out, nil
}

func (s *Store) Content(_ context.Context, id string) (activity.Content, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.content[id]
	if !ok {
		return activity.Content{}, activity.ErrNotFound
	}

	return cloneContent(c), nil
}

func (s *Store) UpsertContent(_ context.Context, c activity.Content) (bool, error) {
	if c.ID == "" {
		return false, fmt.Errorf("memstore: content needs an id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.content[c.ID]
	s.content[c.ID] = cloneContent(c)

	return !exists, nil
}

func (s *Store) ReactionByActivity(_ context.Context, actor, activityID string) (activity.Reaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.reactions {
		if r.Actor == actor && r.ActivityID == activityID {
			return r, nil
		}
	}

	return activity.Reaction{}, activity.ErrNotFound
}

func (s *Store) AddReaction(_ context.Context, r activity.Reaction) (bool, error) {
	key := reactionKey{r.ContentID, r.Actor, r.Kind}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.reactions[key]
	s.reactions[key] = r

	return !exists, nil
}

func (s *Store) RemoveReaction(_ context.Context, r activity.Reaction) (bool, error) {
	key := reactionKey{r.ContentID, r.Actor, r.Kind}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reactions[key]; !ok {
		return false, nil
	}

	delete(s.reactions, key)

	return true, nil
}

// Reactions returns the kind set of contentID ordered by actor.
func (s *Store) Reactions(_ context.Context, contentID string, kind activity.ReactionKind) ([]activity.Reaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []activity.Reaction
	for key, r := range s.reactions {
		if key.contentID == contentID && key.kind == kind {
			out = append(out, r)
		}
	}

	slices.SortFunc(out, func(a, b activity.Reaction) int {
		return strings.Compare(a.Actor, b.Actor)
	})

	return out, nil
}

func cloneContent(c activity.Content) activity.Content {
	c.To = slices.Clone(c.To)
	c.Cc = slices.Clone(c.Cc)
	c.Raw = slices.Clone(c.Raw)

	return c
}
