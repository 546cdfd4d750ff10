// Package resolver maps remote actor identities to their inbox and public
// key material.
//
// Actor documents are fetched from the actor id, with any fragment of a
// key id removed, and cached in a size-bounded LRU whose entries expire
// after a TTL. 404 and 410 answers are remembered for a shorter negative
// TTL. Concurrent lookups of the same uncached actor share a single fetch.
//
//	r := resolver.New(resolver.Config{CacheSize: 4096, CacheTTL: time.Hour})
//
//	key, err := r.ResolveKey(ctx, "https://remote.example/users/bob#main-key")
//	actor, err := r.Discover(ctx, "bob@remote.example")
//
// Fetch failures are returned as *FetchError wrapping ErrNotFound, ErrGone
// or ErrUnexpectedStatus. Callers verifying a Delete from an actor that no
// longer exists can test for the gone case with IsGone.
package resolver
