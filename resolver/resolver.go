package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/staythepath/threadtalk/httpsig"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultCacheSize        = 1024
	DefaultCacheTTL         = time.Hour
	DefaultNegativeTTL      = 5 * time.Minute
	DefaultFetchTimeout     = 10 * time.Second
	DefaultMaxDocumentBytes = 1 << 20
)

// HTTPClient sends HTTP requests. *http.Client satisfies it.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config configures a Resolver.
type Config struct {
	// Client performs fetches. Defaults to an *http.Client with
	// FetchTimeout.
	Client HTTPClient

	// CacheSize bounds the number of cached actors.
	CacheSize int

	// CacheTTL is how long a fetched actor is served from cache.
	CacheTTL time.Duration

	// NegativeTTL is how long a 404 or 410 answer is remembered.
	NegativeTTL time.Duration

	// FetchTimeout bounds each fetch when the caller's context has no
	// earlier deadline.
	FetchTimeout time.Duration

	// MaxDocumentBytes caps the size of a fetched document.
	MaxDocumentBytes int64

	// UserAgent is sent with every fetch when set.
	UserAgent string

	// WebfingerScheme is the scheme used for discovery. Defaults to https.
	WebfingerScheme string

	Logger *slog.Logger
}

// Resolver maps actor ids, key ids and handles to actors. It is safe for
// concurrent use.
type Resolver struct {
	client       HTTPClient
	fetchTimeout time.Duration
	maxBytes     int64
	userAgent    string
	scheme       string
	logger       *slog.Logger

	actors   *expirable.LRU[string, Actor]
	missing  *expirable.LRU[string, error]
	handles  *expirable.LRU[string, string]
	inflight singleflight.Group
}

// New creates a Resolver, applying defaults for zero fields of cfg.
func New(cfg Config) *Resolver {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}

	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}

	if cfg.NegativeTTL <= 0 {
		cfg.NegativeTTL = DefaultNegativeTTL
	}

	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}

	if cfg.MaxDocumentBytes <= 0 {
		cfg.MaxDocumentBytes = DefaultMaxDocumentBytes
	}

	if cfg.WebfingerScheme == "" {
		cfg.WebfingerScheme = "https"
	}

	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: cfg.FetchTimeout}
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Resolver{
		client:       cfg.Client,
		fetchTimeout: cfg.FetchTimeout,
		maxBytes:     cfg.MaxDocumentBytes,
		userAgent:    cfg.UserAgent,
		scheme:       cfg.WebfingerScheme,
		logger:       cfg.Logger.With("component", "resolver"),
		actors:       expirable.NewLRU[string, Actor](cfg.CacheSize, nil, cfg.CacheTTL),
		missing:      expirable.NewLRU[string, error](cfg.CacheSize, nil, cfg.NegativeTTL),
		handles:      expirable.NewLRU[string, string](cfg.CacheSize, nil, cfg.CacheTTL),
	}
}

// ResolveActor returns the actor published at id. A fragment on id is
// ignored. Cached actors are returned without a network call; concurrent
// calls for the same uncached id share one fetch.
func (r *Resolver) ResolveActor(ctx context.Context, id string) (Actor, error) {
	key, err := stripFragment(id)
	if err != nil {
		return Actor{}, err
	}

	if actor, ok := r.actors.Get(key); ok {
		return actor, nil
	}

	if err, ok := r.missing.Get(key); ok {
		return Actor{}, err
	}

	v, err, _ := r.inflight.Do("actor:"+key, func() (any, error) {
		return r.fetchActor(ctx, key)
	})
	if err != nil {
		return Actor{}, err
	}

	return v.(Actor), nil
}

// ResolveKey returns the public key published under keyID by the actor
// that owns it. The owner is found by removing the fragment from keyID.
func (r *Resolver) ResolveKey(ctx context.Context, keyID string) (httpsig.PublicKey, error) {
	actor, err := r.ResolveActor(ctx, keyID)
	if err != nil {
		return httpsig.PublicKey{}, err
	}

	key, ok := actor.KeyByID(keyID)
	if !ok {
		return httpsig.PublicKey{}, fmt.Errorf("%w: %s does not publish %s", ErrKeyNotFound, actor.ID, keyID)
	}

	return key, nil
}

// KeyResolver adapts ResolveKey to httpsig.KeyResolver.
func (r *Resolver) KeyResolver() httpsig.KeyResolver {
	return func(req *http.Request, keyID string) (httpsig.PublicKey, error) {
		return r.ResolveKey(req.Context(), keyID)
	}
}

// Invalidate drops any cached result for the actor owning id.
func (r *Resolver) Invalidate(id string) {
	key, err := stripFragment(id)
	if err != nil {
		return
	}

	r.actors.Remove(key)
	r.missing.Remove(key)
}

func (r *Resolver) fetchActor(ctx context.Context, id string) (Actor, error) {
	var doc ActorDocument
	if err := r.getJSON(ctx, id, acceptActivity, &doc); err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrGone) {
			r.missing.Add(id, err)
		}

		r.logger.Warn("actor fetch failed", "id", id, "error", err)

		return Actor{}, err
	}

	actor, err := actorFromDocument(id, doc)
	if err != nil {
		r.logger.Warn("actor document rejected", "id", id, "error", err)
		return Actor{}, err
	}

	r.actors.Add(id, actor)
	r.logger.Debug("actor resolved", "id", id, "key_id", actor.Key.ID)

	return actor, nil
}

// getJSON fetches target and decodes the response body into v.
func (r *Resolver) getJSON(ctx context.Context, target, accept string, v any) error {
	ctx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return &FetchError{URL: target, Err: err}
	}

	req.Header.Set("Accept", accept)
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return &FetchError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &FetchError{URL: target, StatusCode: resp.StatusCode, Err: ErrNotFound}
	case resp.StatusCode == http.StatusGone:
		return &FetchError{URL: target, StatusCode: resp.StatusCode, Err: ErrGone}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &FetchError{URL: target, StatusCode: resp.StatusCode, Err: ErrUnexpectedStatus}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes+1))
	if err != nil {
		return &FetchError{URL: target, StatusCode: resp.StatusCode, Err: err}
	}

	if int64(len(body)) > r.maxBytes {
		return fmt.Errorf("%w: %s exceeds %d bytes", ErrInvalidDocument, target, r.maxBytes)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidDocument, target, err)
	}

	return nil
}
