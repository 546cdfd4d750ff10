package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/staythepath/threadtalk/activity"
	"github.com/staythepath/threadtalk/httpsig"
)

// Defaults applied when Config leaves a limit zero.
const (
	DefaultMaxBodyBytes   = 1 << 20
	DefaultRequestTimeout = 30 * time.Second
)

// ErrInvalidConfig is returned by New for an unusable Config.
var ErrInvalidConfig = errors.New("server: invalid configuration")

// Dispatcher applies verified inbound activities.
// *activity.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, recipient string, a *activity.Activity, identity string) (activity.Result, error)
}

// KeyResolver looks up the signing keys of remote actors.
// *resolver.Resolver satisfies it.
type KeyResolver interface {
	ResolveKey(ctx context.Context, keyID string) (httpsig.PublicKey, error)
	Invalidate(id string)
}

// Config configures a Server.
type Config struct {
	// BaseURL is the public origin local actor ids are built on.
	BaseURL string

	Store      activity.Store
	Dispatcher Dispatcher
	Keys       KeyResolver

	MaxBodyBytes   int64
	RequestTimeout time.Duration

	// SignatureMaxAge bounds the age of the signed Date of inbox
	// requests. Zero disables the check.
	SignatureMaxAge time.Duration

	// Now is used by signature verification. Defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// Server is the HTTP adapter in front of the Dispatcher: the inbox,
// actor documents, follower collections and webfinger.
type Server struct {
	router     *mux.Router
	store      activity.Store
	dispatcher Dispatcher
	base       *url.URL
	logger     *slog.Logger
}

// New builds the router and middleware chain.
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil || cfg.Dispatcher == nil || cfg.Keys == nil {
		return nil, fmt.Errorf("%w: store, dispatcher and keys are required", ErrInvalidConfig)
	}

	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: base url %q", ErrInvalidConfig, cfg.BaseURL)
	}

	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		store:      cfg.Store,
		dispatcher: cfg.Dispatcher,
		base:       base,
		logger:     logger.With("component", "server"),
	}

	keys := cfg.Keys

	verify, err := httpsig.Middleware(httpsig.MiddlewareConfig{
		Resolver: func(r *http.Request, keyID string) (httpsig.PublicKey, error) {
			return keys.ResolveKey(r.Context(), keyID)
		},
		Invalidate: keys.Invalidate,
		Verify: httpsig.VerifyConfig{
			MaxAge: cfg.SignatureMaxAge,
			Now:    cfg.Now,
		},
		OnError: s.rejectUnverified,
	})
	if err != nil {
		return nil, err
	}

	r := mux.NewRouter()
	r.Use(
		requestIDMiddleware(),
		recoveryMiddleware(s.logger),
		bodyLimitMiddleware(cfg.MaxBodyBytes),
		timeoutMiddleware(cfg.RequestTimeout),
	)

	inbox := contentTypeMiddleware()(s.requireLocalActor(verify(http.HandlerFunc(s.inbox))))

	r.Handle("/users/{username}/inbox", inbox).Methods(http.MethodPost)
	r.Handle("/users/{username}", s.requireLocalActor(http.HandlerFunc(s.actor))).Methods(http.MethodGet)
	r.Handle("/users/{username}/followers", s.requireLocalActor(http.HandlerFunc(s.followers))).Methods(http.MethodGet)
	r.Handle("/users/{username}/outbox", s.requireLocalActor(http.HandlerFunc(s.outbox))).Methods(http.MethodGet)
	r.HandleFunc("/.well-known/webfinger", s.webfinger).Methods(http.MethodGet)

	s.router = r

	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// NewLocalActor builds the record of a local actor served under baseURL
// with the given private key.
func NewLocalActor(baseURL, username, name, summary string, privateKeyPEM []byte) (activity.LocalActor, error) {
	pub, err := httpsig.PublicKeyPEMFromPrivate(privateKeyPEM)
	if err != nil {
		return activity.LocalActor{}, fmt.Errorf("actor %s: %w", username, err)
	}

	id := strings.TrimSuffix(baseURL, "/") + "/users/" + username

	return activity.LocalActor{
		ID:            id,
		Username:      username,
		Name:          name,
		Summary:       summary,
		Inbox:         id + "/inbox",
		Outbox:        id + "/outbox",
		Followers:     id + "/followers",
		KeyID:         id + "#main-key",
		PrivateKeyPEM: privateKeyPEM,
		PublicKeyPEM:  pub,
	}, nil
}
