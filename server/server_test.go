package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staythepath/threadtalk/activity"
	"github.com/staythepath/threadtalk/httpsig"
	"github.com/staythepath/threadtalk/memstore"
	"github.com/staythepath/threadtalk/resolver"
)

const (
	baseURL  = "https://local.example"
	aliceID  = baseURL + "/users/alice"
	inboxURL = aliceID + "/inbox"
	bobID    = "https://remote.example/users/bob"
	bobKeyID = bobID + "#main-key"
	goneID   = "https://remote.example/users/gone"
	noteID   = baseURL + "/notes/1"
)

var (
	keyOnce  sync.Once
	alicePEM []byte
	bobPEM   []byte
	keyErr   error
)

func testKeys(t *testing.T) (alice, bob []byte) {
	t.Helper()

	keyOnce.Do(func() {
		if alicePEM, keyErr = httpsig.GenerateRSAKeyPEM(2048); keyErr != nil {
			return
		}
		bobPEM, keyErr = httpsig.GenerateRSAKeyPEM(2048)
	})
	require.NoError(t, keyErr)

	return alicePEM, bobPEM
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

type recordingDeliverer struct {
	mu       sync.Mutex
	inboxes  []string
	payloads [][]byte
}

func (d *recordingDeliverer) Deliver(_ context.Context, inbox string, _ httpsig.Signer, payload []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.inboxes = append(d.inboxes, inbox)
	d.payloads = append(d.payloads, payload)

	return nil
}

type fixture struct {
	handler   http.Handler
	store     *memstore.Store
	deliverer *recordingDeliverer
	bob       httpsig.Signer
	fetches   atomic.Int32
}

func newFixture(t *testing.T, opts ...func(*Config)) *fixture {
	t.Helper()

	ctx := context.Background()
	alicePriv, bobPriv := testKeys(t)

	alice, err := NewLocalActor(baseURL, "alice", "Alice", "hello", alicePriv)
	require.NoError(t, err)

	f := &fixture{
		store:     memstore.New(),
		deliverer: &recordingDeliverer{},
	}
	require.NoError(t, f.store.PutLocalActor(ctx, alice))

	_, err = f.store.UpsertContent(ctx, activity.Content{ID: noteID, Type: "Note", AttributedTo: aliceID})
	require.NoError(t, err)

	bobPub, err := httpsig.PublicKeyPEMFromPrivate(bobPriv)
	require.NoError(t, err)

	bobDoc := resolver.ActorDocument{
		ID:                bobID,
		Type:              "Person",
		PreferredUsername: "bob",
		Inbox:             bobID + "/inbox",
		PublicKey: resolver.PublicKeys{{
			ID:           bobKeyID,
			Owner:        bobID,
			PublicKeyPEM: string(bobPub),
		}},
	}

	client := &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		f.fetches.Add(1)

		switch r.URL.String() {
		case bobID:
			data, err := json.Marshal(bobDoc)
			if err != nil {
				return nil, err
			}

			return response(r, http.StatusOK, data), nil
		case goneID:
			return response(r, http.StatusGone, nil), nil
		default:
			return response(r, http.StatusNotFound, nil), nil
		}
	})}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	res := resolver.New(resolver.Config{Client: client, Logger: logger})

	d, err := activity.NewDispatcher(activity.Config{
		Store:     f.store,
		Resolver:  res,
		Deliverer: f.deliverer,
		BaseURL:   baseURL,
		Logger:    logger,
	})
	require.NoError(t, err)

	cfg := Config{
		BaseURL:         baseURL,
		Store:           f.store,
		Dispatcher:      d,
		Keys:            res,
		SignatureMaxAge: time.Hour,
		Logger:          logger,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	srv, err := New(cfg)
	require.NoError(t, err)

	f.handler = srv.Handler()

	f.bob, err = httpsig.NewSignerFromPEM(bobKeyID, bobPriv)
	require.NoError(t, err)

	return f
}

func response(r *http.Request, status int, body []byte) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": {httpsig.ContentTypeActivity}},
		Body:       io.NopCloser(bytes.NewReader(body)),
		Request:    r,
	}
}

func (f *fixture) serve(r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)

	return w
}

func signedPost(t *testing.T, target, body string, signer httpsig.Signer) *http.Request {
	t.Helper()

	r := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	r.Header.Set("Content-Type", httpsig.ContentTypeActivity)
	require.NoError(t, httpsig.SignRequest(r, httpsig.SignConfig{Signer: signer}))

	return r
}

func followBody(actor string) string {
	return fmt.Sprintf(`{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id": "%s/follows/1",
		"type": "Follow",
		"actor": "%s",
		"object": "%s"
	}`, actor, actor, aliceID)
}

func TestNew(t *testing.T) {
	store := memstore.New()

	t.Run("missing collaborators", func(t *testing.T) {
		_, err := New(Config{BaseURL: baseURL, Store: store})
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("relative base url", func(t *testing.T) {
		_, err := New(Config{
			BaseURL:    "/local",
			Store:      store,
			Dispatcher: stubDispatcher{},
			Keys:       stubKeys{},
		})
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestNewLocalActor(t *testing.T) {
	alicePriv, _ := testKeys(t)

	a, err := NewLocalActor(baseURL+"/", "alice", "Alice", "", alicePriv)
	require.NoError(t, err)

	assert.Equal(t, aliceID, a.ID)
	assert.Equal(t, inboxURL, a.Inbox)
	assert.Equal(t, aliceID+"/followers", a.Followers)
	assert.Equal(t, aliceID+"#main-key", a.KeyID)
	assert.Contains(t, string(a.PublicKeyPEM), "PUBLIC KEY")

	_, err = NewLocalActor(baseURL, "alice", "", "", []byte("not a key"))
	assert.ErrorIs(t, err, httpsig.ErrInvalidKey)
}

func TestInbox(t *testing.T) {
	t.Run("follow is applied and accepted", func(t *testing.T) {
		f := newFixture(t)

		w := f.serve(signedPost(t, inboxURL, followBody(bobID), f.bob))
		require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

		rel, err := f.store.Relationship(context.Background(), bobID, aliceID)
		require.NoError(t, err)
		assert.True(t, rel.Accepted)

		require.Equal(t, []string{bobID + "/inbox"}, f.deliverer.inboxes)

		accept, err := activity.Parse(f.deliverer.payloads[0])
		require.NoError(t, err)
		assert.Equal(t, activity.TypeAccept, accept.Type)
		assert.Equal(t, bobID+"/follows/1", accept.Object.ID)

		// Repeat delivery leaves one relationship and reuses the cached key.
		w = f.serve(signedPost(t, inboxURL, followBody(bobID), f.bob))
		require.Equal(t, http.StatusAccepted, w.Code)

		followers, err := f.store.Followers(context.Background(), aliceID)
		require.NoError(t, err)
		assert.Len(t, followers, 1)
		assert.Equal(t, int32(1), f.fetches.Load())
	})

	t.Run("unsigned request", func(t *testing.T) {
		f := newFixture(t)

		r := httptest.NewRequest(http.MethodPost, inboxURL, strings.NewReader(followBody(bobID)))
		r.Header.Set("Content-Type", httpsig.ContentTypeActivity)

		w := f.serve(r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, int32(0), f.fetches.Load())
	})

	t.Run("body changed after signing", func(t *testing.T) {
		f := newFixture(t)

		r := signedPost(t, inboxURL, followBody(bobID), f.bob)
		r.Body = io.NopCloser(strings.NewReader(strings.Replace(followBody(bobID), "follows/1", "follows/2", 1)))

		w := f.serve(r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		_, err := f.store.Relationship(context.Background(), bobID, aliceID)
		assert.ErrorIs(t, err, activity.ErrNotFound)
	})

	t.Run("unknown signer", func(t *testing.T) {
		f := newFixture(t)
		_, bobPriv := testKeys(t)

		signer, err := httpsig.NewSignerFromPEM("https://remote.example/users/nobody#main-key", bobPriv)
		require.NoError(t, err)

		w := f.serve(signedPost(t, inboxURL, followBody("https://remote.example/users/nobody"), signer))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown local actor", func(t *testing.T) {
		f := newFixture(t)

		w := f.serve(signedPost(t, baseURL+"/users/carol/inbox", followBody(bobID), f.bob))
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, int32(0), f.fetches.Load())
	})

	t.Run("wrong content type", func(t *testing.T) {
		f := newFixture(t)

		r := httptest.NewRequest(http.MethodPost, inboxURL, strings.NewReader(followBody(bobID)))
		r.Header.Set("Content-Type", "text/plain")
		require.NoError(t, httpsig.SignRequest(r, httpsig.SignConfig{Signer: f.bob}))

		w := f.serve(r)
		assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	})

	t.Run("body too large", func(t *testing.T) {
		f := newFixture(t, func(c *Config) { c.MaxBodyBytes = 64 })

		w := f.serve(signedPost(t, inboxURL, followBody(bobID), f.bob))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})

	t.Run("get not allowed", func(t *testing.T) {
		f := newFixture(t)

		w := f.serve(httptest.NewRequest(http.MethodGet, inboxURL, nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})

	rejected := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed json", `{"type":`, http.StatusBadRequest},
		{"unsupported type", fmt.Sprintf(`{"id":"%s/x","type":"Move","actor":"%s"}`, bobID, bobID), http.StatusBadRequest},
		{"actor differs from signer", followBody("https://evil.example/users/eve"), http.StatusBadRequest},
		{"like of unknown content", fmt.Sprintf(`{"id":"%s/likes/1","type":"Like","actor":"%s","object":"%s/notes/404"}`, bobID, bobID, baseURL), http.StatusNotFound},
		{"follow of another actor", fmt.Sprintf(`{"id":"%s/follows/1","type":"Follow","actor":"%s","object":"%s/users/carol"}`, bobID, bobID, baseURL), http.StatusBadRequest},
	}

	for _, tt := range rejected {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			w := f.serve(signedPost(t, inboxURL, tt.body, f.bob))
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.Empty(t, f.deliverer.inboxes)
		})
	}

	t.Run("like of known content", func(t *testing.T) {
		f := newFixture(t)

		body := fmt.Sprintf(`{"id":"%s/likes/1","type":"Like","actor":"%s","object":"%s"}`, bobID, bobID, noteID)

		w := f.serve(signedPost(t, inboxURL, body, f.bob))
		require.Equal(t, http.StatusAccepted, w.Code)

		likes, err := f.store.Reactions(context.Background(), noteID, activity.ReactionLike)
		require.NoError(t, err)
		require.Len(t, likes, 1)
		assert.Equal(t, bobID, likes[0].Actor)
	})
}

func TestInboxGoneActor(t *testing.T) {
	_, bobPriv := testKeys(t)

	signer, err := httpsig.NewSignerFromPEM(goneID+"#main-key", bobPriv)
	require.NoError(t, err)

	t.Run("delete is acknowledged", func(t *testing.T) {
		f := newFixture(t)

		body := fmt.Sprintf(`{"id":"%s#delete","type":"Delete","actor":"%s","object":"%s"}`, goneID, goneID, goneID)

		w := f.serve(signedPost(t, inboxURL, body, signer))
		assert.Equal(t, http.StatusAccepted, w.Code)
	})

	t.Run("other activities are refused", func(t *testing.T) {
		f := newFixture(t)

		w := f.serve(signedPost(t, inboxURL, followBody(goneID), signer))
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		_, err := f.store.Relationship(context.Background(), goneID, aliceID)
		assert.ErrorIs(t, err, activity.ErrNotFound)
	})
}

func TestActorDocument(t *testing.T) {
	f := newFixture(t)

	w := f.serve(httptest.NewRequest(http.MethodGet, aliceID, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, httpsig.ContentTypeActivity, w.Header().Get("Content-Type"))

	var doc resolver.ActorDocument
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))

	assert.Equal(t, aliceID, doc.ID)
	assert.Equal(t, "Person", doc.Type)
	assert.Equal(t, "alice", doc.PreferredUsername)
	assert.Equal(t, "Alice", doc.Name)
	assert.Equal(t, inboxURL, doc.Inbox)
	require.Len(t, doc.PublicKey, 1)
	assert.Equal(t, aliceID+"#main-key", doc.PublicKey[0].ID)
	assert.Equal(t, aliceID, doc.PublicKey[0].Owner)

	_, err := httpsig.ParsePublicKeyPEM([]byte(doc.PublicKey[0].PublicKeyPEM))
	assert.NoError(t, err)

	w = f.serve(httptest.NewRequest(http.MethodGet, baseURL+"/users/carol", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCollections(t *testing.T) {
	f := newFixture(t)

	w := f.serve(signedPost(t, inboxURL, followBody(bobID), f.bob))
	require.Equal(t, http.StatusAccepted, w.Code)

	w = f.serve(httptest.NewRequest(http.MethodGet, aliceID+"/followers", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, fmt.Sprintf(`{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id": "%s/followers",
		"type": "OrderedCollection",
		"totalItems": 1,
		"orderedItems": ["%s"]
	}`, aliceID, bobID), w.Body.String())

	w = f.serve(httptest.NewRequest(http.MethodGet, aliceID+"/outbox", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, fmt.Sprintf(`{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id": "%s/outbox",
		"type": "OrderedCollection",
		"totalItems": 0,
		"orderedItems": []
	}`, aliceID), w.Body.String())
}

func TestWebfinger(t *testing.T) {
	f := newFixture(t)

	found := []string{
		"acct:alice@local.example",
		"alice@LOCAL.example",
		"acct:ALICE@local.example",
		aliceID,
	}

	for _, resource := range found {
		t.Run(resource, func(t *testing.T) {
			w := f.serve(httptest.NewRequest(http.MethodGet, baseURL+"/.well-known/webfinger?resource="+resource, nil))
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.Equal(t, resolver.MediaTypeJRD, w.Header().Get("Content-Type"))

			var jrd resolver.JRD
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &jrd))

			assert.Equal(t, "acct:alice@local.example", jrd.Subject)

			href, ok := jrd.ActorLink()
			require.True(t, ok)
			assert.Equal(t, aliceID, href)
		})
	}

	missing := []struct {
		name     string
		query    string
		expected int
	}{
		{"no resource", "", http.StatusBadRequest},
		{"not a handle", "?resource=alice", http.StatusBadRequest},
		{"other domain", "?resource=acct:alice@remote.example", http.StatusNotFound},
		{"unknown user", "?resource=acct:carol@local.example", http.StatusNotFound},
		{"unknown actor url", "?resource=" + baseURL + "/users/carol", http.StatusNotFound},
	}

	for _, tt := range missing {
		t.Run(tt.name, func(t *testing.T) {
			w := f.serve(httptest.NewRequest(http.MethodGet, baseURL+"/.well-known/webfinger"+tt.query, nil))
			assert.Equal(t, tt.expected, w.Code)
		})
	}
}
