package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/staythepath/threadtalk/activity"
	"github.com/staythepath/threadtalk/httpsig"
	"github.com/staythepath/threadtalk/resolver"
)

// ContextSecurity is the JSON-LD context of the publicKey property.
const ContextSecurity = "https://w3id.org/security/v1"

type localActorKey struct{}

// requireLocalActor resolves the {username} route variable to a local actor
// and answers 404 when there is none.
func (s *Server) requireLocalActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		local, err := s.store.LocalActorByUsername(r.Context(), mux.Vars(r)["username"])
		if err != nil {
			s.reject(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), localActorKey{}, local)))
	})
}

func localActorFromContext(ctx context.Context) activity.LocalActor {
	local, _ := ctx.Value(localActorKey{}).(activity.LocalActor)
	return local
}

func (s *Server) inbox(w http.ResponseWriter, r *http.Request) {
	local := localActorFromContext(r.Context())

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.reject(w, r, err)
		return
	}

	a, err := activity.Parse(body)
	if err != nil {
		s.reject(w, r, err)
		return
	}

	identity := httpsig.IdentityFromContext(r.Context())

	res, err := s.dispatcher.Dispatch(r.Context(), local.ID, a, identity)
	if err != nil {
		s.reject(w, r, err)
		return
	}

	s.logger.Debug("activity applied",
		"type", res.Type,
		"changed", res.Changed,
		"actor", identity,
		"recipient", local.ID,
		"request_id", RequestIDFromContext(r.Context()))

	w.WriteHeader(http.StatusAccepted)
}

// rejectUnverified answers inbox requests that failed signature
// verification. A Delete whose signer's actor is gone is acknowledged.
func (s *Server) rejectUnverified(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		s.reject(w, r, err)
		return
	}

	keyID := ""
	if sh, perr := httpsig.ParseSignatureHeader(r.Header.Get("Signature")); perr == nil {
		keyID = sh.KeyID
	}

	if resolver.IsGone(err) && isDelete(r) {
		s.logger.Info("delete from gone actor acknowledged",
			"key_id", keyID,
			"request_id", RequestIDFromContext(r.Context()))

		w.WriteHeader(http.StatusAccepted)

		return
	}

	s.logger.Warn("signature rejected",
		"reason", httpsig.Reason(err),
		"key_id", keyID,
		"error", err,
		"request_id", RequestIDFromContext(r.Context()))

	writeError(w, http.StatusUnauthorized, "signature verification failed")
}

func isDelete(r *http.Request) bool {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return false
	}

	a, err := activity.Parse(body)

	return err == nil && a.Type == activity.TypeDelete
}

func (s *Server) actor(w http.ResponseWriter, r *http.Request) {
	local := localActorFromContext(r.Context())

	doc := resolver.ActorDocument{
		Context:           []string{activity.ContextActivityStreams, ContextSecurity},
		ID:                local.ID,
		Type:              "Person",
		PreferredUsername: local.Username,
		Name:              local.Name,
		Summary:           local.Summary,
		Inbox:             local.Inbox,
		Outbox:            local.Outbox,
		Followers:         local.Followers,
		Following:         local.Following,
		PublicKey: resolver.PublicKeys{{
			ID:           local.KeyID,
			Owner:        local.ID,
			PublicKeyPEM: string(local.PublicKeyPEM),
		}},
	}

	writeJSON(w, http.StatusOK, httpsig.ContentTypeActivity, doc)
}

type orderedCollection struct {
	Context      string   `json:"@context"`
	ID           string   `json:"id"`
	Type         string   `json:"type"`
	TotalItems   int      `json:"totalItems"`
	OrderedItems []string `json:"orderedItems"`
}

func (s *Server) followers(w http.ResponseWriter, r *http.Request) {
	local := localActorFromContext(r.Context())

	rels, err := s.store.Followers(r.Context(), local.ID)
	if err != nil {
		s.reject(w, r, err)
		return
	}

	items := make([]string, 0, len(rels))
	for _, rel := range rels {
		items = append(items, rel.Follower)
	}

	writeJSON(w, http.StatusOK, httpsig.ContentTypeActivity, orderedCollection{
		Context:      activity.ContextActivityStreams,
		ID:           local.Followers,
		Type:         "OrderedCollection",
		TotalItems:   len(items),
		OrderedItems: items,
	})
}

// outbox is always empty; local posting happens outside this server.
func (s *Server) outbox(w http.ResponseWriter, r *http.Request) {
	local := localActorFromContext(r.Context())

	writeJSON(w, http.StatusOK, httpsig.ContentTypeActivity, orderedCollection{
		Context:      activity.ContextActivityStreams,
		ID:           local.Outbox,
		Type:         "OrderedCollection",
		OrderedItems: []string{},
	})
}

func (s *Server) webfinger(w http.ResponseWriter, r *http.Request) {
	resource := r.URL.Query().Get("resource")
	if resource == "" {
		writeError(w, http.StatusBadRequest, "missing resource")
		return
	}

	local, err := s.lookupResource(r.Context(), resource)
	if err != nil {
		s.reject(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resolver.MediaTypeJRD, resolver.JRD{
		Subject: "acct:" + local.Username + "@" + s.base.Host,
		Aliases: []string{local.ID},
		Links: []resolver.Link{{
			Rel:  "self",
			Type: httpsig.ContentTypeActivity,
			Href: local.ID,
		}},
	})
}

// lookupResource finds the local actor named by an acct: handle or by its
// actor id.
func (s *Server) lookupResource(ctx context.Context, resource string) (activity.LocalActor, error) {
	if strings.HasPrefix(resource, "https://") || strings.HasPrefix(resource, "http://") {
		return s.store.LocalActor(ctx, resource)
	}

	h, err := resolver.ParseHandle(resource)
	if err != nil {
		return activity.LocalActor{}, err
	}

	if !strings.EqualFold(h.Domain, s.base.Host) {
		return activity.LocalActor{}, activity.ErrNotFound
	}

	return s.store.LocalActorByUsername(ctx, h.User)
}

// reject writes the status err maps to and logs it.
func (s *Server) reject(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	level := s.logger.Info
	if status >= http.StatusInternalServerError {
		level = s.logger.Error
	}

	level("request rejected",
		"status", status,
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
		"request_id", RequestIDFromContext(r.Context()))

	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = http.StatusText(status)
	}

	writeError(w, status, msg)
}

func statusFor(err error) int {
	var tooLarge *http.MaxBytesError

	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, activity.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, activity.ErrNotFound),
		errors.Is(err, activity.ErrNoSuchContent),
		errors.Is(err, activity.ErrUnknownActor):
		return http.StatusNotFound
	case errors.Is(err, activity.ErrMalformed),
		errors.Is(err, activity.ErrUnsupportedType),
		errors.Is(err, activity.ErrObjectMismatch),
		errors.Is(err, activity.ErrActorMismatch),
		errors.Is(err, activity.ErrNoSuchRelationship),
		errors.Is(err, resolver.ErrInvalidHandle):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, contentType string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	data, _ := json.Marshal(map[string]string{"error": msg})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
