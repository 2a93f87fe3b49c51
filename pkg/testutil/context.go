package testutil

import (
	"net/http"
	"time"

	"govengine/pkg/requestcontext"
)

// Admin request headers as read by the admin token and actor middleware.
const (
	AdminTokenHeader = "X-Admin-Token"
	AdminActorHeader = "X-Admin-Actor"
)

// AsAdmin sets the admin token and actor headers. Empty values are left
// unset so tests can exercise the rejection paths.
func AsAdmin(req *http.Request, token, actor string) *http.Request {
	if token != "" {
		req.Header.Set(AdminTokenHeader, token)
	}
	if actor != "" {
		req.Header.Set(AdminActorHeader, actor)
	}
	return req
}

// WithActor puts an actor straight into the request context, for handlers
// tested without the actor middleware.
func WithActor(req *http.Request, actor string) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), actor))
}

// AtTime pins the request clock.
func AtTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
