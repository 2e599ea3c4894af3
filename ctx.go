package household

import (
	"context"

	"github.com/goliatone/go-router"
)

var viewerCtxKey = &contextKey{"viewer"}

type contextKey struct {
	name string
}

// ViewerLocalsKey is the router locals key the route guard stores the viewer under
const ViewerLocalsKey = "household_viewer"

// WithViewer sets the Viewer in the given context
func WithViewer(ctx context.Context, viewer Viewer) context.Context {
	return context.WithValue(ctx, viewerCtxKey, viewer)
}

// ViewerFromContext finds the viewer in the context.
func ViewerFromContext(ctx context.Context) (Viewer, bool) {
	if ctx == nil {
		return Viewer{}, false
	}
	v, ok := ctx.Value(viewerCtxKey).(Viewer)
	return v, ok
}

// ActorFromContext returns the record actor for the viewer in ctx
func ActorFromContext(ctx context.Context) (Actor, bool) {
	viewer, ok := ViewerFromContext(ctx)
	if !ok {
		return Actor{}, false
	}
	return ActorFromProfile(viewer.Profile)
}

// GetRouterViewer extracts the viewer from the router context
func GetRouterViewer(ctx router.Context) (Viewer, bool) {
	raw := ctx.Locals(ViewerLocalsKey)
	if raw == nil {
		return ViewerFromContext(ctx.Context())
	}
	v, ok := raw.(Viewer)
	return v, ok
}

// CanSee is a convenience function to check record visibility from the standard context
func CanSee(ctx context.Context, policy *AccessPolicy, record ShareableRecord) bool {
	actor, ok := ActorFromContext(ctx)
	if !ok || policy == nil {
		return false
	}
	return policy.CanSee(actor, record)
}

// CanMutate is a convenience function to check a record action from the standard context
func CanMutate(ctx context.Context, policy *AccessPolicy, record ShareableRecord, action Action) bool {
	actor, ok := ActorFromContext(ctx)
	if !ok || policy == nil {
		return false
	}
	return policy.CanMutate(actor, record, action)
}
