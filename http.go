package household

import (
	"context"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// ViewerResolver builds the viewer of an HTTP request
type ViewerResolver interface {
	ResolveViewer(ctx router.Context) (Viewer, error)
}

// ViewerResolverFunc adapts a function to the ViewerResolver interface
type ViewerResolverFunc func(ctx router.Context) (Viewer, error)

// ResolveViewer implements ViewerResolver
func (f ViewerResolverFunc) ResolveViewer(ctx router.Context) (Viewer, error) {
	return f(ctx)
}

// TokenViewerResolver reads a bearer access token, turns it into a session
// and hydrates the profile. A request without a token has no session.
type TokenViewerResolver struct {
	Tokens   TokenValidator
	Profiles *ProfileResolver
	Scheme   string
	Logger   Logger
}

// NewTokenViewerResolver returns a resolver for bearer tokens
func NewTokenViewerResolver(tokens TokenValidator, profiles *ProfileResolver) *TokenViewerResolver {
	return &TokenViewerResolver{
		Tokens:   tokens,
		Profiles: profiles,
		Scheme:   "Bearer",
		Logger:   defLogger{name: "household.http"},
	}
}

// ResolveViewer implements ViewerResolver. A failed profile fetch leaves the
// profile absent so the request is let through provisionally.
func (r *TokenViewerResolver) ResolveViewer(ctx router.Context) (Viewer, error) {
	raw := bearerToken(ctx.Header(router.HeaderAuthorization), r.Scheme)
	if raw == "" {
		return Viewer{}, nil
	}

	session, err := r.Tokens.SessionFromToken(raw)
	if err != nil {
		return Viewer{}, err
	}

	viewer := Viewer{Session: session}
	if r.Profiles == nil {
		return viewer, nil
	}

	res, err := r.Profiles.Resolve(requestContext(ctx), session)
	if err != nil {
		r.Logger.Warn("profile unavailable, continuing without it", "subject_id", session.SubjectID, "error", err)
		return viewer, nil
	}
	viewer.Profile = res.Profile
	return viewer, nil
}

func bearerToken(header, scheme string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	if scheme == "" {
		return header
	}
	prefix := scheme + " "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

func requestContext(ctx router.Context) context.Context {
	if c := ctx.Context(); c != nil {
		return c
	}
	return context.Background()
}

// RouteGuardOption customizes the route guard.
type RouteGuardOption func(*RouteGuard)

// WithGuardLogger overrides the guard logger.
func WithGuardLogger(logger Logger) RouteGuardOption {
	return func(g *RouteGuard) {
		if logger != nil {
			g.Logger = logger
		}
	}
}

// WithGuardActivitySink records access denials.
func WithGuardActivitySink(sink ActivitySink) RouteGuardOption {
	return func(g *RouteGuard) {
		g.activity = normalizeActivitySink(sink)
	}
}

// WithGuardErrorHandler overrides how token failures are answered.
func WithGuardErrorHandler(handler func(router.Context, error) error) RouteGuardOption {
	return func(g *RouteGuard) {
		if handler != nil {
			g.ErrorHandler = handler
		}
	}
}

// RouteGuard is go-router middleware applying the access policy to routes
type RouteGuard struct {
	policy        *AccessPolicy
	viewers       ViewerResolver
	activity      ActivitySink
	Logger        Logger
	ErrorHandler  func(c router.Context, err error) error
	DeniedHandler func(c router.Context, d Decision) error
}

// NewRouteGuard returns a guard deciding with policy
func NewRouteGuard(policy *AccessPolicy, viewers ViewerResolver, opts ...RouteGuardOption) *RouteGuard {
	g := &RouteGuard{
		policy:   policy,
		viewers:  viewers,
		activity: noopActivitySink{},
		Logger:   defLogger{name: "household.http"},
	}
	g.ErrorHandler = g.defaultErrHandler
	g.DeniedHandler = g.defaultDeniedHandler

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Protect gates a route to the given roles
func (g *RouteGuard) Protect(allowed ...Role) router.MiddlewareFunc {
	roles := NewRoleSet(allowed...)
	return g.middleware(func(ctx router.Context, viewer Viewer) Decision {
		return g.policy.CanEnter(viewer, roles)
	})
}

// ProtectTable gates every request with the route registered for its path.
// Unknown paths get the catch all redirect.
func (g *RouteGuard) ProtectTable(table *RouteTable) router.MiddlewareFunc {
	return g.middleware(func(ctx router.Context, viewer Viewer) Decision {
		return g.policy.CanEnterRoute(viewer, table, ctx.Path())
	})
}

func (g *RouteGuard) middleware(decide func(router.Context, Viewer) Decision) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			viewer, err := g.viewers.ResolveViewer(ctx)
			if err != nil {
				return g.ErrorHandler(ctx, err)
			}

			d := decide(ctx, viewer)
			if !d.Allowed {
				g.recordDenied(ctx, viewer, d)
				return g.DeniedHandler(ctx, d)
			}

			ctx.Locals(ViewerLocalsKey, viewer)
			ctx.SetContext(WithViewer(requestContext(ctx), viewer))

			return next(ctx)
		}
	}
}

func (g *RouteGuard) recordDenied(ctx router.Context, viewer Viewer, d Decision) {
	event := ActivityEvent{
		EventType: ActivityEventAccessDenied,
		Metadata: map[string]any{
			"path":   ctx.Path(),
			"reason": d.Reason,
		},
	}
	if viewer.Session != nil {
		event.SubjectID = viewer.Session.SubjectID
	}
	if viewer.Profile != nil {
		event.HouseholdID = viewer.Profile.HouseholdID
		event.Role = viewer.Profile.Role
	}
	recordActivity(requestContext(ctx), g.activity, g.Logger, event)
}

func (g *RouteGuard) defaultDeniedHandler(c router.Context, d Decision) error {
	g.Logger.Info("access denied, redirecting", "path", c.OriginalURL(), "reason", d.Reason, "redirect", d.Redirect)

	statusCode := http.StatusSeeOther
	if c.Method() == string(router.GET) {
		statusCode = http.StatusFound
	}
	return c.Redirect(d.Redirect, statusCode)
}

func (g *RouteGuard) defaultErrHandler(c router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryAuth, "Invalid authentication token").
			WithCode(goerrors.CodeUnauthorized)
	}

	g.Logger.Info(
		"route guard error",
		"error", richErr.Message,
		"text_code", richErr.TextCode,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	switch richErr.Category {
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return g.defaultDeniedHandler(c, Decision{Redirect: LoginPath, Reason: richErr.TextCode})
	default:
		code := richErr.Code
		if code == 0 {
			code = http.StatusInternalServerError
		}
		return c.JSON(code, map[string]any{
			"error":     richErr.Message,
			"text_code": richErr.TextCode,
		})
	}
}
