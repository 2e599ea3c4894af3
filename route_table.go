package household

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// RouteDescriptor is one entry of the route table
type RouteDescriptor struct {
	Path         string  `json:"path"`
	AllowedRoles RoleSet `json:"allowed_roles"`
	// View names the page rendered for the route
	View string `json:"view"`
	// Views overrides View for specific roles
	Views map[Role]string `json:"views,omitempty"`
}

// ViewFor returns the view rendered for role
func (r RouteDescriptor) ViewFor(role Role) string {
	if v, ok := r.Views[role]; ok && v != "" {
		return v
	}
	return r.View
}

// RouteTable is an ordered, read only list of routes
type RouteTable struct {
	routes []RouteDescriptor
	index  map[string]int
}

// NewRouteTable validates routes and builds a table. Paths are matched
// exactly, after trimming a trailing slash.
func NewRouteTable(routes ...RouteDescriptor) (*RouteTable, error) {
	t := &RouteTable{
		routes: make([]RouteDescriptor, 0, len(routes)),
		index:  make(map[string]int, len(routes)),
	}

	for _, route := range routes {
		if err := route.Validate(); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid route").
				WithTextCode(TextCodeInvalidRouteTable).
				WithCode(goerrors.CodeBadRequest).
				WithMetadata(map[string]any{"path": route.Path})
		}

		path := normalizeRoutePath(route.Path)
		if _, exists := t.index[path]; exists {
			return nil, goerrors.New("duplicated route", goerrors.CategoryValidation).
				WithTextCode(TextCodeInvalidRouteTable).
				WithCode(goerrors.CodeBadRequest).
				WithMetadata(map[string]any{"path": route.Path})
		}

		route.Path = path
		route.AllowedRoles = NewRoleSet(route.AllowedRoles...)
		t.index[path] = len(t.routes)
		t.routes = append(t.routes, route)
	}

	return t, nil
}

// Match returns the route registered for path
func (t *RouteTable) Match(path string) (RouteDescriptor, bool) {
	if t == nil {
		return RouteDescriptor{}, false
	}
	i, ok := t.index[normalizeRoutePath(path)]
	if !ok {
		return RouteDescriptor{}, false
	}
	return t.routes[i], true
}

// Routes returns a copy of the routes in declaration order
func (t *RouteTable) Routes() []RouteDescriptor {
	if t == nil {
		return nil
	}
	out := make([]RouteDescriptor, len(t.routes))
	copy(out, t.routes)
	return out
}

func normalizeRoutePath(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	if path == "" {
		return "/"
	}
	return path
}

// DefaultRouteTable returns the household application routes
func DefaultRouteTable() *RouteTable {
	members := NewRoleSet(RoleFamily, RoleRoommate, RoleNanny, RoleChild)
	table, err := NewRouteTable(
		RouteDescriptor{
			Path:         "/",
			AllowedRoles: NewRoleSet(RoleFamily, RoleRoommate, RoleNanny, RoleChild, RoleGuest),
			View:         "dashboard",
			Views:        map[Role]string{RoleChild: "kids-dashboard"},
		},
		RouteDescriptor{Path: "/tasks", AllowedRoles: NewRoleSet(RoleFamily, RoleRoommate), View: "tasks"},
		RouteDescriptor{Path: "/notes", AllowedRoles: members, View: "notes"},
		RouteDescriptor{Path: "/appreciation", AllowedRoles: NewRoleSet(RoleFamily, RoleChild), View: "appreciation"},
		RouteDescriptor{Path: "/nanny-mode", AllowedRoles: NewRoleSet(RoleFamily, RoleNanny), View: "nanny-mode"},
		RouteDescriptor{Path: "/bills", AllowedRoles: NewRoleSet(RoleFamily, RoleRoommate), View: "bills"},
		RouteDescriptor{Path: "/chores", AllowedRoles: NewRoleSet(RoleFamily, RoleChild), View: "chores"},
		RouteDescriptor{Path: "/kids-dashboard", AllowedRoles: NewRoleSet(RoleChild, RoleFamily), View: "kids-dashboard"},
		RouteDescriptor{Path: "/weekly-sync", AllowedRoles: NewRoleSet(RoleFamily), View: "weekly-sync"},
		RouteDescriptor{Path: "/mental-load", AllowedRoles: NewRoleSet(RoleFamily), View: "mental-load"},
		RouteDescriptor{Path: "/profile", AllowedRoles: members, View: "profile"},
	)
	if err != nil {
		panic(err)
	}
	return table
}
