package household

import (
	"encoding/json"
	"net/http"
	"slices"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Delete(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// StoredRecord is the persisted shape of a feature record: the access view
// plus the feature payload.
type StoredRecord struct {
	ShareableRecord
	Data json.RawMessage `json:"data,omitempty"`
}

// Shareable returns the access view of the record
func (r StoredRecord) Shareable() ShareableRecord {
	return r.ShareableRecord
}

type createRecordRequest struct {
	Recipient  Recipient       `json:"recipient"`
	Visibility RoleSet         `json:"visibility"`
	ParentID   string          `json:"parent_id"`
	Data       json.RawMessage `json:"data"`
}

// HTTPControllerOption customizes the records controller.
type HTTPControllerOption func(*HTTPController)

// WithControllerStore sets the remote household store.
func WithControllerStore(store HouseholdStore) HTTPControllerOption {
	return func(c *HTTPController) {
		c.remote = store
	}
}

// WithControllerLocalStore sets the store guest viewers read and write.
func WithControllerLocalStore(store HouseholdStore) HTTPControllerOption {
	return func(c *HTTPController) {
		if store != nil {
			c.local = store
		}
	}
}

// WithControllerHTTPLogger overrides the controller logger.
func WithControllerHTTPLogger(logger Logger) HTTPControllerOption {
	return func(c *HTTPController) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithControllerErrorHandler overrides how handler errors are answered.
func WithControllerErrorHandler(handler func(router.Context, error) error) HTTPControllerOption {
	return func(c *HTTPController) {
		if handler != nil {
			c.ErrorHandler = handler
		}
	}
}

// HTTPController serves the household API: join links, the current viewer
// and the feature record collections.
type HTTPController struct {
	policy       *AccessPolicy
	guard        *RouteGuard
	remote       HouseholdStore
	local        HouseholdStore
	locks        *xsync.MapOf[string, *sync.Mutex]
	Logger       Logger
	ErrorHandler func(ctx router.Context, err error) error
}

// NewHTTPController returns a controller deciding with policy. Record routes
// are gated by guard.
func NewHTTPController(policy *AccessPolicy, guard *RouteGuard, opts ...HTTPControllerOption) *HTTPController {
	c := &HTTPController{
		policy: policy,
		guard:  guard,
		local:  NewMemoryStore(),
		locks:  xsync.NewMapOf[string, *sync.Mutex](),
		Logger: defLogger{name: "household.api"},
	}
	c.ErrorHandler = c.defaultErrHandler

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	if c.policy == nil {
		panic("missing AccessPolicy in household controller")
	}
	if c.guard == nil {
		panic("missing RouteGuard in household controller")
	}
	return c
}

// RegisterRoutes registers the API routes. Every feature collection gets
// its own routes gated to the roles the feature admits.
func (c *HTTPController) RegisterRoutes(group RouteRegistrar) {
	group.Get("/join/:code", c.JoinShow)
	group.Get("/me", c.ViewerShow, c.guard.Protect(AllRoles()...))

	for _, feature := range Features() {
		rule, ok := c.policy.Rule(feature)
		if !ok {
			continue
		}
		guard := c.guard.Protect(rule.Roles...)
		base := "/records/" + feature.String()

		group.Get(base, c.recordsIndex(feature), guard)
		group.Post(base, c.recordsCreate(feature), guard)
		group.Delete(base+"/:id", c.recordsDelete(feature), guard)
		group.Post(base+"/:id/:action", c.recordsAction(feature), guard)
	}
}

// JoinShow describes the household behind a join code
func (c *HTTPController) JoinShow(ctx router.Context) error {
	desc, err := JoinDescriptor(ctx.Param("code"))
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}
	return ctx.JSON(router.StatusOK, desc)
}

// ViewerShow returns the session and profile of the request viewer
func (c *HTTPController) ViewerShow(ctx router.Context) error {
	viewer, ok := GetRouterViewer(ctx)
	if !ok {
		return c.ErrorHandler(ctx, ErrAccessDenied)
	}
	return ctx.JSON(router.StatusOK, map[string]any{
		"session": viewer.Session,
		"profile": viewer.Profile,
	})
}

func (c *HTTPController) recordsIndex(feature Feature) router.HandlerFunc {
	return func(ctx router.Context) error {
		actor, coll, err := c.collection(ctx, feature)
		if err != nil {
			return c.ErrorHandler(ctx, err)
		}

		items, err := coll.ListVisible(requestContext(ctx), c.policy, actor, StoredRecord.Shareable)
		if err != nil {
			return c.ErrorHandler(ctx, err)
		}
		return ctx.JSON(router.StatusOK, map[string]any{"records": items})
	}
}

func (c *HTTPController) recordsCreate(feature Feature) router.HandlerFunc {
	return func(ctx router.Context) error {
		actor, coll, err := c.collection(ctx, feature)
		if err != nil {
			return c.ErrorHandler(ctx, err)
		}

		payload := new(createRecordRequest)
		if err := ctx.Bind(payload); err != nil {
			return c.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid record payload").
				WithCode(goerrors.CodeBadRequest))
		}

		record := StoredRecord{
			ShareableRecord: ShareableRecord{
				ID:          uuid.NewString(),
				Feature:     feature,
				HouseholdID: actor.HouseholdID,
				CreatorID:   actor.ID,
				CreatorName: actor.Name,
				CreatorRole: actor.Role,
				Recipient:   payload.Recipient,
				ParentID:    payload.ParentID,
			},
			Data: payload.Data,
		}

		if !record.IsSubRecord() && !c.policy.CanCreate(actor, feature) {
			return c.ErrorHandler(ctx, ErrAccessDenied)
		}

		if rule, ok := c.policy.Rule(feature); ok && rule.HonorVisibility {
			record.Visibility = c.policy.SanitizeVisibility(actor, feature, payload.Visibility)
		}

		unlock := c.lock(actor.HouseholdID, feature)
		defer unlock()

		err = coll.Update(requestContext(ctx), func(items []StoredRecord) ([]StoredRecord, error) {
			if record.IsSubRecord() {
				thread := indexRecords(items, StoredRecord.Shareable)
				parent, ok := thread[record.ParentID]
				if !ok || !c.policy.canSeeIn(actor, parent, thread) {
					return nil, recordNotFound(feature, record.ParentID)
				}
				if !c.policy.CanMutate(actor, parent, ActionReact) {
					return nil, ErrAccessDenied
				}
			}
			return append(items, record), nil
		})
		if err != nil {
			return c.ErrorHandler(ctx, err)
		}

		c.Logger.Debug("record created", "feature", feature, "id", record.ID, "creator_id", actor.ID)
		return ctx.JSON(http.StatusCreated, record)
	}
}

func (c *HTTPController) recordsDelete(feature Feature) router.HandlerFunc {
	return func(ctx router.Context) error {
		return c.mutate(ctx, feature, ctx.Param("id"), ActionDelete, func(items []StoredRecord, i int) []StoredRecord {
			id := items[i].ID
			return slices.DeleteFunc(items, func(r StoredRecord) bool {
				return r.ID == id || r.ParentID == id
			})
		})
	}
}

func (c *HTTPController) recordsAction(feature Feature) router.HandlerFunc {
	return func(ctx router.Context) error {
		action := Action(ctx.Param("action"))
		if action == ActionDelete || !action.IsValid() {
			return c.ErrorHandler(ctx, goerrors.New("unsupported record action", goerrors.CategoryBadInput).
				WithCode(goerrors.CodeBadRequest).
				WithMetadata(map[string]any{"action": string(action)}))
		}

		payload := new(createRecordRequest)
		if err := ctx.Bind(payload); err != nil {
			return c.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid record payload").
				WithCode(goerrors.CodeBadRequest))
		}

		return c.mutate(ctx, feature, ctx.Param("id"), action, func(items []StoredRecord, i int) []StoredRecord {
			if len(payload.Data) > 0 {
				items[i].Data = payload.Data
			}
			return items
		})
	}
}

func (c *HTTPController) mutate(ctx router.Context, feature Feature, id string, action Action, apply func([]StoredRecord, int) []StoredRecord) error {
	actor, coll, err := c.collection(ctx, feature)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	unlock := c.lock(actor.HouseholdID, feature)
	defer unlock()

	err = coll.Update(requestContext(ctx), func(items []StoredRecord) ([]StoredRecord, error) {
		i := slices.IndexFunc(items, func(r StoredRecord) bool { return r.ID == id })
		if i < 0 {
			return nil, recordNotFound(feature, id)
		}
		thread := indexRecords(items, StoredRecord.Shareable)
		if !c.policy.canSeeIn(actor, items[i].ShareableRecord, thread) {
			return nil, recordNotFound(feature, id)
		}
		if !c.policy.CanMutate(actor, items[i].ShareableRecord, action) {
			return nil, ErrAccessDenied
		}
		return apply(items, i), nil
	})
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	c.Logger.Debug("record mutated", "feature", feature, "id", id, "action", action, "actor_id", actor.ID)
	return ctx.JSON(router.StatusOK, map[string]any{"id": id, "action": action})
}

func (c *HTTPController) collection(ctx router.Context, feature Feature) (Actor, Collection[StoredRecord], error) {
	viewer, ok := GetRouterViewer(ctx)
	if !ok || viewer.Profile == nil {
		return Actor{}, Collection[StoredRecord]{}, ErrProfileNotLoaded
	}

	actor, ok := ActorFromProfile(viewer.Profile)
	if !ok {
		return Actor{}, Collection[StoredRecord]{}, ErrHouseholdNotSet
	}

	store := NewScopedStore(c.remote, c.local, viewer.Profile)
	return actor, NewCollection[StoredRecord](store, feature), nil
}

// lock serializes writers of one household collection.
func (c *HTTPController) lock(householdID string, feature Feature) func() {
	mu, _ := c.locks.LoadOrCompute(householdID+"/"+feature.String(), func() *sync.Mutex {
		return &sync.Mutex{}
	})
	mu.Lock()
	return mu.Unlock
}

func recordNotFound(feature Feature, id string) error {
	return goerrors.New("record not found", goerrors.CategoryNotFound).
		WithCode(goerrors.CodeNotFound).
		WithMetadata(map[string]any{"feature": string(feature), "id": id})
}

func (c *HTTPController) defaultErrHandler(ctx router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "request failed").
			WithCode(goerrors.CodeInternal)
	}

	c.Logger.Error(
		"household api error",
		"error", richErr.Message,
		"text_code", richErr.TextCode,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	code := richErr.Code
	if code == 0 {
		code = statusFor(richErr)
	}
	return ctx.JSON(code, map[string]any{
		"error":     richErr.Message,
		"text_code": richErr.TextCode,
	})
}

func statusFor(err *goerrors.Error) int {
	switch err.Category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
