package household

import (
	"strings"
)

const (
	// LoginPath is where viewers without a session are sent
	LoginPath = "/login"
	// HomePath is where signed in viewers are sent when a route is denied
	HomePath = "/"
)

// Decision reasons
const (
	ReasonAllowed         = "allowed"
	ReasonProvisional     = "profile_pending"
	ReasonNoSession       = "no_session"
	ReasonRoleNotAllowed  = "role_not_allowed"
	ReasonGuestNotAllowed = "guest_not_allowed"
	ReasonUnknownRoute    = "unknown_route"
)

// maxThreadDepth bounds how far a sub-record is followed up its parents
const maxThreadDepth = 8

// Viewer is what route gating needs to know about the current user
type Viewer struct {
	Session *Session
	Profile *UserProfile
}

// Decision is the result of a route gate
type Decision struct {
	Allowed bool
	// Provisional is set when a session exists but no profile resolved yet
	Provisional bool
	Redirect    string
	Reason      string
}

// AccessPolicyOption customizes policy construction.
type AccessPolicyOption func(*AccessPolicy)

// WithPolicyFeatureRule replaces the rule of one feature.
func WithPolicyFeatureRule(feature Feature, rule FeatureRule) AccessPolicyOption {
	return func(p *AccessPolicy) {
		p.rules[feature] = rule
	}
}

// WithPolicyExtraRules registers operator visibility expressions.
func WithPolicyExtraRules(rules *ExtraRules) AccessPolicyOption {
	return func(p *AccessPolicy) {
		p.extra = rules
	}
}

// WithPolicyMetrics sets the decision recorder.
func WithPolicyMetrics(m PolicyMetrics) AccessPolicyOption {
	return func(p *AccessPolicy) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithPolicyLogger overrides the policy logger.
func WithPolicyLogger(logger Logger) AccessPolicyOption {
	return func(p *AccessPolicy) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithPolicyLoggerProvider resolves the policy logger by name.
func WithPolicyLoggerProvider(provider LoggerProvider) AccessPolicyOption {
	return func(p *AccessPolicy) {
		p.loggerProvider = provider
	}
}

// AccessPolicy decides route entry and per record visibility. Decisions only
// depend on their arguments and the configured rules.
type AccessPolicy struct {
	rules          map[Feature]FeatureRule
	extra          *ExtraRules
	metrics        PolicyMetrics
	logger         Logger
	loggerProvider LoggerProvider
}

// NewAccessPolicy returns a policy with the default feature rules
func NewAccessPolicy(opts ...AccessPolicyOption) *AccessPolicy {
	p := &AccessPolicy{
		rules:   DefaultFeatureRules(),
		metrics: noopMetrics{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	p.loggerProvider, p.logger = ResolveLogger("household.policy", p.loggerProvider, p.logger)

	return p
}

// Rule returns the rule configured for feature
func (p *AccessPolicy) Rule(feature Feature) (FeatureRule, bool) {
	rule, ok := p.rules[feature]
	return rule, ok
}

// CanEnter gates a route. Without a session the viewer goes to sign in. A
// session whose profile has not resolved yet is let through provisionally.
func (p *AccessPolicy) CanEnter(viewer Viewer, allowed RoleSet) Decision {
	d := canEnter(viewer, allowed)
	p.metrics.RecordDecision("route", d.Allowed)
	return d
}

func canEnter(viewer Viewer, allowed RoleSet) Decision {
	if viewer.Session == nil {
		return Decision{Redirect: LoginPath, Reason: ReasonNoSession}
	}

	if viewer.Profile == nil {
		return Decision{Allowed: true, Provisional: true, Reason: ReasonProvisional}
	}

	if viewer.Profile.Role.IsGuest() || viewer.Profile.Guest {
		if allowed.Contains(RoleGuest) {
			return Decision{Allowed: true, Reason: ReasonAllowed}
		}
		return Decision{Redirect: HomePath, Reason: ReasonGuestNotAllowed}
	}

	if allowed.Contains(viewer.Profile.Role) {
		return Decision{Allowed: true, Reason: ReasonAllowed}
	}
	return Decision{Redirect: HomePath, Reason: ReasonRoleNotAllowed}
}

// CanEnterRoute looks path up in table. Unknown paths are the catch all and
// only depend on the session.
func (p *AccessPolicy) CanEnterRoute(viewer Viewer, table *RouteTable, path string) Decision {
	route, ok := table.Match(path)
	if !ok {
		d := Decision{Redirect: LoginPath, Reason: ReasonUnknownRoute}
		if viewer.Session != nil {
			d.Redirect = HomePath
		}
		p.metrics.RecordDecision("route", false)
		return d
	}
	return p.CanEnter(viewer, route.AllowedRoles)
}

// CanSee reports whether actor may see record
func (p *AccessPolicy) CanSee(actor Actor, record ShareableRecord) bool {
	allowed := p.canSee(actor, record)
	p.metrics.RecordDecision("see", allowed)
	return allowed
}

func (p *AccessPolicy) canSee(actor Actor, record ShareableRecord) bool {
	if isCreator(actor, record) {
		return true
	}

	if record.HouseholdID == "" || record.HouseholdID != actor.HouseholdID {
		return false
	}

	if !actor.Role.IsMember() {
		return false
	}

	if rule, ok := p.rules[record.Feature]; ok && seesByRule(rule, actor, record) {
		return true
	}

	return p.extraAllows(actor, record)
}

func seesByRule(rule FeatureRule, actor Actor, record ShareableRecord) bool {
	if !rule.Roles.Contains(actor.Role) {
		return false
	}

	if actor.Role.IsHouseholdAdmin() && rule.FamilyAdmin {
		return true
	}

	if rule.HonorVisibility && record.Visibility.Contains(actor.Role) {
		return true
	}

	if rule.RecipientScoped && addressedTo(actor, record) {
		return true
	}

	return rule.HouseholdWide
}

func (p *AccessPolicy) extraAllows(actor Actor, record ShareableRecord) bool {
	if p.extra == nil {
		return false
	}
	ok, err := p.extra.Allows(actor, record)
	if err != nil {
		p.logger.Error("policy rule evaluation failed", "feature", record.Feature, "error", err)
		return false
	}
	return ok
}

// CanMutate reports whether actor may perform action on record. The creator
// may always act on their own record.
func (p *AccessPolicy) CanMutate(actor Actor, record ShareableRecord, action Action) bool {
	allowed := p.canMutate(actor, record, action)
	p.metrics.RecordDecision("mutate", allowed)
	return allowed
}

func (p *AccessPolicy) canMutate(actor Actor, record ShareableRecord, action Action) bool {
	if isCreator(actor, record) {
		return true
	}

	if !actor.Role.IsMember() {
		return false
	}

	if !p.canSee(actor, record) {
		return false
	}

	rule, ok := p.rules[record.Feature]
	if !ok {
		return false
	}

	if actor.Role.IsHouseholdAdmin() && rule.FamilyAdmin {
		return !(action == ActionDelete && rule.CreatorOnlyDelete)
	}

	// hearts and replies belong to their author
	if record.IsSubRecord() {
		return false
	}

	if action == ActionReact || action == ActionReply {
		return rule.ReactRoles.Contains(actor.Role)
	}

	addressed := rule.RecipientScoped && addressedTo(actor, record)

	if actor.Role == RoleChild {
		return addressed && rule.allowsAssignee(action)
	}

	return rule.allowsMember(action) || (addressed && rule.allowsAssignee(action))
}

// CanCreate reports whether actor may create records of feature
func (p *AccessPolicy) CanCreate(actor Actor, feature Feature) bool {
	allowed := false
	if rule, ok := p.rules[feature]; ok && actor.Role.IsMember() && actor.HouseholdID != "" {
		allowed = rule.CreateRoles.Contains(actor.Role)
	}
	p.metrics.RecordDecision("create", allowed)
	return allowed
}

// CanSeeAttached reports whether actor may see record, a heart or reply
// hanging off parent. Sub-records follow the visibility of their parent;
// their author always sees them.
func (p *AccessPolicy) CanSeeAttached(actor Actor, record, parent ShareableRecord) bool {
	allowed := p.canSeeAttached(actor, record, parent)
	p.metrics.RecordDecision("see", allowed)
	return allowed
}

func (p *AccessPolicy) canSeeAttached(actor Actor, record, parent ShareableRecord) bool {
	if isCreator(actor, record) {
		return true
	}
	if record.HouseholdID == "" || record.HouseholdID != parent.HouseholdID {
		return false
	}
	return p.canSee(actor, parent)
}

// canSeeIn judges record against the collection it was read from. A
// sub-record whose parent is in thread follows the parent chain; orphans
// fall back to their own rules.
func (p *AccessPolicy) canSeeIn(actor Actor, record ShareableRecord, thread map[string]ShareableRecord) bool {
	for depth := 0; record.IsSubRecord() && depth < maxThreadDepth; depth++ {
		parent, ok := thread[record.ParentID]
		if !ok {
			break
		}
		if isCreator(actor, record) {
			return true
		}
		if record.HouseholdID == "" || record.HouseholdID != parent.HouseholdID {
			return false
		}
		record = parent
	}
	return p.canSee(actor, record)
}

// Filter returns the records actor may see, in their original order
func (p *AccessPolicy) Filter(actor Actor, records []ShareableRecord) []ShareableRecord {
	return FilterVisible(p, actor, records, func(r ShareableRecord) ShareableRecord { return r })
}

// FilterVisible keeps the items whose record view actor may see. Hearts and
// replies are judged by the record they belong to when it is among items.
func FilterVisible[T any](p *AccessPolicy, actor Actor, items []T, view func(T) ShareableRecord) []T {
	thread := indexRecords(items, view)
	out := make([]T, 0, len(items))
	for _, item := range items {
		allowed := p.canSeeIn(actor, view(item), thread)
		p.metrics.RecordDecision("see", allowed)
		if allowed {
			out = append(out, item)
		}
	}
	return out
}

func indexRecords[T any](items []T, view func(T) ShareableRecord) map[string]ShareableRecord {
	thread := make(map[string]ShareableRecord, len(items))
	for _, item := range items {
		if r := view(item); r.ID != "" {
			thread[r.ID] = r
		}
	}
	return thread
}

// SanitizeVisibility normalizes the visibility set a creator picked. A
// child may only share with family and child. The creator role is always
// part of the result.
func (p *AccessPolicy) SanitizeVisibility(actor Actor, feature Feature, roles RoleSet) RoleSet {
	out := make(RoleSet, 0, len(roles)+1)
	rule, hasRule := p.rules[feature]

	for _, role := range NewRoleSet(roles...) {
		if !role.IsMember() {
			continue
		}
		if hasRule && len(rule.Roles) > 0 && !rule.Roles.Contains(role) {
			continue
		}
		if actor.Role == RoleChild && role != RoleFamily && role != RoleChild {
			continue
		}
		out = append(out, role)
	}

	if actor.Role.IsMember() && !out.Contains(actor.Role) {
		out = append(out, actor.Role)
	}
	return out
}

func isCreator(actor Actor, record ShareableRecord) bool {
	return actor.ID != "" && record.CreatorID == actor.ID
}

func addressedTo(actor Actor, record ShareableRecord) bool {
	r := record.Recipient
	if r.Anyone || strings.EqualFold(r.Name, AnyoneRecipient) {
		return true
	}
	if r.ID != "" && r.ID == actor.ID {
		return true
	}
	if r.Name == "" {
		return false
	}
	if actor.Name != "" && strings.EqualFold(r.Name, actor.Name) {
		return true
	}
	if actor.Role.IsHouseholdAdmin() {
		_, ok := familyAliases[strings.ToLower(r.Name)]
		return ok
	}
	return false
}
