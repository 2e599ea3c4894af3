package household

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultLoadingTimeout bounds provider calls, profile fetches and the wait
// for a sign in confirmation.
const DefaultLoadingTimeout = 10 * time.Second

// Snapshot is a read only copy of the controller state
type Snapshot struct {
	State   SessionState
	Session *Session
	Profile *UserProfile
	Err     error
	Version uint64
}

// Loading is derived from the state, never stored
func (s Snapshot) Loading() bool {
	return s.State.Loading()
}

// IsGuest reports whether the viewer is a local guest
func (s Snapshot) IsGuest() bool {
	return s.Session != nil && s.Session.Guest
}

// Viewer returns the access policy view of the snapshot
func (s Snapshot) Viewer() Viewer {
	return Viewer{Session: s.Session, Profile: s.Profile}
}

func (s Snapshot) clone() Snapshot {
	s.Session = s.Session.Clone()
	s.Profile = s.Profile.Clone()
	return s
}

// SessionControllerOption customizes controller construction.
type SessionControllerOption func(*SessionController)

// WithControllerLogger overrides the controller logger.
func WithControllerLogger(logger Logger) SessionControllerOption {
	return func(c *SessionController) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithControllerLoggerProvider resolves the controller logger by name.
func WithControllerLoggerProvider(provider LoggerProvider) SessionControllerOption {
	return func(c *SessionController) {
		c.loggerProvider = provider
	}
}

// WithControllerNotifier sets where user facing messages go.
func WithControllerNotifier(n Notifier) SessionControllerOption {
	return func(c *SessionController) {
		c.notifier = normalizeNotifier(n)
	}
}

// WithControllerActivitySink sets the ActivitySink used to publish session events.
func WithControllerActivitySink(sink ActivitySink) SessionControllerOption {
	return func(c *SessionController) {
		c.activity = normalizeActivitySink(sink)
	}
}

// WithControllerMetrics sets the session metrics recorder.
func WithControllerMetrics(m SessionMetrics) SessionControllerOption {
	return func(c *SessionController) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithControllerClock injects a custom clock (useful for tests).
func WithControllerClock(clock func() time.Time) SessionControllerOption {
	return func(c *SessionController) {
		if clock != nil {
			c.now = clock
		}
	}
}

// WithLoadingTimeout bounds provider calls and the sign in confirmation wait.
func WithLoadingTimeout(timeout time.Duration) SessionControllerOption {
	return func(c *SessionController) {
		if timeout > 0 {
			c.loadingTimeout = timeout
		}
	}
}

// WithControllerConfig applies operator configuration.
func WithControllerConfig(cfg Config) SessionControllerOption {
	return func(c *SessionController) {
		if cfg == nil {
			return
		}
		if t := cfg.GetLoadingTimeout(); t > 0 {
			c.loadingTimeout = t
		}
		if h := cfg.GetGuestHouseholdID(); h != "" {
			c.guestHousehold = h
		}
	}
}

type pendingDelivery struct {
	seq     uint64
	session *Session
}

// SessionController owns the session and profile of the current viewer.
// Every session value, from the initial query or the provider stream, goes
// through reconcile. The controller is safe for concurrent use.
type SessionController struct {
	provider       IdentityProvider
	resolver       *ProfileResolver
	logger         Logger
	loggerProvider LoggerProvider
	notifier       Notifier
	activity       ActivitySink
	metrics        SessionMetrics
	transitions    sessionTransitions
	loadingTimeout time.Duration
	guestHousehold string
	now            func() time.Time

	baseCtx context.Context
	cancel  context.CancelFunc

	mu           sync.Mutex
	snap         Snapshot
	seq          uint64
	pending      *pendingDelivery
	opGen        uint64
	started      bool
	closed       bool
	unsubscribe  func()
	fallback     *time.Timer
	observers    map[uint64]func(Snapshot)
	nextObserver uint64
}

// NewSessionController returns a controller in the initializing state. Call
// Start to load the current session.
func NewSessionController(provider IdentityProvider, resolver *ProfileResolver, opts ...SessionControllerOption) *SessionController {
	ctx, cancel := context.WithCancel(context.Background())
	c := &SessionController{
		provider:       provider,
		resolver:       resolver,
		notifier:       noopNotifier{},
		activity:       noopActivitySink{},
		metrics:        noopMetrics{},
		transitions:    defaultSessionTransitions(),
		loadingTimeout: DefaultLoadingTimeout,
		guestHousehold: DefaultGuestHouseholdID,
		now:            time.Now,
		baseCtx:        ctx,
		cancel:         cancel,
		snap:           Snapshot{State: SessionInitializing},
		observers:      map[uint64]func(Snapshot){},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	c.loggerProvider, c.logger = ResolveLogger("household.session", c.loggerProvider, c.logger)

	if c.resolver == nil {
		c.resolver = NewProfileResolver(nil,
			WithResolverLoggerProvider(c.loggerProvider),
			WithResolverTimeout(c.loadingTimeout),
			WithResolverGuestHousehold(c.guestHousehold),
		)
	}

	return c
}

// Start subscribes to the provider session stream and then runs one current
// session query. A failed query leaves the controller in the error state,
// treated as signed out, and the stream subscription stays active.
func (c *SessionController) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	unsubscribe := c.provider.OnSessionChange(c.deliver)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		if unsubscribe != nil {
			unsubscribe()
		}
		return ErrControllerClosed
	}
	c.unsubscribe = unsubscribe
	c.mu.Unlock()

	qctx, cancel := context.WithTimeout(ctx, c.loadingTimeout)
	session, err := c.provider.CurrentSession(qctx)
	cancel()

	if err != nil {
		qerr := NewSessionQueryError(err)
		c.logger.Error("error getting session", "error", err)
		c.failInitialQuery(qerr)
		return qerr
	}

	c.reconcile(ctx, session)
	return nil
}

func (c *SessionController) deliver(session *Session) {
	c.reconcile(c.baseCtx, session)
}

func (c *SessionController) failInitialQuery(err error) {
	c.mu.Lock()
	if c.closed || c.snap.State != SessionInitializing {
		c.mu.Unlock()
		c.logger.Warn("session query failed after the session settled, ignoring", "error", err)
		return
	}
	emit := c.applyLocked(SessionError, nil, nil, err)
	c.mu.Unlock()

	emit()
	c.notifier.Notify(c.baseCtx, Notification{
		Title:       "Initialization Error",
		Description: "Could not load user session.",
		Destructive: true,
	})
}

// reconcile applies the most recently delivered session value. Delivering
// the value already applied, or already being hydrated, is a no-op.
func (c *SessionController) reconcile(ctx context.Context, session *Session) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	if c.pending != nil && c.pending.session.SameIdentity(session) {
		c.mu.Unlock()
		return
	}

	if c.pending == nil && c.snap.State.settled() && c.snap.Session.SameIdentity(session) {
		if session != nil {
			c.snap.Session.AccessToken = session.AccessToken
		}
		c.mu.Unlock()
		return
	}

	// the provider knows nothing about local guests
	if session == nil && c.pending == nil && c.snap.State == SessionAuthenticated && c.snap.IsGuest() {
		c.mu.Unlock()
		return
	}

	c.seq++
	seq := c.seq
	c.stopFallbackLocked()

	if session == nil {
		c.pending = nil
		emit := c.applyLocked(SessionUnauthenticated, nil, nil, nil)
		c.mu.Unlock()
		emit()
		return
	}

	c.pending = &pendingDelivery{seq: seq, session: session.Clone()}
	c.mu.Unlock()

	res, err := c.resolver.Resolve(ctx, session)
	c.metrics.RecordHydration(res.Outcome)

	c.mu.Lock()
	if c.closed || c.seq != seq {
		c.mu.Unlock()
		c.logger.Debug("discarding superseded session delivery", "subject_id", session.SubjectID)
		return
	}
	c.pending = nil
	emit := c.applyLocked(SessionAuthenticated, session, res.Profile, err)
	c.mu.Unlock()

	emit()

	event := ActivityEvent{
		EventType: ActivityEventProfileHydrated,
		SubjectID: session.SubjectID,
		Metadata:  map[string]any{"outcome": res.Outcome},
	}
	if res.Profile != nil {
		event.HouseholdID = res.Profile.HouseholdID
		event.Role = res.Profile.Role
	}

	if err != nil {
		event.EventType = ActivityEventHydrationFailure
		event.Metadata["error"] = err.Error()
		c.notifier.Notify(c.baseCtx, Notification{
			Title:       "Error fetching user data",
			Description: "Could not retrieve profile.",
			Destructive: true,
		})
	}
	recordActivity(c.baseCtx, c.activity, c.logger, event)
}

// SignIn delegates to the provider. On success the provider session stream
// drives the transition to authenticated.
func (c *SessionController) SignIn(ctx context.Context, creds Credentials) error {
	if err := creds.ValidateSignIn(); err != nil {
		c.notifyAuthFailure("Login Failed", err)
		return err
	}

	gen, prev, err := c.beginAuthenticating()
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.loadingTimeout)
	err = c.provider.SignIn(callCtx, creds.Email, creds.Password)
	cancel()

	if err != nil {
		authErr := NewAuthError("sign in", err)
		c.logger.Error("sign in failed", "email", creds.Email, "error", err)
		c.abortAuthenticating(gen, prev, authErr)
		c.notifyAuthFailure("Login Failed", err)
		recordActivity(ctx, c.activity, c.logger, ActivityEvent{
			EventType: ActivityEventSignInFailure,
			Metadata:  map[string]any{"email": creds.Email, "error": err.Error()},
		})
		return authErr
	}

	c.notifier.Notify(ctx, Notification{
		Title:       "Welcome back!",
		Description: "Successfully logged in.",
	})
	recordActivity(ctx, c.activity, c.logger, ActivityEvent{
		EventType: ActivityEventSignInSuccess,
		Metadata:  map[string]any{"email": creds.Email},
	})

	c.awaitConfirmation(gen)
	return nil
}

// SignUp creates an account through the provider. The household is, in
// order: householdID, creds.HouseholdID, a new random identifier.
func (c *SessionController) SignUp(ctx context.Context, creds Credentials, householdID string) error {
	if err := creds.ValidateSignUp(); err != nil {
		c.notifyAuthFailure("Signup Failed", err)
		return err
	}

	seed := ProfileSeed{
		Name:        creds.Name,
		Role:        creds.Role,
		HouseholdID: firstNonEmpty(householdID, creds.HouseholdID, uuid.NewString()),
		AvatarURL:   creds.AvatarURL,
		About:       creds.About,
	}

	gen, prev, err := c.beginAuthenticating()
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.loadingTimeout)
	err = c.provider.SignUp(callCtx, creds.Email, creds.Password, seed)
	cancel()

	if err != nil {
		authErr := NewAuthError("sign up", err)
		c.logger.Error("sign up failed", "email", creds.Email, "error", err)
		c.abortAuthenticating(gen, prev, authErr)
		c.notifyAuthFailure("Signup Failed", err)
		recordActivity(ctx, c.activity, c.logger, ActivityEvent{
			EventType:   ActivityEventSignUpFailure,
			HouseholdID: seed.HouseholdID,
			Role:        seed.Role,
			Metadata:    map[string]any{"email": creds.Email, "error": err.Error()},
		})
		return authErr
	}

	c.notifier.Notify(ctx, Notification{
		Title:       "Account Created!",
		Description: "Welcome, " + creds.Name + "! Check email to confirm.",
	})
	recordActivity(ctx, c.activity, c.logger, ActivityEvent{
		EventType:   ActivityEventSignUpSuccess,
		HouseholdID: seed.HouseholdID,
		Role:        seed.Role,
		Metadata:    map[string]any{"email": creds.Email},
	})

	c.awaitConfirmation(gen)
	return nil
}

// SignInAsGuest synthesizes a local guest. The provider is never called.
func (c *SessionController) SignInAsGuest() (Snapshot, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Snapshot{}, ErrControllerClosed
	}

	from := c.snap.State
	if !c.transitions.allows(from, SessionAuthenticated) {
		c.mu.Unlock()
		return Snapshot{}, NewInvalidTransitionError(from, SessionAuthenticated)
	}

	guest := NewGuestIdentity(c.guestHousehold, c.now())

	c.seq++
	c.pending = nil
	c.opGen++
	c.stopFallbackLocked()

	emit := c.applyLocked(SessionAuthenticated, guest.Session, guest.Profile, nil)
	snap := c.snap.clone()
	c.mu.Unlock()

	emit()

	c.notifier.Notify(c.baseCtx, Notification{
		Title:       "Welcome, Guest!",
		Description: "You are browsing in guest mode.",
	})
	recordActivity(c.baseCtx, c.activity, c.logger, ActivityEvent{
		EventType:   ActivityEventGuestSignIn,
		SubjectID:   guest.Profile.ID,
		HouseholdID: guest.Profile.HouseholdID,
		Role:        RoleGuest,
	})

	return snap, nil
}

// SignOut clears the local session whatever the provider answers. A provider
// failure is returned as an auth error after the local state is cleared.
func (c *SessionController) SignOut(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}

	wasGuest := c.snap.IsGuest()
	subjectID := ""
	if c.snap.Session != nil {
		subjectID = c.snap.Session.SubjectID
	}

	c.opGen++
	c.stopFallbackLocked()
	emit := c.applyLocked(SessionSigningOut, c.snap.Session, c.snap.Profile, nil)
	c.mu.Unlock()
	emit()

	var authErr error
	if !wasGuest {
		callCtx, cancel := context.WithTimeout(ctx, c.loadingTimeout)
		err := c.provider.SignOut(callCtx)
		cancel()
		if err != nil {
			c.logger.Error("sign out failed", "subject_id", subjectID, "error", err)
			authErr = NewAuthError("sign out", err)
		}
	}

	c.mu.Lock()
	emit = func() {}
	if !c.closed {
		c.seq++
		c.pending = nil
		emit = c.applyLocked(SessionUnauthenticated, nil, nil, nil)
	}
	c.mu.Unlock()
	emit()

	meta := map[string]any{"guest": wasGuest}
	if authErr != nil {
		meta["error"] = authErr.Error()
		c.notifier.Notify(ctx, Notification{
			Title:       "Logout Failed",
			Description: authErr.Error(),
			Destructive: true,
		})
	} else {
		c.notifier.Notify(ctx, Notification{
			Title:       "Logged out",
			Description: "You've been successfully logged out.",
		})
	}
	recordActivity(ctx, c.activity, c.logger, ActivityEvent{
		EventType: ActivityEventSignOut,
		SubjectID: subjectID,
		Metadata:  meta,
	})

	return authErr
}

// UpdateProfile merges display fields into the in memory profile. Nothing is
// persisted here.
func (c *SessionController) UpdateProfile(update ProfileUpdate) (Snapshot, error) {
	if err := update.Validate(); err != nil {
		return Snapshot{}, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Snapshot{}, ErrControllerClosed
	}
	if c.snap.Profile == nil {
		c.mu.Unlock()
		return Snapshot{}, ErrProfileNotLoaded
	}

	merged := c.resolver.Merge(c.snap.Profile, update)
	emit := c.applyLocked(c.snap.State, c.snap.Session, merged, c.snap.Err)
	snap := c.snap.clone()
	c.mu.Unlock()

	emit()
	recordActivity(c.baseCtx, c.activity, c.logger, ActivityEvent{
		EventType:   ActivityEventProfileUpdated,
		SubjectID:   merged.ID,
		HouseholdID: merged.HouseholdID,
		Role:        merged.Role,
	})

	return snap, nil
}

// Recover moves a controller in the error state back to unauthenticated.
// In any other state it is a no-op.
func (c *SessionController) Recover() Snapshot {
	c.mu.Lock()
	emit := func() {}
	if !c.closed && c.snap.State == SessionError {
		emit = c.applyLocked(SessionUnauthenticated, nil, nil, nil)
	}
	snap := c.snap.clone()
	c.mu.Unlock()

	emit()
	return snap
}

// Close releases the stream subscription and timers. Completions that land
// after Close are ignored.
func (c *SessionController) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.stopFallbackLocked()
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.observers = map[uint64]func(Snapshot){}
	c.mu.Unlock()

	c.cancel()
	if unsubscribe != nil {
		unsubscribe()
	}
	return nil
}

// Subscribe registers an observer called with a copy of every new snapshot.
// The returned function removes it.
func (c *SessionController) Subscribe(fn func(Snapshot)) func() {
	if fn == nil {
		return func() {}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextObserver++
	id := c.nextObserver
	c.observers[id] = fn

	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

// Snapshot returns a copy of the current state
func (c *SessionController) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.clone()
}

// State returns the current session state
func (c *SessionController) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.State
}

// Loading reports whether an operation is still in flight
func (c *SessionController) Loading() bool {
	return c.State().Loading()
}

// Session returns a copy of the current session, nil when signed out
func (c *SessionController) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.Session.Clone()
}

// Profile returns a copy of the current profile, nil until hydrated
func (c *SessionController) Profile() *UserProfile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.Profile.Clone()
}

func (c *SessionController) beginAuthenticating() (uint64, Snapshot, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, Snapshot{}, ErrControllerClosed
	}

	prev := c.snap.clone()
	if !c.transitions.allows(prev.State, SessionAuthenticating) {
		c.mu.Unlock()
		return 0, Snapshot{}, NewInvalidTransitionError(prev.State, SessionAuthenticating)
	}

	c.opGen++
	gen := c.opGen
	c.stopFallbackLocked()
	emit := c.applyLocked(SessionAuthenticating, prev.Session, prev.Profile, nil)
	c.mu.Unlock()

	emit()
	return gen, prev, nil
}

// abortAuthenticating reverts a failed sign in or sign up to the previous
// settled state, unless something else already moved the controller.
func (c *SessionController) abortAuthenticating(gen uint64, prev Snapshot, err error) {
	c.mu.Lock()
	if c.closed || c.opGen != gen || c.snap.State != SessionAuthenticating {
		c.mu.Unlock()
		return
	}

	target := prev.State
	session, profile := prev.Session, prev.Profile
	if !target.settled() {
		target = SessionUnauthenticated
		session, profile = nil, nil
	}
	if target == SessionError {
		session, profile = nil, nil
	}

	emit := c.applyLocked(target, session, profile, err)
	c.mu.Unlock()
	emit()
}

// awaitConfirmation arms the loading fallback: when the provider stream does
// not confirm a successful sign in within the loading timeout the session is
// queried again.
func (c *SessionController) awaitConfirmation(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.opGen != gen || c.snap.State != SessionAuthenticating {
		return
	}

	c.stopFallbackLocked()
	c.fallback = time.AfterFunc(c.loadingTimeout, func() {
		c.confirmFallback(gen)
	})
}

func (c *SessionController) confirmFallback(gen uint64) {
	c.mu.Lock()
	if c.closed || c.opGen != gen || c.snap.State != SessionAuthenticating {
		c.mu.Unlock()
		return
	}
	c.fallback = nil
	ctx := c.baseCtx
	c.mu.Unlock()

	c.logger.Warn("session change not observed, querying session again", "timeout", c.loadingTimeout)

	qctx, cancel := context.WithTimeout(ctx, c.loadingTimeout)
	session, err := c.provider.CurrentSession(qctx)
	cancel()

	if err == nil {
		c.reconcile(ctx, session)
		return
	}

	c.logger.Error("fallback session query failed", "error", err)

	c.mu.Lock()
	emit := func() {}
	if !c.closed && c.opGen == gen && c.snap.State == SessionAuthenticating {
		c.seq++
		c.pending = nil
		emit = c.applyLocked(SessionUnauthenticated, nil, nil, NewSessionQueryError(err))
	}
	c.mu.Unlock()
	emit()
}

func (c *SessionController) stopFallbackLocked() {
	if c.fallback != nil {
		c.fallback.Stop()
		c.fallback = nil
	}
}

// applyLocked validates and applies a transition. It must be called with
// the lock held; the returned function publishes the change and must be
// called after the lock is released.
func (c *SessionController) applyLocked(to SessionState, session *Session, profile *UserProfile, err error) func() {
	from := c.snap.State
	if !c.transitions.allows(from, to) {
		c.logger.Warn("rejected session transition", "from", from, "to", to)
		return func() {}
	}

	c.snap = Snapshot{
		State:   to,
		Session: session.Clone(),
		Profile: profile.Clone(),
		Err:     err,
		Version: c.snap.Version + 1,
	}

	snap := c.snap.clone()
	observers := make([]func(Snapshot), 0, len(c.observers))
	for _, fn := range c.observers {
		observers = append(observers, fn)
	}

	return func() {
		if from != to {
			c.metrics.RecordTransition(from, to)
			event := ActivityEvent{
				EventType: ActivityEventSessionChanged,
				FromState: from,
				ToState:   to,
			}
			if snap.Session != nil {
				event.SubjectID = snap.Session.SubjectID
			}
			if snap.Profile != nil {
				event.HouseholdID = snap.Profile.HouseholdID
				event.Role = snap.Profile.Role
			}
			recordActivity(c.baseCtx, c.activity, c.logger, event)
		}
		for _, fn := range observers {
			fn(snap)
		}
	}
}

func (c *SessionController) notifyAuthFailure(title string, err error) {
	c.notifier.Notify(c.baseCtx, Notification{
		Title:       title,
		Description: err.Error(),
		Destructive: true,
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
