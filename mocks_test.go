package household_test

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	household "github.com/goliatone/go-household"
	"github.com/goliatone/go-router"
)

// fakeProvider is an IdentityProvider with a controllable session stream
type fakeProvider struct {
	mu        sync.Mutex
	session   *household.Session
	queryErr  error
	signInErr error
	signUpErr error
	signOut   error
	listeners map[int]func(*household.Session)
	nextID    int

	// beforeQueryReturn runs inside CurrentSession, after the result is
	// picked and before it is returned
	beforeQueryReturn func()
	// confirmSignIn emits the signed in session on the stream when set
	confirmSignIn bool

	queries  atomic.Int32
	signIns  atomic.Int32
	signOuts atomic.Int32
	seeds    []household.ProfileSeed
}

func newFakeProvider(session *household.Session) *fakeProvider {
	return &fakeProvider{
		session:   session,
		listeners: map[int]func(*household.Session){},
	}
}

func (p *fakeProvider) CurrentSession(ctx context.Context) (*household.Session, error) {
	p.queries.Add(1)

	p.mu.Lock()
	session, err := p.session.Clone(), p.queryErr
	hook := p.beforeQueryReturn
	p.mu.Unlock()

	if hook != nil {
		hook()
	}
	return session, err
}

func (p *fakeProvider) OnSessionChange(listener func(*household.Session)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID
	p.nextID++
	p.listeners[id] = listener

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

func (p *fakeProvider) SignIn(ctx context.Context, email, password string) error {
	p.signIns.Add(1)

	p.mu.Lock()
	err := p.signInErr
	confirm := p.confirmSignIn
	p.mu.Unlock()

	if err != nil {
		return err
	}

	session := &household.Session{SubjectID: "u-" + email, Email: email}
	p.setSession(session)
	if confirm {
		p.emit(session)
	}
	return nil
}

func (p *fakeProvider) SignUp(ctx context.Context, email, password string, seed household.ProfileSeed) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seeds = append(p.seeds, seed)
	return p.signUpErr
}

func (p *fakeProvider) SignOut(ctx context.Context) error {
	p.signOuts.Add(1)

	p.mu.Lock()
	err := p.signOut
	p.mu.Unlock()
	return err
}

func (p *fakeProvider) setSession(session *household.Session) {
	p.mu.Lock()
	p.session = session.Clone()
	p.mu.Unlock()
}

// emit delivers session to every listener synchronously
func (p *fakeProvider) emit(session *household.Session) {
	p.mu.Lock()
	listeners := make([]func(*household.Session), 0, len(p.listeners))
	for _, l := range p.listeners {
		listeners = append(listeners, l)
	}
	p.mu.Unlock()

	for _, l := range listeners {
		l(session.Clone())
	}
}

func (p *fakeProvider) listenerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners)
}

// fakeProfiles is an in memory ProfileStore counting lookups
type fakeProfiles struct {
	mu       sync.Mutex
	profiles map[string]*household.UserProfile
	err      error
	calls    map[string]int
	// gate blocks FindProfile for the given subject until it is closed
	gate map[string]chan struct{}
}

func newFakeProfiles(profiles ...*household.UserProfile) *fakeProfiles {
	f := &fakeProfiles{
		profiles: map[string]*household.UserProfile{},
		calls:    map[string]int{},
		gate:     map[string]chan struct{}{},
	}
	for _, p := range profiles {
		f.profiles[p.ID] = p
	}
	return f
}

func (f *fakeProfiles) FindProfile(ctx context.Context, subjectID string) (*household.UserProfile, error) {
	f.mu.Lock()
	f.calls[subjectID]++
	gate := f.gate[subjectID]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.profiles[subjectID]
	if !ok {
		return nil, household.NewProfileNotFoundError(subjectID)
	}
	return p.Clone(), nil
}

func (f *fakeProfiles) block(subjectID string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gate[subjectID] = ch
	return ch
}

func (f *fakeProfiles) callsFor(subjectID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[subjectID]
}

type activityRecorder struct {
	mu     sync.Mutex
	events []household.ActivityEvent
}

func (r *activityRecorder) Record(_ context.Context, event household.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *activityRecorder) types() []household.ActivityEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]household.ActivityEventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.EventType
	}
	return out
}

func (r *activityRecorder) last(eventType household.ActivityEventType) (household.ActivityEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].EventType == eventType {
			return r.events[i], true
		}
	}
	return household.ActivityEvent{}, false
}

type notificationRecorder struct {
	mu    sync.Mutex
	items []household.Notification
}

func (r *notificationRecorder) Notify(_ context.Context, n household.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

func (r *notificationRecorder) titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.items))
	for i, n := range r.items {
		out[i] = n.Title
	}
	return out
}

type logCall struct {
	level   string
	message string
	args    []any
}

type captureLogger struct {
	mu    sync.Mutex
	calls []logCall
}

func (l *captureLogger) record(level, msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, logCall{level: level, message: msg, args: args})
}

func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }

func (l *captureLogger) messages(level string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, c := range l.calls {
		if c.level == level {
			out = append(out, c.message)
		}
	}
	return out
}

type metricsRecorder struct {
	mu          sync.Mutex
	transitions []string
	hydrations  []household.ResolveOutcome
	decisions   map[string]int
}

func (m *metricsRecorder) RecordTransition(from, to household.SessionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, string(from)+"->"+string(to))
}

func (m *metricsRecorder) RecordHydration(outcome household.ResolveOutcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hydrations = append(m.hydrations, outcome)
}

func (m *metricsRecorder) RecordDecision(surface string, allowed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.decisions == nil {
		m.decisions = map[string]int{}
	}
	key := surface + ":deny"
	if allowed {
		key = surface + ":allow"
	}
	m.decisions[key]++
}

type routerCtx = router.Context

// fakeContext implements the parts of router.Context used by the guard and
// the controller. Calling any other method panics on the nil embedded value.
type fakeContext struct {
	routerCtx

	ctx        context.Context
	path       string
	method     string
	headers    map[string]string
	params     map[string]string
	locals     map[any]any
	body       []byte
	nextCalled bool

	status   int
	payload  any
	redirect string
}

func newFakeContext(method, path string) *fakeContext {
	return &fakeContext{
		ctx:     context.Background(),
		method:  method,
		path:    path,
		headers: map[string]string{},
		params:  map[string]string{},
		locals:  map[any]any{},
	}
}

func (c *fakeContext) Next() error {
	c.nextCalled = true
	return nil
}

func (c *fakeContext) Context() context.Context       { return c.ctx }
func (c *fakeContext) SetContext(ctx context.Context) { c.ctx = ctx }
func (c *fakeContext) Path() string                   { return c.path }
func (c *fakeContext) OriginalURL() string            { return c.path }
func (c *fakeContext) Method() string                 { return c.method }
func (c *fakeContext) Header(key string) string       { return c.headers[key] }
func (c *fakeContext) Body() []byte                   { return c.body }

func (c *fakeContext) Param(key string, defaultValue ...string) string {
	if v, ok := c.params[key]; ok {
		return v
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

func (c *fakeContext) Locals(key any, value ...any) any {
	if len(value) > 0 {
		c.locals[key] = value[0]
		return value[0]
	}
	return c.locals[key]
}

func (c *fakeContext) Bind(v any) error {
	if len(c.body) == 0 {
		return nil
	}
	return json.Unmarshal(c.body, v)
}

func (c *fakeContext) JSON(code int, val any) error {
	c.status = code
	c.payload = val
	return nil
}

func (c *fakeContext) Redirect(path string, status ...int) error {
	c.redirect = path
	if len(status) > 0 {
		c.status = status[0]
	}
	return nil
}

func (c *fakeContext) withJSON(v any) *fakeContext {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	c.body = b
	return c
}
