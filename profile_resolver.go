package household

import (
	"context"
	"time"
)

// ResolveOutcome describes how a profile resolution ended
type ResolveOutcome string

const (
	ResolveAbsent      ResolveOutcome = "absent"
	ResolveGuest       ResolveOutcome = "guest"
	ResolveHydrated    ResolveOutcome = "hydrated"
	ResolveNotFoundYet ResolveOutcome = "not_found_yet"
	ResolveFailed      ResolveOutcome = "failed"
)

// Resolution is the result of hydrating a profile for a session
type Resolution struct {
	Profile *UserProfile
	Outcome ResolveOutcome
}

// ProfileResolverOption customizes resolver construction.
type ProfileResolverOption func(*ProfileResolver)

// WithResolverLogger overrides the resolver logger.
func WithResolverLogger(logger Logger) ProfileResolverOption {
	return func(r *ProfileResolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithResolverLoggerProvider resolves the resolver logger by name.
func WithResolverLoggerProvider(provider LoggerProvider) ProfileResolverOption {
	return func(r *ProfileResolver) {
		r.loggerProvider = provider
	}
}

// WithResolverTimeout bounds every profile fetch.
func WithResolverTimeout(timeout time.Duration) ProfileResolverOption {
	return func(r *ProfileResolver) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithResolverGuestHousehold sets the household assigned to local guests.
func WithResolverGuestHousehold(householdID string) ProfileResolverOption {
	return func(r *ProfileResolver) {
		if householdID != "" {
			r.guestHousehold = householdID
		}
	}
}

// WithResolverClock injects a custom clock (useful for tests).
func WithResolverClock(clock func() time.Time) ProfileResolverOption {
	return func(r *ProfileResolver) {
		if clock != nil {
			r.now = clock
		}
	}
}

// ProfileResolver hydrates the UserProfile for a session
type ProfileResolver struct {
	store          ProfileStore
	logger         Logger
	loggerProvider LoggerProvider
	timeout        time.Duration
	guestHousehold string
	now            func() time.Time
}

// NewProfileResolver returns a resolver reading from store
func NewProfileResolver(store ProfileStore, opts ...ProfileResolverOption) *ProfileResolver {
	r := &ProfileResolver{
		store:          store,
		timeout:        DefaultLoadingTimeout,
		guestHousehold: DefaultGuestHouseholdID,
		now:            time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	r.loggerProvider, r.logger = ResolveLogger("household.profile", r.loggerProvider, r.logger)

	return r
}

// Resolve hydrates the profile for session. A missing profile row is not an
// error: the outcome is ResolveNotFoundYet and the profile stays absent.
func (r *ProfileResolver) Resolve(ctx context.Context, session *Session) (Resolution, error) {
	if session == nil {
		return Resolution{Outcome: ResolveAbsent}, nil
	}

	if session.Guest {
		return Resolution{Profile: r.guestProfile(session), Outcome: ResolveGuest}, nil
	}

	if r.store == nil {
		return Resolution{Outcome: ResolveFailed}, NewProfileFetchError(session.SubjectID, nil)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	profile, err := r.store.FindProfile(fetchCtx, session.SubjectID)
	if err != nil {
		if IsProfileNotFound(err) {
			r.logger.Warn("profile not found yet", "subject_id", session.SubjectID)
			return Resolution{Outcome: ResolveNotFoundYet}, nil
		}
		r.logger.Error("error fetching profile", "subject_id", session.SubjectID, "error", err)
		return Resolution{Outcome: ResolveFailed}, NewProfileFetchError(session.SubjectID, err)
	}

	if profile == nil {
		r.logger.Warn("profile not found yet", "subject_id", session.SubjectID)
		return Resolution{Outcome: ResolveNotFoundYet}, nil
	}

	if !profile.Role.IsMember() {
		r.logger.Error("profile has unknown role", "subject_id", session.SubjectID, "role", profile.Role)
		return Resolution{Outcome: ResolveFailed}, NewProfileFetchError(session.SubjectID, nil).
			WithMetadata(map[string]any{"role": profile.Role})
	}

	hydrated := profile.Clone()
	if hydrated.ID == "" {
		hydrated.ID = session.SubjectID
	}
	if hydrated.Email == "" {
		hydrated.Email = session.Email
	}
	hydrated.Guest = false

	return Resolution{Profile: hydrated, Outcome: ResolveHydrated}, nil
}

// Guest synthesizes a new guest identity
func (r *ProfileResolver) Guest() GuestIdentity {
	return NewGuestIdentity(r.guestHousehold, r.now())
}

func (r *ProfileResolver) guestProfile(session *Session) *UserProfile {
	return &UserProfile{
		ID:          session.SubjectID,
		Email:       session.Email,
		Name:        GuestName,
		Role:        RoleGuest,
		HouseholdID: r.guestHousehold,
		Guest:       true,
	}
}

// Merge applies the display fields of update to a copy of profile. Role and
// household are never touched.
func (r *ProfileResolver) Merge(profile *UserProfile, update ProfileUpdate) *UserProfile {
	return MergeProfile(profile, update)
}

// MergeProfile applies the display fields of update to a copy of profile
func MergeProfile(profile *UserProfile, update ProfileUpdate) *UserProfile {
	if profile == nil {
		return nil
	}

	merged := profile.Clone()
	if update.Name != nil {
		merged.Name = *update.Name
	}
	if update.AvatarURL != nil {
		merged.AvatarURL = *update.AvatarURL
	}
	if update.About != nil {
		merged.About = *update.About
	}
	return merged
}
