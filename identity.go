package household

import "context"

// IdentityProvider is the remote authentication service. The core never
// stores credentials, it only delegates to the provider and listens to its
// session stream.
type IdentityProvider interface {
	CurrentSession(ctx context.Context) (*Session, error)
	// OnSessionChange registers a listener for provider session changes. A nil
	// session means signed out. The returned function removes the listener.
	OnSessionChange(listener func(*Session)) (unsubscribe func())
	SignIn(ctx context.Context, email, password string) error
	SignUp(ctx context.Context, email, password string, seed ProfileSeed) error
	SignOut(ctx context.Context) error
}

// ProfileStore loads persisted household member profiles. A missing row must
// be reported with an error for which IsProfileNotFound is true.
type ProfileStore interface {
	FindProfile(ctx context.Context, subjectID string) (*UserProfile, error)
}

// ProfileStoreFunc adapts a function to the ProfileStore interface
type ProfileStoreFunc func(ctx context.Context, subjectID string) (*UserProfile, error)

// FindProfile implements ProfileStore
func (f ProfileStoreFunc) FindProfile(ctx context.Context, subjectID string) (*UserProfile, error) {
	return f(ctx, subjectID)
}
