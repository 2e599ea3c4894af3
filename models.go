package household

import (
	"time"
)

// Session is the cached identity provider session handle
type Session struct {
	SubjectID       string    `json:"sub"`
	Email           string    `json:"email,omitempty"`
	AuthenticatedAt time.Time `json:"authenticated_at,omitempty"`
	Guest           bool      `json:"guest,omitempty"`
	AccessToken     string    `json:"-"`
}

// Clone returns a copy of the session
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// SameIdentity reports whether both values describe the same session.
// Access tokens are ignored so token refreshes do not count as transitions.
func (s *Session) SameIdentity(other *Session) bool {
	if s == nil || other == nil {
		return s == nil && other == nil
	}
	return s.SubjectID == other.SubjectID &&
		s.Email == other.Email &&
		s.Guest == other.Guest &&
		s.AuthenticatedAt.Equal(other.AuthenticatedAt)
}

// UserProfile is the domain profile hydrated from a session
type UserProfile struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	Name        string `json:"name"`
	Role        Role   `json:"role"`
	HouseholdID string `json:"household_id,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	About       string `json:"about,omitempty"`
	Guest       bool   `json:"guest,omitempty"`
}

// Clone returns a copy of the profile
func (p *UserProfile) Clone() *UserProfile {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// HasHousehold reports whether household scoped reads may run
func (p *UserProfile) HasHousehold() bool {
	return p != nil && p.HouseholdID != ""
}

// ProfileUpdate carries the display fields a viewer may change locally.
// Role and household are not part of it.
type ProfileUpdate struct {
	Name      *string `json:"name,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
	About     *string `json:"about,omitempty"`
}

// IsZero reports whether the update carries no field
func (u ProfileUpdate) IsZero() bool {
	return u.Name == nil && u.AvatarURL == nil && u.About == nil
}

// Credentials is the sign in and sign up payload
type Credentials struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Name        string `json:"name,omitempty"`
	Role        Role   `json:"role,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	About       string `json:"about,omitempty"`
	HouseholdID string `json:"household_id,omitempty"`
}

// ProfileSeed is forwarded to the identity provider on sign up so the
// profile row can be created next to the account
type ProfileSeed struct {
	Name        string `json:"name"`
	Role        Role   `json:"role"`
	HouseholdID string `json:"household_id"`
	AvatarURL   string `json:"avatar_url"`
	About       string `json:"about"`
}

// HouseholdDescriptor pre-fills sign up from a join link
type HouseholdDescriptor struct {
	HouseholdID   string `json:"household_id"`
	HouseholdName string `json:"household_name"`
}
