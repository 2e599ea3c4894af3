package household

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultGuestHouseholdID is the shared household of every local guest
	DefaultGuestHouseholdID = "guest-household"
	// GuestName is the display name of a local guest
	GuestName = "Guest User"

	guestIDPrefix     = "guest-"
	guestEmailDomain  = "@example.com"
	joinHouseholdPref = "household-"
	joinNamePrefix    = "Household "
	joinNameChars     = 4
)

// GuestIdentity is a locally synthesized session and profile pair
type GuestIdentity struct {
	Session *Session
	Profile *UserProfile
}

// NewGuestIdentity synthesizes a guest for householdID. Every call yields a
// fresh identifier.
func NewGuestIdentity(householdID string, now time.Time) GuestIdentity {
	if householdID == "" {
		householdID = DefaultGuestHouseholdID
	}

	id := guestIDPrefix + uuid.NewString()
	email := id + guestEmailDomain

	return GuestIdentity{
		Session: &Session{
			SubjectID:       id,
			Email:           email,
			AuthenticatedAt: now,
			Guest:           true,
		},
		Profile: &UserProfile{
			ID:          id,
			Email:       email,
			Name:        GuestName,
			Role:        RoleGuest,
			HouseholdID: householdID,
			Guest:       true,
		},
	}
}

// IsGuestSubject reports whether the identifier was minted by NewGuestIdentity
func IsGuestSubject(subjectID string) bool {
	return strings.HasPrefix(subjectID, guestIDPrefix)
}

// JoinDescriptor derives the household a join link points to. The code is
// not looked up anywhere.
func JoinDescriptor(code string) (HouseholdDescriptor, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return HouseholdDescriptor{}, ErrInvalidJoinCode
	}

	short := code
	if r := []rune(code); len(r) > joinNameChars {
		short = string(r[:joinNameChars])
	}

	return HouseholdDescriptor{
		HouseholdID:   joinHouseholdPref + code,
		HouseholdName: joinNamePrefix + short,
	}, nil
}
