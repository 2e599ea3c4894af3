package repository

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	household "github.com/goliatone/go-household"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// maxHouseholdMembers caps a household roster read.
const maxHouseholdMembers = 100

// profileNamespace derives stable profile keys for subjects that are not
// UUIDs themselves.
var profileNamespace = uuid.MustParse("6f1c2a8e-4b7d-5c39-9e0a-3d2f8b61c4a7")

// ProfileModel is the Bun model for household member profiles.
type ProfileModel struct {
	bun.BaseModel `bun:"table:profiles,alias:prf"`

	ID          uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	SubjectID   string    `bun:"subject_id,notnull,unique" json:"subject_id"`
	Email       string    `bun:"email,nullzero" json:"email,omitempty"`
	Name        string    `bun:"name,notnull" json:"name"`
	Role        string    `bun:"role,notnull" json:"role"`
	HouseholdID string    `bun:"household_id,nullzero" json:"household_id,omitempty"`
	AvatarURL   string    `bun:"avatar_url,nullzero" json:"avatar_url,omitempty"`
	About       string    `bun:"about,nullzero" json:"about,omitempty"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at,omitempty"`
}

// ProfileKey returns the primary key used for subjectID.
func ProfileKey(subjectID string) uuid.UUID {
	if id, err := uuid.Parse(subjectID); err == nil {
		return id
	}
	return uuid.NewSHA1(profileNamespace, []byte(subjectID))
}

// Profiles implements household.ProfileStore on top of a generic
// repository.
type Profiles struct {
	repository.Repository[*ProfileModel]
	now func() time.Time
}

var (
	_ household.ProfileStore                = (*Profiles)(nil)
	_ repository.Repository[*ProfileModel] = (*Profiles)(nil)
)

// NewProfiles creates a new repository.
func NewProfiles(db bun.IDB) *Profiles {
	handlers := repository.ModelHandlers[*ProfileModel]{
		NewRecord: func() *ProfileModel {
			return &ProfileModel{}
		},
		GetID: func(record *ProfileModel) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *ProfileModel, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "subject_id"
		},
	}

	return &Profiles{
		Repository: repository.NewRepository(db, handlers),
		now:        time.Now,
	}
}

// FindProfile implements household.ProfileStore. A missing row is reported
// as a not found profile so hydration can tell it apart from a failure.
func (r *Profiles) FindProfile(ctx context.Context, subjectID string) (*household.UserProfile, error) {
	record, err := r.GetByID(ctx, ProfileKey(subjectID).String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, household.NewProfileNotFoundError(subjectID)
		}
		return nil, err
	}
	return toProfile(record), nil
}

// ListByHousehold returns the members of a household ordered by name.
func (r *Profiles) ListByHousehold(ctx context.Context, householdID string) ([]*household.UserProfile, error) {
	if householdID == "" {
		return nil, household.ErrHouseholdNotSet
	}

	records, _, err := r.List(ctx,
		repository.SelectBy("household_id", "=", householdID),
		repository.OrderBy("name ASC"),
		repository.Paginate(maxHouseholdMembers, 0),
	)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return []*household.UserProfile{}, nil
		}
		return nil, err
	}

	out := make([]*household.UserProfile, len(records))
	for i, record := range records {
		out[i] = toProfile(record)
	}
	return out, nil
}

// SaveProfile creates or overwrites a member profile. Guest profiles are
// never stored.
func (r *Profiles) SaveProfile(ctx context.Context, profile *household.UserProfile) error {
	if profile == nil || profile.ID == "" {
		return goerrors.New("profile id is required", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}
	if profile.Guest || !profile.Role.IsMember() {
		return goerrors.New("only member profiles can be stored", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	record := fromProfile(profile)
	record.UpdatedAt = r.now()

	_, err := r.Upsert(ctx, record,
		repository.UpdateSetColumn("email", record.Email),
		repository.UpdateSetColumn("name", record.Name),
		repository.UpdateSetColumn("role", record.Role),
		repository.UpdateSetColumn("household_id", record.HouseholdID),
		repository.UpdateSetColumn("avatar_url", record.AvatarURL),
		repository.UpdateSetColumn("about", record.About),
		repository.UpdateSetColumn("updated_at", record.UpdatedAt),
	)
	return err
}

// UpdateDisplay persists the display fields of update. Role and household
// are left untouched.
func (r *Profiles) UpdateDisplay(ctx context.Context, subjectID string, update household.ProfileUpdate) error {
	if update.IsZero() {
		return nil
	}

	criteria := []repository.UpdateCriteria{
		repository.UpdateSetColumn("updated_at", r.now()),
	}
	if update.Name != nil {
		criteria = append(criteria, repository.UpdateSetColumn("name", *update.Name))
	}
	if update.AvatarURL != nil {
		criteria = append(criteria, repository.UpdateSetColumn("avatar_url", *update.AvatarURL))
	}
	if update.About != nil {
		criteria = append(criteria, repository.UpdateSetColumn("about", *update.About))
	}

	_, err := r.Update(ctx, &ProfileModel{ID: ProfileKey(subjectID)}, criteria...)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return household.NewProfileNotFoundError(subjectID)
		}
		return err
	}
	return nil
}

func toProfile(m *ProfileModel) *household.UserProfile {
	return &household.UserProfile{
		ID:          m.SubjectID,
		Email:       m.Email,
		Name:        m.Name,
		Role:        household.Role(m.Role),
		HouseholdID: m.HouseholdID,
		AvatarURL:   m.AvatarURL,
		About:       m.About,
	}
}

func fromProfile(p *household.UserProfile) *ProfileModel {
	return &ProfileModel{
		ID:          ProfileKey(p.ID),
		SubjectID:   p.ID,
		Email:       p.Email,
		Name:        p.Name,
		Role:        string(p.Role),
		HouseholdID: p.HouseholdID,
		AvatarURL:   p.AvatarURL,
		About:       p.About,
	}
}
