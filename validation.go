package household

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

func memberRoleRule() validation.Rule {
	return validation.In(RoleFamily, RoleRoommate, RoleNanny, RoleChild)
}

// ValidateSignIn checks the payload used for credentialed sign in
func (c Credentials) ValidateSignIn() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&c.Password, validation.Required),
	)
	if err != nil {
		return validationError(err, TextCodeInvalidCredentials, "invalid credentials")
	}
	return nil
}

// ValidateSignUp checks the payload used to create an account. The role must
// be a member role, guests are never persisted.
func (c Credentials) ValidateSignUp() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&c.Password, validation.Required, validation.Length(6, 100)),
		validation.Field(&c.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&c.Role, validation.Required, memberRoleRule()),
		validation.Field(&c.AvatarURL, is.URL),
		validation.Field(&c.About, validation.Length(0, 2000)),
	)
	if err != nil {
		return validationError(err, TextCodeInvalidCredentials, "invalid credentials")
	}
	return nil
}

// Validate checks the display fields carried by a profile update
func (u ProfileUpdate) Validate() error {
	err := validation.ValidateStruct(&u,
		validation.Field(&u.Name, validation.NilOrNotEmpty, validation.Length(1, 200)),
		validation.Field(&u.AvatarURL, is.URL),
		validation.Field(&u.About, validation.Length(0, 2000)),
	)
	if err != nil {
		return validationError(err, TextCodeInvalidProfileUpdate, "invalid profile update")
	}
	return nil
}

// Validate checks a route descriptor
func (r RouteDescriptor) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Required, validation.By(func(value any) error {
			path, _ := value.(string)
			if !strings.HasPrefix(path, "/") {
				return errors.New("must start with /")
			}
			return nil
		})),
		validation.Field(&r.AllowedRoles, validation.Required, validation.By(func(value any) error {
			roles, _ := value.(RoleSet)
			for _, role := range roles {
				if !role.IsValid() {
					return errors.New("unknown role " + string(role))
				}
			}
			return nil
		})),
	)
}
