package repository

import (
	"io/fs"

	persistence "github.com/goliatone/go-persistence-bun"
	household "github.com/goliatone/go-household"
)

// RegisterModels queues the household models with the persistence client.
// It must run before persistence.New.
func RegisterModels() {
	persistence.RegisterModel(
		(*ProfileModel)(nil),
		(*HouseholdRecordModel)(nil),
	)
}

// MigrationsFS returns the embedded SQL migrations rooted at their
// directory.
func MigrationsFS() (fs.FS, error) {
	return fs.Sub(household.GetMigrationsFS(), "data/sql/migrations")
}
