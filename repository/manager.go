package repository

import (
	"context"
	"database/sql"
	"log"

	goerrors "github.com/goliatone/go-errors"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
)

// Manager exposes all repositories
type Manager struct {
	db       *bun.DB
	profiles *Profiles
	records  *HouseholdRecords
}

// NewManager returns the repositories backed by db
func NewManager(db *bun.DB) *Manager {
	return &Manager{
		db:       db,
		profiles: NewProfiles(db),
		records:  NewHouseholdRecords(db),
	}
}

func (m Manager) Validate() error {
	if m.db == nil {
		return goerrors.New("repository db should be initialized", goerrors.CategoryInternal)
	}

	if m.profiles == nil {
		return goerrors.New("repository profiles should be initialized", goerrors.CategoryInternal)
	}

	if m.records == nil {
		return goerrors.New("repository records should be initialized", goerrors.CategoryInternal)
	}

	return nil
}

func (m Manager) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m Manager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

// Migrate applies the embedded SQL migrations
func (m Manager) Migrate(ctx context.Context) error {
	sub, err := MigrationsFS()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open migrations")
	}

	return persistence.NewMigrations().
		RegisterSQLMigrations(sub).
		Migrate(ctx, m.db)
}

func (m Manager) Profiles() *Profiles {
	return m.profiles
}

func (m Manager) Records() *HouseholdRecords {
	return m.records
}
