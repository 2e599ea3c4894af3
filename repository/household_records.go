package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	household "github.com/goliatone/go-household"
	"github.com/uptrace/bun"
)

// HouseholdRecordModel stores one record of a household collection.
type HouseholdRecordModel struct {
	bun.BaseModel `bun:"table:household_records,alias:hr"`

	HouseholdID string    `bun:"household_id,pk"`
	Collection  string    `bun:"collection,pk"`
	Position    int       `bun:"position,pk"`
	Payload     string    `bun:"payload,notnull"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// HouseholdRecords implements household.HouseholdStore using Bun. Every
// collection is stored as ordered JSON payloads.
type HouseholdRecords struct {
	db  *bun.DB
	now func() time.Time
}

var (
	_ household.HouseholdStore   = (*HouseholdRecords)(nil)
	_ household.HouseholdUpdater = (*HouseholdRecords)(nil)
)

// NewHouseholdRecords creates a new repository.
func NewHouseholdRecords(db *bun.DB) *HouseholdRecords {
	return &HouseholdRecords{db: db, now: time.Now}
}

// List implements household.HouseholdStore.
func (r *HouseholdRecords) List(ctx context.Context, householdID, collection string) ([]json.RawMessage, error) {
	if householdID == "" {
		return nil, household.ErrHouseholdNotSet
	}
	return r.listTx(ctx, r.db, householdID, collection)
}

// Replace implements household.HouseholdStore. The collection is swapped
// in a single transaction.
func (r *HouseholdRecords) Replace(ctx context.Context, householdID, collection string, records []json.RawMessage) error {
	if householdID == "" {
		return household.ErrHouseholdNotSet
	}

	models, err := r.toModels(householdID, collection, records)
	if err != nil {
		return err
	}

	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return r.replaceTx(ctx, tx, householdID, collection, models)
	})
}

// Update implements household.HouseholdUpdater. The read, fn and the write
// share one transaction, so an error from fn leaves the collection as it
// was.
func (r *HouseholdRecords) Update(ctx context.Context, householdID, collection string, fn func([]json.RawMessage) ([]json.RawMessage, error)) error {
	if householdID == "" {
		return household.ErrHouseholdNotSet
	}

	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current, err := r.listTx(ctx, tx, householdID, collection)
		if err != nil {
			return err
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		models, err := r.toModels(householdID, collection, next)
		if err != nil {
			return err
		}
		return r.replaceTx(ctx, tx, householdID, collection, models)
	})
}

func (r *HouseholdRecords) listTx(ctx context.Context, db bun.IDB, householdID, collection string) ([]json.RawMessage, error) {
	var models []HouseholdRecordModel
	err := db.NewSelect().
		Model(&models).
		Where("household_id = ?", householdID).
		Where("collection = ?", collection).
		Order("position ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	out := make([]json.RawMessage, len(models))
	for i, m := range models {
		out[i] = json.RawMessage(m.Payload)
	}
	return out, nil
}

func (r *HouseholdRecords) toModels(householdID, collection string, records []json.RawMessage) ([]HouseholdRecordModel, error) {
	now := r.now()
	models := make([]HouseholdRecordModel, 0, len(records))
	for i, rec := range records {
		if !json.Valid(rec) {
			return nil, goerrors.New("record payload is not valid JSON", goerrors.CategoryBadInput).
				WithCode(goerrors.CodeBadRequest).
				WithMetadata(map[string]any{"collection": collection, "position": i})
		}
		models = append(models, HouseholdRecordModel{
			HouseholdID: householdID,
			Collection:  collection,
			Position:    i,
			Payload:     string(rec),
			UpdatedAt:   now,
		})
	}
	return models, nil
}

func (r *HouseholdRecords) replaceTx(ctx context.Context, tx bun.Tx, householdID, collection string, models []HouseholdRecordModel) error {
	_, err := tx.NewDelete().
		Model((*HouseholdRecordModel)(nil)).
		Where("household_id = ?", householdID).
		Where("collection = ?", collection).
		Exec(ctx)
	if err != nil {
		return err
	}

	if len(models) == 0 {
		return nil
	}

	_, err = tx.NewInsert().Model(&models).Exec(ctx)
	return err
}
