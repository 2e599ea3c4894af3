package household

import (
	"context"
	"encoding/json"

	goerrors "github.com/goliatone/go-errors"
)

// HouseholdStore is the partitioned persistence surface feature modules use.
// The partition key is always the household identifier.
type HouseholdStore interface {
	List(ctx context.Context, householdID, collection string) ([]json.RawMessage, error)
	Replace(ctx context.Context, householdID, collection string, records []json.RawMessage) error
}

// HouseholdUpdater is implemented by stores that can read, modify and write
// a collection atomically.
type HouseholdUpdater interface {
	Update(ctx context.Context, householdID, collection string, fn func([]json.RawMessage) ([]json.RawMessage, error)) error
}

// ScopedStore binds a HouseholdStore to the viewer profile. Reads and writes
// without a household short circuit to ErrHouseholdNotSet, and guest
// profiles only ever reach the local store.
type ScopedStore struct {
	remote  HouseholdStore
	local   HouseholdStore
	profile *UserProfile
}

// NewScopedStore returns a store scoped to profile. When local is nil guests
// get an in memory store of their own.
func NewScopedStore(remote, local HouseholdStore, profile *UserProfile) *ScopedStore {
	if local == nil {
		local = NewMemoryStore()
	}
	return &ScopedStore{
		remote:  remote,
		local:   local,
		profile: profile.Clone(),
	}
}

// HouseholdID returns the partition this store reads
func (s *ScopedStore) HouseholdID() string {
	if s.profile == nil {
		return ""
	}
	return s.profile.HouseholdID
}

// List returns the records of collection in the viewer household
func (s *ScopedStore) List(ctx context.Context, collection string) ([]json.RawMessage, error) {
	store, err := s.target()
	if err != nil {
		return nil, err
	}
	return store.List(ctx, s.profile.HouseholdID, collection)
}

// Replace stores records as the full content of collection
func (s *ScopedStore) Replace(ctx context.Context, collection string, records []json.RawMessage) error {
	store, err := s.target()
	if err != nil {
		return err
	}
	return store.Replace(ctx, s.profile.HouseholdID, collection, records)
}

// Update runs fn over the current content of collection and stores what it
// returns. Stores that implement HouseholdUpdater apply it atomically,
// others fall back to List followed by Replace.
func (s *ScopedStore) Update(ctx context.Context, collection string, fn func([]json.RawMessage) ([]json.RawMessage, error)) error {
	store, err := s.target()
	if err != nil {
		return err
	}

	if updater, ok := store.(HouseholdUpdater); ok {
		return updater.Update(ctx, s.profile.HouseholdID, collection, fn)
	}

	current, err := store.List(ctx, s.profile.HouseholdID, collection)
	if err != nil {
		return err
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	return store.Replace(ctx, s.profile.HouseholdID, collection, next)
}

func (s *ScopedStore) target() (HouseholdStore, error) {
	if !s.profile.HasHousehold() {
		return nil, ErrHouseholdNotSet
	}
	if s.profile.Guest || s.profile.Role.IsGuest() {
		return s.local, nil
	}
	if s.remote == nil {
		return nil, goerrors.New("household store not configured", goerrors.CategoryInternal).
			WithCode(goerrors.CodeInternal)
	}
	return s.remote, nil
}

// Collection is a typed view over one collection of a ScopedStore
type Collection[T any] struct {
	store *ScopedStore
	name  string
}

// NewCollection returns the typed collection named after feature
func NewCollection[T any](store *ScopedStore, feature Feature) Collection[T] {
	return Collection[T]{store: store, name: feature.String()}
}

// Name returns the collection name
func (c Collection[T]) Name() string {
	return c.name
}

// List decodes every record of the collection
func (c Collection[T]) List(ctx context.Context) ([]T, error) {
	raw, err := c.store.List(ctx, c.name)
	if err != nil {
		return nil, err
	}
	return c.decode(raw)
}

// ListVisible decodes the collection and keeps what actor may see
func (c Collection[T]) ListVisible(ctx context.Context, policy *AccessPolicy, actor Actor, view func(T) ShareableRecord) ([]T, error) {
	items, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	return FilterVisible(policy, actor, items, view), nil
}

// Replace encodes items as the full content of the collection
func (c Collection[T]) Replace(ctx context.Context, items []T) error {
	raw, err := c.encode(items)
	if err != nil {
		return err
	}
	return c.store.Replace(ctx, c.name, raw)
}

// Update hands the decoded collection to fn and stores the items it
// returns. Nothing is written when fn fails.
func (c Collection[T]) Update(ctx context.Context, fn func([]T) ([]T, error)) error {
	return c.store.Update(ctx, c.name, func(raw []json.RawMessage) ([]json.RawMessage, error) {
		items, err := c.decode(raw)
		if err != nil {
			return nil, err
		}
		items, err = fn(items)
		if err != nil {
			return nil, err
		}
		return c.encode(items)
	})
}

func (c Collection[T]) decode(raw []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(raw))
	for i, r := range raw {
		var item T
		if err := json.Unmarshal(r, &item); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decode record").
				WithMetadata(map[string]any{"collection": c.name, "index": i})
		}
		out = append(out, item)
	}
	return out, nil
}

func (c Collection[T]) encode(items []T) ([]json.RawMessage, error) {
	raw := make([]json.RawMessage, 0, len(items))
	for i, item := range items {
		b, err := json.Marshal(item)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode record").
				WithMetadata(map[string]any{"collection": c.name, "index": i})
		}
		raw = append(raw, b)
	}
	return raw, nil
}
