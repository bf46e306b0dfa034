package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/yndnr/peerscout-go/internal/core/domain"
)

const (
	locationPrefix = "loc/"
	instanceIDKey  = "meta/instance_id"
)

// LocationStore persists network locations in a KVEngine.
//
// Static and dynamic records share one keyspace; Static() and Dynamic()
// return views filtered on the record kind.
type LocationStore struct {
	kv     KVEngine
	logger *slog.Logger
	now    func() time.Time
}

// NewLocationStore creates a location store backed by kv.
func NewLocationStore(kv KVEngine, logger *slog.Logger) *LocationStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocationStore{kv: kv, logger: logger, now: time.Now}
}

// Static returns the view over operator-entered locations.
func (s *LocationStore) Static() *LocationView {
	return &LocationView{store: s, dynamic: false}
}

// Dynamic returns the view over discovered locations.
func (s *LocationStore) Dynamic() *LocationView {
	return &LocationView{store: s, dynamic: true}
}

// Get returns the location stored under id regardless of its kind.
func (s *LocationStore) Get(ctx context.Context, id string) (*domain.Location, error) {
	data, err := s.kv.Get(ctx, locationKey(id))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, domain.ErrLocationNotFound.WithDetails(id)
		}
		return nil, domain.ErrStorageError.WithCause(err)
	}
	return decodeLocation(data)
}

// List returns every stored location ordered by id.
func (s *LocationStore) List(ctx context.Context) ([]*domain.Location, error) {
	return s.list(ctx, func(*domain.Location) bool { return true })
}

// Update loads the location under id, applies fn and stores the result.
// The kind of the record cannot be changed by fn.
func (s *LocationStore) Update(ctx context.Context, id string, fn func(loc *domain.Location) error) (*domain.Location, error) {
	var updated *domain.Location
	err := s.kv.Update(ctx, locationKey(id), func(old []byte, exists bool) ([]byte, error) {
		if !exists {
			return nil, domain.ErrLocationNotFound.WithDetails(id)
		}
		loc, err := decodeLocation(old)
		if err != nil {
			return nil, err
		}
		dynamic := loc.Dynamic
		if err := fn(loc); err != nil {
			return nil, err
		}
		loc.ID = id
		if loc.Dynamic != dynamic {
			return nil, domain.ErrLocationKindConflict.WithDetails(id)
		}
		if err := loc.Validate(); err != nil {
			return nil, err
		}
		updated = loc
		return json.Marshal(loc)
	})
	if err != nil {
		return nil, storageError(err)
	}
	return updated, nil
}

// InstanceID returns this instance's persistent id, generating and storing
// one on first use.
func (s *LocationStore) InstanceID(ctx context.Context) (string, error) {
	var id string
	err := s.kv.Update(ctx, []byte(instanceIDKey), func(old []byte, exists bool) ([]byte, error) {
		if exists && len(old) > 0 {
			id = string(old)
			return old, nil
		}
		generated, err := domain.GenerateLocationID(s.now())
		if err != nil {
			return nil, err
		}
		id = generated
		s.logger.Info("generated instance id", "instance_id", id)
		return []byte(id), nil
	})
	if err != nil {
		return "", storageError(err)
	}
	return id, nil
}

func (s *LocationStore) list(ctx context.Context, keep func(*domain.Location) bool) ([]*domain.Location, error) {
	var out []*domain.Location
	err := s.kv.Scan(ctx, []byte(locationPrefix), func(key, value []byte) bool {
		loc, err := decodeLocation(value)
		if err != nil {
			// Skip corrupt records rather than failing the whole listing.
			s.logger.Warn("skipping undecodable location", "key", string(key), "error", err)
			return true
		}
		if keep(loc) {
			out = append(out, loc)
		}
		return true
	})
	if err != nil {
		return nil, domain.ErrStorageError.WithCause(err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// LocationView is a kind-filtered view over a LocationStore.
type LocationView struct {
	store   *LocationStore
	dynamic bool
}

// Dynamic reports which kind of record the view holds.
func (v *LocationView) Dynamic() bool {
	return v.dynamic
}

// List returns the view's records ordered by id.
func (v *LocationView) List(ctx context.Context) ([]*domain.Location, error) {
	return v.store.list(ctx, func(loc *domain.Location) bool { return loc.Dynamic == v.dynamic })
}

// Get returns the record under id. Records of the other kind are not found.
func (v *LocationView) Get(ctx context.Context, id string) (*domain.Location, error) {
	loc, err := v.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if loc.Dynamic != v.dynamic {
		return nil, domain.ErrLocationNotFound.WithDetails(id)
	}
	return loc, nil
}

// Save validates and stores loc with the view's kind. A dynamic record
// without id takes its instance id; a static record without id gets a
// generated one. Replacing a record of the other kind is refused.
func (v *LocationView) Save(ctx context.Context, loc *domain.Location) error {
	loc.Dynamic = v.dynamic
	if loc.ID == "" {
		if v.dynamic {
			loc.ID = loc.InstanceID
		} else {
			id, err := domain.GenerateLocationID(v.store.now())
			if err != nil {
				return err
			}
			loc.ID = id
		}
	}
	if err := loc.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("encode location: %w", err)
	}
	err = v.store.kv.Update(ctx, locationKey(loc.ID), func(old []byte, exists bool) ([]byte, error) {
		if exists {
			prev, err := decodeLocation(old)
			if err == nil && prev.Dynamic != v.dynamic {
				return nil, domain.ErrLocationKindConflict.WithDetails(loc.ID)
			}
		}
		return data, nil
	})
	return storageError(err)
}

// Delete removes the record under id if it belongs to the view.
func (v *LocationView) Delete(ctx context.Context, id string) error {
	err := v.store.kv.Update(ctx, locationKey(id), func(old []byte, exists bool) ([]byte, error) {
		if !exists {
			return nil, domain.ErrLocationNotFound.WithDetails(id)
		}
		loc, err := decodeLocation(old)
		if err == nil && loc.Dynamic != v.dynamic {
			return nil, domain.ErrLocationNotFound.WithDetails(id)
		}
		return nil, nil
	})
	return storageError(err)
}

// Purge deletes every record of the view's kind and returns the count.
func (v *LocationView) Purge(ctx context.Context) (int, error) {
	n, err := v.store.kv.DeleteWhere(ctx, []byte(locationPrefix), func(_, value []byte) bool {
		loc, err := decodeLocation(value)
		return err == nil && loc.Dynamic == v.dynamic
	})
	if err != nil {
		return 0, domain.ErrStorageError.WithCause(err)
	}
	return n, nil
}

func locationKey(id string) []byte {
	return []byte(locationPrefix + id)
}

func decodeLocation(data []byte) (*domain.Location, error) {
	var loc domain.Location
	if err := json.Unmarshal(data, &loc); err != nil {
		return nil, domain.ErrStorageError.WithDetails("decode location").WithCause(err)
	}
	return &loc, nil
}

// storageError passes domain errors through and wraps everything else.
func storageError(err error) error {
	if err == nil || domain.CodeOf(err) != "" {
		return err
	}
	return domain.ErrStorageError.WithCause(err)
}
