// Package actors is a reference implementation of the actor coordination
// service the compass client reports to.
package actors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var (
	// ErrNotFound means no live actor has the requested identity.
	ErrNotFound = errors.New("actor not found")
	// ErrStale means an update was sent before the one already stored.
	ErrStale = errors.New("stale update")
	// ErrOutOfSync means an update was seen before the one already stored.
	ErrOutOfSync = errors.New("out of sync")
)

// Store persists actors with gorm.
type Store struct {
	db *gorm.DB
}

// NewStore creates a store on an already migrated database.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Sees records that the vehicle sees a. It returns the live actor it
// replaced, if any.
func (s *Store) Sees(ctx context.Context, a Actor) (*Actor, error) {
	if a.ID == "" {
		return nil, errors.New("actor id is required")
	}

	var previous *Actor
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stored, err := find(tx, a.ID)
		if err != nil {
			return err
		}
		if stored != nil {
			if err := order(stored, a.Seq, a.TimeSeen); err != nil {
				return err
			}
			if !stored.Deleted {
				previous = stored
			}
		}

		a.Deleted = false
		return tx.Save(&a).Error
	})
	if err != nil {
		return nil, err
	}
	return previous, nil
}

// NoLongerSees removes the actor with id. An unknown id still leaves a
// tombstone at seq so that a delayed update for it is discarded.
func (s *Store) NoLongerSees(ctx context.Context, id string, seq uint64, timeSeen *time.Time) error {
	missing := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stored, err := find(tx, id)
		if err != nil {
			return err
		}

		if stored == nil {
			// Committed even though the caller gets ErrNotFound.
			missing = true
			tomb := Actor{ID: id, Seq: seq, TimeSeen: timeSeen, Deleted: true}
			return tx.Create(&tomb).Error
		}
		if err := order(stored, seq, timeSeen); err != nil {
			return err
		}
		if stored.Deleted {
			missing = true
			return nil
		}

		tomb := Actor{ID: id, Seq: seq, TimeSeen: timeSeen, Deleted: true}
		if tomb.TimeSeen == nil {
			tomb.TimeSeen = stored.TimeSeen
		}
		if tomb.Seq == 0 {
			tomb.Seq = stored.Seq
		}
		return tx.Save(&tomb).Error
	})
	if err != nil {
		return err
	}
	if missing {
		return ErrNotFound
	}
	return nil
}

// Get returns the live actor with id.
func (s *Store) Get(ctx context.Context, id string) (*Actor, error) {
	a, err := find(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if a == nil || a.Deleted {
		return nil, ErrNotFound
	}
	return a, nil
}

// Actors returns every live actor ordered by id.
func (s *Store) Actors(ctx context.Context) ([]Actor, error) {
	var out []Actor
	err := s.db.WithContext(ctx).Where("deleted = ?", false).Order("id").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("listing actors: %w", err)
	}
	return out, nil
}

// Clear forgets every actor, tombstones included.
func (s *Store) Clear(ctx context.Context) error {
	err := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Actor{}).Error
	if err != nil {
		return fmt.Errorf("clearing actors: %w", err)
	}
	return nil
}

func find(tx *gorm.DB, id string) (*Actor, error) {
	var a Actor
	err := tx.Where("id = ?", id).Take(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading actor %q: %w", id, err)
	}
	return &a, nil
}

// order rejects an update that happened before stored. Times decide when both
// are known; seq breaks ties and covers updates without a time. A newer time
// wins over a lower seq, which is what a restarted client sends.
func order(stored *Actor, seq uint64, timeSeen *time.Time) error {
	if stored.TimeSeen != nil && timeSeen != nil {
		if stored.TimeSeen.After(*timeSeen) {
			return fmt.Errorf("%w: previous time %s is after the current %s",
				ErrOutOfSync, stored.TimeSeen.Format(time.RFC3339Nano), timeSeen.Format(time.RFC3339Nano))
		}
		if timeSeen.After(*stored.TimeSeen) {
			return nil
		}
	}
	if seq > 0 && seq <= stored.Seq {
		return fmt.Errorf("%w: seq %d is not after %d", ErrStale, seq, stored.Seq)
	}
	return nil
}
