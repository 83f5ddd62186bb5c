package saga

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/crewdeckhq/crewdeck/internal/models"
)

// LeaseStore provides mutual exclusion per entity key. A lease that has
// passed its expiry is reclaimable by any owner, so a crashed saga never
// wedges its entity permanently.
type LeaseStore interface {
	// Acquire claims key for owner until now+ttl. It returns false when a
	// live lease is held by someone else.
	Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	// Release frees key if owner still holds it. Releasing a lease that has
	// already been reclaimed is a no-op.
	Release(ctx context.Context, key, owner string) error
	// PurgeExpired deletes leases past their expiry and reports how many.
	PurgeExpired(ctx context.Context) (int64, error)
}

// GormLeaseStore persists leases in the saga_leases table so exclusion holds
// across processes sharing a database.
type GormLeaseStore struct {
	db    *gorm.DB
	clock func() time.Time
}

func NewGormLeaseStore(db *gorm.DB) *GormLeaseStore {
	return &GormLeaseStore{db: db, clock: time.Now}
}

// WithLeaseClock overrides the store's time source for tests.
func (s *GormLeaseStore) WithLeaseClock(clock func() time.Time) *GormLeaseStore {
	if clock != nil {
		s.clock = clock
	}
	return s
}

func (s *GormLeaseStore) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	now := s.clock()
	lease := models.SagaLease{Key: key, Owner: owner, ExpiresAt: now.Add(ttl)}

	var acquired bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&lease)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			acquired = true
			return nil
		}

		// Key exists. Take it over only when expired or already ours.
		res = tx.Model(&models.SagaLease{}).
			Where("key = ? AND (expires_at <= ? OR owner = ?)", key, now, owner).
			Updates(map[string]interface{}{"owner": owner, "expires_at": now.Add(ttl)})
		if res.Error != nil {
			return res.Error
		}
		acquired = res.RowsAffected == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	return acquired, nil
}

func (s *GormLeaseStore) Release(ctx context.Context, key, owner string) error {
	return s.db.WithContext(ctx).
		Where("key = ? AND owner = ?", key, owner).
		Delete(&models.SagaLease{}).Error
}

func (s *GormLeaseStore) PurgeExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at <= ?", s.clock()).
		Delete(&models.SagaLease{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// MemoryLeaseStore is a process-local LeaseStore for tests and single-node
// deployments.
type MemoryLeaseStore struct {
	mu     sync.Mutex
	leases map[string]memoryLease
	clock  func() time.Time
}

type memoryLease struct {
	owner     string
	expiresAt time.Time
}

func NewMemoryLeaseStore() *MemoryLeaseStore {
	return &MemoryLeaseStore{leases: make(map[string]memoryLease), clock: time.Now}
}

func (s *MemoryLeaseStore) WithLeaseClock(clock func() time.Time) *MemoryLeaseStore {
	if clock != nil {
		s.clock = clock
	}
	return s
}

func (s *MemoryLeaseStore) Acquire(_ context.Context, key, owner string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	if cur, ok := s.leases[key]; ok && cur.expiresAt.After(now) && cur.owner != owner {
		return false, nil
	}
	s.leases[key] = memoryLease{owner: owner, expiresAt: now.Add(ttl)}
	return true, nil
}

func (s *MemoryLeaseStore) Release(_ context.Context, key, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.leases[key]; ok && cur.owner == owner {
		delete(s.leases, key)
	}
	return nil
}

func (s *MemoryLeaseStore) PurgeExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	var purged int64
	for key, cur := range s.leases {
		if !cur.expiresAt.After(now) {
			delete(s.leases, key)
			purged++
		}
	}
	return purged, nil
}
