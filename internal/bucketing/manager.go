package bucketing

import (
	"hash"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spaolacci/murmur3"
)

const (
	defaultIdentityBuckets = 1024
	defaultEventBuckets    = 64
)

// Manager derives stable partition buckets from identifiers so identity and
// event rows spread evenly across scylla/clickhouse partitions.
type Manager struct {
	identityBuckets int
	eventBuckets    int
	hasherPool      sync.Pool
}

func NewManager() *Manager {
	m := &Manager{
		identityBuckets: defaultIdentityBuckets,
		eventBuckets:    defaultEventBuckets,
	}

	m.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}

	return m
}

// IdentityBucket returns a consistent bucket in [0, identityBuckets) for a
// subject ID.
func (m *Manager) IdentityBucket(subjectID uuid.UUID) int {
	return m.bucket(subjectID.String(), m.identityBuckets)
}

// KeyBucket returns a consistent bucket for an arbitrary identifier, used
// for lookup-by-destination partitions.
func (m *Manager) KeyBucket(identifier string) int {
	return m.bucket(identifier, m.identityBuckets)
}

// EventBucket returns a bucket for security event rows.
func (m *Manager) EventBucket(identifier string) int {
	return m.bucket(identifier, m.eventBuckets)
}

// DateBucket returns the UTC date partition component for event rows.
func (m *Manager) DateBucket(at time.Time) string {
	return at.UTC().Format("2006-01-02")
}

func (m *Manager) bucket(identifier string, buckets int) int {
	hasher := m.hasherPool.Get().(hash.Hash64)
	defer m.hasherPool.Put(hasher)

	hasher.Reset()
	_, _ = hasher.Write([]byte(identifier))

	return int(hasher.Sum64() % uint64(buckets))
}
