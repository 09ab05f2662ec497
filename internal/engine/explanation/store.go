package explanation

import (
	"sync"
	"time"

	"workflow-engine/internal/models"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type entry struct {
	rationale models.Rationale
	expires   time.Time
}

// exactStore serves reads from a sync.Map without locking. Writers hold mu and keep an
// expirable LRU that decides eviction; reads report recency through a buffered channel
// that writers drain, so a read never waits for a write.
type exactStore struct {
	entries sync.Map // string -> *entry
	ttl     time.Duration
	now     func() time.Time

	mu      sync.Mutex
	order   *expirable.LRU[string, *entry]
	touches chan string

	onRemove func(key string)
}

func newExactStore(maxEntries int, ttl time.Duration, now func() time.Time, onRemove func(key string)) *exactStore {
	s := &exactStore{
		ttl:      ttl,
		now:      now,
		touches:  make(chan string, 256),
		onRemove: onRemove,
	}
	s.order = expirable.NewLRU[string, *entry](maxEntries, s.evicted, ttl)
	return s
}

func (s *exactStore) get(key string) (models.Rationale, bool) {
	v, ok := s.entries.Load(key)
	if !ok {
		return models.Rationale{}, false
	}
	e := v.(*entry)
	if s.now().After(e.expires) {
		return models.Rationale{}, false
	}
	select {
	case s.touches <- key:
	default:
	}
	return cloneRationale(e.rationale), true
}

// put stores r under key. The last writer for a key wins.
func (s *exactStore) put(key string, r models.Rationale) {
	e := &entry{rationale: cloneRationale(r), expires: s.now().Add(s.ttl)}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.drainTouches()
	s.entries.Store(key, e)
	s.order.Add(key, e)
}

func (s *exactStore) drainTouches() {
	for {
		select {
		case key := <-s.touches:
			s.order.Get(key)
		default:
			return
		}
	}
}

// evicted runs for LRU overflow and for TTL expiry. CompareAndDelete keeps a newer
// value stored under the same key.
func (s *exactStore) evicted(key string, e *entry) {
	if s.entries.CompareAndDelete(key, e) && s.onRemove != nil {
		s.onRemove(key)
	}
}

func (s *exactStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}
