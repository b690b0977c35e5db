package labeler

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// SessionStore keeps open sessions in memory. A session expires after ttl
// without being fetched or stored.
type SessionStore[T any] struct {
	cache *gocache.Cache
}

func NewSessionStore[T any](ttl time.Duration) *SessionStore[T] {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SessionStore[T]{cache: gocache.New(ttl, ttl/2)}
}

func (s *SessionStore[T]) Put(sess *Session[T]) {
	s.cache.SetDefault(sess.ID(), sess)
}

// Get returns the session with id and extends its lifetime.
func (s *SessionStore[T]) Get(id string) (*Session[T], bool) {
	v, found := s.cache.Get(id)
	if !found {
		return nil, false
	}
	sess, ok := v.(*Session[T])
	if !ok {
		return nil, false
	}
	s.cache.SetDefault(id, sess)
	return sess, true
}

func (s *SessionStore[T]) Delete(id string) {
	s.cache.Delete(id)
}

// Count returns the number of cached sessions, including expired ones not
// yet cleaned up.
func (s *SessionStore[T]) Count() int {
	return s.cache.ItemCount()
}

// OnEvicted registers fn to run when a session expires or is deleted.
func (s *SessionStore[T]) OnEvicted(fn func(sess *Session[T])) {
	s.cache.OnEvicted(func(_ string, v interface{}) {
		if sess, ok := v.(*Session[T]); ok {
			fn(sess)
		}
	})
}
