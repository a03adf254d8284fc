package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/slidesmith/slidesmith/core"
	"github.com/slidesmith/slidesmith/logging"
)

// DefaultTTL is the idle lifetime of a session measured from last activity.
const DefaultTTL = time.Hour

// Options configures an InMemoryStore.
type Options struct {
	// TTL is the idle lifetime of a session. A session whose last activity
	// lies more than TTL in the past is expired.
	TTL time.Duration
	// Now supplies the store's clock. Override for deterministic expiry
	// tests.
	Now func() time.Time
	// Logger receives store lifecycle events.
	Logger logging.Logger
}

// InMemoryStore is a volatile core.SessionStore implementation storing
// sessions in a process local map. It is safe for concurrent access: one
// exclusive critical section covers every operation. Each returned session is
// cloned to prevent external mutation of internal state.
//
// Expiry is opportunistic. Create and ActiveCount sweep before acting, Sweep
// is the explicit trigger, and Get purges a logically expired entry on
// access, so an expired session is never observable regardless of sweep
// timing.
type InMemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*core.Session
	ttl      time.Duration
	now      func() time.Time
	logger   logging.Logger
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore(optFns ...func(o *Options)) *InMemoryStore {
	opts := Options{TTL: DefaultTTL, Now: time.Now, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &InMemoryStore{
		sessions: make(map[string]*core.Session),
		ttl:      opts.TTL,
		now:      opts.Now,
		logger:   opts.Logger,
	}
}

// Create allocates a session with a fresh unique id, an empty transcript and
// ready=false, sweeping expired sessions first.
func (s *InMemoryStore) Create(template string) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	id := uuid.NewString()
	sess := core.NewSession(id, template, s.now())
	s.sessions[id] = sess
	s.logger.Info("Created session", "session_id", id, "template", template)
	return sess.Clone(), nil
}

// Get returns a clone of the session, or a NotFound error if the id is
// absent or the session has expired. Expired entries are purged on access.
func (s *InMemoryStore) Get(id string) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.resolveLocked(id)
	if err != nil {
		return nil, err
	}
	return sess.Clone(), nil
}

// AddMessage appends a message to the transcript, stamping it with the
// store's clock, and returns the stored message.
func (s *InMemoryStore) AddMessage(id string, role core.Role, content string) (*core.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.resolveLocked(id)
	if err != nil {
		return nil, err
	}
	msg := core.ChatMessage{Role: role, Content: content, Timestamp: s.now()}
	sess.Append(msg)
	return &msg, nil
}

// SetReady sets the ready-for-draft flag. Repeated calls with the same value
// are idempotent.
func (s *InMemoryStore) SetReady(id string, ready bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.resolveLocked(id)
	if err != nil {
		return err
	}
	sess.ReadyForDraft = ready
	sess.Touch(s.now())
	return nil
}

// SetDraft atomically attaches a draft clone without altering the ready flag.
func (s *InMemoryStore) SetDraft(id string, draft *core.Presentation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.resolveLocked(id)
	if err != nil {
		return err
	}
	if draft != nil {
		sess.Draft = draft.Clone()
	} else {
		sess.Draft = nil
	}
	sess.Touch(s.now())
	return nil
}

// UpdateInfo merges extracted key/value pairs into the session.
func (s *InMemoryStore) UpdateInfo(id string, info map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.resolveLocked(id)
	if err != nil {
		return err
	}
	sess.MergeInfo(info)
	sess.Touch(s.now())
	return nil
}

// Delete removes the session, reporting whether a live session existed. An
// expired entry is already invisible, so deleting one reports false.
func (s *InMemoryStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	delete(s.sessions, id)
	if sess.Expired(s.now(), s.ttl) {
		return false
	}
	s.logger.Info("Deleted session", "session_id", id)
	return true
}

// ActiveCount sweeps expired sessions, then returns the live count.
func (s *InMemoryStore) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	return len(s.sessions)
}

// Sweep removes all expired sessions and returns how many were removed.
func (s *InMemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked()
}

// resolveLocked returns the live session for id, purging it first if the TTL
// has elapsed. Caller must hold the lock.
func (s *InMemoryStore) resolveLocked(id string) (*core.Session, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, notFound(id)
	}
	if sess.Expired(s.now(), s.ttl) {
		delete(s.sessions, id)
		s.logger.Debug("Purged expired session", "session_id", id)
		return nil, notFound(id)
	}
	return sess, nil
}

// notFound gives absent and expired sessions one indistinguishable error.
func notFound(id string) *core.Error {
	return core.NewNotFound(core.CodeSessionNotFound, fmt.Sprintf("session %q not found or expired", id))
}

// sweepLocked removes every expired session. Caller must hold the lock.
func (s *InMemoryStore) sweepLocked() int {
	now := s.now()
	removed := 0
	for id, sess := range s.sessions {
		if sess.Expired(now, s.ttl) {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info("Cleaned up expired sessions", "removed", removed, "active", len(s.sessions))
	}
	return removed
}
