package core

import "time"

// Role identifies the author of a chat message.
type Role string

const (
	// RoleUser marks a message authored by the end user.
	RoleUser Role = "user"
	// RoleAssistant marks a message authored by the model.
	RoleAssistant Role = "assistant"
)

// ChatMessage is one immutable entry in a session transcript.
type ChatMessage struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionState is the observable lifecycle position of a session, derived
// from its content rather than stored. Expiry is not a state: an expired
// session is simply invisible (NotFound) to every store operation.
type SessionState string

const (
	// StateCreated: session exists but carries no messages yet.
	StateCreated SessionState = "created"
	// StateConversing: at least one message, still gathering information.
	StateConversing SessionState = "conversing"
	// StateReadyForDraft: the model signalled it has enough to draft.
	StateReadyForDraft SessionState = "ready_for_draft"
	// StateDraftAvailable: a validated draft is attached.
	StateDraftAvailable SessionState = "draft_available"
)

// Session is one bounded conversational context for a single in-progress
// presentation request.
//
// Contract:
//   - Messages is append-only and order-preserving
//   - LastActivity never decreases
//   - mutation goes through a SessionStore, which owns synchronization and
//     hands out clones; Session itself carries no lock
//   - Clone performs deep copies of maps/slices for safe divergence.
type Session struct {
	ID            string         `json:"id"`
	Template      string         `json:"template"`
	Messages      []ChatMessage  `json:"messages"`
	ExtractedInfo map[string]any `json:"extracted_info,omitempty"`
	Draft         *Presentation  `json:"draft,omitempty"`
	ReadyForDraft bool           `json:"ready_for_draft"`
	CreatedAt     time.Time      `json:"created_at"`
	LastActivity  time.Time      `json:"last_activity"`
}

// NewSession creates an empty session. The caller supplies the creation
// instant so stores can stamp all timestamps from a single clock.
func NewSession(id, template string, now time.Time) *Session {
	return &Session{
		ID:            id,
		Template:      template,
		Messages:      []ChatMessage{},
		ExtractedInfo: map[string]any{},
		CreatedAt:     now,
		LastActivity:  now,
	}
}

// Touch advances LastActivity to t unless that would move it backwards.
func (s *Session) Touch(t time.Time) {
	if t.After(s.LastActivity) {
		s.LastActivity = t
	}
}

// Append adds a message to the transcript and touches the session with the
// message timestamp.
func (s *Session) Append(msg ChatMessage) {
	s.Messages = append(s.Messages, msg)
	s.Touch(msg.Timestamp)
}

// MergeInfo merges extracted key/value pairs into ExtractedInfo.
func (s *Session) MergeInfo(info map[string]any) {
	if s.ExtractedInfo == nil {
		s.ExtractedInfo = map[string]any{}
	}
	for k, v := range info {
		s.ExtractedInfo[k] = v
	}
}

// History returns a copy of the transcript safe for independent mutation.
func (s *Session) History() []ChatMessage {
	msgs := make([]ChatMessage, len(s.Messages))
	copy(msgs, s.Messages)
	return msgs
}

// Expired reports whether the session's TTL has elapsed at the given instant.
func (s *Session) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.LastActivity) > ttl
}

// State derives the lifecycle position from session content.
func (s *Session) State() SessionState {
	switch {
	case s.Draft != nil:
		return StateDraftAvailable
	case s.ReadyForDraft:
		return StateReadyForDraft
	case len(s.Messages) > 0:
		return StateConversing
	default:
		return StateCreated
	}
}

// Clone returns a deep copy of the session safe for independent mutation.
func (s *Session) Clone() *Session {
	clone := &Session{
		ID:            s.ID,
		Template:      s.Template,
		Messages:      make([]ChatMessage, len(s.Messages)),
		ExtractedInfo: make(map[string]any, len(s.ExtractedInfo)),
		ReadyForDraft: s.ReadyForDraft,
		CreatedAt:     s.CreatedAt,
		LastActivity:  s.LastActivity,
	}
	copy(clone.Messages, s.Messages)
	for k, v := range s.ExtractedInfo {
		clone.ExtractedInfo[k] = v
	}
	if s.Draft != nil {
		clone.Draft = s.Draft.Clone()
	}
	return clone
}

// SessionStore persists sessions and their evolving transcripts. Every
// mutating operation is atomic relative to all other store operations, and no
// operation ever observes a logically expired session.
//
// Expiry is opportunistic rather than timer-driven: Create and ActiveCount
// sweep before acting, Sweep is the explicit trigger, and Get purges a
// logically expired entry lazily on access.
type SessionStore interface {
	// Create allocates a session with a fresh unique id, an empty
	// transcript and ready=false. It sweeps expired sessions first.
	Create(template string) (*Session, error)
	// Get returns a clone of the session, or a NotFound error if the id is
	// absent or the session has expired.
	Get(id string) (*Session, error)
	// AddMessage appends a message to the transcript and returns the stored
	// message.
	AddMessage(id string, role Role, content string) (*ChatMessage, error)
	// SetReady sets the ready-for-draft flag. Repeated calls with the same
	// value are idempotent.
	SetReady(id string, ready bool) error
	// SetDraft atomically attaches a draft without altering the ready flag.
	SetDraft(id string, draft *Presentation) error
	// UpdateInfo merges extracted key/value pairs into the session.
	UpdateInfo(id string, info map[string]any) error
	// Delete removes the session, reporting whether it existed.
	Delete(id string) bool
	// ActiveCount sweeps expired sessions, then returns the live count.
	ActiveCount() int
	// Sweep removes all expired sessions and returns how many were removed.
	Sweep() int
}
