package gateway

import (
	"errors"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/models"
	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/session"
	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/vfs"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionBusy     = errors.New("session is processing a message")
)

// Session is one user's conversation: its current state, the inputs handed
// to the next turn, and the visible history.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time

	Registry *vfs.Registry
	hub      *Hub

	mu      sync.Mutex
	state   session.State
	task    string
	files   []models.File
	history []models.Interaction
	// generated is copied from the state at turn end; the running state
	// owns its own file set while Interact is in flight.
	generated []models.File
	busy      bool
}

func newSession(id, userID, task string, files []models.File, initial session.State) *Session {
	s := &Session{
		ID:        id,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
		Registry:  vfs.NewRegistry(),
		hub:       NewHub(),
		state:     initial,
		task:      task,
		files:     models.CloneFiles(files),
	}
	if it, ok := initial.(*session.CodeGenIteration); ok {
		s.generated = it.Files()
	}
	return s
}

// Snapshot is a consistent read of a session.
type Snapshot struct {
	State          session.State
	Busy           bool
	Task           string
	ConversationID string
	History        []models.Interaction
	Files          []models.File
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		State:          s.state,
		Busy:           s.busy,
		Task:           s.task,
		ConversationID: s.state.Conversation().ConversationID,
		History:        append([]models.Interaction(nil), s.history...),
		Files:          models.CloneFiles(s.generated),
	}
	return snap
}

// beginTurn claims the session for one interact call. files replaces the
// snapshot when non-nil.
func (s *Session) beginTurn(message string, files []models.File) (session.State, session.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy {
		return nil, session.Action{}, ErrSessionBusy
	}
	s.busy = true

	if files != nil {
		s.files = models.CloneFiles(files)
	}
	if message != "" {
		s.record(models.UserMessage(message))
	}

	return s.state, session.Action{
		Task:    s.task,
		Files:   models.CloneFiles(s.files),
		Message: message,
		Append:  s.Append,
		FS:      s.Registry,
	}, nil
}

func (s *Session) endTurn(result session.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, i := range result.Interactions {
		s.record(i)
	}
	s.state = result.Next
	s.generated = nil
	if it, ok := result.Next.(*session.CodeGenIteration); ok {
		s.generated = it.Files()
	}
	s.busy = false
}

// Append records an interaction and pushes it to subscribers.
func (s *Session) Append(i models.Interaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(i)
}

func (s *Session) record(i models.Interaction) {
	s.history = append(s.history, i)
	s.hub.Publish(i)
}

// Subscribe returns the history so far and a channel of later interactions.
func (s *Session) Subscribe() ([]models.Interaction, <-chan models.Interaction, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, unsubscribe := s.hub.Subscribe()
	return append([]models.Interaction(nil), s.history...), ch, unsubscribe
}

func (s *Session) close() {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	state.Cancel()
	s.hub.Close()
}

// Store keeps sessions in memory, evicting those idle past the TTL.
type Store struct {
	cache  *cache.Cache
	logger *zap.Logger
}

func NewStore(ttl time.Duration, logger *zap.Logger) *Store {
	c := cache.New(ttl, ttl/2)
	c.OnEvicted(func(id string, v interface{}) {
		logger.Info("session closed", zap.String("session_id", id))
		v.(*Session).close()
	})
	return &Store{cache: c, logger: logger}
}

func (st *Store) Put(s *Session) {
	st.cache.Set(s.ID, s, cache.DefaultExpiration)
}

// Get returns the session and refreshes its expiry.
func (st *Store) Get(id string) (*Session, error) {
	v, ok := st.cache.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	s := v.(*Session)
	st.cache.Set(id, s, cache.DefaultExpiration)
	return s, nil
}

// Delete removes the session, cancelling its current state.
func (st *Store) Delete(id string) error {
	if _, ok := st.cache.Get(id); !ok {
		return ErrSessionNotFound
	}
	st.cache.Delete(id)
	return nil
}

func (st *Store) Len() int {
	return st.cache.ItemCount()
}

// Close evicts every session.
func (st *Store) Close() {
	for id := range st.cache.Items() {
		st.cache.Delete(id)
	}
}
