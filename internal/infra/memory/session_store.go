package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"

	"github.com/google/uuid"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
// Writes to one session are serialized by that session's own mutex.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*sessionEntry
}

type sessionEntry struct {
	mu        sync.Mutex
	session   domain.QuizSession
	responses []domain.Response
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[uuid.UUID]*sessionEntry),
	}
}

func (s *SessionStore) Create(_ context.Context, session domain.QuizSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = &sessionEntry{session: session}
	return nil
}

func (s *SessionStore) entry(sessionID uuid.UUID) (*sessionEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.sessions[sessionID]
	return entry, ok
}

func (s *SessionStore) Get(_ context.Context, sessionID uuid.UUID) (domain.QuizSession, error) {
	entry, ok := s.entry(sessionID)
	if !ok {
		return domain.QuizSession{}, domain.ErrSessionNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.session, nil
}

func (s *SessionStore) List(_ context.Context, filter domain.SessionFilter) ([]domain.QuizSession, error) {
	s.mu.RLock()
	entries := make([]*sessionEntry, 0, len(s.sessions))
	for _, entry := range s.sessions {
		entries = append(entries, entry)
	}
	s.mu.RUnlock()

	out := make([]domain.QuizSession, 0, len(entries))
	for _, entry := range entries {
		entry.mu.Lock()
		session := entry.session
		entry.mu.Unlock()
		if filter.Matches(session) {
			out = append(out, session)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *SessionStore) Responses(_ context.Context, sessionID uuid.UUID) ([]domain.Response, error) {
	entry, ok := s.entry(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	out := make([]domain.Response, len(entry.responses))
	copy(out, entry.responses)
	return out, nil
}

func (s *SessionStore) Update(ctx context.Context, sessionID uuid.UUID, fn func(ctx context.Context, tx app.SessionTx) error) error {
	entry, ok := s.entry(sessionID)
	if !ok {
		return domain.ErrSessionNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return fn(ctx, &sessionTx{entry: entry})
}

// sessionTx is only used while entry.mu is held.
type sessionTx struct {
	entry *sessionEntry
}

func (tx *sessionTx) Session() domain.QuizSession {
	return tx.entry.session
}

func (tx *sessionTx) Responses(_ context.Context) ([]domain.Response, error) {
	out := make([]domain.Response, len(tx.entry.responses))
	copy(out, tx.entry.responses)
	return out, nil
}

func (tx *sessionTx) AddResponse(_ context.Context, response domain.Response) error {
	for _, r := range tx.entry.responses {
		if r.QuestionID == response.QuestionID {
			return domain.ErrAlreadyAnswered
		}
	}
	tx.entry.responses = append(tx.entry.responses, response)
	return nil
}

func (tx *sessionTx) Complete(_ context.Context, score float64, completedAt time.Time) (domain.QuizSession, error) {
	if tx.entry.session.IsCompleted {
		return domain.QuizSession{}, domain.ErrSessionCompleted
	}
	tx.entry.session.Score = score
	tx.entry.session.IsCompleted = true
	tx.entry.session.CompletedAt = &completedAt
	return tx.entry.session, nil
}
