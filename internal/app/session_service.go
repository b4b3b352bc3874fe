package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"quiz-session-service/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionService contains the quiz session use cases.
type SessionService struct {
	sessions   SessionRepository
	catalog    Catalog
	identities IdentityProvider
	log        *zap.Logger
	now        func() time.Time
}

func NewSessionService(sessions SessionRepository, catalog Catalog, identities IdentityProvider, log *zap.Logger) *SessionService {
	return NewSessionServiceWithClock(sessions, catalog, identities, log, time.Now)
}

// NewSessionServiceWithClock allows deterministic timestamps in tests.
func NewSessionServiceWithClock(sessions SessionRepository, catalog Catalog, identities IdentityProvider, log *zap.Logger, now func() time.Time) *SessionService {
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionService{
		sessions:   sessions,
		catalog:    catalog,
		identities: identities,
		log:        log.With(zap.String("component", "session_service")),
		now:        now,
	}
}

// Catalog exposes the read model for presentation layers.
func (s *SessionService) Catalog() Catalog {
	return s.catalog
}

// CurrentUser resolves the caller, failing with domain.ErrUnauthenticated.
func (s *SessionService) CurrentUser(ctx context.Context) (domain.Identity, error) {
	id, err := s.identities.CurrentUser(ctx)
	if err != nil {
		return domain.Identity{}, err
	}
	return id, nil
}

// CreateSession starts a new attempt of quizID owned by the caller.
func (s *SessionService) CreateSession(ctx context.Context, quizID int64) (domain.QuizSession, error) {
	caller, err := s.CurrentUser(ctx)
	if err != nil {
		return domain.QuizSession{}, err
	}
	if _, err := s.catalog.GetQuiz(ctx, quizID); err != nil {
		return domain.QuizSession{}, err
	}

	session := domain.QuizSession{
		ID:        uuid.New(),
		UserID:    caller.UserID,
		QuizID:    quizID,
		StartedAt: s.now().UTC(),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return domain.QuizSession{}, fmt.Errorf("create session: %w", err)
	}
	s.log.Info("session started",
		zap.String("session_id", session.ID.String()),
		zap.Int64("user_id", caller.UserID),
		zap.Int64("quiz_id", quizID))
	return session, nil
}

// GetSession returns a session the caller is allowed to read.
func (s *SessionService) GetSession(ctx context.Context, sessionID uuid.UUID) (domain.QuizSession, error) {
	caller, err := s.CurrentUser(ctx)
	if err != nil {
		return domain.QuizSession{}, err
	}
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.QuizSession{}, err
	}
	if !caller.CanReadSession(session) {
		return domain.QuizSession{}, domain.ErrNotSessionOwner
	}
	return session, nil
}

// ListSessions lists the caller's sessions; privileged callers see everyone's.
func (s *SessionService) ListSessions(ctx context.Context, filter domain.SessionFilter) ([]domain.QuizSession, error) {
	caller, err := s.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	if !caller.Role.Privileged() {
		filter.UserID = caller.UserID
	}
	return s.sessions.List(ctx, filter)
}

// ListResponses returns the responses recorded for a readable session.
func (s *SessionService) ListResponses(ctx context.Context, sessionID uuid.UUID) ([]domain.Response, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.sessions.Responses(ctx, sessionID)
}

// RecordResponse stores the caller's answer to one question of an active session.
func (s *SessionService) RecordResponse(ctx context.Context, sessionID uuid.UUID, questionID, answerID int64) (domain.Response, error) {
	caller, err := s.CurrentUser(ctx)
	if err != nil {
		return domain.Response{}, err
	}
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.Response{}, err
	}
	if !caller.CanWriteSession(session) {
		return domain.Response{}, domain.ErrNotSessionOwner
	}
	if session.IsCompleted {
		return domain.Response{}, domain.ErrSessionCompleted
	}

	if err := s.checkReferences(ctx, session.QuizID, questionID, answerID); err != nil {
		return domain.Response{}, err
	}

	response := domain.Response{
		ID:         uuid.New(),
		SessionID:  sessionID,
		QuestionID: questionID,
		AnswerID:   answerID,
	}
	err = s.sessions.Update(ctx, sessionID, func(ctx context.Context, tx SessionTx) error {
		if tx.Session().IsCompleted {
			return domain.ErrSessionCompleted
		}
		response.AnsweredAt = s.now().UTC()
		return tx.AddResponse(ctx, response)
	})
	if err != nil {
		return domain.Response{}, err
	}
	s.log.Debug("response recorded",
		zap.String("session_id", sessionID.String()),
		zap.Int64("question_id", questionID),
		zap.Int64("answer_id", answerID))
	return response, nil
}

func (s *SessionService) checkReferences(ctx context.Context, quizID, questionID, answerID int64) error {
	questions, err := s.catalog.ListQuestions(ctx, quizID)
	if err != nil {
		return err
	}
	found := false
	for _, q := range questions {
		if q.ID == questionID {
			found = true
			break
		}
	}
	if !found {
		return domain.ErrQuestionNotInQuiz
	}

	answer, err := s.catalog.GetAnswer(ctx, answerID)
	if err != nil {
		return err
	}
	if answer.QuestionID != questionID {
		return domain.ErrAnswerNotInQuestion
	}
	return nil
}

// CalculateScore completes the session and stores its percentage score.
// A session is scored at most once; later calls fail with domain.ErrSessionCompleted.
func (s *SessionService) CalculateScore(ctx context.Context, sessionID uuid.UUID) (domain.QuizSession, error) {
	caller, err := s.CurrentUser(ctx)
	if err != nil {
		return domain.QuizSession{}, err
	}
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.QuizSession{}, err
	}
	if !caller.CanWriteSession(session) {
		return domain.QuizSession{}, domain.ErrNotSessionOwner
	}
	if session.IsCompleted {
		return domain.QuizSession{}, domain.ErrSessionCompleted
	}

	questions, err := s.catalog.ListQuestions(ctx, session.QuizID)
	if err != nil {
		return domain.QuizSession{}, err
	}
	if len(questions) == 0 {
		return domain.QuizSession{}, domain.ErrQuizHasNoQuestions
	}
	correctness := make(map[int64]bool)
	for _, q := range questions {
		for _, a := range q.Answers {
			correctness[a.ID] = a.IsCorrect
		}
	}

	var scored domain.QuizSession
	err = s.sessions.Update(ctx, sessionID, func(ctx context.Context, tx SessionTx) error {
		current := tx.Session()
		if current.IsCompleted {
			return domain.ErrSessionCompleted
		}
		responses, err := tx.Responses(ctx)
		if err != nil {
			return err
		}
		correct := 0
		for _, r := range responses {
			ok, err := s.isCorrect(ctx, correctness, r.AnswerID)
			if err != nil {
				return err
			}
			if ok {
				correct++
			}
		}

		completedAt := s.now().UTC()
		if completedAt.Before(current.StartedAt) {
			completedAt = current.StartedAt
		}
		scored, err = tx.Complete(ctx, percentage(correct, len(questions)), completedAt)
		return err
	})
	if err != nil {
		return domain.QuizSession{}, err
	}
	s.log.Info("session scored",
		zap.String("session_id", sessionID.String()),
		zap.Float64("score", scored.Score))
	return scored, nil
}

// isCorrect prefers the flags of the quiz tree and falls back to the catalog for
// answers that are no longer attached to the quiz.
func (s *SessionService) isCorrect(ctx context.Context, known map[int64]bool, answerID int64) (bool, error) {
	if ok, found := known[answerID]; found {
		return ok, nil
	}
	answer, err := s.catalog.GetAnswer(ctx, answerID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return answer.IsCorrect, nil
}

func percentage(correct, total int) float64 {
	score := float64(correct) / float64(total) * 100
	return math.Max(0, math.Min(100, score))
}
