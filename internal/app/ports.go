package app

import (
	"context"
	"time"

	"quiz-session-service/internal/domain"

	"github.com/google/uuid"
)

// Catalog is the read model of quizzes, questions and answers.
type Catalog interface {
	ListQuizzes(ctx context.Context) ([]domain.Quiz, error)
	GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error)
	ListQuestions(ctx context.Context, quizID int64) ([]domain.Question, error)
	ListAnswers(ctx context.Context, questionID int64) ([]domain.Answer, error)
	GetAnswer(ctx context.Context, answerID int64) (domain.Answer, error)
}

// IdentityProvider yields the caller bound to a request context.
type IdentityProvider interface {
	CurrentUser(ctx context.Context) (domain.Identity, error)
}

// SessionRepository abstracts how quiz sessions are stored (in-memory, Redis, Postgres).
type SessionRepository interface {
	Create(ctx context.Context, session domain.QuizSession) error
	Get(ctx context.Context, sessionID uuid.UUID) (domain.QuizSession, error)
	List(ctx context.Context, filter domain.SessionFilter) ([]domain.QuizSession, error)
	Responses(ctx context.Context, sessionID uuid.UUID) ([]domain.Response, error)
	// Update runs fn while holding the write lock of a single session.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Update(ctx context.Context, sessionID uuid.UUID, fn func(ctx context.Context, tx SessionTx) error) error
}

// SessionTx is the locked view of one session handed to SessionRepository.Update.
type SessionTx interface {
	Session() domain.QuizSession
	Responses(ctx context.Context) ([]domain.Response, error)
	// AddResponse fails with domain.ErrAlreadyAnswered when the question already has a response.
	AddResponse(ctx context.Context, response domain.Response) error
	// Complete fails with domain.ErrSessionCompleted unless the session was still active.
	Complete(ctx context.Context, score float64, completedAt time.Time) (domain.QuizSession, error)
}
