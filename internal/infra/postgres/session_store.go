package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type sessionRow struct {
	bun.BaseModel `bun:"table:quiz_sessions,alias:s"`

	ID          uuid.UUID  `bun:"id,pk,type:uuid"`
	UserID      int64      `bun:"user_id,nullzero"`
	QuizID      int64      `bun:"quiz_id,notnull"`
	StartedAt   time.Time  `bun:"started_at,notnull"`
	CompletedAt *time.Time `bun:"completed_at"`
	Score       float64    `bun:"score,notnull"`
	IsCompleted bool       `bun:"is_completed,notnull"`
}

func (r sessionRow) toDomain() domain.QuizSession {
	return domain.QuizSession{
		ID:          r.ID,
		UserID:      r.UserID,
		QuizID:      r.QuizID,
		StartedAt:   r.StartedAt.UTC(),
		CompletedAt: utcPtr(r.CompletedAt),
		Score:       r.Score,
		IsCompleted: r.IsCompleted,
	}
}

type responseRow struct {
	bun.BaseModel `bun:"table:responses,alias:r"`

	ID         uuid.UUID `bun:"id,pk,type:uuid"`
	SessionID  uuid.UUID `bun:"session_id,type:uuid,notnull"`
	QuestionID int64     `bun:"question_id,notnull"`
	AnswerID   int64     `bun:"answer_id,notnull"`
	AnsweredAt time.Time `bun:"answered_at,notnull"`
}

func (r responseRow) toDomain() domain.Response {
	return domain.Response{
		ID:         r.ID,
		SessionID:  r.SessionID,
		QuestionID: r.QuestionID,
		AnswerID:   r.AnswerID,
		AnsweredAt: r.AnsweredAt.UTC(),
	}
}

// SessionStore persists sessions and responses through bun.
// Writers to one session serialize on its row lock.
type SessionStore struct {
	db *bun.DB
}

func NewSessionStore(db *bun.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) Create(ctx context.Context, session domain.QuizSession) error {
	row := sessionRow{
		ID:          session.ID,
		UserID:      session.UserID,
		QuizID:      session.QuizID,
		StartedAt:   session.StartedAt,
		CompletedAt: session.CompletedAt,
		Score:       session.Score,
		IsCompleted: session.IsCompleted,
	}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, sessionID uuid.UUID) (domain.QuizSession, error) {
	return getSession(ctx, s.db, sessionID, false)
}

func (s *SessionStore) List(ctx context.Context, filter domain.SessionFilter) ([]domain.QuizSession, error) {
	var rows []sessionRow
	q := s.db.NewSelect().Model(&rows).Order("started_at ASC", "id ASC")
	if filter.UserID != 0 {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.QuizID != 0 {
		q = q.Where("quiz_id = ?", filter.QuizID)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]domain.QuizSession, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *SessionStore) Responses(ctx context.Context, sessionID uuid.UUID) ([]domain.Response, error) {
	return listResponses(ctx, s.db, sessionID)
}

func (s *SessionStore) Update(ctx context.Context, sessionID uuid.UUID, fn func(ctx context.Context, tx app.SessionTx) error) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		session, err := getSession(ctx, tx, sessionID, true)
		if err != nil {
			return err
		}
		return fn(ctx, &sessionTx{tx: tx, session: session})
	})
}

func getSession(ctx context.Context, db bun.IDB, sessionID uuid.UUID, forUpdate bool) (domain.QuizSession, error) {
	var row sessionRow
	q := db.NewSelect().Model(&row).Where("id = ?", sessionID)
	if forUpdate {
		q = q.For("UPDATE")
	}
	err := q.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QuizSession{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.QuizSession{}, fmt.Errorf("load session: %w", err)
	}
	return row.toDomain(), nil
}

func listResponses(ctx context.Context, db bun.IDB, sessionID uuid.UUID) ([]domain.Response, error) {
	var rows []responseRow
	err := db.NewSelect().Model(&rows).
		Where("session_id = ?", sessionID).
		Order("answered_at ASC", "question_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	out := make([]domain.Response, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

type sessionTx struct {
	tx      bun.Tx
	session domain.QuizSession
}

func (t *sessionTx) Session() domain.QuizSession {
	return t.session
}

func (t *sessionTx) Responses(ctx context.Context) ([]domain.Response, error) {
	return listResponses(ctx, t.tx, t.session.ID)
}

func (t *sessionTx) AddResponse(ctx context.Context, response domain.Response) error {
	row := responseRow{
		ID:         response.ID,
		SessionID:  response.SessionID,
		QuestionID: response.QuestionID,
		AnswerID:   response.AnswerID,
		AnsweredAt: response.AnsweredAt,
	}
	res, err := t.tx.NewInsert().Model(&row).
		On("CONFLICT (session_id, question_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert response: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrAlreadyAnswered
	}
	return nil
}

func (t *sessionTx) Complete(ctx context.Context, score float64, completedAt time.Time) (domain.QuizSession, error) {
	res, err := t.tx.NewUpdate().Model((*sessionRow)(nil)).
		Set("score = ?", score).
		Set("is_completed = TRUE").
		Set("completed_at = ?", completedAt).
		Where("id = ?", t.session.ID).
		Where("is_completed = FALSE").
		Exec(ctx)
	if err != nil {
		return domain.QuizSession{}, fmt.Errorf("complete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.QuizSession{}, err
	}
	if n == 0 {
		return domain.QuizSession{}, domain.ErrSessionCompleted
	}
	done := t.session
	done.Score = score
	done.IsCompleted = true
	done.CompletedAt = &completedAt
	return done, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
