package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quiz-session-service/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// Catalog reads quiz trees from the quizzes/questions/answers tables.
type Catalog struct {
	pool *pgxpool.Pool
}

func NewCatalog(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool}
}

const quizColumns = `id, title, COALESCE(author_id, 0), created_at`

func (c *Catalog) ListQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	rows, err := c.pool.Query(ctx, `SELECT `+quizColumns+` FROM quizzes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	defer rows.Close()

	var (
		quizzes []domain.Quiz
		ids     []int64
	)
	for rows.Next() {
		var q domain.Quiz
		if err := rows.Scan(&q.ID, &q.Title, &q.AuthorID, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan quiz: %w", err)
		}
		quizzes = append(quizzes, q)
		ids = append(ids, q.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}

	questions, err := c.loadQuestions(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range quizzes {
		quizzes[i].Questions = questions[quizzes[i].ID]
	}
	return quizzes, nil
}

func (c *Catalog) GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	var q domain.Quiz
	err := c.pool.QueryRow(ctx, `SELECT `+quizColumns+` FROM quizzes WHERE id=$1`, quizID).
		Scan(&q.ID, &q.Title, &q.AuthorID, &q.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}

	questions, err := c.loadQuestions(ctx, []int64{quizID})
	if err != nil {
		return domain.Quiz{}, err
	}
	q.Questions = questions[quizID]
	return q, nil
}

func (c *Catalog) ListQuestions(ctx context.Context, quizID int64) ([]domain.Question, error) {
	quiz, err := c.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	return quiz.Questions, nil
}

func (c *Catalog) ListAnswers(ctx context.Context, questionID int64) ([]domain.Answer, error) {
	var exists bool
	if err := c.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM questions WHERE id=$1)`, questionID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("load question: %w", err)
	}
	if !exists {
		return nil, domain.ErrQuestionNotFound
	}

	rows, err := c.pool.Query(ctx,
		`SELECT id, question_id, answer_text, is_correct FROM answers WHERE question_id=$1 ORDER BY id`, questionID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	answers := []domain.Answer{}
	for rows.Next() {
		var a domain.Answer
		if err := rows.Scan(&a.ID, &a.QuestionID, &a.Text, &a.IsCorrect); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

func (c *Catalog) GetAnswer(ctx context.Context, answerID int64) (domain.Answer, error) {
	var a domain.Answer
	err := c.pool.QueryRow(ctx,
		`SELECT id, question_id, answer_text, is_correct FROM answers WHERE id=$1`, answerID).
		Scan(&a.ID, &a.QuestionID, &a.Text, &a.IsCorrect)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Answer{}, domain.ErrAnswerNotFound
	}
	if err != nil {
		return domain.Answer{}, fmt.Errorf("load answer: %w", err)
	}
	return a, nil
}

// loadQuestions returns the question trees of the given quizzes, ordered by id.
func (c *Catalog) loadQuestions(ctx context.Context, quizIDs []int64) (map[int64][]domain.Question, error) {
	out := make(map[int64][]domain.Question, len(quizIDs))
	if len(quizIDs) == 0 {
		return out, nil
	}
	rows, err := c.pool.Query(ctx, `
		SELECT q.id, q.quiz_id, q.prompt, a.id, a.answer_text, a.is_correct
		FROM questions q
		LEFT JOIN answers a ON a.question_id = q.id
		WHERE q.quiz_id = ANY($1)
		ORDER BY q.id, a.id`, quizIDs)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			q         domain.Question
			answerID  *int64
			text      *string
			isCorrect *bool
		)
		if err := rows.Scan(&q.ID, &q.QuizID, &q.Prompt, &answerID, &text, &isCorrect); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions := out[q.QuizID]
		if n := len(questions); n == 0 || questions[n-1].ID != q.ID {
			q.Answers = []domain.Answer{}
			questions = append(questions, q)
		}
		if answerID != nil {
			last := &questions[len(questions)-1]
			last.Answers = append(last.Answers, domain.Answer{
				ID:         *answerID,
				QuestionID: q.ID,
				Text:       deref(text),
				IsCorrect:  isCorrect != nil && *isCorrect,
			})
		}
		out[q.QuizID] = questions
	}
	return out, rows.Err()
}

// Seed upserts quiz trees in one transaction and advances the id sequences past them.
func (c *Catalog) Seed(ctx context.Context, quizzes []domain.Quiz) error {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, quiz := range quizzes {
		var createdAt *time.Time
		if !quiz.CreatedAt.IsZero() {
			createdAt = &quiz.CreatedAt
		}
		batch.Queue(`INSERT INTO quizzes (id, title, author_id, created_at)
			VALUES ($1, $2, NULLIF($3::bigint, 0), COALESCE($4, now()))
			ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, author_id=EXCLUDED.author_id`,
			quiz.ID, quiz.Title, quiz.AuthorID, createdAt)
		for _, q := range quiz.Questions {
			batch.Queue(`INSERT INTO questions (id, quiz_id, prompt) VALUES ($1, $2, $3)
				ON CONFLICT (id) DO UPDATE SET quiz_id=EXCLUDED.quiz_id, prompt=EXCLUDED.prompt`,
				q.ID, quiz.ID, q.Prompt)
			for _, a := range q.Answers {
				batch.Queue(`INSERT INTO answers (id, question_id, answer_text, is_correct) VALUES ($1, $2, $3, $4)
					ON CONFLICT (id) DO UPDATE SET question_id=EXCLUDED.question_id,
						answer_text=EXCLUDED.answer_text, is_correct=EXCLUDED.is_correct`,
					a.ID, q.ID, a.Text, a.IsCorrect)
			}
		}
	}
	for _, table := range []string{"quizzes", "questions", "answers"} {
		batch.Queue(fmt.Sprintf(
			`SELECT setval(pg_get_serial_sequence('%[1]s', 'id'), GREATEST((SELECT MAX(id) FROM %[1]s), 1))`, table))
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	return tx.Commit(ctx)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
