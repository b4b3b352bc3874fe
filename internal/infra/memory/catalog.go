package memory

import (
	"context"
	"fmt"
	"os"
	"sort"

	"quiz-session-service/internal/domain"

	"gopkg.in/yaml.v3"
)

// StaticCatalog is a catalog backed by an in-memory slice (useful for tests/demos).
type StaticCatalog struct {
	quizzes   []domain.Quiz
	byQuiz    map[int64]int
	questions map[int64]domain.Question
	answers   map[int64]domain.Answer
}

// NewStaticCatalog indexes quizzes and orders questions and answers by id.
func NewStaticCatalog(quizzes []domain.Quiz) *StaticCatalog {
	c := &StaticCatalog{
		quizzes:   make([]domain.Quiz, 0, len(quizzes)),
		byQuiz:    make(map[int64]int, len(quizzes)),
		questions: make(map[int64]domain.Question),
		answers:   make(map[int64]domain.Answer),
	}
	for _, quiz := range Normalize(quizzes) {
		c.byQuiz[quiz.ID] = len(c.quizzes)
		c.quizzes = append(c.quizzes, quiz)
		for _, q := range quiz.Questions {
			c.questions[q.ID] = q
			for _, a := range q.Answers {
				c.answers[a.ID] = a
			}
		}
	}
	return c
}

func (c *StaticCatalog) ListQuizzes(_ context.Context) ([]domain.Quiz, error) {
	out := make([]domain.Quiz, len(c.quizzes))
	copy(out, c.quizzes)
	return out, nil
}

func (c *StaticCatalog) GetQuiz(_ context.Context, quizID int64) (domain.Quiz, error) {
	if i, ok := c.byQuiz[quizID]; ok {
		return c.quizzes[i], nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

func (c *StaticCatalog) ListQuestions(ctx context.Context, quizID int64) ([]domain.Question, error) {
	quiz, err := c.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	return quiz.Questions, nil
}

func (c *StaticCatalog) ListAnswers(_ context.Context, questionID int64) ([]domain.Answer, error) {
	q, ok := c.questions[questionID]
	if !ok {
		return nil, domain.ErrQuestionNotFound
	}
	return q.Answers, nil
}

func (c *StaticCatalog) GetAnswer(_ context.Context, answerID int64) (domain.Answer, error) {
	if a, ok := c.answers[answerID]; ok {
		return a, nil
	}
	return domain.Answer{}, domain.ErrAnswerNotFound
}

// Normalize fills parent references and sorts questions and answers by id.
// The input is not modified.
func Normalize(quizzes []domain.Quiz) []domain.Quiz {
	out := make([]domain.Quiz, 0, len(quizzes))
	for _, quiz := range quizzes {
		questions := make([]domain.Question, 0, len(quiz.Questions))
		for _, q := range quiz.Questions {
			answers := make([]domain.Answer, len(q.Answers))
			copy(answers, q.Answers)
			for i := range answers {
				answers[i].QuestionID = q.ID
			}
			sort.Slice(answers, func(i, j int) bool { return answers[i].ID < answers[j].ID })
			q.QuizID = quiz.ID
			q.Answers = answers
			questions = append(questions, q)
		}
		sort.Slice(questions, func(i, j int) bool { return questions[i].ID < questions[j].ID })
		quiz.Questions = questions
		out = append(out, quiz)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type fixture struct {
	Quizzes []domain.Quiz `yaml:"quizzes"`
}

// LoadFixture reads a YAML catalog fixture.
func LoadFixture(path string) ([]domain.Quiz, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return Normalize(f.Quizzes), nil
}
