package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/memory"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestCatalogCacheCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	source := &countingCatalog{Catalog: memory.NewStaticCatalog([]domain.Quiz{sampleQuiz()})}
	cache := NewCatalogCache(newClient(mr), source, time.Minute)

	quiz, err := cache.GetQuiz(context.Background(), 1)
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if quiz.QuestionCount() != 1 {
		t.Fatalf("expected 1 question, got %d", quiz.QuestionCount())
	}
	if source.quizCalls != 1 {
		t.Fatalf("expected source called once, got %d", source.quizCalls)
	}
	if !mr.Exists("catalog:quiz:1") {
		t.Fatalf("expected quiz tree cached")
	}
	if ttl := mr.TTL("catalog:quiz:1"); ttl < time.Minute || ttl > time.Minute+6*time.Second {
		t.Fatalf("expected ttl with jitter, got %v", ttl)
	}

	// Second call should hit cache, source not incremented.
	questions, err := cache.ListQuestions(context.Background(), 1)
	if err != nil {
		t.Fatalf("list questions: %v", err)
	}
	if source.quizCalls != 1 {
		t.Fatalf("expected cache hit, source calls=%d", source.quizCalls)
	}
	if len(questions[0].Answers) != 2 || !questions[0].Answers[1].IsCorrect {
		t.Fatalf("expected answers to survive the round trip, got %+v", questions[0].Answers)
	}

	if err := cache.Invalidate(context.Background(), sampleQuiz()); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	_, _ = cache.GetQuiz(context.Background(), 1)
	if source.quizCalls != 2 {
		t.Fatalf("expected reload after invalidate, got %d", source.quizCalls)
	}
}

func TestCatalogCacheAnswers(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	cache := NewCatalogCache(newClient(mr), memory.NewStaticCatalog([]domain.Quiz{sampleQuiz()}), time.Minute)

	answer, err := cache.GetAnswer(context.Background(), 101)
	if err != nil {
		t.Fatalf("get answer: %v", err)
	}
	if answer.QuestionID != 10 || !answer.IsCorrect {
		t.Fatalf("unexpected answer %+v", answer)
	}
	answers, err := cache.ListAnswers(context.Background(), 10)
	if err != nil || len(answers) != 2 {
		t.Fatalf("list answers: %+v %v", answers, err)
	}
	if _, err := cache.GetAnswer(context.Background(), 999); !errors.Is(err, domain.ErrAnswerNotFound) {
		t.Fatalf("expected answer not found, got %v", err)
	}
	if mr.Exists("catalog:answer:999") {
		t.Fatalf("misses must not be cached")
	}
}

func TestCatalogCacheFallsBackWhenRedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	client := newClient(mr)
	mr.Close()

	cache := NewCatalogCache(client, memory.NewStaticCatalog([]domain.Quiz{sampleQuiz()}), time.Minute)
	if _, err := cache.GetQuiz(context.Background(), 1); err != nil {
		t.Fatalf("expected source fallback, got %v", err)
	}
}

func TestCatalogCacheInvalidateDropsAnswerEntries(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	source := &mutableCatalog{quiz: sampleQuiz()}
	cache := NewCatalogCache(newClient(mr), source, time.Minute)

	if _, err := cache.GetQuiz(ctx, 1); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if _, err := cache.ListAnswers(ctx, 10); err != nil {
		t.Fatalf("list answers: %v", err)
	}
	if a, err := cache.GetAnswer(ctx, 100); err != nil || a.IsCorrect {
		t.Fatalf("expected answer 100 incorrect before reseed, got %+v %v", a, err)
	}

	// Reseed flips the correct answer.
	reseeded := sampleQuiz()
	reseeded.Questions[0].Answers[0].IsCorrect = true
	reseeded.Questions[0].Answers[1].IsCorrect = false
	source.quiz = reseeded

	if err := cache.Invalidate(ctx, reseeded); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	for _, key := range []string{"catalog:quiz:1", "catalog:quizzes", "catalog:question:10:answers", "catalog:answer:100", "catalog:answer:101"} {
		if mr.Exists(key) {
			t.Fatalf("expected %s to be dropped", key)
		}
	}
	a, err := cache.GetAnswer(ctx, 100)
	if err != nil || !a.IsCorrect {
		t.Fatalf("expected reseeded answer, got %+v %v", a, err)
	}
	answers, err := cache.ListAnswers(ctx, 10)
	if err != nil || !answers[0].IsCorrect || answers[1].IsCorrect {
		t.Fatalf("expected reseeded answers, got %+v %v", answers, err)
	}
}

func TestCatalogCacheZeroTTLDoesNotCache(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	source := &countingCatalog{Catalog: memory.NewStaticCatalog([]domain.Quiz{sampleQuiz()})}
	cache := NewCatalogCache(newClient(mr), source, 0)

	for i := 0; i < 2; i++ {
		if _, err := cache.GetQuiz(context.Background(), 1); err != nil {
			t.Fatalf("get quiz: %v", err)
		}
	}
	if mr.Exists("catalog:quiz:1") {
		t.Fatalf("expected nothing stored with zero ttl")
	}
	if source.quizCalls != 2 {
		t.Fatalf("expected every call to reach the source, got %d", source.quizCalls)
	}
}

// mutableCatalog serves whatever quiz tree it currently holds.
type mutableCatalog struct {
	quiz domain.Quiz
}

func (c *mutableCatalog) current() app.Catalog {
	return memory.NewStaticCatalog([]domain.Quiz{c.quiz})
}

func (c *mutableCatalog) ListQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	return c.current().ListQuizzes(ctx)
}

func (c *mutableCatalog) GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	return c.current().GetQuiz(ctx, quizID)
}

func (c *mutableCatalog) ListQuestions(ctx context.Context, quizID int64) ([]domain.Question, error) {
	return c.current().ListQuestions(ctx, quizID)
}

func (c *mutableCatalog) ListAnswers(ctx context.Context, questionID int64) ([]domain.Answer, error) {
	return c.current().ListAnswers(ctx, questionID)
}

func (c *mutableCatalog) GetAnswer(ctx context.Context, answerID int64) (domain.Answer, error) {
	return c.current().GetAnswer(ctx, answerID)
}

type countingCatalog struct {
	app.Catalog
	quizCalls int
}

func (c *countingCatalog) GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	c.quizCalls++
	return c.Catalog.GetQuiz(ctx, quizID)
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    1,
		Title: "Arithmetic",
		Questions: []domain.Question{
			{
				ID:     10,
				Prompt: "What is 2 + 2?",
				Answers: []domain.Answer{
					{ID: 100, Text: "3", IsCorrect: false},
					{ID: 101, Text: "4", IsCorrect: true},
				},
			},
		},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
