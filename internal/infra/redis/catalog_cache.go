package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// CatalogCache caches catalog reads in Redis as JSON and falls back to the source on cache miss.
// Keys:
//
//	catalog:quizzes                  every quiz
//	catalog:quiz:{quizID}            quiz tree with questions and answers
//	catalog:question:{id}:answers    answers of one question
//	catalog:answer:{answerID}        single answer
type CatalogCache struct {
	client *redis.Client
	source app.Catalog
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewCatalogCache(client *redis.Client, source app.Catalog, ttl time.Duration) *CatalogCache {
	return &CatalogCache{
		client: client,
		source: source,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *CatalogCache) ListQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	return fetch(ctx, c, "catalog:quizzes", c.source.ListQuizzes)
}

func (c *CatalogCache) GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	return fetch(ctx, c, quizKey(quizID), func(ctx context.Context) (domain.Quiz, error) {
		return c.source.GetQuiz(ctx, quizID)
	})
}

// ListQuestions is served from the cached quiz tree.
func (c *CatalogCache) ListQuestions(ctx context.Context, quizID int64) ([]domain.Question, error) {
	quiz, err := c.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	return quiz.Questions, nil
}

func (c *CatalogCache) ListAnswers(ctx context.Context, questionID int64) ([]domain.Answer, error) {
	return fetch(ctx, c, answersKey(questionID), func(ctx context.Context) ([]domain.Answer, error) {
		return c.source.ListAnswers(ctx, questionID)
	})
}

func (c *CatalogCache) GetAnswer(ctx context.Context, answerID int64) (domain.Answer, error) {
	return fetch(ctx, c, answerKey(answerID), func(ctx context.Context) (domain.Answer, error) {
		return c.source.GetAnswer(ctx, answerID)
	})
}

// Invalidate drops the cached tree of quiz, the quiz listing, and the answer entries of
// every question in either the given tree or the one currently cached.
func (c *CatalogCache) Invalidate(ctx context.Context, quiz domain.Quiz) error {
	keys := []string{quizKey(quiz.ID), "catalog:quizzes"}
	trees := []domain.Quiz{quiz}
	if cached, ok := readCached[domain.Quiz](ctx, c.client, quizKey(quiz.ID)); ok {
		trees = append(trees, cached)
	}
	for _, tree := range trees {
		for _, q := range tree.Questions {
			keys = append(keys, answersKey(q.ID))
			for _, a := range q.Answers {
				keys = append(keys, answerKey(a.ID))
			}
		}
	}
	return c.client.Del(ctx, keys...).Err()
}

func quizKey(quizID int64) string {
	return "catalog:quiz:" + strconv.FormatInt(quizID, 10)
}

func answersKey(questionID int64) string {
	return "catalog:question:" + strconv.FormatInt(questionID, 10) + ":answers"
}

func answerKey(answerID int64) string {
	return "catalog:answer:" + strconv.FormatInt(answerID, 10)
}

func fetch[T any](ctx context.Context, c *CatalogCache, key string, load func(context.Context) (T, error)) (T, error) {
	if v, ok := readCached[T](ctx, c.client, key); ok {
		return v, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if v, ok := readCached[T](ctx, c.client, key); ok {
			return v, nil
		}
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		// A zero TTL disables caching; Redis would otherwise keep the key forever.
		if ttl := c.ttlWithJitter(); ttl > 0 {
			if raw, err := json.Marshal(v); err == nil {
				// best-effort fill; the source stays authoritative
				_ = c.client.Set(ctx, key, raw, ttl).Err()
			}
		}
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}

func readCached[T any](ctx context.Context, client *redis.Client, key string) (T, bool) {
	var v T
	raw, err := client.Get(ctx, key).Bytes()
	if err != nil {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false
	}
	return v, true
}

func (c *CatalogCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
