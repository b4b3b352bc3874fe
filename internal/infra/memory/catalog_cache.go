package memory

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"

	"golang.org/x/sync/singleflight"
)

// CatalogCache caches catalog reads with TTL to avoid repeated DB hits.
type CatalogCache struct {
	source app.Catalog
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedEntry
}

type cachedEntry struct {
	value     any
	expiresAt time.Time
}

func NewCatalogCache(source app.Catalog, ttl time.Duration) *CatalogCache {
	return &CatalogCache{
		source: source,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedEntry),
	}
}

func (c *CatalogCache) ListQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	return fetch(ctx, c, "quizzes", c.source.ListQuizzes)
}

func (c *CatalogCache) GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	return fetch(ctx, c, "quiz:"+strconv.FormatInt(quizID, 10), func(ctx context.Context) (domain.Quiz, error) {
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
	return fetch(ctx, c, "question:"+strconv.FormatInt(questionID, 10)+":answers", func(ctx context.Context) ([]domain.Answer, error) {
		return c.source.ListAnswers(ctx, questionID)
	})
}

func (c *CatalogCache) GetAnswer(ctx context.Context, answerID int64) (domain.Answer, error) {
	return fetch(ctx, c, "answer:"+strconv.FormatInt(answerID, 10), func(ctx context.Context) (domain.Answer, error) {
		return c.source.GetAnswer(ctx, answerID)
	})
}

func fetch[T any](ctx context.Context, c *CatalogCache, key string, load func(context.Context) (T, error)) (T, error) {
	if v, ok := c.lookup(key); ok {
		return v.(T), nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check in case another caller filled it.
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cache[key] = cachedEntry{value: v, expiresAt: c.clock().Add(c.ttlWithJitter())}
		c.mu.Unlock()
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}

func (c *CatalogCache) lookup(key string) (any, bool) {
	now := c.clock()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if entry, ok := c.cache[key]; ok && entry.expiresAt.After(now) {
		return entry.value, true
	}
	return nil, false
}

// Invalidate drops every cached entry.
func (c *CatalogCache) Invalidate() {
	c.mu.Lock()
	c.cache = make(map[string]cachedEntry)
	c.mu.Unlock()
}

func (c *CatalogCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
