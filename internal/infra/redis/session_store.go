package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	lockTTL   = 5 * time.Second
	lockWait  = 3 * time.Second
	lockRetry = 20 * time.Millisecond
)

// completeScript flips is_completed only if it was not set yet.
var completeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
if redis.call('HGET', KEYS[1], 'is_completed') == '1' then return 0 end
redis.call('HSET', KEYS[1], 'is_completed', '1', 'score', ARGV[1], 'completed_at', ARGV[2])
return 1
`)

// addResponseScript stores a response only while the session is still active and the
// question has no answer yet.
var addResponseScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -2 end
if redis.call('HGET', KEYS[1], 'is_completed') == '1' then return -1 end
return redis.call('HSETNX', KEYS[2], ARGV[1], ARGV[2])
`)

var unlockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// SessionStore keeps quiz sessions in Redis.
// Layout:
//
//	quiz:session:{id}              hash of session fields
//	quiz:session:{id}:responses    hash questionID -> response JSON
//	quiz:session:{id}:lock         writer lock token
//	quiz:sessions:all              zset of session ids by start time
//	quiz:sessions:user:{userID}    zset of one user's session ids
//
// Sessions are kept for history and never expire.
type SessionStore struct {
	client *redis.Client
}

func NewSessionStore(client *redis.Client) *SessionStore {
	return &SessionStore{client: client}
}

func (s *SessionStore) Create(ctx context.Context, session domain.QuizSession) error {
	member := redis.Z{Score: float64(session.StartedAt.UnixNano()), Member: session.ID.String()}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, sessionKey(session.ID), encodeSession(session))
		pipe.ZAdd(ctx, "quiz:sessions:all", member)
		if session.UserID != 0 {
			pipe.ZAdd(ctx, userSessionsKey(session.UserID), member)
		}
		return nil
	})
	return err
}

func (s *SessionStore) Get(ctx context.Context, sessionID uuid.UUID) (domain.QuizSession, error) {
	fields, err := s.client.HGetAll(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return domain.QuizSession{}, err
	}
	if len(fields) == 0 {
		return domain.QuizSession{}, domain.ErrSessionNotFound
	}
	return decodeSession(sessionID, fields)
}

func (s *SessionStore) List(ctx context.Context, filter domain.SessionFilter) ([]domain.QuizSession, error) {
	index := "quiz:sessions:all"
	if filter.UserID != 0 {
		index = userSessionsKey(filter.UserID)
	}
	ids, err := s.client.ZRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, "quiz:session:"+id)
	}
	if len(ids) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, err
		}
	}

	out := make([]domain.QuizSession, 0, len(ids))
	for i, id := range ids {
		fields := cmds[i].Val()
		if len(fields) == 0 {
			continue
		}
		sessionID, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("session index: %w", err)
		}
		session, err := decodeSession(sessionID, fields)
		if err != nil {
			return nil, err
		}
		if filter.Matches(session) {
			out = append(out, session)
		}
	}
	return out, nil
}

func (s *SessionStore) Responses(ctx context.Context, sessionID uuid.UUID) ([]domain.Response, error) {
	return readResponses(ctx, s.client, sessionID)
}

func (s *SessionStore) Update(ctx context.Context, sessionID uuid.UUID, fn func(ctx context.Context, tx app.SessionTx) error) error {
	token, err := s.lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer func() {
		// a fresh context so a cancelled request still releases the lock
		_ = unlockScript.Run(context.Background(), s.client, []string{lockKey(sessionID)}, token).Err()
	}()

	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	return fn(ctx, &sessionTx{client: s.client, session: session})
}

func (s *SessionStore) lock(ctx context.Context, sessionID uuid.UUID) (string, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(lockWait)
	for {
		ok, err := s.client.SetNX(ctx, lockKey(sessionID), token, lockTTL).Result()
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}
		if time.Now().After(deadline) {
			return "", domain.ErrSessionBusy
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(lockRetry):
		}
	}
}

type sessionTx struct {
	client  *redis.Client
	session domain.QuizSession
}

func (tx *sessionTx) Session() domain.QuizSession {
	return tx.session
}

func (tx *sessionTx) Responses(ctx context.Context) ([]domain.Response, error) {
	return readResponses(ctx, tx.client, tx.session.ID)
}

func (tx *sessionTx) AddResponse(ctx context.Context, response domain.Response) error {
	raw, err := json.Marshal(response)
	if err != nil {
		return err
	}
	res, err := addResponseScript.Run(ctx, tx.client,
		[]string{sessionKey(tx.session.ID), responsesKey(tx.session.ID)},
		strconv.FormatInt(response.QuestionID, 10), string(raw),
	).Int()
	if err != nil {
		return err
	}
	switch res {
	case -2:
		return domain.ErrSessionNotFound
	case -1:
		return domain.ErrSessionCompleted
	case 0:
		return domain.ErrAlreadyAnswered
	}
	return nil
}

func (tx *sessionTx) Complete(ctx context.Context, score float64, completedAt time.Time) (domain.QuizSession, error) {
	res, err := completeScript.Run(ctx, tx.client, []string{sessionKey(tx.session.ID)},
		strconv.FormatFloat(score, 'f', -1, 64),
		completedAt.UTC().Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return domain.QuizSession{}, err
	}
	switch res {
	case -1:
		return domain.QuizSession{}, domain.ErrSessionNotFound
	case 0:
		return domain.QuizSession{}, domain.ErrSessionCompleted
	}
	done := tx.session
	done.Score = score
	done.IsCompleted = true
	done.CompletedAt = &completedAt
	return done, nil
}

func readResponses(ctx context.Context, client *redis.Client, sessionID uuid.UUID) ([]domain.Response, error) {
	raw, err := client.HGetAll(ctx, responsesKey(sessionID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Response, 0, len(raw))
	for _, value := range raw {
		var r domain.Response
		if err := json.Unmarshal([]byte(value), &r); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AnsweredAt.Equal(out[j].AnsweredAt) {
			return out[i].AnsweredAt.Before(out[j].AnsweredAt)
		}
		return out[i].QuestionID < out[j].QuestionID
	})
	return out, nil
}

func encodeSession(s domain.QuizSession) map[string]interface{} {
	completedAt := ""
	if s.CompletedAt != nil {
		completedAt = s.CompletedAt.UTC().Format(time.RFC3339Nano)
	}
	completed := "0"
	if s.IsCompleted {
		completed = "1"
	}
	return map[string]interface{}{
		"user_id":      strconv.FormatInt(s.UserID, 10),
		"quiz_id":      strconv.FormatInt(s.QuizID, 10),
		"started_at":   s.StartedAt.UTC().Format(time.RFC3339Nano),
		"completed_at": completedAt,
		"score":        strconv.FormatFloat(s.Score, 'f', -1, 64),
		"is_completed": completed,
	}
}

func decodeSession(id uuid.UUID, f map[string]string) (domain.QuizSession, error) {
	s := domain.QuizSession{ID: id, IsCompleted: f["is_completed"] == "1"}
	var err error
	if s.UserID, err = strconv.ParseInt(f["user_id"], 10, 64); err != nil {
		return s, fmt.Errorf("decode session user: %w", err)
	}
	if s.QuizID, err = strconv.ParseInt(f["quiz_id"], 10, 64); err != nil {
		return s, fmt.Errorf("decode session quiz: %w", err)
	}
	if s.StartedAt, err = time.Parse(time.RFC3339Nano, f["started_at"]); err != nil {
		return s, fmt.Errorf("decode session start: %w", err)
	}
	if s.Score, err = strconv.ParseFloat(f["score"], 64); err != nil {
		return s, fmt.Errorf("decode session score: %w", err)
	}
	if raw := f["completed_at"]; raw != "" {
		at, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return s, fmt.Errorf("decode session completion: %w", err)
		}
		s.CompletedAt = &at
	}
	return s, nil
}

func sessionKey(id uuid.UUID) string {
	return "quiz:session:" + id.String()
}

func responsesKey(id uuid.UUID) string {
	return sessionKey(id) + ":responses"
}

func lockKey(id uuid.UUID) string {
	return sessionKey(id) + ":lock"
}

func userSessionsKey(userID int64) string {
	return "quiz:sessions:user:" + strconv.FormatInt(userID, 10)
}
