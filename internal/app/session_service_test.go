package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/auth"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/memory"

	"github.com/google/uuid"
)

var (
	alice = domain.Identity{UserID: 1, Role: domain.RoleUser}
	bob   = domain.Identity{UserID: 2, Role: domain.RoleUser}
	mod   = domain.Identity{UserID: 3, Role: domain.RoleModerator}
)

func TestScoreHalfCorrect(t *testing.T) {
	service := newTestService()
	ctx := as(alice)

	session, err := service.CreateSession(ctx, 1)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.IsCompleted || session.Score != 0 || session.CompletedAt != nil {
		t.Fatalf("unexpected fresh session %+v", session)
	}

	if _, err := service.RecordResponse(ctx, session.ID, 10, 101); err != nil { // correct
		t.Fatalf("record response: %v", err)
	}
	if _, err := service.RecordResponse(ctx, session.ID, 20, 200); err != nil { // wrong
		t.Fatalf("record response: %v", err)
	}

	scored, err := service.CalculateScore(ctx, session.ID)
	if err != nil {
		t.Fatalf("calculate score: %v", err)
	}
	if scored.Score != 50.0 {
		t.Fatalf("expected score 50, got %v", scored.Score)
	}
	if !scored.IsCompleted || scored.CompletedAt == nil || scored.CompletedAt.Before(scored.StartedAt) {
		t.Fatalf("expected completed session, got %+v", scored)
	}
}

func TestScoreSingleCorrect(t *testing.T) {
	service := newTestService()
	ctx := as(alice)

	session, _ := service.CreateSession(ctx, 2)
	if _, err := service.RecordResponse(ctx, session.ID, 30, 300); err != nil {
		t.Fatalf("record response: %v", err)
	}
	scored, err := service.CalculateScore(ctx, session.ID)
	if err != nil {
		t.Fatalf("calculate score: %v", err)
	}
	if scored.Score != 100.0 {
		t.Fatalf("expected score 100, got %v", scored.Score)
	}
}

func TestScoreWithoutResponsesIsZero(t *testing.T) {
	service := newTestService()
	ctx := as(alice)

	session, _ := service.CreateSession(ctx, 1)
	scored, err := service.CalculateScore(ctx, session.ID)
	if err != nil {
		t.Fatalf("calculate score: %v", err)
	}
	if scored.Score != 0 || !scored.IsCompleted {
		t.Fatalf("expected completed session with score 0, got %+v", scored)
	}
}

func TestScoreEmptyQuizFails(t *testing.T) {
	service := newTestService()
	ctx := as(alice)

	session, err := service.CreateSession(ctx, 3)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	_, err = service.CalculateScore(ctx, session.ID)
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	got, _ := service.GetSession(ctx, session.ID)
	if got.IsCompleted {
		t.Fatalf("empty quiz must leave the session active")
	}
}

func TestScoreTwiceFails(t *testing.T) {
	service := newTestService()
	ctx := as(alice)

	session, _ := service.CreateSession(ctx, 2)
	_, _ = service.RecordResponse(ctx, session.ID, 30, 300)
	first, err := service.CalculateScore(ctx, session.ID)
	if err != nil {
		t.Fatalf("calculate score: %v", err)
	}
	if _, err := service.CalculateScore(ctx, session.ID); !errors.Is(err, domain.ErrSessionCompleted) {
		t.Fatalf("expected session completed error, got %v", err)
	}
	got, _ := service.GetSession(ctx, session.ID)
	if got.Score != first.Score || !got.CompletedAt.Equal(*first.CompletedAt) {
		t.Fatalf("second call must not change the stored result: %+v vs %+v", got, first)
	}
}

func TestConcurrentScoringCompletesOnce(t *testing.T) {
	service := newTestService()
	ctx := as(alice)
	session, _ := service.CreateSession(ctx, 2)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := service.CalculateScore(ctx, session.ID); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			} else if !errors.Is(err, domain.ErrInvalidState) {
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()
	if successes != 1 {
		t.Fatalf("expected one successful scoring, got %d", successes)
	}
}

func TestRecordResponseAfterCompletionFails(t *testing.T) {
	service := newTestService()
	ctx := as(alice)

	session, _ := service.CreateSession(ctx, 1)
	_, _ = service.RecordResponse(ctx, session.ID, 10, 101)
	if _, err := service.CalculateScore(ctx, session.ID); err != nil {
		t.Fatalf("calculate score: %v", err)
	}
	if _, err := service.RecordResponse(ctx, session.ID, 20, 201); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestRecordResponseReferenceChecks(t *testing.T) {
	service := newTestService()
	ctx := as(alice)
	session, _ := service.CreateSession(ctx, 1)

	// answer 201 belongs to question 20
	if _, err := service.RecordResponse(ctx, session.ID, 10, 201); !errors.Is(err, domain.ErrInvalidReference) {
		t.Fatalf("expected invalid reference for foreign answer, got %v", err)
	}
	// question 30 belongs to quiz 2
	if _, err := service.RecordResponse(ctx, session.ID, 30, 300); !errors.Is(err, domain.ErrInvalidReference) {
		t.Fatalf("expected invalid reference for foreign question, got %v", err)
	}
	if _, err := service.RecordResponse(ctx, session.ID, 10, 999); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for unknown answer, got %v", err)
	}
	if _, err := service.RecordResponse(ctx, uuid.New(), 10, 101); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
}

func TestRecordResponseRejectsDuplicate(t *testing.T) {
	service := newTestService()
	ctx := as(alice)
	session, _ := service.CreateSession(ctx, 1)

	if _, err := service.RecordResponse(ctx, session.ID, 10, 100); err != nil {
		t.Fatalf("record response: %v", err)
	}
	if _, err := service.RecordResponse(ctx, session.ID, 10, 101); !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("expected already answered, got %v", err)
	}
	responses, err := service.ListResponses(ctx, session.ID)
	if err != nil {
		t.Fatalf("list responses: %v", err)
	}
	if len(responses) != 1 || responses[0].AnswerID != 100 {
		t.Fatalf("expected only the first response, got %+v", responses)
	}
}

func TestOwnershipRules(t *testing.T) {
	service := newTestService()
	session, _ := service.CreateSession(as(alice), 1)

	if _, err := service.RecordResponse(as(bob), session.ID, 10, 101); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for other user, got %v", err)
	}
	if _, err := service.GetSession(as(bob), session.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden read for other user, got %v", err)
	}
	if _, err := service.CalculateScore(as(bob), session.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden scoring for other user, got %v", err)
	}
	if _, err := service.RecordResponse(as(mod), session.ID, 10, 101); err != nil {
		t.Fatalf("moderator should record on behalf of user: %v", err)
	}
	if _, err := service.GetSession(as(mod), session.ID); err != nil {
		t.Fatalf("moderator should read any session: %v", err)
	}
}

func TestUnauthenticatedAndUnknownQuiz(t *testing.T) {
	service := newTestService()

	if _, err := service.CreateSession(context.Background(), 1); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	if _, err := service.CreateSession(as(alice), 404); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}
}

func TestListSessionsScopedToCaller(t *testing.T) {
	service := newTestService()
	_, _ = service.CreateSession(as(alice), 1)
	_, _ = service.CreateSession(as(alice), 2)
	_, _ = service.CreateSession(as(bob), 1)

	mine, err := service.ListSessions(as(alice), domain.SessionFilter{})
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("expected alice to see 2 sessions, got %d", len(mine))
	}
	// a non-privileged caller cannot widen the filter to another user
	spoofed, _ := service.ListSessions(as(bob), domain.SessionFilter{UserID: alice.UserID})
	if len(spoofed) != 1 || spoofed[0].UserID != bob.UserID {
		t.Fatalf("expected bob to only see his session, got %+v", spoofed)
	}
	all, _ := service.ListSessions(as(mod), domain.SessionFilter{QuizID: 1})
	if len(all) != 2 {
		t.Fatalf("expected moderator to see 2 sessions of quiz 1, got %d", len(all))
	}
}

func TestCompletedAtNeverBeforeStart(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	calls := 0
	clock := func() time.Time {
		calls++
		if calls == 1 {
			return start
		}
		// clock stepped backwards between start and scoring
		return start.Add(-time.Hour)
	}
	service := app.NewSessionServiceWithClock(memory.NewSessionStore(), testCatalog(), auth.ContextProvider{}, nil, clock)
	ctx := as(alice)

	session, _ := service.CreateSession(ctx, 2)
	scored, err := service.CalculateScore(ctx, session.ID)
	if err != nil {
		t.Fatalf("calculate score: %v", err)
	}
	if scored.CompletedAt.Before(scored.StartedAt) {
		t.Fatalf("completed_at %v before started_at %v", scored.CompletedAt, scored.StartedAt)
	}
}

func TestScoreStaysInRange(t *testing.T) {
	service := newTestService()
	ctx := as(alice)
	for _, answers := range [][2]int64{{100, 200}, {100, 201}, {101, 200}, {101, 201}} {
		session, _ := service.CreateSession(ctx, 1)
		_, _ = service.RecordResponse(ctx, session.ID, 10, answers[0])
		_, _ = service.RecordResponse(ctx, session.ID, 20, answers[1])
		scored, err := service.CalculateScore(ctx, session.ID)
		if err != nil {
			t.Fatalf("calculate score: %v", err)
		}
		if scored.Score < 0 || scored.Score > 100 {
			t.Fatalf("score out of range: %v", scored.Score)
		}
	}
}

func as(id domain.Identity) context.Context {
	return auth.WithIdentity(context.Background(), id)
}

func newTestService() *app.SessionService {
	return app.NewSessionService(memory.NewSessionStore(), testCatalog(), auth.ContextProvider{}, nil)
}

// testCatalog: quiz 1 has two questions with one correct answer each,
// quiz 2 has a single question, quiz 3 has none.
func testCatalog() app.Catalog {
	return memory.NewCatalogCache(memory.NewStaticCatalog([]domain.Quiz{
		{
			ID:    1,
			Title: "Two questions",
			Questions: []domain.Question{
				{ID: 10, Prompt: "2 + 2?", Answers: []domain.Answer{
					{ID: 100, Text: "3"},
					{ID: 101, Text: "4", IsCorrect: true},
				}},
				{ID: 20, Prompt: "3 + 3?", Answers: []domain.Answer{
					{ID: 200, Text: "5"},
					{ID: 201, Text: "6", IsCorrect: true},
				}},
			},
		},
		{
			ID:    2,
			Title: "One question",
			Questions: []domain.Question{
				{ID: 30, Prompt: "Is Go compiled?", Answers: []domain.Answer{
					{ID: 300, Text: "yes", IsCorrect: true},
				}},
			},
		},
		{ID: 3, Title: "Empty"},
	}), time.Minute)
}
