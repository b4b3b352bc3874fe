package domain

import (
	"time"

	"github.com/google/uuid"
)

// Answer is one candidate response to a question.
type Answer struct {
	ID         int64  `json:"id" yaml:"id"`
	QuestionID int64  `json:"question" yaml:"-"`
	Text       string `json:"answer_text" yaml:"text"`
	IsCorrect  bool   `json:"is_correct" yaml:"correct"`
}

// Question is a single prompt within a quiz. Answers are ordered by id.
type Question struct {
	ID      int64    `json:"id" yaml:"id"`
	QuizID  int64    `json:"quiz" yaml:"-"`
	Prompt  string   `json:"prompt" yaml:"prompt"`
	Answers []Answer `json:"answers" yaml:"answers"`
}

// Answer looks up a candidate answer by id.
func (q Question) Answer(answerID int64) (Answer, bool) {
	for _, a := range q.Answers {
		if a.ID == answerID {
			return a, true
		}
	}
	return Answer{}, false
}

// Quiz is an authored collection of questions ordered by id.
type Quiz struct {
	ID        int64      `json:"id" yaml:"id"`
	Title     string     `json:"title" yaml:"title"`
	AuthorID  int64      `json:"author" yaml:"author_id"`
	CreatedAt time.Time  `json:"created_at" yaml:"created_at"`
	Questions []Question `json:"questions" yaml:"questions"`
}

// QuestionCount is always derived from the loaded questions, never stored.
func (q Quiz) QuestionCount() int {
	return len(q.Questions)
}

// Question looks up a question of this quiz by id.
func (q Quiz) Question(questionID int64) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == questionID {
			return question, true
		}
	}
	return Question{}, false
}

// QuizSession is one user's attempt at a quiz. It is scored exactly once.
// UserID is zero when the owning user no longer exists.
type QuizSession struct {
	ID          uuid.UUID  `json:"id"`
	UserID      int64      `json:"user"`
	QuizID      int64      `json:"quiz"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	Score       float64    `json:"score"`
	IsCompleted bool       `json:"is_completed"`
}

// Response is the answer a user selected for one question within a session.
type Response struct {
	ID         uuid.UUID `json:"id"`
	SessionID  uuid.UUID `json:"session"`
	QuestionID int64     `json:"question"`
	AnswerID   int64     `json:"selected_answer"`
	AnsweredAt time.Time `json:"answered_at"`
}

// SessionFilter narrows session listings. Zero values match everything.
type SessionFilter struct {
	UserID int64
	QuizID int64
}

// Matches reports whether the session passes the filter.
func (f SessionFilter) Matches(s QuizSession) bool {
	if f.UserID != 0 && s.UserID != f.UserID {
		return false
	}
	if f.QuizID != 0 && s.QuizID != f.QuizID {
		return false
	}
	return true
}
