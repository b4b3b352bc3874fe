package http

import (
	"time"

	"quiz-session-service/internal/domain"
)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type quizResponse struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Author        int64     `json:"author"`
	QuestionCount int       `json:"question_count"`
	CreatedAt     time.Time `json:"created_at"`
	Questions     []int64   `json:"questions"`
}

func newQuizResponse(q domain.Quiz) quizResponse {
	ids := make([]int64, 0, len(q.Questions))
	for _, question := range q.Questions {
		ids = append(ids, question.ID)
	}
	return quizResponse{
		ID:            q.ID,
		Title:         q.Title,
		Author:        q.AuthorID,
		QuestionCount: q.QuestionCount(),
		CreatedAt:     q.CreatedAt,
		Questions:     ids,
	}
}

type questionResponse struct {
	ID        int64            `json:"id"`
	Quiz      int64            `json:"quiz"`
	QuizTitle string           `json:"quiz_title"`
	Prompt    string           `json:"prompt"`
	Answers   []answerResponse `json:"answers"`
}

// answerResponse omits is_correct unless the caller may see it.
type answerResponse struct {
	ID         int64  `json:"id"`
	Question   int64  `json:"question"`
	AnswerText string `json:"answer_text"`
	IsCorrect  *bool  `json:"is_correct,omitempty"`
}

func newAnswerResponses(answers []domain.Answer, showCorrect bool) []answerResponse {
	out := make([]answerResponse, 0, len(answers))
	for _, a := range answers {
		r := answerResponse{ID: a.ID, Question: a.QuestionID, AnswerText: a.Text}
		if showCorrect {
			correct := a.IsCorrect
			r.IsCorrect = &correct
		}
		out = append(out, r)
	}
	return out
}

func newQuestionResponses(quiz domain.Quiz, showCorrect bool) []questionResponse {
	out := make([]questionResponse, 0, len(quiz.Questions))
	for _, q := range quiz.Questions {
		out = append(out, questionResponse{
			ID:        q.ID,
			Quiz:      quiz.ID,
			QuizTitle: quiz.Title,
			Prompt:    q.Prompt,
			Answers:   newAnswerResponses(q.Answers, showCorrect),
		})
	}
	return out
}
