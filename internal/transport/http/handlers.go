package http

import (
	"errors"
	"net/http"
	"strconv"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/auth"
	"quiz-session-service/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler exposes catalog browsing and the session engine over REST.
type Handler struct {
	service *app.SessionService
	log     *zap.Logger
}

func NewHandler(service *app.SessionService, log *zap.Logger) *Handler {
	return &Handler{service: service, log: log}
}

type createSessionRequest struct {
	QuizID int64 `json:"quiz_id" binding:"required"`
}

type recordResponseRequest struct {
	QuestionID int64 `json:"question_id" binding:"required"`
	AnswerID   int64 `json:"answer_id" binding:"required"`
}

func (h *Handler) ListQuizzes(c *gin.Context) {
	quizzes, err := h.service.Catalog().ListQuizzes(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]quizResponse, 0, len(quizzes))
	for _, q := range quizzes {
		out = append(out, newQuizResponse(q))
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) GetQuiz(c *gin.Context) {
	quizID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	quiz, err := h.service.Catalog().GetQuiz(c.Request.Context(), quizID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newQuizResponse(quiz))
}

func (h *Handler) ListQuestions(c *gin.Context) {
	quizID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	quiz, err := h.service.Catalog().GetQuiz(c.Request.Context(), quizID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newQuestionResponses(quiz, canSeeCorrectness(c)))
}

func (h *Handler) ListAnswers(c *gin.Context) {
	questionID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	answers, err := h.service.Catalog().ListAnswers(c.Request.Context(), questionID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newAnswerResponses(answers, canSeeCorrectness(c)))
}

func (h *Handler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	session, err := h.service.CreateSession(c.Request.Context(), req.QuizID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (h *Handler) ListSessions(c *gin.Context) {
	var filter domain.SessionFilter
	if raw := c.Query("quiz_id"); raw != "" {
		quizID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody{Error: "quiz_id must be an integer"})
			return
		}
		filter.QuizID = quizID
	}
	sessions, err := h.service.ListSessions(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sessions)
}

func (h *Handler) GetSession(c *gin.Context) {
	sessionID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	session, err := h.service.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *Handler) ListResponses(c *gin.Context) {
	sessionID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	responses, err := h.service.ListResponses(c.Request.Context(), sessionID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, responses)
}

func (h *Handler) RecordResponse(c *gin.Context) {
	sessionID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req recordResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	response, err := h.service.RecordResponse(c.Request.Context(), sessionID, req.QuestionID, req.AnswerID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, response)
}

func (h *Handler) CalculateScore(c *gin.Context) {
	sessionID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	session, err := h.service.CalculateScore(c.Request.Context(), sessionID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// fail translates engine error kinds into HTTP statuses.
func (h *Handler) fail(c *gin.Context, err error) {
	status, kind := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, errorBody{Error: "internal error"})
		return
	}
	c.JSON(status, errorBody{Error: err.Error(), Kind: kind})
}

func statusFor(err error) (int, string) {
	switch domain.KindOf(err) {
	case domain.ErrNotFound:
		return http.StatusNotFound, "not_found"
	case domain.ErrForbidden:
		return http.StatusForbidden, "forbidden"
	case domain.ErrInvalidReference:
		return http.StatusUnprocessableEntity, "invalid_reference"
	case domain.ErrInvalidState:
		return http.StatusConflict, "invalid_state"
	case domain.ErrUnauthenticated:
		return http.StatusUnauthorized, "unauthenticated"
	}
	if errors.Is(err, domain.ErrSessionBusy) {
		return http.StatusServiceUnavailable, "busy"
	}
	return http.StatusInternalServerError, ""
}

func canSeeCorrectness(c *gin.Context) bool {
	id, ok := auth.FromContext(c.Request.Context())
	return ok && id.CanSeeCorrectness()
}

func int64Param(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: name + " must be an integer"})
		return 0, false
	}
	return v, true
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	v, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: name + " must be a UUID"})
		return uuid.Nil, false
	}
	return v, true
}
