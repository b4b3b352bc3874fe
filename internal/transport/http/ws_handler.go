package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/auth"
	"quiz-session-service/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	writeWait  = 10 * time.Second
)

// PlayHandler runs one quiz attempt over a websocket: the session is opened (or resumed)
// on connect, answers stream in, and "finish" scores it.
type PlayHandler struct {
	service  *app.SessionService
	log      *zap.Logger
	upgrader websocket.Upgrader

	// writeWait bounds each frame write; a client that stops reading is dropped after it.
	writeWait time.Duration
}

func NewPlayHandler(service *app.SessionService, log *zap.Logger, checkOrigin func(*http.Request) bool) *PlayHandler {
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &PlayHandler{
		service: service,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		writeWait: writeWait,
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID int64 `json:"questionId"`
	AnswerID   int64 `json:"answerId"`
}

type startedPayload struct {
	Session   domain.QuizSession `json:"session"`
	Questions []questionResponse `json:"questions"`
	Answered  []domain.Response  `json:"answered"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

// Serve expects quizId, or sessionId to resume an attempt. The caller must already be authenticated.
func (h *PlayHandler) Serve(c *gin.Context) {
	r := c.Request
	ctx := r.Context()

	var (
		quizID    int64
		sessionID uuid.UUID
		err       error
	)
	if raw := c.Query("sessionId"); raw != "" {
		if sessionID, err = uuid.Parse(raw); err != nil {
			c.JSON(http.StatusBadRequest, errorBody{Error: "sessionId must be a UUID"})
			return
		}
	} else if quizID, err = strconv.ParseInt(c.Query("quizId"), 10, 64); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: "missing quizId or sessionId"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	started, err := h.open(c, quizID, sessionID)
	if err != nil {
		_ = conn.WriteJSON(h.errorMessage(err))
		return
	}
	sessionID = started.Session.ID
	log := h.log.With(zap.String("session_id", sessionID.String()))

	send := make(chan outboundMessage, 16)
	writerDone := make(chan struct{})

	// Single writer; pings go through WriteControl which is safe to call concurrently.
	// Closing the connection on exit unblocks the read loop below.
	go func() {
		defer close(writerDone)
		defer conn.Close()
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case msg, ok := <-send:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(h.writeWait))
				if err := conn.WriteJSON(msg); err != nil {
					log.Debug("ws write failed", zap.Error(err))
					return
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeWait)); err != nil {
					log.Debug("ws ping failed", zap.Error(err))
					return
				}
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	emit := func(msg outboundMessage) bool {
		select {
		case send <- msg:
			return true
		case <-writerDone:
			return false
		}
	}

	ok := emit(outboundMessage{Type: "started", Payload: started})
	for ok {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				ok = emit(outboundMessage{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}})
				continue
			}
			response, err := h.service.RecordResponse(ctx, sessionID, payload.QuestionID, payload.AnswerID)
			if err != nil {
				ok = emit(h.errorMessage(err))
				continue
			}
			ok = emit(outboundMessage{Type: "recorded", Payload: response})
		case "finish":
			session, err := h.service.CalculateScore(ctx, sessionID)
			if err != nil {
				ok = emit(h.errorMessage(err))
				continue
			}
			ok = emit(outboundMessage{Type: "scored", Payload: session})
		default:
			ok = emit(outboundMessage{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}
	}

	close(send)
	<-writerDone
}

func (h *PlayHandler) open(c *gin.Context, quizID int64, sessionID uuid.UUID) (startedPayload, error) {
	ctx := c.Request.Context()
	var (
		session domain.QuizSession
		err     error
	)
	if sessionID != uuid.Nil {
		session, err = h.service.GetSession(ctx, sessionID)
	} else {
		session, err = h.service.CreateSession(ctx, quizID)
	}
	if err != nil {
		return startedPayload{}, err
	}
	quiz, err := h.service.Catalog().GetQuiz(ctx, session.QuizID)
	if err != nil {
		return startedPayload{}, err
	}
	answered, err := h.service.ListResponses(ctx, session.ID)
	if err != nil {
		return startedPayload{}, err
	}
	id, _ := auth.FromContext(ctx)
	return startedPayload{
		Session:   session,
		Questions: newQuestionResponses(quiz, id.CanSeeCorrectness()),
		Answered:  answered,
	}, nil
}

func (h *PlayHandler) errorMessage(err error) outboundMessage {
	status, kind := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error("play request failed", zap.Error(err))
		return outboundMessage{Type: "error", Payload: errorPayload{Message: "internal error"}}
	}
	return outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error(), Kind: kind}}
}
