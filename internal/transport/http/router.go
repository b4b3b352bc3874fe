package http

import (
	"net/http"
	"time"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/auth"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterConfig carries the transport-level knobs that come from config.
type RouterConfig struct {
	CORSOrigins []string
}

// NewRouter wires REST and websocket endpoints. Everything under /api requires a valid access token.
func NewRouter(service *app.SessionService, verifier *auth.Verifier, log *zap.Logger, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))

	var checkOrigin func(*http.Request) bool
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
		allowed := make(map[string]struct{}, len(cfg.CORSOrigins))
		for _, o := range cfg.CORSOrigins {
			allowed[o] = struct{}{}
		}
		checkOrigin = func(req *http.Request) bool {
			origin := req.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allowed[origin]
			return ok
		}
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := NewHandler(service, log.With(zap.String("component", "http")))
	play := NewPlayHandler(service, log.With(zap.String("component", "play")), checkOrigin)

	api := r.Group("/api", Authenticate(verifier))
	api.GET("/quizzes", h.ListQuizzes)
	api.GET("/quizzes/:id", h.GetQuiz)
	api.GET("/quizzes/:id/questions", h.ListQuestions)
	api.GET("/questions/:id/answers", h.ListAnswers)

	api.POST("/sessions", h.CreateSession)
	api.GET("/sessions", h.ListSessions)
	api.GET("/sessions/:id", h.GetSession)
	api.GET("/sessions/:id/responses", h.ListResponses)
	api.POST("/sessions/:id/responses", h.RecordResponse)
	api.POST("/sessions/:id/score", h.CalculateScore)

	api.GET("/play", play.Serve)

	return r
}
