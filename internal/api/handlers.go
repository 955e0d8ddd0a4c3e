package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"shariahguide/internal/logging"
	"shariahguide/internal/metrics"
	"shariahguide/internal/models"
	"shariahguide/internal/service/assistant"
	"shariahguide/internal/session"
	"shariahguide/internal/worker"
)

// TurnRunner executes a conversation turn. *worker.Manager serialises turns
// per session.
type TurnRunner interface {
	Ask(ctx context.Context, req assistant.TurnRequest) (*assistant.Turn, error)
}

// FeedbackRecorder stores a feedback submission.
type FeedbackRecorder interface {
	Record(email, feedback string) (*models.Feedback, error)
}

// Handler wires HTTP routes to the assistant service.
type Handler struct {
	assistant *assistant.Service
	sessions  *session.Service
	turns     TurnRunner
	feedback  FeedbackRecorder
	metrics   *metrics.Recorder
	about     About
}

// NewHandler constructs a Handler instance. recorder may be nil.
func NewHandler(service *assistant.Service, sessions *session.Service, turns TurnRunner, feedback FeedbackRecorder, recorder *metrics.Recorder) *Handler {
	return &Handler{
		assistant: service,
		sessions:  sessions,
		turns:     turns,
		feedback:  feedback,
		metrics:   recorder,
	}
}

// SetAbout sets the developer card shown in the page sidebar.
func (h *Handler) SetAbout(about About) {
	h.about = about
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.SetHTMLTemplate(loadTemplates())
	router.GET("/healthz", h.healthz)
	if h.metrics != nil {
		router.GET("/metrics", func(c *gin.Context) {
			logging.SkipGinRequestLogging(c)
			c.Next()
		}, h.metrics.Handler())
	}

	router.GET("/", h.sessions.Middleware(), h.index)

	api := router.Group("/api")
	api.Use(h.sessions.Middleware(), h.sessions.CSRFMiddleware())
	api.GET("/conversation", h.getConversation)
	api.POST("/conversation/msg", h.captureInput)
	api.GET("/conversation/messages/:message_id/audio", h.getMessageAudio)
	api.POST("/feedback", h.submitFeedback)
}

func (h *Handler) healthz(c *gin.Context) {
	logging.SkipGinRequestLogging(c)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) sessionID(c *gin.Context) (int64, bool) {
	id, ok := session.SessionIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session required"})
		return 0, false
	}
	return id, true
}

func (h *Handler) index(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	messages, err := h.assistant.ListMessages(c.Request.Context(), sessionID)
	if err != nil {
		log.WithError(err).Error("list messages for page failed")
		c.String(http.StatusInternalServerError, "could not load conversation")
		return
	}
	c.HTML(http.StatusOK, "index.html", gin.H{
		"Messages":       messages,
		"CSRFToken":      session.CSRFTokenFromContext(c),
		"CSRFHeaderName": h.sessions.CSRFHeaderName(),
		"About":          h.about,
	})
}

func (h *Handler) getConversation(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	messages, err := h.assistant.ListMessages(c.Request.Context(), sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

type inputRequest struct {
	Content string `json:"content"`
}

// captureInput runs one turn and reports progress as server-sent events:
// ack (question stored), answer (text known, speech pending), done, or error.
func (h *Handler) captureInput(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	var req inputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}

	// A submitted question is always answered and stored, even if the
	// client goes away before the answer is ready.
	turnCtx := context.WithoutCancel(c.Request.Context())
	// SSE Request construction
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	sendEvent := func(event string, payload interface{}) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "event: %s\n", event); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	// Callbacks run on the session worker; stop writing once this handler returns.
	var (
		streamMu     sync.Mutex
		streamClosed bool
	)
	emit := func(event string, payload interface{}) {
		streamMu.Lock()
		defer streamMu.Unlock()
		if streamClosed {
			return
		}
		if err := sendEvent(event, payload); err != nil {
			streamClosed = true
		}
	}
	defer func() {
		streamMu.Lock()
		streamClosed = true
		streamMu.Unlock()
	}()

	turn, err := h.turns.Ask(turnCtx, assistant.TurnRequest{
		SessionID: sessionID,
		Query:     req.Content,
		OnQuery: func(msg *models.Message) {
			emit("ack", gin.H{"message": msg})
		},
		OnAnswer: func(text string) {
			emit("answer", gin.H{"content": text})
		},
	})
	if err != nil {
		msg := err.Error()
		if errors.Is(err, worker.ErrSessionBusy) {
			msg = "still answering your previous question, please retry"
		}
		log.WithError(err).WithField("session_id", sessionID).Warn("turn failed")
		emit("error", gin.H{"message": msg})
		return
	}
	emit("done", gin.H{
		"user_message":      turn.UserMessage,
		"assistant_message": turn.AssistantMessage,
		"in_domain":         turn.InDomain,
		"generation_failed": turn.GenerationFailed,
		"language":          turn.Language,
	})
}

func (h *Handler) getMessageAudio(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	messageID, err := strconv.ParseInt(c.Param("message_id"), 10, 64)
	if err != nil || messageID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}
	audio, err := h.assistant.GetMessageAudio(c.Request.Context(), sessionID, messageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "audio not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Cache-Control", "private, max-age=3600")
	c.Data(http.StatusOK, "audio/mpeg", audio)
}

type feedbackRequest struct {
	Email    string `json:"email"`
	Feedback string `json:"feedback"`
}

func (h *Handler) submitFeedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	entry, err := h.feedback.Record(req.Email, req.Feedback)
	h.metrics.RecordFeedback(err)
	if err != nil {
		log.WithError(err).Error("save feedback failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save feedback"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":   "✅ Thank you for your feedback!",
		"timestamp": entry.Timestamp,
	})
}
