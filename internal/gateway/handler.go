package gateway

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/auth"
	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/models"
	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/vfs"
)

// Handler serves the session API
type Handler struct {
	driver *Driver
	store  *Store
	logger *zap.Logger
}

// NewHandler creates a new gateway handler
func NewHandler(driver *Driver, store *Store, logger *zap.Logger) *Handler {
	return &Handler{driver: driver, store: store, logger: logger}
}

// RegisterRoutes mounts the session routes on a group already guarded by auth.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/sessions", h.CreateSession)
	rg.GET("/sessions/:id", h.GetSession)
	rg.POST("/sessions/:id/messages", h.SendMessage)
	rg.DELETE("/sessions/:id", h.DeleteSession)
	rg.GET("/sessions/:id/files", h.GetFiles)
	rg.GET("/ws/sessions/:id", h.StreamSession)
}

// CreateSessionRequest starts a conversation
type CreateSessionRequest struct {
	Task  string        `json:"task" binding:"required"`
	Files []models.File `json:"files"`
}

// SendMessageRequest is one user turn
type SendMessageRequest struct {
	Message string        `json:"message" binding:"required"`
	Files   []models.File `json:"files"`
}

// SessionResponse describes a session
type SessionResponse struct {
	ID             string               `json:"id"`
	State          string               `json:"state"`
	Busy           bool                 `json:"busy"`
	Task           string               `json:"task"`
	Approach       string               `json:"approach"`
	ConversationID string               `json:"conversation_id,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	History        []models.Interaction `json:"history"`
	Files          []string             `json:"files,omitempty"`
}

// FileResponse is one registered virtual file
type FileResponse struct {
	URI     string `json:"uri"`
	Path    string `json:"path"`
	Content string `json:"content"`
}

// FileListResponse lists a session's registered virtual files
type FileListResponse struct {
	URIs []string `json:"uris"`
}

// CreateSession godoc
// @Summary Start a session
// @Description Create a code generation session for a task and start approach refinement
// @Tags sessions
// @Accept json
// @Produce json
// @Param request body CreateSessionRequest true "Task and file snapshot"
// @Success 202 {object} SessionResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /sessions [post]
func (h *Handler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, models.ErrCodeInvalidRequest, "Invalid request", err)
		return
	}

	s := h.driver.Start(auth.UserID(c), req.Task, req.Files)
	c.JSON(http.StatusAccepted, toResponse(s))
}

// GetSession godoc
// @Summary Get a session
// @Description Return the current state, approach and chat history of a session
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} SessionResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /sessions/{id} [get]
func (h *Handler) GetSession(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toResponse(s))
}

// SendMessage godoc
// @Summary Send a message
// @Description Run one turn of the session with a user message. The turn runs in the background; follow it on the websocket stream.
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body SendMessageRequest true "Message and optional refreshed file snapshot"
// @Success 202 {object} SessionResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /sessions/{id}/messages [post]
func (h *Handler) SendMessage(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, models.ErrCodeInvalidRequest, "Invalid request", err)
		return
	}

	if err := h.driver.Send(s, req.Message, req.Files); err != nil {
		if errors.Is(err, ErrSessionBusy) {
			respondError(c, http.StatusConflict, models.ErrCodeSessionBusy, "Session is still processing the previous message", nil)
			return
		}
		respondError(c, http.StatusInternalServerError, models.ErrCodeInternalError, "Failed to send message", err)
		return
	}

	c.JSON(http.StatusAccepted, toResponse(s))
}

// DeleteSession godoc
// @Summary Close a session
// @Description Cancel any polling in progress and drop the session
// @Tags sessions
// @Param id path string true "Session ID"
// @Success 204
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /sessions/{id} [delete]
func (h *Handler) DeleteSession(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}

	if err := h.store.Delete(s.ID); err != nil {
		respondError(c, http.StatusNotFound, models.ErrCodeSessionNotFound, "Session not found", nil)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetFiles godoc
// @Summary Read generated files
// @Description List the session's registered virtual files, or read one with the uri parameter
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Param uri query string false "codegen:/// URI of the file"
// @Success 200 {object} FileResponse
// @Success 200 {object} FileListResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /sessions/{id}/files [get]
func (h *Handler) GetFiles(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}

	uri := c.Query("uri")
	if uri == "" {
		c.JSON(http.StatusOK, FileListResponse{URIs: s.Registry.List()})
		return
	}

	path, err := vfs.PathOf(uri)
	if err != nil {
		respondError(c, http.StatusBadRequest, models.ErrCodeInvalidRequest, "Invalid file URI", err)
		return
	}

	content, found := s.Registry.Read(uri)
	if !found {
		respondError(c, http.StatusNotFound, models.ErrCodeFileNotFound, "File not found", nil)
		return
	}

	c.JSON(http.StatusOK, FileResponse{URI: uri, Path: path, Content: string(content)})
}

// lookup resolves :id to a session owned by the caller. Sessions owned by
// someone else are reported as missing.
func (h *Handler) lookup(c *gin.Context) (*Session, bool) {
	s, err := h.store.Get(c.Param("id"))
	if err != nil || s.UserID != auth.UserID(c) {
		respondError(c, http.StatusNotFound, models.ErrCodeSessionNotFound, "Session not found", nil)
		return nil, false
	}
	return s, true
}

func toResponse(s *Session) SessionResponse {
	snap := s.Snapshot()

	resp := SessionResponse{
		ID:             s.ID,
		State:          string(snap.State.Kind()),
		Busy:           snap.Busy,
		Task:           snap.Task,
		Approach:       snap.State.Approach(),
		ConversationID: snap.ConversationID,
		CreatedAt:      s.CreatedAt,
		History:        snap.History,
	}
	if resp.History == nil {
		resp.History = []models.Interaction{}
	}
	if len(snap.Files) > 0 {
		resp.Files = models.Paths(snap.Files)
	}
	return resp
}

func respondError(c *gin.Context, status int, code, message string, err error) {
	if err != nil {
		_ = c.Error(err)
	}
	c.JSON(status, models.ErrorResponse{Error: message, Code: code})
}
