// Package uploads implements the video intake endpoint that feeds the job ledger.
package uploads

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ddclipshare/backend/internal/auth"
	"github.com/ddclipshare/backend/internal/jobs"
	"github.com/ddclipshare/backend/internal/sessions"
	"github.com/ddclipshare/backend/pkg/response"
)

// SessionLookup resolves a session id to a session, nil when unknown.
type SessionLookup interface {
	Get(ctx context.Context, id string) (*sessions.Session, error)
}

// Handler handles upload intake and job status endpoints.
type Handler struct {
	ledger   *jobs.Ledger
	sessions SessionLookup
	tempDir  string
	maxBytes int64
	logger   *zap.Logger
}

// NewHandler creates an uploads handler. Files are staged under tempDir and
// rejected above maxBytes.
func NewHandler(ledger *jobs.Ledger, sessionStore SessionLookup, tempDir string, maxBytes int64, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "clipshare-uploads")
	}
	if maxBytes <= 0 {
		maxBytes = 2 << 30 // 2 GiB
	}
	return &Handler{ledger: ledger, sessions: sessionStore, tempDir: tempDir, maxBytes: maxBytes, logger: logger}
}

// Upload handles POST /api/videos/upload: validates the session and form,
// stages the file, and queues a job for the orchestrator. The response returns
// immediately; the background worker does the actual upload.
func (h *Handler) Upload(c *gin.Context) {
	session := h.session(c)
	if session == nil {
		response.Unauthorized(c, "not authenticated")
		return
	}

	title := c.PostForm("title")
	if title == "" {
		response.BadRequest(c, "title is required")
		return
	}
	targetChannel := c.PostForm("targetChannel")
	if targetChannel == "" {
		response.BadRequest(c, "target channel is required")
		return
	}

	file, err := c.FormFile("video")
	if err != nil {
		response.BadRequest(c, "video file is required")
		return
	}
	if file.Size == 0 {
		response.BadRequest(c, "video file is required")
		return
	}
	if file.Size > h.maxBytes {
		response.BadRequest(c, fmt.Sprintf("file size exceeds maximum of %d MB", h.maxBytes/1024/1024))
		return
	}

	if err := os.MkdirAll(h.tempDir, 0o755); err != nil {
		h.logger.Error("create temp dir failed", zap.Error(err))
		response.Internal(c, "failed to save uploaded file")
		return
	}

	jobID := uuid.New().String()
	dst := filepath.Join(h.tempDir, jobID+filepath.Ext(file.Filename))
	if err := c.SaveUploadedFile(file, dst); err != nil {
		h.logger.Error("save uploaded file failed", zap.String("job_id", jobID), zap.Error(err))
		response.Internal(c, "failed to save uploaded file")
		return
	}

	job := &jobs.Job{
		ID:             jobID,
		DiscordUserID:  session.DiscordUserID,
		Username:       session.Username,
		Title:          title,
		Description:    c.PostForm("description"),
		PublishMessage: c.PostForm("publishMessage"),
		TargetChannel:  targetChannel,
		PingChannel:    c.PostForm("pingChannel") == "true",
		FilePath:       dst,
		Status:         jobs.StatusQueued,
		CreatedAt:      time.Now().UTC(),
	}
	h.ledger.Add(job)

	h.logger.Info("upload job queued",
		zap.String("job_id", jobID),
		zap.String("user_id", session.DiscordUserID),
		zap.Int64("size", file.Size))

	response.OK(c, gin.H{
		"jobId":   job.ID,
		"status":  string(job.Status),
		"message": "Upload queued successfully",
	})
}

// Status handles GET /api/videos/:id/status.
func (h *Handler) Status(c *gin.Context) {
	if h.session(c) == nil {
		response.Unauthorized(c, "not authenticated")
		return
	}

	job := h.ledger.Get(c.Param("id"))
	if job == nil {
		response.NotFound(c, "job not found")
		return
	}
	response.OK(c, job)
}

func (h *Handler) session(c *gin.Context) *sessions.Session {
	sessionID, err := c.Cookie(auth.SessionCookie)
	if err != nil || sessionID == "" {
		return nil
	}
	session, err := h.sessions.Get(c.Request.Context(), sessionID)
	if err != nil {
		h.logger.Error("session lookup failed", zap.Error(err))
		return nil
	}
	return session
}
