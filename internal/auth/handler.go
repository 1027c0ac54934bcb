// Package auth implements the Discord OAuth login endpoints and session checks.
package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/ddclipshare/backend/internal/discord"
	"github.com/ddclipshare/backend/internal/sessions"
	"github.com/ddclipshare/backend/pkg/response"
)

// SessionCookie is the HttpOnly cookie carrying the session id.
const SessionCookie = "session_id"

const cookieMaxAge = 30 * 24 * time.Hour

// CallbackRequest is the body for POST /api/auth/discord/callback.
type CallbackRequest struct {
	Code string `json:"code" binding:"required"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	oauth    *oauth2.Config
	sessions *sessions.Store
	logger   *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(oauth *oauth2.Config, store *sessions.Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{oauth: oauth, sessions: store, logger: logger}
}

// Session handles GET /api/auth/session.
func (h *Handler) Session(c *gin.Context) {
	sessionID, err := c.Cookie(SessionCookie)
	if err != nil || sessionID == "" {
		response.Unauthorized(c, "not authenticated")
		return
	}

	session, err := h.sessions.Get(c.Request.Context(), sessionID)
	if err != nil {
		h.logger.Error("session lookup failed", zap.Error(err))
		response.Internal(c, "session lookup failed")
		return
	}
	if session == nil {
		response.Unauthorized(c, "not authenticated")
		return
	}

	response.OK(c, gin.H{
		"authenticated": true,
		"userId":        session.DiscordUserID,
		"username":      session.Username,
	})
}

// DiscordCallback handles POST /api/auth/discord/callback: exchanges the
// authorization code, fetches the user identity and issues a session cookie.
func (h *Handler) DiscordCallback(c *gin.Context) {
	var req CallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	token, err := h.oauth.Exchange(ctx, req.Code)
	if err != nil {
		h.logger.Warn("discord code exchange failed", zap.Error(err))
		response.Unauthorized(c, "code exchange failed")
		return
	}

	user, err := discord.FetchIdentity(ctx, h.oauth.Client(ctx, token))
	if err != nil {
		h.logger.Warn("discord identity fetch failed", zap.Error(err))
		response.Unauthorized(c, "identity fetch failed")
		return
	}

	session := &sessions.Session{
		ID:            uuid.New().String(),
		DiscordUserID: user.ID,
		Username:      user.Username,
		AccessToken:   token.AccessToken,
		RefreshToken:  token.RefreshToken,
		ExpiresAt:     token.Expiry,
	}
	if err := h.sessions.Create(ctx, session); err != nil {
		h.logger.Error("session create failed", zap.Error(err))
		response.Internal(c, "failed to create session")
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, session.ID, int(cookieMaxAge.Seconds()), "/", "", false, true)
	h.logger.Info("user logged in", zap.String("username", user.Username))
	response.OK(c, gin.H{"success": true})
}

// Logout handles POST /api/auth/logout.
func (h *Handler) Logout(c *gin.Context) {
	sessionID, err := c.Cookie(SessionCookie)
	if err == nil && sessionID != "" {
		if err := h.sessions.Delete(c.Request.Context(), sessionID); err != nil {
			h.logger.Warn("session delete failed", zap.Error(err))
		}
	}
	c.SetCookie(SessionCookie, "", -1, "/", "", false, true)
	response.OK(c, gin.H{"success": true})
}
