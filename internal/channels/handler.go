// Package channels exposes the guild channel listing for the upload form.
package channels

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ddclipshare/backend/internal/discord"
	"github.com/ddclipshare/backend/pkg/response"
)

// Handler lists the guild's text channels.
type Handler struct {
	notifier *discord.Notifier
	guildID  string
	logger   *zap.Logger
}

// NewHandler creates a channels handler for one guild.
func NewHandler(notifier *discord.Notifier, guildID string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{notifier: notifier, guildID: guildID, logger: logger}
}

// List handles GET /api/discord/channels.
func (h *Handler) List(c *gin.Context) {
	if h.guildID == "" {
		response.Internal(c, "discord guild not configured")
		return
	}

	channels, err := h.notifier.GuildTextChannels(c.Request.Context(), h.guildID)
	if err != nil {
		h.logger.Error("channel listing failed", zap.Error(err))
		response.Internal(c, "failed to fetch channels")
		return
	}
	response.OK(c, gin.H{"channels": channels})
}
