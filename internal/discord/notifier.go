// Package discord wraps the Discord REST API (bot notifications, channel
// listing) and the OAuth2 login flow.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultAPIBase = "https://discord.com/api/v10"

// channelTypeGuildText is the Discord channel type for plain text channels.
const channelTypeGuildText = 0

// Notifier posts messages through the Discord REST API with a bot token.
type Notifier struct {
	http     *http.Client
	apiBase  string
	botToken string
	logger   *zap.Logger
}

// NewNotifier creates a Discord REST notifier.
func NewNotifier(botToken string, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		http:     &http.Client{Timeout: 30 * time.Second},
		apiBase:  defaultAPIBase,
		botToken: botToken,
		logger:   logger,
	}
}

// SendDirectMessage opens (or reuses) the DM channel with the user and posts
// the message there.
func (n *Notifier) SendDirectMessage(ctx context.Context, userID, content string) error {
	if n.botToken == "" {
		n.logger.Warn("bot token not configured, skipping DM")
		return nil
	}

	var dm struct {
		ID string `json:"id"`
	}
	err := n.post(ctx, "/users/@me/channels", map[string]string{"recipient_id": userID}, &dm)
	if err != nil {
		return fmt.Errorf("create dm channel: %w", err)
	}

	if err := n.post(ctx, "/channels/"+dm.ID+"/messages", map[string]string{"content": content}, nil); err != nil {
		return fmt.Errorf("send dm: %w", err)
	}
	n.logger.Debug("dm sent", zap.String("user_id", userID))
	return nil
}

// PostChannelMessage posts to a channel, prefixing @here when pingAll is set.
func (n *Notifier) PostChannelMessage(ctx context.Context, channelID, content string, pingAll bool) error {
	if n.botToken == "" {
		n.logger.Warn("bot token not configured, skipping channel message")
		return nil
	}
	if channelID == "" {
		return fmt.Errorf("channel id required")
	}

	if pingAll {
		content = "@here\n" + content
	}
	if err := n.post(ctx, "/channels/"+channelID+"/messages", map[string]string{"content": content}, nil); err != nil {
		return fmt.Errorf("post channel message: %w", err)
	}
	n.logger.Debug("channel message posted", zap.String("channel_id", channelID))
	return nil
}

// Channel is a guild text channel as offered to the upload form.
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// GuildTextChannels lists the guild's text channels, keeping only named
// channels (those containing a dash, per server convention), sorted by name.
func (n *Notifier) GuildTextChannels(ctx context.Context, guildID string) ([]Channel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.apiBase+"/guilds/"+guildID+"/channels", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+n.botToken)

	resp, err := n.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list channels: status %d: %s", resp.StatusCode, readBodySnippet(resp.Body))
	}

	var raw []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Type int    `json:"type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode channels: %w", err)
	}

	channels := make([]Channel, 0, len(raw))
	for _, ch := range raw {
		if ch.Type == channelTypeGuildText && strings.Contains(ch.Name, "-") {
			channels = append(channels, Channel{ID: ch.ID, Name: ch.Name})
		}
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i].Name < channels[j].Name })
	return channels, nil
}

// post sends a JSON body with bot auth and decodes the response into out when
// out is non-nil.
func (n *Notifier) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.apiBase+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+n.botToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, readBodySnippet(resp.Body))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func readBodySnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return string(b)
}
