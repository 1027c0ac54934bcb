package youtube

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Refresher proactively exchanges the stored refresh token on a long fixed
// period so the channel credential never goes stale between uploads. If
// Google rotates the refresh token, the new one is written to a side file for
// operator follow-up; it is not propagated into live configuration.
type Refresher struct {
	cfg      Config
	warmup   time.Duration
	interval time.Duration
	notePath string
	logger   *zap.Logger

	// tokens is swappable in tests; defaults to the real Google token endpoint.
	tokens func(ctx context.Context) (*oauth2.Token, error)
}

// NewRefresher creates a credential refresher. Zero durations fall back to the
// defaults (1h warm-up, 24h period); an empty notePath falls back to a file in
// the OS temp dir.
func NewRefresher(cfg Config, warmup, interval time.Duration, notePath string, logger *zap.Logger) *Refresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if warmup <= 0 {
		warmup = time.Hour
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if notePath == "" {
		notePath = fmt.Sprintf("%s/youtube-refresh-token.txt", os.TempDir())
	}
	r := &Refresher{cfg: cfg, warmup: warmup, interval: interval, notePath: notePath, logger: logger}
	r.tokens = func(ctx context.Context) (*oauth2.Token, error) {
		client := NewClient(cfg, logger)
		return client.oauthConfig().TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken}).Token()
	}
	return r
}

// Run is the refresh loop. It waits the warm-up delay, then refreshes on the
// fixed period until ctx is cancelled. Refresh errors are logged and the loop
// keeps its schedule.
func (r *Refresher) Run(ctx context.Context) {
	r.logger.Info("token refresher started",
		zap.Duration("warmup", r.warmup), zap.Duration("interval", r.interval))

	timer := time.NewTimer(r.warmup)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("token refresher stopping")
			return
		case <-timer.C:
		}

		if err := r.Refresh(ctx); err != nil {
			r.logger.Error("token refresh failed", zap.Error(err))
		}
		timer.Reset(r.interval)
	}
}

// Refresh exchanges the stored refresh token once and records any rotation.
func (r *Refresher) Refresh(ctx context.Context) error {
	if r.cfg.RefreshToken == "" {
		r.logger.Warn("no refresh token configured, skipping refresh")
		return nil
	}

	tok, err := r.tokens(ctx)
	if err != nil {
		return fmt.Errorf("refresh access token: %w", err)
	}

	r.logger.Info("access token refreshed", zap.Time("expires", tok.Expiry))

	if tok.RefreshToken != "" && tok.RefreshToken != r.cfg.RefreshToken {
		r.recordRotation(tok.RefreshToken)
	}
	return nil
}

// recordRotation logs a rotated refresh token and writes it to the side file
// so an operator can update the deployment config.
func (r *Refresher) recordRotation(newToken string) {
	preview := newToken
	if len(preview) > 12 {
		preview = preview[:12]
	}
	r.logger.Warn("google issued a new refresh token; update YOUTUBE_REFRESH_TOKEN and restart",
		zap.String("token_preview", preview+"..."),
		zap.String("note_path", r.notePath))

	note := fmt.Sprintf("New YouTube refresh token received at %s\nToken: %s\n\nUpdate YOUTUBE_REFRESH_TOKEN in the deployment environment and restart.\n",
		time.Now().UTC().Format(time.RFC3339), newToken)
	if err := os.WriteFile(r.notePath, []byte(note), 0o600); err != nil {
		r.logger.Error("failed to write rotated token note", zap.Error(err))
	}
}
