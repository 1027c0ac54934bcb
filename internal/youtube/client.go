// Package youtube wraps the YouTube Data API for uploads, processing polls and
// credential upkeep.
package youtube

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/ddclipshare/backend/internal/jobs"
)

const (
	categoryGaming = "20"
	chunkSize      = 8 * 1024 * 1024
)

// Config holds the OAuth client and upload defaults for the shared channel.
type Config struct {
	ClientID      string
	ClientSecret  string
	RefreshToken  string
	PrivacyStatus string // default "unlisted"
}

// Client talks to the YouTube Data API on behalf of the shared channel.
type Client struct {
	cfg    Config
	logger *zap.Logger
}

// NewClient creates a YouTube client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PrivacyStatus == "" {
		cfg.PrivacyStatus = "unlisted"
	}
	return &Client{cfg: cfg, logger: logger}
}

// oauthConfig is the Google OAuth2 client for the upload and readonly scopes.
func (c *Client) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{yt.YoutubeUploadScope, yt.YoutubeReadonlyScope},
	}
}

// service builds an API client with a fresh token source from the stored
// refresh token, so an expired access token is never reused.
func (c *Client) service(ctx context.Context) (*yt.Service, error) {
	ts := c.oauthConfig().TokenSource(ctx, &oauth2.Token{RefreshToken: c.cfg.RefreshToken})
	svc, err := yt.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return svc, nil
}

// Upload performs a resumable upload of the job's file and returns the video
// id as soon as YouTube acknowledges receipt. Server-side processing continues
// after this returns; poll ProcessingComplete for the terminal state.
func (c *Client) Upload(ctx context.Context, job *jobs.Job) (string, error) {
	svc, err := c.service(ctx)
	if err != nil {
		return "", err
	}

	f, err := os.Open(job.FilePath)
	if err != nil {
		return "", fmt.Errorf("open video file: %w", err)
	}
	defer f.Close()

	video := &yt.Video{
		Snippet: &yt.VideoSnippet{
			Title:       job.Title,
			Description: job.Description,
			Tags:        []string{"gaming", "clip"},
			CategoryId:  categoryGaming,
		},
		Status: &yt.VideoStatus{
			PrivacyStatus:           c.cfg.PrivacyStatus,
			SelfDeclaredMadeForKids: false,
		},
	}

	call := svc.Videos.Insert([]string{"snippet", "status"}, video).
		Media(f, googleapi.ChunkSize(chunkSize)).
		ProgressUpdater(func(current, total int64) {
			c.logger.Debug("upload progress",
				zap.String("job_id", job.ID),
				zap.Int64("bytes_sent", current),
				zap.Int64("bytes_total", total))
		})

	uploaded, err := call.Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("youtube upload: %w", err)
	}
	if uploaded.Id == "" {
		return "", fmt.Errorf("youtube upload: no video id in response")
	}

	c.logger.Info("video uploaded",
		zap.String("job_id", job.ID), zap.String("video_id", uploaded.Id))
	return uploaded.Id, nil
}

// ProcessingComplete reports whether YouTube has finished processing the
// video. A video that is not found (yet) is logged and treated as still
// processing rather than an error.
func (c *Client) ProcessingComplete(ctx context.Context, videoID string) (bool, error) {
	svc, err := c.service(ctx)
	if err != nil {
		return false, err
	}

	resp, err := svc.Videos.List([]string{"processingDetails", "status"}).
		Id(videoID).Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("list video %s: %w", videoID, err)
	}
	if len(resp.Items) == 0 {
		c.logger.Warn("video not found during processing check", zap.String("video_id", videoID))
		return false, nil
	}

	video := resp.Items[0]
	var processingStatus, uploadStatus string
	if video.ProcessingDetails != nil {
		processingStatus = video.ProcessingDetails.ProcessingStatus
	}
	if video.Status != nil {
		uploadStatus = video.Status.UploadStatus
	}
	c.logger.Debug("processing status",
		zap.String("video_id", videoID),
		zap.String("processing_status", processingStatus),
		zap.String("upload_status", uploadStatus))

	return processingStatus == "succeeded", nil
}
