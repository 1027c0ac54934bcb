// Package worker drives queued upload jobs to a terminal status in the background.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ddclipshare/backend/internal/jobs"
)

// VideoHost uploads videos and reports server-side processing completion.
type VideoHost interface {
	// Upload pushes the job's file to the host and returns the remote video id
	// as soon as the host acknowledges receipt.
	Upload(ctx context.Context, job *jobs.Job) (string, error)
	// ProcessingComplete reports whether the host has finished processing the
	// video. "Unknown" (e.g. not found yet) is false, not an error.
	ProcessingComplete(ctx context.Context, videoID string) (bool, error)
}

// Notifier delivers status updates to the uploader and the target channel.
type Notifier interface {
	SendDirectMessage(ctx context.Context, userID, content string) error
	PostChannelMessage(ctx context.Context, channelID, content string, pingAll bool) error
}

// Orchestrator scans the ledger on a fixed tick and advances every pending job
// through Queued -> Uploading -> Processing -> Completed/Failed. Jobs are
// processed sequentially within a tick, so a single job is never touched by
// two iterations at once.
type Orchestrator struct {
	ledger   *jobs.Ledger
	host     VideoHost
	notifier Notifier
	logger   *zap.Logger

	tick        time.Duration
	backoffBase time.Duration
	backoffCap  time.Duration

	now func() time.Time
}

// New creates an orchestrator with the given pacing. Zero durations fall back
// to the defaults (5s tick, 5s backoff base, 60s backoff cap).
func New(ledger *jobs.Ledger, host VideoHost, notifier Notifier, tick, backoffBase, backoffCap time.Duration, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tick <= 0 {
		tick = 5 * time.Second
	}
	if backoffBase <= 0 {
		backoffBase = 5 * time.Second
	}
	if backoffCap <= 0 {
		backoffCap = 60 * time.Second
	}
	return &Orchestrator{
		ledger:      ledger,
		host:        host,
		notifier:    notifier,
		logger:      logger,
		tick:        tick,
		backoffBase: backoffBase,
		backoffCap:  backoffCap,
		now:         time.Now,
	}
}

// Run is the orchestrator loop. It returns only when ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) {
	o.logger.Info("upload orchestrator started", zap.Duration("tick", o.tick))
	ticker := time.NewTicker(o.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("upload orchestrator stopping")
			return
		case <-ticker.C:
			o.Tick(ctx)
		}
	}
}

// Tick processes every pending job once. An error in one job never aborts the
// others: each job has its own failure boundary.
func (o *Orchestrator) Tick(ctx context.Context) {
	for _, job := range o.ledger.Pending() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := o.advance(ctx, job); err != nil {
			o.fail(ctx, job, err)
		}
	}
}

// advance moves one job a single step forward. Returned errors mean the job
// must be failed; nil means the job is done with this tick.
func (o *Orchestrator) advance(ctx context.Context, job *jobs.Job) error {
	switch job.Status {
	case jobs.StatusQueued:
		return o.startUpload(ctx, job)
	case jobs.StatusUploading:
		// Upload in flight; nothing to do until the upload call returns.
		return nil
	case jobs.StatusProcessing:
		return o.checkProcessing(ctx, job)
	case jobs.StatusCompleted, jobs.StatusFailed:
		return nil
	default:
		return fmt.Errorf("job %s in unknown status %q", job.ID, job.Status)
	}
}

func (o *Orchestrator) startUpload(ctx context.Context, job *jobs.Job) error {
	o.logger.Info("starting upload", zap.String("job_id", job.ID), zap.String("title", job.Title))

	if err := o.notifier.SendDirectMessage(ctx, job.DiscordUserID, fmt.Sprintf("🎬 Starting upload: **%s**", job.Title)); err != nil {
		o.logger.Warn("start DM failed", zap.String("job_id", job.ID), zap.Error(err))
	}

	if err := o.transition(job, jobs.StatusUploading); err != nil {
		return err
	}
	o.ledger.Update(job)

	videoID, err := o.host.Upload(ctx, job)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}

	job.VideoID = videoID
	now := o.now()
	job.ProcessingStartedAt = now
	job.LastCheckedAt = now
	if err := o.transition(job, jobs.StatusProcessing); err != nil {
		return err
	}
	o.ledger.Update(job)

	o.logger.Info("upload acknowledged, polling for processing",
		zap.String("job_id", job.ID), zap.String("video_id", videoID))
	return nil
}

func (o *Orchestrator) checkProcessing(ctx context.Context, job *jobs.Job) error {
	wait := o.checkWait(job.ProcessingChecks)
	elapsed := o.now().Sub(job.LastCheckedAt)
	if elapsed < wait {
		return nil // not time to check yet
	}

	o.logger.Debug("checking processing status",
		zap.String("job_id", job.ID),
		zap.Int("check", job.ProcessingChecks+1),
		zap.Duration("since_last", elapsed))

	done, err := o.host.ProcessingComplete(ctx, job.VideoID)
	if err != nil {
		return fmt.Errorf("processing check: %w", err)
	}

	job.ProcessingChecks++
	job.LastCheckedAt = o.now()
	o.ledger.Update(job)

	if !done {
		o.logger.Debug("still processing",
			zap.String("job_id", job.ID),
			zap.Duration("next_check_in", o.checkWait(job.ProcessingChecks)))
		return nil
	}

	if err := o.transition(job, jobs.StatusCompleted); err != nil {
		return err
	}
	job.CompletedAt = o.now()
	o.ledger.Update(job)

	o.logger.Info("processing complete",
		zap.String("job_id", job.ID), zap.String("video_id", job.VideoID))

	// The outcome is decided; a failed announcement never re-fails the job.
	if err := o.notifier.PostChannelMessage(ctx, job.TargetChannel, publishMessage(job), job.PingChannel); err != nil {
		o.logger.Error("publish announcement failed",
			zap.String("job_id", job.ID), zap.String("channel_id", job.TargetChannel), zap.Error(err))
	}
	o.cleanup(job)
	return nil
}

// fail marks the job Failed, DMs the uploader once and removes the temp file.
func (o *Orchestrator) fail(ctx context.Context, job *jobs.Job, cause error) {
	o.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(cause))

	job.ErrorMessage = cause.Error()
	job.CompletedAt = o.now()
	job.Status = jobs.StatusFailed
	o.ledger.Update(job)

	msg := fmt.Sprintf("❌ Upload failed for **%s**: %s\n\nPlease try again, or contact an admin if this keeps happening.", job.Title, cause.Error())
	if err := o.notifier.SendDirectMessage(ctx, job.DiscordUserID, msg); err != nil {
		o.logger.Warn("failure DM failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	o.cleanup(job)
}

// cleanup removes the job's temp file. Already-gone files are a no-op and
// removal errors are logged, never escalated.
func (o *Orchestrator) cleanup(job *jobs.Job) {
	if job.FilePath == "" {
		return
	}
	if err := os.Remove(job.FilePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		o.logger.Error("temp file cleanup failed",
			zap.String("job_id", job.ID), zap.String("path", job.FilePath), zap.Error(err))
		return
	}
	o.logger.Debug("temp file removed", zap.String("job_id", job.ID), zap.String("path", job.FilePath))
}

func (o *Orchestrator) transition(job *jobs.Job, to jobs.Status) error {
	if !jobs.CanTransition(job.Status, to) {
		return fmt.Errorf("job %s: illegal transition %s -> %s", job.ID, job.Status, to)
	}
	job.Status = to
	return nil
}

// checkWait is the backoff schedule for processing checks: base*2^n capped,
// i.e. 5s, 10s, 20s, 40s, 60s, 60s... with the defaults.
func (o *Orchestrator) checkWait(checks int) time.Duration {
	if checks > 30 {
		return o.backoffCap
	}
	wait := o.backoffBase << uint(checks)
	if wait > o.backoffCap || wait <= 0 {
		return o.backoffCap
	}
	return wait
}

func publishMessage(job *jobs.Job) string {
	if job.PublishMessage == "" {
		return fmt.Sprintf("<@%s>\n\n%s", job.DiscordUserID, job.WatchURL())
	}
	return fmt.Sprintf("<@%s> : %s\n\n%s", job.DiscordUserID, job.PublishMessage, job.WatchURL())
}
