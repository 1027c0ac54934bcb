package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ddclipshare/backend/internal/jobs"
)

type fakeHost struct {
	uploadID    string
	uploadErr   error
	complete    bool
	checkErr    error
	uploads     int
	checks      int
	lastJobID   string
	lastVideoID string
}

func (f *fakeHost) Upload(_ context.Context, job *jobs.Job) (string, error) {
	f.uploads++
	f.lastJobID = job.ID
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	return f.uploadID, nil
}

func (f *fakeHost) ProcessingComplete(_ context.Context, videoID string) (bool, error) {
	f.checks++
	f.lastVideoID = videoID
	if f.checkErr != nil {
		return false, f.checkErr
	}
	return f.complete, nil
}

type fakeNotifier struct {
	dms     []string
	posts   []string
	pings   []bool
	dmErr   error
	postErr error
}

func (f *fakeNotifier) SendDirectMessage(_ context.Context, _, content string) error {
	f.dms = append(f.dms, content)
	return f.dmErr
}

func (f *fakeNotifier) PostChannelMessage(_ context.Context, _, content string, pingAll bool) error {
	f.posts = append(f.posts, content)
	f.pings = append(f.pings, pingAll)
	return f.postErr
}

type harness struct {
	orch     *Orchestrator
	ledger   *jobs.Ledger
	host     *fakeHost
	notifier *fakeNotifier
	clock    time.Time
}

func newHarness(t *testing.T, host *fakeHost, notifier *fakeNotifier) *harness {
	t.Helper()
	h := &harness{
		ledger:   jobs.NewLedger(),
		host:     host,
		notifier: notifier,
		clock:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	h.orch = New(h.ledger, host, notifier, 0, 0, 0, nil)
	h.orch.now = func() time.Time { return h.clock }
	return h
}

func (h *harness) advanceClock(d time.Duration) { h.clock = h.clock.Add(d) }

// tempVideo creates a fake staged upload file and returns its path.
func tempVideo(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("video-bytes"), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func queuedJob(t *testing.T, id string) *jobs.Job {
	t.Helper()
	return &jobs.Job{
		ID:            id,
		DiscordUserID: "user-1",
		Username:      "player",
		Title:         "Sick clutch",
		TargetChannel: "chan-1",
		FilePath:      tempVideo(t),
		Status:        jobs.StatusQueued,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestQueuedJobMovesToProcessing(t *testing.T) {
	host := &fakeHost{uploadID: "vid-123"}
	notifier := &fakeNotifier{}
	h := newHarness(t, host, notifier)

	h.ledger.Add(queuedJob(t, "j1"))
	h.orch.Tick(context.Background())

	job := h.ledger.Get("j1")
	if job.Status != jobs.StatusProcessing {
		t.Fatalf("status = %s, want %s", job.Status, jobs.StatusProcessing)
	}
	if job.VideoID != "vid-123" {
		t.Fatalf("video id = %q, want vid-123", job.VideoID)
	}
	if job.ProcessingStartedAt.IsZero() || job.LastCheckedAt.IsZero() {
		t.Fatal("processing timestamps not set")
	}
	if host.uploads != 1 {
		t.Fatalf("uploads = %d, want 1", host.uploads)
	}
	if len(notifier.dms) != 1 || !strings.Contains(notifier.dms[0], "Sick clutch") {
		t.Fatalf("expected one starting DM mentioning the title, got %v", notifier.dms)
	}
}

func TestUploadFailureFailsJobAndCleansUp(t *testing.T) {
	host := &fakeHost{uploadErr: errors.New("quota exceeded")}
	notifier := &fakeNotifier{}
	h := newHarness(t, host, notifier)

	job := queuedJob(t, "j1")
	path := job.FilePath
	h.ledger.Add(job)
	h.orch.Tick(context.Background())

	got := h.ledger.Get("j1")
	if got.Status != jobs.StatusFailed {
		t.Fatalf("status = %s, want %s", got.Status, jobs.StatusFailed)
	}
	if got.ErrorMessage == "" || !strings.Contains(got.ErrorMessage, "quota exceeded") {
		t.Fatalf("error message = %q", got.ErrorMessage)
	}
	if got.CompletedAt.IsZero() {
		t.Fatal("completed timestamp not set")
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("temp file still present after failure: %v", err)
	}

	var failureDMs int
	for _, dm := range notifier.dms {
		if strings.Contains(dm, "failed") {
			failureDMs++
		}
	}
	if failureDMs != 1 {
		t.Fatalf("failure DMs = %d, want exactly 1 (all DMs: %v)", failureDMs, notifier.dms)
	}
}

func TestBackoffSchedule(t *testing.T) {
	h := newHarness(t, &fakeHost{}, &fakeNotifier{})

	want := []time.Duration{
		5 * time.Second,
		10 * time.Second,
		20 * time.Second,
		40 * time.Second,
		60 * time.Second,
		60 * time.Second,
	}
	for n, w := range want {
		if got := h.orch.checkWait(n); got != w {
			t.Fatalf("checkWait(%d) = %s, want %s", n, got, w)
		}
	}
	// Large check counts stay pinned at the cap instead of overflowing.
	if got := h.orch.checkWait(64); got != 60*time.Second {
		t.Fatalf("checkWait(64) = %s, want 60s", got)
	}
}

func TestProcessingCheckRespectsBackoffWindow(t *testing.T) {
	host := &fakeHost{complete: false}
	h := newHarness(t, host, &fakeNotifier{})

	job := queuedJob(t, "j1")
	job.Status = jobs.StatusProcessing
	job.VideoID = "vid-123"
	job.ProcessingChecks = 3 // next check requires a 40s wait
	job.ProcessingStartedAt = h.clock.Add(-5 * time.Minute)
	job.LastCheckedAt = h.clock
	h.ledger.Add(job)

	h.advanceClock(39 * time.Second)
	h.orch.Tick(context.Background())
	if host.checks != 0 {
		t.Fatalf("check performed at 39s, want none before 40s")
	}
	if got := h.ledger.Get("j1").ProcessingChecks; got != 3 {
		t.Fatalf("check counter = %d, want 3", got)
	}

	h.advanceClock(2 * time.Second) // 41s since last check
	h.orch.Tick(context.Background())
	if host.checks != 1 {
		t.Fatalf("checks = %d, want exactly 1", host.checks)
	}
	got := h.ledger.Get("j1")
	if got.ProcessingChecks != 4 {
		t.Fatalf("check counter = %d, want 4", got.ProcessingChecks)
	}
	if !got.LastCheckedAt.Equal(h.clock) {
		t.Fatalf("last check timestamp not advanced")
	}
	if got.Status != jobs.StatusProcessing {
		t.Fatalf("status = %s, want %s", got.Status, jobs.StatusProcessing)
	}
}

func TestProcessingCompleteOnFirstCheck(t *testing.T) {
	host := &fakeHost{complete: true}
	notifier := &fakeNotifier{}
	h := newHarness(t, host, notifier)

	job := queuedJob(t, "j1")
	job.Status = jobs.StatusProcessing
	job.VideoID = "vid-123"
	job.PublishMessage = "new personal best"
	job.PingChannel = true
	job.ProcessingStartedAt = h.clock
	job.LastCheckedAt = h.clock
	path := job.FilePath
	h.ledger.Add(job)

	h.advanceClock(5 * time.Second)
	h.orch.Tick(context.Background())

	got := h.ledger.Get("j1")
	if got.Status != jobs.StatusCompleted {
		t.Fatalf("status = %s, want %s", got.Status, jobs.StatusCompleted)
	}
	if got.CompletedAt.IsZero() {
		t.Fatal("completed timestamp not set")
	}
	if len(notifier.posts) != 1 {
		t.Fatalf("channel posts = %d, want exactly 1", len(notifier.posts))
	}
	if !strings.Contains(notifier.posts[0], "https://www.youtube.com/watch?v=vid-123") {
		t.Fatalf("post missing watch URL: %q", notifier.posts[0])
	}
	if !strings.Contains(notifier.posts[0], "new personal best") {
		t.Fatalf("post missing publish message: %q", notifier.posts[0])
	}
	if !notifier.pings[0] {
		t.Fatal("expected pingAll on channel post")
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("temp file still present after completion")
	}
}

func TestProcessingNeverTimesOutWhileIncomplete(t *testing.T) {
	host := &fakeHost{complete: false}
	h := newHarness(t, host, &fakeNotifier{})

	job := queuedJob(t, "j1")
	job.Status = jobs.StatusProcessing
	job.VideoID = "vid-123"
	job.ProcessingStartedAt = h.clock
	job.LastCheckedAt = h.clock
	h.ledger.Add(job)

	for i := 0; i < 200; i++ {
		h.advanceClock(time.Minute)
		h.orch.Tick(context.Background())
	}

	got := h.ledger.Get("j1")
	if got.Status != jobs.StatusProcessing {
		t.Fatalf("status = %s, want still %s", got.Status, jobs.StatusProcessing)
	}
	if got.ProcessingChecks != 200 {
		t.Fatalf("checks = %d, want 200", got.ProcessingChecks)
	}
}

func TestProcessingCheckErrorFailsJob(t *testing.T) {
	host := &fakeHost{checkErr: errors.New("api unreachable")}
	notifier := &fakeNotifier{}
	h := newHarness(t, host, notifier)

	job := queuedJob(t, "j1")
	job.Status = jobs.StatusProcessing
	job.VideoID = "vid-123"
	job.ProcessingStartedAt = h.clock
	job.LastCheckedAt = h.clock
	path := job.FilePath
	h.ledger.Add(job)

	h.advanceClock(5 * time.Second)
	h.orch.Tick(context.Background())

	got := h.ledger.Get("j1")
	if got.Status != jobs.StatusFailed {
		t.Fatalf("status = %s, want %s", got.Status, jobs.StatusFailed)
	}
	if !strings.Contains(got.ErrorMessage, "api unreachable") {
		t.Fatalf("error message = %q", got.ErrorMessage)
	}
	if len(notifier.dms) != 1 {
		t.Fatalf("DMs = %d, want 1", len(notifier.dms))
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("temp file still present after failure")
	}
}

func TestOneJobFailureDoesNotAbortOthers(t *testing.T) {
	host := &fakeHost{uploadErr: errors.New("boom")}
	h := newHarness(t, host, &fakeNotifier{})

	h.ledger.Add(queuedJob(t, "j1"))
	h.ledger.Add(queuedJob(t, "j2"))
	h.orch.Tick(context.Background())

	if host.uploads != 2 {
		t.Fatalf("uploads attempted = %d, want 2", host.uploads)
	}
	for _, id := range []string{"j1", "j2"} {
		if got := h.ledger.Get(id).Status; got != jobs.StatusFailed {
			t.Fatalf("job %s status = %s, want %s", id, got, jobs.StatusFailed)
		}
	}
}

func TestFailedAnnouncementDoesNotRevertCompletion(t *testing.T) {
	host := &fakeHost{complete: true}
	notifier := &fakeNotifier{postErr: errors.New("channel gone")}
	h := newHarness(t, host, notifier)

	job := queuedJob(t, "j1")
	job.Status = jobs.StatusProcessing
	job.VideoID = "vid-123"
	job.ProcessingStartedAt = h.clock
	job.LastCheckedAt = h.clock
	h.ledger.Add(job)

	h.advanceClock(5 * time.Second)
	h.orch.Tick(context.Background())

	got := h.ledger.Get("j1")
	if got.Status != jobs.StatusCompleted {
		t.Fatalf("status = %s, want %s (announcement failure must not re-fail)", got.Status, jobs.StatusCompleted)
	}
	if got.ErrorMessage != "" {
		t.Fatalf("unexpected error message %q", got.ErrorMessage)
	}
}

func TestCleanupIsIdempotent(t *testing.T) {
	host := &fakeHost{uploadErr: errors.New("boom")}
	h := newHarness(t, host, &fakeNotifier{})

	job := queuedJob(t, "j1")
	if err := os.Remove(job.FilePath); err != nil {
		t.Fatal(err)
	}
	h.ledger.Add(job)

	// Must not panic or escalate even though the file is already gone.
	h.orch.Tick(context.Background())

	if got := h.ledger.Get("j1").Status; got != jobs.StatusFailed {
		t.Fatalf("status = %s, want %s", got, jobs.StatusFailed)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t, &fakeHost{}, &fakeNotifier{})
	h.orch.tick = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.orch.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("orchestrator did not stop on cancel")
	}
}
