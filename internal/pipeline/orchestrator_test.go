package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tubeautomator/internal/auth"
	"tubeautomator/internal/domain"
	"tubeautomator/internal/youtube"
)

type fakeMetadata struct {
	mu    sync.Mutex
	calls int
	keys  []string
	fn    func(call int, concept string) (*domain.Metadata, error)
}

func (f *fakeMetadata) Generate(_ context.Context, apiKey, concept string) (*domain.Metadata, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.keys = append(f.keys, apiKey)
	f.mu.Unlock()
	if apiKey == "" {
		return nil, &domain.ConfigurationError{Field: "gemini api key", Reason: "is missing"}
	}
	if f.fn != nil {
		return f.fn(call, concept)
	}
	return &domain.Metadata{
		Title:           "Title for " + concept,
		Description:     "desc",
		Tags:            []string{"a", "b"},
		ThumbnailPrompt: "prompt for " + concept,
		EstimatedCost:   0.0005,
	}, nil
}

type fakeThumbnail struct {
	mu    sync.Mutex
	calls int
	ref   domain.ImageRef
	gate  chan struct{}
}

func (f *fakeThumbnail) Generate(context.Context, string, string) domain.ImageRef {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.ref == "" {
		return domain.FallbackThumbnail
	}
	return f.ref
}

type fakeUploader struct {
	mu         sync.Mutex
	uploads    int
	thumbs     int
	tokens     []string
	body       []byte
	uploadFn   func(call int) (string, error)
	thumbErr   error
	block      chan struct{}
	uploadSeen chan struct{}

	// steps are reported before pausing on resume; stepped signals the pause.
	steps   []int
	stepped chan struct{}
	resume  chan struct{}
}

func (f *fakeUploader) UploadVideo(ctx context.Context, token string, video youtube.Video, _ domain.Metadata, progress youtube.ProgressSink) (string, error) {
	f.mu.Lock()
	f.uploads++
	call := f.uploads
	f.tokens = append(f.tokens, token)
	f.mu.Unlock()
	if f.uploadSeen != nil {
		f.uploadSeen <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	data, _ := io.ReadAll(video.Body)
	f.mu.Lock()
	f.body = data
	f.mu.Unlock()
	if f.steps != nil {
		for _, p := range f.steps {
			progress.Progress(p)
		}
		f.stepped <- struct{}{}
		<-f.resume
		progress.Progress(100)
		return "abc123", nil
	}
	progress.Progress(0)
	progress.Progress(50)
	if f.uploadFn != nil {
		id, err := f.uploadFn(call)
		if err != nil {
			return "", err
		}
		progress.Progress(100)
		return id, nil
	}
	progress.Progress(100)
	return "abc123", nil
}

func (f *fakeUploader) SetThumbnail(context.Context, string, string, domain.ImageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.thumbs++
	return f.thumbErr
}

type memSources map[string][]byte

func (m memSources) Open(key string) (io.ReadCloser, int64, error) {
	data, ok := m[key]
	if !ok {
		return nil, 0, errors.New("missing")
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

type fakeAuth struct {
	mu          sync.Mutex
	token       string
	requests    int
	invalidated int
}

func (f *fakeAuth) Token() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, f.token != ""
}

func (f *fakeAuth) RequestToken(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	return nil
}

func (f *fakeAuth) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated++
	f.token = ""
}

var _ auth.Provider = (*fakeAuth)(nil)

type fakeRecorder struct {
	mu   sync.Mutex
	pubs []domain.Publication
}

func (f *fakeRecorder) Record(_ context.Context, p domain.Publication) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pubs = append(f.pubs, p)
	return nil
}

type harness struct {
	orch     *Orchestrator
	meta     *fakeMetadata
	thumb    *fakeThumbnail
	uploader *fakeUploader
	auth     *fakeAuth
	recorder *fakeRecorder
	sources  memSources
}

func newHarness(t *testing.T, apiKey string) *harness {
	t.Helper()
	h := &harness{
		meta:     &fakeMetadata{},
		thumb:    &fakeThumbnail{ref: domain.InlineImage("image/png", "aW1n")},
		uploader: &fakeUploader{},
		auth:     &fakeAuth{token: "TOKEN"},
		recorder: &fakeRecorder{},
		sources:  memSources{"sources/u1/clip.mp4": []byte("video-bytes")},
	}
	orch, err := New(Options{
		Metadata:     h.meta,
		Thumbnail:    h.thumb,
		Uploader:     h.uploader,
		Sources:      h.sources,
		Auth:         h.auth,
		Publications: h.recorder,
		APIKey:       apiKey,
	})
	require.NoError(t, err)
	h.orch = orch
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = orch.Shutdown(ctx)
	})
	return h
}

func (h *harness) waitFor(t *testing.T, id string, statuses ...domain.JobStatus) domain.Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	job, err := h.orch.Await(ctx, id, func(j domain.Job) bool {
		for _, s := range statuses {
			if j.Status == s {
				return true
			}
		}
		return false
	})
	require.NoError(t, err, "job stuck in %s", job.Status)
	return job
}

func sourceFile() *domain.SourceFile {
	return &domain.SourceFile{Key: "sources/u1/clip.mp4", Name: "clip.mp4", Size: 11, MIMEType: "video/mp4"}
}

func TestSubmitConceptReachesReadyToUpload(t *testing.T) {
	h := newHarness(t, "VALID_KEY")

	created, err := h.orch.Submit(NewJob{Concept: "cooking tutorial"})
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusAnalyzing, created.Status)
	require.Equal(t, "video_draft_1.mp4", created.Filename)
	require.Equal(t, "Unknown", created.FileSize)

	job := h.waitFor(t, created.ID, domain.JobStatusReadyToUpload, domain.JobStatusFailed)
	require.Equal(t, domain.JobStatusReadyToUpload, job.Status)
	require.NotNil(t, job.Result)
	require.Equal(t, "Title for cooking tutorial", job.Result.Title)
	require.True(t, job.Result.Thumbnail.IsInline())
	require.Empty(t, job.RemoteID)
	require.Equal(t, []string{"VALID_KEY"}, h.meta.keys)
}

func TestSubmitRequiresConceptOrFile(t *testing.T) {
	h := newHarness(t, "KEY")
	_, err := h.orch.Submit(NewJob{Concept: "   "})
	require.ErrorIs(t, err, domain.ErrEmptyConcept)
	require.Empty(t, h.orch.Jobs())
}

func TestSubmitFileDerivesConcept(t *testing.T) {
	h := newHarness(t, "KEY")
	created, err := h.orch.Submit(NewJob{Source: sourceFile()})
	require.NoError(t, err)
	require.Equal(t, "A video file named clip.mp4", created.Concept)
	require.Equal(t, "clip.mp4", created.Filename)
	require.Equal(t, "0.0 MB", created.FileSize)
}

func TestMetadataFailureFailsJob(t *testing.T) {
	h := newHarness(t, "")
	created, err := h.orch.Submit(NewJob{Concept: "cooking tutorial"})
	require.NoError(t, err)

	job := h.waitFor(t, created.ID, domain.JobStatusFailed, domain.JobStatusReadyToUpload)
	require.Equal(t, domain.JobStatusFailed, job.Status)
	require.Equal(t, domain.StageAnalysis, job.FailedStage)
	require.Contains(t, job.Error, "gemini api key")
	require.Zero(t, h.thumb.calls)
}

func TestKeyLookupUsedWhenKeyMissing(t *testing.T) {
	h := newHarness(t, "")
	h.orch.keyLookup = func(context.Context) (string, error) { return "STORED_KEY", nil }

	created, err := h.orch.Submit(NewJob{Concept: "x"})
	require.NoError(t, err)
	h.waitFor(t, created.ID, domain.JobStatusReadyToUpload)
	require.Equal(t, []string{"STORED_KEY"}, h.meta.keys)
}

func TestThumbnailFallbackStillReady(t *testing.T) {
	h := newHarness(t, "KEY")
	h.thumb.ref = ""
	created, err := h.orch.Submit(NewJob{Concept: "x"})
	require.NoError(t, err)

	job := h.waitFor(t, created.ID, domain.JobStatusReadyToUpload, domain.JobStatusFailed)
	require.Equal(t, domain.JobStatusReadyToUpload, job.Status)
	require.Equal(t, domain.FallbackThumbnail, job.Result.Thumbnail)
}

func TestUploadWithoutCredentialRequestsToken(t *testing.T) {
	h := newHarness(t, "KEY")
	h.auth.token = ""
	created, err := h.orch.Submit(NewJob{Source: sourceFile()})
	require.NoError(t, err)
	h.waitFor(t, created.ID, domain.JobStatusReadyToUpload)

	err = h.orch.Upload(context.Background(), created.ID)
	require.ErrorIs(t, err, domain.ErrCredentialRequired)
	require.Equal(t, 1, h.auth.requests)
	require.Zero(t, h.uploader.uploads)

	job, err := h.orch.Job(created.ID)
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusReadyToUpload, job.Status)
}

func TestUploadCompletesJob(t *testing.T) {
	h := newHarness(t, "KEY")
	created, err := h.orch.Submit(NewJob{Source: sourceFile()})
	require.NoError(t, err)
	h.waitFor(t, created.ID, domain.JobStatusReadyToUpload)

	require.NoError(t, h.orch.Upload(context.Background(), created.ID))
	job := h.waitFor(t, created.ID, domain.JobStatusCompleted, domain.JobStatusFailed)
	require.Equal(t, domain.JobStatusCompleted, job.Status)
	require.Equal(t, "abc123", job.RemoteID)
	require.Equal(t, 100, job.Progress)
	require.Equal(t, []byte("video-bytes"), h.uploader.body)
	require.Equal(t, []string{"TOKEN"}, h.uploader.tokens)
	require.Equal(t, 1, h.uploader.thumbs)

	require.NoError(t, h.orch.Shutdown(context.Background()))
	require.Len(t, h.recorder.pubs, 1)
	require.Equal(t, "abc123", h.recorder.pubs[0].RemoteID)
	require.Equal(t, created.ID, h.recorder.pubs[0].JobID)
}

func TestPlaceholderThumbnailIsNotAttached(t *testing.T) {
	h := newHarness(t, "KEY")
	h.thumb.ref = ""
	created, err := h.orch.Submit(NewJob{Source: sourceFile()})
	require.NoError(t, err)
	h.waitFor(t, created.ID, domain.JobStatusReadyToUpload)

	require.NoError(t, h.orch.Upload(context.Background(), created.ID))
	h.waitFor(t, created.ID, domain.JobStatusCompleted)
	require.Zero(t, h.uploader.thumbs)
}

func TestThumbnailAttachFailureStillCompletes(t *testing.T) {
	h := newHarness(t, "KEY")
	h.uploader.thumbErr = &domain.ThumbnailAttachError{VideoID: "abc123", StatusCode: http.StatusForbidden}
	created, err := h.orch.Submit(NewJob{Source: sourceFile()})
	require.NoError(t, err)
	h.waitFor(t, created.ID, domain.JobStatusReadyToUpload)

	require.NoError(t, h.orch.Upload(context.Background(), created.ID))
	job := h.waitFor(t, created.ID, domain.JobStatusCompleted, domain.JobStatusFailed)
	require.Equal(t, domain.JobStatusCompleted, job.Status)
	require.Equal(t, "abc123", job.RemoteID)
}

func TestUploadFailureThenRetry(t *testing.T) {
	h := newHarness(t, "KEY")
	h.uploader.uploadFn = func(call int) (string, error) {
		if call == 1 {
			return "", &domain.UploadError{Phase: "initiate", StatusCode: http.StatusForbidden}
		}
		return "retried-id", nil
	}
	created, err := h.orch.Submit(NewJob{Source: sourceFile()})
	require.NoError(t, err)
	h.waitFor(t, created.ID, domain.JobStatusReadyToUpload)

	require.NoError(t, h.orch.Upload(context.Background(), created.ID))
	job := h.waitFor(t, created.ID, domain.JobStatusFailed, domain.JobStatusCompleted)
	require.Equal(t, domain.JobStatusFailed, job.Status)
	require.Equal(t, domain.StageUpload, job.FailedStage)
	require.Contains(t, job.Error, "403")
	require.Empty(t, job.RemoteID)
	require.Zero(t, h.auth.invalidated)

	require.ErrorIs(t, h.orch.Upload(context.Background(), created.ID), domain.ErrNotReady)
	require.NoError(t, h.orch.Retry(context.Background(), created.ID))
	job = h.waitFor(t, created.ID, domain.JobStatusCompleted, domain.JobStatusFailed)
	require.Equal(t, domain.JobStatusCompleted, job.Status)
	require.Equal(t, "retried-id", job.RemoteID)
	require.Empty(t, job.Error)
}

func TestUnauthorizedUploadInvalidatesToken(t *testing.T) {
	h := newHarness(t, "KEY")
	h.uploader.uploadFn = func(int) (string, error) {
		return "", &domain.UploadError{Phase: "initiate", StatusCode: http.StatusUnauthorized}
	}
	created, err := h.orch.Submit(NewJob{Source: sourceFile()})
	require.NoError(t, err)
	h.waitFor(t, created.ID, domain.JobStatusReadyToUpload)

	require.NoError(t, h.orch.Upload(context.Background(), created.ID))
	h.waitFor(t, created.ID, domain.JobStatusFailed)
	require.Equal(t, 1, h.auth.invalidated)

	require.ErrorIs(t, h.orch.Retry(context.Background(), created.ID), domain.ErrCredentialRequired)
	require.Equal(t, 1, h.auth.requests)
}

func TestSecondUploadWhileInFlightIsRejected(t *testing.T) {
	h := newHarness(t, "KEY")
	h.uploader.block = make(chan struct{})
	h.uploader.uploadSeen = make(chan struct{}, 1)
	created, err := h.orch.Submit(NewJob{Source: sourceFile()})
	require.NoError(t, err)
	h.waitFor(t, created.ID, domain.JobStatusReadyToUpload)

	require.NoError(t, h.orch.Upload(context.Background(), created.ID))
	<-h.uploader.uploadSeen
	require.ErrorIs(t, h.orch.Upload(context.Background(), created.ID), domain.ErrUploadInFlight)
	close(h.uploader.block)

	h.waitFor(t, created.ID, domain.JobStatusCompleted)
	require.Equal(t, 1, h.uploader.uploads)
}

func TestUploadTextOnlyJobHasNoSource(t *testing.T) {
	h := newHarness(t, "KEY")
	created, err := h.orch.Submit(NewJob{Concept: "x"})
	require.NoError(t, err)
	h.waitFor(t, created.ID, domain.JobStatusReadyToUpload)
	require.ErrorIs(t, h.orch.Upload(context.Background(), created.ID), domain.ErrNoSourceFile)
	require.Zero(t, h.auth.requests)
}

func TestUploadBeforeReadyIsRejected(t *testing.T) {
	h := newHarness(t, "KEY")
	release := make(chan struct{})
	h.meta.fn = func(int, string) (*domain.Metadata, error) {
		<-release
		return &domain.Metadata{Title: "t", Tags: []string{}}, nil
	}
	created, err := h.orch.Submit(NewJob{Source: sourceFile()})
	require.NoError(t, err)
	require.ErrorIs(t, h.orch.Upload(context.Background(), created.ID), domain.ErrNotReady)
	close(release)
	h.waitFor(t, created.ID, domain.JobStatusReadyToUpload)
}

func TestRetryAnalysis(t *testing.T) {
	h := newHarness(t, "KEY")
	h.meta.fn = func(call int, concept string) (*domain.Metadata, error) {
		if call == 1 {
			return nil, &domain.ProviderError{Provider: "gemini", Reason: "no response text"}
		}
		return &domain.Metadata{Title: "second try", Tags: []string{"t"}, ThumbnailPrompt: "p"}, nil
	}
	created, err := h.orch.Submit(NewJob{Concept: "x"})
	require.NoError(t, err)
	job := h.waitFor(t, created.ID, domain.JobStatusFailed)
	require.Equal(t, domain.StageAnalysis, job.FailedStage)

	require.NoError(t, h.orch.Retry(context.Background(), created.ID))
	job = h.waitFor(t, created.ID, domain.JobStatusReadyToUpload, domain.JobStatusFailed)
	require.Equal(t, domain.JobStatusReadyToUpload, job.Status)
	require.Equal(t, "second try", job.Result.Title)
	require.Empty(t, job.FailedStage)
}

func TestRetryRequiresFailedJob(t *testing.T) {
	h := newHarness(t, "KEY")
	created, err := h.orch.Submit(NewJob{Concept: "x"})
	require.NoError(t, err)
	h.waitFor(t, created.ID, domain.JobStatusReadyToUpload)
	require.ErrorIs(t, h.orch.Retry(context.Background(), created.ID), domain.ErrNotReady)
	require.ErrorIs(t, h.orch.Retry(context.Background(), "missing"), domain.ErrNotFound)
}

func TestJobsNewestFirst(t *testing.T) {
	h := newHarness(t, "KEY")
	first, err := h.orch.Submit(NewJob{Concept: "one"})
	require.NoError(t, err)
	second, err := h.orch.Submit(NewJob{Concept: "two"})
	require.NoError(t, err)

	jobs := h.orch.Jobs()
	require.Len(t, jobs, 2)
	require.Equal(t, second.ID, jobs[0].ID)
	require.Equal(t, first.ID, jobs[1].ID)
	require.Equal(t, "video_draft_2.mp4", jobs[0].Filename)
}

func TestJobReturnsIndependentCopies(t *testing.T) {
	h := newHarness(t, "KEY")
	created, err := h.orch.Submit(NewJob{Concept: "x"})
	require.NoError(t, err)
	job := h.waitFor(t, created.ID, domain.JobStatusReadyToUpload)
	job.Result.Tags[0] = "mutated"

	again, err := h.orch.Job(created.ID)
	require.NoError(t, err)
	require.Equal(t, "a", again.Result.Tags[0])
}

type blockingMetadata struct {
	started chan struct{}
	release chan struct{}
}

func (m *blockingMetadata) Generate(ctx context.Context, _, concept string) (*domain.Metadata, error) {
	m.started <- struct{}{}
	select {
	case <-m.release:
		return &domain.Metadata{Title: concept, Tags: []string{"t"}, ThumbnailPrompt: "p"}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestShutdownLetsStartedStepsFinish(t *testing.T) {
	signalCtx, cancel := context.WithCancel(context.Background())
	meta := &blockingMetadata{started: make(chan struct{}, 1), release: make(chan struct{})}
	orch, err := New(Options{
		Metadata:    meta,
		Thumbnail:   &fakeThumbnail{},
		Uploader:    &fakeUploader{},
		Sources:     memSources{},
		Auth:        &fakeAuth{},
		APIKey:      "KEY",
		BaseContext: context.WithoutCancel(signalCtx),
	})
	require.NoError(t, err)

	created, err := orch.Submit(NewJob{Concept: "x"})
	require.NoError(t, err)
	<-meta.started
	cancel()

	done := make(chan error, 1)
	go func() {
		ctx, stop := context.WithTimeout(context.Background(), 2*time.Second)
		defer stop()
		done <- orch.Shutdown(ctx)
	}()
	select {
	case err := <-done:
		t.Fatalf("Shutdown returned %v while analysis was still running", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(meta.release)
	require.NoError(t, <-done)
	job, err := orch.Job(created.ID)
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusReadyToUpload, job.Status)
	require.Empty(t, job.Error)
}

func TestTransitionOutsideStateMachineIsDropped(t *testing.T) {
	h := newHarness(t, "KEY")
	created, err := h.orch.Submit(NewJob{Concept: "x"})
	require.NoError(t, err)
	h.waitFor(t, created.ID, domain.JobStatusReadyToUpload)

	require.False(t, h.orch.update(created.ID, func(j *domain.Job) {
		j.Status = domain.JobStatusCompleted
	}))
	h.orch.fail(created.ID, domain.StageUpload, errors.New("late failure"))

	job, err := h.orch.Job(created.ID)
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusReadyToUpload, job.Status)
	require.Empty(t, job.Error)
	require.Empty(t, job.FailedStage)

	require.True(t, h.orch.update(created.ID, func(j *domain.Job) {
		j.Concept = "same status edits are allowed"
	}))
}

func TestSlowJobDoesNotBlockOthers(t *testing.T) {
	h := newHarness(t, "KEY")
	release := make(chan struct{})
	h.meta.fn = func(_ int, concept string) (*domain.Metadata, error) {
		if concept == "slow" {
			<-release
		}
		return &domain.Metadata{Title: concept, Tags: []string{"t"}, ThumbnailPrompt: "p"}, nil
	}

	slow, err := h.orch.Submit(NewJob{Concept: "slow"})
	require.NoError(t, err)
	fast, err := h.orch.Submit(NewJob{Concept: "fast"})
	require.NoError(t, err)

	h.waitFor(t, fast.ID, domain.JobStatusReadyToUpload)
	job, err := h.orch.Job(slow.ID)
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusAnalyzing, job.Status)

	close(release)
	job = h.waitFor(t, slow.ID, domain.JobStatusReadyToUpload)
	require.Equal(t, "slow", job.Result.Title)
}

func TestMetadataVisibleWhileThumbnailGenerates(t *testing.T) {
	h := newHarness(t, "KEY")
	h.thumb.gate = make(chan struct{})
	created, err := h.orch.Submit(NewJob{Concept: "cooking tutorial"})
	require.NoError(t, err)

	job := h.waitFor(t, created.ID, domain.JobStatusGeneratingThumbnail)
	require.NotNil(t, job.Result)
	require.Equal(t, "Title for cooking tutorial", job.Result.Title)
	require.Empty(t, job.Result.Thumbnail)

	close(h.thumb.gate)
	job = h.waitFor(t, created.ID, domain.JobStatusReadyToUpload)
	require.True(t, job.Result.Thumbnail.IsInline())
}

func TestUploadProgressNeverDecreases(t *testing.T) {
	h := newHarness(t, "KEY")
	h.uploader.steps = []int{10, 60, 30, 45, 60}
	h.uploader.stepped = make(chan struct{}, 1)
	h.uploader.resume = make(chan struct{})
	created, err := h.orch.Submit(NewJob{Source: sourceFile()})
	require.NoError(t, err)
	h.waitFor(t, created.ID, domain.JobStatusReadyToUpload)

	require.NoError(t, h.orch.Upload(context.Background(), created.ID))
	observed := make(chan []int, 1)
	go func() {
		var seen []int
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = h.orch.Await(ctx, created.ID, func(j domain.Job) bool {
			seen = append(seen, j.Progress)
			return j.Status.Terminal()
		})
		observed <- seen
	}()

	<-h.uploader.stepped
	job, err := h.orch.Job(created.ID)
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusUploading, job.Status)
	require.Equal(t, 60, job.Progress)

	close(h.uploader.resume)
	seen := <-observed
	require.NotEmpty(t, seen)
	for i := 1; i < len(seen); i++ {
		require.GreaterOrEqual(t, seen[i], seen[i-1], "progress went backwards: %v", seen)
	}
	require.Equal(t, 100, seen[len(seen)-1])
}
